package supervisor

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// makeEnv creates an empty virtualenv layout under dir and returns its config.
func makeEnv(t *testing.T, dir string) Config {
	t.Helper()
	marker := filepath.Join(dir, ".venv", DefaultMarker())
	require.NoError(t, os.MkdirAll(filepath.Dir(marker), 0755))
	require.NoError(t, os.WriteFile(marker, []byte("# activate\n"), 0644))

	cfg := DefaultConfig()
	cfg.WorkDir = dir
	return cfg
}

func TestDefaultMarkerPerPlatform(t *testing.T) {
	assert.Equal(t, filepath.Join("Scripts", "activate.bat"), defaultMarker("windows"))
	assert.Equal(t, filepath.Join("bin", "activate"), defaultMarker("linux"))
	assert.Equal(t, filepath.Join("bin", "activate"), defaultMarker("darwin"))
}

func TestCheckPresentEnvironment(t *testing.T) {
	cfg := makeEnv(t, t.TempDir())
	env, err := ResolveEnvironment(cfg)
	require.NoError(t, err)

	assert.True(t, filepath.IsAbs(env.Dir))
	assert.NoError(t, env.Check())
}

func supervisorDirForTest(t *testing.T) string {
	t.Helper()
	exe, err := os.Executable()
	require.NoError(t, err)
	exe, err = filepath.EvalSymlinks(exe)
	require.NoError(t, err)
	return filepath.Dir(exe)
}

func TestDefaultWorkDirIsSupervisorLocation(t *testing.T) {
	t.Chdir(t.TempDir())
	want := filepath.Join(supervisorDirForTest(t), ".venv")

	env, err := ResolveEnvironment(DefaultConfig())
	require.NoError(t, err)
	assert.Equal(t, want, env.Dir)

	cfg := DefaultConfig()
	cfg.WorkDir = ""
	env, err = ResolveEnvironment(cfg)
	require.NoError(t, err)
	assert.Equal(t, want, env.Dir)
}

func TestCheckMissingEnvironmentNamesMarker(t *testing.T) {
	cfg := DefaultConfig()
	cfg.WorkDir = t.TempDir()
	env, err := ResolveEnvironment(cfg)
	require.NoError(t, err)

	err = env.Check()
	require.ErrorIs(t, err, ErrEnvironmentMissing)
	assert.Contains(t, err.Error(), env.Marker)
}

func TestCheckMarkerIsDirectory(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(dir, ".venv", DefaultMarker()), 0755))
	cfg := DefaultConfig()
	cfg.WorkDir = dir

	env, err := ResolveEnvironment(cfg)
	require.NoError(t, err)
	assert.ErrorIs(t, env.Check(), ErrEnvironmentMissing)
}

func TestActivate(t *testing.T) {
	env := Environment{Dir: "/srv/bot/.venv", BinDir: "/srv/bot/.venv/bin"}
	out := env.Activate([]string{
		"HOME=/home/bot",
		"PATH=/usr/bin",
		"PYTHONHOME=/opt/python",
		"VIRTUAL_ENV=/old",
	})

	joined := strings.Join(out, "\n")
	assert.Contains(t, out, "HOME=/home/bot")
	assert.Contains(t, out, "VIRTUAL_ENV=/srv/bot/.venv")
	assert.Contains(t, out, "PATH=/srv/bot/.venv/bin"+string(os.PathListSeparator)+"/usr/bin")
	assert.NotContains(t, joined, "PYTHONHOME")
	assert.NotContains(t, joined, "/old")
}

func TestActivateWithoutPath(t *testing.T) {
	env := Environment{Dir: "/e", BinDir: "/e/bin"}
	assert.Contains(t, env.Activate(nil), "PATH=/e/bin")
}

func TestLookPathPrefersEnvironment(t *testing.T) {
	cfg := makeEnv(t, t.TempDir())
	env, err := ResolveEnvironment(cfg)
	require.NoError(t, err)

	name := "fgp-python"
	if filepath.Separator == '\\' {
		name += ".exe"
	}
	bin := filepath.Join(env.BinDir, name)
	require.NoError(t, os.WriteFile(bin, []byte("#!/bin/sh\n"), 0755))

	got, err := env.LookPath(name)
	require.NoError(t, err)
	assert.Equal(t, bin, got)

	_, err = env.LookPath("definitely-not-a-command-fgp")
	assert.Error(t, err)

	explicit := filepath.Join("some", "where", "python")
	got, err = env.LookPath(explicit)
	require.NoError(t, err)
	assert.Equal(t, explicit, got)
}
