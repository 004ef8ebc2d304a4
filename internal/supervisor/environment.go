package supervisor

import (
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"strings"
)

// ErrEnvironmentMissing is the only fatal supervisor error.
var ErrEnvironmentMissing = errors.New("runtime environment not found")

// Environment is a prepared runtime directory (a Python virtualenv).
type Environment struct {
	Dir    string // absolute environment directory
	BinDir string // directory holding the interpreter and scripts
	Marker string // absolute path of the activation marker
}

// DefaultMarker returns the activation script path inside a virtualenv for
// the current platform.
func DefaultMarker() string {
	return defaultMarker(runtime.GOOS)
}

func defaultMarker(goos string) string {
	if goos == "windows" {
		return filepath.Join("Scripts", "activate.bat")
	}
	return filepath.Join("bin", "activate")
}

func binDirName(goos string) string {
	if goos == "windows" {
		return "Scripts"
	}
	return "bin"
}

// ResolveEnvironment builds the Environment for cfg without touching the disk.
// A relative EnvDir is taken from WorkDir, never from the caller's directory.
func ResolveEnvironment(cfg Config) (Environment, error) {
	dir := cfg.EnvDir
	if !filepath.IsAbs(dir) {
		workDir := cfg.WorkDir
		if workDir == "" {
			workDir = SupervisorDir()
		}
		dir = filepath.Join(workDir, dir)
	}
	abs, err := filepath.Abs(dir)
	if err != nil {
		return Environment{}, fmt.Errorf("resolve environment directory %s: %w", dir, err)
	}

	marker := cfg.Marker
	if marker == "" {
		marker = DefaultMarker()
	}
	if !filepath.IsAbs(marker) {
		marker = filepath.Join(abs, marker)
	}

	return Environment{
		Dir:    abs,
		BinDir: filepath.Join(abs, binDirName(runtime.GOOS)),
		Marker: marker,
	}, nil
}

// Check verifies the activation marker exists. It has no side effects.
func (e Environment) Check() error {
	info, err := os.Stat(e.Marker)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("%w: expected %s", ErrEnvironmentMissing, e.Marker)
		}
		return fmt.Errorf("%w: %s: %v", ErrEnvironmentMissing, e.Marker, err)
	}
	if info.IsDir() {
		return fmt.Errorf("%w: %s is a directory", ErrEnvironmentMissing, e.Marker)
	}
	return nil
}

// Activate returns environ with the environment switched on, the same way
// the activation script does it: VIRTUAL_ENV set, its bin directory first on
// PATH and PYTHONHOME removed.
func (e Environment) Activate(environ []string) []string {
	out := make([]string, 0, len(environ)+2)
	path := ""
	for _, kv := range environ {
		key, value, _ := strings.Cut(kv, "=")
		switch {
		case envKeyEqual(key, "PATH"):
			path = value
		case envKeyEqual(key, "PYTHONHOME"), envKeyEqual(key, "VIRTUAL_ENV"):
		default:
			out = append(out, kv)
		}
	}

	if path == "" {
		path = e.BinDir
	} else {
		path = e.BinDir + string(os.PathListSeparator) + path
	}
	return append(out, "VIRTUAL_ENV="+e.Dir, "PATH="+path)
}

func envKeyEqual(a, b string) bool {
	if runtime.GOOS == "windows" {
		return strings.EqualFold(a, b)
	}
	return a == b
}

// LookPath resolves a bare command name inside the environment first and
// falls back to the supervisor's PATH. exec.Command resolves against the
// parent's PATH, so the activated PATH alone would not be enough.
func (e Environment) LookPath(name string) (string, error) {
	if strings.ContainsAny(name, `/\`) {
		return name, nil
	}

	candidates := []string{filepath.Join(e.BinDir, name)}
	if runtime.GOOS == "windows" && filepath.Ext(name) == "" {
		candidates = append([]string{filepath.Join(e.BinDir, name+".exe")}, candidates...)
	}
	for _, c := range candidates {
		if info, err := os.Stat(c); err == nil && !info.IsDir() {
			return c, nil
		}
	}

	return exec.LookPath(name)
}
