package cmd

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fgp-bot/fgpbot/pkg/models"
)

func TestContentParamsValidation(t *testing.T) {
	defer func() { postsRating, postsType, postsOrder, postsDate = "", "", "", "" }()

	postsRating, postsType = "s", "png"
	p, err := contentParams([]string{"fox"})
	require.NoError(t, err)
	assert.Equal(t, models.RatingSafe, p.Rating)
	assert.Equal(t, "fox rating:s type:png", p.BuildTags())

	postsRating = "x"
	_, err = contentParams(nil)
	assert.ErrorContains(t, err, "invalid rating")

	postsRating, postsDate = "", "decade"
	_, err = contentParams(nil)
	assert.ErrorContains(t, err, "invalid date range")
}

func TestLoadSettingsAppliesExplicitFlags(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("supervisor:\n  prompt_timeout: 20s\n"), 0644))

	cfgFile, outputFormat = path, "table"
	defer func() { cfgFile, settings = "", nil }()

	require.NoError(t, superviseCmd.Flags().Set("default", "restart"))
	defer superviseCmd.Flags().Set("default", "exit")

	require.NoError(t, loadSettings(superviseCmd, nil))
	assert.Equal(t, 20*time.Second, settings.Supervisor.PromptTimeout)
	assert.Equal(t, "restart", settings.Supervisor.DefaultAction)
}

func TestLoadSettingsRejectsUnknownOutput(t *testing.T) {
	outputFormat = "xml"
	defer func() { outputFormat = "table" }()
	assert.Error(t, loadSettings(versionCmd, nil))
}

func TestExitError(t *testing.T) {
	assert.Equal(t, "exit status 3", (&ExitError{Code: 3}).Error())
}

func TestCommandErrorsAreLeftToMain(t *testing.T) {
	var stderr bytes.Buffer
	rootCmd.SetErr(&stderr)
	rootCmd.SetArgs([]string{"config", "show", "--output", "xml"})
	defer func() {
		rootCmd.SetErr(nil)
		rootCmd.SetArgs(nil)
		outputFormat = "table"
	}()

	err := rootCmd.Execute()

	assert.ErrorContains(t, err, "unknown output format")
	assert.Empty(t, stderr.String())
}
