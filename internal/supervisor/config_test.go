package supervisor

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseAction(t *testing.T) {
	for _, in := range []string{"restart", "Y", "yes", " y "} {
		a, err := ParseAction(in)
		require.NoError(t, err, in)
		assert.Equal(t, ActionRestart, a, in)
	}
	for _, in := range []string{"exit", "N", "No"} {
		a, err := ParseAction(in)
		require.NoError(t, err, in)
		assert.Equal(t, ActionExit, a, in)
	}
	_, err := ParseAction("maybe")
	assert.Error(t, err)
}

func TestActionKey(t *testing.T) {
	assert.Equal(t, byte('Y'), ActionRestart.Key())
	assert.Equal(t, byte('N'), ActionExit.Key())
}

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()
	require.NoError(t, cfg.Validate())
	assert.Equal(t, 10*time.Second, cfg.PromptTimeout)
	assert.Equal(t, 3*time.Second, cfg.RestartDelay)
	assert.Equal(t, time.Second, cfg.ExitDelay)
	assert.Equal(t, ActionExit, cfg.DefaultAction)
}

func TestValidateCollectsAllProblems(t *testing.T) {
	cfg := Config{RestartDelay: -time.Second, DefaultAction: "later"}
	err := cfg.Validate()
	require.Error(t, err)

	msg := err.Error()
	for _, want := range []string{"bot name", "environment directory", "entry command", "prompt timeout", "delays", "default action"} {
		assert.Contains(t, msg, want)
	}
}
