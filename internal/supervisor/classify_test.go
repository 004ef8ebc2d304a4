package supervisor

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestOutcomeMessage(t *testing.T) {
	at := time.Date(2026, 10, 16, 9, 5, 7, 0, time.Local)

	assert.Equal(t, "[2026-10-16 09:05:07] FGPbot stopped normally.", OutcomeMessage("FGPbot", 0, at))
	assert.Equal(t, "[2026-10-16 09:05:07] FGPbot crashed with error code 2.", OutcomeMessage("FGPbot", 2, at))
	assert.Equal(t, "[2026-10-16 09:05:07] FGPbot crashed with error code -1.", OutcomeMessage("FGPbot", -1, at))
}

func TestRestartMessage(t *testing.T) {
	assert.Equal(t, "Restarting FGPbot in 3 seconds...", RestartMessage("FGPbot", 3*time.Second))
	assert.Equal(t, "Restarting FGPbot in 1 second...", RestartMessage("FGPbot", time.Second))
	assert.Equal(t, "Restarting FGPbot in 1.5s...", RestartMessage("FGPbot", 1500*time.Millisecond))
}

func TestPromptAndClosingText(t *testing.T) {
	assert.Equal(t, "Restart FGPbot? [Y,N]?", PromptQuestion("FGPbot"))
	assert.Equal(t, "Closing FGPbot...", ClosingMessage("FGPbot"))
}
