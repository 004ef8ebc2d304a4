package supervisor

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestValidateTransition(t *testing.T) {
	tests := []struct {
		from, to State
		ok       bool
	}{
		{StateChecking, StateRunning, true},
		{StateChecking, StateExiting, true},
		{StateRunning, StatePrompting, true},
		{StatePrompting, StateRestarting, true},
		{StatePrompting, StateExiting, true},
		{StateRestarting, StateRunning, true},

		{StateRunning, StateExiting, false},
		{StateRunning, StateRestarting, false},
		{StateRestarting, StateExiting, false},
		{StateExiting, StateRunning, false},
		{StateChecking, StatePrompting, false},
		{State("bogus"), StateRunning, false},
	}

	for _, tt := range tests {
		t.Run(string(tt.from)+"->"+string(tt.to), func(t *testing.T) {
			err := ValidateTransition(tt.from, tt.to)
			if tt.ok {
				assert.NoError(t, err)
			} else {
				assert.Error(t, err)
			}
		})
	}
}

func TestOnlyExitingIsTerminal(t *testing.T) {
	for s := range validTransitions {
		assert.Equal(t, s == StateExiting, s.IsTerminal(), s)
		assert.Equal(t, s.IsTerminal(), len(validTransitions[s]) == 0, s)
	}
}
