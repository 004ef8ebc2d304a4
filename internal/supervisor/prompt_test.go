package supervisor

import (
	"bytes"
	"context"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const question = "Restart FGPbot? [Y,N]?"

func TestPromptKeys(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  Choice
		echo  string
	}{
		{"upper Y", "Y", Choice{Action: ActionRestart}, "Y\n"},
		{"lower y", "y", Choice{Action: ActionRestart}, "Y\n"},
		{"upper N", "N", Choice{Action: ActionExit}, "N\n"},
		{"lower n", "n", Choice{Action: ActionExit}, "N\n"},
		{"ctrl-c", "\x03", Choice{Action: ActionExit, Interrupted: true}, "N\n"},
		{"whitespace skipped", "\r\n y", Choice{Action: ActionRestart}, "Y\n"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var out bytes.Buffer
			p := NewKeyPrompter(strings.NewReader(tt.input), &out)

			got := p.Prompt(context.Background(), question, time.Second, ActionExit)

			assert.Equal(t, tt.want, got)
			assert.Equal(t, question+tt.echo, out.String())
		})
	}
}

func TestPromptInvalidKeyRingsBell(t *testing.T) {
	var out bytes.Buffer
	p := NewKeyPrompter(strings.NewReader("xq7n"), &out)

	got := p.Prompt(context.Background(), question, time.Second, ActionRestart)

	assert.Equal(t, Choice{Action: ActionExit}, got)
	assert.Equal(t, question+"\a\a\aN\n", out.String())
}

func TestPromptTimeoutAppliesDefault(t *testing.T) {
	pr, pw := io.Pipe()
	t.Cleanup(func() { _ = pw.Close() })

	for _, def := range []Action{ActionExit, ActionRestart} {
		var out bytes.Buffer
		p := NewKeyPrompter(pr, &out)

		got := p.Prompt(context.Background(), question, 20*time.Millisecond, def)

		assert.Equal(t, Choice{Action: def, TimedOut: true}, got)
		assert.Equal(t, question+string(def.Key())+"\n", out.String())
	}
}

func TestPromptEOFWaitsForDeadline(t *testing.T) {
	var out bytes.Buffer
	p := NewKeyPrompter(strings.NewReader(""), &out)

	start := time.Now()
	got := p.Prompt(context.Background(), question, 50*time.Millisecond, ActionExit)

	assert.True(t, got.TimedOut)
	assert.GreaterOrEqual(t, time.Since(start), 50*time.Millisecond)

	// A second prompt on dead input still honours its deadline.
	got = p.Prompt(context.Background(), question, 10*time.Millisecond, ActionRestart)
	assert.Equal(t, Choice{Action: ActionRestart, TimedOut: true}, got)
}

func TestPromptReusesPendingRead(t *testing.T) {
	pr, pw := io.Pipe()
	t.Cleanup(func() { _ = pw.Close() })

	var out bytes.Buffer
	p := NewKeyPrompter(pr, &out)

	first := p.Prompt(context.Background(), question, 10*time.Millisecond, ActionExit)
	require.True(t, first.TimedOut)

	go func() { _, _ = pw.Write([]byte("y")) }()

	second := p.Prompt(context.Background(), question, time.Second, ActionExit)
	assert.Equal(t, Choice{Action: ActionRestart}, second)
}

func TestPromptContextCancelSelectsExit(t *testing.T) {
	pr, pw := io.Pipe()
	t.Cleanup(func() { _ = pw.Close() })

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	var out bytes.Buffer
	got := NewKeyPrompter(pr, &out).Prompt(ctx, question, time.Second, ActionRestart)

	assert.Equal(t, Choice{Action: ActionExit, Interrupted: true}, got)
	assert.Equal(t, question+"N\n", out.String())
}

func TestChoiceString(t *testing.T) {
	assert.Equal(t, "Restart", Choice{Action: ActionRestart}.String())
	assert.Equal(t, "Exit", Choice{Action: ActionExit}.String())
	assert.Equal(t, "TimedOut(exit)", Choice{Action: ActionExit, TimedOut: true}.String())
	assert.Equal(t, "Interrupted", Choice{Action: ActionExit, Interrupted: true}.String())
}

func TestPromptLeavesKeysAfterAnswer(t *testing.T) {
	input := NewInput(strings.NewReader("xyabc"))
	var out bytes.Buffer

	got := NewKeyPrompter(input, &out).Prompt(context.Background(), question, time.Second, ActionExit)
	require.Equal(t, Choice{Action: ActionRestart}, got)

	rest, err := input.claim()
	require.NoError(t, err)
	assert.Equal(t, "abc", string(rest))
}
