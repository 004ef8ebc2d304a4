package supervisor

import (
	"context"
	"fmt"
	"io"
	"os"
	"time"

	"golang.org/x/term"
)

// Choice is the tagged result of the restart prompt: Restart, Exit, or
// TimedOut carrying the default action that was applied.
type Choice struct {
	Action      Action
	TimedOut    bool
	Interrupted bool
}

func (c Choice) String() string {
	switch {
	case c.TimedOut:
		return fmt.Sprintf("TimedOut(%s)", c.Action)
	case c.Interrupted:
		return "Interrupted"
	case c.Action == ActionRestart:
		return "Restart"
	default:
		return "Exit"
	}
}

// Prompter asks the restart question and waits at most timeout for an answer.
type Prompter interface {
	Prompt(ctx context.Context, question string, timeout time.Duration, def Action) Choice
}

// KeyPrompter reads single keys, case-insensitively. On a terminal it
// switches to raw mode so no Enter is needed. Keys typed after the answer, or
// while no prompt is showing, stay in the Input for the bot.
type KeyPrompter struct {
	in  *Input
	out io.Writer
	fd  int
	raw bool
}

// NewKeyPrompter prompts on out and reads keys from in. Pass the same *Input
// the runner forwards to the bot so the two never compete for a byte.
func NewKeyPrompter(in io.Reader, out io.Writer) *KeyPrompter {
	input, ok := in.(*Input)
	if !ok {
		input = NewInput(in)
	}
	p := &KeyPrompter{in: input, out: out}
	if f, ok := input.src.(*os.File); ok && term.IsTerminal(int(f.Fd())) {
		p.fd = int(f.Fd())
		p.raw = true
	}
	return p
}

// Prompt prints question, waits for Y or N and echoes the selected key like
// the choice command does. Other keys ring the bell and are ignored.
func (p *KeyPrompter) Prompt(ctx context.Context, question string, timeout time.Duration, def Action) Choice {
	fmt.Fprint(p.out, question)

	restore := p.enterRaw()
	choice := p.wait(ctx, timeout, def)
	restore()

	fmt.Fprintf(p.out, "%c\n", choice.Action.Key())
	return choice
}

func (p *KeyPrompter) enterRaw() func() {
	if !p.raw {
		return func() {}
	}
	state, err := term.MakeRaw(p.fd)
	if err != nil {
		return func() {}
	}
	return func() { _ = term.Restore(p.fd, state) }
}

func (p *KeyPrompter) wait(ctx context.Context, timeout time.Duration, def Action) Choice {
	timer := time.NewTimer(timeout)
	defer timer.Stop()

	for {
		data, err := p.in.claim()
		if data == nil && err == nil {
			select {
			case <-ctx.Done():
				return Choice{Action: ActionExit, Interrupted: true}
			case <-timer.C:
				return Choice{Action: def, TimedOut: true}
			case c := <-p.in.incoming():
				data, err = p.in.accept(c)
			}
		}
		if err != nil {
			// Input is gone for good; only the deadline can answer now.
			select {
			case <-ctx.Done():
				return Choice{Action: ActionExit, Interrupted: true}
			case <-timer.C:
				return Choice{Action: def, TimedOut: true}
			}
		}

		for i, b := range data {
			var choice Choice
			switch b {
			case 'y', 'Y':
				choice = Choice{Action: ActionRestart}
			case 'n', 'N':
				choice = Choice{Action: ActionExit}
			case 0x03: // Ctrl-C while in raw mode
				choice = Choice{Action: ActionExit, Interrupted: true}
			case '\r', '\n', ' ', '\t':
				continue
			default:
				fmt.Fprint(p.out, "\a")
				continue
			}
			p.in.unread(data[i+1:])
			return choice
		}
	}
}
