package supervisor

import (
	"context"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/google/uuid"

	"github.com/fgp-bot/fgpbot/internal/report"
	"github.com/fgp-bot/fgpbot/pkg/logging"
)

// CancelledExitCode is returned when the supervisor itself is stopped, the
// status a shell reports for SIGTERM.
const CancelledExitCode = 128 + 15

// Recorder receives run bookkeeping, typically Prometheus counters.
type Recorder interface {
	RunStarted()
	RunFinished(*report.Result)
	Restarting()
}

type noopRecorder struct{}

func (noopRecorder) RunStarted()                {}
func (noopRecorder) RunFinished(*report.Result) {}
func (noopRecorder) Restarting()                {}

// Supervisor drives CHECKING → RUNNING → PROMPTING → RESTARTING/EXITING.
type Supervisor struct {
	cfg        Config
	env        Environment
	runner     Runner
	prompter   Prompter
	recorder   Recorder
	logger     *logging.Logger
	out        io.Writer
	interrupts <-chan os.Signal
	now        func() time.Time
	sleep      func(context.Context, time.Duration) error

	sessionID string
	state     State
	history   []State
	invalid   []error
	results   *report.History
}

// Option customises a Supervisor.
type Option func(*Supervisor)

// WithRunner replaces the process runner.
func WithRunner(r Runner) Option { return func(s *Supervisor) { s.runner = r } }

// WithPrompter replaces the restart prompter.
func WithPrompter(p Prompter) Option { return func(s *Supervisor) { s.prompter = p } }

// WithRecorder attaches run bookkeeping.
func WithRecorder(r Recorder) Option { return func(s *Supervisor) { s.recorder = r } }

// WithLogger sets the operational logger.
func WithLogger(l *logging.Logger) Option { return func(s *Supervisor) { s.logger = l } }

// WithOutput sets where console messages go.
func WithOutput(w io.Writer) Option { return func(s *Supervisor) { s.out = w } }

// WithInterrupts makes a signal on ch answer a pending prompt with Exit.
// Signals arriving while the bot runs are left to the bot.
func WithInterrupts(ch <-chan os.Signal) Option { return func(s *Supervisor) { s.interrupts = ch } }

// WithClock overrides time.Now for message timestamps.
func WithClock(now func() time.Time) Option { return func(s *Supervisor) { s.now = now } }

// WithSleep overrides how delays are waited out.
func WithSleep(fn func(context.Context, time.Duration) error) Option {
	return func(s *Supervisor) { s.sleep = fn }
}

// New validates cfg and builds a supervisor. Without options it runs the
// real entry point and prompts on the process's console.
func New(cfg Config, opts ...Option) (*Supervisor, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid supervisor config: %w", err)
	}
	if cfg.WorkDir == "" {
		cfg.WorkDir = SupervisorDir()
	}
	env, err := ResolveEnvironment(cfg)
	if err != nil {
		return nil, err
	}

	s := &Supervisor{
		cfg:       cfg,
		env:       env,
		recorder:  noopRecorder{},
		logger:    logging.Discard(),
		out:       os.Stdout,
		now:       time.Now,
		sleep:     sleepCtx,
		sessionID: uuid.NewString(),
		state:     StateChecking,
		results:   report.NewHistory(report.DefaultHistorySize),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.logger = s.logger.Named("Supervisor").WithField("session", s.sessionID)
	var input *Input
	if s.runner == nil || s.prompter == nil {
		input = NewInput(os.Stdin)
	}
	if s.runner == nil {
		s.runner = NewExecRunner(cfg, env, s.logger).WithStdio(input, os.Stdout, os.Stderr)
	}
	if s.prompter == nil {
		s.prompter = NewKeyPrompter(input, s.out)
	}
	return s, nil
}

// SessionID identifies this supervisor invocation in logs and results.
func (s *Supervisor) SessionID() string { return s.sessionID }

// Environment returns the resolved runtime environment.
func (s *Supervisor) Environment() Environment { return s.env }

// Results returns the session's recent runs, newest first.
func (s *Supervisor) Results() []*report.Result { return s.results.Recent(0) }

// Crashes counts the recent runs that ended with a non-zero status.
func (s *Supervisor) Crashes() int { return s.results.Crashes() }

// History lists the states entered after CHECKING, in order.
func (s *Supervisor) History() []State { return append([]State(nil), s.history...) }

// Run executes the loop until EXITING and returns the process exit status:
// 1 when the environment is missing, 0 when the operator (or the prompt
// default) chose to exit, CancelledExitCode when ctx ended the loop. A bot
// that is running when ctx is cancelled is left to finish on its own.
func (s *Supervisor) Run(ctx context.Context) int {
	exitCode := 0
	run := 0

	for {
		if err := ctx.Err(); err != nil && s.state != StateExiting {
			s.logger.Warn(fmt.Sprintf("supervisor cancelled in state %s: %v", s.state, err))
			return CancelledExitCode
		}

		switch s.state {
		case StateChecking:
			if err := s.env.Check(); err != nil {
				fmt.Fprintf(s.out, "ERROR: %v\n", err)
				fmt.Fprintf(s.out, "Create it first, e.g. python -m venv %s\n", s.cfg.EnvDir)
				s.logger.Error(err.Error())
				exitCode = 1
				s.moveTo(StateExiting)
				continue
			}
			s.logger.Debug("environment ready", map[string]interface{}{"dir": s.env.Dir})
			s.moveTo(StateRunning)

		case StateRunning:
			run++
			s.recorder.RunStarted()
			res := s.runner.Run(ctx, s.sessionID, run)
			s.recorder.RunFinished(res)
			s.results.Record(res)
			res.LogSummary(s.logger)
			fmt.Fprintln(s.out, OutcomeMessage(s.cfg.BotName, res.ExitCode, s.now()))
			s.moveTo(StatePrompting)

		case StatePrompting:
			choice := s.prompt(ctx)
			s.logger.Info("restart prompt answered", map[string]interface{}{"choice": choice.String()})
			if choice.Action == ActionRestart {
				s.moveTo(StateRestarting)
			} else {
				s.moveTo(StateExiting)
			}

		case StateRestarting:
			fmt.Fprintln(s.out, RestartMessage(s.cfg.BotName, s.cfg.RestartDelay))
			s.recorder.Restarting()
			_ = s.sleep(ctx, s.cfg.RestartDelay)
			s.moveTo(StateRunning)

		case StateExiting:
			if exitCode == 0 {
				fmt.Fprintln(s.out, ClosingMessage(s.cfg.BotName))
				_ = s.sleep(ctx, s.cfg.ExitDelay)
			}
			return exitCode

		default:
			s.logger.Error(fmt.Sprintf("unknown state %s", s.state))
			return 1
		}
	}
}

// prompt asks the restart question. A signal delivered while waiting
// answers it with Exit; signals left over from the bot's run are dropped.
func (s *Supervisor) prompt(ctx context.Context) Choice {
	s.drainInterrupts()

	promptCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	if s.interrupts != nil {
		go func() {
			select {
			case <-s.interrupts:
				cancel()
			case <-promptCtx.Done():
			}
		}()
	}

	return s.prompter.Prompt(promptCtx, PromptQuestion(s.cfg.BotName), s.cfg.PromptTimeout, s.cfg.DefaultAction)
}

func (s *Supervisor) drainInterrupts() {
	if s.interrupts == nil {
		return
	}
	for {
		select {
		case <-s.interrupts:
		default:
			return
		}
	}
}

func (s *Supervisor) moveTo(to State) {
	if err := ValidateTransition(s.state, to); err != nil {
		s.logger.Error(err.Error())
		s.invalid = append(s.invalid, err)
	}
	s.history = append(s.history, to)
	s.state = to
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
