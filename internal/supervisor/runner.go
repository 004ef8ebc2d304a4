package supervisor

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"syscall"

	"github.com/fgp-bot/fgpbot/internal/observe"
	"github.com/fgp-bot/fgpbot/internal/report"
	"github.com/fgp-bot/fgpbot/pkg/logging"
)

// StartFailedExitCode is reported when the child could not be launched.
const StartFailedExitCode = -1

// Runner launches the bot once and blocks until it exits.
type Runner interface {
	Run(ctx context.Context, sessionID string, run int) *report.Result
}

// ExecRunner runs the bot entry point as a child process sharing the
// supervisor's console.
type ExecRunner struct {
	cfg    Config
	env    Environment
	stdin  io.Reader
	stdout io.Writer
	stderr io.Writer
	logger *logging.Logger
}

// NewExecRunner wires the child to the process's own stdio.
func NewExecRunner(cfg Config, env Environment, logger *logging.Logger) *ExecRunner {
	return &ExecRunner{
		cfg:    cfg,
		env:    env,
		stdin:  os.Stdin,
		stdout: os.Stdout,
		stderr: os.Stderr,
		logger: logger,
	}
}

// WithStdio replaces the child's streams. An *Input stdin is forwarded to the
// child through a pipe while it runs, so bytes the child never read remain
// available to the restart prompt.
func (r *ExecRunner) WithStdio(stdin io.Reader, stdout, stderr io.Writer) *ExecRunner {
	r.stdin, r.stdout, r.stderr = stdin, stdout, stderr
	return r
}

// Run starts the entry point and waits for it. The child is deliberately not
// bound to ctx: nothing inside the supervisor cancels a running bot.
func (r *ExecRunner) Run(ctx context.Context, sessionID string, run int) *report.Result {
	timing := observe.NewTiming()
	log := r.logger.WithField("run", run)

	path, err := r.env.LookPath(r.cfg.Entry[0])
	if err != nil {
		return r.startFailed(sessionID, run, timing, fmt.Errorf("resolve %s: %w", r.cfg.Entry[0], err))
	}

	cmd := exec.Command(path, r.cfg.Entry[1:]...)
	cmd.Dir = r.cfg.WorkDir
	cmd.Env = r.env.Activate(os.Environ())
	cmd.Stdout = r.stdout
	cmd.Stderr = r.stderr

	input, forwarding := r.stdin.(*Input)
	var stdinPipe io.WriteCloser
	if forwarding {
		if stdinPipe, err = cmd.StdinPipe(); err != nil {
			return r.startFailed(sessionID, run, timing, fmt.Errorf("stdin pipe: %w", err))
		}
	} else {
		cmd.Stdin = r.stdin
	}

	log.Debug(fmt.Sprintf("starting %s %v in %s", path, r.cfg.Entry[1:], r.cfg.WorkDir))
	if err := cmd.Start(); err != nil {
		return r.startFailed(sessionID, run, timing, fmt.Errorf("start %s: %w", path, err))
	}

	pid := cmd.Process.Pid
	log.Info(fmt.Sprintf("%s started", r.cfg.BotName), map[string]interface{}{"pid": pid})

	stop := make(chan struct{})
	forwarded := make(chan struct{})
	if forwarding {
		go func() {
			defer close(forwarded)
			input.forward(stdinPipe, stop)
		}()
	} else {
		close(forwarded)
	}

	waitErr := cmd.Wait()
	close(stop)
	<-forwarded
	timing.Complete()

	code := exitStatus(waitErr)
	if code != 0 && waitErr != nil {
		log.Debug(fmt.Sprintf("wait: %v", waitErr))
	}

	return report.NewResult(sessionID, run, pid, code, timing.StartedAt, timing.CompletedAt)
}

func (r *ExecRunner) startFailed(sessionID string, run int, timing *observe.Timing, err error) *report.Result {
	timing.Complete()
	r.logger.Error(fmt.Sprintf("failed to start %s: %v", r.cfg.BotName, err), map[string]interface{}{"run": run})
	res := report.NewResult(sessionID, run, 0, StartFailedExitCode, timing.StartedAt, timing.CompletedAt)
	res.StartError = err.Error()
	return res
}

// exitStatus turns the result of Wait into the integer the launcher sees.
// A child killed by a signal reports 128+signal, as shells do.
func exitStatus(err error) int {
	if err == nil {
		return 0
	}

	var exitErr *exec.ExitError
	if !errors.As(err, &exitErr) {
		return StartFailedExitCode
	}

	if code := exitErr.ExitCode(); code >= 0 {
		return code
	}
	if status, ok := exitErr.Sys().(syscall.WaitStatus); ok && status.Signaled() {
		return 128 + int(status.Signal())
	}
	return StartFailedExitCode
}
