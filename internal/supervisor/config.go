// Package supervisor keeps the bot process alive: it checks the runtime
// environment, runs the bot as a child process, reports how it stopped and
// asks whether to start it again.
package supervisor

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// Action is what the operator chose at the restart prompt.
type Action string

const (
	ActionRestart Action = "restart"
	ActionExit    Action = "exit"
)

// ParseAction accepts restart/exit and the prompt keys y/n.
func ParseAction(s string) (Action, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "restart", "y", "yes":
		return ActionRestart, nil
	case "exit", "n", "no":
		return ActionExit, nil
	default:
		return "", fmt.Errorf("unknown action %q (want restart or exit)", s)
	}
}

// Key is the prompt key that selects the action.
func (a Action) Key() byte {
	if a == ActionRestart {
		return 'Y'
	}
	return 'N'
}

// Config carries everything the supervisor loop needs. It replaces the
// launcher's ambient variables.
type Config struct {
	// BotName is used in every console message, e.g. "FGPbot".
	BotName string
	// WorkDir is where the bot runs and where EnvDir is resolved. Empty means
	// the supervisor's own directory.
	WorkDir string
	// EnvDir is the prepared runtime environment, relative to WorkDir or absolute.
	EnvDir string
	// Marker is the activation file inside EnvDir. Empty means the platform default.
	Marker string
	// Entry is the command line of the bot, resolved against the environment first.
	Entry []string

	PromptTimeout time.Duration
	RestartDelay  time.Duration
	ExitDelay     time.Duration
	// DefaultAction is taken when the prompt times out.
	DefaultAction Action
}

// DefaultConfig mirrors the original launcher: the bot runs next to the
// supervisor executable from .venv with python main.py, the prompt waits 10s
// and defaults to exit, 3s before a restart, 1s before closing.
func DefaultConfig() Config {
	return Config{
		BotName:       "FGPbot",
		WorkDir:       SupervisorDir(),
		EnvDir:        ".venv",
		Entry:         []string{"python", "main.py"},
		PromptTimeout: 10 * time.Second,
		RestartDelay:  3 * time.Second,
		ExitDelay:     1 * time.Second,
		DefaultAction: ActionExit,
	}
}

// SupervisorDir is the directory of the running executable with symlinks
// resolved, or "." when it cannot be determined.
func SupervisorDir() string {
	exe, err := os.Executable()
	if err != nil {
		return "."
	}
	if resolved, err := filepath.EvalSymlinks(exe); err == nil {
		exe = resolved
	}
	return filepath.Dir(exe)
}

// Validate rejects configurations the loop cannot run with.
func (c Config) Validate() error {
	var errs []error
	if c.BotName == "" {
		errs = append(errs, errors.New("bot name is empty"))
	}
	if c.EnvDir == "" {
		errs = append(errs, errors.New("environment directory is empty"))
	}
	if len(c.Entry) == 0 || c.Entry[0] == "" {
		errs = append(errs, errors.New("entry command is empty"))
	}
	if c.PromptTimeout <= 0 {
		errs = append(errs, fmt.Errorf("prompt timeout must be positive, got %s", c.PromptTimeout))
	}
	if c.RestartDelay < 0 || c.ExitDelay < 0 {
		errs = append(errs, errors.New("delays must not be negative"))
	}
	if c.DefaultAction != ActionRestart && c.DefaultAction != ActionExit {
		errs = append(errs, fmt.Errorf("invalid default action %q", c.DefaultAction))
	}
	return errors.Join(errs...)
}
