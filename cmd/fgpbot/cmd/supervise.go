package cmd

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/fgp-bot/fgpbot/internal/supervisor"
)

var superviseCmd = &cobra.Command{
	Use:   "supervise [-- <entry> [args...]]",
	Short: "Run the bot and offer to restart it whenever it exits",
	Long: `Supervise checks that the bot's runtime environment exists, runs the bot
inside it and waits for it to exit. After every exit it reports whether the
bot stopped normally or crashed, then asks whether to restart. Pressing Y
restarts, N exits, and no answer within the prompt timeout takes the
default action.

Ctrl+C while the bot runs is delivered to the bot only. Ctrl+C at the
prompt chooses exit.

Example:
  fgpbot supervise
  fgpbot supervise --prompt-timeout 30s --default restart
  fgpbot supervise --env-dir /opt/fgpbot/.venv -- python -O main.py`,
	RunE: runSupervise,
}

func init() {
	rootCmd.AddCommand(superviseCmd)

	def := supervisor.DefaultConfig()
	superviseCmd.Flags().String("workdir", "", "directory the bot runs in (default is the directory of this executable)")
	superviseCmd.Flags().String("env-dir", def.EnvDir, "runtime environment directory, relative to --workdir")
	superviseCmd.Flags().String("name", def.BotName, "bot name used in console messages")
	superviseCmd.Flags().Duration("prompt-timeout", def.PromptTimeout, "how long to wait for an answer at the restart prompt")
	superviseCmd.Flags().Duration("restart-delay", def.RestartDelay, "pause before a restart")
	superviseCmd.Flags().Duration("exit-delay", def.ExitDelay, "pause before closing after a normal exit")
	superviseCmd.Flags().String("default", string(def.DefaultAction), "action when the prompt times out: restart or exit")
}

func runSupervise(cmd *cobra.Command, args []string) error {
	cfg, err := settings.SupervisorConfig()
	if err != nil {
		return err
	}
	if len(args) > 0 {
		cfg.Entry = args
	}

	m, err := startMetrics()
	if err != nil {
		return err
	}

	// SIGTERM stops the supervisor; interrupts are only for the prompt.
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGTERM)
	defer stop()

	interrupts := make(chan os.Signal, 1)
	signal.Notify(interrupts, os.Interrupt)
	defer signal.Stop(interrupts)

	// The console belongs to the bot and the prompt; operational detail goes
	// to the log file only.
	appLogger().SetConsole(false)

	sup, err := supervisor.New(cfg,
		supervisor.WithLogger(appLogger()),
		supervisor.WithRecorder(m),
		supervisor.WithInterrupts(interrupts),
	)
	if err != nil {
		return err
	}

	appLogger().Info("Supervisor starting", map[string]interface{}{
		"session": sup.SessionID(),
		"env":     sup.Environment().Dir,
		"entry":   cfg.Entry,
	})
	code := sup.Run(ctx)
	appLogger().Info("Supervisor finished", map[string]interface{}{
		"session": sup.SessionID(),
		"runs":    len(sup.Results()),
		"crashes": sup.Crashes(),
		"exit":    code,
	})
	if code != 0 {
		return &ExitError{Code: code}
	}
	return nil
}
