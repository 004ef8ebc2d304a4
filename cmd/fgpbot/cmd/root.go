package cmd

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/fgp-bot/fgpbot/internal/config"
	"github.com/fgp-bot/fgpbot/pkg/compress"
	"github.com/fgp-bot/fgpbot/pkg/filemanager"
	"github.com/fgp-bot/fgpbot/pkg/logging"
	"github.com/fgp-bot/fgpbot/pkg/metrics"
	"github.com/fgp-bot/fgpbot/pkg/shutdown"
	"github.com/fgp-bot/fgpbot/pkg/store"
)

var (
	cfgFile      string
	outputFormat string
	metricsAddr  string

	settings *config.Settings
	logger   *logging.Logger
	cleanup  = shutdown.New(10 * time.Second)
)

// ExitError carries a process exit status out of a command without printing
// anything more.
type ExitError struct {
	Code int
}

func (e *ExitError) Error() string {
	return fmt.Sprintf("exit status %d", e.Code)
}

// rootCmd represents the base command
var rootCmd = &cobra.Command{
	Use:   "fgpbot",
	Short: "Supervisor and maintenance tools for FGPbot",
	Long: `fgpbot keeps the FGPbot Discord bot running and manages the media it posts.

Configuration comes from built-in defaults, an optional YAML file
($HOME/.fgpbot/config.yaml or ./config.yaml) and environment variables
such as DISCORD_BOT_TOKEN, LOG_LEVEL and MEDIA_API_KEY.`,
	SilenceUsage:      true,
	SilenceErrors:     true,
	PersistentPreRunE: loadSettings,
}

// Execute adds all child commands to the root command and runs it. Cleanup
// registered by commands runs before it returns.
func Execute() error {
	defer cleanup.Shutdown()
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is $HOME/.fgpbot/config.yaml)")
	rootCmd.PersistentFlags().StringVar(&outputFormat, "output", "table", "output format: table or json")
	rootCmd.PersistentFlags().StringVar(&metricsAddr, "metrics-addr", "", "serve Prometheus metrics on this address, e.g. :9100")
}

// flagBindings maps command flags onto setting keys. Flags only override
// when set explicitly.
var flagBindings = map[string]string{
	"metrics-addr":   "metrics.addr",
	"workdir":        "supervisor.work_dir",
	"env-dir":        "supervisor.env_dir",
	"name":           "supervisor.bot_name",
	"prompt-timeout": "supervisor.prompt_timeout",
	"restart-delay":  "supervisor.restart_delay",
	"exit-delay":     "supervisor.exit_delay",
	"default":        "supervisor.default_action",
}

func loadSettings(cmd *cobra.Command, args []string) error {
	if outputFormat != "table" && outputFormat != "json" {
		return fmt.Errorf("unknown output format %q (want table or json)", outputFormat)
	}

	v, err := config.New(cfgFile)
	if err != nil {
		return err
	}
	for flag, key := range flagBindings {
		if f := cmd.Flags().Lookup(flag); f != nil {
			if err := v.BindPFlag(key, f); err != nil {
				return err
			}
		}
	}
	settings, err = config.Load(v)
	return err
}

// appLogger opens the configured log file on first use.
func appLogger() *logging.Logger {
	if logger != nil {
		return logger
	}
	l, err := settings.Logger()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Warning: %v, logging to stderr only\n", err)
		l = logging.NewLogger(logging.ParseLevel(settings.Log.Level), settings.Log.JSON)
	}
	logger = l
	cleanup.Register("logger", shutdown.CloseResource(l))
	return logger
}

// IsJSONOutput returns true if JSON output is requested
func IsJSONOutput() bool {
	return outputFormat == "json"
}

func printJSON(v interface{}) error {
	output, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal JSON: %w", err)
	}
	fmt.Println(string(output))
	return nil
}

func openStore() (*store.SQLiteStore, error) {
	st, err := store.NewSQLiteStore(settings.Data.Database)
	if err != nil {
		return nil, err
	}
	cleanup.Register("store", shutdown.CloseResource(st))
	return st, nil
}

// startMetrics serves the registry when an address is configured. The
// returned Metrics is usable either way.
func startMetrics() (*metrics.Metrics, error) {
	m := metrics.New()
	if settings.Metrics.Addr == "" {
		return m, nil
	}
	srv := metrics.NewServer(settings.Metrics.Addr, m, appLogger())
	if _, err := srv.Start(); err != nil {
		return nil, err
	}
	cleanup.Register("metrics server", shutdown.StopHTTPServer(srv))
	return m, nil
}

func newFileManager(st store.Store, recorder filemanager.Recorder) *filemanager.Manager {
	dirs := make([]filemanager.Directory, 0, 2)
	for _, cd := range settings.CategoryDirs() {
		dirs = append(dirs, filemanager.Directory{Category: cd.Category, Path: cd.Dir})
	}
	return filemanager.New(st, filemanager.Options{
		Directories:  dirs,
		ConvertedDir: settings.Data.ConvertedDir,
		MaxFileSize:  settings.Bot.MaxFileSize,
		HashWorkers:  settings.Data.HashWorkers,
		Compressor:   compress.New(appLogger()),
		Recorder:     recorder,
		Logger:       appLogger(),
	})
}
