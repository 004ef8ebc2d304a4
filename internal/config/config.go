// Package config loads fgpbot settings from defaults, an optional YAML file
// and environment variables, in increasing order of precedence.
package config

import (
	"errors"
	"fmt"
	"path/filepath"
	"reflect"
	"strconv"
	"strings"
	"time"

	"github.com/go-viper/mapstructure/v2"
	"github.com/spf13/viper"

	"github.com/fgp-bot/fgpbot/internal/supervisor"
	"github.com/fgp-bot/fgpbot/pkg/logging"
	"github.com/fgp-bot/fgpbot/pkg/mediaapi"
)

// MiB is one mebibyte.
const MiB = 1024 * 1024

// Category names of the tracked file directories.
const (
	CategoryMeme    = "meme"
	CategoryPrivate = "private"
)

// Settings is the effective configuration of every fgpbot command.
type Settings struct {
	Bot        BotSettings        `mapstructure:"bot" yaml:"bot"`
	Log        LogSettings        `mapstructure:"log" yaml:"log"`
	Data       DataSettings       `mapstructure:"data" yaml:"data"`
	Supervisor SupervisorSettings `mapstructure:"supervisor" yaml:"supervisor"`
	Media      MediaSettings      `mapstructure:"media" yaml:"media"`
	Metrics    MetricsSettings    `mapstructure:"metrics" yaml:"metrics"`
}

type BotSettings struct {
	Token       string `mapstructure:"token" yaml:"token"`
	Prefix      string `mapstructure:"prefix" yaml:"prefix"`
	OwnerID     int64  `mapstructure:"owner_id" yaml:"owner_id"`
	ReactChance int    `mapstructure:"react_chance" yaml:"react_chance"`
	MaxFileSize int64  `mapstructure:"max_file_size" yaml:"max_file_size"`
}

type LogSettings struct {
	Level    string `mapstructure:"level" yaml:"level"`
	Filename string `mapstructure:"filename" yaml:"filename"`
	JSON     bool   `mapstructure:"json" yaml:"json"`
	MaxSize  int64  `mapstructure:"max_size" yaml:"max_size"`
}

type DataSettings struct {
	Dir          string `mapstructure:"dir" yaml:"dir"`
	MemesDir     string `mapstructure:"memes_dir" yaml:"memes_dir"`
	PrivateDir   string `mapstructure:"private_dir" yaml:"private_dir"`
	ConvertedDir string `mapstructure:"converted_dir" yaml:"converted_dir"`
	Database     string `mapstructure:"database" yaml:"database"`
	HashWorkers  int    `mapstructure:"hash_workers" yaml:"hash_workers"`
}

type SupervisorSettings struct {
	BotName       string        `mapstructure:"bot_name" yaml:"bot_name"`
	WorkDir       string        `mapstructure:"work_dir" yaml:"work_dir"`
	EnvDir        string        `mapstructure:"env_dir" yaml:"env_dir"`
	Marker        string        `mapstructure:"marker" yaml:"marker,omitempty"`
	Entry         []string      `mapstructure:"entry" yaml:"entry"`
	PromptTimeout time.Duration `mapstructure:"prompt_timeout" yaml:"prompt_timeout"`
	RestartDelay  time.Duration `mapstructure:"restart_delay" yaml:"restart_delay"`
	ExitDelay     time.Duration `mapstructure:"exit_delay" yaml:"exit_delay"`
	DefaultAction string        `mapstructure:"default_action" yaml:"default_action"`
}

type MediaSettings struct {
	Username       string        `mapstructure:"username" yaml:"username"`
	APIKey         string        `mapstructure:"api_key" yaml:"api_key"`
	UserAgent      string        `mapstructure:"user_agent" yaml:"user_agent"`
	BaseURL        string        `mapstructure:"base_url" yaml:"base_url"`
	MaxRequests    int           `mapstructure:"max_requests" yaml:"max_requests"`
	MaxWorkers     int           `mapstructure:"max_workers" yaml:"max_workers"`
	RequestTimeout time.Duration `mapstructure:"request_timeout" yaml:"request_timeout"`
}

type MetricsSettings struct {
	Addr string `mapstructure:"addr" yaml:"addr"`
}

// envBindings maps setting keys to the variable names the bot has always used.
var envBindings = map[string]string{
	"bot.token":             "DISCORD_BOT_TOKEN",
	"bot.owner_id":          "DISCORD_BOT_OWNER_ID",
	"log.level":             "LOG_LEVEL",
	"log.filename":          "LOG_FILENAME",
	"data.dir":              "FGPBOT_DATA_DIR",
	"media.username":        "MEDIA_USERNAME",
	"media.api_key":         "MEDIA_API_KEY",
	"media.user_agent":      "MEDIA_USER_AGENT",
	"media.base_url":        "MEDIA_BASE_URL",
	"media.max_requests":    "MEDIA_MAX_REQUESTS",
	"media.max_workers":     "MEDIA_MAX_WORKERS",
	"media.request_timeout": "MEDIA_REQUEST_TIMEOUT",
	"metrics.addr":          "FGPBOT_METRICS_ADDR",
}

// SetDefaults registers the built-in defaults on v.
func SetDefaults(v *viper.Viper) {
	sup := supervisor.DefaultConfig()

	v.SetDefault("bot.prefix", "!fgp")
	v.SetDefault("bot.owner_id", 0)
	v.SetDefault("bot.react_chance", 160)
	v.SetDefault("bot.max_file_size", 10*MiB)

	v.SetDefault("log.level", "INFO")
	v.SetDefault("log.filename", "fgp_bot.log")
	v.SetDefault("log.json", false)
	v.SetDefault("log.max_size", 10*MiB)

	v.SetDefault("data.dir", "data")
	v.SetDefault("data.memes_dir", "memes")
	v.SetDefault("data.private_dir", "private")
	v.SetDefault("data.converted_dir", "converted")
	v.SetDefault("data.database", "file.db")
	v.SetDefault("data.hash_workers", 4)

	v.SetDefault("supervisor.bot_name", sup.BotName)
	v.SetDefault("supervisor.work_dir", sup.WorkDir)
	v.SetDefault("supervisor.env_dir", sup.EnvDir)
	v.SetDefault("supervisor.entry", sup.Entry)
	v.SetDefault("supervisor.prompt_timeout", sup.PromptTimeout)
	v.SetDefault("supervisor.restart_delay", sup.RestartDelay)
	v.SetDefault("supervisor.exit_delay", sup.ExitDelay)
	v.SetDefault("supervisor.default_action", string(sup.DefaultAction))

	v.SetDefault("media.max_requests", 2)
	v.SetDefault("media.max_workers", 2)
	v.SetDefault("media.request_timeout", 10*time.Second)
}

// BindEnv wires the environment variables onto v.
func BindEnv(v *viper.Viper) error {
	v.SetEnvPrefix("FGPBOT")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	for key, env := range envBindings {
		if err := v.BindEnv(key, env); err != nil {
			return fmt.Errorf("bind %s: %w", env, err)
		}
	}
	return nil
}

// New returns a viper instance with defaults and environment bindings set.
// When file is non-empty it is read; otherwise $HOME/.fgpbot/config.yaml and
// ./config.yaml are searched and a missing file is not an error.
func New(file string) (*viper.Viper, error) {
	v := viper.New()
	SetDefaults(v)
	if err := BindEnv(v); err != nil {
		return nil, err
	}

	if file != "" {
		v.SetConfigFile(file)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config %s: %w", file, err)
		}
		return v, nil
	}

	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath("$HOME/.fgpbot")
	v.AddConfigPath(".")
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}
	return v, nil
}

// Load decodes v into Settings and resolves data paths under Data.Dir.
func Load(v *viper.Viper) (*Settings, error) {
	var s Settings
	hooks := viper.DecodeHook(mapstructure.ComposeDecodeHookFunc(
		secondsToDuration,
		mapstructure.StringToTimeDurationHookFunc(),
		mapstructure.StringToSliceHookFunc(","),
	))
	if err := v.Unmarshal(&s, hooks); err != nil {
		return nil, fmt.Errorf("decode settings: %w", err)
	}
	s.resolvePaths()
	return &s, nil
}

// secondsToDuration accepts bare numbers for durations, e.g.
// MEDIA_REQUEST_TIMEOUT=10, and reads them as seconds.
func secondsToDuration(from, to reflect.Type, data interface{}) (interface{}, error) {
	if to != reflect.TypeOf(time.Duration(0)) || from.Kind() != reflect.String {
		return data, nil
	}
	n, err := strconv.ParseFloat(strings.TrimSpace(data.(string)), 64)
	if err != nil {
		return data, nil
	}
	return time.Duration(n * float64(time.Second)), nil
}

func (s *Settings) resolvePaths() {
	under := func(p string) string {
		if p == "" || filepath.IsAbs(p) {
			return p
		}
		return filepath.Join(s.Data.Dir, p)
	}
	s.Data.MemesDir = under(s.Data.MemesDir)
	s.Data.PrivateDir = under(s.Data.PrivateDir)
	s.Data.ConvertedDir = under(s.Data.ConvertedDir)
	s.Data.Database = under(s.Data.Database)
	if !filepath.IsAbs(s.Log.Filename) {
		s.Log.Filename = filepath.Join(s.Data.Dir, s.Log.Filename)
	}
}

// CategoryDirs maps each tracked directory to its category, in a fixed order.
func (s *Settings) CategoryDirs() []CategoryDir {
	return []CategoryDir{
		{Category: CategoryMeme, Dir: s.Data.MemesDir},
		{Category: CategoryPrivate, Dir: s.Data.PrivateDir},
	}
}

// CategoryDir pairs a directory with the category its files get.
type CategoryDir struct {
	Category string
	Dir      string
}

// SupervisorConfig converts the supervisor section.
func (s *Settings) SupervisorConfig() (supervisor.Config, error) {
	action, err := supervisor.ParseAction(s.Supervisor.DefaultAction)
	if err != nil {
		return supervisor.Config{}, err
	}
	cfg := supervisor.Config{
		BotName:       s.Supervisor.BotName,
		WorkDir:       s.Supervisor.WorkDir,
		EnvDir:        s.Supervisor.EnvDir,
		Marker:        s.Supervisor.Marker,
		Entry:         s.Supervisor.Entry,
		PromptTimeout: s.Supervisor.PromptTimeout,
		RestartDelay:  s.Supervisor.RestartDelay,
		ExitDelay:     s.Supervisor.ExitDelay,
		DefaultAction: action,
	}
	return cfg, cfg.Validate()
}

// MediaConfig converts the media section. Validation happens when the
// client is built, so commands that never touch the API do not need it.
func (s *Settings) MediaConfig() mediaapi.Config {
	cfg := mediaapi.DefaultConfig()
	cfg.Username = s.Media.Username
	cfg.APIKey = s.Media.APIKey
	cfg.UserAgent = s.Media.UserAgent
	cfg.BaseURL = s.Media.BaseURL
	cfg.MaxRequests = s.Media.MaxRequests
	cfg.MaxWorkers = s.Media.MaxWorkers
	cfg.RequestTimeout = s.Media.RequestTimeout
	return cfg
}

// Logger opens the log file configured in the log section, rotating it first
// when it has grown past log.max_size. A zero max size disables rotation.
func (s *Settings) Logger() (*logging.Logger, error) {
	l, err := logging.NewFileLogger(s.Log.Filename, logging.ParseLevel(s.Log.Level), s.Log.JSON)
	if err != nil {
		return nil, err
	}
	if s.Log.MaxSize > 0 {
		if err := l.RotateIfNeeded(s.Log.MaxSize); err != nil {
			l.Warn("Log rotation failed", map[string]interface{}{"error": err.Error()})
		}
	}
	return l, nil
}

// Redacted returns a copy safe to print.
func (s Settings) Redacted() Settings {
	s.Bot.Token = mask(s.Bot.Token)
	s.Media.APIKey = mask(s.Media.APIKey)
	s.Supervisor.Entry = append([]string(nil), s.Supervisor.Entry...)
	return s
}

func mask(secret string) string {
	if secret == "" {
		return ""
	}
	if len(secret) <= 4 {
		return "****"
	}
	return secret[:2] + strings.Repeat("*", 6) + secret[len(secret)-2:]
}
