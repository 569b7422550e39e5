// Package config assembles daemon settings from defaults, an optional YAML
// file, the environment (.env included) and command line flags, in that
// order of precedence.
package config

import (
	"errors"
	"fmt"
	log "log/slog"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	cli "github.com/spf13/pflag"
	"gopkg.in/yaml.v3"
)

type Voice struct {
	Locale string  `yaml:"locale"`
	Pitch  float64 `yaml:"pitch"`
	Rate   float64 `yaml:"rate"`
}

type Oracle struct {
	Provider string        `yaml:"provider"` // openai | gemini | none
	Model    string        `yaml:"model"`
	BaseURL  string        `yaml:"base_url"`
	Proxy    string        `yaml:"proxy"`
	Timeout  time.Duration `yaml:"timeout"`
	APIKey   string        `yaml:"-"`
}

type Store struct {
	Driver string `yaml:"driver"` // sqlite | postgres | none
	DSN    string `yaml:"dsn"`
}

type Executor struct {
	Kind     string `yaml:"kind"` // open | bus | log
	BusURL   string `yaml:"bus_url"`
	BusShard string `yaml:"bus_shard"`
	BusTo    string `yaml:"bus_to"`
}

type Capture struct {
	Model      string        `yaml:"model"`
	Threads    int           `yaml:"threads"`
	SilenceRMS float64       `yaml:"silence_rms"`
	Silence    time.Duration `yaml:"silence"`
	MaxLength  time.Duration `yaml:"max_length"`
	Beep       string        `yaml:"beep"`
	// Duck lowers other playback while recording.
	Duck       bool          `yaml:"duck"`
}

type Config struct {
	LogLevel string   `yaml:"log_level"`
	Socket   string   `yaml:"socket"`
	Active   bool     `yaml:"active"`
	Notices  bool     `yaml:"notices"`
	Voice    Voice    `yaml:"voice"`
	Oracle   Oracle   `yaml:"oracle"`
	Store    Store    `yaml:"store"`
	Executor Executor `yaml:"executor"`
	Capture  Capture  `yaml:"capture"`
}

func Default() Config {
	return Config{
		LogLevel: "info",
		Socket:   "/tmp/djuka.sock",
		Notices:  true,
		Voice:    Voice{Locale: "sr-RS", Pitch: 1.0, Rate: 0.9},
		Oracle:   Oracle{Provider: "openai", Timeout: 60 * time.Second},
		Store:    Store{Driver: "sqlite", DSN: "djuka.db"},
		Executor: Executor{Kind: "open", BusURL: "ws://localhost:8092/ws", BusShard: "djuka", BusTo: "phone"},
		Capture: Capture{
			SilenceRMS: 0.015,
			Silence:    600 * time.Millisecond,
			MaxLength:  10 * time.Second,
			Beep:       "beep.mp3",
			Duck:       true,
		},
	}
}

var LogLevels = map[string]log.Level{
	"debug": log.LevelDebug,
	"info":  log.LevelInfo,
	"warn":  log.LevelWarn,
	"error": log.LevelError,
}

func (c Config) Level() log.Level {
	if l, ok := LogLevels[strings.ToLower(c.LogLevel)]; ok {
		return l
	}
	return log.LevelInfo
}

// Load parses args (without the program name). A missing .env is fine; a
// config file named explicitly must exist.
func Load(args []string) (Config, error) {
	cfg := Default()

	fs := cli.NewFlagSet("djuka", cli.ContinueOnError)
	envFile := fs.StringP("env", "e", ".env", "Env file path")
	file := fs.StringP("config", "c", "", "YAML config file")
	fs.StringVarP(&cfg.LogLevel, "log", "l", cfg.LogLevel, "Log level")
	fs.StringVarP(&cfg.Socket, "socket", "s", cfg.Socket, "Control socket path")
	fs.BoolVar(&cfg.Active, "active", cfg.Active, "Start in the active state")
	fs.BoolVar(&cfg.Notices, "notices", cfg.Notices, "Show desktop notices")
	fs.StringVar(&cfg.Voice.Locale, "locale", cfg.Voice.Locale, "Speech locale")
	fs.Float64Var(&cfg.Voice.Pitch, "pitch", cfg.Voice.Pitch, "Speech pitch factor")
	fs.Float64Var(&cfg.Voice.Rate, "rate", cfg.Voice.Rate, "Speech rate factor")
	fs.StringVarP(&cfg.Oracle.Provider, "oracle", "o", cfg.Oracle.Provider, "Oracle provider: openai, gemini or none")
	fs.StringVar(&cfg.Oracle.Model, "model", cfg.Oracle.Model, "Oracle model")
	fs.StringVar(&cfg.Oracle.BaseURL, "oracle-url", cfg.Oracle.BaseURL, "Oracle base URL")
	fs.StringVarP(&cfg.Oracle.Proxy, "proxy", "p", cfg.Oracle.Proxy, "Socks Proxy Address")
	fs.DurationVar(&cfg.Oracle.Timeout, "oracle-timeout", cfg.Oracle.Timeout, "Oracle request timeout")
	fs.StringVar(&cfg.Store.Driver, "store", cfg.Store.Driver, "Conversation store: sqlite, postgres or none")
	fs.StringVar(&cfg.Store.DSN, "dsn", cfg.Store.DSN, "Conversation store DSN")
	fs.StringVarP(&cfg.Executor.Kind, "executor", "x", cfg.Executor.Kind, "Action executor: open, bus or log")
	fs.StringVarP(&cfg.Executor.BusURL, "url", "u", cfg.Executor.BusURL, "Url of hub")
	fs.StringVar(&cfg.Executor.BusShard, "shard", cfg.Executor.BusShard, "Shard name on the hub")
	fs.StringVar(&cfg.Executor.BusTo, "bus-to", cfg.Executor.BusTo, "Shard that executes actions")
	fs.StringVarP(&cfg.Capture.Model, "whisper", "w", cfg.Capture.Model, "Whisper model path, empty disables capture")
	fs.IntVar(&cfg.Capture.Threads, "threads", cfg.Capture.Threads, "Whisper threads")
	fs.StringVar(&cfg.Capture.Beep, "beep", cfg.Capture.Beep, "Listening cue mp3")
	fs.BoolVar(&cfg.Capture.Duck, "duck", cfg.Capture.Duck, "Lower other audio while listening")

	if err := fs.Parse(args); err != nil {
		return Config{}, err
	}

	if *file != "" {
		fromFile, err := readFile(*file)
		if err != nil {
			return Config{}, err
		}
		// Flags win over the file: reapply whatever was set explicitly.
		flags := cfg
		cfg = fromFile
		fs.Visit(func(f *cli.Flag) { override(&cfg, &flags, f.Name) })
	}

	if err := godotenv.Load(*envFile); err != nil && !errors.Is(err, os.ErrNotExist) {
		return Config{}, fmt.Errorf("env file %s: %w", *envFile, err)
	}
	cfg.Oracle.APIKey = apiKey(cfg.Oracle.Provider)

	return cfg, cfg.Validate()
}

func readFile(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("config file: %w", err)
	}
	cfg := Default()
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("parse %s: %w", path, err)
	}
	return cfg, nil
}

func override(dst, src *Config, flag string) {
	switch flag {
	case "log":
		dst.LogLevel = src.LogLevel
	case "socket":
		dst.Socket = src.Socket
	case "active":
		dst.Active = src.Active
	case "notices":
		dst.Notices = src.Notices
	case "locale":
		dst.Voice.Locale = src.Voice.Locale
	case "pitch":
		dst.Voice.Pitch = src.Voice.Pitch
	case "rate":
		dst.Voice.Rate = src.Voice.Rate
	case "oracle":
		dst.Oracle.Provider = src.Oracle.Provider
	case "model":
		dst.Oracle.Model = src.Oracle.Model
	case "oracle-url":
		dst.Oracle.BaseURL = src.Oracle.BaseURL
	case "proxy":
		dst.Oracle.Proxy = src.Oracle.Proxy
	case "oracle-timeout":
		dst.Oracle.Timeout = src.Oracle.Timeout
	case "store":
		dst.Store.Driver = src.Store.Driver
	case "dsn":
		dst.Store.DSN = src.Store.DSN
	case "executor":
		dst.Executor.Kind = src.Executor.Kind
	case "url":
		dst.Executor.BusURL = src.Executor.BusURL
	case "shard":
		dst.Executor.BusShard = src.Executor.BusShard
	case "bus-to":
		dst.Executor.BusTo = src.Executor.BusTo
	case "whisper":
		dst.Capture.Model = src.Capture.Model
	case "threads":
		dst.Capture.Threads = src.Capture.Threads
	case "beep":
		dst.Capture.Beep = src.Capture.Beep
	case "duck":
		dst.Capture.Duck = src.Capture.Duck
	}
}

func apiKey(provider string) string {
	switch provider {
	case "openai":
		return os.Getenv("OPENAI_API_KEY")
	case "gemini":
		if k := os.Getenv("GEMINI_API_KEY"); k != "" {
			return k
		}
		return os.Getenv("GOOGLE_API_KEY")
	}
	return ""
}

func (c Config) Validate() error {
	if _, ok := LogLevels[strings.ToLower(c.LogLevel)]; !ok {
		return fmt.Errorf("unknown log level %q", c.LogLevel)
	}
	switch c.Oracle.Provider {
	case "openai", "gemini", "none":
	default:
		return fmt.Errorf("unknown oracle provider %q", c.Oracle.Provider)
	}
	switch c.Store.Driver {
	case "sqlite", "postgres", "none":
	default:
		return fmt.Errorf("unknown store driver %q", c.Store.Driver)
	}
	switch c.Executor.Kind {
	case "open", "log":
	case "bus":
		if c.Executor.BusURL == "" || c.Executor.BusShard == "" {
			return errors.New("bus executor needs a hub url and shard")
		}
	default:
		return fmt.Errorf("unknown executor %q", c.Executor.Kind)
	}
	if c.Voice.Pitch <= 0 || c.Voice.Rate <= 0 {
		return errors.New("voice pitch and rate must be positive")
	}
	return nil
}
