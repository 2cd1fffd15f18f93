package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"net/url"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
	"time"
)

// Config is the root configuration for scopelock.
type Config struct {
	General  GeneralConfig  `json:"general"`
	Telegram TelegramConfig `json:"telegram"`
	Dispatch DispatchConfig `json:"dispatch"`
	Journal  JournalConfig  `json:"journal"`
	AutoFix  AutoFixConfig  `json:"autofix"`
	Metrics  MetricsConfig  `json:"metrics"`
}

type GeneralConfig struct {
	LogLevel string `json:"logLevel"`
	EnvFile  string `json:"envFile"` // dotenv file loaded before reading TELEGRAM_* (default: .env)
}

type TelegramConfig struct {
	Token                 string     `json:"token"`
	ChatID                FlexString `json:"chatId"`
	APIEndpoint           string     `json:"apiEndpoint"`        // Bot API URL template, "%s" for token and method
	RateLimitPerMinute    int        `json:"rateLimitPerMinute"` // 0 = only 429 pauses
	RateBurst             int        `json:"rateBurst"`
	DisableWebPagePreview bool       `json:"disableWebPagePreview"`
	TimeoutSeconds        int        `json:"timeoutSeconds"`
	Proxy                 string     `json:"proxy"` // http(s) or socks5 URL; empty uses HTTPS_PROXY
}

// FlexString is a string that also unmarshals from a JSON number, so
// "chatId": -1001234 and "chatId": "-1001234" are equivalent.
type FlexString string

func (f *FlexString) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		*f = FlexString(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return fmt.Errorf("chat id must be a string or number: %w", err)
	}
	if i, err := n.Int64(); err == nil {
		*f = FlexString(strconv.FormatInt(i, 10))
		return nil
	}
	*f = FlexString(n.String())
	return nil
}

type DispatchConfig struct {
	TargetLength     int `json:"targetLength"`
	MaxLength        int `json:"maxLength"`
	PacingMs         int `json:"pacingMs"`
	QuestionPacingMs int `json:"questionPacingMs"`
}

// Pacing returns the pause between chunks; zero disables it.
func (d DispatchConfig) Pacing() time.Duration {
	if d.PacingMs == 0 {
		return -1
	}
	return time.Duration(d.PacingMs) * time.Millisecond
}

// QuestionPacing returns the pause before each proposal question; zero disables it.
func (d DispatchConfig) QuestionPacing() time.Duration {
	if d.QuestionPacingMs == 0 {
		return -1
	}
	return time.Duration(d.QuestionPacingMs) * time.Millisecond
}

type JournalConfig struct {
	Enabled bool   `json:"enabled"`
	DBPath  string `json:"dbPath"`
}

// AutoFixConfig configures the deployment-failure listener.
type AutoFixConfig struct {
	Host           string   `json:"host"`
	Port           int      `json:"port"`
	Path           string   `json:"path"`
	Command        string   `json:"command"`
	Args           []string `json:"args"` // "{prompt}" is replaced with the generated prompt
	WorkDir        string   `json:"workDir"`
	TeamSlug       string   `json:"teamSlug"`
	TimeoutSeconds int      `json:"timeoutSeconds"`
	NotifyTelegram bool     `json:"notifyTelegram"`
}

type MetricsConfig struct {
	Enabled  bool   `json:"enabled"`
	Endpoint string `json:"endpoint"`
}

// DefaultConfigDir returns the default config directory (~/.scopelock).
func DefaultConfigDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".scopelock"
	}
	return filepath.Join(home, ".scopelock")
}

func DefaultConfigPath() string {
	return filepath.Join(DefaultConfigDir(), "config.json")
}

func Load(path string) (*Config, error) {
	path = ExpandPath(path)

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("cannot read config file %s: %w", path, err)
	}

	// Substitute environment variables: ${VAR} and ${VAR:-default}
	data = []byte(ExpandEnvVars(string(data)))

	cfg := Defaults()
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("cannot parse config file %s: %w", path, err)
	}
	expandPaths(cfg)

	if err := Validate(cfg); err != nil {
		return nil, fmt.Errorf("config validation: %w", err)
	}
	return cfg, nil
}

// LoadOrDefault loads path, falling back to Defaults when the file does not
// exist. Credentials normally come from the environment, so the file is optional.
func LoadOrDefault(path string) (*Config, bool, error) {
	cfg, err := Load(path)
	if err == nil {
		return cfg, true, nil
	}
	if errors.Is(err, fs.ErrNotExist) {
		cfg = Defaults()
		expandPaths(cfg)
		return cfg, false, nil
	}
	return nil, false, err
}

func expandPaths(cfg *Config) {
	cfg.Journal.DBPath = ExpandPath(cfg.Journal.DBPath)
	cfg.AutoFix.WorkDir = ExpandPath(cfg.AutoFix.WorkDir)
	cfg.General.EnvFile = ExpandPath(cfg.General.EnvFile)
}

// envVarPattern matches ${VAR} and ${VAR:-default} patterns in config strings.
var envVarPattern = regexp.MustCompile(`\$\{([A-Za-z_][A-Za-z0-9_]*)(?::-(.*?))?\}`)

// ExpandEnvVars replaces ${VAR} with the environment variable value.
// ${VAR:-default} uses "default" when VAR is unset or empty; an unset
// variable without a default is left untouched.
func ExpandEnvVars(input string) string {
	return envVarPattern.ReplaceAllStringFunc(input, func(match string) string {
		groups := envVarPattern.FindStringSubmatch(match)
		name := groups[1]
		def, hasDefault := groups[2], groups[2] != ""

		if val, ok := os.LookupEnv(name); ok && val != "" {
			return val
		}
		if hasDefault {
			return def
		}
		return match
	})
}

func Save(path string, cfg *Config) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("cannot create config directory: %w", err)
	}

	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return fmt.Errorf("cannot marshal config: %w", err)
	}

	// The file may hold the bot token.
	return os.WriteFile(path, data, 0o600)
}

// Validate checks that the config has valid values.
func Validate(cfg *Config) error {
	var errs []string

	switch cfg.General.LogLevel {
	case "", "debug", "info", "warn", "error":
	default:
		errs = append(errs, "general.logLevel must be one of: debug, info, warn, error")
	}

	d := cfg.Dispatch
	if d.MaxLength < 1 || d.MaxLength > 4096 {
		errs = append(errs, "dispatch.maxLength must be between 1 and 4096")
	}
	if d.TargetLength < 1 || d.TargetLength >= d.MaxLength {
		errs = append(errs, "dispatch.targetLength must be >= 1 and below dispatch.maxLength")
	}
	if d.PacingMs < 0 || d.QuestionPacingMs < 0 {
		errs = append(errs, "dispatch pacing values must be >= 0")
	}

	if cfg.Telegram.RateLimitPerMinute < 0 || cfg.Telegram.RateBurst < 0 {
		errs = append(errs, "telegram rate limits must be >= 0")
	}
	if cfg.Telegram.TimeoutSeconds < 1 {
		errs = append(errs, "telegram.timeoutSeconds must be >= 1")
	}
	if p := cfg.Telegram.Proxy; p != "" {
		if u, err := url.Parse(p); err != nil || u.Host == "" ||
			(u.Scheme != "http" && u.Scheme != "https" && u.Scheme != "socks5") {
			errs = append(errs, "telegram.proxy must be an http, https or socks5 URL")
		}
	}

	if cfg.Journal.Enabled && cfg.Journal.DBPath == "" {
		errs = append(errs, "journal.dbPath is required when the journal is enabled")
	}

	a := cfg.AutoFix
	if a.Port < 0 || a.Port > 65535 {
		errs = append(errs, "autofix.port must be between 0 and 65535")
	}
	if !strings.HasPrefix(a.Path, "/") {
		errs = append(errs, "autofix.path must start with /")
	}
	if strings.TrimSpace(a.Command) == "" {
		errs = append(errs, "autofix.command is required")
	}
	if a.TimeoutSeconds < 1 {
		errs = append(errs, "autofix.timeoutSeconds must be >= 1")
	}

	if cfg.Metrics.Enabled && !strings.HasPrefix(cfg.Metrics.Endpoint, "/") {
		errs = append(errs, "metrics.endpoint must start with /")
	}

	if len(errs) > 0 {
		return fmt.Errorf("config validation errors:\n  - %s", strings.Join(errs, "\n  - "))
	}
	return nil
}

// ExpandPath resolves a leading ~/ to the user's home directory.
func ExpandPath(path string) string {
	if strings.HasPrefix(path, "~/") {
		home, err := os.UserHomeDir()
		if err != nil {
			return path
		}
		return filepath.Join(home, path[2:])
	}
	return path
}
