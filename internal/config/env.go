package config

import (
	"context"
	"errors"
	"fmt"
	"io/fs"

	"scopelock/internal/domain"

	"github.com/joho/godotenv"
	"github.com/sethvargo/go-envconfig"
)

// Env holds the settings that may come from the process environment.
type Env struct {
	BotToken string `env:"TELEGRAM_BOT_TOKEN"`
	ChatID   string `env:"TELEGRAM_CHAT_ID"`
	Port     int    `env:"PORT"`
}

// LoadDotEnv loads KEY=VALUE pairs from path into the process environment.
// Variables that are already set win, and a missing file is not an error.
func LoadDotEnv(path string) error {
	if path == "" {
		return nil
	}
	if err := godotenv.Load(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("load %s: %w", path, err)
	}
	return nil
}

// ReadEnv reads Env through l (envconfig.OsLookuper() in production).
func ReadEnv(ctx context.Context, l envconfig.Lookuper) (Env, error) {
	var e Env
	if err := envconfig.ProcessWith(ctx, &e, l); err != nil {
		return Env{}, fmt.Errorf("parsing env vars: %w", err)
	}
	return e, nil
}

// ApplyEnv overlays non-empty environment values onto cfg.
func ApplyEnv(cfg *Config, e Env) {
	if e.BotToken != "" {
		cfg.Telegram.Token = e.BotToken
	}
	if e.ChatID != "" {
		cfg.Telegram.ChatID = FlexString(e.ChatID)
	}
	if e.Port != 0 {
		cfg.AutoFix.Port = e.Port
	}
}

// RequireTelegram fails fast when either credential is missing.
func (c *Config) RequireTelegram() error {
	if c.Telegram.Token == "" || c.Telegram.ChatID == "" {
		return domain.ErrMissingCredentials
	}
	return nil
}
