package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"time"

	"scopelock/internal/config"
	"scopelock/internal/domain"
	"scopelock/internal/store"
	"scopelock/internal/telegram"

	"github.com/sethvargo/go-envconfig"
	"github.com/spf13/cobra"
)

var (
	version    = "0.3.0"
	logLevel   = new(slog.LevelVar)
	logger     *slog.Logger
	configPath string // overridable via --config flag
)

func main() {
	logger = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: logLevel}))

	root := &cobra.Command{
		Use:           "scopelock",
		Short:         "scopelock: Telegram notifications and deployment auto-fix",
		Long:          "scopelock delivers long messages and proposal notifications to Telegram and hands failed deployments to a CLI agent.",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	root.PersistentFlags().StringVarP(&configPath, "config", "c", "", "path to config.json (default: ~/.scopelock/config.json)")

	root.AddCommand(sendCmd())
	root.AddCommand(notifyCmd())
	root.AddCommand(autofixCmd())
	root.AddCommand(historyCmd())
	root.AddCommand(initCmd())
	root.AddCommand(setupCmd())
	root.AddCommand(configCmd())
	root.AddCommand(doctorCmd())
	root.AddCommand(backupCmd())
	root.AddCommand(restoreCmd())
	root.AddCommand(serviceCmd())

	if err := root.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "\n❌ %v\n", err)
		os.Exit(1)
	}
}

// resolveConfigPath returns the config path from --config flag or default.
func resolveConfigPath() string {
	if configPath != "" {
		return configPath
	}
	return config.DefaultConfigPath()
}

// loadConfig reads the config file (defaults when absent), then overlays the
// dotenv file and the process environment.
func loadConfig(ctx context.Context) (*config.Config, error) {
	cfgPath := resolveConfigPath()
	cfg, found, err := config.LoadOrDefault(cfgPath)
	if err != nil {
		return nil, err
	}
	if err := logLevel.UnmarshalText([]byte(cfg.General.LogLevel)); err != nil {
		logLevel.Set(slog.LevelInfo)
	}
	if !found {
		logger.Debug("config file not found, using defaults", "path", cfgPath)
	}

	if err := config.LoadDotEnv(cfg.General.EnvFile); err != nil {
		return nil, err
	}
	env, err := config.ReadEnv(ctx, envconfig.OsLookuper())
	if err != nil {
		return nil, err
	}
	config.ApplyEnv(cfg, env)

	if err := config.Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func openTransport(cfg *config.Config) (*telegram.Transport, error) {
	if err := cfg.RequireTelegram(); err != nil {
		return nil, err
	}
	client, err := telegram.NewHTTPClient(telegram.ClientOptions{
		Timeout:   time.Duration(cfg.Telegram.TimeoutSeconds) * time.Second,
		Proxy:     cfg.Telegram.Proxy,
		UserAgent: "scopelock/" + version,
	})
	if err != nil {
		return nil, err
	}
	return telegram.New(telegram.Config{
		Token:          cfg.Telegram.Token,
		ChatID:         string(cfg.Telegram.ChatID),
		APIEndpoint:    cfg.Telegram.APIEndpoint,
		HTTPClient:     client,
		RatePerMinute:  cfg.Telegram.RateLimitPerMinute,
		Burst:          cfg.Telegram.RateBurst,
		DisablePreview: cfg.Telegram.DisableWebPagePreview,
		Logger:         logger,
	})
}

// openJournal opens the delivery journal. A journal that cannot be opened is
// logged and skipped; it never blocks delivery.
func openJournal(cfg *config.Config) *store.SQLiteStore {
	if !cfg.Journal.Enabled {
		return nil
	}
	s, err := store.NewSQLiteStore(cfg.Journal.DBPath, logger)
	if err != nil {
		logger.Warn("delivery journal unavailable", "path", cfg.Journal.DBPath, "err", err)
		return nil
	}
	return s
}

// recorder avoids handing a typed nil to the dispatcher.
func recorder(s *store.SQLiteStore) domain.AttemptRecorder {
	if s == nil {
		return nil
	}
	return s
}

func initCmd() *cobra.Command {
	var force bool
	cmd := &cobra.Command{
		Use:   "init",
		Short: "Write a default config file",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfgPath := resolveConfigPath()
			if _, err := os.Stat(cfgPath); err == nil && !force {
				return fmt.Errorf("config already exists at %s (use --force to overwrite)", cfgPath)
			}
			cfg := config.Defaults()
			if err := config.Save(cfgPath, cfg); err != nil {
				return err
			}
			logger.Info("initialized", "config", cfgPath)
			fmt.Printf("Config written to %s\n", cfgPath)
			fmt.Println("Set TELEGRAM_BOT_TOKEN and TELEGRAM_CHAT_ID (or run 'scopelock setup').")
			return nil
		},
	}
	cmd.Flags().BoolVar(&force, "force", false, "overwrite an existing config file")
	return cmd
}

func configCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "View and modify configuration",
		Long:  "Get, set, and list configuration values. Changes are saved to the config file.",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "get [path]",
		Short: "Get a config value (e.g. dispatch.targetLength)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(resolveConfigPath())
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			val, err := config.GetByPath(config.Sanitize(cfg), args[0])
			if err != nil {
				return err
			}
			data, _ := json.MarshalIndent(val, "", "  ")
			fmt.Println(string(data))
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "set [path] [value]",
		Short: "Set a config value (e.g. dispatch.pacingMs 800)",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfgPath := resolveConfigPath()
			cfg, err := config.Load(cfgPath)
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			if err := config.SetByPath(cfg, args[0], args[1]); err != nil {
				return fmt.Errorf("set value: %w", err)
			}
			if err := config.Validate(cfg); err != nil {
				return err
			}
			if err := config.Save(cfgPath, cfg); err != nil {
				return fmt.Errorf("save config: %w", err)
			}
			logger.Info("config updated", "path", args[0], "file", cfgPath)
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "List all config values",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(resolveConfigPath())
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			data, _ := json.MarshalIndent(config.Sanitize(cfg), "", "  ")
			fmt.Println(string(data))
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "path",
		Short: "Show config file path",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Println(resolveConfigPath())
		},
	})

	return cmd
}
