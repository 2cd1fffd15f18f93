package main

import (
	"context"
	"fmt"
	"net"
	"os"
	"os/exec"
	"strconv"
	"time"

	"scopelock/internal/config"
	"scopelock/internal/store"

	"github.com/sethvargo/go-envconfig"
	"github.com/spf13/cobra"
)

func doctorCmd() *cobra.Command {
	var skipTelegram bool
	cmd := &cobra.Command{
		Use:   "doctor",
		Short: "Run diagnostic checks on your scopelock installation",
		Long: `Verifies the configuration, Telegram credentials, journal database and
auto-fix command. Reports pass/fail for each check.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
			defer cancel()

			cfgPath := resolveConfigPath()
			fmt.Printf("scopelock doctor v%s\n", version)
			fmt.Printf("━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━\n\n")

			var r checkResults

			// 1. Config file
			cfg, found, err := config.LoadOrDefault(cfgPath)
			switch {
			case err != nil:
				r.fail("Config file", err.Error())
				r.summary()
				return fmt.Errorf("%d check(s) failed", r.failed)
			case !found:
				r.warn("Config file", fmt.Sprintf("not found at %s, using defaults", cfgPath))
			default:
				r.pass("Config file", cfgPath)
			}

			// 2. Environment overlay
			if err := config.LoadDotEnv(cfg.General.EnvFile); err != nil {
				r.warn("Env file", err.Error())
			}
			env, err := config.ReadEnv(ctx, envconfig.OsLookuper())
			if err != nil {
				r.fail("Environment", err.Error())
			} else {
				config.ApplyEnv(cfg, env)
			}
			if err := config.Validate(cfg); err != nil {
				r.fail("Config validation", err.Error())
			} else {
				r.pass("Config validation", "valid")
			}

			// 3. Telegram
			if err := cfg.RequireTelegram(); err != nil {
				r.fail("Telegram credentials", "TELEGRAM_BOT_TOKEN and TELEGRAM_CHAT_ID must be set")
			} else {
				r.pass("Telegram credentials", "chat "+string(cfg.Telegram.ChatID))
				if skipTelegram {
					r.warn("Telegram API", "skipped")
				} else if tr, err := openTransport(cfg); err != nil {
					r.fail("Telegram API", err.Error())
				} else {
					r.pass("Telegram API", "connected as @"+tr.BotUsername())
				}
			}

			// 4. Journal database
			if err := checkDatabase(ctx, cfg.Journal.DBPath); err != nil {
				r.fail("Database", err.Error())
			} else {
				r.pass("Database", cfg.Journal.DBPath)
			}

			// 5. Auto-fix
			if path, err := exec.LookPath(cfg.AutoFix.Command); err != nil {
				r.warn("Fix command", fmt.Sprintf("%q not found in PATH", cfg.AutoFix.Command))
			} else {
				r.pass("Fix command", path)
			}
			if cfg.AutoFix.WorkDir != "" {
				if info, err := os.Stat(cfg.AutoFix.WorkDir); err != nil || !info.IsDir() {
					r.fail("Fix workdir", fmt.Sprintf("not a directory: %s", cfg.AutoFix.WorkDir))
				} else {
					r.pass("Fix workdir", cfg.AutoFix.WorkDir)
				}
			} else {
				r.warn("Fix workdir", "not configured (fix runs in the current directory)")
			}
			if err := checkPort(cfg.AutoFix.Host, cfg.AutoFix.Port); err != nil {
				r.warn("Webhook port", fmt.Sprintf("port %d may be in use: %v", cfg.AutoFix.Port, err))
			} else {
				r.pass("Webhook port", fmt.Sprintf(":%d available", cfg.AutoFix.Port))
			}

			r.summary()
			if r.failed > 0 {
				return fmt.Errorf("%d check(s) failed", r.failed)
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&skipTelegram, "offline", false, "skip the Telegram getMe call")
	return cmd
}

type checkResults struct {
	passed, warned, failed int
}

func (r *checkResults) pass(check, detail string) {
	r.passed++
	fmt.Printf("  [PASS] %-22s %s\n", check, detail)
}

func (r *checkResults) fail(check, detail string) {
	r.failed++
	fmt.Printf("  [FAIL] %-22s %s\n", check, detail)
}

func (r *checkResults) warn(check, detail string) {
	r.warned++
	fmt.Printf("  [WARN] %-22s %s\n", check, detail)
}

func (r *checkResults) summary() {
	fmt.Printf("\n━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━\n")
	fmt.Printf("Results: %d passed, %d warnings, %d failed\n", r.passed, r.warned, r.failed)
	switch {
	case r.failed > 0:
		fmt.Printf("\nPlease fix the failed checks before running scopelock.\n")
	case r.warned > 0:
		fmt.Printf("\nscopelock should work but consider fixing the warnings.\n")
	default:
		fmt.Printf("\nAll checks passed! scopelock is ready to run.\n")
	}
}

// checkDatabase opens the store, which creates the file and applies
// migrations, then pings it.
func checkDatabase(ctx context.Context, dbPath string) error {
	s, err := store.NewSQLiteStore(dbPath, logger)
	if err != nil {
		return err
	}
	defer s.Close()
	if err := s.Ping(ctx); err != nil {
		return fmt.Errorf("cannot ping: %w", err)
	}
	return nil
}

func checkPort(host string, port int) error {
	ln, err := net.Listen("tcp", net.JoinHostPort(host, strconv.Itoa(port)))
	if err != nil {
		return err
	}
	ln.Close()
	return nil
}
