package main

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"scopelock/internal/config"

	"github.com/spf13/cobra"
)

func setupCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "setup",
		Short: "Interactive setup: Telegram → delivery → auto-fix → save config",
		Long:  "Asks for the bot token and chat, chunk pacing, and the auto-fix working directory, then writes the config file used by --config or the default path.",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfgPath := resolveConfigPath()
			cfg, err := config.Load(cfgPath)
			if err != nil {
				cfg = config.Defaults()
			}
			if err := runSetup(cfg, os.Stdin, cmd.OutOrStdout()); err != nil {
				return err
			}
			if err := config.Validate(cfg); err != nil {
				return fmt.Errorf("config validation: %w", err)
			}
			if err := config.Save(cfgPath, cfg); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "\nConfig saved to %s\n", cfgPath)
			fmt.Fprintln(cmd.OutOrStdout(), "Next: run 'scopelock doctor', then 'scopelock send \"hello\"'.")
			return nil
		},
	}
}

// runSetup walks through the prompts, reading answers from in. An empty
// answer keeps the value shown in brackets.
func runSetup(cfg *config.Config, in io.Reader, out io.Writer) error {
	reader := bufio.NewReader(in)
	prompt := func(label, def string) (string, error) {
		if def != "" {
			fmt.Fprintf(out, "%s [%s]: ", label, def)
		} else {
			fmt.Fprintf(out, "%s: ", label)
		}
		line, err := reader.ReadString('\n')
		if err != nil && err != io.EOF {
			return "", err
		}
		s := strings.TrimSpace(line)
		if s == "" {
			return def, nil
		}
		return s, nil
	}
	promptInt := func(label string, def int) (int, error) {
		s, err := prompt(label, strconv.Itoa(def))
		if err != nil {
			return 0, err
		}
		n, err := strconv.Atoi(s)
		if err != nil || n < 0 {
			return def, nil
		}
		return n, nil
	}

	// Step 1: Telegram
	fmt.Fprintln(out, "\n--- Step 1: Telegram ---")
	fmt.Fprintln(out, "Paste the bot token from @BotFather, or keep the env reference.")
	token := cfg.Telegram.Token
	if token == "" {
		token = "${TELEGRAM_BOT_TOKEN}"
	}
	tok, err := prompt("Bot token", token)
	if err != nil {
		return err
	}
	cfg.Telegram.Token = tok

	chat := string(cfg.Telegram.ChatID)
	if chat == "" {
		chat = "${TELEGRAM_CHAT_ID}"
	}
	chatID, err := prompt("Chat id (numeric or @channel)", chat)
	if err != nil {
		return err
	}
	cfg.Telegram.ChatID = config.FlexString(chatID)

	// Step 2: Delivery
	fmt.Fprintln(out, "\n--- Step 2: Delivery ---")
	if cfg.Dispatch.TargetLength, err = promptInt("Target chunk length (characters)", cfg.Dispatch.TargetLength); err != nil {
		return err
	}
	if cfg.Dispatch.PacingMs, err = promptInt("Pause between chunks (ms, 0 = none)", cfg.Dispatch.PacingMs); err != nil {
		return err
	}

	// Step 3: Auto-fix
	fmt.Fprintln(out, "\n--- Step 3: Vercel auto-fix ---")
	if cfg.AutoFix.WorkDir, err = prompt("Repository directory for the fix command", cfg.AutoFix.WorkDir); err != nil {
		return err
	}
	if cfg.AutoFix.TeamSlug, err = prompt("Vercel team slug", cfg.AutoFix.TeamSlug); err != nil {
		return err
	}
	if cfg.AutoFix.Port, err = promptInt("Listen port", cfg.AutoFix.Port); err != nil {
		return err
	}
	notify := "n"
	if cfg.AutoFix.NotifyTelegram {
		notify = "y"
	}
	ans, err := prompt("Announce fixes on Telegram (y/n)", notify)
	if err != nil {
		return err
	}
	cfg.AutoFix.NotifyTelegram = strings.HasPrefix(strings.ToLower(ans), "y")
	return nil
}
