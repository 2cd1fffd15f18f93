package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"scopelock/internal/dispatch"
	"scopelock/internal/domain"
	"scopelock/internal/proposal"

	"github.com/mattn/go-isatty"
	"github.com/spf13/cobra"
)

func sendCmd() *cobra.Command {
	var file string
	cmd := &cobra.Command{
		Use:   "send [message...]",
		Short: "Send a message to Telegram, split into natural chunks",
		Long: `Sends the message given as arguments, read from --file, or piped on stdin.
Long text is split on paragraph and sentence boundaries and delivered in order.`,
		Example: `  scopelock send "Deploy finished"
  git log -1 | scopelock send
  scopelock send --file report.txt`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			cfg, err := loadConfig(ctx)
			if err != nil {
				return err
			}
			// Credentials are checked before any input is read or split.
			if err := cfg.RequireTelegram(); err != nil {
				return err
			}

			text, err := readMessage(args, file, os.Stdin, isatty.IsTerminal(os.Stdin.Fd()))
			if err != nil {
				return err
			}
			if strings.TrimSpace(text) == "" {
				return domain.ErrEmptyMessage
			}

			tr, err := openTransport(cfg)
			if err != nil {
				return err
			}
			journal := openJournal(cfg)
			if journal != nil {
				defer journal.Close()
			}

			d := dispatch.New(dispatch.Config{
				Transport:    tr,
				TargetLength: cfg.Dispatch.TargetLength,
				MaxLength:    cfg.Dispatch.MaxLength,
				Pacing:       cfg.Dispatch.Pacing(),
				Recorder:     recorder(journal),
				OnAttempt:    printAttempt(cmd.OutOrStdout(), "Message"),
				Logger:       logger,
			})

			res, err := d.Dispatch(ctx, text)
			if err != nil {
				return deliveryFailure(err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "\n✨ Sent %d message(s) to Telegram\n", res.Delivered)
			return nil
		},
	}
	cmd.Flags().StringVarP(&file, "file", "f", "", "read the message from a file")
	return cmd
}

func notifyCmd() *cobra.Command {
	var proposalPath string
	cmd := &cobra.Command{
		Use:   "notify",
		Short: "Send a proposal notification (main message, then one message per question)",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			cfg, err := loadConfig(ctx)
			if err != nil {
				return err
			}
			if err := cfg.RequireTelegram(); err != nil {
				return err
			}

			p, err := proposal.Load(proposalPath)
			if err != nil {
				return err
			}

			tr, err := openTransport(cfg)
			if err != nil {
				return err
			}
			journal := openJournal(cfg)
			if journal != nil {
				defer journal.Close()
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Sending proposal notification for: %s\n", p.JobTitle)

			mainProgress := printAttempt(out, "Message chunk")
			n := proposal.NewNotifier(proposal.NotifierConfig{
				Transport:      tr,
				TargetLength:   cfg.Dispatch.TargetLength,
				MaxLength:      cfg.Dispatch.MaxLength,
				Pacing:         cfg.Dispatch.Pacing(),
				QuestionPacing: cfg.Dispatch.QuestionPacing(),
				Recorder:       recorder(journal),
				OnAttempt: func(pr proposal.Progress) {
					if pr.Part == proposal.PartMain {
						mainProgress(pr.Attempt)
						return
					}
					printQuestionAttempt(out, pr)
				},
				Logger: logger,
			})

			if _, err := n.Notify(ctx, p); err != nil {
				return deliveryFailure(err)
			}
			fmt.Fprintln(out, "\n✨ All notifications sent successfully!")
			fmt.Fprintf(out, "📱 Check Telegram for proposal: %s\n", p.JobTitle)
			return nil
		},
	}
	cmd.Flags().StringVarP(&proposalPath, "proposal", "p", "", "proposal file (.json, .yaml or .yml)")
	cmd.MarkFlagRequired("proposal")
	return cmd
}

// readMessage joins args, or reads file, or reads stdin when it is not a terminal.
func readMessage(args []string, file string, stdin io.Reader, stdinIsTerminal bool) (string, error) {
	switch {
	case file != "":
		data, err := os.ReadFile(file)
		if err != nil {
			return "", fmt.Errorf("read message file: %w", err)
		}
		return string(data), nil
	case len(args) > 0 && !(len(args) == 1 && args[0] == "-"):
		return strings.Join(args, " "), nil
	case !stdinIsTerminal:
		data, err := io.ReadAll(stdin)
		if err != nil {
			return "", fmt.Errorf("read stdin: %w", err)
		}
		return string(data), nil
	default:
		return "", errors.New(`no message provided
usage: scopelock send "Your message here"
   or: echo "message" | scopelock send`)
	}
}

// printAttempt reports delivered chunks as "<label> i/n sent".
func printAttempt(w io.Writer, label string) func(domain.Attempt) {
	return func(a domain.Attempt) {
		switch a.Outcome {
		case domain.OutcomeDelivered:
			fmt.Fprintf(w, "✅ %s %d/%d sent\n", label, a.ChunkIndex+1, a.ChunkCount)
		case domain.OutcomeFormatRejected:
			fmt.Fprintln(os.Stderr, "⚠️  HTML parsing failed, retrying with plain text...")
		}
	}
}

// printQuestionAttempt reports the questions header and each question once,
// when its last chunk is delivered.
func printQuestionAttempt(w io.Writer, pr proposal.Progress) {
	switch pr.Attempt.Outcome {
	case domain.OutcomeDelivered:
		if !pr.Final {
			return
		}
		if pr.Message == 0 {
			fmt.Fprintln(w, "✅ Questions header sent")
			return
		}
		fmt.Fprintf(w, "✅ Question %d sent\n", pr.Message)
	case domain.OutcomeFormatRejected:
		fmt.Fprintln(os.Stderr, "⚠️  HTML parsing failed, retrying with plain text...")
	}
}

// deliveryFailure turns a partial dispatch into "delivered X of N message(s): detail".
func deliveryFailure(err error) error {
	var derr *dispatch.DeliveryError
	if errors.As(err, &derr) {
		return fmt.Errorf("delivered %d of %d message(s): %w", derr.Delivered, derr.Total, derr.Err)
	}
	return err
}
