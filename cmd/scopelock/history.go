package main

import (
	"context"
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"scopelock/internal/store"

	"github.com/spf13/cobra"
)

func historyCmd() *cobra.Command {
	var (
		limit       int
		deployments bool
		dispatchID  string
		pruneDays   int
	)
	cmd := &cobra.Command{
		Use:   "history",
		Short: "Show recent delivery attempts or handled deployments",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := context.Background()
			cfg, err := loadConfig(ctx)
			if err != nil {
				return err
			}
			s, err := store.NewSQLiteStore(cfg.Journal.DBPath, logger)
			if err != nil {
				return fmt.Errorf("open journal: %w", err)
			}
			defer s.Close()

			w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
			defer w.Flush()

			switch {
			case pruneDays > 0:
				n, err := s.PruneAttempts(ctx, time.Now().AddDate(0, 0, -pruneDays))
				if err != nil {
					return err
				}
				fmt.Printf("Pruned %d attempt(s) older than %d day(s)\n", n, pruneDays)
				return nil

			case deployments:
				list, err := s.RecentDeployments(ctx, limit)
				if err != nil {
					return err
				}
				fmt.Fprintln(w, "DEPLOYMENT\tSTATUS\tCLAIMED\tFINISHED")
				for _, d := range list {
					finished := "-"
					if !d.FinishedAt.IsZero() {
						finished = d.FinishedAt.Local().Format(time.DateTime)
					}
					fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", d.ID, d.Status, d.ClaimedAt.Local().Format(time.DateTime), finished)
				}
				return nil
			}

			list, err := s.RecentAttempts(ctx, limit)
			if dispatchID != "" {
				list, err = s.DispatchAttempts(ctx, dispatchID)
			}
			if err != nil {
				return err
			}
			fmt.Fprintln(w, "TIME\tDISPATCH\tCHUNK\tMODE\tOUTCOME\tLEN\tDETAIL")
			for _, a := range list {
				mode := "plain"
				if a.RichText {
					mode = "html"
				}
				fmt.Fprintf(w, "%s\t%s\t%d/%d\t%s\t%s\t%d\t%s\n",
					a.At.Local().Format(time.DateTime), shortID(a.DispatchID),
					a.ChunkIndex+1, a.ChunkCount, mode, a.Outcome, a.Length, a.Detail)
			}
			return nil
		},
	}
	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "number of entries to show")
	cmd.Flags().BoolVar(&deployments, "deployments", false, "list handled deployments instead of delivery attempts")
	cmd.Flags().StringVar(&dispatchID, "dispatch", "", "show every attempt of one dispatch")
	cmd.Flags().IntVar(&pruneDays, "prune", 0, "delete attempts older than this many days")
	return cmd
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
