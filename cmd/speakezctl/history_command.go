package main

import (
	"fmt"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"github.com/MrWong99/speakez/internal/app"
	"github.com/MrWong99/speakez/internal/history"
)

func newHistoryCommand(ctx *commandContext) *cobra.Command {
	var sessionID string
	var limit int
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "history",
		Short: "Show recent practice attempts",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if limit < 0 {
				return fmt.Errorf("--limit must not be negative")
			}
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			store, err := app.OpenHistory(cmd.Context(), cfg.History)
			if err != nil {
				return fmt.Errorf("open history: %w", err)
			}
			defer store.Close()

			attempts, err := store.List(cmd.Context(), history.Query{SessionID: sessionID, Limit: limit})
			if err != nil {
				return err
			}
			if asJSON {
				if attempts == nil {
					attempts = []history.Attempt{}
				}
				return writeJSON(cmd, attempts)
			}
			if len(attempts) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "No attempts recorded.")
				return nil
			}
			rows := make([][]string, 0, len(attempts))
			for _, a := range attempts {
				rows = append(rows, []string{
					a.CreatedAt.Local().Format(time.DateTime),
					a.SessionID,
					fmt.Sprintf("%.2f%%", a.Percentage),
					strconv.Itoa(a.Matched) + "/" + strconv.Itoa(a.Total),
					truncate(a.Reference, 40),
				})
			}
			fmt.Fprintln(cmd.OutOrStdout(), renderTable(
				[]string{"When", "Session", "Match", "Words", "Reference"},
				rows,
				[]columnAlignment{alignLeft, alignLeft, alignRight, alignRight, alignLeft},
			))
			return nil
		},
	}

	cmd.Flags().StringVar(&sessionID, "session", "", "Only show attempts from this session")
	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "Maximum attempts to show")
	cmd.Flags().BoolVar(&asJSON, "json", false, "Output as JSON")
	return cmd
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-1]) + "…"
}
