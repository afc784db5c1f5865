package main

import (
	"fmt"
	"strconv"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"

	"github.com/conorfennell/knoldeck/internal/review"
)

func newStatsCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "stats [deck-id]",
		Short: "Show new, due and learning counts for a deck or for all decks",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var deckID int64
			if len(args) == 1 {
				id, err := strconv.ParseInt(args[0], 10, 64)
				if err != nil || id <= 0 {
					return fmt.Errorf("invalid deck id %q", args[0])
				}
				deckID = id
			}
			db, err := a.openDB()
			if err != nil {
				return err
			}
			defer func() {
				_ = db.Close()
			}()

			q, err := review.New(db, nil).Queue(cmd.Context(), deckID)
			if err != nil {
				return err
			}
			t := table.NewWriter()
			t.SetOutputMirror(cmd.OutOrStdout())
			t.SetStyle(table.StyleLight)
			t.AppendHeader(table.Row{"Total", "New", "Due", "Learning", "Avg ease"})
			t.AppendRow(table.Row{
				q.Stats.TotalCards,
				q.Stats.NewCards,
				q.Stats.DueCards,
				q.Stats.LearningCards,
				fmt.Sprintf("%.2f", q.Stats.AverageEaseFactor),
			})
			t.Render()
			return nil
		},
	}
}
