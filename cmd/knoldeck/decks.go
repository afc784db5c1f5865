package main

import (
	"fmt"
	"strconv"

	"github.com/dustin/go-humanize"
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
)

func newDecksCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "decks",
		Short: "List imported decks",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			db, err := a.openDB()
			if err != nil {
				return err
			}
			defer func() {
				_ = db.Close()
			}()

			decks, err := db.Decks(cmd.Context())
			if err != nil {
				return err
			}
			if len(decks) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "No decks yet. Import one with: knoldeck import <file.apkg>")
				return nil
			}

			t := table.NewWriter()
			t.SetOutputMirror(cmd.OutOrStdout())
			t.SetStyle(table.StyleLight)
			t.AppendHeader(table.Row{"ID", "Name", "Cards", "Imported", "Origin"})
			for _, d := range decks {
				t.AppendRow(table.Row{d.ID, d.Name, d.CardCount, humanize.Time(d.ImportedAt), d.Origin})
			}
			t.Render()
			return nil
		},
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "delete <id>",
		Short: "Delete a deck with its cards and review history",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := strconv.ParseInt(args[0], 10, 64)
			if err != nil {
				return fmt.Errorf("invalid deck id %q", args[0])
			}
			db, err := a.openDB()
			if err != nil {
				return err
			}
			defer func() {
				_ = db.Close()
			}()
			if err := db.DeleteDeck(cmd.Context(), id); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Deleted deck %d\n", id)
			return nil
		},
	})
	return cmd
}
