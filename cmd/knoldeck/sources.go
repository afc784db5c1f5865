package main

import (
	"fmt"
	"strconv"

	"github.com/dustin/go-humanize"
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"

	"github.com/conorfennell/knoldeck/internal/sync"
)

func newSourcesCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "sources",
		Short: "Manage the directories and git repositories that sync imports from",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "add <path/or/url.git>",
		Short: "Add a local path or git repository",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			db, err := a.openDB()
			if err != nil {
				return err
			}
			defer func() {
				_ = db.Close()
			}()
			src, err := sync.AddSource(cmd.Context(), db, args[0])
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Added %s source %d: %s\n", src.Type, src.ID, src.Path)
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "List sources",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			db, err := a.openDB()
			if err != nil {
				return err
			}
			defer func() {
				_ = db.Close()
			}()
			sources, err := db.GetAllSources(cmd.Context())
			if err != nil {
				return err
			}

			t := table.NewWriter()
			t.SetOutputMirror(cmd.OutOrStdout())
			t.SetStyle(table.StyleLight)
			t.AppendHeader(table.Row{"ID", "Type", "Path", "Last scanned"})
			for _, s := range sources {
				scanned := "never"
				if s.LastScanned.Valid {
					scanned = humanize.Time(s.LastScanned.Time)
				}
				t.AppendRow(table.Row{s.ID, s.Type, s.Path, scanned})
			}
			t.Render()
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "delete <id>",
		Short: "Delete a source and the decks it imported",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := strconv.ParseInt(args[0], 10, 64)
			if err != nil {
				return fmt.Errorf("invalid source id %q", args[0])
			}
			db, err := a.openDB()
			if err != nil {
				return err
			}
			defer func() {
				_ = db.Close()
			}()
			if err := db.DeleteSource(cmd.Context(), id); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Deleted source %d\n", id)
			return nil
		},
	})
	return cmd
}
