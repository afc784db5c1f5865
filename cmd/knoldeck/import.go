package main

import (
	"fmt"
	"log/slog"
	"path/filepath"

	"github.com/dustin/go-humanize"
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"

	"github.com/conorfennell/knoldeck/internal/storage"
)

func newImportCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "import <file.apkg>...",
		Short: "Import Anki packages into the card store",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			db, err := a.openDB()
			if err != nil {
				return err
			}
			defer func() {
				_ = db.Close()
			}()

			var current string
			im, err := a.importer(func(done, total int) {
				if done == total || done%100 == 0 {
					slog.Debug("Import progress", "path", current, "done", done, "total", total)
				}
			})
			if err != nil {
				return err
			}

			t := table.NewWriter()
			t.SetOutputMirror(cmd.OutOrStdout())
			t.SetStyle(table.StyleLight)
			t.AppendHeader(table.Row{"Package", "Deck", "Cards", "Skipped", "Media"})

			for _, arg := range args {
				path, err := filepath.Abs(arg)
				if err != nil {
					return fmt.Errorf("failed to resolve %s: %w", arg, err)
				}
				current = path
				res, err := im.ImportFile(ctx, path)
				if err != nil {
					return err
				}
				if _, err := db.SaveImport(ctx, storage.Batch{Origin: path, Decks: res.Decks, Cards: res.Cards}); err != nil {
					return err
				}
				for i, d := range res.Decks {
					row := table.Row{filepath.Base(path), d.Name, d.CardCount, "", ""}
					if i == 0 {
						row[3] = len(res.Skipped)
						row[4] = humanize.Bytes(uint64(res.MediaBytes))
					}
					t.AppendRow(row)
				}
				if len(res.Decks) == 0 {
					t.AppendRow(table.Row{filepath.Base(path), "-", 0, len(res.Skipped), "-"})
				}
				if res.MediaMisses > 0 {
					slog.Warn("Some media references could not be resolved", "path", path, "misses", res.MediaMisses)
				}
			}
			t.Render()
			return nil
		},
	}
}
