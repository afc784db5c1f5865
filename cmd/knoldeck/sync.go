package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/conorfennell/knoldeck/internal/storage"
	"github.com/conorfennell/knoldeck/internal/sync"
)

func (a *app) syncer(db *storage.DB) (*sync.Syncer, error) {
	im, err := a.importer(nil)
	if err != nil {
		return nil, err
	}
	return &sync.Syncer{DB: db, Importer: im, ReposDir: a.cfg.ReposDir}, nil
}

func newSyncCmd(a *app) *cobra.Command {
	var verbose bool
	cmd := &cobra.Command{
		Use:   "sync",
		Short: "Import every package from every source and drop decks that disappeared",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			db, err := a.openDB()
			if err != nil {
				return err
			}
			defer func() {
				_ = db.Close()
			}()
			s, err := a.syncer(db)
			if err != nil {
				return err
			}
			if verbose {
				s.GitProgress = cmd.ErrOrStderr()
			}
			r, err := s.Run(cmd.Context())
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%d sources, %d packages, %d cards (%d skipped), %d decks removed, %d failures\n",
				r.Sources, r.Packages, r.Cards, r.Skipped, r.DeletedDecks, r.Failures)
			return nil
		},
	}
	cmd.Flags().BoolVarP(&verbose, "verbose", "v", false, "show git clone and pull progress")
	return cmd
}
