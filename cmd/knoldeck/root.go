package main

import (
	"fmt"
	"log/slog"

	"github.com/conorfennell/knoldeck/internal/config"
	"github.com/conorfennell/knoldeck/internal/fieldmap"
	"github.com/conorfennell/knoldeck/internal/importer"
	"github.com/conorfennell/knoldeck/internal/storage"
	"github.com/spf13/cobra"
)

// app carries the resolved configuration to every subcommand.
type app struct {
	cfg *config.Config
}

func newRootCmd() *cobra.Command {
	a := &app{}
	cmd := &cobra.Command{
		Use:           "knoldeck",
		Short:         "knoldeck - import Anki decks and study them with SM-2",
		Long:          "knoldeck imports .apkg packages into a local card store and schedules reviews with the SM-2 algorithm.",
		SilenceUsage:  true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load(cmd.Flags())
			if err != nil {
				return err
			}
			a.cfg = cfg
			slog.SetDefault(cfg.Logger(cmd.ErrOrStderr()))
			return nil
		},
	}
	config.RegisterFlags(cmd.PersistentFlags())

	cmd.AddCommand(newImportCmd(a))
	cmd.AddCommand(newDecksCmd(a))
	cmd.AddCommand(newStatsCmd(a))
	cmd.AddCommand(newSourcesCmd(a))
	cmd.AddCommand(newSyncCmd(a))
	cmd.AddCommand(newServeCmd(a))
	return cmd
}

func (a *app) openDB() (*storage.DB, error) {
	db, err := storage.Open(a.cfg.DB)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	slog.Debug("Database opened", "path", a.cfg.DB)
	return db, nil
}

func (a *app) importer(progress func(done, total int)) (*importer.Importer, error) {
	policy, err := fieldmap.NewPolicy(a.cfg.Language)
	if err != nil {
		return nil, err
	}
	return importer.New(importer.Options{
		Workers:  a.cfg.Workers,
		Policy:   policy,
		Progress: progress,
		Logger:   slog.Default(),
	}), nil
}
