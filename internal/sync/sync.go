// Package sync reconciles configured package sources with the card store.
package sync

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/conorfennell/knoldeck/internal/gitsource"
	"github.com/conorfennell/knoldeck/internal/importer"
	"github.com/conorfennell/knoldeck/internal/storage"
)

// Source types.
const (
	TypeLocal = "local"
	TypeGit   = "git"
)

const packageExt = ".apkg"

// SourceType classifies a source path.
func SourceType(path string) string {
	if gitsource.IsURL(path) {
		return TypeGit
	}
	return TypeLocal
}

// AddSource registers a local path or git URL. Local paths are stored
// absolute and must exist.
func AddSource(ctx context.Context, db *storage.DB, path string) (*storage.Source, error) {
	typ := SourceType(path)
	if typ == TypeLocal {
		abs, err := filepath.Abs(path)
		if err != nil {
			return nil, fmt.Errorf("failed to resolve source path %s: %w", path, err)
		}
		if _, err := os.Stat(abs); err != nil {
			return nil, fmt.Errorf("source path %s: %w", abs, err)
		}
		path = abs
	}
	id, err := db.InsertSource(ctx, path, typ)
	if err != nil {
		return nil, err
	}
	return &storage.Source{ID: id, Path: path, Type: typ}, nil
}

// Syncer imports every package of every source and removes decks whose
// package disappeared.
type Syncer struct {
	DB       *storage.DB
	Importer *importer.Importer
	ReposDir string
	// GitProgress receives clone and pull progress. May be nil.
	GitProgress io.Writer
	Now         func() time.Time
}

// Report summarizes a sync run.
type Report struct {
	Sources      int `json:"sources"`
	Packages     int `json:"packages"`
	Cards        int `json:"cards"`
	Skipped      int `json:"skipped"`
	DeletedDecks int `json:"deleted_decks"`
	Failures     int `json:"failures"`
}

func (r *Report) add(o Report) {
	r.Sources += o.Sources
	r.Packages += o.Packages
	r.Cards += o.Cards
	r.Skipped += o.Skipped
	r.DeletedDecks += o.DeletedDecks
	r.Failures += o.Failures
}

func (s *Syncer) now() time.Time {
	if s.Now != nil {
		return s.Now()
	}
	return time.Now()
}

// Run iterates over all sources and reconciles them. A failing source is
// logged and counted; it does not stop the others.
func (s *Syncer) Run(ctx context.Context) (Report, error) {
	slog.Info("Starting sync process for all sources...")
	sources, err := s.DB.GetAllSources(ctx)
	if err != nil {
		return Report{}, fmt.Errorf("failed to get sources: %w", err)
	}

	var total Report
	if len(sources) == 0 {
		slog.Info("No sources configured. Add one with: knoldeck sources add <path/or/url.git>")
		return total, nil
	}

	for _, source := range sources {
		if err := ctx.Err(); err != nil {
			return total, err
		}
		slog.Info("Syncing source", "id", source.ID, "type", source.Type, "path", source.Path)
		r, err := s.SyncSource(ctx, source)
		total.add(r)
		if err != nil {
			total.Failures++
			slog.Error("Failed to sync source", "id", source.ID, "path", source.Path, "error", err)
		}
	}
	slog.Info("Sync process complete.",
		"sources", total.Sources,
		"packages", total.Packages,
		"cards", total.Cards,
		"deleted_decks", total.DeletedDecks,
		"failures", total.Failures,
	)
	return total, nil
}

// SyncSource reconciles a single source.
func (s *Syncer) SyncSource(ctx context.Context, source storage.Source) (Report, error) {
	root := source.Path
	if source.Type == TypeGit {
		local, err := gitsource.LocalPath(s.ReposDir, source.Path)
		if err != nil {
			return Report{}, err
		}
		if err := os.MkdirAll(filepath.Dir(local), 0o750); err != nil {
			return Report{}, fmt.Errorf("failed to create repos directory: %w", err)
		}
		if err := gitsource.Sync(ctx, source.Path, local, s.GitProgress); err != nil {
			return Report{}, err
		}
		root = local
	}
	return s.reconcile(ctx, source, root)
}

func findPackages(root string) ([]string, error) {
	var files []string
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			if path != root && strings.HasPrefix(d.Name(), ".") {
				return filepath.SkipDir
			}
			return nil
		}
		if strings.EqualFold(filepath.Ext(d.Name()), packageExt) {
			files = append(files, path)
		}
		return nil
	})
	return files, err
}

func (s *Syncer) reconcile(ctx context.Context, source storage.Source, root string) (Report, error) {
	r := Report{Sources: 1}
	files, err := findPackages(root)
	if err != nil {
		return r, fmt.Errorf("error walking %s: %w", root, err)
	}

	keep := map[int64]bool{}
	failed := map[string]bool{}
	for _, file := range files {
		if err := ctx.Err(); err != nil {
			return r, err
		}
		res, err := s.Importer.ImportFile(ctx, file)
		if err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				return r, err
			}
			slog.Warn("Failed to import package", "path", file, "error", err)
			failed[file] = true
			r.Failures++
			continue
		}
		ids, err := s.DB.SaveImport(ctx, storage.Batch{
			Origin:   file,
			SourceID: source.ID,
			Decks:    res.Decks,
			Cards:    res.Cards,
		})
		if err != nil {
			return r, err
		}
		for _, id := range ids {
			keep[id] = true
		}
		r.Packages++
		r.Cards += len(res.Cards)
		r.Skipped += len(res.Skipped)
	}

	decks, err := s.DB.DecksBySource(ctx, source.ID)
	if err != nil {
		return r, err
	}
	for _, d := range decks {
		if keep[d.ID] || failed[d.Origin] {
			continue
		}
		slog.Info("Orphaned deck, deleting", "deck_id", d.ID, "name", d.Name, "origin", d.Origin)
		if err := s.DB.DeleteDeck(ctx, d.ID); err != nil {
			slog.Warn("Failed to delete orphaned deck", "deck_id", d.ID, "error", err)
			continue
		}
		r.DeletedDecks++
	}

	if err := s.DB.UpdateSourceLastScanned(ctx, source.ID, s.now()); err != nil {
		slog.Warn("Failed to update last scanned for source", "source_id", source.ID, "error", err)
	}

	slog.Info("reconciliation complete",
		"path", root,
		"packages", r.Packages,
		"cards", r.Cards,
		"orphaned_deleted", r.DeletedDecks,
		"errors", r.Failures,
	)
	return r, nil
}
