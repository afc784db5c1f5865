// Package importer turns a study package into normalized cards.
//
// A package is read once, its collection tables are extracted and the
// collection is closed before any note is normalized. Notes are normalized
// in parallel; malformed notes are skipped and reported, never fatal.
package importer

import (
	"cmp"
	"context"
	"fmt"
	"log/slog"
	"os"
	"runtime"
	"slices"
	"sync"
	"time"

	"github.com/conorfennell/knoldeck/internal/apkg"
	"github.com/conorfennell/knoldeck/internal/domain"
	"github.com/conorfennell/knoldeck/internal/fieldmap"
	"github.com/conorfennell/knoldeck/internal/media"
	"golang.org/x/sync/errgroup"
)

// DefaultDeckName labels cards whose deck is not declared by the collection.
const DefaultDeckName = "Default"

// Options configures an Importer. Zero values select defaults.
type Options struct {
	// Workers bounds how many notes are normalized at once.
	Workers int
	Policy  *fieldmap.Policy
	// Progress is called after each note with the running count. Calls
	// are serialized.
	Progress func(done, total int)
	Now      func() time.Time
	Logger   *slog.Logger
}

// Skip records a note that produced no card.
type Skip struct {
	NoteID int64
	Reason error
}

// Result is the outcome of one import.
type Result struct {
	Cards       []domain.NormalizedCard
	Decks       []domain.DeckSummary
	Skipped     []Skip
	MediaMisses int
	MediaBytes  int64
}

type Importer struct {
	opts Options
}

func New(opts Options) *Importer {
	if opts.Workers <= 0 {
		opts.Workers = runtime.GOMAXPROCS(0)
	}
	if opts.Policy == nil {
		opts.Policy = fieldmap.DefaultPolicy()
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	return &Importer{opts: opts}
}

// ImportFile imports the package at path.
func (im *Importer) ImportFile(ctx context.Context, path string) (*Result, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read package %s: %w", path, err)
	}
	res, err := im.Import(ctx, data)
	if err != nil {
		return nil, fmt.Errorf("failed to import %s: %w", path, err)
	}
	return res, nil
}

type tables struct {
	templates map[int64]domain.Template
	decks     map[int64]domain.Deck
	noteDecks map[int64]int64
	notes     []domain.RawNote
}

// extract reads every table needed and closes the collection on all paths.
func extract(ctx context.Context, pkg *apkg.Package) (t tables, err error) {
	c, err := pkg.OpenCollection(ctx)
	if err != nil {
		return t, err
	}
	defer func() {
		if cerr := c.Close(); cerr != nil && err == nil {
			err = fmt.Errorf("failed to close collection: %w", cerr)
		}
	}()

	if t.templates, err = c.Templates(ctx); err != nil {
		return t, err
	}
	if t.decks, err = c.Decks(ctx); err != nil {
		return t, err
	}
	if t.noteDecks, err = c.NoteDecks(ctx); err != nil {
		return t, err
	}
	if t.notes, err = c.Notes(ctx); err != nil {
		return t, err
	}
	return t, nil
}

type outcome struct {
	card   *domain.NormalizedCard
	skip   error
	misses int
}

// Import runs the whole pipeline over the raw package bytes. It fails only
// on fatal package errors or cancellation.
func (im *Importer) Import(ctx context.Context, data []byte) (*Result, error) {
	log := im.opts.Logger
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("import cancelled: %w", err)
	}
	pkg, err := apkg.Read(data)
	if err != nil {
		return nil, err
	}
	t, err := extract(ctx, pkg)
	if err != nil {
		return nil, err
	}
	resolver := media.NewResolver(pkg.Manifest, pkg)

	total := len(t.notes)
	outcomes := make([]outcome, total)
	var mu sync.Mutex
	done := 0

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(im.opts.Workers)
	for i, note := range t.notes {
		if gctx.Err() != nil {
			break
		}
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			outcomes[i] = im.normalize(note, t, resolver)
			if im.opts.Progress != nil {
				mu.Lock()
				done++
				im.opts.Progress(done, total)
				mu.Unlock()
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("import cancelled: %w", err)
	}
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("import cancelled: %w", err)
	}

	res := &Result{}
	counts := map[int64]int{}
	names := map[int64]string{}
	for i, o := range outcomes {
		res.MediaMisses += o.misses
		if o.skip != nil {
			id := t.notes[i].ID
			log.Warn("Skipping note", "note_id", id, "reason", o.skip)
			res.Skipped = append(res.Skipped, Skip{NoteID: id, Reason: o.skip})
			continue
		}
		c := *o.card
		res.MediaBytes += int64(c.Image.Size() + c.Audio.Size())
		res.Cards = append(res.Cards, c)
		counts[c.DeckID]++
		names[c.DeckID] = c.DeckName
	}

	now := im.opts.Now()
	for id, n := range counts {
		res.Decks = append(res.Decks, domain.DeckSummary{DeckID: id, Name: names[id], CardCount: n, ImportedAt: now})
	}
	slices.SortFunc(res.Decks, func(a, b domain.DeckSummary) int { return cmp.Compare(a.DeckID, b.DeckID) })

	log.Info("Import complete",
		"notes", total,
		"cards", len(res.Cards),
		"decks", len(res.Decks),
		"skipped", len(res.Skipped),
		"media_misses", res.MediaMisses,
	)
	return res, nil
}

func (im *Importer) normalize(note domain.RawNote, t tables, resolver *media.Resolver) outcome {
	m, err := im.opts.Policy.MapNote(note, t.templates)
	if err != nil {
		return outcome{skip: err}
	}

	fields := note.SplitFields()
	ex := resolver.Extract(fields)
	for _, ref := range ex.Misses {
		im.opts.Logger.Debug("Unresolved media reference", "note_id", note.ID, "ref", ref)
	}

	deckID := t.noteDecks[note.ID]
	deckName := DefaultDeckName
	if d, ok := t.decks[deckID]; ok && d.Name != "" {
		deckName = d.Name
	}

	return outcome{
		card: &domain.NormalizedCard{
			ID:       note.ID,
			Front:    m.Front,
			Back:     m.Back,
			Image:    ex.Image,
			Audio:    ex.Audio,
			Tags:     note.TagList(),
			DeckID:   deckID,
			DeckName: deckName,
		},
		misses: len(ex.Misses),
	}
}
