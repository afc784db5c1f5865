package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/conorfennell/knoldeck/internal/domain"
	"github.com/conorfennell/knoldeck/internal/knol"
	"github.com/conorfennell/knoldeck/internal/sm2"
)

// Deck is a stored deck.
type Deck struct {
	ID         int64         `json:"id"`
	Name       string        `json:"name"`
	Origin     string        `json:"origin"`
	SourceID   sql.NullInt64 `json:"-"`
	CardCount  int           `json:"card_count"`
	ImportedAt time.Time     `json:"imported_at"`
}

// Batch is one imported package ready to be stored.
type Batch struct {
	// Origin identifies the package file; re-importing the same origin
	// updates its decks in place.
	Origin   string
	SourceID int64 // 0 when imported outside any source
	Decks    []domain.DeckSummary
	Cards    []domain.NormalizedCard
}

// SaveImport stores a batch in one transaction and returns the stored ids of
// its decks. Cards are matched by deck and note, so review progress survives
// a re-import. Cards that disappeared from a deck are deleted.
func (db *DB) SaveImport(ctx context.Context, b Batch) (deckIDs []int64, err error) {
	tx, err := db.conn.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin import transaction: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	ids := make(map[int64]int64, len(b.Decks))
	for _, d := range b.Decks {
		var id int64
		err := tx.QueryRowContext(ctx, `
			INSERT INTO decks (origin, external_id, name, source_id, imported_at)
			VALUES (?, ?, ?, ?, ?)
			ON CONFLICT (origin, external_id) DO UPDATE SET
				name = excluded.name,
				source_id = excluded.source_id,
				imported_at = excluded.imported_at
			RETURNING id
		`, b.Origin, d.DeckID, d.Name, nullID(b.SourceID), d.ImportedAt.UTC()).Scan(&id)
		if err != nil {
			return nil, fmt.Errorf("failed to upsert deck %q: %w", d.Name, err)
		}
		ids[d.DeckID] = id
		deckIDs = append(deckIDs, id)
	}

	kept := make(map[int64]map[int64]bool, len(ids))
	for _, c := range b.Cards {
		deckID, ok := ids[c.DeckID]
		if !ok {
			return nil, fmt.Errorf("card %d references deck %d outside the batch", c.ID, c.DeckID)
		}
		if err := saveCard(ctx, tx, deckID, c); err != nil {
			return nil, err
		}
		if kept[deckID] == nil {
			kept[deckID] = map[int64]bool{}
		}
		kept[deckID][c.ID] = true
	}

	for _, deckID := range deckIDs {
		if err := deleteStaleCards(ctx, tx, deckID, kept[deckID]); err != nil {
			return nil, err
		}
	}
	if err := deleteVanishedDecks(ctx, tx, b.Origin, deckIDs); err != nil {
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit import: %w", err)
	}
	return deckIDs, nil
}

func saveCard(ctx context.Context, tx *sql.Tx, deckID int64, c domain.NormalizedCard) error {
	var cardID int64
	err := tx.QueryRowContext(ctx, `
		INSERT INTO cards (deck_id, note_id, front, back, tags, hash)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT (deck_id, note_id) DO UPDATE SET
			front = excluded.front,
			back = excluded.back,
			tags = excluded.tags,
			hash = excluded.hash
		RETURNING id
	`, deckID, c.ID, c.Front, c.Back, strings.Join(c.Tags, " "), knol.Hash(c)).Scan(&cardID)
	if err != nil {
		return fmt.Errorf("failed to upsert card for note %d: %w", c.ID, err)
	}

	if _, err := tx.ExecContext(ctx, `DELETE FROM media WHERE card_id = ?`, cardID); err != nil {
		return fmt.Errorf("failed to clear media for card %d: %w", cardID, err)
	}
	for _, asset := range []*domain.MediaAsset{c.Image, c.Audio} {
		if asset == nil {
			continue
		}
		_, err := tx.ExecContext(ctx, `
			INSERT INTO media (card_id, kind, name, content_type, data)
			VALUES (?, ?, ?, ?, ?)
		`, cardID, string(asset.Kind), asset.Name, asset.ContentType, asset.Data)
		if err != nil {
			return fmt.Errorf("failed to store media %s for card %d: %w", asset.Name, cardID, err)
		}
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO card_states (card_id, ease_factor, interval, repetitions)
		VALUES (?, ?, 0, 0)
		ON CONFLICT (card_id) DO NOTHING
	`, cardID, sm2.DefaultEaseFactor)
	if err != nil {
		return fmt.Errorf("failed to initialise state for card %d: %w", cardID, err)
	}
	return nil
}

func deleteStaleCards(ctx context.Context, tx *sql.Tx, deckID int64, kept map[int64]bool) error {
	rows, err := tx.QueryContext(ctx, `SELECT id, note_id FROM cards WHERE deck_id = ?`, deckID)
	if err != nil {
		return fmt.Errorf("failed to list cards of deck %d: %w", deckID, err)
	}
	var stale []int64
	for rows.Next() {
		var id, noteID int64
		if err := rows.Scan(&id, &noteID); err != nil {
			rows.Close()
			return fmt.Errorf("failed to scan card row: %w", err)
		}
		if !kept[noteID] {
			stale = append(stale, id)
		}
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return fmt.Errorf("failed to list cards of deck %d: %w", deckID, err)
	}

	for _, id := range stale {
		if _, err := tx.ExecContext(ctx, `DELETE FROM cards WHERE id = ?`, id); err != nil {
			return fmt.Errorf("failed to delete stale card %d: %w", id, err)
		}
	}
	return nil
}

// deleteVanishedDecks removes the decks of origin that the batch no longer
// contains, so a note moved to another deck leaves no copy behind.
func deleteVanishedDecks(ctx context.Context, tx *sql.Tx, origin string, keep []int64) error {
	query := `DELETE FROM decks WHERE origin = ?`
	args := []any{origin}
	if len(keep) > 0 {
		query += ` AND id NOT IN (?` + strings.Repeat(`, ?`, len(keep)-1) + `)`
		for _, id := range keep {
			args = append(args, id)
		}
	}
	if _, err := tx.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("failed to delete vanished decks of %s: %w", origin, err)
	}
	return nil
}

const deckColumns = `
	SELECT d.id, d.name, d.origin, d.source_id, d.imported_at,
		(SELECT count(*) FROM cards c WHERE c.deck_id = d.id)
	FROM decks d
`

func scanDecks(rows *sql.Rows) ([]Deck, error) {
	defer rows.Close()
	var decks []Deck
	for rows.Next() {
		var d Deck
		if err := rows.Scan(&d.ID, &d.Name, &d.Origin, &d.SourceID, &d.ImportedAt, &d.CardCount); err != nil {
			return nil, fmt.Errorf("failed to scan deck row: %w", err)
		}
		decks = append(decks, d)
	}
	return decks, rows.Err()
}

// Decks lists every stored deck by name.
func (db *DB) Decks(ctx context.Context) ([]Deck, error) {
	rows, err := db.conn.QueryContext(ctx, deckColumns+` ORDER BY d.name, d.id`)
	if err != nil {
		return nil, fmt.Errorf("failed to list decks: %w", err)
	}
	return scanDecks(rows)
}

// DecksBySource lists the decks imported from one source.
func (db *DB) DecksBySource(ctx context.Context, sourceID int64) ([]Deck, error) {
	rows, err := db.conn.QueryContext(ctx, deckColumns+` WHERE d.source_id = ? ORDER BY d.id`, sourceID)
	if err != nil {
		return nil, fmt.Errorf("failed to list decks for source %d: %w", sourceID, err)
	}
	return scanDecks(rows)
}

// DeleteDeck removes a deck with its cards, media, states and logs.
func (db *DB) DeleteDeck(ctx context.Context, id int64) error {
	res, err := db.conn.ExecContext(ctx, `DELETE FROM decks WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("failed to delete deck %d: %w", id, err)
	}
	return expectOne(res, fmt.Sprintf("deck %d", id))
}

// Card loads a stored card with its media. The returned card's ID and DeckID
// are storage ids.
func (db *DB) Card(ctx context.Context, id int64) (*domain.NormalizedCard, error) {
	var c domain.NormalizedCard
	var tags string
	err := db.conn.QueryRowContext(ctx, `
		SELECT c.id, c.deck_id, d.name, c.front, c.back, c.tags
		FROM cards c JOIN decks d ON d.id = c.deck_id
		WHERE c.id = ?
	`, id).Scan(&c.ID, &c.DeckID, &c.DeckName, &c.Front, &c.Back, &tags)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("card %d: %w", id, ErrNotFound)
		}
		return nil, fmt.Errorf("failed to load card %d: %w", id, err)
	}
	c.Tags = strings.Fields(tags)

	rows, err := db.conn.QueryContext(ctx, `
		SELECT kind, name, content_type, data FROM media WHERE card_id = ?
	`, id)
	if err != nil {
		return nil, fmt.Errorf("failed to load media for card %d: %w", id, err)
	}
	defer rows.Close()
	for rows.Next() {
		var a domain.MediaAsset
		var kind string
		if err := rows.Scan(&kind, &a.Name, &a.ContentType, &a.Data); err != nil {
			return nil, fmt.Errorf("failed to scan media row: %w", err)
		}
		a.Kind = domain.MediaKind(kind)
		switch a.Kind {
		case domain.MediaImage:
			c.Image = &a
		case domain.MediaAudio:
			c.Audio = &a
		}
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to load media for card %d: %w", id, err)
	}
	return &c, nil
}
