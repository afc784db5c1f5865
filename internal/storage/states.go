package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/conorfennell/knoldeck/internal/domain"
	"github.com/conorfennell/knoldeck/internal/sm2"
)

const stateColumns = `
	SELECT s.card_id, s.ease_factor, s.interval, s.repetitions, s.next_review, s.last_review, s.quality
	FROM card_states s
`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanState(r rowScanner) (sm2.CardState, error) {
	var s sm2.CardState
	var next, last sql.NullTime
	var quality sql.NullInt64
	if err := r.Scan(&s.CardID, &s.EaseFactor, &s.Interval, &s.Repetitions, &next, &last, &quality); err != nil {
		return s, err
	}
	if next.Valid {
		t := next.Time
		s.NextReview = &t
	}
	if last.Valid {
		t := last.Time
		s.LastReview = &t
	}
	if quality.Valid {
		q := sm2.Quality(quality.Int64)
		s.Quality = &q
	}
	return s, nil
}

// CardStates returns the scheduling state of every card in a deck, or of
// every card when deckID is 0.
func (db *DB) CardStates(ctx context.Context, deckID int64) ([]sm2.CardState, error) {
	rows, err := db.conn.QueryContext(ctx, stateColumns+`
		JOIN cards c ON c.id = s.card_id
		WHERE ? = 0 OR c.deck_id = ?
		ORDER BY s.card_id
	`, deckID, deckID)
	if err != nil {
		return nil, fmt.Errorf("failed to load card states for deck %d: %w", deckID, err)
	}
	defer rows.Close()

	var states []sm2.CardState
	for rows.Next() {
		s, err := scanState(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan card state row: %w", err)
		}
		states = append(states, s)
	}
	return states, rows.Err()
}

// CardState returns the scheduling state of one card.
func (db *DB) CardState(ctx context.Context, cardID int64) (sm2.CardState, error) {
	s, err := scanState(db.conn.QueryRowContext(ctx, stateColumns+` WHERE s.card_id = ?`, cardID))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return s, fmt.Errorf("card state %d: %w", cardID, ErrNotFound)
		}
		return s, fmt.Errorf("failed to load card state %d: %w", cardID, err)
	}
	return s, nil
}

func nullTime(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: t.UTC(), Valid: true}
}

// SaveReview stores the state produced by a review together with its log
// entry, atomically.
func (db *DB) SaveReview(ctx context.Context, s sm2.CardState, log domain.ReviewLog) (err error) {
	tx, err := db.conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin review transaction: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	var quality sql.NullInt64
	if s.Quality != nil {
		quality = sql.NullInt64{Int64: int64(*s.Quality), Valid: true}
	}
	res, err := tx.ExecContext(ctx, `
		UPDATE card_states
		SET ease_factor = ?, interval = ?, repetitions = ?, next_review = ?, last_review = ?, quality = ?
		WHERE card_id = ?
	`, s.EaseFactor, s.Interval, s.Repetitions, nullTime(s.NextReview), nullTime(s.LastReview), quality, s.CardID)
	if err != nil {
		return fmt.Errorf("failed to update card state %d: %w", s.CardID, err)
	}
	if err := expectOne(res, fmt.Sprintf("card state %d", s.CardID)); err != nil {
		return err
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO review_logs (card_id, quality, reviewed_at, interval, ease_factor)
		VALUES (?, ?, ?, ?, ?)
	`, log.CardID, log.Quality, log.ReviewedAt.UTC(), log.Interval, log.EaseFactor)
	if err != nil {
		return fmt.Errorf("failed to insert review log for card %d: %w", log.CardID, err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit review: %w", err)
	}
	return nil
}

// ReviewLogs returns a card's review history, oldest first.
func (db *DB) ReviewLogs(ctx context.Context, cardID int64) ([]domain.ReviewLog, error) {
	rows, err := db.conn.QueryContext(ctx, `
		SELECT card_id, quality, reviewed_at, interval, ease_factor
		FROM review_logs WHERE card_id = ?
		ORDER BY reviewed_at, id
	`, cardID)
	if err != nil {
		return nil, fmt.Errorf("failed to load review logs for card %d: %w", cardID, err)
	}
	defer rows.Close()

	var logs []domain.ReviewLog
	for rows.Next() {
		var l domain.ReviewLog
		if err := rows.Scan(&l.CardID, &l.Quality, &l.ReviewedAt, &l.Interval, &l.EaseFactor); err != nil {
			return nil, fmt.Errorf("failed to scan review log row: %w", err)
		}
		logs = append(logs, l)
	}
	return logs, rows.Err()
}
