// Package review applies learner answers to stored card states.
//
// The scheduler itself is pure. This package is the single writer per card:
// a card's load, review and save happen under that card's lock, so two
// concurrent answers for the same card never lose an update.
package review

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/conorfennell/knoldeck/internal/domain"
	"github.com/conorfennell/knoldeck/internal/sm2"
)

// Store is the persistence the service needs.
type Store interface {
	CardState(ctx context.Context, cardID int64) (sm2.CardState, error)
	CardStates(ctx context.Context, deckID int64) ([]sm2.CardState, error)
	SaveReview(ctx context.Context, state sm2.CardState, log domain.ReviewLog) error
}

type cardLock struct {
	sync.Mutex
	refs int
}

type Service struct {
	store Store
	now   func() time.Time

	mu    sync.Mutex
	locks map[int64]*cardLock
}

func New(store Store, now func() time.Time) *Service {
	if now == nil {
		now = time.Now
	}
	return &Service{store: store, now: now, locks: make(map[int64]*cardLock)}
}

func (s *Service) lock(cardID int64) func() {
	s.mu.Lock()
	l, ok := s.locks[cardID]
	if !ok {
		l = &cardLock{}
		s.locks[cardID] = l
	}
	l.refs++
	s.mu.Unlock()

	l.Lock()
	return func() {
		l.Unlock()
		s.mu.Lock()
		if l.refs--; l.refs == 0 {
			delete(s.locks, cardID)
		}
		s.mu.Unlock()
	}
}

// Outcome is the result of one answer.
type Outcome struct {
	State      sm2.CardState `json:"state"`
	NextReview time.Time     `json:"next_review"`
	Phase      string        `json:"phase"`
}

// Answer grades a card and persists the new state with a review log.
func (s *Service) Answer(ctx context.Context, cardID int64, q sm2.Quality) (Outcome, error) {
	if !q.IsValid() {
		return Outcome{}, fmt.Errorf("%w: %d", sm2.ErrInvalidQuality, int(q))
	}

	unlock := s.lock(cardID)
	defer unlock()

	state, err := s.store.CardState(ctx, cardID)
	if err != nil {
		return Outcome{}, err
	}
	now := s.now()
	next, at, err := sm2.Review(state, q, now)
	if err != nil {
		return Outcome{}, err
	}

	log := domain.ReviewLog{
		CardID:     cardID,
		Quality:    int(q),
		ReviewedAt: now,
		Interval:   next.Interval,
		EaseFactor: next.EaseFactor,
	}
	if err := s.store.SaveReview(ctx, next, log); err != nil {
		return Outcome{}, err
	}

	slog.Debug("Card reviewed", "card_id", cardID, "quality", q, "interval", next.Interval, "ease_factor", next.EaseFactor)
	return Outcome{State: next, NextReview: at, Phase: sm2.PhaseOf(next, now).String()}, nil
}

// Queue is what a learner should study next in a deck.
type Queue struct {
	New      []int64   `json:"new"`
	Due      []int64   `json:"due"`
	Learning []int64   `json:"learning"`
	Stats    sm2.Stats `json:"stats"`
}

// Queue classifies a deck's cards as of now. A deckID of 0 covers every deck.
func (s *Service) Queue(ctx context.Context, deckID int64) (Queue, error) {
	states, err := s.store.CardStates(ctx, deckID)
	if err != nil {
		return Queue{}, err
	}
	cards := make(map[int64]sm2.CardState, len(states))
	for _, st := range states {
		cards[st.CardID] = st
	}

	now := s.now()
	st := sm2.Classify(cards, now)
	return Queue{
		New:      orEmpty(st.New),
		Due:      orEmpty(st.Due),
		Learning: orEmpty(st.Learning),
		Stats:    sm2.CalculateStats(cards, now),
	}, nil
}

func orEmpty(ids []int64) []int64 {
	if ids == nil {
		return []int64{}
	}
	return ids
}
