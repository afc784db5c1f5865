package sm2

import (
	"errors"
	"math"
	"slices"
	"testing"
	"time"
)

func at(s string) time.Time {
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		panic(err)
	}
	return t
}

func ptr(t time.Time) *time.Time { return &t }

func TestNewCardState(t *testing.T) {
	c := NewCardState(42)
	if c.CardID != 42 {
		t.Errorf("Expected CardID 42, got %d", c.CardID)
	}
	if c.EaseFactor != 2.5 {
		t.Errorf("Expected ease factor 2.5, got %.2f", c.EaseFactor)
	}
	if c.Interval != 0 || c.Repetitions != 0 {
		t.Errorf("Expected zero interval and repetitions, got %d and %d", c.Interval, c.Repetitions)
	}
	if c.NextReview != nil || c.LastReview != nil || c.Quality != nil {
		t.Error("Expected a fresh card to have no review timestamps or quality")
	}
	if !c.IsNew() {
		t.Error("Expected a fresh card to be new")
	}
}

func TestReviewSequence(t *testing.T) {
	testCases := []struct {
		name         string
		state        CardState
		quality      Quality
		now          string
		expectedReps int
		expectedIvl  int
		expectedNext string
	}{
		{
			name:         "First successful review",
			state:        NewCardState(1),
			quality:      5,
			now:          "2024-01-01T10:00:00Z",
			expectedReps: 1,
			expectedIvl:  1,
			expectedNext: "2024-01-02T10:00:00Z",
		},
		{
			name:         "Second successful review",
			state:        CardState{CardID: 1, Repetitions: 1, Interval: 1, EaseFactor: 2.6},
			quality:      4,
			now:          "2024-01-02T10:00:00Z",
			expectedReps: 2,
			expectedIvl:  6,
			expectedNext: "2024-01-08T10:00:00Z",
		},
		{
			name:         "Third successful review uses updated ease factor",
			state:        CardState{CardID: 1, Repetitions: 2, Interval: 6, EaseFactor: 2.6},
			quality:      3,
			now:          "2024-01-08T10:00:00Z",
			expectedReps: 3,
			expectedIvl:  15,
			expectedNext: "2024-01-23T10:00:00Z",
		},
		{
			name:         "Lapse resets repetitions",
			state:        CardState{CardID: 1, Repetitions: 3, Interval: 15, EaseFactor: 2.6},
			quality:      2,
			now:          "2024-01-23T10:00:00Z",
			expectedReps: 0,
			expectedIvl:  1,
			expectedNext: "2024-01-24T10:00:00Z",
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			now := at(tc.now)
			got, next, err := Review(tc.state, tc.quality, now)
			if err != nil {
				t.Fatalf("Review() returned an unexpected error: %v", err)
			}
			if got.Repetitions != tc.expectedReps {
				t.Errorf("Expected repetitions %d, got %d", tc.expectedReps, got.Repetitions)
			}
			if got.Interval != tc.expectedIvl {
				t.Errorf("Expected interval %d, got %d", tc.expectedIvl, got.Interval)
			}
			if !next.Equal(at(tc.expectedNext)) {
				t.Errorf("Expected next review %s, got %s", tc.expectedNext, next)
			}
			if got.NextReview == nil || !got.NextReview.Equal(next) {
				t.Errorf("Expected state NextReview to equal returned time, got %v", got.NextReview)
			}
			if got.LastReview == nil || !got.LastReview.Equal(now) {
				t.Errorf("Expected LastReview %s, got %v", now, got.LastReview)
			}
			if got.Quality == nil || *got.Quality != tc.quality {
				t.Errorf("Expected recorded quality %d, got %v", tc.quality, got.Quality)
			}
		})
	}
}

func TestReviewEaseFactor(t *testing.T) {
	t.Run("perfect recall on a fresh card", func(t *testing.T) {
		got, _, err := Review(NewCardState(1), Perfect, at("2024-01-01T10:00:00Z"))
		if err != nil {
			t.Fatal(err)
		}
		if math.Abs(got.EaseFactor-2.6) > 1e-9 {
			t.Errorf("Expected ease factor 2.6, got %v", got.EaseFactor)
		}
	})

	t.Run("lapse lowers ease factor", func(t *testing.T) {
		state := CardState{Repetitions: 3, Interval: 15, EaseFactor: 2.6}
		got, _, err := Review(state, 2, at("2024-01-23T10:00:00Z"))
		if err != nil {
			t.Fatal(err)
		}
		if got.EaseFactor >= 2.6 {
			t.Errorf("Expected ease factor below 2.6, got %v", got.EaseFactor)
		}
	})

	t.Run("floored at minimum", func(t *testing.T) {
		state := CardState{EaseFactor: 1.4}
		got, _, err := Review(state, Blackout, at("2024-01-01T10:00:00Z"))
		if err != nil {
			t.Fatal(err)
		}
		if got.EaseFactor != MinEaseFactor {
			t.Errorf("Expected ease factor floored at %v, got %v", MinEaseFactor, got.EaseFactor)
		}
	})

	t.Run("never below minimum for any grade", func(t *testing.T) {
		for _, ef := range []float64{1.3, 1.31, 1.5, 2.5, 3.1} {
			for q := Blackout; q <= Perfect; q++ {
				got, _, err := Review(CardState{EaseFactor: ef, Repetitions: 2, Interval: 3}, q, at("2024-01-01T10:00:00Z"))
				if err != nil {
					t.Fatal(err)
				}
				if got.EaseFactor < MinEaseFactor {
					t.Errorf("ease %v, quality %d: got %v below floor", ef, q, got.EaseFactor)
				}
			}
		}
	})
}

func TestReviewDoesNotMutateInput(t *testing.T) {
	last := at("2024-01-01T10:00:00Z")
	state := CardState{CardID: 7, EaseFactor: 2.5, Repetitions: 2, Interval: 6, LastReview: &last}
	if _, _, err := Review(state, Good, at("2024-01-07T10:00:00Z")); err != nil {
		t.Fatal(err)
	}
	if state.Repetitions != 2 || state.Interval != 6 || !state.LastReview.Equal(at("2024-01-01T10:00:00Z")) {
		t.Errorf("Expected input state to be unchanged, got %+v", state)
	}
}

func TestReviewIntervalIsCapped(t *testing.T) {
	c := NewCardState(1)
	now := at("2024-01-01T10:00:00Z")
	for i := range 60 {
		next, due, err := Review(c, Perfect, now)
		if err != nil {
			t.Fatal(err)
		}
		if next.Interval > MaxInterval {
			t.Fatalf("review %d: interval %d exceeds %d", i, next.Interval, MaxInterval)
		}
		if !due.After(now) {
			t.Fatalf("review %d: next review %s is not after %s", i, due, now)
		}
		if want := now.AddDate(0, 0, next.Interval); !due.Equal(want) {
			t.Fatalf("review %d: next review %s, want %s", i, due, want)
		}
		c = next
	}
	if c.Interval != MaxInterval {
		t.Errorf("Expected interval to settle at %d, got %d", MaxInterval, c.Interval)
	}
}

func TestReviewRejectsOutOfRangeQuality(t *testing.T) {
	for _, q := range []Quality{-1, 6, 100} {
		state := NewCardState(1)
		got, next, err := Review(state, q, at("2024-01-01T10:00:00Z"))
		if !errors.Is(err, ErrInvalidQuality) {
			t.Errorf("quality %d: expected ErrInvalidQuality, got %v", q, err)
		}
		if !next.IsZero() {
			t.Errorf("quality %d: expected zero next review, got %s", q, next)
		}
		if !got.IsNew() {
			t.Errorf("quality %d: expected state to be left untouched", q)
		}
	}
}

func TestQualityString(t *testing.T) {
	if Perfect.String() != "Perfect" {
		t.Errorf("Expected Perfect, got %s", Perfect)
	}
	if Quality(9).String() != "Quality(9)" {
		t.Errorf("Expected Quality(9), got %s", Quality(9))
	}
}

func TestClassify(t *testing.T) {
	now := at("2024-01-10T10:00:00Z")
	reviewed := at("2024-01-08T10:00:00Z")

	cards := map[int64]CardState{
		1: {CardID: 1, EaseFactor: 2.5, Interval: 1, NextReview: ptr(at("2024-01-09T10:00:00Z")), LastReview: &reviewed},
		2: {CardID: 2, EaseFactor: 2.5, Interval: 2, NextReview: ptr(now), LastReview: &reviewed},
		3: {CardID: 3, EaseFactor: 2.5, Interval: 2, NextReview: ptr(at("2024-01-11T10:00:00Z")), LastReview: &reviewed},
		4: NewCardState(4),
		5: {CardID: 5, EaseFactor: 2.5, LastReview: &reviewed},
		6: {CardID: 6, EaseFactor: 2.5, Interval: 15, NextReview: ptr(at("2024-01-25T10:00:00Z")), LastReview: &reviewed},
	}

	st := Classify(cards, now)

	if !slices.Equal(st.Due, []int64{1, 2}) {
		t.Errorf("Expected due cards [1 2], got %v", st.Due)
	}
	if !slices.Equal(st.New, []int64{4}) {
		t.Errorf("Expected new cards [4], got %v", st.New)
	}
	if !slices.Equal(st.Learning, []int64{3}) {
		t.Errorf("Expected learning cards [3], got %v", st.Learning)
	}
	if len(st.Cards) != len(cards) {
		t.Errorf("Expected the snapshot to be returned unchanged")
	}

	expectedPhases := map[int64]Phase{1: PhaseDue, 2: PhaseDue, 3: PhaseLearning, 4: PhaseNew, 5: PhaseAnomalous, 6: PhaseReview}
	for id, expected := range expectedPhases {
		if got := PhaseOf(cards[id], now); got != expected {
			t.Errorf("Card %d: expected phase %s, got %s", id, expected, got)
		}
	}
	if Phase(42).String() != "Phase(42)" {
		t.Errorf("Expected Phase(42), got %s", Phase(42))
	}
}

func TestCalculateStats(t *testing.T) {
	t.Run("empty set", func(t *testing.T) {
		stats := CalculateStats(map[int64]CardState{}, at("2024-01-10T10:00:00Z"))
		if stats.TotalCards != 0 {
			t.Errorf("Expected 0 cards, got %d", stats.TotalCards)
		}
		if stats.AverageEaseFactor != 0 || math.IsNaN(stats.AverageEaseFactor) {
			t.Errorf("Expected average ease factor 0, got %v", stats.AverageEaseFactor)
		}
	})

	t.Run("nil set", func(t *testing.T) {
		stats := CalculateStats(nil, at("2024-01-10T10:00:00Z"))
		if stats.TotalCards != 0 || stats.AverageEaseFactor != 0 {
			t.Errorf("Expected zero stats, got %+v", stats)
		}
	})

	t.Run("mean ease factor", func(t *testing.T) {
		cards := map[int64]CardState{
			1: {CardID: 1, EaseFactor: 2.5},
			2: {CardID: 2, EaseFactor: 1.5},
		}
		stats := CalculateStats(cards, at("2024-01-10T10:00:00Z"))
		if stats.TotalCards != 2 || stats.NewCards != 2 {
			t.Errorf("Expected 2 total and 2 new, got %+v", stats)
		}
		if math.Abs(stats.AverageEaseFactor-2.0) > 1e-9 {
			t.Errorf("Expected average 2.0, got %v", stats.AverageEaseFactor)
		}
	})
}
