// Package sm2 implements the SuperMemo SM-2 review scheduler.
//
// Every function here is pure: Review never mutates its input and holds no
// shared state, so independent card states may be reviewed concurrently.
// Persisting the returned state is the caller's job.
package sm2

import (
	"errors"
	"fmt"
	"math"
	"time"
)

const (
	DefaultEaseFactor = 2.5
	MinEaseFactor     = 1.3

	// GraduationInterval is the interval, in days, at which a scheduled card
	// stops counting as learning.
	GraduationInterval = 4

	// MaxInterval caps a scheduled interval at about a hundred years.
	MaxInterval = 36500
)

// ErrInvalidQuality is returned for grades outside [0, 5].
var ErrInvalidQuality = errors.New("sm2: quality out of range")

// Quality is the learner's recall grade, 0 (blackout) to 5 (perfect).
type Quality int

const (
	Blackout Quality = iota
	Wrong
	WrongFamiliar
	Hard // lowest passing grade
	Good
	Perfect
)

var qualityNames = [...]string{
	Blackout:      "Blackout",
	Wrong:         "Wrong",
	WrongFamiliar: "WrongFamiliar",
	Hard:          "Hard",
	Good:          "Good",
	Perfect:       "Perfect",
}

// IsValid reports whether q is within [0, 5].
func (q Quality) IsValid() bool {
	return q >= Blackout && q <= Perfect
}

// Passed reports whether q counts as successful recall.
func (q Quality) Passed() bool {
	return q >= Hard
}

func (q Quality) String() string {
	if q.IsValid() {
		return qualityNames[q]
	}
	return fmt.Sprintf("Quality(%d)", int(q))
}

// CardState is the SM-2 scheduling state of one card.
type CardState struct {
	CardID      int64      `json:"card_id"`
	EaseFactor  float64    `json:"ease_factor"`
	Interval    int        `json:"interval"` // days
	Repetitions int        `json:"repetitions"`
	NextReview  *time.Time `json:"next_review"` // nil until first review.
	LastReview  *time.Time `json:"last_review"` // nil until first review.
	Quality     *Quality   `json:"quality"`     // grade of the last review.
}

// NewCardState returns the state of a card entering the scheduler.
func NewCardState(id int64) CardState {
	return CardState{
		CardID:     id,
		EaseFactor: DefaultEaseFactor,
	}
}

// IsNew reports whether the card has never been reviewed nor scheduled.
func (c CardState) IsNew() bool {
	return c.NextReview == nil && c.LastReview == nil
}

func (c CardState) clone() CardState {
	out := c
	if c.NextReview != nil {
		v := *c.NextReview
		out.NextReview = &v
	}
	if c.LastReview != nil {
		v := *c.LastReview
		out.LastReview = &v
	}
	if c.Quality != nil {
		v := *c.Quality
		out.Quality = &v
	}
	return out
}

// NextEaseFactor applies the SM-2 ease update for grade q, floored at
// MinEaseFactor.
func NextEaseFactor(ef float64, q Quality) float64 {
	d := float64(Perfect - q)
	next := ef + (0.1 - d*(0.08+d*0.02))
	return math.Max(MinEaseFactor, next)
}

// Review applies one review of grade q at now and returns the updated state
// along with its next review time. Out-of-range grades are rejected and
// leave the state untouched.
func Review(state CardState, q Quality, now time.Time) (CardState, time.Time, error) {
	if !q.IsValid() {
		return state, time.Time{}, fmt.Errorf("%w: %d", ErrInvalidQuality, int(q))
	}

	c := state.clone()
	c.EaseFactor = NextEaseFactor(c.EaseFactor, q)

	if !q.Passed() {
		c.Repetitions = 0
		c.Interval = 1
	} else {
		switch c.Repetitions {
		case 0:
			c.Interval = 1
		case 1:
			c.Interval = 6
		default:
			// A successful review never schedules less than a day out.
			days := math.Min(math.Round(float64(c.Interval)*c.EaseFactor), MaxInterval)
			c.Interval = max(1, int(days))
		}
		c.Repetitions++
	}

	next := now.AddDate(0, 0, c.Interval)
	reviewed := now
	grade := q
	c.NextReview = &next
	c.LastReview = &reviewed
	c.Quality = &grade

	return c, next, nil
}
