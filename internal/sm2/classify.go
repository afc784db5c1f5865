package sm2

import (
	"fmt"
	"slices"
	"time"
)

// Phase is the bucket a card falls in at a given instant.
type Phase int

const (
	PhaseNew Phase = iota
	PhaseDue
	PhaseLearning
	// PhaseReview is a card scheduled in the future past graduation.
	PhaseReview
	// PhaseAnomalous is a card reviewed at some point but never scheduled.
	PhaseAnomalous
)

var phaseNames = [...]string{
	PhaseNew:       "new",
	PhaseDue:       "due",
	PhaseLearning:  "learning",
	PhaseReview:    "review",
	PhaseAnomalous: "anomalous",
}

func (p Phase) String() string {
	if p >= 0 && int(p) < len(phaseNames) {
		return phaseNames[p]
	}
	return fmt.Sprintf("Phase(%d)", int(p))
}

// PhaseOf returns the phase of c as of now.
func PhaseOf(c CardState, now time.Time) Phase {
	switch {
	case c.IsNew():
		return PhaseNew
	case c.NextReview == nil:
		return PhaseAnomalous
	case !c.NextReview.After(now):
		return PhaseDue
	case c.Interval < GraduationInterval:
		return PhaseLearning
	}
	return PhaseReview
}

// SchedulerState buckets a snapshot of card states. It is a view and is
// recomputed for every call to Classify.
type SchedulerState struct {
	Cards    map[int64]CardState
	New      []int64
	Due      []int64
	Learning []int64
}

// Classify sorts each card of the snapshot into the new, due and learning
// buckets as of now. A card with a last review but no next review is
// anomalous and belongs to no bucket. The snapshot is returned unchanged.
func Classify(cards map[int64]CardState, now time.Time) SchedulerState {
	st := SchedulerState{Cards: cards}
	for id, c := range cards {
		switch PhaseOf(c, now) {
		case PhaseNew:
			st.New = append(st.New, id)
		case PhaseDue:
			st.Due = append(st.Due, id)
		case PhaseLearning:
			st.Learning = append(st.Learning, id)
		}
	}
	slices.Sort(st.New)
	slices.Sort(st.Due)
	slices.Sort(st.Learning)
	return st
}

// Stats are aggregate figures over a set of card states.
type Stats struct {
	TotalCards        int     `json:"total_cards"`
	NewCards          int     `json:"new_cards"`
	DueCards          int     `json:"due_cards"`
	LearningCards     int     `json:"learning_cards"`
	AverageEaseFactor float64 `json:"average_ease_factor"`
}

// CalculateStats summarizes cards as of now. The average ease factor of an
// empty set is 0.
func CalculateStats(cards map[int64]CardState, now time.Time) Stats {
	st := Classify(cards, now)
	stats := Stats{
		TotalCards:    len(cards),
		NewCards:      len(st.New),
		DueCards:      len(st.Due),
		LearningCards: len(st.Learning),
	}
	if stats.TotalCards == 0 {
		return stats
	}

	var sum float64
	for _, c := range cards {
		sum += c.EaseFactor
	}
	stats.AverageEaseFactor = sum / float64(stats.TotalCards)
	return stats
}
