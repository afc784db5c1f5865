package fieldmap

import (
	"errors"
	"slices"
	"strings"
	"unicode/utf8"

	"github.com/conorfennell/knoldeck/internal/domain"
)

// Skip reasons. None of them is fatal to an import.
var (
	ErrUnknownTemplate    = errors.New("fieldmap: unknown template")
	ErrUnrecognizedLayout = errors.New("fieldmap: unrecognized field layout")
	ErrEmptyNote          = errors.New("fieldmap: both sides empty")
)

// Candidate is a field considered for one side of a card.
type Candidate struct {
	Index int
	Text  string
	Score float64
}

// Mapping is the outcome of mapping one note.
type Mapping struct {
	FrontIndex int
	BackIndex  int
	Front      string
	Back       string
}

// Score rates cleaned text as content for the given side.
func (p *Policy) Score(cleaned string, side Side) float64 {
	return float64(utf8.RuneCountInString(cleaned))*p.Weights.Length +
		p.LanguageSignal(cleaned)*p.Weights.side(side)
}

// Rank scores every usable field not in exclude, best first. Empty and
// metadata-like fields are not candidates.
func (p *Policy) Rank(fields []string, exclude []int, side Side) []Candidate {
	var out []Candidate
	for i, html := range fields {
		if slices.Contains(exclude, i) || html == "" {
			continue
		}
		text := p.Clean(html)
		if IsMetadataLike(text) {
			continue
		}
		out = append(out, Candidate{Index: i, Text: text, Score: p.Score(text, side)})
	}
	slices.SortStableFunc(out, func(a, b Candidate) int {
		switch {
		case a.Score > b.Score:
			return -1
		case a.Score < b.Score:
			return 1
		}
		return 0
	})
	return out
}

func labelIndex(names, labels []string, skip int) int {
	for i, name := range names {
		if i == skip {
			continue
		}
		if slices.Contains(labels, strings.ToLower(strings.TrimSpace(name))) {
			return i
		}
	}
	return -1
}

// Map picks the front and back of a note from its fields and its
// template's declared field names.
func (p *Policy) Map(fields, names []string) (Mapping, error) {
	front := labelIndex(names, p.FrontLabels, -1)
	if front < 0 {
		front = 0
	}
	back := labelIndex(names, p.BackLabels, front)
	if back < 0 {
		for i := range fields {
			if i != front {
				back = i
				break
			}
		}
	}
	if back < 0 || front >= len(fields) || back >= len(fields) {
		return Mapping{}, ErrUnrecognizedLayout
	}

	m := Mapping{
		FrontIndex: front,
		BackIndex:  back,
		Front:      p.Clean(fields[front]),
		Back:       p.Clean(fields[back]),
	}

	// A side that looks like metadata is swapped for the best remaining
	// field. Without a better field, non-empty text is kept as is.
	if IsMetadataLike(m.Front) {
		if ranked := p.Rank(fields, []int{front, back}, Front); len(ranked) > 0 {
			m.FrontIndex, m.Front = ranked[0].Index, ranked[0].Text
		}
	}
	if IsMetadataLike(m.Back) {
		if ranked := p.Rank(fields, []int{m.FrontIndex, back}, Back); len(ranked) > 0 {
			m.BackIndex, m.Back = ranked[0].Index, ranked[0].Text
		}
	}

	if m.FrontIndex == m.BackIndex {
		return Mapping{}, ErrUnrecognizedLayout
	}
	if m.Front == "" && m.Back == "" {
		return Mapping{}, ErrEmptyNote
	}
	return m, nil
}

// MapNote maps a raw note using its template from templates.
func (p *Policy) MapNote(note domain.RawNote, templates map[int64]domain.Template) (Mapping, error) {
	tmpl, ok := templates[note.TemplateID]
	if !ok {
		return Mapping{}, ErrUnknownTemplate
	}
	return p.Map(note.SplitFields(), tmpl.FieldNames)
}
