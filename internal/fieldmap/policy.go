// Package fieldmap turns a note's opaque field list into a front/back pair.
//
// Authoring tools name and order note fields arbitrarily, so the mapping is a
// heuristic: template field labels are consulted first, then every field is
// scored with a fixed weighting table (Weights) and the best candidate wins.
// The heuristic maximizes recovery across inconsistent decks; it does not
// guarantee a correct mapping for every deck.
package fieldmap

import (
	"fmt"
	"regexp"
	"slices"
	"strings"
)

// Side names one face of a card.
type Side int

const (
	Front Side = iota
	Back
)

func (s Side) String() string {
	if s == Back {
		return "back"
	}
	return "front"
}

// Weights is the scoring table used to rank candidate fields.
//
//	score = runes*Length + signal*side
//	signal = Diacritic? + FunctionWord? + Suffix? + min(words, WordCap)/WordDivisor
type Weights struct {
	Length       float64
	Diacritic    float64
	FunctionWord float64
	Suffix       float64
	WordCap      int
	WordDivisor  float64
	Front        float64
	Back         float64
}

// DefaultWeights favors the native-language signal when filling the back.
var DefaultWeights = Weights{
	Length:       1,
	Diacritic:    5,
	FunctionWord: 4,
	Suffix:       3,
	WordCap:      20,
	WordDivisor:  2,
	Front:        5,
	Back:         20,
}

func (w Weights) side(s Side) float64 {
	if s == Back {
		return w.Back
	}
	return w.Front
}

// LanguageProfile lists the surface markers of the learner's native language.
type LanguageProfile struct {
	Code          string
	Diacritics    string
	FunctionWords []string
	Suffixes      []string
}

var profiles = map[string]LanguageProfile{
	"pt": {
		Code:          "pt",
		Diacritics:    "ãõáéíóúâêîôûç",
		FunctionWords: []string{"de", "que", "é", "para", "com", "não", "nao", "uma", "um", "os", "as", "eu", "você", "voce", "ele", "ela", "isso", "isto", "está", "esta", "ser", "ter", "foi", "são", "sao"},
		Suffixes:      []string{"ção", "ções", "são", "sao", "mente", "dade", "nhão", "nhao", "lhão", "lhao"},
	},
	"es": {
		Code:          "es",
		Diacritics:    "áéíóúñü¿¡",
		FunctionWords: []string{"de", "que", "el", "la", "los", "las", "y", "en", "un", "una", "es", "por", "para", "con", "no", "se", "lo", "su", "al", "del"},
		Suffixes:      []string{"ción", "ciones", "mente", "dad", "idad", "ísimo"},
	},
	"fr": {
		Code:          "fr",
		Diacritics:    "àâçéèêëîïôûùüÿœ",
		FunctionWords: []string{"le", "la", "les", "de", "des", "et", "un", "une", "est", "que", "qui", "pour", "dans", "pas", "ne", "je", "tu", "il", "elle", "nous", "vous"},
		Suffixes:      []string{"tion", "ment", "ité", "eur", "euse", "ette"},
	},
}

// Languages returns the codes of the built-in language profiles.
func Languages() []string {
	codes := make([]string, 0, len(profiles))
	for code := range profiles {
		codes = append(codes, code)
	}
	slices.Sort(codes)
	return codes
}

// Policy is the complete, tunable mapping policy.
type Policy struct {
	FrontLabels []string
	BackLabels  []string
	Triggers    []*regexp.Regexp
	Language    LanguageProfile
	Weights     Weights
}

var (
	defaultFrontLabels = []string{"front", "text", "question", "word", "expression", "english", "inglês", "ingles", "vocabulary", "term"}
	defaultBackLabels  = []string{"back", "answer", "meaning", "translation", "definition", "portuguese", "português", "native"}

	// Instructions some deck authors bundle after the real content.
	defaultTriggers = []*regexp.Regexp{
		regexp.MustCompile(`(?i)change google translate to your language`),
		regexp.MustCompile(`(?i)select tools\s*>\s*manage tools type`),
		regexp.MustCompile(`(?i)https://translate\.google\.com/`),
	}
)

// DefaultPolicy returns the policy tuned for Portuguese-speaking learners.
func DefaultPolicy() *Policy {
	p, _ := NewPolicy("pt")
	return p
}

// NewPolicy returns the default policy scoring for the given native language.
func NewPolicy(language string) (*Policy, error) {
	profile, ok := profiles[strings.ToLower(language)]
	if !ok {
		return nil, fmt.Errorf("fieldmap: unknown language %q (known: %s)", language, strings.Join(Languages(), ", "))
	}
	return &Policy{
		FrontLabels: slices.Clone(defaultFrontLabels),
		BackLabels:  slices.Clone(defaultBackLabels),
		Triggers:    defaultTriggers,
		Language:    profile,
		Weights:     DefaultWeights,
	}, nil
}
