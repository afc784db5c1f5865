package fieldmap

import (
	"regexp"
	"strings"
	"unicode"

	"github.com/PuerkitoBio/goquery"
)

var (
	blockTagRe   = regexp.MustCompile(`(?i)<(br|div|p|h\d|li)[^>]*>`)
	soundTokenRe = regexp.MustCompile(`\[sound:[^\]]*\]`)
	digitsRe     = regexp.MustCompile(`^[0-9]+$`)
	identifierRe = regexp.MustCompile(`^[A-Za-z0-9_-]+$`)
)

// StripMarkup reduces a field's HTML to plain text. Block elements become
// line breaks, sound tokens are dropped and whitespace is collapsed.
func StripMarkup(html string) string {
	if html == "" {
		return ""
	}
	s := blockTagRe.ReplaceAllString(html, "\n")
	s = soundTokenRe.ReplaceAllString(s, "")

	text := s
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(s))
	if err == nil {
		doc.Find("script, style").Remove()
		text = doc.Text()
	}

	var lines []string
	for _, line := range strings.Split(text, "\n") {
		if line = strings.Join(strings.Fields(line), " "); line != "" {
			lines = append(lines, line)
		}
	}
	return strings.Join(lines, "\n")
}

// StripBoilerplate truncates text at the earliest trigger phrase.
func (p *Policy) StripBoilerplate(text string) string {
	cut := len(text)
	for _, re := range p.Triggers {
		if loc := re.FindStringIndex(text); loc != nil && loc[0] < cut {
			cut = loc[0]
		}
	}
	return strings.TrimSpace(text[:cut])
}

// Clean is StripMarkup followed by StripBoilerplate.
func (p *Policy) Clean(html string) string {
	return p.StripBoilerplate(StripMarkup(html))
}

// IsMetadataLike reports whether cleaned field text looks like an id, a
// counter or a short code rather than study content.
func IsMetadataLike(cleaned string) bool {
	s := strings.TrimSpace(cleaned)
	if s == "" {
		return true
	}
	if digitsRe.MatchString(s) {
		return true
	}
	return len(s) <= 4 && identifierRe.MatchString(s)
}

func words(text string) []string {
	return strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r)
	})
}

// LanguageSignal scores how likely text is written in the policy's language.
func (p *Policy) LanguageSignal(text string) float64 {
	if text == "" {
		return 0
	}
	w := p.Weights
	lang := p.Language
	tokens := words(text)

	var score float64
	if strings.ContainsAny(strings.ToLower(text), lang.Diacritics) {
		score += w.Diacritic
	}
	if containsAny(tokens, func(t string) bool { return hasWord(lang.FunctionWords, t) }) {
		score += w.FunctionWord
	}
	if containsAny(tokens, func(t string) bool { return hasSuffix(lang.Suffixes, t) }) {
		score += w.Suffix
	}
	if w.WordDivisor > 0 {
		score += float64(min(len(tokens), w.WordCap)) / w.WordDivisor
	}
	return score
}

func containsAny(tokens []string, pred func(string) bool) bool {
	for _, t := range tokens {
		if pred(t) {
			return true
		}
	}
	return false
}

func hasWord(list []string, w string) bool {
	for _, x := range list {
		if x == w {
			return true
		}
	}
	return false
}

func hasSuffix(list []string, w string) bool {
	for _, x := range list {
		if strings.HasSuffix(w, x) {
			return true
		}
	}
	return false
}
