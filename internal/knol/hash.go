// Package knol fingerprints normalized cards by their content.
package knol

import (
	"crypto/sha256"
	"fmt"
	"strings"

	"github.com/conorfennell/knoldeck/internal/domain"
)

// Normalize concatenates the card's content after cleaning each part.
// It trims whitespace, lowercases, and normalizes line endings for each part
// before joining them. Attached media contribute their filenames.
func Normalize(card domain.NormalizedCard) string {
	normalizePart := func(part string) string {
		p := strings.ToLower(part)
		p = strings.TrimSpace(p)
		p = strings.ReplaceAll(p, "\r\n", "\n")
		return p
	}
	mediaName := func(a *domain.MediaAsset) string {
		if a == nil {
			return ""
		}
		return a.Name
	}

	// Parts are joined with a newline so "front" and "back" never
	// collapse into "frontback".
	return strings.Join([]string{
		normalizePart(card.Front),
		normalizePart(card.Back),
		normalizePart(mediaName(card.Image)),
		normalizePart(mediaName(card.Audio)),
	}, "\n")
}

// Hash takes a card, normalizes it, and returns its SHA-256 hash as a hex string.
func Hash(card domain.NormalizedCard) string {
	sum := sha256.Sum256([]byte(Normalize(card)))
	return fmt.Sprintf("%x", sum)
}
