package domain

import (
	"strings"
	"time"
)

// FieldSeparator splits the sub-fields of a note's field blob.
const FieldSeparator = "\x1f"

// RawNote is one row of the notes table of an imported collection.
type RawNote struct {
	ID         int64
	TemplateID int64
	Fields     string
	Tags       string
}

// SplitFields returns the ordered field values of the note.
func (n RawNote) SplitFields() []string {
	return strings.Split(n.Fields, FieldSeparator)
}

// TagList returns the note's tags with empty tokens dropped.
func (n RawNote) TagList() []string {
	return strings.Fields(n.Tags)
}

// Template declares the ordered field names shared by a family of notes.
type Template struct {
	ID         int64
	Name       string
	FieldNames []string
}

// Deck is a deck descriptor from an imported collection.
type Deck struct {
	ID   int64
	Name string
}

// MediaKind tells image assets from audio assets.
type MediaKind string

const (
	MediaImage MediaKind = "image"
	MediaAudio MediaKind = "audio"
)

// MediaAsset is a binary resolved from a note's media reference.
type MediaAsset struct {
	Name        string
	ContentType string
	Kind        MediaKind
	Data        []byte
}

// Size returns the asset's length in bytes.
func (a *MediaAsset) Size() int {
	if a == nil {
		return 0
	}
	return len(a.Data)
}

// NormalizedCard is the reviewable form of one imported note.
type NormalizedCard struct {
	ID       int64
	Front    string
	Back     string
	Image    *MediaAsset
	Audio    *MediaAsset
	Tags     []string
	DeckID   int64
	DeckName string
}

// DeckSummary is the per-deck aggregate produced by an import.
type DeckSummary struct {
	DeckID     int64
	Name       string
	CardCount  int
	ImportedAt time.Time
}

// ReviewLog records a single review event for a card.
// Quality is the SM-2 grade from 0 (blackout) to 5 (perfect recall).
type ReviewLog struct {
	CardID     int64
	Quality    int
	ReviewedAt time.Time
	Interval   int
	EaseFactor float64
}
