// Package apkgtest builds real study packages for tests.
package apkgtest

import (
	"archive/zip"
	"bytes"
	"database/sql"
	"encoding/json"
	"os"
	"path/filepath"
	"slices"
	"strconv"
	"strings"
	"testing"

	"github.com/conorfennell/knoldeck/internal/domain"
	_ "modernc.org/sqlite" // Registers the sqlite driver
)

// Note is a note row plus the deck its single card is filed in.
type Note struct {
	ID         int64
	TemplateID int64
	DeckID     int64
	Fields     []string
	Tags       string
}

// Package describes the archive Build produces. The zero value builds an
// empty but valid package.
type Package struct {
	// CollectionName defaults to collection.anki2.
	CollectionName string
	// Collection, when set, is stored verbatim instead of a generated database.
	Collection []byte
	// Schema18 stores templates and decks in their own tables and leaves
	// col.models and col.decks empty.
	Schema18 bool

	Templates []domain.Template
	Decks     []domain.Deck
	Notes     []Note

	// Media maps original filenames to content. Entries are stored under
	// numeric keys and listed in the generated manifest.
	Media map[string][]byte
	// Manifest, when set, replaces the generated manifest.
	Manifest   []byte
	NoManifest bool
	// Files are extra raw entries.
	Files map[string][]byte
}

// Basic is the two-field template most tests start from.
var Basic = domain.Template{ID: 1, Name: "Basic", FieldNames: []string{"Front", "Back"}}

// Default is the deck most tests file notes in.
var Default = domain.Deck{ID: 1, Name: "Default"}

// Build writes the package and returns the archive bytes.
func (p Package) Build(tb testing.TB) []byte {
	tb.Helper()

	name := p.CollectionName
	if name == "" {
		name = "collection.anki2"
	}
	collection := p.Collection
	if collection == nil {
		collection = p.buildCollection(tb)
	}

	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	write := func(entry string, data []byte) {
		w, err := zw.Create(entry)
		if err != nil {
			tb.Fatalf("apkgtest: create entry %s: %v", entry, err)
		}
		if _, err := w.Write(data); err != nil {
			tb.Fatalf("apkgtest: write entry %s: %v", entry, err)
		}
	}

	write(name, collection)

	names := make([]string, 0, len(p.Media))
	for n := range p.Media {
		names = append(names, n)
	}
	slices.Sort(names)
	manifest := make(map[string]string, len(names))
	for i, n := range names {
		key := strconv.Itoa(i)
		manifest[key] = n
		write(key, p.Media[n])
	}

	if !p.NoManifest {
		raw := p.Manifest
		if raw == nil {
			var err error
			if raw, err = json.Marshal(manifest); err != nil {
				tb.Fatalf("apkgtest: encode manifest: %v", err)
			}
		}
		write("media", raw)
	}

	extra := make([]string, 0, len(p.Files))
	for n := range p.Files {
		extra = append(extra, n)
	}
	slices.Sort(extra)
	for _, n := range extra {
		write(n, p.Files[n])
	}

	if err := zw.Close(); err != nil {
		tb.Fatalf("apkgtest: close archive: %v", err)
	}
	return buf.Bytes()
}

// WriteFile builds the package into dir and returns its path.
func (p Package) WriteFile(tb testing.TB, dir, name string) string {
	tb.Helper()
	path := filepath.Join(dir, name)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		tb.Fatalf("apkgtest: mkdir %s: %v", dir, err)
	}
	if err := os.WriteFile(path, p.Build(tb), 0o644); err != nil {
		tb.Fatalf("apkgtest: write %s: %v", path, err)
	}
	return path
}

func (p Package) buildCollection(tb testing.TB) []byte {
	tb.Helper()
	path := filepath.Join(tb.TempDir(), "collection.db")
	db, err := sql.Open("sqlite", path)
	if err != nil {
		tb.Fatalf("apkgtest: open collection: %v", err)
	}

	exec := func(query string, args ...any) {
		if _, err := db.Exec(query, args...); err != nil {
			db.Close()
			tb.Fatalf("apkgtest: exec %q: %v", query, err)
		}
	}

	exec(`CREATE TABLE col (id INTEGER PRIMARY KEY, crt INTEGER NOT NULL, models TEXT NOT NULL, decks TEXT NOT NULL)`)
	exec(`CREATE TABLE notes (id INTEGER PRIMARY KEY, guid TEXT NOT NULL, mid INTEGER NOT NULL, flds TEXT NOT NULL, tags TEXT NOT NULL)`)
	exec(`CREATE TABLE cards (id INTEGER PRIMARY KEY, nid INTEGER NOT NULL, did INTEGER NOT NULL, ord INTEGER NOT NULL)`)

	if p.Schema18 {
		exec(`CREATE TABLE notetypes (id INTEGER PRIMARY KEY, name TEXT NOT NULL)`)
		exec(`CREATE TABLE fields (ntid INTEGER NOT NULL, ord INTEGER NOT NULL, name TEXT NOT NULL, PRIMARY KEY (ntid, ord))`)
		exec(`CREATE TABLE decks (id INTEGER PRIMARY KEY, name TEXT NOT NULL)`)
		exec(`INSERT INTO col (id, crt, models, decks) VALUES (1, 0, '', '')`)
		for _, t := range p.Templates {
			exec(`INSERT INTO notetypes (id, name) VALUES (?, ?)`, t.ID, t.Name)
			for ord, f := range t.FieldNames {
				exec(`INSERT INTO fields (ntid, ord, name) VALUES (?, ?, ?)`, t.ID, ord, f)
			}
		}
		for _, d := range p.Decks {
			exec(`INSERT INTO decks (id, name) VALUES (?, ?)`, d.ID, strings.ReplaceAll(d.Name, "::", domain.FieldSeparator))
		}
	} else {
		exec(`INSERT INTO col (id, crt, models, decks) VALUES (1, 0, ?, ?)`, modelsJSON(tb, p.Templates), decksJSON(tb, p.Decks))
	}

	for i, n := range p.Notes {
		exec(`INSERT INTO notes (id, guid, mid, flds, tags) VALUES (?, ?, ?, ?, ?)`,
			n.ID, "guid"+strconv.FormatInt(n.ID, 10), n.TemplateID, strings.Join(n.Fields, domain.FieldSeparator), n.Tags)
		exec(`INSERT INTO cards (id, nid, did, ord) VALUES (?, ?, ?, 0)`, int64(i+1), n.ID, n.DeckID)
	}

	if err := db.Close(); err != nil {
		tb.Fatalf("apkgtest: close collection: %v", err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		tb.Fatalf("apkgtest: read collection: %v", err)
	}
	return data
}

func modelsJSON(tb testing.TB, templates []domain.Template) string {
	type field struct {
		Name string `json:"name"`
		Ord  int    `json:"ord"`
	}
	type model struct {
		ID     int64   `json:"id"`
		Name   string  `json:"name"`
		Fields []field `json:"flds"`
	}
	models := make(map[string]model, len(templates))
	for _, t := range templates {
		m := model{ID: t.ID, Name: t.Name}
		for ord, f := range t.FieldNames {
			m.Fields = append(m.Fields, field{Name: f, Ord: ord})
		}
		models[strconv.FormatInt(t.ID, 10)] = m
	}
	return mustJSON(tb, models)
}

func decksJSON(tb testing.TB, decks []domain.Deck) string {
	type deck struct {
		ID   int64  `json:"id"`
		Name string `json:"name"`
	}
	out := make(map[string]deck, len(decks))
	for _, d := range decks {
		out[strconv.FormatInt(d.ID, 10)] = deck{ID: d.ID, Name: d.Name}
	}
	return mustJSON(tb, out)
}

func mustJSON(tb testing.TB, v any) string {
	raw, err := json.Marshal(v)
	if err != nil {
		tb.Fatalf("apkgtest: encode json: %v", err)
	}
	return string(raw)
}
