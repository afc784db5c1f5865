// Package apkg reads spaced-repetition study packages (.apkg archives).
//
// A package is a zip archive holding one SQLite collection, an optional JSON
// media manifest and the media files themselves, stored under numeric keys.
package apkg

import (
	"archive/zip"
	"bytes"
	"errors"
	"fmt"
	"io"
	"log/slog"

	"github.com/tidwall/gjson"
)

const manifestEntry = "media"

// Collection database names, most specific first. Newer exporters ship a
// stub collection.anki2 next to the real collection.anki21.
var collectionEntries = []string{"collection.anki21", "collection.anki2"}

var (
	// ErrInvalidArchive means the bytes are not a zip archive.
	ErrInvalidArchive = errors.New("apkg: not a valid package archive")
	// ErrMissingCollection means no accepted collection database is present.
	ErrMissingCollection = errors.New("apkg: missing collection")
	// ErrCorruptCollection means the collection exists but cannot be read.
	ErrCorruptCollection = errors.New("apkg: corrupt collection")
	// ErrEntryNotFound is returned by ReadEntry for unknown names.
	ErrEntryNotFound = errors.New("apkg: entry not found")
)

// Manifest maps internal storage keys to original media filenames.
type Manifest map[string]string

// Package is an opened study package. Entries are read lazily.
type Package struct {
	files    map[string]*zip.File
	Manifest Manifest
}

// Read opens a package from its raw bytes. A missing media manifest yields an
// empty one; a malformed manifest is logged and treated as empty.
func Read(data []byte) (*Package, error) {
	zr, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidArchive, err)
	}

	p := &Package{
		files:    make(map[string]*zip.File, len(zr.File)),
		Manifest: Manifest{},
	}
	for _, f := range zr.File {
		if f.FileInfo().IsDir() {
			continue
		}
		p.files[f.Name] = f
	}

	if p.HasEntry(manifestEntry) {
		raw, err := p.ReadEntry(manifestEntry)
		if err != nil {
			slog.Warn("Failed to read media manifest", "error", err)
			return p, nil
		}
		p.Manifest = parseManifest(raw)
	}
	return p, nil
}

func parseManifest(raw []byte) Manifest {
	m := Manifest{}
	if !gjson.ValidBytes(raw) {
		slog.Warn("Media manifest is not valid JSON, ignoring it")
		return m
	}
	gjson.ParseBytes(raw).ForEach(func(key, value gjson.Result) bool {
		if name := value.String(); name != "" {
			m[key.String()] = name
		}
		return true
	})
	return m
}

// Entries returns the names of all archive entries.
func (p *Package) Entries() []string {
	names := make([]string, 0, len(p.files))
	for name := range p.files {
		names = append(names, name)
	}
	return names
}

// HasEntry reports whether the archive holds an entry named name.
func (p *Package) HasEntry(name string) bool {
	_, ok := p.files[name]
	return ok
}

// ReadEntry returns the decompressed bytes of one entry. It is safe for
// concurrent use.
func (p *Package) ReadEntry(name string) ([]byte, error) {
	f, ok := p.files[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrEntryNotFound, name)
	}
	rc, err := f.Open()
	if err != nil {
		return nil, fmt.Errorf("failed to open entry %s: %w", name, err)
	}
	defer rc.Close()

	data, err := io.ReadAll(rc)
	if err != nil {
		return nil, fmt.Errorf("failed to read entry %s: %w", name, err)
	}
	return data, nil
}

// collectionEntry returns the name of the collection database entry.
func (p *Package) collectionEntry() (string, bool) {
	for _, name := range collectionEntries {
		if p.HasEntry(name) {
			return name, true
		}
	}
	return "", false
}
