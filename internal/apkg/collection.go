package apkg

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strconv"
	"strings"

	"github.com/conorfennell/knoldeck/internal/domain"
	"github.com/tidwall/gjson"
	_ "modernc.org/sqlite" // Registers the sqlite driver
)

var requiredTables = []string{"col", "notes", "cards"}

// Collection is the SQLite database embedded in a package. The caller owns
// it and must Close it on every path once extraction is done.
type Collection struct {
	db     *sql.DB
	path   string
	Source string // archive entry the database was read from
}

// OpenCollection materializes the package's collection database and checks
// that it is readable. A missing database wraps ErrMissingCollection and an
// unreadable one wraps ErrCorruptCollection; both abort an import.
func (p *Package) OpenCollection(ctx context.Context) (*Collection, error) {
	name, ok := p.collectionEntry()
	if !ok {
		return nil, fmt.Errorf("%w: expected one of %s", ErrMissingCollection, strings.Join(collectionEntries, ", "))
	}

	data, err := p.ReadEntry(name)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrCorruptCollection, name, err)
	}

	f, err := os.CreateTemp("", "knoldeck-collection-*.db")
	if err != nil {
		return nil, fmt.Errorf("failed to create temporary collection file: %w", err)
	}
	c := &Collection{path: f.Name(), Source: name}
	_, werr := f.Write(data)
	if cerr := f.Close(); werr == nil {
		werr = cerr
	}
	if werr != nil {
		c.Close()
		return nil, fmt.Errorf("failed to write temporary collection file: %w", werr)
	}

	db, err := sql.Open("sqlite", "file:"+filepath.ToSlash(c.path))
	if err != nil {
		c.Close()
		return nil, fmt.Errorf("%w: %s: %v", ErrCorruptCollection, name, err)
	}
	c.db = db

	if err := c.verify(ctx); err != nil {
		c.Close()
		return nil, err
	}
	return c, nil
}

func (c *Collection) verify(ctx context.Context) error {
	for _, table := range requiredTables {
		ok, err := c.hasTable(ctx, table)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return fmt.Errorf("%w: %s: %v", ErrCorruptCollection, c.Source, err)
		}
		if !ok {
			return fmt.Errorf("%w: %s: table %q not found", ErrCorruptCollection, c.Source, table)
		}
	}
	return nil
}

func (c *Collection) hasTable(ctx context.Context, name string) (bool, error) {
	var n int
	err := c.db.QueryRowContext(ctx,
		`SELECT count(*) FROM sqlite_master WHERE type = 'table' AND name = ?`, name,
	).Scan(&n)
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// Close releases the database handle and removes its temporary file. It is
// safe to call more than once.
func (c *Collection) Close() error {
	var errs []error
	if c.db != nil {
		errs = append(errs, c.db.Close())
		c.db = nil
	}
	if c.path != "" {
		if err := os.Remove(c.path); err != nil && !errors.Is(err, os.ErrNotExist) {
			errs = append(errs, err)
		}
		c.path = ""
	}
	return errors.Join(errs...)
}

func (c *Collection) colBlob(ctx context.Context, column string) (string, error) {
	var blob sql.NullString
	err := c.db.QueryRowContext(ctx, "SELECT "+column+" FROM col LIMIT 1").Scan(&blob)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return "", fmt.Errorf("failed to read col.%s: %w", column, err)
	}
	s := strings.TrimSpace(blob.String)
	if s == "{}" {
		return "", nil
	}
	return s, nil
}

// Templates returns every note template keyed by id.
func (c *Collection) Templates(ctx context.Context) (map[int64]domain.Template, error) {
	models, err := c.colBlob(ctx, "models")
	if err != nil {
		return nil, err
	}
	if models == "" {
		if ok, _ := c.hasTable(ctx, "fields"); ok {
			return c.fieldTemplates(ctx)
		}
		return map[int64]domain.Template{}, nil
	}
	if !gjson.Valid(models) {
		return nil, fmt.Errorf("%w: col.models is not valid JSON", ErrCorruptCollection)
	}

	templates := make(map[int64]domain.Template)
	gjson.Parse(models).ForEach(func(key, value gjson.Result) bool {
		id := value.Get("id").Int()
		if id == 0 {
			id, _ = strconv.ParseInt(key.String(), 10, 64)
		}

		type field struct {
			ord  int64
			name string
		}
		var fields []field
		value.Get("flds").ForEach(func(_, f gjson.Result) bool {
			fields = append(fields, field{ord: f.Get("ord").Int(), name: f.Get("name").String()})
			return true
		})
		slices.SortStableFunc(fields, func(a, b field) int { return int(a.ord - b.ord) })

		t := domain.Template{ID: id, Name: value.Get("name").String()}
		for _, f := range fields {
			t.FieldNames = append(t.FieldNames, f.name)
		}
		templates[id] = t
		return true
	})
	return templates, nil
}

// fieldTemplates reads templates from the normalized tables newer
// collections use instead of col.models.
func (c *Collection) fieldTemplates(ctx context.Context) (map[int64]domain.Template, error) {
	rows, err := c.db.QueryContext(ctx, `
		SELECT f.ntid, COALESCE(n.name, ''), f.name
		FROM fields f LEFT JOIN notetypes n ON n.id = f.ntid
		ORDER BY f.ntid, f.ord
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to read fields table: %w", err)
	}
	defer rows.Close()

	templates := make(map[int64]domain.Template)
	for rows.Next() {
		var id int64
		var name, field string
		if err := rows.Scan(&id, &name, &field); err != nil {
			return nil, fmt.Errorf("failed to scan field row: %w", err)
		}
		t := templates[id]
		t.ID, t.Name = id, name
		t.FieldNames = append(t.FieldNames, field)
		templates[id] = t
	}
	return templates, rows.Err()
}

// Decks returns every deck descriptor keyed by id.
func (c *Collection) Decks(ctx context.Context) (map[int64]domain.Deck, error) {
	blob, err := c.colBlob(ctx, "decks")
	if err != nil {
		return nil, err
	}
	if blob == "" {
		if ok, _ := c.hasTable(ctx, "decks"); ok {
			return c.tableDecks(ctx)
		}
		return map[int64]domain.Deck{}, nil
	}
	if !gjson.Valid(blob) {
		return nil, fmt.Errorf("%w: col.decks is not valid JSON", ErrCorruptCollection)
	}

	decks := make(map[int64]domain.Deck)
	gjson.Parse(blob).ForEach(func(key, value gjson.Result) bool {
		id := value.Get("id").Int()
		if id == 0 {
			id, _ = strconv.ParseInt(key.String(), 10, 64)
		}
		decks[id] = domain.Deck{ID: id, Name: value.Get("name").String()}
		return true
	})
	return decks, nil
}

func (c *Collection) tableDecks(ctx context.Context) (map[int64]domain.Deck, error) {
	rows, err := c.db.QueryContext(ctx, `SELECT id, name FROM decks`)
	if err != nil {
		return nil, fmt.Errorf("failed to read decks table: %w", err)
	}
	defer rows.Close()

	decks := make(map[int64]domain.Deck)
	for rows.Next() {
		var d domain.Deck
		if err := rows.Scan(&d.ID, &d.Name); err != nil {
			return nil, fmt.Errorf("failed to scan deck row: %w", err)
		}
		d.Name = strings.ReplaceAll(d.Name, domain.FieldSeparator, "::")
		decks[d.ID] = d
	}
	return decks, rows.Err()
}

// NoteDecks maps each note id to the deck of its first card.
func (c *Collection) NoteDecks(ctx context.Context) (map[int64]int64, error) {
	rows, err := c.db.QueryContext(ctx, `SELECT nid, did FROM cards ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("failed to read cards table: %w", err)
	}
	defer rows.Close()

	links := make(map[int64]int64)
	for rows.Next() {
		var nid, did int64
		if err := rows.Scan(&nid, &did); err != nil {
			return nil, fmt.Errorf("failed to scan card row: %w", err)
		}
		if _, seen := links[nid]; !seen {
			links[nid] = did
		}
	}
	return links, rows.Err()
}

// Notes returns every note in id order.
func (c *Collection) Notes(ctx context.Context) ([]domain.RawNote, error) {
	rows, err := c.db.QueryContext(ctx, `SELECT id, mid, flds, tags FROM notes ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("failed to read notes table: %w", err)
	}
	defer rows.Close()

	var notes []domain.RawNote
	for rows.Next() {
		var n domain.RawNote
		var tags sql.NullString
		if err := rows.Scan(&n.ID, &n.TemplateID, &n.Fields, &tags); err != nil {
			return nil, fmt.Errorf("failed to scan note row: %w", err)
		}
		n.Tags = tags.String
		notes = append(notes, n)
	}
	return notes, rows.Err()
}
