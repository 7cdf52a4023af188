// Package anki writes Anki deck packages (.apkg): a zipped SQLite collection
// plus a media manifest, importable by Anki desktop and mobile.
package anki

import (
	"archive/zip"
	"context"
	"database/sql"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"
)

const (
	collectionName = "collection.anki2"
	mediaName      = "media"

	// notesPerBatch bounds the size of one insert transaction.
	notesPerBatch = 100
)

// Package is a deck, its note type and its notes, ready to be written as an
// .apkg file.
type Package struct {
	Deck  Deck
	Model Model
	Notes []Note

	// Now stamps the collection. Defaults to time.Now.
	Now func() time.Time
}

func (p *Package) validate() error {
	if err := p.Model.Validate(); err != nil {
		return err
	}
	if p.Deck.ID <= 0 {
		return fmt.Errorf("deck %q: id must be positive", p.Deck.Name)
	}
	seen := make(map[string]int, len(p.Notes))
	for i, n := range p.Notes {
		if len(n.Fields) != len(p.Model.Fields) {
			return fmt.Errorf("note %d: %d fields, model %q has %d", i, len(n.Fields), p.Model.Name, len(p.Model.Fields))
		}
		g := n.guid()
		if j, dup := seen[g]; dup {
			return fmt.Errorf("notes %d and %d share guid %s", j, i, g)
		}
		seen[g] = i
	}
	return nil
}

// WriteToFile writes the package to path. The collection database is built
// in a temporary directory, zipped next to path and renamed into place, so a
// failed run never leaves a partial deck behind.
func (p *Package) WriteToFile(ctx context.Context, path string) error {
	if err := p.validate(); err != nil {
		return err
	}
	now := time.Now
	if p.Now != nil {
		now = p.Now
	}

	work, err := os.MkdirTemp("", "unpops-apkg-*")
	if err != nil {
		return fmt.Errorf("create work dir: %w", err)
	}
	defer os.RemoveAll(work)

	colPath := filepath.Join(work, collectionName)
	if err := p.buildCollection(ctx, colPath, now()); err != nil {
		return err
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create output dir: %w", err)
	}
	tmp := path + ".tmp"
	if err := writeZip(tmp, colPath); err != nil {
		_ = os.Remove(tmp)
		return err
	}
	if err := os.Rename(tmp, path); err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("replace %s: %w", path, err)
	}
	return nil
}

func (p *Package) buildCollection(ctx context.Context, colPath string, now time.Time) error {
	db, err := sql.Open("sqlite3", colPath)
	if err != nil {
		return fmt.Errorf("open collection: %w", err)
	}
	defer db.Close()
	db.SetMaxOpenConns(1)

	if err := p.Populate(ctx, db, now); err != nil {
		return err
	}
	return db.Close()
}

// Populate creates the schema on db and inserts the collection, notes and
// cards.
func (p *Package) Populate(ctx context.Context, db *sql.DB, now time.Time) error {
	if err := p.validate(); err != nil {
		return err
	}
	if err := InitDB(db); err != nil {
		return fmt.Errorf("init collection: %w", err)
	}

	col, err := newCollection(p.Deck, p.Model, now.Unix())
	if err != nil {
		return err
	}
	if err := InsertCollection(db, col); err != nil {
		return err
	}

	bw := NewBatchWriter(db, notesPerBatch)
	baseID := now.UnixMilli()
	mod := now.Unix()
	var nextID int64
	for i, n := range p.Notes {
		noteID := baseID + nextID
		nextID++
		row := NoteRow{
			ID:       noteID,
			GUID:     n.guid(),
			ModelID:  p.Model.ID,
			Modified: mod,
			Tags:     n.Tags,
			Fields:   n.Fields,
			SortText: n.Fields[p.Model.SortField],
		}
		cards := make([]CardRow, len(p.Model.Templates))
		for ord := range p.Model.Templates {
			cards[ord] = CardRow{
				ID:       baseID + nextID,
				NoteID:   noteID,
				DeckID:   p.Deck.ID,
				Ord:      ord,
				Modified: mod,
				Due:      int64(i + 1),
			}
			nextID++
		}
		err := bw.Submit(ctx, func(ctx context.Context, tx *sql.Tx) error {
			if err := InsertNote(tx, row); err != nil {
				return err
			}
			for _, c := range cards {
				if err := InsertCard(tx, c); err != nil {
					return err
				}
			}
			return nil
		})
		if err != nil {
			return err
		}
	}
	return bw.Close(ctx)
}

func writeZip(dst, colPath string) error {
	f, err := os.Create(dst)
	if err != nil {
		return fmt.Errorf("create package: %w", err)
	}
	defer f.Close()

	zw := zip.NewWriter(f)
	if err := addFile(zw, collectionName, colPath); err != nil {
		return err
	}
	w, err := zw.Create(mediaName)
	if err != nil {
		return fmt.Errorf("add media manifest: %w", err)
	}
	if _, err := io.WriteString(w, "{}"); err != nil {
		return fmt.Errorf("add media manifest: %w", err)
	}
	if err := zw.Close(); err != nil {
		return fmt.Errorf("finish package: %w", err)
	}
	return f.Close()
}

func addFile(zw *zip.Writer, name, src string) error {
	in, err := os.Open(src)
	if err != nil {
		return fmt.Errorf("open %s: %w", name, err)
	}
	defer in.Close()
	w, err := zw.Create(name)
	if err != nil {
		return fmt.Errorf("add %s: %w", name, err)
	}
	if _, err := io.Copy(w, in); err != nil {
		return fmt.Errorf("add %s: %w", name, err)
	}
	return nil
}
