package anki

import (
	"database/sql"
	"fmt"
	"strings"
)

// DBExecutor is an interface that allows methods to accept either *sql.DB or *sql.Tx
type DBExecutor interface {
	Exec(query string, args ...interface{}) (sql.Result, error)
	Query(query string, args ...interface{}) (*sql.Rows, error)
	QueryRow(query string, args ...interface{}) *sql.Row
}

// InsertCollection writes the col row. A collection holds exactly one.
func InsertCollection(db DBExecutor, c Collection) error {
	_, err := db.Exec(`INSERT INTO col (id, crt, mod, scm, ver, dty, usn, ls, conf, models, decks, dconf, tags)
		VALUES (1, ?, ?, ?, 11, 0, 0, 0, ?, ?, ?, ?, ?)`,
		c.Created, c.Modified, c.Modified, c.Conf, c.Models, c.Decks, c.DConf, c.Tags)
	if err != nil {
		return fmt.Errorf("insert col: %w", err)
	}
	return nil
}

// NoteRow is a notes table row.
type NoteRow struct {
	ID       int64
	GUID     string
	ModelID  int64
	Modified int64
	Tags     []string
	Fields   []string
	SortText string
}

// InsertNote writes a note. Fields are joined with the 0x1f separator Anki
// expects and the checksum is computed from SortText.
func InsertNote(db DBExecutor, n NoteRow) error {
	if strings.TrimSpace(n.GUID) == "" {
		return fmt.Errorf("note %d: guid must be non-empty", n.ID)
	}
	_, err := db.Exec(`INSERT INTO notes (id, guid, mid, mod, usn, tags, flds, sfld, csum, flags, data)
		VALUES (?, ?, ?, ?, -1, ?, ?, ?, ?, 0, '')`,
		n.ID, n.GUID, n.ModelID, n.Modified, formatTags(n.Tags),
		strings.Join(n.Fields, "\x1f"), n.SortText, fieldChecksum(n.SortText))
	if err != nil {
		return fmt.Errorf("insert note %s: %w", n.GUID, err)
	}
	return nil
}

// CardRow is a cards table row for a new, unstudied card.
type CardRow struct {
	ID       int64
	NoteID   int64
	DeckID   int64
	Ord      int
	Modified int64
	Due      int64
}

// InsertCard writes a new card.
func InsertCard(db DBExecutor, c CardRow) error {
	_, err := db.Exec(`INSERT INTO cards (id, nid, did, ord, mod, usn, type, queue, due, ivl, factor, reps, lapses, left, odue, odid, flags, data)
		VALUES (?, ?, ?, ?, ?, -1, 0, 0, ?, 0, 0, 0, 0, 0, 0, 0, 0, '')`,
		c.ID, c.NoteID, c.DeckID, c.Ord, c.Modified, c.Due)
	if err != nil {
		return fmt.Errorf("insert card %d: %w", c.ID, err)
	}
	return nil
}

// CountNotes returns the number of notes in the collection.
func CountNotes(db DBExecutor) (int, error) {
	var n int
	if err := db.QueryRow(`SELECT COUNT(*) FROM notes`).Scan(&n); err != nil {
		return 0, err
	}
	return n, nil
}

// StoredNote is a note as read back from a collection.
type StoredNote struct {
	GUID     string
	Fields   []string
	Tags     []string
	SortText string
	Checksum int64
}

// ListNotes returns the notes in id order.
func ListNotes(db DBExecutor) ([]StoredNote, error) {
	rows, err := db.Query(`SELECT guid, flds, tags, sfld, csum FROM notes ORDER BY id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []StoredNote
	for rows.Next() {
		var n StoredNote
		var flds, tags string
		if err := rows.Scan(&n.GUID, &flds, &tags, &n.SortText, &n.Checksum); err != nil {
			return nil, err
		}
		n.Fields = strings.Split(flds, "\x1f")
		n.Tags = strings.Fields(tags)
		out = append(out, n)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

// formatTags renders tags the way Anki stores them: space separated with a
// leading and trailing space, or empty.
func formatTags(tags []string) string {
	if len(tags) == 0 {
		return ""
	}
	return " " + strings.Join(tags, " ") + " "
}
