// Package store is the session feature store: one survey session is a
// directory holding a single sqlite database plus an audio/ tree of
// date-bucketed sound note folders. Tables expose generic records so the
// merger can work schema-agnostically; every write happens inside an
// explicit transaction.
package store

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	_ "modernc.org/sqlite"
)

// DatabaseFileName is the single database inside a session directory.
const DatabaseFileName = "survey.db"

// AudioDirName holds date-named (YYYYMMDD) subfolders of sound notes.
const AudioDirName = "audio"

// TimeLayout is the dateTime format used across every table, second
// precision, sortable as text.
const TimeLayout = "2006-01-02 15:04:05"

// Dynamic tables are event logs appended to during active observation.
var DynamicTables = []string{"environment", "sightings", "followers"}

// GPSTable is the position track, merged by minute-bucket deduplication.
const GPSTable = "gps"

// StaticTables hold reference data assumed identical across sessions.
var StaticTables = []string{
	"species", "observers", "survey", "strate", "transect",
	"plateform", "boat", "survey_type", "behaviour_species",
}

// Session is an open survey session directory.
type Session struct {
	Dir string
	db  *sql.DB
}

// Open opens an existing session directory.
func Open(dir string) (*Session, error) {
	path := filepath.Join(dir, DatabaseFileName)
	if _, err := os.Stat(path); err != nil {
		return nil, fmt.Errorf("opening session %s: %w", dir, err)
	}
	return open(dir, path)
}

// Create initializes a new session directory: database with the survey
// schema and an empty audio tree. The directory may already exist.
func Create(dir string) (*Session, error) {
	if err := os.MkdirAll(filepath.Join(dir, AudioDirName), 0o755); err != nil {
		return nil, fmt.Errorf("creating session %s: %w", dir, err)
	}
	s, err := open(dir, filepath.Join(dir, DatabaseFileName))
	if err != nil {
		return nil, err
	}
	if err := s.ensureSchema(); err != nil {
		s.Close()
		return nil, err
	}
	return s, nil
}

func open(dir, path string) (*Session, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("opening session database: %w", err)
	}
	_, _ = db.Exec("PRAGMA journal_mode=WAL")
	_, _ = db.Exec("PRAGMA synchronous=NORMAL")
	return &Session{Dir: dir, db: db}, nil
}

// Close closes the underlying database.
func (s *Session) Close() error {
	return s.db.Close()
}

// AudioDir returns the session's audio root.
func (s *Session) AudioDir() string {
	return filepath.Join(s.Dir, AudioDirName)
}

// Table returns a handle on one table. The name must come from the known
// table lists; it is interpolated into SQL.
func (s *Session) Table(name string) *Table {
	return &Table{s: s, name: name}
}

// Record is one feature: its fid plus every other attribute as scanned
// text. Invalid entries represent SQL NULL.
type Record struct {
	FID   int64
	Attrs map[string]sql.NullString
}

// IdentityKey serializes the non-fid attributes (dateTime included, second
// precision) into a deterministic string used for merge deduplication.
func (r Record) IdentityKey() string {
	keys := make([]string, 0, len(r.Attrs))
	for k := range r.Attrs {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	var b strings.Builder
	for _, k := range keys {
		v := r.Attrs[k]
		b.WriteString(k)
		b.WriteByte('=')
		if v.Valid {
			b.WriteString(v.String)
		} else {
			b.WriteString("\x00")
		}
		b.WriteByte('\x1f')
	}
	return b.String()
}

// Table is a handle on one session table.
type Table struct {
	s    *Session
	name string
}

// Name returns the table name.
func (t *Table) Name() string { return t.name }

// Columns lists the non-fid column names in declaration order.
func (t *Table) Columns() ([]string, error) {
	rows, err := t.s.db.Query(fmt.Sprintf("SELECT * FROM %s LIMIT 0", t.name))
	if err != nil {
		return nil, fmt.Errorf("describing table %s: %w", t.name, err)
	}
	defer rows.Close()
	all, err := rows.Columns()
	if err != nil {
		return nil, fmt.Errorf("describing table %s: %w", t.name, err)
	}
	cols := make([]string, 0, len(all))
	for _, c := range all {
		if c != "fid" {
			cols = append(cols, c)
		}
	}
	return cols, nil
}

// Features returns records matching the optional filter, in the given order
// (fid order when orderBy is empty, the table's natural creation order).
func (t *Table) Features(filter, orderBy string, args ...any) ([]Record, error) {
	q := "SELECT * FROM " + t.name
	if filter != "" {
		q += " WHERE " + filter
	}
	if orderBy == "" {
		orderBy = "fid"
	}
	q += " ORDER BY " + orderBy

	rows, err := t.s.db.Query(q, args...)
	if err != nil {
		return nil, fmt.Errorf("querying %s: %w", t.name, err)
	}
	defer rows.Close()

	cols, err := rows.Columns()
	if err != nil {
		return nil, fmt.Errorf("querying %s: %w", t.name, err)
	}

	var out []Record
	for rows.Next() {
		vals := make([]any, len(cols))
		var fid int64
		cells := make([]sql.NullString, len(cols))
		for i, c := range cols {
			if c == "fid" {
				vals[i] = &fid
			} else {
				vals[i] = &cells[i]
			}
		}
		if err := rows.Scan(vals...); err != nil {
			return nil, fmt.Errorf("scanning %s: %w", t.name, err)
		}
		rec := Record{FID: fid, Attrs: make(map[string]sql.NullString, len(cols)-1)}
		for i, c := range cols {
			if c != "fid" {
				rec.Attrs[c] = cells[i]
			}
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

// AddFeature inserts a record and returns its assigned fid. When rec.FID is
// non-zero it is inserted verbatim (the merger renumbers fids itself);
// otherwise sqlite assigns the next one.
func (t *Table) AddFeature(rec Record) (int64, error) {
	cols := make([]string, 0, len(rec.Attrs)+1)
	vals := make([]any, 0, len(rec.Attrs)+1)
	if rec.FID != 0 {
		cols = append(cols, "fid")
		vals = append(vals, rec.FID)
	}
	keys := make([]string, 0, len(rec.Attrs))
	for k := range rec.Attrs {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		cols = append(cols, k)
		vals = append(vals, rec.Attrs[k])
	}

	q := fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s)",
		t.name, strings.Join(cols, ", "), placeholders(len(cols)))

	tx, err := t.s.db.Begin()
	if err != nil {
		return 0, fmt.Errorf("inserting into %s: %w", t.name, err)
	}
	res, err := tx.Exec(q, vals...)
	if err != nil {
		tx.Rollback()
		return 0, fmt.Errorf("inserting into %s: %w", t.name, err)
	}
	fid, err := res.LastInsertId()
	if err != nil {
		tx.Rollback()
		return 0, fmt.Errorf("inserting into %s: %w", t.name, err)
	}
	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("inserting into %s: %w", t.name, err)
	}
	return fid, nil
}

// ChangeAttribute updates one field of one record.
func (t *Table) ChangeAttribute(fid int64, field string, value any) error {
	tx, err := t.s.db.Begin()
	if err != nil {
		return fmt.Errorf("updating %s: %w", t.name, err)
	}
	q := fmt.Sprintf("UPDATE %s SET %s = ? WHERE fid = ?", t.name, field)
	if _, err := tx.Exec(q, value, fid); err != nil {
		tx.Rollback()
		return fmt.Errorf("updating %s fid=%d: %w", t.name, fid, err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("updating %s fid=%d: %w", t.name, fid, err)
	}
	return nil
}

// MaxFID returns the highest assigned fid, 0 for an empty table.
func (t *Table) MaxFID() (int64, error) {
	var fid sql.NullInt64
	err := t.s.db.QueryRow("SELECT MAX(fid) FROM " + t.name).Scan(&fid)
	if err != nil {
		return 0, fmt.Errorf("reading max fid of %s: %w", t.name, err)
	}
	return fid.Int64, nil
}

// Count counts records matching the optional filter.
func (t *Table) Count(filter string, args ...any) (int, error) {
	q := "SELECT COUNT(*) FROM " + t.name
	if filter != "" {
		q += " WHERE " + filter
	}
	var n int
	if err := t.s.db.QueryRow(q, args...).Scan(&n); err != nil {
		return 0, fmt.Errorf("counting %s: %w", t.name, err)
	}
	return n, nil
}

// IsEmpty reports whether the table has no records.
func (t *Table) IsEmpty() (bool, error) {
	n, err := t.Count("")
	return n == 0, err
}

func placeholders(n int) string {
	return strings.TrimSuffix(strings.Repeat("?, ", n), ", ")
}
