package store

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	_ "modernc.org/sqlite"

	"github.com/joelkehle/ideaforge/internal/analysis"
)

// SQLiteStore serves reads from an embedded Memory store and writes every
// change through to SQLite. Memory only changes once the transaction commits.
type SQLiteStore struct {
	*Memory
	db *sqlx.DB
}

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS history_entries (
	id         TEXT PRIMARY KEY,
	created_at TEXT NOT NULL,
	form_data  TEXT NOT NULL,
	analysis   TEXT NOT NULL,
	snapshot   TEXT NOT NULL DEFAULT ''
);

CREATE TABLE IF NOT EXISTS history_meta (
	key   TEXT PRIMARY KEY,
	value TEXT NOT NULL DEFAULT ''
);
`

type entryRow struct {
	ID        string `db:"id"`
	CreatedAt string `db:"created_at"`
	FormData  string `db:"form_data"`
	Analysis  string `db:"analysis"`
	Snapshot  string `db:"snapshot"`
}

func NewSQLiteStore(dbPath string, opts Options) (*SQLiteStore, error) {
	db, err := sqlx.Open("sqlite", dbPath+"?_pragma=journal_mode(wal)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	db.SetMaxOpenConns(1)
	if _, err := db.Exec(sqliteSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("create schema: %w", err)
	}
	s := &SQLiteStore{Memory: NewMemory(opts), db: db}
	if err := s.load(); err != nil {
		db.Close()
		return nil, fmt.Errorf("load history: %w", err)
	}
	return s, nil
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) load() error {
	var rows []entryRow
	if err := s.db.Select(&rows, "SELECT id, created_at, form_data, analysis, snapshot FROM history_entries ORDER BY rowid"); err != nil {
		return err
	}
	st := state{Entries: make([]Entry, 0, len(rows))}
	for _, r := range rows {
		e := Entry{ID: r.ID}
		e.Timestamp, _ = time.Parse(time.RFC3339Nano, r.CreatedAt)
		if err := json.Unmarshal([]byte(r.FormData), &e.FormData); err != nil {
			return fmt.Errorf("entry %s form data: %w", r.ID, err)
		}
		if err := json.Unmarshal([]byte(r.Analysis), &e.AnalysisResult); err != nil {
			return fmt.Errorf("entry %s analysis: %w", r.ID, err)
		}
		if r.Snapshot != "" {
			e.Snapshot = &analysis.MarketSnapshot{}
			if err := json.Unmarshal([]byte(r.Snapshot), e.Snapshot); err != nil {
				return fmt.Errorf("entry %s snapshot: %w", r.ID, err)
			}
		}
		st.Entries = append(st.Entries, e)
	}
	var latest []string
	if err := s.db.Select(&latest, "SELECT value FROM history_meta WHERE key = 'latest_id'"); err != nil {
		return err
	}
	if len(latest) > 0 {
		st.LatestID = latest[0]
	}
	s.restore(st)
	return nil
}

func (s *SQLiteStore) Save(ctx context.Context, sub analysis.Submission, a analysis.Analysis, snap *analysis.MarketSnapshot) (Entry, error) {
	return s.save(ctx, sub, a, snap, s.persist)
}

func (s *SQLiteStore) Delete(ctx context.Context, id string) error {
	return s.apply(ctx, removeEntry(id), s.persist)
}

func (s *SQLiteStore) Clear(ctx context.Context) error {
	return s.apply(ctx, clearEntries, s.persist)
}

// persist writes the difference between prev and next in one transaction.
func (s *SQLiteStore) persist(ctx context.Context, prev, next state) error {
	kept := make(map[string]bool, len(next.Entries))
	for _, e := range next.Entries {
		kept[e.ID] = true
	}
	had := make(map[string]bool, len(prev.Entries))
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback()
	for _, e := range prev.Entries {
		had[e.ID] = true
		if kept[e.ID] {
			continue
		}
		if _, err := tx.ExecContext(ctx, "DELETE FROM history_entries WHERE id = ?", e.ID); err != nil {
			return fmt.Errorf("delete entry: %w", err)
		}
	}
	for _, e := range next.Entries {
		if had[e.ID] {
			continue
		}
		row, err := toRow(e)
		if err != nil {
			return err
		}
		if _, err := tx.NamedExecContext(ctx, "INSERT INTO history_entries (id, created_at, form_data, analysis, snapshot) VALUES (:id, :created_at, :form_data, :analysis, :snapshot)", row); err != nil {
			return fmt.Errorf("insert entry: %w", err)
		}
	}
	if err := setLatest(ctx, tx, next.LatestID); err != nil {
		return err
	}
	return tx.Commit()
}

func toRow(e Entry) (entryRow, error) {
	form, err := json.Marshal(e.FormData)
	if err != nil {
		return entryRow{}, err
	}
	body, err := json.Marshal(e.AnalysisResult)
	if err != nil {
		return entryRow{}, err
	}
	row := entryRow{
		ID:        e.ID,
		CreatedAt: e.Timestamp.Format(time.RFC3339Nano),
		FormData:  string(form),
		Analysis:  string(body),
	}
	if e.Snapshot != nil {
		snap, err := json.Marshal(e.Snapshot)
		if err != nil {
			return entryRow{}, err
		}
		row.Snapshot = string(snap)
	}
	return row, nil
}

func setLatest(ctx context.Context, tx *sqlx.Tx, id string) error {
	_, err := tx.ExecContext(ctx, "INSERT INTO history_meta (key, value) VALUES ('latest_id', ?) ON CONFLICT(key) DO UPDATE SET value = excluded.value", id)
	if err != nil {
		return fmt.Errorf("set latest: %w", err)
	}
	return nil
}
