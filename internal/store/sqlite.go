package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"

	"github.com/rotisserie/eris"
	_ "modernc.org/sqlite"

	"github.com/gravi-labs/retail-verify/internal/model"
)

// SQLiteStore implements Store using modernc.org/sqlite.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLite opens a SQLite database at the given path and configures WAL mode.
func NewSQLite(dsn string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: open")
	}
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, eris.Wrapf(err, "sqlite: exec %s", pragma)
		}
	}
	return &SQLiteStore{db: db}, nil
}

const sqliteMigration = `
CREATE TABLE IF NOT EXISTS analysis_records (
	session_id     TEXT PRIMARY KEY,
	schema_version TEXT NOT NULL,
	place_id       TEXT,
	payload        TEXT NOT NULL,
	created_at     DATETIME NOT NULL DEFAULT (datetime('now'))
);

CREATE TABLE IF NOT EXISTS bulk_runs (
	id              TEXT PRIMARY KEY,
	source_url      TEXT NOT NULL,
	total_processed INTEGER NOT NULL,
	results         TEXT NOT NULL,
	created_at      DATETIME NOT NULL DEFAULT (datetime('now'))
);

CREATE INDEX IF NOT EXISTS idx_analysis_records_place_id ON analysis_records(place_id);
CREATE INDEX IF NOT EXISTS idx_analysis_records_created_at ON analysis_records(created_at);
`

func (s *SQLiteStore) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, sqliteMigration)
	return eris.Wrap(err, "sqlite: migrate")
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) SaveRecord(ctx context.Context, record *model.AnalysisRecord) error {
	payload, err := record.Payload()
	if err != nil {
		return eris.Wrap(err, "sqlite: record payload")
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO analysis_records (session_id, schema_version, place_id, payload, created_at) VALUES (?, ?, ?, ?, ?)`,
		record.SessionID, string(record.Version), recordPlaceID(record), string(payload), record.CreatedAt,
	)
	return eris.Wrapf(err, "sqlite: insert record %s", record.SessionID)
}

func (s *SQLiteStore) GetRecord(ctx context.Context, sessionID string) (*model.AnalysisRecord, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT session_id, schema_version, payload, created_at FROM analysis_records WHERE session_id = ?`,
		sessionID,
	)
	return scanRecord(row)
}

func (s *SQLiteStore) ListRecords(ctx context.Context, filter RecordFilter) ([]model.AnalysisRecord, error) {
	query := `SELECT session_id, schema_version, payload, created_at FROM analysis_records WHERE 1=1`
	var args []any

	if filter.Version != "" {
		query += ` AND schema_version = ?`
		args = append(args, string(filter.Version))
	}
	if filter.PlaceID != "" {
		query += ` AND place_id = ?`
		args = append(args, filter.PlaceID)
	}
	query += ` ORDER BY created_at DESC`

	limit := filter.Limit
	if limit <= 0 {
		limit = 100
	}
	query += ` LIMIT ?`
	args = append(args, limit)

	if filter.Offset > 0 {
		query += ` OFFSET ?`
		args = append(args, filter.Offset)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list records")
	}
	defer rows.Close()

	var records []model.AnalysisRecord
	for rows.Next() {
		r, err := scanRecord(rows)
		if err != nil {
			return nil, err
		}
		records = append(records, *r)
	}
	return records, eris.Wrap(rows.Err(), "sqlite: list records iterate")
}

func (s *SQLiteStore) SaveBulkRun(ctx context.Context, run *model.BulkRun) error {
	resultsJSON, err := json.Marshal(run.Results)
	if err != nil {
		return eris.Wrap(err, "sqlite: marshal bulk results")
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO bulk_runs (id, source_url, total_processed, results, created_at) VALUES (?, ?, ?, ?, ?)`,
		run.ID, run.SourceURL, run.TotalProcessed, string(resultsJSON), run.CreatedAt,
	)
	return eris.Wrapf(err, "sqlite: insert bulk run %s", run.ID)
}

func (s *SQLiteStore) GetBulkRun(ctx context.Context, id string) (*model.BulkRun, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, source_url, total_processed, results, created_at FROM bulk_runs WHERE id = ?`,
		id,
	)

	var run model.BulkRun
	var resultsJSON string
	err := row.Scan(&run.ID, &run.SourceURL, &run.TotalProcessed, &resultsJSON, &run.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, eris.Wrapf(ErrRecordNotFound, "bulk run %s", id)
	}
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: get bulk run %s", id)
	}
	if err := json.Unmarshal([]byte(resultsJSON), &run.Results); err != nil {
		return nil, eris.Wrap(err, "sqlite: unmarshal bulk results")
	}
	return &run, nil
}

// helpers

type scannable interface {
	Scan(dest ...any) error
}

func scanRecord(row scannable) (*model.AnalysisRecord, error) {
	var sessionID, version, payload string
	var createdAt time.Time

	err := row.Scan(&sessionID, &version, &payload, &createdAt)
	if err == sql.ErrNoRows {
		return nil, eris.Wrapf(ErrRecordNotFound, "session %s", sessionID)
	}
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: scan record")
	}

	return model.DecodeRecord(sessionID, model.SchemaVersion(version), []byte(payload), createdAt)
}

// recordPlaceID extracts the indexed place id, empty for v1 records which
// carry no provider id.
func recordPlaceID(record *model.AnalysisRecord) string {
	if record.V2 != nil {
		return record.V2.PlaceIdentityLock.PlaceID
	}
	return ""
}
