package store

import (
	"context"
	"encoding/json"
	"errors"
	"strconv"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rotisserie/eris"

	"github.com/gravi-labs/retail-verify/internal/model"
)

// PostgresStore implements Store using pgxpool.
type PostgresStore struct {
	pool Pool
}

// preparedStatements lists queries to prepare on each new connection for
// faster execution of the most frequently used store operations.
var preparedStatements = map[string]string{
	"insert_record": `INSERT INTO analysis_records (session_id, schema_version, place_id, payload, created_at) VALUES ($1, $2, $3, $4, $5)`,
	"get_record":    `SELECT session_id, schema_version, payload, created_at FROM analysis_records WHERE session_id = $1`,
	"insert_bulk":   `INSERT INTO bulk_runs (id, source_url, total_processed, results, created_at) VALUES ($1, $2, $3, $4, $5)`,
	"get_bulk":      `SELECT id, source_url, total_processed, results, created_at FROM bulk_runs WHERE id = $1`,
}

// NewPostgres creates a PostgresStore with a connection pool.
func NewPostgres(ctx context.Context, connString string) (*PostgresStore, error) {
	pgxCfg, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: parse config")
	}

	pgxCfg.MaxConns = 10
	pgxCfg.MinConns = 2
	pgxCfg.MaxConnLifetime = 30 * time.Minute
	pgxCfg.MaxConnIdleTime = 5 * time.Minute

	pgxCfg.AfterConnect = func(ctx context.Context, conn *pgx.Conn) error {
		for name, sql := range preparedStatements {
			if _, err := conn.Prepare(ctx, name, sql); err != nil {
				return eris.Wrapf(err, "postgres: prepare %s", name)
			}
		}
		return nil
	}

	pool, err := pgxpool.NewWithConfig(ctx, pgxCfg)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: create pool")
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, eris.Wrap(err, "postgres: ping")
	}
	return &PostgresStore{pool: pool}, nil
}

// NewPostgresWithPool wraps an existing pool, used by tests.
func NewPostgresWithPool(pool Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

const postgresMigration = `
CREATE TABLE IF NOT EXISTS analysis_records (
	session_id     TEXT PRIMARY KEY,
	schema_version TEXT NOT NULL,
	place_id       TEXT,
	payload        JSONB NOT NULL,
	created_at     TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS bulk_runs (
	id              TEXT PRIMARY KEY,
	source_url      TEXT NOT NULL,
	total_processed INTEGER NOT NULL,
	results         JSONB NOT NULL,
	created_at      TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE INDEX IF NOT EXISTS idx_analysis_records_place_id ON analysis_records(place_id);
CREATE INDEX IF NOT EXISTS idx_analysis_records_created_at ON analysis_records(created_at);
`

func (s *PostgresStore) Migrate(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, postgresMigration)
	return eris.Wrap(err, "postgres: migrate")
}

func (s *PostgresStore) Close() error {
	s.pool.Close()
	return nil
}

func (s *PostgresStore) SaveRecord(ctx context.Context, record *model.AnalysisRecord) error {
	payload, err := record.Payload()
	if err != nil {
		return eris.Wrap(err, "postgres: record payload")
	}

	_, err = s.pool.Exec(ctx,
		`INSERT INTO analysis_records (session_id, schema_version, place_id, payload, created_at) VALUES ($1, $2, $3, $4, $5)`,
		record.SessionID, string(record.Version), recordPlaceID(record), payload, record.CreatedAt,
	)
	return eris.Wrapf(err, "postgres: insert record %s", record.SessionID)
}

func (s *PostgresStore) GetRecord(ctx context.Context, sessionID string) (*model.AnalysisRecord, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT session_id, schema_version, payload, created_at FROM analysis_records WHERE session_id = $1`,
		sessionID,
	)

	var id, version string
	var payload []byte
	var createdAt time.Time
	err := row.Scan(&id, &version, &payload, &createdAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, eris.Wrapf(ErrRecordNotFound, "session %s", sessionID)
	}
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: get record %s", sessionID)
	}

	return model.DecodeRecord(id, model.SchemaVersion(version), payload, createdAt)
}

func (s *PostgresStore) ListRecords(ctx context.Context, filter RecordFilter) ([]model.AnalysisRecord, error) {
	query := `SELECT session_id, schema_version, payload, created_at FROM analysis_records WHERE 1=1`
	var args []any

	if filter.Version != "" {
		args = append(args, string(filter.Version))
		query += ` AND schema_version = $` + strconv.Itoa(len(args))
	}
	if filter.PlaceID != "" {
		args = append(args, filter.PlaceID)
		query += ` AND place_id = $` + strconv.Itoa(len(args))
	}
	query += ` ORDER BY created_at DESC`

	limit := filter.Limit
	if limit <= 0 {
		limit = 100
	}
	args = append(args, limit)
	query += ` LIMIT $` + strconv.Itoa(len(args))

	if filter.Offset > 0 {
		args = append(args, filter.Offset)
		query += ` OFFSET $` + strconv.Itoa(len(args))
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list records")
	}
	defer rows.Close()

	var records []model.AnalysisRecord
	for rows.Next() {
		var id, version string
		var payload []byte
		var createdAt time.Time
		if err := rows.Scan(&id, &version, &payload, &createdAt); err != nil {
			return nil, eris.Wrap(err, "postgres: scan record")
		}
		rec, err := model.DecodeRecord(id, model.SchemaVersion(version), payload, createdAt)
		if err != nil {
			return nil, err
		}
		records = append(records, *rec)
	}
	return records, eris.Wrap(rows.Err(), "postgres: list records iterate")
}

func (s *PostgresStore) SaveBulkRun(ctx context.Context, run *model.BulkRun) error {
	resultsJSON, err := json.Marshal(run.Results)
	if err != nil {
		return eris.Wrap(err, "postgres: marshal bulk results")
	}

	_, err = s.pool.Exec(ctx,
		`INSERT INTO bulk_runs (id, source_url, total_processed, results, created_at) VALUES ($1, $2, $3, $4, $5)`,
		run.ID, run.SourceURL, run.TotalProcessed, resultsJSON, run.CreatedAt,
	)
	return eris.Wrapf(err, "postgres: insert bulk run %s", run.ID)
}

func (s *PostgresStore) GetBulkRun(ctx context.Context, id string) (*model.BulkRun, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT id, source_url, total_processed, results, created_at FROM bulk_runs WHERE id = $1`,
		id,
	)

	var run model.BulkRun
	var resultsJSON []byte
	err := row.Scan(&run.ID, &run.SourceURL, &run.TotalProcessed, &resultsJSON, &run.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, eris.Wrapf(ErrRecordNotFound, "bulk run %s", id)
	}
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: get bulk run %s", id)
	}
	if err := json.Unmarshal(resultsJSON, &run.Results); err != nil {
		return nil, eris.Wrap(err, "postgres: unmarshal bulk results")
	}
	return &run, nil
}
