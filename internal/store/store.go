// Package store persists analysis records and bulk runs.
package store

import (
	"context"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/rotisserie/eris"

	"github.com/gravi-labs/retail-verify/internal/model"
)

// ErrRecordNotFound is returned when no record exists for a session id.
var ErrRecordNotFound = eris.New("store: record not found")

// RecordFilter specifies criteria for listing analysis records.
type RecordFilter struct {
	Version model.SchemaVersion `json:"version,omitempty"`
	PlaceID string              `json:"place_id,omitempty"`
	Limit   int                 `json:"limit,omitempty"`
	Offset  int                 `json:"offset,omitempty"`
}

// Store defines the persistence interface for the verification pipeline.
type Store interface {
	// Analysis records
	SaveRecord(ctx context.Context, record *model.AnalysisRecord) error
	GetRecord(ctx context.Context, sessionID string) (*model.AnalysisRecord, error)
	ListRecords(ctx context.Context, filter RecordFilter) ([]model.AnalysisRecord, error)

	// Bulk runs
	SaveBulkRun(ctx context.Context, run *model.BulkRun) error
	GetBulkRun(ctx context.Context, id string) (*model.BulkRun, error)

	// Lifecycle
	Migrate(ctx context.Context) error
	Close() error
}

// Pool is the subset of pgxpool.Pool the postgres store uses. Narrowing the
// surface keeps the store mockable in tests.
type Pool interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Ping(ctx context.Context) error
	Close()
}
