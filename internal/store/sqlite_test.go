package store

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gravi-labs/retail-verify/internal/model"
)

func newTestSQLite(t *testing.T) *SQLiteStore {
	t.Helper()
	s, err := NewSQLite(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	require.NoError(t, s.Migrate(context.Background()))
	return s
}

func v2Record(sessionID string) *model.AnalysisRecord {
	return model.NewV2Record(&model.VerificationResult{
		AnalysisSessionID:  sessionID,
		VerificationStatus: model.StatusVerified,
		PlaceIdentityLock: model.PlaceIdentity{
			PlaceID: "pid-1",
			Name:    "Sri Balaji Stores",
			Address: "12 MG Road, Bengaluru",
		},
		StoreType:           model.StoreType("Supermarket"),
		StoreTypeConfidence: model.ConfidenceHigh,
		DetectedBrands:      map[string][]string{"Snacks": {"Lays"}},
		AuthenticityScore:   87,
		RiskFlags:           []string{"Low AI confidence"},
		ImagesAnalyzed:      3,
	}, time.Now().UTC().Truncate(time.Second))
}

func TestSQLite_RecordRoundtrip(t *testing.T) {
	s := newTestSQLite(t)
	ctx := context.Background()

	rec := v2Record("session-1")
	require.NoError(t, s.SaveRecord(ctx, rec))

	got, err := s.GetRecord(ctx, "session-1")
	require.NoError(t, err)

	assert.Equal(t, model.SchemaV2, got.Version)
	require.NotNil(t, got.V2)
	assert.Equal(t, rec.V2, got.V2)
	assert.WithinDuration(t, rec.CreatedAt, got.CreatedAt, time.Second)
}

func TestSQLite_GetRecordNotFound(t *testing.T) {
	s := newTestSQLite(t)

	_, err := s.GetRecord(context.Background(), "missing")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrRecordNotFound)
}

func TestSQLite_ListRecordsFilterByVersion(t *testing.T) {
	s := newTestSQLite(t)
	ctx := context.Background()

	require.NoError(t, s.SaveRecord(ctx, v2Record("session-1")))
	require.NoError(t, s.SaveRecord(ctx, v2Record("session-2")))

	v1 := &model.AnalysisRecord{
		SessionID: "legacy-1",
		Version:   model.SchemaV1,
		CreatedAt: time.Now().UTC(),
		V1:        &model.LegacyResult{},
	}
	require.NoError(t, s.SaveRecord(ctx, v1))

	v2s, err := s.ListRecords(ctx, RecordFilter{Version: model.SchemaV2})
	require.NoError(t, err)
	assert.Len(t, v2s, 2)

	v1s, err := s.ListRecords(ctx, RecordFilter{Version: model.SchemaV1})
	require.NoError(t, err)
	require.Len(t, v1s, 1)
	assert.Equal(t, "legacy-1", v1s[0].SessionID)
	assert.NotNil(t, v1s[0].V1)
}

func TestSQLite_ListRecordsFilterByPlaceID(t *testing.T) {
	s := newTestSQLite(t)
	ctx := context.Background()

	rec := v2Record("session-1")
	require.NoError(t, s.SaveRecord(ctx, rec))

	other := v2Record("session-2")
	other.V2.PlaceIdentityLock.PlaceID = "pid-other"
	require.NoError(t, s.SaveRecord(ctx, other))

	got, err := s.ListRecords(ctx, RecordFilter{PlaceID: "pid-other"})
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "session-2", got[0].SessionID)
}

func TestSQLite_ListRecordsLimit(t *testing.T) {
	s := newTestSQLite(t)
	ctx := context.Background()

	for _, id := range []string{"a", "b", "c"} {
		require.NoError(t, s.SaveRecord(ctx, v2Record(id)))
	}

	got, err := s.ListRecords(ctx, RecordFilter{Limit: 2})
	require.NoError(t, err)
	assert.Len(t, got, 2)
}

func TestSQLite_DuplicateSessionRejected(t *testing.T) {
	s := newTestSQLite(t)
	ctx := context.Background()

	require.NoError(t, s.SaveRecord(ctx, v2Record("session-1")))
	require.Error(t, s.SaveRecord(ctx, v2Record("session-1")))
}

func TestSQLite_BulkRunRoundtrip(t *testing.T) {
	s := newTestSQLite(t)
	ctx := context.Background()

	run := &model.BulkRun{
		ID:             "run-1",
		SourceURL:      "local:/images",
		TotalProcessed: 2,
		Results: []model.BulkItemResult{
			{ImageName: "a.jpg", IsValidGroceryStore: true, StoreType: "kirana", StoreTypeConfidence: 85},
			{ImageName: "b.jpg", IsValidGroceryStore: false, Reasoning: "analysis failed: model timeout"},
		},
		CreatedAt: time.Now().UTC().Truncate(time.Second),
	}
	require.NoError(t, s.SaveBulkRun(ctx, run))

	got, err := s.GetBulkRun(ctx, "run-1")
	require.NoError(t, err)
	assert.Equal(t, run.SourceURL, got.SourceURL)
	assert.Equal(t, run.TotalProcessed, got.TotalProcessed)
	assert.Equal(t, run.Results, got.Results)
}

func TestSQLite_GetBulkRunNotFound(t *testing.T) {
	s := newTestSQLite(t)

	_, err := s.GetBulkRun(context.Background(), "missing")
	assert.ErrorIs(t, err, ErrRecordNotFound)
}
