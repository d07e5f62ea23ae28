package pipeline

import (
	"context"
	"testing"

	"github.com/rotisserie/eris"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gravi-labs/retail-verify/internal/config"
	"github.com/gravi-labs/retail-verify/internal/evidence"
	"github.com/gravi-labs/retail-verify/internal/geo"
	"github.com/gravi-labs/retail-verify/internal/model"
	"github.com/gravi-labs/retail-verify/internal/scorer"
	"github.com/gravi-labs/retail-verify/internal/store"
)

type fakeResolver struct {
	res *geo.Resolution
	err error
}

func (f *fakeResolver) Resolve(context.Context, string) (*geo.Resolution, error) {
	return f.res, f.err
}

type fakeCollector struct {
	bundle *model.EvidenceBundle
	err    error
}

func (f *fakeCollector) Collect(context.Context, *geo.Resolution) (*model.EvidenceBundle, error) {
	return f.bundle, f.err
}

type fakeClassifier struct {
	result *model.ClassificationResult
	err    error
	calls  int
}

func (f *fakeClassifier) Classify(context.Context, *model.EvidenceBundle, string) (*model.ClassificationResult, error) {
	f.calls++
	return f.result, f.err
}

type fakeSummarizer struct {
	intel model.ReviewIntelligence
}

func (f *fakeSummarizer) Summarize(context.Context, []model.Review) model.ReviewIntelligence {
	return f.intel
}

// captureStore records saved records and can simulate write failures.
type captureStore struct {
	saved   []*model.AnalysisRecord
	saveErr error
}

func (s *captureStore) SaveRecord(_ context.Context, rec *model.AnalysisRecord) error {
	s.saved = append(s.saved, rec)
	return s.saveErr
}

func (s *captureStore) GetRecord(context.Context, string) (*model.AnalysisRecord, error) {
	return nil, eris.New("not implemented")
}

func (s *captureStore) ListRecords(context.Context, store.RecordFilter) ([]model.AnalysisRecord, error) {
	return nil, eris.New("not implemented")
}

func (s *captureStore) SaveBulkRun(context.Context, *model.BulkRun) error { return nil }

func (s *captureStore) GetBulkRun(context.Context, string) (*model.BulkRun, error) {
	return nil, eris.New("not implemented")
}

func (s *captureStore) Migrate(context.Context) error { return nil }
func (s *captureStore) Close() error                  { return nil }

func testConfig() *config.Config {
	return &config.Config{Scoring: scorer.DefaultConfig()}
}

func healthyResolution() *geo.Resolution {
	lat, lng := 12.9716, 77.5946
	return &geo.Resolution{
		Identity: model.PlaceIdentity{
			PlaceID:     "pid-1",
			Name:        "Sri Balaji Stores",
			Address:     "12 MG Road, Bengaluru",
			Lat:         &lat,
			Lng:         &lng,
			ReviewCount: 127,
		},
		Rating: 4.3,
		Types:  []string{"grocery_or_supermarket", "store"},
	}
}

func healthyBundle() *model.EvidenceBundle {
	return &model.EvidenceBundle{
		PlaceID: "pid-1",
		Images: []model.EvidenceImage{
			{Data: []byte{1}, MediaType: "image/jpeg"},
			{Data: []byte{2}, MediaType: "image/jpeg"},
			{Data: []byte{3}, MediaType: "image/jpeg"},
		},
		Reviews: []model.Review{{Author: "Asha", Rating: 5, Text: "great", Date: "2026-08-01"}},
	}
}

func healthyClassification() *model.ClassificationResult {
	return &model.ClassificationResult{
		StoreType:  model.StoreType("Supermarket"),
		Confidence: 92,
		DetectedBrands: map[string][]string{
			"Snacks":    {"Lays", "Kurkure", "Bingo", "Haldiram's"},
			"Beverages": {"Thums Up", "Sprite", "Maaza", "Frooti"},
		},
		ShelfDensityScore:  7.5,
		StoreNameFromImage: "Sri Balaji Stores",
	}
}

func newTestOrchestrator(r Resolver, c Collector, cl Classifier, s Summarizer, st *captureStore) *Orchestrator {
	o := New(testConfig(), r, c, cl, s, nil)
	if st != nil {
		o.store = st
	}
	o.retryCfg.MaxAttempts = 1
	return o
}

func TestRun_Verified(t *testing.T) {
	st := &captureStore{}
	o := newTestOrchestrator(
		&fakeResolver{res: healthyResolution()},
		&fakeCollector{bundle: healthyBundle()},
		&fakeClassifier{result: healthyClassification()},
		&fakeSummarizer{intel: model.ReviewIntelligence{Sentiment: model.SentimentPositive, CommonThemes: []string{"fresh produce"}}},
		st,
	)

	out := o.Run(context.Background(), "https://maps.example.com/maps/place/X/@12.97,77.59,17z")

	require.NotNil(t, out)
	assert.NotEmpty(t, out.SessionID)
	assert.Equal(t, model.StatusVerified, out.Status)
	require.NotNil(t, out.Record)
	assert.Equal(t, model.SchemaV2, out.Record.Version)

	v2 := out.Record.V2
	require.NotNil(t, v2)
	assert.Equal(t, out.SessionID, v2.AnalysisSessionID)
	assert.Equal(t, model.StatusVerified, v2.VerificationStatus)
	assert.Equal(t, "pid-1", v2.PlaceIdentityLock.PlaceID)
	assert.Equal(t, model.ConfidenceHigh, v2.StoreTypeConfidence)
	assert.Equal(t, 3, v2.ImagesAnalyzed)
	assert.Equal(t, 100, v2.AuthenticityScore)
	assert.Empty(t, v2.RiskFlags)
	assert.Equal(t, model.SentimentPositive, v2.ReviewIntelligence.Sentiment)
	assert.Equal(t, 4.3, v2.RatingsData.AverageRating)
	assert.Equal(t, 127, v2.RatingsData.TotalReviews)

	require.Len(t, st.saved, 1)
	assert.Equal(t, out.Record, st.saved[0])
}

func TestRun_PlaceNotFound(t *testing.T) {
	o := newTestOrchestrator(
		&fakeResolver{err: geo.ErrNotFound},
		&fakeCollector{}, &fakeClassifier{}, &fakeSummarizer{}, nil,
	)

	out := o.Run(context.Background(), "https://maps.example.com/maps")

	assert.NotEmpty(t, out.SessionID)
	assert.Equal(t, model.StatusFailed, out.Status)
	assert.Equal(t, "place not found", out.Reason)
	assert.Nil(t, out.Record)
}

func TestRun_AmbiguousPlace(t *testing.T) {
	o := newTestOrchestrator(
		&fakeResolver{err: geo.ErrAmbiguous},
		&fakeCollector{}, &fakeClassifier{}, &fakeSummarizer{}, nil,
	)

	out := o.Run(context.Background(), "https://maps.example.com/maps/place/X")

	assert.Equal(t, model.StatusFailed, out.Status)
	assert.Equal(t, "cannot uniquely identify place", out.Reason)
}

func TestRun_SearchProviderFailure(t *testing.T) {
	o := newTestOrchestrator(
		&fakeResolver{err: geo.ErrSearchFailed},
		&fakeCollector{}, &fakeClassifier{}, &fakeSummarizer{}, nil,
	)

	out := o.Run(context.Background(), "https://maps.example.com/maps/place/X")

	assert.Equal(t, model.StatusFailed, out.Status)
	assert.Equal(t, "place search failed", out.Reason)
	assert.NotEmpty(t, out.SessionID)
}

func TestRun_NoImages(t *testing.T) {
	o := newTestOrchestrator(
		&fakeResolver{res: healthyResolution()},
		&fakeCollector{err: evidence.ErrNoImages},
		&fakeClassifier{}, &fakeSummarizer{}, nil,
	)

	out := o.Run(context.Background(), "https://maps.example.com/maps/place/X")

	assert.Equal(t, model.StatusFailed, out.Status)
	assert.Equal(t, "no photos available for analysis", out.Reason)
	assert.NotEmpty(t, out.SessionID)
}

func TestRun_ClassifierFailure(t *testing.T) {
	o := newTestOrchestrator(
		&fakeResolver{res: healthyResolution()},
		&fakeCollector{bundle: healthyBundle()},
		&fakeClassifier{err: eris.New("model unavailable")},
		&fakeSummarizer{intel: model.UnknownReviewIntelligence()},
		nil,
	)

	out := o.Run(context.Background(), "https://maps.example.com/maps/place/X")

	assert.Equal(t, model.StatusFailed, out.Status)
	assert.Equal(t, "image classification failed", out.Reason)
	assert.Nil(t, out.Record)
}

func TestRun_CoordinateMismatchFlagAppendedLast(t *testing.T) {
	res := healthyResolution()
	res.CoordinateMismatch = true

	cls := healthyClassification()
	cls.Confidence = 60 // draws the low-confidence scorer flag

	o := newTestOrchestrator(
		&fakeResolver{res: res},
		&fakeCollector{bundle: healthyBundle()},
		&fakeClassifier{result: cls},
		&fakeSummarizer{intel: model.UnknownReviewIntelligence()},
		nil,
	)

	out := o.Run(context.Background(), "https://maps.example.com/maps/place/X")

	require.Equal(t, model.StatusVerified, out.Status)
	assert.Equal(t, []string{scorer.FlagLowConfidence, FlagCoordinateMismatch}, out.Record.V2.RiskFlags)
}

func TestRun_IdentityLockMismatch(t *testing.T) {
	bundle := healthyBundle()
	bundle.PlaceID = "pid-other"

	o := newTestOrchestrator(
		&fakeResolver{res: healthyResolution()},
		&fakeCollector{bundle: bundle},
		&fakeClassifier{result: healthyClassification()},
		&fakeSummarizer{intel: model.UnknownReviewIntelligence()},
		nil,
	)

	out := o.Run(context.Background(), "https://maps.example.com/maps/place/X")

	assert.Equal(t, model.StatusFailed, out.Status)
	assert.Equal(t, "identity lock mismatch", out.Reason)
	assert.NotEmpty(t, out.SessionID)
	assert.Nil(t, out.Record)
}

func TestRun_StoreFailureDoesNotRetractVerdict(t *testing.T) {
	st := &captureStore{saveErr: eris.New("disk full")}
	o := newTestOrchestrator(
		&fakeResolver{res: healthyResolution()},
		&fakeCollector{bundle: healthyBundle()},
		&fakeClassifier{result: healthyClassification()},
		&fakeSummarizer{intel: model.UnknownReviewIntelligence()},
		st,
	)

	out := o.Run(context.Background(), "https://maps.example.com/maps/place/X")

	assert.Equal(t, model.StatusVerified, out.Status)
	require.NotNil(t, out.Record)
	require.Len(t, st.saved, 1)
}

func TestRun_NilStoreSkipsPersistence(t *testing.T) {
	o := newTestOrchestrator(
		&fakeResolver{res: healthyResolution()},
		&fakeCollector{bundle: healthyBundle()},
		&fakeClassifier{result: healthyClassification()},
		&fakeSummarizer{intel: model.UnknownReviewIntelligence()},
		nil,
	)

	out := o.Run(context.Background(), "https://maps.example.com/maps/place/X")
	assert.Equal(t, model.StatusVerified, out.Status)
}
