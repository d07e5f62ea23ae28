package model

import (
	"encoding/json"
	"time"

	"github.com/rotisserie/eris"
)

// SchemaVersion discriminates the two generations of stored analysis
// records. The version is always explicit, never inferred from field
// presence.
type SchemaVersion string

const (
	SchemaV1 SchemaVersion = "v1"
	SchemaV2 SchemaVersion = "v2"
)

// VerificationStatus is the single-verdict outcome of a pipeline run.
type VerificationStatus string

const (
	StatusVerified VerificationStatus = "VERIFIED"
	StatusFailed   VerificationStatus = "FAILED"
)

// StoreTypeConfidence buckets the numeric classifier confidence for the
// response contract.
type StoreTypeConfidence string

const (
	ConfidenceHigh StoreTypeConfidence = "HIGH"
	ConfidenceLow  StoreTypeConfidence = "LOW"
)

// ConfidenceThreshold is the cutoff (inclusive) above which classifier
// confidence is reported as HIGH.
const ConfidenceThreshold = 75

// BucketConfidence maps a 0-100 confidence to HIGH/LOW.
func BucketConfidence(confidence int) StoreTypeConfidence {
	if confidence >= ConfidenceThreshold {
		return ConfidenceHigh
	}
	return ConfidenceLow
}

// ScoreResult is the deterministic scorer output: a clamped 0-100 score and
// risk flags in evaluation order (not deduplicated, not severity-sorted).
type ScoreResult struct {
	AuthenticityScore int      `json:"authenticity_score"`
	RiskFlags         []string `json:"risk_flags"`
}

// RatingsData aggregates the provider rating statistics.
type RatingsData struct {
	AverageRating float64 `json:"average_rating"`
	TotalReviews  int     `json:"total_reviews"`
}

// VerificationResult is the v2 analysis record: the write-once artifact of a
// successful pipeline run.
type VerificationResult struct {
	AnalysisSessionID   string              `json:"analysis_session_id"`
	VerificationStatus  VerificationStatus  `json:"verification_status"`
	PlaceIdentityLock   PlaceIdentity       `json:"place_identity_lock"`
	StoreType           StoreType           `json:"store_type"`
	StoreTypeConfidence StoreTypeConfidence `json:"store_type_confidence"`
	StoreNameFromImage  string              `json:"store_name_from_image"`
	DetectedBrands      map[string][]string `json:"detected_brands"`
	ReviewIntelligence  ReviewIntelligence  `json:"review_intelligence"`
	RatingsData         RatingsData         `json:"ratings_data"`
	RecentReviews       []Review            `json:"recent_reviews"`
	ImagesAnalyzed      int                 `json:"images_analyzed"`
	ShelfDensityScore   float64             `json:"shelf_density_score"`
	AuthenticityScore   int                 `json:"authenticity_score"`
	RiskFlags           []string            `json:"risk_flags"`
}

// LegacyResult is the flatter v1 record shape kept for read compatibility
// with historical stored analyses. The write path never produces it.
type LegacyResult struct {
	StoreIntelligence struct {
		StoreNameFromGoogle  string `json:"store_name_from_google"`
		StoreNameFromImage   string `json:"store_name_from_image"`
		AIPredictedStoreType string `json:"ai_predicted_store_type"`
	} `json:"store_intelligence"`
	FMCGAnalysis struct {
		DetectedBrands            []string       `json:"detected_brands"`
		BrandCategoryDistribution map[string]int `json:"brand_category_distribution"`
	} `json:"fmcg_analysis"`
	ValidationFramework struct {
		OverallAuthenticityScore int    `json:"overall_authenticity_score"`
		Verdict                  string `json:"verdict"`
	} `json:"validation_framework"`
	ReviewSummary struct {
		Sentiment   string `json:"sentiment"`
		SummaryText string `json:"summary_text"`
	} `json:"review_summary"`
	RatingsData   RatingsData `json:"ratings_data"`
	RecentReviews []Review    `json:"recent_reviews"`
}

// AnalysisRecord is the tagged union over the two record generations.
// Exactly one of V1/V2 is populated, selected by Version.
type AnalysisRecord struct {
	SessionID string        `json:"session_id"`
	Version   SchemaVersion `json:"schema_version"`
	CreatedAt time.Time     `json:"created_at"`
	V2        *VerificationResult
	V1        *LegacyResult
}

// NewV2Record wraps a VerificationResult into an AnalysisRecord keyed by its
// session id.
func NewV2Record(result *VerificationResult, createdAt time.Time) *AnalysisRecord {
	return &AnalysisRecord{
		SessionID: result.AnalysisSessionID,
		Version:   SchemaV2,
		CreatedAt: createdAt,
		V2:        result,
	}
}

// Payload serializes the version-specific body of the record.
func (r *AnalysisRecord) Payload() ([]byte, error) {
	switch r.Version {
	case SchemaV2:
		if r.V2 == nil {
			return nil, eris.New("model: v2 record has no payload")
		}
		return json.Marshal(r.V2)
	case SchemaV1:
		if r.V1 == nil {
			return nil, eris.New("model: v1 record has no payload")
		}
		return json.Marshal(r.V1)
	}
	return nil, eris.Errorf("model: unknown schema version %q", r.Version)
}

// DecodeRecord reconstructs an AnalysisRecord from an explicit schema
// version and its serialized payload. Unknown versions are an error: the
// version is a hard discriminator, never guessed from the payload shape.
func DecodeRecord(sessionID string, version SchemaVersion, payload []byte, createdAt time.Time) (*AnalysisRecord, error) {
	rec := &AnalysisRecord{
		SessionID: sessionID,
		Version:   version,
		CreatedAt: createdAt,
	}
	switch version {
	case SchemaV2:
		var v2 VerificationResult
		if err := json.Unmarshal(payload, &v2); err != nil {
			return nil, eris.Wrapf(err, "model: decode v2 record %s", sessionID)
		}
		rec.V2 = &v2
	case SchemaV1:
		var v1 LegacyResult
		if err := json.Unmarshal(payload, &v1); err != nil {
			return nil, eris.Wrapf(err, "model: decode v1 record %s", sessionID)
		}
		rec.V1 = &v1
	default:
		return nil, eris.Errorf("model: unknown schema version %q for record %s", version, sessionID)
	}
	return rec, nil
}

// BulkRun is the persisted outcome of one bulk classification batch.
type BulkRun struct {
	ID             string           `json:"id"`
	SourceURL      string           `json:"source_url"`
	TotalProcessed int              `json:"total_processed"`
	Results        []BulkItemResult `json:"results"`
	CreatedAt      time.Time        `json:"created_at"`
}
