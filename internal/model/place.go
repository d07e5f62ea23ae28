package model

// PlaceIdentity is the immutable identity of a resolved place. It is
// constructed exactly once per pipeline run by the resolver and must never
// change afterwards; the orchestrator re-checks PlaceID against the evidence
// bundle before emitting a verdict.
type PlaceIdentity struct {
	PlaceID     string   `json:"place_id"`
	Name        string   `json:"name"`
	Lat         *float64 `json:"lat"`
	Lng         *float64 `json:"lng"`
	Address     string   `json:"address"`
	ReviewCount int      `json:"review_count"`
}

// Review is a normalized customer review.
type Review struct {
	Author string `json:"author"`
	Rating int    `json:"rating"`
	Text   string `json:"text"`
	Date   string `json:"date"` // YYYY-MM-DD
}

// EvidenceImage is a downloaded photo ready for model input.
type EvidenceImage struct {
	Data      []byte `json:"-"`
	MediaType string `json:"media_type"`
}

// EvidenceBundle holds the photographic and textual evidence collected for
// one place. PlaceID records which place the evidence was fetched for and is
// compared against the identity lock before a VERIFIED verdict.
type EvidenceBundle struct {
	PlaceID string          `json:"place_id"`
	Images  []EvidenceImage `json:"-"`
	Reviews []Review        `json:"reviews"`
}
