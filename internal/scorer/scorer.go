// Package scorer implements the deterministic authenticity score over
// resolver, evidence and classifier outputs. It performs no I/O: same
// inputs, same score, same ordered flags.
package scorer

import (
	"github.com/gravi-labs/retail-verify/internal/config"
	"github.com/gravi-labs/retail-verify/internal/model"
)

// Risk flag strings. These are part of the stored-record contract; change
// them and historical records stop comparing equal.
const (
	FlagUnclassifiable     = "Store type unclassifiable"
	FlagNoPhotos           = "No photos available"
	FlagLowBrandVisibility = "Low brand visibility"
	FlagLowConfidence      = "Low AI confidence"
)

// Input carries everything the scorer looks at.
type Input struct {
	CategoryHints []string        // place-provider category labels
	Brands        []string        // flattened brand list from the classifier
	StoreType     model.StoreType // coerced store type
	Confidence    int             // 0-100
	ImageCount    int
}

// Score computes the weighted authenticity score and its risk flags. Flags
// are appended in evaluation order and never deduplicated.
func Score(cfg config.ScoringConfig, in Input) model.ScoreResult {
	brandCount := len(in.Brands)
	retailHinted := hasRetailHint(in.CategoryHints)
	flags := []string{}

	// Category-match component.
	var category int
	switch {
	case retailHinted && brandCount >= cfg.BrandSomeAt:
		category = cfg.CategoryMatchMax
	case retailHinted:
		category = cfg.CategoryMatchRetail
	case brandCount >= cfg.BrandSomeAt:
		category = cfg.CategoryMatchBrands
	}

	// Brand-presence component.
	var brand int
	switch {
	case brandCount >= cfg.BrandManyAt:
		brand = cfg.BrandMax
	case brandCount >= cfg.BrandSomeAt:
		brand = cfg.BrandMid
	case brandCount >= cfg.BrandFewAt:
		brand = cfg.BrandLow
	default:
		brand = cfg.BrandFloor
	}

	// Store-type-quality component.
	var storeType int
	switch {
	case model.IsAllowedStoreType(in.StoreType) && in.Confidence >= cfg.ConfidenceThreshold:
		storeType = cfg.TypeMax
	case model.IsAllowedStoreType(in.StoreType):
		storeType = cfg.TypeLowConfidence
	default:
		flags = append(flags, FlagUnclassifiable)
	}

	// Image-coverage component.
	var image int
	switch {
	case in.ImageCount >= cfg.ImageFullAt:
		image = cfg.ImageMax
	case in.ImageCount >= cfg.ImagePartialAt:
		image = cfg.ImagePartial
	default:
		flags = append(flags, FlagNoPhotos)
	}

	// Unconditional flags, independent of the components above.
	if brandCount < cfg.BrandFewAt {
		flags = append(flags, FlagLowBrandVisibility)
	}
	if in.Confidence < cfg.ConfidenceThreshold {
		flags = append(flags, FlagLowConfidence)
	}

	return model.ScoreResult{
		AuthenticityScore: clamp(category+brand+storeType+image, 0, 100),
		RiskFlags:         flags,
	}
}

func hasRetailHint(hints []string) bool {
	for _, h := range hints {
		if model.IsRetailHint(h) {
			return true
		}
	}
	return false
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
