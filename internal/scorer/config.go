package scorer

import (
	"fmt"
	"strings"

	"github.com/rotisserie/eris"

	"github.com/gravi-labs/retail-verify/internal/config"
)

// DefaultConfig returns the historically calibrated scoring constants.
// Component maxima sum to 100.
func DefaultConfig() config.ScoringConfig {
	return config.ScoringConfig{
		CategoryMatchMax:    30,
		CategoryMatchRetail: 18,
		CategoryMatchBrands: 12,

		BrandMax:    30,
		BrandMid:    20,
		BrandLow:    10,
		BrandFloor:  5,
		BrandManyAt: 8,
		BrandSomeAt: 4,
		BrandFewAt:  2,

		TypeMax:           25,
		TypeLowConfidence: 12,

		ImageMax:       15,
		ImagePartial:   8,
		ImageFullAt:    3,
		ImagePartialAt: 1,

		ConfidenceThreshold: 75,
	}
}

// ValidateConfig checks that a ScoringConfig is internally consistent.
func ValidateConfig(c config.ScoringConfig) error {
	var errs []string

	// All component values must be non-negative.
	values := map[string]int{
		"category_match_max":    c.CategoryMatchMax,
		"category_match_retail": c.CategoryMatchRetail,
		"category_match_brands": c.CategoryMatchBrands,
		"brand_max":             c.BrandMax,
		"brand_mid":             c.BrandMid,
		"brand_low":             c.BrandLow,
		"brand_floor":           c.BrandFloor,
		"type_max":              c.TypeMax,
		"type_low_confidence":   c.TypeLowConfidence,
		"image_max":             c.ImageMax,
		"image_partial":         c.ImagePartial,
	}
	for name, v := range values {
		if v < 0 {
			errs = append(errs, fmt.Sprintf("%s must be >= 0", name))
		}
	}

	// Component maxima must sum to 100 so the clamp stays defensive.
	sum := c.CategoryMatchMax + c.BrandMax + c.TypeMax + c.ImageMax
	if sum != 100 {
		errs = append(errs, fmt.Sprintf("component maxima should sum to 100, got %d", sum))
	}

	// Brand count thresholds must be strictly ordered.
	if !(c.BrandFewAt < c.BrandSomeAt && c.BrandSomeAt < c.BrandManyAt) {
		errs = append(errs, "brand thresholds must satisfy few < some < many")
	}

	if c.ImagePartialAt > c.ImageFullAt {
		errs = append(errs, "image_partial_at must be <= image_full_at")
	}

	if c.ConfidenceThreshold < 0 || c.ConfidenceThreshold > 100 {
		errs = append(errs, "confidence_threshold must be between 0 and 100")
	}

	if len(errs) > 0 {
		return eris.Errorf("scorer: config validation failed: %s", strings.Join(errs, "; "))
	}
	return nil
}
