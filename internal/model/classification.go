package model

import (
	_ "embed"
	"fmt"

	"gopkg.in/yaml.v3"
)

// StoreType is a store-type label from the closed taxonomy.
type StoreType string

// StoreTypeUnclassified is the sentinel for labels outside the taxonomy or
// cases where the model reports high uncertainty.
const StoreTypeUnclassified StoreType = "UNCLASSIFIED"

//go:embed taxonomy.yaml
var taxonomyYAML []byte

type taxonomy struct {
	StoreTypes  []StoreType `yaml:"store_types"`
	RetailHints []string    `yaml:"retail_hints"`
}

var (
	allowedStoreTypes map[StoreType]bool
	storeTypeList     []StoreType
	retailHints       map[string]bool
)

func init() {
	var tx taxonomy
	if err := yaml.Unmarshal(taxonomyYAML, &tx); err != nil {
		panic(fmt.Sprintf("model: parse embedded taxonomy: %v", err))
	}
	allowedStoreTypes = make(map[StoreType]bool, len(tx.StoreTypes))
	for _, st := range tx.StoreTypes {
		allowedStoreTypes[st] = true
	}
	storeTypeList = tx.StoreTypes
	retailHints = make(map[string]bool, len(tx.RetailHints))
	for _, h := range tx.RetailHints {
		retailHints[h] = true
	}
}

// AllStoreTypes returns the closed taxonomy in declaration order,
// excluding the UNCLASSIFIED sentinel.
func AllStoreTypes() []StoreType {
	out := make([]StoreType, len(storeTypeList))
	copy(out, storeTypeList)
	return out
}

// IsAllowedStoreType reports whether st belongs to the closed taxonomy.
// The UNCLASSIFIED sentinel is not a member.
func IsAllowedStoreType(st StoreType) bool {
	return allowedStoreTypes[st]
}

// IsRetailHint reports whether a place-provider category label counts as
// retail-like for scoring purposes.
func IsRetailHint(hint string) bool {
	return retailHints[hint]
}

// CoerceStoreType maps an arbitrary model-returned label into the taxonomy,
// falling back to UNCLASSIFIED for anything unrecognized.
func CoerceStoreType(raw string) StoreType {
	st := StoreType(raw)
	if allowedStoreTypes[st] {
		return st
	}
	return StoreTypeUnclassified
}

// ClassificationResult is the validated output of the vision classifier for
// one evidence bundle. Every field is defined: the post-processor applies
// defaults so downstream consumers never observe a missing value.
type ClassificationResult struct {
	StoreType          StoreType           `json:"store_type"`
	Confidence         int                 `json:"confidence"` // 0-100
	DetectedBrands     map[string][]string `json:"detected_brands"`
	ShelfDensityScore  float64             `json:"shelf_density_score"`
	StoreNameFromImage string              `json:"store_name_from_image"`
	Reasoning          string              `json:"reasoning"`
}

// FlatBrands returns every detected brand across all categories.
func (c *ClassificationResult) FlatBrands() []string {
	var out []string
	for _, brands := range c.DetectedBrands {
		out = append(out, brands...)
	}
	return out
}

// BulkItemResult is the per-image record produced by the bulk runner. The
// field set matches the historical bulk analysis schema; failed items carry
// IsValidGroceryStore=false and the error message in Reasoning.
type BulkItemResult struct {
	ImageName                string   `json:"image_name"`
	IsValidGroceryStore      bool     `json:"is_valid_grocery_store"`
	StoreType                string   `json:"store_type"`
	StoreTypeConfidence      int      `json:"store_type_confidence"`
	EstimatedStoreSize       string   `json:"estimated_store_size"`
	VisibleBrands            []string `json:"visible_brands"`
	DominantBrand            string   `json:"dominant_brand"`
	AdMaterialsDetected      []string `json:"ad_materials_detected"`
	CategoryDetected         string   `json:"category_detected"`
	ShelfDensityEstimate     string   `json:"shelf_density_estimate"`
	OutOfStockSignals        string   `json:"out_of_stock_signals"`
	CompetitiveBrandPresence string   `json:"competitive_brand_presence"`
	Reasoning                string   `json:"reasoning"`
}
