package vision

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/rotisserie/eris"

	"github.com/gravi-labs/retail-verify/internal/llm"
	"github.com/gravi-labs/retail-verify/internal/model"
)

const bulkSystemPrompt = `You are a retail audit analyst. You examine one photograph of a possible Indian FMCG retail outlet and report structured findings. Respond with a single valid JSON object and nothing else.`

const bulkPromptTemplate = `Analyze this photograph (file name: %s).

Determine whether it shows a valid grocery/FMCG retail store, and if so
describe it. Respond with a JSON object matching this schema:
%s`

// rawBulkItem is the wire shape for a single bulk image analysis.
type rawBulkItem struct {
	IsValidGroceryStore      bool     `json:"is_valid_grocery_store" jsonschema:"required"`
	StoreType                string   `json:"store_type"`
	StoreTypeConfidence      float64  `json:"store_type_confidence" jsonschema:"description=0-100"`
	EstimatedStoreSize       string   `json:"estimated_store_size" jsonschema:"description=small/medium/large"`
	VisibleBrands            []string `json:"visible_brands"`
	DominantBrand            string   `json:"dominant_brand"`
	AdMaterialsDetected      []string `json:"ad_materials_detected"`
	CategoryDetected         string   `json:"category_detected"`
	ShelfDensityEstimate     string   `json:"shelf_density_estimate" jsonschema:"description=low/medium/high"`
	OutOfStockSignals        string   `json:"out_of_stock_signals"`
	CompetitiveBrandPresence string   `json:"competitive_brand_presence"`
	Reasoning                string   `json:"reasoning"`
}

var bulkItemSchema = llm.MustSchemaJSON[rawBulkItem]()

// ClassifyImage analyzes a single standalone image for the bulk runner. The
// returned item always has every field populated with at least a safe
// default.
func (c *Classifier) ClassifyImage(ctx context.Context, imageName string, img model.EvidenceImage) (*model.BulkItemResult, error) {
	prompt := fmt.Sprintf(bulkPromptTemplate, imageName, bulkItemSchema)

	resp, err := c.provider.Complete(ctx, llm.Request{
		System:      bulkSystemPrompt,
		Prompt:      prompt,
		Images:      []llm.Image{{MediaType: img.MediaType, Data: img.Data}},
		MaxTokens:   c.maxTokens,
		Temperature: c.temperature,
	})
	if err != nil {
		return nil, eris.Wrapf(err, "vision: classify image %s", imageName)
	}

	var raw rawBulkItem
	if err := json.Unmarshal([]byte(cleanJSON(resp.Text)), &raw); err != nil {
		return nil, eris.Wrapf(ErrMalformed, "image %s: %v", imageName, err)
	}

	return normalizeBulkItem(imageName, raw), nil
}

func normalizeBulkItem(imageName string, raw rawBulkItem) *model.BulkItemResult {
	item := &model.BulkItemResult{
		ImageName:                imageName,
		IsValidGroceryStore:      raw.IsValidGroceryStore,
		StoreType:                strings.TrimSpace(raw.StoreType),
		StoreTypeConfidence:      normalizeConfidence(raw.StoreTypeConfidence),
		EstimatedStoreSize:       strings.TrimSpace(raw.EstimatedStoreSize),
		VisibleBrands:            raw.VisibleBrands,
		DominantBrand:            strings.TrimSpace(raw.DominantBrand),
		AdMaterialsDetected:      raw.AdMaterialsDetected,
		CategoryDetected:         strings.TrimSpace(raw.CategoryDetected),
		ShelfDensityEstimate:     strings.TrimSpace(raw.ShelfDensityEstimate),
		OutOfStockSignals:        strings.TrimSpace(raw.OutOfStockSignals),
		CompetitiveBrandPresence: strings.TrimSpace(raw.CompetitiveBrandPresence),
		Reasoning:                strings.TrimSpace(raw.Reasoning),
	}
	if item.StoreType == "" {
		item.StoreType = "unknown"
	}
	if item.EstimatedStoreSize == "" {
		item.EstimatedStoreSize = "unknown"
	}
	if item.VisibleBrands == nil {
		item.VisibleBrands = []string{}
	}
	if item.AdMaterialsDetected == nil {
		item.AdMaterialsDetected = []string{}
	}
	if item.ShelfDensityEstimate == "" {
		item.ShelfDensityEstimate = "unknown"
	}
	return item
}

// FailedBulkItem is the placeholder record for an image whose analysis
// failed. It preserves the item's position in the batch output.
func FailedBulkItem(imageName string, err error) *model.BulkItemResult {
	return &model.BulkItemResult{
		ImageName:            imageName,
		IsValidGroceryStore:  false,
		StoreType:            "unknown",
		EstimatedStoreSize:   "unknown",
		VisibleBrands:        []string{},
		AdMaterialsDetected:  []string{},
		ShelfDensityEstimate: "unknown",
		Reasoning:            fmt.Sprintf("analysis failed: %v", err),
	}
}
