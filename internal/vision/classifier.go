// Package vision classifies storefront evidence images into the closed
// store-type taxonomy and extracts brand-level signals.
package vision

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"strings"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"github.com/gravi-labs/retail-verify/internal/llm"
	"github.com/gravi-labs/retail-verify/internal/model"
)

// ErrMalformed means the model output could not be parsed into the expected
// JSON shape even after cleanup.
var ErrMalformed = eris.New("vision: malformed model output")

const classifySystemPrompt = `You are a retail store verification analyst. You examine storefront and in-store photographs of Indian FMCG retail outlets and report structured findings. Respond with a single valid JSON object and nothing else.`

const classifyPromptTemplate = `Analyze these %d photographs of the store "%s".

Classify the store as exactly one of the following types:
%s

If the photographs do not support any of these types, use "UNCLASSIFIED".

Report detected FMCG brands grouped by product category, a shelf density
score from 0.0 (empty) to 10.0 (fully stocked), and any store name visible
in the images.

Respond with a JSON object matching this schema:
%s`

// rawClassification is the wire shape the model is asked to produce. The
// jsonschema tags feed the prompt contract.
type rawClassification struct {
	StoreType          string              `json:"store_type" jsonschema:"required"`
	Confidence         float64             `json:"confidence" jsonschema:"required,description=0-100"`
	DetectedBrands     map[string][]string `json:"detected_brands"`
	ShelfDensityScore  float64             `json:"shelf_density_score"`
	StoreNameFromImage string              `json:"store_name_from_image"`
	Reasoning          string              `json:"reasoning"`
}

var classificationSchema = llm.MustSchemaJSON[rawClassification]()

// Classifier runs image classification through an llm.Provider.
type Classifier struct {
	provider    llm.Provider
	maxTokens   int64
	temperature float64
}

// NewClassifier creates a Classifier.
func NewClassifier(provider llm.Provider, maxTokens int64, temperature float64) *Classifier {
	return &Classifier{provider: provider, maxTokens: maxTokens, temperature: temperature}
}

// Classify sends the evidence images to the model and validates the result.
// Every field of the returned ClassificationResult is defined; out-of-taxonomy
// labels collapse to UNCLASSIFIED and confidence is normalized to 0-100.
func (c *Classifier) Classify(ctx context.Context, bundle *model.EvidenceBundle, placeName string) (*model.ClassificationResult, error) {
	taxonomyList := make([]string, 0, len(model.AllStoreTypes()))
	for _, st := range model.AllStoreTypes() {
		taxonomyList = append(taxonomyList, "- "+string(st))
	}

	prompt := fmt.Sprintf(classifyPromptTemplate,
		len(bundle.Images), placeName, strings.Join(taxonomyList, "\n"), classificationSchema)

	images := make([]llm.Image, len(bundle.Images))
	for i, img := range bundle.Images {
		images[i] = llm.Image{MediaType: img.MediaType, Data: img.Data}
	}

	resp, err := c.provider.Complete(ctx, llm.Request{
		System:      classifySystemPrompt,
		Prompt:      prompt,
		Images:      images,
		MaxTokens:   c.maxTokens,
		Temperature: c.temperature,
	})
	if err != nil {
		return nil, eris.Wrap(err, "vision: classify")
	}

	result, err := parseClassification(resp.Text)
	if err != nil {
		return nil, err
	}

	zap.L().Info("classification complete",
		zap.String("place_id", bundle.PlaceID),
		zap.String("store_type", string(result.StoreType)),
		zap.Int("confidence", result.Confidence))

	return result, nil
}

func parseClassification(text string) (*model.ClassificationResult, error) {
	cleaned := cleanJSON(text)

	var raw rawClassification
	if err := json.Unmarshal([]byte(cleaned), &raw); err != nil {
		return nil, eris.Wrapf(ErrMalformed, "unmarshal: %v", err)
	}

	result := &model.ClassificationResult{
		StoreType:          model.CoerceStoreType(strings.TrimSpace(raw.StoreType)),
		Confidence:         normalizeConfidence(raw.Confidence),
		DetectedBrands:     pruneBrands(raw.DetectedBrands),
		ShelfDensityScore:  clampFloat(raw.ShelfDensityScore, 0, 10),
		StoreNameFromImage: strings.TrimSpace(raw.StoreNameFromImage),
		Reasoning:          strings.TrimSpace(raw.Reasoning),
	}
	if result.StoreNameFromImage == "" {
		result.StoreNameFromImage = "Unknown"
	}
	return result, nil
}

// normalizeConfidence accepts both 0-1 and 0-100 scales from the model and
// returns a clamped 0-100 integer. Values at or below 1 are treated as a
// fraction.
func normalizeConfidence(raw float64) int {
	if raw <= 1 {
		raw *= 100
	}
	return int(math.Round(clampFloat(raw, 0, 100)))
}

var titleCaser = cases.Title(language.English)

// pruneBrands drops categories with no brands and normalizes the category
// keys to title case so equivalent spellings merge.
func pruneBrands(raw map[string][]string) map[string][]string {
	out := make(map[string][]string)
	for category, brands := range raw {
		var kept []string
		for _, b := range brands {
			if b = strings.TrimSpace(b); b != "" {
				kept = append(kept, b)
			}
		}
		if len(kept) == 0 {
			continue
		}
		key := titleCaser.String(strings.TrimSpace(category))
		out[key] = append(out[key], kept...)
	}
	return out
}

func clampFloat(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// cleanJSON strips markdown fences and extracts the JSON object.
func cleanJSON(text string) string {
	text = strings.TrimSpace(text)

	if strings.HasPrefix(text, "```json") {
		text = strings.TrimPrefix(text, "```json")
		if idx := strings.LastIndex(text, "```"); idx >= 0 {
			text = text[:idx]
		}
	} else if strings.HasPrefix(text, "```") {
		text = strings.TrimPrefix(text, "```")
		if idx := strings.LastIndex(text, "```"); idx >= 0 {
			text = text[:idx]
		}
	}

	start := strings.Index(text, "{")
	end := strings.LastIndex(text, "}")
	if start >= 0 && end > start {
		text = text[start : end+1]
	}

	return strings.TrimSpace(text)
}
