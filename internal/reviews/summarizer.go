// Package reviews distills customer reviews into aggregate sentiment and
// common themes. Summarization is a best-effort enrichment: it degrades to
// an unknown result rather than failing a verification run.
package reviews

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/gravi-labs/retail-verify/internal/llm"
	"github.com/gravi-labs/retail-verify/internal/model"
)

const summarizeSystemPrompt = `You summarize customer reviews of retail stores. Respond with a single valid JSON object and nothing else.`

const summarizePromptTemplate = `Here are %d customer reviews of a retail store:

%s

Summarize the overall sentiment as one of "positive", "mixed" or "negative",
and list the most common themes (at most %d, short phrases).

Respond with a JSON object matching this schema:
%s`

type rawSummary struct {
	Sentiment    string   `json:"sentiment" jsonschema:"required,enum=positive,enum=mixed,enum=negative"`
	CommonThemes []string `json:"common_themes" jsonschema:"required"`
}

var summarySchema = llm.MustSchemaJSON[rawSummary]()

// Summarizer produces review intelligence through an llm.Provider.
type Summarizer struct {
	provider    llm.Provider
	maxTokens   int64
	temperature float64
}

// NewSummarizer creates a Summarizer.
func NewSummarizer(provider llm.Provider, maxTokens int64, temperature float64) *Summarizer {
	return &Summarizer{provider: provider, maxTokens: maxTokens, temperature: temperature}
}

// Summarize returns review intelligence for the given reviews. It never
// returns an error: with no reviews it short-circuits to the unknown result
// without calling the model, and any model or parse failure degrades the
// same way.
func (s *Summarizer) Summarize(ctx context.Context, revs []model.Review) model.ReviewIntelligence {
	if len(revs) == 0 {
		return model.UnknownReviewIntelligence()
	}

	var sb strings.Builder
	for i, r := range revs {
		fmt.Fprintf(&sb, "%d. [%d stars] %s: %s\n", i+1, r.Rating, r.Author, r.Text)
	}

	prompt := fmt.Sprintf(summarizePromptTemplate,
		len(revs), sb.String(), model.MaxCommonThemes, summarySchema)

	resp, err := s.provider.Complete(ctx, llm.Request{
		System:      summarizeSystemPrompt,
		Prompt:      prompt,
		MaxTokens:   s.maxTokens,
		Temperature: s.temperature,
	})
	if err != nil {
		zap.L().Warn("review summarization failed, degrading to unknown", zap.Error(err))
		return model.UnknownReviewIntelligence()
	}

	var raw rawSummary
	if err := json.Unmarshal([]byte(cleanJSON(resp.Text)), &raw); err != nil {
		zap.L().Warn("review summary unparseable, degrading to unknown", zap.Error(err))
		return model.UnknownReviewIntelligence()
	}

	themes := make([]string, 0, model.MaxCommonThemes)
	for _, t := range raw.CommonThemes {
		if t = strings.TrimSpace(t); t == "" {
			continue
		}
		themes = append(themes, t)
		if len(themes) == model.MaxCommonThemes {
			break
		}
	}

	return model.ReviewIntelligence{
		Sentiment:    model.CoerceSentiment(strings.ToLower(strings.TrimSpace(raw.Sentiment))),
		CommonThemes: themes,
	}
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
