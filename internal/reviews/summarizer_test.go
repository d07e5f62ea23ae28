package reviews

import (
	"context"
	"testing"

	"github.com/rotisserie/eris"
	"github.com/stretchr/testify/assert"

	"github.com/gravi-labs/retail-verify/internal/llm"
	"github.com/gravi-labs/retail-verify/internal/model"
)

type fakeProvider struct {
	text   string
	err    error
	called bool
}

func (f *fakeProvider) Complete(_ context.Context, _ llm.Request) (*llm.Response, error) {
	f.called = true
	if f.err != nil {
		return nil, f.err
	}
	return &llm.Response{Text: f.text}, nil
}

func someReviews() []model.Review {
	return []model.Review{
		{Author: "Asha", Rating: 5, Text: "great selection", Date: "2026-08-01"},
		{Author: "Ravi", Rating: 2, Text: "crowded aisles", Date: "2026-07-15"},
	}
}

func TestSummarize_EmptyReviewsShortCircuits(t *testing.T) {
	provider := &fakeProvider{text: `{"sentiment": "positive", "common_themes": ["x"]}`}
	s := NewSummarizer(provider, 600, 0.05)

	intel := s.Summarize(context.Background(), nil)

	assert.False(t, provider.called, "model must not be invoked for zero reviews")
	assert.Equal(t, model.SentimentUnknown, intel.Sentiment)
	assert.Empty(t, intel.CommonThemes)
	assert.NotNil(t, intel.CommonThemes)
}

func TestSummarize_Success(t *testing.T) {
	provider := &fakeProvider{text: "```json\n{\"sentiment\": \"Mixed\", \"common_themes\": [\"fresh produce\", \" \", \"long queues\"]}\n```"}
	s := NewSummarizer(provider, 600, 0.05)

	intel := s.Summarize(context.Background(), someReviews())

	assert.Equal(t, model.SentimentMixed, intel.Sentiment)
	assert.Equal(t, []string{"fresh produce", "long queues"}, intel.CommonThemes)
}

func TestSummarize_ProviderErrorDegrades(t *testing.T) {
	provider := &fakeProvider{err: eris.New("model down")}
	s := NewSummarizer(provider, 600, 0.05)

	intel := s.Summarize(context.Background(), someReviews())

	assert.Equal(t, model.UnknownReviewIntelligence(), intel)
}

func TestSummarize_UnparseableOutputDegrades(t *testing.T) {
	provider := &fakeProvider{text: "the customers seem happy overall"}
	s := NewSummarizer(provider, 600, 0.05)

	intel := s.Summarize(context.Background(), someReviews())

	assert.Equal(t, model.UnknownReviewIntelligence(), intel)
}

func TestSummarize_UnknownSentimentCoerced(t *testing.T) {
	provider := &fakeProvider{text: `{"sentiment": "ecstatic", "common_themes": []}`}
	s := NewSummarizer(provider, 600, 0.05)

	intel := s.Summarize(context.Background(), someReviews())

	assert.Equal(t, model.SentimentUnknown, intel.Sentiment)
}

func TestSummarize_ThemesCapped(t *testing.T) {
	provider := &fakeProvider{text: `{"sentiment": "positive", "common_themes": ["a","b","c","d","e","f","g","h"]}`}
	s := NewSummarizer(provider, 600, 0.05)

	intel := s.Summarize(context.Background(), someReviews())

	assert.Len(t, intel.CommonThemes, model.MaxCommonThemes)
}
