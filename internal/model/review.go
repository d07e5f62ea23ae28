package model

// Sentiment is the aggregate review sentiment.
type Sentiment string

const (
	SentimentPositive Sentiment = "positive"
	SentimentMixed    Sentiment = "mixed"
	SentimentNegative Sentiment = "negative"
	SentimentUnknown  Sentiment = "unknown"
)

// CoerceSentiment maps an arbitrary model-returned sentiment into the
// allowed set, falling back to unknown.
func CoerceSentiment(raw string) Sentiment {
	switch Sentiment(raw) {
	case SentimentPositive, SentimentMixed, SentimentNegative:
		return Sentiment(raw)
	}
	return SentimentUnknown
}

// MaxCommonThemes caps the number of themes the summarizer keeps.
const MaxCommonThemes = 6

// ReviewIntelligence is the summarizer output. It always has defined
// values: sentiment defaults to unknown and themes to an empty list.
type ReviewIntelligence struct {
	Sentiment    Sentiment `json:"sentiment"`
	CommonThemes []string  `json:"common_themes"`
}

// UnknownReviewIntelligence is the degraded result used when there are no
// reviews or the summarization model fails.
func UnknownReviewIntelligence() ReviewIntelligence {
	return ReviewIntelligence{Sentiment: SentimentUnknown, CommonThemes: []string{}}
}
