package insight

import (
	"context"
	"strings"
)

type Sentiment string

const (
	SentimentPositive Sentiment = "positive"
	SentimentNeutral  Sentiment = "neutral"
	SentimentNegative Sentiment = "negative"
)

// Analyzer labels free-form text with a sentiment. The real implementation
// lives outside this service; anything satisfying this interface can be
// injected.
type Analyzer interface {
	Analyze(ctx context.Context, text string) (Sentiment, error)
}

// KeywordAnalyzer is a stand-in analyzer that scores text by keyword
// hits. It also serves as the test double.
type KeywordAnalyzer struct{}

var positiveWords = []string{"saved", "paid off", "under budget", "on track", "invested", "great", "goal"}
var negativeWords = []string{"overspent", "debt", "missed", "late fee", "over budget", "worried"}

func (KeywordAnalyzer) Analyze(ctx context.Context, text string) (Sentiment, error) {
	lower := strings.ToLower(text)

	score := 0
	for _, w := range positiveWords {
		if strings.Contains(lower, w) {
			score++
		}
	}
	for _, w := range negativeWords {
		if strings.Contains(lower, w) {
			score--
		}
	}

	switch {
	case score > 0:
		return SentimentPositive, nil
	case score < 0:
		return SentimentNegative, nil
	default:
		return SentimentNeutral, nil
	}
}
