package insight

import (
	"context"
	"testing"
)

func TestKeywordAnalyzer(t *testing.T) {
	a := KeywordAnalyzer{}
	ctx := context.Background()

	cases := []struct {
		text string
		want Sentiment
	}{
		{"Paid off my credit card and stayed on track", SentimentPositive},
		{"Overspent this month and got a late fee", SentimentNegative},
		{"Nothing much happened", SentimentNeutral},
		{"Saved some money but worried about debt", SentimentNegative},
		{"", SentimentNeutral},
	}

	for _, tc := range cases {
		got, err := a.Analyze(ctx, tc.text)
		if err != nil {
			t.Fatalf("Analyze(%q): %v", tc.text, err)
		}
		if got != tc.want {
			t.Errorf("Analyze(%q) = %s, want %s", tc.text, got, tc.want)
		}
	}
}
