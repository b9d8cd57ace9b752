package report

import (
	"strings"

	"topiclens/internal/domain"
)

// SentimentSummary is a coarse per-topic mood indicator for the report. It
// is lexicon-based keyword counting over customer messages, deliberately
// cheap: no inference budget is spent on sentiment.
type SentimentSummary struct {
	Positive int
	Negative int
	Neutral  int
	Label    string
}

var positiveWords = []string{
	"thank", "thanks", "great", "perfect", "resolved", "solved", "awesome",
	"appreciate", "helpful", "works now", "fixed",
}

var negativeWords = []string{
	"frustrated", "angry", "terrible", "awful", "broken", "useless",
	"unacceptable", "cancel", "refund", "disappointed", "worst", "still not working",
}

// AnalyzeSentiment scores each conversation by customer-message keyword
// hits and tallies the partition.
func AnalyzeSentiment(records []domain.Conversation) SentimentSummary {
	var s SentimentSummary
	for _, conv := range records {
		score := 0
		text := strings.ToLower(conv.CustomerText())
		for _, w := range positiveWords {
			if strings.Contains(text, w) {
				score++
			}
		}
		for _, w := range negativeWords {
			if strings.Contains(text, w) {
				score--
			}
		}
		switch {
		case score > 0:
			s.Positive++
		case score < 0:
			s.Negative++
		default:
			s.Neutral++
		}
	}
	switch {
	case s.Negative > s.Positive:
		s.Label = "negative"
	case s.Positive > s.Negative:
		s.Label = "positive"
	default:
		s.Label = "neutral"
	}
	return s
}
