// Package report is the downstream consumer of the classification core: it
// turns partitions plus their results into the per-topic executive report.
// Its per-topic entry points are only ever invoked for non-empty partitions;
// the coordinator's skip logic guarantees that.
package report

import (
	"time"

	"topiclens/internal/domain"
	"topiclens/internal/inference"
)

type TopicSummary struct {
	Topic           string
	Count           int
	PctOfClassified float64
	// Volumes split by provenance. Collapsing these buckets would silently
	// corrupt the percentages, so they stay separate all the way out.
	FullConfidence int
	ViaFallback    int
	Tier2          []domain.Tier2Group
	Themes         []domain.Theme
	Sentiment      SentimentSummary
	Examples       []string
}

type PassSummary struct {
	GeneratedAt    time.Time
	WindowFrom     time.Time
	WindowTo       time.Time
	TotalRecords   int
	Classified     int
	Unclassifiable int
	InferenceCalls int
	Usage          inference.Usage
	TaskStates     map[string]int
	Topics         []TopicSummary
}

// BuildTopicSummary assembles one topic's report entry from its partition
// and the tier-2/tier-3 analysis output. classifiedTotal is the pass-wide
// count of specifically classified records; unclassifiable volume is
// excluded from percentages but kept in raw counts.
func BuildTopicSummary(p domain.Partition, tier2 []domain.Tier2Group, themes []domain.Theme, classifiedTotal, exampleCount int) TopicSummary {
	s := TopicSummary{
		Topic:  p.Topic,
		Count:  p.Size(),
		Tier2:  tier2,
		Themes: themes,
	}
	if classifiedTotal > 0 && p.Topic != domain.Unclassifiable {
		s.PctOfClassified = float64(p.Size()) / float64(classifiedTotal) * 100
	}
	for _, r := range p.Results {
		switch r.Method {
		case domain.MethodInference, domain.MethodInferenceCorrectingHint:
			s.FullConfidence++
		default:
			s.ViaFallback++
		}
	}
	s.Sentiment = AnalyzeSentiment(p.Records)
	s.Examples = SelectExamples(p.Records, exampleCount)
	return s
}
