package domain

import "time"

// DetectionMethod records which signal decided a conversation's tier-1 label.
// Reporting splits volumes by method, so the distinction between "classified
// normally", "classified via fallback" and "unclassifiable" must survive all
// the way to the final report.
type DetectionMethod string

const (
	// MethodInference: the inference engine answered and no structured hint
	// disagreed with it.
	MethodInference DetectionMethod = "inference"
	// MethodInferenceCorrectingHint: the engine answered and overrode a
	// structured hint that named something else.
	MethodInferenceCorrectingHint DetectionMethod = "inference-correcting-structured-hint"
	// MethodKeywordFallback: the engine was unavailable, the top keyword
	// match decided the label.
	MethodKeywordFallback DetectionMethod = "keyword-fallback"
	// MethodStructured: the engine was unavailable and no keyword matched,
	// but the structured hint named a valid topic.
	MethodStructured DetectionMethod = "structured-attribute"
	// MethodFallback: no engine, no keywords, no usable hint.
	MethodFallback DetectionMethod = "fallback"
)

// Unclassifiable is the designated label for conversations the engine
// declines to place in a specific topic. Such records are kept in raw counts
// but excluded from percentage-of-volume computations.
const Unclassifiable = "Unclassifiable"

type SubLabel struct {
	Tier2      string
	Tier3      string
	Confidence float64
}

// Result is the classification of one conversation. Created once per
// analysis pass and never mutated; re-running a pass produces new Results.
type Result struct {
	ConversationID string
	Tier1          string
	Confidence     float64
	Method         DetectionMethod
	SubLabels      []SubLabel
	ClassifiedAt   time.Time
}

// Classified reports whether the record landed in a specific topic.
func (r Result) Classified() bool {
	return r.Tier1 != "" && r.Tier1 != Unclassifiable
}

type Tier2Group struct {
	Name  string
	Count int
}

// Theme is a tier-3 sub-issue discovered at analysis time. Themes are local
// to the pass that discovered them; they are never written back into the
// taxonomy.
type Theme struct {
	Name     string
	Keywords []string
	Count    int
}
