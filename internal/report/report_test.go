package report

import (
	"strings"
	"testing"
	"time"

	"topiclens/internal/domain"
)

func conv(id, body string) domain.Conversation {
	return domain.Conversation{
		ID:       id,
		Messages: []domain.Message{{Role: domain.RoleCustomer, Body: body}},
	}
}

func TestAnalyzeSentimentTallies(t *testing.T) {
	records := []domain.Conversation{
		conv("a", "thanks, that fixed it, great support"),
		conv("b", "this is broken and I am frustrated"),
		conv("c", "this is unacceptable, worst experience, cancel my plan"),
		conv("d", "how do I change my email address"),
	}
	s := AnalyzeSentiment(records)

	if s.Positive != 1 || s.Negative != 2 || s.Neutral != 1 {
		t.Fatalf("sentiment tallies = %+v", s)
	}
	if s.Label != "negative" {
		t.Fatalf("label = %s, want negative", s.Label)
	}
}

func TestAnalyzeSentimentIgnoresAgentMessages(t *testing.T) {
	records := []domain.Conversation{
		{
			ID: "a",
			Messages: []domain.Message{
				{Role: domain.RoleCustomer, Body: "my invoice is missing"},
				{Role: domain.RoleAgent, Body: "thanks for your patience, great question"},
			},
		},
	}
	s := AnalyzeSentiment(records)
	if s.Positive != 0 || s.Neutral != 1 {
		t.Fatalf("agent text leaked into sentiment: %+v", s)
	}
}

func TestSelectExamplesPrefersRepresentative(t *testing.T) {
	// Four conversations about exports, one outlier. The centroid is
	// dominated by export language, so the outlier must rank last.
	records := []domain.Conversation{
		conv("a", "the csv export fails with an error"),
		conv("b", "export to csv is broken again"),
		conv("c", "csv export gives me an error every time"),
		conv("d", "another export error with the csv file"),
		conv("e", "my password reset email never arrives"),
	}
	examples := SelectExamples(records, 2)

	if len(examples) != 2 {
		t.Fatalf("expected 2 examples, got %d", len(examples))
	}
	for _, ex := range examples {
		if strings.Contains(ex, "password reset") {
			t.Fatalf("outlier conversation selected as representative: %q", ex)
		}
	}
}

func TestSelectExamplesSmallPartition(t *testing.T) {
	records := []domain.Conversation{conv("a", "only one")}
	examples := SelectExamples(records, 3)
	if len(examples) != 1 || examples[0] != "only one" {
		t.Fatalf("unexpected examples: %v", examples)
	}
	if got := SelectExamples(nil, 3); got != nil {
		t.Fatalf("empty partition should yield no examples, got %v", got)
	}
}

func TestSelectExamplesTruncatesSnippets(t *testing.T) {
	long := strings.Repeat("payment declined again ", 30)
	examples := SelectExamples([]domain.Conversation{conv("a", long)}, 1)
	if len(examples) != 1 {
		t.Fatalf("expected 1 example, got %d", len(examples))
	}
	if len([]rune(examples[0])) > exampleSnippetChars+3 {
		t.Fatalf("snippet not truncated: %d chars", len([]rune(examples[0])))
	}
	if !strings.HasSuffix(examples[0], "...") {
		t.Fatalf("truncated snippet missing ellipsis: %q", examples[0])
	}
}

func TestBuildTopicSummarySplitsProvenance(t *testing.T) {
	p := domain.Partition{
		Topic: "Billing",
		Records: []domain.Conversation{
			conv("a", "refund please"),
			conv("b", "invoice question"),
			conv("c", "charge dispute"),
		},
		Results: []domain.Result{
			{ConversationID: "a", Tier1: "Billing", Method: domain.MethodInference},
			{ConversationID: "b", Tier1: "Billing", Method: domain.MethodInferenceCorrectingHint},
			{ConversationID: "c", Tier1: "Billing", Method: domain.MethodKeywordFallback},
		},
	}
	s := BuildTopicSummary(p, nil, nil, 10, 3)

	if s.FullConfidence != 2 || s.ViaFallback != 1 {
		t.Fatalf("provenance split = %d/%d, want 2/1", s.FullConfidence, s.ViaFallback)
	}
	if s.PctOfClassified != 30 {
		t.Fatalf("pct = %v, want 30", s.PctOfClassified)
	}
}

func TestBuildTopicSummaryUnclassifiableExcludedFromPct(t *testing.T) {
	p := domain.Partition{
		Topic:   domain.Unclassifiable,
		Records: []domain.Conversation{conv("a", "???")},
		Results: []domain.Result{{ConversationID: "a", Tier1: domain.Unclassifiable, Method: domain.MethodInference}},
	}
	s := BuildTopicSummary(p, nil, nil, 10, 3)
	if s.PctOfClassified != 0 {
		t.Fatalf("unclassifiable partition got a percentage: %v", s.PctOfClassified)
	}
}

func TestRenderKeepsVolumesDistinct(t *testing.T) {
	s := PassSummary{
		GeneratedAt:    time.Date(2026, 8, 20, 9, 0, 0, 0, time.UTC),
		WindowFrom:     time.Date(2026, 8, 13, 0, 0, 0, 0, time.UTC),
		WindowTo:       time.Date(2026, 8, 20, 0, 0, 0, 0, time.UTC),
		TotalRecords:   50,
		Classified:     45,
		Unclassifiable: 5,
		TaskStates:     map[string]int{"completed": 3, "skipped": 1},
		Topics: []TopicSummary{
			{
				Topic:           "Billing",
				Count:           30,
				PctOfClassified: 66.7,
				FullConfidence:  28,
				ViaFallback:     2,
				Sentiment:       SentimentSummary{Label: "negative", Negative: 20, Neutral: 10},
				Tier2:           []domain.Tier2Group{{Name: "Payment Method", Count: 12}},
				Themes:          []domain.Theme{{Name: "Export Failures", Keywords: []string{"export", "csv"}, Count: 7}},
				Examples:        []string{"my refund never arrived"},
			},
			{
				Topic: domain.Unclassifiable,
				Count: 5,
			},
		},
	}
	out := Render(s)

	for _, want := range []string{
		"Records analyzed: 50",
		"Classified into a topic: 45",
		"Unclassifiable: 5",
		"28 classified normally, 2 via fallback",
		"Payment Method: 12",
		"Export Failures (7 matching conversations; keywords: export, csv)",
		"completed=3",
		"skipped=1",
		"> my refund never arrived",
	} {
		if !strings.Contains(out, want) {
			t.Fatalf("report missing %q:\n%s", want, out)
		}
	}
	// The unclassifiable section carries no share of classified volume.
	if strings.Contains(out, "Unclassifiable — 5 records (") {
		t.Fatalf("unclassifiable section rendered with a percentage:\n%s", out)
	}
}
