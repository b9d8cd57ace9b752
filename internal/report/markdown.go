package report

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"topiclens/internal/domain"
)

// Render produces the pass report as markdown. High-confidence volume,
// fallback volume, and unclassifiable volume are reported as distinct
// numbers; merging them is a correctness defect, not a cosmetic one.
func Render(s PassSummary) string {
	var b strings.Builder

	fmt.Fprintf(&b, "# Support Topic Report — %s\n\n", s.GeneratedAt.Format("2006-01-02"))
	fmt.Fprintf(&b, "Window: %s to %s\n\n", s.WindowFrom.Format("2006-01-02"), s.WindowTo.Format("2006-01-02"))
	fmt.Fprintf(&b, "- Records analyzed: %d\n", s.TotalRecords)
	fmt.Fprintf(&b, "- Classified into a topic: %d\n", s.Classified)
	fmt.Fprintf(&b, "- Unclassifiable: %d (kept in raw counts, excluded from topic percentages)\n", s.Unclassifiable)
	fmt.Fprintf(&b, "- Inference calls: %d (tokens in/out: %d/%d)\n", s.InferenceCalls, s.Usage.InputTokens, s.Usage.OutputTokens)
	if len(s.TaskStates) > 0 {
		fmt.Fprintf(&b, "- Partition tasks: completed=%d failed=%d skipped=%d\n",
			s.TaskStates["completed"], s.TaskStates["failed"], s.TaskStates["skipped"])
	}
	b.WriteString("\n")

	for _, t := range s.Topics {
		if t.Topic == domain.Unclassifiable {
			fmt.Fprintf(&b, "## %s — %d records\n\n", t.Topic, t.Count)
		} else {
			fmt.Fprintf(&b, "## %s — %d records (%.1f%% of classified volume)\n\n", t.Topic, t.Count, t.PctOfClassified)
		}
		fmt.Fprintf(&b, "Confidence: %d classified normally, %d via fallback (inference unavailable)\n\n",
			t.FullConfidence, t.ViaFallback)
		fmt.Fprintf(&b, "Sentiment: %s (%d positive / %d negative / %d neutral)\n\n",
			t.Sentiment.Label, t.Sentiment.Positive, t.Sentiment.Negative, t.Sentiment.Neutral)

		if len(t.Tier2) > 0 {
			b.WriteString("### Subcategories\n\n")
			for _, g := range t.Tier2 {
				fmt.Fprintf(&b, "- %s: %d\n", g.Name, g.Count)
			}
			b.WriteString("\n")
		}
		if len(t.Themes) > 0 {
			b.WriteString("### Emerging themes\n\n")
			for _, theme := range t.Themes {
				fmt.Fprintf(&b, "- %s (%d matching conversations; keywords: %s)\n",
					theme.Name, theme.Count, strings.Join(theme.Keywords, ", "))
			}
			b.WriteString("\n")
		}
		if len(t.Examples) > 0 {
			b.WriteString("### Examples\n\n")
			for _, ex := range t.Examples {
				fmt.Fprintf(&b, "> %s\n\n", ex)
			}
		}
	}
	return b.String()
}

// Write renders the report to a timestamped file under dir and returns its
// path.
func Write(dir string, s PassSummary) (string, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", fmt.Errorf("create report dir: %w", err)
	}
	path := filepath.Join(dir, fmt.Sprintf("topics-%s.md", s.GeneratedAt.Format("2006-01-02-150405")))
	if err := os.WriteFile(path, []byte(Render(s)), 0644); err != nil {
		return "", fmt.Errorf("write report: %w", err)
	}
	return path, nil
}
