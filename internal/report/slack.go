package report

import (
	"fmt"
	"log"
	"strings"

	"github.com/slack-go/slack"
)

// Notifier posts a short pass summary to a Slack channel. Optional: a
// missing channel disables it without error.
type Notifier struct {
	api     *slack.Client
	channel string
}

func NewNotifier(botToken, channel string) *Notifier {
	if botToken == "" || channel == "" {
		return nil
	}
	return &Notifier{api: slack.New(botToken), channel: channel}
}

// PostSummary sends the headline numbers plus the top topics. Failure is
// logged, not fatal: report delivery must never sink a completed pass.
func (n *Notifier) PostSummary(s PassSummary, reportPath string) error {
	if n == nil {
		return nil
	}

	var b strings.Builder
	fmt.Fprintf(&b, "*Support topic report* (%s to %s)\n",
		s.WindowFrom.Format("Jan 2"), s.WindowTo.Format("Jan 2"))
	fmt.Fprintf(&b, "%d records, %d classified, %d unclassifiable\n",
		s.TotalRecords, s.Classified, s.Unclassifiable)
	for i, t := range s.Topics {
		if i >= 5 {
			break
		}
		fmt.Fprintf(&b, "• %s: %d (%.1f%%)\n", t.Topic, t.Count, t.PctOfClassified)
	}
	if reportPath != "" {
		fmt.Fprintf(&b, "Full report: %s", reportPath)
	}

	_, _, err := n.api.PostMessage(n.channel, slack.MsgOptionText(b.String(), false))
	if err != nil {
		log.Printf("slack post failed channel=%s err=%v", n.channel, err)
		return fmt.Errorf("posting summary: %w", err)
	}
	return nil
}
