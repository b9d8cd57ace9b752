// Package discover finds emergent tier-3 themes per tier-1 partition: one
// expensive inference call over a small stratified sample, then a cheap
// keyword rescan over the whole partition. Discovery calls are the most
// expensive operation in a pass and must never run per-record.
package discover

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"sort"
	"strings"

	ahocorasick "github.com/cloudflare/ahocorasick"

	"topiclens/internal/domain"
	"topiclens/internal/inference"
)

// Engine is the slice of the inference contract the discoverer needs.
type Engine interface {
	Complete(ctx context.Context, p inference.Prompt) (string, inference.Usage, error)
}

const (
	DefaultSampleSize = 20
	DefaultMaxThemes  = 5
	snippetChars      = 300
)

type Discoverer struct {
	engine     Engine
	sampleSize int
	maxThemes  int
}

func NewDiscoverer(engine Engine, sampleSize, maxThemes int) *Discoverer {
	if sampleSize < 1 {
		sampleSize = DefaultSampleSize
	}
	if maxThemes < 1 || maxThemes > DefaultMaxThemes {
		maxThemes = DefaultMaxThemes
	}
	return &Discoverer{engine: engine, sampleSize: sampleSize, maxThemes: maxThemes}
}

// Discover proposes up to maxThemes new themes for the partition and counts,
// without further inference calls, how many of the partition's conversations
// match each theme's keywords. An empty partition returns immediately with
// zero inference calls spent. Failures yield zero themes, never an error:
// one partition's bad luck must not abort its siblings.
func (d *Discoverer) Discover(ctx context.Context, p domain.Partition, tier2Names []string) []domain.Theme {
	if p.Size() == 0 {
		return nil
	}

	sample := StratifiedSample(p.Records, d.sampleSize)
	themes, err := d.propose(ctx, p.Topic, sample, tier2Names)
	if err != nil {
		if inference.IsMalformed(err) {
			log.Printf("discover malformed themes topic=%s err=%v", p.Topic, err)
		} else {
			log.Printf("discover inference unavailable topic=%s err=%v", p.Topic, err)
		}
		return nil
	}
	if len(themes) == 0 {
		return nil
	}

	Rescan(themes, p.Records)
	sort.Slice(themes, func(i, j int) bool {
		if themes[i].Count != themes[j].Count {
			return themes[i].Count > themes[j].Count
		}
		return themes[i].Name < themes[j].Name
	})
	return themes
}

// StratifiedSample picks size records spread evenly across the partition's
// time range, oldest first, so discovery is not biased toward the most
// recent conversations. Deterministic for a given record set.
func StratifiedSample(records []domain.Conversation, size int) []domain.Conversation {
	if size >= len(records) {
		out := make([]domain.Conversation, len(records))
		copy(out, records)
		sortByStart(out)
		return out
	}

	sorted := make([]domain.Conversation, len(records))
	copy(sorted, records)
	sortByStart(sorted)

	out := make([]domain.Conversation, 0, size)
	step := float64(len(sorted)) / float64(size)
	for i := 0; i < size; i++ {
		idx := int(float64(i) * step)
		if idx >= len(sorted) {
			idx = len(sorted) - 1
		}
		out = append(out, sorted[idx])
	}
	return out
}

func sortByStart(records []domain.Conversation) {
	sort.SliceStable(records, func(i, j int) bool {
		return records[i].StartedAt().Before(records[j].StartedAt())
	})
}

type proposedTheme struct {
	Name     string   `json:"name"`
	Keywords []string `json:"keywords"`
}

func (d *Discoverer) propose(ctx context.Context, topic string, sample []domain.Conversation, tier2Names []string) ([]domain.Theme, error) {
	var convs strings.Builder
	for i, conv := range sample {
		text := conv.CustomerText()
		if len(text) > snippetChars {
			text = text[:snippetChars] + "..."
		}
		convs.WriteString(fmt.Sprintf("%d. %s\n", i+1, text))
	}

	covered := "none"
	if len(tier2Names) > 0 {
		covered = strings.Join(tier2Names, "; ")
	}

	sys := fmt.Sprintf(`You find recurring themes in customer-support conversations about %q.
Find 3-5 themes that:
- appear in multiple of the sampled conversations
- are NOT already covered by the known subcategories
- are specific enough to be actionable
For each theme give 3-5 keywords likely to appear verbatim in matching conversations.

Respond with JSON only (no markdown):
[{"name": "Theme Name", "keywords": ["kw1", "kw2", "kw3"]}, ...]
Return [] if no such themes exist.`, topic)

	user := fmt.Sprintf("Known subcategories: %s\n\nSampled conversations:\n%s", covered, convs.String())

	text, _, err := d.engine.Complete(ctx, inference.Prompt{System: sys, User: user, MaxTokens: 1024})
	if err != nil {
		return nil, err
	}
	return d.parseThemes(text)
}

// parseThemes accepts only the strict JSON shape the prompt demands. A
// malformed response means zero themes for this partition, not a guess.
func (d *Discoverer) parseThemes(text string) ([]domain.Theme, error) {
	cleaned := stripFences(text)

	var proposed []proposedTheme
	if err := json.Unmarshal([]byte(cleaned), &proposed); err != nil {
		return nil, inference.Malformed(text, fmt.Errorf("parsing theme list: %w", err))
	}

	themes := make([]domain.Theme, 0, len(proposed))
	for _, p := range proposed {
		name := strings.TrimSpace(p.Name)
		var keywords []string
		for _, kw := range p.Keywords {
			kw = strings.ToLower(strings.TrimSpace(kw))
			if kw != "" {
				keywords = append(keywords, kw)
			}
		}
		if name == "" || len(keywords) == 0 {
			continue
		}
		themes = append(themes, domain.Theme{Name: name, Keywords: keywords})
		if len(themes) == d.maxThemes {
			break
		}
	}
	return themes, nil
}

// Rescan counts, for each theme, the conversations in the full population
// whose text matches any of the theme's keywords. Pure keyword matching: the
// whole point of the sample-then-rescan split is that this pass costs no
// inference budget.
func Rescan(themes []domain.Theme, records []domain.Conversation) {
	for i := range themes {
		matcher := ahocorasick.NewStringMatcher(themes[i].Keywords)
		count := 0
		for _, conv := range records {
			text := strings.ToLower(conv.CustomerText())
			if len(matcher.Match([]byte(text))) > 0 {
				count++
			}
		}
		themes[i].Count = count
	}
}

func stripFences(s string) string {
	s = strings.TrimSpace(s)
	s = strings.TrimPrefix(s, "```json")
	s = strings.TrimPrefix(s, "```")
	s = strings.TrimSuffix(s, "```")
	return strings.TrimSpace(s)
}
