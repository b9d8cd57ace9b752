// Package signal extracts the three independent classification signals from
// a conversation: the structured hint, keyword matches against the taxonomy,
// and the cleaned free text for inference.
package signal

import (
	"sort"
	"strings"

	ahocorasick "github.com/cloudflare/ahocorasick"

	"topiclens/internal/domain"
	"topiclens/internal/taxonomy"
)

// DefaultTextBudget bounds the cleaned text sent to inference. The opening of
// the conversation carries most of the topic signal, so truncating from the
// start trades little accuracy for a large inference-cost saving.
const DefaultTextBudget = 1500

type KeywordMatch struct {
	Topic string
	Count int
}

type Signals struct {
	// StructuredHint is the source system's own categorization, raw and
	// unvalidated. It disagrees with ground truth often enough that it is
	// only ever a hint.
	StructuredHint string
	// AttributeTopics are topics whose structured-attribute key is present
	// on the record. Used for tie-breaking when inference is unavailable.
	AttributeTopics []string
	// KeywordMatches is sorted by distinct-keyword hit count, descending,
	// taxonomy order breaking ties.
	KeywordMatches []KeywordMatch
	CleanedText    string
}

// TopKeyword returns the best keyword match, if any.
func (s Signals) TopKeyword() (KeywordMatch, bool) {
	if len(s.KeywordMatches) == 0 {
		return KeywordMatch{}, false
	}
	return s.KeywordMatches[0], true
}

// HasAttributeTopic reports whether topic's structured-attribute key was
// present on the record.
func (s Signals) HasAttributeTopic(topic string) bool {
	for _, t := range s.AttributeTopics {
		if t == topic {
			return true
		}
	}
	return false
}

// Extractor is a pure function of a conversation; safe for concurrent use.
type Extractor struct {
	reg        *taxonomy.Registry
	matcher    *ahocorasick.Matcher
	topicsFor  [][]string
	topicOrder map[string]int
	budget     int
}

// NewExtractor builds one Aho-Corasick automaton over every topic keyword so
// each record is scanned in a single pass regardless of taxonomy size. The
// matcher deduplicates identical patterns, so the pattern list is built over
// unique keywords with each index fanning out to every topic that registered
// that keyword.
func NewExtractor(reg *taxonomy.Registry, textBudget int) *Extractor {
	if textBudget <= 0 {
		textBudget = DefaultTextBudget
	}
	e := &Extractor{
		reg:        reg,
		topicOrder: make(map[string]int),
		budget:     textBudget,
	}

	indexOf := make(map[string]int)
	var keywords []string
	for i, t := range reg.Topics() {
		e.topicOrder[t.Name] = i
		for _, kw := range t.Keywords {
			kw = strings.ToLower(strings.TrimSpace(kw))
			if kw == "" {
				continue
			}
			idx, ok := indexOf[kw]
			if !ok {
				idx = len(keywords)
				indexOf[kw] = idx
				keywords = append(keywords, kw)
				e.topicsFor = append(e.topicsFor, nil)
			}
			if !containsString(e.topicsFor[idx], t.Name) {
				e.topicsFor[idx] = append(e.topicsFor[idx], t.Name)
			}
		}
	}
	if len(keywords) > 0 {
		e.matcher = ahocorasick.NewStringMatcher(keywords)
	}
	return e
}

func containsString(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}

// Extract pulls all three signals from one record. Missing or empty
// attribute maps and tags are handled without error.
func (e *Extractor) Extract(conv domain.Conversation) Signals {
	sig := Signals{
		CleanedText: Truncate(CleanText(conv.CustomerText()), e.budget),
	}

	for _, key := range e.reg.HintKeys() {
		if v := conv.Attr(key); v != "" {
			sig.StructuredHint = v
			break
		}
	}

	for _, t := range e.reg.Topics() {
		if t.AttributeKey == "" {
			continue
		}
		if conv.Attr(t.AttributeKey) != "" {
			sig.AttributeTopics = append(sig.AttributeTopics, t.Name)
		}
	}

	sig.KeywordMatches = e.matchKeywords(sig.CleanedText, conv.Tags)
	return sig
}

// matchKeywords counts distinct keyword hits per topic over the cleaned
// text plus tags.
func (e *Extractor) matchKeywords(text string, tags []string) []KeywordMatch {
	if e.matcher == nil {
		return nil
	}
	haystack := strings.ToLower(text)
	if len(tags) > 0 {
		haystack += " " + strings.ToLower(strings.Join(tags, " "))
	}

	counts := make(map[string]int)
	for _, idx := range e.matcher.Match([]byte(haystack)) {
		if idx < 0 || idx >= len(e.topicsFor) {
			continue
		}
		for _, topic := range e.topicsFor[idx] {
			counts[topic]++
		}
	}
	if len(counts) == 0 {
		return nil
	}

	matches := make([]KeywordMatch, 0, len(counts))
	for topic, n := range counts {
		matches = append(matches, KeywordMatch{Topic: topic, Count: n})
	}
	sort.Slice(matches, func(i, j int) bool {
		if matches[i].Count != matches[j].Count {
			return matches[i].Count > matches[j].Count
		}
		return e.topicOrder[matches[i].Topic] < e.topicOrder[matches[j].Topic]
	})
	return matches
}

// CleanText collapses runs of whitespace into single spaces.
func CleanText(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

// Truncate cuts s to at most budget runes without splitting a rune.
func Truncate(s string, budget int) string {
	if budget <= 0 {
		return s
	}
	runes := []rune(s)
	if len(runes) <= budget {
		return s
	}
	return string(runes[:budget])
}
