// Package classify implements tier-1 classification (hybrid signal
// resolution) and tier-2 subcategory validation.
package classify

import (
	"context"
	"fmt"
	"log"
	"strings"
	"time"

	"topiclens/internal/domain"
	"topiclens/internal/inference"
	"topiclens/internal/signal"
	"topiclens/internal/taxonomy"
)

// Engine is the slice of the inference contract the classifier needs.
type Engine interface {
	Complete(ctx context.Context, p inference.Prompt) (string, inference.Usage, error)
}

// Confidence scoring: agreement across independent signals raises
// confidence; inference alone sits in the middle; fallbacks sit below the
// reporting thresholds so they are never mistaken for full classifications.
const (
	confInferenceBase      = 0.75
	confAgreementBonus     = 0.10
	confCeiling            = 0.98
	confUnclassifiable     = 0.20
	confKeywordFallback    = 0.50
	confKeywordMatchBonus  = 0.05
	confKeywordFallbackMax = 0.85
	confStructuredFallback = 0.45
	confNoSignal           = 0.10
)

// Classifier resolves a record's three signals into one tier-1 label.
type Classifier struct {
	reg       *taxonomy.Registry
	extractor *signal.Extractor
	engine    Engine
	maxTokens int64
}

func NewClassifier(reg *taxonomy.Registry, extractor *signal.Extractor, engine Engine) *Classifier {
	return &Classifier{
		reg:       reg,
		extractor: extractor,
		engine:    engine,
		maxTokens: 64,
	}
}

// ClassifyOne resolves one conversation. It always produces a Result; an
// unavailable engine degrades the result rather than failing it.
func (c *Classifier) ClassifyOne(ctx context.Context, conv domain.Conversation) domain.Result {
	sig := c.extractor.Extract(conv)

	label, err := c.infer(ctx, sig)
	if err != nil {
		if inference.IsMalformed(err) {
			log.Printf("classify tier1 malformed output conversation=%s err=%v", conv.ID, err)
		} else {
			log.Printf("classify tier1 inference unavailable conversation=%s err=%v", conv.ID, err)
		}
		return c.fallback(conv.ID, sig)
	}
	return c.resolve(conv.ID, sig, label)
}

// infer asks the engine for exactly one label out of the valid set. The
// structured hint goes into the prompt explicitly marked as possibly wrong:
// the engine is expected to override it when the text disagrees.
func (c *Classifier) infer(ctx context.Context, sig signal.Signals) (string, error) {
	sys, user := c.buildPrompts(sig)
	text, _, err := c.engine.Complete(ctx, inference.Prompt{
		System:    sys,
		User:      user,
		MaxTokens: c.maxTokens,
	})
	if err != nil {
		return "", err
	}
	return c.parseLabel(text)
}

func (c *Classifier) buildPrompts(sig signal.Signals) (string, string) {
	var names strings.Builder
	for _, name := range c.reg.Names() {
		names.WriteString("- " + name + "\n")
	}

	sys := fmt.Sprintf(`You classify customer-support conversations into exactly one topic.
Valid topics:
%s
If none fit, answer %q.
The source system's own category is included as a hint, but it is wrong
roughly 40%% of the time. Trust the conversation text over the hint.
Respond with the topic name only, nothing else.`, names.String(), domain.Unclassifiable)

	var b strings.Builder
	hint := strings.TrimSpace(sig.StructuredHint)
	if hint == "" {
		hint = "none"
	}
	b.WriteString("Source-system category (may be incorrect): " + hint + "\n")
	if len(sig.KeywordMatches) > 0 {
		b.WriteString("Keyword matches: ")
		for i, m := range sig.KeywordMatches {
			if i > 0 {
				b.WriteString(", ")
			}
			b.WriteString(fmt.Sprintf("%s (%d)", m.Topic, m.Count))
		}
		b.WriteString("\n")
	}
	b.WriteString("Conversation:\n" + sig.CleanedText + "\n")
	return sys, b.String()
}

// parseLabel accepts only a valid topic name or the unclassifiable label.
// Anything else is malformed output, which is never retried.
func (c *Classifier) parseLabel(text string) (string, error) {
	answer := stripFences(text)
	if line := strings.SplitN(answer, "\n", 2); len(line) > 0 {
		answer = strings.TrimSpace(line[0])
	}
	if strings.EqualFold(answer, domain.Unclassifiable) {
		return domain.Unclassifiable, nil
	}
	if canonical, ok := c.reg.Resolve(answer); ok {
		return canonical, nil
	}
	return "", inference.Malformed(text, fmt.Errorf("not a valid topic name: %q", answer))
}

// resolve derives the final label, confidence, and detection method from the
// engine's answer plus the supporting signals. The engine is authoritative:
// when it disagrees with the structured hint, the hint loses.
func (c *Classifier) resolve(convID string, sig signal.Signals, label string) domain.Result {
	now := time.Now()

	if label == domain.Unclassifiable {
		return domain.Result{
			ConversationID: convID,
			Tier1:          domain.Unclassifiable,
			Confidence:     confUnclassifiable,
			Method:         domain.MethodInference,
			ClassifiedAt:   now,
		}
	}

	confidence := confInferenceBase
	hintTopic, hintValid := c.reg.Resolve(sig.StructuredHint)
	hintAgrees := hintValid && hintTopic == label
	if hintAgrees {
		confidence += confAgreementBonus
	}
	if top, ok := sig.TopKeyword(); ok && top.Topic == label {
		confidence += confAgreementBonus
	}
	if confidence > confCeiling {
		confidence = confCeiling
	}

	method := domain.MethodInference
	if strings.TrimSpace(sig.StructuredHint) != "" && !hintAgrees {
		method = domain.MethodInferenceCorrectingHint
	}

	return domain.Result{
		ConversationID: convID,
		Tier1:          label,
		Confidence:     confidence,
		Method:         method,
		ClassifiedAt:   now,
	}
}

// fallback classifies without the engine: best keyword match first, then a
// valid structured hint, then unclassifiable. The method records that
// inference was unavailable so reporting can surface it.
func (c *Classifier) fallback(convID string, sig signal.Signals) domain.Result {
	now := time.Now()

	if top, ok := sig.TopKeyword(); ok {
		label := c.breakTie(sig, top)
		confidence := confKeywordFallback + confKeywordMatchBonus*float64(min(top.Count, 4))
		if confidence > confKeywordFallbackMax {
			confidence = confKeywordFallbackMax
		}
		return domain.Result{
			ConversationID: convID,
			Tier1:          label,
			Confidence:     confidence,
			Method:         domain.MethodKeywordFallback,
			ClassifiedAt:   now,
		}
	}

	if hintTopic, ok := c.reg.Resolve(sig.StructuredHint); ok {
		return domain.Result{
			ConversationID: convID,
			Tier1:          hintTopic,
			Confidence:     confStructuredFallback,
			Method:         domain.MethodStructured,
			ClassifiedAt:   now,
		}
	}

	return domain.Result{
		ConversationID: convID,
		Tier1:          domain.Unclassifiable,
		Confidence:     confNoSignal,
		Method:         domain.MethodFallback,
		ClassifiedAt:   now,
	}
}

// breakTie prefers, among topics tied on keyword count, the one whose
// structured-attribute key is present on the record. Structured data is
// lower variance than free text even though it is not infallible.
func (c *Classifier) breakTie(sig signal.Signals, top signal.KeywordMatch) string {
	for _, m := range sig.KeywordMatches {
		if m.Count != top.Count {
			break
		}
		if sig.HasAttributeTopic(m.Topic) {
			return m.Topic
		}
	}
	return top.Topic
}

func stripFences(s string) string {
	s = strings.TrimSpace(s)
	s = strings.TrimPrefix(s, "```json")
	s = strings.TrimPrefix(s, "```")
	s = strings.TrimSuffix(s, "```")
	return strings.TrimSpace(s)
}
