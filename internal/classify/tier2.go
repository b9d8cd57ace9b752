package classify

import (
	"context"
	"fmt"
	"log"
	"sort"
	"strings"

	"topiclens/internal/domain"
	"topiclens/internal/inference"
	"topiclens/internal/taxonomy"
)

// Tier2Validator dedups structured sub-tags into a canonical subcategory
// set. Inference is spent only on ambiguous groups; clear, well-populated
// groups skip it entirely, which is the cost-control lever here.
type Tier2Validator struct {
	reg        *taxonomy.Registry
	engine     Engine
	subTagKeys []string
	sampleSize int
	clearCount int
}

func NewTier2Validator(reg *taxonomy.Registry, engine Engine, subTagKeys []string, sampleSize, clearCount int) *Tier2Validator {
	if len(subTagKeys) == 0 {
		subTagKeys = []string{"subcategory", "sub_topic"}
	}
	if sampleSize < 1 {
		sampleSize = 5
	}
	if clearCount < 1 {
		clearCount = 5
	}
	return &Tier2Validator{
		reg:        reg,
		engine:     engine,
		subTagKeys: subTagKeys,
		sampleSize: sampleSize,
		clearCount: clearCount,
	}
}

type subTagGroup struct {
	canonical string
	display   string
	records   []domain.Conversation
}

// Validate returns the partition's deduplicated tier-2 subcategories with
// per-subcategory counts, sorted by count descending.
func (v *Tier2Validator) Validate(ctx context.Context, p domain.Partition) []domain.Tier2Group {
	groups := v.collect(p)
	if len(groups) == 0 {
		return nil
	}

	siblings := make([]string, 0, len(groups))
	for _, g := range groups {
		siblings = append(siblings, g.display)
	}

	// Phase one: decide per group. Phase two applies merges, so a merge
	// into a group that happens to be decided later still lands correctly.
	type verdict struct {
		decision tier2Decision
		target   string // canonical key of the merge target
	}
	groupAt := make(map[string]int, len(groups))
	for i, g := range groups {
		groupAt[g.canonical] = i
	}
	verdicts := make([]verdict, len(groups))
	for i, g := range groups {
		verdicts[i] = verdict{decision: decisionKeep}
		if !v.isAmbiguous(g, groups) {
			continue
		}
		decision, target := v.validateGroup(ctx, p.Topic, g, siblings)
		if decision == decisionMerge {
			key := v.reg.Canonical(target)
			if _, known := groupAt[key]; !known {
				// Merge target names a group we have not seen; keep the
				// group under its own name rather than invent one.
				continue
			}
			verdicts[i] = verdict{decision: decisionMerge, target: key}
			continue
		}
		verdicts[i] = verdict{decision: decision}
	}

	// A merge target may itself have been merged or discarded; chase the
	// chain to its surviving root. A chain ending in DISCARD, or a cycle,
	// leaves the merging group under its own name.
	resolveMerge := func(key string) (string, bool) {
		seen := make(map[string]bool)
		for {
			if seen[key] {
				return "", false
			}
			seen[key] = true
			switch vd := verdicts[groupAt[key]]; vd.decision {
			case decisionMerge:
				key = vd.target
			case decisionDiscard:
				return "", false
			default:
				return key, true
			}
		}
	}

	merged := make(map[string]*subTagGroup, len(groups))
	orderKeys := make([]string, 0, len(groups))
	keepInto := func(key string, g subTagGroup) {
		if dst, ok := merged[key]; ok {
			dst.records = append(dst.records, g.records...)
			return
		}
		cp := g
		cp.canonical = key
		merged[key] = &cp
		orderKeys = append(orderKeys, key)
	}
	for i, g := range groups {
		switch verdicts[i].decision {
		case decisionDiscard:
			continue
		case decisionMerge:
			key, ok := resolveMerge(verdicts[i].target)
			if !ok {
				keepInto(g.canonical, g)
				continue
			}
			g.display = groups[groupAt[key]].display
			keepInto(key, g)
		default:
			keepInto(g.canonical, g)
		}
	}

	out := make([]domain.Tier2Group, 0, len(merged))
	for _, key := range orderKeys {
		g := merged[key]
		out = append(out, domain.Tier2Group{Name: g.display, Count: len(g.records)})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Count != out[j].Count {
			return out[i].Count > out[j].Count
		}
		return out[i].Name < out[j].Name
	})
	return out
}

// collect groups the partition's raw sub-tag spellings by canonical form,
// so "Payment issues" and "payment issues - requests" land together before
// any inference runs.
func (v *Tier2Validator) collect(p domain.Partition) []subTagGroup {
	byCanonical := make(map[string]*subTagGroup)
	var order []string

	for _, conv := range p.Records {
		for _, key := range v.subTagKeys {
			raw := conv.Attr(key)
			if raw == "" {
				continue
			}
			canonical := v.reg.Canonical(raw)
			if canonical == "" {
				continue
			}
			g, ok := byCanonical[canonical]
			if !ok {
				g = &subTagGroup{canonical: canonical, display: strings.TrimSpace(raw)}
				byCanonical[canonical] = g
				order = append(order, canonical)
			}
			g.records = append(g.records, conv)
		}
	}

	out := make([]subTagGroup, 0, len(order))
	for _, key := range order {
		out = append(out, *byCanonical[key])
	}
	return out
}

// isAmbiguous flags groups worth an inference call: thin groups, and groups
// whose leading token collides with a sibling (e.g. "payment issues" vs
// "payment method").
func (v *Tier2Validator) isAmbiguous(g subTagGroup, all []subTagGroup) bool {
	if len(g.records) < v.clearCount {
		return true
	}
	head := firstToken(g.canonical)
	for _, other := range all {
		if other.canonical == g.canonical {
			continue
		}
		if firstToken(other.canonical) == head {
			return true
		}
	}
	return false
}

type tier2Decision int

const (
	decisionKeep tier2Decision = iota
	decisionMerge
	decisionDiscard
)

// validateGroup asks the engine KEEP / MERGE:<name> / DISCARD for one
// ambiguous group, sampling a handful of member conversations. Any failure
// degrades to KEEP: a duplicate subcategory in the report beats a silently
// dropped one.
func (v *Tier2Validator) validateGroup(ctx context.Context, topic string, g subTagGroup, siblings []string) (tier2Decision, string) {
	var samples strings.Builder
	for i, conv := range g.records {
		if i >= v.sampleSize {
			break
		}
		text := conv.CustomerText()
		if len(text) > 200 {
			text = text[:200] + "..."
		}
		samples.WriteString("- " + text + "\n")
	}

	sys := fmt.Sprintf(`You validate subcategories of the support topic %q.
Decide whether the candidate subcategory is meaningful and distinct.
Answer with exactly one line:
KEEP - it is a meaningful, distinct subcategory
MERGE:<other-name> - it duplicates one of the other subcategories listed
DISCARD - it is too vague to be actionable
No other text.`, topic)

	user := fmt.Sprintf("Candidate subcategory: %s\nOther subcategories: %s\nSample conversations:\n%s",
		g.display, strings.Join(siblings, "; "), samples.String())

	text, _, err := v.engine.Complete(ctx, inference.Prompt{System: sys, User: user, MaxTokens: 64})
	if err != nil {
		log.Printf("classify tier2 validation unavailable topic=%s group=%s err=%v", topic, g.display, err)
		return decisionKeep, ""
	}

	decision, target, err := parseTier2Decision(text)
	if err != nil {
		log.Printf("classify tier2 malformed decision topic=%s group=%s err=%v", topic, g.display, err)
		return decisionKeep, ""
	}
	return decision, target
}

func parseTier2Decision(text string) (tier2Decision, string, error) {
	answer := stripFences(text)
	if line := strings.SplitN(answer, "\n", 2); len(line) > 0 {
		answer = strings.TrimSpace(line[0])
	}
	upper := strings.ToUpper(answer)
	switch {
	case upper == "KEEP":
		return decisionKeep, "", nil
	case upper == "DISCARD":
		return decisionDiscard, "", nil
	case strings.HasPrefix(upper, "MERGE:"):
		target := strings.TrimSpace(answer[len("MERGE:"):])
		if target == "" {
			return decisionKeep, "", inference.Malformed(text, fmt.Errorf("MERGE without target"))
		}
		return decisionMerge, target, nil
	}
	return decisionKeep, "", inference.Malformed(text, fmt.Errorf("not a KEEP/MERGE/DISCARD decision: %q", answer))
}

func firstToken(s string) string {
	fields := strings.Fields(s)
	if len(fields) == 0 {
		return ""
	}
	return fields[0]
}
