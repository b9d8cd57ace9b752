// Package taxonomy holds the topic hierarchy a pass classifies against.
// The registry is loaded once at pass start and is read-only from then on;
// tier-3 themes discovered during a pass live on the pass results, never
// here.
package taxonomy

import (
	"fmt"
	"os"
	"strings"

	"golang.org/x/text/cases"
	"gopkg.in/yaml.v3"
)

// Topic is one curated tier-1 category.
type Topic struct {
	Name string `yaml:"name"`
	// AttributeKey is the structured-attribute key the source system uses
	// when it pre-categorizes a conversation under this topic. Optional.
	AttributeKey string   `yaml:"attribute_key"`
	Keywords     []string `yaml:"keywords"`
}

type Synonym struct {
	From string `yaml:"from"`
	To   string `yaml:"to"`
}

type file struct {
	Topics        []Topic   `yaml:"topics"`
	Synonyms      []Synonym `yaml:"synonyms"`
	StripSuffixes []string  `yaml:"strip_suffixes"`
	HintKeys      []string  `yaml:"hint_keys"`
}

// Registry is the authoritative list of valid topics for one pass.
type Registry struct {
	topics        []Topic
	byFolded      map[string]string
	synonyms      map[string]string
	stripSuffixes []string
	hintKeys      []string
}

var fold = cases.Fold()

// Load reads the taxonomy YAML file and builds a registry.
func Load(path string) (*Registry, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read taxonomy: %w", err)
	}
	return Parse(data)
}

func Parse(data []byte) (*Registry, error) {
	var f file
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parse taxonomy yaml: %w", err)
	}
	if len(f.Topics) == 0 {
		return nil, fmt.Errorf("taxonomy has no topics")
	}
	if len(f.HintKeys) == 0 {
		f.HintKeys = []string{"category", "topic"}
	}

	r := &Registry{
		topics:        make([]Topic, 0, len(f.Topics)),
		byFolded:      make(map[string]string, len(f.Topics)),
		synonyms:      make(map[string]string, len(f.Synonyms)),
		stripSuffixes: f.StripSuffixes,
		hintKeys:      f.HintKeys,
	}
	for _, t := range f.Topics {
		name := strings.TrimSpace(t.Name)
		if name == "" {
			return nil, fmt.Errorf("taxonomy topic with empty name")
		}
		key := fold.String(name)
		if _, dup := r.byFolded[key]; dup {
			return nil, fmt.Errorf("duplicate taxonomy topic %q", name)
		}
		t.Name = name
		r.topics = append(r.topics, t)
		r.byFolded[key] = name
	}
	for _, s := range f.Synonyms {
		from := fold.String(strings.TrimSpace(s.From))
		to := strings.TrimSpace(s.To)
		if from == "" || to == "" {
			continue
		}
		r.synonyms[from] = to
	}
	return r, nil
}

// Topics returns the curated tier-1 topics in declaration order.
func (r *Registry) Topics() []Topic {
	out := make([]Topic, len(r.topics))
	copy(out, r.topics)
	return out
}

// Names returns the ordered list of valid tier-1 names.
func (r *Registry) Names() []string {
	names := make([]string, len(r.topics))
	for i, t := range r.topics {
		names[i] = t.Name
	}
	return names
}

// HintKeys are the attribute keys consulted for a structured hint.
func (r *Registry) HintKeys() []string {
	out := make([]string, len(r.hintKeys))
	copy(out, r.hintKeys)
	return out
}

// Resolve maps a candidate name to its canonical tier-1 name,
// case-insensitively. ok is false when the name is not a valid topic.
func (r *Registry) Resolve(name string) (string, bool) {
	canonical, ok := r.byFolded[fold.String(strings.TrimSpace(name))]
	return canonical, ok
}

// Lookup returns the topic definition for a (possibly differently cased)
// name.
func (r *Registry) Lookup(name string) (Topic, bool) {
	canonical, ok := r.Resolve(name)
	if !ok {
		return Topic{}, false
	}
	for _, t := range r.topics {
		if t.Name == canonical {
			return t, true
		}
	}
	return Topic{}, false
}

// Canonical normalizes a raw tier-2 sub-tag spelling: case-fold, trim,
// strip configured suffixes, then apply the synonym table. Two spellings of
// the same concept must canonicalize identically so they never surface as
// separate tier-2 entries.
func (r *Registry) Canonical(raw string) string {
	s := strings.TrimSpace(raw)
	if s == "" {
		return ""
	}
	folded := fold.String(s)
	for _, suffix := range r.stripSuffixes {
		suffix = fold.String(strings.TrimSpace(suffix))
		if suffix == "" {
			continue
		}
		if strings.HasSuffix(folded, suffix) {
			folded = strings.TrimSuffix(folded, suffix)
			folded = strings.TrimRight(strings.TrimSpace(folded), "-")
		}
	}
	folded = strings.Join(strings.Fields(folded), " ")
	if to, ok := r.synonyms[folded]; ok {
		return fold.String(to)
	}
	return folded
}
