package discover

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"topiclens/internal/domain"
	"topiclens/internal/inference"
)

type fakeEngine struct {
	mu      sync.Mutex
	calls   int
	respond func(p inference.Prompt) (string, error)
}

func (f *fakeEngine) Complete(ctx context.Context, p inference.Prompt) (string, inference.Usage, error) {
	f.mu.Lock()
	f.calls++
	f.mu.Unlock()
	if f.respond == nil {
		return "", inference.Usage{}, errors.New("no responder")
	}
	text, err := f.respond(p)
	return text, inference.Usage{}, err
}

func (f *fakeEngine) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

func recordsWith(bodies ...string) []domain.Conversation {
	base := time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC)
	out := make([]domain.Conversation, len(bodies))
	for i, body := range bodies {
		out[i] = domain.Conversation{
			ID: fmt.Sprintf("c%d", i),
			Messages: []domain.Message{
				{Role: domain.RoleCustomer, Body: body, Timestamp: base.Add(time.Duration(i) * time.Hour)},
			},
		}
	}
	return out
}

const themesJSON = `[
  {"name": "Export Failures", "keywords": ["export", "csv"]},
  {"name": "Slow Dashboard", "keywords": ["slow", "loading"]}
]`

func TestDiscoverEmptyPartitionSpendsNothing(t *testing.T) {
	engine := &fakeEngine{respond: func(inference.Prompt) (string, error) {
		t.Fatalf("inference called for an empty partition")
		return "", nil
	}}
	d := NewDiscoverer(engine, 20, 5)

	themes := d.Discover(context.Background(), domain.Partition{Topic: "Billing"}, nil)
	if themes != nil {
		t.Fatalf("expected zero themes, got %+v", themes)
	}
	if engine.callCount() != 0 {
		t.Fatalf("empty partition spent %d inference calls", engine.callCount())
	}
}

func TestDiscoverRescansFullPartition(t *testing.T) {
	engine := &fakeEngine{respond: func(inference.Prompt) (string, error) {
		return themesJSON, nil
	}}
	d := NewDiscoverer(engine, 2, 5) // sample 2 of 6; rescan must still see all 6

	p := domain.Partition{Topic: "Billing", Records: recordsWith(
		"the export to csv fails",
		"export keeps breaking",
		"dashboard is slow",
		"everything is slow and loading forever",
		"a csv export question",
		"unrelated complaint",
	)}
	themes := d.Discover(context.Background(), p, nil)
	if len(themes) != 2 {
		t.Fatalf("expected 2 themes, got %d", len(themes))
	}
	if engine.callCount() != 1 {
		t.Fatalf("discovery must spend exactly one call, spent %d", engine.callCount())
	}

	byName := map[string]int{}
	for _, th := range themes {
		byName[th.Name] = th.Count
	}
	if byName["Export Failures"] != 3 {
		t.Fatalf("Export Failures counted %d, want 3 (full population, not the sample)", byName["Export Failures"])
	}
	if byName["Slow Dashboard"] != 2 {
		t.Fatalf("Slow Dashboard counted %d, want 2", byName["Slow Dashboard"])
	}
}

func TestDiscoverMalformedOutputYieldsZeroThemes(t *testing.T) {
	engine := &fakeEngine{respond: func(inference.Prompt) (string, error) {
		return "Here are some themes I noticed: exports are broken", nil
	}}
	d := NewDiscoverer(engine, 20, 5)

	p := domain.Partition{Topic: "Billing", Records: recordsWith("a", "b")}
	themes := d.Discover(context.Background(), p, nil)
	if themes != nil {
		t.Fatalf("malformed output must yield zero themes, got %+v", themes)
	}
}

func TestDiscoverEngineFailureYieldsZeroThemes(t *testing.T) {
	engine := &fakeEngine{respond: func(inference.Prompt) (string, error) {
		return "", inference.Transient(context.DeadlineExceeded)
	}}
	d := NewDiscoverer(engine, 20, 5)

	p := domain.Partition{Topic: "Billing", Records: recordsWith("a", "b")}
	if themes := d.Discover(context.Background(), p, nil); themes != nil {
		t.Fatalf("engine failure must yield zero themes, got %+v", themes)
	}
}

func TestDiscoverCapsThemes(t *testing.T) {
	many := `[
	  {"name": "T1", "keywords": ["k1"]},
	  {"name": "T2", "keywords": ["k2"]},
	  {"name": "T3", "keywords": ["k3"]},
	  {"name": "T4", "keywords": ["k4"]},
	  {"name": "T5", "keywords": ["k5"]},
	  {"name": "T6", "keywords": ["k6"]},
	  {"name": "T7", "keywords": ["k7"]}
	]`
	engine := &fakeEngine{respond: func(inference.Prompt) (string, error) {
		return many, nil
	}}
	d := NewDiscoverer(engine, 20, 5)

	p := domain.Partition{Topic: "Billing", Records: recordsWith("a")}
	themes := d.Discover(context.Background(), p, nil)
	if len(themes) != 5 {
		t.Fatalf("themes must cap at 5, got %d", len(themes))
	}
}

func TestStratifiedSampleSpansTimeRange(t *testing.T) {
	records := recordsWith(make([]string, 0, 100)...)
	base := time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC)
	for i := 0; i < 100; i++ {
		records = append(records, domain.Conversation{
			ID: fmt.Sprintf("c%d", i),
			Messages: []domain.Message{
				{Role: domain.RoleCustomer, Body: "x", Timestamp: base.Add(time.Duration(i) * time.Hour)},
			},
		})
	}

	sample := StratifiedSample(records, 10)
	if len(sample) != 10 {
		t.Fatalf("sample size %d, want 10", len(sample))
	}
	// The sample must span the range, not cluster at the most recent end.
	first := sample[0].StartedAt()
	last := sample[len(sample)-1].StartedAt()
	if !first.Before(base.Add(24 * time.Hour)) {
		t.Fatalf("sample does not reach the oldest records: first at %v", first)
	}
	if !last.After(base.Add(75 * time.Hour)) {
		t.Fatalf("sample does not reach the newest records: last at %v", last)
	}
}

func TestStratifiedSampleSmallPartition(t *testing.T) {
	records := recordsWith("a", "b", "c")
	sample := StratifiedSample(records, 20)
	if len(sample) != 3 {
		t.Fatalf("sample of a small partition should be the whole partition, got %d", len(sample))
	}
}

func TestParseThemesDropsInvalidEntries(t *testing.T) {
	d := NewDiscoverer(&fakeEngine{}, 20, 5)

	themes, err := d.parseThemes(`[
	  {"name": "Good", "keywords": ["ok"]},
	  {"name": "", "keywords": ["orphan"]},
	  {"name": "No Keywords", "keywords": []}
	]`)
	if err != nil {
		t.Fatalf("parseThemes: %v", err)
	}
	if len(themes) != 1 || themes[0].Name != "Good" {
		t.Fatalf("expected only the valid theme, got %+v", themes)
	}
}
