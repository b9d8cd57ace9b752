package app

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"sort"
	"sync"
	"time"

	"topiclens/internal/classify"
	"topiclens/internal/config"
	"topiclens/internal/coordinator"
	"topiclens/internal/discover"
	"topiclens/internal/domain"
	"topiclens/internal/fetch"
	"topiclens/internal/inference"
	"topiclens/internal/report"
	"topiclens/internal/signal"
	"topiclens/internal/storage/sqlite"
	"topiclens/internal/taxonomy"
)

// Pass wires one analysis pass end to end. The registry is constructed
// before the pass and read-only during it; anything a pass discovers lives
// on its own results.
type Pass struct {
	Cfg      config.Config
	Reg      *taxonomy.Registry
	Engine   *inference.ThrottledEngine
	Source   fetch.Source
	DB       *sql.DB
	Notifier *report.Notifier
}

// Run executes the two-phase pipeline: classify every record, then fan out
// per-partition tier-2/tier-3 analysis under the coordinator. Only a
// record-source failure is fatal; everything downstream degrades per record
// or per partition.
func (p *Pass) Run(ctx context.Context) (report.PassSummary, error) {
	now := time.Now()
	from := now.AddDate(0, 0, -p.Cfg.WindowDays)

	records, err := p.Source.Records(ctx, from, now)
	if err != nil {
		return report.PassSummary{}, fmt.Errorf("fetching records: %w", err)
	}

	var passID int64
	if p.DB != nil {
		passID, err = sqlite.BeginPass(p.DB, now, from, now)
		if err != nil {
			log.Printf("pass begin not recorded err=%v", err)
		}
	}

	// Phase one: tier-1 classification, concurrent per record.
	extractor := signal.NewExtractor(p.Reg, p.Cfg.TextCharBudget)
	classifier := classify.NewClassifier(p.Reg, extractor, p.Engine)
	results := classifier.ClassifyBatch(ctx, records, p.Engine.Ceiling())
	partitions := classify.PartitionByTier1(records, results)

	classifiedTotal := 0
	unclassifiable := 0
	for _, part := range partitions {
		if part.Topic == domain.Unclassifiable {
			unclassifiable += part.Size()
		} else {
			classifiedTotal += part.Size()
		}
	}

	// Phase two: per-partition analysis, fanned out now that the label set
	// is known.
	validator := classify.NewTier2Validator(p.Reg, p.Engine, p.Cfg.SubTagKeyList(), p.Cfg.Tier2SampleSize, p.Cfg.Tier2ClearCount)
	discoverer := discover.NewDiscoverer(p.Engine, p.Cfg.DiscoverySampleSize, p.Cfg.MaxThemesPerTopic)

	var mu sync.Mutex
	summaries := make(map[string]report.TopicSummary, len(partitions))

	tasks := make([]coordinator.Task, 0, len(partitions))
	for _, part := range partitions {
		tasks = append(tasks, coordinator.Task{
			Partition: part,
			Run: func(ctx context.Context, part domain.Partition) error {
				var tier2 []domain.Tier2Group
				var themes []domain.Theme
				if part.Topic != domain.Unclassifiable {
					tier2 = validator.Validate(ctx, part)
					names := make([]string, len(tier2))
					for i, g := range tier2 {
						names[i] = g.Name
					}
					themes = discoverer.Discover(ctx, part, names)
				}
				summary := report.BuildTopicSummary(part, tier2, themes, classifiedTotal, p.Cfg.ExampleCount)
				mu.Lock()
				summaries[part.Topic] = summary
				mu.Unlock()
				return nil
			},
		})
	}

	coord := coordinator.New(p.Cfg.PartitionParallelism)
	outcomes := coord.RunAll(ctx, tasks)

	// A failed partition still appears in the report, with its raw volume
	// and nothing else.
	for i, o := range outcomes {
		if o.State != coordinator.StateFailed {
			continue
		}
		part := tasks[i].Partition
		mu.Lock()
		if _, ok := summaries[part.Topic]; !ok {
			summaries[part.Topic] = report.BuildTopicSummary(part, nil, nil, classifiedTotal, 0)
		}
		mu.Unlock()
	}

	usage, calls := p.Engine.TotalUsage()
	summary := report.PassSummary{
		GeneratedAt:    now,
		WindowFrom:     from,
		WindowTo:       now,
		TotalRecords:   len(records),
		Classified:     classifiedTotal,
		Unclassifiable: unclassifiable,
		InferenceCalls: calls,
		Usage:          usage,
		TaskStates:     stateCounts(outcomes),
	}
	for _, part := range partitions {
		if s, ok := summaries[part.Topic]; ok {
			summary.Topics = append(summary.Topics, s)
		}
	}
	sort.SliceStable(summary.Topics, func(i, j int) bool {
		a, b := summary.Topics[i], summary.Topics[j]
		if (a.Topic == domain.Unclassifiable) != (b.Topic == domain.Unclassifiable) {
			return b.Topic == domain.Unclassifiable
		}
		return a.Count > b.Count
	})

	if p.DB != nil && passID > 0 {
		if err := sqlite.InsertClassifications(p.DB, passID, results); err != nil {
			log.Printf("pass classifications not persisted err=%v", err)
		}
		if err := sqlite.FinishPass(p.DB, passID, time.Now(), len(records), classifiedTotal, unclassifiable, calls, usage.InputTokens, usage.OutputTokens); err != nil {
			log.Printf("pass summary not persisted err=%v", err)
		}
	}

	log.Printf("pass complete records=%d classified=%d unclassifiable=%d topics=%d inference_calls=%d tokens_in=%d tokens_out=%d",
		len(records), classifiedTotal, unclassifiable, len(summary.Topics), calls, usage.InputTokens, usage.OutputTokens)
	return summary, nil
}

func stateCounts(outcomes []coordinator.Outcome) map[string]int {
	out := make(map[string]int)
	for state, n := range coordinator.Summary(outcomes) {
		out[string(state)] = n
	}
	return out
}
