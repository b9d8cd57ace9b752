package classify

import (
	"context"
	"log"
	"sync"

	"topiclens/internal/domain"
)

// ClassifyBatch classifies every conversation concurrently. Records are
// independent, so dispatch is embarrassingly parallel; the worker count caps
// local goroutine fan-out while the engine's own limiter enforces the
// provider rate. Sequential dispatch of thousands of independent calls is
// the single largest avoidable latency source in the pipeline.
func (c *Classifier) ClassifyBatch(ctx context.Context, convs []domain.Conversation, workers int) []domain.Result {
	if len(convs) == 0 {
		return nil
	}
	if workers < 1 {
		workers = 1
	}
	log.Printf("classify tier1 batch records=%d workers=%d", len(convs), workers)

	results := make([]domain.Result, len(convs))
	jobs := make(chan int)

	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := range jobs {
				results[i] = c.ClassifyOne(ctx, convs[i])
			}
		}()
	}
	for i := range convs {
		jobs <- i
	}
	close(jobs)
	wg.Wait()

	return results
}

// PartitionByTier1 groups conversations by their assigned tier-1 label after
// the whole batch has been classified (two-phase: the label set is unknown
// until classification completes). Partitions are disjoint: each record
// lands in exactly one, keyed by its single tier-1 label. Order follows
// first appearance so reruns over the same input partition identically.
func PartitionByTier1(convs []domain.Conversation, results []domain.Result) []domain.Partition {
	byTopic := make(map[string]*domain.Partition)
	var order []string

	for i, r := range results {
		p, ok := byTopic[r.Tier1]
		if !ok {
			p = &domain.Partition{Topic: r.Tier1}
			byTopic[r.Tier1] = p
			order = append(order, r.Tier1)
		}
		p.Records = append(p.Records, convs[i])
		p.Results = append(p.Results, r)
	}

	out := make([]domain.Partition, 0, len(order))
	for _, topic := range order {
		out = append(out, *byTopic[topic])
	}
	return out
}
