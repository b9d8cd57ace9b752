// Package coordinator fans out per-partition analysis tasks once tier-1
// partitioning is complete. Empty partitions are skipped without spending
// any inference budget, and one partition's failure is converted to a
// degraded result instead of aborting its siblings.
package coordinator

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"topiclens/internal/domain"
)

type TaskState string

const (
	StatePending   TaskState = "pending"
	StateRunning   TaskState = "running"
	StateCompleted TaskState = "completed"
	StateFailed    TaskState = "failed"
	StateSkipped   TaskState = "skipped"
)

// Task is one partition's analysis work. Run is invoked at most once, and
// never for an empty partition.
type Task struct {
	Partition domain.Partition
	Run       func(ctx context.Context, p domain.Partition) error
}

type Outcome struct {
	Topic    string
	State    TaskState
	Err      error
	Duration time.Duration
}

type Coordinator struct {
	parallelism int
}

func New(parallelism int) *Coordinator {
	if parallelism < 1 {
		parallelism = 4
	}
	return &Coordinator{parallelism: parallelism}
}

// RunAll executes the tasks concurrently and returns one outcome per task,
// in task order. Failures (including panics) are contained per task.
func (c *Coordinator) RunAll(ctx context.Context, tasks []Task) []Outcome {
	outcomes := make([]Outcome, len(tasks))
	sem := make(chan struct{}, c.parallelism)

	var wg sync.WaitGroup
	for i, task := range tasks {
		outcomes[i] = Outcome{Topic: task.Partition.Topic, State: StatePending}

		if task.Partition.Size() == 0 {
			outcomes[i].State = StateSkipped
			log.Printf("coordinator skip topic=%s reason=empty-partition", task.Partition.Topic)
			continue
		}

		wg.Add(1)
		go func(i int, task Task) {
			defer wg.Done()
			sem <- struct{}{}
			defer func() { <-sem }()

			outcomes[i].State = StateRunning
			start := time.Now()
			err := runContained(ctx, task)
			outcomes[i].Duration = time.Since(start)
			if err != nil {
				outcomes[i].State = StateFailed
				outcomes[i].Err = err
				log.Printf("coordinator task failed topic=%s duration=%s err=%v",
					task.Partition.Topic, outcomes[i].Duration, err)
				return
			}
			outcomes[i].State = StateCompleted
			log.Printf("coordinator task completed topic=%s records=%d duration=%s",
				task.Partition.Topic, task.Partition.Size(), outcomes[i].Duration)
		}(i, task)
	}
	wg.Wait()

	return outcomes
}

// runContained converts a panic inside a task into a failed outcome so a
// single partition cannot take down the pass.
func runContained(ctx context.Context, task Task) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("task panicked: %v", r)
		}
	}()
	return task.Run(ctx, task.Partition)
}

// Summary tallies outcomes by state.
func Summary(outcomes []Outcome) map[TaskState]int {
	counts := make(map[TaskState]int)
	for _, o := range outcomes {
		counts[o.State]++
	}
	return counts
}
