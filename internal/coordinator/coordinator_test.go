package coordinator

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"topiclens/internal/domain"
)

func partitionWith(topic string, n int) domain.Partition {
	p := domain.Partition{Topic: topic}
	for i := 0; i < n; i++ {
		p.Records = append(p.Records, domain.Conversation{ID: topic + "-" + string(rune('a'+i))})
	}
	return p
}

func TestEmptyPartitionSkippedWithoutRunning(t *testing.T) {
	ran := false
	tasks := []Task{
		{
			Partition: partitionWith("Billing", 0),
			Run: func(ctx context.Context, p domain.Partition) error {
				ran = true
				return nil
			},
		},
	}
	outcomes := New(2).RunAll(context.Background(), tasks)

	if ran {
		t.Fatalf("empty partition task was run")
	}
	if outcomes[0].State != StateSkipped {
		t.Fatalf("expected skipped, got %s", outcomes[0].State)
	}
}

func TestFailureIsolatedFromSiblings(t *testing.T) {
	var completed []string
	var mu sync.Mutex

	tasks := []Task{
		{
			Partition: partitionWith("Billing", 2),
			Run: func(ctx context.Context, p domain.Partition) error {
				return errors.New("provider exploded")
			},
		},
		{
			Partition: partitionWith("Bug", 2),
			Run: func(ctx context.Context, p domain.Partition) error {
				mu.Lock()
				completed = append(completed, p.Topic)
				mu.Unlock()
				return nil
			},
		},
		{
			Partition: partitionWith("Account", 2),
			Run: func(ctx context.Context, p domain.Partition) error {
				mu.Lock()
				completed = append(completed, p.Topic)
				mu.Unlock()
				return nil
			},
		},
	}
	outcomes := New(3).RunAll(context.Background(), tasks)

	if outcomes[0].State != StateFailed || outcomes[0].Err == nil {
		t.Fatalf("expected first task failed, got %+v", outcomes[0])
	}
	if outcomes[1].State != StateCompleted || outcomes[2].State != StateCompleted {
		t.Fatalf("sibling partitions affected by failure: %+v", outcomes)
	}
	if len(completed) != 2 {
		t.Fatalf("expected both siblings to complete, got %v", completed)
	}
}

func TestPanicConvertedToFailure(t *testing.T) {
	tasks := []Task{
		{
			Partition: partitionWith("Billing", 1),
			Run: func(ctx context.Context, p domain.Partition) error {
				panic("nil map write")
			},
		},
		{
			Partition: partitionWith("Bug", 1),
			Run: func(ctx context.Context, p domain.Partition) error {
				return nil
			},
		},
	}
	outcomes := New(2).RunAll(context.Background(), tasks)

	if outcomes[0].State != StateFailed {
		t.Fatalf("panic not converted to failure: %+v", outcomes[0])
	}
	if outcomes[1].State != StateCompleted {
		t.Fatalf("panic leaked to sibling: %+v", outcomes[1])
	}
}

func TestParallelismBound(t *testing.T) {
	var mu sync.Mutex
	inFlight, maxInFlight := 0, 0

	var tasks []Task
	for i := 0; i < 8; i++ {
		tasks = append(tasks, Task{
			Partition: partitionWith(string(rune('A'+i)), 1),
			Run: func(ctx context.Context, p domain.Partition) error {
				mu.Lock()
				inFlight++
				if inFlight > maxInFlight {
					maxInFlight = inFlight
				}
				mu.Unlock()
				time.Sleep(10 * time.Millisecond)
				mu.Lock()
				inFlight--
				mu.Unlock()
				return nil
			},
		})
	}
	New(3).RunAll(context.Background(), tasks)

	if maxInFlight > 3 {
		t.Fatalf("parallelism bound exceeded: %d", maxInFlight)
	}
	if maxInFlight < 2 {
		t.Fatalf("tasks ran sequentially (max in-flight %d)", maxInFlight)
	}
}

func TestSummaryTallies(t *testing.T) {
	outcomes := []Outcome{
		{State: StateCompleted},
		{State: StateCompleted},
		{State: StateFailed},
		{State: StateSkipped},
	}
	counts := Summary(outcomes)
	if counts[StateCompleted] != 2 || counts[StateFailed] != 1 || counts[StateSkipped] != 1 {
		t.Fatalf("unexpected summary: %v", counts)
	}
}
