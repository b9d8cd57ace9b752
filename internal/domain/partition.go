package domain

// Partition is the set of conversations sharing one tier-1 label, plus their
// Results. Partitions are disjoint by construction: a conversation belongs to
// exactly one partition even when it carries multiple sub-labels.
type Partition struct {
	Topic   string
	Records []Conversation
	Results []Result
}

func (p Partition) Size() int {
	return len(p.Records)
}

// ResultFor returns the Result for the given conversation ID.
func (p Partition) ResultFor(id string) (Result, bool) {
	for _, r := range p.Results {
		if r.ConversationID == id {
			return r, true
		}
	}
	return Result{}, false
}

// MethodCounts tallies results by detection method.
func (p Partition) MethodCounts() map[DetectionMethod]int {
	counts := make(map[DetectionMethod]int)
	for _, r := range p.Results {
		counts[r.Method]++
	}
	return counts
}
