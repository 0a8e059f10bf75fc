package deposit

import (
	"sort"
	"sync"

	lru "github.com/hashicorp/golang-lru/v2"
)

const DefaultSeenCacheSize = 4096

// Queue holds claims waiting to be polled. Claims already seen recently are
// dropped on Add, so a claim relayed back by several peers is queued once.
type Queue struct {
	mu      sync.Mutex
	pending map[string]Claim
	seen    *lru.Cache[string, struct{}]
}

func NewQueue(seenCacheSize int) (*Queue, error) {
	if seenCacheSize <= 0 {
		seenCacheSize = DefaultSeenCacheSize
	}
	seen, err := lru.New[string, struct{}](seenCacheSize)
	if err != nil {
		return nil, err
	}
	return &Queue{
		pending: make(map[string]Claim),
		seen:    seen,
	}, nil
}

// Add queues the claim and reports whether it was new.
func (q *Queue) Add(c Claim) bool {
	key := c.OperationHashHex()

	q.mu.Lock()
	defer q.mu.Unlock()
	if found, _ := q.seen.ContainsOrAdd(key, struct{}{}); found {
		return false
	}
	q.pending[key] = c
	return true
}

// Pending returns a snapshot of the queued claims, oldest first.
func (q *Queue) Pending() []Claim {
	q.mu.Lock()
	defer q.mu.Unlock()
	out := make([]Claim, 0, len(q.pending))
	for _, c := range q.pending {
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].RequestedAt != out[j].RequestedAt {
			return out[i].RequestedAt < out[j].RequestedAt
		}
		return out[i].TxID < out[j].TxID
	})
	return out
}

// Done removes a claim that reached a terminal or in-flight state.
func (q *Queue) Done(operationHash string) {
	q.mu.Lock()
	defer q.mu.Unlock()
	delete(q.pending, operationHash)
}

func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.pending)
}
