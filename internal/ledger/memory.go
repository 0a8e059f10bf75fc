package ledger

import (
	"context"
	"sort"
	"sync"
	"time"
)

type MemoryStore struct {
	mu      sync.Mutex
	records map[string]*Record
	now     func() time.Time
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		records: make(map[string]*Record),
		now:     time.Now,
	}
}

func (m *MemoryStore) Track(_ context.Context, rec *Record) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.records[rec.OperationHash]; ok {
		return ErrDuplicate
	}
	r := newPending(rec, m.now())
	m.records[rec.OperationHash] = &r
	return nil
}

func (m *MemoryStore) Get(_ context.Context, operationHash string) (*Record, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	rec, ok := m.records[operationHash]
	if !ok {
		return nil, ErrNotFound
	}
	out := *rec
	return &out, nil
}

func (m *MemoryStore) Transition(_ context.Context, operationHash string, from, to Status, mutate func(*Record)) (*Record, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	rec, ok := m.records[operationHash]
	if !ok {
		return nil, ErrNotFound
	}
	next := *rec
	if err := applyTransition(&next, from, to, mutate, m.now()); err != nil {
		return nil, err
	}
	*rec = next
	return &next, nil
}

func (m *MemoryStore) List(_ context.Context, statuses ...Status) ([]Record, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []Record
	for _, rec := range m.records {
		if matches(rec, statuses) {
			out = append(out, *rec)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (m *MemoryStore) Close() error {
	return nil
}
