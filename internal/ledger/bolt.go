package ledger

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"

	bolt "go.etcd.io/bbolt"
)

var operationsBucket = []byte("operations")

// BoltStore persists the ledger in a local bbolt file. bbolt serialises writers,
// so every Update is an atomic check-and-set.
type BoltStore struct {
	db  *bolt.DB
	now func() time.Time
}

func NewBoltStore(path string) (*BoltStore, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("failed to create ledger directory: %w", err)
	}
	db, err := bolt.Open(path, 0600, &bolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, fmt.Errorf("failed to open ledger %s: %w", path, err)
	}
	err = db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(operationsBucket)
		return err
	})
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to create ledger bucket: %w", err)
	}
	return &BoltStore{db: db, now: time.Now}, nil
}

func (s *BoltStore) Track(_ context.Context, rec *Record) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(operationsBucket)
		key := []byte(rec.OperationHash)
		if b.Get(key) != nil {
			return ErrDuplicate
		}
		r := newPending(rec, s.now())
		data, err := json.Marshal(&r)
		if err != nil {
			return fmt.Errorf("failed to encode record: %w", err)
		}
		return b.Put(key, data)
	})
}

func (s *BoltStore) Get(_ context.Context, operationHash string) (*Record, error) {
	var rec *Record
	err := s.db.View(func(tx *bolt.Tx) error {
		var err error
		rec, err = decodeRecord(tx.Bucket(operationsBucket).Get([]byte(operationHash)))
		return err
	})
	if err != nil {
		return nil, err
	}
	return rec, nil
}

func (s *BoltStore) Transition(_ context.Context, operationHash string, from, to Status, mutate func(*Record)) (*Record, error) {
	var out *Record
	err := s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(operationsBucket)
		key := []byte(operationHash)
		rec, err := decodeRecord(b.Get(key))
		if err != nil {
			return err
		}
		if err := applyTransition(rec, from, to, mutate, s.now()); err != nil {
			return err
		}
		data, err := json.Marshal(rec)
		if err != nil {
			return fmt.Errorf("failed to encode record: %w", err)
		}
		out = rec
		return b.Put(key, data)
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (s *BoltStore) List(_ context.Context, statuses ...Status) ([]Record, error) {
	var out []Record
	err := s.db.View(func(tx *bolt.Tx) error {
		return tx.Bucket(operationsBucket).ForEach(func(_, v []byte) error {
			rec, err := decodeRecord(v)
			if err != nil {
				return err
			}
			if matches(rec, statuses) {
				out = append(out, *rec)
			}
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (s *BoltStore) Close() error {
	return s.db.Close()
}

func decodeRecord(data []byte) (*Record, error) {
	if data == nil {
		return nil, ErrNotFound
	}
	var rec Record
	if err := json.Unmarshal(data, &rec); err != nil {
		return nil, fmt.Errorf("failed to decode record: %w", err)
	}
	return &rec, nil
}
