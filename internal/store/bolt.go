package store

import (
	"encoding/json"
	"fmt"
	"time"

	bolt "go.etcd.io/bbolt"
)

var (
	bucketAttempts    = []byte("attempts")
	bucketTransitions = []byte("transitions")
)

// maxRecords caps each bucket; the oldest entries are pruned on append so
// the history file stays small on flash storage.
const maxRecords = 200

// keyTimeLayout is RFC3339 with a fixed-width fraction. RFC3339Nano trims
// trailing zeros, which breaks lexicographic ordering within a second
// (".5Z" sorts after ".55Z").
const keyTimeLayout = "2006-01-02T15:04:05.000000000Z07:00"

// BoltStore implements Store using BoltDB.
type BoltStore struct {
	db *bolt.DB
}

// NewBoltStore opens or creates a BoltDB database.
func NewBoltStore(path string) (*BoltStore, error) {
	db, err := bolt.Open(path, 0600, &bolt.Options{Timeout: 5 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("open bolt db: %w", err)
	}

	err = db.Update(func(tx *bolt.Tx) error {
		for _, b := range [][]byte{bucketAttempts, bucketTransitions} {
			if _, err := tx.CreateBucketIfNotExists(b); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("create buckets: %w", err)
	}

	return &BoltStore{db: db}, nil
}

func (s *BoltStore) AppendAttempt(rec *AttemptRecord) error {
	return s.append(bucketAttempts, rec.FinishedAt, rec)
}

func (s *BoltStore) AppendTransition(rec *TransitionRecord) error {
	return s.append(bucketTransitions, rec.At, rec)
}

// append writes a record keyed by timestamp + a monotonic sequence so
// same-instant records never collide and iteration stays chronological.
func (s *BoltStore) append(bucket []byte, at time.Time, rec interface{}) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucket)
		if b == nil {
			return fmt.Errorf("bucket %q not found", bucket)
		}
		data, err := json.Marshal(rec)
		if err != nil {
			return err
		}
		seq, err := b.NextSequence()
		if err != nil {
			return err
		}
		key := fmt.Sprintf("%s#%08d", at.UTC().Format(keyTimeLayout), seq)
		if err := b.Put([]byte(key), data); err != nil {
			return err
		}
		return pruneOldest(b, maxRecords)
	})
}

func pruneOldest(b *bolt.Bucket, keep int) error {
	n := b.Stats().KeyN + 1 // +1: Stats is pre-transaction
	if n <= keep {
		return nil
	}
	c := b.Cursor()
	for k, _ := c.First(); k != nil && n > keep; k, _ = c.Next() {
		if err := c.Delete(); err != nil {
			return err
		}
		n--
	}
	return nil
}

func (s *BoltStore) RecentAttempts(n int) ([]*AttemptRecord, error) {
	var out []*AttemptRecord
	err := s.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketAttempts)
		if b == nil {
			return nil
		}
		c := b.Cursor()
		for k, v := c.Last(); k != nil && len(out) < n; k, v = c.Prev() {
			var rec AttemptRecord
			if err := json.Unmarshal(v, &rec); err != nil {
				return err
			}
			out = append(out, &rec)
		}
		return nil
	})
	return out, err
}

func (s *BoltStore) RecentTransitions(n int) ([]*TransitionRecord, error) {
	var out []*TransitionRecord
	err := s.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketTransitions)
		if b == nil {
			return nil
		}
		c := b.Cursor()
		for k, v := c.Last(); k != nil && len(out) < n; k, v = c.Prev() {
			var rec TransitionRecord
			if err := json.Unmarshal(v, &rec); err != nil {
				return err
			}
			out = append(out, &rec)
		}
		return nil
	})
	return out, err
}

func (s *BoltStore) Close() error {
	return s.db.Close()
}
