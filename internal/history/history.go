// Package history keeps a local ledger of inventory runs in bbolt.
package history

import (
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/btree"
	"go.etcd.io/bbolt"
	bolterrors "go.etcd.io/bbolt/errors"

	"github.com/yairfalse/kirja/pkg/inventory"
)

// Bucket names in bbolt
var (
	bucketRuns = []byte("runs")
	bucketMeta = []byte("meta")
	keyRev     = []byte("rev")
)

// ErrLocked is returned when another process holds the ledger open for
// writing. A running daemon keeps the write lock for its whole lifetime.
var ErrLocked = errors.New("history ledger is locked by another kirja process")

// lockTimeout bounds the wait for the file lock.
var lockTimeout = 5 * time.Second

// Run statuses.
const (
	StatusSuccess = "success"
	StatusFailure = "failure"
)

// Entry is one recorded run.
type Entry struct {
	Rev        int64          `json:"rev"`
	RunID      string         `json:"run_id"`
	Kind       inventory.Kind `json:"kind"`
	Status     string         `json:"status"`
	Records    int            `json:"records"`
	Skipped    int            `json:"skipped"`
	Keys       []string       `json:"keys,omitempty"`
	Error      string         `json:"error,omitempty"`
	FinishedAt time.Time      `json:"finished_at"`
	Duration   time.Duration  `json:"duration"`
}

// Store is a revisioned run ledger. Entries are append-only; an in-memory
// btree ordered by revision serves listings.
type Store struct {
	mu sync.RWMutex

	db         *bbolt.DB
	index      *btree.BTreeG[*Entry]
	currentRev int64
	readOnly   bool
}

// Open opens or creates the ledger at path.
func Open(path string) (*Store, error) {
	return open(path, false)
}

// OpenReadOnly opens an existing ledger without taking the write lock.
func OpenReadOnly(path string) (*Store, error) {
	return open(path, true)
}

func open(path string, readOnly bool) (*Store, error) {
	db, err := bbolt.Open(path, 0o600, &bbolt.Options{Timeout: lockTimeout, ReadOnly: readOnly})
	if errors.Is(err, bolterrors.ErrTimeout) {
		return nil, fmt.Errorf("open history %s: %w (waited %s)", path, ErrLocked, lockTimeout)
	}
	if err != nil {
		return nil, fmt.Errorf("open history %s: %w", path, err)
	}

	if !readOnly {
		err = db.Update(func(tx *bbolt.Tx) error {
			for _, bucket := range [][]byte{bucketRuns, bucketMeta} {
				if _, err := tx.CreateBucketIfNotExists(bucket); err != nil {
					return err
				}
			}
			return nil
		})
		if err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("init history: %w", err)
		}
	}

	s := &Store{
		db:       db,
		index:    btree.NewG[*Entry](32, func(a, b *Entry) bool { return a.Rev < b.Rev }),
		readOnly: readOnly,
	}
	if err := s.rebuildIndex(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

// Close closes the store.
func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) rebuildIndex() error {
	return s.db.View(func(tx *bbolt.Tx) error {
		if meta := tx.Bucket(bucketMeta); meta != nil {
			if v := meta.Get(keyRev); len(v) == 8 {
				s.currentRev = int64(binary.BigEndian.Uint64(v))
			}
		}
		runs := tx.Bucket(bucketRuns)
		if runs == nil {
			return nil
		}
		return runs.ForEach(func(_, v []byte) error {
			var e Entry
			if err := json.Unmarshal(v, &e); err != nil {
				return fmt.Errorf("decode history entry: %w", err)
			}
			s.index.ReplaceOrInsert(&e)
			return nil
		})
	})
}

// Record appends result to the ledger and returns the stored entry.
func (s *Store) Record(result inventory.Result, finishedAt time.Time) (Entry, error) {
	if s.readOnly {
		return Entry{}, fmt.Errorf("history opened read-only")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	entry := Entry{
		Rev:        s.currentRev + 1,
		RunID:      result.RunID,
		Kind:       result.Kind,
		Status:     StatusSuccess,
		Records:    result.Records,
		Skipped:    result.Skipped,
		Keys:       result.Keys,
		FinishedAt: finishedAt.UTC(),
		Duration:   result.Duration,
	}
	if result.Err != nil {
		entry.Status = StatusFailure
		entry.Error = result.Err.Error()
	}

	value, err := json.Marshal(entry)
	if err != nil {
		return Entry{}, fmt.Errorf("encode history entry: %w", err)
	}

	err = s.db.Update(func(tx *bbolt.Tx) error {
		key := revKey(entry.Rev)
		if err := tx.Bucket(bucketRuns).Put(key, value); err != nil {
			return err
		}
		return tx.Bucket(bucketMeta).Put(keyRev, key)
	})
	if err != nil {
		return Entry{}, fmt.Errorf("record run: %w", err)
	}

	s.currentRev = entry.Rev
	s.index.ReplaceOrInsert(&entry)
	return entry, nil
}

// List returns up to limit entries, newest first. An empty kind matches
// every kind; limit <= 0 returns all.
func (s *Store) List(kind inventory.Kind, limit int) []Entry {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []Entry
	s.index.Descend(func(e *Entry) bool {
		if kind == "" || e.Kind == kind {
			out = append(out, *e)
		}
		return limit <= 0 || len(out) < limit
	})
	return out
}

// LastSuccess returns the newest successful run of kind.
func (s *Store) LastSuccess(kind inventory.Kind) (Entry, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var found *Entry
	s.index.Descend(func(e *Entry) bool {
		if e.Kind == kind && e.Status == StatusSuccess {
			found = e
			return false
		}
		return true
	})
	if found == nil {
		return Entry{}, false
	}
	return *found, true
}

// Revision returns the newest revision.
func (s *Store) Revision() int64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.currentRev
}

func revKey(rev int64) []byte {
	key := make([]byte, 8)
	binary.BigEndian.PutUint64(key, uint64(rev))
	return key
}
