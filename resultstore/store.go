// Package resultstore persists Result records: a bbolt bucket keyed for
// range scans, an in-memory front cache for the common "compare the last
// few runs" access pattern, and payloads compressed before they ever
// reach the bucket.
package resultstore

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"sync"

	"github.com/google/uuid"
	"github.com/klauspost/compress/zstd"
	"go.etcd.io/bbolt"
)

var bucketResults = []byte("results")

// Result is one algorithm invocation's outcome, per the result record
// shape: platform/workflow/algorithm identity, timing, and the optional
// expected makespan a static algorithm reported up front.
type Result struct {
	ID               string  `json:"id"`
	Platform         string  `json:"platform"`
	Workflow         string  `json:"workflow"`
	Algorithm        string  `json:"algorithm"`
	RecordedAtNanos  int64   `json:"recorded_at_unixnano"`
	Makespan         float64 `json:"makespan"`
	ExecTime         float64 `json:"exec_time"`
	CommTime         float64 `json:"comm_time"`
	SchedulerTime    float64 `json:"scheduler_time"`
	ExpectedMakespan *float64 `json:"expected_makespan,omitempty"`
}

func (r Result) key() []byte {
	return []byte(fmt.Sprintf("%s|%s|%s|%020d", r.Platform, r.Workflow, r.Algorithm, r.RecordedAtNanos))
}

// Store wraps an optional bbolt.DB (nil when the caller never configured
// DAGSCHED_RESULT_DB_PATH, so library use never touches disk) with a
// bounded in-memory LRU of the most recently recorded results.
type Store struct {
	mu       sync.Mutex
	db       *bbolt.DB
	enc      *zstd.Encoder
	dec      *zstd.Decoder
	cache    []Result // most-recent-first, capped at cacheCap
	cacheCap int
}

// Open builds a Store. path == "" keeps everything in-memory; otherwise
// path names a bbolt database file to open (created if absent).
func Open(path string, cacheCap int) (*Store, error) {
	if cacheCap <= 0 {
		cacheCap = 100
	}
	enc, err := zstd.NewWriter(nil)
	if err != nil {
		return nil, fmt.Errorf("build zstd encoder: %w", err)
	}
	dec, err := zstd.NewReader(nil)
	if err != nil {
		return nil, fmt.Errorf("build zstd decoder: %w", err)
	}

	s := &Store{enc: enc, dec: dec, cacheCap: cacheCap}
	if path == "" {
		return s, nil
	}

	db, err := bbolt.Open(path, 0600, nil)
	if err != nil {
		return nil, fmt.Errorf("open result store: %w", err)
	}
	if err := db.Update(func(tx *bbolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(bucketResults)
		return err
	}); err != nil {
		db.Close()
		return nil, fmt.Errorf("create results bucket: %w", err)
	}
	s.db = db
	return s, nil
}

// Close releases the underlying database handle, if any.
func (s *Store) Close() error {
	if s.db == nil {
		return nil
	}
	return s.db.Close()
}

// Put stamps an ID if absent, records r to the front cache, and — when
// backed by a database — compresses and persists it.
func (s *Store) Put(ctx context.Context, r Result) (Result, error) {
	if r.ID == "" {
		r.ID = uuid.NewString()
	}

	s.mu.Lock()
	s.cache = append([]Result{r}, s.cache...)
	if len(s.cache) > s.cacheCap {
		s.cache = s.cache[:s.cacheCap]
	}
	s.mu.Unlock()

	if s.db == nil {
		return r, nil
	}

	payload, err := json.Marshal(r)
	if err != nil {
		return r, fmt.Errorf("marshal result: %w", err)
	}
	compressed := s.enc.EncodeAll(payload, nil)

	err = s.db.Update(func(tx *bbolt.Tx) error {
		return tx.Bucket(bucketResults).Put(r.key(), compressed)
	})
	if err != nil {
		return r, fmt.Errorf("write result: %w", err)
	}
	return r, nil
}

// Recent returns up to n most recently Put results, newest first, from
// the in-memory cache only.
func (s *Store) Recent(n int) []Result {
	s.mu.Lock()
	defer s.mu.Unlock()
	if n > len(s.cache) {
		n = len(s.cache)
	}
	out := make([]Result, n)
	copy(out, s.cache[:n])
	return out
}

// ForAlgorithm scans the database (or, absent one, the cache) for every
// result matching (platform, workflow, algorithm), oldest first.
func (s *Store) ForAlgorithm(platform, workflow, algorithm string) ([]Result, error) {
	if s.db == nil {
		s.mu.Lock()
		defer s.mu.Unlock()
		var out []Result
		for _, r := range s.cache {
			if r.Platform == platform && r.Workflow == workflow && r.Algorithm == algorithm {
				out = append(out, r)
			}
		}
		sort.Slice(out, func(i, j int) bool { return out[i].RecordedAtNanos < out[j].RecordedAtNanos })
		return out, nil
	}

	prefix := []byte(fmt.Sprintf("%s|%s|%s|", platform, workflow, algorithm))
	var out []Result
	err := s.db.View(func(tx *bbolt.Tx) error {
		c := tx.Bucket(bucketResults).Cursor()
		for k, v := c.Seek(prefix); k != nil && hasPrefix(k, prefix); k, v = c.Next() {
			raw, err := s.dec.DecodeAll(v, nil)
			if err != nil {
				return fmt.Errorf("decompress result %q: %w", k, err)
			}
			var r Result
			if err := json.Unmarshal(raw, &r); err != nil {
				return fmt.Errorf("unmarshal result %q: %w", k, err)
			}
			out = append(out, r)
		}
		return nil
	})
	return out, err
}

func hasPrefix(data, prefix []byte) bool {
	if len(data) < len(prefix) {
		return false
	}
	for i := range prefix {
		if data[i] != prefix[i] {
			return false
		}
	}
	return true
}
