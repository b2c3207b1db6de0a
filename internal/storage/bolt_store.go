package storage

import (
	"encoding/binary"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/samvad-hq/daily-digest/internal/domain"
	bolt "go.etcd.io/bbolt"
)

const (
	historySeqBucket = "history_seq"  // seq -> url, iteration order is insertion order
	historyURLBucket = "history_urls" // url -> seq
	runSeqBucket     = "runs"         // seq -> json entry
	runIDBucket      = "run_ids"      // id -> seq
	seqBytes         = 8
)

var allBuckets = []string{historySeqBucket, historyURLBucket, runSeqBucket, runIDBucket}

// boltStore implements a Store backed by BoltDB.
type boltStore struct {
	db           *bolt.DB
	historyLimit int
	runLimit     int
}

// openBolt initializes a BoltDB-backed Store.
func openBolt(path string, opts Options) (Store, error) {
	dir := filepath.Dir(path)
	if dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create storage directory: %w", err)
		}
	}

	db, err := bolt.Open(path, 0o600, &bolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, fmt.Errorf("open bbolt db: %w", err)
	}
	if err := db.Update(func(tx *bolt.Tx) error {
		for _, name := range allBuckets {
			if _, err := tx.CreateBucketIfNotExists([]byte(name)); err != nil {
				return err
			}
		}
		return nil
	}); err != nil {
		db.Close()
		return nil, fmt.Errorf("init buckets: %w", err)
	}

	return &boltStore{
		db:           db,
		historyLimit: opts.HistoryLimit,
		runLimit:     opts.RunLogLimit,
	}, nil
}

// Close closes the BoltDB store.
func (b *boltStore) Close() error {
	if b == nil || b.db == nil {
		return nil
	}
	return b.db.Close()
}

// ReadHistory returns remembered URLs in insertion order.
func (b *boltStore) ReadHistory() ([]string, error) {
	var out []string
	err := b.db.View(func(tx *bolt.Tx) error {
		bucket := tx.Bucket([]byte(historySeqBucket))
		if bucket == nil {
			return fmt.Errorf("history bucket missing")
		}
		return bucket.ForEach(func(_, v []byte) error {
			if len(v) > 0 {
				out = append(out, string(v))
			}
			return nil
		})
	})
	return out, err
}

// AppendHistory records urls not yet present and evicts the oldest entries past the limit.
func (b *boltStore) AppendHistory(urls []string) error {
	if len(urls) == 0 {
		return nil
	}

	return b.db.Update(func(tx *bolt.Tx) error {
		seqs := tx.Bucket([]byte(historySeqBucket))
		index := tx.Bucket([]byte(historyURLBucket))
		if seqs == nil || index == nil {
			return fmt.Errorf("history bucket missing")
		}

		for _, u := range urls {
			if u == "" || index.Get([]byte(u)) != nil {
				continue
			}
			seq, err := seqs.NextSequence()
			if err != nil {
				return err
			}
			key := encodeSeq(seq)
			if err := seqs.Put(key, []byte(u)); err != nil {
				return err
			}
			if err := index.Put([]byte(u), key); err != nil {
				return err
			}
		}

		excess := countKeys(seqs) - b.historyLimit
		cursor := seqs.Cursor()
		for k, v := cursor.First(); k != nil && excess > 0; k, v = cursor.First() {
			if err := index.Delete(append([]byte(nil), v...)); err != nil {
				return err
			}
			if err := cursor.Delete(); err != nil {
				return err
			}
			excess--
		}
		return nil
	})
}

// AppendRun stores entry as the newest run and evicts the oldest past the limit.
func (b *boltStore) AppendRun(entry domain.RunLogEntry) error {
	payload, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("marshal run: %w", err)
	}

	return b.db.Update(func(tx *bolt.Tx) error {
		runs := tx.Bucket([]byte(runSeqBucket))
		ids := tx.Bucket([]byte(runIDBucket))
		if runs == nil || ids == nil {
			return fmt.Errorf("run bucket missing")
		}

		if prev := ids.Get([]byte(entry.ID)); prev != nil {
			if err := runs.Delete(prev); err != nil {
				return err
			}
		}

		seq, err := runs.NextSequence()
		if err != nil {
			return err
		}
		key := encodeSeq(seq)
		if err := runs.Put(key, payload); err != nil {
			return err
		}
		if err := ids.Put([]byte(entry.ID), key); err != nil {
			return err
		}

		excess := countKeys(runs) - b.runLimit
		cursor := runs.Cursor()
		for k, v := cursor.First(); k != nil && excess > 0; k, v = cursor.First() {
			var old domain.RunLogEntry
			if err := json.Unmarshal(v, &old); err == nil {
				if err := ids.Delete([]byte(old.ID)); err != nil {
					return err
				}
			}
			if err := cursor.Delete(); err != nil {
				return err
			}
			excess--
		}
		return nil
	})
}

// UpdateRun patches the entry with id in place.
func (b *boltStore) UpdateRun(id string, patch domain.RunPatch) error {
	return b.db.Update(func(tx *bolt.Tx) error {
		runs := tx.Bucket([]byte(runSeqBucket))
		ids := tx.Bucket([]byte(runIDBucket))
		if runs == nil || ids == nil {
			return fmt.Errorf("run bucket missing")
		}

		key := ids.Get([]byte(id))
		if key == nil {
			return fmt.Errorf("update run %s: %w", id, ErrRunNotFound)
		}
		raw := runs.Get(key)
		if raw == nil {
			return fmt.Errorf("update run %s: %w", id, ErrRunNotFound)
		}

		var entry domain.RunLogEntry
		if err := json.Unmarshal(raw, &entry); err != nil {
			return fmt.Errorf("decode run %s: %w", id, err)
		}
		updated, err := patch.Apply(entry)
		if err != nil {
			return err
		}
		payload, err := json.Marshal(updated)
		if err != nil {
			return fmt.Errorf("marshal run: %w", err)
		}
		return runs.Put(append([]byte(nil), key...), payload)
	})
}

// ReadRuns returns retained entries, newest first. Undecodable entries are skipped.
func (b *boltStore) ReadRuns() ([]domain.RunLogEntry, error) {
	var out []domain.RunLogEntry
	err := b.db.View(func(tx *bolt.Tx) error {
		runs := tx.Bucket([]byte(runSeqBucket))
		if runs == nil {
			return fmt.Errorf("run bucket missing")
		}
		cursor := runs.Cursor()
		for k, v := cursor.Last(); k != nil; k, v = cursor.Prev() {
			var entry domain.RunLogEntry
			if err := json.Unmarshal(v, &entry); err != nil {
				continue
			}
			out = append(out, entry)
		}
		return nil
	})
	return out, err
}

// GetRun returns the entry with id.
func (b *boltStore) GetRun(id string) (domain.RunLogEntry, bool, error) {
	var (
		entry domain.RunLogEntry
		found bool
	)
	err := b.db.View(func(tx *bolt.Tx) error {
		ids := tx.Bucket([]byte(runIDBucket))
		runs := tx.Bucket([]byte(runSeqBucket))
		if runs == nil || ids == nil {
			return fmt.Errorf("run bucket missing")
		}
		key := ids.Get([]byte(id))
		if key == nil {
			return nil
		}
		raw := runs.Get(key)
		if raw == nil {
			return nil
		}
		if err := json.Unmarshal(raw, &entry); err != nil {
			return fmt.Errorf("decode run %s: %w", id, err)
		}
		found = true
		return nil
	})
	return entry, found, err
}

// countKeys walks the bucket; Stats is not reliable inside a write transaction.
func countKeys(bucket *bolt.Bucket) int {
	n := 0
	cursor := bucket.Cursor()
	for k, _ := cursor.First(); k != nil; k, _ = cursor.Next() {
		n++
	}
	return n
}

// encodeSeq encodes a sequence number so byte order matches numeric order.
func encodeSeq(seq uint64) []byte {
	buf := make([]byte, seqBytes)
	binary.BigEndian.PutUint64(buf, seq)
	return buf
}
