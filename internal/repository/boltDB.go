package repository

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/boltdb/bolt"
	"github.com/google/uuid"

	"github.com/NamanBalaji/wsdl/internal/common"
)

const historyBucket = "history"

// ErrRecordNotFound is returned when no record exists for a run id.
var ErrRecordNotFound = errors.New("history record not found")

// BoltDBRepository stores finished download runs in BoltDB, one JSON value per run id.
type BoltDBRepository struct {
	db *bolt.DB
}

// NewBoltDBRepository creates a new BoltDB repository
func NewBoltDBRepository(dbPath string) (*BoltDBRepository, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0o755); err != nil {
		return nil, fmt.Errorf("failed to create database directory: %w", err)
	}

	db, err := bolt.Open(dbPath, 0o600, &bolt.Options{Timeout: 1 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	err = db.Update(func(tx *bolt.Tx) error {
		if _, err := tx.CreateBucketIfNotExists([]byte(historyBucket)); err != nil {
			return fmt.Errorf("failed to create history bucket: %w", err)
		}
		return nil
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create buckets: %w", err)
	}

	return &BoltDBRepository{
		db: db,
	}, nil
}

// Save persists a run, replacing any earlier record with the same run id.
func (r *BoltDBRepository) Save(state common.DownloadState) error {
	if state.RunID == uuid.Nil {
		return fmt.Errorf("record for %s has no run id", state.FileID)
	}

	return r.db.Update(func(tx *bolt.Tx) error {
		bucket := tx.Bucket([]byte(historyBucket))
		if bucket == nil {
			return fmt.Errorf("bucket not found: %s", historyBucket)
		}

		data, err := json.Marshal(state)
		if err != nil {
			return fmt.Errorf("failed to marshal record: %w", err)
		}

		if err := bucket.Put([]byte(state.RunID.String()), data); err != nil {
			return fmt.Errorf("failed to save record: %w", err)
		}

		return nil
	})
}

// Find retrieves a run by id
func (r *BoltDBRepository) Find(id uuid.UUID) (common.DownloadState, error) {
	var state common.DownloadState

	err := r.db.View(func(tx *bolt.Tx) error {
		bucket := tx.Bucket([]byte(historyBucket))
		if bucket == nil {
			return fmt.Errorf("bucket not found: %s", historyBucket)
		}

		data := bucket.Get([]byte(id.String()))
		if data == nil {
			return ErrRecordNotFound
		}

		return json.Unmarshal(data, &state)
	})

	return state, err
}

// FindAll retrieves every run, most recently finished first.
func (r *BoltDBRepository) FindAll() ([]common.DownloadState, error) {
	var records []common.DownloadState

	err := r.db.View(func(tx *bolt.Tx) error {
		bucket := tx.Bucket([]byte(historyBucket))
		if bucket == nil {
			return fmt.Errorf("bucket not found: %s", historyBucket)
		}

		return bucket.ForEach(func(k, v []byte) error {
			var state common.DownloadState
			if err := json.Unmarshal(v, &state); err != nil {
				return fmt.Errorf("failed to unmarshal record: %w", err)
			}
			records = append(records, state)
			return nil
		})
	})
	if err != nil {
		return nil, err
	}

	sort.Slice(records, func(i, j int) bool {
		return finishedAt(records[i]).After(finishedAt(records[j]))
	})

	return records, nil
}

// Delete removes a run
func (r *BoltDBRepository) Delete(id uuid.UUID) error {
	return r.db.Update(func(tx *bolt.Tx) error {
		bucket := tx.Bucket([]byte(historyBucket))
		if bucket == nil {
			return fmt.Errorf("bucket not found: %s", historyBucket)
		}

		key := []byte(id.String())
		if bucket.Get(key) == nil {
			return ErrRecordNotFound
		}
		return bucket.Delete(key)
	})
}

// Prune deletes runs that finished before the cutoff and returns how many were removed.
func (r *BoltDBRepository) Prune(before time.Time) (int, error) {
	removed := 0

	err := r.db.Update(func(tx *bolt.Tx) error {
		bucket := tx.Bucket([]byte(historyBucket))
		if bucket == nil {
			return fmt.Errorf("bucket not found: %s", historyBucket)
		}

		var stale [][]byte
		err := bucket.ForEach(func(k, v []byte) error {
			var state common.DownloadState
			if err := json.Unmarshal(v, &state); err != nil {
				return fmt.Errorf("failed to unmarshal record: %w", err)
			}
			if finishedAt(state).Before(before) {
				stale = append(stale, append([]byte(nil), k...))
			}
			return nil
		})
		if err != nil {
			return err
		}

		for _, k := range stale {
			if err := bucket.Delete(k); err != nil {
				return err
			}
			removed++
		}
		return nil
	})

	return removed, err
}

// Close closes the database
func (r *BoltDBRepository) Close() error {
	return r.db.Close()
}

func finishedAt(s common.DownloadState) time.Time {
	if !s.EndTime.IsZero() {
		return s.EndTime
	}
	return s.StartTime
}
