/*
Package bolt provides a bbolt-backed implementation of the report store.

PURPOSE:
  A single-file embedded alternative to the SQLite store. Aggregates
  are JSON-encoded values in one bucket, keyed by report id. bbolt's
  serialized write transactions make the compare-and-swap trivially
  atomic: the version check, the mutator, and the put all happen inside
  one db.Update.

USAGE:
  store, err := bolt.New("./data/expense.bolt")
  if err != nil {
      log.Fatal(err)
  }
  defer store.Close()

SEE ALSO:
  - report/store.go: Interface definition and CAS contract
  - store/sqlite: SQL-backed alternative
*/
package bolt

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"go.etcd.io/bbolt"

	"github.com/warp/expense-engine/report"
)

const bucketName = "reports"

// Store implements report.Store using bbolt.
type Store struct {
	db *bbolt.DB
}

// New opens (or creates) the database file at path.
func New(path string) (*Store, error) {
	db, err := bbolt.Open(path, 0600, &bbolt.Options{Timeout: 1 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("opening boltdb: %w", err)
	}

	err = db.Update(func(tx *bbolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists([]byte(bucketName))
		return err
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("creating bucket: %w", err)
	}
	return &Store{db: db}, nil
}

// Close closes the database file.
func (s *Store) Close() error {
	return s.db.Close()
}

// =============================================================================
// STORE INTERFACE
// =============================================================================

func (s *Store) Load(_ context.Context, id report.ReportID) (*report.Report, error) {
	var r *report.Report
	err := s.db.View(func(tx *bbolt.Tx) error {
		data := tx.Bucket([]byte(bucketName)).Get([]byte(id))
		if data == nil {
			return report.ErrNotFound
		}
		return json.Unmarshal(data, &r)
	})
	if err != nil {
		return nil, err
	}
	return r, nil
}

func (s *Store) Create(_ context.Context, r *report.Report) error {
	return s.db.Update(func(tx *bbolt.Tx) error {
		return putReport(tx, r)
	})
}

// CompareAndSwap runs entirely inside one write transaction: version
// check, mutator, put. A mutator error or a version mismatch aborts the
// transaction with zero writes.
func (s *Store) CompareAndSwap(_ context.Context, id report.ReportID, expectedVersion int64, mutate report.Mutator) (*report.Report, error) {
	var next *report.Report
	err := s.db.Update(func(tx *bbolt.Tx) error {
		data := tx.Bucket([]byte(bucketName)).Get([]byte(id))
		if data == nil {
			return report.ErrNotFound
		}

		var stored report.Report
		if err := json.Unmarshal(data, &stored); err != nil {
			return fmt.Errorf("unmarshaling report: %w", err)
		}
		if stored.Version != expectedVersion {
			return &report.VersionConflictError{Expected: expectedVersion, Stored: stored.Version}
		}

		next = stored.Clone()
		if err := mutate(next); err != nil {
			return err
		}
		next.Version = expectedVersion + 1
		return putReport(tx, next)
	})
	if err != nil {
		return nil, err
	}
	return next, nil
}

func (s *Store) List(_ context.Context) ([]*report.Report, error) {
	reports := make([]*report.Report, 0)
	err := s.db.View(func(tx *bbolt.Tx) error {
		return tx.Bucket([]byte(bucketName)).ForEach(func(k, v []byte) error {
			var r report.Report
			if err := json.Unmarshal(v, &r); err != nil {
				return fmt.Errorf("unmarshaling report: %w", err)
			}
			reports = append(reports, &r)
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	return reports, nil
}

func putReport(tx *bbolt.Tx, r *report.Report) error {
	data, err := json.Marshal(r)
	if err != nil {
		return fmt.Errorf("marshaling report: %w", err)
	}
	return tx.Bucket([]byte(bucketName)).Put([]byte(r.ID), data)
}
