package storage

import (
	"encoding/json"
	"fmt"
	"path/filepath"

	bolt "go.etcd.io/bbolt"
)

var (
	bucketJobs     = []byte("jobs")
	bucketRequests = []byte("requests")
)

// BoltStore implements Store using BoltDB.
type BoltStore struct {
	db *bolt.DB
}

// NewBoltStore opens (creating if absent) the job ledger database
// under dataDir.
func NewBoltStore(dataDir string) (*BoltStore, error) {
	dbPath := filepath.Join(dataDir, "qserv-replica.db")

	db, err := bolt.Open(dbPath, 0600, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to open job ledger: %w", err)
	}

	err = db.Update(func(tx *bolt.Tx) error {
		for _, bucket := range [][]byte{bucketJobs, bucketRequests} {
			if _, err := tx.CreateBucketIfNotExists(bucket); err != nil {
				return fmt.Errorf("failed to create bucket %s: %w", bucket, err)
			}
		}
		return nil
	})
	if err != nil {
		db.Close()
		return nil, err
	}

	return &BoltStore{db: db}, nil
}

// Close closes the database.
func (s *BoltStore) Close() error {
	return s.db.Close()
}

// PutJob upserts a job record.
func (s *BoltStore) PutJob(rec JobRecord) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		data, err := json.Marshal(rec)
		if err != nil {
			return err
		}
		return tx.Bucket(bucketJobs).Put([]byte(rec.ID), data)
	})
}

// GetJob returns the job record for id.
func (s *BoltStore) GetJob(id string) (JobRecord, error) {
	var rec JobRecord
	err := s.db.View(func(tx *bolt.Tx) error {
		data := tx.Bucket(bucketJobs).Get([]byte(id))
		if data == nil {
			return fmt.Errorf("job not found: %s", id)
		}
		return json.Unmarshal(data, &rec)
	})
	return rec, err
}

// ListJobs returns every persisted job record.
func (s *BoltStore) ListJobs() ([]JobRecord, error) {
	var recs []JobRecord
	err := s.db.View(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketJobs).ForEach(func(k, v []byte) error {
			var rec JobRecord
			if err := json.Unmarshal(v, &rec); err != nil {
				return err
			}
			recs = append(recs, rec)
			return nil
		})
	})
	return recs, err
}

// DeleteJob removes a job record, e.g. after ledger trimming.
func (s *BoltStore) DeleteJob(id string) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketJobs).Delete([]byte(id))
	})
}

// PutRequest appends/overwrites a request record, keyed by its own ID.
func (s *BoltStore) PutRequest(rec RequestRecord) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		data, err := json.Marshal(rec)
		if err != nil {
			return err
		}
		return tx.Bucket(bucketRequests).Put([]byte(rec.ID), data)
	})
}

// ListRequestsByJob returns every request record issued by jobID.
func (s *BoltStore) ListRequestsByJob(jobID string) ([]RequestRecord, error) {
	var recs []RequestRecord
	err := s.db.View(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketRequests).ForEach(func(k, v []byte) error {
			var rec RequestRecord
			if err := json.Unmarshal(v, &rec); err != nil {
				return err
			}
			if rec.JobID == jobID {
				recs = append(recs, rec)
			}
			return nil
		})
	})
	return recs, err
}
