package services

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	bolt "go.etcd.io/bbolt"
)

// BoltDB implements the handlers' FileStore using a BoltDB backend. It remembers, per visitor session, the
// name of the file the visitor uploaded last. Records are only ever overwritten, never deleted.
type BoltDB struct {
	db *bolt.DB
}

type sessionRecord struct {
	CurrentFile string    `json:"currentFile"`
	UpdatedAt   time.Time `json:"updatedAt"`
}

var sessionsBucket = []byte("sessions")

// NewBoltDB creates a new BoltDB instance with the specified file path. It initializes the database
// with required buckets and returns an error if the database cannot be opened or initialized. The
// database file is created with 0600 permissions if it doesn't exist.
func NewBoltDB(path string) (BoltDB, error) {
	db, err := bolt.Open(path, 0600, &bolt.Options{Timeout: time.Second})
	if err != nil {
		return BoltDB{}, fmt.Errorf("failed to open bolt db: %w", err)
	}

	err = db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(sessionsBucket)
		return err
	})
	if err != nil {
		db.Close()
		return BoltDB{}, fmt.Errorf("failed to create sessions bucket: %w", err)
	}

	return BoltDB{db: db}, nil
}

// CurrentFile returns the file name stored for sessionID, or an empty string if the session has not
// uploaded anything yet.
func (b BoltDB) CurrentFile(_ context.Context, sessionID string) (string, error) {
	var rec sessionRecord
	err := b.db.View(func(tx *bolt.Tx) error {
		bucket := tx.Bucket(sessionsBucket)
		if bucket == nil {
			return nil
		}

		v := bucket.Get([]byte(sessionID))
		if v == nil {
			return nil
		}
		if err := json.Unmarshal(v, &rec); err != nil {
			return fmt.Errorf("failed to unmarshal session: %w", err)
		}
		return nil
	})
	if err != nil {
		return "", err
	}
	return rec.CurrentFile, nil
}

// SetCurrentFile stores name as the current file of sessionID, replacing any previous one.
func (b BoltDB) SetCurrentFile(_ context.Context, sessionID, name string) error {
	return b.db.Update(func(tx *bolt.Tx) error {
		bucket := tx.Bucket(sessionsBucket)
		if bucket == nil {
			return fmt.Errorf("bucket %s not found", sessionsBucket)
		}

		v, err := json.Marshal(sessionRecord{
			CurrentFile: name,
			UpdatedAt:   time.Now(),
		})
		if err != nil {
			return fmt.Errorf("failed to marshal session: %w", err)
		}

		return bucket.Put([]byte(sessionID), v)
	})
}

// Close releases the database file.
func (b BoltDB) Close() error {
	return b.db.Close()
}
