// Package boltstore is a BoltDB-backed reference implementation of the
// core.LoadCredentials/core.SaveCredentials callback contract, one
// bucket per security profile, the recipe the core's persistence model
// otherwise leaves external.
package boltstore

import (
	"encoding/json"
	"fmt"
	"time"

	bolt "go.etcd.io/bbolt"

	"github.com/mindconnect/mcl-go/core"
	"github.com/mindconnect/mcl-go/mclerr"
)

var (
	bucketShared = []byte("shared_secret_credentials")
	bucketRsa    = []byte("rsa3072_credentials")
)

const credentialsKey = "credentials"

// Store wraps a BoltDB database holding credentials for both security
// profiles, each in its own bucket.
type Store struct {
	db *bolt.DB
}

// Open creates or opens a BoltDB database at path and ensures both
// profile buckets exist.
func Open(path string) (*Store, error) {
	db, err := bolt.Open(path, 0600, &bolt.Options{Timeout: 5 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("open bolt db: %w", err)
	}

	err = db.Update(func(tx *bolt.Tx) error {
		for _, b := range [][]byte{bucketShared, bucketRsa} {
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

	return &Store{db: db}, nil
}

// Close closes the underlying BoltDB.
func (s *Store) Close() error {
	return s.db.Close()
}

// bucketFor picks the profile's bucket. Shared and Rsa credentials are
// distinguished by which fields are populated in *core.StoredCredentials
// rather than by a stored tag, so callers pass the profile explicitly.
func bucketFor(profile core.Profile) []byte {
	if profile == core.ProfileRsa3072 {
		return bucketRsa
	}
	return bucketShared
}

// Load returns a core.LoadCredentials callback bound to profile's bucket.
// It returns mclerr.CredentialsNotLoaded when nothing has been saved yet,
// matching §4.D's load_if_configured contract.
func (s *Store) Load(profile core.Profile) core.LoadCredentials {
	return func() (*core.StoredCredentials, error) {
		var creds *core.StoredCredentials
		err := s.db.View(func(tx *bolt.Tx) error {
			b := tx.Bucket(bucketFor(profile))
			v := b.Get([]byte(credentialsKey))
			if v == nil {
				return nil
			}
			creds = &core.StoredCredentials{}
			return json.Unmarshal(v, creds)
		})
		if err != nil {
			return nil, mclerr.Wrap(mclerr.CredentialsNotLoaded, "boltstore: load credentials", err)
		}
		if creds == nil {
			return nil, mclerr.New(mclerr.CredentialsNotLoaded, "boltstore: no credentials stored")
		}
		return creds, nil
	}
}

// Save returns a core.SaveCredentials callback bound to profile's bucket.
func (s *Store) Save(profile core.Profile) core.SaveCredentials {
	return func(creds *core.StoredCredentials) error {
		data, err := json.Marshal(creds)
		if err != nil {
			return mclerr.Wrap(mclerr.CredentialsNotSaved, "boltstore: marshal credentials", err)
		}
		err = s.db.Update(func(tx *bolt.Tx) error {
			b := tx.Bucket(bucketFor(profile))
			return b.Put([]byte(credentialsKey), data)
		})
		if err != nil {
			return mclerr.Wrap(mclerr.CredentialsNotSaved, "boltstore: save credentials", err)
		}
		return nil
	}
}
