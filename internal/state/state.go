package state

import (
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"github.com/alexjbarnes/openid-store/internal/models"
	bolt "go.etcd.io/bbolt"
)

const (
	// stateDirPerm is the permission mode for the directory holding the snapshot.
	stateDirPerm = fs.FileMode(0o700)

	// stateFilePerm is the permission mode for the snapshot file. It
	// contains client secrets and token payloads.
	stateFilePerm = fs.FileMode(0o600)

	// stateOpenTimeout is the maximum time to wait for the bolt database lock.
	stateOpenTimeout = 5 * time.Second
)

var (
	metaBucket           = []byte("meta")
	applicationsBucket   = []byte("applications")
	authorizationsBucket = []byte("authorizations")
	scopesBucket         = []byte("scopes")
	tokensBucket         = []byte("tokens")

	savedAtKey = []byte("saved_at")
)

// Snapshot is the full content of the four stores at one point in time.
type Snapshot struct {
	SavedAt        time.Time              `json:"saved_at"`
	Applications   []models.Application   `json:"applications"`
	Authorizations []models.Authorization `json:"authorizations"`
	Scopes         []models.Scope         `json:"scopes"`
	Tokens         []models.Token         `json:"tokens"`
}

// State wraps a bbolt database holding the most recent snapshot. Writes
// happen on shutdown only, so anything stored after the last save is
// lost on a crash.
type State struct {
	db *bolt.DB
}

// LoadAt opens a state database at the given path, creating it if it
// does not exist.
func LoadAt(path string) (*State, error) {
	if err := os.MkdirAll(filepath.Dir(path), stateDirPerm); err != nil {
		return nil, fmt.Errorf("creating state directory: %w", err)
	}

	db, err := bolt.Open(path, stateFilePerm, &bolt.Options{Timeout: stateOpenTimeout})
	if err != nil {
		return nil, fmt.Errorf("opening state db: %w", err)
	}

	err = db.Update(func(tx *bolt.Tx) error {
		for _, name := range [][]byte{metaBucket, applicationsBucket, authorizationsBucket, scopesBucket, tokensBucket} {
			if _, err := tx.CreateBucketIfNotExists(name); err != nil {
				return err
			}
		}

		return nil
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("initializing state db: %w", err)
	}

	return &State{db: db}, nil
}

// Close closes the database.
func (s *State) Close() error {
	return s.db.Close()
}

// SaveSnapshot replaces the stored snapshot with snap in a single
// transaction.
func (s *State) SaveSnapshot(snap Snapshot) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		if err := putAll(tx, applicationsBucket, snap.Applications, func(a *models.Application) int64 { return a.ID }); err != nil {
			return err
		}

		if err := putAll(tx, authorizationsBucket, snap.Authorizations, func(a *models.Authorization) int64 { return a.ID }); err != nil {
			return err
		}

		if err := putAll(tx, scopesBucket, snap.Scopes, func(sc *models.Scope) int64 { return sc.ID }); err != nil {
			return err
		}

		if err := putAll(tx, tokensBucket, snap.Tokens, func(t *models.Token) int64 { return t.ID }); err != nil {
			return err
		}

		savedAt, err := snap.SavedAt.UTC().MarshalText()
		if err != nil {
			return err
		}

		return tx.Bucket(metaBucket).Put(savedAtKey, savedAt)
	})
}

// LoadSnapshot returns the stored snapshot. Records come back ordered by
// physical identifier. An empty database yields an empty snapshot with a
// zero SavedAt.
func (s *State) LoadSnapshot() (Snapshot, error) {
	var snap Snapshot

	err := s.db.View(func(tx *bolt.Tx) error {
		if v := tx.Bucket(metaBucket).Get(savedAtKey); v != nil {
			if err := snap.SavedAt.UnmarshalText(v); err != nil {
				return fmt.Errorf("reading snapshot time: %w", err)
			}
		}

		var err error

		if snap.Applications, err = readAll[models.Application](tx, applicationsBucket); err != nil {
			return err
		}

		if snap.Authorizations, err = readAll[models.Authorization](tx, authorizationsBucket); err != nil {
			return err
		}

		if snap.Scopes, err = readAll[models.Scope](tx, scopesBucket); err != nil {
			return err
		}

		snap.Tokens, err = readAll[models.Token](tx, tokensBucket)

		return err
	})

	return snap, err
}

// putAll empties the bucket and writes records keyed by physical
// identifier. Big-endian keys keep bbolt's byte order equal to id order.
func putAll[T any](tx *bolt.Tx, name []byte, records []T, id func(*T) int64) error {
	if err := tx.DeleteBucket(name); err != nil && !errors.Is(err, bolt.ErrBucketNotFound) {
		return fmt.Errorf("clearing %s: %w", name, err)
	}

	b, err := tx.CreateBucket(name)
	if err != nil {
		return fmt.Errorf("creating %s: %w", name, err)
	}

	for i := range records {
		data, err := json.Marshal(&records[i])
		if err != nil {
			return fmt.Errorf("encoding %s record: %w", name, err)
		}

		if err := b.Put(idKey(id(&records[i])), data); err != nil {
			return err
		}
	}

	return nil
}

func readAll[T any](tx *bolt.Tx, name []byte) ([]T, error) {
	var out []T

	err := tx.Bucket(name).ForEach(func(k, v []byte) error {
		var rec T
		if err := json.Unmarshal(v, &rec); err != nil {
			return fmt.Errorf("decoding %s record %x: %w", name, k, err)
		}

		out = append(out, rec)

		return nil
	})

	return out, err
}

func idKey(id int64) []byte {
	k := make([]byte, 8)
	binary.BigEndian.PutUint64(k, uint64(id))

	return k
}
