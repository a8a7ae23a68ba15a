package devengine

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/cockroachdb/pebble"

	"sessiongate/pkg/logger"
)

// Record is one stored session: the signed-in user plus its expiry.
type Record struct {
	Name    string                 `json:"name,omitempty"`
	Email   string                 `json:"email,omitempty"`
	Image   string                 `json:"image,omitempty"`
	Roles   []string               `json:"roles,omitempty"`
	Claims  map[string]interface{} `json:"claims,omitempty"`
	Expires time.Time              `json:"expires"`
}

// Expired reports whether the record is past its expiry at now.
func (r Record) Expired(now time.Time) bool {
	return !r.Expires.IsZero() && now.After(r.Expires)
}

// SessionStore persists session records keyed by token. Get must not
// return expired records; implementations delete them lazily.
type SessionStore interface {
	Put(token string, rec Record) error
	Get(token string) (Record, bool, error)
	Delete(token string) error
	// Prune removes expired records and returns how many went away.
	Prune(now time.Time) (int, error)
	Close() error
}

// MemoryStore keeps sessions in a map. The zero value is not usable;
// call NewMemoryStore.
type MemoryStore struct {
	mu sync.RWMutex
	m  map[string]Record
}

// NewMemoryStore returns an empty in-memory session store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{m: make(map[string]Record)}
}

func (s *MemoryStore) Put(token string, rec Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.m[token] = rec
	return nil
}

func (s *MemoryStore) Get(token string) (Record, bool, error) {
	s.mu.RLock()
	rec, ok := s.m[token]
	s.mu.RUnlock()
	if !ok {
		return Record{}, false, nil
	}
	if rec.Expired(time.Now()) {
		s.mu.Lock()
		delete(s.m, token)
		s.mu.Unlock()
		return Record{}, false, nil
	}
	return rec, true, nil
}

func (s *MemoryStore) Delete(token string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.m, token)
	return nil
}

func (s *MemoryStore) Prune(now time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for tok, rec := range s.m {
		if rec.Expired(now) {
			delete(s.m, tok)
			n++
		}
	}
	return n, nil
}

func (s *MemoryStore) Close() error { return nil }

// sessionKeyPrefix namespaces session records in pebble.
const sessionKeyPrefix = "session:"

// PebbleStore persists sessions in a Pebble database so dev sessions
// survive engine restarts.
type PebbleStore struct {
	db *pebble.DB
}

// OpenPebbleStore opens (or creates) the session database at path.
func OpenPebbleStore(path string) (*PebbleStore, error) {
	logger.Info("opening_session_db", "path", path)
	db, err := pebble.Open(path, &pebble.Options{})
	if err != nil {
		logger.Error("session_db_open_failed", "path", path, "error", err)
		return nil, err
	}
	return &PebbleStore{db: db}, nil
}

func (s *PebbleStore) Put(token string, rec Record) error {
	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("failed to marshal session record: %w", err)
	}
	key := []byte(sessionKeyPrefix + token)
	if err := s.db.Set(key, data, pebble.Sync); err != nil {
		logger.Error("session_save_failed", "error", err)
		return err
	}
	return nil
}

func (s *PebbleStore) Get(token string) (Record, bool, error) {
	key := []byte(sessionKeyPrefix + token)
	v, closer, err := s.db.Get(key)
	if err != nil {
		if errors.Is(err, pebble.ErrNotFound) {
			return Record{}, false, nil
		}
		return Record{}, false, err
	}
	data := append([]byte(nil), v...)
	if closer != nil {
		_ = closer.Close()
	}
	var rec Record
	if err := json.Unmarshal(data, &rec); err != nil {
		return Record{}, false, fmt.Errorf("invalid session record: %w", err)
	}
	if rec.Expired(time.Now()) {
		_ = s.Delete(token)
		return Record{}, false, nil
	}
	return rec, true, nil
}

func (s *PebbleStore) Delete(token string) error {
	key := []byte(sessionKeyPrefix + token)
	return s.db.Delete(key, pebble.Sync)
}

func (s *PebbleStore) Prune(now time.Time) (int, error) {
	prefix := []byte(sessionKeyPrefix)
	iter, err := s.db.NewIter(&pebble.IterOptions{})
	if err != nil {
		return 0, err
	}

	// collect expired keys first, delete after the iterator is closed
	var stale [][]byte
	for iter.SeekGE(prefix); iter.Valid(); iter.Next() {
		if !bytes.HasPrefix(iter.Key(), prefix) {
			break
		}
		var rec Record
		if err := json.Unmarshal(iter.Value(), &rec); err != nil {
			// unreadable records count as stale
			stale = append(stale, append([]byte(nil), iter.Key()...))
			continue
		}
		if rec.Expired(now) {
			stale = append(stale, append([]byte(nil), iter.Key()...))
		}
	}
	if err := iter.Error(); err != nil {
		_ = iter.Close()
		return 0, err
	}
	if err := iter.Close(); err != nil {
		return 0, err
	}

	for _, k := range stale {
		if err := s.db.Delete(k, pebble.Sync); err != nil {
			return 0, err
		}
	}
	if len(stale) > 0 {
		logger.Info("sessions_pruned", "count", len(stale))
	}
	return len(stale), nil
}

// Each visits every stored session record, expired ones included.
// Iteration stops at the first error.
func (s *PebbleStore) Each(fn func(token string, rec Record) error) error {
	prefix := []byte(sessionKeyPrefix)
	iter, err := s.db.NewIter(&pebble.IterOptions{})
	if err != nil {
		return err
	}
	defer iter.Close()

	for iter.SeekGE(prefix); iter.Valid(); iter.Next() {
		if !bytes.HasPrefix(iter.Key(), prefix) {
			break
		}
		token := string(iter.Key()[len(prefix):])
		var rec Record
		if err := json.Unmarshal(iter.Value(), &rec); err != nil {
			return fmt.Errorf("invalid session record %q: %w", token, err)
		}
		if err := fn(token, rec); err != nil {
			return err
		}
	}
	return iter.Error()
}

func (s *PebbleStore) Close() error {
	if s.db == nil {
		return nil
	}
	err := s.db.Close()
	s.db = nil
	return err
}
