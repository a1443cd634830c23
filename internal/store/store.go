// Package store keeps the card countdowns and WiFi settings in one JSON
// document on disk.
//
// Records live in a flat slice in insertion order. Lookups scan it linearly,
// which is O(n) in the record count; the count is bounded by the configured
// capacity (20 on the stock panel), so no index is kept.
package store

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"sync"

	jsoniter "github.com/json-iterator/go"
	"github.com/tartampluch/card-countdown/internal/config"
	"github.com/tartampluch/card-countdown/internal/engine"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// Re-exported so API code does not need the engine package to match errors.
var (
	ErrDuplicateUID     = engine.ErrDuplicateUID
	ErrCapacityExceeded = engine.ErrCapacityExceeded
	ErrNotFound         = engine.ErrNotFound
	ErrUIDImmutable     = engine.ErrUIDImmutable
)

// document is the on-disk layout.
type document struct {
	WiFi       wifiSection     `json:"wifi"`
	Countdowns []engine.Record `json:"countdowns"`
}

type wifiSection struct {
	SSID string `json:"ssid"`

	// Password is only read, from files written by older firmware. It is
	// moved to the keyring on load and never written back.
	Password string `json:"password,omitempty"`
}

// Store is the shared record store. It is safe for concurrent use by the API
// handlers and the control loop.
type Store struct {
	mu       sync.RWMutex
	path     string
	capacity int
	doc      document

	subMu sync.Mutex
	subs  []func(uid string)

	log *slog.Logger
}

// Open loads the document at path, creating an empty one when it is missing.
// A file that exists but cannot be decoded is an error.
func Open(path string, capacity int) (*Store, error) {
	s := &Store{
		path:     path,
		capacity: capacity,
		log:      slog.With(config.LogKeyComponent, config.CompStore, config.LogKeyPath, path),
	}

	raw, err := os.ReadFile(path)
	switch {
	case errors.Is(err, fs.ErrNotExist):
		if err := s.save(s.doc); err != nil {
			return nil, err
		}
		s.log.Info(config.MsgStoreCreated)
		return s, nil
	case err != nil:
		return nil, fmt.Errorf("%s: %w", config.ErrStoreLoad, err)
	}

	if err := json.Unmarshal(raw, &s.doc); err != nil {
		return nil, fmt.Errorf("%s: %w", config.ErrStoreDecode, err)
	}
	for i := range s.doc.Countdowns {
		s.doc.Countdowns[i].UID = engine.NormalizeUID(s.doc.Countdowns[i].UID)
	}

	if err := s.migrateWiFiPassword(); err != nil {
		return nil, err
	}

	s.log.Info(config.MsgStoreLoaded, config.LogKeyCount, len(s.doc.Countdowns))
	return s, nil
}

// Subscribe registers fn to be called with the UID of every successful mutation.
// fn runs on the mutating goroutine after the store lock is released.
func (s *Store) Subscribe(fn func(uid string)) {
	s.subMu.Lock()
	defer s.subMu.Unlock()
	s.subs = append(s.subs, fn)
}

func (s *Store) notify(uid string) {
	s.subMu.Lock()
	subs := slices.Clone(s.subs)
	s.subMu.Unlock()

	for _, fn := range subs {
		fn(uid)
	}
}

// Find returns a copy of the record for uid.
func (s *Store) Find(uid string) (engine.Record, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if i := s.index(engine.NormalizeUID(uid)); i >= 0 {
		return s.doc.Countdowns[i], true
	}
	return engine.Record{}, false
}

// List returns a copy of all records in insertion order.
func (s *Store) List() []engine.Record {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return slices.Clone(s.doc.Countdowns)
}

// Len returns the number of records.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.doc.Countdowns)
}

// Capacity returns the maximum number of records.
func (s *Store) Capacity() int {
	return s.capacity
}

// Add appends a new record. A UID already present is rejected, as is any new
// UID once the store holds capacity records.
func (s *Store) Add(rec engine.Record) error {
	rec.UID = engine.NormalizeUID(rec.UID)
	if rec.UID == "" {
		return errors.New(config.ErrUIDRequired)
	}

	err := s.mutate(func(doc *document) error {
		if s.indexIn(doc.Countdowns, rec.UID) >= 0 {
			return ErrDuplicateUID
		}
		if len(doc.Countdowns) >= s.capacity {
			return ErrCapacityExceeded
		}
		doc.Countdowns = append(doc.Countdowns, rec)
		return nil
	})
	if err != nil {
		return err
	}
	s.notify(rec.UID)
	return nil
}

// Update replaces the fields of the record keyed by uid. The record's UID may
// be empty, meaning unchanged, but may not name a different card.
func (s *Store) Update(uid string, rec engine.Record) error {
	uid = engine.NormalizeUID(uid)
	switch body := engine.NormalizeUID(rec.UID); {
	case body == "":
		rec.UID = uid
	case body != uid:
		return ErrUIDImmutable
	default:
		rec.UID = body
	}

	err := s.mutate(func(doc *document) error {
		i := s.indexIn(doc.Countdowns, uid)
		if i < 0 {
			return ErrNotFound
		}
		doc.Countdowns[i] = rec
		return nil
	})
	if err != nil {
		return err
	}
	s.notify(uid)
	return nil
}

// Delete removes the record keyed by uid.
func (s *Store) Delete(uid string) error {
	uid = engine.NormalizeUID(uid)

	err := s.mutate(func(doc *document) error {
		i := s.indexIn(doc.Countdowns, uid)
		if i < 0 {
			return ErrNotFound
		}
		doc.Countdowns = slices.Delete(doc.Countdowns, i, i+1)
		return nil
	})
	if err != nil {
		return err
	}
	s.notify(uid)
	return nil
}

// mutate applies fn to a copy of the document and persists it. The in-memory
// state only changes when the file was written.
func (s *Store) mutate(fn func(doc *document) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	next := document{WiFi: s.doc.WiFi, Countdowns: slices.Clone(s.doc.Countdowns)}
	if err := fn(&next); err != nil {
		return err
	}
	if err := s.save(next); err != nil {
		return err
	}
	s.doc = next
	return nil
}

func (s *Store) index(uid string) int {
	return s.indexIn(s.doc.Countdowns, uid)
}

func (s *Store) indexIn(recs []engine.Record, uid string) int {
	return slices.IndexFunc(recs, func(r engine.Record) bool { return r.UID == uid })
}

// save writes doc atomically: temp file in the same directory, then rename.
func (s *Store) save(doc document) error {
	doc.WiFi.Password = ""
	if doc.Countdowns == nil {
		doc.Countdowns = []engine.Record{}
	}

	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return fmt.Errorf("%s: %w", config.ErrStoreSave, err)
	}
	if err := WriteFileAtomic(s.path, data, config.FilePermUserRW); err != nil {
		return fmt.Errorf("%s: %w", config.ErrStoreSave, err)
	}

	s.log.Debug(config.MsgStoreSaved, config.LogKeySizeBytes, len(data))
	return nil
}

// WriteFileAtomic replaces path with data so readers never see a partial file.
func WriteFileAtomic(path string, data []byte, perm fs.FileMode) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, config.DirPermShared); err != nil {
		return fmt.Errorf("%s: %w", config.ErrCreateDir, err)
	}

	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".*")
	if err != nil {
		return err
	}
	defer func() { _ = os.Remove(tmp.Name()) }()

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		return err
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	if err := os.Chmod(tmp.Name(), perm); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), path)
}
