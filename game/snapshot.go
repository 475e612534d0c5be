package game

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// SnapshotMaxAge is the freshness window for resuming a local session.
// Older snapshots are discarded and the game starts fresh.
const SnapshotMaxAge = 24 * time.Hour

// snapshotFile is the on-disk shape: the full session plus a write stamp.
type snapshotFile struct {
	Session   *Session  `json:"session"`
	Timestamp time.Time `json:"timestamp"`
}

// SnapshotStore persists a single local session as a JSON file. Every save
// is flushed atomically before the operation is considered complete, so an
// interrupted process can resume from the last completed mutation.
type SnapshotStore struct {
	path string
	now  func() time.Time
}

func NewSnapshotStore(path string) *SnapshotStore {
	return &SnapshotStore{path: path, now: time.Now}
}

func (s *SnapshotStore) read() (*snapshotFile, error) {
	data, err := os.ReadFile(s.path)
	if os.IsNotExist(err) {
		return nil, ErrSessionNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("%w: read snapshot: %v", ErrPersistence, err)
	}

	var snap snapshotFile
	if err := json.Unmarshal(data, &snap); err != nil {
		return nil, fmt.Errorf("%w: parse snapshot: %v", ErrPersistence, err)
	}
	if snap.Session == nil {
		return nil, ErrSessionNotFound
	}

	if s.now().Sub(snap.Timestamp) > SnapshotMaxAge {
		// Stale snapshots are treated as absent.
		_ = os.Remove(s.path)
		return nil, ErrSessionNotFound
	}
	return &snap, nil
}

func (s *SnapshotStore) Load(_ context.Context, id string) (*Session, error) {
	snap, err := s.read()
	if err != nil {
		return nil, err
	}
	if snap.Session.SessionID != id {
		return nil, ErrSessionNotFound
	}
	return snap.Session, nil
}

func (s *SnapshotStore) Save(_ context.Context, sess *Session) error {
	snap := snapshotFile{
		Session:   sess,
		Timestamp: s.now(),
	}
	data, err := json.MarshalIndent(&snap, "", "  ")
	if err != nil {
		return fmt.Errorf("%w: encode snapshot: %v", ErrPersistence, err)
	}
	if err := atomicWriteFile(s.path, data); err != nil {
		return fmt.Errorf("%w: write snapshot: %v", ErrPersistence, err)
	}
	return nil
}

func (s *SnapshotStore) Delete(_ context.Context, _ string) error {
	err := os.Remove(s.path)
	if err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("%w: remove snapshot: %v", ErrPersistence, err)
	}
	return nil
}

// Resume returns the in-flight session from a fresh snapshot, or false
// when there is nothing to resume: no snapshot, a stale one, or one whose
// session already ended.
func (s *SnapshotStore) Resume(_ context.Context) (*Session, bool, error) {
	snap, err := s.read()
	if errors.Is(err, ErrSessionNotFound) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	if !snap.Session.Active {
		return nil, false, nil
	}
	return snap.Session, true, nil
}

// atomicWriteFile writes via a temp file and rename, so a crash mid-write
// never leaves a truncated snapshot behind.
func atomicWriteFile(path string, data []byte) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}

	tmp, err := os.CreateTemp(dir, filepath.Base(path)+".tmp-*")
	if err != nil {
		return err
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), path)
}
