package store

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/aristath/convertbot/internal/domain"
)

// FilePositionStore implements domain.PositionStore per the durability
// requirement: write to a temporary file then atomically rename, with a
// parallel lock file that serializes writers. This is deliberately not
// the SQLite ledger DB — PositionState is a single small JSON document
// read and rewritten in full every cycle, and the atomic-rename idiom
// guarantees a reader never observes a half-written file, which a SQL
// transaction would also give but at the cost of a second schema this
// single document doesn't need.
//
// Unlike the scheduler's region lock (which refuses to run a second
// instance outright), this lock only serializes writers within the same
// process's phases; it retries briefly rather than failing immediately.
type FilePositionStore struct {
	path     string
	lockPath string
	timeout  time.Duration
}

// NewFilePositionStore builds a FilePositionStore rooted at path.
func NewFilePositionStore(path string) *FilePositionStore {
	return &FilePositionStore{
		path:     path,
		lockPath: path + ".lock",
		timeout:  5 * time.Second,
	}
}

// Load reads the persisted PositionState. A missing file is not an error:
// it means no cycle has completed yet, and callers get a fresh zero state.
func (s *FilePositionStore) Load() (*domain.PositionState, error) {
	data, err := os.ReadFile(s.path)
	if os.IsNotExist(err) {
		return domain.NewPositionState(), nil
	}
	if err != nil {
		return nil, fmt.Errorf("read position state: %w", err)
	}

	state := domain.NewPositionState()
	if err := json.Unmarshal(data, state); err != nil {
		return nil, fmt.Errorf("decode position state: %w", err)
	}
	return state, nil
}

// Save persists state via write-temp-then-rename, holding the lock file
// for the duration so concurrent writers serialize instead of racing.
func (s *FilePositionStore) Save(state *domain.PositionState) error {
	unlock, err := s.acquireLock()
	if err != nil {
		return err
	}
	defer unlock()

	data, err := json.MarshalIndent(state, "", "  ")
	if err != nil {
		return fmt.Errorf("encode position state: %w", err)
	}

	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create position state directory: %w", err)
	}

	tmp, err := os.CreateTemp(dir, filepath.Base(s.path)+".tmp-*")
	if err != nil {
		return fmt.Errorf("create temp position file: %w", err)
	}
	tmpPath := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpPath)
		return fmt.Errorf("write temp position file: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpPath)
		return fmt.Errorf("sync temp position file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpPath)
		return fmt.Errorf("close temp position file: %w", err)
	}

	if err := os.Rename(tmpPath, s.path); err != nil {
		_ = os.Remove(tmpPath)
		return fmt.Errorf("rename temp position file: %w", err)
	}
	return nil
}

// acquireLock retries creating the lock file exclusively until it
// succeeds or s.timeout elapses, returning a func to release it.
func (s *FilePositionStore) acquireLock() (func(), error) {
	deadline := time.Now().Add(s.timeout)
	for {
		f, err := os.OpenFile(s.lockPath, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o644)
		if err == nil {
			_ = f.Close()
			return func() { _ = os.Remove(s.lockPath) }, nil
		}
		if !os.IsExist(err) {
			return nil, fmt.Errorf("create position lock file: %w", err)
		}
		if time.Now().After(deadline) {
			return nil, fmt.Errorf("position lock %s held past %s", s.lockPath, s.timeout)
		}
		time.Sleep(20 * time.Millisecond)
	}
}

var _ domain.PositionStore = (*FilePositionStore)(nil)
