package session

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
)

// DefaultFileName is used when FileStore is given no path
const DefaultFileName = ".solbridge-sessions.json"

// fileSnapshot is the on-disk layout of a FileStore
type fileSnapshot struct {
	Sessions map[string]*Session `json:"sessions"`
}

// FileStore is a single-instance Store that survives restarts by writing
// every change to a JSON file.
type FileStore struct {
	path     string
	mu       sync.RWMutex
	sessions map[string]*Session
}

// NewFileStore opens or creates the store at path. An empty path means
// DefaultFileName in the home directory.
func NewFileStore(path string) (*FileStore, error) {
	if path == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("failed to get home directory: %w", err)
		}
		path = filepath.Join(home, DefaultFileName)
	}

	fs := &FileStore{
		path:     path,
		sessions: make(map[string]*Session),
	}

	// A missing file is created on first write
	if err := fs.load(); err != nil && !os.IsNotExist(err) {
		return nil, fmt.Errorf("failed to load sessions: %w", err)
	}
	return fs, nil
}

func (f *FileStore) load() error {
	data, err := os.ReadFile(f.path)
	if err != nil {
		return err
	}

	var snap fileSnapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return fmt.Errorf("failed to unmarshal sessions: %w", err)
	}
	if snap.Sessions != nil {
		f.sessions = snap.Sessions
	}
	return nil
}

// save writes the whole map. Callers hold the write lock.
func (f *FileStore) save() error {
	data, err := json.MarshalIndent(fileSnapshot{Sessions: f.sessions}, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal sessions: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(f.path), 0o755); err != nil {
		return fmt.Errorf("failed to create directory: %w", err)
	}

	// Write to a temporary file first, then rename for an atomic replace
	tmp := f.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o600); err != nil {
		return fmt.Errorf("failed to write sessions: %w", err)
	}
	if err := os.Rename(tmp, f.path); err != nil {
		return fmt.Errorf("failed to rename temp file: %w", err)
	}
	return nil
}

// Create implements Store
func (f *FileStore) Create(ctx context.Context, s *Session) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if _, exists := f.sessions[s.ID]; exists {
		return ErrVersionConflict
	}
	f.sessions[s.ID] = s.Clone()
	if err := f.save(); err != nil {
		delete(f.sessions, s.ID)
		return err
	}
	return nil
}

// Get implements Store
func (f *FileStore) Get(ctx context.Context, id string) (*Session, error) {
	f.mu.RLock()
	defer f.mu.RUnlock()

	s, ok := f.sessions[id]
	if !ok {
		return nil, ErrNotFound
	}
	return s.Clone(), nil
}

// Update implements Store
func (f *FileStore) Update(ctx context.Context, s *Session, expectedVersion int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	current, ok := f.sessions[s.ID]
	if !ok {
		return ErrNotFound
	}
	if current.Version != expectedVersion {
		return ErrVersionConflict
	}

	next := s.Clone()
	next.Version = expectedVersion + 1
	f.sessions[s.ID] = next
	if err := f.save(); err != nil {
		f.sessions[s.ID] = current
		return err
	}
	s.Version = next.Version
	return nil
}

var (
	_ Store = (*MemoryStore)(nil)
	_ Store = (*FileStore)(nil)
)
