package game

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"sort"
	"sync"
)

// Favorites is a session-transcending set of liked card ids. Add and
// Remove are idempotent; entries never expire.
type Favorites interface {
	Add(ctx context.Context, cardID string) (int, error)
	Remove(ctx context.Context, cardID string) (int, error)
	All(ctx context.Context) (map[string]bool, error)
}

// MemoryFavorites is an in-process favorite set.
type MemoryFavorites struct {
	mu  sync.RWMutex
	ids map[string]bool
}

func NewMemoryFavorites() *MemoryFavorites {
	return &MemoryFavorites{ids: make(map[string]bool)}
}

func (f *MemoryFavorites) Add(_ context.Context, cardID string) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.ids[cardID] = true
	return len(f.ids), nil
}

func (f *MemoryFavorites) Remove(_ context.Context, cardID string) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.ids, cardID)
	return len(f.ids), nil
}

func (f *MemoryFavorites) All(_ context.Context) (map[string]bool, error) {
	f.mu.RLock()
	defer f.mu.RUnlock()
	out := make(map[string]bool, len(f.ids))
	for id := range f.ids {
		out[id] = true
	}
	return out, nil
}

// FileFavorites persists the favorite set as a sorted JSON list, flushed
// on every mutation. Last write wins across devices; no reconciliation.
type FileFavorites struct {
	mu   sync.Mutex
	path string
	ids  map[string]bool
}

func NewFileFavorites(path string) (*FileFavorites, error) {
	f := &FileFavorites{path: path, ids: make(map[string]bool)}

	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return f, nil
	}
	if err != nil {
		return nil, fmt.Errorf("%w: read favorites: %v", ErrPersistence, err)
	}

	var ids []string
	if err := json.Unmarshal(data, &ids); err != nil {
		return nil, fmt.Errorf("%w: parse favorites: %v", ErrPersistence, err)
	}
	for _, id := range ids {
		f.ids[id] = true
	}
	return f, nil
}

func (f *FileFavorites) Add(_ context.Context, cardID string) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if !f.ids[cardID] {
		f.ids[cardID] = true
		if err := f.flush(); err != nil {
			delete(f.ids, cardID)
			return 0, err
		}
	}
	return len(f.ids), nil
}

func (f *FileFavorites) Remove(_ context.Context, cardID string) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.ids[cardID] {
		delete(f.ids, cardID)
		if err := f.flush(); err != nil {
			f.ids[cardID] = true
			return 0, err
		}
	}
	return len(f.ids), nil
}

func (f *FileFavorites) All(_ context.Context) (map[string]bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make(map[string]bool, len(f.ids))
	for id := range f.ids {
		out[id] = true
	}
	return out, nil
}

func (f *FileFavorites) flush() error {
	ids := make([]string, 0, len(f.ids))
	for id := range f.ids {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	data, err := json.MarshalIndent(ids, "", "  ")
	if err != nil {
		return fmt.Errorf("%w: encode favorites: %v", ErrPersistence, err)
	}
	if err := atomicWriteFile(f.path, data); err != nil {
		return fmt.Errorf("%w: write favorites: %v", ErrPersistence, err)
	}
	return nil
}
