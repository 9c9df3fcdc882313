package cgisession

import (
	"context"
	"sync"
)

// MemoryStore keeps the mapping in memory. Load and Save copy, so a Manager
// never shares maps with the store, which makes lost updates between two
// Managers observable exactly as with a file.
type MemoryStore struct {
	mu       sync.Mutex
	sessions Sessions
	saves    int
	sem      chan struct{}

	// SaveErr, when set, is returned by Save without storing anything.
	SaveErr error
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		sessions: Sessions{},
		sem:      make(chan struct{}, 1),
	}
}

func (s *MemoryStore) Load(ctx context.Context) (Sessions, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sessions.Clone(), nil
}

func (s *MemoryStore) Save(ctx context.Context, sessions Sessions) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.SaveErr != nil {
		return s.SaveErr
	}
	s.sessions = sessions.Clone()
	s.saves++
	return nil
}

// Saves returns how many times Save succeeded.
func (s *MemoryStore) Saves() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.saves
}

// Lock is a process-local mutex that honors ctx while waiting.
func (s *MemoryStore) Lock(ctx context.Context) (func() error, error) {
	select {
	case s.sem <- struct{}{}:
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	var once sync.Once
	return func() error {
		once.Do(func() { <-s.sem })
		return nil
	}, nil
}

func (s *MemoryStore) Close() error {
	return nil
}
