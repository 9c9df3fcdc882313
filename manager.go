package cgisession

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/google/uuid"
)

var (
	// ErrCorruptStore is returned when a store holds data that cannot be decoded.
	ErrCorruptStore = errors.New("corrupt session store")

	// ErrStoreTooLarge is returned when the persisted mapping exceeds the configured size limit.
	ErrStoreTooLarge = errors.New("session store too large")

	// ErrSessionNotFound is returned by Touch for a token that is not in the mapping.
	ErrSessionNotFound = errors.New("session not found")

	// ErrLockUnsupported is returned when serialized access is requested but
	// neither the config nor the store provide a Locker.
	ErrLockUnsupported = errors.New("store does not support locking")

	// ErrNotLoaded is returned when the mapping is used before Load.
	ErrNotLoaded = errors.New("session store not loaded")
)

// Manager owns the in-memory copy of the session mapping and its lifecycle:
// Load, GetOrCreate/Touch, Save.
//
// By default nothing serializes two processes that share a store: both load
// the same mapping, both mutate their copy, and the later Save wins. Set
// ManagerConfig.Serialize to run Visit under a Locker.
type Manager struct {
	store     Store
	locker    Locker
	serialize bool
	newID     func() (string, error)

	// cycle keeps Visit calls on one Manager from interleaving; it does
	// nothing for other Managers or processes sharing the store.
	cycle sync.Mutex

	mu       sync.Mutex
	sessions Sessions
}

// lockerProvider is implemented by stores whose locking depends on their
// configuration. Locker returns nil when locking is unavailable.
type lockerProvider interface {
	Locker() Locker
}

type ManagerConfig struct {
	Store Store
	// Serialize holds a lock around every load/modify/save cycle in Visit.
	Serialize bool
	// Locker overrides the store's own Locker. Required with Serialize when
	// the store does not implement Locker.
	Locker Locker
}

func NewManager(cfg ManagerConfig) (*Manager, error) {
	if cfg.Store == nil {
		return nil, errors.New("cgisession: nil store")
	}

	m := &Manager{
		store:     cfg.Store,
		locker:    cfg.Locker,
		serialize: cfg.Serialize,
		newID:     generateID,
	}

	if m.locker == nil {
		switch st := cfg.Store.(type) {
		case Locker:
			m.locker = st
		case lockerProvider:
			m.locker = st.Locker()
		}
	}
	if m.serialize && m.locker == nil {
		return nil, ErrLockUnsupported
	}

	return m, nil
}

func (m *Manager) Close() error {
	return m.store.Close()
}

// Lock acquires the configured lock when access is serialized. Otherwise it
// returns immediately with a no-op unlock.
func (m *Manager) Lock(ctx context.Context) (func() error, error) {
	if !m.serialize {
		return func() error { return nil }, nil
	}
	unlock, err := m.locker.Lock(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to lock session store: %w", err)
	}
	return unlock, nil
}

// Load replaces the in-memory mapping with the persisted one.
func (m *Manager) Load(ctx context.Context) error {
	sessions, err := m.store.Load(ctx)
	if err != nil {
		return fmt.Errorf("failed to load sessions: %w", err)
	}
	if sessions == nil {
		sessions = Sessions{}
	}

	m.mu.Lock()
	m.sessions = sessions
	m.mu.Unlock()
	return nil
}

// GetOrCreate resolves token to its session. An empty, malformed or unknown
// token gets a freshly minted UUID and a new session with zero visits.
// The returned Session shares its Values with the mapping.
func (m *Manager) GetOrCreate(token string) (*Session, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.sessions == nil {
		return nil, false, ErrNotLoaded
	}

	if isValidID(token) {
		if v, ok := m.sessions[token]; ok {
			return &Session{ID: token, Values: v}, false, nil
		}
	}

	id, err := m.newID()
	if err != nil {
		return nil, false, err
	}
	v := Values{VisitsKey: int64(0)}
	m.sessions[id] = v

	return &Session{ID: id, Values: v}, true, nil
}

// Touch applies fn to the session identified by token.
func (m *Manager) Touch(token string, fn func(*Session)) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.sessions == nil {
		return ErrNotLoaded
	}
	v, ok := m.sessions[token]
	if !ok {
		return ErrSessionNotFound
	}
	fn(&Session{ID: token, Values: v})
	return nil
}

// Save rewrites the whole mapping to the store.
func (m *Manager) Save(ctx context.Context) error {
	m.mu.Lock()
	if m.sessions == nil {
		m.mu.Unlock()
		return ErrNotLoaded
	}
	snapshot := m.sessions.Clone()
	m.mu.Unlock()

	if err := m.store.Save(ctx, snapshot); err != nil {
		return fmt.Errorf("failed to save sessions: %w", err)
	}
	return nil
}

// Len returns the number of sessions in the in-memory mapping.
func (m *Manager) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sessions)
}

// Visit runs one request's worth of session work: it reloads the mapping,
// resolves token, increments the visit counter and saves synchronously.
// The returned session is a copy taken after the save succeeded. A failed
// lock release is reported even when the save went through.
func (m *Manager) Visit(ctx context.Context, token string) (_ *Session, _ bool, err error) {
	m.cycle.Lock()
	defer m.cycle.Unlock()

	unlock, err := m.Lock(ctx)
	if err != nil {
		return nil, false, err
	}
	defer func() {
		if uerr := unlock(); uerr != nil {
			err = errors.Join(err, fmt.Errorf("failed to unlock session store: %w", uerr))
		}
	}()

	if err := m.Load(ctx); err != nil {
		return nil, false, err
	}

	s, isNew, err := m.GetOrCreate(token)
	if err != nil {
		return nil, false, err
	}
	if err := m.Touch(s.ID, func(s *Session) { s.Values.Add(VisitsKey, 1) }); err != nil {
		return nil, false, err
	}
	if err := m.Save(ctx); err != nil {
		return nil, false, err
	}

	m.mu.Lock()
	out := &Session{ID: s.ID, Values: s.Values.clone()}
	m.mu.Unlock()

	return out, isNew, nil
}

func generateID() (string, error) {
	id, err := uuid.NewRandom()
	if err != nil {
		return "", fmt.Errorf("failed to generate session id: %w", err)
	}
	return id.String(), nil
}

// isValidID accepts only the canonical 36 character UUID form, so arbitrary
// cookie content never reaches a store as a key.
func isValidID(id string) bool {
	if len(id) != 36 {
		return false
	}
	_, err := uuid.Parse(id)
	return err == nil
}
