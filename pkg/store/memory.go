package store

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/dotsetgreg/personagen/pkg/accounts"
	"github.com/dotsetgreg/personagen/pkg/persona"
)

// identityState holds one identity's handle, history and retained bundle.
// Its mutex serializes the read-latest-then-append sequences for that
// identity; distinct identities never contend.
type identityState struct {
	mu sync.Mutex

	identity  Identity
	handle    string
	personaID string
	history   []persona.Record
	bundle    *accounts.Bundle
}

// MemoryStore is the in-process reference implementation of Store.
type MemoryStore struct {
	mu         sync.RWMutex
	byIdentity map[string]*identityState
	byPersona  map[string]*identityState

	now func() time.Time
}

// NewMemoryStore returns an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		byIdentity: map[string]*identityState{},
		byPersona:  map[string]*identityState{},
		now:        func() time.Time { return time.Now().UTC() },
	}
}

func (s *MemoryStore) Close() error { return nil }

func (s *MemoryStore) ensure(identity Identity) (*identityState, error) {
	key := identity.Key()
	if key == "" {
		return nil, fmt.Errorf("ensure user: %w", ErrNotFound)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if st, ok := s.byIdentity[key]; ok {
		return st, nil
	}
	st := &identityState{
		identity:  identity,
		handle:    "usr-" + uuid.NewString(),
		personaID: "per-" + uuid.NewString(),
	}
	s.byIdentity[key] = st
	s.byPersona[st.personaID] = st
	return st, nil
}

func (s *MemoryStore) lookup(key string) (*identityState, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	st, ok := s.byIdentity[key]
	return st, ok
}

func (s *MemoryStore) lookupPersona(id string) (*identityState, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	st, ok := s.byPersona[id]
	return st, ok
}

// lookupRef resolves an identity key or a persona id.
func (s *MemoryStore) lookupRef(ref string) (*identityState, bool) {
	if st, ok := s.lookup(ref); ok {
		return st, true
	}
	return s.lookupPersona(ref)
}

func (s *MemoryStore) EnsureUser(_ context.Context, identity Identity) (string, error) {
	st, err := s.ensure(identity)
	if err != nil {
		return "", err
	}
	return st.handle, nil
}

func (s *MemoryStore) Upsert(_ context.Context, identity Identity, p persona.Persona,
	modelPreferences map[string]string, customData map[string]interface{}) (AppendResult, error) {
	st, err := s.ensure(identity)
	if err != nil {
		return AppendResult{}, err
	}

	st.mu.Lock()
	defer st.mu.Unlock()

	rec := persona.Record{
		ID:               st.personaID,
		Version:          len(st.history) + 1,
		LastModified:     s.now(),
		Persona:          p.Clone(),
		ModelPreferences: modelPreferences,
		CustomData:       customData,
	}
	rec = rec.Clone()
	st.history = append(st.history, rec)
	return AppendResult{ID: rec.ID, Version: rec.Version, LastModified: rec.LastModified}, nil
}

func (s *MemoryStore) GetCurrent(_ context.Context, identity Identity) (persona.Record, error) {
	st, ok := s.lookup(identity.Key())
	if !ok {
		return persona.Record{}, fmt.Errorf("get current: %w", ErrNotFound)
	}
	st.mu.Lock()
	defer st.mu.Unlock()
	if len(st.history) == 0 {
		return persona.Record{}, fmt.Errorf("get current: %w", ErrNotFound)
	}
	return st.history[len(st.history)-1].Clone(), nil
}

func (s *MemoryStore) GetByID(_ context.Context, id string) (persona.Record, error) {
	st, ok := s.lookupPersona(id)
	if !ok {
		return persona.Record{}, fmt.Errorf("get by id %s: %w", id, ErrNotFound)
	}
	st.mu.Lock()
	defer st.mu.Unlock()
	if len(st.history) == 0 {
		return persona.Record{}, fmt.Errorf("get by id %s: %w", id, ErrNotFound)
	}
	return st.history[len(st.history)-1].Clone(), nil
}

func (s *MemoryStore) UpdateField(_ context.Context, ref, fieldPath string, value interface{}) (AppendResult, error) {
	st, ok := s.lookupRef(ref)
	if !ok {
		return AppendResult{}, fmt.Errorf("update field %s: %w", ref, ErrNotFound)
	}
	st.mu.Lock()
	defer st.mu.Unlock()
	if len(st.history) == 0 {
		return AppendResult{}, fmt.Errorf("update field %s: %w", ref, ErrNotFound)
	}

	next := st.history[len(st.history)-1].Clone()
	if err := applyFieldPath(&next, fieldPath, value); err != nil {
		return AppendResult{}, err
	}
	next.Version++
	next.LastModified = s.now()
	st.history = append(st.history, next)
	return AppendResult{ID: next.ID, Version: next.Version, LastModified: next.LastModified}, nil
}

func (s *MemoryStore) GetHistory(_ context.Context, identity Identity) ([]persona.Record, error) {
	st, ok := s.lookup(identity.Key())
	if !ok {
		return nil, fmt.Errorf("get history: %w", ErrNotFound)
	}
	st.mu.Lock()
	defer st.mu.Unlock()
	out := make([]persona.Record, 0, len(st.history))
	for i := len(st.history) - 1; i >= 0; i-- {
		out = append(out, st.history[i].Clone())
	}
	return out, nil
}

func (s *MemoryStore) Rollback(_ context.Context, id string, toVersion int) (AppendResult, error) {
	st, ok := s.lookupPersona(id)
	if !ok {
		return AppendResult{}, fmt.Errorf("rollback %s: %w", id, ErrNotFound)
	}
	st.mu.Lock()
	defer st.mu.Unlock()
	if toVersion < 1 || toVersion > len(st.history) {
		return AppendResult{}, fmt.Errorf("rollback %s to version %d: %w", id, toVersion, ErrNotFound)
	}

	next := st.history[toVersion-1].Clone()
	next.Version = len(st.history) + 1
	next.LastModified = s.now()
	st.history = append(st.history, next)
	return AppendResult{ID: next.ID, Version: next.Version, LastModified: next.LastModified}, nil
}

func (s *MemoryStore) SaveAccountBundle(_ context.Context, identity Identity, bundle *accounts.Bundle) error {
	st, err := s.ensure(identity)
	if err != nil {
		return err
	}
	st.mu.Lock()
	defer st.mu.Unlock()
	// Detach from the caller; later mutation of its bundle must not alias
	// into stored state.
	st.bundle = bundle.Clone()
	return nil
}

func (s *MemoryStore) GetAccountBundle(_ context.Context, identity Identity) (*accounts.Bundle, error) {
	st, ok := s.lookup(identity.Key())
	if !ok {
		return nil, fmt.Errorf("get account bundle: %w", ErrNotFound)
	}
	st.mu.Lock()
	defer st.mu.Unlock()
	if st.bundle == nil {
		return nil, fmt.Errorf("get account bundle: %w", ErrNotFound)
	}
	return st.bundle.Clone(), nil
}

func (s *MemoryStore) Identities(_ context.Context) ([]Identity, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Identity, 0, len(s.byIdentity))
	for _, st := range s.byIdentity {
		out = append(out, st.identity)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key() < out[j].Key() })
	return out, nil
}
