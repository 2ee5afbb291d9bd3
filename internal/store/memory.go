package store

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"catalog-service/internal/model"
	"catalog-service/prometheus"

	"github.com/google/uuid"
	"golang.org/x/sync/semaphore"
)

type itemState struct {
	item *model.CatalogItem
	// lock serializes Update for this id; acquiring it is bounded by
	// MemoryStore.lockTimeout.
	lock *semaphore.Weighted
	seq  uint64
}

// MemoryStore keeps catalog items in process memory. It backs the memory
// store driver and tests.
type MemoryStore struct {
	mu          sync.RWMutex
	items       map[uuid.UUID]*itemState
	categories  map[uint]model.Category
	seq         uint64
	lockTimeout time.Duration
	now         func() time.Time
}

func NewMemoryStore(lockTimeout time.Duration) *MemoryStore {
	return &MemoryStore{
		items:       make(map[uuid.UUID]*itemState),
		categories:  make(map[uint]model.Category),
		lockTimeout: lockTimeout,
		now:         time.Now,
	}
}

// PutCategory registers a category so items referencing it are joined on read.
func (s *MemoryStore) PutCategory(c model.Category) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.categories[c.ID] = c
}

func (s *MemoryStore) Get(ctx context.Context, id uuid.UUID) (*model.CatalogItem, error) {
	defer prometheus.TrackDBOperation("select")(time.Now())
	if err := ctx.Err(); err != nil {
		return nil, errors.Join(model.ErrConflict, err)
	}

	s.mu.RLock()
	defer s.mu.RUnlock()
	st, ok := s.items[id]
	if !ok {
		return nil, model.ErrItemNotFound
	}
	return s.joined(st.item), nil
}

func (s *MemoryStore) Create(ctx context.Context, item *model.CatalogItem) (*model.CatalogItem, error) {
	defer prometheus.TrackDBOperation("insert")(time.Now())
	if err := ctx.Err(); err != nil {
		return nil, errors.Join(model.ErrConflict, err)
	}

	stored := item.Clone()
	stored.ID = uuid.New()
	stored.Category = nil
	now := s.now()
	stored.CreatedAt = now
	stored.UpdatedAt = now

	s.mu.Lock()
	defer s.mu.Unlock()
	s.seq++
	s.items[stored.ID] = &itemState{item: stored, lock: semaphore.NewWeighted(1), seq: s.seq}
	return s.joined(stored), nil
}

func (s *MemoryStore) Update(ctx context.Context, id uuid.UUID, mutate Mutation) (*model.CatalogItem, error) {
	defer prometheus.TrackDBOperation("update")(time.Now())

	s.mu.RLock()
	st, ok := s.items[id]
	s.mu.RUnlock()
	if !ok {
		return nil, model.ErrItemNotFound
	}

	lockCtx, cancel := context.WithTimeout(ctx, s.lockTimeout)
	defer cancel()
	if err := st.lock.Acquire(lockCtx, 1); err != nil {
		if ctx.Err() != nil {
			return nil, errors.Join(model.ErrConflict, ctx.Err())
		}
		return nil, fmt.Errorf("%w: lock wait exceeded %s", model.ErrConflict, s.lockTimeout)
	}
	defer st.lock.Release(1)

	s.mu.RLock()
	working := st.item.Clone()
	s.mu.RUnlock()

	if err := mutate(working); err != nil {
		return nil, err
	}
	// An aborted caller must not see its mutation committed.
	if err := ctx.Err(); err != nil {
		return nil, errors.Join(model.ErrConflict, err)
	}

	working.ID = id
	working.Category = nil
	working.UpdatedAt = s.now()

	s.mu.Lock()
	defer s.mu.Unlock()
	st.item = working
	return s.joined(working), nil
}

func (s *MemoryStore) List(ctx context.Context, filter Filter) ([]model.CatalogItem, error) {
	defer prometheus.TrackDBOperation("select")(time.Now())
	if err := ctx.Err(); err != nil {
		return nil, errors.Join(model.ErrConflict, err)
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	states := make([]*itemState, 0, len(s.items))
	for _, st := range s.items {
		if filter.matches(st.item) {
			states = append(states, st)
		}
	}
	sort.Slice(states, func(i, j int) bool { return states[i].seq < states[j].seq })
	if filter.Limit > 0 && len(states) > filter.Limit {
		states = states[:filter.Limit]
	}

	out := make([]model.CatalogItem, 0, len(states))
	for _, st := range states {
		out = append(out, *s.joined(st.item))
	}
	return out, nil
}

// joined returns a copy of item with its category attached. Callers hold s.mu.
func (s *MemoryStore) joined(item *model.CatalogItem) *model.CatalogItem {
	out := item.Clone()
	if out.CategoryID != nil {
		if c, ok := s.categories[*out.CategoryID]; ok {
			out.Category = &c
		}
	}
	return out
}
