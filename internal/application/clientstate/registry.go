package clientstate

import (
	"context"
	"sync"
	"time"

	"github.com/skyguide-inc/skyguide/internal/shared/logger"
)

// Registry owns one Store per client id.
type Registry struct {
	persister Persister
	logger    logger.Interface
	now       func() time.Time

	mu     sync.Mutex
	stores map[string]*Store
}

func NewRegistry(persister Persister, log logger.Interface) *Registry {
	return &Registry{
		persister: persister,
		logger:    log.Named("clientstate.registry"),
		now:       time.Now,
		stores:    make(map[string]*Store),
	}
}

// Get returns the client's store, hydrating it from the persister on first
// use. A persister failure yields an empty store rather than an error.
func (r *Registry) Get(ctx context.Context, clientID string) *Store {
	r.mu.Lock()
	if s, ok := r.stores[clientID]; ok {
		r.mu.Unlock()
		s.touch(r.now())
		return s
	}
	r.mu.Unlock()

	s := NewStore(clientID, r.persister, r.logger.With("client_id", clientID))
	if r.persister != nil {
		p, ok, err := r.persister.Load(ctx, clientID)
		switch {
		case err != nil:
			r.logger.Warnw("failed to hydrate client state", "client_id", clientID, "error", err)
		case ok:
			s.hydrate(p)
		}
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	// Another request may have hydrated the same client concurrently.
	if existing, ok := r.stores[clientID]; ok {
		return existing
	}
	s.touch(r.now())
	r.stores[clientID] = s
	return s
}

// Lookup returns the store only if it is already loaded.
func (r *Registry) Lookup(clientID string) (*Store, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.stores[clientID]
	return s, ok
}

// Drop removes the in-memory store and its persisted state.
func (r *Registry) Drop(ctx context.Context, clientID string) {
	r.mu.Lock()
	delete(r.stores, clientID)
	r.mu.Unlock()

	if r.persister == nil {
		return
	}
	if err := r.persister.Delete(ctx, clientID); err != nil {
		r.logger.Warnw("failed to delete client state", "client_id", clientID, "error", err)
	}
}

// EvictIdle unloads signed-out stores unused for longer than idle. Signed-in
// stores stay loaded because their monitor holds them.
func (r *Registry) EvictIdle(idle time.Duration) int {
	cutoff := r.now().Add(-idle)

	r.mu.Lock()
	defer r.mu.Unlock()
	evicted := 0
	for id, s := range r.stores {
		if !s.IsAuthenticated() && s.idleSince().Before(cutoff) {
			delete(r.stores, id)
			evicted++
		}
	}
	return evicted
}

func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.stores)
}
