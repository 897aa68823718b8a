package registry

import (
	"fmt"
	"sort"
	"sync"

	"github.com/ternarybob/arbor"

	"github.com/matthiasrib29/StoFlow-sub015/internal/models"
)

// Registry maps (marketplace, action code) to its handler. Registration
// happens at startup; resolution is read-only and concurrent.
type Registry struct {
	mu       sync.RWMutex
	handlers map[string]*Handler
	logger   arbor.ILogger
}

// NewRegistry creates an empty action registry
func NewRegistry(logger arbor.ILogger) *Registry {
	return &Registry{
		handlers: make(map[string]*Handler),
		logger:   logger,
	}
}

func handlerKey(marketplace models.Marketplace, actionCode string) string {
	return string(marketplace) + ":" + actionCode
}

// Register adds a handler. Re-registering the same (marketplace, action)
// pair is a wiring bug and fails.
func (r *Registry) Register(h *Handler) error {
	if err := h.Validate(); err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	key := handlerKey(h.Marketplace, h.ActionCode)
	if _, exists := r.handlers[key]; exists {
		return fmt.Errorf("%w: handler %s already registered", models.ErrInvalidInput, key)
	}
	r.handlers[key] = h

	r.logger.Debug().
		Str("marketplace", string(h.Marketplace)).
		Str("action", h.ActionCode).
		Int("tasks", len(h.Tasks)).
		Msg("Action handler registered")
	return nil
}

// Resolve returns the handler for a (marketplace, action) pair
func (r *Registry) Resolve(marketplace models.Marketplace, actionCode string) (*Handler, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	h, ok := r.handlers[handlerKey(marketplace, actionCode)]
	if !ok {
		return nil, fmt.Errorf("%w: no handler for %s/%s", models.ErrNotFound, marketplace, actionCode)
	}
	return h, nil
}

// ActionTypes returns reference rows for every registered handler,
// ordered for deterministic seeding
func (r *Registry) ActionTypes() []*models.ActionType {
	r.mu.RLock()
	defer r.mu.RUnlock()

	types := make([]*models.ActionType, 0, len(r.handlers))
	for _, h := range r.handlers {
		types = append(types, h.ActionType())
	}
	sort.Slice(types, func(i, j int) bool {
		if types[i].Marketplace != types[j].Marketplace {
			return types[i].Marketplace < types[j].Marketplace
		}
		return types[i].Code < types[j].Code
	})
	return types
}
