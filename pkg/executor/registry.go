package executor

import (
	"fmt"
	"sync"

	"github.com/nelsonlove/seriesoftubes-sub001/pkg/document"
	"github.com/nelsonlove/seriesoftubes-sub001/pkg/models"
)

// Registry is the thread-safe kind->Handler dispatch table, adapted from
// the teacher's pkg/executor.Registry.
type Registry struct {
	mu       sync.RWMutex
	handlers map[document.Kind]Handler
}

func NewRegistry() *Registry {
	return &Registry{handlers: make(map[document.Kind]Handler)}
}

func (r *Registry) Register(kind document.Kind, h Handler) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.handlers[kind] = h
}

func (r *Registry) Get(kind document.Kind) (Handler, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	h, ok := r.handlers[kind]
	if !ok {
		return nil, fmt.Errorf("%w: %s", models.ErrExecutorNotFound, kind)
	}
	return h, nil
}

func (r *Registry) Has(kind document.Kind) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.handlers[kind]
	return ok
}
