package discussion

import (
	"sync"
	"time"

	log "github.com/sirupsen/logrus"

	"qanda/pkg/events"
	"qanda/pkg/logger"
)

// Registry holds one View per client session.
type Registry struct {
	backend Backend
	events  events.Publisher

	mu    sync.Mutex
	views map[string]*View
}

func NewRegistry(backend Backend, publisher events.Publisher) *Registry {
	return &Registry{
		backend: backend,
		events:  publisher,
		views:   make(map[string]*View),
	}
}

// View returns the view of session, creating it on first use.
func (r *Registry) View(session string) *View {
	r.mu.Lock()
	defer r.mu.Unlock()

	v, ok := r.views[session]
	if !ok {
		v = NewView(r.backend, r.events)
		r.views[session] = v
		log.Debugf("[registry] new view for session %s", logger.Shorten(session))
	}

	return v
}

// Unmount discards the view of session.
func (r *Registry) Unmount(session string) {
	r.mu.Lock()
	v, ok := r.views[session]
	delete(r.views, session)
	r.mu.Unlock()

	if ok {
		v.Unmount()
	}
}

// Evict unmounts views not used for longer than maxIdle and returns how many were removed.
func (r *Registry) Evict(maxIdle time.Duration) int {
	deadline := time.Now().Add(-maxIdle)

	r.mu.Lock()
	var idle []*View
	for session, v := range r.views {
		if v.idleSince().Before(deadline) {
			idle = append(idle, v)
			delete(r.views, session)
		}
	}
	r.mu.Unlock()

	for _, v := range idle {
		v.Unmount()
	}

	return len(idle)
}

func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.views)
}
