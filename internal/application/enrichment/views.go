package enrichment

import (
	"sync"

	"github.com/turtacn/MolForge/internal/infrastructure/monitoring/logging"
)

// Views keeps one Fetcher per open detail view, keyed by molecule id.
// Closing a view drops its caches; reopening starts from scratch.
type Views struct {
	svc  Service
	cfg  Config
	log  logging.Logger
	opts []Option

	mu       sync.Mutex
	fetchers map[string]*Fetcher
}

// NewViews creates an empty registry. opts are applied to every Fetcher.
func NewViews(svc Service, cfg Config, log logging.Logger, opts ...Option) *Views {
	if log == nil {
		log = logging.NewNopLogger()
	}
	return &Views{
		svc:      svc,
		cfg:      cfg.normalized(),
		log:      log,
		opts:     opts,
		fetchers: map[string]*Fetcher{},
	}
}

// Config returns the settings handed to every Fetcher.
func (v *Views) Config() Config { return v.cfg }

// Open returns the fetcher of view id, creating it on first use.
func (v *Views) Open(id string) *Fetcher {
	v.mu.Lock()
	defer v.mu.Unlock()
	if f, ok := v.fetchers[id]; ok {
		return f
	}
	f := NewFetcher(v.svc, v.cfg, v.log.With(logging.String("view", id)), v.opts...)
	v.fetchers[id] = f
	return f
}

// Lookup returns the fetcher of view id if it is open.
func (v *Views) Lookup(id string) (*Fetcher, bool) {
	v.mu.Lock()
	defer v.mu.Unlock()
	f, ok := v.fetchers[id]
	return f, ok
}

// Close tears down view id. It reports whether the view was open.
func (v *Views) Close(id string) bool {
	v.mu.Lock()
	f, ok := v.fetchers[id]
	delete(v.fetchers, id)
	v.mu.Unlock()
	if ok {
		f.Close()
	}
	return ok
}

// CloseAll tears down every open view.
func (v *Views) CloseAll() {
	v.mu.Lock()
	open := v.fetchers
	v.fetchers = map[string]*Fetcher{}
	v.mu.Unlock()
	for _, f := range open {
		f.Close()
	}
}

// Len returns the number of open views.
func (v *Views) Len() int {
	v.mu.Lock()
	defer v.mu.Unlock()
	return len(v.fetchers)
}
