// Package session keeps the named engine connections that UI requests share.
package session

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/juju/errors"

	"github.com/virusdefender/duckdb-ui/internal/engine"
	"github.com/virusdefender/duckdb-ui/internal/metrics"
)

// Handle is an engine connection shared by every request bearing its name.
type Handle struct {
	engine.Conn

	ID        string
	Name      string
	CreatedAt time.Time
}

// Anonymous reports whether the handle is a one-shot connection that the
// registry does not keep.
func (h *Handle) Anonymous() bool {
	return h.Name == ""
}

type Registry struct {
	db      engine.Database
	metrics *metrics.Metrics

	mu      sync.Mutex
	handles map[string]*Handle
	closed  bool
}

func NewRegistry(db engine.Database, m *metrics.Metrics) *Registry {
	return &Registry{
		db:      db,
		metrics: m,
		handles: make(map[string]*Handle),
	}
}

// Get returns the handle stored under name, or nil if the name is empty or
// unseen.
func (r *Registry) Get(name string) *Handle {
	if name == "" {
		return nil
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.handles[name]
}

// GetOrCreate returns the handle for name, connecting a new one on first use.
// An empty name yields a fresh handle that is never stored; the caller owns
// it and must Close it.
func (r *Registry) GetOrCreate(ctx context.Context, name string) (*Handle, error) {
	if name == "" {
		return r.connect(ctx, "")
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return nil, errors.New("connection registry closed")
	}
	if h, ok := r.handles[name]; ok {
		return h, nil
	}
	h, err := r.connect(ctx, name)
	if err != nil {
		return nil, errors.Annotatef(err, "connecting %q", name)
	}
	r.handles[name] = h
	r.metrics.SetConnections(len(r.handles))
	return h, nil
}

func (r *Registry) connect(ctx context.Context, name string) (*Handle, error) {
	conn, err := r.db.Connect(ctx)
	if err != nil {
		return nil, errors.Trace(err)
	}
	return &Handle{
		Conn:      conn,
		ID:        uuid.NewString(),
		Name:      name,
		CreatedAt: time.Now(),
	}, nil
}

// Names returns the stored connection names in sorted order.
func (r *Registry) Names() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	names := make([]string, 0, len(r.handles))
	for name := range r.handles {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.handles)
}

// Close closes every stored connection. Later GetOrCreate calls for named
// connections fail.
func (r *Registry) Close() error {
	r.mu.Lock()
	handles := r.handles
	r.handles = make(map[string]*Handle)
	r.closed = true
	r.mu.Unlock()

	r.metrics.SetConnections(0)
	var firstErr error
	for _, h := range handles {
		if err := h.Close(); err != nil && firstErr == nil {
			firstErr = errors.Annotatef(err, "closing %q", h.Name)
		}
	}
	return firstErr
}
