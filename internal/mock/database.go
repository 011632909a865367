// Package mock provides a scripted in-memory engine for tests and for the
// server's demo mode.
package mock

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/juju/errors"

	"github.com/virusdefender/duckdb-ui/internal/engine"
	"github.com/virusdefender/duckdb-ui/internal/remote"
)

// ErrInterrupted is reported by executions cancelled through Interrupt.
const ErrInterrupted = errors.ConstError("INTERRUPT Error: Interrupted!")

// Response scripts the outcome of one query.
type Response struct {
	Columns []engine.Column
	Rows    [][]any
	// Err fails the query once Steps have elapsed.
	Err error
	// Steps is the number of ExecuteTask calls that report no progress
	// before the query becomes ready.
	Steps int
	// Hang keeps the query running until it is interrupted.
	Hang bool
}

// Responder computes the response for a query and its bound parameters.
type Responder func(query string, params []string) Response

// Database implements engine.Database and remote.Capability.
type Database struct {
	mu         sync.Mutex
	version    string
	chunkSize  int
	catalogs   map[string]engine.Catalog
	catalogErr error
	responders map[string]Responder
	fallback   Responder
	prepareErr map[string]error
	status     remote.Status
	token      string
	tokenErr   error
	conns      int
	connects   int
	interrupts int
	closed     bool
}

var (
	_ engine.Database   = (*Database)(nil)
	_ remote.Capability = (*Database)(nil)
)

func NewDatabase() *Database {
	return &Database{
		version:    "mock",
		chunkSize:  2048,
		catalogs:   make(map[string]engine.Catalog),
		responders: make(map[string]Responder),
		prepareErr: make(map[string]error),
		fallback:   echo,
		status:     remote.NotConnected,
	}
}

// echo answers unscripted queries with a single row holding the query text.
func echo(query string, params []string) Response {
	cols := []engine.Column{{Name: "query", Type: engine.TypeVarchar}}
	row := []any{query}
	for i, p := range params {
		cols = append(cols, engine.Column{Name: fmt.Sprintf("param_%d", i+1), Type: engine.TypeVarchar})
		row = append(row, p)
	}
	return Response{Columns: cols, Rows: [][]any{row}}
}

func (d *Database) SetChunkSize(n int) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.chunkSize = n
}

func (d *Database) Respond(query string, r Response) {
	d.Handle(query, func(string, []string) Response { return r })
}

func (d *Database) Handle(query string, fn Responder) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.responders[query] = fn
}

// Fallback replaces the responder used for unscripted queries.
func (d *Database) Fallback(fn Responder) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.fallback = fn
}

func (d *Database) FailPrepare(query string, err error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.prepareErr[query] = err
}

func (d *Database) response(query string, params []string) Response {
	d.mu.Lock()
	fn, ok := d.responders[query]
	if !ok {
		fn = d.fallback
	}
	d.mu.Unlock()
	return fn(query, params)
}

// Attach adds a catalog at version 1. Attaching an existing name is a no-op.
func (d *Database) Attach(name string, temporary bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if _, ok := d.catalogs[name]; ok {
		return
	}
	d.catalogs[name] = engine.Catalog{ID: name, Name: name, Version: 1, Temporary: temporary}
}

func (d *Database) Detach(name string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	delete(d.catalogs, name)
}

// Bump advances the version of a catalog, as a DDL statement would.
func (d *Database) Bump(name string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	c, ok := d.catalogs[name]
	if !ok {
		return errors.NotFoundf("catalog %q", name)
	}
	c.Version++
	d.catalogs[name] = c
	return nil
}

func (d *Database) CatalogNames() []string {
	d.mu.Lock()
	defer d.mu.Unlock()
	names := make([]string, 0, len(d.catalogs))
	for name := range d.catalogs {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// FailCatalogs makes Catalogs return err until called again with nil.
func (d *Database) FailCatalogs(err error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.catalogErr = err
}

func (d *Database) Catalogs(ctx context.Context) ([]engine.Catalog, error) {
	if err := ctx.Err(); err != nil {
		return nil, errors.Trace(err)
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.catalogErr != nil {
		return nil, d.catalogErr
	}
	out := make([]engine.Catalog, 0, len(d.catalogs))
	for _, c := range d.catalogs {
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

// SetConnected marks the hosted session as connected with token.
func (d *Database) SetConnected(token string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.status = remote.Connected
	d.token = token
}

func (d *Database) SetRemoteStatus(s remote.Status, err error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.status = s
	d.tokenErr = err
}

func (d *Database) Status(context.Context) (remote.Status, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.status, d.tokenErr
}

func (d *Database) Token(context.Context) (string, remote.Status, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.tokenErr != nil {
		return "", d.status, d.tokenErr
	}
	if d.status != remote.Connected {
		return "", d.status, nil
	}
	return d.token, d.status, nil
}

func (d *Database) Connect(ctx context.Context) (engine.Conn, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return nil, errors.New("database closed")
	}
	d.conns++
	d.connects++
	return &Conn{db: d}, nil
}

// OpenConns is the number of connections not yet closed.
func (d *Database) OpenConns() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.conns
}

// Connects is the number of Connect calls so far.
func (d *Database) Connects() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.connects
}

func (d *Database) Interrupts() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.interrupts
}

func (d *Database) Version() string {
	return d.version
}

func (d *Database) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.closed = true
	return nil
}
