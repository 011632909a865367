package sqlite

import (
	"context"
	"database/sql"
	"sync"

	"github.com/juju/errors"
	"golang.org/x/sync/semaphore"

	"github.com/virusdefender/duckdb-ui/internal/engine"
)

// ErrInterrupted is the error an execution reports after Interrupt.
const ErrInterrupted = errors.ConstError("INTERRUPT Error: Interrupted!")

type conn struct {
	db   *DB
	conn *sql.Conn
	// busy admits one execution at a time.
	busy *semaphore.Weighted

	mu             sync.Mutex
	defaultCatalog string
	// active holds every execution started on this connection that has not
	// finished, whether it holds busy or is still queued for it.
	active map[*pending]struct{}
	closed bool
}

func newConn(db *DB, c *sql.Conn) *conn {
	return &conn{
		db:   db,
		conn: c,
		busy:   semaphore.NewWeighted(1),
		active: make(map[*pending]struct{}),
	}
}

func (c *conn) Prepare(ctx context.Context, query string) (engine.Statement, error) {
	if err := c.busy.Acquire(ctx, 1); err != nil {
		return nil, errors.Trace(err)
	}
	defer c.busy.Release(1)

	stmt, err := c.conn.PrepareContext(ctx, query)
	if err != nil {
		return nil, errors.Trace(err)
	}
	return &statement{conn: c, stmt: stmt}, nil
}

func (c *conn) PendingQuery(ctx context.Context, query string) (engine.Pending, error) {
	return c.start(ctx, func(ctx context.Context) (*sql.Rows, error) {
		return c.conn.QueryContext(ctx, query)
	}, nil)
}

// start registers the execution before its goroutine runs, so an Interrupt
// issued as soon as start returns reaches it. release, if set, runs once the
// execution has finished with the connection.
func (c *conn) start(ctx context.Context, query queryFunc, release func()) (engine.Pending, error) {
	p := newPending(ctx, c, c.db.chunkSize)
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		p.cancel()
		if release != nil {
			release()
		}
		return nil, errors.New("connection closed")
	}
	c.active[p] = struct{}{}
	c.mu.Unlock()

	go p.run(query, release)
	return p, nil
}

// SetDefaultCatalog checks that name is attached to this connection. SQLite
// resolves unqualified names across all attached databases, so there is no
// search path to change.
func (c *conn) SetDefaultCatalog(ctx context.Context, name string) error {
	if err := c.busy.Acquire(ctx, 1); err != nil {
		return errors.Trace(err)
	}
	defer c.busy.Release(1)

	rows, err := c.conn.QueryContext(ctx, "PRAGMA database_list")
	if err != nil {
		return errors.Trace(err)
	}
	defer rows.Close()
	for rows.Next() {
		var seq int
		var dbName string
		var file sql.NullString
		if err := rows.Scan(&seq, &dbName, &file); err != nil {
			return errors.Trace(err)
		}
		if dbName == name {
			c.mu.Lock()
			c.defaultCatalog = name
			c.mu.Unlock()
			return nil
		}
	}
	if err := rows.Err(); err != nil {
		return errors.Trace(err)
	}
	return errors.NotFoundf("Catalog %q", name)
}

// Interrupt fails every unfinished execution on the connection, including
// ones still waiting for it.
func (c *conn) Interrupt() {
	for _, p := range c.snapshot() {
		p.interrupt()
	}
}

func (c *conn) snapshot() []*pending {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]*pending, 0, len(c.active))
	for p := range c.active {
		out = append(out, p)
	}
	return out
}

func (c *conn) finished(p *pending) {
	c.mu.Lock()
	delete(c.active, p)
	c.mu.Unlock()
}

func (c *conn) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	c.mu.Unlock()

	c.Interrupt()
	// Wait for the running execution to release the connection.
	if err := c.busy.Acquire(context.Background(), 1); err != nil {
		return errors.Trace(err)
	}
	defer c.busy.Release(1)
	return errors.Trace(c.conn.Close())
}

// statement stays open until it is closed and every execution started from
// it has finished, so callers may close it as soon as Pending returns.
type statement struct {
	conn *conn
	stmt *sql.Stmt

	mu      sync.Mutex
	refs    int
	closing bool
}

func (s *statement) Pending(ctx context.Context, params []string) (engine.Pending, error) {
	s.mu.Lock()
	if s.closing {
		s.mu.Unlock()
		return nil, errors.New("statement closed")
	}
	s.refs++
	s.mu.Unlock()

	args := make([]any, len(params))
	for i, p := range params {
		args[i] = p
	}
	return s.conn.start(ctx, func(ctx context.Context) (*sql.Rows, error) {
		return s.stmt.QueryContext(ctx, args...)
	}, s.release)
}

func (s *statement) release() {
	s.mu.Lock()
	s.refs--
	last := s.closing && s.refs == 0
	s.mu.Unlock()
	if last {
		s.stmt.Close()
	}
}

func (s *statement) Close() error {
	s.mu.Lock()
	if s.closing {
		s.mu.Unlock()
		return nil
	}
	s.closing = true
	last := s.refs == 0
	s.mu.Unlock()
	if last {
		return errors.Trace(s.stmt.Close())
	}
	return nil
}
