package mock

import (
	"context"
	"sync"

	"github.com/juju/errors"

	"github.com/virusdefender/duckdb-ui/internal/engine"
)

type Conn struct {
	db *Database

	mu             sync.Mutex
	running        *Pending
	defaultCatalog string
	closed         bool
}

func (c *Conn) Prepare(ctx context.Context, query string) (engine.Statement, error) {
	c.db.mu.Lock()
	err := c.db.prepareErr[query]
	c.db.mu.Unlock()
	if err != nil {
		return nil, err
	}
	return &statement{conn: c, query: query}, nil
}

func (c *Conn) PendingQuery(ctx context.Context, query string) (engine.Pending, error) {
	return c.start(query, nil)
}

func (c *Conn) start(query string, params []string) (*Pending, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil, errors.New("connection closed")
	}
	c.db.mu.Lock()
	chunkSize := c.db.chunkSize
	c.db.mu.Unlock()

	p := &Pending{
		conn:      c,
		resp:      c.db.response(query, params),
		chunkSize: chunkSize,
	}
	c.running = p
	return p, nil
}

func (c *Conn) SetDefaultCatalog(ctx context.Context, name string) error {
	c.db.mu.Lock()
	_, ok := c.db.catalogs[name]
	c.db.mu.Unlock()
	if !ok {
		return errors.NotFoundf("Catalog %q", name)
	}
	c.mu.Lock()
	c.defaultCatalog = name
	c.mu.Unlock()
	return nil
}

func (c *Conn) DefaultCatalog() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.defaultCatalog
}

func (c *Conn) Interrupt() {
	c.db.mu.Lock()
	c.db.interrupts++
	c.db.mu.Unlock()

	c.mu.Lock()
	p := c.running
	c.mu.Unlock()
	if p != nil {
		p.interrupt()
	}
}

func (c *Conn) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil
	}
	c.closed = true
	if c.running != nil {
		c.running.interrupt()
	}
	c.db.mu.Lock()
	c.db.conns--
	c.db.mu.Unlock()
	return nil
}

func (c *Conn) IsClosed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

type statement struct {
	conn  *Conn
	query string
}

func (s *statement) Pending(ctx context.Context, params []string) (engine.Pending, error) {
	return s.conn.start(s.query, params)
}

func (s *statement) Close() error { return nil }

// Pending steps through a scripted Response.
type Pending struct {
	conn      *Conn
	resp      Response
	chunkSize int

	mu          sync.Mutex
	steps       int
	interrupted bool
	state       engine.TaskState
	next        int
}

func (p *Pending) interrupt() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.interrupted = true
}

// Steps is the number of ExecuteTask calls so far.
func (p *Pending) Steps() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.steps
}

func (p *Pending) ExecuteTask() engine.TaskState {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.state.IsResultReady() {
		return p.state
	}
	p.steps++
	switch {
	case p.interrupted:
		p.state = engine.TaskError
	case p.resp.Hang || p.steps <= p.resp.Steps:
		// Alternate the two back-off states so callers handle both.
		if p.steps%2 == 0 {
			return engine.TaskBlocked
		}
		return engine.TaskNoTasksAvailable
	case p.resp.Err != nil:
		p.state = engine.TaskError
	default:
		p.state = engine.TaskReady
	}
	return p.state
}

func (p *Pending) Err() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.state != engine.TaskError {
		return nil
	}
	if p.interrupted {
		return ErrInterrupted
	}
	return p.resp.Err
}

func (p *Pending) Result() (engine.Result, error) {
	p.mu.Lock()
	state := p.state
	p.mu.Unlock()
	switch state {
	case engine.TaskReady:
		return &result{p: p}, nil
	case engine.TaskError:
		return nil, p.Err()
	}
	return nil, errors.New("result not ready")
}

func (p *Pending) Close() error {
	c := p.conn
	c.mu.Lock()
	if c.running == p {
		c.running = nil
	}
	c.mu.Unlock()
	return nil
}

type result struct {
	p *Pending
}

func (r *result) Columns() []engine.Column {
	return r.p.resp.Columns
}

func (r *result) Fetch() (*engine.Chunk, error) {
	p := r.p
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.interrupted {
		return nil, ErrInterrupted
	}
	if p.next >= len(p.resp.Rows) {
		return nil, nil
	}
	end := p.next + p.chunkSize
	if end > len(p.resp.Rows) {
		end = len(p.resp.Rows)
	}
	chunk := engine.NewChunk(p.resp.Columns, end-p.next)
	for _, row := range p.resp.Rows[p.next:end] {
		if err := chunk.AppendRow(row); err != nil {
			return nil, errors.Trace(err)
		}
	}
	p.next = end
	return chunk, nil
}

func (r *result) Close() error {
	return r.p.Close()
}
