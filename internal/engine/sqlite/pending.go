package sqlite

import (
	"context"
	"database/sql"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/juju/errors"

	"github.com/virusdefender/duckdb-ui/internal/engine"
)

type queryFunc func(ctx context.Context) (*sql.Rows, error)

type batch struct {
	chunk *engine.Chunk
	err   error
}

// pending runs one query on a goroutine. The goroutine holds the
// connection until the result is drained or the pending is closed.
type pending struct {
	conn      *conn
	chunkSize int
	ctx       context.Context
	cancel    context.CancelFunc

	acquired    atomic.Bool
	interrupted atomic.Bool
	complete    atomic.Bool

	readyOnce sync.Once
	ready     chan struct{}
	err       error
	columns   []engine.Column

	batches   chan batch
	done      chan struct{}
	closeOnce sync.Once
}

func newPending(ctx context.Context, c *conn, chunkSize int) *pending {
	ctx, cancel := context.WithCancel(ctx)
	return &pending{
		conn:      c,
		chunkSize: chunkSize,
		ctx:       ctx,
		cancel:    cancel,
		ready:     make(chan struct{}),
		batches:   make(chan batch, 1),
		done:      make(chan struct{}),
	}
}

func (p *pending) run(query queryFunc, release func()) {
	defer close(p.done)
	defer close(p.batches)
	defer p.conn.finished(p)
	if release != nil {
		defer release()
	}

	if err := p.conn.busy.Acquire(p.ctx, 1); err != nil {
		p.fail(p.translate(err))
		return
	}
	defer p.conn.busy.Release(1)
	p.acquired.Store(true)
	if p.interrupted.Load() {
		p.fail(ErrInterrupted)
		return
	}

	rows, err := query(p.ctx)
	if err != nil {
		p.fail(p.translate(err))
		return
	}
	defer rows.Close()

	names, err := rows.Columns()
	if err != nil {
		p.fail(p.translate(err))
		return
	}
	colTypes, err := rows.ColumnTypes()
	if err != nil {
		p.fail(p.translate(err))
		return
	}

	raw, more, err := readRaw(rows, len(names), p.chunkSize)
	if err != nil {
		p.fail(p.translate(err))
		return
	}
	p.columns = resolveColumns(names, colTypes, raw)
	first, err := buildChunk(p.columns, raw)
	if err != nil {
		p.fail(err)
		return
	}
	p.readyOnce.Do(func() { close(p.ready) })

	if len(raw) > 0 && !p.send(batch{chunk: first}) {
		return
	}
	for more {
		raw, more, err = readRaw(rows, len(names), p.chunkSize)
		if err != nil {
			p.send(batch{err: p.translate(err)})
			return
		}
		if len(raw) == 0 {
			break
		}
		chunk, err := buildChunk(p.columns, raw)
		if err != nil {
			p.send(batch{err: err})
			return
		}
		if !p.send(batch{chunk: chunk}) {
			return
		}
	}
	p.complete.Store(true)
}

func (p *pending) send(b batch) bool {
	select {
	case p.batches <- b:
		return true
	case <-p.ctx.Done():
		return false
	}
}

func (p *pending) fail(err error) {
	p.readyOnce.Do(func() {
		p.err = err
		close(p.ready)
	})
}

func (p *pending) translate(err error) error {
	if p.interrupted.Load() {
		return ErrInterrupted
	}
	return errors.Trace(err)
}

func (p *pending) interrupt() {
	p.interrupted.Store(true)
	p.cancel()
}

func (p *pending) ExecuteTask() engine.TaskState {
	select {
	case <-p.ready:
		if p.err != nil {
			return engine.TaskError
		}
		return engine.TaskReady
	default:
	}
	if !p.acquired.Load() {
		return engine.TaskBlocked
	}
	return engine.TaskNoTasksAvailable
}

func (p *pending) Err() error {
	select {
	case <-p.ready:
		return p.err
	default:
		return nil
	}
}

func (p *pending) Result() (engine.Result, error) {
	select {
	case <-p.ready:
	default:
		return nil, errors.New("result not ready")
	}
	if p.err != nil {
		return nil, p.err
	}
	return &result{p: p}, nil
}

func (p *pending) Close() error {
	p.closeOnce.Do(func() {
		p.cancel()
		<-p.done
	})
	return nil
}

type result struct {
	p *pending
}

func (r *result) Columns() []engine.Column {
	return r.p.columns
}

func (r *result) Fetch() (*engine.Chunk, error) {
	b, ok := <-r.p.batches
	if !ok {
		if r.p.complete.Load() {
			return nil, nil
		}
		if r.p.interrupted.Load() {
			return nil, ErrInterrupted
		}
		if err := r.p.ctx.Err(); err != nil {
			return nil, errors.Trace(err)
		}
		return nil, errors.New("result stream ended early")
	}
	if b.err != nil {
		return nil, b.err
	}
	return b.chunk, nil
}

func (r *result) Close() error {
	return r.p.Close()
}

func readRaw(rows *sql.Rows, width, limit int) ([][]any, bool, error) {
	var out [][]any
	for len(out) < limit {
		if !rows.Next() {
			return out, false, rows.Err()
		}
		vals := make([]any, width)
		ptrs := make([]any, width)
		for i := range vals {
			ptrs[i] = &vals[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, false, err
		}
		out = append(out, vals)
	}
	return out, true, nil
}

func buildChunk(cols []engine.Column, raw [][]any) (*engine.Chunk, error) {
	chunk := engine.NewChunk(cols, len(raw))
	for _, row := range raw {
		if err := chunk.AppendRow(row); err != nil {
			return nil, errors.Trace(err)
		}
	}
	return chunk, nil
}

func resolveColumns(names []string, types []*sql.ColumnType, raw [][]any) []engine.Column {
	cols := make([]engine.Column, len(names))
	for i, name := range names {
		var t engine.TypeID
		if i < len(types) {
			t = typeFromDecl(types[i].DatabaseTypeName())
		}
		if t == 0 {
			t = typeFromValues(raw, i)
		}
		cols[i] = engine.Column{Name: name, Type: t}
	}
	return cols
}

// typeFromDecl applies SQLite's column affinity rules to a declared type.
// It returns 0 when the declaration does not settle the type.
func typeFromDecl(decl string) engine.TypeID {
	decl = strings.ToUpper(decl)
	switch {
	case decl == "":
		return 0
	case strings.Contains(decl, "BOOL"):
		return engine.TypeBoolean
	case strings.Contains(decl, "INT"):
		return engine.TypeBigInt
	case strings.Contains(decl, "CHAR"), strings.Contains(decl, "CLOB"), strings.Contains(decl, "TEXT"):
		return engine.TypeVarchar
	case strings.Contains(decl, "BLOB"):
		return engine.TypeBlob
	case strings.Contains(decl, "REAL"), strings.Contains(decl, "FLOA"), strings.Contains(decl, "DOUB"):
		return engine.TypeDouble
	case strings.Contains(decl, "DATE"), strings.Contains(decl, "TIME"):
		return engine.TypeTimestamp
	}
	return 0
}

func typeFromValues(raw [][]any, col int) engine.TypeID {
	for _, row := range raw {
		switch row[col].(type) {
		case nil:
			continue
		case int64:
			return engine.TypeBigInt
		case float64:
			return engine.TypeDouble
		case bool:
			return engine.TypeBoolean
		case []byte:
			return engine.TypeBlob
		case time.Time:
			return engine.TypeTimestamp
		default:
			return engine.TypeVarchar
		}
	}
	return engine.TypeVarchar
}
