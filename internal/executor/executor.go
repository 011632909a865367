// Package executor runs a query on a shared connection one engine step at a
// time and frames the outcome for the UI.
package executor

import (
	"context"
	"time"

	"github.com/juju/clock"
	"github.com/juju/errors"
	"github.com/rs/zerolog"

	"github.com/virusdefender/duckdb-ui/internal/engine"
	"github.com/virusdefender/duckdb-ui/internal/metrics"
	"github.com/virusdefender/duckdb-ui/internal/wire"
)

const DefaultStepInterval = time.Millisecond

type Config struct {
	Clock clock.Clock
	// StepInterval is the pause after a step that made no progress.
	StepInterval time.Duration
	Metrics      *metrics.Metrics
	Logger       zerolog.Logger
}

func (c Config) Validate() error {
	if c.Clock == nil {
		return errors.NotValidf("missing Clock")
	}
	if c.StepInterval <= 0 {
		return errors.NotValidf("step interval %v", c.StepInterval)
	}
	return nil
}

// Request is one query submitted by the UI.
type Request struct {
	SQL    string
	Params []string
	// Catalog, when set, becomes the connection's default catalog first.
	Catalog string
	// ChunkLimit caps the number of batches returned; zero means no cap.
	ChunkLimit  int
	Description string
}

type Executor struct {
	clock        clock.Clock
	stepInterval time.Duration
	metrics      *metrics.Metrics
	logger       zerolog.Logger
}

func New(cfg Config) (*Executor, error) {
	if err := cfg.Validate(); err != nil {
		return nil, errors.Trace(err)
	}
	return &Executor{
		clock:        cfg.Clock,
		stepInterval: cfg.StepInterval,
		metrics:      cfg.Metrics,
		logger:       cfg.Logger.With().Str("component", "executor").Logger(),
	}, nil
}

// Run executes req on conn and returns the encoded result: a success frame,
// or an error frame if anything failed. A failure never yields a partial
// success frame. If ctx ends first the connection is interrupted.
func (e *Executor) Run(ctx context.Context, conn engine.Conn, req Request) []byte {
	start := e.clock.Now()
	out, steps, err := e.run(ctx, conn, req)
	elapsed := e.clock.Now().Sub(start)

	if err != nil {
		e.metrics.QueryDone("error", elapsed, steps)
		e.logger.Debug().
			Err(err).
			Str("description", req.Description).
			Int("steps", steps).
			Dur("elapsed", elapsed).
			Msg("query failed")
		return wire.Error(Message(err))
	}
	e.metrics.QueryDone("ok", elapsed, steps)
	e.logger.Debug().
		Str("description", req.Description).
		Int("steps", steps).
		Int("rows", out.Rows()).
		Int("chunks", out.Chunks()).
		Dur("elapsed", elapsed).
		Msg("query done")
	return out.Bytes()
}

func (e *Executor) run(ctx context.Context, conn engine.Conn, req Request) (*wire.SuccessBuilder, int, error) {
	if req.Catalog != "" {
		if err := conn.SetDefaultCatalog(ctx, req.Catalog); err != nil {
			return nil, 0, errors.Trace(err)
		}
	}

	pending, err := e.start(ctx, conn, req)
	if err != nil {
		return nil, 0, errors.Trace(err)
	}
	defer pending.Close()

	steps, err := e.step(ctx, conn, pending)
	if err != nil {
		return nil, steps, errors.Trace(err)
	}

	res, err := pending.Result()
	if err != nil {
		return nil, steps, errors.Trace(err)
	}
	defer res.Close()

	out := wire.NewSuccess(res.Columns())
	for req.ChunkLimit <= 0 || out.Chunks() < req.ChunkLimit {
		if err := ctx.Err(); err != nil {
			conn.Interrupt()
			return nil, steps, errors.Trace(err)
		}
		chunk, err := res.Fetch()
		if err != nil {
			return nil, steps, errors.Trace(err)
		}
		if chunk == nil {
			break
		}
		if err := out.AddChunk(chunk); err != nil {
			return nil, steps, errors.Annotate(err, "encoding result")
		}
	}
	return out, steps, nil
}

func (e *Executor) start(ctx context.Context, conn engine.Conn, req Request) (engine.Pending, error) {
	if len(req.Params) == 0 {
		return conn.PendingQuery(ctx, req.SQL)
	}
	stmt, err := conn.Prepare(ctx, req.SQL)
	if err != nil {
		return nil, errors.Trace(err)
	}
	defer stmt.Close()
	return stmt.Pending(ctx, req.Params)
}

// step drives pending until it reports a terminal state. Steps that make no
// progress are followed by a short pause so an Interrupt from another
// request is observed promptly without spinning.
func (e *Executor) step(ctx context.Context, conn engine.Conn, pending engine.Pending) (int, error) {
	steps := 0
	for {
		state := pending.ExecuteTask()
		steps++
		if state == engine.TaskError {
			err := pending.Err()
			if err == nil {
				err = errors.New("query failed")
			}
			return steps, err
		}
		if state.IsResultReady() {
			return steps, nil
		}
		if !state.ShouldBackOff() {
			continue
		}
		select {
		case <-ctx.Done():
			conn.Interrupt()
			return steps, ctx.Err()
		case <-e.clock.After(e.stepInterval):
		}
	}
}

// Message is the text shown to the user for a failed query: the engine's
// own message without the annotations added on the way up.
func Message(err error) string {
	if cause := errors.Cause(err); cause != nil {
		return cause.Error()
	}
	return err.Error()
}
