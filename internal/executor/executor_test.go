package executor

import (
	"context"
	"testing"
	"time"

	"github.com/juju/clock"
	"github.com/juju/errors"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/virusdefender/duckdb-ui/internal/engine"
	"github.com/virusdefender/duckdb-ui/internal/engine/sqlite"
	"github.com/virusdefender/duckdb-ui/internal/mock"
	"github.com/virusdefender/duckdb-ui/internal/wire"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func newExecutor(t *testing.T) *Executor {
	t.Helper()
	e, err := New(Config{
		Clock:        clock.WallClock,
		StepInterval: DefaultStepInterval,
		Logger:       zerolog.Nop(),
	})
	require.NoError(t, err)
	return e
}

func connect(t *testing.T, db engine.Database) engine.Conn {
	t.Helper()
	conn, err := db.Connect(context.Background())
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

func decode(t *testing.T, p []byte) *wire.Frame {
	t.Helper()
	f, err := wire.Decode(p)
	require.NoError(t, err)
	return f
}

func intRows(n int) [][]any {
	rows := make([][]any, n)
	for i := range rows {
		rows[i] = []any{i}
	}
	return rows
}

func TestConfigValidate(t *testing.T) {
	_, err := New(Config{StepInterval: time.Millisecond})
	assert.True(t, errors.Is(err, errors.NotValid))

	_, err = New(Config{Clock: clock.WallClock})
	assert.True(t, errors.Is(err, errors.NotValid))
}

func TestRunSuccessRowCount(t *testing.T) {
	db := mock.NewDatabase()
	db.SetChunkSize(3)
	db.Respond("SELECT i", mock.Response{
		Columns: []engine.Column{{Name: "i", Type: engine.TypeInteger}},
		Rows:    intRows(10),
		Steps:   4,
	})

	f := decode(t, newExecutor(t).Run(context.Background(), connect(t, db), Request{SQL: "SELECT i"}))
	require.Equal(t, wire.FrameSuccess, f.Kind)
	assert.Equal(t, []engine.Column{{Name: "i", Type: engine.TypeInteger}}, f.Columns)
	assert.Len(t, f.Chunks, 4)
	assert.Equal(t, 10, f.Rows())
}

func TestRunEmptyResult(t *testing.T) {
	db := mock.NewDatabase()
	db.Respond("SELECT nothing", mock.Response{
		Columns: []engine.Column{{Name: "x", Type: engine.TypeVarchar}},
	})

	f := decode(t, newExecutor(t).Run(context.Background(), connect(t, db), Request{SQL: "SELECT nothing"}))
	require.Equal(t, wire.FrameSuccess, f.Kind)
	assert.Len(t, f.Columns, 1)
	assert.Empty(t, f.Chunks)
}

func TestRunChunkLimit(t *testing.T) {
	db := mock.NewDatabase()
	db.SetChunkSize(2)
	db.Respond("SELECT i", mock.Response{
		Columns: []engine.Column{{Name: "i", Type: engine.TypeInteger}},
		Rows:    intRows(9),
	})

	f := decode(t, newExecutor(t).Run(context.Background(), connect(t, db), Request{SQL: "SELECT i", ChunkLimit: 2}))
	require.Equal(t, wire.FrameSuccess, f.Kind)
	assert.Len(t, f.Chunks, 2)
	assert.Equal(t, 4, f.Rows())
}

func TestRunWithParams(t *testing.T) {
	db := mock.NewDatabase()
	f := decode(t, newExecutor(t).Run(context.Background(), connect(t, db), Request{
		SQL:    "SELECT ?",
		Params: []string{"duck"},
	}))
	require.Equal(t, wire.FrameSuccess, f.Kind)
	require.Len(t, f.Columns, 2)
	assert.Equal(t, "param_1", f.Columns[1].Name)
	assert.Equal(t, "duck", f.Chunks[0].Vectors[1].Values[0])
}

func TestRunQueryError(t *testing.T) {
	db := mock.NewDatabase()
	db.Respond("SELECT broken", mock.Response{
		Err:   errors.New("Parser Error: syntax error"),
		Steps: 2,
	})

	f := decode(t, newExecutor(t).Run(context.Background(), connect(t, db), Request{SQL: "SELECT broken"}))
	require.Equal(t, wire.FrameError, f.Kind)
	assert.Equal(t, "Parser Error: syntax error", f.Error)
}

func TestRunPrepareError(t *testing.T) {
	db := mock.NewDatabase()
	db.FailPrepare("SELECT $1", errors.New("Binder Error: bad param"))

	f := decode(t, newExecutor(t).Run(context.Background(), connect(t, db), Request{
		SQL:    "SELECT $1",
		Params: []string{"x"},
	}))
	require.Equal(t, wire.FrameError, f.Kind)
	assert.Equal(t, "Binder Error: bad param", f.Error)
}

func TestRunUnknownCatalog(t *testing.T) {
	db := mock.NewDatabase()
	f := decode(t, newExecutor(t).Run(context.Background(), connect(t, db), Request{
		SQL:     "SELECT 1",
		Catalog: "missing",
	}))
	require.Equal(t, wire.FrameError, f.Kind)
	assert.Contains(t, f.Error, "missing")
}

func TestRunSetsCatalog(t *testing.T) {
	db := mock.NewDatabase()
	db.Attach("analytics", false)
	conn := connect(t, db)

	f := decode(t, newExecutor(t).Run(context.Background(), conn, Request{SQL: "SELECT 1", Catalog: "analytics"}))
	require.Equal(t, wire.FrameSuccess, f.Kind)
	assert.Equal(t, "analytics", conn.(*mock.Conn).DefaultCatalog())
}

func TestRunInterrupted(t *testing.T) {
	db := mock.NewDatabase()
	db.Respond("SELECT forever", mock.Response{Hang: true})
	conn := connect(t, db)

	e := newExecutor(t)
	done := make(chan []byte, 1)
	go func() {
		done <- e.Run(context.Background(), conn, Request{SQL: "SELECT forever"})
	}()

	// Interrupt from this goroutine as a second request would. The query may
	// not have started yet, so keep interrupting until Run returns.
	ticker := time.NewTicker(5 * time.Millisecond)
	defer ticker.Stop()
	timeout := time.After(2 * time.Second)
	for {
		select {
		case out := <-done:
			f := decode(t, out)
			require.Equal(t, wire.FrameError, f.Kind)
			assert.Equal(t, mock.ErrInterrupted.Error(), f.Error)
			return
		case <-ticker.C:
			conn.Interrupt()
		case <-timeout:
			t.Fatal("Run did not return after Interrupt")
		}
	}
}

func TestRunContextCancelInterrupts(t *testing.T) {
	db := mock.NewDatabase()
	db.Respond("SELECT forever", mock.Response{Hang: true})
	conn := connect(t, db)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	f := decode(t, newExecutor(t).Run(ctx, conn, Request{SQL: "SELECT forever"}))
	assert.Equal(t, wire.FrameError, f.Kind)
	assert.Equal(t, 1, db.Interrupts())
}

func TestRunSQLite(t *testing.T) {
	db, err := sqlite.Open(context.Background(), sqlite.Options{ChunkSize: 4, Logger: zerolog.Nop()})
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	conn := connect(t, db)
	e := newExecutor(t)

	f := decode(t, e.Run(context.Background(), conn, Request{
		SQL: "WITH RECURSIVE n(i) AS (SELECT 1 UNION ALL SELECT i+1 FROM n WHERE i < 10) SELECT i FROM n",
	}))
	require.Equal(t, wire.FrameSuccess, f.Kind)
	assert.Equal(t, 10, f.Rows())
	assert.Len(t, f.Chunks, 3)

	f = decode(t, e.Run(context.Background(), conn, Request{SQL: "SELECT * FROM no_such_table"}))
	require.Equal(t, wire.FrameError, f.Kind)
	assert.Contains(t, f.Error, "no_such_table")
}

func TestRunSQLiteWithParams(t *testing.T) {
	db, err := sqlite.Open(context.Background(), sqlite.Options{Logger: zerolog.Nop()})
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	conn := connect(t, db)
	e := newExecutor(t)

	for i := 0; i < 20; i++ {
		f := decode(t, e.Run(context.Background(), conn, Request{
			SQL:    "SELECT ? || ?",
			Params: []string{"duck", "db"},
		}))
		require.Equal(t, wire.FrameSuccess, f.Kind, f.Error)
		require.Equal(t, 1, f.Rows())
		assert.Equal(t, "duckdb", f.Chunks[0].Vectors[0].Values[0])
	}

	f := decode(t, e.Run(context.Background(), conn, Request{
		SQL:    "SELECT * FROM no_such_table WHERE x = ?",
		Params: []string{"1"},
	}))
	require.Equal(t, wire.FrameError, f.Kind)
	assert.Contains(t, f.Error, "no_such_table")
}

func TestRunSQLiteContextCancel(t *testing.T) {
	db, err := sqlite.Open(context.Background(), sqlite.Options{Logger: zerolog.Nop()})
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	conn := connect(t, db)
	e := newExecutor(t)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	f := decode(t, e.Run(ctx, conn, Request{
		SQL: "WITH RECURSIVE c(x) AS (SELECT 1 UNION ALL SELECT x + 1 FROM c) SELECT count(*) FROM c",
	}))
	assert.Equal(t, wire.FrameError, f.Kind)

	f = decode(t, e.Run(context.Background(), conn, Request{SQL: "SELECT 1"}))
	assert.Equal(t, wire.FrameSuccess, f.Kind, f.Error)
}
