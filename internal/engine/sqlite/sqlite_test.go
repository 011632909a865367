package sqlite

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/virusdefender/duckdb-ui/internal/engine"
)

const endless = `WITH RECURSIVE c(x) AS (SELECT 1 UNION ALL SELECT x + 1 FROM c) SELECT count(*) FROM c`

func openTestDB(t *testing.T, chunkSize int) *DB {
	t.Helper()
	db, err := Open(context.Background(), Options{
		Path:      ":memory:",
		ChunkSize: chunkSize,
		Logger:    zerolog.Nop(),
	})
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db
}

func drive(t *testing.T, p engine.Pending) engine.TaskState {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for {
		state := p.ExecuteTask()
		if state.IsResultReady() {
			return state
		}
		if time.Now().After(deadline) {
			t.Fatalf("execution stuck in %s", state)
		}
		time.Sleep(time.Millisecond)
	}
}

func exec(t *testing.T, c engine.Conn, query string) {
	t.Helper()
	p, err := c.PendingQuery(context.Background(), query)
	require.NoError(t, err)
	defer p.Close()
	require.Equal(t, engine.TaskReady, drive(t, p), "%v", p.Err())
	res, err := p.Result()
	require.NoError(t, err)
	for {
		chunk, err := res.Fetch()
		require.NoError(t, err)
		if chunk == nil {
			break
		}
	}
}

func TestQueryInChunks(t *testing.T) {
	db := openTestDB(t, 4)
	ctx := context.Background()

	c, err := db.Connect(ctx)
	require.NoError(t, err)
	defer c.Close()

	exec(t, c, `CREATE TABLE t (id INTEGER, name TEXT, score REAL, data BLOB)`)
	exec(t, c, `INSERT INTO t WITH RECURSIVE n(i) AS (SELECT 1 UNION ALL SELECT i + 1 FROM n WHERE i < 10)
		SELECT i, 'row' || i, i * 0.5, CASE WHEN i % 2 = 0 THEN NULL ELSE x'0102' END FROM n`)

	p, err := c.PendingQuery(ctx, `SELECT id, name, score, data FROM t ORDER BY id`)
	require.NoError(t, err)
	defer p.Close()
	require.Equal(t, engine.TaskReady, drive(t, p))

	res, err := p.Result()
	require.NoError(t, err)
	assert.Equal(t, []engine.Column{
		{Name: "id", Type: engine.TypeBigInt},
		{Name: "name", Type: engine.TypeVarchar},
		{Name: "score", Type: engine.TypeDouble},
		{Name: "data", Type: engine.TypeBlob},
	}, res.Columns())

	var sizes []int
	var ids []any
	for {
		chunk, err := res.Fetch()
		require.NoError(t, err)
		if chunk == nil {
			break
		}
		sizes = append(sizes, chunk.Rows())
		ids = append(ids, chunk.Vectors[0].Values...)
		assert.True(t, chunk.Vectors[3].HasNulls())
	}
	assert.Equal(t, []int{4, 4, 2}, sizes)
	assert.Equal(t, int64(1), ids[0])
	assert.Equal(t, int64(10), ids[9])
}

func TestPreparedParameters(t *testing.T) {
	db := openTestDB(t, 0)
	ctx := context.Background()

	c, err := db.Connect(ctx)
	require.NoError(t, err)
	defer c.Close()

	stmt, err := c.Prepare(ctx, `SELECT ? || ?`)
	require.NoError(t, err)
	defer stmt.Close()

	p, err := stmt.Pending(ctx, []string{"duck", "db"})
	require.NoError(t, err)
	defer p.Close()
	require.Equal(t, engine.TaskReady, drive(t, p))

	res, err := p.Result()
	require.NoError(t, err)
	chunk, err := res.Fetch()
	require.NoError(t, err)
	require.NotNil(t, chunk)
	assert.Equal(t, []any{"duckdb"}, chunk.Vectors[0].Values)
}

func TestStatementOutlivesClose(t *testing.T) {
	db := openTestDB(t, 0)
	ctx := context.Background()

	c, err := db.Connect(ctx)
	require.NoError(t, err)
	defer c.Close()

	stmt, err := c.Prepare(ctx, `SELECT ? || ?`)
	require.NoError(t, err)
	p, err := stmt.Pending(ctx, []string{"duck", "db"})
	require.NoError(t, err)
	defer p.Close()
	require.NoError(t, stmt.Close())

	require.Equal(t, engine.TaskReady, drive(t, p), "%v", p.Err())
	res, err := p.Result()
	require.NoError(t, err)
	chunk, err := res.Fetch()
	require.NoError(t, err)
	require.NotNil(t, chunk)
	assert.Equal(t, []any{"duckdb"}, chunk.Vectors[0].Values)

	_, err = stmt.Pending(ctx, []string{"a", "b"})
	assert.Error(t, err)
	assert.NoError(t, stmt.Close())
}

func TestQueryError(t *testing.T) {
	db := openTestDB(t, 0)
	ctx := context.Background()

	c, err := db.Connect(ctx)
	require.NoError(t, err)
	defer c.Close()

	p, err := c.PendingQuery(ctx, `SELECT * FROM missing_table`)
	require.NoError(t, err)
	defer p.Close()

	assert.Equal(t, engine.TaskError, drive(t, p))
	assert.ErrorContains(t, p.Err(), "no such table: missing_table")
	_, err = p.Result()
	assert.Error(t, err)
}

func TestInterrupt(t *testing.T) {
	db := openTestDB(t, 0)
	ctx := context.Background()

	c, err := db.Connect(ctx)
	require.NoError(t, err)
	defer c.Close()

	p, err := c.PendingQuery(ctx, endless)
	require.NoError(t, err)
	defer p.Close()

	require.Eventually(t, func() bool {
		return p.ExecuteTask() == engine.TaskNoTasksAvailable
	}, time.Second, time.Millisecond)

	c.Interrupt()
	assert.Equal(t, engine.TaskError, drive(t, p))
	assert.ErrorIs(t, p.Err(), ErrInterrupted)

	// The connection is usable again once the interrupted query is closed.
	p.Close()
	exec(t, c, `SELECT 1`)
}

func TestInterruptRightAfterStart(t *testing.T) {
	db := openTestDB(t, 0)
	ctx := context.Background()

	c, err := db.Connect(ctx)
	require.NoError(t, err)
	defer c.Close()

	for i := 0; i < 5; i++ {
		p, err := c.PendingQuery(ctx, endless)
		require.NoError(t, err)
		c.Interrupt()
		assert.Equal(t, engine.TaskError, drive(t, p))
		assert.ErrorIs(t, p.Err(), ErrInterrupted)
		p.Close()
	}
	exec(t, c, `SELECT 1`)
}

func TestInterruptReachesQueuedExecution(t *testing.T) {
	db := openTestDB(t, 0)
	ctx := context.Background()

	c, err := db.Connect(ctx)
	require.NoError(t, err)
	defer c.Close()

	first, err := c.PendingQuery(ctx, endless)
	require.NoError(t, err)
	defer first.Close()
	require.Eventually(t, func() bool {
		return first.ExecuteTask() == engine.TaskNoTasksAvailable
	}, time.Second, time.Millisecond)

	second, err := c.PendingQuery(ctx, endless)
	require.NoError(t, err)
	defer second.Close()
	require.Equal(t, engine.TaskBlocked, second.ExecuteTask())

	c.Interrupt()
	assert.Equal(t, engine.TaskError, drive(t, first))
	assert.Equal(t, engine.TaskError, drive(t, second))
	assert.ErrorIs(t, second.Err(), ErrInterrupted)
}

func TestSecondQueryIsBlocked(t *testing.T) {
	db := openTestDB(t, 0)
	ctx := context.Background()

	c, err := db.Connect(ctx)
	require.NoError(t, err)
	defer c.Close()

	first, err := c.PendingQuery(ctx, endless)
	require.NoError(t, err)
	defer first.Close()
	require.Eventually(t, func() bool {
		return first.ExecuteTask() == engine.TaskNoTasksAvailable
	}, time.Second, time.Millisecond)

	second, err := c.PendingQuery(ctx, `SELECT 1`)
	require.NoError(t, err)
	defer second.Close()
	assert.Equal(t, engine.TaskBlocked, second.ExecuteTask())

	first.Close()
	assert.Equal(t, engine.TaskReady, drive(t, second))
}

func TestCatalogs(t *testing.T) {
	path := filepath.Join(t.TempDir(), "ui.db")
	db, err := Open(context.Background(), Options{Path: path})
	require.NoError(t, err)
	defer db.Close()
	ctx := context.Background()

	before, err := db.Catalogs(ctx)
	require.NoError(t, err)
	require.NotEmpty(t, before)
	assert.Equal(t, "main", before[0].Name)

	c, err := db.Connect(ctx)
	require.NoError(t, err)
	defer c.Close()
	exec(t, c, `CREATE TABLE t (id INTEGER)`)

	after, err := db.Catalogs(ctx)
	require.NoError(t, err)
	assert.Equal(t, before[0].ID, after[0].ID)
	assert.Greater(t, after[0].Version, before[0].Version)

	for _, cat := range after {
		assert.Equal(t, cat.Name == "temp", cat.Temporary)
	}
}

func TestSetDefaultCatalog(t *testing.T) {
	db := openTestDB(t, 0)
	ctx := context.Background()

	c, err := db.Connect(ctx)
	require.NoError(t, err)
	defer c.Close()

	assert.NoError(t, c.SetDefaultCatalog(ctx, "main"))
	assert.Error(t, c.SetDefaultCatalog(ctx, "nope"))
}

func TestTypeFromDecl(t *testing.T) {
	tests := map[string]engine.TypeID{
		"INTEGER":     engine.TypeBigInt,
		"bigint":      engine.TypeBigInt,
		"BOOLEAN":     engine.TypeBoolean,
		"VARCHAR(20)": engine.TypeVarchar,
		"TEXT":        engine.TypeVarchar,
		"BLOB":        engine.TypeBlob,
		"DOUBLE":      engine.TypeDouble,
		"DATETIME":    engine.TypeTimestamp,
		"NUMERIC":     0,
		"":            0,
	}
	for decl, want := range tests {
		assert.Equal(t, want, typeFromDecl(decl), decl)
	}
}

func TestVersion(t *testing.T) {
	db := openTestDB(t, 0)
	assert.Contains(t, db.Version(), "sqlite 3.")
}
