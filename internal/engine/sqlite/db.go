// Package sqlite adapts database/sql with the go-sqlite3 driver to the
// engine interfaces.
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"net/url"
	"strings"

	"github.com/google/uuid"
	"github.com/juju/errors"
	"github.com/mattn/go-sqlite3"
	"github.com/rs/zerolog"

	"github.com/virusdefender/duckdb-ui/internal/engine"
)

const driverName = "sqlite3"

const defaultChunkSize = 2048

type Options struct {
	// Path is a database file, or ":memory:" for a private shared-cache
	// in-memory database.
	Path      string
	ReadOnly  bool
	ChunkSize int
	Logger    zerolog.Logger
}

// DB implements engine.Database.
type DB struct {
	db        *sql.DB
	dsn       string
	chunkSize int
	logger    zerolog.Logger
	// meta stays open for the lifetime of DB. It keeps in-memory databases
	// alive and serves catalog listings.
	meta *sql.Conn
}

var _ engine.Database = (*DB)(nil)

func Open(ctx context.Context, opts Options) (*DB, error) {
	dsn := buildDSN(opts)
	db, err := sql.Open(driverName, dsn)
	if err != nil {
		return nil, errors.Annotatef(err, "opening %q", opts.Path)
	}
	meta, err := db.Conn(ctx)
	if err != nil {
		db.Close()
		return nil, errors.Annotatef(err, "connecting to %q", opts.Path)
	}
	if err := meta.PingContext(ctx); err != nil {
		meta.Close()
		db.Close()
		return nil, errors.Annotatef(err, "connecting to %q", opts.Path)
	}

	chunkSize := opts.ChunkSize
	if chunkSize <= 0 {
		chunkSize = defaultChunkSize
	}
	return &DB{
		db:        db,
		dsn:       dsn,
		chunkSize: chunkSize,
		logger:    opts.Logger.With().Str("component", "sqlite").Logger(),
		meta:      meta,
	}, nil
}

func buildDSN(opts Options) string {
	q := url.Values{}
	q.Set("_busy_timeout", "5000")
	path := opts.Path
	if path == "" || path == ":memory:" {
		path = "duckdb-ui-" + uuid.NewString()
		q.Set("mode", "memory")
		q.Set("cache", "shared")
	} else if opts.ReadOnly {
		q.Set("mode", "ro")
	}
	return "file:" + path + "?" + q.Encode()
}

func (d *DB) Connect(ctx context.Context) (engine.Conn, error) {
	c, err := d.db.Conn(ctx)
	if err != nil {
		return nil, errors.Trace(err)
	}
	return newConn(d, c), nil
}

// Catalogs lists the databases attached to the metadata connection. The
// per-connection temp database is reported as Temporary.
func (d *DB) Catalogs(ctx context.Context) ([]engine.Catalog, error) {
	rows, err := d.meta.QueryContext(ctx, "PRAGMA database_list")
	if err != nil {
		return nil, errors.Annotate(err, "listing databases")
	}
	type attached struct{ name, file string }
	var list []attached
	for rows.Next() {
		var seq int
		var a attached
		var file sql.NullString
		if err := rows.Scan(&seq, &a.name, &file); err != nil {
			rows.Close()
			return nil, errors.Trace(err)
		}
		a.file = file.String
		list = append(list, a)
	}
	if err := rows.Close(); err != nil {
		return nil, errors.Trace(err)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Trace(err)
	}

	catalogs := make([]engine.Catalog, 0, len(list))
	for _, a := range list {
		var version int64
		q := fmt.Sprintf("PRAGMA %s.schema_version", quoteIdent(a.name))
		if err := d.meta.QueryRowContext(ctx, q).Scan(&version); err != nil {
			return nil, errors.Annotatef(err, "reading schema version of %q", a.name)
		}
		id := a.name
		if a.file != "" {
			id = a.name + ":" + a.file
		}
		catalogs = append(catalogs, engine.Catalog{
			ID:        id,
			Name:      a.name,
			Version:   uint64(version),
			Temporary: a.name == "temp",
		})
	}
	return catalogs, nil
}

func (d *DB) Version() string {
	v, _, _ := sqlite3.Version()
	return "sqlite " + v
}

func (d *DB) Close() error {
	err := d.meta.Close()
	if cerr := d.db.Close(); err == nil {
		err = cerr
	}
	return errors.Trace(err)
}

func quoteIdent(name string) string {
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}
