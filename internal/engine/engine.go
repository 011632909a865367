// Package engine describes the query engine the UI server drives. The server
// never parses or plans SQL itself; it steps a pending execution, fetches
// result chunks, and watches catalog versions through these interfaces.
package engine

import (
	"context"
)

// Database is a handle to one engine instance.
type Database interface {
	Connect(ctx context.Context) (Conn, error)
	// Catalogs lists the attached catalogs with their current version tokens.
	Catalogs(ctx context.Context) ([]Catalog, error)
	Version() string
	Close() error
}

// Conn is a session on a Database. Executions on one Conn are serialized by
// the engine; Interrupt may be called from any goroutine.
type Conn interface {
	Prepare(ctx context.Context, query string) (Statement, error)
	PendingQuery(ctx context.Context, query string) (Pending, error)
	SetDefaultCatalog(ctx context.Context, name string) error
	// Interrupt cancels whatever is executing on the connection. The running
	// execution observes it as an Error task state.
	Interrupt()
	Close() error
}

type Statement interface {
	Pending(ctx context.Context, params []string) (Pending, error)
	Close() error
}

// Pending is an execution that advances one scheduling step per ExecuteTask.
type Pending interface {
	ExecuteTask() TaskState
	// Err returns the engine error once ExecuteTask reported Error.
	Err() error
	Result() (Result, error)
	Close() error
}

type Result interface {
	Columns() []Column
	// Fetch returns the next chunk, or nil once the result is exhausted.
	Fetch() (*Chunk, error)
	Close() error
}

type Catalog struct {
	ID        string
	Name      string
	Version   uint64
	Temporary bool
}

type TaskState int

const (
	TaskNotReady TaskState = iota
	TaskReady
	TaskFinished
	TaskError
	TaskBlocked
	TaskNoTasksAvailable
)

func (s TaskState) String() string {
	switch s {
	case TaskNotReady:
		return "not_ready"
	case TaskReady:
		return "ready"
	case TaskFinished:
		return "finished"
	case TaskError:
		return "error"
	case TaskBlocked:
		return "blocked"
	case TaskNoTasksAvailable:
		return "no_tasks_available"
	}
	return "unknown"
}

// IsResultReady reports whether stepping is over.
func (s TaskState) IsResultReady() bool {
	return s == TaskReady || s == TaskFinished || s == TaskError
}

// ShouldBackOff reports whether the engine has nothing runnable right now.
func (s TaskState) ShouldBackOff() bool {
	return s == TaskBlocked || s == TaskNoTasksAvailable
}
