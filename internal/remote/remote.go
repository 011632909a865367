// Package remote models the optional hosted-session capability: whether an
// external service session is connected, and the bearer token for it.
package remote

//go:generate go run go.uber.org/mock/mockgen -package mocks -destination mocks/capability_mock.go github.com/virusdefender/duckdb-ui/internal/remote Capability

import (
	"context"
	"os"
	"strings"

	"github.com/juju/errors"

	"github.com/virusdefender/duckdb-ui/internal/config"
	"github.com/virusdefender/duckdb-ui/internal/engine"
)

type Status int

const (
	// NotLoaded means the capability is absent altogether.
	NotLoaded Status = iota
	NotConnected
	Connected
)

func (s Status) String() string {
	switch s {
	case NotLoaded:
		return "not_loaded"
	case NotConnected:
		return "not_connected"
	case Connected:
		return "connected"
	}
	return "unknown"
}

type ConnectivityChecker interface {
	Status(ctx context.Context) (Status, error)
}

type TokenProvider interface {
	// Token returns the bearer token when Connected. For any other status
	// the token is empty and err is nil.
	Token(ctx context.Context) (string, Status, error)
}

type Capability interface {
	ConnectivityChecker
	TokenProvider
}

// Nop is the capability of a server with no hosted session support.
type Nop struct{}

func (Nop) Status(context.Context) (Status, error) { return NotLoaded, nil }

func (Nop) Token(context.Context) (string, Status, error) { return "", NotLoaded, nil }

// Env reads the token from an environment variable.
type Env struct {
	Name string
}

func (e Env) Token(context.Context) (string, Status, error) {
	v, ok := config.LookupEnv(e.Name)
	if !ok {
		return "", NotLoaded, nil
	}
	if v = strings.TrimSpace(v); v == "" {
		return "", NotConnected, nil
	}
	return v, Connected, nil
}

func (e Env) Status(ctx context.Context) (Status, error) {
	_, status, err := e.Token(ctx)
	return status, err
}

// File reads the token from a file that some other process writes once the
// session is established.
type File struct {
	Path string
}

func (f File) Token(context.Context) (string, Status, error) {
	data, err := os.ReadFile(f.Path)
	if os.IsNotExist(err) {
		return "", NotConnected, nil
	}
	if err != nil {
		return "", NotConnected, errors.Annotatef(err, "reading token file")
	}
	token := strings.TrimSpace(string(data))
	if token == "" {
		return "", NotConnected, nil
	}
	return token, Connected, nil
}

func (f File) Status(ctx context.Context) (Status, error) {
	_, status, err := f.Token(ctx)
	return status, err
}

// Resolve picks the capability once at startup: the database's own when it
// has one, then a configured token file, then the token environment
// variable, and finally Nop.
func Resolve(db engine.Database, cfg config.RemoteConfig) Capability {
	if c, ok := db.(Capability); ok {
		return c
	}
	if cfg.TokenFile != "" {
		return File{Path: cfg.TokenFile}
	}
	if cfg.TokenEnv != "" {
		if _, ok := config.LookupEnv(cfg.TokenEnv); ok {
			return Env{Name: cfg.TokenEnv}
		}
	}
	return Nop{}
}
