package server

import (
	"encoding/base64"
	"fmt"
	"io"
	"net/http"
	"runtime"
	"strconv"

	"github.com/juju/errors"
	"github.com/rs/zerolog"

	"github.com/virusdefender/duckdb-ui/internal/events"
	"github.com/virusdefender/duckdb-ui/internal/executor"
	"github.com/virusdefender/duckdb-ui/internal/remote"
	"github.com/virusdefender/duckdb-ui/internal/sqltoken"
	"github.com/virusdefender/duckdb-ui/internal/wire"
)

// ExtensionVersion is reported by /info. Set at build time with -ldflags.
var ExtensionVersion = "dev"

const (
	headerConnectionName = "X-DuckDB-UI-Connection-Name"
	headerDatabaseName   = "X-DuckDB-UI-Database-Name"
	headerParamCount     = "X-DuckDB-UI-Parameter-Count"
	headerParamValue     = "X-DuckDB-UI-Parameter-Value-%d"
	headerChunkLimit     = "X-DuckDB-UI-Result-Chunk-Limit"
	headerDescription    = "X-DuckDB-UI-Request-Description"
)

const (
	msgInvalidated = "Database was invalidated, UI needs to be restarted"
	maxSQLBytes    = 16 << 20
)

type handlers struct {
	inst       *Instance
	dispatcher *events.Dispatcher
	executor   *executor.Executor
	localURL   string
	logger     zerolog.Logger
}

func (h *handlers) handleInfo(w http.ResponseWriter, r *http.Request) {
	version := ""
	if db := h.inst.binding.Load().database(); db != nil {
		version = db.Version()
	}
	w.Header().Set("Access-Control-Allow-Origin", "*")
	w.Header().Set("X-DuckDB-Version", version)
	w.Header().Set("X-DuckDB-Platform", runtime.GOOS+"_"+runtime.GOARCH)
	w.Header().Set("X-DuckDB-UI-Extension-Version", ExtensionVersion)
	w.WriteHeader(http.StatusOK)
}

func (h *handlers) handleEvents(w http.ResponseWriter, r *http.Request) {
	d, err := h.dispatcher.Wait(r.Context())
	if errors.Is(err, events.ErrTooManyWaiters) {
		http.Error(w, "Too many event listeners", http.StatusTooManyRequests)
		return
	}
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	switch d.Outcome {
	case events.Delivered:
		w.Write(d.Payload)
	case events.Heartbeat:
		w.Write(events.HeartbeatFrame)
	case events.Closed:
		w.WriteHeader(http.StatusOK)
	}
}

func (h *handlers) handleToken(w http.ResponseWriter, r *http.Request) {
	b := h.inst.binding.Load()
	if b.database() == nil {
		http.Error(w, msgInvalidated, http.StatusInternalServerError)
		return
	}

	token, status, err := b.capability.Token(r.Context())
	if err != nil {
		h.logger.Warn().Err(err).Msg("token lookup failed")
		http.Error(w, "Could not get token: "+err.Error(), http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	if status != remote.Connected {
		w.WriteHeader(http.StatusOK)
		return
	}
	io.WriteString(w, token)
}

func (h *handlers) handleRun(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/octet-stream")

	req, err := parseRunRequest(r)
	if err != nil {
		w.Write(wire.Error(executor.Message(err)))
		return
	}

	b := h.inst.binding.Load()
	if b.database() == nil {
		w.Write(wire.Error(msgInvalidated))
		return
	}

	name := r.Header.Get(headerConnectionName)
	handle, err := b.registry.GetOrCreate(r.Context(), name)
	if err != nil {
		w.Write(wire.Error(executor.Message(err)))
		return
	}
	if handle.Anonymous() {
		defer handle.Close()
	}

	h.logger.Debug().
		Str("connection", name).
		Str("catalog", req.Catalog).
		Int("params", len(req.Params)).
		Str("description", req.Description).
		Msg("run")
	w.Write(h.executor.Run(r.Context(), handle, req))
}

func parseRunRequest(r *http.Request) (executor.Request, error) {
	var req executor.Request

	body, err := io.ReadAll(io.LimitReader(r.Body, maxSQLBytes))
	if err != nil {
		return req, errors.Annotate(err, "reading query")
	}
	req.SQL = string(body)
	req.Description = r.Header.Get(headerDescription)

	if v := r.Header.Get(headerDatabaseName); v != "" {
		if req.Catalog, err = decodeHeader(headerDatabaseName, v); err != nil {
			return req, err
		}
	}

	if v := r.Header.Get(headerParamCount); v != "" {
		count, err := strconv.Atoi(v)
		if err != nil || count < 0 {
			return req, errors.NotValidf("%s %q", headerParamCount, v)
		}
		req.Params = make([]string, count)
		for i := range req.Params {
			name := fmt.Sprintf(headerParamValue, i)
			if req.Params[i], err = decodeHeader(name, r.Header.Get(name)); err != nil {
				return req, err
			}
		}
	}

	if v := r.Header.Get(headerChunkLimit); v != "" {
		limit, err := strconv.Atoi(v)
		if err != nil || limit < 0 {
			return req, errors.NotValidf("%s %q", headerChunkLimit, v)
		}
		req.ChunkLimit = limit
	}
	return req, nil
}

func decodeHeader(name, value string) (string, error) {
	raw, err := base64.StdEncoding.DecodeString(value)
	if err != nil {
		return "", errors.NotValidf("%s: base64 value", name)
	}
	return string(raw), nil
}

func (h *handlers) handleInterrupt(w http.ResponseWriter, r *http.Request) {
	b := h.inst.binding.Load()
	if b.database() == nil {
		http.Error(w, msgInvalidated, http.StatusNotFound)
		return
	}
	name := r.Header.Get(headerConnectionName)
	handle := b.registry.Get(name)
	if handle == nil {
		http.Error(w, "Connection not found", http.StatusNotFound)
		return
	}
	handle.Interrupt()
	h.logger.Debug().Str("connection", name).Msg("interrupt")

	w.Header().Set("Content-Type", "application/octet-stream")
	w.Write(wire.Empty())
}

func (h *handlers) handleTokenize(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxSQLBytes))
	if err != nil {
		http.Error(w, "reading query", http.StatusBadRequest)
		return
	}
	tokens := sqltoken.Tokenize(string(body))
	offsets := make([]int, len(tokens))
	types := make([]uint8, len(tokens))
	for i, t := range tokens {
		offsets[i] = t.Offset
		types[i] = uint8(t.Type)
	}
	w.Header().Set("Content-Type", "application/octet-stream")
	w.Write(wire.Tokenize(offsets, types))
}
