// Package watcher polls the engine's catalogs and publishes an event when
// any of them changes, appears, or disappears.
package watcher

import (
	"context"
	"time"

	"github.com/juju/clock"
	"github.com/juju/errors"
	"github.com/rs/zerolog"
	"gopkg.in/tomb.v2"

	"github.com/virusdefender/duckdb-ui/internal/engine"
	"github.com/virusdefender/duckdb-ui/internal/metrics"
	"github.com/virusdefender/duckdb-ui/internal/remote"
)

// errFinished ends the loop without an error.
const errFinished = errors.ConstError("watcher finished")

// passTimeout bounds one pass. Stopping the watcher does not cancel a pass
// in progress; it only cuts the sleep after it short.
const passTimeout = 30 * time.Second

// Publisher receives the watcher's findings.
type Publisher interface {
	PublishCatalogChanged()
	PublishConnected(token string)
}

type Config struct {
	Clock clock.Clock
	// Interval between passes. Zero disables the watcher.
	Interval time.Duration
	// Resolve returns the database to watch, or nil once it is gone.
	Resolve   func() engine.Database
	Publisher Publisher
	// Capability is checked on every pass until it first reports Connected.
	// Nil skips the check.
	Capability remote.Capability
	Metrics    *metrics.Metrics
	Logger     zerolog.Logger
}

func (c Config) Validate() error {
	if c.Clock == nil {
		return errors.NotValidf("missing Clock")
	}
	if c.Interval < 0 {
		return errors.NotValidf("negative Interval")
	}
	if c.Resolve == nil {
		return errors.NotValidf("missing Resolve")
	}
	if c.Publisher == nil {
		return errors.NotValidf("missing Publisher")
	}
	return nil
}

type Watcher struct {
	tomb tomb.Tomb
	cfg  Config

	logger    zerolog.Logger
	versions  VersionMap
	connected bool
}

// New starts a watcher. Stop it with Kill and Wait, or Stop.
func New(cfg Config) (*Watcher, error) {
	if err := cfg.Validate(); err != nil {
		return nil, errors.Trace(err)
	}
	w := &Watcher{
		cfg:      cfg,
		logger:   cfg.Logger.With().Str("component", "catalog-watcher").Logger(),
		versions: make(VersionMap),
	}
	w.tomb.Go(w.loop)
	return w, nil
}

func (w *Watcher) Kill() {
	w.tomb.Kill(nil)
}

// Wait returns the error that ended the watcher, or nil if it was killed,
// disabled, or lost its database.
func (w *Watcher) Wait() error {
	return w.tomb.Wait()
}

func (w *Watcher) Stop() error {
	w.Kill()
	return w.Wait()
}

// Dead is closed once the loop has exited.
func (w *Watcher) Dead() <-chan struct{} {
	return w.tomb.Dead()
}

func (w *Watcher) loop() error {
	for {
		err := w.pass()
		switch {
		case errors.Is(err, errFinished):
			return nil
		case err != nil:
			select {
			case <-w.tomb.Dying():
				return tomb.ErrDying
			default:
			}
			w.cfg.Metrics.WatcherError()
			w.logger.Error().Err(err).Msg("catalog watcher stopped")
			return errors.Trace(err)
		}

		select {
		case <-w.tomb.Dying():
			return tomb.ErrDying
		case <-w.cfg.Clock.After(w.cfg.Interval):
		}
	}
}

func (w *Watcher) pass() error {
	db := w.cfg.Resolve()
	if db == nil {
		w.logger.Debug().Msg("database gone, catalog watcher exiting")
		return errFinished
	}
	if w.cfg.Interval == 0 {
		w.logger.Debug().Msg("catalog polling disabled")
		return errFinished
	}
	w.cfg.Metrics.WatcherPass()

	ctx, cancel := context.WithTimeout(context.Background(), passTimeout)
	defer cancel()
	catalogs, err := db.Catalogs(ctx)
	if err != nil {
		return errors.Annotate(err, "listing catalogs")
	}
	if w.versions.Update(catalogs) {
		w.logger.Debug().Int("catalogs", len(w.versions)).Msg("catalog change detected")
		w.cfg.Publisher.PublishCatalogChanged()
	}

	if w.connected || w.cfg.Capability == nil {
		return nil
	}
	return errors.Trace(w.checkConnected(ctx))
}

func (w *Watcher) checkConnected(ctx context.Context) error {
	status, err := w.cfg.Capability.Status(ctx)
	if err != nil {
		return errors.Annotate(err, "checking hosted session")
	}
	if status != remote.Connected {
		return nil
	}
	token, _, err := w.cfg.Capability.Token(ctx)
	if err != nil {
		return errors.Annotate(err, "fetching hosted session token")
	}
	w.connected = true
	w.logger.Info().Msg("hosted session connected")
	w.cfg.Publisher.PublishConnected(token)
	return nil
}

// VersionMap holds the last observed version of each persistent catalog,
// keyed by catalog ID.
type VersionMap map[string]uint64

// Update replaces m's contents with the non-temporary catalogs in observed
// and reports whether anything was added, changed, or removed.
func (m VersionMap) Update(observed []engine.Catalog) bool {
	changed := false
	seen := make(map[string]struct{}, len(observed))
	for _, c := range observed {
		if c.Temporary {
			continue
		}
		seen[c.ID] = struct{}{}
		if v, ok := m[c.ID]; !ok || v != c.Version {
			m[c.ID] = c.Version
			changed = true
		}
	}
	for id := range m {
		if _, ok := seen[id]; !ok {
			delete(m, id)
			changed = true
		}
	}
	return changed
}
