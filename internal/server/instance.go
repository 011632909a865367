// Package server is the UI server: the HTTP surface, the event dispatcher,
// and the catalog watcher, started and stopped together.
package server

import (
	"context"
	"net"
	"net/http"
	"strconv"
	"sync"
	"sync/atomic"
	"time"
	"weak"

	"github.com/juju/clock"
	"github.com/juju/errors"
	"github.com/rs/zerolog"

	"github.com/virusdefender/duckdb-ui/internal/config"
	"github.com/virusdefender/duckdb-ui/internal/engine"
	"github.com/virusdefender/duckdb-ui/internal/events"
	"github.com/virusdefender/duckdb-ui/internal/executor"
	"github.com/virusdefender/duckdb-ui/internal/metrics"
	"github.com/virusdefender/duckdb-ui/internal/remote"
	"github.com/virusdefender/duckdb-ui/internal/session"
	"github.com/virusdefender/duckdb-ui/internal/watcher"
)

// Resource is the data the server works on. The server only keeps a weak
// reference: once the owner drops its *Resource, requests report that the
// database was invalidated.
type Resource struct {
	DB engine.Database
}

type Options struct {
	Config  *config.Config
	Logger  zerolog.Logger
	Clock   clock.Clock
	Metrics *metrics.Metrics
	// Remote overrides the hosted-session capability otherwise resolved
	// from the database and Config.Remote.
	Remote remote.Capability
}

// binding ties the connections and capability to the resource they were
// made for. It is replaced as a whole on SwapResource.
type binding struct {
	resource   weak.Pointer[Resource]
	registry   *session.Registry
	capability remote.Capability
}

func (b *binding) database() engine.Database {
	if b == nil {
		return nil
	}
	res := b.resource.Value()
	if res == nil {
		return nil
	}
	return res.DB
}

// Instance is one UI server. Start, Stop, and SwapResource are serialized.
type Instance struct {
	cfg     *config.Config
	logger  zerolog.Logger
	clock   clock.Clock
	metrics *metrics.Metrics
	remote  remote.Capability

	mu         sync.Mutex
	running    bool
	dispatcher *events.Dispatcher
	watcher    *watcher.Watcher
	httpServer *http.Server
	listener   net.Listener
	serveDone  chan struct{}
	localURL   string

	// binding is read by handlers without taking mu.
	binding atomic.Pointer[binding]
}

func New(opts Options) (*Instance, error) {
	if opts.Config == nil {
		return nil, errors.NotValidf("missing Config")
	}
	if opts.Clock == nil {
		opts.Clock = clock.WallClock
	}
	return &Instance{
		cfg:     opts.Config,
		logger:  opts.Logger.With().Str("component", "server").Logger(),
		clock:   opts.Clock,
		metrics: opts.Metrics,
		remote:  opts.Remote,
	}, nil
}

// Start binds the listener, then starts the watcher and the HTTP loop. It
// reports alreadyStarted instead of failing when the server is running.
func (i *Instance) Start(res *Resource) (alreadyStarted bool, err error) {
	if res == nil || res.DB == nil {
		return false, errors.NotValidf("nil resource")
	}

	i.mu.Lock()
	defer i.mu.Unlock()
	if i.running {
		return true, nil
	}

	ln, err := net.Listen("tcp", net.JoinHostPort(i.cfg.Server.Host, strconv.Itoa(i.cfg.Server.Port)))
	if err != nil {
		return false, i.describeBindError(err)
	}
	port := ln.Addr().(*net.TCPAddr).Port

	dispatcher, err := events.NewDispatcher(events.Config{
		Clock:       i.clock,
		WaitTimeout: i.cfg.Events.WaitTimeout,
		MaxWaiters:  i.cfg.Events.MaxWaiters,
		Metrics:     i.metrics,
	})
	if err != nil {
		ln.Close()
		return false, errors.Trace(err)
	}
	exec, err := executor.New(executor.Config{
		Clock:        i.clock,
		StepInterval: i.cfg.Executor.StepInterval,
		Metrics:      i.metrics,
		Logger:       i.logger,
	})
	if err != nil {
		ln.Close()
		return false, errors.Trace(err)
	}

	i.dispatcher = dispatcher
	i.localURL = "http://localhost:" + strconv.Itoa(port)
	i.binding.Store(i.bind(res))
	if err := i.startWatcher(); err != nil {
		i.binding.Store(nil)
		ln.Close()
		return false, errors.Trace(err)
	}

	h := &handlers{
		inst:       i,
		dispatcher: dispatcher,
		executor:   exec,
		localURL:   i.localURL,
		logger:     i.logger,
	}
	i.listener = ln
	i.httpServer = &http.Server{
		Handler:           i.routes(h),
		ReadHeaderTimeout: 10 * time.Second,
	}
	i.serveDone = make(chan struct{})
	go i.serve(i.httpServer, ln, i.serveDone)

	i.running = true
	i.logger.Info().Str("url", i.localURL).Msg("UI server started")
	return false, nil
}

func (i *Instance) serve(srv *http.Server, ln net.Listener, done chan struct{}) {
	defer close(done)
	if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
		i.logger.Error().Err(err).Msg("HTTP server stopped")
	}
}

func (i *Instance) bind(res *Resource) *binding {
	capability := i.remote
	if capability == nil {
		if _, ok := res.DB.(remote.Capability); ok {
			// Going through the weak reference keeps the capability from
			// pinning the database.
			capability = &databaseCapability{inst: i}
		} else {
			capability = remote.Resolve(res.DB, i.cfg.Remote)
		}
	}
	return &binding{
		resource:   weak.Make(res),
		registry:   session.NewRegistry(res.DB, i.metrics),
		capability: capability,
	}
}

func (i *Instance) startWatcher() error {
	b := i.binding.Load()
	w, err := watcher.New(watcher.Config{
		Clock:      i.clock,
		Interval:   i.cfg.Watcher.PollInterval,
		Resolve:    b.database,
		Publisher:  i.dispatcher,
		Capability: b.capability,
		Metrics:    i.metrics,
		Logger:     i.logger,
	})
	if err != nil {
		return errors.Trace(err)
	}
	i.watcher = w
	return nil
}

// stopWatcher joins the watcher. Its own failures were logged when they
// happened.
func (i *Instance) stopWatcher() {
	if i.watcher == nil {
		return
	}
	_ = i.watcher.Stop()
	i.watcher = nil
}

// Stop releases waiters, shuts the listener down, and joins the watcher. It
// reports false when the server was not running.
func (i *Instance) Stop() bool {
	i.mu.Lock()
	defer i.mu.Unlock()
	if !i.running {
		return false
	}

	i.dispatcher.Close()

	ctx, cancel := context.WithTimeout(context.Background(), i.cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := i.httpServer.Shutdown(ctx); err != nil {
		i.logger.Warn().Err(err).Msg("HTTP shutdown incomplete, closing")
		i.httpServer.Close()
	}
	<-i.serveDone

	i.stopWatcher()

	if b := i.binding.Swap(nil); b != nil {
		if err := b.registry.Close(); err != nil {
			i.logger.Warn().Err(err).Msg("closing connections")
		}
	}
	i.running = false
	i.httpServer = nil
	i.listener = nil
	i.logger.Info().Msg("UI server stopped")
	return true
}

// SwapResource rebinds a running server to res. The watcher is stopped
// before the rebind and restarted after, so it never sees both.
func (i *Instance) SwapResource(res *Resource) error {
	if res == nil || res.DB == nil {
		return errors.NotValidf("nil resource")
	}

	i.mu.Lock()
	defer i.mu.Unlock()
	if !i.running {
		return errors.New("server not running")
	}
	old := i.binding.Load()
	if old != nil && old.resource.Value() == res {
		return nil
	}

	i.stopWatcher()
	i.binding.Store(i.bind(res))
	if old != nil {
		if err := old.registry.Close(); err != nil {
			i.logger.Warn().Err(err).Msg("closing connections of replaced database")
		}
	}
	i.logger.Info().Msg("database replaced")
	return errors.Trace(i.startWatcher())
}

// SetPollInterval changes the catalog poll interval. A running watcher is
// restarted with the new interval; zero disables it.
func (i *Instance) SetPollInterval(d time.Duration) error {
	if d < 0 {
		return errors.NotValidf("poll interval %v", d)
	}
	i.mu.Lock()
	defer i.mu.Unlock()
	if i.cfg.Watcher.PollInterval == d {
		return nil
	}
	i.cfg.Watcher.PollInterval = d
	if !i.running {
		return nil
	}
	i.stopWatcher()
	i.logger.Info().Dur("interval", d).Msg("poll interval changed")
	return errors.Trace(i.startWatcher())
}

func (i *Instance) Running() bool {
	i.mu.Lock()
	defer i.mu.Unlock()
	return i.running
}

// LocalURL is the origin browsers must present, or "" when stopped.
func (i *Instance) LocalURL() string {
	i.mu.Lock()
	defer i.mu.Unlock()
	if !i.running {
		return ""
	}
	return i.localURL
}

// Addr is the bound listener address, or "" when stopped.
func (i *Instance) Addr() string {
	i.mu.Lock()
	defer i.mu.Unlock()
	if i.listener == nil {
		return ""
	}
	return i.listener.Addr().String()
}

// Watcher exposes the running watcher, or nil.
func (i *Instance) Watcher() *watcher.Watcher {
	i.mu.Lock()
	defer i.mu.Unlock()
	return i.watcher
}

// Dispatcher exposes the event dispatcher of the current run, or nil.
func (i *Instance) Dispatcher() *events.Dispatcher {
	i.mu.Lock()
	defer i.mu.Unlock()
	if !i.running {
		return nil
	}
	return i.dispatcher
}

func (i *Instance) describeBindError(err error) error {
	if i.cfg.Server.Port == 0 {
		return errors.Annotate(err, "binding UI server")
	}
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	owner, lookupErr := PortOwner(ctx, i.cfg.Server.Port)
	if lookupErr != nil || owner == nil {
		return errors.Annotatef(err, "binding UI server to port %d", i.cfg.Server.Port)
	}
	return errors.Annotatef(err, "port %d is in use by %s (pid %d)", i.cfg.Server.Port, owner.Name, owner.PID)
}

// databaseCapability forwards to the bound database when it carries its own
// hosted-session support.
type databaseCapability struct {
	inst *Instance
}

func (c *databaseCapability) current() remote.Capability {
	if capability, ok := c.inst.binding.Load().database().(remote.Capability); ok {
		return capability
	}
	return remote.Nop{}
}

func (c *databaseCapability) Status(ctx context.Context) (remote.Status, error) {
	return c.current().Status(ctx)
}

func (c *databaseCapability) Token(ctx context.Context) (string, remote.Status, error) {
	return c.current().Token(ctx)
}
