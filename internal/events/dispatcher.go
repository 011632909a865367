package events

import (
	"context"
	"sync"
	"time"

	"github.com/juju/clock"
	"github.com/juju/errors"

	"github.com/virusdefender/duckdb-ui/internal/metrics"
)

// ErrTooManyWaiters is returned by Wait when the waiter cap is reached.
const ErrTooManyWaiters = errors.ConstError("too many event waiters")

type Outcome int

const (
	Delivered Outcome = iota
	Heartbeat
	Closed
)

func (o Outcome) String() string {
	switch o {
	case Delivered:
		return "delivered"
	case Heartbeat:
		return "heartbeat"
	case Closed:
		return "closed"
	}
	return "unknown"
}

// Delivery is the result of one Wait.
type Delivery struct {
	Outcome  Outcome
	Sequence uint64
	Payload  []byte
}

type Config struct {
	Clock       clock.Clock
	WaitTimeout time.Duration
	MaxWaiters  int
	Metrics     *metrics.Metrics
}

func (c Config) Validate() error {
	if c.Clock == nil {
		return errors.NotValidf("missing Clock")
	}
	if c.WaitTimeout <= 0 {
		return errors.NotValidf("non-positive WaitTimeout")
	}
	if c.MaxWaiters <= 0 {
		return errors.NotValidf("non-positive MaxWaiters")
	}
	return nil
}

// Dispatcher is a single-slot broadcast. Only the latest payload is kept;
// a waiter woken after several publishes sees the last one.
type Dispatcher struct {
	cfg Config

	mu      sync.Mutex
	closed  bool
	seq     uint64
	payload []byte
	waiters int
	// changed is closed and replaced on every Publish and Close, waking
	// every goroutine blocked in Wait.
	changed chan struct{}
}

func NewDispatcher(cfg Config) (*Dispatcher, error) {
	if err := cfg.Validate(); err != nil {
		return nil, errors.Trace(err)
	}
	return &Dispatcher{
		cfg:     cfg,
		changed: make(chan struct{}),
	}, nil
}

// Publish stores payload as the current event and wakes all waiters.
// It reports false, and does nothing, once the dispatcher is closed.
func (d *Dispatcher) Publish(payload []byte) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return false
	}
	d.seq++
	d.payload = append([]byte(nil), payload...)
	d.wakeLocked()
	return true
}

func (d *Dispatcher) PublishEvent(t EventType, value string) {
	if d.Publish(Format(t, value)) {
		d.cfg.Metrics.EventPublished(string(t))
	}
}

func (d *Dispatcher) PublishCatalogChanged() {
	d.PublishEvent(CatalogChanged, "")
}

func (d *Dispatcher) PublishConnected(token string) {
	d.PublishEvent(Connected, token)
}

// Close releases every waiter with Closed. Repeated calls are no-ops.
func (d *Dispatcher) Close() {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return
	}
	d.closed = true
	d.seq++
	d.wakeLocked()
}

func (d *Dispatcher) wakeLocked() {
	close(d.changed)
	d.changed = make(chan struct{})
}

// Wait blocks until a new event is published, the dispatcher is closed, or
// the wait timeout elapses. A cancelled ctx ends the wait like a timeout.
func (d *Dispatcher) Wait(ctx context.Context) (Delivery, error) {
	d.mu.Lock()
	if d.closed {
		defer d.mu.Unlock()
		d.cfg.Metrics.EventWaitDone(Closed.String())
		return Delivery{Outcome: Closed, Sequence: d.seq}, nil
	}
	if d.waiters >= d.cfg.MaxWaiters {
		d.mu.Unlock()
		d.cfg.Metrics.EventWaitDone("rejected")
		return Delivery{}, ErrTooManyWaiters
	}
	d.waiters++
	d.cfg.Metrics.SetEventWaiters(d.waiters)
	entry := d.seq
	d.mu.Unlock()

	timer := d.cfg.Clock.NewTimer(d.cfg.WaitTimeout)
	defer timer.Stop()

	d.mu.Lock()
	defer func() {
		d.waiters--
		d.cfg.Metrics.SetEventWaiters(d.waiters)
		d.mu.Unlock()
	}()

	for {
		if result, done := d.resultLocked(entry); done {
			d.cfg.Metrics.EventWaitDone(result.Outcome.String())
			return result, nil
		}

		changed := d.changed
		d.mu.Unlock()
		expired := false
		select {
		case <-changed:
		case <-timer.Chan():
			expired = true
		case <-ctx.Done():
			expired = true
		}
		d.mu.Lock()

		if expired {
			result, done := d.resultLocked(entry)
			if !done {
				result = Delivery{Outcome: Heartbeat, Sequence: d.seq}
			}
			d.cfg.Metrics.EventWaitDone(result.Outcome.String())
			return result, nil
		}
	}
}

func (d *Dispatcher) resultLocked(entry uint64) (Delivery, bool) {
	if d.closed {
		return Delivery{Outcome: Closed, Sequence: d.seq}, true
	}
	if d.seq > entry {
		return Delivery{Outcome: Delivered, Sequence: d.seq, Payload: d.payload}, true
	}
	return Delivery{}, false
}

// Sequence returns the sequence number of the current event.
func (d *Dispatcher) Sequence() uint64 {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.seq
}

func (d *Dispatcher) Waiters() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.waiters
}

func (d *Dispatcher) IsClosed() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.closed
}
