package mock

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/juju/clock"
	"github.com/juju/errors"
	"github.com/rs/zerolog"
)

type mockCatalog struct {
	name      string
	pattern   string
	temporary bool
	every     int // ticks between changes
	offset    int
	attached  bool
}

// Generator drives catalog activity on a Database so the UI has something
// to show in demo mode.
type Generator struct {
	db       *Database
	clock    clock.Clock
	interval time.Duration
	logger   zerolog.Logger

	catalogs    []*mockCatalog
	connectAt   int
	tick        int
	connectedTo string
}

func NewGenerator(db *Database, clk clock.Clock, interval time.Duration, logger zerolog.Logger) *Generator {
	return &Generator{
		db:       db,
		clock:    clk,
		interval: interval,
		logger:   logger.With().Str("component", "mock-generator").Logger(),
		catalogs: []*mockCatalog{
			{name: "memory", pattern: "steady", every: 5},
			{name: "temp", pattern: "burst", temporary: true, every: 12},
			{name: "analytics", pattern: "churn", every: 20, offset: 7},
			{name: "scratch", pattern: "stall", every: 0},
		},
		connectAt: 10,
	}
}

// Start attaches the initial catalogs.
func (g *Generator) Start() {
	for _, c := range g.catalogs {
		if c.pattern == "churn" {
			continue
		}
		g.db.Attach(c.name, c.temporary)
		c.attached = true
	}
}

// Run ticks until ctx is cancelled.
func (g *Generator) Run(ctx context.Context) error {
	if g.interval <= 0 {
		return errors.NotValidf("generator interval %v", g.interval)
	}
	g.Start()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-g.clock.After(g.interval):
			if err := g.Step(); err != nil {
				return errors.Trace(err)
			}
		}
	}
}

// Step advances every catalog by one tick.
func (g *Generator) Step() error {
	g.tick++
	for _, c := range g.catalogs {
		if err := g.advance(c); err != nil {
			return errors.Annotatef(err, "catalog %s", c.name)
		}
	}
	if g.tick == g.connectAt && g.connectedTo == "" {
		g.connectedTo = uuid.NewString()
		g.db.SetConnected(g.connectedTo)
		g.logger.Info().Msg("mock hosted session connected")
	}
	return nil
}

func (g *Generator) advance(c *mockCatalog) error {
	switch c.pattern {
	case "steady":
		if g.tick%c.every == 0 {
			return g.db.Bump(c.name)
		}
	case "burst":
		// Three changes in a row, then quiet.
		if g.tick%c.every < 3 {
			return g.db.Bump(c.name)
		}
	case "churn":
		if (g.tick+c.offset)%c.every != 0 {
			return nil
		}
		if c.attached {
			g.db.Detach(c.name)
		} else {
			g.db.Attach(c.name, c.temporary)
		}
		c.attached = !c.attached
		g.logger.Debug().Str("catalog", c.name).Bool("attached", c.attached).Msg("catalog churn")
	case "stall":
	default:
		return errors.NotSupportedf("pattern %q", c.pattern)
	}
	return nil
}

// Token is the hosted-session token once the generator has connected.
func (g *Generator) Token() string {
	return g.connectedTo
}
