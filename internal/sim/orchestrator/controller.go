package orchestrator

import (
	"context"
	"sync/atomic"

	"savegrid.ai/internal/persistence/snapshot"
	"savegrid.ai/internal/sim/ledger"
)

// Controller holds the current session and swaps it on reset. Callers that captured the
// old session keep a consistent (stale) object; new calls see the new one.
type Controller struct {
	cfg Config
	cur atomic.Pointer[Session]
}

func NewController(cfg Config) *Controller {
	return &Controller{cfg: cfg}
}

// Start builds a fresh session from the configured scenario and makes it current.
func (c *Controller) Start() (*Session, error) {
	s, err := New(c.cfg)
	if err != nil {
		return nil, err
	}
	prev := c.cur.Swap(s)
	if c.cfg.Logger != nil {
		if prev != nil {
			c.cfg.Logger.Printf("session %s replaced by %s (scenario=%s)", prev.ID(), s.ID(), c.cfg.Scenario.Name)
		} else {
			c.cfg.Logger.Printf("session %s started (scenario=%s seed=%d)", s.ID(), c.cfg.Scenario.Name, c.cfg.Tuning.Seed)
		}
	}
	return s, nil
}

// Reset discards the current session and starts over from the scenario.
func (c *Controller) Reset() (*Session, error) { return c.Start() }

// Resume makes a session restored from snap current.
func (c *Controller) Resume(snap snapshot.SnapshotV1) (*Session, error) {
	s, err := Restore(c.cfg, snap)
	if err != nil {
		return nil, err
	}
	c.cur.Store(s)
	if c.cfg.Logger != nil {
		c.cfg.Logger.Printf("session %s resumed at tick %d", s.ID(), s.tick)
	}
	return s, nil
}

func (c *Controller) Session() (*Session, error) {
	s := c.cur.Load()
	if s == nil {
		return nil, ErrNotStarted
	}
	return s, nil
}

func (c *Controller) Advance(ctx context.Context) (StepReport, error) {
	s, err := c.Session()
	if err != nil {
		return StepReport{}, err
	}
	return s.Advance(ctx)
}

func (c *Controller) Run(ctx context.Context, n int) ([]StepReport, error) {
	s, err := c.Session()
	if err != nil {
		return nil, err
	}
	return s.Run(ctx, n)
}

func (c *Controller) ApplyOverride(o ledger.Override) error {
	s, err := c.Session()
	if err != nil {
		return err
	}
	return s.ApplyOverride(o)
}

func (c *Controller) View() (*View, error) {
	s, err := c.Session()
	if err != nil {
		return nil, err
	}
	return s.View(), nil
}
