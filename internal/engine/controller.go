package engine

import (
	"context"
	"errors"
	"log"
	"sync/atomic"

	"github.com/kirides/daedalus-index/internal/symbols"
)

// State is the controller's rebuild state.
type State int32

const (
	StateIdle State = iota
	StateBuilding
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateBuilding:
		return "building"
	default:
		return "unknown"
	}
}

// Rebuilder is the part of Engine the controller drives.
type Rebuilder interface {
	Build(ctx context.Context) (*symbols.Snapshot, error)
	Publish(s *symbols.Snapshot)
	Published() bool
}

// Controller runs rebuilds on a single worker. Triggers arriving while a
// build runs coalesce into one follow-up build.
type Controller struct {
	rb    Rebuilder
	queue chan struct{}
	state atomic.Int32

	builds     atomic.Uint64
	superseded atomic.Uint64

	// OnBuild, when set before Run, is called after every finished build.
	OnBuild func(snap *symbols.Snapshot, published bool)
}

// NewController creates a Controller for rb.
func NewController(rb Rebuilder) *Controller {
	return &Controller{
		rb:    rb,
		queue: make(chan struct{}, 1),
	}
}

// Trigger requests a rebuild. It never blocks; it returns false when a
// rebuild is already pending.
func (c *Controller) Trigger() bool {
	select {
	case c.queue <- struct{}{}:
		return true
	default:
		return false
	}
}

// State returns the current state.
func (c *Controller) State() State {
	return State(c.state.Load())
}

// Builds returns the number of finished builds, published or not.
func (c *Controller) Builds() uint64 {
	return c.builds.Load()
}

// Superseded returns the number of builds discarded because another was pending.
func (c *Controller) Superseded() uint64 {
	return c.superseded.Load()
}

// Run triggers the initial build and processes triggers until ctx is done.
func (c *Controller) Run(ctx context.Context) error {
	c.Trigger()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-c.queue:
			c.runOnce(ctx)
		}
	}
}

func (c *Controller) runOnce(ctx context.Context) {
	c.state.Store(int32(StateBuilding))
	defer c.state.Store(int32(StateIdle))

	snap, err := c.rb.Build(ctx)
	if err != nil {
		if !errors.Is(err, context.Canceled) {
			log.Printf("[engine] rebuild failed: %v", err)
		}
		return
	}
	c.builds.Add(1)

	// A pending trigger means files changed during this build.
	published := false
	if len(c.queue) == 0 || !c.rb.Published() {
		c.rb.Publish(snap)
		published = true
	} else {
		c.superseded.Add(1)
		log.Printf("[engine] rebuild superseded by a pending trigger, not published")
	}

	if c.OnBuild != nil {
		c.OnBuild(snap, published)
	}
}
