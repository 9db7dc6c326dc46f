package grid

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
)

// LoopStats summarizes the control loop since start
type LoopStats struct {
	Cycles      uint64    `json:"cycles"`
	Searches    uint64    `json:"searches"`
	MapUpdates  uint64    `json:"mapUpdates"`
	Corrections uint64    `json:"corrections"`
	LastError   float64   `json:"lastError"`
	LastSearch  time.Time `json:"lastSearch"`
}

// Loop runs the integrator at a fixed cadence against the latest camera frame
// and publishes whatever changed.
type Loop struct {
	integrator *Integrator
	feed       *Feed
	walls      *WallMap
	pose       *PoseEstimate
	clock      clock.Clock
	period     time.Duration

	publisher *Publisher
	statePath string
	onOutcome func(Outcome)

	mu          sync.RWMutex
	stats       LoopStats
	lastTracked *Cell
}

// NewLoop creates a control loop. A nil clock uses the wall clock.
func NewLoop(in *Integrator, feed *Feed, walls *WallMap, pose *PoseEstimate, clk clock.Clock, period time.Duration) *Loop {
	if clk == nil {
		clk = clock.New()
	}
	return &Loop{
		integrator: in,
		feed:       feed,
		walls:      walls,
		pose:       pose,
		clock:      clk,
		period:     period,
	}
}

// SetPublisher enables MQTT publishing of corrections and map growth
func (l *Loop) SetPublisher(p *Publisher) {
	l.publisher = p
}

// SetStatePath enables saving the state whenever the map grows
func (l *Loop) SetStatePath(path string) {
	l.statePath = path
}

// OnOutcome registers a callback invoked after every cycle
func (l *Loop) OnOutcome(fn func(Outcome)) {
	l.onOutcome = fn
}

// Run ticks until ctx is cancelled
func (l *Loop) Run(ctx context.Context) error {
	ticker := l.clock.Ticker(l.period)
	defer ticker.Stop()

	Logf("[LOCALIZE] control loop running every %v", l.period)
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			l.Step()
		}
	}
}

// Step runs one cycle against the feed's latest frame
func (l *Loop) Step() Outcome {
	batch, sighting := l.feed.Latest()
	out := l.integrator.Update(batch, sighting)

	l.mu.Lock()
	l.stats.Cycles++
	if out.Searched {
		l.stats.Searches++
		l.stats.LastError = out.Result.Error
		l.stats.LastSearch = l.clock.Now()
	}
	if out.MapUpdated {
		l.stats.MapUpdates++
	}
	if out.PoseCorrected {
		l.stats.Corrections++
	}
	l.mu.Unlock()

	if out.Searched {
		l.report(out)
	}
	if l.onOutcome != nil {
		l.onOutcome(out)
	}
	return out
}

func (l *Loop) report(out Outcome) {
	now := l.clock.Now()

	if out.PoseCorrected {
		l.publish("pose", func(p *Publisher) error {
			return p.PublishPose(out.Robot, out.Result.Error, now)
		})
	}

	if out.NewWalls > 0 {
		Logf("[LOCALIZE] map +%d walls (%d total), error %.4f", out.NewWalls, l.walls.Len(), out.Result.Error)
		l.publish("walls", func(p *Publisher) error {
			return p.PublishWalls(l.walls.Snapshot(), now)
		})
		if l.statePath != "" {
			if err := SaveState(CaptureState(l.walls, l.pose, l.integrator), l.statePath); err != nil {
				Logf("[LOCALIZE] warning: failed to save state: %v", err)
			}
		}
	}

	if c, ok := l.integrator.TrackedCell(); ok && l.trackedChanged(c) {
		Logf("[LOCALIZE] tracked object in cell (%d, %d)", c.X, c.Y)
		l.publish("tracked", func(p *Publisher) error {
			return p.PublishTracked(c, now)
		})
	}
}

func (l *Loop) trackedChanged(c Cell) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.lastTracked != nil && *l.lastTracked == c {
		return false
	}
	l.lastTracked = &c
	return true
}

func (l *Loop) publish(what string, fn func(*Publisher) error) {
	if l.publisher == nil {
		return
	}
	if err := fn(l.publisher); err != nil && !errors.Is(err, ErrNotConnected) {
		Logf("[MQTT] error publishing %s: %v", what, err)
	}
}

// Stats returns a copy of the loop counters
func (l *Loop) Stats() LoopStats {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.stats
}
