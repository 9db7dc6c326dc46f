package grid

import (
	"fmt"
	"math"
	"sync"
	"time"

	"go.uber.org/multierr"
)

// Gates decide what a search result is trusted for. The map gate and the
// correction gate are checked independently.
type Gates struct {
	// MapErrorThreshold is the largest search error whose walls are merged.
	MapErrorThreshold float64 `yaml:"mapErrorThreshold" json:"mapErrorThreshold"`
	// CorrectionErrorThreshold is the largest search error that may move the pose.
	CorrectionErrorThreshold float64 `yaml:"correctionErrorThreshold" json:"correctionErrorThreshold"`
	// MinObservations is the smallest batch that is searched at all.
	MinObservations int `yaml:"minObservations" json:"minObservations"`
	// MinMapWalls is the smallest number of distinct snapped walls a result
	// needs before it is merged into the map.
	MinMapWalls int `yaml:"minMapWalls" json:"minMapWalls"`
}

// DefaultGates returns the thresholds the robot runs with
func DefaultGates() Gates {
	return Gates{
		MapErrorThreshold:        0.02,
		CorrectionErrorThreshold: 0.01,
		MinObservations:          2,
		MinMapWalls:              3,
	}
}

// Validate reports every problem with the gates
func (g Gates) Validate() error {
	var err error
	if g.MapErrorThreshold < 0 || math.IsNaN(g.MapErrorThreshold) {
		err = multierr.Append(err, fmt.Errorf("gates.mapErrorThreshold must be non-negative, got %v", g.MapErrorThreshold))
	}
	if g.CorrectionErrorThreshold < 0 || math.IsNaN(g.CorrectionErrorThreshold) {
		err = multierr.Append(err, fmt.Errorf("gates.correctionErrorThreshold must be non-negative, got %v", g.CorrectionErrorThreshold))
	}
	if g.MinObservations < 1 {
		err = multierr.Append(err, fmt.Errorf("gates.minObservations must be at least 1, got %d", g.MinObservations))
	}
	if g.MinMapWalls < 1 {
		err = multierr.Append(err, fmt.Errorf("gates.minMapWalls must be at least 1, got %d", g.MinMapWalls))
	}
	return err
}

// Outcome reports what one integrator cycle did
type Outcome struct {
	// Searched is false when the cycle was a no-op: no batch, an already
	// processed batch, or too few observations.
	Searched bool
	Stale    bool
	Result   SnapResult
	// NewWalls counts walls the map did not already hold.
	NewWalls      int
	MapUpdated    bool
	PoseCorrected bool
	// Robot is the robot pose after the cycle.
	Robot Pose
}

// Integrator merges camera batches into the wall map and the pose estimate.
type Integrator struct {
	searcher *Searcher
	offset   float64
	gates    Gates
	walls    *WallMap
	pose     *PoseEstimate

	mu           sync.Mutex
	lastBatch    time.Time
	lastSighting time.Time
	tracked      *Cell
}

// NewIntegrator wires an integrator to the shared map and pose estimate.
func NewIntegrator(searcher *Searcher, mountOffset float64, gates Gates, walls *WallMap, pose *PoseEstimate) *Integrator {
	return &Integrator{
		searcher: searcher,
		offset:   mountOffset,
		gates:    gates,
		walls:    walls,
		pose:     pose,
	}
}

// Update runs one localization cycle.
//
// A batch whose timestamp matches the last processed one is ignored. Batches
// below the observation minimum are consumed without searching. The sighting
// is optional and deduplicated by its own timestamp; it is only consumed when
// a search runs.
func (in *Integrator) Update(batch *Batch, sighting *Sighting) Outcome {
	if batch == nil {
		return Outcome{Robot: in.pose.Get()}
	}

	in.mu.Lock()
	defer in.mu.Unlock()

	if batch.Timestamp.Equal(in.lastBatch) {
		return Outcome{Stale: true, Robot: in.pose.Get()}
	}
	in.lastBatch = batch.Timestamp

	if len(batch.Walls) < in.gates.MinObservations {
		return Outcome{Robot: in.pose.Get()}
	}

	var tracked *RelativeWall
	if sighting != nil && !sighting.Timestamp.Equal(in.lastSighting) {
		in.lastSighting = sighting.Timestamp
		obj := sighting.Object
		tracked = &obj
	}

	camera := CameraPose(in.pose.Get(), in.offset)
	res := in.searcher.Snap(batch.Walls, camera, tracked)
	out := Outcome{Searched: true, Result: res}

	if res.Error <= in.gates.MapErrorThreshold && len(res.Walls) >= in.gates.MinMapWalls {
		out.MapUpdated = true
		out.NewWalls = in.walls.InsertAll(res.Walls)
		if res.Tracked != nil {
			c := *res.Tracked
			in.tracked = &c
		}
	}

	if res.Error <= in.gates.CorrectionErrorThreshold {
		robot := RobotPose(res.Pose, in.offset)
		robot.Heading = NormalizeTurn(robot.Heading)
		in.pose.Set(robot)
		out.PoseCorrected = true
	}

	out.Robot = in.pose.Get()
	return out
}

// TrackedCell returns the cell the tracked object was last mapped in
func (in *Integrator) TrackedCell() (Cell, bool) {
	in.mu.Lock()
	defer in.mu.Unlock()
	if in.tracked == nil {
		return Cell{}, false
	}
	return *in.tracked, true
}

// SetTrackedCell restores a previously persisted tracked cell
func (in *Integrator) SetTrackedCell(c *Cell) {
	in.mu.Lock()
	defer in.mu.Unlock()
	if c == nil {
		in.tracked = nil
		return
	}
	cp := *c
	in.tracked = &cp
}

// Reset forgets dedup timestamps and the tracked cell. The wall map and pose
// are owned by the caller and are left alone.
func (in *Integrator) Reset() {
	in.mu.Lock()
	defer in.mu.Unlock()
	in.lastBatch = time.Time{}
	in.lastSighting = time.Time{}
	in.tracked = nil
}
