package grid

import (
	"sync"
	"time"
)

// PoseEstimate is the robot's shared pose estimate. Dead reckoning and the
// integrator both write it; motion control reads it. The (x, y, heading)
// triple is always read and written as a unit.
type PoseEstimate struct {
	mu      sync.RWMutex
	pose    Pose
	updated time.Time
}

// NewPoseEstimate creates an estimate starting at p
func NewPoseEstimate(p Pose) *PoseEstimate {
	return &PoseEstimate{pose: p, updated: time.Now()}
}

// Get returns the current pose
func (pe *PoseEstimate) Get() Pose {
	pe.mu.RLock()
	defer pe.mu.RUnlock()
	return pe.pose
}

// Set overwrites the pose
func (pe *PoseEstimate) Set(p Pose) {
	pe.mu.Lock()
	defer pe.mu.Unlock()
	pe.pose = p
	pe.updated = time.Now()
}

// Update applies fn to the current pose atomically and returns the result.
func (pe *PoseEstimate) Update(fn func(Pose) Pose) Pose {
	pe.mu.Lock()
	defer pe.mu.Unlock()
	pe.pose = fn(pe.pose)
	pe.updated = time.Now()
	return pe.pose
}

// UpdatedAt returns when the pose was last written
func (pe *PoseEstimate) UpdatedAt() time.Time {
	pe.mu.RLock()
	defer pe.mu.RUnlock()
	return pe.updated
}
