package grid

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// State is the persisted localization state: the map built so far, the last
// robot pose and the tracked object's cell.
type State struct {
	Pose    Pose      `json:"pose"`
	Walls   []Wall    `json:"walls"`
	Tracked *Cell     `json:"tracked,omitempty"`
	SavedAt time.Time `json:"savedAt"`
}

// CaptureState snapshots the shared map, pose and tracked cell
func CaptureState(walls *WallMap, pose *PoseEstimate, in *Integrator) State {
	st := State{
		Pose:    pose.Get(),
		Walls:   walls.Snapshot().Sorted(),
		SavedAt: time.Now(),
	}
	if c, ok := in.TrackedCell(); ok {
		st.Tracked = &c
	}
	return st
}

// Restore loads a persisted state into the shared map, pose and integrator.
func (st *State) Restore(walls *WallMap, pose *PoseEstimate, in *Integrator) {
	walls.Reset()
	walls.InsertAll(st.Walls)
	pose.Set(st.Pose)
	in.SetTrackedCell(st.Tracked)
}

// SaveState writes a State to disk as JSON.
func SaveState(st State, path string) error {
	data, err := json.MarshalIndent(st, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal state: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create state directory: %w", err)
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("write state: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return fmt.Errorf("replace state: %w", err)
	}
	return nil
}

// LoadState reads a State from a JSON file on disk.
func LoadState(path string) (*State, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read state: %w", err)
	}
	var st State
	if err := json.Unmarshal(data, &st); err != nil {
		return nil, fmt.Errorf("unmarshal state: %w", err)
	}
	return &st, nil
}
