package grid

import (
	"fmt"
	"strings"
	"time"
)

// Axis is the direction a grid wall runs along.
type Axis uint8

const (
	// AlongX is the horizontal edge at the bottom of a cell.
	AlongX Axis = iota
	// AlongY is the vertical edge at the left of a cell.
	AlongY
)

func (a Axis) String() string {
	switch a {
	case AlongX:
		return "x"
	case AlongY:
		return "y"
	default:
		return fmt.Sprintf("axis(%d)", uint8(a))
	}
}

// MarshalText encodes the axis as "x" or "y" for JSON and YAML
func (a Axis) MarshalText() ([]byte, error) {
	if a != AlongX && a != AlongY {
		return nil, fmt.Errorf("invalid axis %d", uint8(a))
	}
	return []byte(a.String()), nil
}

// UnmarshalText accepts "x" or "y" (case-insensitive)
func (a *Axis) UnmarshalText(text []byte) error {
	switch strings.ToLower(string(text)) {
	case "x":
		*a = AlongX
	case "y":
		*a = AlongY
	default:
		return fmt.Errorf("invalid axis %q, want x or y", string(text))
	}
	return nil
}

// Wall identifies a grid-aligned wall segment by the cell it borders and the
// axis it runs along. Walls are comparable and are the dedup key of every set.
type Wall struct {
	X    int  `json:"x" yaml:"x"`
	Y    int  `json:"y" yaml:"y"`
	Axis Axis `json:"axis" yaml:"axis"`
}

func (w Wall) String() string {
	return fmt.Sprintf("Wall(%d, %d, %s)", w.X, w.Y, w.Axis)
}

// Cell is a unit grid cell. It records where the tracked object was last seen
// and is never stored in a WallMap.
type Cell struct {
	X int `json:"x"`
	Y int `json:"y"`
}

// Pose is a position in meters and a heading in turns (0 = +X, counter-clockwise).
type Pose struct {
	X       float64 `json:"x" yaml:"x"`
	Y       float64 `json:"y" yaml:"y"`
	Heading float64 `json:"heading" yaml:"heading"`
}

// Add returns the pose offset by a correction delta
func (p Pose) Add(d Pose) Pose {
	return Pose{X: p.X + d.X, Y: p.Y + d.Y, Heading: p.Heading + d.Heading}
}

// RelativeWall is one camera detection: a distance in meters and a bearing in
// turns relative to the camera heading.
type RelativeWall struct {
	Distance float64 `json:"distance"`
	Bearing  float64 `json:"bearing"`
}

// Batch is one camera frame worth of wall detections.
type Batch struct {
	Timestamp time.Time      `json:"timestamp"`
	Walls     []RelativeWall `json:"walls"`
}

// Sighting is one detection of the tracked object, deduplicated independently
// of wall batches.
type Sighting struct {
	Timestamp time.Time    `json:"timestamp"`
	Object    RelativeWall `json:"object"`
}

// SnapResult is the output of one pose-correction search
type SnapResult struct {
	// Pose is the corrected camera pose.
	Pose Pose `json:"pose"`
	// Error is the summed quantizer residual at Pose.
	Error float64 `json:"error"`
	// Walls holds the snapped walls, deduplicated, in observation order.
	Walls      []Wall `json:"walls"`
	Tracked    *Cell  `json:"tracked,omitempty"`
	Candidates int    `json:"candidates"`
}

// Config represents the full configuration file
type Config struct {
	Grid       Grid             `yaml:"grid" json:"grid"`
	Camera     CameraConfig     `yaml:"camera" json:"camera"`
	Search     SearchConfig     `yaml:"search" json:"search"`
	Gates      Gates            `yaml:"gates" json:"gates"`
	Loop       LoopConfig       `yaml:"loop" json:"loop"`
	MQTT       MQTTConfig       `yaml:"mqtt" json:"mqtt"`
	HTTP       HTTPConfig       `yaml:"http" json:"http"`
	Simulation SimulationConfig `yaml:"simulation" json:"simulation"`
}

// CameraConfig describes the forward camera
type CameraConfig struct {
	// MountOffset is how far ahead of the robot origin the camera sits, in meters.
	MountOffset float64 `yaml:"mountOffset" json:"mountOffset"`
	// FieldOfView is the half-angle of the view cone, in turns.
	FieldOfView float64 `yaml:"fieldOfView" json:"fieldOfView"`
	MaxNoise    float64 `yaml:"maxNoise" json:"maxNoise"`
}

// LoopConfig sets the localization control-loop cadence
type LoopConfig struct {
	PeriodMs int `yaml:"periodMs" json:"periodMs"`
}

// Period returns the loop period as a duration
func (lc LoopConfig) Period() time.Duration {
	return time.Duration(lc.PeriodMs) * time.Millisecond
}

// MQTTConfig holds MQTT connection settings
type MQTTConfig struct {
	Broker        string `yaml:"broker" json:"broker"`
	ClientID      string `yaml:"clientId" json:"clientId"`
	Username      string `yaml:"username,omitempty" json:"username,omitempty"`
	Password      string `yaml:"password,omitempty" json:"password,omitempty"`
	WallsTopic    string `yaml:"wallsTopic" json:"wallsTopic"`
	TrackedTopic  string `yaml:"trackedTopic,omitempty" json:"trackedTopic,omitempty"`
	PublishPrefix string `yaml:"publishPrefix" json:"publishPrefix"`
}

// HTTPConfig holds HTTP server settings
type HTTPConfig struct {
	Port int `yaml:"port" json:"port"`
}

// SimulationConfig drives the synthetic camera used by --simulate
type SimulationConfig struct {
	// Start is the true robot pose. The estimate starts at Start + InitialDrift.
	Start        Pose `yaml:"start" json:"start"`
	InitialDrift Pose `yaml:"initialDrift" json:"initialDrift"`
	// TurnRate spins both poses in place, in turns per second.
	TurnRate      float64 `yaml:"turnRate" json:"turnRate"`
	FramePeriodMs int     `yaml:"framePeriodMs" json:"framePeriodMs"`
	// Seed for the camera noise; 0 seeds from the clock.
	Seed uint64 `yaml:"seed" json:"seed"`
	// Walls is the ground-truth maze. MazeFile, a GeoJSON export, is used
	// when Walls is empty, and TestingMaze when both are.
	Walls    []Wall `yaml:"walls,omitempty" json:"walls,omitempty"`
	MazeFile string `yaml:"mazeFile,omitempty" json:"mazeFile,omitempty"`
}
