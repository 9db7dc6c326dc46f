package grid

import (
	"fmt"
	"math"

	"github.com/paulmach/orb"
)

// DefaultGridSize is the maze cell side length in meters.
const DefaultGridSize = 0.3

// Grid maps between continuous world coordinates (meters) and grid cells and
// walls. Cell (gx, gy) has its origin at (gx*Size, gy*Size).
type Grid struct {
	Size float64 `yaml:"size" json:"size"`
}

// Validate checks that the cell size is usable
func (g Grid) Validate() error {
	if !(g.Size > 0) || math.IsInf(g.Size, 0) {
		return fmt.Errorf("grid.size must be positive and finite, got %v", g.Size)
	}
	return nil
}

// CellOf returns the cell containing a world point
func (g Grid) CellOf(p orb.Point) Cell {
	return Cell{
		X: int(math.Floor(p.X() / g.Size)),
		Y: int(math.Floor(p.Y() / g.Size)),
	}
}

// Origin returns the world position of a cell's lower-left corner
func (g Grid) Origin(c Cell) orb.Point {
	return orb.Point{float64(c.X) * g.Size, float64(c.Y) * g.Size}
}

// RailPoint returns the midpoint of a wall, which is where the quantizer places
// its rail for that wall.
func (g Grid) RailPoint(w Wall) orb.Point {
	p := g.Origin(Cell{X: w.X, Y: w.Y})
	if w.Axis == AlongX {
		p[0] += 0.5 * g.Size
	} else {
		p[1] += 0.5 * g.Size
	}
	return p
}

// Segment returns the world-frame endpoints of a wall
func (g Grid) Segment(w Wall) orb.LineString {
	start := g.Origin(Cell{X: w.X, Y: w.Y})
	end := start
	if w.Axis == AlongX {
		end[0] += g.Size
	} else {
		end[1] += g.Size
	}
	return orb.LineString{start, end}
}

// NormalizeTurn wraps an angle in turns into (-0.5, 0.5].
func NormalizeTurn(t float64) float64 {
	return t - math.Ceil(t-0.5)
}

// TurnsToRadians converts a heading or bearing in turns to radians
func TurnsToRadians(t float64) float64 {
	return t * 2 * math.Pi
}

// CameraPose returns the camera pose for a robot pose, with the camera mounted
// offset meters ahead of the robot origin along its heading.
func CameraPose(robot Pose, offset float64) Pose {
	rad := TurnsToRadians(robot.Heading)
	return Pose{
		X:       robot.X + offset*math.Cos(rad),
		Y:       robot.Y + offset*math.Sin(rad),
		Heading: robot.Heading,
	}
}

// RobotPose is the inverse of CameraPose.
func RobotPose(camera Pose, offset float64) Pose {
	rad := TurnsToRadians(camera.Heading)
	return Pose{
		X:       camera.X - offset*math.Cos(rad),
		Y:       camera.Y - offset*math.Sin(rad),
		Heading: camera.Heading,
	}
}
