package grid

import (
	"math"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/planar"
)

// VisibilityConfig tunes the simulated camera's line-of-sight model
type VisibilityConfig struct {
	// FieldOfView is the half-angle of the view cone in turns.
	FieldOfView float64
	// SampleStep is the angular resolution used to measure occlusion, in turns.
	SampleStep float64
	// MinCoverage is the unoccluded angular width, in turns, a wall needs to
	// count as visible.
	MinCoverage float64
}

// DefaultVisibilityConfig is a 90 degree cone sampled every 0.001 turns.
func DefaultVisibilityConfig() VisibilityConfig {
	return VisibilityConfig{
		FieldOfView: 0.125,
		SampleStep:  0.001,
		MinCoverage: 0.02,
	}
}

// wallView is the angular span of a wall as seen from a camera
type wallView struct {
	distance float64
	minAngle float64
	maxAngle float64
}

// viewOf measures a wall from the camera. Distance is to the wall midpoint and
// the span is in camera-relative turns with minAngle <= maxAngle.
func (g Grid) viewOf(w Wall, camera Pose) wallView {
	seg := g.Segment(w)
	start, end := seg[0], seg[1]
	eye := orb.Point{camera.X, camera.Y}

	a1 := math.Atan2(start.Y()-eye.Y(), start.X()-eye.X()) / (2 * math.Pi)
	a2 := math.Atan2(end.Y()-eye.Y(), end.X()-eye.X()) / (2 * math.Pi)
	diff := a2 - a1
	if diff > 0.5 {
		diff--
	}
	if diff < -0.5 {
		diff++
	}

	rel1 := NormalizeTurn(a1 - camera.Heading)
	rel2 := rel1 + diff

	return wallView{
		distance: planar.Distance(eye, g.RailPoint(w)),
		minAngle: math.Min(rel1, rel2),
		maxAngle: math.Max(rel1, rel2),
	}
}

// FindVisible returns the walls a camera at the given pose can see.
//
// A wall is a candidate when its angular span overlaps the open view cone.
// Its span is then sampled and every sample strictly inside the span of a
// strictly closer wall is discarded. The wall is visible when its span width
// scaled by the surviving fraction of samples exceeds cfg.MinCoverage.
func (m *WallMap) FindVisible(g Grid, camera Pose, cfg VisibilityConfig) WallSet {
	if !(cfg.SampleStep > 0) {
		cfg.SampleStep = DefaultVisibilityConfig().SampleStep
	}
	walls := m.Snapshot()

	views := make(map[Wall]wallView, len(walls))
	for w := range walls {
		views[w] = g.viewOf(w, camera)
	}

	visible := make(WallSet)
	for w, view := range views {
		if !(view.maxAngle > -cfg.FieldOfView && view.minAngle < cfg.FieldOfView) {
			continue
		}

		samples := make([]float64, 0, int((view.maxAngle-view.minAngle)/cfg.SampleStep)+1)
		for a := view.minAngle; a <= view.maxAngle; a += cfg.SampleStep {
			samples = append(samples, a)
		}
		total := len(samples)

		for other, ov := range views {
			if other == w || ov.distance >= view.distance {
				continue
			}
			kept := samples[:0]
			for _, a := range samples {
				if a > ov.minAngle && a < ov.maxAngle {
					continue
				}
				kept = append(kept, a)
			}
			samples = kept
		}

		covered := (view.maxAngle - view.minAngle) * float64(len(samples)) / float64(total)
		if covered > cfg.MinCoverage {
			visible[w] = struct{}{}
		}
	}

	return visible
}
