package grid

import (
	"cmp"
	"fmt"
	"math"
	"slices"

	"go.uber.org/multierr"
	"gonum.org/v1/gonum/floats"
)

// SearchConfig bounds the pose-correction search. Deltas are sampled on an
// evenly spaced grid with both endpoints included.
type SearchConfig struct {
	// MaxAngleCorrection is the heading bound in turns.
	MaxAngleCorrection float64 `yaml:"maxAngleCorrection" json:"maxAngleCorrection"`
	NumAngles          int     `yaml:"numAngles" json:"numAngles"`
	// MaxOffsetCorrection is the x and y bound in meters.
	MaxOffsetCorrection float64 `yaml:"maxOffsetCorrection" json:"maxOffsetCorrection"`
	NumOffsets          int     `yaml:"numOffsets" json:"numOffsets"`
}

// DefaultSearchConfig returns the bounds the robot runs with: ±0.01 turns and
// ±0.01 cells in 33 steps each.
func DefaultSearchConfig(g Grid) SearchConfig {
	return SearchConfig{
		MaxAngleCorrection:  0.01,
		NumAngles:           33,
		MaxOffsetCorrection: 0.01 * g.Size,
		NumOffsets:          33,
	}
}

// Validate reports every problem with the search bounds. All returned errors
// wrap ErrInvalidSearch.
func (sc SearchConfig) Validate() error {
	var err error
	if sc.NumAngles < 2 {
		err = multierr.Append(err, fmt.Errorf("%w: numAngles must be at least 2, got %d", ErrInvalidSearch, sc.NumAngles))
	}
	if sc.NumOffsets < 2 {
		err = multierr.Append(err, fmt.Errorf("%w: numOffsets must be at least 2, got %d", ErrInvalidSearch, sc.NumOffsets))
	}
	if !validBound(sc.MaxAngleCorrection) {
		err = multierr.Append(err, fmt.Errorf("%w: maxAngleCorrection must be non-negative and finite, got %v", ErrInvalidSearch, sc.MaxAngleCorrection))
	}
	if !validBound(sc.MaxOffsetCorrection) {
		err = multierr.Append(err, fmt.Errorf("%w: maxOffsetCorrection must be non-negative and finite, got %v", ErrInvalidSearch, sc.MaxOffsetCorrection))
	}
	return err
}

func validBound(v float64) bool {
	return v >= 0 && !math.IsInf(v, 0)
}

// Candidates is the number of pose deltas one search evaluates
func (sc SearchConfig) Candidates() int {
	return sc.NumAngles * sc.NumOffsets * sc.NumOffsets
}

// Searcher runs the bounded exhaustive pose-correction search. It holds only
// immutable precomputed sample arrays and is safe for concurrent use.
type Searcher struct {
	grid    Grid
	cfg     SearchConfig
	angles  []float64
	offsets []float64
}

// NewSearcher validates the bounds once and precomputes the delta samples.
func NewSearcher(g Grid, cfg SearchConfig) (*Searcher, error) {
	if err := g.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidSearch, err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &Searcher{
		grid:    g,
		cfg:     cfg,
		angles:  floats.Span(make([]float64, cfg.NumAngles), -cfg.MaxAngleCorrection, cfg.MaxAngleCorrection),
		offsets: floats.Span(make([]float64, cfg.NumOffsets), -cfg.MaxOffsetCorrection, cfg.MaxOffsetCorrection),
	}, nil
}

// Config returns the bounds the searcher was built with
func (s *Searcher) Config() SearchConfig {
	return s.cfg
}

// Cost is the summed quantizer residual of every observation placed from the
// given camera pose.
func (s *Searcher) Cost(observations []RelativeWall, camera Pose) float64 {
	var total float64
	for _, o := range observations {
		_, e := s.grid.Snap(ToAbsolute(o, camera))
		total += e
	}
	return total
}

// Snap finds the camera pose correction that best aligns the observations to
// the grid.
//
// Every (heading, x, y) delta is tried with the heading outermost and y
// innermost. A candidate replaces the best only when strictly cheaper, so the
// first minimum in that order wins. With no observations the camera pose is
// kept unchanged at zero cost. The observations are then re-quantized at
// the winning pose to produce the wall list and, if tracked is non-nil, the
// cell containing the tracked object.
func (s *Searcher) Snap(observations []RelativeWall, camera Pose, tracked *RelativeWall) SnapResult {
	obs := sortedObservations(observations)

	best := Pose{}
	bestErr := 0.0
	if len(obs) > 0 {
		best, bestErr = s.search(obs, camera)
	}

	final := camera.Add(best)
	res := SnapResult{
		Pose:       final,
		Error:      bestErr,
		Walls:      make([]Wall, 0, len(obs)),
		Candidates: s.cfg.Candidates(),
	}

	seen := make(map[Wall]struct{}, len(obs))
	for _, o := range obs {
		w, _ := s.grid.Snap(ToAbsolute(o, final))
		if _, dup := seen[w]; dup {
			continue
		}
		seen[w] = struct{}{}
		res.Walls = append(res.Walls, w)
	}

	if tracked != nil {
		c := s.grid.CellOf(ToAbsolute(*tracked, final))
		res.Tracked = &c
	}

	return res
}

// search returns the cheapest pose delta and its cost.
func (s *Searcher) search(obs []RelativeWall, camera Pose) (Pose, float64) {
	best := Pose{}
	bestErr := math.Inf(1)
	for _, da := range s.angles {
		for _, dx := range s.offsets {
			for _, dy := range s.offsets {
				delta := Pose{X: dx, Y: dy, Heading: da}
				if e := s.Cost(obs, camera.Add(delta)); e < bestErr {
					bestErr = e
					best = delta
				}
			}
		}
	}
	return best, bestErr
}

// sortedObservations returns a copy ordered by distance, then bearing.
func sortedObservations(observations []RelativeWall) []RelativeWall {
	obs := slices.Clone(observations)
	slices.SortStableFunc(obs, func(a, b RelativeWall) int {
		if c := cmp.Compare(a.Distance, b.Distance); c != 0 {
			return c
		}
		return cmp.Compare(a.Bearing, b.Bearing)
	})
	return obs
}
