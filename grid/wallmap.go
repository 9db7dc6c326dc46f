package grid

import (
	"cmp"
	"slices"
	"sync"
)

// WallSet is an unordered set of walls
type WallSet map[Wall]struct{}

// NewWallSet builds a set from a list of walls
func NewWallSet(walls ...Wall) WallSet {
	s := make(WallSet, len(walls))
	for _, w := range walls {
		s[w] = struct{}{}
	}
	return s
}

// Contains reports whether w is in the set
func (s WallSet) Contains(w Wall) bool {
	_, ok := s[w]
	return ok
}

// Sorted returns the walls ordered by axis, then y, then x.
func (s WallSet) Sorted() []Wall {
	out := make([]Wall, 0, len(s))
	for w := range s {
		out = append(out, w)
	}
	slices.SortFunc(out, compareWalls)
	return out
}

func compareWalls(a, b Wall) int {
	if c := cmp.Compare(a.Axis, b.Axis); c != 0 {
		return c
	}
	if c := cmp.Compare(a.Y, b.Y); c != 0 {
		return c
	}
	return cmp.Compare(a.X, b.X)
}

// WallMap is a concurrent, insert-only set of walls. It backs both the map the
// robot builds from observations and the ground-truth maze the simulator uses.
type WallMap struct {
	mu    sync.RWMutex
	walls WallSet
}

// NewWallMap creates a map holding the given walls
func NewWallMap(walls ...Wall) *WallMap {
	return &WallMap{walls: NewWallSet(walls...)}
}

// Insert adds a wall and reports whether it was new. Inserting a wall that is
// already present leaves the map unchanged.
func (m *WallMap) Insert(w Wall) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.walls[w]; ok {
		return false
	}
	m.walls[w] = struct{}{}
	return true
}

// InsertAll adds every wall under one lock and returns how many were new.
func (m *WallMap) InsertAll(walls []Wall) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	added := 0
	for _, w := range walls {
		if _, ok := m.walls[w]; ok {
			continue
		}
		m.walls[w] = struct{}{}
		added++
	}
	return added
}

// Contains reports whether w has been mapped
func (m *WallMap) Contains(w Wall) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, ok := m.walls[w]
	return ok
}

// Len returns the number of mapped walls
func (m *WallMap) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.walls)
}

// Snapshot returns a copy of the current walls. The copy is safe to iterate
// while other goroutines keep inserting.
func (m *WallMap) Snapshot() WallSet {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make(WallSet, len(m.walls))
	for w := range m.walls {
		out[w] = struct{}{}
	}
	return out
}

// Reset empties the map for a new mission
func (m *WallMap) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.walls = make(WallSet)
}

// TestingMaze returns the 8x8 ground-truth maze, bounded by walls at ±4 cells.
func TestingMaze() *WallMap {
	m := NewWallMap()

	for i := -4; i < 4; i++ {
		m.Insert(Wall{X: i, Y: -4, Axis: AlongX})
		m.Insert(Wall{X: i, Y: 4, Axis: AlongX})
		m.Insert(Wall{X: -4, Y: i, Axis: AlongY})
		m.Insert(Wall{X: 4, Y: i, Axis: AlongY})
	}

	m.InsertAll([]Wall{
		{0, 3, AlongY}, {4, 3, AlongY},
		{-3, 3, AlongX}, {-2, 3, AlongX}, {1, 3, AlongX}, {2, 3, AlongX},
		{-1, 2, AlongY}, {3, 2, AlongY},
		{-4, 2, AlongX}, {-3, 2, AlongX}, {-1, 2, AlongX}, {0, 2, AlongX}, {1, 2, AlongX},
		{-2, 1, AlongY}, {2, 1, AlongY}, {3, 1, AlongY},
		{-2, 1, AlongX}, {0, 1, AlongX}, {2, 1, AlongX},
		{-3, 0, AlongY}, {-1, 0, AlongY},
		{-2, 0, AlongX}, {0, 0, AlongX}, {1, 0, AlongX},
		{-2, -1, AlongY}, {1, -1, AlongY}, {3, -1, AlongY},
		{-1, -1, AlongX}, {0, -1, AlongX},
		{-3, -2, AlongY}, {-2, -2, AlongY}, {-1, -2, AlongY}, {2, -2, AlongY}, {3, -2, AlongY},
		{0, -2, AlongX}, {1, -2, AlongX},
		{-3, -3, AlongY}, {-2, -3, AlongY}, {-1, -3, AlongY}, {0, -3, AlongY},
		{-3, -3, AlongX}, {2, -3, AlongX}, {3, -3, AlongX},
		{1, -4, AlongY},
	})

	return m
}
