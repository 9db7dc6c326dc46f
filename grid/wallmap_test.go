package grid

import (
	"sync"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
)

func TestWallMap_InsertIsIdempotent(t *testing.T) {
	m := NewWallMap()
	w := Wall{1, 2, AlongX}

	assert.True(t, m.Insert(w))
	assert.False(t, m.Insert(w))
	assert.Equal(t, 1, m.Len())
	assert.True(t, m.Contains(w))
	assert.False(t, m.Contains(Wall{1, 2, AlongY}))
}

func TestWallMap_InsertAll(t *testing.T) {
	m := NewWallMap(Wall{0, 0, AlongX})
	added := m.InsertAll([]Wall{{0, 0, AlongX}, {0, 0, AlongY}, {0, 0, AlongY}, {3, -1, AlongX}})
	assert.Equal(t, 2, added)
	assert.Equal(t, 3, m.Len())
	assert.Equal(t, 0, m.InsertAll(nil))
}

func TestWallMap_SnapshotIsolation(t *testing.T) {
	m := NewWallMap(Wall{0, 0, AlongX})
	snap := m.Snapshot()

	m.Insert(Wall{5, 5, AlongY})
	assert.Len(t, snap, 1)

	snap[Wall{9, 9, AlongX}] = struct{}{}
	assert.False(t, m.Contains(Wall{9, 9, AlongX}))
}

func TestWallMap_Reset(t *testing.T) {
	m := NewWallMap(Wall{0, 0, AlongX}, Wall{1, 0, AlongY})
	m.Reset()
	assert.Equal(t, 0, m.Len())
	assert.True(t, m.Insert(Wall{0, 0, AlongX}))
}

func TestWallSet_Sorted(t *testing.T) {
	s := NewWallSet(Wall{2, 1, AlongY}, Wall{-1, 0, AlongX}, Wall{3, -2, AlongX}, Wall{0, 1, AlongY}, Wall{1, 0, AlongX})
	want := []Wall{
		{3, -2, AlongX}, {-1, 0, AlongX}, {1, 0, AlongX},
		{0, 1, AlongY}, {2, 1, AlongY},
	}
	if diff := cmp.Diff(want, s.Sorted()); diff != "" {
		t.Errorf("Sorted mismatch (-want +got):\n%s", diff)
	}
}

func TestTestingMaze(t *testing.T) {
	maze := TestingMaze()
	assert.Equal(t, 75, maze.Len())

	// closed boundary at ±4 cells
	for i := -4; i < 4; i++ {
		assert.True(t, maze.Contains(Wall{i, -4, AlongX}))
		assert.True(t, maze.Contains(Wall{i, 4, AlongX}))
		assert.True(t, maze.Contains(Wall{-4, i, AlongY}))
		assert.True(t, maze.Contains(Wall{4, i, AlongY}))
	}

	// each call builds an independent map
	maze.Insert(Wall{100, 100, AlongX})
	assert.False(t, TestingMaze().Contains(Wall{100, 100, AlongX}))
}

func TestWallMap_ConcurrentInsert(t *testing.T) {
	m := NewWallMap()
	var wg sync.WaitGroup
	var mu sync.Mutex
	added := 0

	for g := 0; g < 8; g++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			n := 0
			for i := 0; i < 100; i++ {
				if m.Insert(Wall{i, 0, AlongX}) {
					n++
				}
				_ = m.Snapshot()
			}
			mu.Lock()
			added += n
			mu.Unlock()
		}()
	}
	wg.Wait()

	assert.Equal(t, 100, m.Len())
	assert.Equal(t, 100, added, "each wall must be reported new exactly once")
}
