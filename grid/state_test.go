package grid

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSaveLoadState(t *testing.T) {
	f := newIntegratorFixture(t, Pose{X: 0.4, Y: -0.1, Heading: 0.2}, DefaultGates())
	f.walls.InsertAll([]Wall{{0, 0, AlongX}, {2, -1, AlongY}})
	f.in.SetTrackedCell(&Cell{1, 1})

	path := filepath.Join(t.TempDir(), "nested", "state.json")
	require.NoError(t, SaveState(CaptureState(f.walls, f.pose, f.in), path))

	_, err := os.Stat(path + ".tmp")
	assert.True(t, os.IsNotExist(err), "temp file should be renamed away")

	st, err := LoadState(path)
	require.NoError(t, err)
	assert.Equal(t, Pose{X: 0.4, Y: -0.1, Heading: 0.2}, st.Pose)
	assert.Equal(t, []Wall{{0, 0, AlongX}, {2, -1, AlongY}}, st.Walls)
	require.NotNil(t, st.Tracked)
	assert.Equal(t, Cell{1, 1}, *st.Tracked)
	assert.False(t, st.SavedAt.IsZero())
}

func TestStateRestore(t *testing.T) {
	st := &State{
		Pose:    Pose{X: 1, Y: 2, Heading: -0.25},
		Walls:   []Wall{{3, 3, AlongY}},
		Tracked: &Cell{-2, 0},
	}

	f := newIntegratorFixture(t, Pose{}, DefaultGates())
	f.walls.Insert(Wall{9, 9, AlongX})
	st.Restore(f.walls, f.pose, f.in)

	assert.Equal(t, 1, f.walls.Len())
	assert.True(t, f.walls.Contains(Wall{3, 3, AlongY}))
	assert.Equal(t, st.Pose, f.pose.Get())
	c, ok := f.in.TrackedCell()
	require.True(t, ok)
	assert.Equal(t, Cell{-2, 0}, c)

	// restoring a state without a tracked cell clears it
	(&State{}).Restore(f.walls, f.pose, f.in)
	_, ok = f.in.TrackedCell()
	assert.False(t, ok)
}

func TestLoadState_Errors(t *testing.T) {
	_, err := LoadState(filepath.Join(t.TempDir(), "missing.json"))
	assert.True(t, errors.Is(err, os.ErrNotExist))

	bad := filepath.Join(t.TempDir(), "bad.json")
	require.NoError(t, os.WriteFile(bad, []byte("{not json"), 0o644))
	_, err = LoadState(bad)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unmarshal state")
}
