package grid

import (
	"context"
	"errors"
	"math"
	"sync/atomic"
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/paulmach/orb"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

var exactCamera = CameraConfig{MountOffset: testMountOffset, FieldOfView: 0.125}

type mockSink struct {
	mock.Mock
	batches atomic.Int32
}

func (m *mockSink) PutBatch(b Batch) {
	m.batches.Add(1)
	m.Called(b)
}

func (m *mockSink) PutSighting(s Sighting) { m.Called(s) }

func TestSimulatorFrame_Exact(t *testing.T) {
	maze := TestingMaze()
	sim := NewSimulator(testGrid, maze, exactCamera, cellCenter, 1)

	ts := time.Unix(10, 0)
	b, s := sim.Frame(ts)
	assert.Nil(t, s)
	assert.Equal(t, ts, b.Timestamp)

	camera := CameraPose(cellCenter, testMountOffset)
	visible := maze.FindVisible(testGrid, camera, DefaultVisibilityConfig()).Sorted()
	require.Len(t, b.Walls, len(visible))
	for i, w := range visible {
		assert.Equal(t, testGrid.FromGrid(w, camera), b.Walls[i])
	}
}

func TestSimulatorFrame_SeededNoiseIsReproducible(t *testing.T) {
	cam := exactCamera
	cam.MaxNoise = 0.05
	a := NewSimulator(testGrid, TestingMaze(), cam, cellCenter, 99)
	b := NewSimulator(testGrid, TestingMaze(), cam, cellCenter, 99)

	ts := time.Unix(1, 0)
	fa, _ := a.Frame(ts)
	fb, _ := b.Frame(ts)
	assert.Equal(t, fa, fb)
}

func TestSimulatorFrame_TrackedObject(t *testing.T) {
	sim := NewSimulator(testGrid, TestingMaze(), exactCamera, cellCenter, 1)

	sim.PlaceTracked(orb.Point{2.5 * gs, 0.5 * gs})
	_, s := sim.Frame(time.Unix(1, 0))
	require.NotNil(t, s)
	assert.InDelta(t, 2.5*gs-CameraPose(cellCenter, testMountOffset).X, s.Object.Distance, 1e-9)
	assert.InDelta(t, 0, s.Object.Bearing, 1e-9)

	// behind the camera
	sim.PlaceTracked(orb.Point{-1.5 * gs, 0.5 * gs})
	_, s = sim.Frame(time.Unix(2, 0))
	assert.Nil(t, s)
}

func TestSimulatorMove(t *testing.T) {
	sim := NewSimulator(testGrid, TestingMaze(), exactCamera, Pose{Heading: 0.45}, 1)
	got := sim.Move(Pose{X: 0.1, Heading: 0.1})
	assert.InDelta(t, 0.1, got.X, 1e-12)
	assert.InDelta(t, -0.45, got.Heading, 1e-12)
	assert.Equal(t, got, sim.Truth())
}

// A drifted estimate converges onto the simulator's truth and only real
// maze walls end up in the map.
func TestSimulatorIntegratorConvergence(t *testing.T) {
	maze := TestingMaze()
	sim := NewSimulator(testGrid, maze, exactCamera, cellCenter, 1)

	searcher, err := NewSearcher(testGrid, DefaultSearchConfig(testGrid))
	require.NoError(t, err)
	walls := NewWallMap()
	drift := DefaultConfig().Simulation.InitialDrift
	estimate := NewPoseEstimate(cellCenter.Add(drift))
	in := NewIntegrator(searcher, testMountOffset, DefaultGates(), walls, estimate)

	ts := t0
	b, _ := sim.Frame(ts)
	out := in.Update(&b, nil)
	require.True(t, out.PoseCorrected, "error %v", out.Result.Error)

	got := estimate.Get()
	assert.InDelta(t, cellCenter.X, got.X, 0.001)
	assert.InDelta(t, cellCenter.Y, got.Y, 0.001)
	assert.InDelta(t, 0, got.Heading, 0.001)

	step := Pose{Heading: 0.02}
	for i := 0; i < 50; i++ {
		sim.Move(step)
		estimate.Update(func(p Pose) Pose { return p.Add(step) })
		ts = ts.Add(100 * time.Millisecond)
		b, _ := sim.Frame(ts)
		in.Update(&b, nil)

		truth, est := sim.Truth(), estimate.Get()
		assert.InDelta(t, truth.X, est.X, 0.002, "step %d", i)
		assert.InDelta(t, truth.Y, est.Y, 0.002, "step %d", i)
		assert.InDelta(t, 0, NormalizeTurn(truth.Heading-est.Heading), 0.002, "step %d", i)
	}

	assert.Greater(t, walls.Len(), 5)
	for w := range walls.Snapshot() {
		assert.True(t, maze.Contains(w), "%v mapped but not in the maze", w)
	}
}

func TestSimulatorRun(t *testing.T) {
	sim := NewSimulator(testGrid, TestingMaze(), exactCamera, cellCenter, 1)
	sim.PlaceTracked(orb.Point{2.5 * gs, 0.5 * gs})
	estimate := NewPoseEstimate(cellCenter)

	sink := &mockSink{}
	sink.On("PutBatch", mock.AnythingOfType("grid.Batch")).Return()
	sink.On("PutSighting", mock.AnythingOfType("grid.Sighting")).Return().Maybe()

	clk := clock.NewMock()
	ctx, cancel := context.WithCancel(context.Background())
	errc := make(chan error, 1)
	go func() { errc <- sim.Run(ctx, clk, 100*time.Millisecond, 0.1, sink, estimate) }()

	assert.Eventually(t, func() bool {
		clk.Add(100 * time.Millisecond)
		return sink.batches.Load() > 0
	}, time.Second, time.Millisecond)

	cancel()
	select {
	case err := <-errc:
		assert.True(t, errors.Is(err, context.Canceled))
	case <-time.After(time.Second):
		t.Fatal("Run did not return after cancel")
	}

	sink.AssertCalled(t, "PutBatch", mock.AnythingOfType("grid.Batch"))
	// truth and estimate turn together
	assert.InDelta(t, 0, math.Abs(NormalizeTurn(sim.Truth().Heading-estimate.Get().Heading)), 1e-9)
}

func TestMQTTFrameSink(t *testing.T) {
	client := NewMockClient()
	sink := NewMQTTFrameSink(client, testMQTTConfig())

	// dropped while disconnected
	sink.PutBatch(Batch{Walls: []RelativeWall{{Distance: 1}}})
	assert.Empty(t, client.Published())

	client.SetConnected(true)
	sink.PutBatch(Batch{Walls: []RelativeWall{{Distance: 1, Bearing: 0.1}}})
	sink.PutSighting(Sighting{Object: RelativeWall{Distance: 0.5}})

	walls := client.PublishedTo("robot/camera/walls")
	require.Len(t, walls, 1)
	b, err := DecodeBatch(walls[0].Payload, t0)
	require.NoError(t, err)
	require.Len(t, b.Walls, 1)
	assert.InDelta(t, 0.1, b.Walls[0].Bearing, 1e-6)

	assert.Len(t, client.PublishedTo("robot/camera/tracked"), 1)
}
