package main

import (
	"encoding/json"
	"path/filepath"
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/paulmach/orb"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kwv/gridlock/grid"
)

// serviceFixture wires an App the way RunService does in MQTT mode, with a
// mock broker client on both sides of the loop.
type serviceFixture struct {
	app    *App
	client *grid.MockClient
	clock  *clock.Mock
}

func newServiceFixture(t *testing.T) *serviceFixture {
	t.Helper()
	clk := clock.NewMock()
	clk.Set(time.Unix(1700000000, 0))

	a := NewApp()
	a.Clock = clk
	a.Config = grid.DefaultConfig()
	a.Config.Camera.MaxNoise = 0
	a.Simulate = true
	a.StateFile = filepath.Join(t.TempDir(), "state.json")
	require.NoError(t, a.Setup())

	client := grid.NewMockClient()
	client.SetConnected(true)
	a.Publisher = grid.NewPublisher(client, a.Config.MQTT.PublishPrefix)
	a.Loop.SetPublisher(a.Publisher)

	return &serviceFixture{app: a, client: client, clock: clk}
}

// relay forwards camera frames the simulator published back into the feed,
// decoding them the way the subscription handlers do.
func (f *serviceFixture) relay(t *testing.T) {
	t.Helper()
	cfg := f.app.Config.MQTT
	for _, msg := range f.client.PublishedTo(cfg.WallsTopic) {
		b, err := grid.DecodeBatch(msg.Payload, f.clock.Now())
		require.NoError(t, err)
		f.app.Feed.PutBatch(b)
	}
	for _, msg := range f.client.PublishedTo(cfg.TrackedTopic) {
		s, err := grid.DecodeSighting(msg.Payload, f.clock.Now())
		require.NoError(t, err)
		f.app.Feed.PutSighting(s)
	}
}

// TestService_SimulatedCameraOverMQTT runs one camera frame through the wire
// codec, the feed, the loop and the publisher.
func TestService_SimulatedCameraOverMQTT(t *testing.T) {
	f := newServiceFixture(t)
	a := f.app
	g := a.Config.Grid

	a.Simulator.PlaceTracked(orb.Point{2.5 * g.Size, 0.5 * g.Size})
	sink := grid.NewMQTTFrameSink(f.client, a.Config.MQTT)
	b, s := a.Simulator.Frame(f.clock.Now())
	sink.PutBatch(b)
	require.NotNil(t, s)
	sink.PutSighting(*s)

	f.relay(t)
	out := a.Loop.Step()
	require.True(t, out.Searched)
	require.True(t, out.PoseCorrected, "search error %v", out.Result.Error)
	assert.True(t, out.MapUpdated)

	truth, est := a.Simulator.Truth(), a.Pose.Get()
	assert.InDelta(t, truth.X, est.X, 0.001)
	assert.InDelta(t, truth.Y, est.Y, 0.001)

	prefix := a.Config.MQTT.PublishPrefix

	poses := f.client.PublishedTo(prefix + "/pose")
	require.Len(t, poses, 1)
	var pose grid.PosePayload
	require.NoError(t, json.Unmarshal(poses[0].Payload, &pose))
	assert.InDelta(t, truth.X, pose.X, 0.001)
	assert.Equal(t, f.clock.Now().Unix(), pose.Timestamp)

	walls := f.client.PublishedTo(prefix + "/walls")
	require.Len(t, walls, 1)
	var wp grid.WallsPayload
	require.NoError(t, json.Unmarshal(walls[0].Payload, &wp))
	assert.Equal(t, a.Walls.Len(), wp.Count)
	maze := a.Maze
	for _, w := range wp.Walls {
		assert.True(t, maze.Contains(w), "%v published but not in the maze", w)
	}

	tracked := f.client.PublishedTo(prefix + "/tracked")
	require.Len(t, tracked, 1)
	var tp grid.TrackedPayload
	require.NoError(t, json.Unmarshal(tracked[0].Payload, &tp))
	assert.Equal(t, grid.Cell{X: 2, Y: 0}, tp.Cell)

	// the map grew, so the loop persisted it
	st, err := grid.LoadState(a.StateFile)
	require.NoError(t, err)
	assert.Len(t, st.Walls, a.Walls.Len())
}

func TestService_SameFrameIsNotReprocessed(t *testing.T) {
	f := newServiceFixture(t)
	a := f.app

	b, _ := a.Simulator.Frame(f.clock.Now())
	a.Feed.PutBatch(b)

	require.True(t, a.Loop.Step().Searched)
	assert.False(t, a.Loop.Step().Searched)

	stats := a.Loop.Stats()
	assert.Equal(t, uint64(2), stats.Cycles)
	assert.Equal(t, uint64(1), stats.Searches)
}

func TestService_BrokerDownKeepsLocalizing(t *testing.T) {
	f := newServiceFixture(t)
	f.client.SetConnected(false)
	a := f.app

	b, _ := a.Simulator.Frame(f.clock.Now())
	a.Feed.PutBatch(b)
	out := a.Loop.Step()

	assert.True(t, out.PoseCorrected)
	assert.Empty(t, f.client.Published())
	assert.Positive(t, a.Walls.Len())
}

func TestService_ShutdownSavesState(t *testing.T) {
	f := newServiceFixture(t)
	a := f.app
	a.Walls.Insert(grid.Wall{X: 1, Y: 1, Axis: grid.AlongX})
	a.Integrator.SetTrackedCell(&grid.Cell{X: -1, Y: 2})

	require.NoError(t, grid.SaveState(grid.CaptureState(a.Walls, a.Pose, a.Integrator), a.StateFile))

	restarted := NewApp()
	restarted.Config = grid.DefaultConfig()
	restarted.StateFile = a.StateFile
	require.NoError(t, restarted.Setup())

	assert.True(t, restarted.Walls.Contains(grid.Wall{X: 1, Y: 1, Axis: grid.AlongX}))
	assert.Equal(t, a.Pose.Get(), restarted.Pose.Get())
	c, ok := restarted.Integrator.TrackedCell()
	require.True(t, ok)
	assert.Equal(t, grid.Cell{X: -1, Y: 2}, c)
}
