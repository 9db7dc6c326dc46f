package grid

import (
	"bytes"
	"image/png"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testView() MapView {
	maze := TestingMaze()
	robot := cellCenter
	camera := CameraPose(robot, testMountOffset)
	return MapView{
		Walls:   maze.Snapshot(),
		Robot:   &robot,
		Tracked: &Cell{2, -1},
		Visible: maze.FindVisible(testGrid, camera, DefaultVisibilityConfig()),
	}
}

func TestMapRenderer_SVG(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, NewMapRenderer(testGrid).RenderToSVG(&buf, testView()))

	out := buf.String()
	assert.True(t, strings.Contains(out, "<svg"), "output is not an SVG")
	assert.Contains(t, out, "</svg>")
}

func TestMapRenderer_PNG(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, NewMapRenderer(testGrid).RenderToPNG(&buf, testView()))

	img, err := png.Decode(&buf)
	require.NoError(t, err)
	// 8x8 maze plus one cell of padding per side, 10mm cells at 150 DPI
	wantPx := 100 * 150 / 25.4
	assert.InDelta(t, wantPx, float64(img.Bounds().Dx()), 2)
	assert.InDelta(t, wantPx, float64(img.Bounds().Dy()), 2)
}

func TestMapRenderer_PNGLabel(t *testing.T) {
	r := NewMapRenderer(testGrid)
	view := MapView{}

	var plain, labeled bytes.Buffer
	require.NoError(t, r.RenderToPNG(&plain, view))
	view.Label = "0 walls"
	require.NoError(t, r.RenderToPNG(&labeled, view))

	a, err := png.Decode(&plain)
	require.NoError(t, err)
	b, err := png.Decode(&labeled)
	require.NoError(t, err)
	require.Equal(t, a.Bounds(), b.Bounds())

	changed := 0
	for y := 0; y < 20; y++ {
		for x := 0; x < 60; x++ {
			if a.At(x, y) != b.At(x, y) {
				changed++
			}
		}
	}
	assert.Positive(t, changed, "label pixels not drawn")
}

func TestMapRenderer_Bounds(t *testing.T) {
	r := NewMapRenderer(testGrid)

	assert.Equal(t, cellBounds{-4, -4, 4, 4}, r.bounds(MapView{}), "empty view falls back to the maze extent")

	robot := Pose{X: 10 * gs, Y: -3 * gs}
	b := r.bounds(MapView{
		Walls:   NewWallSet(Wall{0, 0, AlongX}),
		Robot:   &robot,
		Tracked: &Cell{-2, 5},
	})
	assert.Equal(t, cellBounds{minX: -2, minY: -3, maxX: 11, maxY: 6}, b)
}

func TestMapRenderer_EmptyView(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, NewMapRenderer(testGrid).RenderToSVG(&buf, MapView{}))
	assert.NotZero(t, buf.Len())
}
