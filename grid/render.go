package grid

import (
	"image"
	"image/color"
	"image/draw"
	"image/png"
	"io"
	"math"

	"github.com/paulmach/orb"
	"github.com/tdewolff/canvas"
	"github.com/tdewolff/canvas/renderers/rasterizer"
	"github.com/tdewolff/canvas/renderers/svg"
	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"
)

// MapView is everything drawn on one map image
type MapView struct {
	Walls   WallSet
	Robot   *Pose
	Tracked *Cell
	// Visible highlights walls the camera currently sees.
	Visible WallSet
	// Label is stamped in the top-left corner of PNG renders.
	Label string
}

// MapRenderer draws a wall map as SVG or PNG. Canvas units are millimeters.
type MapRenderer struct {
	Grid       Grid
	CellSize   float64
	Padding    float64
	ShowGrid   bool
	Resolution canvas.Resolution
}

// NewMapRenderer returns a renderer with 10mm cells and one cell of padding.
func NewMapRenderer(g Grid) *MapRenderer {
	return &MapRenderer{
		Grid:       g,
		CellSize:   10,
		Padding:    1,
		ShowGrid:   true,
		Resolution: canvas.DPI(150),
	}
}

var (
	wallColor    = color.RGBA{R: 0x20, G: 0x20, B: 0x20, A: 0xff}
	visibleColor = color.RGBA{R: 0x1e, G: 0x88, B: 0xe5, A: 0xff}
	robotColor   = color.RGBA{R: 0xe5, G: 0x39, B: 0x35, A: 0xff}
	trackedColor = color.RGBA{R: 0xfd, G: 0xd8, B: 0x35, A: 0xff}
)

// canvasRenderer is satisfied by both the svg and rasterizer renderers
type canvasRenderer interface {
	RenderPath(path *canvas.Path, style canvas.Style, m canvas.Matrix)
}

// cellBounds is the drawn area in cells
type cellBounds struct {
	minX, minY, maxX, maxY int
}

func (b cellBounds) width() int  { return b.maxX - b.minX }
func (b cellBounds) height() int { return b.maxY - b.minY }

// RenderToSVG writes the map as an SVG
func (r *MapRenderer) RenderToSVG(w io.Writer, view MapView) error {
	b := r.bounds(view)
	width, height := r.size(b)

	svgRenderer := svg.New(w, width, height, nil)
	r.renderToCanvas(svgRenderer, view, b, width, height)
	return svgRenderer.Close()
}

// RenderToPNG writes the map as a PNG
func (r *MapRenderer) RenderToPNG(w io.Writer, view MapView) error {
	b := r.bounds(view)
	width, height := r.size(b)

	rast := rasterizer.New(width, height, r.Resolution, canvas.DefaultColorSpace)
	r.renderToCanvas(rast, view, b, width, height)
	if view.Label != "" {
		drawLabel(rast, 4, 15, view.Label, color.NRGBA{R: 40, G: 40, B: 40, A: 255})
	}
	return png.Encode(w, rast)
}

// drawLabel draws text with its baseline at pixel (x, y)
func drawLabel(img draw.Image, x, y int, text string, c color.Color) {
	d := &font.Drawer{
		Dst:  img,
		Src:  image.NewUniform(c),
		Face: basicfont.Face7x13,
		Dot:  fixed.Point26_6{X: fixed.I(x), Y: fixed.I(y)},
	}
	d.DrawString(text)
}

func (r *MapRenderer) size(b cellBounds) (float64, float64) {
	return (float64(b.width()) + 2*r.Padding) * r.CellSize,
		(float64(b.height()) + 2*r.Padding) * r.CellSize
}

// bounds covers every wall, the robot and the tracked cell. An empty view
// falls back to the 8x8 maze extent.
func (r *MapRenderer) bounds(view MapView) cellBounds {
	b := cellBounds{minX: math.MaxInt, minY: math.MaxInt, maxX: math.MinInt, maxY: math.MinInt}
	include := func(x, y int) {
		b.minX = min(b.minX, x)
		b.minY = min(b.minY, y)
		b.maxX = max(b.maxX, x+1)
		b.maxY = max(b.maxY, y+1)
	}

	for w := range view.Walls {
		include(w.X, w.Y)
	}
	if view.Robot != nil {
		c := r.Grid.CellOf(orb.Point{view.Robot.X, view.Robot.Y})
		include(c.X, c.Y)
	}
	if view.Tracked != nil {
		include(view.Tracked.X, view.Tracked.Y)
	}

	if b.minX > b.maxX {
		return cellBounds{minX: -4, minY: -4, maxX: 4, maxY: 4}
	}
	return b
}

func (r *MapRenderer) renderToCanvas(renderer canvasRenderer, view MapView, b cellBounds, width, height float64) {
	// world meters -> canvas millimeters
	scale := r.CellSize / r.Grid.Size
	toCanvas := func(x, y float64) (float64, float64) {
		return (x/r.Grid.Size-float64(b.minX)+r.Padding)*r.CellSize,
			(y/r.Grid.Size-float64(b.minY)+r.Padding)*r.CellSize
	}

	bgStyle := canvas.DefaultStyle
	bgStyle.Fill = canvas.Paint{Color: canvas.White}
	renderer.RenderPath(canvas.Rectangle(width, height), bgStyle, canvas.Identity)

	if r.ShowGrid {
		gridStyle := canvas.DefaultStyle
		gridStyle.Fill = canvas.Paint{Color: canvas.Transparent}
		gridStyle.Stroke = canvas.Paint{Color: canvas.Gray}
		gridStyle.StrokeWidth = 0.1

		for x := b.minX; x <= b.maxX; x++ {
			x0, y0 := toCanvas(float64(x)*r.Grid.Size, float64(b.minY)*r.Grid.Size)
			x1, y1 := toCanvas(float64(x)*r.Grid.Size, float64(b.maxY)*r.Grid.Size)
			p := &canvas.Path{}
			p.MoveTo(x0, y0)
			p.LineTo(x1, y1)
			renderer.RenderPath(p, gridStyle, canvas.Identity)
		}
		for y := b.minY; y <= b.maxY; y++ {
			x0, y0 := toCanvas(float64(b.minX)*r.Grid.Size, float64(y)*r.Grid.Size)
			x1, y1 := toCanvas(float64(b.maxX)*r.Grid.Size, float64(y)*r.Grid.Size)
			p := &canvas.Path{}
			p.MoveTo(x0, y0)
			p.LineTo(x1, y1)
			renderer.RenderPath(p, gridStyle, canvas.Identity)
		}
	}

	wallStyle := canvas.DefaultStyle
	wallStyle.Fill = canvas.Paint{Color: canvas.Transparent}
	wallStyle.StrokeWidth = 0.12 * r.CellSize

	for _, w := range view.Walls.Sorted() {
		wallStyle.Stroke = canvas.Paint{Color: wallColor}
		if view.Visible.Contains(w) {
			wallStyle.Stroke = canvas.Paint{Color: visibleColor}
		}
		seg := r.Grid.Segment(w)
		x0, y0 := toCanvas(seg[0].X(), seg[0].Y())
		x1, y1 := toCanvas(seg[1].X(), seg[1].Y())
		p := &canvas.Path{}
		p.MoveTo(x0, y0)
		p.LineTo(x1, y1)
		renderer.RenderPath(p, wallStyle, canvas.Identity)
	}

	if view.Tracked != nil {
		trackedStyle := canvas.DefaultStyle
		trackedStyle.Fill = canvas.Paint{Color: trackedColor}
		trackedStyle.Stroke = canvas.Paint{Color: canvas.Black}
		trackedStyle.StrokeWidth = 0.2

		cx, cy := toCanvas((float64(view.Tracked.X)+0.5)*r.Grid.Size, (float64(view.Tracked.Y)+0.5)*r.Grid.Size)
		renderer.RenderPath(canvas.Circle(0.25*r.CellSize).Translate(cx, cy), trackedStyle, canvas.Identity)
	}

	if view.Robot != nil {
		cx, cy := toCanvas(view.Robot.X, view.Robot.Y)

		robotStyle := canvas.DefaultStyle
		robotStyle.Fill = canvas.Paint{Color: robotColor}
		robotStyle.Stroke = canvas.Paint{Color: canvas.Black}
		robotStyle.StrokeWidth = 0.2
		renderer.RenderPath(canvas.Circle(0.08*scale).Translate(cx, cy), robotStyle, canvas.Identity)

		rad := TurnsToRadians(view.Robot.Heading)
		dirLen := 0.15 * scale
		dirStyle := canvas.DefaultStyle
		dirStyle.Fill = canvas.Paint{Color: canvas.Transparent}
		dirStyle.Stroke = canvas.Paint{Color: robotColor}
		dirStyle.StrokeWidth = 0.5

		dirPath := &canvas.Path{}
		dirPath.MoveTo(cx, cy)
		dirPath.LineTo(cx+dirLen*math.Cos(rad), cy+dirLen*math.Sin(rad))
		renderer.RenderPath(dirPath, dirStyle, canvas.Identity)
	}
}
