package grid

import (
	"math"

	"github.com/paulmach/orb"
)

// Snap quantizes a world-frame wall detection onto the nearest grid wall.
//
// The point is expressed in grid units and compared against the four rails of
// the cell it falls in: the midpoints of the right, left, top and bottom edges.
// The returned error is the squared distance to the closest rail, in squared
// grid units. A perfectly aligned detection has error 0; a detection at a cell
// center or corner has error 0.25 and an arbitrary wall.
//
// Exact ties resolve right < left < up < down: each later rail that matches
// the minimum overwrites the earlier choice.
func (g Grid) Snap(p orb.Point) (Wall, float64) {
	gx := p.X() / g.Size
	gy := p.Y() / g.Size

	fx := math.Floor(gx)
	fy := math.Floor(gy)
	rx := gx - fx
	ry := gy - fy
	ix := int(fx)
	iy := int(fy)

	errRight := (1-rx)*(1-rx) + (0.5-ry)*(0.5-ry)
	errLeft := rx*rx + (0.5-ry)*(0.5-ry)
	errUp := (0.5-rx)*(0.5-rx) + (1-ry)*(1-ry)
	errDown := (0.5-rx)*(0.5-rx) + ry*ry

	minErr := math.Min(math.Min(errLeft, errRight), math.Min(errDown, errUp))

	snapped := Wall{X: ix + 1, Y: iy, Axis: AlongY}
	if errLeft == minErr {
		snapped = Wall{X: ix, Y: iy, Axis: AlongY}
	}
	if errUp == minErr {
		snapped = Wall{X: ix, Y: iy + 1, Axis: AlongX}
	}
	if errDown == minErr {
		snapped = Wall{X: ix, Y: iy, Axis: AlongX}
	}

	return snapped, minErr
}
