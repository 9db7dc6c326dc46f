package grid

import (
	"math"
	"math/rand/v2"
	"sync"
	"time"

	"github.com/paulmach/orb"
	"gonum.org/v1/gonum/stat/distuv"
)

// bearingNoisePerMeter couples bearing noise to the (noisy) range: far walls
// get proportionally worse bearings.
const bearingNoisePerMeter = 0.28

// Cartesian builds a detection from a camera-frame vector (x forward, y left).
func Cartesian(x, y float64) RelativeWall {
	return RelativeWall{
		Distance: math.Hypot(x, y),
		Bearing:  math.Atan2(y, x) / (2 * math.Pi),
	}
}

// ToAbsolute places a camera detection in the world frame.
func ToAbsolute(rw RelativeWall, camera Pose) orb.Point {
	angle := TurnsToRadians(camera.Heading + rw.Bearing)
	return orb.Point{
		camera.X + rw.Distance*math.Cos(angle),
		camera.Y + rw.Distance*math.Sin(angle),
	}
}

// FromGrid returns the exact detection a camera at the given pose would report
// for a wall: the range and bearing to the wall's rail point.
func (g Grid) FromGrid(w Wall, camera Pose) RelativeWall {
	ref := g.RailPoint(w)
	dx := ref.X() - camera.X
	dy := ref.Y() - camera.Y

	return RelativeWall{
		Distance: math.Hypot(dx, dy),
		Bearing:  NormalizeTurn(math.Atan2(dy, dx)/(2*math.Pi) - camera.Heading),
	}
}

// NoisyFromGrid is FromGrid with multiplicative sensor noise. The distance is
// scaled by a uniform factor in [1-maxNoise, 1+maxNoise]; the bearing is then
// scaled by a uniform factor whose half-width is noisyDistance*0.28*maxNoise.
func (g Grid) NoisyFromGrid(w Wall, camera Pose, maxNoise float64, noise *Noise) RelativeWall {
	exact := g.FromGrid(w, camera)

	noisyDistance := exact.Distance * noise.Factor(maxNoise)
	maxBearingNoise := noisyDistance * bearingNoisePerMeter * maxNoise
	noisyBearing := exact.Bearing * noise.Factor(maxBearingNoise)

	return RelativeWall{
		Distance: noisyDistance,
		Bearing:  NormalizeTurn(noisyBearing),
	}
}

// Noise draws multiplicative noise factors. It is safe for concurrent use.
type Noise struct {
	mu  sync.Mutex
	src rand.Source
}

// NewNoise creates a noise source. A zero seed seeds from the clock.
func NewNoise(seed uint64) *Noise {
	if seed == 0 {
		seed = uint64(time.Now().UnixNano())
	}
	return &Noise{src: rand.NewPCG(seed, seed^0x9e3779b97f4a7c15)}
}

// Factor returns a uniform sample from [1-halfWidth, 1+halfWidth].
func (n *Noise) Factor(halfWidth float64) float64 {
	if halfWidth == 0 {
		return 1
	}
	n.mu.Lock()
	defer n.mu.Unlock()
	u := distuv.Uniform{Min: 1 - halfWidth, Max: 1 + halfWidth, Src: n.src}
	return u.Rand()
}
