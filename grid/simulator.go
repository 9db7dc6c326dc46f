package grid

import (
	"context"
	"math"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/paulmach/orb"
)

// FrameSink receives camera frames. *Feed is the in-process sink.
type FrameSink interface {
	PutBatch(Batch)
	PutSighting(Sighting)
}

// MQTTFrameSink publishes frames in the camera's binary wire format, so a
// simulator can stand in for the real camera on a broker.
type MQTTFrameSink struct {
	client       mqtt.Client
	wallsTopic   string
	trackedTopic string
}

// NewMQTTFrameSink publishes frames on the configured camera topics
func NewMQTTFrameSink(client mqtt.Client, cfg MQTTConfig) *MQTTFrameSink {
	return &MQTTFrameSink{client: client, wallsTopic: cfg.WallsTopic, trackedTopic: cfg.TrackedTopic}
}

// PutBatch publishes b on the walls topic
func (s *MQTTFrameSink) PutBatch(b Batch) {
	s.send(s.wallsTopic, EncodeBatch(b))
}

// PutSighting publishes v on the tracked topic, if one is configured
func (s *MQTTFrameSink) PutSighting(v Sighting) {
	if s.trackedTopic != "" {
		s.send(s.trackedTopic, EncodeSighting(v))
	}
}

func (s *MQTTFrameSink) send(topic string, payload []byte) {
	if !s.client.IsConnected() {
		return
	}
	token := s.client.Publish(topic, 0, false, payload)
	if token.WaitTimeout(2*time.Second) && token.Error() != nil {
		Logf("[SIM] error publishing to %s: %v", topic, token.Error())
	}
}

// Simulator is a synthetic forward camera in a ground-truth maze.
type Simulator struct {
	grid     Grid
	maze     *WallMap
	vis      VisibilityConfig
	offset   float64
	maxNoise float64
	noise    *Noise

	mu      sync.Mutex
	truth   Pose
	tracked *orb.Point
}

// NewSimulator places the robot at start inside maze.
func NewSimulator(g Grid, maze *WallMap, cam CameraConfig, start Pose, seed uint64) *Simulator {
	vis := DefaultVisibilityConfig()
	if cam.FieldOfView > 0 {
		vis.FieldOfView = cam.FieldOfView
	}
	return &Simulator{
		grid:     g,
		maze:     maze,
		vis:      vis,
		offset:   cam.MountOffset,
		maxNoise: cam.MaxNoise,
		noise:    NewNoise(seed),
		truth:    start,
	}
}

// Truth returns the true robot pose
func (s *Simulator) Truth() Pose {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.truth
}

// Move advances the true pose by an odometry delta
func (s *Simulator) Move(delta Pose) Pose {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.truth = s.truth.Add(delta)
	s.truth.Heading = NormalizeTurn(s.truth.Heading)
	return s.truth
}

// PlaceTracked puts the tracked object at a world position
func (s *Simulator) PlaceTracked(p orb.Point) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tracked = &p
}

// Frame renders what the camera sees from the true pose. Walls are reported
// in a fixed order so that a seeded simulator is reproducible. The sighting is
// nil when no object is placed or it is outside the view cone.
func (s *Simulator) Frame(ts time.Time) (Batch, *Sighting) {
	s.mu.Lock()
	truth := s.truth
	tracked := s.tracked
	s.mu.Unlock()

	camera := CameraPose(truth, s.offset)
	visible := s.maze.FindVisible(s.grid, camera, s.vis)

	batch := Batch{Timestamp: ts, Walls: make([]RelativeWall, 0, len(visible))}
	for _, w := range visible.Sorted() {
		batch.Walls = append(batch.Walls, s.grid.NoisyFromGrid(w, camera, s.maxNoise, s.noise))
	}

	if tracked == nil {
		return batch, nil
	}
	dx := tracked.X() - camera.X
	dy := tracked.Y() - camera.Y
	rel := RelativeWall{
		Distance: math.Hypot(dx, dy),
		Bearing:  NormalizeTurn(math.Atan2(dy, dx)/(2*math.Pi) - camera.Heading),
	}
	if math.Abs(rel.Bearing) >= s.vis.FieldOfView {
		return batch, nil
	}
	return batch, &Sighting{Timestamp: ts, Object: rel}
}

// Run spins the robot in place at turnRate turns per second, applying the
// same odometry to the estimate, and emits one frame per period.
func (s *Simulator) Run(ctx context.Context, clk clock.Clock, period time.Duration, turnRate float64, sink FrameSink, estimate *PoseEstimate) error {
	ticker := clk.Ticker(period)
	defer ticker.Stop()

	delta := Pose{Heading: turnRate * period.Seconds()}
	Logf("[SIM] camera running every %v, truth %+v", period, s.Truth())

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			s.Move(delta)
			estimate.Update(func(p Pose) Pose {
				p = p.Add(delta)
				p.Heading = NormalizeTurn(p.Heading)
				return p
			})
			batch, sighting := s.Frame(clk.Now())
			sink.PutBatch(batch)
			if sighting != nil {
				sink.PutSighting(*sighting)
			}
		}
	}
}
