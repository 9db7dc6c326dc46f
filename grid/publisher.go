package grid

import (
	"encoding/json"
	"fmt"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
)

// Publisher publishes localization results as retained JSON messages under a
// topic prefix: <prefix>/pose, <prefix>/walls and <prefix>/tracked.
type Publisher struct {
	client mqtt.Client
	prefix string
	qos    byte
	retain bool
}

// PosePayload is the JSON body of <prefix>/pose
type PosePayload struct {
	X         float64 `json:"x"`
	Y         float64 `json:"y"`
	Heading   float64 `json:"heading"`
	Error     float64 `json:"error"`
	Timestamp int64   `json:"timestamp"`
}

// WallsPayload is the JSON body of <prefix>/walls
type WallsPayload struct {
	Count     int    `json:"count"`
	Walls     []Wall `json:"walls"`
	Timestamp int64  `json:"timestamp"`
}

// TrackedPayload is the JSON body of <prefix>/tracked
type TrackedPayload struct {
	Cell      Cell  `json:"cell"`
	Timestamp int64 `json:"timestamp"`
}

// NewPublisher creates a publisher. A nil client disables publishing.
func NewPublisher(client mqtt.Client, prefix string) *Publisher {
	if prefix == "" {
		prefix = "gridlock"
	}
	return &Publisher{
		client: client,
		prefix: prefix,
		qos:    0,
		retain: true,
	}
}

// SetQoS sets the Quality of Service level for publishing (0, 1, or 2)
func (p *Publisher) SetQoS(qos byte) {
	if qos <= 2 {
		p.qos = qos
	}
}

// SetRetain marks subsequent publishes as retained
func (p *Publisher) SetRetain(retain bool) {
	p.retain = retain
}

// Topic returns the full topic for a suffix
func (p *Publisher) Topic(suffix string) string {
	return fmt.Sprintf("%s/%s", p.prefix, suffix)
}

// PublishPose publishes a corrected robot pose with the search error that
// produced it.
func (p *Publisher) PublishPose(pose Pose, searchErr float64, at time.Time) error {
	return p.publish("pose", PosePayload{
		X:         pose.X,
		Y:         pose.Y,
		Heading:   pose.Heading,
		Error:     searchErr,
		Timestamp: at.Unix(),
	})
}

// PublishWalls publishes the whole map in sorted order
func (p *Publisher) PublishWalls(walls WallSet, at time.Time) error {
	return p.publish("walls", WallsPayload{
		Count:     len(walls),
		Walls:     walls.Sorted(),
		Timestamp: at.Unix(),
	})
}

// PublishTracked publishes the tracked object's cell
func (p *Publisher) PublishTracked(c Cell, at time.Time) error {
	return p.publish("tracked", TrackedPayload{Cell: c, Timestamp: at.Unix()})
}

func (p *Publisher) publish(suffix string, v interface{}) error {
	if p.client == nil || !p.client.IsConnected() {
		return ErrNotConnected
	}

	payload, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("marshaling %s: %w", suffix, err)
	}

	topic := p.Topic(suffix)
	token := p.client.Publish(topic, p.qos, p.retain, payload)
	if token.WaitTimeout(2*time.Second) && token.Error() != nil {
		return fmt.Errorf("publishing to %s: %w", topic, token.Error())
	}
	return nil
}
