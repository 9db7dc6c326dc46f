package grid

import (
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewPublisher(t *testing.T) {
	p := NewPublisher(nil, "")
	if p.prefix != "gridlock" {
		t.Errorf("Default prefix = %s, want gridlock", p.prefix)
	}
	if p.qos != 0 {
		t.Errorf("Default QoS = %d, want 0", p.qos)
	}
	if !p.retain {
		t.Error("Default retain should be true")
	}
	if got := NewPublisher(nil, "robot").Topic("pose"); got != "robot/pose" {
		t.Errorf("Topic() = %s, want robot/pose", got)
	}
}

func TestPublisher_SetQoS(t *testing.T) {
	p := NewPublisher(nil, "")
	p.SetQoS(1)
	assert.Equal(t, byte(1), p.qos)
	p.SetQoS(3)
	assert.Equal(t, byte(1), p.qos, "invalid QoS is ignored")
}

func TestPublisher_NotConnected(t *testing.T) {
	at := time.Unix(100, 0)
	assert.ErrorIs(t, NewPublisher(nil, "").PublishPose(Pose{}, 0, at), ErrNotConnected)

	mock := NewMockClient()
	assert.ErrorIs(t, NewPublisher(mock, "").PublishTracked(Cell{}, at), ErrNotConnected)
	assert.Empty(t, mock.Published())
}

func TestPublisher_PublishPose(t *testing.T) {
	mock := NewMockClient()
	mock.SetConnected(true)
	p := NewPublisher(mock, "robot")

	require.NoError(t, p.PublishPose(Pose{X: 0.15, Y: -0.3, Heading: 0.25}, 0.004, time.Unix(1700000000, 0)))

	msgs := mock.PublishedTo("robot/pose")
	require.Len(t, msgs, 1)
	assert.True(t, msgs[0].Retain)

	var got PosePayload
	require.NoError(t, json.Unmarshal(msgs[0].Payload, &got))
	assert.Equal(t, PosePayload{X: 0.15, Y: -0.3, Heading: 0.25, Error: 0.004, Timestamp: 1700000000}, got)
}

func TestPublisher_PublishWallsSorted(t *testing.T) {
	mock := NewMockClient()
	mock.SetConnected(true)
	p := NewPublisher(mock, "")

	walls := NewWallSet(Wall{1, 0, AlongY}, Wall{0, 0, AlongX}, Wall{-1, 2, AlongX})
	require.NoError(t, p.PublishWalls(walls, time.Unix(5, 0)))

	msgs := mock.PublishedTo("gridlock/walls")
	require.Len(t, msgs, 1)
	assert.JSONEq(t, `{
		"count": 3,
		"walls": [
			{"x": 0, "y": 0, "axis": "x"},
			{"x": -1, "y": 2, "axis": "x"},
			{"x": 1, "y": 0, "axis": "y"}
		],
		"timestamp": 5
	}`, string(msgs[0].Payload))
}

func TestPublisher_PublishTracked(t *testing.T) {
	mock := NewMockClient()
	mock.SetConnected(true)
	p := NewPublisher(mock, "")
	p.SetRetain(false)

	require.NoError(t, p.PublishTracked(Cell{3, -2}, time.Unix(9, 0)))
	msgs := mock.PublishedTo("gridlock/tracked")
	require.Len(t, msgs, 1)
	assert.False(t, msgs[0].Retain)
	assert.JSONEq(t, `{"cell":{"x":3,"y":-2},"timestamp":9}`, string(msgs[0].Payload))
}

func TestPublisher_PublishError(t *testing.T) {
	mock := NewMockClient()
	mock.SetConnected(true)
	mock.SetPublishError(errors.New("queue full"))

	err := NewPublisher(mock, "").PublishPose(Pose{}, 0, time.Now())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "gridlock/pose")
	assert.Contains(t, err.Error(), "queue full")
}
