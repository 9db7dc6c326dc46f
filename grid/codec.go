package grid

import (
	"encoding/binary"
	"fmt"
	"math"
	"time"
)

// Camera payload layout, all little-endian:
//
//	walls:    int32 count, then count × (float32 distance, float32 1-bearing)
//	sighting: float32 distance, float32 bearing
//
// The camera reports wall bearings clockwise-positive, hence the inversion.
const (
	countSize    = 4
	wallWireSize = 8
)

// DecodeBatch parses a walls payload and stamps it with ts.
func DecodeBatch(payload []byte, ts time.Time) (Batch, error) {
	if len(payload) < countSize {
		return Batch{}, fmt.Errorf("%w: %d bytes, need at least %d for the count", ErrShortPayload, len(payload), countSize)
	}
	count := int64(int32(binary.LittleEndian.Uint32(payload)))
	if count < 0 {
		return Batch{}, fmt.Errorf("%w: negative wall count %d", ErrShortPayload, count)
	}
	need := countSize + count*wallWireSize
	if int64(len(payload)) < need {
		return Batch{}, fmt.Errorf("%w: %d walls need %d bytes, got %d", ErrShortPayload, count, need, len(payload))
	}

	walls := make([]RelativeWall, count)
	body := payload[countSize:]
	for i := range walls {
		off := i * wallWireSize
		walls[i] = RelativeWall{
			Distance: float64(readFloat32(body[off:])),
			Bearing:  NormalizeTurn(1 - float64(readFloat32(body[off+4:]))),
		}
	}

	return Batch{Timestamp: ts, Walls: walls}, nil
}

// EncodeBatch is the inverse of DecodeBatch. The simulator uses it to publish
// synthetic frames in the camera's format.
func EncodeBatch(b Batch) []byte {
	buf := make([]byte, countSize+len(b.Walls)*wallWireSize)
	binary.LittleEndian.PutUint32(buf, uint32(int32(len(b.Walls))))
	body := buf[countSize:]
	for i, w := range b.Walls {
		off := i * wallWireSize
		putFloat32(body[off:], float32(w.Distance))
		putFloat32(body[off+4:], float32(1-w.Bearing))
	}
	return buf
}

// DecodeSighting parses a tracked-object payload and stamps it with ts.
func DecodeSighting(payload []byte, ts time.Time) (Sighting, error) {
	if len(payload) < wallWireSize {
		return Sighting{}, fmt.Errorf("%w: sighting needs %d bytes, got %d", ErrShortPayload, wallWireSize, len(payload))
	}
	return Sighting{
		Timestamp: ts,
		Object: RelativeWall{
			Distance: float64(readFloat32(payload)),
			Bearing:  float64(readFloat32(payload[4:])),
		},
	}, nil
}

// EncodeSighting is the inverse of DecodeSighting
func EncodeSighting(s Sighting) []byte {
	buf := make([]byte, wallWireSize)
	putFloat32(buf, float32(s.Object.Distance))
	putFloat32(buf[4:], float32(s.Object.Bearing))
	return buf
}

func readFloat32(b []byte) float32 {
	return math.Float32frombits(binary.LittleEndian.Uint32(b))
}

func putFloat32(b []byte, f float32) {
	binary.LittleEndian.PutUint32(b, math.Float32bits(f))
}
