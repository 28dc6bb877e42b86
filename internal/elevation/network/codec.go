// Package network receives point batches over UDP and decodes them into the
// in-memory batch representation. A pcap replay path is available behind the
// 'pcap' build tag for offline runs against recorded captures.
package network

import (
	"encoding/binary"
	"fmt"
	"math"
	"time"

	"github.com/gstavrinos/elevation-mapping/internal/elevation"
)

// Wire format of one point batch datagram (little endian):
//
//	offset  size  field
//	0       4     magic "ELVP"
//	4       1     version (currently 1)
//	5       3     reserved, zero
//	8       4     point count (uint32)
//	12      8     stamp, nanoseconds since the Unix epoch (int64)
//	20      32    topic, NUL padded
//	52      32    sensor frame id, NUL padded
//	84      15*N  points: x, y, z (float32) then r, g, b (uint8)
const (
	datagramMagic   = "ELVP"
	datagramVersion = 1
	headerSize      = 84
	pointSize       = 15

	// MaxPointsPerDatagram keeps an encoded batch under the 65507-byte UDP
	// payload limit.
	MaxPointsPerDatagram = (65507 - headerSize) / pointSize

	topicFieldSize = 32
	frameFieldSize = 32
)

// MarshalBatch encodes a batch for a topic into a single datagram payload.
func MarshalBatch(topic string, batch *elevation.PointBatch) ([]byte, error) {
	if len(batch.Points) > MaxPointsPerDatagram {
		return nil, fmt.Errorf("batch of %d points exceeds datagram limit of %d",
			len(batch.Points), MaxPointsPerDatagram)
	}
	if len(topic) > topicFieldSize {
		return nil, fmt.Errorf("topic %q exceeds %d bytes", topic, topicFieldSize)
	}
	if len(batch.FrameID) > frameFieldSize {
		return nil, fmt.Errorf("frame id %q exceeds %d bytes", batch.FrameID, frameFieldSize)
	}

	buf := make([]byte, headerSize+pointSize*len(batch.Points))
	copy(buf[0:4], datagramMagic)
	buf[4] = datagramVersion
	binary.LittleEndian.PutUint32(buf[8:12], uint32(len(batch.Points)))
	binary.LittleEndian.PutUint64(buf[12:20], uint64(batch.Stamp.UnixNano()))
	copy(buf[20:20+topicFieldSize], topic)
	copy(buf[52:52+frameFieldSize], batch.FrameID)

	off := headerSize
	for _, p := range batch.Points {
		binary.LittleEndian.PutUint32(buf[off:], math.Float32bits(float32(p.X)))
		binary.LittleEndian.PutUint32(buf[off+4:], math.Float32bits(float32(p.Y)))
		binary.LittleEndian.PutUint32(buf[off+8:], math.Float32bits(float32(p.Z)))
		buf[off+12] = p.R
		buf[off+13] = p.G
		buf[off+14] = p.B
		off += pointSize
	}
	return buf, nil
}

// ParseBatch decodes a datagram payload. It returns the topic the batch was
// published on alongside the batch itself.
func ParseBatch(payload []byte) (string, elevation.PointBatch, error) {
	if len(payload) < headerSize {
		return "", elevation.PointBatch{}, fmt.Errorf("datagram too short: %d bytes", len(payload))
	}
	if string(payload[0:4]) != datagramMagic {
		return "", elevation.PointBatch{}, fmt.Errorf("bad magic %q", payload[0:4])
	}
	if payload[4] != datagramVersion {
		return "", elevation.PointBatch{}, fmt.Errorf("unsupported version %d", payload[4])
	}

	count := int(binary.LittleEndian.Uint32(payload[8:12]))
	if count > MaxPointsPerDatagram {
		return "", elevation.PointBatch{}, fmt.Errorf("declared point count %d exceeds datagram limit", count)
	}
	if want := headerSize + pointSize*count; len(payload) != want {
		return "", elevation.PointBatch{}, fmt.Errorf("datagram size %d does not match %d declared points (want %d)",
			len(payload), count, want)
	}

	stampNanos := int64(binary.LittleEndian.Uint64(payload[12:20]))
	topic := trimNUL(payload[20 : 20+topicFieldSize])
	frameID := trimNUL(payload[52 : 52+frameFieldSize])

	batch := elevation.PointBatch{
		FrameID: frameID,
		Stamp:   time.Unix(0, stampNanos).UTC(),
		Points:  make([]elevation.Point, count),
	}
	off := headerSize
	for i := 0; i < count; i++ {
		batch.Points[i] = elevation.Point{
			X: float64(math.Float32frombits(binary.LittleEndian.Uint32(payload[off:]))),
			Y: float64(math.Float32frombits(binary.LittleEndian.Uint32(payload[off+4:]))),
			Z: float64(math.Float32frombits(binary.LittleEndian.Uint32(payload[off+8:]))),
			R: payload[off+12],
			G: payload[off+13],
			B: payload[off+14],
		}
		off += pointSize
	}
	return topic, batch, nil
}

func trimNUL(b []byte) string {
	for i, c := range b {
		if c == 0 {
			return string(b[:i])
		}
	}
	return string(b)
}
