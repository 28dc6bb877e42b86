// Package publish streams map snapshots to WebSocket subscribers. Snapshots
// are encoded as JSON frames whose channel payloads are zstd-compressed and
// base64-encoded, since the raw channels contain NaN for unobserved cells
// and cannot ride in JSON numbers.
package publish

import (
	"encoding/base64"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"math"
	"time"

	"github.com/klauspost/compress/zstd"

	"github.com/gstavrinos/elevation-mapping/internal/elevation"
)

// FrameEncoding identifies the channel payload encoding of a MapFrame.
const FrameEncoding = "zstd+base64/le"

var (
	zstdEncoder, _ = zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedDefault))
	zstdDecoder, _ = zstd.NewReader(nil)
)

// MapFrame is the wire representation of one map snapshot. Channel fields
// hold base64(zstd(little-endian values)): float64 for the estimate
// channels, uint32 for color.
type MapFrame struct {
	Type       string  `json:"type"` // always "MAP"
	StampNanos int64   `json:"stamp_nanos"`
	FrameID    string  `json:"frame_id"`
	Rows       int     `json:"rows"`
	Cols       int     `json:"cols"`
	Resolution float64 `json:"resolution"`
	LengthX    float64 `json:"length_x"`
	LengthY    float64 `json:"length_y"`
	Encoding   string  `json:"encoding"`

	Elevation string `json:"elevation"`
	Variance  string `json:"variance"`
	VarianceX string `json:"variance_x"`
	VarianceY string `json:"variance_y"`
	Color     string `json:"color"`
}

// EncodeFrame serializes a snapshot into a wire frame.
func EncodeFrame(s *elevation.MapSnapshot) ([]byte, error) {
	frame := MapFrame{
		Type:       "MAP",
		StampNanos: s.Stamp.UnixNano(),
		FrameID:    s.FrameID,
		Rows:       s.Rows,
		Cols:       s.Cols,
		Resolution: s.Resolution,
		LengthX:    s.LengthX,
		LengthY:    s.LengthY,
		Encoding:   FrameEncoding,
		Elevation:  packFloats(s.Elevation),
		Variance:   packFloats(s.Variance),
		VarianceX:  packFloats(s.VarianceX),
		VarianceY:  packFloats(s.VarianceY),
		Color:      packColors(s.Color),
	}
	return json.Marshal(frame)
}

// DecodeFrame parses a wire frame back into a snapshot.
func DecodeFrame(payload []byte) (*elevation.MapSnapshot, error) {
	var frame MapFrame
	if err := json.Unmarshal(payload, &frame); err != nil {
		return nil, fmt.Errorf("decode map frame: %w", err)
	}
	if frame.Type != "MAP" {
		return nil, fmt.Errorf("decode map frame: unexpected type %q", frame.Type)
	}
	if frame.Encoding != FrameEncoding {
		return nil, fmt.Errorf("decode map frame: unsupported encoding %q", frame.Encoding)
	}

	cells := frame.Rows * frame.Cols
	s := &elevation.MapSnapshot{
		Stamp:      timeFromNanos(frame.StampNanos),
		FrameID:    frame.FrameID,
		Rows:       frame.Rows,
		Cols:       frame.Cols,
		Resolution: frame.Resolution,
		LengthX:    frame.LengthX,
		LengthY:    frame.LengthY,
	}

	var err error
	if s.Elevation, err = unpackFloats(frame.Elevation, cells); err != nil {
		return nil, fmt.Errorf("decode elevation channel: %w", err)
	}
	if s.Variance, err = unpackFloats(frame.Variance, cells); err != nil {
		return nil, fmt.Errorf("decode variance channel: %w", err)
	}
	if s.VarianceX, err = unpackFloats(frame.VarianceX, cells); err != nil {
		return nil, fmt.Errorf("decode variance_x channel: %w", err)
	}
	if s.VarianceY, err = unpackFloats(frame.VarianceY, cells); err != nil {
		return nil, fmt.Errorf("decode variance_y channel: %w", err)
	}
	if s.Color, err = unpackColors(frame.Color, cells); err != nil {
		return nil, fmt.Errorf("decode color channel: %w", err)
	}
	return s, nil
}

func timeFromNanos(n int64) time.Time {
	return time.Unix(0, n).UTC()
}

func packFloats(vs []float64) string {
	raw := make([]byte, 8*len(vs))
	for i, v := range vs {
		binary.LittleEndian.PutUint64(raw[8*i:], math.Float64bits(v))
	}
	return base64.StdEncoding.EncodeToString(zstdEncoder.EncodeAll(raw, nil))
}

func unpackFloats(s string, want int) ([]float64, error) {
	raw, err := unpackRaw(s, 8*want)
	if err != nil {
		return nil, err
	}
	vs := make([]float64, want)
	for i := range vs {
		vs[i] = math.Float64frombits(binary.LittleEndian.Uint64(raw[8*i:]))
	}
	return vs, nil
}

func packColors(vs []uint32) string {
	raw := make([]byte, 4*len(vs))
	for i, v := range vs {
		binary.LittleEndian.PutUint32(raw[4*i:], v)
	}
	return base64.StdEncoding.EncodeToString(zstdEncoder.EncodeAll(raw, nil))
}

func unpackColors(s string, want int) ([]uint32, error) {
	raw, err := unpackRaw(s, 4*want)
	if err != nil {
		return nil, err
	}
	vs := make([]uint32, want)
	for i := range vs {
		vs[i] = binary.LittleEndian.Uint32(raw[4*i:])
	}
	return vs, nil
}

func unpackRaw(s string, wantBytes int) ([]byte, error) {
	compressed, err := base64.StdEncoding.DecodeString(s)
	if err != nil {
		return nil, fmt.Errorf("base64: %w", err)
	}
	raw, err := zstdDecoder.DecodeAll(compressed, nil)
	if err != nil {
		return nil, fmt.Errorf("zstd: %w", err)
	}
	if len(raw) != wantBytes {
		return nil, fmt.Errorf("channel payload is %d bytes, want %d", len(raw), wantBytes)
	}
	return raw, nil
}
