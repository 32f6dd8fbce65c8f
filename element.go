package bufpage

import (
	"encoding/binary"
	"fmt"
	"math"
)

// ElementType is the storage format of buffer elements.
// Multi-byte elements are little-endian.
type ElementType int

const (
	Uint8 ElementType = iota
	Uint16
	Float32
	Float64
)

func (t ElementType) String() string {
	switch t {
	case Uint8:
		return "uint8"
	case Uint16:
		return "uint16"
	case Float32:
		return "float32"
	case Float64:
		return "float64"
	default:
		return fmt.Sprintf("ElementType(%d)", int(t))
	}
}

// Size returns the number of bytes of one element.
func (t ElementType) Size() int {
	switch t {
	case Uint8:
		return 1
	case Uint16:
		return 2
	case Float32:
		return 4
	case Float64:
		return 8
	default:
		panic(fmt.Sprintf("unsupported element type: %d", int(t)))
	}
}

func (t ElementType) decode(b []byte) float64 {
	switch t {
	case Uint8:
		return float64(b[0])
	case Uint16:
		return float64(binary.LittleEndian.Uint16(b))
	case Float32:
		return float64(math.Float32frombits(binary.LittleEndian.Uint32(b)))
	default:
		return math.Float64frombits(binary.LittleEndian.Uint64(b))
	}
}

// encode stores v into b. Integer types round v and clamp it to their range.
func (t ElementType) encode(b []byte, v float64) {
	switch t {
	case Uint8:
		b[0] = uint8(clampRound(v, math.MaxUint8))
	case Uint16:
		binary.LittleEndian.PutUint16(b, uint16(clampRound(v, math.MaxUint16)))
	case Float32:
		binary.LittleEndian.PutUint32(b, math.Float32bits(float32(v)))
	default:
		binary.LittleEndian.PutUint64(b, math.Float64bits(v))
	}
}

func clampRound(v, hi float64) float64 {
	if math.IsNaN(v) || v <= 0 {
		return 0
	}
	if v >= hi {
		return hi
	}
	return math.Round(v)
}
