// Package vectors builds the deterministic input buffers of a conformance
// run. Every device must see the same bytes, so the source is a fixed-seed
// integer hash instead of a random generator.
package vectors

import (
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"errors"
	"fmt"
	"math"

	"fortio.org/safecast"

	"rorsk/internal/kernel"
)

const (
	noiseSeed     uint32 = 31337
	noiseMul      uint32 = 1619
	noiseCubeMul  uint32 = 60493
	noiseDivisor         = 2147483648.0
	int32Scale           = 1e9
	bytesPerValue        = 4
)

// ErrOneSided reports an integer vector without both signs; signed division
// would not be exercised on both sides of zero.
var ErrOneSided = errors.New("vectors: generated integers do not cover both signs")

// WhiteNoise hashes x into a float32. The hash bits are reinterpreted as a
// float and scaled by 2^-31, so the stream covers every exponent, infinities
// and NaNs included.
func WhiteNoise(x int) float32 {
	n := noiseSeed
	n ^= noiseMul * uint32(x)
	n = n * n * n * noiseCubeMul
	return math.Float32frombits(n) / noiseDivisor
}

// Float32 returns n noise values.
func Float32(n int) []float32 {
	out := make([]float32, n)
	for i := range out {
		out[i] = WhiteNoise(i)
	}
	return out
}

// Int32 returns n noise values mapped to (noise - 0.5) * 1e9, saturated to
// the int32 range with NaN mapped to 0. Zeros are replaced by 1 so integer
// division never traps.
func Int32(n int) ([]int32, error) {
	out := make([]int32, n)
	var pos, neg bool
	for i := range out {
		v := saturate(float32(WhiteNoise(i)-0.5) * int32Scale)
		if v == 0 {
			v = 1
		}
		pos = pos || v > 0
		neg = neg || v < 0
		out[i] = v
	}
	if n > 0 && !(pos && neg) {
		return nil, ErrOneSided
	}
	return out, nil
}

func saturate(f float32) int32 {
	switch {
	case f != f:
		return 0
	case f >= math.MaxInt32:
		return math.MaxInt32
	case f <= math.MinInt32:
		return math.MinInt32
	}
	return int32(f)
}

// Float32Bytes encodes values little-endian.
func Float32Bytes(vals []float32) []byte {
	out := make([]byte, bytesPerValue*len(vals))
	for i, v := range vals {
		binary.LittleEndian.PutUint32(out[bytesPerValue*i:], math.Float32bits(v))
	}
	return out
}

// Int32Bytes encodes values little-endian.
func Int32Bytes(vals []int32) []byte {
	out := make([]byte, bytesPerValue*len(vals))
	for i, v := range vals {
		binary.LittleEndian.PutUint32(out[bytesPerValue*i:], uint32(v))
	}
	return out
}

// Fingerprint is the hex SHA-256 of data.
func Fingerprint(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

// Vector is one generated input buffer: two operand halves of Count/2
// elements each.
type Vector struct {
	Elem   kernel.ElemType
	Data   []byte
	Count  int
	SHA256 string
}

// Half is the element offset of the second operand, as a kernel offset.
func (v Vector) Half() uint32 {
	// Count is validated against uint32 in Generate.
	h, _ := safecast.Conv[uint32](v.Count / 2)
	return h
}

// Groups is the workgroup count that covers the first half.
func (v Vector) Groups() int {
	return v.Count / kernel.LocalSize / 2
}

// Generate builds the vector for elem from sizeBytes bytes per operand.
// The per-operand element count must be a positive multiple of the
// workgroup size.
func Generate(elem kernel.ElemType, sizeBytes int) (Vector, error) {
	perOperand := sizeBytes / bytesPerValue
	if perOperand <= 0 || perOperand%kernel.LocalSize != 0 {
		return Vector{}, fmt.Errorf("data size %d bytes: %d elements per operand is not a positive multiple of %d",
			sizeBytes, perOperand, kernel.LocalSize)
	}
	if _, err := safecast.Conv[uint32](perOperand * 2); err != nil {
		return Vector{}, fmt.Errorf("data size %d bytes: %w", sizeBytes, err)
	}
	count := perOperand * 2

	var data []byte
	switch elem {
	case kernel.Int32:
		vals, err := Int32(count)
		if err != nil {
			return Vector{}, err
		}
		data = Int32Bytes(vals)
	default:
		data = Float32Bytes(Float32(count))
	}
	return Vector{
		Elem:   elem,
		Data:   data,
		Count:  count,
		SHA256: Fingerprint(data),
	}, nil
}
