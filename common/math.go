package common

import (
	"encoding/binary"
	"math"
	"unsafe"
)

// MatrixFloats is the number of float32 values in a flat 4x4 matrix.
const MatrixFloats = 16

// Identity resets a 4x4 matrix (flat slice) to the identity matrix.
// The matrix is stored in column-major order.
//
// Parameters:
//   - m: destination slice (must be at least 16 elements)
func Identity(m []float32) {
	for i := range m[:MatrixFloats] {
		m[i] = 0
	}
	m[0], m[5], m[10], m[15] = 1, 1, 1, 1
}

// Fract returns the fractional part of x in [0, 1), matching the WGSL fract builtin on f32
// (x - floor(x)). For tiny negative inputs the subtraction can round up to exactly 1,
// callers that index with the result must clamp.
//
// Parameters:
//   - x: the input value
//
// Returns:
//   - float32: x - floor(x), rounded to float32
func Fract(x float32) float32 {
	return float32(x - Floor(x))
}

// Floor returns the greatest integer value less than or equal to x. The float64 round trip is exact
// for every float32.
func Floor(x float32) float32 {
	return float32(math.Floor(float64(x)))
}

// SliceToBytes converts any slice to a byte slice for GPU buffer uploads.
// Uses unsafe pointer operations to create a view into the original data.
// WARNING: The returned slice shares memory with the input - do not modify.
//
// Parameters:
//   - data: source slice of any type
//
// Returns:
//   - []byte: byte slice view of the input data, or nil if input is empty
func SliceToBytes[T any](data []T) []byte {
	if len(data) == 0 {
		return nil
	}
	var zero T
	size := unsafe.Sizeof(zero)
	totalBytes := int(size) * len(data)
	return unsafe.Slice((*byte)(unsafe.Pointer(&data[0])), totalBytes)
}

// Float32sToBytes copies the IEEE-754 bit pattern of every value into a new
// little-endian byte slice. Unlike SliceToBytes the layout does not depend on host
// byte order, so the result is safe to persist.
//
// Parameters:
//   - data: the values to encode
//
// Returns:
//   - []byte: 4*len(data) bytes
func Float32sToBytes(data []float32) []byte {
	out := make([]byte, len(data)*4)
	for i, v := range data {
		binary.LittleEndian.PutUint32(out[i*4:], math.Float32bits(v))
	}
	return out
}

// BytesToFloat32s reinterprets little-endian bytes as float32 bit patterns.
// NaN payloads are preserved because values never pass through float64.
// Trailing bytes that do not fill a whole float are ignored, callers validate the length.
//
// Parameters:
//   - data: the encoded bytes
//
// Returns:
//   - []float32: len(data)/4 values
func BytesToFloat32s(data []byte) []float32 {
	out := make([]float32, len(data)/4)
	for i := range out {
		out[i] = math.Float32frombits(binary.LittleEndian.Uint32(data[i*4:]))
	}
	return out
}
