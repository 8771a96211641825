package vat

import (
	"encoding/base64"
	"fmt"

	"github.com/Carmen-Shannon/oxy-vat/common"
)

// EncodeBuffer serializes floats as standard base64 over their little-endian IEEE-754 bytes.
// The bit pattern of every value, NaN payloads included, survives DecodeBuffer unchanged.
//
// Parameters:
//   - data: the baked buffer
//
// Returns:
//   - string: the encoded payload
func EncodeBuffer(data []float32) string {
	return base64.StdEncoding.EncodeToString(common.Float32sToBytes(data))
}

// DecodeBuffer restores floats produced by EncodeBuffer.
//
// Parameters:
//   - s: the encoded payload
//
// Returns:
//   - []float32: the decoded buffer
//   - error: a *CorruptEncodingError if s is not valid base64 or does not hold whole floats
func DecodeBuffer(s string) ([]float32, error) {
	raw, err := base64.StdEncoding.DecodeString(s)
	if err != nil {
		return nil, &CorruptEncodingError{Reason: "invalid base64", Err: err}
	}
	if len(raw)%4 != 0 {
		return nil, &CorruptEncodingError{Reason: fmt.Sprintf("byte length %d is not a multiple of 4", len(raw))}
	}
	return common.BytesToFloat32s(raw), nil
}
