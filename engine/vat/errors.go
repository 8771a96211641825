package vat

import (
	"fmt"

	"github.com/pkg/errors"
)

var (
	// ErrBakeState is returned when an operation is invoked on a Baker in the wrong lifecycle state.
	ErrBakeState = errors.New("vat: invalid bake state")
	// ErrSkeletonClaimed is returned when a skeleton is already being sampled by another in-flight bake.
	ErrSkeletonClaimed = errors.New("vat: skeleton already claimed by another bake")
	// ErrPoseSize is returned when a pose does not hold (boneCount+1)*16 floats.
	ErrPoseSize = errors.New("vat: pose matrix set has wrong size")
	// ErrInvalidClip is returned for a clip whose frame range is empty.
	ErrInvalidClip = errors.New("vat: invalid animation clip")
	// ErrInvalidParams is returned for playback parameters that cannot select a frame.
	ErrInvalidParams = errors.New("vat: invalid playback parameters")
	// ErrTextureNotReady is returned when playback is evaluated before a texture has been applied.
	ErrTextureNotReady = errors.New("vat: animation texture not applied")
)

// MissingSkeletonError reports a mesh that has no skeleton bound.
type MissingSkeletonError struct {
	Mesh string
}

func (e *MissingSkeletonError) Error() string {
	return fmt.Sprintf("vat: mesh %q has no skeleton bound", e.Mesh)
}

// EmptyBufferError reports a texture or document requested from a buffer that was never fully populated,
// or that has been released.
type EmptyBufferError struct {
	Written int
	Total   int
}

func (e *EmptyBufferError) Error() string {
	return fmt.Sprintf("vat: baked buffer not populated (%d of %d frames written)", e.Written, e.Total)
}

// CorruptEncodingError reports a malformed serialized buffer.
type CorruptEncodingError struct {
	Reason string
	Err    error
}

func (e *CorruptEncodingError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("vat: corrupt encoding: %s: %v", e.Reason, e.Err)
	}
	return "vat: corrupt encoding: " + e.Reason
}

func (e *CorruptEncodingError) Unwrap() error {
	return e.Err
}

// OutOfRangeFrameError reports a global frame index outside [0, Total).
// The packer panics with this value since a bad index can only come from a scheduling bug.
type OutOfRangeFrameError struct {
	Index int
	Total int
}

func (e *OutOfRangeFrameError) Error() string {
	return fmt.Sprintf("vat: global frame %d out of range [0, %d)", e.Index, e.Total)
}
