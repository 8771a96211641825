package vat

import (
	"github.com/pkg/errors"
)

// FrameBuffer accumulates sampled poses into the canonical frame-major layout:
// the pose of global frame g occupies floats [g*stride, (g+1)*stride) where stride = (boneCount+1)*16.
type FrameBuffer struct {
	boneCount   int
	totalFrames int
	data        []float32
	written     []bool
	count       int
}

// NewFrameBuffer allocates a zeroed buffer of (boneCount+1)*16*totalFrames floats.
//
// Parameters:
//   - boneCount: bones per pose, not counting the reserved slot
//   - totalFrames: number of rows, at least 1
//
// Returns:
//   - *FrameBuffer: the empty buffer
func NewFrameBuffer(boneCount, totalFrames int) *FrameBuffer {
	if boneCount < 0 || totalFrames < 1 {
		panic("vat: NewFrameBuffer requires boneCount >= 0 and totalFrames >= 1")
	}
	return &FrameBuffer{
		boneCount:   boneCount,
		totalFrames: totalFrames,
		data:        make([]float32, PoseFloats(boneCount)*totalFrames),
		written:     make([]bool, totalFrames),
	}
}

// BoneCount returns the bone count the buffer was sized for.
func (b *FrameBuffer) BoneCount() int {
	return b.boneCount
}

// TotalFrames returns the number of rows.
func (b *FrameBuffer) TotalFrames() int {
	return b.totalFrames
}

// Stride returns the floats per frame.
func (b *FrameBuffer) Stride() int {
	return PoseFloats(b.boneCount)
}

// Write copies pose into the row for global frame. A frame outside [0, TotalFrames) is a scheduling bug
// and panics with an *OutOfRangeFrameError.
//
// Parameters:
//   - global: the global frame index
//   - pose: exactly Stride() floats
//
// Returns:
//   - error: wraps ErrPoseSize if pose has the wrong length
func (b *FrameBuffer) Write(global int, pose []float32) error {
	if global < 0 || global >= b.totalFrames {
		panic(&OutOfRangeFrameError{Index: global, Total: b.totalFrames})
	}
	stride := b.Stride()
	if len(pose) != stride {
		return errors.Wrapf(ErrPoseSize, "frame %d: got %d floats, want %d", global, len(pose), stride)
	}
	copy(b.data[global*stride:], pose)
	if !b.written[global] {
		b.written[global] = true
		b.count++
	}
	return nil
}

// Written returns how many distinct frames have been written.
func (b *FrameBuffer) Written() int {
	return b.count
}

// Complete reports whether every frame has been written.
func (b *FrameBuffer) Complete() bool {
	return b.count == b.totalFrames
}

// Floats returns the backing data. The slice is shared, not copied.
func (b *FrameBuffer) Floats() []float32 {
	return b.data
}

// Frame returns the row of global frame as a pose view.
func (b *FrameBuffer) Frame(global int) PoseMatrixSet {
	stride := b.Stride()
	return PoseMatrixSet(b.data[global*stride : (global+1)*stride])
}

// frameBufferFrom wraps decoded data as a fully written buffer.
func frameBufferFrom(data []float32, boneCount, totalFrames int) (*FrameBuffer, error) {
	if boneCount < 0 || totalFrames < 1 || len(data) != PoseFloats(boneCount)*totalFrames {
		return nil, &CorruptEncodingError{
			Reason: "payload does not match dimensions",
			Err:    errors.Errorf("%d floats for %d bones x %d frames", len(data), boneCount, totalFrames),
		}
	}
	written := make([]bool, totalFrames)
	for i := range written {
		written[i] = true
	}
	return &FrameBuffer{
		boneCount:   boneCount,
		totalFrames: totalFrames,
		data:        data,
		written:     written,
		count:       totalFrames,
	}, nil
}
