package vat

import (
	"context"

	"github.com/pkg/errors"
)

// PoseMatrixSet is one sampled pose: (boneCount+1) column-major 4x4 matrices laid out contiguously.
type PoseMatrixSet []float32

// PoseFloats returns the number of floats in a pose for the given bone count.
func PoseFloats(boneCount int) int {
	return (boneCount + 1) * 16
}

// Matrix returns the 16 floats of matrix i.
func (p PoseMatrixSet) Matrix(i int) []float32 {
	return p[i*16 : (i+1)*16]
}

// Sampler captures poses from an AnimationHost.
type Sampler struct {
	host AnimationHost
}

// NewSampler creates a pose sampler over host.
//
// Parameters:
//   - host: the animation host, must not be nil
//
// Returns:
//   - *Sampler: the sampler
func NewSampler(host AnimationHost) *Sampler {
	if host == nil {
		panic("vat: NewSampler requires a non-nil AnimationHost")
	}
	return &Sampler{host: host}
}

// Sample poses mesh's skeleton at clip.From+frame, waits for the host to evaluate it, then reads the
// matrices. The returned set is a private copy.
//
// Parameters:
//   - ctx: cancels the host wait
//   - mesh: the mesh whose skeleton is sampled
//   - clip: the clip to sample
//   - frame: local frame inside the clip
//
// Returns:
//   - PoseMatrixSet: (BoneCount+1)*16 floats
//   - error: *MissingSkeletonError, ErrPoseSize, or a host error
func (s *Sampler) Sample(ctx context.Context, mesh Mesh, clip AnimationClip, frame int) (PoseMatrixSet, error) {
	skel := mesh.Skeleton()
	if skel == nil {
		return nil, &MissingSkeletonError{Mesh: mesh.Name()}
	}
	if err := s.host.GoToFrame(ctx, skel, clip, clip.Frame(frame)); err != nil {
		return nil, errors.Wrapf(err, "seeking %q to frame %d", clip.Name, frame)
	}
	return s.read(skel, mesh)
}

// SampleRest captures the bind pose of mesh's skeleton.
//
// Parameters:
//   - ctx: cancels the host wait
//   - mesh: the mesh whose skeleton is sampled
//
// Returns:
//   - PoseMatrixSet: (BoneCount+1)*16 floats
//   - error: *MissingSkeletonError, ErrPoseSize, or a host error
func (s *Sampler) SampleRest(ctx context.Context, mesh Mesh) (PoseMatrixSet, error) {
	skel := mesh.Skeleton()
	if skel == nil {
		return nil, &MissingSkeletonError{Mesh: mesh.Name()}
	}
	if err := s.host.ReturnToRest(ctx, skel); err != nil {
		return nil, errors.Wrap(err, "returning to rest pose")
	}
	return s.read(skel, mesh)
}

func (s *Sampler) read(skel Skeleton, mesh Mesh) (PoseMatrixSet, error) {
	m, err := s.host.TransformMatrices(skel, mesh)
	if err != nil {
		return nil, errors.Wrap(err, "reading transform matrices")
	}
	if want := PoseFloats(skel.BoneCount()); len(m) != want {
		return nil, errors.Wrapf(ErrPoseSize, "host returned %d floats, want %d", len(m), want)
	}
	return PoseMatrixSet(append([]float32(nil), m...)), nil
}
