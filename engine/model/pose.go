package model

import (
	"fmt"

	"github.com/Carmen-Shannon/oxy-vat/common"
	"github.com/go-gl/mathgl/mgl32"
)

// restLocals returns a copy of every bone's rest transform.
func (s *Skeleton) restLocals() []Transform {
	locals := make([]Transform, len(s.Bones))
	for i, b := range s.Bones {
		locals[i] = b.LocalTransform
	}
	return locals
}

// worldMatrices walks the hierarchy in bone order, so every parent's world matrix exists
// before its children read it.
func (s *Skeleton) worldMatrices(locals []Transform) []mgl32.Mat4 {
	worlds := make([]mgl32.Mat4, len(s.Bones))
	for i, b := range s.Bones {
		local := locals[i].Matrix()
		if b.ParentIndex < 0 {
			worlds[i] = local
			continue
		}
		worlds[i] = worlds[b.ParentIndex].Mul4(local)
	}
	return worlds
}

// EvaluateClip samples a clip at the given time in seconds. Bones without a channel, and
// channels missing a component, keep their rest values.
//
// Parameters:
//   - clip: the clip to sample
//   - seconds: the time within the clip, clamped to its keyframe range
//
// Returns:
//   - []Transform: one local transform per bone
//   - error: an error if a channel targets a bone outside the skeleton
func (s *Skeleton) EvaluateClip(clip *AnimationClip, seconds float32) ([]Transform, error) {
	locals := s.restLocals()
	if clip == nil {
		return locals, nil
	}
	for _, ch := range clip.Channels {
		if ch.BoneIndex < 0 || int(ch.BoneIndex) >= len(locals) {
			return nil, fmt.Errorf("model: clip %q targets bone %d, skeleton has %d", clip.Name, ch.BoneIndex, len(locals))
		}
		t := &locals[ch.BoneIndex]
		if len(ch.PositionKeys) > 0 {
			t.Translation = sampleVector(ch.PositionKeys, seconds)
		}
		if len(ch.RotationKeys) > 0 {
			t.Rotation = sampleRotation(ch.RotationKeys, seconds)
		}
		if len(ch.ScaleKeys) > 0 {
			t.Scale = sampleVector(ch.ScaleKeys, seconds)
		}
	}
	return locals, nil
}

// SkinningMatrices writes world * inverseBind for every bone into out, followed by an
// identity matrix in the reserved trailing slot.
//
// Parameters:
//   - locals: one local transform per bone
//   - out: destination of (BoneCount()+1) * 16 floats
//
// Returns:
//   - error: an error if either slice has the wrong length
func (s *Skeleton) SkinningMatrices(locals []Transform, out []float32) error {
	n := len(s.Bones)
	if len(locals) != n {
		return fmt.Errorf("model: got %d local transforms for %d bones", len(locals), n)
	}
	if len(out) != (n+1)*common.MatrixFloats {
		return fmt.Errorf("model: matrix slice holds %d floats, want %d", len(out), (n+1)*common.MatrixFloats)
	}
	worlds := s.worldMatrices(locals)
	for i := range s.Bones {
		skin := worlds[i].Mul4(mgl32.Mat4(s.Bones[i].InverseBindMatrix))
		copy(out[i*common.MatrixFloats:], skin[:])
	}
	common.Identity(out[n*common.MatrixFloats:])
	return nil
}
