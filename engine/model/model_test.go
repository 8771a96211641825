package model

import (
	"math"
	"testing"

	"github.com/Carmen-Shannon/oxy-vat/engine/vat"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func translated(x, y, z float32) Transform {
	t := IdentityTransform()
	t.Translation = [3]float32{x, y, z}
	return t
}

func twoBoneSkeleton(t *testing.T) *Skeleton {
	t.Helper()
	s, err := NewSkeleton([]Bone{
		{Name: "root", ParentIndex: -1, LocalTransform: translated(0, 1, 0)},
		{Name: "tip", ParentIndex: 0, LocalTransform: translated(0, 1, 0)},
	})
	require.NoError(t, err)
	return s
}

func liftClip() *AnimationClip {
	return &AnimationClip{
		Name:     "lift",
		Duration: 1,
		Channels: []AnimationChannel{{
			BoneIndex: 0,
			PositionKeys: []VectorKeyframe{
				{Time: 0, Value: [3]float32{0, 1, 0}},
				{Time: 1, Value: [3]float32{0, 3, 0}},
			},
		}},
	}
}

func assertIdentity(t *testing.T, m []float32) {
	t.Helper()
	for i, v := range m {
		want := float32(0)
		if i%5 == 0 {
			want = 1
		}
		assert.InDelta(t, want, v, 1e-5, "element %d", i)
	}
}

func TestNewSkeleton(t *testing.T) {
	s := twoBoneSkeleton(t)
	assert.Equal(t, 2, s.BoneCount())
	assert.Equal(t, []int32{0}, s.RootBoneIndices)
	assert.Equal(t, int32(1), s.BoneNameToIndex["tip"])

	// computed inverse bind of the tip undoes its rest world translation
	assert.InDelta(t, -2, s.Bones[1].InverseBindMatrix[13], 1e-6)
}

func TestNewSkeletonRejectsBadHierarchy(t *testing.T) {
	_, err := NewSkeleton([]Bone{
		{Name: "child", ParentIndex: 1, LocalTransform: IdentityTransform()},
		{Name: "parent", ParentIndex: -1, LocalTransform: IdentityTransform()},
	})
	require.Error(t, err)

	_, err = NewSkeleton([]Bone{{Name: "flat", ParentIndex: -1, LocalTransform: Transform{}}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "singular")
}

func TestRestPoseSkinsToIdentity(t *testing.T) {
	s := twoBoneSkeleton(t)
	locals, err := s.EvaluateClip(nil, 0)
	require.NoError(t, err)

	out := make([]float32, vat.PoseFloats(s.BoneCount()))
	require.NoError(t, s.SkinningMatrices(locals, out))
	for i := 0; i <= s.BoneCount(); i++ {
		assertIdentity(t, out[i*16:(i+1)*16])
	}
}

func TestEvaluateClipInterpolates(t *testing.T) {
	s := twoBoneSkeleton(t)
	half := float32(math.Sin(math.Pi / 8))
	clip := liftClip()
	clip.Channels = append(clip.Channels, AnimationChannel{
		BoneIndex: 1,
		RotationKeys: []QuaternionKeyframe{
			{Time: 0, Value: [4]float32{0, 0, 0, 1}},
			{Time: 1, Value: [4]float32{0, 0, float32(math.Sqrt2 / 2), float32(math.Sqrt2 / 2)}},
		},
	})

	locals, err := s.EvaluateClip(clip, 0.5)
	require.NoError(t, err)
	assert.InDeltaSlice(t, []float32{0, 2, 0}, locals[0].Translation[:], 1e-6)
	assert.InDelta(t, half, locals[1].Rotation[2], 1e-5)
	assert.Equal(t, [3]float32{0, 1, 0}, locals[1].Translation, "unanimated components keep the rest value")

	// past the last key clamps
	locals, err = s.EvaluateClip(clip, 5)
	require.NoError(t, err)
	assert.InDeltaSlice(t, []float32{0, 3, 0}, locals[0].Translation[:], 1e-6)

	out := make([]float32, vat.PoseFloats(2))
	locals, err = s.EvaluateClip(liftClip(), 0.5)
	require.NoError(t, err)
	require.NoError(t, s.SkinningMatrices(locals, out))
	assert.InDelta(t, 1, out[13], 1e-5)
	assert.InDelta(t, 1, out[16+13], 1e-5)
	assertIdentity(t, out[32:])
}

func TestSkinningMatricesApplyInverseBindLast(t *testing.T) {
	s := twoBoneSkeleton(t)
	locals := s.restLocals()
	// quarter turn about z around the root's rest position
	locals[0].Rotation = [4]float32{0, 0, float32(math.Sqrt2 / 2), float32(math.Sqrt2 / 2)}

	out := make([]float32, vat.PoseFloats(2))
	require.NoError(t, s.SkinningMatrices(locals, out))
	// world * inverseBind maps the bind-space point (0,1,0) onto itself, so the translation is
	// (0,1,0) - R*(0,1,0) = (1,1,0)
	assert.InDeltaSlice(t, []float32{1, 1, 0, 1}, out[12:16], 1e-5)
	assert.InDelta(t, 0, out[0], 1e-5)
	assert.InDelta(t, 1, out[1], 1e-5)
	assertIdentity(t, out[32:])
}

func TestEvaluateClipRejectsForeignBone(t *testing.T) {
	s := twoBoneSkeleton(t)
	_, err := s.EvaluateClip(&AnimationClip{Name: "bad", Channels: []AnimationChannel{{BoneIndex: 9}}}, 0)
	require.Error(t, err)
}

func TestSkinningMatricesChecksLengths(t *testing.T) {
	s := twoBoneSkeleton(t)
	assert.Error(t, s.SkinningMatrices(make([]Transform, 1), make([]float32, 48)))
	assert.Error(t, s.SkinningMatrices(s.restLocals(), make([]float32, 32)))
}

func TestModel(t *testing.T) {
	s := twoBoneSkeleton(t)
	idle := &AnimationClip{Name: "idle", Duration: 0.5}
	m := NewModel(WithName("walker"), WithSkeleton(s), WithAnimations(liftClip(), idle))

	assert.Equal(t, "walker", m.Name())
	assert.True(t, m.Skinned())
	assert.Equal(t, vat.Skeleton(s), m.Skeleton())
	assert.Equal(t, []string{"lift", "idle"}, m.AnimationNames())
	assert.Equal(t, 2, m.AnimationCount())
	assert.Equal(t, 1, m.GetAnimationIndex("idle"))
	assert.Equal(t, -1, m.GetAnimationIndex("run"))

	ranges := m.ClipRanges(30)
	assert.Equal(t, []vat.AnimationClip{
		{Name: "lift", From: 0, To: 30},
		{Name: "idle", From: 31, To: 46},
	}, ranges)
	assert.Equal(t, 31, ranges[0].FrameCount())
	assert.Equal(t, 16, ranges[1].FrameCount())
}

func TestUnriggedModelHasNilSkeleton(t *testing.T) {
	m := NewModel(WithName("prop"))
	assert.False(t, m.Skinned())
	assert.Nil(t, m.Rig())
	assert.True(t, m.Skeleton() == nil)
}
