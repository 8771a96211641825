package model

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewChainSkeleton(t *testing.T) {
	_, err := NewChainSkeleton(0, 1)
	require.Error(t, err)

	skel, err := NewChainSkeleton(3, 2)
	require.NoError(t, err)
	assert.Equal(t, 3, skel.BoneCount())
	assert.Equal(t, []int32{0}, skel.RootBoneIndices)
	assert.Equal(t, int32(1), skel.Bones[2].ParentIndex)
	assert.Equal(t, int32(2), skel.BoneNameToIndex["segment_2"])

	// inverse bind of the tip undoes its rest height of 4
	assert.InDelta(t, -4, skel.Bones[2].InverseBindMatrix[13], 1e-6)
}

func TestSwingClipLoops(t *testing.T) {
	skel, err := NewChainSkeleton(2, 1)
	require.NoError(t, err)
	clip := SwingClip("swing", skel, 2, 0.5, 8)

	require.Len(t, clip.Channels, 2)
	keys := clip.Channels[0].RotationKeys
	require.Len(t, keys, 9)
	assert.Equal(t, float32(0), keys[0].Time)
	assert.Equal(t, float32(2), keys[8].Time)
	for c := range 4 {
		assert.InDelta(t, keys[0].Value[c], keys[8].Value[c], 1e-6)
	}

	// the root peaks a quarter loop in
	peak := keys[2].Value
	assert.InDelta(t, math.Sin(0.25), peak[2], 1e-6)
	assert.InDelta(t, math.Cos(0.25), peak[3], 1e-6)

	// bone 1 runs a quarter cycle ahead in phase, so it starts at its peak
	assert.InDelta(t, math.Sin(0.25), clip.Channels[1].RotationKeys[0].Value[2], 1e-6)
}

func TestSwingClipSkins(t *testing.T) {
	skel, err := NewChainSkeleton(4, 1)
	require.NoError(t, err)
	clip := SwingClip("swing", skel, 1, 0.3, 4)

	locals, err := skel.EvaluateClip(clip, 0.6)
	require.NoError(t, err)
	out := make([]float32, (skel.BoneCount()+1)*16)
	require.NoError(t, skel.SkinningMatrices(locals, out))

	// the root rotates about its own origin, so its skinning matrix keeps a zero translation
	assert.InDelta(t, 0, out[12], 1e-6)
	assert.InDelta(t, 0, out[13], 1e-6)
	// the reserved slot stays identity
	assert.Equal(t, float32(1), out[4*16])
	assert.Equal(t, float32(1), out[4*16+15])
}
