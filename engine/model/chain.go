package model

import (
	"fmt"
	"math"
)

// NewChainSkeleton builds a single chain of bones, the root at the origin and each bone
// segmentLength above its parent along +Y. Useful for procedural rigs and benchmarks.
//
// Parameters:
//   - boneCount: the number of bones, at least 1
//   - segmentLength: the rest distance between a bone and its parent
//
// Returns:
//   - *Skeleton: the chain
//   - error: an error if boneCount is below 1
func NewChainSkeleton(boneCount int, segmentLength float32) (*Skeleton, error) {
	if boneCount < 1 {
		return nil, fmt.Errorf("model: chain needs at least one bone, got %d", boneCount)
	}
	bones := make([]Bone, boneCount)
	for i := range bones {
		local := IdentityTransform()
		if i > 0 {
			local.Translation = [3]float32{0, segmentLength, 0}
		}
		bones[i] = Bone{
			Name:           fmt.Sprintf("segment_%d", i),
			ParentIndex:    int32(i - 1),
			LocalTransform: local,
		}
	}
	return NewSkeleton(bones)
}

// SwingClip keys every bone of skel to swing about Z by up to amplitude radians, each bone a
// quarter cycle ahead of its parent. The clip loops: its last key equals its first.
//
// Parameters:
//   - name: the clip name
//   - skel: the skeleton the clip animates
//   - duration: the loop length in seconds
//   - amplitude: the peak swing angle in radians
//   - keys: the number of key intervals per loop, at least 2
//
// Returns:
//   - *AnimationClip: the clip
func SwingClip(name string, skel *Skeleton, duration, amplitude float32, keys int) *AnimationClip {
	keys = max(keys, 2)
	clip := &AnimationClip{
		Name:           name,
		Duration:       duration,
		TicksPerSecond: float32(keys) / duration,
		Channels:       make([]AnimationChannel, skel.BoneCount()),
	}
	for b := range clip.Channels {
		phase := float64(b) * math.Pi / 2
		rot := make([]QuaternionKeyframe, keys+1)
		for k := range rot {
			t := duration * float32(k) / float32(keys)
			angle := float64(amplitude) * math.Sin(2*math.Pi*float64(k)/float64(keys)+phase)
			rot[k] = QuaternionKeyframe{
				Time:  t,
				Value: [4]float32{0, 0, float32(math.Sin(angle / 2)), float32(math.Cos(angle / 2))},
			}
		}
		clip.Channels[b] = AnimationChannel{BoneIndex: int32(b), RotationKeys: rot}
	}
	return clip
}
