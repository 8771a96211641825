package model

import (
	"fmt"
	"sort"

	"github.com/go-gl/mathgl/mgl32"
)

// --- Transform & Skeleton Types ---

// Transform represents a decomposed transform for animation interpolation.
type Transform struct {
	// Translation is the position offset.
	Translation [3]float32

	// Rotation is the orientation as a quaternion (x, y, z, w).
	Rotation [4]float32

	// Scale is the scale factor along each axis.
	Scale [3]float32
}

// IdentityTransform returns a transform with no translation, no rotation and unit scale.
func IdentityTransform() Transform {
	return Transform{Rotation: [4]float32{0, 0, 0, 1}, Scale: [3]float32{1, 1, 1}}
}

// Matrix composes the transform as T * R * S.
//
// Returns:
//   - mgl32.Mat4: the column-major local matrix
func (t Transform) Matrix() mgl32.Mat4 {
	tr := mgl32.Translate3D(t.Translation[0], t.Translation[1], t.Translation[2])
	rot := toQuat(t.Rotation).Normalize().Mat4()
	sc := mgl32.Scale3D(t.Scale[0], t.Scale[1], t.Scale[2])
	return tr.Mul4(rot).Mul4(sc)
}

// Bone represents a single bone in a skeleton hierarchy.
type Bone struct {
	// Name is the bone's identifier (for debugging and animation targeting).
	Name string

	// ParentIndex is the index of the parent bone (-1 for root bones).
	// A parent must come before its children.
	ParentIndex int32

	// InverseBindMatrix transforms from model space to bone space at bind pose.
	// This is the inverse of the bone's world transform when the mesh was bound.
	InverseBindMatrix [16]float32

	// LocalTransform is the bone's rest transform relative to its parent.
	LocalTransform Transform
}

// Skeleton represents a bone hierarchy for skeletal animation.
// *Skeleton satisfies vat.Skeleton.
type Skeleton struct {
	// Bones is the array of all bones in the skeleton.
	Bones []Bone

	// RootBoneIndices are indices of bones with no parent.
	RootBoneIndices []int32

	// BoneNameToIndex maps bone names to their indices for quick lookup.
	BoneNameToIndex map[string]int32
}

// NewSkeleton validates the hierarchy and builds the lookup tables. Bones whose inverse bind
// matrix is all zeros get one computed from the rest pose.
//
// Parameters:
//   - bones: the bones, parents before children
//
// Returns:
//   - *Skeleton: the skeleton
//   - error: an error if a parent index is out of order or a rest pose is singular
func NewSkeleton(bones []Bone) (*Skeleton, error) {
	s := &Skeleton{
		Bones:           append([]Bone(nil), bones...),
		BoneNameToIndex: make(map[string]int32, len(bones)),
	}
	for i, b := range s.Bones {
		if b.ParentIndex >= int32(i) || b.ParentIndex < -1 {
			return nil, fmt.Errorf("model: bone %d (%q) has parent %d, parents must precede children", i, b.Name, b.ParentIndex)
		}
		if b.ParentIndex == -1 {
			s.RootBoneIndices = append(s.RootBoneIndices, int32(i))
		}
		if b.Name != "" {
			s.BoneNameToIndex[b.Name] = int32(i)
		}
	}

	rest := s.restLocals()
	worlds := s.worldMatrices(rest)
	for i := range s.Bones {
		if s.Bones[i].InverseBindMatrix != ([16]float32{}) {
			continue
		}
		if worlds[i].Det() == 0 {
			return nil, fmt.Errorf("model: bone %d (%q) has a singular rest transform", i, s.Bones[i].Name)
		}
		s.Bones[i].InverseBindMatrix = worlds[i].Inv()
	}
	return s, nil
}

// BoneCount returns the number of bones.
func (s *Skeleton) BoneCount() int {
	return len(s.Bones)
}

// --- Animation Types ---

// AnimationClip represents a single animation (walk, run, attack, etc.).
type AnimationClip struct {
	// Name is the animation identifier.
	Name string

	// Duration is the total length of the animation in seconds.
	Duration float32

	// TicksPerSecond is the sample rate of the animation.
	TicksPerSecond float32

	// Channels contains animation data for each animated bone.
	Channels []AnimationChannel
}

// AnimationChannel contains keyframe data for a single bone.
type AnimationChannel struct {
	// BoneIndex is the index of the bone this channel animates.
	BoneIndex int32

	// PositionKeys are keyframes for translation.
	PositionKeys []VectorKeyframe

	// RotationKeys are keyframes for rotation (quaternion).
	RotationKeys []QuaternionKeyframe

	// ScaleKeys are keyframes for scale.
	ScaleKeys []VectorKeyframe
}

// VectorKeyframe stores a 3D vector value at a specific time.
type VectorKeyframe struct {
	// Time is the keyframe timestamp in seconds.
	Time float32

	// Value is the 3D vector value at this keyframe.
	Value [3]float32
}

// QuaternionKeyframe stores a quaternion rotation at a specific time.
type QuaternionKeyframe struct {
	// Time is the keyframe timestamp in seconds.
	Time float32

	// Value is the quaternion value at this keyframe (x, y, z, w).
	Value [4]float32
}

// segment returns the keyframe pair surrounding t and the blend factor between them.
// Times before the first key clamp to it, times after the last key clamp to the last.
func segment(n int, at func(int) float32, t float32) (int, int, float32) {
	if n == 1 || t <= at(0) {
		return 0, 0, 0
	}
	if t >= at(n-1) {
		return n - 1, n - 1, 0
	}
	hi := sort.Search(n, func(i int) bool { return at(i) > t })
	lo := hi - 1
	span := at(hi) - at(lo)
	if span <= 0 {
		return hi, hi, 0
	}
	return lo, hi, (t - at(lo)) / span
}

func sampleVector(keys []VectorKeyframe, t float32) [3]float32 {
	lo, hi, f := segment(len(keys), func(i int) float32 { return keys[i].Time }, t)
	a, b := mgl32.Vec3(keys[lo].Value), mgl32.Vec3(keys[hi].Value)
	return a.Add(b.Sub(a).Mul(f))
}

func sampleRotation(keys []QuaternionKeyframe, t float32) [4]float32 {
	lo, hi, f := segment(len(keys), func(i int) float32 { return keys[i].Time }, t)
	q := mgl32.QuatSlerp(toQuat(keys[lo].Value).Normalize(), toQuat(keys[hi].Value).Normalize(), f)
	return [4]float32{q.V[0], q.V[1], q.V[2], q.W}
}

func toQuat(v [4]float32) mgl32.Quat {
	return mgl32.Quat{W: v[3], V: mgl32.Vec3{v[0], v[1], v[2]}}
}
