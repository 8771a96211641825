package model

import (
	"math"

	"github.com/Carmen-Shannon/oxy-vat/engine/vat"
)

// model is the implementation of the Model interface.
type model struct {
	name       string
	skeleton   *Skeleton
	animations []*AnimationClip
}

// Model defines the interface for a rigged mesh that can be baked into a vertex animation texture.
// A Model holds a skeleton hierarchy and the keyframed animation clips that drive it.
// Every Model satisfies vat.Mesh.
type Model interface {
	vat.Mesh

	// Skinned reports whether this model uses skeletal animation.
	//
	// Returns:
	//   - bool: true if the model has bone data
	Skinned() bool

	// Rig retrieves the bone hierarchy for this model.
	// Returns nil for static (non-skinned) models.
	//
	// Returns:
	//   - *Skeleton: the skeleton or nil
	Rig() *Skeleton

	// Animations retrieves all animation clips bundled with this model.
	//
	// Returns:
	//   - []*AnimationClip: the animation clips
	Animations() []*AnimationClip

	// AnimationCount returns the number of available animation clips.
	//
	// Returns:
	//   - int: the animation count
	AnimationCount() int

	// AnimationNames returns the names of all animation clips.
	//
	// Returns:
	//   - []string: the animation clip names
	AnimationNames() []string

	// GetAnimationIndex returns the index of an animation by name, or -1 if not found.
	//
	// Parameters:
	//   - name: the animation clip name to search for
	//
	// Returns:
	//   - int: the animation index, or -1 if not found
	GetAnimationIndex(name string) int

	// ClipRanges lays every animation clip out on a shared frame timeline, one clip after
	// another. A clip lasting d seconds occupies round(d*fps)+1 frames, so both its first
	// and last keyframe are sampled.
	//
	// Parameters:
	//   - fps: the sampling rate in frames per second
	//
	// Returns:
	//   - []vat.AnimationClip: one frame range per animation clip, in clip order
	ClipRanges(fps float32) []vat.AnimationClip
}

var _ Model = &model{}

// NewModel creates a new Model instance with the specified options applied.
//
// Parameters:
//   - options: a variadic list of ModelBuilderOption functions to configure the Model
//
// Returns:
//   - Model: a new instance of Model configured with the provided options
func NewModel(options ...ModelBuilderOption) Model {
	m := &model{}
	for _, opt := range options {
		opt(m)
	}
	return m
}

func (m *model) Name() string {
	return m.name
}

// Skeleton returns an untyped nil for unrigged models so callers can compare against nil.
func (m *model) Skeleton() vat.Skeleton {
	if m.skeleton == nil {
		return nil
	}
	return m.skeleton
}

func (m *model) Skinned() bool {
	return m.skeleton != nil && len(m.skeleton.Bones) > 0
}

func (m *model) Rig() *Skeleton {
	return m.skeleton
}

func (m *model) Animations() []*AnimationClip {
	return m.animations
}

func (m *model) AnimationCount() int {
	return len(m.animations)
}

func (m *model) AnimationNames() []string {
	names := make([]string, len(m.animations))
	for i, anim := range m.animations {
		names[i] = anim.Name
	}
	return names
}

func (m *model) GetAnimationIndex(name string) int {
	for i, anim := range m.animations {
		if anim.Name == name {
			return i
		}
	}
	return -1
}

func (m *model) ClipRanges(fps float32) []vat.AnimationClip {
	ranges := make([]vat.AnimationClip, len(m.animations))
	var cursor float32
	for i, anim := range m.animations {
		span := float32(math.Round(float64(anim.Duration * fps)))
		ranges[i] = vat.AnimationClip{Name: anim.Name, From: cursor, To: cursor + span}
		cursor += span + 1
	}
	return ranges
}
