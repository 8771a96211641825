package vat

import "context"

// Skeleton is the read-only view of a rig the baker needs. The animation host owns it.
// Implementations must be comparable, usually a pointer, since bakes claim skeletons by identity.
type Skeleton interface {
	// BoneCount returns the number of bones. It must not change while a bake holds the skeleton.
	BoneCount() int
}

// Mesh is a renderable bound (or not) to a skeleton.
type Mesh interface {
	// Name identifies the mesh in errors and logs.
	Name() string

	// Skeleton returns the bound skeleton, or nil when the mesh is not skinned.
	Skeleton() Skeleton
}

// AnimationHost is the external engine that evaluates animation ticks.
// The baker drives it one frame at a time and never issues a second request before the first resolves.
type AnimationHost interface {
	// GoToFrame seeks the clip to a frame and blocks until the host has evaluated the pose.
	// This is the bake's suspension point: transform matrices read before it returns are stale.
	//
	// Parameters:
	//   - ctx: cancels the wait
	//   - skel: the skeleton to pose
	//   - clip: the clip being sampled
	//   - frame: the host timeline frame (clip.From + local frame)
	//
	// Returns:
	//   - error: non-nil if the seek failed or ctx was cancelled
	GoToFrame(ctx context.Context, skel Skeleton, clip AnimationClip, frame float32) error

	// ReturnToRest resets the skeleton to its bind pose and blocks until evaluated.
	//
	// Parameters:
	//   - ctx: cancels the wait
	//   - skel: the skeleton to reset
	//
	// Returns:
	//   - error: non-nil if the reset failed or ctx was cancelled
	ReturnToRest(ctx context.Context, skel Skeleton) error

	// TransformMatrices returns the evaluated skinning matrices of skel relative to mesh:
	// (BoneCount+1)*16 floats, column-major, with the reserved slot at index BoneCount.
	//
	// Parameters:
	//   - skel: the evaluated skeleton
	//   - mesh: the mesh the matrices are relative to
	//
	// Returns:
	//   - []float32: the flat matrix set, owned by the caller
	//   - error: non-nil if the matrices cannot be read
	TransformMatrices(skel Skeleton, mesh Mesh) ([]float32, error)
}

// Renderable receives a finished animation texture. Applying a bake is the final lifecycle step.
type Renderable interface {
	// ApplyVAT binds the texture for playback.
	//
	// Parameters:
	//   - tex: the encoded animation texture
	//
	// Returns:
	//   - error: non-nil if the target could not accept the texture
	ApplyVAT(tex *Texture) error
}
