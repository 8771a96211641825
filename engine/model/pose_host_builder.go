package model

// PoseHostBuilderOption is a functional option for configuring a PoseHost via NewPoseHost.
type PoseHostBuilderOption func(*poseHost)

// WithFPS is an option builder that sets the timeline rate used to convert frames to seconds.
// Non-positive values are ignored.
//
// Parameters:
//   - fps: frames per second
//
// Returns:
//   - PoseHostBuilderOption: a function that applies the fps option to a pose host
func WithFPS(fps float32) PoseHostBuilderOption {
	return func(h *poseHost) {
		if fps > 0 {
			h.fps = fps
		}
	}
}

// WithTickDriven is an option builder that defers every evaluation to the next Tick call.
//
// Parameters:
//   - tickDriven: true to queue seeks until Tick
//
// Returns:
//   - PoseHostBuilderOption: a function that applies the tick-driven option to a pose host
func WithTickDriven(tickDriven bool) PoseHostBuilderOption {
	return func(h *poseHost) {
		h.tickDriven = tickDriven
	}
}

// WithModels is an option builder that registers models at construction. Models without a
// skeleton are skipped.
//
// Parameters:
//   - models: the rigged models to register
//
// Returns:
//   - PoseHostBuilderOption: a function that applies the models option to a pose host
func WithModels(models ...Model) PoseHostBuilderOption {
	return func(h *poseHost) {
		for _, m := range models {
			if rig := m.Rig(); rig != nil {
				h.poses[rig] = &poseState{model: m, matrices: make([]float32, (rig.BoneCount()+1)*16)}
			}
		}
	}
}
