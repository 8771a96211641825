package model

import (
	"context"
	"fmt"
	"sync"

	"github.com/Carmen-Shannon/oxy-vat/common"
	"github.com/Carmen-Shannon/oxy-vat/engine/vat"
)

// DefaultFPS is the timeline rate used when no WithFPS option is given.
const DefaultFPS float32 = 30

// poseState is the last evaluated pose of one registered skeleton.
type poseState struct {
	model     Model
	matrices  []float32
	evaluated bool
}

// poseRequest is a pending evaluation waiting for the next Tick in tick-driven mode.
type poseRequest struct {
	skel *Skeleton
	clip *AnimationClip
	at   float32
	rest bool
	done chan error
}

// poseHost is the implementation of the PoseHost interface.
type poseHost struct {
	mu         sync.Mutex
	fps        float32
	tickDriven bool
	poses      map[*Skeleton]*poseState
	requests   chan poseRequest
}

// PoseHost evaluates keyframed model animations on the CPU and serves the resulting skinning
// matrices to the baker. It satisfies vat.AnimationHost.
//
// By default a seek is evaluated immediately inside GoToFrame. In tick-driven mode the seek is
// queued and GoToFrame blocks until a render loop calls Tick, so the pose is read on the frame
// after it was requested.
type PoseHost interface {
	vat.AnimationHost

	// Register adds models whose skeletons this host may pose.
	//
	// Parameters:
	//   - models: the rigged models to register
	//
	// Returns:
	//   - error: an error if a model has no skeleton
	Register(models ...Model) error

	// Tick evaluates every queued seek. It is a no-op unless the host is tick-driven.
	//
	// Returns:
	//   - int: the number of requests evaluated
	Tick() int

	// FPS returns the timeline rate used to convert frames to clip time.
	//
	// Returns:
	//   - float32: frames per second
	FPS() float32
}

var _ PoseHost = &poseHost{}

// NewPoseHost creates a new PoseHost with the specified options applied.
//
// Parameters:
//   - options: a variadic list of PoseHostBuilderOption functions to configure the host
//
// Returns:
//   - PoseHost: a new PoseHost
func NewPoseHost(options ...PoseHostBuilderOption) PoseHost {
	h := &poseHost{
		fps:      DefaultFPS,
		poses:    make(map[*Skeleton]*poseState),
		requests: make(chan poseRequest, 64),
	}
	for _, opt := range options {
		opt(h)
	}
	return h
}

func (h *poseHost) Register(models ...Model) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	for _, m := range models {
		rig := m.Rig()
		if rig == nil {
			return &vat.MissingSkeletonError{Mesh: m.Name()}
		}
		h.poses[rig] = &poseState{
			model:    m,
			matrices: make([]float32, vat.PoseFloats(rig.BoneCount())),
		}
	}
	return nil
}

func (h *poseHost) FPS() float32 {
	return h.fps
}

func (h *poseHost) GoToFrame(ctx context.Context, skel vat.Skeleton, clip vat.AnimationClip, frame float32) error {
	rig, state, err := h.lookup(skel)
	if err != nil {
		return err
	}
	idx := state.model.GetAnimationIndex(clip.Name)
	if idx < 0 {
		return fmt.Errorf("model: %q has no animation named %q", state.model.Name(), clip.Name)
	}
	anim := state.model.Animations()[idx]
	at := min(max((frame-clip.From)/h.fps, 0), anim.Duration)
	return h.submit(ctx, poseRequest{skel: rig, clip: anim, at: at})
}

func (h *poseHost) ReturnToRest(ctx context.Context, skel vat.Skeleton) error {
	rig, _, err := h.lookup(skel)
	if err != nil {
		return err
	}
	return h.submit(ctx, poseRequest{skel: rig, rest: true})
}

func (h *poseHost) TransformMatrices(skel vat.Skeleton, mesh vat.Mesh) ([]float32, error) {
	if mesh.Skeleton() != skel {
		return nil, fmt.Errorf("model: mesh %q is not bound to the requested skeleton", mesh.Name())
	}
	_, state, err := h.lookup(skel)
	if err != nil {
		return nil, err
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	if !state.evaluated {
		return nil, fmt.Errorf("model: skeleton of %q has not been evaluated", state.model.Name())
	}
	return append([]float32(nil), state.matrices...), nil
}

func (h *poseHost) Tick() int {
	if !h.tickDriven {
		return 0
	}
	n := 0
	for {
		select {
		case req := <-h.requests:
			req.done <- h.evaluate(req)
			n++
		default:
			return n
		}
	}
}

func (h *poseHost) submit(ctx context.Context, req poseRequest) error {
	if !h.tickDriven {
		if err := ctx.Err(); err != nil {
			return err
		}
		return h.evaluate(req)
	}
	req.done = make(chan error, 1)
	select {
	case h.requests <- req:
	case <-ctx.Done():
		return ctx.Err()
	}
	select {
	case err := <-req.done:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (h *poseHost) evaluate(req poseRequest) error {
	var clip *AnimationClip
	if !req.rest {
		clip = req.clip
	}
	locals, err := req.skel.EvaluateClip(clip, req.at)
	if err != nil {
		return err
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	state := h.poses[req.skel]
	if err := req.skel.SkinningMatrices(locals, state.matrices); err != nil {
		state.evaluated = false
		return err
	}
	state.evaluated = true
	common.Logger().Debug("pose evaluated", "model", state.model.Name(), "rest", req.rest, "time", req.at)
	return nil
}

func (h *poseHost) lookup(skel vat.Skeleton) (*Skeleton, *poseState, error) {
	rig, ok := skel.(*Skeleton)
	if !ok || rig == nil {
		return nil, nil, fmt.Errorf("model: unsupported skeleton type %T", skel)
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	state, ok := h.poses[rig]
	if !ok {
		return nil, nil, fmt.Errorf("model: skeleton with %d bones is not registered", rig.BoneCount())
	}
	return rig, state, nil
}
