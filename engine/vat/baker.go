package vat

import (
	"context"
	"log/slog"
	"sync"

	"github.com/Carmen-Shannon/oxy-vat/common"
	"github.com/google/uuid"
	"github.com/pkg/errors"
)

// BakeState is a Baker's position in its lifecycle.
type BakeState int

const (
	// StateIdle means the baker has been constructed and nothing was sampled yet.
	StateIdle BakeState = iota
	// StateSampling means frames are being pulled from the animation host.
	StateSampling
	// StateEncoded means the buffer and texture are built.
	StateEncoded
	// StateApplied means the texture was handed to a Renderable. Terminal.
	StateApplied
	// StateFailed means sampling was aborted. Terminal.
	StateFailed
)

func (s BakeState) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateSampling:
		return "sampling"
	case StateEncoded:
		return "encoded"
	case StateApplied:
		return "applied"
	case StateFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// BakeObserver is notified of bake progress. Used for profiling.
type BakeObserver interface {
	BakeStarted(id uuid.UUID, totalFrames int)
	FrameSampled(id uuid.UUID)
	BakeFinished(id uuid.UUID, err error)
}

// claims maps a Skeleton to the uuid of the bake sampling it.
var claims sync.Map

// baker is the implementation of the Baker interface.
type baker struct {
	mu *sync.Mutex

	id       uuid.UUID
	name     string
	mesh     Mesh
	host     AnimationHost
	sampler  *Sampler
	clips    []AnimationClip
	schedule *ClipSchedule
	observer BakeObserver

	state   BakeState
	buffer  *FrameBuffer
	texture *Texture
	err     error
}

// Baker samples a mesh's skeleton across a clip list into a Vertex Animation Texture.
//
// A Baker is single use: Idle -> Sampling -> Encoded -> Applied, with Failed reachable from Sampling.
// Re-baking requires a new Baker. While sampling, the Baker holds an exclusive claim on the
// skeleton so no other bake can move it; bakes over different skeletons may run concurrently.
type Baker interface {
	// ID returns the unique identifier of this bake.
	//
	// Returns:
	//   - uuid.UUID: the bake id
	ID() uuid.UUID

	// Name returns the bake name, used as the texture label and document name.
	//
	// Returns:
	//   - string: the name
	Name() string

	// State returns the current lifecycle state.
	//
	// Returns:
	//   - BakeState: the state
	State() BakeState

	// Err returns the error that moved the baker to StateFailed, or nil.
	//
	// Returns:
	//   - error: the failure cause
	Err() error

	// Schedule returns the clip layout of the bake.
	//
	// Returns:
	//   - *ClipSchedule: the schedule computed at construction
	Schedule() *ClipSchedule

	// Bake samples every scheduled frame in order, packs the buffer and encodes the texture.
	// Each frame is requested from the host only after the previous frame has been read.
	// A cancelled ctx aborts between frames and discards the partial buffer.
	//
	// Parameters:
	//   - ctx: cancels the bake
	//
	// Returns:
	//   - error: ErrBakeState unless Idle, ErrSkeletonClaimed, *MissingSkeletonError, or a sampling error
	Bake(ctx context.Context) error

	// Buffer returns the baked buffer, or nil before encoding or after ReleaseBuffer.
	//
	// Returns:
	//   - *FrameBuffer: the buffer
	Buffer() *FrameBuffer

	// Texture returns the encoded texture.
	//
	// Returns:
	//   - *Texture: the texture
	//   - error: ErrBakeState if the bake has not reached StateEncoded
	Texture() (*Texture, error)

	// Document serializes the baked buffer.
	//
	// Returns:
	//   - *Document: the persisted form of the bake
	//   - error: ErrBakeState before encoding, *EmptyBufferError after ReleaseBuffer
	Document() (*Document, error)

	// Apply hands the texture to target and moves the baker to StateApplied.
	//
	// Parameters:
	//   - target: the renderable that will play the texture
	//
	// Returns:
	//   - error: ErrBakeState unless Encoded, or the target's error (the baker stays Encoded)
	Apply(target Renderable) error

	// ReleaseBuffer drops the baked buffer once the texture exists. The texture keeps its pixels.
	ReleaseBuffer()
}

var _ Baker = &baker{}

// NewBaker creates a Baker for mesh. A host must be supplied with WithHost.
// The clip schedule is computed here, once.
//
// Parameters:
//   - mesh: the skinned mesh to bake, must not be nil
//   - options: the builder options
//
// Returns:
//   - Baker: the idle baker
//   - error: wraps ErrInvalidClip if a clip is empty
func NewBaker(mesh Mesh, options ...BakerBuilderOption) (Baker, error) {
	if mesh == nil {
		panic("vat: NewBaker requires a non-nil Mesh")
	}
	b := &baker{
		mu:    &sync.Mutex{},
		id:    uuid.New(),
		mesh:  mesh,
		state: StateIdle,
	}
	for _, opt := range options {
		opt(b)
	}
	if b.host == nil {
		panic("vat: NewBaker requires an AnimationHost, use WithHost")
	}
	if b.sampler == nil {
		b.sampler = NewSampler(b.host)
	}
	b.name = common.Coalesce(b.name, mesh.Name())

	schedule, err := NewClipSchedule(b.clips)
	if err != nil {
		return nil, err
	}
	b.schedule = schedule
	return b, nil
}

// Load restores an encoded Baker from a document without sampling, so a bake can be shipped and reused.
// The returned baker starts in StateEncoded.
//
// Parameters:
//   - doc: the persisted bake
//   - options: builder options, only WithName and WithID apply
//
// Returns:
//   - Baker: the encoded baker
//   - error: a *CorruptEncodingError if the document cannot be decoded
func Load(doc *Document, options ...BakerBuilderOption) (Baker, error) {
	tex, err := doc.Texture()
	if err != nil {
		return nil, err
	}
	b := &baker{
		mu:    &sync.Mutex{},
		id:    uuid.New(),
		name:  doc.Name,
		state: StateEncoded,
	}
	for _, opt := range options {
		opt(b)
	}
	tex.Label = b.name

	if err := checkClipTable(doc.Clips); err != nil {
		return nil, err
	}
	b.clips = clipsFromRanges(doc.Clips, tex.FrameCount)
	if b.schedule, err = NewClipSchedule(b.clips); err != nil {
		return nil, err
	}
	if b.schedule.TotalFrames() != tex.FrameCount {
		return nil, &CorruptEncodingError{Reason: "clip table does not cover the texture rows"}
	}
	if b.buffer, err = frameBufferFrom(tex.Pixels, tex.BoneCount, tex.FrameCount); err != nil {
		return nil, err
	}
	b.texture = tex
	return b, nil
}

func (b *baker) ID() uuid.UUID {
	return b.id
}

func (b *baker) Name() string {
	return b.name
}

func (b *baker) State() BakeState {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}

func (b *baker) Err() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.err
}

func (b *baker) Schedule() *ClipSchedule {
	return b.schedule
}

func (b *baker) Bake(ctx context.Context) error {
	b.mu.Lock()
	if b.state != StateIdle {
		state := b.state
		b.mu.Unlock()
		return errors.Wrapf(ErrBakeState, "bake %s is %s", b.name, state)
	}
	skel := b.mesh.Skeleton()
	if skel == nil {
		err := &MissingSkeletonError{Mesh: b.mesh.Name()}
		b.fail(err)
		b.mu.Unlock()
		return err
	}
	if owner, loaded := claims.LoadOrStore(skel, b.id); loaded {
		b.mu.Unlock()
		return errors.Wrapf(ErrSkeletonClaimed, "skeleton of %q held by bake %v", b.mesh.Name(), owner)
	}
	b.state = StateSampling
	b.mu.Unlock()
	defer claims.Delete(skel)

	log := common.Logger().With("bake", b.id.String(), "name", b.name)
	total := b.schedule.TotalFrames()
	if b.observer != nil {
		b.observer.BakeStarted(b.id, total)
	}

	buf, err := b.sample(ctx, skel.BoneCount(), log)
	var tex *Texture
	if err == nil {
		tex, err = EncodeTexture(buf)
	}

	b.mu.Lock()
	if err != nil {
		b.fail(err)
	} else {
		tex.Label = b.name
		b.texture = tex
		b.buffer = buf
		b.state = StateEncoded
	}
	b.mu.Unlock()

	if b.observer != nil {
		b.observer.BakeFinished(b.id, err)
	}
	if err != nil {
		log.Warn("bake failed", "error", err)
		return err
	}
	log.Info("bake encoded", "bones", buf.BoneCount(), "frames", total, "width", tex.Width)
	return nil
}

func (b *baker) sample(ctx context.Context, boneCount int, log *slog.Logger) (*FrameBuffer, error) {
	buf := NewFrameBuffer(boneCount, b.schedule.TotalFrames())
	current := RestClip - 1
	for _, ref := range b.schedule.Frames() {
		if err := ctx.Err(); err != nil {
			return nil, errors.Wrapf(err, "bake cancelled at frame %d", ref.Global)
		}

		var pose PoseMatrixSet
		var err error
		if ref.ClipIndex == RestClip {
			pose, err = b.sampler.SampleRest(ctx, b.mesh)
		} else {
			clip := b.clips[ref.ClipIndex]
			if ref.ClipIndex != current {
				current = ref.ClipIndex
				log.Debug("sampling clip", "clip", clip.Name, "base", b.schedule.Base(ref.ClipIndex), "frames", clip.FrameCount())
			}
			pose, err = b.sampler.Sample(ctx, b.mesh, clip, ref.LocalFrame)
		}
		if err != nil {
			return nil, err
		}
		if err := buf.Write(ref.Global, pose); err != nil {
			return nil, err
		}
		if b.observer != nil {
			b.observer.FrameSampled(b.id)
		}
	}
	return buf, nil
}

// fail must be called with mu held.
func (b *baker) fail(err error) {
	b.state = StateFailed
	b.buffer = nil
	b.err = err
}

func (b *baker) Buffer() *FrameBuffer {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buffer
}

func (b *baker) Texture() (*Texture, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.state != StateEncoded && b.state != StateApplied {
		return nil, errors.Wrapf(ErrBakeState, "bake %s is %s", b.name, b.state)
	}
	return b.texture, nil
}

func (b *baker) Document() (*Document, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.state != StateEncoded && b.state != StateApplied {
		return nil, errors.Wrapf(ErrBakeState, "bake %s is %s", b.name, b.state)
	}
	if b.buffer == nil {
		return nil, &EmptyBufferError{Total: b.schedule.TotalFrames()}
	}
	return NewDocument(b.name, b.texture, b.schedule.Ranges()), nil
}

func (b *baker) Apply(target Renderable) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.state != StateEncoded {
		return errors.Wrapf(ErrBakeState, "cannot apply bake %s in state %s", b.name, b.state)
	}
	if err := target.ApplyVAT(b.texture); err != nil {
		return errors.Wrapf(err, "applying bake %s", b.name)
	}
	b.state = StateApplied
	common.Logger().Debug("bake applied", "bake", b.id.String(), "name", b.name)
	return nil
}

func (b *baker) ReleaseBuffer() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.state == StateSampling {
		common.Logger().Warn("ignoring buffer release during sampling", "bake", b.id.String())
		return
	}
	b.buffer = nil
}

// checkClipTable requires a persisted row table to start at row 0 and run back to back in order,
// since clips are rebuilt from their lengths.
func checkClipTable(ranges []ClipRange) error {
	next := 0
	for i, r := range ranges {
		if r.Start != next || r.End < r.Start {
			return &CorruptEncodingError{
				Reason: "clip table is not contiguous from row 0",
				Err:    errors.Errorf("clip %d (%q) covers rows [%d, %d], expected start %d", i, r.Name, r.Start, r.End, next),
			}
		}
		next = r.End + 1
	}
	return nil
}

// clipsFromRanges rebuilds a clip list from a persisted row table. Rows are already global, so the
// clips address the texture rather than the original host timeline.
func clipsFromRanges(ranges []ClipRange, frames int) []AnimationClip {
	if len(ranges) == 0 {
		if frames == 1 {
			return nil
		}
		return []AnimationClip{{Name: "baked", From: 0, To: float32(frames - 1)}}
	}
	if len(ranges) == 1 && ranges[0].Name == "rest" && frames == 1 {
		return nil
	}
	clips := make([]AnimationClip, len(ranges))
	for i, r := range ranges {
		clips[i] = AnimationClip{Name: r.Name, From: float32(r.Start), To: float32(r.End)}
	}
	return clips
}
