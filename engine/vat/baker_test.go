package vat

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBakeEndToEnd(t *testing.T) {
	host := newTestHost()
	mesh := &testMesh{name: "fox", skel: &testSkeleton{bones: 2}}
	b, err := NewBaker(mesh, WithHost(host), WithClips(AnimationClip{Name: "idle", From: 0, To: 44}))
	require.NoError(t, err)
	assert.Equal(t, StateIdle, b.State())
	assert.Equal(t, "fox", b.Name())

	require.NoError(t, b.Bake(t.Context()))
	assert.Equal(t, StateEncoded, b.State())

	buf := b.Buffer()
	require.NotNil(t, buf)
	assert.Len(t, buf.Floats(), 2160)

	decoded, err := DecodeBuffer(EncodeBuffer(buf.Floats()))
	require.NoError(t, err)
	assert.Equal(t, buf.Floats(), decoded)

	tex, err := b.Texture()
	require.NoError(t, err)
	assert.Equal(t, 12, tex.Width)
	assert.Equal(t, 45, tex.Height)
	assert.Equal(t, "fox", tex.Label)

	p := PlaybackParams{StartFrame: 0, EndFrame: 44, OffsetFrame: 0, Speed: 30}
	assert.Equal(t, 0, p.FrameAt(1.5))

	// each row holds the pose of its own frame
	for f := range 45 {
		assert.Equal(t, float32(f), tex.Matrix(0, f)[12])
		assert.Equal(t, float32(1), tex.Matrix(1, f)[13])
	}

	target := &testRenderable{}
	require.NoError(t, b.Apply(target))
	assert.Equal(t, StateApplied, b.State())
	assert.Same(t, tex, target.tex)
}

func TestBakeSamplesInScheduleOrder(t *testing.T) {
	host := newTestHost()
	mesh := &testMesh{name: "m", skel: &testSkeleton{bones: 3}}
	b, err := NewBaker(mesh, WithHost(host), WithClips(
		AnimationClip{Name: "a", From: 0, To: 9},
		AnimationClip{Name: "b", From: 100, To: 105},
	))
	require.NoError(t, err)
	require.NoError(t, b.Bake(t.Context()))

	seeks := host.seekLog()
	require.Len(t, seeks, 16)
	assert.Equal(t, float32(0), seeks[0])
	assert.Equal(t, float32(9), seeks[9])
	assert.Equal(t, float32(100), seeks[10])
	assert.Equal(t, float32(105), seeks[15])

	buf := b.Buffer()
	assert.Len(t, buf.Floats(), 1024)
	// clip b, frame 0 lands at global 10
	assert.Equal(t, float32(100), buf.Floats()[10*4*16+12])

	tex, err := b.Texture()
	require.NoError(t, err)
	assert.Equal(t, 16, tex.Width)
	assert.Equal(t, 16, tex.Height)
}

func TestBakeEmptyClipListCapturesRestPose(t *testing.T) {
	host := newTestHost()
	mesh := &testMesh{name: "m", skel: &testSkeleton{bones: 1}}
	b, err := NewBaker(mesh, WithHost(host))
	require.NoError(t, err)
	require.NoError(t, b.Bake(t.Context()))

	assert.Equal(t, 1, host.rests)
	assert.Empty(t, host.seekLog())
	tex, err := b.Texture()
	require.NoError(t, err)
	assert.Equal(t, 1, tex.Height)
	assert.Equal(t, 8, tex.Width)
}

func TestBakeMissingSkeleton(t *testing.T) {
	b, err := NewBaker(&testMesh{name: "rock"}, WithHost(newTestHost()))
	require.NoError(t, err)

	err = b.Bake(t.Context())
	var missing *MissingSkeletonError
	require.ErrorAs(t, err, &missing)
	assert.Equal(t, "rock", missing.Mesh)
	assert.Equal(t, StateFailed, b.State())
	assert.Equal(t, err, b.Err())

	assert.ErrorIs(t, b.Apply(&testRenderable{}), ErrBakeState)
}

func TestBakeHostFailureNeverReachesRenderable(t *testing.T) {
	host := newTestHost()
	host.failAt, host.failErr = 3, errors.New("tick lost")
	b, err := NewBaker(&testMesh{name: "m", skel: &testSkeleton{bones: 1}}, WithHost(host),
		WithClips(AnimationClip{From: 0, To: 9}))
	require.NoError(t, err)

	err = b.Bake(t.Context())
	require.Error(t, err)
	assert.ErrorIs(t, err, host.failErr)
	assert.Equal(t, StateFailed, b.State())
	assert.Nil(t, b.Buffer())

	target := &testRenderable{}
	assert.ErrorIs(t, b.Apply(target), ErrBakeState)
	assert.Nil(t, target.tex)
	_, err = b.Texture()
	assert.ErrorIs(t, err, ErrBakeState)
}

func TestBakeWrongPoseSize(t *testing.T) {
	host := newTestHost()
	host.wrongSize = true
	b, err := NewBaker(&testMesh{name: "m", skel: &testSkeleton{bones: 2}}, WithHost(host),
		WithClips(AnimationClip{From: 0, To: 1}))
	require.NoError(t, err)
	assert.ErrorIs(t, b.Bake(t.Context()), ErrPoseSize)
}

func TestBakeCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(t.Context())
	host := newTestHost()
	host.onSeek = func(frame float32) {
		if frame == 4 {
			cancel()
		}
	}
	b, err := NewBaker(&testMesh{name: "m", skel: &testSkeleton{bones: 1}}, WithHost(host),
		WithClips(AnimationClip{From: 0, To: 20}))
	require.NoError(t, err)

	err = b.Bake(ctx)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, StateFailed, b.State())
	assert.Len(t, host.seekLog(), 5)
	assert.Nil(t, b.Buffer())
}

func TestBakeIsSingleUse(t *testing.T) {
	b, err := NewBaker(&testMesh{name: "m", skel: &testSkeleton{bones: 1}}, WithHost(newTestHost()))
	require.NoError(t, err)
	require.NoError(t, b.Bake(t.Context()))
	assert.ErrorIs(t, b.Bake(t.Context()), ErrBakeState)

	require.NoError(t, b.Apply(&testRenderable{}))
	assert.ErrorIs(t, b.Apply(&testRenderable{}), ErrBakeState)
}

func TestApplyTargetErrorKeepsEncoded(t *testing.T) {
	b, err := NewBaker(&testMesh{name: "m", skel: &testSkeleton{bones: 1}}, WithHost(newTestHost()))
	require.NoError(t, err)
	require.NoError(t, b.Bake(t.Context()))

	boom := errors.New("device lost")
	assert.ErrorIs(t, b.Apply(&testRenderable{err: boom}), boom)
	assert.Equal(t, StateEncoded, b.State())
}

func TestApplyBeforeBake(t *testing.T) {
	b, err := NewBaker(&testMesh{name: "m", skel: &testSkeleton{bones: 1}}, WithHost(newTestHost()))
	require.NoError(t, err)
	assert.ErrorIs(t, b.Apply(&testRenderable{}), ErrBakeState)
	_, err = b.Document()
	assert.ErrorIs(t, err, ErrBakeState)
}

func TestSkeletonClaimIsExclusive(t *testing.T) {
	skel := &testSkeleton{bones: 1}
	release := make(chan struct{})
	started := make(chan struct{})
	var once sync.Once

	host := newTestHost()
	host.onSeek = func(frame float32) {
		once.Do(func() {
			close(started)
			<-release
		})
	}
	first, err := NewBaker(&testMesh{name: "a", skel: skel}, WithHost(host), WithClips(AnimationClip{From: 0, To: 2}))
	require.NoError(t, err)
	second, err := NewBaker(&testMesh{name: "b", skel: skel}, WithHost(newTestHost()), WithClips(AnimationClip{From: 0, To: 2}))
	require.NoError(t, err)

	done := make(chan error, 1)
	go func() { done <- first.Bake(context.Background()) }()
	<-started

	assert.Equal(t, StateSampling, first.State())
	assert.ErrorIs(t, second.Bake(t.Context()), ErrSkeletonClaimed)
	assert.Equal(t, StateIdle, second.State())

	close(release)
	require.NoError(t, <-done)

	// the claim is released once the first bake finishes
	require.NoError(t, second.Bake(t.Context()))
}

func TestDocumentAndLoad(t *testing.T) {
	b, err := NewBaker(&testMesh{name: "fox", skel: &testSkeleton{bones: 2}}, WithHost(newTestHost()),
		WithClips(AnimationClip{Name: "walk", From: 0, To: 9}, AnimationClip{Name: "run", From: 20, To: 25}))
	require.NoError(t, err)
	require.NoError(t, b.Bake(t.Context()))

	doc, err := b.Document()
	require.NoError(t, err)
	assert.Equal(t, "fox", doc.Name)
	assert.Equal(t, 2, doc.BoneCount)
	assert.Equal(t, 16, doc.FrameCount)
	assert.Equal(t, []ClipRange{{Name: "walk", Start: 0, End: 9}, {Name: "run", Start: 10, End: 15}}, doc.Clips)

	id := uuid.New()
	loaded, err := Load(doc, WithID(id))
	require.NoError(t, err)
	assert.Equal(t, id, loaded.ID())
	assert.Equal(t, StateEncoded, loaded.State())
	assert.Equal(t, b.Schedule().Ranges(), loaded.Schedule().Ranges())

	orig, err := b.Texture()
	require.NoError(t, err)
	tex, err := loaded.Texture()
	require.NoError(t, err)
	assert.Equal(t, orig.Pixels, tex.Pixels)
	assert.Equal(t, "fox", tex.Label)

	assert.ErrorIs(t, loaded.Bake(t.Context()), ErrBakeState)
	require.NoError(t, loaded.Apply(&testRenderable{}))
}

func TestLoadRestDocument(t *testing.T) {
	b, err := NewBaker(&testMesh{name: "m", skel: &testSkeleton{bones: 1}}, WithHost(newTestHost()))
	require.NoError(t, err)
	require.NoError(t, b.Bake(t.Context()))
	doc, err := b.Document()
	require.NoError(t, err)

	loaded, err := Load(doc)
	require.NoError(t, err)
	assert.Equal(t, 1, loaded.Schedule().TotalFrames())
}

func TestLoadRejectsMismatchedClipTable(t *testing.T) {
	tex, err := EncodeTexture(fullBuffer(t, 1, 4))
	require.NoError(t, err)
	doc := NewDocument("x", tex, []ClipRange{{Name: "a", Start: 0, End: 1}})

	_, err = Load(doc)
	var corrupt *CorruptEncodingError
	assert.ErrorAs(t, err, &corrupt)
}

func TestLoadRejectsOutOfOrderClipTable(t *testing.T) {
	tex, err := EncodeTexture(fullBuffer(t, 1, 10))
	require.NoError(t, err)

	cases := map[string][]ClipRange{
		"swapped":   {{Name: "walk", Start: 5, End: 9}, {Name: "run", Start: 0, End: 4}},
		"offset":    {{Name: "walk", Start: 1, End: 5}, {Name: "run", Start: 6, End: 9}},
		"gap":       {{Name: "walk", Start: 0, End: 3}, {Name: "run", Start: 5, End: 9}},
		"backwards": {{Name: "walk", Start: 0, End: 4}, {Name: "run", Start: 9, End: 5}},
	}
	for name, clips := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := Load(NewDocument("x", tex, clips))
			var corrupt *CorruptEncodingError
			assert.ErrorAs(t, err, &corrupt)
		})
	}

	b, err := Load(NewDocument("x", tex, []ClipRange{{Name: "walk", Start: 0, End: 4}, {Name: "run", Start: 5, End: 9}}))
	require.NoError(t, err)
	assert.Equal(t, []ClipRange{{Name: "walk", Start: 0, End: 4}, {Name: "run", Start: 5, End: 9}}, b.Schedule().Ranges())
}

func TestReleaseBuffer(t *testing.T) {
	b, err := NewBaker(&testMesh{name: "m", skel: &testSkeleton{bones: 1}}, WithHost(newTestHost()),
		WithClips(AnimationClip{From: 0, To: 3}))
	require.NoError(t, err)
	require.NoError(t, b.Bake(t.Context()))

	b.ReleaseBuffer()
	assert.Nil(t, b.Buffer())

	tex, err := b.Texture()
	require.NoError(t, err)
	assert.Len(t, tex.Pixels, 4*32)

	_, err = b.Document()
	var empty *EmptyBufferError
	assert.ErrorAs(t, err, &empty)
}

type countingObserver struct {
	mu       sync.Mutex
	started  int
	frames   int
	finished int
	lastErr  error
}

func (o *countingObserver) BakeStarted(uuid.UUID, int) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.started++
}

func (o *countingObserver) FrameSampled(uuid.UUID) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.frames++
}

func (o *countingObserver) BakeFinished(_ uuid.UUID, err error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.finished++
	o.lastErr = err
}

func TestBakeObserver(t *testing.T) {
	obs := &countingObserver{}
	b, err := NewBaker(&testMesh{name: "m", skel: &testSkeleton{bones: 1}}, WithHost(newTestHost()),
		WithClips(AnimationClip{From: 0, To: 6}), WithObserver(obs))
	require.NoError(t, err)
	require.NoError(t, b.Bake(t.Context()))

	assert.Equal(t, 1, obs.started)
	assert.Equal(t, 7, obs.frames)
	assert.Equal(t, 1, obs.finished)
	assert.NoError(t, obs.lastErr)
}

// stateObserver reads the baker back from inside the finish callback.
type stateObserver struct {
	countingObserver
	baker    Baker
	finalErr error
	final    BakeState
}

func (o *stateObserver) BakeFinished(id uuid.UUID, err error) {
	o.countingObserver.BakeFinished(id, err)
	o.final = o.baker.State()
	o.finalErr = o.baker.Err()
}

func TestBakeObserverMayReadBaker(t *testing.T) {
	obs := &stateObserver{}
	b, err := NewBaker(&testMesh{name: "m", skel: &testSkeleton{bones: 1}}, WithHost(newTestHost()),
		WithClips(AnimationClip{From: 0, To: 2}), WithObserver(obs))
	require.NoError(t, err)
	obs.baker = b

	done := make(chan error, 1)
	go func() { done <- b.Bake(t.Context()) }()
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("observer callback blocked on the baker")
	}
	assert.Equal(t, StateEncoded, obs.final)
	assert.NoError(t, obs.finalErr)
	assert.Equal(t, 1, obs.finished)
}

func TestNewBakerRejectsEmptyClip(t *testing.T) {
	_, err := NewBaker(&testMesh{name: "m", skel: &testSkeleton{bones: 1}}, WithHost(newTestHost()),
		WithClips(AnimationClip{From: 3, To: 1}))
	assert.ErrorIs(t, err, ErrInvalidClip)
}

func TestNewBakerRequiresHost(t *testing.T) {
	assert.Panics(t, func() {
		_, _ = NewBaker(&testMesh{name: "m"})
	})
}

func TestBakeAll(t *testing.T) {
	bakers := make([]Baker, 0, 6)
	for i := range 6 {
		b, err := NewBaker(&testMesh{name: "m", skel: &testSkeleton{bones: i + 1}}, WithHost(newTestHost()),
			WithClips(AnimationClip{From: 0, To: float32(i + 4)}))
		require.NoError(t, err)
		bakers = append(bakers, b)
	}
	missing, err := NewBaker(&testMesh{name: "rock"}, WithHost(newTestHost()))
	require.NoError(t, err)
	bakers = append(bakers, missing)

	errs := BakeAll(t.Context(), bakers, 3)
	require.Len(t, errs, 7)
	for i := range 6 {
		assert.NoError(t, errs[i])
		assert.Equal(t, StateEncoded, bakers[i].State())
		tex, err := bakers[i].Texture()
		require.NoError(t, err)
		assert.Equal(t, i+5, tex.Height)
		assert.Equal(t, (i+2)*4, tex.Width)
	}
	var missingErr *MissingSkeletonError
	assert.ErrorAs(t, errs[6], &missingErr)

	assert.Empty(t, BakeAll(t.Context(), nil, 4))
}
