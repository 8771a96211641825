package animator

import (
	"encoding/binary"
	"math"
	"sync"
	"testing"

	"github.com/Carmen-Shannon/oxy-vat/engine/renderer/bind_group_provider"
	"github.com/Carmen-Shannon/oxy-vat/engine/vat"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testTexture(t *testing.T, bones, frames int) *vat.Texture {
	t.Helper()
	tex, err := vat.NewTexture(make([]float32, vat.PoseFloats(bones)*frames), bones, frames)
	require.NoError(t, err)
	return tex
}

func walk(offset, speed float32) vat.PlaybackParams {
	return vat.PlaybackParams{StartFrame: 0, EndFrame: 15, OffsetFrame: offset, Speed: speed}
}

func floatAt(data []byte, i int) float32 {
	return math.Float32frombits(binary.LittleEndian.Uint32(data[i*4:]))
}

func TestFrameForRequiresTexture(t *testing.T) {
	a := NewAnimator()
	idx, err := a.AddInstance(walk(0, 8))
	require.NoError(t, err)

	_, err = a.FrameFor(idx)
	require.ErrorIs(t, err, vat.ErrTextureNotReady)

	require.ErrorIs(t, a.ApplyVAT(nil), vat.ErrTextureNotReady)
	require.NoError(t, a.ApplyVAT(testTexture(t, 1, 16)))

	a.PrepareFrame(0.25)
	frame, err := a.FrameFor(idx)
	require.NoError(t, err)
	assert.Equal(t, 2, frame)

	_, err = a.FrameFor(7)
	assert.Error(t, err)
}

func TestFrameForMatchesPlaybackParams(t *testing.T) {
	a := NewAnimator(WithTexture(testTexture(t, 1, 16)), WithTime(10))
	params := []vat.PlaybackParams{walk(0, 8), walk(2.5, 12), {StartFrame: 4, EndFrame: 7, Speed: 3}}
	for _, p := range params {
		_, err := a.AddInstance(p)
		require.NoError(t, err)
	}
	for step := 0; step < 50; step++ {
		a.PrepareFrame(1.0 / 60)
		for i, p := range params {
			got, err := a.FrameFor(uint32(i))
			require.NoError(t, err)
			assert.Equal(t, p.FrameAt(float32(a.Time())), got)
			assert.GreaterOrEqual(t, got, int(p.StartFrame))
			assert.LessOrEqual(t, got, int(p.EndFrame))
		}
	}
}

func TestFrameForUsesUploadedClock(t *testing.T) {
	a := NewAnimator(WithTexture(testTexture(t, 1, 45)), WithTime(0.69999999))
	idx, err := a.AddInstance(vat.PlaybackParams{StartFrame: 0, EndFrame: 44, Speed: 30})
	require.NoError(t, err)
	a.PrepareFrame(0)

	var globals []byte
	for _, w := range a.StagedWriteData() {
		if w.Binding == a.Bindings().Globals {
			globals = w.Data
		}
	}
	require.NotNil(t, globals)
	clock := floatAt(globals, 0)

	got, err := a.FrameFor(idx)
	require.NoError(t, err)
	// 0.699999988 * 30 rounds to 21 in f32
	assert.Equal(t, 21, got)
	assert.Equal(t, vat.PlaybackParams{StartFrame: 0, EndFrame: 44, Speed: 30}.FrameAt(clock), got)
}

func TestAddInstanceValidates(t *testing.T) {
	a := NewAnimator()
	_, err := a.AddInstance(walk(0, 0))
	require.ErrorIs(t, err, vat.ErrInvalidParams)

	// the end frame is only checked against rows once a texture is applied
	_, err = a.AddInstance(vat.PlaybackParams{StartFrame: 0, EndFrame: 16, Speed: 1})
	require.NoError(t, err)
	require.ErrorIs(t, a.ApplyVAT(testTexture(t, 1, 16)), vat.ErrInvalidParams)
	assert.Nil(t, a.Texture())

	require.NoError(t, a.SetInstance(0, walk(0, 1)))
	require.NoError(t, a.ApplyVAT(testTexture(t, 1, 16)))
	_, err = a.AddInstance(vat.PlaybackParams{StartFrame: 0, EndFrame: 16, Speed: 1})
	require.ErrorIs(t, err, vat.ErrInvalidParams)
	assert.Error(t, a.SetInstance(3, walk(0, 1)))
}

func TestFlushStagesDirtyRuns(t *testing.T) {
	a := NewAnimator()
	for i := range 3 {
		_, err := a.AddInstance(walk(float32(i), 8))
		require.NoError(t, err)
	}

	assert.Equal(t, uint32(3), a.Flush())
	writes := a.StagedWriteData()
	require.Len(t, writes, 1)
	assert.Equal(t, bind_group_provider.DefaultVATBindings.Params, writes[0].Binding)
	assert.Equal(t, uint64(0), writes[0].Offset)
	assert.Len(t, writes[0].Data, 48)
	assert.Equal(t, float32(2), floatAt(writes[0].Data, 10), "offset frame of instance 2")
	assert.Same(t, a.Provider(), writes[0].Provider)

	assert.Zero(t, a.Flush(), "nothing dirty")
	assert.Empty(t, a.StagedWriteData())

	require.NoError(t, a.SetInstance(2, walk(5, 4)))
	require.NoError(t, a.SetInstance(0, walk(1, 4)))
	assert.Equal(t, uint32(2), a.Flush())
	writes = a.StagedWriteData()
	require.Len(t, writes, 2)
	assert.Equal(t, uint64(0), writes[0].Offset)
	assert.Equal(t, uint64(32), writes[1].Offset)
	assert.Equal(t, uint64(48), writes[1].End())
	assert.Equal(t, float32(4), floatAt(writes[1].Data, 3))
}

func TestPrepareFrameStagesGlobals(t *testing.T) {
	a := NewAnimator()
	a.PrepareFrame(0.5)
	assert.Empty(t, a.StagedWriteData(), "no texture yet")
	assert.InDelta(t, 0.5, a.Time(), 1e-9)

	require.NoError(t, a.ApplyVAT(testTexture(t, 2, 10)))
	a.PrepareFrame(0.25)
	writes := a.StagedWriteData()
	require.Len(t, writes, 1)
	assert.Equal(t, bind_group_provider.DefaultVATBindings.Globals, writes[0].Binding)
	require.Len(t, writes[0].Data, 16)
	assert.Equal(t, float32(0.75), floatAt(writes[0].Data, 0))
	assert.Equal(t, uint32(10), binary.LittleEndian.Uint32(writes[0].Data[4:]))
	assert.Equal(t, uint32(12), binary.LittleEndian.Uint32(writes[0].Data[8:]))
	assert.Equal(t, uint32(2), binary.LittleEndian.Uint32(writes[0].Data[12:]))

	a.SetTime(0)
	assert.Zero(t, a.Time())
}

func TestRemoveInstanceSwaps(t *testing.T) {
	a := NewAnimator()
	for i := range 3 {
		_, err := a.AddInstance(walk(float32(i), 8))
		require.NoError(t, err)
	}

	last, swapped := a.RemoveInstance(0)
	assert.True(t, swapped)
	assert.Equal(t, uint32(2), last)
	assert.Equal(t, uint32(2), a.InstanceCount())
	p, ok := a.Instance(0)
	require.True(t, ok)
	assert.Equal(t, float32(2), p.OffsetFrame)

	_, swapped = a.RemoveInstance(1)
	assert.False(t, swapped)
	_, ok = a.Instance(1)
	assert.False(t, ok)

	_, swapped = a.RemoveInstance(9)
	assert.False(t, swapped)
}

func TestGrow(t *testing.T) {
	a := NewAnimator(WithMaxInstances(2))
	assert.Equal(t, uint32(2), a.MaxInstances())
	for i := range 3 {
		_, err := a.AddInstance(walk(float32(i), 8))
		require.NoError(t, err)
	}
	assert.Equal(t, uint32(8), a.MaxInstances())
	assert.True(t, a.NeedsRebuild())
	assert.Zero(t, a.Flush(), "flush waits for the rebuild")

	a.ClearNeedsRebuild()
	assert.Equal(t, uint32(3), a.Flush())
	p, ok := a.Instance(1)
	require.True(t, ok)
	assert.Equal(t, float32(1), p.OffsetFrame)

	a.Grow(4)
	assert.Equal(t, uint32(8), a.MaxInstances(), "shrinking is a no-op")
}

func TestAddInstanceConcurrentGrowth(t *testing.T) {
	const workers, perWorker = 16, 200
	a := NewAnimator(WithMaxInstances(1))

	var wg sync.WaitGroup
	indices := make([][]uint32, workers)
	errs := make([]error, workers)
	for w := range workers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := range perWorker {
				idx, err := a.AddInstance(walk(float32(w), float32(i+1)))
				if err != nil {
					errs[w] = err
					return
				}
				indices[w] = append(indices[w], idx)
			}
		}()
	}
	wg.Wait()

	seen := make(map[uint32]bool, workers*perWorker)
	for w := range workers {
		require.NoError(t, errs[w])
		for _, idx := range indices[w] {
			require.False(t, seen[idx], "index %d handed out twice", idx)
			seen[idx] = true
		}
	}
	assert.Equal(t, uint32(workers*perWorker), a.InstanceCount())
	assert.GreaterOrEqual(t, a.MaxInstances(), a.InstanceCount())
	for idx := range uint32(workers * perWorker) {
		p, ok := a.Instance(idx)
		require.True(t, ok)
		assert.Positive(t, p.Speed)
	}
}

func TestBakerAppliesToAnimator(t *testing.T) {
	tex := testTexture(t, 1, 16)
	doc := vat.NewDocument("crowd", tex, []vat.ClipRange{{Name: "walk", Start: 0, End: 15}})
	b, err := vat.Load(doc)
	require.NoError(t, err)

	a := NewAnimator()
	require.NoError(t, b.Apply(a))
	assert.Equal(t, vat.StateApplied, b.State())
	require.NotNil(t, a.Texture())
	assert.Equal(t, 16, a.Texture().FrameCount)
}

func TestRelease(t *testing.T) {
	a := NewAnimator(WithBindings(bind_group_provider.VATBindings{Texture: 0, Sampler: 1, Params: -1, Globals: -1}))
	_, err := a.AddInstance(walk(0, 8))
	require.NoError(t, err)
	a.Flush()
	assert.Empty(t, a.StagedWriteData(), "params binding disabled")

	a.Release()
	assert.Zero(t, a.InstanceCount())
	assert.Nil(t, a.Texture())
}
