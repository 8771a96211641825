package vat

import (
	"math"
	"math/rand/v2"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFrameAtKnownValues(t *testing.T) {
	p := PlaybackParams{StartFrame: 0, EndFrame: 44, OffsetFrame: 0, Speed: 30}
	assert.Equal(t, 0, p.FrameAt(1.5))
	assert.Equal(t, 0, p.FrameAt(0))
	assert.Equal(t, 15, p.FrameAt(0.51))
	assert.Equal(t, 44, p.FrameAt(1.49))

	clip2 := PlaybackParams{StartFrame: 10, EndFrame: 15, OffsetFrame: 2.5, Speed: 6}
	assert.Equal(t, 12, clip2.FrameAt(0))
	assert.Equal(t, 15, clip2.FrameAt(0.5))
	assert.Equal(t, 10, clip2.FrameAt(0.7))
}

func TestFrameAtStaysInRange(t *testing.T) {
	rng := rand.New(rand.NewPCG(1, 2))
	for range 2000 {
		start := float32(rng.IntN(100))
		p := PlaybackParams{
			StartFrame:  start,
			EndFrame:    start + float32(rng.IntN(60)),
			OffsetFrame: float32(rng.Float64()*200 - 100),
			Speed:       float32(rng.Float64()*120 + 0.01),
		}
		require.NoError(t, p.Validate())
		for _, tm := range []float32{0, -1e-20, -1e-7, 1e-7, rng.Float32() * 1e4, -rng.Float32() * 1e4} {
			f := p.FrameAt(tm)
			require.GreaterOrEqual(t, f, int(p.StartFrame), "%+v at %g", p, tm)
			require.LessOrEqual(t, f, int(p.EndFrame), "%+v at %g", p, tm)
		}
	}
}

func TestFrameAtNegativeEpsilonClamps(t *testing.T) {
	// fract of a tiny negative cycle position rounds to 1.0, which must not select end+1
	p := PlaybackParams{StartFrame: 0, EndFrame: 9, Speed: 1}
	assert.Equal(t, 9, p.FrameAt(-1e-20))
}

func TestFrameAtPeriodic(t *testing.T) {
	p := PlaybackParams{StartFrame: 5, EndFrame: 20, OffsetFrame: 3, Speed: 8}
	period := float32(p.Period())
	assert.Equal(t, float32(2), period)
	// sample mid-frame so rounding never lands on a boundary
	for i := range 16 {
		tm := (float32(i) + 0.5) / 8
		assert.Equal(t, p.FrameAt(tm), p.FrameAt(tm+period), "t=%g", tm)
		assert.Equal(t, p.FrameAt(tm), p.FrameAt(tm+3*period), "t=%g", tm)
	}
}

func TestFrameAtMatchesShaderPrecision(t *testing.T) {
	p := PlaybackParams{StartFrame: 0, EndFrame: 44, OffsetFrame: 0, Speed: 30}
	// 0.69999999 rounds to 0.699999988 in f32. 0.699999988*30 rounds up to exactly 21 in f32,
	// while a float64 evaluation lands just below 21.
	tm := float32(0.69999999)
	assert.Less(t, float64(tm)*30, 21.0)
	assert.Equal(t, float32(21), tm*p.Speed)
	assert.Equal(t, 21, p.FrameAt(tm))

	// the clock the GPU sees is the float32 uploaded in the globals uniform
	tex, err := EncodeTexture(fullBuffer(t, 1, 45))
	require.NoError(t, err)
	globals := GlobalsFor(tex, tm)
	assert.Equal(t, p.FrameAt(tm), p.FrameAt(globals.Time))
}

func TestFrameAtOffsetShiftsPhase(t *testing.T) {
	base := PlaybackParams{StartFrame: 0, EndFrame: 9, Speed: 10}
	shifted := base
	shifted.OffsetFrame = 4
	assert.Equal(t, 4, shifted.FrameAt(0.01))
	assert.Equal(t, base.FrameAt(0.41), shifted.FrameAt(0.01))
}

func TestPlaybackValidate(t *testing.T) {
	good := PlaybackParams{StartFrame: 0, EndFrame: 9, Speed: 1}
	assert.NoError(t, good.Validate())

	for name, p := range map[string]PlaybackParams{
		"zero speed":     {EndFrame: 9},
		"negative speed": {EndFrame: 9, Speed: -1},
		"inverted":       {StartFrame: 9, EndFrame: 1, Speed: 1},
		"nan":            {EndFrame: float32(math.NaN()), Speed: 1},
		"inf speed":      {EndFrame: 1, Speed: float32(math.Inf(1))},
	} {
		assert.ErrorIs(t, p.Validate(), ErrInvalidParams, name)
	}
}

func TestParamsForClip(t *testing.T) {
	p := ParamsForClip(ClipRange{Name: "run", Start: 10, End: 15}, 2, 30)
	assert.Equal(t, PlaybackParams{StartFrame: 10, EndFrame: 15, OffsetFrame: 2, Speed: 30}, p)
	assert.Equal(t, float32(6), p.NumFrames())
}

func TestRandomParams(t *testing.T) {
	rng := rand.New(rand.NewPCG(7, 7))
	ranges := []ClipRange{{Name: "a", Start: 0, End: 9}, {Name: "b", Start: 10, End: 15}}
	seen := map[float32]bool{}
	for range 500 {
		p := RandomParams(rng, ranges, 30, 80)
		require.NoError(t, p.Validate())
		seen[p.StartFrame] = true
		assert.GreaterOrEqual(t, p.Speed, float32(30))
		assert.LessOrEqual(t, p.Speed, float32(80))
		assert.GreaterOrEqual(t, p.OffsetFrame, float32(0))
		assert.Less(t, p.OffsetFrame, p.NumFrames())
	}
	assert.Len(t, seen, 2)
}

func TestGPUPlaybackParamsMarshal(t *testing.T) {
	g := PlaybackParams{StartFrame: 1, EndFrame: 2, OffsetFrame: 3, Speed: 4}.GPU()
	assert.Equal(t, 16, g.Size())
	buf := g.Marshal()
	require.Len(t, buf, 16)
	assert.Equal(t, []byte{0x00, 0x00, 0x80, 0x40}, buf[12:16])

	globals := GPUVATGlobals{Time: 1, FrameCount: 45, TextureWidth: 12, BoneCount: 2}
	assert.Equal(t, 16, globals.Size())
	assert.Equal(t, []byte{45, 0, 0, 0}, globals.Marshal()[4:8])
}

func TestShaderSourceDefinesContract(t *testing.T) {
	assert.Contains(t, ShaderSource, "fn vat_frame_index(")
	assert.Contains(t, ShaderSource, "fn vat_read_matrix(")
	assert.Contains(t, GPUPlaybackParamsSource, "struct VATPlaybackParams")
	assert.Contains(t, GPUVATGlobalsSource, "struct VATGlobals")
}
