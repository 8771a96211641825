package vat

import (
	"math"
	"math/rand/v2"

	"github.com/Carmen-Shannon/oxy-vat/common"
	"github.com/pkg/errors"
)

// PlaybackParams selects which rows of a texture an instance plays and how fast.
// StartFrame and EndFrame are global frames (inclusive), OffsetFrame shifts the instance's phase,
// and Speed is in frames per second.
type PlaybackParams struct {
	StartFrame  float32 `json:"startFrame" yaml:"startFrame"`
	EndFrame    float32 `json:"endFrame" yaml:"endFrame"`
	OffsetFrame float32 `json:"offsetFrame" yaml:"offsetFrame"`
	Speed       float32 `json:"speed" yaml:"speed"`
}

// ParamsForClip returns params that loop a clip range.
func ParamsForClip(r ClipRange, offset, speed float32) PlaybackParams {
	return PlaybackParams{
		StartFrame:  float32(r.Start),
		EndFrame:    float32(r.End),
		OffsetFrame: offset,
		Speed:       speed,
	}
}

// RandomParams picks a random clip, a random phase within it and a random speed in [minSpeed, maxSpeed).
// It is how crowds are desynchronized.
//
// Parameters:
//   - rng: the random source
//   - ranges: the clip table of the texture, must not be empty
//   - minSpeed, maxSpeed: the speed interval in frames per second
//
// Returns:
//   - PlaybackParams: the generated params
func RandomParams(rng *rand.Rand, ranges []ClipRange, minSpeed, maxSpeed float32) PlaybackParams {
	r := ranges[rng.IntN(len(ranges))]
	offset := float32(math.Floor(rng.Float64() * float64(r.FrameCount())))
	speed := minSpeed + rng.Float32()*(maxSpeed-minSpeed)
	return ParamsForClip(r, offset, speed)
}

// Validate reports params that cannot select a frame.
//
// Returns:
//   - error: wraps ErrInvalidParams on a non-positive speed, an inverted range, or non-finite values
func (p PlaybackParams) Validate() error {
	for _, v := range [...]float32{p.StartFrame, p.EndFrame, p.OffsetFrame, p.Speed} {
		f := float64(v)
		if math.IsNaN(f) || math.IsInf(f, 0) {
			return errors.Wrapf(ErrInvalidParams, "non-finite value in %+v", p)
		}
	}
	if p.Speed <= 0 {
		return errors.Wrapf(ErrInvalidParams, "speed %g must be positive", p.Speed)
	}
	if p.EndFrame < p.StartFrame {
		return errors.Wrapf(ErrInvalidParams, "end frame %g before start frame %g", p.EndFrame, p.StartFrame)
	}
	return nil
}

// NumFrames returns EndFrame - StartFrame + 1.
func (p PlaybackParams) NumFrames() float32 {
	return p.EndFrame - p.StartFrame + 1
}

// Period returns the seconds one loop of the range takes.
func (p PlaybackParams) Period() float64 {
	return float64(p.NumFrames()) / float64(p.Speed)
}

// FrameAt selects the texture row to sample at time seconds. It evaluates vat_frame_index from the
// sampling shader step by step in float32, so it returns the row the GPU samples for the same clock:
//
//	cyclePos = fract((time + offset/speed) * speed / numFrames)
//	frame    = start + min(floor(cyclePos * numFrames), numFrames - 1)
//
// The result is always in [StartFrame, EndFrame] for valid params.
//
// Parameters:
//   - time: the playback clock in seconds as uploaded in GPUVATGlobals, may be negative
//
// Returns:
//   - int: the global frame
func (p PlaybackParams) FrameAt(time float32) int {
	numFrames := common.Floor(float32(p.EndFrame - p.StartFrame + 1))
	offsetCycle := float32(p.OffsetFrame / p.Speed)
	scaled := float32(float32(time+offsetCycle) * p.Speed)
	cyclePos := common.Fract(float32(scaled / numFrames))
	local := min(common.Floor(float32(cyclePos*numFrames)), numFrames-1)
	return int(float32(p.StartFrame + local))
}

// GPU returns the params in their GPU layout.
func (p PlaybackParams) GPU() GPUPlaybackParams {
	return GPUPlaybackParams{
		StartFrame:  p.StartFrame,
		EndFrame:    p.EndFrame,
		OffsetFrame: p.OffsetFrame,
		Speed:       p.Speed,
	}
}
