package vat

import (
	"math"

	"github.com/pkg/errors"
)

// RestClip is the clip index reported for the single rest-pose frame baked when no clips are given.
const RestClip = -1

// AnimationClip is an inclusive range of frames on the animation host's shared timeline.
type AnimationClip struct {
	Name string  `json:"name" yaml:"name"`
	From float32 `json:"from" yaml:"from"`
	To   float32 `json:"to" yaml:"to"`
}

// FrameCount returns the number of baked frames for the clip, To - From + 1 rounded to the nearest
// integer. Fractional host ranges are rounded because the texture has whole rows.
func (c AnimationClip) FrameCount() int {
	return int(math.Round(float64(c.To - c.From + 1)))
}

// Frame returns the host timeline frame for a local frame index.
func (c AnimationClip) Frame(local int) float32 {
	return c.From + float32(local)
}

// ClipRange is a clip's row range inside the baked texture, in global frames (inclusive).
// It is the table instances pick their start and end frames from.
type ClipRange struct {
	Name  string `json:"name" yaml:"name"`
	Start int    `json:"start" yaml:"start"`
	End   int    `json:"end" yaml:"end"`
}

// FrameCount returns End - Start + 1.
func (r ClipRange) FrameCount() int {
	return r.End - r.Start + 1
}

// FrameRef addresses one sample of a bake.
type FrameRef struct {
	// ClipIndex is the index into the clip list, or RestClip.
	ClipIndex int
	// LocalFrame is the frame offset inside the clip.
	LocalFrame int
	// Global is the row of the baked texture.
	Global int
}

// ClipSchedule lays clips out back-to-back along the global frame axis.
// Clip bases are computed once at construction and never change.
type ClipSchedule struct {
	clips []AnimationClip
	bases []int
	total int
}

// NewClipSchedule computes the global layout of clips.
// An empty clip list yields a schedule of exactly one rest frame.
//
// Parameters:
//   - clips: the ordered clips to bake
//
// Returns:
//   - *ClipSchedule: the computed schedule
//   - error: wraps ErrInvalidClip if any clip has fewer than one frame
func NewClipSchedule(clips []AnimationClip) (*ClipSchedule, error) {
	s := &ClipSchedule{
		clips: append([]AnimationClip(nil), clips...),
		bases: make([]int, len(clips)),
	}
	for i, c := range clips {
		n := c.FrameCount()
		if n < 1 {
			return nil, errors.Wrapf(ErrInvalidClip, "clip %d (%q) range [%g, %g]", i, c.Name, c.From, c.To)
		}
		s.bases[i] = s.total
		s.total += n
	}
	if len(clips) == 0 {
		s.total = 1
	}
	return s, nil
}

// TotalFrames returns the height of the baked texture.
func (s *ClipSchedule) TotalFrames() int {
	return s.total
}

// Clips returns a copy of the scheduled clips.
func (s *ClipSchedule) Clips() []AnimationClip {
	return append([]AnimationClip(nil), s.clips...)
}

// Base returns the global frame where clip i starts.
func (s *ClipSchedule) Base(i int) int {
	return s.bases[i]
}

// Frames enumerates every sample in bake order: clip order, then ascending local frame.
// Each global index in [0, TotalFrames) appears exactly once.
func (s *ClipSchedule) Frames() []FrameRef {
	if len(s.clips) == 0 {
		return []FrameRef{{ClipIndex: RestClip}}
	}
	refs := make([]FrameRef, 0, s.total)
	for i, c := range s.clips {
		for f := range c.FrameCount() {
			refs = append(refs, FrameRef{ClipIndex: i, LocalFrame: f, Global: s.bases[i] + f})
		}
	}
	return refs
}

// Ranges returns the global row range of each clip, in clip order.
// The rest schedule reports a single range named "rest".
func (s *ClipSchedule) Ranges() []ClipRange {
	if len(s.clips) == 0 {
		return []ClipRange{{Name: "rest", Start: 0, End: 0}}
	}
	out := make([]ClipRange, len(s.clips))
	for i, c := range s.clips {
		out[i] = ClipRange{Name: c.Name, Start: s.bases[i], End: s.bases[i] + c.FrameCount() - 1}
	}
	return out
}

// Locate maps a global frame back to its clip and local frame.
//
// Parameters:
//   - global: the global frame index
//
// Returns:
//   - FrameRef: the located sample
//   - error: an *OutOfRangeFrameError if global is outside [0, TotalFrames)
func (s *ClipSchedule) Locate(global int) (FrameRef, error) {
	if global < 0 || global >= s.total {
		return FrameRef{}, &OutOfRangeFrameError{Index: global, Total: s.total}
	}
	if len(s.clips) == 0 {
		return FrameRef{ClipIndex: RestClip}, nil
	}
	for i := len(s.bases) - 1; i >= 0; i-- {
		if global >= s.bases[i] {
			return FrameRef{ClipIndex: i, LocalFrame: global - s.bases[i], Global: global}, nil
		}
	}
	return FrameRef{}, &OutOfRangeFrameError{Index: global, Total: s.total}
}
