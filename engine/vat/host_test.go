package vat

import (
	"context"
	"errors"
	"sync"

	"github.com/Carmen-Shannon/oxy-vat/common"
)

type testSkeleton struct {
	bones int
}

func (s *testSkeleton) BoneCount() int { return s.bones }

type testMesh struct {
	name string
	skel *testSkeleton
}

func (m *testMesh) Name() string { return m.name }

func (m *testMesh) Skeleton() Skeleton {
	if m.skel == nil {
		return nil
	}
	return m.skel
}

// testHost poses bone b at timeline frame f as a translation (f, b, 0). It rejects reads that were not
// preceded by an evaluated seek, so out-of-order sampling shows up as an error.
type testHost struct {
	mu        sync.Mutex
	frame     float32
	evaluated bool
	seeks     []float32
	rests     int
	failAt    float32
	failErr   error
	onSeek    func(frame float32)
	wrongSize bool
}

func newTestHost() *testHost {
	return &testHost{failAt: -1}
}

func (h *testHost) GoToFrame(ctx context.Context, skel Skeleton, clip AnimationClip, frame float32) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.failErr != nil && frame == h.failAt {
		return h.failErr
	}
	h.frame = frame
	h.evaluated = true
	h.seeks = append(h.seeks, frame)
	if h.onSeek != nil {
		h.onSeek(frame)
	}
	return nil
}

func (h *testHost) ReturnToRest(ctx context.Context, skel Skeleton) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.frame = 0
	h.evaluated = true
	h.rests++
	return nil
}

func (h *testHost) TransformMatrices(skel Skeleton, mesh Mesh) ([]float32, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if !h.evaluated {
		return nil, errors.New("read before evaluation")
	}
	h.evaluated = false
	bones := skel.BoneCount()
	if h.wrongSize {
		bones--
	}
	return testPose(bones, h.frame), nil
}

func testPose(bones int, frame float32) []float32 {
	out := make([]float32, PoseFloats(bones))
	for b := 0; b <= bones; b++ {
		m := out[b*16 : (b+1)*16]
		common.Identity(m)
		if b < bones {
			m[12], m[13] = frame, float32(b)
		}
	}
	return out
}

func (h *testHost) seekLog() []float32 {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]float32(nil), h.seeks...)
}

type testRenderable struct {
	tex *Texture
	err error
}

func (r *testRenderable) ApplyVAT(tex *Texture) error {
	if r.err != nil {
		return r.err
	}
	r.tex = tex
	return nil
}
