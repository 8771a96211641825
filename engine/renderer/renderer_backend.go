package renderer

// RendererBackendType identifies the GPU backend implementation used by the Renderer.
type RendererBackendType int

const (
	// BackendTypeWGPU selects the WebGPU-based backend.
	BackendTypeWGPU RendererBackendType = iota
)

// PowerPreference selects which adapter the backend asks for.
type PowerPreference int

const (
	// PowerPreferenceDefault lets the driver choose.
	PowerPreferenceDefault PowerPreference = iota

	// PowerPreferenceLowPower prefers an integrated GPU.
	PowerPreferenceLowPower

	// PowerPreferenceHighPerformance prefers a discrete GPU.
	PowerPreferenceHighPerformance
)

// DefaultMaxTextureDimension2D is the WebGPU default limit on 2D texture width and height.
const DefaultMaxTextureDimension2D = 8192

// RendererBackend is the top-level backend interface for the Renderer.
// It embeds the concrete backend interface for the selected GPU API.
type RendererBackend interface {
	wgpuRendererBackend
}
