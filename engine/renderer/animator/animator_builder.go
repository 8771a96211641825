package animator

import (
	"github.com/Carmen-Shannon/oxy-vat/engine/renderer/bind_group_provider"
	"github.com/Carmen-Shannon/oxy-vat/engine/vat"
)

// AnimatorBuilderOption is a functional option for configuring an Animator during construction.
type AnimatorBuilderOption func(*animator)

// WithMaxInstances is an option builder that sets the initial instance capacity of the Animator.
//
// Parameters:
//   - maxInstances: the number of instances to allocate for
//
// Returns:
//   - AnimatorBuilderOption: a function that applies the max instances option to an animator
func WithMaxInstances(maxInstances int) AnimatorBuilderOption {
	return func(a *animator) {
		if maxInstances > 0 {
			a.resize(uint32(maxInstances))
		}
	}
}

// WithTexture is an option builder that applies a baked texture at construction.
// Baked textures are normally applied through vat.Baker.Apply, which also advances the bake's state.
//
// Parameters:
//   - tex: the texture to bind
//
// Returns:
//   - AnimatorBuilderOption: a function that applies the texture option to an animator
func WithTexture(tex *vat.Texture) AnimatorBuilderOption {
	return func(a *animator) {
		a.texture = tex
	}
}

// WithTime is an option builder that starts the playback clock at t seconds.
//
// Parameters:
//   - t: the initial clock value
//
// Returns:
//   - AnimatorBuilderOption: a function that applies the time option to an animator
func WithTime(t float64) AnimatorBuilderOption {
	return func(a *animator) {
		a.time = t
	}
}

// WithBindings is an option builder that sets the binding indices staged writes target.
//
// Parameters:
//   - b: the binding indices
//
// Returns:
//   - AnimatorBuilderOption: a function that applies the bindings option to an animator
func WithBindings(b bind_group_provider.VATBindings) AnimatorBuilderOption {
	return func(a *animator) {
		a.bindings = b
	}
}

// WithProvider is an option builder that supplies the BindGroupProvider the animator stages writes against.
//
// Parameters:
//   - p: the provider
//
// Returns:
//   - AnimatorBuilderOption: a function that applies the provider option to an animator
func WithProvider(p bind_group_provider.BindGroupProvider) AnimatorBuilderOption {
	return func(a *animator) {
		a.provider = p
	}
}
