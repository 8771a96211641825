package vat

import "github.com/google/uuid"

// BakerBuilderOption is a functional option for configuring a Baker during construction.
type BakerBuilderOption func(*baker)

// WithName is an option builder that sets the bake name. Defaults to the mesh name.
//
// Parameters:
//   - name: the bake name
//
// Returns:
//   - BakerBuilderOption: a function that applies the name option to a baker
func WithName(name string) BakerBuilderOption {
	return func(b *baker) {
		b.name = name
	}
}

// WithID is an option builder that overrides the generated bake id.
//
// Parameters:
//   - id: the bake id
//
// Returns:
//   - BakerBuilderOption: a function that applies the id option to a baker
func WithID(id uuid.UUID) BakerBuilderOption {
	return func(b *baker) {
		b.id = id
	}
}

// WithClips is an option builder that sets the ordered clips to bake. The clips are copied.
// Without clips the baker captures a single rest-pose frame.
//
// Parameters:
//   - clips: the clips, baked back-to-back in the given order
//
// Returns:
//   - BakerBuilderOption: a function that applies the clips option to a baker
func WithClips(clips ...AnimationClip) BakerBuilderOption {
	return func(b *baker) {
		b.clips = append([]AnimationClip(nil), clips...)
	}
}

// WithHost is an option builder that sets the animation host the baker samples from. Required.
//
// Parameters:
//   - host: the animation host
//
// Returns:
//   - BakerBuilderOption: a function that applies the host option to a baker
func WithHost(host AnimationHost) BakerBuilderOption {
	return func(b *baker) {
		b.host = host
	}
}

// WithSampler is an option builder that replaces the default pose sampler built over the host.
//
// Parameters:
//   - s: the sampler
//
// Returns:
//   - BakerBuilderOption: a function that applies the sampler option to a baker
func WithSampler(s *Sampler) BakerBuilderOption {
	return func(b *baker) {
		b.sampler = s
	}
}

// WithObserver is an option builder that attaches a progress observer, such as a bake profiler.
//
// Parameters:
//   - o: the observer
//
// Returns:
//   - BakerBuilderOption: a function that applies the observer option to a baker
func WithObserver(o BakeObserver) BakerBuilderOption {
	return func(b *baker) {
		b.observer = o
	}
}
