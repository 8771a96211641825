package shader

import (
	"fmt"
	"os"

	"github.com/Carmen-Shannon/oxy-vat/engine/renderer/bind_group_provider"
	"github.com/cogentcore/webgpu/wgpu"
)

// shader is the implementation of the Shader interface.
// It holds the processed source and the layout metadata parsed from it.
type shader struct {
	key                        string
	source                     string
	entryPoint                 string
	module                     *wgpu.ShaderModuleDescriptor
	bindGroupLayoutDescriptors map[int]wgpu.BindGroupLayoutDescriptor
	bindingVarNames            map[int]map[int]string
	vatGroup                   int
	vatBindings                bind_group_provider.VATBindings

	pp PreProcessor
}

// Shader defines the interface for a pre-processed WGSL vertex shader that samples a baked
// animation texture. It exposes the processed source, the bind group layouts declared in it,
// and the group and binding indices of the animation resources so an animator can be wired to
// the same slots the shader reads.
type Shader interface {
	// Key retrieves the unique identifier for this shader, used for caching and lookups.
	//
	// Returns:
	//   - string: the shader's unique key
	Key() string

	// Source retrieves the processed WGSL source, with every @oxy: annotation expanded.
	//
	// Returns:
	//   - string: the WGSL source code of the shader
	Source() string

	// EntryPoint retrieves the name of the @vertex function.
	//
	// Returns:
	//   - string: the entry point name
	EntryPoint() string

	// Module retrieves the shader module descriptor for pipeline creation.
	//
	// Returns:
	//   - *wgpu.ShaderModuleDescriptor: the module descriptor labelled with the key
	Module() *wgpu.ShaderModuleDescriptor

	// BindGroupLayoutDescriptor retrieves the layout parsed for one bind group.
	//
	// Parameters:
	//   - group: the group index
	//
	// Returns:
	//   - wgpu.BindGroupLayoutDescriptor: the layout, empty if the group is not declared
	BindGroupLayoutDescriptor(group int) wgpu.BindGroupLayoutDescriptor

	// BindGroupLayoutDescriptors retrieves every parsed layout keyed by group index.
	//
	// Returns:
	//   - map[int]wgpu.BindGroupLayoutDescriptor: the layouts
	BindGroupLayoutDescriptors() map[int]wgpu.BindGroupLayoutDescriptor

	// BindGroupVarName retrieves the WGSL variable name declared at a group and binding.
	//
	// Parameters:
	//   - group: the group index
	//   - binding: the binding index
	//
	// Returns:
	//   - string: the variable name, empty if nothing is declared there
	BindGroupVarName(group, binding int) string

	// VATGroup retrieves the bind group holding the animation texture resources.
	//
	// Returns:
	//   - int: the group index
	VATGroup() int

	// VATBindings retrieves the binding indices of the animation resources within VATGroup.
	// Resources the shader does not declare are -1.
	//
	// Returns:
	//   - bind_group_provider.VATBindings: the binding indices
	VATBindings() bind_group_provider.VATBindings

	// Declarations retrieves the group and provider annotations found while processing.
	//
	// Returns:
	//   - []Annotation: the declarations in source order
	Declarations() []Annotation
}

var _ Shader = &shader{}

// NewShader pre-processes source and parses its layouts. The source must declare the animation
// texture through a provider annotation, and every animation resource it declares must live
// in the same group.
//
// Parameters:
//   - key: the unique identifier for this shader
//   - source: the raw WGSL source containing @oxy: annotations
//
// Returns:
//   - Shader: the processed shader
//   - error: an error if processing fails or the animation resources are incomplete
func NewShader(key, source string) (Shader, error) {
	s := &shader{key: key, pp: NewPreProcessor()}

	processed, err := s.pp.Process(source)
	if err != nil {
		return nil, fmt.Errorf("shader %s: %w", key, err)
	}
	s.source = processed
	s.entryPoint = parseVertexEntryPoint(processed)
	s.module = &wgpu.ShaderModuleDescriptor{
		Label: key,
		WGSLDescriptor: &wgpu.ShaderModuleWGSLDescriptor{
			Code: processed,
		},
	}
	s.bindGroupLayoutDescriptors, s.bindingVarNames = parseBindGroupLayouts(processed, wgpu.ShaderStageVertex)

	if err := s.resolveVATBindings(); err != nil {
		return nil, fmt.Errorf("shader %s: %w", key, err)
	}
	return s, nil
}

// NewShaderFromPath reads a WGSL file and passes it to NewShader.
//
// Parameters:
//   - key: the unique identifier for this shader
//   - path: the WGSL file path
//
// Returns:
//   - Shader: the processed shader
//   - error: an error if the file cannot be read or the shader is invalid
func NewShaderFromPath(key, path string) (Shader, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("shader %s: %w", key, err)
	}
	return NewShader(key, string(data))
}

func (s *shader) Key() string {
	return s.key
}

func (s *shader) Source() string {
	return s.source
}

func (s *shader) EntryPoint() string {
	return s.entryPoint
}

func (s *shader) Module() *wgpu.ShaderModuleDescriptor {
	return s.module
}

func (s *shader) BindGroupLayoutDescriptor(group int) wgpu.BindGroupLayoutDescriptor {
	return s.bindGroupLayoutDescriptors[group]
}

func (s *shader) BindGroupLayoutDescriptors() map[int]wgpu.BindGroupLayoutDescriptor {
	return s.bindGroupLayoutDescriptors
}

func (s *shader) BindGroupVarName(group, binding int) string {
	return s.bindingVarNames[group][binding]
}

func (s *shader) VATGroup() int {
	return s.vatGroup
}

func (s *shader) VATBindings() bind_group_provider.VATBindings {
	return s.vatBindings
}

func (s *shader) Declarations() []Annotation {
	return s.pp.Declarations()
}

// resolveVATBindings finds the animation resources among the declarations, checks they share a
// group and are backed by a WGSL declaration, and narrows the texture and sampler entries to
// the unfilterable kinds an RGBA32F matrix texture needs.
func (s *shader) resolveVATBindings() error {
	texGroup, texBinding, ok := s.pp.Lookup(AnnotationArgVAT, AnnotationArgVATTexture)
	if !ok {
		return fmt.Errorf("no %s provider declared", AnnotationArgVATTexture)
	}
	s.vatGroup = texGroup
	s.vatBindings = bind_group_provider.VATBindings{Texture: texBinding, Sampler: -1, Params: -1, Globals: -1}

	optional := []struct {
		identity AnnotationArg
		role     AnnotationArg
		slot     *int
	}{
		{AnnotationArgVAT, AnnotationArgVATSampler, &s.vatBindings.Sampler},
		{AnnotationArgAnimator, AnnotationArgVATParams, &s.vatBindings.Params},
		{AnnotationArgAnimator, AnnotationArgVATGlobals, &s.vatBindings.Globals},
	}
	for _, o := range optional {
		group, binding, ok := s.pp.Lookup(o.identity, o.role)
		if !ok {
			continue
		}
		if group != texGroup {
			return fmt.Errorf("%s is in group %d, the animation texture is in group %d", o.role, group, texGroup)
		}
		*o.slot = binding
	}

	layout, ok := s.bindGroupLayoutDescriptors[texGroup]
	if !ok {
		return fmt.Errorf("group %d has no WGSL declarations", texGroup)
	}
	for _, binding := range []int{s.vatBindings.Texture, s.vatBindings.Sampler, s.vatBindings.Params, s.vatBindings.Globals} {
		if binding >= 0 && s.bindingVarNames[texGroup][binding] == "" {
			return fmt.Errorf("@group(%d) @binding(%d) is annotated but never declared", texGroup, binding)
		}
	}
	for i := range layout.Entries {
		e := &layout.Entries[i]
		switch int(e.Binding) {
		case s.vatBindings.Texture:
			e.Texture.SampleType = wgpu.TextureSampleTypeUnfilterableFloat
		case s.vatBindings.Sampler:
			e.Sampler.Type = wgpu.SamplerBindingTypeNonFiltering
		}
	}
	return nil
}
