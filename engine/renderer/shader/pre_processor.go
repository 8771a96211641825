// pre_processor.go implements the Oxy WGSL shader pre-processor. It scans shader
// source code for @oxy: annotations, replaces them with generated WGSL declarations
// or injected sources, and collects a declarations list the renderer uses to bind the
// animation texture and playback buffers to the right group and binding indices.
//
// The pre-processor maintains two registries:
//   - sourceRegistry: maps AnnotationArg keys to embedded WGSL sources, the resolved
//     type name of struct sources, and the keys a source depends on.
//   - addressSpaceRegistry: maps address space argument keys to WGSL var<> syntax strings.
package shader

import (
	"fmt"
	"strings"

	"github.com/Carmen-Shannon/oxy-vat/engine/vat"
)

// registryEntry pairs an embedded WGSL source with the type name used in generated
// @group/@binding declarations. Type is empty for function libraries.
type registryEntry struct {
	// Source is the raw WGSL text injected by @oxy:include.
	Source string

	// Type is the WGSL type name emitted in @oxy:group declarations (e.g. "VATPlaybackParams").
	Type string

	// Requires lists sources that must be injected before this one.
	Requires []AnnotationArg
}

// preProcessor is the implementation of the PreProcessor interface.
type preProcessor struct {
	sourceRegistry       map[AnnotationArg]registryEntry
	addressSpaceRegistry map[AnnotationArg]string

	// declarations accumulates group and provider annotations during a Process call.
	declarations []Annotation
}

// PreProcessor processes raw WGSL shader source code containing @oxy: annotations,
// replacing them with generated declarations or injected sources while collecting
// a declarations list for resource wiring.
type PreProcessor interface {
	// Process takes raw WGSL shader source code and replaces @oxy: annotations with their
	// WGSL output. Each registered source is injected at most once; a source's dependencies
	// are injected ahead of it when they have not been included yet.
	//
	// The declarations list is reset at the start of each call.
	//
	// Parameters:
	//   - source: the raw WGSL shader source code containing annotations to be processed
	//
	// Returns:
	//   - string: the processed WGSL shader source code with annotations replaced
	//   - error: an error if any annotation is malformed or a binding is declared twice
	Process(source string) (string, error)

	// Declarations returns the group and provider annotations collected during the most
	// recent call to Process, in source order.
	//
	// Returns:
	//   - []Annotation: the declarations collected during the last Process call
	Declarations() []Annotation

	// Lookup finds the group and binding declared for a provider identity and binding role.
	// For group annotations the role is matched against the variable name.
	//
	// Parameters:
	//   - identity: the provider identity, ignored for group annotations
	//   - role: the binding role or variable name
	//
	// Returns:
	//   - int: the group index
	//   - int: the binding index
	//   - bool: false if no declaration matched
	Lookup(identity, role AnnotationArg) (int, int, bool)
}

var _ PreProcessor = &preProcessor{}

// NewPreProcessor creates a new PreProcessor with the animation texture sources and
// address space mappings pre-populated.
//
// Returns:
//   - PreProcessor: a ready-to-use pre-processor instance
func NewPreProcessor() PreProcessor {
	return &preProcessor{
		sourceRegistry: map[AnnotationArg]registryEntry{
			AnnotationArgPlaybackParams: {Source: vat.GPUPlaybackParamsSource, Type: "VATPlaybackParams"},
			AnnotationArgGlobals:        {Source: vat.GPUVATGlobalsSource, Type: "VATGlobals"},
			AnnotationArgSampling:       {Source: vat.ShaderSource, Requires: []AnnotationArg{AnnotationArgPlaybackParams}},
		},
		addressSpaceRegistry: map[AnnotationArg]string{
			annotationArgStorageTypeUniform:   "var<uniform>",
			annotationArgStorageTypeRead:      "var<storage, read>",
			annotationArgStorageTypeReadWrite: "var<storage, read_write>",
		},
	}
}

func (p *preProcessor) Process(source string) (string, error) {
	p.declarations = p.declarations[:0]
	included := map[AnnotationArg]bool{}
	bound := map[[2]int]int{}

	lines := strings.Split(source, "\n")
	out := make([]string, 0, len(lines))

	for i, line := range lines {
		a, err := parseAnnotation(line, i+1)
		if err != nil {
			return "", err
		}
		if a == nil {
			out = append(out, line)
			continue
		}

		if a.Group != nil {
			key := [2]int{*a.Group, *a.Binding}
			if prev, ok := bound[key]; ok {
				return "", fmt.Errorf("line %d: @group(%d) @binding(%d) already declared on line %d", a.Line, key[0], key[1], prev)
			}
			bound[key] = a.Line
		}

		switch a.Type {
		case annotationTypeInclude:
			out = p.include(out, a.Args[0], included)
		case AnnotationTypeBindingGroup:
			addrSpace := p.addressSpaceRegistry[a.Args[0]]
			varName := string(a.Args[1])
			var wgslType string
			if inner, ok := strings.CutPrefix(string(a.Args[2]), "array<"); ok {
				inner = strings.TrimSuffix(inner, ">")
				wgslType = fmt.Sprintf("array<%s>", p.sourceRegistry[AnnotationArg(inner)].Type)
			} else {
				wgslType = p.sourceRegistry[a.Args[2]].Type
			}

			out = append(out, fmt.Sprintf("@group(%d) @binding(%d) %s %s: %s;", *a.Group, *a.Binding, addrSpace, varName, wgslType))
			p.declarations = append(p.declarations, *a)
		case AnnotationTypeProvider:
			p.declarations = append(p.declarations, *a)
		default:
			return "", fmt.Errorf("line %d: unknown annotation type %q", i+1, a.Type)
		}
	}
	return strings.Join(out, "\n"), nil
}

func (p *preProcessor) include(out []string, key AnnotationArg, included map[AnnotationArg]bool) []string {
	if included[key] {
		return out
	}
	included[key] = true
	entry := p.sourceRegistry[key]
	for _, dep := range entry.Requires {
		out = p.include(out, dep, included)
	}
	return append(out, entry.Source)
}

func (p *preProcessor) Declarations() []Annotation {
	return p.declarations
}

func (p *preProcessor) Lookup(identity, role AnnotationArg) (int, int, bool) {
	for _, d := range p.declarations {
		switch d.Type {
		case AnnotationTypeProvider:
			if d.Args[0] == identity && d.Role() == role {
				return *d.Group, *d.Binding, true
			}
		case AnnotationTypeBindingGroup:
			if d.Args[1] == role {
				return *d.Group, *d.Binding, true
			}
		}
	}
	return 0, 0, false
}
