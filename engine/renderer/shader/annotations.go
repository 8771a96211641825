// annotations.go defines the annotation types, argument constants, and parser for the
// Oxy WGSL shader pre-processor. Annotations are single-line WGSL comments prefixed
// with @oxy: that inject the animation texture sampling library and its structs, declare
// bind group variables, and record which resource provider owns a binding. The parsed
// results are stored as Annotation values and consumed by the PreProcessor and the
// renderer to wire the baked texture and playback buffers without manual plumbing.
package shader

import (
	"fmt"
	"slices"
	"strconv"
	"strings"
)

// annotationPrefix is the marker that identifies an Oxy annotation within a WGSL comment line.
// Every annotation must appear on a line beginning with "//" followed by this prefix.
const annotationPrefix = "@oxy:"

// AnnotationType identifies the kind of annotation parsed from a WGSL comment line.
type AnnotationType string

const (
	// annotationTypeInclude injects a registered WGSL source (a struct or the sampling
	// function library) at the annotation site. Consumed entirely during pre-processing.
	//
	// Syntax: //@oxy:include <source_key>
	//
	// Example: //@oxy:include vat_sampling
	annotationTypeInclude AnnotationType = "include"

	// AnnotationTypeBindingGroup generates a WGSL @group/@binding variable declaration
	// and appends an Annotation to the PreProcessor's declarations list.
	//
	// Syntax: //@oxy:group <group> <binding> <address_space> <var_name> <type>
	//
	// Example: //@oxy:group 1 0 storage_read vat_params array<vat_playback_params>
	AnnotationTypeBindingGroup AnnotationType = "group"

	// AnnotationTypeProvider registers a resource provider identity for a group and binding
	// without generating any WGSL output. Used for textures and samplers whose declarations
	// stay hand-written below the annotation. An optional binding role names the purpose of
	// the binding within the provider group.
	//
	// Syntax:
	//   //@oxy:provider <group> <binding> <provider_identity>
	//   //@oxy:provider <group> <binding> <provider_identity> <binding_role>
	//
	// Example: //@oxy:provider 1 2 vat vat_texture
	AnnotationTypeProvider AnnotationType = "provider"
)

// Annotation represents a single parsed @oxy: annotation from a WGSL shader source line.
type Annotation struct {
	// Type identifies which annotation was parsed (include, group, or provider).
	Type AnnotationType

	// Args holds the annotation's arguments. The contents depend on Type:
	//   - include:  [0] = source key (e.g. "vat_sampling")
	//   - group:    [0] = address space, [1] = var name, [2] = WGSL type key
	//   - provider: [0] = provider identity, [1] = binding role (optional)
	Args []AnnotationArg

	// Line is the 1-based line number in the original WGSL source. Used for error reporting.
	Line int

	// Group is the @group index for group and provider annotations. Nil for include annotations.
	Group *int

	// Binding is the @binding index for group and provider annotations. Nil for include annotations.
	Binding *int
}

// Role returns the binding role of a provider annotation, or an empty argument.
func (a Annotation) Role() AnnotationArg {
	if a.Type != AnnotationTypeProvider || len(a.Args) < 2 {
		return ""
	}
	return a.Args[1]
}

// AnnotationArg is a typed string constant used as an argument in annotations.
type AnnotationArg string

// ── Source arguments ───────────────────────────────────────────────────────────
// Struct keys may appear in include and group annotations. Library keys are include-only.

const (
	// AnnotationArgPlaybackParams identifies the VATPlaybackParams struct.
	// Source: engine/vat/assets/vat_playback_params.wgsl
	AnnotationArgPlaybackParams AnnotationArg = "vat_playback_params"

	// AnnotationArgGlobals identifies the VATGlobals uniform struct.
	// Source: engine/vat/assets/vat_globals.wgsl
	AnnotationArgGlobals AnnotationArg = "vat_globals"

	// AnnotationArgSampling identifies the frame selection and matrix fetch functions.
	// Source: engine/vat/assets/vat_sampling.wgsl
	AnnotationArgSampling AnnotationArg = "vat_sampling"
)

// ── Address space arguments ────────────────────────────────────────────────────

const (
	// annotationArgStorageTypeUniform maps to var<uniform> in WGSL.
	annotationArgStorageTypeUniform AnnotationArg = "storage_uniform"

	// annotationArgStorageTypeRead maps to var<storage, read> in WGSL.
	annotationArgStorageTypeRead AnnotationArg = "storage_read"

	// annotationArgStorageTypeReadWrite maps to var<storage, read_write> in WGSL.
	annotationArgStorageTypeReadWrite AnnotationArg = "storage_read_write"
)

// ── Provider identity arguments ────────────────────────────────────────────────

const (
	// AnnotationArgVAT identifies the baked texture provider (texture view and nearest sampler).
	AnnotationArgVAT AnnotationArg = "vat"

	// AnnotationArgAnimator identifies the playback animator provider (per-instance params and globals).
	AnnotationArgAnimator AnnotationArg = "animator"
)

// ── Binding role arguments ─────────────────────────────────────────────────────

const (
	// AnnotationArgVATTexture identifies the RGBA32F animation texture binding.
	AnnotationArgVATTexture AnnotationArg = "vat_texture"

	// AnnotationArgVATSampler identifies the non-filtering sampler paired with the animation texture.
	AnnotationArgVATSampler AnnotationArg = "vat_sampler"

	// AnnotationArgVATParams identifies the per-instance playback params storage buffer.
	AnnotationArgVATParams AnnotationArg = "vat_params"

	// AnnotationArgVATGlobals identifies the globals uniform buffer.
	AnnotationArgVATGlobals AnnotationArg = "vat_globals"
)

// validStructTypes lists the struct keys accepted in include and group annotations.
var validStructTypes = []AnnotationArg{
	AnnotationArgPlaybackParams,
	AnnotationArgGlobals,
}

// validIncludes lists every key accepted by an include annotation.
var validIncludes = append([]AnnotationArg{AnnotationArgSampling}, validStructTypes...)

// validAddressSpaces lists the address space arguments accepted in group annotations.
var validAddressSpaces = []AnnotationArg{
	annotationArgStorageTypeUniform,
	annotationArgStorageTypeRead,
	annotationArgStorageTypeReadWrite,
}

// validProviderIdentities lists the provider identities accepted in provider annotations.
var validProviderIdentities = []AnnotationArg{
	AnnotationArgVAT,
	AnnotationArgAnimator,
}

// validBindingRoles lists the binding roles accepted in provider annotations.
var validBindingRoles = []AnnotationArg{
	AnnotationArgVATTexture,
	AnnotationArgVATSampler,
	AnnotationArgVATParams,
	AnnotationArgVATGlobals,
}

// parseAnnotation attempts to parse a single line of WGSL source as an @oxy: annotation.
// Returns nil with no error for lines that do not contain the annotation prefix. Returns
// a populated Annotation for valid annotations, or an error describing the problem for
// malformed annotations with correct prefix but invalid syntax or unknown arguments.
//
// Parameters:
//   - line: the raw WGSL source line to parse
//   - lineNum: the 1-based line number for error reporting
//
// Returns:
//   - *Annotation: the parsed annotation, or nil if the line is not an annotation
//   - error: a descriptive error if the annotation is malformed
func parseAnnotation(line string, lineNum int) (*Annotation, error) {
	trimmed := strings.TrimSpace(line)
	if !strings.HasPrefix(trimmed, "//") {
		return nil, nil
	}
	_, after, ok := strings.Cut(trimmed, annotationPrefix)
	if !ok {
		return nil, nil
	}

	args := strings.Fields(after)
	if len(args) == 0 {
		return nil, fmt.Errorf("line %d: empty @oxy annotation", lineNum)
	}

	switch args[0] {
	case string(annotationTypeInclude):
		if len(args) != 2 {
			return nil, fmt.Errorf("line %d: @oxy include annotation requires exactly one argument", lineNum)
		}
		if !slices.Contains(validIncludes, AnnotationArg(args[1])) {
			return nil, fmt.Errorf("line %d: unknown source %q in @oxy include annotation", lineNum, args[1])
		}
		return &Annotation{
			Type: annotationTypeInclude,
			Args: []AnnotationArg{AnnotationArg(args[1])},
			Line: lineNum,
		}, nil
	case string(AnnotationTypeBindingGroup):
		if len(args) != 6 {
			return nil, fmt.Errorf("line %d: @oxy group annotation requires exactly five arguments (group, binding, address space, var name, struct type)", lineNum)
		}
		group, binding, err := parseGroupBinding(args[1], args[2], lineNum)
		if err != nil {
			return nil, err
		}
		if !slices.Contains(validAddressSpaces, AnnotationArg(args[3])) {
			return nil, fmt.Errorf("line %d: unknown address space %q in @oxy group annotation", lineNum, args[3])
		}
		typeArg, isArray := strings.CutPrefix(args[5], "array<")
		if isArray {
			typeArg = strings.TrimSuffix(typeArg, ">")
		}
		if !slices.Contains(validStructTypes, AnnotationArg(typeArg)) {
			return nil, fmt.Errorf("line %d: unknown struct type %q in @oxy group annotation", lineNum, typeArg)
		}
		if isArray && AnnotationArg(args[3]) == annotationArgStorageTypeUniform {
			return nil, fmt.Errorf("line %d: runtime-sized array %q cannot live in uniform address space", lineNum, args[5])
		}
		return &Annotation{
			Type:    AnnotationTypeBindingGroup,
			Args:    []AnnotationArg{AnnotationArg(args[3]), AnnotationArg(args[4]), AnnotationArg(args[5])},
			Line:    lineNum,
			Group:   &group,
			Binding: &binding,
		}, nil
	case string(AnnotationTypeProvider):
		if len(args) < 4 || len(args) > 5 {
			return nil, fmt.Errorf("line %d: @oxy provider annotation requires three or four arguments (group, binding, provider identity[, binding role])", lineNum)
		}
		group, binding, err := parseGroupBinding(args[1], args[2], lineNum)
		if err != nil {
			return nil, err
		}
		if !slices.Contains(validProviderIdentities, AnnotationArg(args[3])) {
			return nil, fmt.Errorf("line %d: unknown provider identity %q in @oxy provider annotation", lineNum, args[3])
		}
		providerArgs := []AnnotationArg{AnnotationArg(args[3])}
		if len(args) == 5 {
			if !slices.Contains(validBindingRoles, AnnotationArg(args[4])) {
				return nil, fmt.Errorf("line %d: unknown binding role %q in @oxy provider annotation", lineNum, args[4])
			}
			providerArgs = append(providerArgs, AnnotationArg(args[4]))
		}
		return &Annotation{
			Type:    AnnotationTypeProvider,
			Args:    providerArgs,
			Line:    lineNum,
			Group:   &group,
			Binding: &binding,
		}, nil
	default:
		return nil, fmt.Errorf("line %d: unknown @oxy annotation type %q", lineNum, args[0])
	}
}

func parseGroupBinding(groupArg, bindingArg string, lineNum int) (int, int, error) {
	group, err := strconv.Atoi(groupArg)
	if err != nil || group < 0 {
		return 0, 0, fmt.Errorf("line %d: invalid group number %q", lineNum, groupArg)
	}
	binding, err := strconv.Atoi(bindingArg)
	if err != nil || binding < 0 {
		return 0, 0, fmt.Errorf("line %d: invalid binding number %q", lineNum, bindingArg)
	}
	return group, binding, nil
}
