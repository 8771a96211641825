package vat

import (
	"encoding/json"
	"fmt"
	"io"
	"path/filepath"
	"strings"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"
)

// Format is a document encoding.
type Format string

const (
	FormatJSON Format = "json"
	FormatYAML Format = "yaml"
)

// FormatFromPath picks the encoding from a file extension. Anything that is not .yaml or .yml is JSON.
func FormatFromPath(path string) Format {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return FormatYAML
	default:
		return FormatJSON
	}
}

// ParseFormat parses a format name, defaulting to JSON for an empty string.
func ParseFormat(s string) (Format, error) {
	switch Format(strings.ToLower(s)) {
	case "", FormatJSON:
		return FormatJSON, nil
	case FormatYAML, "yml":
		return FormatYAML, nil
	default:
		return "", fmt.Errorf("vat: unknown document format %q", s)
	}
}

// Document is the persisted form of a bake. VertexData alone is enough to restore a texture when the
// bone count is known from the mesh; the remaining fields make the document self-describing.
type Document struct {
	Name       string      `json:"name,omitempty" yaml:"name,omitempty"`
	BoneCount  int         `json:"boneCount,omitempty" yaml:"boneCount,omitempty"`
	FrameCount int         `json:"frameCount,omitempty" yaml:"frameCount,omitempty"`
	Clips      []ClipRange `json:"clips,omitempty" yaml:"clips,omitempty"`
	VertexData string      `json:"vertexData" yaml:"vertexData"`
}

// NewDocument serializes a texture.
//
// Parameters:
//   - name: the bake name
//   - tex: the encoded texture
//   - clips: the clip row ranges, may be nil
//
// Returns:
//   - *Document: the document
func NewDocument(name string, tex *Texture, clips []ClipRange) *Document {
	return &Document{
		Name:       name,
		BoneCount:  tex.BoneCount,
		FrameCount: tex.FrameCount,
		Clips:      clips,
		VertexData: EncodeBuffer(tex.Pixels),
	}
}

// Dimensions resolves the bone and frame counts of the payload. Either count may be omitted from the
// document as long as the payload length determines it.
//
// Parameters:
//   - data: the decoded payload
//
// Returns:
//   - boneCount, frameCount: the resolved dimensions
//   - error: a *CorruptEncodingError if the dimensions cannot be resolved or disagree with the payload
func (d *Document) Dimensions(data []float32) (boneCount, frameCount int, err error) {
	n := len(data)
	switch {
	case d.BoneCount > 0 && d.FrameCount > 0:
		boneCount, frameCount = d.BoneCount, d.FrameCount
	case d.BoneCount > 0:
		stride := PoseFloats(d.BoneCount)
		if n == 0 || n%stride != 0 {
			return 0, 0, &CorruptEncodingError{Reason: fmt.Sprintf("%d floats is not a whole number of %d-bone frames", n, d.BoneCount)}
		}
		boneCount, frameCount = d.BoneCount, n/stride
	case d.FrameCount > 0:
		if n%(d.FrameCount*16) != 0 || n/(d.FrameCount*16) < 1 {
			return 0, 0, &CorruptEncodingError{Reason: fmt.Sprintf("%d floats is not a whole number of matrices over %d frames", n, d.FrameCount)}
		}
		boneCount, frameCount = n/(d.FrameCount*16)-1, d.FrameCount
	default:
		return 0, 0, &CorruptEncodingError{Reason: "document carries neither boneCount nor frameCount"}
	}
	if PoseFloats(boneCount)*frameCount != n {
		return 0, 0, &CorruptEncodingError{Reason: fmt.Sprintf("%d floats does not match %d bones x %d frames", n, boneCount, frameCount)}
	}
	return boneCount, frameCount, nil
}

// Texture decodes the payload into a texture.
//
// Returns:
//   - *Texture: the restored texture, labelled with the document name
//   - error: a *CorruptEncodingError on malformed payload or dimensions
func (d *Document) Texture() (*Texture, error) {
	data, err := DecodeBuffer(d.VertexData)
	if err != nil {
		return nil, err
	}
	bones, frames, err := d.Dimensions(data)
	if err != nil {
		return nil, err
	}
	tex, err := NewTexture(data, bones, frames)
	if err != nil {
		return nil, err
	}
	tex.Label = d.Name
	return tex, nil
}

// WriteDocument encodes d to w.
//
// Parameters:
//   - w: the destination
//   - d: the document
//   - format: the encoding
//
// Returns:
//   - error: non-nil if encoding or writing fails
func WriteDocument(w io.Writer, d *Document, format Format) error {
	switch format {
	case FormatYAML:
		enc := yaml.NewEncoder(w)
		if err := enc.Encode(d); err != nil {
			return errors.Wrap(err, "encoding yaml document")
		}
		return errors.Wrap(enc.Close(), "flushing yaml document")
	default:
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return errors.Wrap(enc.Encode(d), "encoding json document")
	}
}

// ReadDocument decodes a document from r.
//
// Parameters:
//   - r: the source
//   - format: the encoding
//
// Returns:
//   - *Document: the document
//   - error: a *CorruptEncodingError if r does not hold a valid document
func ReadDocument(r io.Reader, format Format) (*Document, error) {
	var d Document
	var err error
	switch format {
	case FormatYAML:
		err = yaml.NewDecoder(r).Decode(&d)
	default:
		err = json.NewDecoder(r).Decode(&d)
	}
	if err != nil {
		return nil, &CorruptEncodingError{Reason: "unreadable " + string(format) + " document", Err: err}
	}
	return &d, nil
}
