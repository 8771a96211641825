package bakestore

import (
	"bytes"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"sync"

	"github.com/Carmen-Shannon/oxy-vat/common"
	"github.com/Carmen-Shannon/oxy-vat/engine/vat"
	"github.com/pkg/errors"
)

var (
	// ErrNotFound is returned when no document is stored under a name.
	ErrNotFound = errors.New("bakestore: document not found")
	// ErrInvalidName is returned for names that are empty or would escape the store directory.
	ErrInvalidName = errors.New("bakestore: invalid document name")
)

// extensions are probed in order when loading a document by name.
var extensions = []string{".json", ".yaml", ".yml"}

// Entry describes one stored document.
type Entry struct {
	Name   string     `json:"name" yaml:"name"`
	Format vat.Format `json:"format" yaml:"format"`
	Size   int64      `json:"size" yaml:"size"`
}

// store is the implementation of the Store interface.
type store struct {
	mu     *sync.RWMutex
	dir    string
	format vat.Format
}

// Store persists bake documents as files in a single directory, one file per bake named after it.
type Store interface {
	// Dir returns the directory documents are stored in.
	//
	// Returns:
	//   - string: the directory path
	Dir() string

	// Save writes a document under name, replacing any document already stored under that name
	// in either format. The document must decode to a texture.
	//
	// Parameters:
	//   - name: the document name, without extension
	//   - d: the document
	//
	// Returns:
	//   - error: ErrInvalidName, a *vat.CorruptEncodingError, or a write failure
	Save(name string, d *vat.Document) error

	// Load reads the document stored under name.
	//
	// Parameters:
	//   - name: the document name, without extension
	//
	// Returns:
	//   - *vat.Document: the document
	//   - error: ErrNotFound, ErrInvalidName, or a *vat.CorruptEncodingError
	Load(name string) (*vat.Document, error)

	// List returns every stored document sorted by name.
	//
	// Returns:
	//   - []Entry: the stored documents
	//   - error: an error if the directory cannot be read
	List() ([]Entry, error)

	// Delete removes the document stored under name.
	//
	// Parameters:
	//   - name: the document name, without extension
	//
	// Returns:
	//   - error: ErrNotFound or ErrInvalidName
	Delete(name string) error
}

var _ Store = &store{}

// NewStore opens a directory-backed store, creating the directory if needed.
//
// Parameters:
//   - dir: the directory
//   - options: functional options
//
// Returns:
//   - Store: the store
//   - error: an error if the directory cannot be created
func NewStore(dir string, options ...StoreBuilderOption) (Store, error) {
	s := &store{
		mu:     &sync.RWMutex{},
		dir:    dir,
		format: vat.FormatJSON,
	}
	for _, opt := range options {
		opt(s)
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, errors.Wrapf(err, "creating store directory %s", dir)
	}
	return s, nil
}

func (s *store) Dir() string {
	return s.dir
}

func (s *store) Save(name string, d *vat.Document) error {
	if err := validName(name); err != nil {
		return err
	}
	if _, err := d.Texture(); err != nil {
		return err
	}
	d.Name = common.Coalesce(d.Name, name)

	var buf bytes.Buffer
	if err := vat.WriteDocument(&buf, d, s.format); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	target := s.path(name, extensionFor(s.format))
	tmp := target + ".tmp"
	if err := os.WriteFile(tmp, buf.Bytes(), 0o644); err != nil {
		return errors.Wrapf(err, "writing %s", tmp)
	}
	if err := os.Rename(tmp, target); err != nil {
		os.Remove(tmp)
		return errors.Wrapf(err, "replacing %s", target)
	}
	// drop the same bake stored in another format
	for _, ext := range extensions {
		if p := s.path(name, ext); p != target {
			os.Remove(p)
		}
	}

	common.Logger().Debug("bake document saved", "name", name, "path", target, "bytes", buf.Len())
	return nil
}

func (s *store) Load(name string) (*vat.Document, error) {
	if err := validName(name); err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()
	p, err := s.find(name)
	if err != nil {
		return nil, err
	}
	f, err := os.Open(p)
	if err != nil {
		return nil, errors.Wrapf(err, "opening %s", p)
	}
	defer f.Close()

	d, err := vat.ReadDocument(f, vat.FormatFromPath(p))
	if err != nil {
		return nil, err
	}
	d.Name = common.Coalesce(d.Name, name)
	return d, nil
}

func (s *store) List() ([]Entry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	dirEntries, err := os.ReadDir(s.dir)
	if err != nil {
		return nil, errors.Wrapf(err, "reading %s", s.dir)
	}

	seen := make(map[string]bool)
	var entries []Entry
	for _, de := range dirEntries {
		if de.IsDir() {
			continue
		}
		ext := filepath.Ext(de.Name())
		if !slices.Contains(extensions, strings.ToLower(ext)) {
			continue
		}
		name := strings.TrimSuffix(de.Name(), ext)
		if seen[name] {
			continue
		}
		info, err := de.Info()
		if err != nil {
			continue
		}
		seen[name] = true
		entries = append(entries, Entry{
			Name:   name,
			Format: vat.FormatFromPath(de.Name()),
			Size:   info.Size(),
		})
	}

	slices.SortFunc(entries, func(a, b Entry) int {
		return strings.Compare(a.Name, b.Name)
	})
	return entries, nil
}

func (s *store) Delete(name string) error {
	if err := validName(name); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	p, err := s.find(name)
	if err != nil {
		return err
	}
	return errors.Wrapf(os.Remove(p), "removing %s", p)
}

// find returns the path of the first existing file for name.
func (s *store) find(name string) (string, error) {
	for _, ext := range extensions {
		p := s.path(name, ext)
		if _, err := os.Stat(p); err == nil {
			return p, nil
		}
	}
	return "", errors.Wrap(ErrNotFound, name)
}

func (s *store) path(name, ext string) string {
	return filepath.Join(s.dir, name+ext)
}

func extensionFor(f vat.Format) string {
	if f == vat.FormatYAML {
		return ".yaml"
	}
	return ".json"
}

func validName(name string) error {
	if name == "" || name == "." || name == ".." || strings.ContainsAny(name, `/\`) || strings.ContainsRune(name, 0) {
		return errors.Wrapf(ErrInvalidName, "%q", name)
	}
	return nil
}
