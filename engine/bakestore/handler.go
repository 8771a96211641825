package bakestore

import (
	"encoding/json"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/Carmen-Shannon/oxy-vat/common"
	"github.com/Carmen-Shannon/oxy-vat/engine/vat"
	"github.com/gorilla/handlers"
	"github.com/gorilla/mux"
	"github.com/pkg/errors"
)

// maxDocumentBytes caps PUT bodies.
const maxDocumentBytes = 256 << 20

const (
	contentTypeJSON = "application/json"
	contentTypeYAML = "application/yaml"
)

// Summary is the decoded shape of a stored document, without its payload.
type Summary struct {
	Name       string          `json:"name"`
	BoneCount  int             `json:"boneCount"`
	FrameCount int             `json:"frameCount"`
	Width      int             `json:"width"`
	Height     int             `json:"height"`
	Clips      []vat.ClipRange `json:"clips"`
}

// FrameResponse is the answer to a frame selection query.
type FrameResponse struct {
	Time   float32            `json:"time"`
	Params vat.PlaybackParams `json:"params"`
	Frame  int                `json:"frame"`
}

type handlerConfig struct {
	accessLog io.Writer
	compress  bool
}

// HandlerOption configures NewHandler.
type HandlerOption func(*handlerConfig)

// WithAccessLog writes an Apache common log line per request to w.
func WithAccessLog(w io.Writer) HandlerOption {
	return func(c *handlerConfig) {
		c.accessLog = w
	}
}

// WithCompression gzip-encodes responses for clients that accept it.
func WithCompression(compress bool) HandlerOption {
	return func(c *handlerConfig) {
		c.compress = compress
	}
}

// NewHandler serves a Store over HTTP:
//
//	GET    /bakes                 list stored documents
//	GET    /bakes/{name}          the document, JSON or YAML by ?format= or Accept
//	GET    /bakes/{name}/summary  dimensions and clip table
//	GET    /bakes/{name}/frame    the frame selected for ?t= and ?start= &end= &offset= &speed=, or ?clip=
//	PUT    /bakes/{name}          store a document, YAML when Content-Type says so
//	DELETE /bakes/{name}          remove a document
//
// Parameters:
//   - s: the store
//   - options: handler options
//
// Returns:
//   - http.Handler: the router wrapped in panic recovery and the optional access log and compression
func NewHandler(s Store, options ...HandlerOption) http.Handler {
	cfg := &handlerConfig{}
	for _, opt := range options {
		opt(cfg)
	}

	api := &api{store: s}
	r := mux.NewRouter()
	r.HandleFunc("/bakes", api.list).Methods(http.MethodGet)
	r.HandleFunc("/bakes/{name}/summary", api.summary).Methods(http.MethodGet)
	r.HandleFunc("/bakes/{name}/frame", api.frame).Methods(http.MethodGet)
	r.HandleFunc("/bakes/{name}", api.get).Methods(http.MethodGet)
	r.HandleFunc("/bakes/{name}", api.put).Methods(http.MethodPut)
	r.HandleFunc("/bakes/{name}", api.delete).Methods(http.MethodDelete)

	var h http.Handler = r
	if cfg.compress {
		h = handlers.CompressHandler(h)
	}
	if cfg.accessLog != nil {
		h = handlers.LoggingHandler(cfg.accessLog, h)
	}
	return handlers.RecoveryHandler()(h)
}

type api struct {
	store Store
}

func (a *api) list(w http.ResponseWriter, r *http.Request) {
	entries, err := a.store.List()
	if err != nil {
		writeError(w, err)
		return
	}
	if entries == nil {
		entries = []Entry{}
	}
	writeJSON(w, http.StatusOK, entries)
}

func (a *api) get(w http.ResponseWriter, r *http.Request) {
	d, err := a.store.Load(mux.Vars(r)["name"])
	if err != nil {
		writeError(w, err)
		return
	}

	format, err := responseFormat(r)
	if err != nil {
		writeError(w, err)
		return
	}
	w.Header().Set("Content-Type", contentTypeFor(format))
	if err := vat.WriteDocument(w, d, format); err != nil {
		common.Logger().Warn("writing bake document", "name", d.Name, "error", err)
	}
}

func (a *api) summary(w http.ResponseWriter, r *http.Request) {
	d, tex, err := a.loadTexture(mux.Vars(r)["name"])
	if err != nil {
		writeError(w, err)
		return
	}
	clips := d.Clips
	if clips == nil {
		clips = []vat.ClipRange{}
	}
	writeJSON(w, http.StatusOK, Summary{
		Name:       d.Name,
		BoneCount:  tex.BoneCount,
		FrameCount: tex.FrameCount,
		Width:      tex.Width,
		Height:     tex.Height,
		Clips:      clips,
	})
}

func (a *api) frame(w http.ResponseWriter, r *http.Request) {
	d, tex, err := a.loadTexture(mux.Vars(r)["name"])
	if err != nil {
		writeError(w, err)
		return
	}

	q := r.URL.Query()
	t, err := floatParam(q.Get("t"), 0)
	if err != nil {
		writeError(w, err)
		return
	}
	params, err := playbackParams(q, d.Clips)
	if err != nil {
		writeError(w, err)
		return
	}
	if err := params.Validate(); err != nil {
		writeError(w, err)
		return
	}
	if params.StartFrame < 0 {
		writeError(w, &vat.OutOfRangeFrameError{Index: int(params.StartFrame), Total: tex.FrameCount})
		return
	}
	if int(params.EndFrame) >= tex.FrameCount {
		writeError(w, &vat.OutOfRangeFrameError{Index: int(params.EndFrame), Total: tex.FrameCount})
		return
	}

	writeJSON(w, http.StatusOK, FrameResponse{Time: t, Params: params, Frame: params.FrameAt(t)})
}

func (a *api) put(w http.ResponseWriter, r *http.Request) {
	name := mux.Vars(r)["name"]
	format := vat.FormatJSON
	if isYAML(r.Header.Get("Content-Type")) {
		format = vat.FormatYAML
	}

	d, err := vat.ReadDocument(http.MaxBytesReader(w, r.Body, maxDocumentBytes), format)
	if err != nil {
		writeError(w, err)
		return
	}
	if err := a.store.Save(name, d); err != nil {
		writeError(w, err)
		return
	}
	common.Logger().Info("bake document stored", "name", name, "format", format)
	w.WriteHeader(http.StatusNoContent)
}

func (a *api) delete(w http.ResponseWriter, r *http.Request) {
	if err := a.store.Delete(mux.Vars(r)["name"]); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (a *api) loadTexture(name string) (*vat.Document, *vat.Texture, error) {
	d, err := a.store.Load(name)
	if err != nil {
		return nil, nil, err
	}
	tex, err := d.Texture()
	if err != nil {
		return nil, nil, err
	}
	return d, tex, nil
}

// playbackParams reads explicit params from the query, or the range of a named clip.
func playbackParams(q map[string][]string, clips []vat.ClipRange) (vat.PlaybackParams, error) {
	get := func(k string) string {
		if v := q[k]; len(v) > 0 {
			return v[0]
		}
		return ""
	}

	offset, err := floatParam(get("offset"), 0)
	if err != nil {
		return vat.PlaybackParams{}, err
	}
	speed, err := floatParam(get("speed"), 1)
	if err != nil {
		return vat.PlaybackParams{}, err
	}

	if name := get("clip"); name != "" {
		for _, c := range clips {
			if c.Name == name {
				return vat.ParamsForClip(c, offset, speed), nil
			}
		}
		return vat.PlaybackParams{}, errors.Wrapf(ErrNotFound, "clip %q", name)
	}

	start, err := floatParam(get("start"), 0)
	if err != nil {
		return vat.PlaybackParams{}, err
	}
	end, err := floatParam(get("end"), start)
	if err != nil {
		return vat.PlaybackParams{}, err
	}
	return vat.PlaybackParams{
		StartFrame:  start,
		EndFrame:    end,
		OffsetFrame: offset,
		Speed:       speed,
	}, nil
}

// badRequestError marks malformed query input.
type badRequestError struct {
	err error
}

func (e *badRequestError) Error() string { return e.err.Error() }
func (e *badRequestError) Unwrap() error { return e.err }

func floatParam(s string, fallback float32) (float32, error) {
	if s == "" {
		return fallback, nil
	}
	v, err := strconv.ParseFloat(s, 32)
	if err != nil {
		return 0, &badRequestError{err: errors.Wrapf(err, "parsing %q", s)}
	}
	return float32(v), nil
}

func responseFormat(r *http.Request) (vat.Format, error) {
	if f := r.URL.Query().Get("format"); f != "" {
		format, err := vat.ParseFormat(f)
		if err != nil {
			return "", &badRequestError{err: err}
		}
		return format, nil
	}
	if isYAML(r.Header.Get("Accept")) {
		return vat.FormatYAML, nil
	}
	return vat.FormatJSON, nil
}

func isYAML(mediaType string) bool {
	return strings.Contains(mediaType, "yaml")
}

func contentTypeFor(f vat.Format) string {
	if f == vat.FormatYAML {
		return contentTypeYAML
	}
	return contentTypeJSON
}

func statusFor(err error) int {
	var corrupt *vat.CorruptEncodingError
	var outOfRange *vat.OutOfRangeFrameError
	var badRequest *badRequestError
	var tooLarge *http.MaxBytesError
	switch {
	case errors.Is(err, ErrNotFound):
		return http.StatusNotFound
	case errors.As(err, &tooLarge):
		return http.StatusRequestEntityTooLarge
	case errors.Is(err, ErrInvalidName),
		errors.Is(err, vat.ErrInvalidParams),
		errors.As(err, &corrupt),
		errors.As(err, &outOfRange),
		errors.As(err, &badRequest):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

func writeError(w http.ResponseWriter, err error) {
	status := statusFor(err)
	if status == http.StatusInternalServerError {
		common.Logger().Error("bakestore request failed", "error", err)
	}
	writeJSON(w, status, map[string]string{"error": err.Error()})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", contentTypeJSON)
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		common.Logger().Warn("writing json response", "error", err)
	}
}
