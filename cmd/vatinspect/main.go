// Command vatinspect decodes a bake document and reports its dimensions, clip table and the frame
// playback selects at a given time. It can also write a TIFF preview of the texture and upload it to a
// headless GPU device to check the device accepts it.
package main

import (
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"text/tabwriter"

	"github.com/Carmen-Shannon/oxy-vat/common"
	"github.com/Carmen-Shannon/oxy-vat/engine/renderer"
	bgp "github.com/Carmen-Shannon/oxy-vat/engine/renderer/bind_group_provider"
	"github.com/Carmen-Shannon/oxy-vat/engine/vat"
	"github.com/pkg/errors"
)

type options struct {
	in       string
	format   string
	time     float64
	clip     string
	start    float64
	end      float64
	offset   float64
	speed    float64
	preview  string
	scale    int
	upload   bool
	software bool
}

func main() {
	var opts options
	var verbose bool
	flag.StringVar(&opts.in, "in", "", "bake document to inspect (.json, .yaml)")
	flag.StringVar(&opts.format, "format", "", "document format, overrides the file extension")
	flag.Float64Var(&opts.time, "t", 0, "playback time in seconds")
	flag.StringVar(&opts.clip, "clip", "", "evaluate the range of this clip")
	flag.Float64Var(&opts.start, "start", 0, "first frame of an explicit range")
	flag.Float64Var(&opts.end, "end", -1, "last frame of an explicit range, -1 for the whole texture")
	flag.Float64Var(&opts.offset, "offset", 0, "playback offset in frames")
	flag.Float64Var(&opts.speed, "speed", 1, "playback speed in frames per second")
	flag.StringVar(&opts.preview, "preview", "", "write a TIFF visualization of the texture to this path")
	flag.IntVar(&opts.scale, "scale", 1, "preview magnification")
	flag.BoolVar(&opts.upload, "upload", false, "upload the texture to a headless GPU device")
	flag.BoolVar(&opts.software, "software", false, "force the fallback adapter when uploading")
	flag.BoolVar(&verbose, "v", false, "debug logging")
	flag.Parse()

	if opts.in == "" && flag.NArg() > 0 {
		opts.in = flag.Arg(0)
	}
	if opts.in == "" {
		flag.Usage()
		os.Exit(2)
	}

	level := slog.LevelInfo
	if verbose {
		level = slog.LevelDebug
	}
	common.SetLogger(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})))

	if err := run(opts, os.Stdout); err != nil {
		fmt.Fprintf(os.Stderr, "vatinspect: %v\n", err)
		os.Exit(1)
	}
}

func run(opts options, out io.Writer) error {
	doc, err := readDocument(opts.in, opts.format)
	if err != nil {
		return err
	}
	tex, err := doc.Texture()
	if err != nil {
		return errors.Wrapf(err, "decoding %s", opts.in)
	}

	fmt.Fprintf(out, "name:    %s\n", common.Coalesce(doc.Name, "(unnamed)"))
	fmt.Fprintf(out, "bones:   %d (+1 reserved)\n", tex.BoneCount)
	fmt.Fprintf(out, "frames:  %d\n", tex.FrameCount)
	fmt.Fprintf(out, "texture: %dx%d RGBA32F, %d bytes\n", tex.Width, tex.Height, len(tex.Pixels)*4)

	if len(doc.Clips) > 0 {
		tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
		fmt.Fprintln(tw, "\nCLIP\tSTART\tEND\tFRAMES")
		for _, c := range doc.Clips {
			fmt.Fprintf(tw, "%s\t%d\t%d\t%d\n", c.Name, c.Start, c.End, c.FrameCount())
		}
		if err := tw.Flush(); err != nil {
			return err
		}
	}

	params, err := selectParams(opts, doc, tex)
	if err != nil {
		return err
	}
	fmt.Fprintf(out, "\nt=%g start=%g end=%g offset=%g speed=%g -> frame %d (period %.3fs)\n",
		opts.time, params.StartFrame, params.EndFrame, params.OffsetFrame, params.Speed,
		params.FrameAt(float32(opts.time)), params.Period())

	if opts.preview != "" {
		if err := writePreview(opts.preview, tex, opts.scale); err != nil {
			return err
		}
		fmt.Fprintf(out, "preview: %s\n", opts.preview)
	}

	if opts.upload {
		if err := upload(tex, opts.software); err != nil {
			return err
		}
		fmt.Fprintln(out, "upload:  ok")
	}
	return nil
}

func readDocument(path, format string) (*vat.Document, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	docFormat := vat.FormatFromPath(path)
	if format != "" {
		if docFormat, err = vat.ParseFormat(format); err != nil {
			return nil, err
		}
	}
	return vat.ReadDocument(f, docFormat)
}

func selectParams(opts options, doc *vat.Document, tex *vat.Texture) (vat.PlaybackParams, error) {
	var params vat.PlaybackParams
	switch {
	case opts.clip != "":
		found := false
		for _, c := range doc.Clips {
			if c.Name == opts.clip {
				params = vat.ParamsForClip(c, float32(opts.offset), float32(opts.speed))
				found = true
				break
			}
		}
		if !found {
			return params, fmt.Errorf("no clip named %q", opts.clip)
		}
	case opts.end >= 0:
		params = vat.PlaybackParams{
			StartFrame:  float32(opts.start),
			EndFrame:    float32(opts.end),
			OffsetFrame: float32(opts.offset),
			Speed:       float32(opts.speed),
		}
	default:
		params = vat.PlaybackParams{
			StartFrame:  0,
			EndFrame:    float32(tex.FrameCount - 1),
			OffsetFrame: float32(opts.offset),
			Speed:       float32(opts.speed),
		}
	}

	if err := params.Validate(); err != nil {
		return params, err
	}
	if params.StartFrame < 0 || int(params.EndFrame) >= tex.FrameCount {
		return params, &vat.OutOfRangeFrameError{Index: int(params.EndFrame), Total: tex.FrameCount}
	}
	return params, nil
}

func upload(tex *vat.Texture, software bool) error {
	r, err := renderer.NewRenderer(renderer.BackendTypeWGPU, renderer.WithForceSoftwareRenderer(software))
	if err != nil {
		return errors.Wrap(err, "creating headless device")
	}
	defer r.Release()

	provider := bgp.NewBindGroupProvider(common.Coalesce(tex.Label, "vatinspect"))
	defer provider.Release()
	return r.InitVATTexture(provider, bgp.DefaultVATBindings, tex)
}
