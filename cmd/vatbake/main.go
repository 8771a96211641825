// Command vatbake bakes procedural chain rigs into animation textures on a worker pool and saves
// the resulting documents to a directory that vatserve can serve.
package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"time"

	"github.com/Carmen-Shannon/oxy-vat/common"
	"github.com/Carmen-Shannon/oxy-vat/engine/bakestore"
	"github.com/Carmen-Shannon/oxy-vat/engine/model"
	"github.com/Carmen-Shannon/oxy-vat/engine/profiler"
	"github.com/Carmen-Shannon/oxy-vat/engine/vat"
	"github.com/pkg/errors"
)

type config struct {
	rigs       int
	bones      int
	fps        float64
	workers    int
	dir        string
	format     string
	tickDriven bool
	tickRate   time.Duration
}

func main() {
	var cfg config
	var verbose bool
	flag.IntVar(&cfg.rigs, "rigs", 4, "number of rigs to bake")
	flag.IntVar(&cfg.bones, "bones", 8, "bones per rig")
	flag.Float64Var(&cfg.fps, "fps", float64(model.DefaultFPS), "sampling rate in frames per second")
	flag.IntVar(&cfg.workers, "workers", 4, "concurrent bakes")
	flag.StringVar(&cfg.dir, "dir", "bakes", "output directory")
	flag.StringVar(&cfg.format, "format", "json", "document format (json, yaml)")
	flag.BoolVar(&cfg.tickDriven, "tick", false, "evaluate poses only when a simulated render loop ticks")
	flag.DurationVar(&cfg.tickRate, "tick-rate", time.Millisecond, "simulated render loop interval with -tick")
	flag.BoolVar(&verbose, "v", false, "debug logging")
	flag.Parse()

	level := slog.LevelInfo
	if verbose {
		level = slog.LevelDebug
	}
	common.SetLogger(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	if err := bake(ctx, cfg, os.Stdout); err != nil {
		fmt.Fprintf(os.Stderr, "vatbake: %v\n", err)
		os.Exit(1)
	}
}

// models builds cfg.rigs procedural chains.
func models(cfg config) ([]model.Model, error) {
	out := make([]model.Model, cfg.rigs)
	for i := range out {
		m, err := rig(i, cfg.bones)
		if err != nil {
			return nil, err
		}
		out[i] = m
	}
	return out, nil
}

// rig builds one chain model with a fast swing and a slow sway clip.
func rig(i, bones int) (model.Model, error) {
	skel, err := model.NewChainSkeleton(bones, 1)
	if err != nil {
		return nil, err
	}
	return model.NewModel(
		model.WithName(fmt.Sprintf("rig_%02d", i)),
		model.WithSkeleton(skel),
		model.WithAnimations(
			model.SwingClip("swing", skel, 1, 0.6, 16),
			model.SwingClip("sway", skel, 2.5, 0.2, 16),
		),
	), nil
}

func bake(ctx context.Context, cfg config, out io.Writer) error {
	docFormat, err := vat.ParseFormat(cfg.format)
	if err != nil {
		return err
	}
	store, err := bakestore.NewStore(cfg.dir, bakestore.WithFormat(docFormat))
	if err != nil {
		return err
	}

	fps := float32(cfg.fps)
	host := model.NewPoseHost(model.WithFPS(fps), model.WithTickDriven(cfg.tickDriven))
	prof := profiler.NewProfiler()

	rigs, err := models(cfg)
	if err != nil {
		return err
	}
	bakers := make([]vat.Baker, len(rigs))
	for i, m := range rigs {
		if err := host.Register(m); err != nil {
			return err
		}
		bakers[i], err = vat.NewBaker(m,
			vat.WithName(m.Name()),
			vat.WithHost(host),
			vat.WithClips(m.ClipRanges(fps)...),
			vat.WithObserver(prof),
		)
		if err != nil {
			return err
		}
	}

	if cfg.tickDriven {
		tickCtx, cancel := context.WithCancel(ctx)
		defer cancel()
		go renderLoop(tickCtx, host, cfg.tickRate)
	}

	start := time.Now()
	errs := vat.BakeAll(ctx, bakers, cfg.workers)

	var failed int
	for i, b := range bakers {
		if errs[i] != nil {
			failed++
			fmt.Fprintf(out, "FAIL %s: %v\n", b.Name(), errs[i])
			continue
		}
		doc, err := b.Document()
		if err != nil {
			return err
		}
		if err := store.Save(b.Name(), doc); err != nil {
			return err
		}
		stats, _ := prof.Stats(b.ID())
		fmt.Fprintf(out, "OK   %s: %d frames, %dx%d texture, %.0f frames/s\n",
			b.Name(), doc.FrameCount, (doc.BoneCount+1)*vat.TexelsPerMatrix, doc.FrameCount, stats.FramesPerSecond(time.Now()))
		b.ReleaseBuffer()
	}
	fmt.Fprintf(out, "\n%d/%d rigs baked into %s in %v\n", len(bakers)-failed, len(bakers), store.Dir(), time.Since(start).Round(time.Millisecond))

	if failed > 0 {
		return errors.Errorf("%d bakes failed", failed)
	}
	return nil
}

// renderLoop stands in for a frame loop that confirms pose evaluation once per frame.
func renderLoop(ctx context.Context, host model.PoseHost, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			host.Tick()
		}
	}
}
