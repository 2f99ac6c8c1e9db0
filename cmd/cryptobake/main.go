// cryptobake renders a procedural scene into a Cryptomatte OpenEXR file.
//
// Usage:
//
//	cryptobake [options] -o outfile.exr
//
// Options:
//
//	-o <file>             output file (required); with several views the view
//	                      name is inserted before the extension
//	-width, -height <n>   image size
//	-samples <n>          render samples per pixel
//	-levels <n>           slots per pixel and layer
//	-quality <n>          derive levels from a quality setting (rounded up to even)
//	-fast                 integrate only the first <levels> samples of each layer
//	-layers <list>        active layers, e.g. object,material,asset
//	-prefix <s>           layer name prefix, e.g. "ViewLayer."
//	-c <type>             compression (none, zips, zip)
//	-fog <f>              volume absorption in [0,1], lowers coverage
//	-views <list>         comma separated view names; more than one renders a stereo rig
//	-seed <n>             sampling seed
//	-checkpoint <file>    resume from and save progress to this snapshot
//	-checkpoint-every <n> save a snapshot every n samples
//	-workers <n>          goroutines per view (0 = all cores)
//	-v                    verbose output
//
// Every option can also be set through CRYPTOMATTE_* environment variables
// (CRYPTOMATTE_LEVELS, CRYPTOMATTE_SAMPLES, ...); flags take precedence.
//
// Interrupting the render (Ctrl-C) saves a snapshot if -checkpoint is set and
// writes the partially accumulated matte.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/mrjoshuak/go-cryptomatte/exr"
	"github.com/mrjoshuak/go-cryptomatte/exrmatte"
	"github.com/mrjoshuak/go-cryptomatte/internal/config"
	"github.com/mrjoshuak/go-cryptomatte/internal/scene"
	"github.com/mrjoshuak/go-cryptomatte/matte"
	"github.com/mrjoshuak/go-cryptomatte/snapshot"
)

const version = "0.1.0"

type bakeConfig struct {
	Matte matte.Config

	Output          string   `env:"OUTPUT"`
	Width           int      `env:"WIDTH" envDefault:"320"`
	Height          int      `env:"HEIGHT" envDefault:"180"`
	Samples         int      `env:"SAMPLES" envDefault:"64"`
	Compression     string   `env:"COMPRESSION" envDefault:"zip"`
	Fog             float64  `env:"FOG" envDefault:"0"`
	Views           []string `env:"VIEWS" envDefault:"main"`
	Seed            uint64   `env:"SEED" envDefault:"1"`
	Checkpoint      string   `env:"CHECKPOINT"`
	CheckpointEvery int      `env:"CHECKPOINT_EVERY" envDefault:"16"`
	Verbose         bool     `env:"VERBOSE"`
}

func main() {
	var cfg bakeConfig
	if err := config.ParseEnv(&cfg); err != nil {
		config.Exitf("cryptobake: %v", err)
	}

	fs := flag.NewFlagSet("cryptobake", flag.ExitOnError)
	fs.StringVar(&cfg.Output, "o", cfg.Output, "output file")
	fs.IntVar(&cfg.Width, "width", cfg.Width, "image width")
	fs.IntVar(&cfg.Height, "height", cfg.Height, "image height")
	fs.IntVar(&cfg.Samples, "samples", cfg.Samples, "samples per pixel")
	fs.IntVar(&cfg.Matte.Levels, "levels", cfg.Matte.Levels, "slots per pixel and layer")
	quality := fs.Int("quality", 0, "derive levels from a quality setting")
	fast := fs.Bool("fast", !cfg.Matte.Accurate, "integrate only the first <levels> samples")
	fs.TextVar(&cfg.Matte.Layers, "layers", cfg.Matte.Layers, "active layers")
	fs.StringVar(&cfg.Matte.Prefix, "prefix", cfg.Matte.Prefix, "layer name prefix")
	fs.StringVar(&cfg.Compression, "c", cfg.Compression, "compression (none, zips, zip)")
	fs.Float64Var(&cfg.Fog, "fog", cfg.Fog, "volume absorption in [0,1]")
	views := fs.String("views", strings.Join(cfg.Views, ","), "comma separated view names")
	fs.Uint64Var(&cfg.Seed, "seed", cfg.Seed, "sampling seed")
	fs.StringVar(&cfg.Checkpoint, "checkpoint", cfg.Checkpoint, "snapshot file")
	fs.IntVar(&cfg.CheckpointEvery, "checkpoint-every", cfg.CheckpointEvery, "samples between snapshots")
	fs.IntVar(&cfg.Matte.Workers, "workers", cfg.Matte.Workers, "goroutines per view")
	fs.BoolVar(&cfg.Verbose, "v", cfg.Verbose, "verbose output")
	showVersion := fs.Bool("version", false, "print version information")
	fs.Parse(os.Args[1:])

	if *showVersion {
		fmt.Printf("cryptobake (go-cryptomatte) %s\n", version)
		os.Exit(0)
	}
	if cfg.Output == "" {
		fmt.Fprintln(os.Stderr, "cryptobake: missing output file (-o)")
		fs.Usage()
		os.Exit(2)
	}
	if *quality > 0 {
		cfg.Matte.Levels = matte.LevelsFromQuality(*quality)
	}
	cfg.Matte.Accurate = !*fast
	cfg.Views = splitList(*views)

	level := slog.LevelInfo
	if cfg.Verbose {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
	matte.SetLogger(logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	if err := run(ctx, cfg, logger); err != nil {
		config.Exitf("cryptobake: %v", err)
	}
}

func run(ctx context.Context, cfg bakeConfig, logger *slog.Logger) error {
	compression, ok := exr.ParseCompression(cfg.Compression)
	if !ok {
		return fmt.Errorf("unsupported compression %q", cfg.Compression)
	}
	if cfg.Width < 1 || cfg.Height < 1 || cfg.Samples < 1 {
		return fmt.Errorf("invalid size %dx%d with %d samples", cfg.Width, cfg.Height, cfg.Samples)
	}
	if err := cfg.Matte.Validate(); err != nil {
		return err
	}
	if len(cfg.Views) == 0 {
		return errors.New("no views")
	}

	base := scene.Demo(cfg.Width, cfg.Height)
	base.Fog = cfg.Fog
	eye := 0.02 * float64(cfg.Width)

	// Each view owns its session; views render concurrently.
	g, ctx := errgroup.WithContext(ctx)
	for i, view := range cfg.Views {
		offset := (float64(i) - float64(len(cfg.Views)-1)/2) * eye
		job := viewJob{
			name:       view,
			scene:      base.Shift(offset),
			output:     viewPath(cfg.Output, view, len(cfg.Views)),
			checkpoint: viewPath(cfg.Checkpoint, view, len(cfg.Views)),
			compressor: compression,
			logger:     logger.With("view", view),
		}
		g.Go(func() error {
			return job.bake(ctx, cfg)
		})
	}
	return g.Wait()
}

type viewJob struct {
	name       string
	scene      *scene.Scene
	output     string
	checkpoint string
	compressor exr.Compression
	logger     *slog.Logger
}

func (j viewJob) bake(ctx context.Context, cfg bakeConfig) error {
	start := time.Now()
	sess, first, err := j.session(cfg)
	if err != nil {
		return err
	}
	defer sess.Free()

	sampler := scene.NewSampler(j.scene, cfg.Seed)
	layers := sess.Layers()
	frame := make([]float32, sess.FrameSize())

	var volume *matte.VolumeTransmittance
	var rgb []float32
	if cfg.Fog > 0 {
		volume = matte.NewVolumeTransmittance(cfg.Width, cfg.Height)
		rgb = make([]float32, 3*cfg.Width*cfg.Height)
		// Transmittance is not part of the snapshot; it is cheap to replay.
		for sample := range first {
			if err := absorb(sampler, volume, sample, rgb); err != nil {
				return err
			}
		}
	}

	interrupted := false
	for sample := first; sample < cfg.Samples; sample++ {
		if ctx.Err() != nil {
			interrupted = true
			j.logger.Warn("render interrupted", "sample", sample)
			break
		}
		if err := sampler.HashFrame(sample, layers, frame); err != nil {
			return err
		}
		if err := sess.Integrate(frame); err != nil {
			return err
		}
		if volume != nil {
			if err := absorb(sampler, volume, sample, rgb); err != nil {
				return err
			}
		}
		if j.checkpoint != "" && cfg.CheckpointEvery > 0 && (sample+1)%cfg.CheckpointEvery == 0 {
			if err := j.save(sess); err != nil {
				return err
			}
		}
	}
	if interrupted && j.checkpoint != "" {
		if err := j.save(sess); err != nil {
			return err
		}
	}

	var coverage matte.CoverageFunc
	if volume != nil {
		coverage = volume.Coverage().Func()
	}
	if err := sess.Finalize(coverage); err != nil {
		return err
	}

	layersOut, err := exrmatte.FromSession(sess, j.scene.Manifests())
	if err != nil {
		return err
	}
	samples := sess.Stats()[0].Samples + sess.Stats()[0].Skipped
	err = exrmatte.WriteFile(j.output, layersOut,
		exrmatte.WithCompression(j.compressor),
		exrmatte.WithAttribute("cryptobake/samples", strconv.Itoa(samples)),
		exrmatte.WithAttribute("cryptobake/view", j.name),
	)
	if err != nil {
		return err
	}

	for _, st := range sess.Stats() {
		j.logger.Debug("layer stats", "layer", st.Layer.String(), "levels", st.Levels,
			"samples", st.Samples, "skipped", st.Skipped, "overflow", st.Overflow, "degenerate", st.Degenerate)
	}
	j.logger.Info("wrote matte", "file", j.output, "samples", samples, "elapsed", time.Since(start).Round(time.Millisecond))
	return nil
}

// session returns a fresh session, or one restored from the view's snapshot
// together with the index of the next sample to render.
func (j viewJob) session(cfg bakeConfig) (*matte.Session, int, error) {
	if j.checkpoint != "" {
		cp, err := snapshot.Open(j.checkpoint)
		switch {
		case err == nil:
			if cp.Width != cfg.Width || cp.Height != cfg.Height {
				return nil, 0, fmt.Errorf("snapshot %s is %dx%d, render is %dx%d",
					j.checkpoint, cp.Width, cp.Height, cfg.Width, cfg.Height)
			}
			sess, err := matte.Restore(cp, matte.WithWorkers(cfg.Matte.Workers))
			if err != nil {
				return nil, 0, fmt.Errorf("restore %s: %w", j.checkpoint, err)
			}
			st := sess.Stats()[0]
			j.logger.Info("resumed from snapshot", "file", j.checkpoint, "sample", st.Samples+st.Skipped)
			return sess, st.Samples + st.Skipped, nil
		case !errors.Is(err, os.ErrNotExist):
			return nil, 0, err
		}
	}

	sess, err := matte.NewSession(cfg.Matte)
	if err != nil {
		return nil, 0, err
	}
	if err := sess.Allocate(cfg.Width, cfg.Height); err != nil {
		return nil, 0, err
	}
	return sess, 0, nil
}

func absorb(sampler *scene.Sampler, volume *matte.VolumeTransmittance, sample int, rgb []float32) error {
	if err := sampler.Transmittance(sample, rgb); err != nil {
		return err
	}
	return volume.Add(rgb)
}

func (j viewJob) save(sess *matte.Session) error {
	cp, err := sess.Checkpoint()
	if err != nil {
		return err
	}
	if err := snapshot.SaveFile(j.checkpoint, cp); err != nil {
		return fmt.Errorf("save snapshot: %w", err)
	}
	j.logger.Debug("saved snapshot", "file", j.checkpoint)
	return nil
}

// viewPath inserts the view name before the extension when several views
// are rendered: out.exr -> out_left.exr.
func viewPath(path, view string, views int) string {
	if path == "" || views == 1 {
		return path
	}
	ext := filepath.Ext(path)
	return strings.TrimSuffix(path, ext) + "_" + view + ext
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
