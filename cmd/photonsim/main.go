// Command photonsim runs the shower bookkeeping engine over a recorded
// JSONL event stream or over synthetic events, writing results to SQLite
// and optional plots.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/banshee-data/photonsim/internal/config"
	"github.com/banshee-data/photonsim/internal/monitoring"
	"github.com/banshee-data/photonsim/internal/report"
	"github.com/banshee-data/photonsim/internal/shower"
	"github.com/banshee-data/photonsim/internal/storage/sqlite"
	"github.com/banshee-data/photonsim/internal/stream"
	"github.com/banshee-data/photonsim/internal/synth"
	"github.com/banshee-data/photonsim/internal/version"
)

type options struct {
	configPath string
	dbPath     string
	plotsDir   string
	input      string

	events   int
	firstID  int
	seed     uint64
	primary  string
	energy   float64
	progress int

	diag    bool
	trace   bool
	version bool
}

func parseFlags(args []string) (options, error) {
	var o options
	fs := flag.NewFlagSet("photonsim", flag.ContinueOnError)
	fs.StringVar(&o.configPath, "config", "", "JSON or YAML config file (defaults built in)")
	fs.StringVar(&o.dbPath, "db", "photonsim.db", "SQLite output path (empty disables)")
	fs.StringVar(&o.plotsDir, "plots", "", "directory for PNG/HTML histogram plots (empty disables)")
	fs.StringVar(&o.input, "input", "", "JSONL event stream to replay (- for stdin); synthetic events when empty")
	fs.IntVar(&o.events, "events", 10, "number of synthetic events")
	fs.IntVar(&o.firstID, "first-event", 0, "ID of the first synthetic event")
	fs.Uint64Var(&o.seed, "seed", 1, "synthetic transport seed")
	fs.StringVar(&o.primary, "primary", shower.ParticlePiPlus, "synthetic primary particle")
	fs.Float64Var(&o.energy, "energy", 2000, "synthetic primary kinetic energy (MeV)")
	fs.IntVar(&o.progress, "progress", 100, "log progress every N events (0 disables)")
	fs.BoolVar(&o.diag, "diag", false, "enable per-event diagnostic logging")
	fs.BoolVar(&o.trace, "trace", false, "enable per-track trace logging")
	fs.BoolVar(&o.version, "version", false, "print version and exit")
	if err := fs.Parse(args); err != nil {
		return o, err
	}
	if o.input == "" && o.events < 0 {
		return o, fmt.Errorf("-events must be non-negative, got %d", o.events)
	}
	return o, nil
}

func loadConfig(path string) (*config.SimConfig, error) {
	cfg := config.EmptySimConfig()
	if path != "" {
		var err error
		if cfg, err = config.LoadSimConfig(path); err != nil {
			return nil, err
		}
	}
	if err := cfg.ApplyEnv(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func openSinks(ctx context.Context, o options, cfg *config.SimConfig) (shower.Sink, error) {
	var sinks shower.MultiSink
	if o.dbPath != "" {
		cfgJSON, err := json.Marshal(cfg)
		if err != nil {
			return nil, fmt.Errorf("encode config: %w", err)
		}
		db, err := sqlite.Open(ctx, o.dbPath, sqlite.Options{ConfigJSON: cfgJSON})
		if err != nil {
			return nil, err
		}
		log.Printf("writing run %s to %s", db.RunID(), o.dbPath)
		sinks = append(sinks, db)
	}
	if o.plotsDir != "" {
		plots, err := report.NewSink(o.plotsDir)
		if err != nil {
			return nil, errors.Join(err, sinks.Close())
		}
		sinks = append(sinks, plots)
	}
	return sinks, nil
}

// progressHandler ticks the progress logger at every event end.
type progressHandler struct {
	next     stream.Handler
	progress *monitoring.Progress
}

func (p *progressHandler) Handle(ctx context.Context, ev shower.Event) (shower.StepOutcome, error) {
	out, err := p.next.Handle(ctx, ev)
	if b, ok := ev.(shower.EventBoundary); ok && b.Kind == shower.BoundaryEnd && err == nil {
		p.progress.Tick()
	}
	return out, err
}

func run(ctx context.Context, o options, stdin io.Reader) (err error) {
	logWriters := shower.LogWriters{Ops: os.Stderr}
	if o.diag {
		logWriters.Diag = os.Stderr
	}
	if o.trace {
		logWriters.Trace = os.Stderr
	}
	shower.SetLogWriters(logWriters)
	log.Printf("%s starting", version.String("photonsim"))

	cfg, err := loadConfig(o.configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	sink, err := openSinks(ctx, o, cfg)
	if err != nil {
		return err
	}
	engine := shower.NewEngine(shower.EngineConfigFromSim(cfg), sink)
	defer func() {
		// Finalize is idempotent, so an early return still flushes.
		err = errors.Join(err, engine.Finalize(context.WithoutCancel(ctx)))
		s := engine.Stats()
		log.Printf("events=%d tracks=%d splits=%d photons=%d labels=%d deposits=%d sink_errors=%d",
			s.Events, s.Tracks, s.Splits, s.Photons, s.Labels, s.Deposits, s.SinkErrors)
	}()

	h := &progressHandler{next: engine, progress: monitoring.NewProgress("photonsim", o.progress)}

	if o.input != "" {
		r := stdin
		if o.input != "-" {
			f, err := os.Open(o.input)
			if err != nil {
				return fmt.Errorf("open input: %w", err)
			}
			defer f.Close()
			r = f
		}
		n, err := stream.Replay(ctx, stream.NewDecoder(r), h)
		if err != nil {
			return fmt.Errorf("replay: %w", err)
		}
		log.Printf("replayed %d events from %s", n, o.input)
		return nil
	}

	tr := synth.NewTransport(o.seed)
	tr.PrimaryParticle = o.primary
	tr.PrimaryEnergyMeV = o.energy
	tr.Volume = cfg.GetDetectorVolume()
	sum, err := tr.Run(ctx, h, o.firstID, o.events)
	if err != nil {
		return fmt.Errorf("synthetic run: %w", err)
	}
	log.Printf("generated %d events (%d tracks, %d photons, %d spawns)", sum.Events, sum.Tracks, sum.Photons, sum.Spawns)
	return nil
}

func main() {
	o, err := parseFlags(os.Args[1:])
	if err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return
		}
		log.Fatalf("photonsim: %v", err)
	}
	if o.version {
		fmt.Println(version.String("photonsim"))
		return
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, o, os.Stdin); err != nil {
		log.Fatalf("photonsim: %v", err)
	}
}
