// Command gen-showers generates sample JSONL shower recordings for replay.
//
// Events are passed through a bookkeeping engine while recording, so that
// deflection splits appear in the stream exactly as a real transport run
// would emit them.
package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"log"
	"os"

	"github.com/banshee-data/photonsim/internal/config"
	"github.com/banshee-data/photonsim/internal/monitoring"
	"github.com/banshee-data/photonsim/internal/shower"
	"github.com/banshee-data/photonsim/internal/stream"
	"github.com/banshee-data/photonsim/internal/synth"
	"github.com/banshee-data/photonsim/internal/version"
)

func main() {
	output := flag.String("o", "sample.jsonl", "output path (- for stdout)")
	events := flag.Int("n", 10, "number of events")
	seed := flag.Uint64("seed", 1, "transport seed")
	energy := flag.Float64("energy", 2000, "primary kinetic energy (MeV)")
	primary := flag.String("primary", shower.ParticlePiPlus, "primary particle")
	configPath := flag.String("config", "", "JSON or YAML config used for the deflection policy")
	showVersion := flag.Bool("version", false, "print version and exit")
	flag.Parse()

	if *showVersion {
		fmt.Println(version.String("gen-showers"))
		return
	}

	cfg := config.EmptySimConfig()
	if *configPath != "" {
		var err error
		if cfg, err = config.LoadSimConfig(*configPath); err != nil {
			log.Fatalf("gen-showers: %v", err)
		}
	}

	w := io.Writer(os.Stdout)
	if *output != "-" {
		f, err := os.Create(*output)
		if err != nil {
			log.Fatalf("gen-showers: %v", err)
		}
		defer f.Close()
		w = f
	}

	tr := synth.NewTransport(*seed)
	tr.PrimaryEnergyMeV = *energy
	tr.PrimaryParticle = *primary
	sum, err := generate(context.Background(), w, tr, shower.EngineConfigFromSim(cfg), *events)
	if err != nil {
		log.Fatalf("gen-showers: %v", err)
	}
	log.Printf("✓ Created: %s (%d events, %d tracks, %d photons, %d splits)",
		*output, sum.Events, sum.Tracks, sum.Photons, sum.Spawns)
}

// generate records n events from tr to w.
func generate(ctx context.Context, w io.Writer, tr *synth.Transport, cfg shower.EngineConfig, n int) (synth.Summary, error) {
	enc := stream.NewEncoder(w)
	engine := shower.NewEngine(cfg, nil)
	rec := &stream.Recorder{Enc: enc, Next: engine}

	progress := monitoring.NewProgress("gen-showers", 10)
	var sum synth.Summary
	for i := 0; i < n; i++ {
		if err := tr.RunEvent(ctx, rec, i, &sum); err != nil {
			return sum, fmt.Errorf("event %d: %w", i, err)
		}
		progress.Tick()
	}
	if err := engine.Finalize(ctx); err != nil {
		return sum, err
	}
	return sum, enc.Flush()
}
