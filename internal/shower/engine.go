package shower

import (
	"context"
	"errors"
	"fmt"

	"github.com/banshee-data/photonsim/internal/config"
	"github.com/banshee-data/photonsim/internal/shower/hist"
)

var (
	// ErrFinalized is returned for events handled after Finalize.
	ErrFinalized = errors.New("shower: engine finalized")
	// ErrNoEvent is returned for track, step or photon events outside an event.
	ErrNoEvent = errors.New("shower: no event in progress")
)

// EngineConfig holds configuration for the event-folding engine.
type EngineConfig struct {
	Classifier             ClassifierConfig
	Deflection             DeflectionConfig
	Binning                hist.Binning
	StoreIndividualPhotons bool   // keep per-photon detail records
	StoreIndividualEdeps   bool   // keep per-deposit detail records
	DetectorVolume         string // deposits outside this volume are ignored; empty accepts all
}

// DefaultEngineConfig returns the engine settings used when no configuration
// file is loaded.
func DefaultEngineConfig() EngineConfig {
	return EngineConfig{
		Classifier:             DefaultClassifierConfig(),
		Deflection:             DefaultDeflectionConfig(),
		Binning:                hist.DefaultBinning(),
		StoreIndividualPhotons: true,
		StoreIndividualEdeps:   true,
		DetectorVolume:         config.DefaultDetectorVolume,
	}
}

// EngineConfigFromSim builds an EngineConfig from a loaded SimConfig.
func EngineConfigFromSim(cfg *config.SimConfig) EngineConfig {
	return EngineConfig{
		Classifier: ClassifierConfig{
			CherenkovThresholdMeV:     cfg.GetCherenkovThresholdMeV(),
			DecayElectronMinEnergyMeV: cfg.GetDecayElectronMinEnergyMeV(),
			DecayProcesses:            cfg.GetDecayProcesses(),
		},
		Deflection: DeflectionConfig{
			AngleThresholdDeg:    cfg.GetDeflectionAngleDeg(),
			SoftScatterProcesses: cfg.GetSoftScatterProcesses(),
		},
		Binning: hist.Binning{
			AngleBins:      cfg.GetAngleBins(),
			DistanceBins:   cfg.GetDistanceBins(),
			DistanceMaxMM:  cfg.GetDistanceMaxMM(),
			TimeBins:       cfg.GetTimeBins(),
			TimeMaxNs:      cfg.GetTimeMaxNs(),
			WavelengthBins: cfg.GetWavelengthBins(),
			WavelengthMin:  cfg.GetWavelengthMinNm(),
			WavelengthMax:  cfg.GetWavelengthMaxNm(),
			EdepBins:       cfg.GetEdepBins(),
			EdepMaxKeV:     cfg.GetEdepMaxKeV(),
		},
		StoreIndividualPhotons: cfg.GetStoreIndividualPhotons(),
		StoreIndividualEdeps:   cfg.GetStoreIndividualEdeps(),
		DetectorVolume:         cfg.GetDetectorVolume(),
	}
}

// Stats counts what the engine has processed since it was created.
type Stats struct {
	Events          int
	Tracks          int
	DuplicateTracks int
	Splits          int
	Photons         int
	Labels          int
	Deposits        int
	SinkErrors      int
}

// Engine folds the transport event stream into classified tracks,
// genealogies and labels, and flushes each finished event to a Sink.
// It is single-threaded: the transport engine is the sole caller.
type Engine struct {
	cfg        EngineConfig
	classifier *Classifier
	deflection *DeflectionHandler
	sink       Sink
	hists      *hist.Set
	ec         *EventContext
	stats      Stats
	finalized  bool
}

// NewEngine creates an engine that writes to sink. A nil sink discards output.
func NewEngine(cfg EngineConfig, sink Sink) *Engine {
	if sink == nil {
		sink = NopSink{}
	}
	return &Engine{
		cfg:        cfg,
		classifier: NewClassifier(cfg.Classifier),
		deflection: NewDeflectionHandler(cfg.Deflection),
		sink:       sink,
		hists:      hist.NewSet(cfg.Binning),
		ec:         NewEventContext(),
	}
}

// Handle folds one event. Only StepCompleted can produce a non-zero outcome.
func (e *Engine) Handle(ctx context.Context, ev Event) (StepOutcome, error) {
	if e.finalized {
		return StepOutcome{}, ErrFinalized
	}

	if b, ok := ev.(EventBoundary); ok {
		switch b.Kind {
		case BoundaryBegin:
			e.BeginEvent(ctx, b.EventID, b.PrimaryEnergy)
		case BoundaryEnd:
			if !e.ec.Open() {
				return StepOutcome{}, fmt.Errorf("end of event %d: %w", b.EventID, ErrNoEvent)
			}
			e.EndEvent(ctx)
		default:
			return StepOutcome{}, fmt.Errorf("unknown boundary kind %q", b.Kind)
		}
		return StepOutcome{}, nil
	}

	if !e.ec.Open() {
		return StepOutcome{}, fmt.Errorf("%s: %w", Kind(ev), ErrNoEvent)
	}

	switch ev := ev.(type) {
	case TrackCreated:
		e.TrackCreated(ev)
	case StepCompleted:
		return e.StepCompleted(ev), nil
	case PhotonEmitted:
		e.PhotonEmitted(ev)
	default:
		return StepOutcome{}, fmt.Errorf("unsupported event type %T", ev)
	}
	return StepOutcome{}, nil
}

// BeginEvent opens a new event and resets all per-event state. An event
// that was never closed is flushed first.
func (e *Engine) BeginEvent(ctx context.Context, eventID int, primaryEnergy float64) {
	if e.ec.Open() {
		Opsf("event %d was not closed before event %d began; flushing", e.ec.EventID, eventID)
		e.EndEvent(ctx)
	}
	e.ec.Begin(eventID, primaryEnergy)
}

// TrackCreated registers and classifies a new track.
func (e *Engine) TrackCreated(ev TrackCreated) {
	reg := e.ec.Registry
	if !reg.Register(ev.TrackID, ev.ParticleName, ev.ParentTrackID, ev.Position, ev.Momentum, ev.KineticEnergy, ev.Time, ev.PDGCode) {
		e.stats.DuplicateTracks++
		Opsf("event %d: track %d registered twice; keeping the first record", e.ec.EventID, ev.TrackID)
		return
	}
	reg.setCreatorProcess(ev.TrackID, ev.CreatorProcess)
	e.stats.Tracks++

	category := e.ec.ClassifyTrack(e.classifier, ev.TrackID)
	if category == Primary {
		e.ec.setPrimaryFrame(ev.Position, ev.Momentum)
	}
	if category.Classified() {
		Tracef("event %d: track %d %s from %d (%s) -> %s", e.ec.EventID, ev.TrackID,
			ev.ParticleName, ev.ParentTrackID, ev.CreatorProcess, category)
	}
}

// StepCompleted runs the deflection policy and records any energy deposit.
// The returned outcome must be applied by the transport engine.
func (e *Engine) StepCompleted(ev StepCompleted) StepOutcome {
	out := e.deflection.Process(e.ec.Registry, ev)
	if out.Spawn != nil {
		e.ec.splits++
		e.stats.Splits++
	}
	if ev.EnergyDeposit > 0 && (e.cfg.DetectorVolume == "" || ev.Volume == e.cfg.DetectorVolume) {
		e.recordDeposit(ev)
	}
	return out
}

func (e *Engine) recordDeposit(ev StepCompleted) {
	ec := e.ec
	distance := ev.Position.Sub(ec.vertex).Norm()
	e.hists.FillDeposit(distance, ev.EnergyDeposit*1000)

	ec.depositCount++
	ec.totalDeposit += ev.EnergyDeposit
	e.stats.Deposits++

	if !e.cfg.StoreIndividualEdeps {
		return
	}
	rec, _ := ec.Registry.Lookup(ev.TrackID)
	ec.deposits = append(ec.deposits, EnergyDepositRecord{
		Position:      ev.Position,
		Energy:        ev.EnergyDeposit,
		Time:          ev.Time,
		ParticleName:  rec.ParticleName,
		TrackID:       ev.TrackID,
		ParentTrackID: rec.ParentTrackID,
	})
}

// PhotonEmitted attributes a photon to the genealogy of its parent track
// and returns the photon's index and label index within the event.
func (e *Engine) PhotonEmitted(ev PhotonEmitted) (photonIndex, labelIndex int) {
	ec := e.ec
	photonIndex = ec.photonCount
	ec.photonCount++
	e.stats.Photons++

	genealogy := BuildGenealogy(ec.Registry, ev.ParentTrackID)
	labelIndex = ec.Labels.AddPhoton(genealogy, photonIndex)

	distance := ev.Position.Sub(ec.vertex).Norm()
	angle := ev.Direction.Angle(ec.axis).Radians()
	e.hists.FillPhoton(angle, distance, ev.Time, ev.Wavelength)

	if e.cfg.StoreIndividualPhotons {
		ec.photons = append(ec.photons, PhotonRecord{
			Index:          photonIndex,
			TrackID:        ev.TrackID,
			ParentTrackID:  ev.ParentTrackID,
			ParentParticle: e.parentParticle(ev.ParentTrackID),
			Position:       ev.Position,
			Direction:      ev.Direction,
			Time:           ev.Time,
			Wavelength:     ev.Wavelength,
			Process:        ev.CreatorProcess,
			LabelIndex:     labelIndex,
		})
	}
	return photonIndex, labelIndex
}

func (e *Engine) parentParticle(parentID int) string {
	if parentID == RootTrackID {
		return "Primary"
	}
	if rec, ok := e.ec.Registry.Lookup(parentID); ok {
		return rec.ParticleName
	}
	return fmt.Sprintf("Secondary_ID_%d", parentID)
}

// EndEvent flushes the current event to the sink and clears per-event
// state. Sink failures are logged and counted, never returned: the event's
// bookkeeping was already complete and the run continues.
func (e *Engine) EndEvent(ctx context.Context) {
	ec := e.ec
	if !ec.Open() {
		return
	}

	rec := &EventRecord{
		EventID:        ec.EventID,
		PrimaryEnergy:  ec.PrimaryEnergy,
		PhotonCount:    ec.photonCount,
		DepositCount:   ec.depositCount,
		TotalDeposit:   ec.totalDeposit,
		CategoryCounts: make(map[Category]int, len(Categories)),
		Splits:         ec.splits,
		Photons:        ec.photons,
		Deposits:       ec.deposits,
		Tracks:         e.trackSummaries(),
		Labels:         ec.Labels.Flush(),
	}
	for _, c := range Categories {
		rec.CategoryCounts[c] = ec.Count(c)
	}

	if err := e.sink.WriteEvent(ctx, rec); err != nil {
		e.stats.SinkErrors++
		Opsf("event %d: sink write failed: %v", rec.EventID, err)
	}

	e.stats.Events++
	e.stats.Labels += rec.Labels.Len()
	Diagf("event %d: tracks=%d classified=%d photons=%d labels=%d deposits=%d splits=%d",
		rec.EventID, ec.Registry.Len(), len(rec.Tracks), rec.PhotonCount, rec.Labels.Len(), rec.DepositCount, rec.Splits)

	ec.reset()
}

// trackSummaries returns every classified track plus its physical parent,
// in registration order.
func (e *Engine) trackSummaries() []TrackSummary {
	records := e.ec.Registry.Records()
	include := make(map[int]bool)
	for _, rec := range records {
		if rec.Category.Classified() {
			include[rec.TrackID] = true
			include[rec.ParentTrackID] = true
		}
	}
	var out []TrackSummary
	for _, rec := range records {
		if include[rec.TrackID] {
			out = append(out, summarize(rec))
		}
	}
	return out
}

// Finalize closes any open event, writes the run histograms and closes the
// sink. Only the first call does any work; later calls return nil.
func (e *Engine) Finalize(ctx context.Context) error {
	if e.finalized {
		return nil
	}
	e.finalized = true

	if e.ec.Open() {
		Opsf("event %d still open at finalize; flushing", e.ec.EventID)
		e.EndEvent(ctx)
	}

	var errs []error
	if err := e.sink.WriteHistograms(ctx, e.hists); err != nil {
		errs = append(errs, fmt.Errorf("write histograms: %w", err))
	}
	if err := e.sink.Close(); err != nil {
		errs = append(errs, fmt.Errorf("close sink: %w", err))
	}

	s := e.stats
	Opsf("finalized: events=%d tracks=%d splits=%d photons=%d labels=%d deposits=%d sink_errors=%d",
		s.Events, s.Tracks, s.Splits, s.Photons, s.Labels, s.Deposits, s.SinkErrors)
	return errors.Join(errs...)
}

// Finalized reports whether Finalize has been called.
func (e *Engine) Finalized() bool {
	return e.finalized
}

// Stats returns a copy of the engine counters.
func (e *Engine) Stats() Stats {
	return e.stats
}

// Histograms returns the run-level histograms.
func (e *Engine) Histograms() *hist.Set {
	return e.hists
}

// Context returns the per-event context. Intended for inspection between
// events of a test or a debugger; callers must not retain it across events.
func (e *Engine) Context() *EventContext {
	return e.ec
}
