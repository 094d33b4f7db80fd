package shower

import (
	"context"
	"errors"

	"github.com/banshee-data/photonsim/internal/shower/hist"
	"github.com/golang/geo/r3"
)

// Sink persists the engine's per-event output. Implementations live in the
// storage and report packages.
type Sink interface {
	// WriteEvent is called once per event at EventBoundary end.
	WriteEvent(ctx context.Context, rec *EventRecord) error
	// WriteHistograms is called once, from Engine.Finalize.
	WriteHistograms(ctx context.Context, set *hist.Set) error
	// Close releases the sink. Called once, after WriteHistograms.
	Close() error
}

// PhotonRecord is the detail record of one optical photon.
type PhotonRecord struct {
	Index          int
	TrackID        int
	ParentTrackID  int
	ParentParticle string
	Position       r3.Vector // mm
	Direction      r3.Vector
	Time           float64 // ns
	Wavelength     float64 // nm
	Process        string
	LabelIndex     int
}

// EnergyDepositRecord is the detail record of one step deposit in the
// detector volume.
type EnergyDepositRecord struct {
	Position      r3.Vector // mm
	Energy        float64   // MeV
	Time          float64   // ns
	ParticleName  string
	TrackID       int
	ParentTrackID int
}

// TrackSummary is the persisted view of a track record.
type TrackSummary struct {
	TrackID               int
	ParentTrackID         int
	CategoryParentTrackID int
	Category              Category
	SubID                 int
	ParticleName          string
	PDGCode               int
	CreatorProcess        string
	Position              r3.Vector
	Momentum              r3.Vector
	Energy                float64
	Time                  float64
	NeedsRelabeling       bool
	RelabelingTime        float64
}

func summarize(rec TrackRecord) TrackSummary {
	return TrackSummary{
		TrackID:               rec.TrackID,
		ParentTrackID:         rec.ParentTrackID,
		CategoryParentTrackID: rec.CategoryParentTrackID,
		Category:              rec.Category,
		SubID:                 rec.SubID,
		ParticleName:          rec.ParticleName,
		PDGCode:               rec.PDGCode,
		CreatorProcess:        rec.CreatorProcess,
		Position:              rec.Position,
		Momentum:              rec.Momentum,
		Energy:                rec.Energy,
		Time:                  rec.Time,
		NeedsRelabeling:       rec.NeedsRelabeling,
		RelabelingTime:        rec.RelabelingTime,
	}
}

// EventRecord is everything the engine hands to sinks for one event.
// Photons and Deposits are empty when individual storage is disabled.
type EventRecord struct {
	EventID        int
	PrimaryEnergy  float64 // MeV
	PhotonCount    int
	DepositCount   int
	TotalDeposit   float64 // MeV
	CategoryCounts map[Category]int
	Splits         int

	Photons  []PhotonRecord
	Deposits []EnergyDepositRecord
	Tracks   []TrackSummary
	Labels   LabelTable
}

// MultiSink fans every call out to each sink in order. Errors are joined;
// a failing sink does not stop the others.
type MultiSink []Sink

func (m MultiSink) WriteEvent(ctx context.Context, rec *EventRecord) error {
	var errs []error
	for _, s := range m {
		if err := s.WriteEvent(ctx, rec); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (m MultiSink) WriteHistograms(ctx context.Context, set *hist.Set) error {
	var errs []error
	for _, s := range m {
		if err := s.WriteHistograms(ctx, set); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (m MultiSink) Close() error {
	var errs []error
	for _, s := range m {
		if err := s.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// NopSink discards everything.
type NopSink struct{}

func (NopSink) WriteEvent(context.Context, *EventRecord) error { return nil }
func (NopSink) WriteHistograms(context.Context, *hist.Set) error { return nil }
func (NopSink) Close() error                                      { return nil }
