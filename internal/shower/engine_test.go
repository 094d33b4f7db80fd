package shower

import (
	"context"
	"errors"
	"testing"

	"github.com/golang/geo/r3"
	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/banshee-data/photonsim/internal/config"
	"github.com/banshee-data/photonsim/internal/shower/hist"
)

// memSink keeps everything the engine hands it.
type memSink struct {
	events    []*EventRecord
	hists     *hist.Set
	closed    int
	failWrite error
	failHists error
	failClose error
}

func (s *memSink) WriteEvent(_ context.Context, rec *EventRecord) error {
	if s.failWrite != nil {
		return s.failWrite
	}
	s.events = append(s.events, rec)
	return nil
}

func (s *memSink) WriteHistograms(_ context.Context, set *hist.Set) error {
	s.hists = set
	return s.failHists
}

func (s *memSink) Close() error {
	s.closed++
	return s.failClose
}

func feed(t *testing.T, e *Engine, events ...Event) {
	t.Helper()
	for _, ev := range events {
		_, err := e.Handle(context.Background(), ev)
		require.NoError(t, err, "%s", Kind(ev))
	}
}

func begin(id int) EventBoundary { return EventBoundary{Kind: BoundaryBegin, EventID: id, PrimaryEnergy: 2000} }
func end(id int) EventBoundary   { return EventBoundary{Kind: BoundaryEnd, EventID: id} }

func created(id, parent int, name, process string, momentum r3.Vector) TrackCreated {
	return TrackCreated{
		TrackID:        id,
		ParentTrackID:  parent,
		ParticleName:   name,
		CreatorProcess: process,
		Momentum:       momentum,
		KineticEnergy:  momentum.Norm(),
	}
}

func photon(id, parent int, pos r3.Vector) PhotonEmitted {
	return PhotonEmitted{
		TrackID:        id,
		ParentTrackID:  parent,
		Position:       pos,
		Direction:      r3.Vector{Z: 1},
		Time:           1.5,
		Wavelength:     420,
		CreatorProcess: "Cerenkov",
	}
}

func TestEngineFoldsOneEvent(t *testing.T) {
	sink := &memSink{}
	e := NewEngine(DefaultEngineConfig(), sink)

	feed(t, e,
		begin(4),
		created(1, RootTrackID, ParticlePiPlus, "", r3.Vector{Z: 2000}),
		created(2, 1, ParticlePiZero, "pi+Inelastic", r3.Vector{X: 300}),
		created(3, 2, ParticleGamma, "Decay", r3.Vector{X: 150}),
		created(4, 3, ParticleElectron, "conv", r3.Vector{X: 60}),
		photon(10, 4, r3.Vector{X: 30}),
		photon(11, 1, r3.Vector{Z: 100}),
		photon(12, 4, r3.Vector{X: 40}),
		photon(13, RootTrackID, r3.Vector{}),
		photon(14, 42, r3.Vector{}),
		StepCompleted{TrackID: 1, StepNumber: 1, ProcessName: "hIoni", MomentumDirection: r3.Vector{Z: 1},
			Position: r3.Vector{Z: 50}, EnergyDeposit: 2, Volume: "detector"},
		StepCompleted{TrackID: 1, StepNumber: 2, ProcessName: "hIoni", MomentumDirection: r3.Vector{Z: 1},
			Position: r3.Vector{Z: 60}, EnergyDeposit: 1, Volume: "world"},
		end(4),
	)

	require.Len(t, sink.events, 1)
	rec := sink.events[0]
	assert.Equal(t, 4, rec.EventID)
	assert.Equal(t, 2000.0, rec.PrimaryEnergy)
	assert.Equal(t, 5, rec.PhotonCount)
	assert.Equal(t, 1, rec.DepositCount)
	assert.Equal(t, 2.0, rec.TotalDeposit)
	assert.Equal(t, map[Category]int{Primary: 1, DecayElectron: 0, SecondaryPion: 0, GammaShower: 1}, rec.CategoryCounts)

	if diff := cmp.Diff([]Label{
		{Genealogy: []int{1, 3}, PhotonIndices: []int{0, 2}},
		{Genealogy: []int{1}, PhotonIndices: []int{1}},
		{Genealogy: []int{}, PhotonIndices: []int{3, 4}},
	}, rec.Labels.Labels()); diff != "" {
		t.Errorf("labels mismatch (-want +got):\n%s", diff)
	}

	var trackIDs []int
	for _, ts := range rec.Tracks {
		trackIDs = append(trackIDs, ts.TrackID)
	}
	assert.Equal(t, []int{1, 2, 3}, trackIDs, "classified tracks and their parents")

	var parents []string
	for _, p := range rec.Photons {
		parents = append(parents, p.ParentParticle)
	}
	assert.Equal(t, []string{ParticleElectron, ParticlePiPlus, ParticleElectron, "Primary", "Secondary_ID_42"}, parents)
	assert.Equal(t, []int{0, 1, 0, 2, 2}, []int{
		rec.Photons[0].LabelIndex, rec.Photons[1].LabelIndex, rec.Photons[2].LabelIndex,
		rec.Photons[3].LabelIndex, rec.Photons[4].LabelIndex,
	})

	require.Len(t, rec.Deposits, 1)
	assert.Equal(t, ParticlePiPlus, rec.Deposits[0].ParticleName)
	assert.Equal(t, RootTrackID, rec.Deposits[0].ParentTrackID)

	h := e.Histograms()
	assert.Equal(t, 5, h.Wavelength.Entries)
	assert.Equal(t, 5, h.AngleDistance.Entries)
	assert.Equal(t, 1, h.DistanceEnergy.Entries)
	// Photon 11 travels along the primary axis 100 mm from the vertex.
	assert.Equal(t, 1.0, h.AngleDistance.At(0, 2))

	stats := e.Stats()
	assert.Equal(t, Stats{Events: 1, Tracks: 4, Photons: 5, Labels: 3, Deposits: 1}, stats)
	assert.False(t, e.Context().Open())
	assert.Zero(t, e.Context().Registry.Len(), "per-event state is cleared")
}

func TestEngineDeflectionSplit(t *testing.T) {
	sink := &memSink{}
	e := NewEngine(DefaultEngineConfig(), sink)

	feed(t, e,
		begin(0),
		created(1, RootTrackID, ParticlePiPlus, "", r3.Vector{Z: 500}),
		StepCompleted{TrackID: 1, StepNumber: 1, ProcessName: "msc", MomentumDirection: r3.Vector{Z: 1},
			Momentum: r3.Vector{Z: 495}, Position: r3.Vector{Z: 5}, Time: 0.02},
	)

	out, err := e.Handle(context.Background(), StepCompleted{TrackID: 1, StepNumber: 2, ProcessName: "hadElastic",
		MomentumDirection: tilted(25), Momentum: tilted(25).Mul(480), Position: r3.Vector{Z: 9}, Time: 0.04})
	require.NoError(t, err)
	require.True(t, out.Terminate)
	require.NotNil(t, out.Spawn)

	feed(t, e,
		out.Spawn.Created(2),
		photon(20, 2, r3.Vector{Z: 20}),
		end(0),
	)

	require.Len(t, sink.events, 1)
	rec := sink.events[0]
	assert.Equal(t, 1, rec.Splits)
	assert.Equal(t, 1, rec.CategoryCounts[SecondaryPion])
	assert.Equal(t, []int{1, 2}, rec.Labels.Labels()[0].Genealogy)

	require.Len(t, rec.Tracks, 2)
	assert.True(t, rec.Tracks[0].NeedsRelabeling)
	assert.InDelta(t, 0.02, rec.Tracks[0].RelabelingTime, 1e-12)
	assert.Equal(t, SecondaryPion, rec.Tracks[1].Category)
	assert.Equal(t, 1, rec.Tracks[1].CategoryParentTrackID)
	assert.Equal(t, "Deflection_hadElastic", rec.Tracks[1].CreatorProcess)
	assert.Equal(t, 1, e.Stats().Splits)
}

func TestEngineContractErrors(t *testing.T) {
	e := NewEngine(DefaultEngineConfig(), nil)
	ctx := context.Background()

	_, err := e.Handle(ctx, created(1, RootTrackID, ParticlePiPlus, "", r3.Vector{Z: 1}))
	assert.ErrorIs(t, err, ErrNoEvent)
	_, err = e.Handle(ctx, photon(2, 1, r3.Vector{}))
	assert.ErrorIs(t, err, ErrNoEvent)
	_, err = e.Handle(ctx, end(0))
	assert.ErrorIs(t, err, ErrNoEvent)
	_, err = e.Handle(ctx, EventBoundary{Kind: "middle"})
	assert.ErrorContains(t, err, "unknown boundary kind")
}

func TestEngineFinalize(t *testing.T) {
	sink := &memSink{}
	e := NewEngine(DefaultEngineConfig(), sink)
	feed(t, e, begin(1), created(1, RootTrackID, ParticlePiPlus, "", r3.Vector{Z: 1}))

	require.NoError(t, e.Finalize(context.Background()))
	assert.True(t, e.Finalized())
	assert.Len(t, sink.events, 1, "open event is flushed")
	assert.Same(t, e.Histograms(), sink.hists)
	assert.Equal(t, 1, sink.closed)

	assert.NoError(t, e.Finalize(context.Background()))
	assert.Equal(t, 1, sink.closed, "second finalize is a no-op")

	_, err := e.Handle(context.Background(), begin(2))
	assert.ErrorIs(t, err, ErrFinalized)
}

func TestEngineFinalizeJoinsSinkErrors(t *testing.T) {
	sink := &memSink{failHists: errors.New("disk full"), failClose: errors.New("locked")}
	e := NewEngine(DefaultEngineConfig(), sink)

	err := e.Finalize(context.Background())
	require.Error(t, err)
	assert.ErrorContains(t, err, "write histograms: disk full")
	assert.ErrorContains(t, err, "close sink: locked")
	assert.Equal(t, 1, sink.closed)
}

func TestEngineSinkWriteErrorsAreCounted(t *testing.T) {
	sink := &memSink{failWrite: errors.New("no space")}
	e := NewEngine(DefaultEngineConfig(), sink)

	feed(t, e, begin(1), end(1), begin(2), end(2))
	stats := e.Stats()
	assert.Equal(t, 2, stats.Events)
	assert.Equal(t, 2, stats.SinkErrors)
}

func TestEngineBeginFlushesUnclosedEvent(t *testing.T) {
	sink := &memSink{}
	e := NewEngine(DefaultEngineConfig(), sink)

	feed(t, e,
		begin(1), created(1, RootTrackID, ParticlePiPlus, "", r3.Vector{Z: 1}),
		begin(2), created(1, RootTrackID, ParticlePiMinus, "", r3.Vector{Z: 1}),
		end(2),
	)
	require.Len(t, sink.events, 2)
	assert.Equal(t, 1, sink.events[0].EventID)
	assert.Equal(t, 2, sink.events[1].EventID)
	assert.Equal(t, ParticlePiMinus, sink.events[1].Tracks[0].ParticleName, "track IDs are per event")
	assert.Equal(t, 0, sink.events[1].Tracks[0].SubID, "subID counters restart per event")
	assert.Zero(t, e.Stats().DuplicateTracks)
}

func TestEngineDuplicateTrack(t *testing.T) {
	sink := &memSink{}
	e := NewEngine(DefaultEngineConfig(), sink)
	feed(t, e,
		begin(1),
		created(1, RootTrackID, ParticlePiPlus, "", r3.Vector{Z: 1}),
		created(1, RootTrackID, ParticleGamma, "", r3.Vector{Z: 1}),
		end(1),
	)
	stats := e.Stats()
	assert.Equal(t, 1, stats.Tracks)
	assert.Equal(t, 1, stats.DuplicateTracks)
	assert.Equal(t, ParticlePiPlus, sink.events[0].Tracks[0].ParticleName)
	assert.Equal(t, 1, sink.events[0].CategoryCounts[Primary])
}

func TestEngineStorageToggles(t *testing.T) {
	cfg := DefaultEngineConfig()
	cfg.StoreIndividualPhotons = false
	cfg.StoreIndividualEdeps = false
	cfg.DetectorVolume = ""
	sink := &memSink{}
	e := NewEngine(cfg, sink)

	feed(t, e,
		begin(1),
		created(1, RootTrackID, ParticlePiPlus, "", r3.Vector{Z: 1}),
		photon(2, 1, r3.Vector{Z: 10}),
		StepCompleted{TrackID: 1, StepNumber: 1, EnergyDeposit: 0.5, Volume: "anything"},
		StepCompleted{TrackID: 1, StepNumber: 2, EnergyDeposit: 0},
		end(1),
	)
	rec := sink.events[0]
	assert.Empty(t, rec.Photons)
	assert.Empty(t, rec.Deposits)
	assert.Equal(t, 1, rec.PhotonCount)
	assert.Equal(t, 1, rec.DepositCount, "empty volume accepts every deposit")
	assert.Equal(t, 1, rec.Labels.Len())
	assert.Equal(t, 1, e.Histograms().Wavelength.Entries, "histograms are filled regardless")
	assert.Equal(t, 1, e.Histograms().DistanceEnergy.Entries)
}

func TestEngineConfigFromSimDefaults(t *testing.T) {
	got := EngineConfigFromSim(config.DefaultSimConfig())
	if diff := cmp.Diff(DefaultEngineConfig(), got); diff != "" {
		t.Errorf("config mismatch (-want +got):\n%s", diff)
	}
	assert.NoError(t, got.Binning.Validate())
}

func TestEngineDecayElectronSubIDsFollowCreationOrder(t *testing.T) {
	sink := &memSink{}
	e := NewEngine(DefaultEngineConfig(), sink)

	electron := func(id int, energy float64) TrackCreated {
		tc := created(id, 2, ParticleElectron, "Decay", r3.Vector{X: energy})
		tc.KineticEnergy = energy
		return tc
	}
	feed(t, e,
		begin(1),
		created(1, RootTrackID, ParticlePiMinus, "", r3.Vector{Z: 1000}),
		created(2, 1, ParticleMuMinus, "Decay", r3.Vector{Z: 30}),
		electron(3, 0.5),
		electron(4, 2),
		electron(5, 50),
		end(1),
	)

	got := map[int]TrackSummary{}
	for _, ts := range sink.events[0].Tracks {
		got[ts.TrackID] = ts
	}
	assert.NotContains(t, got, 3)
	assert.Equal(t, DecayElectron, got[4].Category)
	assert.Equal(t, 0, got[4].SubID)
	assert.Equal(t, DecayElectron, got[5].Category)
	assert.Equal(t, 1, got[5].SubID)
	assert.Equal(t, 2, got[4].CategoryParentTrackID)
	assert.Equal(t, 2, sink.events[0].CategoryCounts[DecayElectron])
}
