package synth

import (
	"bytes"
	"context"
	"fmt"
	"math"
	"strings"
	"testing"

	"github.com/golang/geo/r3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/banshee-data/photonsim/internal/shower"
	"github.com/banshee-data/photonsim/internal/stream"
)

// smallTransport keeps events cheap enough for unit tests.
func smallTransport(seed uint64) *Transport {
	tr := NewTransport(seed)
	tr.PrimaryEnergyMeV = 600
	tr.PhotonYieldPerMM = 0.5
	tr.MaxTracks = 800
	return tr
}

// orderChecker verifies that every referenced track was created first.
type orderChecker struct {
	t       *testing.T
	created map[int]string
	open    bool
	kinds   map[string]int
	procs   map[string]int
}

func newOrderChecker(t *testing.T) *orderChecker {
	return &orderChecker{t: t, kinds: map[string]int{}, procs: map[string]int{}}
}

func (c *orderChecker) Handle(_ context.Context, ev shower.Event) (shower.StepOutcome, error) {
	c.kinds[shower.Kind(ev)]++
	switch ev := ev.(type) {
	case shower.EventBoundary:
		if ev.Kind == shower.BoundaryBegin {
			c.created = map[int]string{}
			c.open = true
		} else {
			c.open = false
		}
	case shower.TrackCreated:
		require.True(c.t, c.open)
		_, dup := c.created[ev.TrackID]
		require.False(c.t, dup, "track %d created twice", ev.TrackID)
		if ev.ParentTrackID != shower.RootTrackID {
			_, ok := c.created[ev.ParentTrackID]
			require.True(c.t, ok, "parent %d of %d not created yet", ev.ParentTrackID, ev.TrackID)
		}
		c.created[ev.TrackID] = ev.ParticleName
		c.procs[ev.CreatorProcess]++
	case shower.StepCompleted:
		_, ok := c.created[ev.TrackID]
		require.True(c.t, ok, "step of unknown track %d", ev.TrackID)
	case shower.PhotonEmitted:
		_, ok := c.created[ev.ParentTrackID]
		require.True(c.t, ok, "photon parent %d not created", ev.ParentTrackID)
		_, clash := c.created[ev.TrackID]
		require.False(c.t, clash, "photon reuses track ID %d", ev.TrackID)
	}
	return shower.StepOutcome{}, nil
}

func TestRunRespectsCreationOrder(t *testing.T) {
	c := newOrderChecker(t)
	sum, err := smallTransport(7).Run(context.Background(), c, 0, 3)
	require.NoError(t, err)

	assert.Equal(t, 3, sum.Events)
	assert.Equal(t, 6, c.kinds["boundary"])
	assert.Equal(t, sum.Tracks, c.kinds["track_created"])
	assert.Equal(t, sum.Steps, c.kinds["step_completed"])
	assert.Equal(t, sum.Photons, c.kinds["photon_emitted"])
	assert.Positive(t, sum.Photons)
	assert.Zero(t, sum.Spawns, "a handler without outcomes never spawns")
	assert.Equal(t, 3, c.procs[""], "one primary per event")
}

func TestRunIsDeterministic(t *testing.T) {
	record := func(seed uint64) string {
		var buf bytes.Buffer
		enc := stream.NewEncoder(&buf)
		_, err := smallTransport(seed).Run(context.Background(), &stream.Recorder{Enc: enc}, 0, 2)
		require.NoError(t, err)
		require.NoError(t, enc.Flush())
		return buf.String()
	}
	a, b := record(42), record(42)
	assert.Equal(t, a, b)
	assert.NotEqual(t, a, record(43))
}

func TestRunDrivesEngine(t *testing.T) {
	eng := shower.NewEngine(shower.DefaultEngineConfig(), nil)
	sum, err := smallTransport(11).Run(context.Background(), eng, 100, 2)
	require.NoError(t, err)

	stats := eng.Stats()
	assert.Equal(t, 2, stats.Events)
	assert.Equal(t, sum.Tracks, stats.Tracks)
	assert.Equal(t, sum.Photons, stats.Photons)
	assert.Equal(t, sum.Spawns, stats.Splits)
	assert.Zero(t, stats.DuplicateTracks)
	assert.Positive(t, stats.Deposits)
}

// spawnRecorder forwards to the engine and remembers the spawned tracks.
type spawnRecorder struct {
	next     stream.Handler
	deflects []shower.TrackCreated
}

func (r *spawnRecorder) Handle(ctx context.Context, ev shower.Event) (shower.StepOutcome, error) {
	if tc, ok := ev.(shower.TrackCreated); ok && shower.IsDeflectionProcess(tc.CreatorProcess) {
		r.deflects = append(r.deflects, tc)
	}
	return r.next.Handle(ctx, ev)
}

func TestDeflectionSpawnsAreHonoured(t *testing.T) {
	tr := NewTransport(3)
	tr.PrimaryEnergyMeV = 300
	tr.PhotonYieldPerMM = 0
	tr.PionInelasticMM = math.Inf(1)
	tr.PionDecayMM = math.Inf(1)
	tr.HadElasticProb = 1
	tr.HadElasticMinDeg = 10
	tr.HadElasticMaxDeg = 20

	eng := shower.NewEngine(shower.DefaultEngineConfig(), nil)
	rec := &spawnRecorder{next: eng}
	sum, err := tr.Run(context.Background(), rec, 0, 1)
	require.NoError(t, err)

	require.Positive(t, sum.Spawns)
	assert.Equal(t, sum.Spawns, eng.Stats().Splits)
	require.Len(t, rec.deflects, sum.Spawns)

	first := rec.deflects[0]
	assert.Equal(t, "Deflection_hadElastic", first.CreatorProcess)
	assert.Equal(t, shower.ParticlePiPlus, first.ParticleName)
	assert.Equal(t, 1, first.ParentTrackID, "first split continues the primary")
}

func TestRunEventRejectsUnknownPrimary(t *testing.T) {
	tr := NewTransport(1)
	tr.PrimaryParticle = "kaon0L"
	var sum Summary
	err := tr.RunEvent(context.Background(), newOrderChecker(t), 0, &sum)
	require.Error(t, err)
	assert.True(t, strings.Contains(err.Error(), "kaon0L"))
}

func TestRunHonoursCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	sum, err := smallTransport(1).Run(ctx, newOrderChecker(t), 0, 5)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Zero(t, sum.Events)
}

type failingHandler struct{ after int }

func (f *failingHandler) Handle(context.Context, shower.Event) (shower.StepOutcome, error) {
	if f.after == 0 {
		return shower.StepOutcome{}, fmt.Errorf("sink full")
	}
	f.after--
	return shower.StepOutcome{}, nil
}

func TestRunPropagatesHandlerErrors(t *testing.T) {
	_, err := smallTransport(1).Run(context.Background(), &failingHandler{after: 5}, 0, 1)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "sink full")
}

func TestRotate(t *testing.T) {
	dir := r3.Vector{Z: 1}
	for _, theta := range []float64{0, 0.1, 1, math.Pi / 2} {
		got := rotate(dir, theta, 0.7)
		assert.InDelta(t, 1, got.Norm(), 1e-12)
		assert.InDelta(t, theta, got.Angle(dir).Radians(), 1e-9)
	}
	assert.Equal(t, r3.Vector{}, rotate(r3.Vector{}, 1, 1))
}

func TestTrackKinematics(t *testing.T) {
	tr := &track{particle: shower.ParticlePiPlus, mom: r3.Vector{Z: 416.824}}
	assert.InDelta(t, 300, tr.kinetic(), 0.01)
	assert.InDelta(t, 0.948, tr.beta(), 0.001)

	photon := &track{particle: shower.ParticleGamma, mom: r3.Vector{X: 5}}
	assert.Equal(t, 1.0, photon.beta())
	assert.Equal(t, 5.0, photon.kinetic())
}
