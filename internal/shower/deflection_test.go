package shower

import (
	"math"
	"testing"

	"github.com/golang/geo/r3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// tilted returns a unit vector deg degrees away from +Z in the XZ plane.
func tilted(deg float64) r3.Vector {
	rad := deg * math.Pi / 180
	return r3.Vector{X: math.Sin(rad), Z: math.Cos(rad)}
}

func pionRegistry(name string) *TrackRegistry {
	reg := NewTrackRegistry()
	reg.Register(1, name, RootTrackID, r3.Vector{}, r3.Vector{Z: 500}, 380, 0, 211)
	return reg
}

func pionStep(n int, process string, dir r3.Vector, status TrackStatus) StepCompleted {
	return StepCompleted{
		TrackID:           1,
		StepNumber:        n,
		ProcessName:       process,
		MomentumDirection: dir,
		Momentum:          dir.Mul(490),
		KineticEnergy:     370,
		Position:          r3.Vector{Z: float64(10 * n)},
		Time:              0.04 * float64(n),
		Status:            status,
	}
}

func TestDeflectionSplitsLargeSoftScatter(t *testing.T) {
	reg := pionRegistry(ParticlePiPlus)
	h := NewDeflectionHandler(DefaultDeflectionConfig())

	assert.Equal(t, StepOutcome{}, h.Process(reg, pionStep(1, "msc", r3.Vector{Z: 1}, StatusAlive)))

	step := pionStep(2, "hadElastic", tilted(10), StatusAlive)
	out := h.Process(reg, step)
	require.True(t, out.Terminate)
	require.NotNil(t, out.Spawn)

	sp := out.Spawn
	assert.Equal(t, 1, sp.ParentTrackID)
	assert.Equal(t, ParticlePiPlus, sp.ParticleName)
	assert.Equal(t, 211, sp.PDGCode)
	assert.Equal(t, "Deflection_hadElastic", sp.CreatorProcess)
	assert.Equal(t, r3.Vector{Z: 10}, sp.Position, "split happens at the previous step's end point")
	assert.InDelta(t, 0.04, sp.Time, 1e-12)
	assert.Equal(t, step.Momentum, sp.Momentum)
	assert.Equal(t, 370.0, sp.KineticEnergy)

	rec, _ := reg.Lookup(1)
	assert.True(t, rec.NeedsRelabeling)
	assert.InDelta(t, 0.04, rec.RelabelingTime, 1e-12)
	assert.Equal(t, 2, rec.Steps)
	assert.Equal(t, step.Position, rec.PreMomentumPosition)
	assert.InDelta(t, 0, rec.PreMomentumDirection.Sub(tilted(10)).Norm(), 1e-12)

	created := sp.Created(8)
	assert.Equal(t, 8, created.TrackID)
	assert.Equal(t, sp.CreatorProcess, created.CreatorProcess)
	assert.Equal(t, sp.Position, created.Position)
}

func TestDeflectionNoSplit(t *testing.T) {
	tests := []struct {
		name     string
		particle string
		first    r3.Vector
		step     StepCompleted
	}{
		{"below threshold", ParticlePiPlus, r3.Vector{Z: 1}, pionStep(2, "msc", tilted(3), StatusAlive)},
		{"hard process", ParticlePiPlus, r3.Vector{Z: 1}, pionStep(2, "pi+Inelastic", tilted(40), StatusAlive)},
		{"terminated", ParticlePiMinus, r3.Vector{Z: 1}, pionStep(2, "hadElastic", tilted(40), StatusStopAndKill)},
		{"not a pion", ParticleMuPlus, r3.Vector{Z: 1}, pionStep(2, "msc", tilted(40), StatusAlive)},
		{"zero direction", ParticlePiPlus, r3.Vector{Z: 1}, pionStep(2, "msc", r3.Vector{}, StatusAlive)},
		{"zero baseline", ParticlePiPlus, r3.Vector{}, pionStep(2, "msc", tilted(40), StatusAlive)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			reg := pionRegistry(tt.particle)
			h := NewDeflectionHandler(DefaultDeflectionConfig())
			h.Process(reg, pionStep(1, "msc", tt.first, StatusAlive))

			out := h.Process(reg, tt.step)
			assert.Equal(t, StepOutcome{}, out)

			rec, _ := reg.Lookup(1)
			assert.False(t, rec.NeedsRelabeling)
			assert.Equal(t, tt.step.Position, rec.PreMomentumPosition, "the baseline always moves")
		})
	}
}

func TestDeflectionFirstStepNeverSplits(t *testing.T) {
	reg := pionRegistry(ParticlePiPlus)
	h := NewDeflectionHandler(DefaultDeflectionConfig())
	out := h.Process(reg, pionStep(1, "hadElastic", tilted(60), StatusAlive))
	assert.Equal(t, StepOutcome{}, out)
}

func TestDeflectionComparesConsecutiveSteps(t *testing.T) {
	reg := pionRegistry(ParticlePiPlus)
	h := NewDeflectionHandler(DefaultDeflectionConfig())
	h.Process(reg, pionStep(1, "msc", tilted(0), StatusAlive))

	// Drift 4 degrees per step: never more than the threshold between samples.
	for n := 2; n <= 6; n++ {
		out := h.Process(reg, pionStep(n, "msc", tilted(float64(4*(n-1))), StatusAlive))
		assert.Nil(t, out.Spawn, "step %d", n)
	}
}

func TestDeflectionMomentumFallback(t *testing.T) {
	reg := pionRegistry(ParticlePiMinus)
	h := NewDeflectionHandler(DefaultDeflectionConfig())
	h.Process(reg, pionStep(1, "msc", r3.Vector{Z: 1}, StatusAlive))

	step := pionStep(2, "CoulombScat", tilted(30).Mul(2), StatusAlive)
	step.Momentum = r3.Vector{}
	out := h.Process(reg, step)
	require.NotNil(t, out.Spawn)
	assert.InDelta(t, 500, out.Spawn.Momentum.Norm(), 1e-9)
	assert.InDelta(t, 0, out.Spawn.Momentum.Normalize().Sub(tilted(30)).Norm(), 1e-12)
}

func TestDeflectionCustomThreshold(t *testing.T) {
	h := NewDeflectionHandler(DeflectionConfig{AngleThresholdDeg: 20, SoftScatterProcesses: []string{"hadElastic"}})

	reg := pionRegistry(ParticlePiPlus)
	h.Process(reg, pionStep(1, "hadElastic", r3.Vector{Z: 1}, StatusAlive))
	assert.Nil(t, h.Process(reg, pionStep(2, "hadElastic", tilted(15), StatusAlive)).Spawn)

	reg = pionRegistry(ParticlePiPlus)
	h.Process(reg, pionStep(1, "hadElastic", r3.Vector{Z: 1}, StatusAlive))
	assert.Nil(t, h.Process(reg, pionStep(2, "msc", tilted(40), StatusAlive)).Spawn, "msc not configured")
}

func TestDeflectionUnknownTrack(t *testing.T) {
	h := NewDeflectionHandler(DefaultDeflectionConfig())
	step := pionStep(2, "msc", tilted(40), StatusAlive)
	step.TrackID = 12
	assert.Equal(t, StepOutcome{}, h.Process(NewTrackRegistry(), step))
}
