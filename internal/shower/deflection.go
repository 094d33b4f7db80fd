package shower

import (
	"github.com/golang/geo/r3"
	"github.com/golang/geo/s1"
)

// DefaultDeflectionAngleDeg is the direction change above which a charged
// pion track is split.
const DefaultDeflectionAngleDeg = 5.0

// DefaultSoftScatterProcesses are the elastic-like and ionisation-like
// processes that may trigger a split. Inelastic processes never appear
// here because the transport engine already kills the track for them.
var DefaultSoftScatterProcesses = []string{"hadElastic", "CoulombScat", "msc", "hIoni", "ionIoni"}

// DeflectionConfig holds the split policy settings.
type DeflectionConfig struct {
	AngleThresholdDeg    float64
	SoftScatterProcesses []string
}

// DefaultDeflectionConfig returns the split policy used when no
// configuration file is loaded.
func DefaultDeflectionConfig() DeflectionConfig {
	return DeflectionConfig{
		AngleThresholdDeg:    DefaultDeflectionAngleDeg,
		SoftScatterProcesses: append([]string(nil), DefaultSoftScatterProcesses...),
	}
}

// DeflectionHandler splits charged-pion tracks whose direction changes by
// more than the threshold in a single soft-scatter step.
type DeflectionHandler struct {
	threshold s1.Angle
	soft      map[string]bool
}

// NewDeflectionHandler creates a handler from cfg.
func NewDeflectionHandler(cfg DeflectionConfig) *DeflectionHandler {
	soft := make(map[string]bool, len(cfg.SoftScatterProcesses))
	for _, p := range cfg.SoftScatterProcesses {
		soft[p] = true
	}
	return &DeflectionHandler{
		threshold: s1.Angle(cfg.AngleThresholdDeg) * s1.Degree,
		soft:      soft,
	}
}

// Process runs the split policy for one step and then refreshes the
// track's motion sample to the step's end point. Unknown tracks yield a
// zero outcome.
func (h *DeflectionHandler) Process(reg *TrackRegistry, step StepCompleted) StepOutcome {
	steps, ok := reg.advanceStep(step.TrackID)
	if !ok {
		return StepOutcome{}
	}
	rec, _ := reg.Lookup(step.TrackID)
	direction := step.MomentumDirection.Normalize()

	var out StepOutcome
	if steps > 1 && h.eligible(rec, step) {
		angle := rec.PreMomentumDirection.Angle(direction)
		if angle > h.threshold {
			out = h.split(reg, rec, step)
			Tracef("split track %d (%s) at t=%.3fns: %.2f° via %s",
				rec.TrackID, rec.ParticleName, rec.PreMomentumTime, angle.Degrees(), step.ProcessName)
		}
	}

	// Every step moves the baseline, split or not.
	reg.UpdateMotionSample(step.TrackID, direction, step.Position, step.Time)
	return out
}

func (h *DeflectionHandler) eligible(rec TrackRecord, step StepCompleted) bool {
	if !IsChargedPion(rec.ParticleName) || step.Status.Terminated() {
		return false
	}
	if rec.PreMomentumDirection == (r3.Vector{}) || step.MomentumDirection == (r3.Vector{}) {
		return false
	}
	return h.soft[step.ProcessName]
}

func (h *DeflectionHandler) split(reg *TrackRegistry, rec TrackRecord, step StepCompleted) StepOutcome {
	momentum := step.Momentum
	if momentum == (r3.Vector{}) {
		momentum = step.MomentumDirection.Normalize().Mul(rec.Momentum.Norm())
	}
	reg.MarkForRelabeling(rec.TrackID, rec.PreMomentumTime)
	return StepOutcome{
		Terminate: true,
		Spawn: &TrackSpawn{
			ParentTrackID:  rec.TrackID,
			ParticleName:   rec.ParticleName,
			PDGCode:        rec.PDGCode,
			Position:       rec.PreMomentumPosition,
			Momentum:       momentum,
			KineticEnergy:  step.KineticEnergy,
			Time:           rec.PreMomentumTime,
			CreatorProcess: DeflectionProcessName(step.ProcessName),
		},
	}
}
