package shower

import "github.com/golang/geo/r3"

// Event is one message of the transport engine's event stream.
// The concrete types are EventBoundary, TrackCreated, StepCompleted and
// PhotonEmitted.
type Event interface {
	eventKind() string
}

// BoundaryKind distinguishes the start and the end of an event.
type BoundaryKind string

const (
	BoundaryBegin BoundaryKind = "begin"
	BoundaryEnd   BoundaryKind = "end"
)

// EventBoundary opens or closes one simulated event.
type EventBoundary struct {
	Kind          BoundaryKind `json:"kind"`
	EventID       int          `json:"event_id"`
	PrimaryEnergy float64      `json:"primary_energy_mev"`
}

// TrackCreated is emitted once per new track, before any of its steps and
// before any of its children are created.
type TrackCreated struct {
	TrackID        int       `json:"track_id"`
	ParticleName   string    `json:"particle"`
	PDGCode        int       `json:"pdg"`
	ParentTrackID  int       `json:"parent_id"`
	Position       r3.Vector `json:"position_mm"`
	Momentum       r3.Vector `json:"momentum_mev"`
	KineticEnergy  float64   `json:"kinetic_energy_mev"`
	Time           float64   `json:"time_ns"`
	CreatorProcess string    `json:"creator_process"`
}

// StepCompleted is emitted after every transport step of a track.
type StepCompleted struct {
	TrackID           int         `json:"track_id"`
	StepNumber        int         `json:"step"`
	ProcessName       string      `json:"process"` // process that limited the step
	MomentumDirection r3.Vector   `json:"direction"`
	Momentum          r3.Vector   `json:"momentum_mev"`
	KineticEnergy     float64     `json:"kinetic_energy_mev"`
	Position          r3.Vector   `json:"position_mm"`
	Time              float64     `json:"time_ns"`
	Status            TrackStatus `json:"status"`
	EnergyDeposit     float64     `json:"edep_mev,omitempty"`
	Volume            string      `json:"volume,omitempty"`
}

// PhotonEmitted is emitted when an optical photon is created.
type PhotonEmitted struct {
	TrackID        int       `json:"track_id"`
	ParentTrackID  int       `json:"parent_id"`
	Position       r3.Vector `json:"position_mm"`
	Direction      r3.Vector `json:"direction"`
	Time           float64   `json:"time_ns"`
	Wavelength     float64   `json:"wavelength_nm"`
	CreatorProcess string    `json:"creator_process"`
}

func (EventBoundary) eventKind() string { return "boundary" }
func (TrackCreated) eventKind() string  { return "track_created" }
func (StepCompleted) eventKind() string { return "step_completed" }
func (PhotonEmitted) eventKind() string { return "photon_emitted" }

// Kind returns the stream tag of ev ("boundary", "track_created", ...).
func Kind(ev Event) string {
	return ev.eventKind()
}

// TrackSpawn asks the transport engine to create a new track. The engine
// answers with a TrackCreated carrying the ID it assigned.
type TrackSpawn struct {
	ParentTrackID  int
	ParticleName   string
	PDGCode        int
	Position       r3.Vector
	Momentum       r3.Vector
	KineticEnergy  float64
	Time           float64
	CreatorProcess string
}

// StepOutcome tells the transport engine how to continue after a step.
type StepOutcome struct {
	Terminate bool
	Spawn     *TrackSpawn
}

// Created converts a spawn request into the TrackCreated the transport
// engine emits once it has assigned trackID.
func (s TrackSpawn) Created(trackID int) TrackCreated {
	return TrackCreated{
		TrackID:        trackID,
		ParticleName:   s.ParticleName,
		PDGCode:        s.PDGCode,
		ParentTrackID:  s.ParentTrackID,
		Position:       s.Position,
		Momentum:       s.Momentum,
		KineticEnergy:  s.KineticEnergy,
		Time:           s.Time,
		CreatorProcess: s.CreatorProcess,
	}
}
