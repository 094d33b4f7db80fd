package shower

import (
	"fmt"

	"github.com/golang/geo/r3"
)

// RootTrackID is the parent ID carried by primary tracks.
const RootTrackID = 0

// Category represents the physics classification of a track.
// The numeric values are the ones persisted by sinks.
type Category int

const (
	Uncategorized Category = -1
	Primary       Category = 0
	DecayElectron Category = 1
	SecondaryPion Category = 2
	GammaShower   Category = 3
)

// Categories lists the classified categories in counter order.
var Categories = []Category{Primary, DecayElectron, SecondaryPion, GammaShower}

var categoryNames = map[Category]string{
	Uncategorized: "Uncategorized",
	Primary:       "Primary",
	DecayElectron: "DecayElectron",
	SecondaryPion: "SecondaryPion",
	GammaShower:   "GammaShower",
}

func (c Category) String() string {
	if name, ok := categoryNames[c]; ok {
		return name
	}
	return fmt.Sprintf("Category(%d)", int(c))
}

// Classified reports whether c is one of the classified categories.
func (c Category) Classified() bool {
	return c >= Primary && c <= GammaShower
}

// MarshalText implements encoding.TextMarshaler.
func (c Category) MarshalText() ([]byte, error) {
	if _, ok := categoryNames[c]; !ok {
		return nil, fmt.Errorf("unknown category %d", int(c))
	}
	return []byte(c.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (c *Category) UnmarshalText(text []byte) error {
	for cat, name := range categoryNames {
		if name == string(text) {
			*c = cat
			return nil
		}
	}
	return fmt.Errorf("unknown category %q", string(text))
}

// TrackStatus mirrors the transport engine's track status after a step.
type TrackStatus int

const (
	StatusAlive TrackStatus = iota
	StatusStopButAlive
	StatusStopAndKill
	StatusKillTrackAndSecondaries
	StatusSuspend
	StatusPostponeToNextEvent
)

var statusNames = []string{
	"Alive",
	"StopButAlive",
	"StopAndKill",
	"KillTrackAndSecondaries",
	"Suspend",
	"PostponeToNextEvent",
}

func (s TrackStatus) String() string {
	if int(s) >= 0 && int(s) < len(statusNames) {
		return statusNames[s]
	}
	return fmt.Sprintf("TrackStatus(%d)", int(s))
}

// Terminated reports whether the track stops being transported after this step.
// Suspended and postponed tracks are not terminated.
func (s TrackStatus) Terminated() bool {
	return s == StatusStopAndKill || s == StatusKillTrackAndSecondaries
}

// MarshalText implements encoding.TextMarshaler.
func (s TrackStatus) MarshalText() ([]byte, error) {
	if int(s) < 0 || int(s) >= len(statusNames) {
		return nil, fmt.Errorf("unknown track status %d", int(s))
	}
	return []byte(statusNames[s]), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (s *TrackStatus) UnmarshalText(text []byte) error {
	for i, name := range statusNames {
		if name == string(text) {
			*s = TrackStatus(i)
			return nil
		}
	}
	return fmt.Errorf("unknown track status %q", string(text))
}

// TrackRecord is the bookkeeping state of one track within one event.
type TrackRecord struct {
	TrackID               int
	Category              Category
	SubID                 int // -1 while uncategorized
	ParentTrackID         int // physical parent, RootTrackID for primaries
	CategoryParentTrackID int // nearest classified ancestor (or the physical parent before classification)

	ParticleName   string
	PDGCode        int
	CreatorProcess string

	// Creation snapshot
	Position r3.Vector // mm
	Momentum r3.Vector // MeV/c
	Energy   float64   // kinetic, MeV
	Time     float64   // ns

	// Motion sample at the end of the most recently processed step.
	// Baseline for the next deflection check.
	PreMomentumDirection r3.Vector
	PreMomentumPosition  r3.Vector
	PreMomentumTime      float64
	Steps                int

	// Set when the track was terminated by a deflection split.
	// Carried for downstream analysis; nothing in the engine consumes it.
	NeedsRelabeling bool
	RelabelingTime  float64
}

// Particle names as reported by the transport engine.
const (
	ParticleElectron = "e-"
	ParticlePositron = "e+"
	ParticleMuMinus  = "mu-"
	ParticleMuPlus   = "mu+"
	ParticlePiPlus   = "pi+"
	ParticlePiMinus  = "pi-"
	ParticlePiZero   = "pi0"
	ParticleGamma    = "gamma"
	ParticleOptical  = "opticalphoton"
)

// IsChargedPion reports whether name is pi+ or pi-.
func IsChargedPion(name string) bool {
	return name == ParticlePiPlus || name == ParticlePiMinus
}

func isMuon(name string) bool {
	return name == ParticleMuMinus || name == ParticleMuPlus
}

func isElectronLike(name string) bool {
	return name == ParticleElectron || name == ParticlePositron
}
