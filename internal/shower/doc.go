// Package shower owns the per-event track bookkeeping of the photon
// simulation.
//
// Responsibilities: registering every track the transport engine creates,
// classifying tracks into physics categories (primary, decay electron,
// secondary pion, gamma shower), splitting charged-pion tracks at large
// soft-scatter kinks, building root-first genealogies of classified
// ancestors for every optical photon, and deduplicating those genealogies
// into per-event labels.
//
// The package is driven by a typed event stream (EventBoundary,
// TrackCreated, StepCompleted, PhotonEmitted) folded by Engine. All
// per-event state lives in an EventContext that is reset at every
// EventBoundary begin; nothing survives across events except the run-level
// histograms and engine statistics.
//
// Dependency rule: no SQL, plotting or file-format code is allowed here.
// Persistence happens behind the Sink interface.
//
// Units: positions in mm, times in ns, energies in MeV, momenta in MeV/c.
package shower
