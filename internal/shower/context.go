package shower

import "github.com/golang/geo/r3"

// EventContext holds all state scoped to one event: the track registry,
// the per-category subID counters, the label deduplicator and the detail
// records waiting for the end-of-event flush.
type EventContext struct {
	EventID       int
	PrimaryEnergy float64

	Registry *TrackRegistry
	Labels   *LabelDeduplicator

	counters map[Category]int

	photonCount  int
	photons      []PhotonRecord
	deposits     []EnergyDepositRecord
	depositCount int
	totalDeposit float64
	splits       int

	// Reference frame for photon angles and distances, taken from the
	// first primary of the event.
	vertex      r3.Vector
	axis        r3.Vector
	havePrimary bool

	open bool
}

// NewEventContext creates a closed, empty context.
func NewEventContext() *EventContext {
	ec := &EventContext{
		Registry: NewTrackRegistry(),
		Labels:   NewLabelDeduplicator(),
		counters: make(map[Category]int, len(Categories)),
	}
	ec.reset()
	return ec
}

// Begin resets every per-event structure and opens event eventID.
func (ec *EventContext) Begin(eventID int, primaryEnergy float64) {
	ec.reset()
	ec.EventID = eventID
	ec.PrimaryEnergy = primaryEnergy
	ec.open = true
}

func (ec *EventContext) reset() {
	ec.Registry.Reset()
	ec.Labels.Reset()
	clear(ec.counters)
	ec.photonCount = 0
	ec.photons = nil
	ec.deposits = nil
	ec.depositCount = 0
	ec.totalDeposit = 0
	ec.splits = 0
	ec.vertex = r3.Vector{}
	ec.axis = r3.Vector{Z: 1}
	ec.havePrimary = false
	ec.open = false
}

// Open reports whether an event is in progress.
func (ec *EventContext) Open() bool {
	return ec.open
}

// NextSubID returns the next sequence number for category c.
func (ec *EventContext) NextSubID(c Category) int {
	n := ec.counters[c]
	ec.counters[c] = n + 1
	return n
}

// Count returns how many tracks of category c were classified this event.
func (ec *EventContext) Count(c Category) int {
	return ec.counters[c]
}

// ClassifyTrack evaluates the classifier for id and stores the result.
// Tracks that match no rule keep Uncategorized and get their shortcut to
// the nearest classified ancestor.
func (ec *EventContext) ClassifyTrack(c *Classifier, id int) Category {
	rec, ok := ec.Registry.Lookup(id)
	if !ok {
		return Uncategorized
	}
	category, categoryParent := c.Evaluate(ec.Registry, rec)
	subID := -1
	if category.Classified() {
		subID = ec.NextSubID(category)
	}
	ec.Registry.UpdateCategory(id, category, subID, categoryParent)
	return category
}

// setPrimaryFrame fixes the photon reference frame on the first primary.
func (ec *EventContext) setPrimaryFrame(position, momentum r3.Vector) {
	if ec.havePrimary {
		return
	}
	ec.vertex = position
	if dir := momentum.Normalize(); dir != (r3.Vector{}) {
		ec.axis = dir
	}
	ec.havePrimary = true
}
