package shower

import "github.com/golang/geo/r3"

// TrackRegistry maps track IDs to their records for the current event.
// Records reference their ancestors by ID only; the registry is the sole
// owner and drops everything on Reset.
type TrackRegistry struct {
	records map[int]*TrackRecord
	order   []int // registration order
}

// NewTrackRegistry creates an empty registry.
func NewTrackRegistry() *TrackRegistry {
	return &TrackRegistry{
		records: make(map[int]*TrackRecord),
	}
}

// Register creates an uncategorized record for id. A second registration of
// the same id is ignored and reported as false.
func (r *TrackRegistry) Register(id int, particleName string, parentID int, position, momentum r3.Vector, energy, time float64, pdgCode int) bool {
	if _, exists := r.records[id]; exists {
		return false
	}
	r.records[id] = &TrackRecord{
		TrackID:               id,
		Category:              Uncategorized,
		SubID:                 -1,
		ParentTrackID:         parentID,
		CategoryParentTrackID: parentID,
		ParticleName:          particleName,
		PDGCode:               pdgCode,
		Position:              position,
		Momentum:              momentum,
		Energy:                energy,
		Time:                  time,
		PreMomentumDirection:  momentum.Normalize(),
		PreMomentumPosition:   position,
		PreMomentumTime:       time,
	}
	r.order = append(r.order, id)
	return true
}

// Lookup returns a copy of the record for id.
func (r *TrackRegistry) Lookup(id int) (TrackRecord, bool) {
	rec, ok := r.records[id]
	if !ok {
		return TrackRecord{}, false
	}
	return *rec, true
}

// UpdateCategory sets the classification of an existing record.
// Unknown IDs are a no-op.
func (r *TrackRegistry) UpdateCategory(id int, category Category, subID, categoryParentID int) bool {
	rec, ok := r.records[id]
	if !ok {
		return false
	}
	rec.Category = category
	rec.SubID = subID
	rec.CategoryParentTrackID = categoryParentID
	return true
}

// UpdateMotionSample overwrites the deflection baseline of an existing record.
// Unknown IDs are a no-op.
func (r *TrackRegistry) UpdateMotionSample(id int, direction, position r3.Vector, time float64) bool {
	rec, ok := r.records[id]
	if !ok {
		return false
	}
	rec.PreMomentumDirection = direction
	rec.PreMomentumPosition = position
	rec.PreMomentumTime = time
	return true
}

// MarkForRelabeling flags a record as split at time t.
func (r *TrackRegistry) MarkForRelabeling(id int, t float64) bool {
	rec, ok := r.records[id]
	if !ok {
		return false
	}
	rec.NeedsRelabeling = true
	rec.RelabelingTime = t
	return true
}

// setCreatorProcess records the process that created the track.
func (r *TrackRegistry) setCreatorProcess(id int, process string) {
	if rec, ok := r.records[id]; ok {
		rec.CreatorProcess = process
	}
}

// advanceStep increments the step counter and returns the new count.
func (r *TrackRegistry) advanceStep(id int) (int, bool) {
	rec, ok := r.records[id]
	if !ok {
		return 0, false
	}
	rec.Steps++
	return rec.Steps, true
}

// NearestClassified walks parent links starting at id (inclusive) and
// returns the first classified track found, or RootTrackID when the walk
// reaches the root or an unknown ID.
func (r *TrackRegistry) NearestClassified(id int) int {
	// Bounded by the record count so a corrupt parent chain cannot loop.
	for hops := 0; id != RootTrackID && hops <= len(r.records); hops++ {
		rec, ok := r.records[id]
		if !ok {
			return RootTrackID
		}
		if rec.Category.Classified() {
			return id
		}
		id = rec.ParentTrackID
	}
	return RootTrackID
}

// Len returns the number of registered tracks.
func (r *TrackRegistry) Len() int {
	return len(r.records)
}

// Records returns copies of all records in registration order.
func (r *TrackRegistry) Records() []TrackRecord {
	out := make([]TrackRecord, 0, len(r.order))
	for _, id := range r.order {
		out = append(out, *r.records[id])
	}
	return out
}

// Reset drops every record.
func (r *TrackRegistry) Reset() {
	clear(r.records)
	r.order = r.order[:0]
}
