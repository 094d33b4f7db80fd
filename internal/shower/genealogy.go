package shower

import "slices"

// BuildGenealogy returns the classified tracks on the ancestry path of
// trackID (inclusive), root first. The walk follows category-parent links,
// stops at the root or at the first unknown ID, and never fails: an empty
// result means no classified ancestor was found.
func BuildGenealogy(reg *TrackRegistry, trackID int) []int {
	var chain []int
	id := trackID
	for hops := 0; id != RootTrackID && hops <= reg.Len(); hops++ {
		rec, ok := reg.records[id]
		if !ok {
			break
		}
		if rec.Category.Classified() {
			chain = append(chain, id)
		}
		if rec.CategoryParentTrackID == id {
			break
		}
		id = rec.CategoryParentTrackID
	}
	// Collected leaf to root.
	slices.Reverse(chain)
	return chain
}
