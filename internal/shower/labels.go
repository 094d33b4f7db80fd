package shower

import (
	"strconv"
	"strings"
)

// Label groups the photons of one event that share a genealogy.
type Label struct {
	Genealogy     []int
	PhotonIndices []int
}

// LabelTable is the flattened form of an event's labels as handed to sinks.
// Label i owns GenealogyLengths[i] consecutive entries of GenealogyTrackIDs
// and PhotonCounts[i] consecutive entries of PhotonIndices.
type LabelTable struct {
	GenealogyLengths  []int `json:"genealogy_lengths"`
	GenealogyTrackIDs []int `json:"genealogy_track_ids"`
	PhotonCounts      []int `json:"photon_counts"`
	PhotonIndices     []int `json:"photon_indices"`
}

// Len returns the number of labels in the table.
func (t LabelTable) Len() int {
	return len(t.GenealogyLengths)
}

// Labels expands the table back into one Label per entry.
func (t LabelTable) Labels() []Label {
	out := make([]Label, 0, t.Len())
	g, p := 0, 0
	for i := range t.GenealogyLengths {
		gn, pn := t.GenealogyLengths[i], t.PhotonCounts[i]
		out = append(out, Label{
			Genealogy:     t.GenealogyTrackIDs[g : g+gn],
			PhotonIndices: t.PhotonIndices[p : p+pn],
		})
		g += gn
		p += pn
	}
	return out
}

// LabelDeduplicator collapses identical genealogies of one event into
// labels, in first-seen order.
type LabelDeduplicator struct {
	index  map[string]int
	labels []*Label
}

// NewLabelDeduplicator creates an empty deduplicator.
func NewLabelDeduplicator() *LabelDeduplicator {
	return &LabelDeduplicator{index: make(map[string]int)}
}

// AddPhoton attaches photonIndex to the label for genealogy, creating it on
// first use, and returns the label's index within the event.
func (d *LabelDeduplicator) AddPhoton(genealogy []int, photonIndex int) int {
	key := genealogyKey(genealogy)
	i, ok := d.index[key]
	if !ok {
		i = len(d.labels)
		d.index[key] = i
		d.labels = append(d.labels, &Label{Genealogy: append([]int{}, genealogy...)})
	}
	d.labels[i].PhotonIndices = append(d.labels[i].PhotonIndices, photonIndex)
	return i
}

// Len returns the number of labels accumulated so far.
func (d *LabelDeduplicator) Len() int {
	return len(d.labels)
}

// Flush returns the flattened labels and clears the deduplicator.
func (d *LabelDeduplicator) Flush() LabelTable {
	var t LabelTable
	for _, l := range d.labels {
		t.GenealogyLengths = append(t.GenealogyLengths, len(l.Genealogy))
		t.GenealogyTrackIDs = append(t.GenealogyTrackIDs, l.Genealogy...)
		t.PhotonCounts = append(t.PhotonCounts, len(l.PhotonIndices))
		t.PhotonIndices = append(t.PhotonIndices, l.PhotonIndices...)
	}
	d.Reset()
	return t
}

// Reset drops every label.
func (d *LabelDeduplicator) Reset() {
	clear(d.index)
	d.labels = nil
}

// genealogyKey encodes a sequence so that equal keys mean equal sequences.
func genealogyKey(genealogy []int) string {
	var b strings.Builder
	for i, id := range genealogy {
		if i > 0 {
			b.WriteByte(',')
		}
		b.WriteString(strconv.Itoa(id))
	}
	return b.String()
}
