package shower

import (
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
)

func TestLabelDeduplicator(t *testing.T) {
	d := NewLabelDeduplicator()

	g := []int{1, 3}
	assert.Equal(t, 0, d.AddPhoton(g, 0))
	assert.Equal(t, 1, d.AddPhoton([]int{1}, 1))
	assert.Equal(t, 0, d.AddPhoton([]int{1, 3}, 2))
	assert.Equal(t, 2, d.AddPhoton(nil, 3), "an empty genealogy still gets a label")
	assert.Equal(t, 3, d.AddPhoton([]int{3, 1}, 4), "order matters")
	assert.Equal(t, 2, d.AddPhoton([]int{}, 5))
	assert.Equal(t, 4, d.Len())

	g[0] = 42 // the label keeps its own copy

	table := d.Flush()
	want := LabelTable{
		GenealogyLengths:  []int{2, 1, 0, 2},
		GenealogyTrackIDs: []int{1, 3, 1, 3, 1},
		PhotonCounts:      []int{2, 1, 2, 1},
		PhotonIndices:     []int{0, 2, 1, 3, 5, 4},
	}
	if diff := cmp.Diff(want, table); diff != "" {
		t.Errorf("label table mismatch (-want +got):\n%s", diff)
	}
	assert.Zero(t, d.Len(), "flush clears the deduplicator")

	labels := table.Labels()
	if diff := cmp.Diff([]Label{
		{Genealogy: []int{1, 3}, PhotonIndices: []int{0, 2}},
		{Genealogy: []int{1}, PhotonIndices: []int{1}},
		{Genealogy: []int{}, PhotonIndices: []int{3, 5}},
		{Genealogy: []int{3, 1}, PhotonIndices: []int{4}},
	}, labels); diff != "" {
		t.Errorf("labels mismatch (-want +got):\n%s", diff)
	}
}

func TestLabelDeduplicatorDistinguishesSequences(t *testing.T) {
	d := NewLabelDeduplicator()
	a := d.AddPhoton([]int{1, 23}, 0)
	b := d.AddPhoton([]int{12, 3}, 1)
	c := d.AddPhoton([]int{123}, 2)
	assert.NotEqual(t, a, b)
	assert.NotEqual(t, b, c)
	assert.NotEqual(t, a, c)
}

func TestLabelDeduplicatorReset(t *testing.T) {
	d := NewLabelDeduplicator()
	d.AddPhoton([]int{1}, 0)
	d.Reset()
	assert.Zero(t, d.Len())
	assert.Equal(t, 0, d.AddPhoton([]int{2}, 0), "indices restart after reset")

	empty := NewLabelDeduplicator().Flush()
	assert.Zero(t, empty.Len())
	assert.Empty(t, empty.Labels())
}
