package shower

import (
	"testing"

	"github.com/golang/geo/r3"
	"github.com/stretchr/testify/assert"
)

func TestBuildGenealogy(t *testing.T) {
	reg := NewTrackRegistry()
	add := func(id, catParent int, cat Category) {
		reg.Register(id, ParticleElectron, catParent, r3.Vector{}, r3.Vector{}, 1, 0, 11)
		reg.UpdateCategory(id, cat, 0, catParent)
	}
	add(1, RootTrackID, Primary)
	add(2, 1, Uncategorized)
	add(3, 2, DecayElectron)
	add(4, 3, Uncategorized)
	add(5, 3, GammaShower)
	add(6, 5, SecondaryPion)
	// Broken links.
	add(7, 7, SecondaryPion)
	add(8, 9, Uncategorized)
	add(9, 8, Uncategorized)
	add(10, 50, GammaShower)

	tests := []struct {
		name string
		id   int
		want []int
	}{
		{"primary", 1, []int{1}},
		{"uncategorized below primary", 2, []int{1}},
		{"skips uncategorized hops", 3, []int{1, 3}},
		{"starts at uncategorized track", 4, []int{1, 3}},
		{"deep chain", 6, []int{1, 3, 5, 6}},
		{"root", RootTrackID, nil},
		{"unknown track", 99, nil},
		{"self loop", 7, []int{7}},
		{"cycle of uncategorized", 8, nil},
		{"unknown ancestor", 10, []int{10}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, BuildGenealogy(reg, tt.id))
		})
	}
}
