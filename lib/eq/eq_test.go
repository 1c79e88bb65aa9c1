package eq

import (
	"testing"

	"github.com/phil-mansfield/halox/lib/geom"
)

func TestEq(t *testing.T) {
	tests := []struct {
		eq, exp bool
	}{
		{Ints([]int{}, nil), true},
		{Ints([]int{1, 2}, []int{1, 2}), true},
		{Ints([]int{1, 2}, []int{2, 1}), false},
		{Strings([]string{"a"}, []string{"a", "b"}), false},
		{Uint64s([]uint64{3}, []uint64{3}), true},
		{Float64sEps([]float64{1, 2}, []float64{1 + 1e-9, 2}, 1e-6), true},
		{Float64sEps([]float64{1, 2}, []float64{1.1, 2}, 1e-6), false},
		{VecsEps([]geom.Vec{{1, 2, 3}}, []geom.Vec{{1, 2, 3 + 1e-9}}, 1e-6),
			true},
		{VecsEps([]geom.Vec{{1, 2, 3}}, []geom.Vec{{1, 2.5, 3}}, 1e-6), false},
		{VecsEps([]geom.Vec{}, []geom.Vec{{}}, 1e-6), false},
	}

	for i := range tests {
		if tests[i].eq != tests[i].exp {
			t.Errorf("%d) Expected %v, got %v.", i, tests[i].exp, tests[i].eq)
		}
	}
}
