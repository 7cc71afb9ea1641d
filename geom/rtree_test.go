package geom

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRTreeSearch(t *testing.T) {
	r := NewRTree()
	r.Insert(1, 0, 0, 0.001, 0.001)
	r.Insert(2, 0.01, 0.01, 0.011, 0.011)
	r.Insert(3, 0.0005, -0.001, 0.0006, 0)
	assert.Equal(t, 3, r.Size())

	assert.ElementsMatch(t, []int64{1, 3}, r.Search(-0.001, -0.001, 0.002, 0.002))
	assert.Equal(t, []int64{2}, r.SearchNearPoint(0.0105, 0.0105, 10))
	assert.Empty(t, r.SearchNearPoint(0.005, 0.005, 10))
}

func TestRTreeNearbyOrdersByDistance(t *testing.T) {
	r := NewRTree()
	r.Insert(10, 0.003, 0, 0.004, 0)
	r.Insert(20, 0.001, 0, 0.002, 0)
	r.Insert(30, -0.0001, -0.0001, 0.0001, 0.0001)

	var ids []int64
	var dists []float64
	r.Nearby(0, 0, func(id int64, d float64) bool {
		ids = append(ids, id)
		dists = append(dists, d)
		return true
	})
	assert.Equal(t, []int64{30, 20, 10}, ids)
	assert.Zero(t, dists[0])
	assert.InDelta(t, 111.3, dists[1], 0.5)
	assert.IsIncreasing(t, dists)

	ids = ids[:0]
	r.Nearby(0, 0, func(id int64, d float64) bool {
		if d > 150 {
			return false
		}
		ids = append(ids, id)
		return true
	})
	assert.Equal(t, []int64{30, 20}, ids)
}
