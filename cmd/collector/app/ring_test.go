package app

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRing_EvictsOldest(t *testing.T) {
	r := NewRing(3)
	for i := 1; i <= 5; i++ {
		r.Add(Record{Altitude: float64(i)})
	}

	assert.Equal(t, 3, r.Len())
	assert.Equal(t, int64(5), r.Total())

	var alts []float64
	for _, rec := range r.Recent("", 10) {
		alts = append(alts, rec.Altitude)
	}
	assert.Equal(t, []float64{5, 4, 3}, alts)
}

func TestRing_Filter(t *testing.T) {
	r := NewRing(10)
	r.Add(Record{DroneID: "a"})
	r.Add(Record{DroneID: "b"})
	r.Add(Record{DroneID: "a"})

	got := r.Recent("a", 10)
	assert.Len(t, got, 2)
	assert.Equal(t, int64(3), got[0].ID)
	assert.Empty(t, r.Recent("c", 10))
	assert.Empty(t, NewRing(0).Recent("", 5))
}
