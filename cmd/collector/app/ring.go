package app

import (
	"sync"
	"time"
)

// Record is an accepted telemetry log entry.
type Record struct {
	ID          int64     `json:"id"`
	DroneID     string    `json:"droneId"`
	Latitude    float64   `json:"latitude"`
	Longitude   float64   `json:"longitude"`
	Altitude    float64   `json:"altitude"`
	Heading     *float64  `json:"heading"`
	GroundSpeed *float64  `json:"groundspeed"`
	Satellites  *int      `json:"satellites"`
	GPSFixType  *int      `json:"gps_fix_type"`
	Timestamp   time.Time `json:"timestamp"`
	ReceivedAt  time.Time `json:"receivedAt"`
}

// Ring keeps the most recent records up to a fixed capacity. It is safe for
// concurrent use.
type Ring struct {
	mu      sync.RWMutex
	records []Record
	next    int
	full    bool
	lastID  int64
}

// NewRing creates a Ring holding at most capacity records
func NewRing(capacity int) *Ring {
	if capacity < 1 {
		capacity = 1
	}
	return &Ring{records: make([]Record, capacity)}
}

// Add stores r, evicting the oldest record when full, and returns it with
// its assigned ID.
func (r *Ring) Add(rec Record) Record {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.lastID++
	rec.ID = r.lastID

	r.records[r.next] = rec
	r.next = (r.next + 1) % len(r.records)
	if r.next == 0 {
		r.full = true
	}
	return rec
}

// Recent returns up to limit records, newest first. An empty droneID matches
// all records.
func (r *Ring) Recent(droneID string, limit int) []Record {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]Record, 0, min(limit, r.lenLocked()))
	for i := 1; i <= r.lenLocked() && len(out) < limit; i++ {
		idx := (r.next - i + len(r.records)) % len(r.records)
		if droneID != "" && r.records[idx].DroneID != droneID {
			continue
		}
		out = append(out, r.records[idx])
	}
	return out
}

// Len returns the number of stored records
func (r *Ring) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.lenLocked()
}

// Total returns the number of records ever added
func (r *Ring) Total() int64 {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.lastID
}

func (r *Ring) lenLocked() int {
	if r.full {
		return len(r.records)
	}
	return r.next
}
