package ui

import (
	"sync"
	"time"
)

// speedInterval is the minimum gap between speed samples.
const speedInterval = 500 * time.Millisecond

// Tracker turns progress updates into rate and ETA. It is safe for
// concurrent use.
type Tracker struct {
	mu    sync.RWMutex
	now   func() time.Time
	start time.Time
	done  int
	total int

	lastDone   int
	lastSample time.Time
	speed      float64
	avgSpeed   float64
	samples    int
}

// Stats is a snapshot of a Tracker.
type Stats struct {
	Done     int
	Total    int
	Progress float64
	Speed    float64
	AvgSpeed float64
	Elapsed  time.Duration
	ETA      time.Duration
}

// NewTracker creates a tracker starting now.
func NewTracker() *Tracker {
	return newTrackerAt(time.Now)
}

func newTrackerAt(now func() time.Time) *Tracker {
	t := now()
	return &Tracker{now: now, start: t, lastSample: t}
}

// Update records done of total.
func (t *Tracker) Update(done, total int) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.done, t.total = done, total

	now := t.now()
	elapsed := now.Sub(t.lastSample)
	if elapsed < speedInterval {
		return
	}
	if delta := done - t.lastDone; delta > 0 {
		t.speed = float64(delta) / elapsed.Seconds()
		t.samples++
		if t.samples == 1 {
			t.avgSpeed = t.speed
		} else {
			t.avgSpeed = 0.2*t.speed + 0.8*t.avgSpeed
		}
	}
	t.lastDone = done
	t.lastSample = now
}

// Stats returns the current snapshot.
func (t *Tracker) Stats() Stats {
	t.mu.RLock()
	defer t.mu.RUnlock()

	s := Stats{
		Done:     t.done,
		Total:    t.total,
		Speed:    t.speed,
		AvgSpeed: t.avgSpeed,
		Elapsed:  t.now().Sub(t.start),
	}
	if t.total > 0 {
		s.Progress = min(float64(t.done)/float64(t.total), 1)
	}
	if t.avgSpeed > 0 && t.done < t.total {
		s.ETA = time.Duration(float64(t.total-t.done) / t.avgSpeed * float64(time.Second))
	}
	return s
}
