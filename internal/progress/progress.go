// Package progress reports running throughput and ETA for batch work.
package progress

import (
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
)

// Snapshot is the state of a tracker after an update.
type Snapshot struct {
	Processed int
	Total     int
	Elapsed   time.Duration
	Rate      float64 // items per second
	ETA       time.Duration
}

// Percent returns completion in [0, 100].
func (s Snapshot) Percent() float64 {
	if s.Total <= 0 {
		return 100
	}
	return float64(s.Processed) / float64(s.Total) * 100
}

func (s Snapshot) String() string {
	return fmt.Sprintf("%d/%d (%.1f%%) %.1f/s eta %s",
		s.Processed, s.Total, s.Percent(), s.Rate, s.ETA.Round(time.Second))
}

// Tracker counts processed items against a known total and logs a progress
// line on every update.
type Tracker struct {
	mu        sync.Mutex
	name      string
	total     int
	processed int
	start     time.Time
	now       func() time.Time
	log       *zap.Logger
}

// New starts a tracker for total items.
func New(name string, total int) *Tracker {
	return newWithClock(name, total, time.Now)
}

func newWithClock(name string, total int, now func() time.Time) *Tracker {
	return &Tracker{
		name:  name,
		total: total,
		start: now(),
		now:   now,
		log:   zap.L().With(zap.String("component", "progress"), zap.String("task", name)),
	}
}

// Add records n more processed items and logs the new state.
func (t *Tracker) Add(n int) Snapshot {
	t.mu.Lock()
	t.processed += n
	s := t.snapshotLocked()
	t.mu.Unlock()

	t.log.Info(t.name+" progress",
		zap.Int("processed", s.Processed),
		zap.Int("total", s.Total),
		zap.Float64("percent", s.Percent()),
		zap.Float64("rate_per_sec", s.Rate),
		zap.Duration("elapsed", s.Elapsed),
		zap.Duration("eta", s.ETA),
	)
	return s
}

// Snapshot returns the current state without logging.
func (t *Tracker) Snapshot() Snapshot {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.snapshotLocked()
}

func (t *Tracker) snapshotLocked() Snapshot {
	elapsed := t.now().Sub(t.start)
	s := Snapshot{Processed: t.processed, Total: t.total, Elapsed: elapsed}
	if elapsed > 0 {
		s.Rate = float64(t.processed) / elapsed.Seconds()
	}
	if remaining := t.total - t.processed; remaining > 0 && s.Rate > 0 {
		s.ETA = time.Duration(float64(remaining) / s.Rate * float64(time.Second))
	}
	return s
}
