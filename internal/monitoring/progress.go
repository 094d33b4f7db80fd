package monitoring

import (
	"time"

	"github.com/banshee-data/photonsim/internal/timeutil"
)

// Progress logs a throttled "events processed" line while a run is in
// progress. The zero value logs nothing.
type Progress struct {
	Every int // log every Every events; <= 0 disables
	Label string
	Clock timeutil.Clock

	start time.Time
	count int
}

// NewProgress returns a Progress that logs every n events.
func NewProgress(label string, n int) *Progress {
	return NewProgressWithClock(label, n, timeutil.RealClock{})
}

// NewProgressWithClock is NewProgress with an explicit time source.
func NewProgressWithClock(label string, n int, clock timeutil.Clock) *Progress {
	return &Progress{Every: n, Label: label, Clock: clock, start: clock.Now()}
}

// Tick records one finished event and reports whether a line was logged.
func (p *Progress) Tick() bool {
	p.count++
	if p.Every <= 0 || p.count%p.Every != 0 || p.Clock == nil {
		return false
	}
	elapsed := p.Clock.Since(p.start)
	rate := 0.0
	if s := elapsed.Seconds(); s > 0 {
		rate = float64(p.count) / s
	}
	Logf("%s: %d events in %s (%.1f events/s)", p.Label, p.count, elapsed.Round(time.Millisecond), rate)
	return true
}

// Count returns the number of ticks so far.
func (p *Progress) Count() int { return p.count }
