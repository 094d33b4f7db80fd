// Package report renders the run-level histograms as PNG plots and as a
// single interactive HTML page.
package report

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/banshee-data/photonsim/internal/monitoring"
	"github.com/banshee-data/photonsim/internal/shower"
	"github.com/banshee-data/photonsim/internal/shower/hist"
)

// HTMLFile is the name of the interactive report inside the output directory.
const HTMLFile = "report.html"

// Sink writes plots when the engine finalizes. Per-event records only feed
// the run summary charts.
type Sink struct {
	dir  string
	png  bool
	html bool

	events   []eventPoint
	category map[shower.Category]int
}

type eventPoint struct {
	EventID int
	Photons int
	Deposit float64 // MeV
	Labels  int
	Splits  int
	Energy  float64 // MeV
}

// Option configures a Sink.
type Option func(*Sink)

// WithPNG toggles the gonum/plot PNG output (default on).
func WithPNG(on bool) Option { return func(s *Sink) { s.png = on } }

// WithHTML toggles the go-echarts HTML output (default on).
func WithHTML(on bool) Option { return func(s *Sink) { s.html = on } }

var _ shower.Sink = (*Sink)(nil)

// NewSink creates dir if needed and returns a Sink writing into it.
func NewSink(dir string, opts ...Option) (*Sink, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create report dir: %w", err)
	}
	s := &Sink{
		dir:      dir,
		png:      true,
		html:     true,
		category: make(map[shower.Category]int),
	}
	for _, o := range opts {
		o(s)
	}
	return s, nil
}

// WriteEvent records the event's summary for the run charts.
func (s *Sink) WriteEvent(_ context.Context, rec *shower.EventRecord) error {
	s.events = append(s.events, eventPoint{
		EventID: rec.EventID,
		Photons: rec.PhotonCount,
		Deposit: rec.TotalDeposit,
		Labels:  rec.Labels.Len(),
		Splits:  rec.Splits,
		Energy:  rec.PrimaryEnergy,
	})
	for c, n := range rec.CategoryCounts {
		s.category[c] += n
	}
	return nil
}

// WriteHistograms renders every histogram of set.
func (s *Sink) WriteHistograms(_ context.Context, set *hist.Set) error {
	if s.png {
		for _, h := range set.Hists2D() {
			if err := SaveHeatMapPNG(h, filepath.Join(s.dir, h.Name+".png")); err != nil {
				return err
			}
		}
		if err := SaveHistPNG(set.Wavelength, filepath.Join(s.dir, set.Wavelength.Name+".png")); err != nil {
			return err
		}
	}
	if s.html {
		path := filepath.Join(s.dir, HTMLFile)
		f, err := os.Create(path)
		if err != nil {
			return fmt.Errorf("create %s: %w", path, err)
		}
		if err := s.renderHTML(f, set); err != nil {
			f.Close()
			return err
		}
		if err := f.Close(); err != nil {
			return fmt.Errorf("close %s: %w", path, err)
		}
	}
	monitoring.Logf("report: wrote %d events of plots to %s", len(s.events), s.dir)
	return nil
}

// Close is a no-op; every file is closed by WriteHistograms.
func (s *Sink) Close() error { return nil }
