// Package hist accumulates the run-level photon and energy-deposit
// histograms that replace per-photon records when individual storage is
// disabled.
package hist

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"
)

// Histogram names as persisted by sinks.
const (
	NameAngleDistance  = "PhotonHist_AngleDistance"
	NameTimeDistance   = "PhotonHist_TimeDistance"
	NameWavelength     = "PhotonHist_Wavelength"
	NameDistanceEnergy = "EdepHist_DistanceEnergy"
)

// Hist1D is a fixed-width one-dimensional histogram.
type Hist1D struct {
	Name   string
	XLabel string
	Edges  []float64 // len(Counts)+1
	Counts []float64

	Underflow float64
	Overflow  float64
	Entries   int
}

// NewHist1D creates a histogram with bins equal-width bins over [min, max).
func NewHist1D(name, xlabel string, bins int, min, max float64) *Hist1D {
	return &Hist1D{
		Name:   name,
		XLabel: xlabel,
		Edges:  floats.Span(make([]float64, bins+1), min, max),
		Counts: make([]float64, bins),
	}
}

// Fill adds one entry at x.
func (h *Hist1D) Fill(x float64) {
	h.Entries++
	switch i := floats.Within(h.Edges, x); {
	case i >= 0:
		h.Counts[i]++
	case x < h.Edges[0]:
		h.Underflow++
	default:
		// x >= max or NaN
		h.Overflow++
	}
}

// Centers returns the bin centres.
func (h *Hist1D) Centers() []float64 {
	return centers(h.Edges)
}

// Mean returns the count-weighted mean of the bin centres, or NaN when the
// histogram holds no in-range entries.
func (h *Hist1D) Mean() float64 {
	if floats.Sum(h.Counts) == 0 {
		return math.NaN()
	}
	return stat.Mean(h.Centers(), h.Counts)
}

// Hist2D is a fixed-width two-dimensional histogram stored row-major
// (y index outer).
type Hist2D struct {
	Name   string
	XLabel string
	YLabel string
	XEdges []float64
	YEdges []float64
	Counts []float64

	Outside float64 // entries that fell outside either axis
	Entries int
}

// NewHist2D creates a histogram with nx by ny equal-width bins.
func NewHist2D(name, xlabel, ylabel string, nx int, xmin, xmax float64, ny int, ymin, ymax float64) *Hist2D {
	return &Hist2D{
		Name:   name,
		XLabel: xlabel,
		YLabel: ylabel,
		XEdges: floats.Span(make([]float64, nx+1), xmin, xmax),
		YEdges: floats.Span(make([]float64, ny+1), ymin, ymax),
		Counts: make([]float64, nx*ny),
	}
}

// Fill adds one entry at (x, y).
func (h *Hist2D) Fill(x, y float64) {
	h.Entries++
	ix := floats.Within(h.XEdges, x)
	iy := floats.Within(h.YEdges, y)
	if ix < 0 || iy < 0 {
		h.Outside++
		return
	}
	nx, _ := h.Dims()
	h.Counts[iy*nx+ix]++
}

// Dims returns the number of bins along x and y.
func (h *Hist2D) Dims() (nx, ny int) {
	return len(h.XEdges) - 1, len(h.YEdges) - 1
}

// At returns the count of bin (ix, iy).
func (h *Hist2D) At(ix, iy int) float64 {
	nx, _ := h.Dims()
	return h.Counts[iy*nx+ix]
}

// XCenters returns the x bin centres.
func (h *Hist2D) XCenters() []float64 { return centers(h.XEdges) }

// YCenters returns the y bin centres.
func (h *Hist2D) YCenters() []float64 { return centers(h.YEdges) }

// Max returns the largest bin count.
func (h *Hist2D) Max() float64 {
	if len(h.Counts) == 0 {
		return 0
	}
	return floats.Max(h.Counts)
}

func centers(edges []float64) []float64 {
	if len(edges) < 2 {
		return nil
	}
	out := make([]float64, len(edges)-1)
	for i := range out {
		out[i] = 0.5 * (edges[i] + edges[i+1])
	}
	return out
}

// Binning configures the histogram set.
type Binning struct {
	AngleBins      int
	DistanceBins   int
	DistanceMaxMM  float64
	TimeBins       int
	TimeMaxNs      float64
	WavelengthBins int
	WavelengthMin  float64 // nm
	WavelengthMax  float64 // nm
	EdepBins       int
	EdepMaxKeV     float64
}

// DefaultBinning returns the binning used when no configuration is loaded.
func DefaultBinning() Binning {
	return Binning{
		AngleBins:      180,
		DistanceBins:   200,
		DistanceMaxMM:  10000,
		TimeBins:       200,
		TimeMaxNs:      100,
		WavelengthBins: 120,
		WavelengthMin:  200,
		WavelengthMax:  800,
		EdepBins:       100,
		EdepMaxKeV:     1000,
	}
}

// Validate checks that every axis has at least one bin and a positive range.
func (b Binning) Validate() error {
	axes := []struct {
		name     string
		bins     int
		min, max float64
	}{
		{"angle", b.AngleBins, 0, math.Pi},
		{"distance", b.DistanceBins, 0, b.DistanceMaxMM},
		{"time", b.TimeBins, 0, b.TimeMaxNs},
		{"wavelength", b.WavelengthBins, b.WavelengthMin, b.WavelengthMax},
		{"edep", b.EdepBins, 0, b.EdepMaxKeV},
	}
	for _, a := range axes {
		if a.bins < 1 {
			return fmt.Errorf("%s bins must be positive, got %d", a.name, a.bins)
		}
		if !(a.max > a.min) {
			return fmt.Errorf("%s range [%g, %g) is empty", a.name, a.min, a.max)
		}
	}
	return nil
}

// Set holds the four run-level histograms.
type Set struct {
	AngleDistance  *Hist2D // photon angle to primary direction (rad) vs distance from vertex (mm)
	TimeDistance   *Hist2D // photon time (ns) vs distance (mm)
	Wavelength     *Hist1D // photon wavelength (nm)
	DistanceEnergy *Hist2D // deposit distance (mm) vs energy (keV)
}

// NewSet creates empty histograms with binning b.
func NewSet(b Binning) *Set {
	return &Set{
		AngleDistance: NewHist2D(NameAngleDistance, "Angle (rad)", "Distance (mm)",
			b.AngleBins, 0, math.Pi, b.DistanceBins, 0, b.DistanceMaxMM),
		TimeDistance: NewHist2D(NameTimeDistance, "Time (ns)", "Distance (mm)",
			b.TimeBins, 0, b.TimeMaxNs, b.DistanceBins, 0, b.DistanceMaxMM),
		Wavelength: NewHist1D(NameWavelength, "Wavelength (nm)",
			b.WavelengthBins, b.WavelengthMin, b.WavelengthMax),
		DistanceEnergy: NewHist2D(NameDistanceEnergy, "Distance (mm)", "Energy (keV)",
			b.DistanceBins, 0, b.DistanceMaxMM, b.EdepBins, 0, b.EdepMaxKeV),
	}
}

// FillPhoton records one photon.
func (s *Set) FillPhoton(angleRad, distanceMM, timeNs, wavelengthNm float64) {
	s.AngleDistance.Fill(angleRad, distanceMM)
	s.TimeDistance.Fill(timeNs, distanceMM)
	s.Wavelength.Fill(wavelengthNm)
}

// FillDeposit records one energy deposit.
func (s *Set) FillDeposit(distanceMM, energyKeV float64) {
	s.DistanceEnergy.Fill(distanceMM, energyKeV)
}

// Hists2D returns the two-dimensional histograms in a stable order.
func (s *Set) Hists2D() []*Hist2D {
	return []*Hist2D{s.AngleDistance, s.TimeDistance, s.DistanceEnergy}
}
