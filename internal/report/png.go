package report

import (
	"fmt"
	"image/color"
	"math"

	"gonum.org/v1/plot"
	"gonum.org/v1/plot/palette"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"

	"github.com/banshee-data/photonsim/internal/shower/hist"
)

// heatLevels is the number of palette steps used for 2D histograms.
const heatLevels = 24

// histGrid adapts a Hist2D to plotter.GridXYZ.
type histGrid struct {
	h      *hist.Hist2D
	xc, yc []float64
}

func newHistGrid(h *hist.Hist2D) histGrid {
	return histGrid{h: h, xc: h.XCenters(), yc: h.YCenters()}
}

func (g histGrid) Dims() (c, r int)   { return g.h.Dims() }
func (g histGrid) Z(c, r int) float64 { return g.h.At(c, r) }
func (g histGrid) X(c int) float64    { return g.xc[c] }
func (g histGrid) Y(r int) float64    { return g.yc[r] }

// SaveHeatMapPNG renders a 2D histogram as a heat map.
func SaveHeatMapPNG(h *hist.Hist2D, file string) error {
	p := plot.New()
	p.Title.Text = fmt.Sprintf("%s (%d entries)", h.Name, h.Entries)
	p.X.Label.Text = h.XLabel
	p.Y.Label.Text = h.YLabel

	hm := plotter.NewHeatMap(newHistGrid(h), palette.Heat(heatLevels, 1))
	// An empty histogram still renders, as a flat map.
	hm.Min, hm.Max = 0, math.Max(h.Max(), 1)
	p.Add(hm)

	if err := p.Save(10*vg.Inch, 8*vg.Inch, file); err != nil {
		return fmt.Errorf("save %s: %w", file, err)
	}
	return nil
}

// SaveHistPNG renders a 1D histogram as filled bins.
func SaveHistPNG(h *hist.Hist1D, file string) error {
	p := plot.New()
	p.Title.Text = fmt.Sprintf("%s (%d entries, %g under, %g over)", h.Name, h.Entries, h.Underflow, h.Overflow)
	p.X.Label.Text = h.XLabel
	p.Y.Label.Text = "Photons"

	bins := make([]plotter.HistogramBin, len(h.Counts))
	for i, c := range h.Counts {
		bins[i] = plotter.HistogramBin{Min: h.Edges[i], Max: h.Edges[i+1], Weight: c}
	}
	hp := &plotter.Histogram{
		Bins:      bins,
		Width:     h.Edges[1] - h.Edges[0],
		FillColor: color.RGBA{R: 49, G: 104, B: 142, A: 255},
		LineStyle: plotter.DefaultLineStyle,
	}
	p.Add(hp)

	if mean := h.Mean(); !math.IsNaN(mean) {
		line, err := plotter.NewLine(plotter.XYs{
			{X: mean, Y: 0},
			{X: mean, Y: maxCount(h.Counts)},
		})
		if err != nil {
			return fmt.Errorf("mean line: %w", err)
		}
		line.Color = color.RGBA{R: 253, G: 231, B: 37, A: 255}
		line.Width = vg.Points(1.5)
		p.Add(line)
		p.Legend.Add(fmt.Sprintf("mean %.1f", mean), line)
	}

	if err := p.Save(14*vg.Inch, 6*vg.Inch, file); err != nil {
		return fmt.Errorf("save %s: %w", file, err)
	}
	return nil
}

func maxCount(counts []float64) float64 {
	m := 0.0
	for _, c := range counts {
		m = math.Max(m, c)
	}
	return m
}
