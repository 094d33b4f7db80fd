package report

import (
	"fmt"
	"io"
	"strconv"

	"github.com/go-echarts/go-echarts/v2/charts"
	"github.com/go-echarts/go-echarts/v2/components"
	"github.com/go-echarts/go-echarts/v2/opts"

	"github.com/banshee-data/photonsim/internal/shower"
	"github.com/banshee-data/photonsim/internal/shower/hist"
)

var viridis = []string{"#440154", "#482777", "#3e4989", "#31688e", "#26828e", "#1f9e89", "#35b779", "#6ece58", "#b5de2b", "#fde725"}

// renderHTML writes one page holding the run summary and every histogram.
func (s *Sink) renderHTML(w io.Writer, set *hist.Set) error {
	page := components.NewPage()
	page.AddCharts(s.eventChart(), s.categoryChart())
	for _, h := range set.Hists2D() {
		page.AddCharts(hist2DChart(h))
	}
	page.AddCharts(hist1DChart(set.Wavelength))

	if err := page.Render(w); err != nil {
		return fmt.Errorf("render report: %w", err)
	}
	return nil
}

func (s *Sink) eventChart() *charts.Bar {
	x := make([]string, len(s.events))
	photons := make([]opts.BarData, len(s.events))
	labels := make([]opts.BarData, len(s.events))
	for i, e := range s.events {
		x[i] = strconv.Itoa(e.EventID)
		photons[i] = opts.BarData{Value: e.Photons}
		labels[i] = opts.BarData{Value: e.Labels}
	}

	bar := charts.NewBar()
	bar.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{Width: "100%", Height: "480px"}),
		charts.WithTitleOpts(opts.Title{Title: "Events", Subtitle: fmt.Sprintf("events=%d", len(s.events))}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true)}),
		charts.WithLegendOpts(opts.Legend{Show: opts.Bool(true)}),
		charts.WithXAxisOpts(opts.XAxis{Name: "Event", NameLocation: "middle", NameGap: 25}),
	)
	bar.SetXAxis(x).
		AddSeries("photons", photons).
		AddSeries("labels", labels)
	return bar
}

func (s *Sink) categoryChart() *charts.Bar {
	x := make([]string, 0, len(shower.Categories))
	y := make([]opts.BarData, 0, len(shower.Categories))
	for _, c := range shower.Categories {
		x = append(x, c.String())
		y = append(y, opts.BarData{Value: s.category[c]})
	}

	bar := charts.NewBar()
	bar.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{Width: "100%", Height: "480px"}),
		charts.WithTitleOpts(opts.Title{Title: "Classified tracks", Subtitle: "summed over the run"}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true)}),
	)
	bar.SetXAxis(x).
		AddSeries("tracks", y,
			charts.WithLabelOpts(opts.Label{Show: opts.Bool(true), Position: "top"}),
		)
	return bar
}

// hist2DChart plots the non-empty bins of h as a scatter coloured by count.
func hist2DChart(h *hist.Hist2D) *charts.Scatter {
	xc, yc := h.XCenters(), h.YCenters()
	nx, ny := h.Dims()
	data := make([]opts.ScatterData, 0)
	for iy := range ny {
		for ix := range nx {
			if c := h.At(ix, iy); c > 0 {
				data = append(data, opts.ScatterData{Value: []interface{}{xc[ix], yc[iy], c}})
			}
		}
	}

	scatter := charts.NewScatter()
	scatter.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{Width: "900px", Height: "700px"}),
		charts.WithTitleOpts(opts.Title{Title: h.Name, Subtitle: fmt.Sprintf("entries=%d outside=%g bins=%d", h.Entries, h.Outside, len(data))}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true)}),
		charts.WithXAxisOpts(opts.XAxis{Min: h.XEdges[0], Max: h.XEdges[nx], Name: h.XLabel, NameLocation: "middle", NameGap: 25}),
		charts.WithYAxisOpts(opts.YAxis{Min: h.YEdges[0], Max: h.YEdges[ny], Name: h.YLabel, NameLocation: "middle", NameGap: 40}),
		charts.WithVisualMapOpts(opts.VisualMap{
			Show:       opts.Bool(true),
			Calculable: opts.Bool(true),
			Min:        0,
			Max:        float32(max(h.Max(), 1)),
			Dimension:  "2",
			InRange:    &opts.VisualMapInRange{Color: viridis},
		}),
	)
	scatter.AddSeries(h.Name, data, charts.WithScatterChartOpts(opts.ScatterChart{SymbolSize: 4}))
	return scatter
}

func hist1DChart(h *hist.Hist1D) *charts.Bar {
	centers := h.Centers()
	x := make([]string, len(centers))
	y := make([]opts.BarData, len(centers))
	for i, c := range centers {
		x[i] = strconv.FormatFloat(c, 'f', 1, 64)
		y[i] = opts.BarData{Value: h.Counts[i]}
	}

	bar := charts.NewBar()
	bar.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{Width: "100%", Height: "480px"}),
		charts.WithTitleOpts(opts.Title{Title: h.Name, Subtitle: fmt.Sprintf("entries=%d under=%g over=%g", h.Entries, h.Underflow, h.Overflow)}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true)}),
		charts.WithXAxisOpts(opts.XAxis{Name: h.XLabel, NameLocation: "middle", NameGap: 25}),
	)
	bar.SetXAxis(x).AddSeries(h.Name, y)
	return bar
}
