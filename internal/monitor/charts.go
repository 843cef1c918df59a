package monitor

import (
	"bytes"
	"fmt"
	"image/color"
	"net/http"

	"github.com/go-echarts/go-echarts/v2/charts"
	"github.com/go-echarts/go-echarts/v2/opts"
	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"
	"gonum.org/v1/plot/vg/draw"

	"github.com/banshee-data/vrlink/internal/httputil"
	"github.com/banshee-data/vrlink/internal/trajectory"
)

// Series names, keyed by point highlight.
var highlightSeries = []string{"normal", "hovered", "selected"}

// handleTrajectoryChart renders the active trajectory seen from above (X
// against Z) as an interactive scatter, one series per highlight state.
func (ws *WebServer) handleTrajectoryChart(w http.ResponseWriter, r *http.Request) {
	v := ws.backend.TrajectoryView()
	if v == nil || len(v.Points) == 0 {
		httputil.WriteJSONError(w, http.StatusNotFound, "no trajectory received yet")
		return
	}

	series := make(map[string][]opts.ScatterData, len(highlightSeries))
	for _, p := range v.Points {
		series[p.Highlight] = append(series[p.Highlight], opts.ScatterData{
			Name:  fmt.Sprintf("#%d", p.Index),
			Value: []interface{}{p.X, p.Z, p.Y},
		})
	}

	scatter := charts.NewScatter()
	scatter.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{PageTitle: "vrlink trajectory", Theme: "dark", Width: "900px", Height: "900px"}),
		charts.WithTitleOpts(opts.Title{
			Title:    "Active trajectory (top-down)",
			Subtitle: fmt.Sprintf("frame=%d points=%d selected=%d hovered=%d mode=%s space=%s", v.Frame, len(v.Points), v.Selected, v.Hovered, v.Mode, v.Space),
		}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true)}),
		charts.WithLegendOpts(opts.Legend{Show: opts.Bool(true)}),
		charts.WithXAxisOpts(opts.XAxis{Name: "X (m)", NameLocation: "middle", NameGap: 25}),
		charts.WithYAxisOpts(opts.YAxis{Name: "Z (m)", NameLocation: "middle", NameGap: 30}),
	)
	for i, name := range highlightSeries {
		if len(series[name]) == 0 {
			continue
		}
		scatter.AddSeries(name, series[name], charts.WithScatterChartOpts(opts.ScatterChart{SymbolSize: 6 + 4*i}))
	}

	var buf bytes.Buffer
	if err := scatter.Render(&buf); err != nil {
		httputil.WriteJSONError(w, http.StatusInternalServerError, fmt.Sprintf("failed to render chart: %v", err))
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	_, _ = w.Write(buf.Bytes())
}

// handleTrajectoryPNG draws the same top-down view with gonum/plot.
func (ws *WebServer) handleTrajectoryPNG(w http.ResponseWriter, r *http.Request) {
	v := ws.backend.TrajectoryView()
	if v == nil || len(v.Points) == 0 {
		httputil.WriteJSONError(w, http.StatusNotFound, "no trajectory received yet")
		return
	}

	var buf bytes.Buffer
	if err := renderTrajectoryPNG(v, &buf); err != nil {
		httputil.WriteJSONError(w, http.StatusInternalServerError, err.Error())
		return
	}
	w.Header().Set("Content-Type", "image/png")
	_, _ = w.Write(buf.Bytes())
}

func renderTrajectoryPNG(v *trajectory.View, out *bytes.Buffer) error {
	p := plot.New()
	p.Title.Text = fmt.Sprintf("Trajectory frame %d", v.Frame)
	p.X.Label.Text = "X (m)"
	p.Y.Label.Text = "Z (m)"
	p.Add(plotter.NewGrid())

	path := make(plotter.XYs, len(v.Points))
	for i, pt := range v.Points {
		path[i].X, path[i].Y = pt.X, pt.Z
	}
	if len(path) > 1 {
		line, err := plotter.NewLine(path)
		if err != nil {
			return fmt.Errorf("failed to create line: %w", err)
		}
		line.Width = vg.Points(1)
		line.Color = color.RGBA{R: 128, G: 128, B: 128, A: 255}
		p.Add(line)
	}

	points, err := plotter.NewScatter(path)
	if err != nil {
		return fmt.Errorf("failed to create scatter: %w", err)
	}
	points.GlyphStyle.Radius = vg.Points(3)
	points.GlyphStyleFunc = func(i int) draw.GlyphStyle {
		style := points.GlyphStyle
		switch v.Points[i].Highlight {
		case "selected":
			style.Color = color.RGBA{R: 230, G: 60, B: 60, A: 255}
			style.Radius = vg.Points(5)
		case "hovered":
			style.Color = color.RGBA{R: 240, G: 200, B: 40, A: 255}
			style.Radius = vg.Points(4)
		default:
			style.Color = color.RGBA{R: 40, G: 110, B: 220, A: 255}
		}
		return style
	}
	p.Add(points)
	p.Legend.Add("points", points)

	wt, err := p.WriterTo(6*vg.Inch, 6*vg.Inch, "png")
	if err != nil {
		return fmt.Errorf("failed to create png writer: %w", err)
	}
	if _, err := wt.WriteTo(out); err != nil {
		return fmt.Errorf("failed to write png: %w", err)
	}
	return nil
}
