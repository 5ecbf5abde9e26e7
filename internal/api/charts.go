package api

import (
	"bytes"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-echarts/go-echarts/v2/charts"
	"github.com/go-echarts/go-echarts/v2/opts"
)

const echartsAssetsHost = "https://go-echarts.github.io/go-echarts-assets/assets/"

func renderChart(c *gin.Context, chart interface{ Render(w io.Writer) error }) {
	var buf bytes.Buffer
	if err := chart.Render(&buf); err != nil {
		abortError(c, http.StatusInternalServerError, fmt.Errorf("failed to render chart: %w", err))
		return
	}
	c.Data(http.StatusOK, "text/html; charset=utf-8", buf.Bytes())
}

// entitiesChart plots entity positions in world units, one series per kind.
func (s *Server) entitiesChart(c *gin.Context) {
	ents := s.v.Entities()
	series := make(map[string][]opts.ScatterData)
	var kinds []string
	for _, e := range ents {
		k := string(e.Kind)
		if _, ok := series[k]; !ok {
			kinds = append(kinds, k)
		}
		series[k] = append(series[k], opts.ScatterData{Value: []interface{}{e.X, e.Y}, Name: e.ID})
	}
	st := s.v.State()

	scatter := charts.NewScatter()
	scatter.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{PageTitle: "Map Entities", Theme: "dark", Width: "900px", Height: "900px", AssetsHost: echartsAssetsHost}),
		charts.WithTitleOpts(opts.Title{Title: "Entities", Subtitle: fmt.Sprintf("course=%d count=%d", st.CourseID, len(ents))}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true)}),
		charts.WithXAxisOpts(opts.XAxis{Name: "X", NameLocation: "middle", NameGap: 25}),
		charts.WithYAxisOpts(opts.YAxis{Name: "Y", NameLocation: "middle", NameGap: 30}),
	)
	for _, k := range kinds {
		scatter.AddSeries(k, series[k], charts.WithScatterChartOpts(opts.ScatterChart{SymbolSize: 6}))
	}
	renderChart(c, scatter)
}

// framesChart plots recent frame render times.
func (s *Server) framesChart(c *gin.Context) {
	frames := s.v.FrameStats()
	x := make([]string, len(frames))
	durations := make([]opts.LineData, len(frames))
	entities := make([]opts.LineData, len(frames))
	for i, f := range frames {
		x[i] = f.At.Format("15:04:05.000")
		durations[i] = opts.LineData{Value: float64(f.Duration) / float64(time.Millisecond)}
		entities[i] = opts.LineData{Value: f.Entities}
	}

	line := charts.NewLine()
	line.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{PageTitle: "Map Frames", Width: "100%", Height: "600px", AssetsHost: echartsAssetsHost}),
		charts.WithTitleOpts(opts.Title{Title: "Frame timing", Subtitle: fmt.Sprintf("frames=%d", len(frames))}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true), Trigger: "axis"}),
		charts.WithYAxisOpts(opts.YAxis{Name: "ms"}),
	)
	line.SetXAxis(x).
		AddSeries("render ms", durations).
		AddSeries("entities", entities)
	renderChart(c, line)
}
