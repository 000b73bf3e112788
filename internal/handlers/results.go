package handlers

import (
	"context"
	"encoding/json"
	"strconv"

	"github.com/go-echarts/go-echarts/v2/charts"
	"github.com/go-echarts/go-echarts/v2/opts"
	"go.uber.org/zap"

	"memtest-go/internal/metrics"
	"memtest-go/internal/repository"
	"memtest-go/internal/session"
	"memtest-go/internal/symbols"
)

// AverageSource provides the per-size means of everyone tested so far.
type AverageSource interface {
	GetSizeAverages(ctx context.Context, v symbols.Variant) ([]repository.SizeAverage, error)
}

// ResultsHandler builds the results chart: the participant's correct count
// per sequence size next to the cohort mean of the same variant.
type ResultsHandler struct {
	log      *zap.Logger
	averages AverageSource
}

func NewResultsHandler(log *zap.Logger, averages AverageSource) *ResultsHandler {
	return &ResultsHandler{log: log, averages: averages}
}

// ChartJSON returns echarts options for the session's results. The cohort
// series is left out when averages cannot be loaded.
func (h *ResultsHandler) ChartJSON(ctx context.Context, s *session.Session) string {
	var averages []repository.SizeAverage
	if h.averages != nil && s.Variant.Valid() {
		var err error
		averages, err = h.averages.GetSizeAverages(ctx, s.Variant)
		if err != nil {
			h.log.Warn("Failed to load cohort averages", zap.String("session_id", s.ID), zap.Error(err))
			averages = nil
		}
	}

	bar := generateResultsChart(s.Measurements(), averages)
	out, err := json.Marshal(bar.JSON())
	if err != nil {
		h.log.Error("Failed to encode chart", zap.String("session_id", s.ID), zap.Error(err))
		return ""
	}
	return string(out)
}

func generateResultsChart(ms []metrics.Measurement, averages []repository.SizeAverage) *charts.Bar {
	bar := charts.NewBar()
	bar.SetGlobalOptions(
		charts.WithTitleOpts(opts.Title{Title: "Correct symbols per sequence length"}),
		charts.WithXAxisOpts(opts.XAxis{Name: "Length"}),
		charts.WithYAxisOpts(opts.YAxis{Type: "value", Name: "Correct", Min: 0}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true), Trigger: "axis"}),
		charts.WithLegendOpts(opts.Legend{Show: opts.Bool(true)}),
	)

	meanBySize := make(map[int]float64, len(averages))
	for _, avg := range averages {
		meanBySize[avg.Size] = avg.MeanCorrect
	}

	labels := make([]string, 0, len(ms))
	own := make([]opts.BarData, 0, len(ms))
	cohort := make([]opts.BarData, 0, len(ms))
	for _, m := range ms {
		labels = append(labels, strconv.Itoa(m.Size))
		own = append(own, opts.BarData{Value: m.Correct})
		cohort = append(cohort, opts.BarData{Value: meanBySize[m.Size]})
	}

	bar.SetXAxis(labels).AddSeries("Your result", own)
	if len(averages) > 0 {
		bar.AddSeries("Mean of all participants", cohort)
	}
	return bar
}
