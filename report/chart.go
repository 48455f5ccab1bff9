package report

import (
	"os"

	"github.com/go-echarts/go-echarts/v2/charts"
	"github.com/go-echarts/go-echarts/v2/components"
	"github.com/go-echarts/go-echarts/v2/opts"
	"github.com/go-echarts/go-echarts/v2/types"
	"github.com/pkg/errors"
	"github.com/samber/lo"
)

// WriteChart renders a stacked bar chart of retained and contaminant reads
// per replicate to an HTML page at path. Rows without read counts are left
// out.
func WriteChart(path string, rows []Row) error {
	counted := lo.Filter(rows, func(r Row, _ int) bool { return r.Counted() })
	if len(counted) == 0 {
		return errors.New("no replicate has read counts")
	}

	bar := charts.NewBar()
	bar.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{Theme: types.ThemeWesteros}),
		charts.WithTitleOpts(opts.Title{Title: "Reads per replicate"}),
		charts.WithYAxisOpts(opts.YAxis{Name: "Reads"}),
		charts.WithXAxisOpts(opts.XAxis{Name: "Replicate"}),
	)
	retained := lo.Map(counted, func(r Row, _ int) opts.BarData { return opts.BarData{Value: r.Retained} })
	contaminant := lo.Map(counted, func(r Row, _ int) opts.BarData { return opts.BarData{Value: r.Contaminant} })
	bar.SetXAxis(lo.Map(counted, func(r Row, _ int) string { return r.Replicate })).
		AddSeries("retained", retained).
		AddSeries("contaminant", contaminant).
		SetSeriesOptions(charts.WithBarChartOpts(opts.BarChart{Stack: "reads"}))

	page := components.NewPage()
	page.AddCharts(bar)

	f, err := os.Create(path)
	if err != nil {
		return errors.Wrapf(err, "creating %s", path)
	}
	if err := page.Render(f); err != nil {
		f.Close()
		return errors.Wrapf(err, "rendering %s", path)
	}
	return f.Close()
}
