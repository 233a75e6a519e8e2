package pbo

import (
	"fmt"
	"math"
	"sort"

	"gonum.org/v1/gonum/stat"
	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/plotutil"
	"gonum.org/v1/plot/vg"
)

//////
// Const, vars, types.
//////

// ciFactor is the 95% confidence multiplier for the sample mean.
const ciFactor = 1.96

// TrajectorySummary aggregates best-observed-value trajectories across
// trials: per batch step, the mean and the 95% confidence half-width of the
// sample mean (1.96 · sample standard deviation / √trials).
type TrajectorySummary struct {
	// Mean is the per-step mean best observed value across trials.
	Mean []float64

	// HalfWidth is the per-step 95% confidence half-width. Zero when only a
	// single trial is available.
	HalfWidth []float64
}

//////
// Exported functionalities.
//////

// Summarize aggregates one strategy's trajectories (one per trial, all of
// equal length) into per-step means and 95% confidence half-widths.
func Summarize(trajectories [][]float64) (TrajectorySummary, error) {
	if len(trajectories) == 0 {
		return TrajectorySummary{}, fmt.Errorf("pbo: no trajectories to summarize")
	}

	steps := len(trajectories[0])

	for i, trajectory := range trajectories {
		if len(trajectory) != steps {
			return TrajectorySummary{}, fmt.Errorf(
				"pbo: trajectory %d has %d steps, want %d", i, len(trajectory), steps,
			)
		}
	}

	summary := TrajectorySummary{
		Mean:      make([]float64, steps),
		HalfWidth: make([]float64, steps),
	}

	column := make([]float64, len(trajectories))

	for step := 0; step < steps; step++ {
		for t, trajectory := range trajectories {
			column[t] = trajectory[step]
		}

		summary.Mean[step] = stat.Mean(column, nil)

		if len(column) > 1 {
			sd := stat.StdDev(column, nil)
			summary.HalfWidth[step] = ciFactor * sd / math.Sqrt(float64(len(column)))
		}
	}

	return summary, nil
}

// PlotTrajectories renders the convergence plot: one error-barred line per
// strategy showing the mean best observed value at each step, against a
// horizontal line at the known global optimum. The output format follows
// the path's extension (e.g. .png, .pdf, .svg).
//
// Summaries without half-widths are drawn with zero-size error bars.
func PlotTrajectories(path string, optimal float64, summaries map[string]TrajectorySummary) error {
	if len(summaries) == 0 {
		return fmt.Errorf("pbo: no summaries to plot")
	}

	p := plot.New()
	p.Title.Text = "Best observed value by number of queries"
	p.X.Label.Text = "Number of queries"
	p.Y.Label.Text = "Best observed value"

	names := make([]string, 0, len(summaries))
	for name := range summaries {
		names = append(names, name)
	}

	sort.Strings(names)

	steps := len(summaries[names[0]].Mean)

	// Known optimum reference line.
	optimalXYs := make(plotter.XYs, steps)
	for i := range optimalXYs {
		optimalXYs[i] = plotter.XY{X: float64(i), Y: optimal}
	}

	optimalLine, err := plotter.NewLine(optimalXYs)
	if err != nil {
		return fmt.Errorf("pbo: optimum line: %w", err)
	}

	optimalLine.Width = vg.Points(1.5)

	p.Add(optimalLine)
	p.Legend.Add("Optimal Function Value", optimalLine)

	for i, name := range names {
		summary := summaries[name]
		if len(summary.Mean) != steps {
			return fmt.Errorf("pbo: summary %q has %d steps, want %d", name, len(summary.Mean), steps)
		}

		// A nil HalfWidth reads as zero spread; a short one is a bug in the
		// caller's aggregation.
		if len(summary.HalfWidth) != 0 && len(summary.HalfWidth) != steps {
			return fmt.Errorf(
				"pbo: summary %q has %d half-widths for %d steps", name, len(summary.HalfWidth), steps,
			)
		}

		xys := make(plotter.XYs, steps)
		yerrs := make(plotter.YErrors, steps)

		for step := 0; step < steps; step++ {
			var hw float64
			if len(summary.HalfWidth) != 0 {
				hw = summary.HalfWidth[step]
			}

			xys[step] = plotter.XY{X: float64(step), Y: summary.Mean[step]}
			yerrs[step] = struct{ Low, High float64 }{Low: hw, High: hw}
		}

		line, err := plotter.NewLine(xys)
		if err != nil {
			return fmt.Errorf("pbo: line %q: %w", name, err)
		}

		line.Width = vg.Points(1.5)
		line.Color = plotutil.Color(i)

		bars, err := plotter.NewYErrorBars(struct {
			plotter.XYs
			plotter.YErrors
		}{xys, yerrs})
		if err != nil {
			return fmt.Errorf("pbo: error bars %q: %w", name, err)
		}

		bars.Color = plotutil.Color(i)

		p.Add(line, bars)
		p.Legend.Add(name, line)
	}

	if err := p.Save(8*vg.Inch, 6*vg.Inch, path); err != nil {
		return fmt.Errorf("pbo: save plot: %w", err)
	}

	return nil
}
