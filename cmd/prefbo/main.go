// Command prefbo reproduces the synthetic preference-optimization study:
// it compares the noisy-expected-improvement query strategy against random
// exploration over several independent trials and writes the convergence
// plot to convergence.png.
package main

import (
	"os"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/thalesfsp/pbo"
)

const plotPath = "convergence.png"

func main() {
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})

	cfg := pbo.DefaultConfig()

	progress := make(chan pbo.ProgressUpdate, cfg.NumTrials*(cfg.NumBatches+1)*4)
	cfg.ProgressChan = progress

	drained := make(chan struct{})

	go func() {
		defer close(drained)

		for update := range progress {
			log.Debug().
				Str("strategy", update.Strategy).
				Int("trial", update.Trial).
				Int("batch", update.Batch).
				Float64("bestValue", update.BestValue).
				Msg("progress")
		}
	}()

	log.Info().
		Int("trials", cfg.NumTrials).
		Int("batches", cfg.NumBatches).
		Int("dim", cfg.Dim).
		Int("q", cfg.Q).
		Int("qComp", cfg.QComp).
		Float64("noise", cfg.Noise).
		Msg("starting preference optimization study")

	results, err := pbo.RunTrials(cfg, pbo.DefaultStrategies(cfg)...)
	if err != nil {
		log.Fatal().Err(err).Msg("study failed")
	}

	close(progress)
	<-drained

	summaries := make(map[string]pbo.TrajectorySummary, len(results))

	for name, trajectories := range results {
		summary, err := pbo.Summarize(trajectories)
		if err != nil {
			log.Fatal().Err(err).Str("strategy", name).Msg("summarize failed")
		}

		summaries[name] = summary

		final := len(summary.Mean) - 1

		log.Info().
			Str("strategy", name).
			Float64("finalMean", summary.Mean[final]).
			Float64("finalHalfWidth", summary.HalfWidth[final]).
			Msg("strategy summary")
	}

	optimal := pbo.OptimalValue(cfg.Dim)

	if err := pbo.PlotTrajectories(plotPath, optimal, summaries); err != nil {
		log.Fatal().Err(err).Msg("plot failed")
	}

	log.Info().
		Str("path", plotPath).
		Float64("optimal", optimal).
		Msg("wrote convergence plot")
}
