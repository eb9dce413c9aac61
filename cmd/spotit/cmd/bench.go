package cmd

import (
	"errors"
	"fmt"

	"github.com/MeKo-Tech/spotit/internal/benchmark"
	"github.com/MeKo-Tech/spotit/internal/config"
	"github.com/MeKo-Tech/spotit/internal/models"
	"github.com/MeKo-Tech/spotit/internal/utils"
	"github.com/spf13/cobra"
)

func newBenchCommand(cfg *config.Config) *cobra.Command {
	var (
		iterations int
		warmup     int
		channels   int
		maxSide    int
	)

	cmd := &cobra.Command{
		Use:   "bench <model> <image>",
		Short: "Measure detection latency on one image",
		Long: `Load a model once and run detection on the same image repeatedly,
reporting mean, median and p95 latency through the bridge.`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			img, err := utils.LoadImage(args[1])
			if err != nil {
				return err
			}
			data, w, h, err := utils.Interleave(utils.FitImage(img, maxSide), channels)
			if err != nil {
				return err
			}

			b := newBridge(*cfg)
			defer func() { _ = b.Shutdown() }()

			handle := b.InitDetector(cliContext, models.ResolveModelPath(cfg.ModelsDir, args[0]))
			if handle == 0 {
				return errors.New(b.LastError(cliContext))
			}
			defer b.FreeDetector(cliContext, handle)

			detect := func() error {
				if _, ok := b.DetectSymbols(cliContext, handle, data, w, h, channels); !ok {
					return errors.New(b.LastError(cliContext))
				}
				return nil
			}
			for range warmup {
				if err := detect(); err != nil {
					return fmt.Errorf("warmup failed: %w", err)
				}
			}

			suite := benchmark.NewSuite()
			suite.Add(fmt.Sprintf("detect %dx%dx%d", w, h, channels), detect)
			results := suite.RunAll(iterations)
			suite.PrintResults(cmd.OutOrStdout())
			if r := results[0]; r.Failures > 0 {
				return fmt.Errorf("%d of %d iteration(s) failed: %w", r.Failures, r.Iterations, r.Err)
			}
			return nil
		},
	}

	f := cmd.Flags()
	f.IntVarP(&iterations, "iterations", "n", 20, "timed detection calls")
	f.IntVar(&warmup, "warmup", 1, "untimed calls before measuring")
	f.IntVar(&channels, "channels", 3, "channels to feed the model: 1, 3 or 4")
	f.IntVar(&maxSide, "max-side", 0, "downscale the image so neither side exceeds this")
	return cmd
}
