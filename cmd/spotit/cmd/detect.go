package cmd

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"

	"github.com/MeKo-Tech/spotit/internal/batch"
	"github.com/MeKo-Tech/spotit/internal/bridge"
	"github.com/MeKo-Tech/spotit/internal/config"
	"github.com/MeKo-Tech/spotit/internal/models"
	"github.com/MeKo-Tech/spotit/internal/registry"
	"github.com/MeKo-Tech/spotit/internal/utils"
	"github.com/spf13/cobra"
)

const (
	outputFormatText = "text"
	outputFormatJSON = "json"
)

// cliContext is the error-store context used by the CLI's single caller.
const cliContext bridge.ContextID = 0

type detectOptions struct {
	channels  int
	maxSide   int
	format    string
	workers   int
	recursive bool
	include   []string
	exclude   []string
}

type symbolJSON struct {
	Symbol     string     `json:"symbol"`
	Confidence float32    `json:"confidence"`
	Box        [4]float32 `json:"box"`
}

type imageResultJSON struct {
	Image   string       `json:"image"`
	Width   int          `json:"width,omitempty"`
	Height  int          `json:"height,omitempty"`
	Result  string       `json:"result"`
	Symbols []symbolJSON `json:"symbols"`
	Error   string       `json:"error,omitempty"`
}

func newDetectCommand(cfg *config.Config) *cobra.Command {
	opts := detectOptions{channels: 3, format: outputFormatText}

	cmd := &cobra.Command{
		Use:   "detect <model> <image|dir>...",
		Short: "Run symbol detection on image files",
		Long: `Load a model and run detection on one or more images, printing the
same result string libspotit returns. Directories are scanned for images.
A bare model name is looked up in the models directory.

Supported formats: JPEG, PNG, BMP

Examples:
  spotit detect model.onnx photo.png
  spotit detect symbols ./scans --recursive --workers 4
  spotit detect model.onnx a.jpg b.jpg --max-side 640 --format json`,
		Args: cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			switch opts.format {
			case outputFormatText, outputFormatJSON:
			default:
				return fmt.Errorf("unsupported format %q (use text or json)", opts.format)
			}

			files, err := batch.Discover(args[1:], batch.Options{
				Recursive:       opts.recursive,
				IncludePatterns: opts.include,
				ExcludePatterns: opts.exclude,
			})
			if err != nil {
				return err
			}
			if len(files) == 0 {
				return errors.New("no image files found")
			}

			b := newBridge(*cfg)
			defer func() { _ = b.Shutdown() }()

			h := b.InitDetector(cliContext, models.ResolveModelPath(cfg.ModelsDir, args[0]))
			if h == 0 {
				return errors.New(b.LastError(cliContext))
			}
			defer b.FreeDetector(cliContext, h)

			// Each worker reports errors under its own context.
			results := batch.Run(files, opts.workers, func(worker int, path string) imageResultJSON {
				return detectImage(b, bridge.ContextID(worker+1), h, path, opts)
			})
			failed := 0
			for _, r := range results {
				if r.Error != "" {
					failed++
					slog.Error("detection failed", "image", r.Image, "error", r.Error)
				}
			}

			if err := writeResults(cmd.OutOrStdout(), results, opts.format); err != nil {
				return err
			}
			if failed > 0 {
				return fmt.Errorf("%d of %d image(s) failed", failed, len(results))
			}
			return nil
		},
	}

	f := cmd.Flags()
	f.IntVar(&opts.channels, "channels", opts.channels, "channels to feed the model: 1 (gray), 3 (RGB) or 4 (RGBA)")
	f.IntVar(&opts.maxSide, "max-side", 0, "downscale images so neither side exceeds this (0 keeps the original size)")
	f.StringVarP(&opts.format, "format", "f", opts.format, "output format: text or json")
	f.IntVarP(&opts.workers, "workers", "w", 1, "images processed in parallel (0 = one per CPU)")
	f.BoolVarP(&opts.recursive, "recursive", "r", false, "scan directories recursively")
	f.StringSliceVar(&opts.include, "include", nil, "file patterns to include when scanning directories (e.g. *.png)")
	f.StringSliceVar(&opts.exclude, "exclude", nil, "file patterns to exclude")
	return cmd
}

func detectImage(b *bridge.Bridge, ctx bridge.ContextID, h registry.Handle, path string, opts detectOptions) imageResultJSON {
	r := imageResultJSON{Image: path, Symbols: []symbolJSON{}}
	if !utils.IsSupportedImage(path) {
		r.Error = "unsupported image format"
		return r
	}
	img, err := utils.LoadImage(path)
	if err != nil {
		r.Error = err.Error()
		return r
	}
	data, w, ht, err := utils.Interleave(utils.FitImage(img, opts.maxSide), opts.channels)
	if err != nil {
		r.Error = err.Error()
		return r
	}
	r.Width, r.Height = w, ht

	result, ok := b.DetectSymbols(ctx, h, data, w, ht, opts.channels)
	if !ok {
		r.Error = b.LastError(ctx)
		return r
	}
	r.Result = result

	dets, err := bridge.ParseDetections(result)
	if err != nil {
		r.Error = err.Error()
		return r
	}
	for _, d := range dets {
		r.Symbols = append(r.Symbols, symbolJSON{
			Symbol:     d.Symbol,
			Confidence: d.Confidence,
			Box:        [4]float32{d.X1, d.Y1, d.X2, d.Y2},
		})
	}
	return r
}

func writeResults(w io.Writer, results []imageResultJSON, format string) error {
	if format == outputFormatJSON {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(results)
	}
	for _, r := range results {
		switch {
		case r.Error != "":
			_, _ = fmt.Fprintf(w, "%s\terror: %s\n", r.Image, r.Error)
		case r.Result == "":
			_, _ = fmt.Fprintf(w, "%s\t(no symbols)\n", r.Image)
		default:
			_, _ = fmt.Fprintf(w, "%s\t%s\n", r.Image, r.Result)
		}
	}
	return nil
}
