package cmd

import (
	"os"

	"github.com/MeKo-Tech/spotit/internal/bridge"
	"github.com/MeKo-Tech/spotit/internal/config"
	"github.com/MeKo-Tech/spotit/internal/logging"
	"github.com/MeKo-Tech/spotit/internal/version"
	"github.com/spf13/cobra"
)

// newBridge builds the bridge used by every subcommand. Tests replace it.
var newBridge = func(cfg config.Config) *bridge.Bridge {
	return bridge.New(bridge.Options{Config: cfg})
}

// NewRootCommand builds the command tree with a fresh configuration loader.
func NewRootCommand() *cobra.Command {
	var cfgFile string
	loader := config.NewLoader()
	cfg := config.DefaultConfig()

	root := &cobra.Command{
		Use:   "spotit",
		Short: "Diagnostics for the spotit symbol detector",
		Long: `spotit drives the same bridge that backs libspotit, the C ABI of the
symbol detector. Use it to check that ONNX Runtime and a model load, and to
run detection on image files.

Examples:
  spotit status
  spotit detect model.onnx photo.png
  spotit detect model.onnx *.jpg --channels 1 --format json
  spotit bench model.onnx photo.png -n 50
  spotit config init`,
		Version:       version.String(),
		SilenceUsage:  true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			loaded, err := loader.LoadWithFile(cfgFile)
			if err != nil {
				return err
			}
			cfg = *loaded
			if verbose, _ := cmd.Flags().GetBool("verbose"); verbose {
				cfg.LogLevel = "debug"
			}

			logging.Install()
			logging.SetOutput(cmd.ErrOrStderr())
			logging.SetMinLevel(cfg.Level())
			return nil
		},
	}

	pf := root.PersistentFlags()
	pf.StringVar(&cfgFile, "config", "", "config file (default is search in ., $HOME, $HOME/.config/spotit, /etc/spotit)")
	pf.BoolP("verbose", "v", false, "verbose output (equivalent to --log-level=debug)")
	pf.String("log-level", cfg.LogLevel, "log level (debug, info, warn, error)")
	pf.String("models-dir", "", "directory searched for bare model names (default $SPOTIT_MODELS_DIR or ./models)")
	pf.String("onnx-lib", "", "path to the ONNX Runtime shared library")
	pf.Bool("gpu", false, "use the CUDA execution provider when available")
	pf.String("labels", "", "label file mapping class ids to symbols (.txt or .yaml)")
	pf.String("busy-policy", cfg.Detector.BusyPolicy, "concurrent detection on one handle: block or fail")

	v := loader.Viper()
	_ = v.BindPFlag("log_level", pf.Lookup("log-level"))
	_ = v.BindPFlag("models_dir", pf.Lookup("models-dir"))
	_ = v.BindPFlag("onnx.library_path", pf.Lookup("onnx-lib"))
	_ = v.BindPFlag("gpu.enabled", pf.Lookup("gpu"))
	_ = v.BindPFlag("detector.labels_path", pf.Lookup("labels"))
	_ = v.BindPFlag("detector.busy_policy", pf.Lookup("busy-policy"))

	root.AddCommand(
		newStatusCommand(&cfg),
		newDetectCommand(&cfg),
		newBenchCommand(&cfg),
		newModelsCommand(&cfg),
		newConfigCommand(loader, &cfg),
	)
	return root
}

// Execute runs the command tree and exits non-zero on error.
func Execute() {
	if err := NewRootCommand().Execute(); err != nil {
		os.Exit(1)
	}
}
