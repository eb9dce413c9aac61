package cmd

import (
	"errors"
	"fmt"

	"github.com/MeKo-Tech/spotit/internal/config"
	"github.com/spf13/cobra"
)

func newStatusCommand(cfg *config.Config) *cobra.Command {
	var showMetrics bool

	cmd := &cobra.Command{
		Use:   "status",
		Short: "Print the system status line",
		Long: `Print "version:code:message" as returned by spotitml_get_system_status.
Code 0 is ready, 1 is degraded (for example ONNX Runtime not found), 2 is an
internal error.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			b := newBridge(*cfg)
			defer func() { _ = b.Shutdown() }()

			out := cmd.OutOrStdout()
			_, _ = fmt.Fprintln(out, b.SystemStatus(cliContext))
			if !showMetrics {
				return nil
			}
			text, ok := b.MetricsText(cliContext)
			if !ok {
				return errors.New(b.LastError(cliContext))
			}
			_, _ = fmt.Fprint(out, text)
			return nil
		},
	}
	cmd.Flags().BoolVar(&showMetrics, "metrics", false, "also print the metrics exposition")
	return cmd
}
