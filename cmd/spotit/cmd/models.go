package cmd

import (
	"fmt"

	"github.com/MeKo-Tech/spotit/internal/config"
	"github.com/MeKo-Tech/spotit/internal/models"
	"github.com/spf13/cobra"
)

func newModelsCommand(cfg *config.Config) *cobra.Command {
	return &cobra.Command{
		Use:   "models",
		Short: "List the models found in the models directory",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			dir := models.GetModelsDir(cfg.ModelsDir)
			list, err := models.ListModels(dir)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if len(list) == 0 {
				_, _ = fmt.Fprintf(out, "no models in %s\n", dir)
				return nil
			}
			for _, m := range list {
				_, _ = fmt.Fprintf(out, "%s\t%d KB\t%s\n", m.Name, m.Size/1024, m.Path)
			}
			return nil
		},
	}
}
