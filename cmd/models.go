package cmd

import (
	"context"
	"errors"
	"fmt"
	"io/fs"

	"github.com/sammcj/llmem/catalog"
	"github.com/spf13/cobra"
)

func newModelsCmd(a *app) *cobra.Command {
	var fromOllama bool

	cmd := &cobra.Command{
		Use:   "models",
		Short: "List models available for estimates",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			var names []string
			if fromOllama {
				source, err := catalog.NewOllamaSource(a.cfg.OllamaHost)
				if err != nil {
					return err
				}
				ctx, cancel := context.WithTimeout(cmd.Context(), ollamaTimeout)
				defer cancel()
				if names, err = source.Names(ctx); err != nil {
					return err
				}
				if source.Remote() {
					fmt.Fprintf(cmd.OutOrStdout(), "Models on remote Ollama host %s:\n", source.Host())
				}
			} else {
				models, err := catalog.Load(a.cfg.ModelsDir)
				switch {
				case errors.Is(err, fs.ErrNotExist):
				case err != nil:
					return err
				default:
					names = models.Names()
				}
			}

			out := cmd.OutOrStdout()
			if len(names) == 0 {
				if fromOllama {
					fmt.Fprintln(out, "No models found on the Ollama server")
				} else {
					fmt.Fprintf(out, "No model configs in %s, run 'llmem download' to fetch some\n", a.cfg.ModelsDir)
				}
				return nil
			}
			for _, name := range names {
				fmt.Fprintln(out, name)
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&fromOllama, "ollama", false, "list models on the Ollama server instead of the local catalog")
	return cmd
}
