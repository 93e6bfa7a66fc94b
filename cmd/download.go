package cmd

import (
	"errors"
	"fmt"
	"time"

	"github.com/sammcj/llmem/catalog"
	"github.com/spf13/cobra"
)

func newDownloadCmd(a *app) *cobra.Command {
	var (
		token    string
		baseURL  string
		minDelay time.Duration
		maxDelay time.Duration
	)

	cmd := &cobra.Command{
		Use:   "download [repo...]",
		Short: "Fetch model config.json files from HuggingFace into the catalog",
		Long: `Fetch config.json for each HuggingFace repo into the models directory.
With no arguments the default Qwen3 set is fetched. Existing files are left alone.`,
		Example: "  llmem download Qwen/Qwen3-8B meta-llama/Llama-3.1-8B",
		RunE: func(cmd *cobra.Command, args []string) error {
			repos := args
			if len(repos) == 0 {
				repos = catalog.DefaultRepos
			}
			if token == "" {
				token = a.cfg.HuggingFaceToken
			}

			d := catalog.NewDownloader(a.cfg.ModelsDir, token)
			if baseURL != "" {
				d.BaseURL = baseURL
			}
			if cmd.Flags().Changed("min-delay") {
				d.MinDelay = minDelay
			}
			if cmd.Flags().Changed("max-delay") {
				d.MaxDelay = maxDelay
			}

			results, err := d.Download(cmd.Context(), repos)
			out := cmd.OutOrStdout()
			var downloaded, skipped, failed int
			for _, r := range results {
				switch {
				case r.Err != nil:
					failed++
					fmt.Fprintln(out, errorStyle.Render(fmt.Sprintf("failed  %s: %v", r.Repo, r.Err)))
				case r.Skipped:
					skipped++
					fmt.Fprintf(out, "exists  %s\n", r.Repo)
				default:
					downloaded++
					fmt.Fprintf(out, "fetched %s\n", r.Repo)
				}
			}
			fmt.Fprintf(out, "%d downloaded, %d already present, %d failed (%s)\n", downloaded, skipped, failed, a.cfg.ModelsDir)

			if err != nil {
				return err
			}
			if failed > 0 {
				return errors.New("some model configs could not be downloaded")
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&token, "token", "", "HuggingFace token (default from config)")
	cmd.Flags().StringVar(&baseURL, "base-url", "", "HuggingFace base URL")
	cmd.Flags().DurationVar(&minDelay, "min-delay", time.Second, "minimum pause between requests")
	cmd.Flags().DurationVar(&maxDelay, "max-delay", 3*time.Second, "maximum pause between requests")
	return cmd
}
