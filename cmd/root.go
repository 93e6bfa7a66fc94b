package cmd

import (
	"fmt"
	"os"

	"github.com/charmbracelet/lipgloss"
	"github.com/sammcj/llmem/config"
	"github.com/sammcj/llmem/estimator"
	"github.com/sammcj/llmem/logging"
	"github.com/spf13/cobra"
	"golang.org/x/term"
)

// Version is set during the build process
var Version = "dev"

var errorStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("#FF0000"))

// app carries the state every subcommand shares once the root has loaded config and logging.
type app struct {
	configPath string
	logLevel   string
	verbose    bool
	noColour   bool

	cfg config.Config
}

func (a *app) estimator() *estimator.Estimator {
	return estimator.New(
		estimator.WithPolicy(a.cfg.Policy),
		estimator.WithLogger(logging.DebugLogger),
	)
}

// colour reports whether output should carry ANSI colours.
func (a *app) colour(cmd *cobra.Command) bool {
	if a.noColour {
		return false
	}
	f, ok := cmd.OutOrStdout().(*os.File)
	return ok && term.IsTerminal(int(f.Fd()))
}

func NewRootCmd() *cobra.Command {
	a := &app{}

	rootCmd := &cobra.Command{
		Use:   "llmem",
		Short: "Estimate the memory needed to run or fine-tune an LLM",
		Long: `llmem estimates the GPU memory a transformer language model needs for inference
or training from its architecture and runtime choices, without loading the model.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			var (
				cfg config.Config
				err error
			)
			if a.configPath == "" {
				cfg, err = config.LoadConfig()
			} else {
				cfg, err = config.LoadConfigFromPath(a.configPath)
			}
			if err != nil {
				return fmt.Errorf("error loading config: %w", err)
			}
			a.cfg = cfg

			level := cfg.LogLevel
			if a.logLevel != "" {
				level = a.logLevel
			}
			if a.verbose {
				level = "debug"
			}
			if err := logging.Init(logging.Options{Level: level, FilePath: cfg.LogFilePath, Console: a.verbose}); err != nil {
				return fmt.Errorf("error initializing logging: %w", err)
			}
			return nil
		},
	}

	rootCmd.PersistentFlags().StringVarP(&a.configPath, "config", "c", "", "config file path (default: ~/.config/llmem/config.json)")
	rootCmd.PersistentFlags().StringVar(&a.logLevel, "log-level", "", "log level override (debug, info, warn, error)")
	rootCmd.PersistentFlags().BoolVarP(&a.verbose, "verbose", "v", false, "log debug output to the console as well as the log file")
	rootCmd.PersistentFlags().BoolVar(&a.noColour, "no-colour", false, "disable coloured output")

	rootCmd.AddCommand(
		newInferenceCmd(a),
		newTrainingCmd(a),
		newSweepCmd(a),
		newServeCmd(a),
		newModelsCmd(a),
		newDownloadCmd(a),
		newVersionCmd(),
	)

	return rootCmd
}

func Execute() {
	if err := NewRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, errorStyle.Render(fmt.Sprintf("Error: %v", err)))
		os.Exit(1)
	}
}
