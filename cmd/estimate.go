package cmd

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/sammcj/llmem/catalog"
	"github.com/sammcj/llmem/estimator"
	"github.com/sammcj/llmem/logging"
	"github.com/sammcj/llmem/server"
	"github.com/shirou/gopsutil/v3/mem"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
)

const ollamaTimeout = 30 * time.Second

// modelFlags select where the model shape comes from and override parts of it.
type modelFlags struct {
	model  string
	ollama string

	size    float64
	layers  int
	hidden  int
	heads   int
	headDim int
	kvHeads int
}

func (m *modelFlags) register(fs *pflag.FlagSet) {
	fs.StringVarP(&m.model, "model", "m", "", "model name from the local catalog")
	fs.StringVar(&m.ollama, "ollama", "", "model name on the Ollama server")
	fs.Float64Var(&m.size, "size", 0, "model size in billions of parameters")
	fs.IntVar(&m.layers, "layers", 0, "number of hidden layers")
	fs.IntVar(&m.hidden, "hidden", 0, "hidden size")
	fs.IntVar(&m.heads, "heads", 0, "number of attention heads")
	fs.IntVar(&m.headDim, "head-dim", 0, "dimension of each attention head")
	fs.IntVar(&m.kvHeads, "kv-heads", 0, "number of key/value heads (defaults to --heads)")
}

// resolve returns a display name and the model parameters. Shape flags set on the
// command line override whatever the catalog or Ollama reported.
func (m *modelFlags) resolve(ctx context.Context, a *app, fs *pflag.FlagSet) (string, catalog.Params, error) {
	if m.model != "" && m.ollama != "" {
		return "", catalog.Params{}, errors.New("--model and --ollama cannot be used together")
	}

	name := "custom"
	var params catalog.Params
	switch {
	case m.ollama != "":
		source, err := catalog.NewOllamaSource(a.cfg.OllamaHost)
		if err != nil {
			return "", catalog.Params{}, err
		}
		ctx, cancel := context.WithTimeout(ctx, ollamaTimeout)
		defer cancel()
		if params, _, err = source.Params(ctx, m.ollama); err != nil {
			return "", catalog.Params{}, err
		}
		name = m.ollama
	case m.model != "":
		models, err := catalog.Load(a.cfg.ModelsDir)
		if err != nil {
			return "", catalog.Params{}, err
		}
		cfg, ok := models.Get(m.model)
		if !ok {
			return "", catalog.Params{}, fmt.Errorf("model %q not found in %s", m.model, a.cfg.ModelsDir)
		}
		params = catalog.ExtractParams(m.model, cfg)
		name = m.model
	default:
		if !fs.Changed("size") {
			return "", catalog.Params{}, errors.New("one of --model, --ollama or --size is required")
		}
		params = catalog.ExtractParams("", catalog.ModelConfig{})
		if !fs.Changed("kv-heads") && fs.Changed("heads") {
			params.NumKeyValueHeads = m.heads
		}
		if !fs.Changed("head-dim") && fs.Changed("hidden") && fs.Changed("heads") && m.heads > 0 && m.hidden%m.heads == 0 {
			params.HeadDim = m.hidden / m.heads
		}
	}

	overrides := []struct {
		flag string
		set  func()
	}{
		{"size", func() { params.ModelSize = m.size }},
		{"layers", func() { params.NumHiddenLayers = m.layers }},
		{"hidden", func() { params.HiddenSize = m.hidden }},
		{"heads", func() { params.NumAttentionHeads = m.heads }},
		{"head-dim", func() { params.HeadDim = m.headDim }},
		{"kv-heads", func() { params.NumKeyValueHeads = m.kvHeads }},
	}
	for _, o := range overrides {
		if fs.Changed(o.flag) {
			o.set()
		}
	}

	logging.DebugLogger.Debug().Str("model", name).Interface("shape", params.ModelShape).Msg("Resolved model shape")
	return name, params, nil
}

// runtimeFlags are the runtime choices shared by every estimate command.
type runtimeFlags struct {
	precision      string
	kvPrecision    string
	batchSize      int
	sequenceLength int
	flash          bool
	paged          bool
	mixedRatio     float64
	mixedPrecision string
	jsonOutput     bool
	fitsGB         float64
	fitsSystem     bool
}

func (r *runtimeFlags) register(fs *pflag.FlagSet, kv bool) {
	fs.StringVarP(&r.precision, "precision", "p", "", "weight precision (defaults to the model's own dtype)")
	if kv {
		fs.StringVar(&r.kvPrecision, "kv-precision", string(estimator.Float16), "KV cache precision")
		fs.BoolVar(&r.paged, "paged", false, "use paged attention")
	}
	fs.IntVarP(&r.batchSize, "batch", "b", 1, "batch size")
	fs.IntVarP(&r.sequenceLength, "seq", "s", 2048, "sequence length in tokens")
	fs.BoolVar(&r.flash, "flash", false, "use flash attention")
	fs.Float64Var(&r.mixedRatio, "mixed-ratio", 0, "share of parameters (0-1) stored at --mixed-precision")
	fs.StringVar(&r.mixedPrecision, "mixed-precision", "", "secondary precision for mixed quantisation")
	fs.BoolVar(&r.jsonOutput, "json", false, "print the estimate as JSON")
	fs.Float64Var(&r.fitsGB, "fits", 0, "memory available in GB, reports whether the estimate fits")
	fs.BoolVar(&r.fitsSystem, "fits-system", false, "compare the estimate against this machine's total RAM")
}

// available returns the memory to compare estimates against, or 0 when no check was asked for.
func (r *runtimeFlags) available() (float64, error) {
	if r.fitsGB > 0 || !r.fitsSystem {
		return r.fitsGB, nil
	}
	vmStat, err := mem.VirtualMemory()
	if err != nil {
		return 0, fmt.Errorf("failed to get system memory info: %w", err)
	}
	return float64(vmStat.Total) / math.Pow(1024, 3), nil
}

func (r *runtimeFlags) config(params catalog.Params, fs *pflag.FlagSet) (estimator.RuntimeConfig, error) {
	if r.batchSize <= 0 {
		return estimator.RuntimeConfig{}, errors.New("--batch must be positive")
	}
	if r.sequenceLength <= 0 {
		return estimator.RuntimeConfig{}, errors.New("--seq must be positive")
	}

	precision := params.Precision
	if r.precision != "" {
		precision = estimator.DataType(r.precision)
	}
	if precision == "" {
		precision = catalog.DefaultPrecision
	}
	dtype, err := estimator.ParseDataType(string(precision))
	if err != nil {
		return estimator.RuntimeConfig{}, fmt.Errorf("--precision: %w", err)
	}

	cfg := estimator.RuntimeConfig{
		Precision:         dtype,
		BatchSize:         r.batchSize,
		SequenceLength:    r.sequenceLength,
		UseFlashAttention: r.flash || params.UseFlashAttention,
		UsePageAttention:  r.paged || params.UsePageAttention,
	}

	if r.kvPrecision != "" {
		if cfg.KVCachePrecision, err = estimator.ParseDataType(r.kvPrecision); err != nil {
			return estimator.RuntimeConfig{}, fmt.Errorf("--kv-precision: %w", err)
		}
	}

	if fs.Changed("mixed-ratio") || fs.Changed("mixed-precision") {
		if r.mixedRatio < 0 || r.mixedRatio > 1 {
			return estimator.RuntimeConfig{}, errors.New("--mixed-ratio must be between 0 and 1")
		}
		if r.mixedPrecision == "" {
			return estimator.RuntimeConfig{}, errors.New("--mixed-precision is required for mixed quantisation")
		}
		mixed, err := estimator.ParseDataType(r.mixedPrecision)
		if err != nil {
			return estimator.RuntimeConfig{}, fmt.Errorf("--mixed-precision: %w", err)
		}
		cfg.IsMixedQuantized = true
		cfg.MixedQuantizedRatio = r.mixedRatio
		cfg.MixedQuantizedPrecision = mixed
	}
	return cfg, nil
}

func printReport(cmd *cobra.Command, a *app, name string, params catalog.Params, cfg estimator.RuntimeConfig, report estimator.Report, rf *runtimeFlags) error {
	out := cmd.OutOrStdout()
	if !rf.jsonOutput {
		fmt.Fprint(out, estimator.PrintReportTable(name, report, a.colour(cmd)))
		available, err := rf.available()
		if err != nil {
			return err
		}
		if available > 0 {
			fmt.Fprintln(out, fitsMessage(report.Total.GB, available))
		}
		return nil
	}

	warnings := report.Warnings()
	if warnings == nil {
		warnings = []string{}
	}
	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	return enc.Encode(server.EstimateResponse{
		CalculationType:    report.Kind,
		Parameters:         server.EstimateParameters{ModelName: name, ModelShape: params.ModelShape, RuntimeConfig: cfg},
		MemoryRequirements: report.Breakdown(),
		Warnings:           warnings,
	})
}

func newInferenceCmd(a *app) *cobra.Command {
	var (
		mf modelFlags
		rf runtimeFlags
	)
	cmd := &cobra.Command{
		Use:   "inference",
		Short: "Estimate the memory needed to serve a model",
		Example: `  llmem inference --model Qwen3-8B --seq 32768
  llmem inference --ollama llama3.1:8b --kv-precision int8
  llmem inference --size 7 --layers 32 --hidden 4096 --heads 32 -p float16`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			name, params, err := mf.resolve(cmd.Context(), a, cmd.Flags())
			if err != nil {
				return err
			}
			cfg, err := rf.config(params, cmd.Flags())
			if err != nil {
				return err
			}
			report := a.estimator().Inference(params.ModelShape, cfg)
			return printReport(cmd, a, name, params, cfg, report, &rf)
		},
	}
	mf.register(cmd.Flags())
	rf.register(cmd.Flags(), true)
	return cmd
}

func newTrainingCmd(a *app) *cobra.Command {
	var (
		mf        modelFlags
		rf        runtimeFlags
		optimizer string
		trainable float64
	)
	cmd := &cobra.Command{
		Use:   "training",
		Short: "Estimate the memory needed to fine-tune a model",
		Example: `  llmem training --model Qwen3-8B --optimizer AdamW
  llmem training --size 7 -p bfloat16 --trainable 1.5`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			name, params, err := mf.resolve(cmd.Context(), a, cmd.Flags())
			if err != nil {
				return err
			}
			cfg, err := rf.config(params, cmd.Flags())
			if err != nil {
				return err
			}
			if cfg.Optimizer, err = estimator.ParseOptimizer(optimizer); err != nil {
				return fmt.Errorf("--optimizer: %w", err)
			}
			if trainable < 0 || trainable > 100 {
				return errors.New("--trainable must be between 0 and 100")
			}
			cfg.TrainableParameters = trainable

			report := a.estimator().Training(params.ModelShape, cfg)
			return printReport(cmd, a, name, params, cfg, report, &rf)
		},
	}
	mf.register(cmd.Flags())
	rf.register(cmd.Flags(), false)
	cmd.Flags().StringVarP(&optimizer, "optimizer", "o", string(estimator.AdamW), "optimizer ("+joinNames(estimator.Optimizers)+")")
	cmd.Flags().Float64VarP(&trainable, "trainable", "t", 100, "percentage of parameters being trained")
	return cmd
}

func newSweepCmd(a *app) *cobra.Command {
	var (
		mf           modelFlags
		rf           runtimeFlags
		contexts     []int
		kvPrecisions []string
	)
	cmd := &cobra.Command{
		Use:   "sweep",
		Short: "Tabulate inference memory across context lengths and KV cache precisions",
		Example: `  llmem sweep --model Qwen3-8B
  llmem sweep --ollama llama3.1:8b --contexts 4096,8192 --kv-precisions float16,int4`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			name, params, err := mf.resolve(cmd.Context(), a, cmd.Flags())
			if err != nil {
				return err
			}
			cfg, err := rf.config(params, cmd.Flags())
			if err != nil {
				return err
			}
			for _, length := range contexts {
				if length <= 0 {
					return fmt.Errorf("--contexts: %d is not a positive length", length)
				}
			}
			precisions := make([]estimator.DataType, 0, len(kvPrecisions))
			for _, p := range kvPrecisions {
				dtype, err := estimator.ParseDataType(strings.TrimSpace(p))
				if err != nil {
					return fmt.Errorf("--kv-precisions: %w", err)
				}
				precisions = append(precisions, dtype)
			}

			table := a.estimator().GenerateSweep(name, params.ModelShape, cfg, contexts, precisions)
			if rf.jsonOutput {
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				return enc.Encode(table)
			}
			fmt.Fprint(cmd.OutOrStdout(), estimator.PrintSweepTable(table, a.colour(cmd)))
			return nil
		},
	}
	mf.register(cmd.Flags())
	rf.register(cmd.Flags(), false)
	cmd.Flags().BoolVar(&rf.paged, "paged", false, "use paged attention")
	cmd.Flags().IntSliceVar(&contexts, "contexts", estimator.DefaultSweepLengths, "context lengths to tabulate")
	cmd.Flags().StringSliceVar(&kvPrecisions, "kv-precisions", dataTypeNames(estimator.DefaultSweepPrecisions), "KV cache precisions to tabulate")
	return cmd
}

func fitsMessage(required, available float64) string {
	if required <= available {
		return fmt.Sprintf("Fits in %.2f GB with %.2f GB to spare", available, available-required)
	}
	return errorStyle.Render(fmt.Sprintf("Does not fit in %.2f GB, %.2f GB short", available, required-available))
}

func dataTypeNames(types []estimator.DataType) []string {
	names := make([]string, len(types))
	for i, t := range types {
		names[i] = string(t)
	}
	return names
}

func joinNames[T ~string](values []T) string {
	names := make([]string, len(values))
	for i, v := range values {
		names[i] = string(v)
	}
	return strings.Join(names, ", ")
}
