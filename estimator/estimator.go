package estimator

import (
	"fmt"
	"math"

	"github.com/rs/zerolog"
)

// Kind distinguishes inference reports from training reports
type Kind string

const (
	KindInference Kind = "inference"
	KindTraining  Kind = "training"
)

// Estimator combines the component calculators into inference and training reports.
// It holds no mutable state and is safe for concurrent use.
type Estimator struct {
	policy Policy
	logger zerolog.Logger
}

type Option func(*Estimator)

// WithPolicy overrides the tuning knobs. Non-positive knobs fall back to their defaults.
func WithPolicy(p Policy) Option {
	return func(e *Estimator) {
		e.policy = p.withDefaults()
	}
}

// WithLogger sets the logger used to record components that could not be computed.
func WithLogger(l zerolog.Logger) Option {
	return func(e *Estimator) {
		e.logger = l
	}
}

func New(opts ...Option) *Estimator {
	e := &Estimator{
		policy: DefaultPolicy(),
		logger: zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

func (e *Estimator) Policy() Policy {
	return e.policy
}

// Report is the outcome of an estimate. Components are kept in a fixed order
// with the overhead last.
type Report struct {
	Kind       Kind
	Components []Component
	Total      Total
}

// TotalName is the key the aggregate is reported under.
func (r Report) TotalName() string {
	if r.Kind == KindTraining {
		return TrainingTotal
	}
	return InferenceTotal
}

// Component looks up a component by name.
func (r Report) Component(name string) (Component, bool) {
	for _, c := range r.Components {
		if c.Name == name {
			return c, true
		}
	}
	return Component{}, false
}

// Breakdown maps every component name, and the total, to its formatted magnitude.
func (r Report) Breakdown() map[string]string {
	out := make(map[string]string, len(r.Components)+1)
	for _, c := range r.Components {
		out[c.Name] = c.String()
	}
	out[r.TotalName()] = r.Total.String()
	return out
}

// Warnings lists the reason for every component that could not be computed.
func (r Report) Warnings() []string {
	var warnings []string
	for _, c := range r.Components {
		if w := c.Warning(); w != "" {
			warnings = append(warnings, w)
		}
	}
	return warnings
}

func (e *Estimator) newReport(kind Kind, components ...Component) Report {
	return Report{
		Kind:       kind,
		Components: components,
		Total:      Aggregate(components...),
	}
}

// Inference estimates the memory needed to serve the model: weights, KV cache,
// activations and a fixed runtime overhead.
func (e *Estimator) Inference(shape ModelShape, cfg RuntimeConfig) Report {
	e.logger.Debug().Float64("model_size", shape.ModelSize).Str("precision", string(cfg.Precision)).Msg("Calculating inference memory...")

	weights := e.WeightMemory(shape.ModelSize, cfg.Precision, cfg.Mixed())
	kv := e.KVCacheMemory(cfg.KVCachePrecision, cfg.BatchSize, cfg.SequenceLength, shape.NumHiddenLayers, shape.KVHeads(), shape.HeadDim, cfg.UsePageAttention)
	activations := e.ActivationMemory(cfg.Precision, cfg.BatchSize, cfg.SequenceLength, shape.HeadDim, cfg.UseFlashAttention)
	overhead := okComponent(Overhead, e.policy.InferenceOverheadGB)

	return e.newReport(KindInference, weights, kv, activations, overhead)
}

// Training estimates the memory needed to fine-tune the model. Optimizer state and
// gradients only cover the trainable share of the parameters.
func (e *Estimator) Training(shape ModelShape, cfg RuntimeConfig) Report {
	e.logger.Debug().Float64("model_size", shape.ModelSize).Str("optimizer", string(cfg.Optimizer)).Msg("Calculating training memory...")

	weights := e.WeightMemory(shape.ModelSize, cfg.Precision, cfg.Mixed())
	activations := e.ActivationMemory(cfg.Precision, cfg.BatchSize, cfg.SequenceLength, shape.HeadDim, cfg.UseFlashAttention)
	optimizer := e.OptimizerMemory(shape.ModelSize, cfg.Optimizer)
	gradients := e.GradientMemory(shape.ModelSize, cfg.Precision)

	if fraction, err := trainableFraction(cfg.TrainableParameters); err != nil {
		optimizer = e.reject(invalidComponent(OptimizerState, err))
		gradients = e.reject(invalidComponent(Gradients, err))
	} else {
		optimizer = optimizer.Scale(fraction)
		gradients = gradients.Scale(fraction)
	}
	overhead := okComponent(Overhead, e.policy.TrainingOverheadGB)

	return e.newReport(KindTraining, weights, activations, optimizer, gradients, overhead)
}

func trainableFraction(percent float64) (float64, error) {
	if math.IsNaN(percent) || percent < 0 || percent > 100 {
		return 0, fmt.Errorf("trainable parameters %v%%: %w", percent, ErrOutOfRange)
	}
	return percent / 100, nil
}
