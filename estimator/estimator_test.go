package estimator

import (
	"bytes"
	"errors"
	"math"
	"reflect"
	"strings"
	"sync"
	"testing"

	"github.com/rs/zerolog"
)

var llama7B = ModelShape{
	ModelSize:         7,
	NumHiddenLayers:   32,
	HiddenSize:        4096,
	NumAttentionHeads: 32,
	HeadDim:           128,
	NumKeyValueHeads:  32,
}

func inferenceConfig() RuntimeConfig {
	return RuntimeConfig{
		Precision:        Float16,
		KVCachePrecision: Float16,
		BatchSize:        1,
		SequenceLength:   2048,
	}
}

func trainingConfig() RuntimeConfig {
	return RuntimeConfig{
		Precision:           Float16,
		BatchSize:           1,
		SequenceLength:      2048,
		Optimizer:           AdamW,
		TrainableParameters: 100,
	}
}

func TestInference(t *testing.T) {
	e := New()
	report := e.Inference(llama7B, inferenceConfig())

	if report.Kind != KindInference {
		t.Errorf("Kind = %v, want %v", report.Kind, KindInference)
	}

	expected := map[string]string{
		ModelWeights:   "14.00 GB",
		KVCache:        "1.07 GB",
		Activation:     "1.00 GB",
		Overhead:       "1.04 GB",
		InferenceTotal: "17.11 GB",
	}
	if got := report.Breakdown(); !reflect.DeepEqual(got, expected) {
		t.Errorf("Breakdown() = %v, want %v", got, expected)
	}
	if report.Total.Warning {
		t.Errorf("Total.Warning = true, want false; warnings: %v", report.Warnings())
	}
	if len(report.Warnings()) != 0 {
		t.Errorf("Warnings() = %v, want none", report.Warnings())
	}
}

func TestInferenceComponentOrder(t *testing.T) {
	report := New().Inference(llama7B, inferenceConfig())
	var names []string
	for _, c := range report.Components {
		names = append(names, c.Name)
	}
	expected := []string{ModelWeights, KVCache, Activation, Overhead}
	if !reflect.DeepEqual(names, expected) {
		t.Errorf("component order = %v, want %v", names, expected)
	}
}

func TestInferenceDefaultsKVHeads(t *testing.T) {
	shape := llama7B
	shape.NumKeyValueHeads = 0

	e := New()
	withDefault, _ := e.Inference(shape, inferenceConfig()).Component(KVCache)
	explicit, _ := e.Inference(llama7B, inferenceConfig()).Component(KVCache)
	if withDefault.GB != explicit.GB {
		t.Errorf("KV cache with defaulted heads = %v, want %v", withDefault.GB, explicit.GB)
	}
}

func TestInferenceAttentionOptions(t *testing.T) {
	e := New()
	base := e.Inference(llama7B, inferenceConfig())

	cfg := inferenceConfig()
	cfg.UsePageAttention = true
	cfg.UseFlashAttention = true
	optimised := e.Inference(llama7B, cfg)

	baseKV, _ := base.Component(KVCache)
	pagedKV, _ := optimised.Component(KVCache)
	if pagedKV.GB != baseKV.GB*DefaultPageAttentionFactor {
		t.Errorf("paged KV cache = %v, want %v", pagedKV.GB, baseKV.GB*DefaultPageAttentionFactor)
	}
	if optimised.Total.GB >= base.Total.GB {
		t.Errorf("optimised total %v not below base total %v", optimised.Total.GB, base.Total.GB)
	}
}

func TestInferenceMixedQuantisation(t *testing.T) {
	cfg := inferenceConfig()
	cfg.IsMixedQuantized = true
	cfg.MixedQuantizedRatio = 0.5
	cfg.MixedQuantizedPrecision = Int4

	weights, _ := New().Inference(llama7B, cfg).Component(ModelWeights)
	if expected := 7*0.5*0.5 + 7*0.5*2; weights.GB != expected {
		t.Errorf("mixed weights = %v, want %v", weights.GB, expected)
	}

	// the split is ignored while mixed quantisation is off
	cfg.IsMixedQuantized = false
	weights, _ = New().Inference(llama7B, cfg).Component(ModelWeights)
	if weights.GB != 14 {
		t.Errorf("weights = %v, want 14", weights.GB)
	}
}

func TestInferenceUnknownPrecision(t *testing.T) {
	cfg := inferenceConfig()
	cfg.Precision = "fp8"

	report := New().Inference(llama7B, cfg)
	breakdown := report.Breakdown()

	if breakdown[ModelWeights] != "0.00 GB *" {
		t.Errorf("model weights = %q, want %q", breakdown[ModelWeights], "0.00 GB *")
	}
	if breakdown[Activation] != "0.00 GB *" {
		t.Errorf("activation = %q, want %q", breakdown[Activation], "0.00 GB *")
	}
	if breakdown[KVCache] != "1.07 GB" {
		t.Errorf("kv cache = %q, want %q", breakdown[KVCache], "1.07 GB")
	}
	if breakdown[InferenceTotal] != "2.11 GB *" {
		t.Errorf("total = %q, want %q", breakdown[InferenceTotal], "2.11 GB *")
	}
	if got := len(report.Warnings()); got != 2 {
		t.Errorf("Warnings() = %v, want 2 entries", report.Warnings())
	}
	for _, w := range report.Warnings() {
		if !strings.Contains(w, "fp8") {
			t.Errorf("warning %q does not name the precision", w)
		}
	}
}

func TestInfiniteModelSizeIsAWarning(t *testing.T) {
	shape := llama7B
	shape.ModelSize = math.Inf(1)

	tests := []struct {
		name     string
		report   Report
		total    string
		warnings int
	}{
		{"inference", New().Inference(shape, inferenceConfig()), "3.11 GB *", 1},
		{"training", New().Training(shape, trainingConfig()), "2.54 GB *", 3},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			breakdown := tt.report.Breakdown()
			if breakdown[ModelWeights] != "0.00 GB *" {
				t.Errorf("model weights = %q, want %q", breakdown[ModelWeights], "0.00 GB *")
			}
			if got := breakdown[tt.report.TotalName()]; got != tt.total {
				t.Errorf("total = %q, want %q", got, tt.total)
			}
			if got := len(tt.report.Warnings()); got != tt.warnings {
				t.Errorf("Warnings() = %v, want %d entries", tt.report.Warnings(), tt.warnings)
			}
		})
	}
}

func TestTraining(t *testing.T) {
	e := New()
	report := e.Training(llama7B, trainingConfig())

	expected := map[string]string{
		ModelWeights:   "14.00 GB",
		Activation:     "1.00 GB",
		OptimizerState: "56.00 GB",
		Gradients:      "28.00 GB",
		Overhead:       "1.54 GB",
		TrainingTotal:  "100.54 GB",
	}
	if got := report.Breakdown(); !reflect.DeepEqual(got, expected) {
		t.Errorf("Breakdown() = %v, want %v", got, expected)
	}
	if _, found := report.Component(KVCache); found {
		t.Error("training report should not include a KV cache component")
	}
}

func TestTrainingTrainableParameters(t *testing.T) {
	e := New()
	full := e.Training(llama7B, trainingConfig())
	fullOpt, _ := full.Component(OptimizerState)
	fullGrad, _ := full.Component(Gradients)

	tests := []struct {
		name      string
		trainable float64
		factor    float64
	}{
		{name: "none", trainable: 0, factor: 0},
		{name: "half", trainable: 50, factor: 0.5},
		{name: "quarter", trainable: 25, factor: 0.25},
		{name: "all", trainable: 100, factor: 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := trainingConfig()
			cfg.TrainableParameters = tt.trainable
			report := e.Training(llama7B, cfg)

			opt, _ := report.Component(OptimizerState)
			grad, _ := report.Component(Gradients)
			if opt.GB != fullOpt.GB*tt.factor {
				t.Errorf("optimizer = %v, want %v", opt.GB, fullOpt.GB*tt.factor)
			}
			if grad.GB != fullGrad.GB*tt.factor {
				t.Errorf("gradients = %v, want %v", grad.GB, fullGrad.GB*tt.factor)
			}
			// a legitimately empty component is not a failure
			if report.Total.Warning {
				t.Errorf("unexpected warning for %v%% trainable: %v", tt.trainable, report.Warnings())
			}
		})
	}
}

func TestTrainingTrainableOutOfRange(t *testing.T) {
	for _, trainable := range []float64{-1, 100.5, 250} {
		cfg := trainingConfig()
		cfg.TrainableParameters = trainable
		report := New().Training(llama7B, cfg)

		for _, name := range []string{OptimizerState, Gradients} {
			c, _ := report.Component(name)
			if !errors.Is(c.Err, ErrOutOfRange) {
				t.Errorf("%s with %v%% trainable: error = %v, want %v", name, trainable, c.Err, ErrOutOfRange)
			}
		}
		if !report.Total.Warning {
			t.Errorf("total for %v%% trainable has no warning marker", trainable)
		}
	}
}

func TestTrainingUnknownOptimizer(t *testing.T) {
	cfg := trainingConfig()
	cfg.Optimizer = "Lion"
	report := New().Training(llama7B, cfg)

	breakdown := report.Breakdown()
	if breakdown[OptimizerState] != "0.00 GB *" {
		t.Errorf("optimizer = %q, want %q", breakdown[OptimizerState], "0.00 GB *")
	}
	if breakdown[TrainingTotal] != "44.54 GB *" {
		t.Errorf("total = %q, want %q", breakdown[TrainingTotal], "44.54 GB *")
	}
}

func TestZeroConfigDoesNotPanic(t *testing.T) {
	e := New()
	inference := e.Inference(ModelShape{}, RuntimeConfig{})
	training := e.Training(ModelShape{}, RuntimeConfig{})

	if !inference.Total.Warning || !training.Total.Warning {
		t.Error("empty inputs should produce warnings")
	}
	if inference.Total.String() != "1.04 GB *" {
		t.Errorf("inference total = %q, want %q", inference.Total.String(), "1.04 GB *")
	}
}

func TestEstimatesAreIdempotent(t *testing.T) {
	e := New()
	cfg := trainingConfig()
	cfg.TrainableParameters = 33.3
	cfg.UseFlashAttention = true

	first := e.Training(llama7B, cfg).Breakdown()
	second := e.Training(llama7B, cfg).Breakdown()
	if !reflect.DeepEqual(first, second) {
		t.Errorf("repeated estimate differs: %v vs %v", first, second)
	}

	firstInf := e.Inference(llama7B, inferenceConfig()).Breakdown()
	secondInf := e.Inference(llama7B, inferenceConfig()).Breakdown()
	if !reflect.DeepEqual(firstInf, secondInf) {
		t.Errorf("repeated estimate differs: %v vs %v", firstInf, secondInf)
	}
}

func TestEstimatorConcurrentUse(t *testing.T) {
	e := New()
	want := e.Inference(llama7B, inferenceConfig()).Total.String()

	var wg sync.WaitGroup
	errs := make(chan string, 64)
	for i := 0; i < 64; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if got := e.Inference(llama7B, inferenceConfig()).Total.String(); got != want {
				errs <- got
			}
		}()
	}
	wg.Wait()
	close(errs)

	for got := range errs {
		t.Errorf("concurrent estimate = %q, want %q", got, want)
	}
}

func TestWithLoggerRecordsInvalidComponents(t *testing.T) {
	var buf bytes.Buffer
	e := New(WithLogger(zerolog.New(&buf).Level(zerolog.DebugLevel)))

	cfg := inferenceConfig()
	cfg.KVCachePrecision = "fp8"
	e.Inference(llama7B, cfg)

	if !strings.Contains(buf.String(), "component could not be computed") {
		t.Errorf("log output = %q, want an entry for the invalid component", buf.String())
	}
	if !strings.Contains(buf.String(), KVCache) {
		t.Errorf("log output = %q, want the component name", buf.String())
	}
}
