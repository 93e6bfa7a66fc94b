// File: estimator/calculator.go

package estimator

import (
	"fmt"
	"math"
)

var bytesPerGiB = math.Pow(1024, 3)

// WeightMemory calculates the memory needed to hold the model weights.
// modelSize is in billions of parameters, so bytes per parameter times modelSize is already GB.
func (e *Estimator) WeightMemory(modelSize float64, precision DataType, mixed *MixedQuantization) Component {
	if err := checkModelSize(modelSize); err != nil {
		return e.reject(invalidComponent(ModelWeights, err))
	}
	width, found := precision.ByteWidth()
	if !found {
		return e.reject(invalidComponent(ModelWeights, fmt.Errorf("precision %q: %w", precision, ErrUnknownDataType)))
	}
	if mixed == nil {
		return okComponent(ModelWeights, modelSize*width)
	}

	if mixed.Ratio < 0 || mixed.Ratio > 1 || math.IsNaN(mixed.Ratio) {
		return e.reject(invalidComponent(ModelWeights, fmt.Errorf("mixed quantised ratio %v: %w", mixed.Ratio, ErrOutOfRange)))
	}
	mixedWidth, found := mixed.Precision.ByteWidth()
	if !found {
		return e.reject(invalidComponent(ModelWeights, fmt.Errorf("mixed quantised precision %q: %w", mixed.Precision, ErrUnknownDataType)))
	}
	return okComponent(ModelWeights, modelSize*mixed.Ratio*mixedWidth+modelSize*(1-mixed.Ratio)*width)
}

// KVCacheMemory calculates the memory for the key and value tensors kept across generation steps.
func (e *Estimator) KVCacheMemory(precision DataType, batchSize, sequenceLength, numHiddenLayers, numKeyValueHeads, headDim int, usePageAttention bool) Component {
	width, found := precision.ByteWidth()
	if !found {
		return e.reject(invalidComponent(KVCache, fmt.Errorf("kv cache precision %q: %w", precision, ErrUnknownDataType)))
	}
	if err := positive(map[string]int{
		"batch_size":          batchSize,
		"sequence_length":     sequenceLength,
		"num_hidden_layers":   numHiddenLayers,
		"num_key_value_heads": numKeyValueHeads,
		"head_dim":            headDim,
	}); err != nil {
		return e.reject(invalidComponent(KVCache, err))
	}

	// key and value are stored separately, hence the 2
	elements := 2 * float64(numHiddenLayers) * float64(numKeyValueHeads) * float64(headDim) * float64(sequenceLength) * float64(batchSize)
	gb := elements * width / 1e9
	if usePageAttention {
		gb *= e.policy.PageAttentionFactor
	}
	return okComponent(KVCache, gb)
}

// ActivationMemory calculates the attention activation footprint. Without flash
// attention it grows with the square of the sequence length, with it linearly.
func (e *Estimator) ActivationMemory(precision DataType, batchSize, sequenceLength, headDim int, useFlashAttention bool) Component {
	width, found := precision.ByteWidth()
	if !found {
		return e.reject(invalidComponent(Activation, fmt.Errorf("precision %q: %w", precision, ErrUnknownDataType)))
	}
	if err := positive(map[string]int{
		"batch_size":      batchSize,
		"sequence_length": sequenceLength,
		"head_dim":        headDim,
	}); err != nil {
		return e.reject(invalidComponent(Activation, err))
	}

	seq := float64(sequenceLength)
	perToken := float64(batchSize) * float64(headDim) * width
	if useFlashAttention {
		return okComponent(Activation, seq*perToken*e.policy.FlashAttentionMultiplier/bytesPerGiB)
	}
	return okComponent(Activation, seq*seq*perToken/bytesPerGiB)
}

// OptimizerMemory calculates the optimizer state for every parameter. Callers scale
// it down to the trainable share.
func (e *Estimator) OptimizerMemory(modelSize float64, optimizer Optimizer) Component {
	if err := checkModelSize(modelSize); err != nil {
		return e.reject(invalidComponent(OptimizerState, err))
	}
	m, found := optimizer.Multiplier()
	if !found {
		return e.reject(invalidComponent(OptimizerState, fmt.Errorf("optimizer %q: %w", optimizer, ErrUnknownOptimizer)))
	}
	return okComponent(OptimizerState, modelSize*m)
}

// GradientMemory calculates gradient storage for every parameter. Gradients are
// always priced at float32 whatever the weight precision; precision is still checked.
func (e *Estimator) GradientMemory(modelSize float64, precision DataType) Component {
	if err := checkModelSize(modelSize); err != nil {
		return e.reject(invalidComponent(Gradients, err))
	}
	if !precision.Valid() {
		return e.reject(invalidComponent(Gradients, fmt.Errorf("precision %q: %w", precision, ErrUnknownDataType)))
	}
	width, _ := GradientDataType.ByteWidth()
	return okComponent(Gradients, modelSize*width)
}

// positive returns an error naming the first non-positive value, in a stable order
// checkModelSize rejects sizes that cannot give a finite, positive magnitude.
func checkModelSize(modelSize float64) error {
	if math.IsInf(modelSize, 0) {
		return fmt.Errorf("model size %v: %w", modelSize, ErrOutOfRange)
	}
	if !(modelSize > 0) {
		return fmt.Errorf("model size %v: %w", modelSize, ErrNonPositive)
	}
	return nil
}

func positive(values map[string]int) error {
	for _, name := range []string{"batch_size", "sequence_length", "num_hidden_layers", "num_key_value_heads", "head_dim"} {
		v, present := values[name]
		if present && v <= 0 {
			return fmt.Errorf("%s %d: %w", name, v, ErrNonPositive)
		}
	}
	return nil
}

func (e *Estimator) reject(c Component) Component {
	e.logger.Debug().Str("component", c.Name).Err(c.Err).Msg("component could not be computed")
	return c
}
