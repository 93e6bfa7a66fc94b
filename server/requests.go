package server

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"github.com/sammcj/llmem/catalog"
	"github.com/sammcj/llmem/estimator"
)

const maxRequestBytes = 1 << 20

// estimateRequest holds the fields both estimate endpoints accept. Pointers mark
// fields whose absence must be told apart from a zero value.
type estimateRequest struct {
	ModelName               string   `json:"model_name"`
	Precision               *string  `json:"precision"`
	BatchSize               *int     `json:"batch_size"`
	SequenceLength          *int     `json:"sequence_length"`
	UseFlashAttention       bool     `json:"use_flash_attention"`
	IsMixedQuantized        bool     `json:"is_mixed_quantized"`
	MixedQuantizedRatio     *float64 `json:"mixed_quantized_ratio"`
	MixedQuantizedPrecision *string  `json:"mixed_quantized_precision"`
}

type InferenceRequest struct {
	estimateRequest
	KVCachePrecision *string `json:"kv_cache_precision"`
	UsePageAttention bool    `json:"use_page_attention"`
}

type TrainingRequest struct {
	estimateRequest
	Optimizer           *string  `json:"optimizer"`
	TrainableParameters *float64 `json:"trainable_parameters"`
}

// EstimateParameters echoes back every input the estimate was computed from.
type EstimateParameters struct {
	ModelName string `json:"model_name"`
	estimator.ModelShape
	estimator.RuntimeConfig
}

type EstimateResponse struct {
	CalculationType    estimator.Kind     `json:"calculation_type"`
	Parameters         EstimateParameters `json:"parameters"`
	MemoryRequirements map[string]string  `json:"memory_requirements"`
	Warnings           []string           `json:"warnings"`
}

func decodeRequest(req *http.Request, into any) *HTTPError {
	body, err := io.ReadAll(io.LimitReader(req.Body, maxRequestBytes))
	if err != nil {
		return NewHTTPError400(fmt.Sprintf("failed to read request body: %v", err))
	}
	if len(body) == 0 {
		return NewHTTPError400("Request body is required")
	}
	if err := json.Unmarshal(body, into); err != nil {
		return NewHTTPError400(fmt.Sprintf("invalid request body: %v", err))
	}
	return nil
}

// validate checks the required fields are present, in the order clients are told about them.
func (r estimateRequest) validate() *HTTPError {
	if r.ModelName == "" {
		return NewHTTPError400("model_name is required")
	}
	if err := positiveField("batch_size", r.BatchSize); err != nil {
		return err
	}
	return positiveField("sequence_length", r.SequenceLength)
}

// resolve checks the shared fields and builds the model shape and runtime config,
// taking the precision from the catalog entry unless the request overrides it.
func (r estimateRequest) resolve(models catalog.Lookup) (catalog.Params, estimator.RuntimeConfig, *HTTPError) {
	var cfg estimator.RuntimeConfig
	if err := r.validate(); err != nil {
		return catalog.Params{}, cfg, err
	}

	modelConfig, ok := models.Get(r.ModelName)
	if !ok {
		return catalog.Params{}, cfg, NewHTTPError404(fmt.Sprintf("Model %q not found", r.ModelName))
	}
	params := catalog.ExtractParams(r.ModelName, modelConfig)

	precision := string(params.Precision)
	if r.Precision != nil {
		precision = *r.Precision
	}
	dtype, err := estimator.ParseDataType(precision)
	if err != nil {
		return params, cfg, fieldError("precision", err)
	}

	cfg = estimator.RuntimeConfig{
		Precision:         dtype,
		BatchSize:         *r.BatchSize,
		SequenceLength:    *r.SequenceLength,
		UseFlashAttention: r.UseFlashAttention,
		IsMixedQuantized:  r.IsMixedQuantized,
	}

	if r.IsMixedQuantized {
		if r.MixedQuantizedRatio == nil {
			return params, cfg, NewHTTPError400("mixed_quantized_ratio is required when is_mixed_quantized is set")
		}
		if *r.MixedQuantizedRatio < 0 || *r.MixedQuantizedRatio > 1 {
			return params, cfg, NewHTTPError400("mixed_quantized_ratio must be between 0 and 1")
		}
		if r.MixedQuantizedPrecision == nil {
			return params, cfg, NewHTTPError400("mixed_quantized_precision is required when is_mixed_quantized is set")
		}
		mixed, err := estimator.ParseDataType(*r.MixedQuantizedPrecision)
		if err != nil {
			return params, cfg, fieldError("mixed_quantized_precision", err)
		}
		cfg.MixedQuantizedRatio = *r.MixedQuantizedRatio
		cfg.MixedQuantizedPrecision = mixed
	}

	return params, cfg, nil
}

func (r InferenceRequest) resolve(models catalog.Lookup) (catalog.Params, estimator.RuntimeConfig, *HTTPError) {
	if err := r.validate(); err != nil {
		return catalog.Params{}, estimator.RuntimeConfig{}, err
	}
	if r.KVCachePrecision == nil {
		return catalog.Params{}, estimator.RuntimeConfig{}, NewHTTPError400("kv_cache_precision is required")
	}
	params, cfg, httpErr := r.estimateRequest.resolve(models)
	if httpErr != nil {
		return params, cfg, httpErr
	}

	kv, err := estimator.ParseDataType(*r.KVCachePrecision)
	if err != nil {
		return params, cfg, fieldError("kv_cache_precision", err)
	}
	cfg.KVCachePrecision = kv
	cfg.UsePageAttention = r.UsePageAttention
	return params, cfg, nil
}

func (r TrainingRequest) resolve(models catalog.Lookup) (catalog.Params, estimator.RuntimeConfig, *HTTPError) {
	if err := r.validate(); err != nil {
		return catalog.Params{}, estimator.RuntimeConfig{}, err
	}
	if r.Optimizer == nil {
		return catalog.Params{}, estimator.RuntimeConfig{}, NewHTTPError400("optimizer is required")
	}
	if r.TrainableParameters == nil {
		return catalog.Params{}, estimator.RuntimeConfig{}, NewHTTPError400("trainable_parameters is required")
	}
	params, cfg, httpErr := r.estimateRequest.resolve(models)
	if httpErr != nil {
		return params, cfg, httpErr
	}

	optimizer, err := estimator.ParseOptimizer(*r.Optimizer)
	if err != nil {
		return params, cfg, fieldError("optimizer", err)
	}
	if *r.TrainableParameters < 0 || *r.TrainableParameters > 100 {
		return params, cfg, NewHTTPError400("trainable_parameters must be between 0 and 100")
	}
	cfg.Optimizer = optimizer
	cfg.TrainableParameters = *r.TrainableParameters
	return params, cfg, nil
}

func positiveField(name string, value *int) *HTTPError {
	if value == nil {
		return NewHTTPError400(name + " is required")
	}
	if *value <= 0 {
		return NewHTTPError400(name + " must be positive")
	}
	return nil
}

func fieldError(name string, err error) *HTTPError {
	return NewHTTPError400(fmt.Sprintf("%s: %v", name, err))
}
