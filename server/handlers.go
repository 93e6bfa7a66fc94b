package server

import (
	"fmt"
	"math"
	"net/http"

	"github.com/gorilla/mux"
	"github.com/rs/zerolog/log"
	"github.com/sammcj/llmem/catalog"
	"github.com/sammcj/llmem/estimator"
)

// AttentionMechanisms is shown to clients for reference. Only flash and paged
// attention change the estimate; the others are expressed through the model shape.
var AttentionMechanisms = []string{
	"Multi-Head Attention",
	"Multi-Query Attention",
	"Grouped-Query Attention",
	"Flash Attention",
	"Page Attention",
}

type SystemMemory struct {
	TotalMemoryGB     float64 `json:"total_memory_gb"`
	AvailableMemoryGB float64 `json:"available_memory_gb"`
}

type HealthResponse struct {
	Status  string        `json:"status"`
	Service string        `json:"service"`
	Version string        `json:"version"`
	System  *SystemMemory `json:"system,omitempty"`
}

type ModelsResponse struct {
	Models []string `json:"models"`
	Count  int      `json:"count"`
}

type ModelResponse struct {
	ModelName       string              `json:"model_name"`
	Config          catalog.ModelConfig `json:"config"`
	ExtractedParams catalog.Params      `json:"extracted_params"`
}

type OptionsResponse struct {
	DataTypes           []estimator.DataType     `json:"data_types"`
	Optimizers          []estimator.Optimizer    `json:"optimizers"`
	SFTOrPEFT           []estimator.TuningMethod `json:"sft_or_peft"`
	AttentionMechanisms []string                 `json:"attention_mechanisms"`
	AvailableModels     []string                 `json:"available_models"`
}

func (s *Server) health(_ http.ResponseWriter, _ *http.Request) (HealthResponse, *HTTPError) {
	resp := HealthResponse{Status: "healthy", Service: ServiceName, Version: s.version}

	vmStat, err := s.memory()
	if err != nil {
		log.Debug().Err(err).Msg("Failed to read system memory")
		return resp, nil
	}
	resp.System = &SystemMemory{
		TotalMemoryGB:     roundGB(vmStat.Total),
		AvailableMemoryGB: roundGB(vmStat.Available),
	}
	return resp, nil
}

func roundGB(bytes uint64) float64 {
	return math.Round(float64(bytes)/math.Pow(1024, 3)*100) / 100
}

func (s *Server) listModels(_ http.ResponseWriter, _ *http.Request) (ModelsResponse, *HTTPError) {
	models := s.catalog.Names()
	return ModelsResponse{Models: models, Count: len(models)}, nil
}

func (s *Server) getModel(_ http.ResponseWriter, req *http.Request) (ModelResponse, *HTTPError) {
	name := mux.Vars(req)["model_name"]
	cfg, ok := s.catalog.Get(name)
	if !ok {
		return ModelResponse{}, NewHTTPError404(fmt.Sprintf("Model %q not found", name))
	}
	return ModelResponse{
		ModelName:       name,
		Config:          cfg,
		ExtractedParams: catalog.ExtractParams(name, cfg),
	}, nil
}

func (s *Server) calculateInference(_ http.ResponseWriter, req *http.Request) (EstimateResponse, *HTTPError) {
	var body InferenceRequest
	if err := decodeRequest(req, &body); err != nil {
		return EstimateResponse{}, err
	}
	params, cfg, err := body.resolve(s.catalog)
	if err != nil {
		return EstimateResponse{}, err
	}

	report := s.estimator.Inference(params.ModelShape, cfg)
	return s.respond(body.ModelName, params.ModelShape, cfg, report), nil
}

func (s *Server) calculateTraining(_ http.ResponseWriter, req *http.Request) (EstimateResponse, *HTTPError) {
	var body TrainingRequest
	if err := decodeRequest(req, &body); err != nil {
		return EstimateResponse{}, err
	}
	params, cfg, err := body.resolve(s.catalog)
	if err != nil {
		return EstimateResponse{}, err
	}

	report := s.estimator.Training(params.ModelShape, cfg)
	return s.respond(body.ModelName, params.ModelShape, cfg, report), nil
}

func (s *Server) respond(model string, shape estimator.ModelShape, cfg estimator.RuntimeConfig, report estimator.Report) EstimateResponse {
	s.metrics.ObserveEstimate(report)

	warnings := report.Warnings()
	if warnings == nil {
		warnings = []string{}
	} else {
		log.Warn().Str("model", model).Strs("warnings", warnings).Msg("Estimate has invalid components")
	}

	return EstimateResponse{
		CalculationType:    report.Kind,
		Parameters:         EstimateParameters{ModelName: model, ModelShape: shape, RuntimeConfig: cfg},
		MemoryRequirements: report.Breakdown(),
		Warnings:           warnings,
	}
}

func (s *Server) configOptions(_ http.ResponseWriter, _ *http.Request) (OptionsResponse, *HTTPError) {
	return OptionsResponse{
		DataTypes:           estimator.DataTypes,
		Optimizers:          estimator.Optimizers,
		SFTOrPEFT:           estimator.TuningMethods,
		AttentionMechanisms: AttentionMechanisms,
		AvailableModels:     s.catalog.Names(),
	}, nil
}
