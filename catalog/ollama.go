package catalog

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"os"
	"sort"
	"strings"

	"github.com/ollama/ollama/api"
	"github.com/sammcj/llmem/estimator"
	"github.com/sammcj/llmem/logging"
	"github.com/sammcj/llmem/utils"
)

// OllamaSource reads model shapes from the metadata a running Ollama server reports.
type OllamaSource struct {
	client *api.Client
	host   string
	remote bool
}

// NewOllamaSource connects to host, or to OLLAMA_HOST (default 127.0.0.1:11434) when host is empty.
func NewOllamaSource(host string) (*OllamaSource, error) {
	var source *OllamaSource
	if host == "" {
		client, err := api.ClientFromEnvironment()
		if err != nil {
			return nil, fmt.Errorf("failed to create ollama client: %w", err)
		}
		host = os.Getenv("OLLAMA_HOST")
		source = &OllamaSource{client: client}
	} else {
		base := host
		if !strings.Contains(base, "://") {
			base = "http://" + base
		}
		u, err := url.Parse(base)
		if err != nil {
			return nil, fmt.Errorf("error parsing ollama host: %w", err)
		}
		source = &OllamaSource{client: api.NewClient(u, &http.Client{})}
	}

	source.host = host
	source.remote = !utils.IsLocalhost(host)
	if source.remote {
		logging.InfoLogger.Info().Str("host", host).Msg("Using remote Ollama host")
	}
	return source, nil
}

// Host is the server address as configured, empty for the client default.
func (s *OllamaSource) Host() string {
	return s.host
}

// Remote reports whether the server is on another machine. Its models then say
// nothing about what fits locally.
func (s *OllamaSource) Remote() bool {
	return s.remote
}

// Names lists the models the server has pulled.
func (s *OllamaSource) Names(ctx context.Context) ([]string, error) {
	resp, err := s.client.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("error fetching models: %w", err)
	}
	names := make([]string, 0, len(resp.Models))
	for _, m := range resp.Models {
		names = append(names, m.Name)
	}
	sort.Strings(names)
	return names, nil
}

// Params fetches a model's metadata and turns it into estimator inputs.
func (s *OllamaSource) Params(ctx context.Context, name string) (Params, ModelConfig, error) {
	resp, err := s.client.Show(ctx, &api.ShowRequest{Model: name})
	if err != nil {
		return Params{}, nil, fmt.Errorf("error getting model details for %s: %w", name, err)
	}

	cfg, size := ConfigFromOllama(resp)
	params := ExtractParams(name, cfg)
	if size > 0 {
		params.ModelSize = size
	}
	logging.DebugLogger.Debug().Str("model", name).Float64("model_size", params.ModelSize).Msg("Read model shape from ollama")
	return params, cfg, nil
}

// ConfigFromOllama maps GGUF metadata keys onto HuggingFace config names and
// returns the parameter count in billions when the server reports one.
func ConfigFromOllama(resp *api.ShowResponse) (ModelConfig, float64) {
	info := resp.ModelInfo
	arch, _ := info["general.architecture"].(string)

	cfg := ModelConfig{}
	if arch != "" {
		cfg["model_type"] = arch
	}
	keys := map[string]string{
		"num_hidden_layers":   "block_count",
		"hidden_size":         "embedding_length",
		"num_attention_heads": "attention.head_count",
		"num_key_value_heads": "attention.head_count_kv",
		"head_dim":            "attention.key_length",
	}
	for hfKey, ggufKey := range keys {
		// per-layer head counts come back as arrays and are left to the defaults
		if v, ok := info[arch+"."+ggufKey].(float64); ok && v > 0 {
			cfg[hfKey] = v
		}
	}
	if dtype := QuantizationDataType(resp.Details.QuantizationLevel); dtype != "" {
		cfg["torch_dtype"] = string(dtype)
	}

	var size float64
	if count, ok := info["general.parameter_count"].(float64); ok && count > 0 {
		size = count / 1e9
	} else if parsed, ok := ParseModelSize(resp.Details.ParameterSize); ok {
		size = parsed
	}
	return cfg, size
}

// QuantizationDataType maps an Ollama quantisation level to the nearest precision
// that is at least as wide, or "" when it is not recognised.
func QuantizationDataType(level string) estimator.DataType {
	level = strings.ToUpper(level)
	switch {
	case level == "F32":
		return estimator.Float32
	case level == "F16":
		return estimator.Float16
	case level == "BF16":
		return estimator.BFloat16
	case strings.HasPrefix(level, "Q8"), strings.HasPrefix(level, "Q6"), strings.HasPrefix(level, "Q5"):
		return estimator.Int8
	case strings.HasPrefix(level, "Q4"), strings.HasPrefix(level, "IQ4"),
		strings.HasPrefix(level, "Q3"), strings.HasPrefix(level, "IQ3"),
		strings.HasPrefix(level, "Q2"), strings.HasPrefix(level, "IQ2"), strings.HasPrefix(level, "IQ1"):
		return estimator.Int4
	}
	return ""
}
