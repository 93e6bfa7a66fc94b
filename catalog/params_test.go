package catalog

import (
	"encoding/json"
	"testing"

	"github.com/sammcj/llmem/estimator"
)

func TestParseModelSize(t *testing.T) {
	tests := []struct {
		name     string
		expected float64
		found    bool
	}{
		{"Qwen3-8B", 8, true},
		{"Qwen3-0.6B", 0.6, true},
		{"Qwen3-30B-A3B", 30, true},
		{"Qwen3-1.7B-GPTQ-Int8", 1.7, true},
		{"llama-2-7b-chat", 7, true},
		{"SmolLM-360M", 0.36, true},
		{"gpt2", 0, false},
		{"", 0, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, found := ParseModelSize(tt.name)
			if found != tt.found || got != tt.expected {
				t.Errorf("ParseModelSize(%q) = %v, %v, want %v, %v", tt.name, got, found, tt.expected, tt.found)
			}
		})
	}
}

func TestExtractParams(t *testing.T) {
	var qwen ModelConfig
	if err := json.Unmarshal([]byte(qwen8BConfig), &qwen); err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		name     string
		model    string
		cfg      ModelConfig
		expected Params
	}{
		{
			name:  "complete config",
			model: "Qwen3-8B",
			cfg:   qwen,
			expected: Params{
				ModelShape: estimator.ModelShape{
					ModelSize:         8,
					NumHiddenLayers:   36,
					HiddenSize:        4096,
					NumAttentionHeads: 32,
					HeadDim:           128,
					NumKeyValueHeads:  8,
				},
				Precision: estimator.BFloat16,
			},
		},
		{
			name:  "empty config falls back to defaults",
			model: "mystery",
			cfg:   ModelConfig{},
			expected: Params{
				ModelShape: estimator.ModelShape{
					NumHiddenLayers:   36,
					HiddenSize:        4096,
					NumAttentionHeads: 32,
					HeadDim:           128,
					NumKeyValueHeads:  32,
				},
				Precision: estimator.Float32,
			},
		},
		{
			name:  "head dim derived from hidden size",
			model: "Llama-2-13B",
			cfg: ModelConfig{
				"hidden_size":         float64(5120),
				"num_attention_heads": float64(40),
				"num_hidden_layers":   float64(40),
				"dtype":               "float16",
			},
			expected: Params{
				ModelShape: estimator.ModelShape{
					ModelSize:         13,
					NumHiddenLayers:   40,
					HiddenSize:        5120,
					NumAttentionHeads: 40,
					HeadDim:           128,
					NumKeyValueHeads:  40,
				},
				Precision: estimator.Float16,
			},
		},
		{
			name:  "kv heads default to attention heads",
			model: "tiny-1B",
			cfg:   ModelConfig{"num_attention_heads": float64(16), "head_dim": float64(64)},
			expected: Params{
				ModelShape: estimator.ModelShape{
					ModelSize:         1,
					NumHiddenLayers:   36,
					HiddenSize:        4096,
					NumAttentionHeads: 16,
					HeadDim:           64,
					NumKeyValueHeads:  16,
				},
				Precision: estimator.Float32,
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ExtractParams(tt.model, tt.cfg); got != tt.expected {
				t.Errorf("ExtractParams() = %+v, want %+v", got, tt.expected)
			}
		})
	}
}

func TestExtractParamsJSON(t *testing.T) {
	params := ExtractParams("Qwen3-8B", ModelConfig{})
	data, err := json.Marshal(params)
	if err != nil {
		t.Fatal(err)
	}
	var fields map[string]any
	if err := json.Unmarshal(data, &fields); err != nil {
		t.Fatal(err)
	}
	for _, key := range []string{"model_size", "precision", "num_hidden_layers", "head_dim", "num_key_value_heads", "use_flash_attention", "use_page_attention"} {
		if _, ok := fields[key]; !ok {
			t.Errorf("extracted params JSON is missing %q: %s", key, data)
		}
	}
}
