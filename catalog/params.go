package catalog

import (
	"regexp"
	"strconv"
	"strings"

	"github.com/sammcj/llmem/estimator"
)

// Fallbacks for fields a config file leaves out
const (
	DefaultNumHiddenLayers   = 36
	DefaultHiddenSize        = 4096
	DefaultNumAttentionHeads = 32
	DefaultHeadDim           = 128
	DefaultPrecision         = estimator.Float32
)

var modelSizePattern = regexp.MustCompile(`(?i)\d+(\.\d+)?(b|m)`)

// Params is what a model config contributes to an estimate.
type Params struct {
	estimator.ModelShape
	Precision         estimator.DataType `json:"precision"`
	UseFlashAttention bool               `json:"use_flash_attention"`
	UsePageAttention  bool               `json:"use_page_attention"`
}

// ParseModelSize reads the parameter count, in billions, from a name such as
// "Qwen3-0.6B" or "SmolLM-360M". The first match wins.
func ParseModelSize(name string) (float64, bool) {
	match := modelSizePattern.FindString(name)
	if match == "" {
		return 0, false
	}
	size, err := strconv.ParseFloat(match[:len(match)-1], 64)
	if err != nil {
		return 0, false
	}
	if strings.EqualFold(match[len(match)-1:], "m") {
		size /= 1000
	}
	return size, true
}

// ExtractParams derives the model shape from its name and config. A model size that cannot
// be parsed stays zero, which the estimator reports as a warning rather than guessing.
func ExtractParams(name string, cfg ModelConfig) Params {
	size, _ := ParseModelSize(name)

	heads := cfg.Int("num_attention_heads", DefaultNumAttentionHeads)
	hidden := cfg.Int("hidden_size", DefaultHiddenSize)

	headDim := DefaultHeadDim
	if _, ok := cfg["hidden_size"]; ok && heads > 0 && hidden%heads == 0 {
		headDim = hidden / heads
	}
	headDim = cfg.Int("head_dim", headDim)

	precision := cfg.Str("torch_dtype", cfg.Str("dtype", string(DefaultPrecision)))

	return Params{
		ModelShape: estimator.ModelShape{
			ModelSize:         size,
			NumHiddenLayers:   cfg.Int("num_hidden_layers", DefaultNumHiddenLayers),
			HiddenSize:        hidden,
			NumAttentionHeads: heads,
			HeadDim:           headDim,
			NumKeyValueHeads:  cfg.Int("num_key_value_heads", heads),
		},
		Precision: estimator.DataType(precision),
	}
}

// Int returns a numeric field, or def when it is missing or not a number.
func (c ModelConfig) Int(key string, def int) int {
	switch v := c[key].(type) {
	case float64:
		return int(v)
	case int:
		return v
	case int64:
		return int(v)
	}
	return def
}

// Str returns a string field, or def when it is missing or empty.
func (c ModelConfig) Str(key, def string) string {
	if v, ok := c[key].(string); ok && v != "" {
		return v
	}
	return def
}
