// File: estimator/types.go

package estimator

// DataType is a numeric precision that model weights or the KV cache can be stored in
type DataType string

const (
	Float32  DataType = "float32"
	Float16  DataType = "float16"
	BFloat16 DataType = "bfloat16"
	Int8     DataType = "int8"
	Int4     DataType = "int4"
)

// dataTypeSizes maps each precision to its width in bytes per parameter
var dataTypeSizes = map[DataType]float64{
	Float32:  4,
	Float16:  2,
	BFloat16: 2,
	Int8:     1,
	Int4:     0.5,
}

// DataTypes lists the supported precisions, widest first
var DataTypes = []DataType{Float32, Float16, BFloat16, Int8, Int4}

// ByteWidth returns the bytes used per parameter and false for unknown precisions.
func (d DataType) ByteWidth() (float64, bool) {
	width, ok := dataTypeSizes[d]
	return width, ok
}

func (d DataType) Valid() bool {
	_, ok := dataTypeSizes[d]
	return ok
}

// Optimizer identifies a training optimizer by the name clients send
type Optimizer string

const (
	Adam           Optimizer = "Adam"
	AdamW          Optimizer = "AdamW"
	QuantizedAdamW Optimizer = "Quantized AdamW"
	SGD            Optimizer = "SGD"
)

// optimizerMultipliers holds the bytes of optimizer state kept per parameter
var optimizerMultipliers = map[Optimizer]float64{
	Adam:           8, // momentum + variance at 4 bytes each
	AdamW:          8,
	QuantizedAdamW: 2, // momentum + variance at 1 byte each
	SGD:            4, // momentum only
}

// Optimizers lists the supported optimizers in display order
var Optimizers = []Optimizer{Adam, AdamW, QuantizedAdamW, SGD}

// Multiplier returns the optimizer state bytes per parameter and false for unknown optimizers.
func (o Optimizer) Multiplier() (float64, bool) {
	m, ok := optimizerMultipliers[o]
	return m, ok
}

func (o Optimizer) Valid() bool {
	_, ok := optimizerMultipliers[o]
	return ok
}

// TuningMethod is offered to clients as a hint for picking trainable_parameters.
type TuningMethod string

const (
	SFT   TuningMethod = "SFT"
	LoRA  TuningMethod = "LoRA"
	QLoRA TuningMethod = "QLoRA"
)

var TuningMethods = []TuningMethod{SFT, LoRA, QLoRA}

// GradientDataType is the precision gradients are priced at regardless of weight precision
const GradientDataType = Float32

// ModelShape holds the architectural hyperparameters of a model
type ModelShape struct {
	ModelSize         float64 `json:"model_size"` // billions of parameters
	NumHiddenLayers   int     `json:"num_hidden_layers"`
	HiddenSize        int     `json:"hidden_size"`
	NumAttentionHeads int     `json:"num_attention_heads"`
	HeadDim           int     `json:"head_dim"`
	NumKeyValueHeads  int     `json:"num_key_value_heads"`
}

// KVHeads returns NumKeyValueHeads, falling back to NumAttentionHeads for plain multi-head attention.
func (s ModelShape) KVHeads() int {
	if s.NumKeyValueHeads > 0 {
		return s.NumKeyValueHeads
	}
	return s.NumAttentionHeads
}

// RuntimeConfig holds the per-request runtime choices
type RuntimeConfig struct {
	Precision               DataType  `json:"precision"`
	KVCachePrecision        DataType  `json:"kv_cache_precision"`
	BatchSize               int       `json:"batch_size"`
	SequenceLength          int       `json:"sequence_length"`
	UseFlashAttention       bool      `json:"use_flash_attention"`
	UsePageAttention        bool      `json:"use_page_attention"`
	Optimizer               Optimizer `json:"optimizer,omitempty"`
	TrainableParameters     float64   `json:"trainable_parameters"` // percent, 0-100
	IsMixedQuantized        bool      `json:"is_mixed_quantized"`
	MixedQuantizedRatio     float64   `json:"mixed_quantized_ratio"`
	MixedQuantizedPrecision DataType  `json:"mixed_quantized_precision,omitempty"`
}

// MixedQuantization describes the share of parameters stored at a secondary precision
type MixedQuantization struct {
	Ratio     float64
	Precision DataType
}

// Mixed returns the mixed quantisation split, or nil when it is disabled.
func (c RuntimeConfig) Mixed() *MixedQuantization {
	if !c.IsMixedQuantized {
		return nil
	}
	return &MixedQuantization{Ratio: c.MixedQuantizedRatio, Precision: c.MixedQuantizedPrecision}
}
