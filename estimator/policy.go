package estimator

// Policy holds the empirical tuning knobs used by the calculators.
// The zero value is not useful; start from DefaultPolicy.
type Policy struct {
	// PageAttentionFactor is the share of the naive KV cache that paged attention keeps resident.
	PageAttentionFactor float64 `json:"page_attention_factor" mapstructure:"page_attention_factor"`
	// FlashAttentionMultiplier approximates the streaming/recomputation cost of flash attention.
	FlashAttentionMultiplier float64 `json:"flash_attention_multiplier" mapstructure:"flash_attention_multiplier"`
	InferenceOverheadGB      float64 `json:"inference_overhead_gb" mapstructure:"inference_overhead_gb"`
	TrainingOverheadGB       float64 `json:"training_overhead_gb" mapstructure:"training_overhead_gb"`
}

const (
	DefaultPageAttentionFactor      = 0.14
	DefaultFlashAttentionMultiplier = 20
	DefaultInferenceOverheadGB      = 1.04
	DefaultTrainingOverheadGB       = 1.54
)

func DefaultPolicy() Policy {
	return Policy{
		PageAttentionFactor:      DefaultPageAttentionFactor,
		FlashAttentionMultiplier: DefaultFlashAttentionMultiplier,
		InferenceOverheadGB:      DefaultInferenceOverheadGB,
		TrainingOverheadGB:       DefaultTrainingOverheadGB,
	}
}

// withDefaults replaces non-positive knobs with their defaults
func (p Policy) withDefaults() Policy {
	d := DefaultPolicy()
	if p.PageAttentionFactor <= 0 {
		p.PageAttentionFactor = d.PageAttentionFactor
	}
	if p.FlashAttentionMultiplier <= 0 {
		p.FlashAttentionMultiplier = d.FlashAttentionMultiplier
	}
	if p.InferenceOverheadGB < 0 {
		p.InferenceOverheadGB = d.InferenceOverheadGB
	}
	if p.TrainingOverheadGB < 0 {
		p.TrainingOverheadGB = d.TrainingOverheadGB
	}
	return p
}
