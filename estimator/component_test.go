package estimator

import (
	"errors"
	"testing"
)

func TestAggregate(t *testing.T) {
	tests := []struct {
		name        string
		components  []Component
		expected    string
		wantWarning bool
	}{
		{
			name:       "all valid",
			components: []Component{okComponent("a", 14), okComponent("b", 1.5)},
			expected:   "15.50 GB",
		},
		{
			name:        "invalid component contributes zero",
			components:  []Component{okComponent("a", 14), invalidComponent("b", ErrUnknownDataType)},
			expected:    "14.00 GB *",
			wantWarning: true,
		},
		{
			name:        "negative magnitude is treated as invalid",
			components:  []Component{okComponent("a", 2), okComponent("b", -1)},
			expected:    "2.00 GB *",
			wantWarning: true,
		},
		{
			name:       "valid zero is not a warning",
			components: []Component{okComponent("a", 0), okComponent("b", 3)},
			expected:   "3.00 GB",
		},
		{
			name:     "no components",
			expected: "0.00 GB",
		},
		{
			name:        "only invalid",
			components:  []Component{invalidComponent("a", ErrNonPositive)},
			expected:    "0.00 GB *",
			wantWarning: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			total := Aggregate(tt.components...)
			if total.String() != tt.expected {
				t.Errorf("Aggregate() = %q, want %q", total.String(), tt.expected)
			}
			if total.Warning != tt.wantWarning {
				t.Errorf("Aggregate().Warning = %v, want %v", total.Warning, tt.wantWarning)
			}
		})
	}
}

func TestFormatGB(t *testing.T) {
	tests := []struct {
		gb       float64
		warning  bool
		expected string
	}{
		{14, false, "14.00 GB"},
		{17.113741824, false, "17.11 GB"},
		{0.004, false, "0.00 GB"},
		{1234.5, true, "1234.50 GB *"},
	}

	for _, tt := range tests {
		if got := FormatGB(tt.gb, tt.warning); got != tt.expected {
			t.Errorf("FormatGB(%v, %v) = %q, want %q", tt.gb, tt.warning, got, tt.expected)
		}
	}
}

func TestComponentScale(t *testing.T) {
	c := okComponent(OptimizerState, 56).Scale(0.5)
	if c.GB != 28 {
		t.Errorf("Scale(0.5) = %v, want 28", c.GB)
	}

	failed := invalidComponent(OptimizerState, ErrUnknownOptimizer).Scale(0.5)
	if !errors.Is(failed.Err, ErrUnknownOptimizer) || failed.GB != 0 {
		t.Errorf("Scale() on invalid component = %+v, want it unchanged", failed)
	}
}

func TestComponentWarning(t *testing.T) {
	if w := okComponent(KVCache, 1).Warning(); w != "" {
		t.Errorf("Warning() = %q, want empty", w)
	}
	if w := invalidComponent(KVCache, ErrUnknownDataType).Warning(); w != "kv_cache_memory: unknown data type" {
		t.Errorf("Warning() = %q", w)
	}
}
