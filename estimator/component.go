package estimator

import (
	"errors"
	"fmt"
)

// Component names as they appear in reports and API responses
const (
	ModelWeights     = "model_weights_memory"
	KVCache          = "kv_cache_memory"
	Activation       = "activation_memory"
	OptimizerState   = "optimizer_memory"
	Gradients        = "gradients_memory"
	Overhead         = "overhead_memory"
	InferenceTotal   = "inference_memory"
	TrainingTotal    = "training_memory"
	warningMarker    = " *"
	gigabyteTemplate = "%.2f GB"
)

var (
	ErrUnknownDataType  = errors.New("unknown data type")
	ErrUnknownOptimizer = errors.New("unknown optimizer")
	ErrNonPositive      = errors.New("value must be positive")
	ErrOutOfRange       = errors.New("value out of range")
)

// Component is the result of a single calculator: either a magnitude in GB or
// the reason it could not be computed.
type Component struct {
	Name string
	GB   float64
	Err  error
}

func okComponent(name string, gb float64) Component {
	return Component{Name: name, GB: gb}
}

func invalidComponent(name string, err error) Component {
	return Component{Name: name, Err: err}
}

// Valid reports whether the component was computed and is non-negative.
func (c Component) Valid() bool {
	return c.Err == nil && c.GB >= 0
}

// Warning describes why the component is invalid, or "" when it is valid.
func (c Component) Warning() string {
	switch {
	case c.Err != nil:
		return fmt.Sprintf("%s: %v", c.Name, c.Err)
	case c.GB < 0:
		return fmt.Sprintf("%s: negative magnitude %.2f GB", c.Name, c.GB)
	}
	return ""
}

// Scale multiplies a valid component by f. Invalid components pass through unchanged.
func (c Component) Scale(f float64) Component {
	if c.Err != nil {
		return c
	}
	c.GB *= f
	return c
}

// String renders the component the way it is reported on its own.
func (c Component) String() string {
	return Aggregate(c).String()
}

// Total is the aggregate of a set of components
type Total struct {
	GB      float64 `json:"gb"`
	Warning bool    `json:"warning"`
}

// Aggregate sums the valid components. Invalid ones contribute 0 and raise the warning flag.
func Aggregate(components ...Component) Total {
	var t Total
	for _, c := range components {
		if c.Valid() {
			t.GB += c.GB
		} else {
			t.Warning = true
		}
	}
	return t
}

func (t Total) String() string {
	return FormatGB(t.GB, t.Warning)
}

// FormatGB renders a magnitude with two decimals, appending a marker when part of it was invalid.
func FormatGB(gb float64, warning bool) string {
	s := fmt.Sprintf(gigabyteTemplate, gb)
	if warning {
		s += warningMarker
	}
	return s
}
