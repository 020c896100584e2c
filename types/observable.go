package types

import (
	"fmt"
	"math"
	"time"
)

// Observable is the reduced result of a single point.
type Observable struct {
	// Value is the reduced scalar.
	Value float64
	// Uncertainty is the one-sigma uncertainty of Value. Always >= 0.
	Uncertainty float64
	// Metadata holds extra channels computed alongside Value, keyed by channel name.
	// Values are float64 or []float64.
	Metadata map[string]any
}

// Validate checks the observable invariants: finite value, finite non-negative uncertainty.
func (o Observable) Validate() error {
	if math.IsNaN(o.Value) || math.IsInf(o.Value, 0) {
		return fmt.Errorf("value is not finite: %v", o.Value)
	}
	if math.IsNaN(o.Uncertainty) || math.IsInf(o.Uncertainty, 0) || o.Uncertainty < 0 {
		return fmt.Errorf("uncertainty must be finite and >= 0, got %v", o.Uncertainty)
	}
	return nil
}

// Dtype names the type of a published channel.
type Dtype string

// Channel dtypes.
const (
	DtypeInteger Dtype = "integer"
	DtypeNumber  Dtype = "number"
	DtypeString  Dtype = "string"
	DtypeBoolean Dtype = "boolean"
	DtypeArray   Dtype = "array"
)

// Descriptor declares a published channel.
type Descriptor struct {
	Name      string `json:"name" yaml:"name"`
	Source    string `json:"source" yaml:"source"`
	Dtype     Dtype  `json:"dtype" yaml:"dtype"`
	Units     string `json:"units,omitempty" yaml:"units,omitempty"`
	Precision *int   `json:"precision,omitempty" yaml:"precision,omitempty"`
}

// Reading is a single channel value captured at a point.
type Reading struct {
	Value     any       `json:"value" yaml:"value"`
	Timestamp time.Time `json:"timestamp" yaml:"timestamp"`
}

// Precision returns a pointer to p for Descriptor literals.
func Precision(p int) *int {
	return &p
}
