// Package telemetry defines the signal transport the acquisition engine talks through.
//
// A Port addresses apparatus signals by string path. Values are one of
// int64, float64, string, bool, or []float64. Implementations:
//   - MemoryPort: in-process store, optionally driven by a Simulator
//   - redisport.Port: Redis keys for values, pub/sub for change notification
package telemetry

import (
	"context"
	"errors"
	"fmt"
	"math"
)

// Sentinel errors for port operations.
var (
	// ErrNotFound indicates no signal exists at the requested path.
	ErrNotFound = errors.New("signal not found")
	// ErrRejected indicates the apparatus refused a write or trigger.
	ErrRejected = errors.New("rejected by apparatus")
	// ErrUnsupportedValue indicates a value outside the supported value types.
	ErrUnsupportedValue = errors.New("unsupported value type")
	// ErrClosed indicates the port has been closed.
	ErrClosed = errors.New("port closed")
)

// Port reads, writes, and triggers apparatus signals.
// Implementations must be safe for concurrent use.
type Port interface {
	// Read returns the current value at path.
	Read(ctx context.Context, path string) (any, error)
	// Write sets the value at path. When wait is true, Write returns only
	// after the apparatus has acknowledged the value.
	Write(ctx context.Context, path string, value any, wait bool) error
	// Trigger fires a command signal (e.g. begin run) and waits for acknowledgement.
	Trigger(ctx context.Context, path string) error
	// Subscribe returns a channel of value changes at path, starting with the
	// current value when one exists. The returned cancel func releases the
	// subscription and closes the channel.
	Subscribe(ctx context.Context, path string) (<-chan any, func(), error)
}

// Normalize converts v to one of the supported value types.
// Integer kinds become int64, float32 becomes float64, integer slices become []float64.
func Normalize(v any) (any, error) {
	switch x := v.(type) {
	case int64, float64, string, bool:
		return x, nil
	case int:
		return int64(x), nil
	case int32:
		return int64(x), nil
	case uint32:
		return int64(x), nil
	case int8:
		return int64(x), nil
	case int16:
		return int64(x), nil
	case uint8:
		return int64(x), nil
	case uint16:
		return int64(x), nil
	case uint64:
		if x > math.MaxInt64 {
			return nil, fmt.Errorf("%w: uint64 %d overflows int64", ErrUnsupportedValue, x)
		}
		return int64(x), nil
	case float32:
		return float64(x), nil
	case []float64:
		out := make([]float64, len(x))
		copy(out, x)
		return out, nil
	case []float32:
		out := make([]float64, len(x))
		for i, f := range x {
			out[i] = float64(f)
		}
		return out, nil
	case []int64:
		out := make([]float64, len(x))
		for i, n := range x {
			out[i] = float64(n)
		}
		return out, nil
	case []int32:
		out := make([]float64, len(x))
		for i, n := range x {
			out[i] = float64(n)
		}
		return out, nil
	case []any:
		out := make([]float64, len(x))
		for i, e := range x {
			f, err := AsFloat64(e)
			if err != nil {
				return nil, fmt.Errorf("%w: element %d: %v", ErrUnsupportedValue, i, err)
			}
			out[i] = f
		}
		return out, nil
	default:
		return nil, fmt.Errorf("%w: %T", ErrUnsupportedValue, v)
	}
}

// AsInt64 converts a numeric value to int64. Floats must be integral.
func AsInt64(v any) (int64, error) {
	n, err := Normalize(v)
	if err != nil {
		return 0, err
	}
	switch x := n.(type) {
	case int64:
		return x, nil
	case float64:
		if x != math.Trunc(x) || math.IsInf(x, 0) {
			return 0, fmt.Errorf("value %v is not integral", x)
		}
		return int64(x), nil
	case bool:
		if x {
			return 1, nil
		}
		return 0, nil
	default:
		return 0, fmt.Errorf("value of type %T is not numeric", v)
	}
}

// AsFloat64 converts a numeric value to float64.
func AsFloat64(v any) (float64, error) {
	switch x := v.(type) {
	case float64:
		return x, nil
	case float32:
		return float64(x), nil
	}
	n, err := Normalize(v)
	if err != nil {
		return 0, err
	}
	switch x := n.(type) {
	case int64:
		return float64(x), nil
	case float64:
		return x, nil
	default:
		return 0, fmt.Errorf("value of type %T is not numeric", v)
	}
}

// AsString returns v as a string.
func AsString(v any) (string, error) {
	s, ok := v.(string)
	if !ok {
		return "", fmt.Errorf("value of type %T is not a string", v)
	}
	return s, nil
}

// AsFloats converts an array value to []float64.
func AsFloats(v any) ([]float64, error) {
	n, err := Normalize(v)
	if err != nil {
		return nil, err
	}
	f, ok := n.([]float64)
	if !ok {
		return nil, fmt.Errorf("value of type %T is not an array", v)
	}
	return f, nil
}
