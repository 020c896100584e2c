package redisport

import (
	"fmt"

	"github.com/vmihailenco/msgpack/v5"

	"github.com/pithecene-io/tally/telemetry"
)

// Value kinds in the wire envelope.
const (
	kindInt    = "i"
	kindFloat  = "f"
	kindString = "s"
	kindBool   = "b"
	kindArray  = "a"
)

// envelope is the msgpack wire form of a signal value. The explicit kind
// keeps int64 and float64 distinct across the round trip.
type envelope struct {
	Kind   string    `msgpack:"k"`
	Int    int64     `msgpack:"i,omitempty"`
	Float  float64   `msgpack:"f,omitempty"`
	String string    `msgpack:"s,omitempty"`
	Bool   bool      `msgpack:"b,omitempty"`
	Array  []float64 `msgpack:"a,omitempty"`
}

func encode(value any) ([]byte, error) {
	v, err := telemetry.Normalize(value)
	if err != nil {
		return nil, err
	}
	var env envelope
	switch x := v.(type) {
	case int64:
		env = envelope{Kind: kindInt, Int: x}
	case float64:
		env = envelope{Kind: kindFloat, Float: x}
	case string:
		env = envelope{Kind: kindString, String: x}
	case bool:
		env = envelope{Kind: kindBool, Bool: x}
	case []float64:
		env = envelope{Kind: kindArray, Array: x}
	}
	return msgpack.Marshal(&env)
}

func decode(raw []byte) (any, error) {
	var env envelope
	if err := msgpack.Unmarshal(raw, &env); err != nil {
		return nil, fmt.Errorf("decode value: %w", err)
	}
	switch env.Kind {
	case kindInt:
		return env.Int, nil
	case kindFloat:
		return env.Float, nil
	case kindString:
		return env.String, nil
	case kindBool:
		return env.Bool, nil
	case kindArray:
		if env.Array == nil {
			return []float64{}, nil
		}
		return env.Array, nil
	default:
		return nil, fmt.Errorf("decode value: unknown kind %q", env.Kind)
	}
}
