package strategy

import (
	"context"

	"github.com/pithecene-io/tally/clock"
	"github.com/pithecene-io/tally/types"
)

// FuncReadable publishes a value held by a strategy rather than read from
// the apparatus, e.g. the run number a point counted into.
type FuncReadable struct {
	desc  types.Descriptor
	clock clock.Clock
	value func() any
}

// NewFuncReadable creates a readable described by desc whose value is value().
func NewFuncReadable(desc types.Descriptor, clk clock.Clock, value func() any) *FuncReadable {
	if clk == nil {
		clk = clock.Real{}
	}
	return &FuncReadable{desc: desc, clock: clk, value: value}
}

// Name returns the channel name.
func (r *FuncReadable) Name() string { return r.desc.Name }

// Describe returns the channel descriptor.
func (r *FuncReadable) Describe() types.Descriptor { return r.desc }

// Read returns the current value.
func (r *FuncReadable) Read(context.Context) (types.Reading, error) {
	return types.Reading{Value: r.value(), Timestamp: r.clock.Now()}, nil
}

var _ Readable = (*FuncReadable)(nil)
