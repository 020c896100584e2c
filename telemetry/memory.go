package telemetry

import (
	"context"
	"fmt"
	"sync"
)

// subscriberBuffer is the per-subscriber channel capacity. When a subscriber
// falls behind, the oldest pending value is replaced by the newest.
const subscriberBuffer = 1

// TriggerHandler reacts to a command signal. A non-nil error rejects the command.
type TriggerHandler func(ctx context.Context) error

// WriteHandler reacts to a write. A non-nil error rejects the write; the
// handler is responsible for storing the value (via MemoryPort.Set) if accepted.
type WriteHandler func(ctx context.Context, value any) error

// WriteRecord is one logged write.
type WriteRecord struct {
	Path  string
	Value any
}

// MemoryPort is an in-process Port.
// Values written without a handler are stored as-is; triggers and writes with
// a registered handler are delegated to it. Every accepted or rejected trigger
// and write is logged for inspection.
type MemoryPort struct {
	mu       sync.Mutex
	values   map[string]any
	subs     map[string]map[int]chan any
	nextSub  int
	triggers map[string]TriggerHandler
	writers  map[string]WriteHandler
	trigLog  []string
	writeLog []WriteRecord
	closed   bool
}

// NewMemoryPort creates an empty MemoryPort.
func NewMemoryPort() *MemoryPort {
	return &MemoryPort{
		values:   make(map[string]any),
		subs:     make(map[string]map[int]chan any),
		triggers: make(map[string]TriggerHandler),
		writers:  make(map[string]WriteHandler),
	}
}

// HandleTrigger registers h for command path.
func (m *MemoryPort) HandleTrigger(path string, h TriggerHandler) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.triggers[path] = h
}

// HandleWrite registers h for writes to path.
func (m *MemoryPort) HandleWrite(path string, h WriteHandler) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.writers[path] = h
}

// Set stores value at path and notifies subscribers, bypassing handlers.
func (m *MemoryPort) Set(path string, value any) error {
	v, err := Normalize(value)
	if err != nil {
		return fmt.Errorf("set %s: %w", path, err)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return ErrClosed
	}
	m.values[path] = v
	for _, ch := range m.subs[path] {
		deliver(ch, v)
	}
	return nil
}

// MustSet is Set for test and simulator setup; it panics on unsupported values.
func (m *MemoryPort) MustSet(path string, value any) {
	if err := m.Set(path, value); err != nil {
		panic(err)
	}
}

// Read returns the value at path.
func (m *MemoryPort) Read(ctx context.Context, path string) (any, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return nil, ErrClosed
	}
	v, ok := m.values[path]
	if !ok {
		return nil, fmt.Errorf("read %s: %w", path, ErrNotFound)
	}
	if f, ok := v.([]float64); ok {
		out := make([]float64, len(f))
		copy(out, f)
		return out, nil
	}
	return v, nil
}

// Write stores value at path, or delegates to the registered write handler.
// MemoryPort acknowledges synchronously, so wait has no further effect.
func (m *MemoryPort) Write(ctx context.Context, path string, value any, _ bool) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	v, err := Normalize(value)
	if err != nil {
		return fmt.Errorf("write %s: %w", path, err)
	}
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return ErrClosed
	}
	m.writeLog = append(m.writeLog, WriteRecord{Path: path, Value: v})
	h := m.writers[path]
	m.mu.Unlock()

	if h != nil {
		if err := h(ctx, v); err != nil {
			return fmt.Errorf("write %s: %w", path, err)
		}
		return nil
	}
	return m.Set(path, v)
}

// Trigger fires the command at path.
// Without a registered handler the command is logged and accepted.
func (m *MemoryPort) Trigger(ctx context.Context, path string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return ErrClosed
	}
	m.trigLog = append(m.trigLog, path)
	h := m.triggers[path]
	m.mu.Unlock()

	if h == nil {
		return nil
	}
	if err := h(ctx); err != nil {
		return fmt.Errorf("trigger %s: %w", path, err)
	}
	return nil
}

// Subscribe returns a channel of value changes at path.
// The subscription ends when cancel is called or ctx is done.
func (m *MemoryPort) Subscribe(ctx context.Context, path string) (<-chan any, func(), error) {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return nil, nil, ErrClosed
	}
	ch := make(chan any, subscriberBuffer)
	id := m.nextSub
	m.nextSub++
	if m.subs[path] == nil {
		m.subs[path] = make(map[int]chan any)
	}
	m.subs[path][id] = ch
	if v, ok := m.values[path]; ok {
		ch <- v
	}
	m.mu.Unlock()

	done := make(chan struct{})
	cancel := sync.OnceFunc(func() {
		close(done)
		m.mu.Lock()
		defer m.mu.Unlock()
		if sub, ok := m.subs[path][id]; ok {
			delete(m.subs[path], id)
			close(sub)
		}
	})
	go func() {
		select {
		case <-ctx.Done():
			cancel()
		case <-done:
		}
	}()
	return ch, cancel, nil
}

// Triggers returns the logged command paths, in order.
func (m *MemoryPort) Triggers() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]string, len(m.trigLog))
	copy(out, m.trigLog)
	return out
}

// Writes returns the logged writes, in order.
func (m *MemoryPort) Writes() []WriteRecord {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]WriteRecord, len(m.writeLog))
	copy(out, m.writeLog)
	return out
}

// Close closes all subscriptions. Subsequent operations return ErrClosed.
func (m *MemoryPort) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return nil
	}
	m.closed = true
	for path, subs := range m.subs {
		for id, ch := range subs {
			close(ch)
			delete(subs, id)
		}
		delete(m.subs, path)
	}
	return nil
}

// deliver sends v without blocking, replacing a stale pending value.
// Callers hold m.mu.
func deliver(ch chan any, v any) {
	select {
	case ch <- v:
		return
	default:
	}
	select {
	case <-ch:
	default:
	}
	select {
	case ch <- v:
	default:
	}
}

var _ Port = (*MemoryPort)(nil)
