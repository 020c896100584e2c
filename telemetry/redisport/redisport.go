// Package redisport implements telemetry.Port over Redis.
//
// Signal values live in Redis keys (<prefix><path>) as msgpack-encoded
// envelopes. Writes also PUBLISH the new value on <prefix>changes:<path> so
// subscribers see changes without polling. Triggers PUBLISH the command path
// on <prefix>cmd:<path>; the apparatus bridge listening there acknowledges by
// being subscribed, so a trigger nobody receives is rejected. A trigger is
// sent at most once: only a command that provably never left the client is
// retried.
package redisport

import (
	"context"
	"errors"
	"fmt"
	"net"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/pithecene-io/tally/telemetry"
)

// DefaultPrefix is the default key prefix.
const DefaultPrefix = "tally:"

// DefaultTimeout is the default per-command timeout.
const DefaultTimeout = 5 * time.Second

// DefaultRetries is the default number of retries of an unsent trigger.
const DefaultRetries = 3

// DefaultBackoff is the default delay before the first trigger retry.
// Each further retry doubles it.
const DefaultBackoff = 500 * time.Millisecond

// Config configures the Redis port.
type Config struct {
	// URL is the Redis connection URL (required).
	// Format: redis://[:password@]host:port[/db]
	URL string
	// Prefix is prepended to every key and channel (default: tally:).
	Prefix string
	// Timeout is the per-command timeout (default 5s).
	Timeout time.Duration
	// Retries is how often a trigger that could not be sent (no connection
	// could be dialled or taken from the pool) is retried. Nil selects
	// DefaultRetries; zero disables retries.
	Retries *int
	// Backoff is the delay before the first retry (default 500ms).
	Backoff time.Duration
}

// Port is a telemetry.Port backed by Redis.
type Port struct {
	config  Config
	retries int
	client  *goredis.Client
	// commands publishes triggers with the client's own command retries
	// disabled, so a command that may have been delivered is not resent.
	commands *goredis.Client
}

// New creates a Redis port from the given config.
// Returns an error if the URL is empty or invalid.
func New(cfg Config) (*Port, error) {
	if cfg.URL == "" {
		return nil, errors.New("redis port requires a URL")
	}

	opts, err := goredis.ParseURL(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("redis port: invalid URL: %w", err)
	}

	if cfg.Prefix == "" {
		cfg.Prefix = DefaultPrefix
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	if cfg.Backoff <= 0 {
		cfg.Backoff = DefaultBackoff
	}
	retries := DefaultRetries
	if cfg.Retries != nil {
		retries = *cfg.Retries
	}
	if retries < 0 {
		return nil, fmt.Errorf("retries must be >= 0, got %d", retries)
	}

	cmdOpts := *opts
	cmdOpts.MaxRetries = -1
	return &Port{
		config:   cfg,
		retries:  retries,
		client:   goredis.NewClient(opts),
		commands: goredis.NewClient(&cmdOpts),
	}, nil
}

func (p *Port) key(path string) string { return p.config.Prefix + path }

// ChangesChannel returns the channel carrying value changes of path.
func (p *Port) ChangesChannel(path string) string {
	return p.config.Prefix + "changes:" + path
}

// CommandChannel returns the channel carrying trigger commands for path.
func (p *Port) CommandChannel(path string) string {
	return p.config.Prefix + "cmd:" + path
}

// Read returns the value stored at path.
func (p *Port) Read(ctx context.Context, path string) (any, error) {
	cmdCtx, cancel := context.WithTimeout(ctx, p.config.Timeout)
	defer cancel()

	raw, err := p.client.Get(cmdCtx, p.key(path)).Bytes()
	if errors.Is(err, goredis.Nil) {
		return nil, fmt.Errorf("read %s: %w", path, telemetry.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	v, err := decode(raw)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	return v, nil
}

// Write stores value at path and publishes the change.
// Redis acknowledges SET synchronously, so wait has no further effect.
func (p *Port) Write(ctx context.Context, path string, value any, _ bool) error {
	raw, err := encode(value)
	if err != nil {
		return fmt.Errorf("write %s: %w", path, err)
	}

	cmdCtx, cancel := context.WithTimeout(ctx, p.config.Timeout)
	defer cancel()

	_, err = p.client.Pipelined(cmdCtx, func(pipe goredis.Pipeliner) error {
		pipe.Set(cmdCtx, p.key(path), raw, 0)
		pipe.Publish(cmdCtx, p.ChangesChannel(path), raw)
		return nil
	})
	if err != nil {
		return fmt.Errorf("write %s: %w", path, err)
	}
	return nil
}

// Trigger publishes the command for path once. A failure that may have
// reached Redis is returned as is; only a command that was never sent is
// retried, with exponential backoff. A command with no receiver is rejected
// without retry.
func (p *Port) Trigger(ctx context.Context, path string) error {
	var lastErr error
	attempts := 1 + p.retries

	for i := range attempts {
		if err := ctx.Err(); err != nil {
			return fmt.Errorf("trigger %s: context canceled: %w", path, err)
		}

		if i > 0 {
			backoff := p.config.Backoff << uint(i-1)
			select {
			case <-ctx.Done():
				return fmt.Errorf("trigger %s: context canceled during backoff: %w", path, ctx.Err())
			case <-time.After(backoff):
			}
		}

		cmdCtx, cancel := context.WithTimeout(ctx, p.config.Timeout)
		receivers, err := p.commands.Publish(cmdCtx, p.CommandChannel(path), path).Result()
		cancel()

		if err == nil {
			if receivers == 0 {
				return fmt.Errorf("trigger %s: %w: no apparatus listening", path, telemetry.ErrRejected)
			}
			return nil
		}
		if !unsent(err) {
			return fmt.Errorf("trigger %s: %w", path, err)
		}
		lastErr = err
	}

	return fmt.Errorf("trigger %s: not sent after %d attempts: %w", path, attempts, lastErr)
}

// unsent reports whether err proves a command never left the client.
func unsent(err error) bool {
	if errors.Is(err, goredis.ErrPoolTimeout) {
		return true
	}
	var opErr *net.OpError
	return errors.As(err, &opErr) && opErr.Op == "dial"
}

// Subscribe streams value changes of path, starting with the stored value if any.
func (p *Port) Subscribe(ctx context.Context, path string) (<-chan any, func(), error) {
	pubsub := p.client.Subscribe(ctx, p.ChangesChannel(path))
	// Wait for the subscription to be confirmed so no change is missed
	// between the initial read and the first notification.
	if _, err := pubsub.Receive(ctx); err != nil {
		_ = pubsub.Close()
		return nil, nil, fmt.Errorf("subscribe %s: %w", path, err)
	}

	out := make(chan any, 1)
	current, err := p.Read(ctx, path)
	switch {
	case err == nil:
		out <- current
	case errors.Is(err, telemetry.ErrNotFound):
	default:
		_ = pubsub.Close()
		return nil, nil, fmt.Errorf("subscribe %s: %w", path, err)
	}

	subCtx, cancel := context.WithCancel(ctx)
	msgs := pubsub.Channel()
	go func() {
		defer close(out)
		defer func() { _ = pubsub.Close() }()
		for {
			select {
			case <-subCtx.Done():
				return
			case msg, ok := <-msgs:
				if !ok {
					return
				}
				v, err := decode([]byte(msg.Payload))
				if err != nil {
					continue
				}
				deliverLatest(out, v)
			}
		}
	}()
	return out, cancel, nil
}

// Close releases port resources.
func (p *Port) Close() error {
	return errors.Join(p.client.Close(), p.commands.Close())
}

func deliverLatest(ch chan any, v any) {
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

var _ telemetry.Port = (*Port)(nil)
