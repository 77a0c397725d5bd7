// Package redis announces cell execution events over Redis.
//
// Every event is PUBLISHed to a channel whose name may embed the session
// id or status, so subscribers can follow one notebook with a plain
// SUBSCRIBE or everything with PSUBSCRIBE. When a history key is set the
// event is also pushed onto a capped list in the same MULTI/EXEC block,
// giving late subscribers the most recent cells.
package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/justapithecus/vkernel/adapter"
)

// DefaultChannel is used when no channel is configured.
const DefaultChannel = "vkernel:cell_executed"

// Placeholders expanded in Channel and HistoryKey.
const (
	PlaceholderSession = "{session_id}"
	PlaceholderStatus  = "{status}"
)

const (
	DefaultTimeout       = 5 * time.Second
	DefaultRetries       = 3
	DefaultHistoryLength = 100
)

// Config configures the Redis adapter.
type Config struct {
	URL           string // redis://[:password@]host:port[/db] (required)
	Channel       string // may contain placeholders
	HistoryKey    string // list of recent events; empty disables it
	HistoryLength int    // entries kept under HistoryKey
	Timeout       time.Duration
	Retries       int
}

func (c *Config) applyDefaults() {
	if c.Channel == "" {
		c.Channel = DefaultChannel
	}
	if c.HistoryKey != "" && c.HistoryLength == 0 {
		c.HistoryLength = DefaultHistoryLength
	}
	if c.Timeout <= 0 {
		c.Timeout = DefaultTimeout
	}
}

func (c *Config) validate() error {
	var errs []error
	if c.URL == "" {
		errs = append(errs, errors.New("url is required"))
	}
	if c.Retries < 0 {
		errs = append(errs, fmt.Errorf("retries must be >= 0, got %d", c.Retries))
	}
	if c.HistoryLength < 0 {
		errs = append(errs, fmt.Errorf("history length must be >= 0, got %d", c.HistoryLength))
	}
	return errors.Join(errs...)
}

// Adapter publishes events through a go-redis client.
type Adapter struct {
	channel    string
	historyKey string
	historyLen int64
	timeout    time.Duration
	retries    int
	client     *goredis.Client
}

// New creates a Redis adapter. The URL is parsed but not dialed.
func New(cfg Config) (*Adapter, error) {
	cfg.applyDefaults()
	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("redis adapter: %w", err)
	}
	opts, err := goredis.ParseURL(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("redis adapter: invalid URL: %w", err)
	}
	return &Adapter{
		channel:    cfg.Channel,
		historyKey: cfg.HistoryKey,
		historyLen: int64(cfg.HistoryLength),
		timeout:    cfg.Timeout,
		retries:    cfg.Retries,
		client:     goredis.NewClient(opts),
	}, nil
}

// expand substitutes event fields into a channel or key template.
func expand(template string, event *adapter.CellExecutedEvent) string {
	if !strings.Contains(template, "{") {
		return template
	}
	return strings.NewReplacer(
		PlaceholderSession, event.SessionID,
		PlaceholderStatus, event.Status,
	).Replace(template)
}

// Publish announces the event and, if configured, records it in history.
func (a *Adapter) Publish(ctx context.Context, event *adapter.CellExecutedEvent) error {
	body, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("redis: marshal event: %w", err)
	}
	channel := expand(a.channel, event)
	historyKey := expand(a.historyKey, event)

	return adapter.Retry(ctx, "redis", a.retries, func(ctx context.Context) error {
		attemptCtx, cancel := context.WithTimeout(ctx, a.timeout)
		defer cancel()

		_, err := a.client.TxPipelined(attemptCtx, func(pipe goredis.Pipeliner) error {
			pipe.Publish(attemptCtx, channel, body)
			if historyKey != "" {
				pipe.LPush(attemptCtx, historyKey, body)
				pipe.LTrim(attemptCtx, historyKey, 0, a.historyLen-1)
			}
			return nil
		})
		if errors.Is(err, goredis.ErrClosed) {
			return &adapter.Permanent{Err: err}
		}
		return err
	})
}

// Close closes the Redis client.
func (a *Adapter) Close() error {
	return a.client.Close()
}

var _ adapter.Adapter = (*Adapter)(nil)
