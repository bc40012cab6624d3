// Poller implements the RedisQ long-poll loop (spec.md §4.1). Its
// ServiceState/metrics shape is grounded on the teacher's
// RedisQConsumer in internal/zkillboard/services/redisq_consumer.go:
// an atomic state machine exposing a GetStatus snapshot, advanced by a
// single pollLoop goroutine.
package zkb

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/url"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"wandererkills/internal/platform/apperr"
	"wandererkills/internal/platform/clock"
	"wandererkills/internal/platform/config"
	"wandererkills/internal/platform/httpfetch"
)

// State is the poller's lifecycle state.
type State int32

const (
	StateIdle State = iota
	StateRunning
	StateStopped
)

func (s State) String() string {
	switch s {
	case StateRunning:
		return "running"
	case StateStopped:
		return "stopped"
	default:
		return "idle"
	}
}

// Metrics are the atomic counters exposed via Status, mirroring the
// teacher's ConsumerMetrics.
type Metrics struct {
	KillsReceived   atomic.Int64
	KillsSkippedOld atomic.Int64
	Errors          atomic.Int64
	LastPollAt      atomic.Int64 // unix nano
}

// Status is a point-in-time snapshot for /health and /metrics.
type Status struct {
	State           string    `json:"state"`
	QueueID         string    `json:"queue_id"`
	BackoffCurrent  time.Duration `json:"backoff_current_ns"`
	KillsReceived   int64     `json:"kills_received"`
	KillsSkippedOld int64     `json:"kills_skipped_old"`
	Errors          int64     `json:"errors"`
	LastPollAt      time.Time `json:"last_poll_at"`
}

// Handler processes one successfully-received killmail. Errors are
// logged and counted by the poller but never stop the loop (spec.md
// §4.1: "Failures to parse/store are logged and counted but do not
// halt the loop").
type Handler func(ctx context.Context, km RawKillmail, zkbMeta ZKBData, cutoff time.Time) error

// Poller is the single long-lived RedisQ ingestion task.
type Poller struct {
	cfg     config.ZKBConfig
	fetcher *httpfetch.Fetcher
	clk     clock.Clock
	handle  Handler
	log     *slog.Logger

	queueID string
	state   atomic.Int32
	backoff atomic.Int64 // current backoff in nanoseconds
	metrics Metrics
}

// New builds a Poller with a freshly generated stable queue ID, the
// way the teacher establishes RedisQConsumer's identity at startup.
func New(cfg config.ZKBConfig, fetcher *httpfetch.Fetcher, clk clock.Clock, handle Handler, log *slog.Logger) *Poller {
	if clk == nil {
		clk = clock.Real{}
	}
	if log == nil {
		log = slog.Default()
	}
	p := &Poller{
		cfg:     cfg,
		fetcher: fetcher,
		clk:     clk,
		handle:  handle,
		log:     log,
		queueID: uuid.NewString(),
	}
	p.backoff.Store(int64(cfg.BackoffInitial))
	return p
}

// Run executes the poll loop until ctx is cancelled. It honors
// cancellation between polls (spec.md §5).
func (p *Poller) Run(ctx context.Context) {
	p.state.Store(int32(StateRunning))
	defer p.state.Store(int32(StateStopped))

	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		delay := p.pollOnce(ctx)
		p.metrics.LastPollAt.Store(p.clk.Now().UnixNano())

		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return
		case <-timer.C:
		}
	}
}

// pollOnce issues one GET and returns the delay before the next poll.
func (p *Poller) pollOnce(ctx context.Context) time.Duration {
	endpoint := fmt.Sprintf("%s?queueID=%s&ttw=1", p.cfg.RedisQEndpoint, url.QueryEscape(p.queueID))

	body, err := p.fetcher.Get(ctx, endpoint, httpfetch.Options{Upstream: "zkb"})
	if err != nil {
		return p.onError(err)
	}

	var resp RedisQResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return p.onError(apperr.Wrap(apperr.KindUpstream, apperr.CodeZKBError, "unexpected_format", err))
	}

	if resp.Package == nil {
		p.resetBackoff()
		return p.cfg.IdleInterval
	}

	cutoff := p.clk.Now().Add(-p.cfg.CutoffWindow)
	if err := p.handle(ctx, resp.Package.Killmail, resp.Package.ZKB, cutoff); err != nil {
		p.metrics.Errors.Add(1)
		p.log.Error("killmail handling failed", "error", err, "queue_id", p.queueID)
		p.resetBackoff()
		return p.cfg.IdleInterval
	}

	p.metrics.KillsReceived.Add(1)
	p.resetBackoff()
	return p.cfg.FastInterval
}

func (p *Poller) onError(err error) time.Duration {
	p.metrics.Errors.Add(1)
	p.log.Warn("redisq poll failed", "error", err, "queue_id", p.queueID)

	current := time.Duration(p.backoff.Load())
	next := time.Duration(float64(current) * p.cfg.BackoffFactor)
	if next > p.cfg.BackoffMax {
		next = p.cfg.BackoffMax
	}
	p.backoff.Store(int64(next))
	return next
}

func (p *Poller) resetBackoff() {
	p.backoff.Store(int64(p.cfg.BackoffInitial))
}

// Status returns a snapshot of the poller's current state and counters.
func (p *Poller) Status() Status {
	return Status{
		State:           State(p.state.Load()).String(),
		QueueID:         p.queueID,
		BackoffCurrent:  time.Duration(p.backoff.Load()),
		KillsReceived:   p.metrics.KillsReceived.Load(),
		KillsSkippedOld: p.metrics.KillsSkippedOld.Load(),
		Errors:          p.metrics.Errors.Load(),
		LastPollAt:      time.Unix(0, p.metrics.LastPollAt.Load()),
	}
}

// RecordSkippedOld lets the killmail handler report a cutoff skip back to the
// poller's metrics (spec.md §4.1's "kill older than cutoff" outcome).
func (p *Poller) RecordSkippedOld() {
	p.metrics.KillsSkippedOld.Add(1)
}
