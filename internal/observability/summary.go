// Package observability runs the periodic summary logging job
// (spec.md §2's Observability component), grounded on the teacher's
// EngineService cron wiring (internal/scheduler/services/
// engine_service.go: cron.New(cron.WithSeconds())) and the
// ConsumerMetrics/GetStatus snapshot idiom from
// internal/zkillboard/services/redisq_consumer.go.
package observability

import (
	"log/slog"

	"github.com/robfig/cron/v3"

	"wandererkills/internal/broker"
	"wandererkills/internal/eventstore"
	"wandererkills/internal/refcache"
	"wandererkills/internal/subscription"
	"wandererkills/internal/wsapi"
	"wandererkills/internal/zkb"
)

// Reporter periodically logs a one-line summary of the process's
// activity: poller throughput, active sessions, broker lag, cache
// occupancy.
type Reporter struct {
	poller  *zkb.Poller
	hub     *wsapi.Hub
	brokerH *broker.Broker
	cache   *refcache.Cache
	manager *subscription.Manager
	store   *eventstore.Store
	log     *slog.Logger

	cron *cron.Cron
}

// NewReporter builds a Reporter bound to every component it summarizes.
func NewReporter(poller *zkb.Poller, hub *wsapi.Hub, b *broker.Broker, cache *refcache.Cache, manager *subscription.Manager, store *eventstore.Store, log *slog.Logger) *Reporter {
	if log == nil {
		log = slog.Default()
	}
	return &Reporter{
		poller:  poller,
		hub:     hub,
		brokerH: b,
		cache:   cache,
		manager: manager,
		store:   store,
		log:     log,
		cron:    cron.New(cron.WithSeconds()),
	}
}

// Start schedules the summary log at the given interval-as-cron-spec
// (e.g. "@every 5m") and the subscription index sweep at its own
// cadence, mirroring the teacher's pattern of one cron.Cron running
// several named jobs.
func (r *Reporter) Start(summarySpec, sweepSpec, gcSpec string, gc func()) error {
	if _, err := r.cron.AddFunc(summarySpec, r.logSummary); err != nil {
		return err
	}
	if _, err := r.cron.AddFunc(sweepSpec, r.sweepIndexes); err != nil {
		return err
	}
	if gc != nil {
		if _, err := r.cron.AddFunc(gcSpec, gc); err != nil {
			return err
		}
	}
	r.cron.Start()
	return nil
}

// Stop halts the scheduled jobs, waiting for any in-flight run to finish.
func (r *Reporter) Stop() {
	<-r.cron.Stop().Done()
}

func (r *Reporter) logSummary() {
	attrs := []any{}

	if r.poller != nil {
		st := r.poller.Status()
		attrs = append(attrs,
			"poller_state", st.State,
			"kills_received", st.KillsReceived,
			"kills_skipped_old", st.KillsSkippedOld,
			"poller_errors", st.Errors,
			"backoff_current_ms", st.BackoffCurrent.Milliseconds(),
		)
	}
	if r.hub != nil {
		attrs = append(attrs, "active_sockets", r.hub.ActiveSessions())
	}
	if r.brokerH != nil {
		attrs = append(attrs, "lagged_deliveries", r.brokerH.LaggedCount())
	}
	if r.cache != nil {
		attrs = append(attrs, "cache_entries", r.cache.Len())
	}
	if r.manager != nil {
		attrs = append(attrs, "subscriptions", len(r.manager.List()))
	}

	r.log.Info("periodic summary", attrs...)
}

func (r *Reporter) sweepIndexes() {
	if r.manager == nil {
		return
	}
	systemRemoved, characterRemoved := r.manager.Sweep()
	if systemRemoved > 0 || characterRemoved > 0 {
		r.log.Debug("subscription index sweep", "system_buckets_removed", systemRemoved, "character_buckets_removed", characterRemoved)
	}
}
