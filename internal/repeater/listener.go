// Package repeater re-creates recurring scheduled events when they start.
package repeater

import (
	"context"
	"log/slog"
	"sync"

	"github.com/dukerupert/repeatbot/internal/discord"
	"github.com/dukerupert/repeatbot/internal/metrics"
	"github.com/dukerupert/repeatbot/internal/recurrence"
)

// Listener reacts to scheduled event dispatches. It implements discord.Handler.
type Listener struct {
	replicator *Replicator
	metrics    *metrics.Metrics
	logger     *slog.Logger
	wg         sync.WaitGroup
}

var _ discord.Handler = (*Listener)(nil)

// NewListener creates a Listener.
func NewListener(replicator *Replicator, m *metrics.Metrics, logger *slog.Logger) *Listener {
	return &Listener{
		replicator: replicator,
		metrics:    m,
		logger:     logger,
	}
}

// IsActivation reports whether the pair is a Scheduled -> Active transition.
func IsActivation(before, after *discord.ScheduledEvent) bool {
	return before.Status == discord.StatusScheduled && after.Status == discord.StatusActive
}

func (l *Listener) ScheduledEventCreate(_ context.Context, ev *discord.ScheduledEvent) {
	l.metrics.Dispatches.WithLabelValues("create").Inc()
	l.logger.Debug("scheduled event created", "event_id", ev.ID, "guild_id", ev.GuildID, "name", ev.Name)
}

func (l *Listener) ScheduledEventDelete(_ context.Context, ev *discord.ScheduledEvent) {
	l.metrics.Dispatches.WithLabelValues("delete").Inc()
	l.logger.Debug("scheduled event deleted", "event_id", ev.ID, "guild_id", ev.GuildID, "name", ev.Name)
}

// ScheduledEventUpdate starts replication in the background when a tagged
// event goes live. It never blocks on the platform.
func (l *Listener) ScheduledEventUpdate(ctx context.Context, before, after *discord.ScheduledEvent) {
	l.metrics.Dispatches.WithLabelValues("update").Inc()
	if before == nil || after == nil {
		l.logger.Debug("scheduled event updated without previous snapshot", "event_id", eventID(after))
		return
	}
	l.logger.Debug("scheduled event updated",
		"event_id", after.ID,
		"name", before.Name,
		"from", before.Status,
		"to", after.Status,
	)

	if !IsActivation(before, after) {
		return
	}
	l.metrics.Activations.Inc()

	rule, ok := recurrence.Resolve(before.DescriptionText())
	if !ok {
		return
	}
	start, end := recurrence.Schedule(before.StartMillis(), rule)

	snapshot := *before
	l.wg.Add(1)
	go l.replicate(context.WithoutCancel(ctx), &snapshot, rule.Tag, start, end)
}

func (l *Listener) replicate(ctx context.Context, before *discord.ScheduledEvent, tag recurrence.Tag, start, end int64) {
	defer l.wg.Done()
	logger := l.logger.With("event_id", before.ID, "guild_id", before.GuildID, "tag", string(tag))

	defer func() {
		if r := recover(); r != nil {
			logger.Error("replication panicked", "panic", r)
			l.metrics.Replications.WithLabelValues(string(tag), metrics.ResultPanic).Inc()
		}
	}()

	created, err := l.replicator.Replicate(ctx, before, start, end)
	if err != nil {
		logger.Error("replicate scheduled event", "error", err)
		l.metrics.Replications.WithLabelValues(string(tag), metrics.ResultFailed).Inc()
		return
	}

	logger.Info("follow-up event created",
		"new_event_id", created.ID,
		"name", created.Name,
		"start_ms", start,
		"end_ms", end,
	)
	l.metrics.Replications.WithLabelValues(string(tag), metrics.ResultCreated).Inc()
}

// Wait blocks until in-flight replications finish or ctx is done.
func (l *Listener) Wait(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		l.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func eventID(ev *discord.ScheduledEvent) string {
	if ev == nil {
		return ""
	}
	return ev.ID
}
