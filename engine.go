package stringbot

import (
	"context"
	"log"
	"sync"
	"sync/atomic"
	"time"

	"github.com/alphauser-don/string-bot/internal/rate"
	"github.com/alphauser-don/string-bot/internal/secret"
	"github.com/alphauser-don/string-bot/session"
)

// Engine defines a public type used by string-bot APIs.
//
// Engine instances are intended to be configured during initialization and then treated as immutable unless documented otherwise.
type Engine struct {
	config    Config
	store     *session.Store
	box       *secret.Box
	limiter   *rate.Limiter
	attempts  *attemptStore
	provider  AuthProvider
	messenger Messenger
	audit     *auditDispatcher
	metrics   *Metrics
	logger    *log.Logger

	maintenance atomic.Bool

	done      chan struct{}
	wg        sync.WaitGroup
	closeOnce sync.Once
}

// Close stops the idle sweeper, releases every outstanding provider handle,
// and drains the audit dispatcher. Safe to call more than once.
func (e *Engine) Close() {
	if e == nil {
		return
	}
	e.closeOnce.Do(func() {
		close(e.done)
		e.wg.Wait()

		ctx := context.Background()
		for _, a := range e.attempts.drain() {
			e.releaseHandle(ctx, a)
		}

		if e.audit != nil {
			e.audit.Close()
		}
	})
}

// AuditDropped reports how many audit events were dropped because the
// dispatcher buffer was full.
func (e *Engine) AuditDropped() uint64 {
	if e == nil || e.audit == nil {
		return 0
	}
	return e.audit.Dropped()
}

// MetricsSnapshot describes the metricssnapshot operation and its observable behavior.
//
// MetricsSnapshot does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (e *Engine) MetricsSnapshot() MetricsSnapshot {
	if e == nil || e.metrics == nil {
		return MetricsSnapshot{Counters: map[MetricID]uint64{}}
	}
	return e.metrics.Snapshot()
}

// SetMaintenance toggles maintenance mode. While active, every non-owner
// input is answered with a maintenance notice and no state changes.
func (e *Engine) SetMaintenance(on bool) {
	if e == nil {
		return
	}
	e.maintenance.Store(on)
}

// MaintenanceActive describes the maintenanceactive operation and its observable behavior.
func (e *Engine) MaintenanceActive() bool {
	return e != nil && e.maintenance.Load()
}

// ActiveAttempt reports the stage of the user's in-flight attempt, if any.
func (e *Engine) ActiveAttempt(userID int64) (Stage, bool) {
	if e == nil {
		return 0, false
	}
	a := e.attempts.get(userID)
	if a == nil {
		return 0, false
	}
	return a.stage, true
}

func (e *Engine) metricInc(id MetricID) {
	if e == nil || e.metrics == nil {
		return
	}
	e.metrics.Inc(id)
}

func (e *Engine) warn(format string, args ...interface{}) {
	if e == nil {
		return
	}
	if e.logger != nil {
		e.logger.Printf(format, args...)
		return
	}
	log.Printf(format, args...)
}

// emitAudit queues one audit event. metadata is built lazily so disabled
// audit costs no allocation on the hot path.
func (e *Engine) emitAudit(
	ctx context.Context,
	eventType string,
	userID int64,
	success bool,
	cause error,
	metadata func() map[string]string,
) {
	if e == nil || e.audit == nil {
		return
	}

	event := AuditEvent{
		Timestamp: time.Now(),
		EventType: eventType,
		UserID:    userID,
		Success:   success,
	}
	if cause != nil {
		event.Error = cause.Error()
	}
	if metadata != nil {
		event.Metadata = metadata()
	}
	e.audit.Emit(ctx, event)
}

func (e *Engine) startSweeper() {
	e.wg.Add(1)
	go func() {
		defer e.wg.Done()

		ticker := time.NewTicker(e.config.Flow.SweepInterval)
		defer ticker.Stop()

		for {
			select {
			case <-ticker.C:
				e.sweepIdleAttempts(context.Background())
			case <-e.done:
				return
			}
		}
	}()
}

// sweepIdleAttempts aborts attempts that saw no input for the configured
// idle timeout. Idleness is re-checked under the per-user lock, so a
// message that arrives between the scan and the reap wins.
func (e *Engine) sweepIdleAttempts(ctx context.Context) {
	cutoff := time.Now().Add(-e.config.Flow.IdleTimeout)

	for _, userID := range e.attempts.idleBefore(cutoff) {
		unlock := e.attempts.lock(userID)

		a := e.attempts.get(userID)
		if a == nil || !a.lastActivity.Before(cutoff) {
			unlock()
			continue
		}

		e.attempts.remove(userID)
		e.releaseHandle(ctx, a)
		e.metricInc(MetricFlowTimeout)
		stage := a.stage
		e.emitAudit(ctx, auditEventFlowTimeout, userID, false, nil, func() map[string]string {
			return map[string]string{
				"stage": stage.String(),
			}
		})
		if err := e.messenger.Reply(ctx, userID, replyAttemptTimedOut); err != nil {
			e.warn("string-bot: timeout notice delivery failed for user %d: %v", userID, err)
		}

		unlock()
	}
}

// releaseHandle returns the attempt's provider connection, if any. Release
// failures are logged and swallowed: the handle is gone from the attempt
// either way, which is the invariant that matters.
func (e *Engine) releaseHandle(ctx context.Context, a *attempt) {
	if a == nil || a.handle == nil {
		return
	}
	if err := e.provider.Release(ctx, a.handle); err != nil {
		e.warn("string-bot: provider handle release failed for user %d: %v", a.userID, err)
	}
	a.handle = nil
}

func (e *Engine) reply(ctx context.Context, userID int64, text string, buttons ...Button) error {
	if err := e.messenger.Reply(ctx, userID, text, buttons...); err != nil {
		e.warn("string-bot: reply delivery failed for user %d: %v", userID, err)
		return err
	}
	return nil
}
