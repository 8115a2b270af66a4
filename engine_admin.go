package stringbot

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// HandleOwnerCommand executes an owner-only command and returns the reply
// text. Recognized commands: stats, maintenance on|off, revoke <session id>,
// revokeuser <user id>. Owner commands skip the rate limiter and the flow
// state machine; callers are responsible for authenticating the owner.
func (e *Engine) HandleOwnerCommand(ctx context.Context, command string, args []string) (string, error) {
	if e == nil {
		return "", ErrEngineNotReady
	}

	switch strings.ToLower(command) {
	case "stats":
		return e.statsText(ctx)

	case "maintenance":
		if len(args) != 1 {
			return "", fmt.Errorf("%w: maintenance expects on or off", ErrUnknownCommand)
		}
		switch strings.ToLower(args[0]) {
		case "on":
			e.SetMaintenance(true)
		case "off":
			e.SetMaintenance(false)
		default:
			return "", fmt.Errorf("%w: maintenance expects on or off", ErrUnknownCommand)
		}
		active := e.maintenance.Load()
		e.emitAudit(ctx, auditEventMaintenanceToggled, e.config.Owner.UserID, true, nil, func() map[string]string {
			return map[string]string{
				"active": strconv.FormatBool(active),
			}
		})
		if active {
			return "Maintenance mode is ON. Non-owner traffic is paused.", nil
		}
		return "Maintenance mode is OFF.", nil

	case "revoke":
		if len(args) != 1 {
			return "", fmt.Errorf("%w: revoke expects a session id", ErrUnknownCommand)
		}
		sessionID := args[0]
		ok, err := e.store.Revoke(ctx, sessionID)
		if err != nil {
			return "", err
		}
		if !ok {
			return "Nothing to revoke: unknown or already revoked.", nil
		}
		e.metricInc(MetricSessionRevoked)
		e.emitAudit(ctx, auditEventSessionRevoked, 0, true, nil, func() map[string]string {
			return map[string]string{
				"session_id": sessionID,
				"by":         "owner",
			}
		})
		return "Session revoked.", nil

	case "revokeuser":
		if len(args) != 1 {
			return "", fmt.Errorf("%w: revokeuser expects a user id", ErrUnknownCommand)
		}
		userID, err := strconv.ParseInt(args[0], 10, 64)
		if err != nil {
			return "", fmt.Errorf("%w: revokeuser expects a numeric user id", ErrUnknownCommand)
		}
		n, err := e.store.RevokeAllForUser(ctx, userID)
		if err != nil {
			return "", err
		}
		if n > 0 {
			for i := 0; i < n; i++ {
				e.metricInc(MetricSessionRevoked)
			}
			count := n
			e.emitAudit(ctx, auditEventSessionRevoked, userID, true, nil, func() map[string]string {
				return map[string]string{
					"count": strconv.Itoa(count),
					"by":    "owner",
				}
			})
		}
		return fmt.Sprintf("Revoked %d session(s) for user %d.", n, userID), nil

	default:
		return "", ErrUnknownCommand
	}
}

// Stats returns the store-wide aggregate the owner sees in the stats report.
func (e *Engine) Stats(ctx context.Context) (StoreStats, error) {
	if e == nil {
		return StoreStats{}, ErrEngineNotReady
	}
	st, err := e.store.Stats(ctx)
	if err != nil {
		return StoreStats{}, err
	}
	return StoreStats{
		TotalUsers:           st.TotalUsers,
		ActiveSessions:       st.ActiveSessions,
		SecondFactorSessions: st.SecondFactorSessions,
		CreatedLast24h:       st.CreatedLast24h,
	}, nil
}

func (e *Engine) statsText(ctx context.Context) (string, error) {
	st, err := e.Stats(ctx)
	if err != nil {
		return "", err
	}
	snap := e.MetricsSnapshot()

	var b strings.Builder
	fmt.Fprintf(&b, "Users: %d\n", st.TotalUsers)
	fmt.Fprintf(&b, "Active sessions: %d\n", st.ActiveSessions)
	fmt.Fprintf(&b, "With second factor: %d\n", st.SecondFactorSessions)
	fmt.Fprintf(&b, "Created in last 24h: %d\n", st.CreatedLast24h)
	fmt.Fprintf(&b, "In-flight flows: %d\n", e.attempts.len())
	if e.limiter != nil {
		fmt.Fprintf(&b, "Rate windows tracked: %d\n", e.limiter.TrackedUsers())
	}
	if e.maintenance.Load() {
		b.WriteString("Maintenance: ON\n")
	}
	fmt.Fprintf(&b, "Flows completed: %d, aborted: %d, rate limited: %d",
		snap.Counters[MetricFlowCompleted],
		snap.Counters[MetricFlowAborted],
		snap.Counters[MetricRateLimitHit])
	if dropped := e.AuditDropped(); dropped > 0 {
		fmt.Fprintf(&b, "\nAudit events dropped: %d", dropped)
	}
	return b.String(), nil
}

// routeOwnerCommand maps slash commands from the owner's own chat onto
// HandleOwnerCommand. Only owner-specific verbs are intercepted; everything
// else (including /generate and /revoke) falls through to the normal user
// path, so the owner can use the bot like anyone else.
func (e *Engine) routeOwnerCommand(ctx context.Context, text string) (string, bool) {
	fields := strings.Fields(text)
	if len(fields) == 0 {
		return "", false
	}

	cmd := strings.TrimPrefix(strings.ToLower(fields[0]), "/")
	switch cmd {
	case "stats", "maintenance", "revokeuser":
	default:
		return "", false
	}

	reply, err := e.HandleOwnerCommand(ctx, cmd, fields[1:])
	if err != nil {
		if errors.Is(err, ErrUnknownCommand) {
			return err.Error(), true
		}
		cid := correlationID()
		e.warn("string-bot: owner command %s failed (%s): %v", cmd, cid, err)
		return fmt.Sprintf(replyInternalError, cid), true
	}
	return reply, true
}
