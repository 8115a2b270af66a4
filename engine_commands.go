package stringbot

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/alphauser-don/string-bot/session"
)

// Reply text sent back through the Messenger. The session string appears in
// exactly one template, replyCompleted, and only in the owner's chat.
const (
	replyHelp = "I can generate a session string for your account.\n\n" +
		"/generate - start a new session\n" +
		"/sessions - list your active sessions\n" +
		"/revoke <id> - revoke one session, or /revoke all\n" +
		"/cancel - abort the current flow\n" +
		"/help - show this message"

	replyMaintenance = "The bot is under maintenance right now. Please try again later."
	replyRateLimited = "Too many messages. Slow down and try again in a minute."
	replyNoAttempt   = "No flow in progress. Send /generate to start one."

	replyAskAppID    = "Let's generate your session string. First, send me your API ID (a positive number)."
	replyAskAppHash  = "Got it. Now send your API hash."
	replyAskPhone    = "Now send the phone number in international format, e.g. +14155550123."
	replyAskCode     = "I sent a login code to that number. Send it here (spaces are fine)."
	replyAskPassword = "This account has two-step verification enabled. Send your password."

	replyInvalidAppID   = "That doesn't look like an API ID. Send a positive number."
	replyInvalidAppHash = "The API hash can't be empty. Send it again."
	replyInvalidPhone   = "That doesn't look like a valid phone number. Use international format, e.g. +14155550123."
	replyInvalidCode    = "That doesn't look like a login code. Send the digits you received."

	replyCodeRejected          = "That code was not accepted. Try again."
	replyCodeExpired           = "That code has expired. Request a fresh one and try again."
	replyCodeAttemptsExhausted = "Too many wrong codes. The flow was aborted; send /generate to start over."

	replyPasswordTooShort          = "That password is too short. Send it again."
	replyPasswordRejected          = "Wrong password. Try again."
	replyPasswordAttemptsExhausted = "Too many wrong passwords. The flow was aborted; send /generate to start over."

	replyInvalidCredentials  = "The API ID and hash were rejected. Check them and send /generate to start over."
	replyProviderUnavailable = "The upstream service is unavailable right now. The flow was aborted; send /generate to try again later."
	replyCapacityReached     = "You already have the maximum number of active sessions. Revoke one with /revoke before generating a new one."

	replyCompleted = "Done! Here is your session string:\n\n%s\n\n" +
		"Keep it secret. Anyone holding this string controls your account."

	replyCancelled       = "Flow cancelled."
	replyNothingToCancel = "Nothing to cancel."
	replyAttemptTimedOut = "Your session flow timed out after inactivity and was aborted. Send /generate to start over."

	replyNoSessions     = "You have no active sessions."
	replyRevokeUsage    = "Usage: /revoke <session id>, or /revoke all."
	replyRevoked        = "Session revoked."
	replyRevokedAll     = "Revoked %d session(s)."
	replyRevokeNotFound = "No active session with that id."

	replyUnknownCommand = "Unknown command. Send /help to see what I understand."

	replyInternalError = "Something went wrong on our side (ref %s). The flow was aborted; please try again."
)

// handleCommand runs under the per-user lock. A command other than /cancel
// arriving mid-flow abandons the flow first, then executes normally.
func (e *Engine) handleCommand(ctx context.Context, userID int64, text string) error {
	fields := strings.Fields(text)
	cmd := strings.ToLower(fields[0])
	args := fields[1:]

	if a := e.attempts.get(userID); a != nil && cmd != "/cancel" {
		e.abandonAttempt(ctx, a)
	}

	switch cmd {
	case "/start", "/help":
		return e.reply(ctx, userID, replyHelp)
	case "/generate":
		return e.startAttempt(ctx, userID)
	case "/cancel":
		return e.cancelAttempt(ctx, userID)
	case "/sessions":
		return e.listSessions(ctx, userID)
	case "/revoke":
		return e.revokeCommand(ctx, userID, args)
	default:
		return e.reply(ctx, userID, replyUnknownCommand)
	}
}

// startAttempt pre-checks the capacity cap before any credential is asked
// for, so a user at the cap fails fast instead of at the end of the flow.
// The cap is still enforced atomically at store time.
func (e *Engine) startAttempt(ctx context.Context, userID int64) error {
	active, err := e.store.CountActive(ctx, userID)
	if err != nil {
		return e.failInternal(ctx, userID, err)
	}
	if active >= e.config.Sessions.MaxPerUser {
		e.metricInc(MetricCapacityExceeded)
		e.emitAudit(ctx, auditEventCapacityExceeded, userID, false, ErrCapacityExceeded, nil)
		return e.reply(ctx, userID, replyCapacityReached)
	}

	now := time.Now()
	e.attempts.put(&attempt{
		userID:       userID,
		stage:        StageAwaitingAppID,
		started:      now,
		lastActivity: now,
	})
	e.metricInc(MetricFlowStarted)
	e.emitAudit(ctx, auditEventFlowStarted, userID, true, nil, nil)
	return e.reply(ctx, userID, replyAskAppID)
}

func (e *Engine) cancelAttempt(ctx context.Context, userID int64) error {
	a := e.attempts.remove(userID)
	if a == nil {
		return e.reply(ctx, userID, replyNothingToCancel)
	}
	e.releaseHandle(ctx, a)
	e.metricInc(MetricFlowAborted)
	stage := a.stage
	e.emitAudit(ctx, auditEventFlowAborted, userID, false, nil, func() map[string]string {
		return map[string]string{
			"reason": "cancelled",
			"stage":  stage.String(),
		}
	})
	return e.reply(ctx, userID, replyCancelled)
}

// abandonAttempt drops an in-flight attempt displaced by an unrelated
// command. Same cleanup as an abort, separate audit trail.
func (e *Engine) abandonAttempt(ctx context.Context, a *attempt) {
	e.releaseHandle(ctx, a)
	e.attempts.remove(a.userID)
	e.metricInc(MetricFlowAbandoned)
	stage := a.stage
	e.emitAudit(ctx, auditEventFlowAbandoned, a.userID, false, nil, func() map[string]string {
		return map[string]string{
			"stage": stage.String(),
		}
	})
}

func (e *Engine) listSessions(ctx context.Context, userID int64) error {
	infos, err := e.Sessions(ctx, userID)
	if err != nil {
		return e.failInternal(ctx, userID, err)
	}
	if len(infos) == 0 {
		return e.reply(ctx, userID, replyNoSessions)
	}

	var b strings.Builder
	b.WriteString("Your active sessions, newest first:\n")
	for i, info := range infos {
		fmt.Fprintf(&b, "%d. %s  %s  %s",
			i+1, info.SessionID, info.PhoneMasked, info.CreatedAt.UTC().Format("2006-01-02 15:04"))
		if info.HasSecondFactor {
			b.WriteString("  [2FA]")
		}
		b.WriteString("\n")
	}
	b.WriteString("Revoke one with /revoke <id>, or all with /revoke all.")
	return e.reply(ctx, userID, b.String())
}

func (e *Engine) revokeCommand(ctx context.Context, userID int64, args []string) error {
	if len(args) != 1 {
		return e.reply(ctx, userID, replyRevokeUsage)
	}

	if strings.EqualFold(args[0], "all") {
		n, err := e.RevokeAll(ctx, userID)
		if err != nil {
			return e.failInternal(ctx, userID, err)
		}
		return e.reply(ctx, userID, fmt.Sprintf(replyRevokedAll, n))
	}

	ok, err := e.Revoke(ctx, userID, args[0])
	if err != nil {
		return e.failInternal(ctx, userID, err)
	}
	if !ok {
		return e.reply(ctx, userID, replyRevokeNotFound)
	}
	return e.reply(ctx, userID, replyRevoked)
}

// Sessions returns the user's active sessions, newest first. Phone numbers
// are decrypted only to produce the redacted display form; a record whose
// ciphertext fails authentication is listed with the phone marked
// unavailable rather than hidden, so the user still sees the slot.
func (e *Engine) Sessions(ctx context.Context, userID int64) ([]SessionInfo, error) {
	if e == nil {
		return nil, ErrEngineNotReady
	}

	records, err := e.store.ListActive(ctx, userID)
	if err != nil {
		return nil, err
	}

	infos := make([]SessionInfo, 0, len(records))
	for _, rec := range records {
		info := SessionInfo{
			SessionID:       rec.SessionID,
			HasSecondFactor: rec.HasSecondFactor,
			CreatedAt:       time.Unix(rec.CreatedAt, 0),
			Revoked:         rec.Revoked,
		}

		plain, openErr := e.box.Open(rec.Phone)
		if openErr != nil {
			e.metricInc(MetricIntegrityFailure)
			e.warn("string-bot: phone decrypt failed for session %s", rec.SessionID)
			sessionID := rec.SessionID
			e.emitAudit(ctx, auditEventIntegrityFailure, userID, false, openErr, func() map[string]string {
				return map[string]string{
					"session_id": sessionID,
					"field":      "phone",
				}
			})
			info.PhoneMasked = "(unavailable)"
		} else {
			info.PhoneMasked = redactPhone(string(plain))
		}

		infos = append(infos, info)
	}
	return infos, nil
}

// Revoke revokes one of the user's own sessions. It reports false, nil when
// the session does not exist, belongs to another user, or is already
// revoked; revoking twice is not an error.
func (e *Engine) Revoke(ctx context.Context, userID int64, sessionID string) (bool, error) {
	if e == nil {
		return false, ErrEngineNotReady
	}

	rec, err := e.store.Get(ctx, sessionID)
	if err != nil {
		if errors.Is(err, session.ErrNotFound) {
			return false, nil
		}
		return false, err
	}
	if rec.UserID != userID {
		// Do not reveal that the id exists under another owner.
		return false, nil
	}

	ok, err := e.store.Revoke(ctx, sessionID)
	if err != nil {
		return false, err
	}
	if ok {
		e.metricInc(MetricSessionRevoked)
		e.emitAudit(ctx, auditEventSessionRevoked, userID, true, nil, func() map[string]string {
			return map[string]string{
				"session_id": sessionID,
			}
		})
	}
	return ok, nil
}

// RevokeAll revokes every active session the user has and reports how many
// were revoked.
func (e *Engine) RevokeAll(ctx context.Context, userID int64) (int, error) {
	if e == nil {
		return 0, ErrEngineNotReady
	}

	n, err := e.store.RevokeAllForUser(ctx, userID)
	if err != nil {
		return 0, err
	}
	if n > 0 {
		for i := 0; i < n; i++ {
			e.metricInc(MetricSessionRevoked)
		}
		count := n
		e.emitAudit(ctx, auditEventSessionRevoked, userID, true, nil, func() map[string]string {
			return map[string]string{
				"count": fmt.Sprintf("%d", count),
			}
		})
	}
	return n, nil
}
