package stringbot

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/alphauser-don/string-bot/session"
)

// HandleInput processes one inbound message from a user and always answers
// it through the Messenger, including on rate denial and internal failure.
// Messages from the same user are serialized under the per-user lock;
// owner commands bypass the state machine and the limiter entirely.
//
// HandleInput may return an error when input validation, dependency calls, or security checks fail.
// HandleInput does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (e *Engine) HandleInput(ctx context.Context, userID int64, text string) error {
	if e == nil || e.provider == nil || e.messenger == nil {
		return ErrEngineNotReady
	}
	text = strings.TrimSpace(text)

	isOwner := e.config.Owner.UserID != 0 && userID == e.config.Owner.UserID
	if isOwner && strings.HasPrefix(text, "/") {
		if reply, handled := e.routeOwnerCommand(ctx, text); handled {
			return e.reply(ctx, userID, reply)
		}
	}

	if e.maintenance.Load() && !isOwner {
		return e.reply(ctx, userID, replyMaintenance)
	}

	unlock := e.attempts.lock(userID)
	defer unlock()

	var deliveryErr error
	func() {
		defer func() {
			if r := recover(); r != nil {
				deliveryErr = e.recoverInternal(ctx, userID, r)
			}
		}()
		deliveryErr = e.dispatch(ctx, userID, text)
	}()
	return deliveryErr
}

// dispatch runs under the per-user lock.
func (e *Engine) dispatch(ctx context.Context, userID int64, text string) error {
	if e.limiter != nil && !e.limiter.Allow(userID) {
		e.metricInc(MetricRateLimitHit)
		e.emitAudit(ctx, auditEventRateLimited, userID, false, ErrRateLimitExceeded, nil)
		return e.reply(ctx, userID, replyRateLimited)
	}

	if strings.HasPrefix(text, "/") {
		return e.handleCommand(ctx, userID, text)
	}

	a := e.attempts.get(userID)
	if a == nil {
		return e.reply(ctx, userID, replyNoAttempt)
	}
	e.attempts.touch(a, time.Now())
	return e.advance(ctx, a, text)
}

func (e *Engine) advance(ctx context.Context, a *attempt, input string) error {
	switch a.stage {
	case StageAwaitingAppID:
		return e.advanceAppID(ctx, a, input)
	case StageAwaitingAppHash:
		return e.advanceAppHash(ctx, a, input)
	case StageAwaitingPhone:
		return e.advancePhone(ctx, a, input)
	case StageAwaitingCode:
		return e.advanceCode(ctx, a, input)
	case StageAwaitingSecondFactor:
		return e.advanceSecondFactor(ctx, a, input)
	default:
		return e.failInternal(ctx, a.userID, fmt.Errorf("attempt in unknown stage %d", a.stage))
	}
}

func (e *Engine) advanceAppID(ctx context.Context, a *attempt, input string) error {
	id, ok := parseAppID(input)
	if !ok {
		e.metricInc(MetricValidationFailure)
		return e.reply(ctx, a.userID, replyInvalidAppID)
	}
	a.appID = id
	a.stage = StageAwaitingAppHash
	return e.reply(ctx, a.userID, replyAskAppHash)
}

func (e *Engine) advanceAppHash(ctx context.Context, a *attempt, input string) error {
	if input == "" {
		e.metricInc(MetricValidationFailure)
		return e.reply(ctx, a.userID, replyInvalidAppHash)
	}
	a.appHash = input
	a.stage = StageAwaitingPhone
	return e.reply(ctx, a.userID, replyAskPhone)
}

// advancePhone is the transition that allocates the provider handle. From
// here on every exit path of the attempt must release it.
func (e *Engine) advancePhone(ctx context.Context, a *attempt, input string) error {
	phone, ok := normalizePhone(input)
	if !ok {
		e.metricInc(MetricValidationFailure)
		return e.reply(ctx, a.userID, replyInvalidPhone)
	}

	handle, err := e.provider.Connect(ctx, a.appID, a.appHash)
	if err != nil {
		e.metricInc(MetricProviderFailure)
		if errors.Is(err, ErrProviderInvalidCredentials) {
			return e.abortAttempt(ctx, a, "invalid_credentials", err, replyInvalidCredentials)
		}
		return e.abortAttempt(ctx, a, "connect_failed", err, replyProviderUnavailable)
	}
	a.handle = handle

	codeHash, err := e.provider.RequestCode(ctx, handle, phone)
	if err != nil {
		e.metricInc(MetricProviderFailure)
		return e.abortAttempt(ctx, a, "code_request_failed", err, replyProviderUnavailable)
	}

	a.phone = phone
	a.codeHash = codeHash
	a.stage = StageAwaitingCode
	e.metricInc(MetricCodeRequested)
	masked := redactPhone(phone)
	e.emitAudit(ctx, auditEventCodeRequested, a.userID, true, nil, func() map[string]string {
		return map[string]string{
			"phone": masked,
		}
	})
	return e.reply(ctx, a.userID, replyAskCode)
}

func (e *Engine) advanceCode(ctx context.Context, a *attempt, input string) error {
	code := strings.ReplaceAll(input, " ", "")
	if code == "" {
		e.metricInc(MetricValidationFailure)
		return e.reply(ctx, a.userID, replyInvalidCode)
	}

	res, err := e.provider.VerifyCode(ctx, a.handle, code, a.codeHash)
	switch {
	case err == nil && res.SecondFactorRequired:
		a.stage = StageAwaitingSecondFactor
		e.metricInc(MetricSecondFactorRequired)
		e.emitAudit(ctx, auditEventSecondFactorRequired, a.userID, true, nil, nil)
		return e.reply(ctx, a.userID, replyAskPassword)
	case err == nil:
		return e.completeAttempt(ctx, a, res, false)
	case errors.Is(err, ErrProviderInvalidCode), errors.Is(err, ErrProviderCodeExpired):
		e.metricInc(MetricCodeRejected)
		a.codeAttempts++
		e.emitAudit(ctx, auditEventCodeRejected, a.userID, false, err, nil)
		if a.codeAttempts >= e.config.Flow.MaxCodeAttempts {
			return e.abortAttempt(ctx, a, "code_attempts_exhausted", err, replyCodeAttemptsExhausted)
		}
		if errors.Is(err, ErrProviderCodeExpired) {
			return e.reply(ctx, a.userID, replyCodeExpired)
		}
		return e.reply(ctx, a.userID, replyCodeRejected)
	default:
		e.metricInc(MetricProviderFailure)
		return e.abortAttempt(ctx, a, "code_verify_failed", err, replyProviderUnavailable)
	}
}

func (e *Engine) advanceSecondFactor(ctx context.Context, a *attempt, input string) error {
	if len(input) < e.config.Flow.MinPasswordLength {
		// Local pre-check; the password is not sent anywhere.
		e.metricInc(MetricValidationFailure)
		return e.reply(ctx, a.userID, replyPasswordTooShort)
	}

	res, err := e.provider.VerifySecondFactor(ctx, a.handle, input)
	switch {
	case err == nil:
		return e.completeAttempt(ctx, a, res, true)
	case errors.Is(err, ErrProviderSecondFactorInvalid):
		e.metricInc(MetricSecondFactorRejected)
		a.passwordAttempts++
		e.emitAudit(ctx, auditEventSecondFactorRejected, a.userID, false, err, nil)
		if a.passwordAttempts >= e.config.Flow.MaxPasswordAttempts {
			return e.abortAttempt(ctx, a, "password_attempts_exhausted", err, replyPasswordAttemptsExhausted)
		}
		return e.reply(ctx, a.userID, replyPasswordRejected)
	default:
		e.metricInc(MetricProviderFailure)
		return e.abortAttempt(ctx, a, "second_factor_failed", err, replyProviderUnavailable)
	}
}

// completeAttempt is the single terminal-success path: encrypt, persist,
// audit with a redacted phone, release the handle, drop the attempt, and
// hand the session string to its owner.
func (e *Engine) completeAttempt(
	ctx context.Context,
	a *attempt,
	res *VerifyResult,
	hasSecondFactor bool,
) error {
	secretBlob, err := e.box.Seal([]byte(res.SessionString))
	if err != nil {
		return e.failInternal(ctx, a.userID, err)
	}
	phoneBlob, err := e.box.Seal([]byte(a.phone))
	if err != nil {
		return e.failInternal(ctx, a.userID, err)
	}

	rec := &session.Record{
		SessionID:       uuid.NewString(),
		UserID:          a.userID,
		Secret:          secretBlob,
		Phone:           phoneBlob,
		HasSecondFactor: hasSecondFactor,
		CreatedAt:       time.Now().Unix(),
	}

	if err := e.store.Put(ctx, rec); err != nil {
		if errors.Is(err, session.ErrCapacityExceeded) {
			e.metricInc(MetricCapacityExceeded)
			return e.abortAttempt(ctx, a, "capacity_exceeded", ErrCapacityExceeded, replyCapacityReached)
		}
		return e.failInternal(ctx, a.userID, err)
	}

	e.releaseHandle(ctx, a)
	e.attempts.remove(a.userID)

	e.metricInc(MetricSessionStored)
	e.metricInc(MetricFlowCompleted)
	masked := redactPhone(a.phone)
	identity := strconv.FormatInt(res.Identity, 10)
	e.emitAudit(ctx, auditEventSessionStored, a.userID, true, nil, func() map[string]string {
		return map[string]string{
			"session_id":    rec.SessionID,
			"phone":         masked,
			"identity":      identity,
			"second_factor": strconv.FormatBool(hasSecondFactor),
		}
	})
	return e.reply(ctx, a.userID, fmt.Sprintf(replyCompleted, res.SessionString))
}

// abortAttempt is the single terminal-failure path. The handle is released
// before the attempt record is dropped, on every reason.
func (e *Engine) abortAttempt(
	ctx context.Context,
	a *attempt,
	reason string,
	cause error,
	userReply string,
) error {
	e.releaseHandle(ctx, a)
	e.attempts.remove(a.userID)
	e.metricInc(MetricFlowAborted)
	stage := a.stage
	e.emitAudit(ctx, auditEventFlowAborted, a.userID, false, cause, func() map[string]string {
		return map[string]string{
			"reason": reason,
			"stage":  stage.String(),
		}
	})
	return e.reply(ctx, a.userID, userReply)
}

// failInternal converts an unexpected error into a generic user reply with
// a short correlation ID; the detail goes to the log and the audit channel
// only. Any in-flight attempt is aborted so the machine never sticks in an
// undefined state.
func (e *Engine) failInternal(ctx context.Context, userID int64, cause error) error {
	if a := e.attempts.remove(userID); a != nil {
		e.releaseHandle(ctx, a)
	}
	cid := correlationID()
	e.metricInc(MetricInternalError)
	e.warn("string-bot: internal error %s for user %d: %v", cid, userID, cause)
	e.emitAudit(ctx, auditEventInternalError, userID, false, cause, func() map[string]string {
		return map[string]string{
			"correlation_id": cid,
		}
	})
	return e.reply(ctx, userID, fmt.Sprintf(replyInternalError, cid))
}

// recoverInternal is failInternal for panics: same user-visible contract, a
// reply always goes out.
func (e *Engine) recoverInternal(ctx context.Context, userID int64, r interface{}) error {
	if a := e.attempts.remove(userID); a != nil {
		e.releaseHandle(ctx, a)
	}
	cid := correlationID()
	detail := fmt.Sprint(r)
	e.metricInc(MetricInternalError)
	e.warn("string-bot: panic %s recovered for user %d: %s", cid, userID, detail)
	e.emitAudit(ctx, auditEventInternalError, userID, false, nil, func() map[string]string {
		return map[string]string{
			"correlation_id": cid,
			"detail":         detail,
		}
	})
	return e.reply(ctx, userID, fmt.Sprintf(replyInternalError, cid))
}

var phonePattern = regexp.MustCompile(`^\+[1-9][0-9]{7,14}$`)

func parseAppID(input string) (int, bool) {
	id, err := strconv.Atoi(input)
	if err != nil || id <= 0 {
		return 0, false
	}
	return id, true
}

// normalizePhone strips common separators and validates the E.164 shape.
func normalizePhone(input string) (string, bool) {
	var b strings.Builder
	for _, r := range input {
		switch r {
		case ' ', '-', '(', ')':
		default:
			b.WriteRune(r)
		}
	}
	phone := b.String()
	if !phonePattern.MatchString(phone) {
		return "", false
	}
	return phone, true
}

func correlationID() string {
	return uuid.NewString()[:8]
}
