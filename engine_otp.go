package authcore

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/hexlane/authcore/internal"
	"github.com/hexlane/authcore/internal/stores"
)

// purposeRecovery scopes one-time-code records; there is exactly one
// outstanding code per identity+channel+purpose.
const purposeRecovery = "recovery"

// StartOTP generates and delivers a one-time code over the channel. The
// response shape never reveals whether the identity exists, and a
// delivery failure after the record is persisted is logged rather than
// surfaced: the caller cannot distinguish it from success either way.
func (e *Engine) StartOTP(ctx context.Context, identity string, channel Channel) error {
	if err := e.ready(); err != nil {
		return err
	}

	switch channel {
	case ChannelEmail:
		return e.startEmailOTP(ctx, identity)
	case ChannelSMS:
		return e.startSMSOTP(ctx, identity)
	default:
		return fmt.Errorf("unknown delivery channel %q", channel)
	}
}

func (e *Engine) startEmailOTP(ctx context.Context, identity string) error {
	if e.email == nil {
		return ErrChannelUnavailable
	}

	code, err := internal.NumericCode(e.config.OTP.Digits)
	if err != nil {
		return err
	}

	rec := &stores.OTPRecord{
		CodeHash:  internal.HashSecret([]byte(code)),
		ExpiresAt: time.Now().Add(e.config.OTP.TTL).Unix(),
	}
	if err := e.otps.Save(ctx, purposeRecovery, string(ChannelEmail), identity, rec, e.config.OTP.TTL); err != nil {
		return fmt.Errorf("%w: %v", ErrBackendUnavailable, err)
	}

	e.metricInc(MetricOTPStarted)
	e.emitAudit(ctx, AuditEvent{
		EventType: auditEventOTPStart,
		Channel:   string(ChannelEmail),
		Success:   true,
	})

	sendCtx, cancel := context.WithTimeout(ctx, e.config.OTP.DeliveryTimeout)
	defer cancel()
	if err := e.email.SendCode(sendCtx, identity, code); err != nil {
		// The record is persisted; delivery failure is recoverable.
		e.metricInc(MetricOTPDeliveryFailure)
		e.emitAudit(ctx, AuditEvent{
			EventType: auditEventOTPDeliveryFail,
			Channel:   string(ChannelEmail),
			Error:     errString(err),
		})
	}
	return nil
}

func (e *Engine) startSMSOTP(ctx context.Context, identity string) error {
	if e.sms == nil {
		return ErrChannelUnavailable
	}

	// The provider owns the code; the marker row preserves the single
	// outstanding challenge contract and the expiry window.
	rec := &stores.OTPRecord{
		Provider:  true,
		ExpiresAt: time.Now().Add(e.config.OTP.TTL).Unix(),
	}
	if err := e.otps.Save(ctx, purposeRecovery, string(ChannelSMS), identity, rec, e.config.OTP.TTL); err != nil {
		return fmt.Errorf("%w: %v", ErrBackendUnavailable, err)
	}

	e.metricInc(MetricOTPStarted)
	e.emitAudit(ctx, AuditEvent{
		EventType: auditEventOTPStart,
		Channel:   string(ChannelSMS),
		Success:   true,
	})

	startCtx, cancel := context.WithTimeout(ctx, e.config.OTP.DeliveryTimeout)
	defer cancel()
	if err := e.sms.StartChallenge(startCtx, identity); err != nil {
		e.metricInc(MetricOTPDeliveryFailure)
		e.emitAudit(ctx, AuditEvent{
			EventType: auditEventOTPDeliveryFail,
			Channel:   string(ChannelSMS),
			Error:     errString(err),
		})
	}
	return nil
}

// VerifyOTP checks a presented code and consumes the record on success.
// Exactly one concurrent verification can succeed per outstanding code.
// Wrong code, expired code, and no code at all are reported through
// distinct internal errors that all collapse via PublicError.
func (e *Engine) VerifyOTP(ctx context.Context, identity string, channel Channel, code string) error {
	if err := e.ready(); err != nil {
		return err
	}

	var err error
	switch channel {
	case ChannelEmail:
		err = e.verifyLocalOTP(ctx, identity, channel, code)
	case ChannelSMS:
		err = e.verifyProviderOTP(ctx, identity, code)
	default:
		return fmt.Errorf("unknown delivery channel %q", channel)
	}

	if err != nil {
		e.metricInc(MetricOTPVerifyFailure)
		e.emitAudit(ctx, AuditEvent{
			EventType: auditEventOTPVerify,
			Channel:   string(channel),
			Error:     errString(err),
		})
		return err
	}

	e.metricInc(MetricOTPVerifySuccess)
	e.emitAudit(ctx, AuditEvent{
		EventType: auditEventOTPVerify,
		Channel:   string(channel),
		Success:   true,
	})
	return nil
}

func (e *Engine) verifyLocalOTP(ctx context.Context, identity string, channel Channel, code string) error {
	err := e.otps.Consume(
		ctx,
		purposeRecovery,
		string(channel),
		identity,
		internal.HashSecret([]byte(code)),
		e.config.OTP.MaxAttempts,
		time.Now(),
	)
	switch {
	case err == nil:
		return nil
	case errors.Is(err, stores.ErrOTPExpired):
		return ErrCodeExpired
	case errors.Is(err, stores.ErrOTPNotFound),
		errors.Is(err, stores.ErrOTPMismatch),
		errors.Is(err, stores.ErrOTPAttemptsExceeded):
		return ErrCodeInvalid
	default:
		return fmt.Errorf("%w: %v", ErrBackendUnavailable, err)
	}
}

func (e *Engine) verifyProviderOTP(ctx context.Context, identity, code string) error {
	if e.sms == nil {
		return ErrChannelUnavailable
	}

	checkCtx, cancel := context.WithTimeout(ctx, e.config.OTP.DeliveryTimeout)
	defer cancel()
	approved, err := e.sms.CheckChallenge(checkCtx, identity, code)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrBackendUnavailable, err)
	}
	if !approved {
		return ErrCodeInvalid
	}

	// The provider approved; consuming the marker decides which of any
	// concurrent verifiers wins.
	err = e.otps.ConsumeMarker(ctx, purposeRecovery, string(ChannelSMS), identity, time.Now())
	switch {
	case err == nil:
		return nil
	case errors.Is(err, stores.ErrOTPExpired):
		return ErrCodeExpired
	case errors.Is(err, stores.ErrOTPNotFound):
		return ErrCodeInvalid
	default:
		return fmt.Errorf("%w: %v", ErrBackendUnavailable, err)
	}
}
