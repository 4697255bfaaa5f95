package authcore

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/hexlane/authcore/internal"
	"github.com/hexlane/authcore/internal/stores"
)

// BeginReset starts the forgotten-password flow by delivering a one-time
// code to the identity over the channel. Enumeration-safe: the response
// shape is identical whether or not the identity maps to a principal.
func (e *Engine) BeginReset(ctx context.Context, identity string, channel Channel) error {
	return e.StartOTP(ctx, identity, channel)
}

// ConfirmIdentity exchanges a verified one-time code for a single-use
// reset capability token, the only plaintext secret this flow ever
// returns. If the identity resolves to no principal the capability is
// still minted so the response cannot be used as an existence oracle;
// redeeming it will fail.
func (e *Engine) ConfirmIdentity(ctx context.Context, identity string, channel Channel, code string) (string, error) {
	if err := e.ready(); err != nil {
		return "", err
	}

	if err := e.VerifyOTP(ctx, identity, channel, code); err != nil {
		return "", err
	}

	capID, err := internal.NewCapabilityID()
	if err != nil {
		return "", err
	}
	secret, err := internal.NewCapabilitySecret()
	if err != nil {
		return "", err
	}

	principalID := ""
	principal, err := e.resolveIdentity(ctx, identity)
	switch {
	case err == nil:
		principalID = principal.ID
	case errors.Is(err, ErrPrincipalNotFound):
		sleepEnumerationDelay()
	default:
		return "", fmt.Errorf("%w: %v", ErrBackendUnavailable, err)
	}

	rec := &stores.CapabilityRecord{
		UserID:     principalID,
		SecretHash: internal.HashSecret(secret[:]),
		ExpiresAt:  time.Now().Add(e.config.Reset.CapabilityTTL).Unix(),
	}
	if err := e.caps.Save(ctx, capID.String(), rec, e.config.Reset.CapabilityTTL); err != nil {
		return "", fmt.Errorf("%w: %v", ErrBackendUnavailable, err)
	}

	e.metricInc(MetricResetCapabilityIssued)
	e.emitAudit(ctx, AuditEvent{
		EventType:   auditEventResetConfirm,
		PrincipalID: principalID,
		Channel:     string(channel),
		Success:     true,
	})

	return internal.EncodeCapabilityToken(capID, secret), nil
}

// Redeem consumes a reset capability exactly once: the stored password
// hash is replaced, the password version is bumped (invalidating every
// previously issued token), and all outstanding sessions are revoked.
func (e *Engine) Redeem(ctx context.Context, capabilityToken, newPassword string) error {
	if err := e.ready(); err != nil {
		return err
	}

	capID, secret, err := internal.DecodeCapabilityToken(capabilityToken)
	if err != nil {
		e.metricInc(MetricResetRedeemFailure)
		return ErrCapabilityInvalid
	}

	rec, err := e.caps.Consume(ctx, capID.String(), internal.HashSecret(secret[:]), time.Now())
	if err != nil {
		e.metricInc(MetricResetRedeemFailure)
		switch {
		case errors.Is(err, stores.ErrCapabilityNotFound),
			errors.Is(err, stores.ErrCapabilityExpired),
			errors.Is(err, stores.ErrCapabilityMismatch):
			e.emitAudit(ctx, AuditEvent{
				EventType: auditEventResetRedeem,
				Error:     errString(err),
			})
			return ErrCapabilityInvalid
		default:
			return fmt.Errorf("%w: %v", ErrBackendUnavailable, err)
		}
	}

	if rec.UserID == "" {
		// Minted for an identity that never resolved.
		e.metricInc(MetricResetRedeemFailure)
		e.emitAudit(ctx, AuditEvent{
			EventType: auditEventResetRedeem,
			Error:     "capability held no principal",
		})
		return ErrCapabilityInvalid
	}

	hash, err := e.hasher.Hash(newPassword)
	if err != nil {
		e.metricInc(MetricResetRedeemFailure)
		return ErrPasswordPolicy
	}

	if err := e.creds.UpdatePasswordHash(ctx, rec.UserID, hash); err != nil {
		e.metricInc(MetricResetRedeemFailure)
		return fmt.Errorf("%w: %v", ErrBackendUnavailable, err)
	}
	if _, err := e.creds.IncrementPasswordVersion(ctx, rec.UserID); err != nil {
		e.metricInc(MetricResetRedeemFailure)
		return fmt.Errorf("%w: %v", ErrBackendUnavailable, err)
	}

	if e.config.Reset.RevokeSessionsOnRedeem {
		if err := e.sessions.RevokeAllForUser(ctx, rec.UserID, time.Now()); err != nil {
			// The credential already changed; report but do not fail.
			e.emitAudit(ctx, AuditEvent{
				EventType:   auditEventResetRedeem,
				PrincipalID: rec.UserID,
				Error:       "session revocation failed: " + errString(err),
			})
		}
	}

	e.metricInc(MetricResetRedeemSuccess)
	e.emitAudit(ctx, AuditEvent{
		EventType:   auditEventResetRedeem,
		PrincipalID: rec.UserID,
		Success:     true,
	})
	return nil
}

// resolveIdentity maps a recovery identity to a principal: e-mail when it
// contains "@", E.164 phone otherwise.
func (e *Engine) resolveIdentity(ctx context.Context, identity string) (*Principal, error) {
	if strings.Contains(identity, "@") {
		return e.creds.FindByEmail(ctx, identity)
	}
	return e.creds.FindByPhone(ctx, identity)
}
