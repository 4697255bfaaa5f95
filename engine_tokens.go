package authcore

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/hexlane/authcore/internal"
	"github.com/hexlane/authcore/jwt"
	"github.com/hexlane/authcore/session"
)

// Issue creates a token pair for the principal. An empty familyID starts
// a new session family (first login); a non-empty one preserves lineage
// across rotation. Exactly one ledger row is written per call.
func (e *Engine) Issue(ctx context.Context, principalID, familyID string, meta ClientMeta) (*TokenPair, error) {
	if err := e.ready(); err != nil {
		return nil, err
	}

	principal, err := e.creds.FindByID(ctx, principalID)
	if err != nil {
		if errors.Is(err, ErrPrincipalNotFound) {
			return nil, ErrInvalidCredentials
		}
		return nil, fmt.Errorf("%w: %v", ErrBackendUnavailable, err)
	}
	if principal.Status == AccountSuspended {
		return nil, ErrAccountSuspended
	}

	return e.issueForPrincipal(ctx, principal, familyID, meta)
}

func (e *Engine) issueForPrincipal(ctx context.Context, principal *Principal, familyID string, meta ClientMeta) (*TokenPair, error) {
	if familyID == "" {
		familyID = uuid.NewString()
	}

	access, err := e.codec.Issue(principal.ID, familyID, principal.PasswordVersion, jwt.KindAccess)
	if err != nil {
		return nil, err
	}
	refresh, err := e.codec.Issue(principal.ID, familyID, principal.PasswordVersion, jwt.KindRefresh)
	if err != nil {
		return nil, err
	}

	now := time.Now()
	rec := &session.Record{
		UserID:    principal.ID,
		FamilyID:  familyID,
		UserAgent: meta.UserAgent,
		IP:        meta.IP,
		CreatedAt: now.Unix(),
		ExpiresAt: now.Add(e.config.JWT.RefreshTTL).Unix(),
	}
	if err := e.sessions.Save(ctx, internal.HashSecret([]byte(refresh)), rec, e.config.JWT.RefreshTTL); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrBackendUnavailable, err)
	}

	e.metricInc(MetricSessionCreated)
	e.emitAudit(ctx, AuditEvent{
		EventType:   auditEventTokenIssue,
		PrincipalID: principal.ID,
		FamilyID:    familyID,
		IP:          meta.IP,
		Success:     true,
	})

	return &TokenPair{AccessToken: access, RefreshToken: refresh, FamilyID: familyID}, nil
}

// Rotate exchanges a live refresh token for a new pair under the same
// family. A token that decodes but no longer matches a live ledger row is
// treated as theft evidence: the whole family is revoked and the caller
// gets ErrRefreshReuse.
func (e *Engine) Rotate(ctx context.Context, refreshToken string, meta ClientMeta) (*TokenPair, error) {
	if err := e.ready(); err != nil {
		return nil, err
	}

	claims, err := e.codec.Verify(refreshToken, jwt.KindRefresh)
	if err != nil {
		e.metricInc(MetricRefreshFailure)
		return nil, mapCodecError(err)
	}

	now := time.Now()
	userID, familyID, err := e.sessions.ConsumeIfLive(ctx, internal.HashSecret([]byte(refreshToken)), now)
	if err != nil {
		switch {
		case errors.Is(err, session.ErrConsumed), errors.Is(err, session.ErrNotFound):
			return nil, e.handleReuse(ctx, claims, meta, err)
		case errors.Is(err, session.ErrExpired):
			e.metricInc(MetricRefreshFailure)
			return nil, ErrTokenExpired
		default:
			e.metricInc(MetricRefreshFailure)
			return nil, fmt.Errorf("%w: %v", ErrBackendUnavailable, err)
		}
	}

	principal, err := e.creds.FindByID(ctx, userID)
	if err != nil {
		e.metricInc(MetricRefreshFailure)
		if errors.Is(err, ErrPrincipalNotFound) {
			_ = e.sessions.RevokeFamily(ctx, familyID, now)
			return nil, ErrTokenExpired
		}
		return nil, fmt.Errorf("%w: %v", ErrBackendUnavailable, err)
	}
	if principal.Status == AccountSuspended {
		e.metricInc(MetricRefreshFailure)
		_ = e.sessions.RevokeFamily(ctx, familyID, now)
		return nil, ErrAccountSuspended
	}
	if claims.Ver != principal.PasswordVersion {
		// The password changed after this token was minted.
		e.metricInc(MetricRefreshFailure)
		_ = e.sessions.RevokeFamily(ctx, familyID, now)
		e.emitAudit(ctx, AuditEvent{
			EventType:   auditEventTokenRotate,
			PrincipalID: userID,
			FamilyID:    familyID,
			IP:          meta.IP,
			Error:       "stale password version",
		})
		return nil, ErrTokenExpired
	}

	pair, err := e.issueForPrincipal(ctx, principal, familyID, meta)
	if err != nil {
		e.metricInc(MetricRefreshFailure)
		return nil, err
	}

	e.metricInc(MetricRefreshSuccess)
	e.emitAudit(ctx, AuditEvent{
		EventType:   auditEventTokenRotate,
		PrincipalID: userID,
		FamilyID:    familyID,
		IP:          meta.IP,
		Success:     true,
	})
	return pair, nil
}

// handleReuse is the anti-replay response: the presented token decoded
// cleanly but its ledger row is gone or already consumed, so every
// session descended from the same login is revoked.
func (e *Engine) handleReuse(ctx context.Context, claims *jwt.Claims, meta ClientMeta, cause error) error {
	e.metricInc(MetricRefreshReuseDetected)

	if err := e.sessions.RevokeFamily(ctx, claims.SID, time.Now()); err != nil {
		e.emitAudit(ctx, AuditEvent{
			EventType:   auditEventTokenReuse,
			PrincipalID: claims.UID,
			FamilyID:    claims.SID,
			IP:          meta.IP,
			Error:       errString(err),
		})
		return fmt.Errorf("%w: %v", ErrBackendUnavailable, err)
	}

	e.emitAudit(ctx, AuditEvent{
		EventType:   auditEventTokenReuse,
		PrincipalID: claims.UID,
		FamilyID:    claims.SID,
		IP:          meta.IP,
		Success:     true,
		Error:       errString(cause),
	})
	return ErrRefreshReuse
}

// Revoke marks every session in the family revoked. Idempotent.
func (e *Engine) Revoke(ctx context.Context, principalID, familyID string) error {
	if err := e.ready(); err != nil {
		return err
	}

	if err := e.sessions.RevokeFamily(ctx, familyID, time.Now()); err != nil {
		return fmt.Errorf("%w: %v", ErrBackendUnavailable, err)
	}

	e.metricInc(MetricRevoke)
	e.emitAudit(ctx, AuditEvent{
		EventType:   auditEventRevoke,
		PrincipalID: principalID,
		FamilyID:    familyID,
		Success:     true,
	})
	return nil
}

// RevokeAll is logout-everywhere: every family for the principal is
// revoked.
func (e *Engine) RevokeAll(ctx context.Context, principalID string) error {
	if err := e.ready(); err != nil {
		return err
	}

	if err := e.sessions.RevokeAllForUser(ctx, principalID, time.Now()); err != nil {
		return fmt.Errorf("%w: %v", ErrBackendUnavailable, err)
	}

	e.metricInc(MetricRevokeAll)
	e.emitAudit(ctx, AuditEvent{
		EventType:   auditEventRevokeAll,
		PrincipalID: principalID,
		Success:     true,
	})
	return nil
}

func mapCodecError(err error) error {
	switch {
	case errors.Is(err, jwt.ErrExpired):
		return ErrTokenExpired
	case errors.Is(err, jwt.ErrSignature):
		return ErrTokenSignatureInvalid
	default:
		return ErrTokenMalformed
	}
}
