package authcore

import (
	"context"
	"errors"
	"fmt"
)

// Login authenticates an email/password pair and issues a token pair in a
// fresh session family. Unknown identifiers and wrong passwords are
// indistinguishable to the caller.
func (e *Engine) Login(ctx context.Context, email, pass string, meta ClientMeta) (*TokenPair, error) {
	if err := e.ready(); err != nil {
		return nil, err
	}

	principal, err := e.creds.FindByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, ErrPrincipalNotFound) {
			sleepEnumerationDelay()
			e.metricInc(MetricLoginFailure)
			return nil, ErrInvalidCredentials
		}
		return nil, fmt.Errorf("%w: %v", ErrBackendUnavailable, err)
	}

	if principal.PasswordHash == "" {
		e.metricInc(MetricLoginFailure)
		e.emitAudit(ctx, AuditEvent{
			EventType:   auditEventLogin,
			PrincipalID: principal.ID,
			IP:          meta.IP,
			Error:       "no password credential",
		})
		return nil, ErrAccountNotEligible
	}

	ok, err := e.hasher.Verify(pass, principal.PasswordHash)
	if err != nil || !ok {
		e.metricInc(MetricLoginFailure)
		e.emitAudit(ctx, AuditEvent{
			EventType:   auditEventLogin,
			PrincipalID: principal.ID,
			IP:          meta.IP,
			Error:       "password mismatch",
		})
		return nil, ErrInvalidCredentials
	}

	if principal.Status == AccountSuspended {
		e.metricInc(MetricLoginFailure)
		return nil, ErrAccountSuspended
	}

	pair, err := e.issueForPrincipal(ctx, principal, "", meta)
	if err != nil {
		return nil, err
	}

	e.metricInc(MetricLoginSuccess)
	e.emitAudit(ctx, AuditEvent{
		EventType:   auditEventLogin,
		PrincipalID: principal.ID,
		FamilyID:    pair.FamilyID,
		IP:          meta.IP,
		Success:     true,
	})
	return pair, nil
}
