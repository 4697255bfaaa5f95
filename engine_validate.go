package authcore

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/hexlane/authcore/jwt"
)

// Validate verifies an access token and returns its claims. Beyond the
// signature and expiry check, ValidateVersion mode rejects tokens whose
// embedded password version lags the credential store, and
// ValidateStrict additionally requires a live session family, so a
// revoked lineage kills access tokens before their natural expiry.
func (e *Engine) Validate(ctx context.Context, accessToken string) (*jwt.Claims, error) {
	if err := e.ready(); err != nil {
		return nil, err
	}

	claims, err := e.codec.Verify(accessToken, jwt.KindAccess)
	if err != nil {
		return nil, mapCodecError(err)
	}

	if e.config.ValidationMode == ValidateClaims {
		return claims, nil
	}

	principal, err := e.creds.FindByID(ctx, claims.UID)
	if err != nil {
		if errors.Is(err, ErrPrincipalNotFound) {
			return nil, ErrTokenExpired
		}
		return nil, fmt.Errorf("%w: %v", ErrBackendUnavailable, err)
	}
	if principal.Status == AccountSuspended {
		return nil, ErrAccountSuspended
	}
	if claims.Ver != principal.PasswordVersion {
		return nil, ErrTokenExpired
	}

	if e.config.ValidationMode == ValidateStrict {
		live, err := e.sessions.FamilyLive(ctx, claims.SID, time.Now())
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrBackendUnavailable, err)
		}
		if !live {
			return nil, ErrTokenExpired
		}
	}

	return claims, nil
}
