package authcore

import "errors"

var (
	// ErrInvalidCredentials covers unknown identifiers and wrong passwords
	// alike; login never distinguishes the two.
	ErrInvalidCredentials = errors.New("invalid credentials")
	// ErrAccountNotEligible is returned when a federated-only account (no
	// stored password hash) attempts password login.
	ErrAccountNotEligible = errors.New("account not eligible for password login")
	// ErrAccountSuspended is returned for suspended principals.
	ErrAccountSuspended = errors.New("account suspended")
	// ErrTokenExpired covers expired tokens and tokens invalidated by a
	// password-version bump.
	ErrTokenExpired = errors.New("token expired")
	// ErrTokenSignatureInvalid is a failed signature check.
	ErrTokenSignatureInvalid = errors.New("token signature invalid")
	// ErrTokenMalformed is anything that does not parse as a token.
	ErrTokenMalformed = errors.New("token malformed")
	// ErrRefreshReuse is the rotation anti-replay signal. The engine has
	// already revoked the whole session family by the time the caller
	// sees it.
	ErrRefreshReuse = errors.New("refresh token reuse detected")
	// ErrCodeInvalid is a wrong or absent one-time code.
	ErrCodeInvalid = errors.New("invalid one-time code")
	// ErrCodeExpired is a one-time code past its window.
	ErrCodeExpired = errors.New("one-time code expired")
	// ErrCapabilityInvalid covers unknown, expired, consumed, and
	// unresolvable reset capabilities.
	ErrCapabilityInvalid = errors.New("invalid or expired reset capability")
	// ErrPasswordPolicy is a rejected replacement password.
	ErrPasswordPolicy = errors.New("password policy violation")
	// ErrChannelUnavailable means no delivery collaborator is configured
	// for the requested channel.
	ErrChannelUnavailable = errors.New("delivery channel unavailable")
	// ErrBackendUnavailable wraps storage-layer failures. Never retried
	// here; retries belong to the caller.
	ErrBackendUnavailable = errors.New("storage backend unavailable")
	// ErrPrincipalNotFound is the CredentialStore miss sentinel.
	ErrPrincipalNotFound = errors.New("principal not found")
	// ErrEngineNotReady is returned by operations on an unbuilt engine.
	ErrEngineNotReady = errors.New("engine not initialized")
)

// Client-facing collapsed errors. Internal errors stay distinguishable
// for audit; these are what the routing layer should show end users.
var (
	// ErrUnauthenticated is the single client-visible form of every token
	// verification failure.
	ErrUnauthenticated = errors.New("unauthenticated")
	// ErrRecoveryRejected is the single client-visible form of every
	// enumeration-sensitive recovery failure.
	ErrRecoveryRejected = errors.New("recovery request rejected")
)

// PublicError maps an engine error to the error the routing layer may
// expose. Enumeration-sensitive kinds collapse so responses leak nothing
// about account existence or code validity. ErrRefreshReuse passes
// through: surfacing it is safe and the family is already revoked.
func PublicError(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, ErrCodeInvalid),
		errors.Is(err, ErrCodeExpired),
		errors.Is(err, ErrCapabilityInvalid):
		return ErrRecoveryRejected
	case errors.Is(err, ErrTokenExpired),
		errors.Is(err, ErrTokenSignatureInvalid),
		errors.Is(err, ErrTokenMalformed):
		return ErrUnauthenticated
	case errors.Is(err, ErrInvalidCredentials),
		errors.Is(err, ErrAccountNotEligible):
		return ErrInvalidCredentials
	default:
		return err
	}
}
