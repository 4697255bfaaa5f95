package authcore

import "context"

// AccountStatus is the lifecycle state of a principal.
type AccountStatus uint8

const (
	AccountActive AccountStatus = iota
	AccountSuspended
)

// Channel selects the out-of-band delivery channel for one-time codes.
type Channel string

const (
	ChannelEmail Channel = "email"
	ChannelSMS   Channel = "sms"
)

// Principal is a user identity as seen by this engine. Owned by the
// credential store; the engine only reads it and updates credentials
// through the CredentialStore port.
type Principal struct {
	ID              string
	Email           string
	Phone           string // E.164, optional
	PasswordHash    string // empty for federated-only accounts
	PasswordVersion uint32
	Status          AccountStatus
	EmailVerified   bool
}

// CredentialStore is the injected port to the durable user database.
// Implementations return ErrPrincipalNotFound on a miss.
type CredentialStore interface {
	FindByEmail(ctx context.Context, email string) (*Principal, error)
	FindByPhone(ctx context.Context, phone string) (*Principal, error)
	FindByID(ctx context.Context, id string) (*Principal, error)
	UpdatePasswordHash(ctx context.Context, id, hash string) error

	// IncrementPasswordVersion bumps the version counter and returns the
	// new value, invalidating every token that embeds an older one.
	IncrementPasswordVersion(ctx context.Context, id string) (uint32, error)
}

// TokenPair is the result of issuance and rotation. Both tokens carry the
// same family id and password version.
type TokenPair struct {
	AccessToken  string
	RefreshToken string
	FamilyID     string
}

// ClientMeta is advisory request metadata recorded on ledger rows.
type ClientMeta struct {
	UserAgent string
	IP        string
}
