package authcore

import (
	"errors"

	"github.com/hexlane/authcore/delivery"
	"github.com/hexlane/authcore/internal/stores"
	"github.com/hexlane/authcore/jwt"
	"github.com/hexlane/authcore/password"
	"github.com/hexlane/authcore/session"
	"github.com/redis/go-redis/v9"
)

// Builder assembles an Engine. Redis and a CredentialStore are required;
// delivery collaborators are optional and gate which OTP channels work.
type Builder struct {
	config Config
	redis  *redis.Client

	creds CredentialStore
	email delivery.EmailSender
	sms   delivery.SMSVerifier
	audit AuditSink

	built bool
}

func New() *Builder {
	return &Builder{config: defaultConfig()}
}

func (b *Builder) WithConfig(cfg Config) *Builder {
	b.config = cfg
	return b
}

func (b *Builder) WithRedis(client *redis.Client) *Builder {
	b.redis = client
	return b
}

func (b *Builder) WithCredentialStore(store CredentialStore) *Builder {
	b.creds = store
	return b
}

func (b *Builder) WithEmailSender(sender delivery.EmailSender) *Builder {
	b.email = sender
	return b
}

func (b *Builder) WithSMSVerifier(verifier delivery.SMSVerifier) *Builder {
	b.sms = verifier
	return b
}

func (b *Builder) WithAuditSink(sink AuditSink) *Builder {
	b.audit = sink
	return b
}

// Build validates the configuration eagerly and wires the engine. A
// builder can be used once.
func (b *Builder) Build() (*Engine, error) {
	if b.built {
		return nil, errors.New("builder already used")
	}
	if err := b.config.Validate(); err != nil {
		return nil, err
	}
	if b.redis == nil {
		return nil, errors.New("redis client required")
	}
	if b.creds == nil {
		return nil, errors.New("credential store required")
	}

	codec, err := jwt.NewManager(jwt.Config{
		AccessSecret:  b.config.JWT.AccessSecret,
		RefreshSecret: b.config.JWT.RefreshSecret,
		AccessTTL:     b.config.JWT.AccessTTL,
		RefreshTTL:    b.config.JWT.RefreshTTL,
		Issuer:        b.config.JWT.Issuer,
		Leeway:        b.config.JWT.Leeway,
		KeyID:         b.config.JWT.KeyID,
	})
	if err != nil {
		return nil, err
	}

	hasher, err := password.NewArgon2(password.Config{
		Memory:      b.config.Password.Memory,
		Time:        b.config.Password.Time,
		Parallelism: b.config.Password.Parallelism,
		SaltLength:  b.config.Password.SaltLength,
		KeyLength:   b.config.Password.KeyLength,
	})
	if err != nil {
		return nil, err
	}

	sink := b.audit
	if sink == nil {
		sink = NoOpSink{}
	}

	prefix := b.config.Session.RedisPrefix
	engine := &Engine{
		config:   b.config,
		codec:    codec,
		hasher:   hasher,
		sessions: session.NewStore(b.redis, prefix),
		otps:     stores.NewOTPStore(b.redis, prefix),
		caps:     stores.NewCapabilityStore(b.redis, prefix),
		creds:    b.creds,
		email:    b.email,
		sms:      b.sms,
		audit:    sink,
		metrics:  newMetricsTable(),
	}

	b.built = true
	return engine, nil
}
