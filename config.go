package authcore

import (
	"bytes"
	"errors"
	"time"

	"github.com/caarlos0/env/v11"
)

// ValidationMode controls how much work Validate does per access token.
type ValidationMode int

const (
	// ValidateClaims checks only the signature and registered claims.
	ValidateClaims ValidationMode = iota
	// ValidateVersion additionally compares the embedded password version
	// against the credential store. Default.
	ValidateVersion
	// ValidateStrict additionally requires the session family to be live.
	ValidateStrict
)

// Config is the single configuration object for the engine. Built once at
// startup, validated eagerly by Builder.Build, immutable afterwards.
type Config struct {
	JWT      JWTConfig
	Session  SessionConfig
	OTP      OTPConfig
	Reset    ResetConfig
	Password PasswordConfig
	Audit    AuditConfig

	ValidationMode ValidationMode
}

// JWTConfig feeds the secret codec. Access and refresh secrets must
// differ so one leaked class cannot forge the other.
type JWTConfig struct {
	AccessSecret  []byte
	RefreshSecret []byte
	AccessTTL     time.Duration
	RefreshTTL    time.Duration
	Issuer        string
	Leeway        time.Duration
	KeyID         string
}

// SessionConfig shapes the redis ledger.
type SessionConfig struct {
	RedisPrefix string
}

// OTPConfig shapes the one-time-code engine.
type OTPConfig struct {
	Digits      int
	TTL         time.Duration
	MaxAttempts int

	// DeliveryTimeout bounds the external provider call inside StartOTP.
	DeliveryTimeout time.Duration
}

// ResetConfig shapes the password-reset coordinator.
type ResetConfig struct {
	CapabilityTTL time.Duration

	// RevokeSessionsOnRedeem revokes every outstanding session for the
	// principal after a successful password reset.
	RevokeSessionsOnRedeem bool
}

// PasswordConfig holds argon2id cost parameters. Memory is in KB.
type PasswordConfig struct {
	Memory      uint32
	Time        uint32
	Parallelism uint8
	SaltLength  uint32
	KeyLength   uint32
}

// AuditConfig controls the audit sink buffer when a ChannelSink is built
// by the engine.
type AuditConfig struct {
	Enabled bool
	Buffer  int
}

// DefaultConfig returns the baseline configuration. Secrets are left
// empty and must be supplied before Build.
func DefaultConfig() Config {
	return defaultConfig()
}

func defaultConfig() Config {
	return Config{
		JWT: JWTConfig{
			AccessTTL:  15 * time.Minute,
			RefreshTTL: 7 * 24 * time.Hour,
			Leeway:     30 * time.Second,
			KeyID:      "v1",
		},
		Session: SessionConfig{
			RedisPrefix: "ac",
		},
		OTP: OTPConfig{
			Digits:          6,
			TTL:             10 * time.Minute,
			MaxAttempts:     5,
			DeliveryTimeout: 10 * time.Second,
		},
		Reset: ResetConfig{
			CapabilityTTL:          10 * time.Minute,
			RevokeSessionsOnRedeem: true,
		},
		Password: PasswordConfig{
			Memory:      64 * 1024,
			Time:        3,
			Parallelism: 2,
			SaltLength:  16,
			KeyLength:   32,
		},
		Audit: AuditConfig{
			Enabled: true,
			Buffer:  256,
		},
		ValidationMode: ValidateVersion,
	}
}

// Validate fails fast on misconfiguration so nothing breaks at first use.
func (c *Config) Validate() error {
	if len(c.JWT.AccessSecret) < 32 || len(c.JWT.RefreshSecret) < 32 {
		return errors.New("jwt secrets must be at least 32 bytes")
	}
	if bytes.Equal(c.JWT.AccessSecret, c.JWT.RefreshSecret) {
		return errors.New("access and refresh secrets must differ")
	}
	if c.JWT.AccessTTL <= 0 || c.JWT.RefreshTTL <= 0 {
		return errors.New("jwt TTLs must be positive")
	}
	if c.JWT.AccessTTL >= c.JWT.RefreshTTL {
		return errors.New("access TTL must be shorter than refresh TTL")
	}
	if c.Session.RedisPrefix == "" {
		return errors.New("session redis prefix required")
	}
	if c.OTP.Digits < 4 || c.OTP.Digits > 10 {
		return errors.New("otp digits must be between 4 and 10")
	}
	if c.OTP.TTL <= 0 {
		return errors.New("otp TTL must be positive")
	}
	if c.OTP.MaxAttempts < 1 {
		return errors.New("otp max attempts must be at least 1")
	}
	if c.OTP.DeliveryTimeout <= 0 {
		return errors.New("otp delivery timeout must be positive")
	}
	if c.Reset.CapabilityTTL <= 0 {
		return errors.New("reset capability TTL must be positive")
	}
	if c.ValidationMode < ValidateClaims || c.ValidationMode > ValidateStrict {
		return errors.New("invalid validation mode")
	}
	return nil
}

// envConfig holds raw environment values before they are folded into a
// Config.
type envConfig struct {
	AccessSecret    string        `env:"AUTHCORE_ACCESS_SECRET"`
	RefreshSecret   string        `env:"AUTHCORE_REFRESH_SECRET"`
	AccessTTL       time.Duration `env:"AUTHCORE_ACCESS_TTL"       envDefault:"15m"`
	RefreshTTL      time.Duration `env:"AUTHCORE_REFRESH_TTL"      envDefault:"168h"`
	Issuer          string        `env:"AUTHCORE_ISSUER"`
	KeyID           string        `env:"AUTHCORE_KEY_ID"           envDefault:"v1"`
	RedisPrefix     string        `env:"AUTHCORE_REDIS_PREFIX"     envDefault:"ac"`
	OTPDigits       int           `env:"AUTHCORE_OTP_DIGITS"       envDefault:"6"`
	OTPTTL          time.Duration `env:"AUTHCORE_OTP_TTL"          envDefault:"10m"`
	OTPMaxAttempts  int           `env:"AUTHCORE_OTP_MAX_ATTEMPTS" envDefault:"5"`
	DeliveryTimeout time.Duration `env:"AUTHCORE_DELIVERY_TIMEOUT" envDefault:"10s"`
	CapabilityTTL   time.Duration `env:"AUTHCORE_RESET_TTL"        envDefault:"10m"`
	RevokeOnRedeem  bool          `env:"AUTHCORE_RESET_REVOKE_SESSIONS" envDefault:"true"`
	AuditEnabled    bool          `env:"AUTHCORE_AUDIT_ENABLED"    envDefault:"true"`
}

// ConfigFromEnv builds a Config from AUTHCORE_* environment variables and
// validates it.
func ConfigFromEnv() (Config, error) {
	var raw envConfig
	if err := env.Parse(&raw); err != nil {
		return Config{}, err
	}

	cfg := defaultConfig()
	cfg.JWT.AccessSecret = []byte(raw.AccessSecret)
	cfg.JWT.RefreshSecret = []byte(raw.RefreshSecret)
	cfg.JWT.AccessTTL = raw.AccessTTL
	cfg.JWT.RefreshTTL = raw.RefreshTTL
	cfg.JWT.Issuer = raw.Issuer
	cfg.JWT.KeyID = raw.KeyID
	cfg.Session.RedisPrefix = raw.RedisPrefix
	cfg.OTP.Digits = raw.OTPDigits
	cfg.OTP.TTL = raw.OTPTTL
	cfg.OTP.MaxAttempts = raw.OTPMaxAttempts
	cfg.OTP.DeliveryTimeout = raw.DeliveryTimeout
	cfg.Reset.CapabilityTTL = raw.CapabilityTTL
	cfg.Reset.RevokeSessionsOnRedeem = raw.RevokeOnRedeem
	cfg.Audit.Enabled = raw.AuditEnabled

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}
