package password

import (
	"errors"
	"strings"
	"testing"
)

func fastConfig() Config {
	return Config{
		Memory:      8 * 1024,
		Time:        1,
		Parallelism: 1,
		SaltLength:  16,
		KeyLength:   16,
	}
}

func TestHashVerifyRoundTrip(t *testing.T) {
	a, err := NewArgon2(fastConfig())
	if err != nil {
		t.Fatalf("NewArgon2 failed: %v", err)
	}

	encoded, err := a.Hash("correct-horse-battery")
	if err != nil {
		t.Fatalf("Hash failed: %v", err)
	}
	if !strings.HasPrefix(encoded, "$argon2id$") {
		t.Fatalf("unexpected hash format: %q", encoded)
	}

	ok, err := a.Verify("correct-horse-battery", encoded)
	if err != nil {
		t.Fatalf("Verify failed: %v", err)
	}
	if !ok {
		t.Fatal("correct password did not verify")
	}

	ok, err = a.Verify("wrong-password-guess", encoded)
	if err != nil {
		t.Fatalf("Verify failed: %v", err)
	}
	if ok {
		t.Fatal("wrong password verified")
	}
}

func TestHashRejectsShortPassword(t *testing.T) {
	a, err := NewArgon2(fastConfig())
	if err != nil {
		t.Fatalf("NewArgon2 failed: %v", err)
	}

	if _, err := a.Hash("short"); !errors.Is(err, ErrPolicy) {
		t.Fatalf("expected ErrPolicy, got %v", err)
	}
}

func TestHashesAreSalted(t *testing.T) {
	a, err := NewArgon2(fastConfig())
	if err != nil {
		t.Fatalf("NewArgon2 failed: %v", err)
	}

	h1, err := a.Hash("same-password-here")
	if err != nil {
		t.Fatalf("Hash failed: %v", err)
	}
	h2, err := a.Hash("same-password-here")
	if err != nil {
		t.Fatalf("Hash failed: %v", err)
	}
	if h1 == h2 {
		t.Fatal("two hashes of the same password must differ")
	}
}

func TestVerifyUsesEmbeddedParameters(t *testing.T) {
	// A hash produced under one parameter set must verify through an
	// instance configured differently: parameters ride in the PHC string.
	strict, err := NewArgon2(Config{Memory: 16 * 1024, Time: 2, Parallelism: 2, SaltLength: 16, KeyLength: 32})
	if err != nil {
		t.Fatalf("NewArgon2 failed: %v", err)
	}
	encoded, err := strict.Hash("migrating-password")
	if err != nil {
		t.Fatalf("Hash failed: %v", err)
	}

	relaxed, err := NewArgon2(fastConfig())
	if err != nil {
		t.Fatalf("NewArgon2 failed: %v", err)
	}
	ok, err := relaxed.Verify("migrating-password", encoded)
	if err != nil {
		t.Fatalf("Verify failed: %v", err)
	}
	if !ok {
		t.Fatal("hash did not verify across parameter sets")
	}
}

func TestVerifyRejectsMalformedHashes(t *testing.T) {
	a, err := NewArgon2(fastConfig())
	if err != nil {
		t.Fatalf("NewArgon2 failed: %v", err)
	}

	cases := []string{
		"",
		"plaintext",
		"$argon2i$v=19$m=8192,t=1,p=1$c2FsdHNhbHRzYWx0c2FsdA$aGFzaA",
		"$argon2id$v=19$m=8192,t=1$c2FsdHNhbHRzYWx0c2FsdA$aGFzaA",
		"$argon2id$v=19$m=8192,t=1,p=1$!!!$aGFzaA",
	}
	for _, encoded := range cases {
		if _, err := a.Verify("whatever-password", encoded); err == nil {
			t.Errorf("expected error for %q", encoded)
		}
	}
}

func TestNewArgon2Validation(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*Config)
	}{
		{"low memory", func(c *Config) { c.Memory = 1024 }},
		{"zero time", func(c *Config) { c.Time = 0 }},
		{"zero parallelism", func(c *Config) { c.Parallelism = 0 }},
		{"short salt", func(c *Config) { c.SaltLength = 8 }},
		{"short key", func(c *Config) { c.KeyLength = 8 }},
	}

	for _, tc := range cases {
		cfg := fastConfig()
		tc.mutate(&cfg)
		if _, err := NewArgon2(cfg); err == nil {
			t.Errorf("%s: expected error", tc.name)
		}
	}
}
