package authcore

import (
	"context"
	"errors"
	"testing"
)

func TestLoginIssuesFreshFamily(t *testing.T) {
	env := newTestEnv(t, nil)
	env.seedUser(t, "user-1", "alice@example.com", "", "correct-horse")
	ctx := context.Background()

	pair, err := env.engine.Login(ctx, "alice@example.com", "correct-horse", testMeta())
	if err != nil {
		t.Fatalf("Login failed: %v", err)
	}
	if pair.AccessToken == "" || pair.RefreshToken == "" || pair.FamilyID == "" {
		t.Fatalf("incomplete token pair: %+v", pair)
	}

	// A second login starts an independent family.
	pair2, err := env.engine.Login(ctx, "alice@example.com", "correct-horse", testMeta())
	if err != nil {
		t.Fatalf("second Login failed: %v", err)
	}
	if pair2.FamilyID == pair.FamilyID {
		t.Fatal("each login must start a new session family")
	}

	snap := env.engine.MetricsSnapshot()
	if snap["login_success"] != 2 {
		t.Fatalf("expected 2 login successes, got %d", snap["login_success"])
	}
}

func TestLoginWrongPassword(t *testing.T) {
	env := newTestEnv(t, nil)
	env.seedUser(t, "user-1", "alice@example.com", "", "correct-horse")

	if _, err := env.engine.Login(context.Background(), "alice@example.com", "wrong-horse", testMeta()); !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("expected ErrInvalidCredentials, got %v", err)
	}
}

func TestLoginUnknownEmail(t *testing.T) {
	env := newTestEnv(t, nil)

	// Unknown identifier and wrong password are the same error.
	if _, err := env.engine.Login(context.Background(), "nobody@example.com", "whatever-pass", testMeta()); !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("expected ErrInvalidCredentials, got %v", err)
	}
}

func TestLoginSuspendedAccount(t *testing.T) {
	env := newTestEnv(t, nil)
	env.seedUser(t, "user-1", "alice@example.com", "", "correct-horse")
	env.creds.suspend("user-1")

	if _, err := env.engine.Login(context.Background(), "alice@example.com", "correct-horse", testMeta()); !errors.Is(err, ErrAccountSuspended) {
		t.Fatalf("expected ErrAccountSuspended, got %v", err)
	}
}

func TestLoginFederatedOnlyAccount(t *testing.T) {
	env := newTestEnv(t, nil)
	env.creds.put(&Principal{ID: "user-1", Email: "alice@example.com"})

	if _, err := env.engine.Login(context.Background(), "alice@example.com", "any-password", testMeta()); !errors.Is(err, ErrAccountNotEligible) {
		t.Fatalf("expected ErrAccountNotEligible, got %v", err)
	}
}
