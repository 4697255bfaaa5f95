package authcore

import (
	"context"
	"errors"
	"sync"
	"testing"
)

func TestIssueValidateRoundTrip(t *testing.T) {
	env := newTestEnv(t, nil)
	env.seedUser(t, "user-1", "alice@example.com", "", "correct-horse")
	ctx := context.Background()

	pair, err := env.engine.Login(ctx, "alice@example.com", "correct-horse", testMeta())
	if err != nil {
		t.Fatalf("Login failed: %v", err)
	}

	claims, err := env.engine.Validate(ctx, pair.AccessToken)
	if err != nil {
		t.Fatalf("Validate failed: %v", err)
	}
	if claims.UID != "user-1" {
		t.Fatalf("unexpected uid: %q", claims.UID)
	}
	if claims.SID != pair.FamilyID {
		t.Fatalf("access token family %q does not match pair family %q", claims.SID, pair.FamilyID)
	}
}

func TestIssueUnknownPrincipal(t *testing.T) {
	env := newTestEnv(t, nil)

	if _, err := env.engine.Issue(context.Background(), "ghost", "", testMeta()); !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("expected ErrInvalidCredentials, got %v", err)
	}
}

func TestRotatePreservesFamily(t *testing.T) {
	env := newTestEnv(t, nil)
	env.seedUser(t, "user-1", "alice@example.com", "", "correct-horse")
	ctx := context.Background()

	pair, err := env.engine.Login(ctx, "alice@example.com", "correct-horse", testMeta())
	if err != nil {
		t.Fatalf("Login failed: %v", err)
	}

	next, err := env.engine.Rotate(ctx, pair.RefreshToken, testMeta())
	if err != nil {
		t.Fatalf("Rotate failed: %v", err)
	}
	if next.FamilyID != pair.FamilyID {
		t.Fatalf("rotation changed family: %q -> %q", pair.FamilyID, next.FamilyID)
	}
	if next.RefreshToken == pair.RefreshToken {
		t.Fatal("rotation returned the same refresh token")
	}

	// The new token keeps working.
	if _, err := env.engine.Rotate(ctx, next.RefreshToken, testMeta()); err != nil {
		t.Fatalf("rotation of successor failed: %v", err)
	}
}

func TestRotateReuseRevokesFamily(t *testing.T) {
	env := newTestEnv(t, nil)
	env.seedUser(t, "user-1", "alice@example.com", "", "correct-horse")
	ctx := context.Background()

	pair, err := env.engine.Login(ctx, "alice@example.com", "correct-horse", testMeta())
	if err != nil {
		t.Fatalf("Login failed: %v", err)
	}
	next, err := env.engine.Rotate(ctx, pair.RefreshToken, testMeta())
	if err != nil {
		t.Fatalf("Rotate failed: %v", err)
	}

	// Replaying the consumed token is theft evidence.
	if _, err := env.engine.Rotate(ctx, pair.RefreshToken, testMeta()); !errors.Is(err, ErrRefreshReuse) {
		t.Fatalf("expected ErrRefreshReuse on replay, got %v", err)
	}

	// The whole family died with it, current token included.
	if _, err := env.engine.Rotate(ctx, next.RefreshToken, testMeta()); !errors.Is(err, ErrRefreshReuse) {
		t.Fatalf("expected ErrRefreshReuse for revoked family, got %v", err)
	}

	snap := env.engine.MetricsSnapshot()
	if snap["refresh_reuse_detected"] == 0 {
		t.Fatal("reuse metric not incremented")
	}
}

func TestRotateRejectsGarbage(t *testing.T) {
	env := newTestEnv(t, nil)
	ctx := context.Background()

	if _, err := env.engine.Rotate(ctx, "not-a-token", testMeta()); !errors.Is(err, ErrTokenMalformed) {
		t.Fatalf("expected ErrTokenMalformed, got %v", err)
	}
}

func TestRotateRejectsAccessToken(t *testing.T) {
	env := newTestEnv(t, nil)
	env.seedUser(t, "user-1", "alice@example.com", "", "correct-horse")
	ctx := context.Background()

	pair, err := env.engine.Login(ctx, "alice@example.com", "correct-horse", testMeta())
	if err != nil {
		t.Fatalf("Login failed: %v", err)
	}

	// The token classes are signed with different secrets.
	if _, err := env.engine.Rotate(ctx, pair.AccessToken, testMeta()); !errors.Is(err, ErrTokenSignatureInvalid) {
		t.Fatalf("expected ErrTokenSignatureInvalid, got %v", err)
	}
}

func TestRotateSuspendedAccountRevokesFamily(t *testing.T) {
	env := newTestEnv(t, nil)
	env.seedUser(t, "user-1", "alice@example.com", "", "correct-horse")
	ctx := context.Background()

	pair, err := env.engine.Login(ctx, "alice@example.com", "correct-horse", testMeta())
	if err != nil {
		t.Fatalf("Login failed: %v", err)
	}

	env.creds.suspend("user-1")

	if _, err := env.engine.Rotate(ctx, pair.RefreshToken, testMeta()); !errors.Is(err, ErrAccountSuspended) {
		t.Fatalf("expected ErrAccountSuspended, got %v", err)
	}
}

func TestRotateStalePasswordVersion(t *testing.T) {
	env := newTestEnv(t, nil)
	env.seedUser(t, "user-1", "alice@example.com", "", "correct-horse")
	ctx := context.Background()

	pair, err := env.engine.Login(ctx, "alice@example.com", "correct-horse", testMeta())
	if err != nil {
		t.Fatalf("Login failed: %v", err)
	}

	if _, err := env.creds.IncrementPasswordVersion(ctx, "user-1"); err != nil {
		t.Fatalf("version bump failed: %v", err)
	}

	if _, err := env.engine.Rotate(ctx, pair.RefreshToken, testMeta()); !errors.Is(err, ErrTokenExpired) {
		t.Fatalf("expected ErrTokenExpired for stale version, got %v", err)
	}
}

func TestRevokeFamilyKillsRotation(t *testing.T) {
	env := newTestEnv(t, nil)
	env.seedUser(t, "user-1", "alice@example.com", "", "correct-horse")
	ctx := context.Background()

	pair, err := env.engine.Login(ctx, "alice@example.com", "correct-horse", testMeta())
	if err != nil {
		t.Fatalf("Login failed: %v", err)
	}

	if err := env.engine.Revoke(ctx, "user-1", pair.FamilyID); err != nil {
		t.Fatalf("Revoke failed: %v", err)
	}
	if _, err := env.engine.Rotate(ctx, pair.RefreshToken, testMeta()); !errors.Is(err, ErrRefreshReuse) {
		t.Fatalf("expected ErrRefreshReuse after revocation, got %v", err)
	}
}

func TestRevokeAllKillsEveryFamily(t *testing.T) {
	env := newTestEnv(t, nil)
	env.seedUser(t, "user-1", "alice@example.com", "", "correct-horse")
	ctx := context.Background()

	pair1, err := env.engine.Login(ctx, "alice@example.com", "correct-horse", testMeta())
	if err != nil {
		t.Fatalf("Login failed: %v", err)
	}
	pair2, err := env.engine.Login(ctx, "alice@example.com", "correct-horse", testMeta())
	if err != nil {
		t.Fatalf("Login failed: %v", err)
	}

	if err := env.engine.RevokeAll(ctx, "user-1"); err != nil {
		t.Fatalf("RevokeAll failed: %v", err)
	}

	for _, pair := range []*TokenPair{pair1, pair2} {
		if _, err := env.engine.Rotate(ctx, pair.RefreshToken, testMeta()); !errors.Is(err, ErrRefreshReuse) {
			t.Fatalf("expected ErrRefreshReuse after logout-everywhere, got %v", err)
		}
	}
}

func TestValidateStrictRequiresLiveFamily(t *testing.T) {
	env := newTestEnv(t, func(cfg *Config) {
		cfg.ValidationMode = ValidateStrict
	})
	env.seedUser(t, "user-1", "alice@example.com", "", "correct-horse")
	ctx := context.Background()

	pair, err := env.engine.Login(ctx, "alice@example.com", "correct-horse", testMeta())
	if err != nil {
		t.Fatalf("Login failed: %v", err)
	}

	if _, err := env.engine.Validate(ctx, pair.AccessToken); err != nil {
		t.Fatalf("Validate failed: %v", err)
	}

	if err := env.engine.Revoke(ctx, "user-1", pair.FamilyID); err != nil {
		t.Fatalf("Revoke failed: %v", err)
	}
	if _, err := env.engine.Validate(ctx, pair.AccessToken); !errors.Is(err, ErrTokenExpired) {
		t.Fatalf("expected ErrTokenExpired in strict mode, got %v", err)
	}
}

func TestValidateClaimsModeSkipsStore(t *testing.T) {
	env := newTestEnv(t, func(cfg *Config) {
		cfg.ValidationMode = ValidateClaims
	})
	env.seedUser(t, "user-1", "alice@example.com", "", "correct-horse")
	ctx := context.Background()

	pair, err := env.engine.Login(ctx, "alice@example.com", "correct-horse", testMeta())
	if err != nil {
		t.Fatalf("Login failed: %v", err)
	}

	// In claims mode a version bump does not invalidate the token.
	if _, err := env.creds.IncrementPasswordVersion(ctx, "user-1"); err != nil {
		t.Fatalf("version bump failed: %v", err)
	}
	if _, err := env.engine.Validate(ctx, pair.AccessToken); err != nil {
		t.Fatalf("Validate failed in claims mode: %v", err)
	}
}

func TestValidateSuspendedAccount(t *testing.T) {
	env := newTestEnv(t, nil)
	env.seedUser(t, "user-1", "alice@example.com", "", "correct-horse")
	ctx := context.Background()

	pair, err := env.engine.Login(ctx, "alice@example.com", "correct-horse", testMeta())
	if err != nil {
		t.Fatalf("Login failed: %v", err)
	}

	env.creds.suspend("user-1")

	if _, err := env.engine.Validate(ctx, pair.AccessToken); !errors.Is(err, ErrAccountSuspended) {
		t.Fatalf("expected ErrAccountSuspended, got %v", err)
	}
}

func TestConcurrentRotateSingleWinner(t *testing.T) {
	env := newTestEnv(t, nil)
	env.seedUser(t, "user-1", "alice@example.com", "", "correct-horse")
	ctx := context.Background()

	pair, err := env.engine.Login(ctx, "alice@example.com", "correct-horse", testMeta())
	if err != nil {
		t.Fatalf("Login failed: %v", err)
	}

	const workers = 8
	results := make([]error, workers)

	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, results[i] = env.engine.Rotate(ctx, pair.RefreshToken, testMeta())
		}(i)
	}
	wg.Wait()

	wins := 0
	for _, err := range results {
		switch {
		case err == nil:
			wins++
		case errors.Is(err, ErrRefreshReuse):
		default:
			t.Fatalf("unexpected error from losing rotation: %v", err)
		}
	}
	if wins != 1 {
		t.Fatalf("expected exactly one winning rotation, got %d", wins)
	}
}
