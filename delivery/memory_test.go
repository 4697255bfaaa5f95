package delivery

import (
	"context"
	"errors"
	"testing"
)

func TestMemorySenderRecordsLastCode(t *testing.T) {
	sender := NewMemorySender()
	ctx := context.Background()

	if err := sender.SendCode(ctx, "alice@example.com", "111111"); err != nil {
		t.Fatalf("SendCode failed: %v", err)
	}
	if err := sender.SendCode(ctx, "alice@example.com", "222222"); err != nil {
		t.Fatalf("SendCode failed: %v", err)
	}

	if got := sender.Code("alice@example.com"); got != "222222" {
		t.Fatalf("expected last code, got %q", got)
	}
	if got := sender.Code("bob@example.com"); got != "" {
		t.Fatalf("expected no code for unknown address, got %q", got)
	}
}

func TestMemorySenderFailWith(t *testing.T) {
	sender := NewMemorySender()
	boom := errors.New("smtp down")
	sender.FailWith(boom)

	if err := sender.SendCode(context.Background(), "alice@example.com", "111111"); !errors.Is(err, boom) {
		t.Fatalf("expected injected failure, got %v", err)
	}
}

func TestMemoryVerifierChallengeIsSingleUse(t *testing.T) {
	verifier := NewMemoryVerifier()
	ctx := context.Background()

	if err := verifier.StartChallenge(ctx, "+15551230000"); err != nil {
		t.Fatalf("StartChallenge failed: %v", err)
	}

	code := verifier.Code("+15551230000")
	if len(code) != 6 {
		t.Fatalf("expected 6-digit code, got %q", code)
	}

	wrong := "000000"
	if code == wrong {
		wrong = "000001"
	}
	ok, err := verifier.CheckChallenge(ctx, "+15551230000", wrong)
	if err != nil {
		t.Fatalf("CheckChallenge failed: %v", err)
	}
	if ok {
		t.Fatal("wrong code approved")
	}

	ok, err = verifier.CheckChallenge(ctx, "+15551230000", code)
	if err != nil {
		t.Fatalf("CheckChallenge failed: %v", err)
	}
	if !ok {
		t.Fatal("correct code rejected")
	}

	// The challenge is consumed on approval.
	ok, err = verifier.CheckChallenge(ctx, "+15551230000", code)
	if err != nil {
		t.Fatalf("CheckChallenge failed: %v", err)
	}
	if ok {
		t.Fatal("replayed code approved")
	}
}
