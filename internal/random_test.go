package internal

import (
	"testing"
)

func TestNumericCode(t *testing.T) {
	for _, digits := range []int{4, 6, 10} {
		code, err := NumericCode(digits)
		if err != nil {
			t.Fatalf("NumericCode(%d) failed: %v", digits, err)
		}
		if len(code) != digits {
			t.Fatalf("NumericCode(%d) returned %q", digits, code)
		}
		for _, r := range code {
			if r < '0' || r > '9' {
				t.Fatalf("non-digit in code %q", code)
			}
		}
	}
}

func TestNumericCodeBounds(t *testing.T) {
	for _, digits := range []int{0, 3, 11} {
		if _, err := NumericCode(digits); err == nil {
			t.Errorf("NumericCode(%d): expected error", digits)
		}
	}
}

func TestCapabilityTokenRoundTrip(t *testing.T) {
	id, err := NewCapabilityID()
	if err != nil {
		t.Fatalf("NewCapabilityID failed: %v", err)
	}
	secret, err := NewCapabilitySecret()
	if err != nil {
		t.Fatalf("NewCapabilitySecret failed: %v", err)
	}

	token := EncodeCapabilityToken(id, secret)

	gotID, gotSecret, err := DecodeCapabilityToken(token)
	if err != nil {
		t.Fatalf("DecodeCapabilityToken failed: %v", err)
	}
	if gotID != id {
		t.Fatal("capability id did not round-trip")
	}
	if gotSecret != secret {
		t.Fatal("capability secret did not round-trip")
	}
}

func TestDecodeCapabilityTokenRejectsGarbage(t *testing.T) {
	for _, token := range []string{"", "  ", "!!!", "dG9vLXNob3J0"} {
		if _, _, err := DecodeCapabilityToken(token); err == nil {
			t.Errorf("expected error for %q", token)
		}
	}
}

func TestCapabilityIDStringRoundTrip(t *testing.T) {
	id, err := NewCapabilityID()
	if err != nil {
		t.Fatalf("NewCapabilityID failed: %v", err)
	}

	parsed, err := ParseCapabilityID(id.String())
	if err != nil {
		t.Fatalf("ParseCapabilityID failed: %v", err)
	}
	if parsed != id {
		t.Fatal("capability id did not round-trip through its string form")
	}

	if _, err := ParseCapabilityID("not-base64!!"); err == nil {
		t.Fatal("expected error for malformed id")
	}
}
