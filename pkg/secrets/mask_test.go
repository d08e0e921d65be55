package secrets

import (
	"strings"
	"testing"
)

func TestMaskTokenHidesMiddle(t *testing.T) {
	masked := MaskToken("team-token-1234")
	if masked == "team-token-1234" || strings.Contains(masked, "token-12") {
		t.Fatalf("expected token to be masked, got %s", masked)
	}
	if !strings.HasPrefix(masked, "te") || !strings.HasSuffix(masked, "34") {
		t.Fatalf("expected ends to be preserved, got %s", masked)
	}
	if MaskToken("") != "" {
		t.Fatalf("expected empty token to stay empty")
	}
	if MaskToken("abc") == "abc" {
		t.Fatalf("expected short token to be masked")
	}
}

func TestIsSecretField(t *testing.T) {
	for _, key := range []string{"token", " Team_Token ", "API_KEY"} {
		if !IsSecretField(key) {
			t.Fatalf("expected %q to be secret", key)
		}
	}
	for _, key := range []string{"team", "flag", "token_field"} {
		if IsSecretField(key) {
			t.Fatalf("expected %q not to be secret", key)
		}
	}
}
