package secrets

import (
	"strings"

	masker "github.com/goliatone/go-masker"
)

const maskRule = "preserveEnds(2,2)"

// SecretFields lists config and log keys that carry credentials.
var SecretFields = []string{
	"token", "team_token", "access_token",
	"api_key", "apikey", "authorization",
	"password", "secret",
}

func init() {
	for _, field := range SecretFields {
		masker.Default.RegisterMaskField(field, maskRule)
	}
}

// IsSecretField reports whether key names a credential.
func IsSecretField(key string) bool {
	key = strings.ToLower(strings.TrimSpace(key))
	for _, field := range SecretFields {
		if key == field {
			return true
		}
	}
	return false
}

// MaskToken hides all but the ends of a credential.
func MaskToken(value string) string {
	if value == "" {
		return ""
	}
	if masked, err := masker.Default.String(maskRule, value); err == nil && masked != value {
		return masked
	}
	runes := []rune(value)
	if len(runes) <= 4 {
		return strings.Repeat("*", len(runes))
	}
	return string(runes[:2]) + strings.Repeat("*", len(runes)-4) + string(runes[len(runes)-2:])
}
