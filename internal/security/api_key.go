package security

import (
	"regexp"

	"github.com/google/uuid"
)

// APIKeyPrefix is the literal prefix of every canonical API key.
const APIKeyPrefix = "key_"

// apiKeyPattern is the canonical key shape: the prefix followed by a
// 36-character lowercase hex-and-hyphen token (a UUID).
var apiKeyPattern = regexp.MustCompile(`^key_[a-f0-9-]{36}$`)

// GenerateAPIKey mints a new API key of the canonical shape.
func GenerateAPIKey() string {
	return APIKeyPrefix + uuid.NewString()
}

// ValidAPIKeyFormat reports whether the key matches the canonical shape.
// Format validation says nothing about whether the key is known.
func ValidAPIKeyFormat(apiKey string) bool {
	return apiKeyPattern.MatchString(apiKey)
}
