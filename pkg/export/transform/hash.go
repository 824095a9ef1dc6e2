package transform

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
)

// Hasher produces deterministic one-way digests of field values.
type Hasher struct {
	secret []byte
}

// NewHasher creates a hasher keyed with secret. An empty secret still
// yields deterministic digests.
func NewHasher(secret string) *Hasher {
	return &Hasher{secret: []byte(secret)}
}

// HashString returns the hex-encoded HMAC-SHA256 of s.
func (h *Hasher) HashString(s string) string {
	mac := hmac.New(sha256.New, h.secret)
	mac.Write([]byte(s))
	return hex.EncodeToString(mac.Sum(nil))
}

// HashValue hashes any JSON-like value. Strings are hashed as-is; other
// values are hashed over their JSON encoding so 42 and "42" differ.
func (h *Hasher) HashValue(v any) (string, error) {
	if s, ok := v.(string); ok {
		return h.HashString(s), nil
	}
	data, err := json.Marshal(v)
	if err != nil {
		return "", fmt.Errorf("encode value for hashing: %w", err)
	}
	return h.HashString(string(data)), nil
}
