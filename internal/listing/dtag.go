package listing

import (
	"encoding/base64"

	"github.com/google/uuid"
)

const canonicalDTagLen = 22

// IsDTagBase64URL reports whether v is shaped like a base64url identifier:
// non-empty and drawn only from [A-Za-z0-9_-].
func IsDTagBase64URL(v string) bool {
	if v == "" {
		return false
	}
	for i := 0; i < len(v); i++ {
		if !isBase64URLByte(v[i]) {
			return false
		}
	}
	return true
}

// IsCanonicalDTag reports whether v is exactly the unpadded base64url form
// of 16 bytes, as produced by NewDTag.
func IsCanonicalDTag(v string) bool {
	if len(v) != canonicalDTagLen || !IsDTagBase64URL(v) {
		return false
	}
	switch v[canonicalDTagLen-1] {
	case 'A', 'Q', 'g', 'w':
		return true
	}
	return false
}

// NewDTag returns a fresh canonical d tag derived from a random UUID.
func NewDTag() string {
	id := uuid.New()
	return base64.RawURLEncoding.EncodeToString(id[:])
}

func isBase64URLByte(c byte) bool {
	return c >= 'A' && c <= 'Z' || c >= 'a' && c <= 'z' || c >= '0' && c <= '9' || c == '-' || c == '_'
}
