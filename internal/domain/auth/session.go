package auth

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"strings"
)

var ErrMissingToken = errors.New("missing bearer token")

// Session is the caller's credentials, passed explicitly to anything that
// talks to the leave API.
type Session struct {
	Token    string
	UserID   string
	TenantID string
	RoleName string
}

func (s Session) BearerToken() string {
	return s.Token
}

func (s Session) Verified() bool {
	return s.UserID != ""
}

// CacheKey partitions cached data per caller. Unverified tokens are keyed by
// a digest of the token itself so that one caller can never read another's
// entries.
func (s Session) CacheKey() string {
	if s.UserID != "" {
		if s.TenantID != "" {
			return "u:" + s.TenantID + ":" + s.UserID
		}
		return "u:" + s.UserID
	}
	sum := sha256.Sum256([]byte(s.Token))
	return "t:" + hex.EncodeToString(sum[:12])
}

// BearerFromHeader extracts the token from an Authorization header value.
func BearerFromHeader(header string) (string, error) {
	parts := strings.Fields(header)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "bearer") {
		return "", ErrMissingToken
	}
	return parts[1], nil
}

// NewSession builds a session for token. With a secret configured the token
// must verify and the session carries its claims; without one the token is
// forwarded as-is and the remote API is left to reject it.
func NewSession(secret, token string) (Session, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return Session{}, ErrMissingToken
	}
	if secret == "" {
		return Session{Token: token}, nil
	}
	claims, err := ParseToken(secret, token)
	if err != nil {
		return Session{}, errors.Join(ErrInvalidToken, err)
	}
	return Session{
		Token:    token,
		UserID:   claims.UserID,
		TenantID: claims.TenantID,
		RoleName: claims.RoleName,
	}, nil
}
