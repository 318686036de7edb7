// Package token issues and verifies the signed credentials that tie the
// services together. The IdP signs with its private key; every other
// service verifies locally against the published public keys and never
// calls back to the IdP per request.
package token

import (
	"strconv"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Token kinds carried in the "kind" claim.
const (
	KindAccess  = "access"
	KindRefresh = "refresh"
)

// Claims is the JWT payload shared by access and refresh tokens.
type Claims struct {
	Username string `json:"username"`
	Kind     string `json:"kind"`
	Version  int64  `json:"ver"`
	IsAdmin  bool   `json:"is_admin,omitempty"`
	jwt.RegisteredClaims
}

// AccountID parses the subject claim back into the numeric account id.
func (c *Claims) AccountID() (int64, error) {
	return strconv.ParseInt(c.Subject, 10, 64)
}

// Caller is the capability handed to request handlers after verification.
// It carries identity only; no reflective user object is synthesized.
type Caller struct {
	Subject   int64
	Username  string
	IsAdmin   bool
	Version   int64
	ExpiresAt time.Time
}
