package token

import (
	"crypto/rsa"
	"errors"
	"strconv"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

const (
	// DefaultAccessTTL bounds access tokens to fifteen minutes.
	DefaultAccessTTL = 15 * time.Minute
	// DefaultRefreshTTL bounds refresh tokens to a day.
	DefaultRefreshTTL = 24 * time.Hour
)

// Issuer signs tokens with the IdP's active RSA key.
type Issuer struct {
	key        *rsa.PrivateKey
	kid        string
	issuer     string
	accessTTL  time.Duration
	refreshTTL time.Duration
	now        func() time.Time
}

// IssuerOption configures an Issuer.
type IssuerOption func(*Issuer)

// WithIssuerName sets the iss claim.
func WithIssuerName(name string) IssuerOption {
	return func(i *Issuer) { i.issuer = name }
}

// WithAccessTTL overrides the access token lifetime.
func WithAccessTTL(ttl time.Duration) IssuerOption {
	return func(i *Issuer) {
		if ttl > 0 {
			i.accessTTL = ttl
		}
	}
}

// WithRefreshTTL overrides the refresh token lifetime.
func WithRefreshTTL(ttl time.Duration) IssuerOption {
	return func(i *Issuer) {
		if ttl > 0 {
			i.refreshTTL = ttl
		}
	}
}

// WithIssuerClock overrides the time source. Test use.
func WithIssuerClock(fn func() time.Time) IssuerOption {
	return func(i *Issuer) {
		if fn != nil {
			i.now = fn
		}
	}
}

// NewIssuer constructs an Issuer for the given signing key and key id.
func NewIssuer(key *rsa.PrivateKey, kid string, opts ...IssuerOption) (*Issuer, error) {
	if key == nil {
		return nil, errors.New("token: signing key is required")
	}
	if kid == "" {
		return nil, errors.New("token: key id is required")
	}
	iss := &Issuer{
		key:        key,
		kid:        kid,
		accessTTL:  DefaultAccessTTL,
		refreshTTL: DefaultRefreshTTL,
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(iss)
	}
	return iss, nil
}

// Subject identifies the account a token is minted for.
type Subject struct {
	AccountID int64
	Username  string
	IsAdmin   bool
	Version   int64
}

// Pair is a freshly signed access/refresh token pair.
type Pair struct {
	Access           string
	Refresh          string
	AccessExpiresAt  time.Time
	RefreshExpiresAt time.Time
}

// IssuePair signs a new access and refresh token for the subject.
func (i *Issuer) IssuePair(sub Subject) (Pair, error) {
	access, accessExp, err := i.sign(sub, KindAccess, i.accessTTL)
	if err != nil {
		return Pair{}, err
	}
	refresh, refreshExp, err := i.sign(sub, KindRefresh, i.refreshTTL)
	if err != nil {
		return Pair{}, err
	}
	return Pair{
		Access:           access,
		Refresh:          refresh,
		AccessExpiresAt:  accessExp,
		RefreshExpiresAt: refreshExp,
	}, nil
}

// IssueAccess signs a single access token for the subject.
func (i *Issuer) IssueAccess(sub Subject) (string, time.Time, error) {
	return i.sign(sub, KindAccess, i.accessTTL)
}

func (i *Issuer) sign(sub Subject, kind string, ttl time.Duration) (string, time.Time, error) {
	now := i.now().UTC()
	exp := now.Add(ttl)
	claims := Claims{
		Username: sub.Username,
		Kind:     kind,
		Version:  sub.Version,
		IsAdmin:  sub.IsAdmin,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    i.issuer,
			Subject:   strconv.FormatInt(sub.AccountID, 10),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(exp),
			ID:        uuid.NewString(),
		},
	}
	tok := jwt.NewWithClaims(jwt.SigningMethodRS256, claims)
	tok.Header["kid"] = i.kid
	signed, err := tok.SignedString(i.key)
	if err != nil {
		return "", time.Time{}, err
	}
	return signed, exp, nil
}
