package token

import (
	"context"
	"crypto/rsa"
	"errors"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/Iradukunda-Fils/microservices-demo/internal/apierr"
	"github.com/Iradukunda-Fils/microservices-demo/internal/keys"
)

// DefaultRefreshInterval bounds how stale the key cache may grow before a
// background refresh is attempted.
const DefaultRefreshInterval = 24 * time.Hour

// KeySource supplies the current set of published verifying keys.
type KeySource interface {
	Fetch(ctx context.Context) ([]keys.PublicKey, error)
}

// Verifier checks token signatures against an in-memory cache of verifying
// keys keyed by key id. Readers whose key id is cached never block on a
// refresh; the last known good key set keeps serving while one runs.
type Verifier struct {
	mu          sync.RWMutex
	byKid       map[string]*rsa.PublicKey
	lastRefresh time.Time

	source  KeySource
	refresh time.Duration
	now     func() time.Time
}

// VerifierOption configures a Verifier.
type VerifierOption func(*Verifier)

// WithRefreshInterval overrides the cache refresh interval.
func WithRefreshInterval(d time.Duration) VerifierOption {
	return func(v *Verifier) {
		if d > 0 {
			v.refresh = d
		}
	}
}

// WithVerifierClock overrides the time source. Test use.
func WithVerifierClock(fn func() time.Time) VerifierOption {
	return func(v *Verifier) {
		if fn != nil {
			v.now = fn
		}
	}
}

// NewVerifier builds a Verifier and performs the initial key fetch. It
// fails when no key can be obtained, so a service that cannot verify
// tokens never starts serving.
func NewVerifier(ctx context.Context, source KeySource, opts ...VerifierOption) (*Verifier, error) {
	if source == nil {
		return nil, errors.New("token: key source is required")
	}
	v := &Verifier{
		byKid:   make(map[string]*rsa.PublicKey),
		source:  source,
		refresh: DefaultRefreshInterval,
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(v)
	}
	if err := v.Refresh(ctx); err != nil {
		return nil, err
	}
	return v, nil
}

// Refresh replaces the cached key set from the source.
func (v *Verifier) Refresh(ctx context.Context) error {
	published, err := v.source.Fetch(ctx)
	if err != nil {
		return err
	}
	if len(published) == 0 {
		return errors.New("token: key source returned no keys")
	}
	next := make(map[string]*rsa.PublicKey, len(published))
	for _, pk := range published {
		key := pk.Key
		if key == nil {
			parsed, err := keys.ParsePublicPEM(pk.PEM)
			if err != nil {
				return err
			}
			key = parsed
		}
		next[pk.Kid] = key
	}
	v.mu.Lock()
	v.byKid = next
	v.lastRefresh = v.now()
	v.mu.Unlock()
	return nil
}

func (v *Verifier) lookup(kid string) (*rsa.PublicKey, bool) {
	v.mu.RLock()
	defer v.mu.RUnlock()
	key, ok := v.byKid[kid]
	return key, ok
}

func (v *Verifier) maybeRefresh(ctx context.Context) {
	v.mu.Lock()
	stale := v.now().Sub(v.lastRefresh) >= v.refresh
	if stale {
		// Claim this interval so concurrent readers do not start their own.
		v.lastRefresh = v.now()
	}
	v.mu.Unlock()
	if stale {
		go func() { _ = v.Refresh(context.WithoutCancel(ctx)) }()
	}
}

// Verify checks signature, algorithm, expiry and kind, returning the
// parsed claims. An unknown key id triggers one immediate refresh before
// final rejection.
func (v *Verifier) Verify(ctx context.Context, raw, kind string) (*Claims, error) {
	if raw == "" {
		return nil, apierr.New(apierr.KindAuthMissing, "token is required")
	}
	v.maybeRefresh(ctx)

	claims := &Claims{}
	// Leeway of one second keeps a token valid through its exact exp
	// instant; the explicit check below rejects anything past it.
	parser := jwt.NewParser(
		jwt.WithValidMethods([]string{"RS256"}),
		jwt.WithTimeFunc(func() time.Time { return v.now() }),
		jwt.WithLeeway(time.Second),
	)
	keyfunc := func(t *jwt.Token) (any, error) {
		kid, _ := t.Header["kid"].(string)
		if kid == "" {
			return nil, errors.New("kid header missing")
		}
		if key, ok := v.lookup(kid); ok {
			return key, nil
		}
		// The signer may have rotated since the last refresh.
		if err := v.Refresh(ctx); err == nil {
			if key, ok := v.lookup(kid); ok {
				return key, nil
			}
		}
		return nil, errors.New("unknown key id")
	}

	parsed, err := parser.ParseWithClaims(raw, claims, keyfunc)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, apierr.Wrap(apierr.KindAuthExpired, err, "token expired")
		}
		return nil, apierr.Wrap(apierr.KindAuthInvalid, err, "invalid token")
	}
	if !parsed.Valid {
		return nil, apierr.New(apierr.KindAuthInvalid, "invalid token")
	}
	if claims.ExpiresAt == nil || claims.IssuedAt == nil {
		return nil, apierr.New(apierr.KindAuthInvalid, "timestamps missing")
	}
	if v.now().After(claims.ExpiresAt.Time) {
		return nil, apierr.New(apierr.KindAuthExpired, "token expired")
	}
	if claims.Subject == "" {
		return nil, apierr.New(apierr.KindAuthInvalid, "subject missing")
	}
	if claims.Kind != kind {
		return nil, apierr.New(apierr.KindAuthInvalid, "unexpected token kind")
	}
	return claims, nil
}

// VerifyAccess verifies an access token and exposes the caller capability.
// No database lookup happens here; the token is trusted because it is
// signed.
func (v *Verifier) VerifyAccess(ctx context.Context, raw string) (Caller, error) {
	claims, err := v.Verify(ctx, raw, KindAccess)
	if err != nil {
		return Caller{}, err
	}
	id, err := claims.AccountID()
	if err != nil {
		return Caller{}, apierr.Wrap(apierr.KindAuthInvalid, err, "invalid subject")
	}
	return Caller{
		Subject:   id,
		Username:  claims.Username,
		IsAdmin:   claims.IsAdmin,
		Version:   claims.Version,
		ExpiresAt: claims.ExpiresAt.Time,
	}, nil
}

// StaticSource serves a fixed key set. Used by the IdP itself and tests.
type StaticSource []keys.PublicKey

// Fetch implements KeySource.
func (s StaticSource) Fetch(context.Context) ([]keys.PublicKey, error) {
	return []keys.PublicKey(s), nil
}

// ManagerSource adapts the IdP key manager into a KeySource.
type ManagerSource struct{ Manager *keys.Manager }

// Fetch implements KeySource.
func (s ManagerSource) Fetch(context.Context) ([]keys.PublicKey, error) {
	return s.Manager.Published()
}
