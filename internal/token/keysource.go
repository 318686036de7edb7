package token

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/Iradukunda-Fils/microservices-demo/internal/keys"
)

// DefaultStartupTimeout bounds how long a dependent service waits for the
// IdP's verifying key before refusing to start.
const DefaultStartupTimeout = 30 * time.Second

// StartupSource acquires verifying keys the way dependents boot: first from
// the shared filesystem location the IdP publishes to, then by polling the
// IdP's public-key endpoint with backoff.
type StartupSource struct {
	// KeyDir is the directory holding jwt_public.pem (and any retired
	// jwt_public_<kid>.pem files) on the shared volume.
	KeyDir string
	// URL is the IdP public-key endpoint used when no file is present.
	URL string

	Client *http.Client
}

type publicKeyResponse struct {
	PublicKey string `json:"public_key"`
	Algorithm string `json:"algorithm"`
	KeyID     string `json:"key_id"`
}

// Fetch implements KeySource. The HTTP path retries with exponential
// backoff until the context is cancelled.
func (s StartupSource) Fetch(ctx context.Context) ([]keys.PublicKey, error) {
	if s.KeyDir != "" {
		if published, err := s.fromDir(); err == nil && len(published) > 0 {
			return published, nil
		}
	}
	if s.URL == "" {
		return nil, fmt.Errorf("token: no key at %s and no fallback URL configured", s.KeyDir)
	}

	var published []keys.PublicKey
	op := func() error {
		got, err := s.fromURL(ctx)
		if err != nil {
			return err
		}
		published = got
		return nil
	}
	policy := backoff.WithContext(backoff.NewExponentialBackOff(), ctx)
	if err := backoff.Retry(op, policy); err != nil {
		return nil, fmt.Errorf("token: fetch public key from %s: %w", s.URL, err)
	}
	return published, nil
}

func (s StartupSource) fromDir() ([]keys.PublicKey, error) {
	data, err := os.ReadFile(filepath.Join(s.KeyDir, "jwt_public.pem"))
	if err != nil {
		return nil, err
	}
	key, err := keys.ParsePublicPEM(string(data))
	if err != nil {
		return nil, err
	}
	kid, err := keys.Fingerprint(key)
	if err != nil {
		return nil, err
	}
	published := []keys.PublicKey{{Kid: kid, PEM: string(data), Key: key}}

	// Retired keys, if the IdP left any on the volume.
	entries, err := os.ReadDir(s.KeyDir)
	if err != nil {
		return published, nil
	}
	for _, e := range entries {
		name := e.Name()
		if !strings.HasPrefix(name, "jwt_public_") || !strings.HasSuffix(name, ".pem") {
			continue
		}
		retiredKid := strings.TrimSuffix(strings.TrimPrefix(name, "jwt_public_"), ".pem")
		raw, err := os.ReadFile(filepath.Join(s.KeyDir, name))
		if err != nil {
			continue
		}
		parsed, err := keys.ParsePublicPEM(string(raw))
		if err != nil {
			continue
		}
		published = append(published, keys.PublicKey{Kid: retiredKid, PEM: string(raw), Key: parsed})
	}
	return published, nil
}

func (s StartupSource) fromURL(ctx context.Context) ([]keys.PublicKey, error) {
	client := s.Client
	if client == nil {
		client = &http.Client{Timeout: 5 * time.Second}
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.URL, nil)
	if err != nil {
		return nil, err
	}
	resp, err := client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("unexpected status %d", resp.StatusCode)
	}
	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, err
	}
	var payload publicKeyResponse
	if err := json.Unmarshal(body, &payload); err != nil {
		return nil, err
	}
	if payload.Algorithm != "RS256" {
		return nil, fmt.Errorf("unsupported algorithm %q", payload.Algorithm)
	}
	key, err := keys.ParsePublicPEM(payload.PublicKey)
	if err != nil {
		return nil, err
	}
	kid := payload.KeyID
	if kid == "" {
		if kid, err = keys.Fingerprint(key); err != nil {
			return nil, err
		}
	}
	return []keys.PublicKey{{Kid: kid, PEM: payload.PublicKey, Key: key}}, nil
}
