// Package config builds per-service configuration from the environment.
// There is no ambient settings state: each binary loads its config once in
// main and hands it to the components that need it.
package config

import (
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"github.com/caarlos0/env/v10"
	"github.com/joho/godotenv"
)

// Common carries the knobs every service recognizes.
type Common struct {
	AppEnv      string `env:"APP_ENV" envDefault:"local"`
	DatabaseURL string `env:"DATABASE_URL"`

	AccessTokenTTL  int `env:"ACCESS_TOKEN_TTL" envDefault:"900"`
	RefreshTokenTTL int `env:"REFRESH_TOKEN_TTL" envDefault:"86400"`
}

// IdP is the Identity Provider configuration.
type IdP struct {
	Common

	HTTPPort int    `env:"HTTP_PORT" envDefault:"8001"`
	RPCPort  int    `env:"RPC_PORT" envDefault:"50051"`
	KeyDir   string `env:"KEY_DIR" envDefault:"/app/keys"`
	Issuer   string `env:"TOKEN_ISSUER" envDefault:"idp"`

	InternalRPCSecret string `env:"INTERNAL_RPC_SECRET"`
}

// Catalog is the product service configuration.
type Catalog struct {
	Common

	HTTPPort int    `env:"HTTP_PORT" envDefault:"8002"`
	RPCPort  int    `env:"RPC_PORT" envDefault:"50052"`
	KeyDir   string `env:"KEY_DIR" envDefault:"/app/keys"`

	IdPPublicKeyURL   string `env:"IDP_PUBLIC_KEY_URL" envDefault:"http://idp:8001/auth/public-key"`
	InternalRPCSecret string `env:"INTERNAL_RPC_SECRET"`
}

// Orchestrator is the order service configuration.
type Orchestrator struct {
	Common

	HTTPPort int    `env:"HTTP_PORT" envDefault:"8003"`
	KeyDir   string `env:"KEY_DIR" envDefault:"/app/keys"`

	IdPPublicKeyURL   string `env:"IDP_PUBLIC_KEY_URL" envDefault:"http://idp:8001/auth/public-key"`
	InternalRPCSecret string `env:"INTERNAL_RPC_SECRET"`

	IdPRPCAddr     string `env:"IDP_RPC_ADDR" envDefault:"idp:50051"`
	CatalogRPCAddr string `env:"CATALOG_RPC_ADDR" envDefault:"catalog:50052"`

	FieldEncryptionKey string `env:"FIELD_ENCRYPTION_KEY"`

	CircuitFailThreshold int     `env:"CIRCUIT_FAIL_THRESHOLD" envDefault:"5"`
	CircuitResetSeconds  int     `env:"CIRCUIT_RESET_SECONDS" envDefault:"30"`
	RetryMaxAttempts     int     `env:"RETRY_MAX_ATTEMPTS" envDefault:"3"`
	RetryBaseSeconds     float64 `env:"RETRY_BASE_SECONDS" envDefault:"1"`
	RetryCapSeconds      float64 `env:"RETRY_CAP_SECONDS" envDefault:"10"`
	RPCDeadlineSeconds   float64 `env:"RPC_DEADLINE_SECONDS" envDefault:"5"`
}

func (c Common) AccessTTL() time.Duration  { return time.Duration(c.AccessTokenTTL) * time.Second }
func (c Common) RefreshTTL() time.Duration { return time.Duration(c.RefreshTokenTTL) * time.Second }

func (c Orchestrator) RetryBase() time.Duration {
	return time.Duration(c.RetryBaseSeconds * float64(time.Second))
}
func (c Orchestrator) RetryCap() time.Duration {
	return time.Duration(c.RetryCapSeconds * float64(time.Second))
}
func (c Orchestrator) CircuitReset() time.Duration {
	return time.Duration(c.CircuitResetSeconds) * time.Second
}
func (c Orchestrator) RPCDeadline() time.Duration {
	return time.Duration(c.RPCDeadlineSeconds * float64(time.Second))
}

// FieldKey decodes FIELD_ENCRYPTION_KEY into exactly 32 bytes. Hex and
// base64 encodings are accepted, as is a raw 32-byte string.
func (c Orchestrator) FieldKey() ([]byte, error) {
	raw := c.FieldEncryptionKey
	if raw == "" {
		return nil, errors.New("FIELD_ENCRYPTION_KEY is required")
	}
	if b, err := hex.DecodeString(raw); err == nil && len(b) == 32 {
		return b, nil
	}
	if b, err := base64.StdEncoding.DecodeString(raw); err == nil && len(b) == 32 {
		return b, nil
	}
	if len(raw) == 32 {
		return []byte(raw), nil
	}
	return nil, fmt.Errorf("FIELD_ENCRYPTION_KEY must decode to 32 bytes, got %d characters", len(raw))
}

// LoadIdP reads IdP configuration from the environment.
func LoadIdP() (*IdP, error) {
	_ = godotenv.Load()
	cfg := &IdP{}
	if err := env.Parse(cfg); err != nil {
		return nil, err
	}
	if cfg.DatabaseURL == "" {
		return nil, errors.New("DATABASE_URL is required")
	}
	return cfg, nil
}

// LoadCatalog reads Catalog configuration from the environment.
func LoadCatalog() (*Catalog, error) {
	_ = godotenv.Load()
	cfg := &Catalog{}
	if err := env.Parse(cfg); err != nil {
		return nil, err
	}
	if cfg.DatabaseURL == "" {
		return nil, errors.New("DATABASE_URL is required")
	}
	return cfg, nil
}

// LoadOrchestrator reads Orchestrator configuration from the environment.
func LoadOrchestrator() (*Orchestrator, error) {
	_ = godotenv.Load()
	cfg := &Orchestrator{}
	if err := env.Parse(cfg); err != nil {
		return nil, err
	}
	if cfg.DatabaseURL == "" {
		return nil, errors.New("DATABASE_URL is required")
	}
	if _, err := cfg.FieldKey(); err != nil {
		return nil, err
	}
	return cfg, nil
}
