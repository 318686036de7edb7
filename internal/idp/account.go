// Package idp implements the Identity Provider: accounts, passwords, the
// TOTP second factor with single-use recovery codes, and token issuance.
package idp

import (
	"errors"
	"time"
)

// PasswordAlgo names the KDF used for stored verifiers. It is persisted
// alongside every hash so the scheme can evolve without a flag day.
const PasswordAlgo = "bcrypt"

// Account is a registered user. The password verifier never leaves the
// store through any interface.
type Account struct {
	ID           int64
	Username     string
	Email        string
	PasswordHash string
	PasswordAlgo string
	IsActive     bool
	IsAdmin      bool
	TokenVersion int64
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// Projection is the safe view of an account returned on public surfaces.
type Projection struct {
	ID       int64  `json:"id"`
	Username string `json:"username"`
	Email    string `json:"email"`
	IsActive bool   `json:"is_active"`
	IsAdmin  bool   `json:"is_admin"`
}

// Project strips everything not safe to return.
func (a *Account) Project() Projection {
	return Projection{
		ID:       a.ID,
		Username: a.Username,
		Email:    a.Email,
		IsActive: a.IsActive,
		IsAdmin:  a.IsAdmin,
	}
}

// SecondFactor is the 0..1 TOTP factor attached to an account. LastStep is
// the most recent accepted 30-second time step; a verification at or below
// it is a replay.
type SecondFactor struct {
	AccountID int64
	Secret    string
	Confirmed bool
	LastStep  int64
	CreatedAt time.Time
}

// RecoveryCode is a single-use fallback credential, stored as a one-way
// hash only.
type RecoveryCode struct {
	ID        int64
	AccountID int64
	CodeHash  string
	Used      bool
	CreatedAt time.Time
}

// Store-level sentinels.
var (
	ErrNotFound      = errors.New("idp: not found")
	ErrAlreadyExists = errors.New("idp: already exists")
)
