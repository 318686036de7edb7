package idp

import "context"

// Store describes persistence operations required by the IdP. The
// conditional mutations (AdvanceTOTPStep, ConsumeRecoveryCode) are atomic
// so concurrent logins cannot replay a second factor.
type Store interface {
	CreateAccount(ctx context.Context, a *Account) error
	FindAccount(ctx context.Context, id int64) (*Account, error)
	FindAccountByUsername(ctx context.Context, username string) (*Account, error)
	// UpdatePassword swaps the verifier and increments the token version,
	// invalidating every previously issued token.
	UpdatePassword(ctx context.Context, id int64, hash, algo string) error
	SetActive(ctx context.Context, id int64, active bool) error

	SecondFactor(ctx context.Context, accountID int64) (*SecondFactor, error)
	// UpsertUnconfirmedFactor replaces any unconfirmed factor for the
	// account with a fresh secret. A confirmed factor is left untouched
	// and ErrAlreadyExists is returned.
	UpsertUnconfirmedFactor(ctx context.Context, accountID int64, secret string) error
	ConfirmFactor(ctx context.Context, accountID int64) error
	// DeleteFactor removes the factor and all recovery codes atomically.
	DeleteFactor(ctx context.Context, accountID int64) error
	// AdvanceTOTPStep records step as consumed iff it is beyond the last
	// accepted one. Returns false when the step was already used.
	AdvanceTOTPStep(ctx context.Context, accountID, step int64) (bool, error)

	// ReplaceRecoveryCodes atomically invalidates the prior batch and
	// stores the new hashes.
	ReplaceRecoveryCodes(ctx context.Context, accountID int64, hashes []string) error
	UnusedRecoveryCodes(ctx context.Context, accountID int64) ([]RecoveryCode, error)
	// ConsumeRecoveryCode marks the code used. Returns false when it was
	// already spent.
	ConsumeRecoveryCode(ctx context.Context, id int64) (bool, error)
}
