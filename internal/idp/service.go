package idp

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"net/mail"
	"strings"
	"time"

	"golang.org/x/crypto/bcrypt"

	"github.com/Iradukunda-Fils/microservices-demo/internal/apierr"
	"github.com/Iradukunda-Fils/microservices-demo/internal/token"
)

const minPasswordLength = 8

// dummyHash is compared against when the username is unknown so the
// password path costs the same either way.
var dummyHash = func() string {
	h, err := bcrypt.GenerateFromPassword([]byte("2038c43e2f0d4f4a"), bcrypt.DefaultCost)
	if err != nil {
		panic(err)
	}
	return string(h)
}()

// Service implements registration, login with the optional second factor,
// token refresh and second-factor management.
type Service struct {
	store      Store
	issuer     *token.Issuer
	verifier   *token.Verifier
	totpIssuer string
	now        func() time.Time
}

// ServiceOption configures Service behavior.
type ServiceOption func(*Service)

// WithTOTPIssuer sets the issuer label embedded in provisioning URIs.
func WithTOTPIssuer(name string) ServiceOption {
	return func(s *Service) {
		if name != "" {
			s.totpIssuer = name
		}
	}
}

// WithClock overrides the time source. Test use.
func WithClock(fn func() time.Time) ServiceOption {
	return func(s *Service) {
		if fn != nil {
			s.now = fn
		}
	}
}

// NewService constructs the IdP service.
func NewService(store Store, issuer *token.Issuer, verifier *token.Verifier, opts ...ServiceOption) *Service {
	s := &Service{
		store:      store,
		issuer:     issuer,
		verifier:   verifier,
		totpIssuer: "MicroservicesDemo",
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Register creates an account after validating uniqueness and the password
// policy. The returned projection never includes the verifier.
func (s *Service) Register(ctx context.Context, username, email, password string) (Projection, error) {
	username = strings.TrimSpace(username)
	email = strings.TrimSpace(strings.ToLower(email))
	switch {
	case username == "":
		return Projection{}, apierr.New(apierr.KindInputInvalid, "username is required")
	case email == "":
		return Projection{}, apierr.New(apierr.KindInputInvalid, "email is required")
	case len(password) < minPasswordLength:
		return Projection{}, apierr.New(apierr.KindInputInvalid, "password must be at least %d characters", minPasswordLength)
	}
	if _, err := mail.ParseAddress(email); err != nil {
		return Projection{}, apierr.New(apierr.KindInputInvalid, "email is not valid")
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return Projection{}, err
	}
	account := &Account{
		Username:     username,
		Email:        email,
		PasswordHash: string(hash),
		PasswordAlgo: PasswordAlgo,
		IsActive:     true,
	}
	if err := s.store.CreateAccount(ctx, account); err != nil {
		if errors.Is(err, ErrAlreadyExists) {
			return Projection{}, apierr.New(apierr.KindConflictState, "username or email is already taken")
		}
		return Projection{}, err
	}
	return account.Project(), nil
}

// LoginResult is the outcome of the first login step. When the account has
// a confirmed second factor no tokens are present and Requires2FA is set.
type LoginResult struct {
	Requires2FA bool
	Username    string
	Pair        token.Pair
	Account     Projection
}

// Authenticate performs the password step. The bcrypt comparison runs even
// for unknown usernames.
func (s *Service) Authenticate(ctx context.Context, username, password string) (LoginResult, error) {
	account, err := s.store.FindAccountByUsername(ctx, strings.TrimSpace(username))
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			_ = bcrypt.CompareHashAndPassword([]byte(dummyHash), []byte(password))
			return LoginResult{}, apierr.New(apierr.KindAuthInvalid, "invalid credentials")
		}
		return LoginResult{}, err
	}
	if err := bcrypt.CompareHashAndPassword([]byte(account.PasswordHash), []byte(password)); err != nil {
		return LoginResult{}, apierr.New(apierr.KindAuthInvalid, "invalid credentials")
	}
	if !account.IsActive {
		return LoginResult{}, apierr.New(apierr.KindAuthInvalid, "invalid credentials")
	}

	factor, err := s.store.SecondFactor(ctx, account.ID)
	if err != nil && !errors.Is(err, ErrNotFound) {
		return LoginResult{}, err
	}
	if factor != nil && factor.Confirmed {
		return LoginResult{Requires2FA: true, Username: account.Username}, nil
	}
	return s.issueFor(account)
}

// VerifyLogin completes login with a TOTP value or a recovery code.
func (s *Service) VerifyLogin(ctx context.Context, username, code string) (LoginResult, error) {
	code = strings.TrimSpace(code)
	if username == "" || code == "" {
		return LoginResult{}, apierr.New(apierr.KindInputInvalid, "username and code are required")
	}
	account, err := s.store.FindAccountByUsername(ctx, strings.TrimSpace(username))
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return LoginResult{}, apierr.New(apierr.KindTwoFactorInvalid, "code is incorrect or expired")
		}
		return LoginResult{}, err
	}
	factor, err := s.store.SecondFactor(ctx, account.ID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return LoginResult{}, apierr.New(apierr.KindTwoFactorInvalid, "second factor is not enabled")
		}
		return LoginResult{}, err
	}
	if !factor.Confirmed {
		return LoginResult{}, apierr.New(apierr.KindTwoFactorInvalid, "second factor is not enabled")
	}

	if step, ok := matchTOTP(factor.Secret, code, s.now()); ok {
		advanced, err := s.store.AdvanceTOTPStep(ctx, account.ID, step)
		if err != nil {
			return LoginResult{}, err
		}
		if !advanced {
			// Same-step replay, possibly from a concurrent login.
			return LoginResult{}, apierr.New(apierr.KindTwoFactorInvalid, "code is incorrect or expired")
		}
		return s.issueFor(account)
	}

	// Fall back to recovery codes.
	codes, err := s.store.UnusedRecoveryCodes(ctx, account.ID)
	if err != nil {
		return LoginResult{}, err
	}
	for _, rc := range codes {
		if bcrypt.CompareHashAndPassword([]byte(rc.CodeHash), []byte(code)) != nil {
			continue
		}
		consumed, err := s.store.ConsumeRecoveryCode(ctx, rc.ID)
		if err != nil {
			return LoginResult{}, err
		}
		if !consumed {
			return LoginResult{}, apierr.New(apierr.KindTwoFactorInvalid, "code is incorrect or expired")
		}
		return s.issueFor(account)
	}
	return LoginResult{}, apierr.New(apierr.KindTwoFactorInvalid, "code is incorrect or expired")
}

// Refresh exchanges a valid refresh token for a fresh pair. The refresh
// token rotates: the response carries a new one.
func (s *Service) Refresh(ctx context.Context, refreshToken string) (token.Pair, error) {
	claims, err := s.verifier.Verify(ctx, refreshToken, token.KindRefresh)
	if err != nil {
		return token.Pair{}, err
	}
	id, err := claims.AccountID()
	if err != nil {
		return token.Pair{}, apierr.Wrap(apierr.KindAuthInvalid, err, "invalid subject")
	}
	account, err := s.store.FindAccount(ctx, id)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return token.Pair{}, apierr.New(apierr.KindAuthInvalid, "invalid token")
		}
		return token.Pair{}, err
	}
	if !account.IsActive || claims.Version != account.TokenVersion {
		return token.Pair{}, apierr.New(apierr.KindAuthInvalid, "invalid token")
	}
	return s.issuer.IssuePair(subjectOf(account))
}

// ChangePassword verifies the current password, swaps the verifier and
// bumps the token version so every outstanding token dies.
func (s *Service) ChangePassword(ctx context.Context, accountID int64, current, next string) error {
	if len(next) < minPasswordLength {
		return apierr.New(apierr.KindInputInvalid, "password must be at least %d characters", minPasswordLength)
	}
	account, err := s.store.FindAccount(ctx, accountID)
	if err != nil {
		return err
	}
	if err := bcrypt.CompareHashAndPassword([]byte(account.PasswordHash), []byte(current)); err != nil {
		return apierr.New(apierr.KindAuthInvalid, "invalid credentials")
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(next), bcrypt.DefaultCost)
	if err != nil {
		return err
	}
	return s.store.UpdatePassword(ctx, accountID, string(hash), PasswordAlgo)
}

// Me returns the caller's safe projection.
func (s *Service) Me(ctx context.Context, accountID int64) (Projection, error) {
	account, err := s.store.FindAccount(ctx, accountID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return Projection{}, apierr.New(apierr.KindNotFound, "account not found")
		}
		return Projection{}, err
	}
	return account.Project(), nil
}

// TwoFactorSetup provisions an unconfirmed factor and a fresh recovery
// batch. The secret and plaintext codes are shown exactly once.
type TwoFactorSetup struct {
	Secret          string   `json:"secret"`
	ProvisioningURI string   `json:"provisioning_uri"`
	RecoveryCodes   []string `json:"recovery_codes"`
}

// SetupTwoFactor starts 2FA enrollment for the account.
func (s *Service) SetupTwoFactor(ctx context.Context, accountID int64) (TwoFactorSetup, error) {
	account, err := s.store.FindAccount(ctx, accountID)
	if err != nil {
		return TwoFactorSetup{}, err
	}
	secret, uri, err := newTOTPKey(s.totpIssuer, account.Username)
	if err != nil {
		return TwoFactorSetup{}, err
	}
	if err := s.store.UpsertUnconfirmedFactor(ctx, accountID, secret); err != nil {
		if errors.Is(err, ErrAlreadyExists) {
			return TwoFactorSetup{}, apierr.New(apierr.KindConflictState, "second factor is already enabled")
		}
		return TwoFactorSetup{}, err
	}
	codes, err := newRecoveryCodes()
	if err != nil {
		return TwoFactorSetup{}, err
	}
	hashes := make([]string, 0, len(codes))
	for _, c := range codes {
		h, err := bcrypt.GenerateFromPassword([]byte(c), bcrypt.DefaultCost)
		if err != nil {
			return TwoFactorSetup{}, err
		}
		hashes = append(hashes, string(h))
	}
	if err := s.store.ReplaceRecoveryCodes(ctx, accountID, hashes); err != nil {
		return TwoFactorSetup{}, err
	}
	return TwoFactorSetup{Secret: secret, ProvisioningURI: uri, RecoveryCodes: codes}, nil
}

// ConfirmTwoFactor verifies the first TOTP code and marks the factor
// confirmed; only from then on does it gate login.
func (s *Service) ConfirmTwoFactor(ctx context.Context, accountID int64, code string) error {
	factor, err := s.store.SecondFactor(ctx, accountID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return apierr.New(apierr.KindConflictState, "second factor setup has not been started")
		}
		return err
	}
	if factor.Confirmed {
		return apierr.New(apierr.KindConflictState, "second factor is already enabled")
	}
	step, ok := matchTOTP(factor.Secret, strings.TrimSpace(code), s.now())
	if !ok {
		return apierr.New(apierr.KindTwoFactorInvalid, "code is incorrect or expired")
	}
	if err := s.store.ConfirmFactor(ctx, accountID); err != nil {
		return err
	}
	_, err = s.store.AdvanceTOTPStep(ctx, accountID, step)
	return err
}

// TwoFactorStatus reports whether 2FA gates login for the account.
type TwoFactorStatus struct {
	Enabled                bool `json:"enabled"`
	RecoveryCodesRemaining int  `json:"recovery_codes_remaining"`
}

// StatusTwoFactor returns the account's second-factor state.
func (s *Service) StatusTwoFactor(ctx context.Context, accountID int64) (TwoFactorStatus, error) {
	factor, err := s.store.SecondFactor(ctx, accountID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return TwoFactorStatus{}, nil
		}
		return TwoFactorStatus{}, err
	}
	if !factor.Confirmed {
		return TwoFactorStatus{}, nil
	}
	codes, err := s.store.UnusedRecoveryCodes(ctx, accountID)
	if err != nil {
		return TwoFactorStatus{}, err
	}
	return TwoFactorStatus{Enabled: true, RecoveryCodesRemaining: len(codes)}, nil
}

// DisableTwoFactor removes the factor and all recovery codes after a
// password confirmation.
func (s *Service) DisableTwoFactor(ctx context.Context, accountID int64, password string) error {
	if err := s.confirmPassword(ctx, accountID, password); err != nil {
		return err
	}
	if err := s.store.DeleteFactor(ctx, accountID); err != nil {
		if errors.Is(err, ErrNotFound) {
			return apierr.New(apierr.KindConflictState, "second factor is not enabled")
		}
		return err
	}
	return nil
}

// RegenerateRecoveryCodes invalidates the old batch atomically and returns
// a new one. Requires a password confirmation.
func (s *Service) RegenerateRecoveryCodes(ctx context.Context, accountID int64, password string) ([]string, error) {
	if err := s.confirmPassword(ctx, accountID, password); err != nil {
		return nil, err
	}
	factor, err := s.store.SecondFactor(ctx, accountID)
	if err != nil || !factor.Confirmed {
		return nil, apierr.New(apierr.KindConflictState, "second factor is not enabled")
	}
	codes, err := newRecoveryCodes()
	if err != nil {
		return nil, err
	}
	hashes := make([]string, 0, len(codes))
	for _, c := range codes {
		h, err := bcrypt.GenerateFromPassword([]byte(c), bcrypt.DefaultCost)
		if err != nil {
			return nil, err
		}
		hashes = append(hashes, string(h))
	}
	if err := s.store.ReplaceRecoveryCodes(ctx, accountID, hashes); err != nil {
		return nil, err
	}
	return codes, nil
}

// RecoveryCodesArtifact renders the provided codes into a downloadable
// base64-encoded text file.
type RecoveryCodesArtifact struct {
	Filename string `json:"filename"`
	Content  string `json:"content"` // base64
	MimeType string `json:"mime_type"`
}

// DownloadRecoveryCodes formats plaintext codes the caller just received
// into a text artifact. The codes themselves are never readable from the
// store, so they must arrive in the request.
func (s *Service) DownloadRecoveryCodes(username string, codes []string) (RecoveryCodesArtifact, error) {
	if len(codes) == 0 {
		return RecoveryCodesArtifact{}, apierr.New(apierr.KindInputInvalid, "codes are required")
	}
	var b strings.Builder
	fmt.Fprintf(&b, "Two-factor recovery codes\n\n")
	fmt.Fprintf(&b, "Account: %s\n", username)
	fmt.Fprintf(&b, "Generated: %s\n\n", s.now().UTC().Format(time.RFC3339))
	b.WriteString("Each code can be used once in place of an authenticator code.\n")
	b.WriteString("Store them somewhere safe; they cannot be shown again.\n\n")
	for i, c := range codes {
		fmt.Fprintf(&b, "%2d. %s\n", i+1, c)
	}
	return RecoveryCodesArtifact{
		Filename: fmt.Sprintf("recovery-codes-%s.txt", username),
		Content:  base64.StdEncoding.EncodeToString([]byte(b.String())),
		MimeType: "text/plain",
	}, nil
}

// ValidateUser backs the internal RPC: existence and active flag only.
func (s *Service) ValidateUser(ctx context.Context, accountID int64) (*Account, error) {
	account, err := s.store.FindAccount(ctx, accountID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, apierr.New(apierr.KindNotFound, "user with id %d not found", accountID)
		}
		return nil, err
	}
	return account, nil
}

// CheckTokenVersion rejects access tokens minted before the account's
// current token version (mass revocation after password change).
func (s *Service) CheckTokenVersion(ctx context.Context, accountID, version int64) error {
	account, err := s.store.FindAccount(ctx, accountID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return apierr.New(apierr.KindAuthInvalid, "invalid token")
		}
		return err
	}
	if !account.IsActive || account.TokenVersion != version {
		return apierr.New(apierr.KindAuthInvalid, "invalid token")
	}
	return nil
}

func (s *Service) confirmPassword(ctx context.Context, accountID int64, password string) error {
	account, err := s.store.FindAccount(ctx, accountID)
	if err != nil {
		return err
	}
	if err := bcrypt.CompareHashAndPassword([]byte(account.PasswordHash), []byte(password)); err != nil {
		return apierr.New(apierr.KindAuthInvalid, "invalid credentials")
	}
	return nil
}

func (s *Service) issueFor(account *Account) (LoginResult, error) {
	pair, err := s.issuer.IssuePair(subjectOf(account))
	if err != nil {
		return LoginResult{}, err
	}
	return LoginResult{Username: account.Username, Pair: pair, Account: account.Project()}, nil
}

func subjectOf(account *Account) token.Subject {
	return token.Subject{
		AccountID: account.ID,
		Username:  account.Username,
		IsAdmin:   account.IsAdmin,
		Version:   account.TokenVersion,
	}
}
