package idp

import (
	"context"
	"crypto/rand"
	"crypto/rsa"
	"database/sql"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/pquerna/otp/totp"
	"golang.org/x/crypto/bcrypt"

	"github.com/Iradukunda-Fils/microservices-demo/internal/apierr"
	"github.com/Iradukunda-Fils/microservices-demo/internal/keys"
	"github.com/Iradukunda-Fils/microservices-demo/internal/token"
)

const accountCols = "id, username, email, password_hash, password_algo, is_active, is_admin, token_version, created_at, updated_at"

func newTestService(t *testing.T, store Store, opts ...ServiceOption) *Service {
	t.Helper()
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}
	kid, err := keys.Fingerprint(&key.PublicKey)
	if err != nil {
		t.Fatalf("fingerprint: %v", err)
	}
	issuer, err := token.NewIssuer(key, kid, token.WithIssuerName("idp"))
	if err != nil {
		t.Fatalf("NewIssuer: %v", err)
	}
	verifier, err := token.NewVerifier(context.Background(), token.StaticSource{{Kid: kid, Key: &key.PublicKey}})
	if err != nil {
		t.Fatalf("NewVerifier: %v", err)
	}
	return NewService(store, issuer, verifier, opts...)
}

func hashOf(t *testing.T, password string) string {
	t.Helper()
	h, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.MinCost)
	if err != nil {
		t.Fatalf("bcrypt: %v", err)
	}
	return string(h)
}

func accountRow(mock sqlmock.Sqlmock, id int64, username, hash string, active bool, version int64) *sqlmock.Rows {
	now := time.Now()
	return sqlmock.NewRows([]string{
		"id", "username", "email", "password_hash", "password_algo",
		"is_active", "is_admin", "token_version", "created_at", "updated_at",
	}).AddRow(id, username, username+"@example.com", hash, "bcrypt", active, false, version, now, now)
}

func TestRegisterValidation(t *testing.T) {
	svc := newTestService(t, nil)

	cases := []struct {
		name     string
		username string
		email    string
		password string
	}{
		{"empty username", "", "a@example.com", "Passw0rd!"},
		{"empty email", "alice", "", "Passw0rd!"},
		{"short password", "alice", "a@example.com", "short"},
		{"bad email", "alice", "not-an-email", "Passw0rd!"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := svc.Register(context.Background(), tc.username, tc.email, tc.password)
			if apierr.KindOf(err) != apierr.KindInputInvalid {
				t.Fatalf("expected InputInvalid, got %v", err)
			}
		})
	}
}

func TestRegisterAndProjection(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	defer db.Close()

	now := time.Now()
	mock.ExpectQuery("insert into accounts").
		WithArgs("alice", "a@example.com", sqlmock.AnyArg(), "bcrypt", true, false).
		WillReturnRows(sqlmock.NewRows([]string{"id", "token_version", "created_at", "updated_at"}).
			AddRow(int64(1), int64(0), now, now))

	svc := newTestService(t, NewPGStore(db))
	projection, err := svc.Register(context.Background(), "alice", "a@example.com", "Passw0rd!")
	if err != nil {
		t.Fatalf("Register: %v", err)
	}
	if projection.ID != 1 || projection.Username != "alice" {
		t.Fatalf("unexpected projection %+v", projection)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestAuthenticateWithoutSecondFactor(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	defer db.Close()

	hash := hashOf(t, "Passw0rd!")
	mock.ExpectQuery("select " + accountCols + " from accounts where username").
		WithArgs("alice").
		WillReturnRows(accountRow(mock, 1, "alice", hash, true, 0))
	mock.ExpectQuery("select account_id, secret, confirmed, last_step, created_at").
		WithArgs(int64(1)).
		WillReturnError(sql.ErrNoRows)

	svc := newTestService(t, NewPGStore(db))
	res, err := svc.Authenticate(context.Background(), "alice", "Passw0rd!")
	if err != nil {
		t.Fatalf("Authenticate: %v", err)
	}
	if res.Requires2FA {
		t.Fatal("account without a confirmed factor must not require 2FA")
	}
	if res.Pair.Access == "" || res.Pair.Refresh == "" {
		t.Fatal("expected a token pair")
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestAuthenticateGatesOnConfirmedFactor(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	defer db.Close()

	hash := hashOf(t, "Passw0rd!")
	mock.ExpectQuery("select " + accountCols + " from accounts where username").
		WithArgs("alice").
		WillReturnRows(accountRow(mock, 1, "alice", hash, true, 0))
	mock.ExpectQuery("select account_id, secret, confirmed, last_step, created_at").
		WithArgs(int64(1)).
		WillReturnRows(sqlmock.NewRows([]string{"account_id", "secret", "confirmed", "last_step", "created_at"}).
			AddRow(int64(1), "SECRET", true, int64(0), time.Now()))

	svc := newTestService(t, NewPGStore(db))
	res, err := svc.Authenticate(context.Background(), "alice", "Passw0rd!")
	if err != nil {
		t.Fatalf("Authenticate: %v", err)
	}
	if !res.Requires2FA {
		t.Fatal("confirmed factor must gate login")
	}
	if res.Pair.Access != "" || res.Pair.Refresh != "" {
		t.Fatal("no tokens may be issued before the second step")
	}
	if res.Username != "alice" {
		t.Fatalf("unexpected username %q", res.Username)
	}
}

func TestAuthenticateUnknownUser(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	defer db.Close()

	mock.ExpectQuery("select " + accountCols + " from accounts where username").
		WithArgs("ghost").
		WillReturnError(sql.ErrNoRows)

	svc := newTestService(t, NewPGStore(db))
	_, err = svc.Authenticate(context.Background(), "ghost", "whatever1")
	if apierr.KindOf(err) != apierr.KindAuthInvalid {
		t.Fatalf("expected AuthInvalid, got %v", err)
	}
}

func TestVerifyLoginTOTPAndReplay(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	defer db.Close()

	secret, _, err := newTOTPKey("demo", "alice")
	if err != nil {
		t.Fatalf("newTOTPKey: %v", err)
	}
	now := time.Unix(1_750_000_015, 0)
	code, err := totp.GenerateCodeCustom(secret, now, totpOpts())
	if err != nil {
		t.Fatalf("GenerateCodeCustom: %v", err)
	}

	hash := hashOf(t, "Passw0rd!")
	factorRows := func() *sqlmock.Rows {
		return sqlmock.NewRows([]string{"account_id", "secret", "confirmed", "last_step", "created_at"}).
			AddRow(int64(1), secret, true, int64(0), time.Now())
	}

	// First verification: step advances, tokens issue.
	mock.ExpectQuery("select " + accountCols + " from accounts where username").
		WithArgs("alice").
		WillReturnRows(accountRow(mock, 1, "alice", hash, true, 0))
	mock.ExpectQuery("select account_id, secret, confirmed, last_step, created_at").
		WithArgs(int64(1)).
		WillReturnRows(factorRows())
	mock.ExpectExec("update second_factors set last_step").
		WithArgs(int64(1), timeStep(now)).
		WillReturnResult(sqlmock.NewResult(0, 1))

	svc := newTestService(t, NewPGStore(db), WithClock(func() time.Time { return now }))
	res, err := svc.VerifyLogin(context.Background(), "alice", code)
	if err != nil {
		t.Fatalf("VerifyLogin: %v", err)
	}
	if res.Pair.Access == "" {
		t.Fatal("expected tokens after a valid second step")
	}

	// Replay of the same code inside the same step: the conditional update
	// reports zero rows and the login fails.
	mock.ExpectQuery("select " + accountCols + " from accounts where username").
		WithArgs("alice").
		WillReturnRows(accountRow(mock, 1, "alice", hash, true, 0))
	mock.ExpectQuery("select account_id, secret, confirmed, last_step, created_at").
		WithArgs(int64(1)).
		WillReturnRows(sqlmock.NewRows([]string{"account_id", "secret", "confirmed", "last_step", "created_at"}).
			AddRow(int64(1), secret, true, timeStep(now), time.Now()))
	mock.ExpectExec("update second_factors set last_step").
		WithArgs(int64(1), timeStep(now)).
		WillReturnResult(sqlmock.NewResult(0, 0))

	_, err = svc.VerifyLogin(context.Background(), "alice", code)
	if apierr.KindOf(err) != apierr.KindTwoFactorInvalid {
		t.Fatalf("replayed code must fail as TwoFactorInvalid, got %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestVerifyLoginRecoveryCodeSingleUse(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	defer db.Close()

	hash := hashOf(t, "Passw0rd!")
	recovery := "aabbccddeeff00112233445566778899"
	recoveryHash := hashOf(t, recovery)
	now := time.Unix(1_750_000_015, 0)

	expectLookup := func() {
		mock.ExpectQuery("select " + accountCols + " from accounts where username").
			WithArgs("alice").
			WillReturnRows(accountRow(mock, 1, "alice", hash, true, 0))
		mock.ExpectQuery("select account_id, secret, confirmed, last_step, created_at").
			WithArgs(int64(1)).
			WillReturnRows(sqlmock.NewRows([]string{"account_id", "secret", "confirmed", "last_step", "created_at"}).
				AddRow(int64(1), "JBSWY3DPEHPK3PXP", true, int64(99), time.Now()))
	}

	// First use: code matches, gets consumed, tokens issue.
	expectLookup()
	mock.ExpectQuery("select id, account_id, code_hash, used, created_at").
		WithArgs(int64(1)).
		WillReturnRows(sqlmock.NewRows([]string{"id", "account_id", "code_hash", "used", "created_at"}).
			AddRow(int64(10), int64(1), recoveryHash, false, time.Now()))
	mock.ExpectExec("update recovery_codes set used=true").
		WithArgs(int64(10)).
		WillReturnResult(sqlmock.NewResult(0, 1))

	svc := newTestService(t, NewPGStore(db), WithClock(func() time.Time { return now }))
	res, err := svc.VerifyLogin(context.Background(), "alice", recovery)
	if err != nil {
		t.Fatalf("VerifyLogin with recovery code: %v", err)
	}
	if res.Pair.Access == "" {
		t.Fatal("expected tokens")
	}

	// Second use: the code is spent, the unused set is empty.
	expectLookup()
	mock.ExpectQuery("select id, account_id, code_hash, used, created_at").
		WithArgs(int64(1)).
		WillReturnRows(sqlmock.NewRows([]string{"id", "account_id", "code_hash", "used", "created_at"}))

	_, err = svc.VerifyLogin(context.Background(), "alice", recovery)
	if apierr.KindOf(err) != apierr.KindTwoFactorInvalid {
		t.Fatalf("spent recovery code must fail as TwoFactorInvalid, got %v", err)
	}
}

func TestRefreshRotatesAndChecksVersion(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	defer db.Close()

	hash := hashOf(t, "Passw0rd!")
	mock.ExpectQuery("select " + accountCols + " from accounts where username").
		WithArgs("alice").
		WillReturnRows(accountRow(mock, 1, "alice", hash, true, 0))
	mock.ExpectQuery("select account_id, secret, confirmed, last_step, created_at").
		WithArgs(int64(1)).
		WillReturnError(sql.ErrNoRows)

	svc := newTestService(t, NewPGStore(db))
	res, err := svc.Authenticate(context.Background(), "alice", "Passw0rd!")
	if err != nil {
		t.Fatalf("Authenticate: %v", err)
	}

	// Valid refresh: version still matches.
	mock.ExpectQuery("select " + accountCols + " from accounts where id").
		WithArgs(int64(1)).
		WillReturnRows(accountRow(mock, 1, "alice", hash, true, 0))
	pair, err := svc.Refresh(context.Background(), res.Pair.Refresh)
	if err != nil {
		t.Fatalf("Refresh: %v", err)
	}
	if pair.Refresh == res.Pair.Refresh {
		t.Fatal("refresh token must rotate")
	}

	// Version bumped since issuance: the old refresh dies.
	mock.ExpectQuery("select " + accountCols + " from accounts where id").
		WithArgs(int64(1)).
		WillReturnRows(accountRow(mock, 1, "alice", hash, true, 7))
	if _, err := svc.Refresh(context.Background(), res.Pair.Refresh); apierr.KindOf(err) != apierr.KindAuthInvalid {
		t.Fatalf("stale token version must fail as AuthInvalid, got %v", err)
	}

	// An access token is not accepted by the refresh endpoint.
	if _, err := svc.Refresh(context.Background(), res.Pair.Access); apierr.KindOf(err) != apierr.KindAuthInvalid {
		t.Fatalf("access token on refresh must fail, got %v", err)
	}
}

func TestCheckTokenVersion(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	defer db.Close()

	hash := hashOf(t, "x")
	mock.ExpectQuery("select " + accountCols + " from accounts where id").
		WithArgs(int64(1)).
		WillReturnRows(accountRow(mock, 1, "alice", hash, true, 4))
	mock.ExpectQuery("select " + accountCols + " from accounts where id").
		WithArgs(int64(1)).
		WillReturnRows(accountRow(mock, 1, "alice", hash, true, 4))

	svc := newTestService(t, NewPGStore(db))
	if err := svc.CheckTokenVersion(context.Background(), 1, 4); err != nil {
		t.Fatalf("matching version must pass: %v", err)
	}
	if err := svc.CheckTokenVersion(context.Background(), 1, 3); apierr.KindOf(err) != apierr.KindAuthInvalid {
		t.Fatalf("stale version must fail as AuthInvalid, got %v", err)
	}
}

func TestDownloadRecoveryCodesArtifact(t *testing.T) {
	svc := newTestService(t, nil)
	artifact, err := svc.DownloadRecoveryCodes("alice", []string{"code-one", "code-two"})
	if err != nil {
		t.Fatalf("DownloadRecoveryCodes: %v", err)
	}
	if artifact.Filename != "recovery-codes-alice.txt" || artifact.MimeType != "text/plain" {
		t.Fatalf("unexpected artifact metadata: %+v", artifact)
	}
	if artifact.Content == "" {
		t.Fatal("expected base64 content")
	}
	if _, err := svc.DownloadRecoveryCodes("alice", nil); apierr.KindOf(err) != apierr.KindInputInvalid {
		t.Fatalf("empty codes must fail as InputInvalid, got %v", err)
	}
}
