package idp

import (
	"context"
	"database/sql"
	"errors"

	"github.com/jackc/pgx/v5/pgconn"
)

var _ Store = (*PGStore)(nil)

// PGStore implements Store using PostgreSQL.
type PGStore struct {
	db *sql.DB
}

func NewPGStore(db *sql.DB) *PGStore {
	return &PGStore{db: db}
}

const uniqueViolation = "23505"

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == uniqueViolation
}

func (s *PGStore) CreateAccount(ctx context.Context, a *Account) error {
	row := s.db.QueryRowContext(ctx,
		`insert into accounts(username, email, password_hash, password_algo, is_active, is_admin)
		 values($1,$2,$3,$4,$5,$6)
		 returning id, token_version, created_at, updated_at`,
		a.Username, a.Email, a.PasswordHash, a.PasswordAlgo, a.IsActive, a.IsAdmin,
	)
	if err := row.Scan(&a.ID, &a.TokenVersion, &a.CreatedAt, &a.UpdatedAt); err != nil {
		if isUniqueViolation(err) {
			return ErrAlreadyExists
		}
		return err
	}
	return nil
}

const accountColumns = `id, username, email, password_hash, password_algo, is_active, is_admin, token_version, created_at, updated_at`

func scanAccount(row *sql.Row) (*Account, error) {
	var a Account
	err := row.Scan(&a.ID, &a.Username, &a.Email, &a.PasswordHash, &a.PasswordAlgo,
		&a.IsActive, &a.IsAdmin, &a.TokenVersion, &a.CreatedAt, &a.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &a, nil
}

func (s *PGStore) FindAccount(ctx context.Context, id int64) (*Account, error) {
	return scanAccount(s.db.QueryRowContext(ctx,
		`select `+accountColumns+` from accounts where id=$1`, id))
}

func (s *PGStore) FindAccountByUsername(ctx context.Context, username string) (*Account, error) {
	return scanAccount(s.db.QueryRowContext(ctx,
		`select `+accountColumns+` from accounts where username=$1`, username))
}

func (s *PGStore) UpdatePassword(ctx context.Context, id int64, hash, algo string) error {
	res, err := s.db.ExecContext(ctx,
		`update accounts
		 set password_hash=$2, password_algo=$3, token_version=token_version+1, updated_at=now()
		 where id=$1`,
		id, hash, algo,
	)
	if err != nil {
		return err
	}
	return requireRow(res)
}

func (s *PGStore) SetActive(ctx context.Context, id int64, active bool) error {
	res, err := s.db.ExecContext(ctx,
		`update accounts set is_active=$2, updated_at=now() where id=$1`, id, active)
	if err != nil {
		return err
	}
	return requireRow(res)
}

// Second factor ------------------------------------------------------------

func (s *PGStore) SecondFactor(ctx context.Context, accountID int64) (*SecondFactor, error) {
	row := s.db.QueryRowContext(ctx,
		`select account_id, secret, confirmed, last_step, created_at
		 from second_factors where account_id=$1`, accountID)
	var sf SecondFactor
	if err := row.Scan(&sf.AccountID, &sf.Secret, &sf.Confirmed, &sf.LastStep, &sf.CreatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &sf, nil
}

func (s *PGStore) UpsertUnconfirmedFactor(ctx context.Context, accountID int64, secret string) error {
	existing, err := s.SecondFactor(ctx, accountID)
	if err != nil && !errors.Is(err, ErrNotFound) {
		return err
	}
	if existing != nil && existing.Confirmed {
		return ErrAlreadyExists
	}
	_, err = s.db.ExecContext(ctx,
		`insert into second_factors(account_id, secret, confirmed, last_step)
		 values($1,$2,false,0)
		 on conflict (account_id) do update set secret=excluded.secret, confirmed=false, last_step=0`,
		accountID, secret,
	)
	return err
}

func (s *PGStore) ConfirmFactor(ctx context.Context, accountID int64) error {
	res, err := s.db.ExecContext(ctx,
		`update second_factors set confirmed=true where account_id=$1 and not confirmed`, accountID)
	if err != nil {
		return err
	}
	return requireRow(res)
}

func (s *PGStore) DeleteFactor(ctx context.Context, accountID int64) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `delete from recovery_codes where account_id=$1`, accountID); err != nil {
		return err
	}
	res, err := tx.ExecContext(ctx, `delete from second_factors where account_id=$1`, accountID)
	if err != nil {
		return err
	}
	if err := requireRow(res); err != nil {
		return err
	}
	return tx.Commit()
}

func (s *PGStore) AdvanceTOTPStep(ctx context.Context, accountID, step int64) (bool, error) {
	res, err := s.db.ExecContext(ctx,
		`update second_factors set last_step=$2 where account_id=$1 and confirmed and last_step < $2`,
		accountID, step,
	)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// Recovery codes -----------------------------------------------------------

func (s *PGStore) ReplaceRecoveryCodes(ctx context.Context, accountID int64, hashes []string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `delete from recovery_codes where account_id=$1`, accountID); err != nil {
		return err
	}
	for _, h := range hashes {
		if _, err := tx.ExecContext(ctx,
			`insert into recovery_codes(account_id, code_hash, used) values($1,$2,false)`,
			accountID, h,
		); err != nil {
			return err
		}
	}
	return tx.Commit()
}

func (s *PGStore) UnusedRecoveryCodes(ctx context.Context, accountID int64) ([]RecoveryCode, error) {
	rows, err := s.db.QueryContext(ctx,
		`select id, account_id, code_hash, used, created_at
		 from recovery_codes where account_id=$1 and not used order by id`, accountID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var codes []RecoveryCode
	for rows.Next() {
		var rc RecoveryCode
		if err := rows.Scan(&rc.ID, &rc.AccountID, &rc.CodeHash, &rc.Used, &rc.CreatedAt); err != nil {
			return nil, err
		}
		codes = append(codes, rc)
	}
	return codes, rows.Err()
}

func (s *PGStore) ConsumeRecoveryCode(ctx context.Context, id int64) (bool, error) {
	res, err := s.db.ExecContext(ctx,
		`update recovery_codes set used=true where id=$1 and not used`, id)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

func requireRow(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}
