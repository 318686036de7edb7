package orders

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
)

var _ Store = (*PGStore)(nil)

// PGStore implements Store using PostgreSQL.
type PGStore struct {
	db *sql.DB
}

func NewPGStore(db *sql.DB) *PGStore {
	return &PGStore{db: db}
}

func (s *PGStore) CreateOrder(ctx context.Context, o *Order) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	row := tx.QueryRowContext(ctx,
		`insert into orders(owner_cipher, owner_digest, total_amount, status)
		 values($1,$2,$3,$4)
		 returning id, created_at, updated_at`,
		o.OwnerCipher, o.OwnerDigest, o.TotalAmount, o.Status,
	)
	if err := row.Scan(&o.ID, &o.CreatedAt, &o.UpdatedAt); err != nil {
		return err
	}
	for i := range o.Lines {
		line := &o.Lines[i]
		line.OrderID = o.ID
		row := tx.QueryRowContext(ctx,
			`insert into order_lines(order_id, product_id, quantity, price_at_purchase)
			 values($1,$2,$3,$4)
			 returning id`,
			line.OrderID, line.ProductID, line.Quantity, line.PriceAtPurchase,
		)
		if err := row.Scan(&line.ID); err != nil {
			return err
		}
	}
	return tx.Commit()
}

func (s *PGStore) FindOrder(ctx context.Context, id int64) (*Order, error) {
	row := s.db.QueryRowContext(ctx,
		`select id, owner_cipher, owner_digest, total_amount, status, created_at, updated_at
		 from orders where id=$1`, id)
	var o Order
	err := row.Scan(&o.ID, &o.OwnerCipher, &o.OwnerDigest, &o.TotalAmount, &o.Status, &o.CreatedAt, &o.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	lines, err := s.lines(ctx, o.ID)
	if err != nil {
		return nil, err
	}
	o.Lines = lines
	return &o, nil
}

func (s *PGStore) lines(ctx context.Context, orderID int64) ([]OrderLine, error) {
	rows, err := s.db.QueryContext(ctx,
		`select id, order_id, product_id, quantity, price_at_purchase
		 from order_lines where order_id=$1 order by id`, orderID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var lines []OrderLine
	for rows.Next() {
		var l OrderLine
		if err := rows.Scan(&l.ID, &l.OrderID, &l.ProductID, &l.Quantity, &l.PriceAtPurchase); err != nil {
			return nil, err
		}
		lines = append(lines, l)
	}
	return lines, rows.Err()
}

func (s *PGStore) ListByOwnerDigest(ctx context.Context, digest []byte, page, pageSize int) ([]Order, int64, error) {
	return s.list(ctx, `where owner_digest=$1`, []any{digest}, page, pageSize)
}

func (s *PGStore) ListAll(ctx context.Context, page, pageSize int) ([]Order, int64, error) {
	return s.list(ctx, ``, nil, page, pageSize)
}

func (s *PGStore) list(ctx context.Context, where string, args []any, page, pageSize int) ([]Order, int64, error) {
	if page < 1 {
		page = 1
	}
	offset := (page - 1) * pageSize

	var total int64
	if err := s.db.QueryRowContext(ctx, `select count(*) from orders `+where, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	listArgs := append(append([]any{}, args...), pageSize, offset)
	query := fmt.Sprintf(
		`select id, owner_cipher, owner_digest, total_amount, status, created_at, updated_at
		 from orders %s order by created_at desc, id desc limit $%d offset $%d`,
		where, len(args)+1, len(args)+2)
	rows, err := s.db.QueryContext(ctx, query, listArgs...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var out []Order
	for rows.Next() {
		var o Order
		if err := rows.Scan(&o.ID, &o.OwnerCipher, &o.OwnerDigest, &o.TotalAmount, &o.Status, &o.CreatedAt, &o.UpdatedAt); err != nil {
			return nil, 0, err
		}
		out = append(out, o)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, err
	}
	for i := range out {
		lines, err := s.lines(ctx, out[i].ID)
		if err != nil {
			return nil, 0, err
		}
		out[i].Lines = lines
	}
	return out, total, nil
}

func (s *PGStore) UpdateStatus(ctx context.Context, id int64, from, to Status) (bool, error) {
	res, err := s.db.ExecContext(ctx,
		`update orders set status=$3, updated_at=now() where id=$1 and status=$2`,
		id, from, to)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}
