package catalog

import (
	"context"
	"database/sql"
	"errors"
)

var _ Store = (*PGStore)(nil)

// PGStore implements Store using PostgreSQL.
type PGStore struct {
	db *sql.DB
}

func NewPGStore(db *sql.DB) *PGStore {
	return &PGStore{db: db}
}

const productColumns = `id, name, description, price, inventory_count, is_active, created_at, updated_at`

func (s *PGStore) Create(ctx context.Context, p *Product) error {
	row := s.db.QueryRowContext(ctx,
		`insert into products(name, description, price, inventory_count, is_active)
		 values($1,$2,$3,$4,$5)
		 returning id, created_at, updated_at`,
		p.Name, p.Description, p.Price, p.InventoryCount, p.IsActive,
	)
	return row.Scan(&p.ID, &p.CreatedAt, &p.UpdatedAt)
}

func (s *PGStore) Find(ctx context.Context, id int64) (*Product, error) {
	row := s.db.QueryRowContext(ctx,
		`select `+productColumns+` from products where id=$1`, id)
	var p Product
	err := row.Scan(&p.ID, &p.Name, &p.Description, &p.Price, &p.InventoryCount,
		&p.IsActive, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &p, nil
}

func (s *PGStore) List(ctx context.Context, search string, page, pageSize int) ([]Product, int64, error) {
	if page < 1 {
		page = 1
	}
	offset := (page - 1) * pageSize
	pattern := "%" + search + "%"

	var total int64
	err := s.db.QueryRowContext(ctx,
		`select count(*) from products
		 where is_active and (name ilike $1 or description ilike $1)`, pattern,
	).Scan(&total)
	if err != nil {
		return nil, 0, err
	}

	rows, err := s.db.QueryContext(ctx,
		`select `+productColumns+` from products
		 where is_active and (name ilike $1 or description ilike $1)
		 order by id limit $2 offset $3`,
		pattern, pageSize, offset)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var items []Product
	for rows.Next() {
		var p Product
		if err := rows.Scan(&p.ID, &p.Name, &p.Description, &p.Price, &p.InventoryCount,
			&p.IsActive, &p.CreatedAt, &p.UpdatedAt); err != nil {
			return nil, 0, err
		}
		items = append(items, p)
	}
	return items, total, rows.Err()
}

func (s *PGStore) Update(ctx context.Context, p *Product) error {
	res, err := s.db.ExecContext(ctx,
		`update products
		 set name=$2, description=$3, price=$4, inventory_count=$5, is_active=$6, updated_at=now()
		 where id=$1`,
		p.ID, p.Name, p.Description, p.Price, p.InventoryCount, p.IsActive,
	)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *PGStore) Delete(ctx context.Context, id int64) error {
	res, err := s.db.ExecContext(ctx,
		`update products set is_active=false, updated_at=now() where id=$1`, id)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}
