package catalog

import (
	"context"
	"errors"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/Iradukunda-Fils/microservices-demo/internal/apierr"
)

// Service applies catalog business rules on top of the store.
type Service struct {
	store Store
}

// NewService constructs the catalog service.
func NewService(store Store) *Service {
	return &Service{store: store}
}

// ProductInput carries create/update fields from the admin surface.
type ProductInput struct {
	Name           string `json:"name"`
	Description    string `json:"description"`
	Price          string `json:"price"`
	InventoryCount int32  `json:"inventory_count"`
	IsActive       *bool  `json:"is_active"`
}

func (in ProductInput) validate() (decimal.Decimal, error) {
	if strings.TrimSpace(in.Name) == "" {
		return decimal.Decimal{}, apierr.New(apierr.KindInputInvalid, "name is required")
	}
	price, err := decimal.NewFromString(in.Price)
	if err != nil {
		return decimal.Decimal{}, apierr.New(apierr.KindInputInvalid, "price must be a decimal number")
	}
	if price.IsNegative() {
		return decimal.Decimal{}, apierr.New(apierr.KindInputInvalid, "price must not be negative")
	}
	if in.InventoryCount < 0 {
		return decimal.Decimal{}, apierr.New(apierr.KindInputInvalid, "inventory_count must not be negative")
	}
	return price.Round(2), nil
}

// List returns one page of the listing with search over name/description.
func (s *Service) List(ctx context.Context, search string, page int) (Page, error) {
	if page < 1 {
		page = 1
	}
	items, total, err := s.store.List(ctx, strings.TrimSpace(search), page, PageSize)
	if err != nil {
		return Page{}, err
	}
	return Page{Items: items, Page: page, TotalCount: total}, nil
}

// Get returns one product by id.
func (s *Service) Get(ctx context.Context, id int64) (*Product, error) {
	p, err := s.store.Find(ctx, id)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, apierr.New(apierr.KindNotFound, "product %d not found", id)
		}
		return nil, err
	}
	return p, nil
}

// Create adds a product. Admin surface only.
func (s *Service) Create(ctx context.Context, in ProductInput) (*Product, error) {
	price, err := in.validate()
	if err != nil {
		return nil, err
	}
	active := true
	if in.IsActive != nil {
		active = *in.IsActive
	}
	p := &Product{
		Name:           strings.TrimSpace(in.Name),
		Description:    in.Description,
		Price:          price,
		InventoryCount: in.InventoryCount,
		IsActive:       active,
	}
	if err := s.store.Create(ctx, p); err != nil {
		return nil, err
	}
	return p, nil
}

// Update replaces a product's mutable fields. Admin surface only.
func (s *Service) Update(ctx context.Context, id int64, in ProductInput) (*Product, error) {
	price, err := in.validate()
	if err != nil {
		return nil, err
	}
	p, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	p.Name = strings.TrimSpace(in.Name)
	p.Description = in.Description
	p.Price = price
	p.InventoryCount = in.InventoryCount
	if in.IsActive != nil {
		p.IsActive = *in.IsActive
	}
	if err := s.store.Update(ctx, p); err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, apierr.New(apierr.KindNotFound, "product %d not found", id)
		}
		return nil, err
	}
	return p, nil
}

// Delete soft-deactivates a product. Admin surface only.
func (s *Service) Delete(ctx context.Context, id int64) error {
	if err := s.store.Delete(ctx, id); err != nil {
		if errors.Is(err, ErrNotFound) {
			return apierr.New(apierr.KindNotFound, "product %d not found", id)
		}
		return err
	}
	return nil
}

// Availability reports whether quantity units of the product can be sold.
// The catalog only reports; decrement happens at a later fulfilment step.
type Availability struct {
	Available        bool
	CurrentInventory int32
}

// CheckAvailability answers the availability question for the RPC surface.
func (s *Service) CheckAvailability(ctx context.Context, id int64, quantity int32) (Availability, error) {
	if quantity < 1 {
		return Availability{}, apierr.New(apierr.KindInputInvalid, "quantity must be at least 1")
	}
	p, err := s.Get(ctx, id)
	if err != nil {
		return Availability{}, err
	}
	if !p.IsActive {
		return Availability{Available: false, CurrentInventory: p.InventoryCount}, nil
	}
	return Availability{
		Available:        p.InventoryCount >= quantity,
		CurrentInventory: p.InventoryCount,
	}, nil
}
