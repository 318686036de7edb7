package orders

import (
	"context"
	"errors"
	"strconv"

	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"

	"github.com/Iradukunda-Fils/microservices-demo/internal/apierr"
	"github.com/Iradukunda-Fils/microservices-demo/internal/obs"
	"github.com/Iradukunda-Fils/microservices-demo/internal/token"
)

// Service orchestrates order creation across the IdP and Catalog and owns
// the order store.
type Service struct {
	store    Store
	cipher   *Cipher
	users    UserClient
	products ProductClient
}

// NewService constructs the orchestrator service.
func NewService(store Store, cipher *Cipher, users UserClient, products ProductClient) *Service {
	return &Service{store: store, cipher: cipher, users: users, products: products}
}

// ItemInput is one requested order position.
type ItemInput struct {
	ProductID int64 `json:"product_id"`
	Quantity  int32 `json:"quantity"`
}

// mergeItems validates the raw items and merges duplicate product ids by
// summing quantities, preserving first-seen order.
func mergeItems(items []ItemInput) ([]ItemInput, error) {
	if len(items) == 0 {
		return nil, apierr.New(apierr.KindInputInvalid, "items must not be empty")
	}
	index := make(map[int64]int, len(items))
	merged := make([]ItemInput, 0, len(items))
	for _, item := range items {
		if item.ProductID <= 0 {
			return nil, apierr.New(apierr.KindInputInvalid, "product_id must be positive")
		}
		if item.Quantity < 1 {
			return nil, apierr.New(apierr.KindInputInvalid, "quantity must be at least 1")
		}
		if i, ok := index[item.ProductID]; ok {
			merged[i].Quantity += item.Quantity
			continue
		}
		index[item.ProductID] = len(merged)
		merged = append(merged, item)
	}
	return merged, nil
}

// Create runs the orchestration pipeline: validate input, validate the
// owner, snapshot product info, check availability, then persist in one
// local transaction. The per-line RPCs fan out concurrently inside each
// phase, and the phases stay strictly ordered. Nothing is persisted on any
// error path.
func (s *Service) Create(ctx context.Context, caller token.Caller, items []ItemInput) (*Order, error) {
	merged, err := mergeItems(items)
	if err != nil {
		return nil, err
	}

	userResp, err := s.users.ValidateUser(ctx, caller.Subject)
	if err != nil {
		return nil, err
	}
	if !userResp.Valid {
		return nil, apierr.New(apierr.KindNotFound, "user %d is not valid: %s", caller.Subject, userResp.ErrorMessage)
	}

	// Phase: product snapshots, one concurrent call per line.
	snapshots := make([]productSnapshot, len(merged))
	g, gctx := errgroup.WithContext(ctx)
	for i, item := range merged {
		g.Go(func() error {
			resp, err := s.products.GetProductInfo(gctx, item.ProductID)
			if err != nil {
				return err
			}
			if !resp.Found {
				return apierr.ForProduct(apierr.KindNotFound, item.ProductID, 0,
					"product %d not found", item.ProductID)
			}
			if !resp.IsActive {
				return apierr.ForProduct(apierr.KindNotFound, item.ProductID, 0,
					"product %d is not available", item.ProductID)
			}
			price, err := decimal.NewFromString(resp.Price)
			if err != nil {
				return apierr.Wrap(apierr.KindInternal, err, "product %d has an invalid price", item.ProductID)
			}
			snapshots[i] = productSnapshot{
				productID: item.ProductID,
				quantity:  item.Quantity,
				price:     price,
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	// Phase: availability, again one concurrent call per line.
	g, gctx = errgroup.WithContext(ctx)
	for _, snap := range snapshots {
		g.Go(func() error {
			resp, err := s.products.CheckAvailability(gctx, snap.productID, snap.quantity)
			if err != nil {
				return err
			}
			if !resp.Available {
				return apierr.ForProduct(apierr.KindInsufficientInventory, snap.productID, resp.CurrentInventory,
					"product %d has only %d of %d requested units", snap.productID, resp.CurrentInventory, snap.quantity)
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	total := decimal.Zero
	lines := make([]OrderLine, 0, len(snapshots))
	for _, snap := range snapshots {
		lineTotal := snap.price.Mul(decimal.NewFromInt32(snap.quantity))
		total = total.Add(lineTotal)
		lines = append(lines, OrderLine{
			ProductID:       snap.productID,
			Quantity:        snap.quantity,
			PriceAtPurchase: snap.price,
		})
	}

	ownerPlain := strconv.FormatInt(caller.Subject, 10)
	ownerCipher, err := s.cipher.Encode(ownerPlain)
	if err != nil {
		return nil, err
	}
	order := &Order{
		OwnerID:     caller.Subject,
		OwnerCipher: ownerCipher,
		OwnerDigest: s.cipher.Digest(ownerPlain),
		TotalAmount: total.Round(2),
		Status:      StatusPending,
		Lines:       lines,
	}
	if err := s.store.CreateOrder(ctx, order); err != nil {
		return nil, err
	}
	log := obs.Logger()
	log.Info().Int64("order_id", order.ID).Int("lines", len(lines)).
		Str("total", order.TotalAmount.StringFixed(2)).Msg("order created")
	return order, nil
}

type productSnapshot struct {
	productID int64
	quantity  int32
	price     decimal.Decimal
}

// Get returns the order iff it belongs to the caller or the caller is an
// admin. The decrypted owner is what authorizes the read.
func (s *Service) Get(ctx context.Context, caller token.Caller, id int64) (*Order, error) {
	order, err := s.store.FindOrder(ctx, id)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, apierr.New(apierr.KindNotFound, "order %d not found", id)
		}
		return nil, err
	}
	owner, err := s.decodeOwner(order)
	if err != nil {
		return nil, err
	}
	if owner != caller.Subject && !caller.IsAdmin {
		// Not the caller's order; do not reveal that it exists.
		return nil, apierr.New(apierr.KindNotFound, "order %d not found", id)
	}
	return order, nil
}

// ListMine pages the caller's orders via the keyed owner digest.
func (s *Service) ListMine(ctx context.Context, caller token.Caller, page int) (OrderPage, error) {
	if page < 1 {
		page = 1
	}
	digest := s.cipher.Digest(strconv.FormatInt(caller.Subject, 10))
	items, total, err := s.store.ListByOwnerDigest(ctx, digest, page, PageSize)
	if err != nil {
		return OrderPage{}, err
	}
	for i := range items {
		if _, err := s.decodeOwner(&items[i]); err != nil {
			return OrderPage{}, err
		}
	}
	return OrderPage{Items: items, Page: page, TotalCount: total}, nil
}

// ListAll pages every order. Admin surface; authorization happens at the
// HTTP layer.
func (s *Service) ListAll(ctx context.Context, page int) (OrderPage, error) {
	if page < 1 {
		page = 1
	}
	items, total, err := s.store.ListAll(ctx, page, PageSize)
	if err != nil {
		return OrderPage{}, err
	}
	for i := range items {
		if _, err := s.decodeOwner(&items[i]); err != nil {
			return OrderPage{}, err
		}
	}
	return OrderPage{Items: items, Page: page, TotalCount: total}, nil
}

// UpdateStatus moves an order through the state machine, rejecting
// transitions the machine does not permit.
func (s *Service) UpdateStatus(ctx context.Context, id int64, to Status) (*Order, error) {
	if !to.Valid() {
		return nil, apierr.New(apierr.KindInputInvalid, "unknown status %q", to)
	}
	order, err := s.store.FindOrder(ctx, id)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, apierr.New(apierr.KindNotFound, "order %d not found", id)
		}
		return nil, err
	}
	if !order.Status.CanTransition(to) {
		return nil, apierr.New(apierr.KindConflictState, "cannot move order from %s to %s", order.Status, to)
	}
	ok, err := s.store.UpdateStatus(ctx, id, order.Status, to)
	if err != nil {
		return nil, err
	}
	if !ok {
		// Lost a race with a concurrent transition.
		return nil, apierr.New(apierr.KindConflictState, "cannot move order from %s to %s", order.Status, to)
	}
	order.Status = to
	if _, err := s.decodeOwner(order); err != nil {
		return nil, err
	}
	return order, nil
}

func (s *Service) decodeOwner(order *Order) (int64, error) {
	plain, err := s.cipher.Decode(order.OwnerCipher)
	if err != nil {
		return 0, apierr.Wrap(apierr.KindInternal, err, "order %d owner is unreadable", order.ID)
	}
	owner, err := strconv.ParseInt(plain, 10, 64)
	if err != nil {
		return 0, apierr.Wrap(apierr.KindInternal, err, "order %d owner is unreadable", order.ID)
	}
	order.OwnerID = owner
	return owner, nil
}
