package orders

import (
	"context"
	"strconv"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/Iradukunda-Fils/microservices-demo/internal/apierr"
	"github.com/Iradukunda-Fils/microservices-demo/internal/rpc/wire"
	"github.com/Iradukunda-Fils/microservices-demo/internal/token"
)

// fakeStore keeps orders in memory.
type fakeStore struct {
	nextID int64
	orders map[int64]*Order
}

func newFakeStore() *fakeStore {
	return &fakeStore{nextID: 1, orders: make(map[int64]*Order)}
}

func (s *fakeStore) CreateOrder(_ context.Context, o *Order) error {
	o.ID = s.nextID
	s.nextID++
	o.CreatedAt = time.Now()
	o.UpdatedAt = o.CreatedAt
	for i := range o.Lines {
		o.Lines[i].ID = int64(i + 1)
		o.Lines[i].OrderID = o.ID
	}
	stored := *o
	stored.Lines = append([]OrderLine(nil), o.Lines...)
	s.orders[o.ID] = &stored
	return nil
}

func (s *fakeStore) FindOrder(_ context.Context, id int64) (*Order, error) {
	o, ok := s.orders[id]
	if !ok {
		return nil, ErrNotFound
	}
	out := *o
	out.Lines = append([]OrderLine(nil), o.Lines...)
	return &out, nil
}

func (s *fakeStore) ListByOwnerDigest(_ context.Context, digest []byte, page, pageSize int) ([]Order, int64, error) {
	var out []Order
	for _, o := range s.orders {
		if string(o.OwnerDigest) == string(digest) {
			out = append(out, *o)
		}
	}
	return out, int64(len(out)), nil
}

func (s *fakeStore) ListAll(_ context.Context, page, pageSize int) ([]Order, int64, error) {
	var out []Order
	for _, o := range s.orders {
		out = append(out, *o)
	}
	return out, int64(len(out)), nil
}

func (s *fakeStore) UpdateStatus(_ context.Context, id int64, from, to Status) (bool, error) {
	o, ok := s.orders[id]
	if !ok || o.Status != from {
		return false, nil
	}
	o.Status = to
	return true, nil
}

// fakeUsers answers ValidateUser from a canned table.
type fakeUsers struct {
	valid map[int64]bool
	err   error
	calls int
}

func (f *fakeUsers) ValidateUser(_ context.Context, userID int64) (*wire.ValidateUserResponse, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	if f.valid[userID] {
		return &wire.ValidateUserResponse{Valid: true, UserID: userID, Username: "alice", IsActive: true}, nil
	}
	return &wire.ValidateUserResponse{Valid: false, ErrorMessage: "user not found or inactive"}, nil
}

type fakeProduct struct {
	price     string
	inventory int32
	active    bool
}

// fakeProducts answers both product RPCs from a canned table.
type fakeProducts struct {
	products   map[int64]fakeProduct
	infoErr    error
	availErr   error
	infoCalls  int
	availCalls int
}

func (f *fakeProducts) GetProductInfo(_ context.Context, id int64) (*wire.GetProductInfoResponse, error) {
	f.infoCalls++
	if f.infoErr != nil {
		return nil, f.infoErr
	}
	p, ok := f.products[id]
	if !ok {
		return &wire.GetProductInfoResponse{Found: false, ErrorMessage: "not found"}, nil
	}
	return &wire.GetProductInfoResponse{
		Found:          true,
		ID:             id,
		Name:           "product",
		Price:          p.price,
		InventoryCount: p.inventory,
		IsActive:       p.active,
	}, nil
}

func (f *fakeProducts) CheckAvailability(_ context.Context, id int64, quantity int32) (*wire.CheckAvailabilityResponse, error) {
	f.availCalls++
	if f.availErr != nil {
		return nil, f.availErr
	}
	p, ok := f.products[id]
	if !ok {
		return &wire.CheckAvailabilityResponse{Available: false, ErrorMessage: "not found"}, nil
	}
	return &wire.CheckAvailabilityResponse{
		Available:        p.active && p.inventory >= quantity,
		CurrentInventory: p.inventory,
	}, nil
}

func alice() token.Caller {
	return token.Caller{Subject: 42, Username: "alice"}
}

func newTestOrderService(t *testing.T, store Store, users UserClient, products ProductClient) (*Service, *Cipher) {
	t.Helper()
	cipher, err := NewCipher(testKey(t))
	if err != nil {
		t.Fatalf("NewCipher: %v", err)
	}
	return NewService(store, cipher, users, products), cipher
}

func TestCreateHappyPath(t *testing.T) {
	store := newFakeStore()
	users := &fakeUsers{valid: map[int64]bool{42: true}}
	products := &fakeProducts{products: map[int64]fakeProduct{
		1: {price: "10.00", inventory: 5, active: true},
		2: {price: "7.50", inventory: 2, active: true},
	}}
	svc, cipher := newTestOrderService(t, store, users, products)

	order, err := svc.Create(context.Background(), alice(), []ItemInput{
		{ProductID: 1, Quantity: 2},
		{ProductID: 2, Quantity: 1},
	})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if got := order.TotalAmount.StringFixed(2); got != "27.50" {
		t.Fatalf("total = %s, want 27.50", got)
	}
	if order.Status != StatusPending {
		t.Fatalf("status = %s, want pending", order.Status)
	}
	if len(order.Lines) != 2 {
		t.Fatalf("expected 2 lines, got %d", len(order.Lines))
	}
	if p := order.Lines[0].PriceAtPurchase.StringFixed(2); p != "10.00" {
		t.Fatalf("line 0 price = %s", p)
	}
	if p := order.Lines[1].PriceAtPurchase.StringFixed(2); p != "7.50" {
		t.Fatalf("line 1 price = %s", p)
	}

	// The persisted owner field decrypts back to alice's id.
	stored, err := store.FindOrder(context.Background(), order.ID)
	if err != nil {
		t.Fatalf("FindOrder: %v", err)
	}
	plain, err := cipher.Decode(stored.OwnerCipher)
	if err != nil {
		t.Fatalf("Decode owner: %v", err)
	}
	if plain != strconv.FormatInt(42, 10) {
		t.Fatalf("owner decrypts to %q, want 42", plain)
	}
	if users.calls != 1 || products.infoCalls != 2 || products.availCalls != 2 {
		t.Fatalf("unexpected call counts: users=%d info=%d avail=%d", users.calls, products.infoCalls, products.availCalls)
	}
}

func TestCreateMergesDuplicateProducts(t *testing.T) {
	store := newFakeStore()
	users := &fakeUsers{valid: map[int64]bool{42: true}}
	products := &fakeProducts{products: map[int64]fakeProduct{
		1: {price: "10.00", inventory: 5, active: true},
	}}
	svc, _ := newTestOrderService(t, store, users, products)

	order, err := svc.Create(context.Background(), alice(), []ItemInput{
		{ProductID: 1, Quantity: 1},
		{ProductID: 1, Quantity: 2},
	})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if len(order.Lines) != 1 || order.Lines[0].Quantity != 3 {
		t.Fatalf("expected one merged line of quantity 3, got %+v", order.Lines)
	}
	if got := order.TotalAmount.StringFixed(2); got != "30.00" {
		t.Fatalf("total = %s, want 30.00", got)
	}
	if products.infoCalls != 1 {
		t.Fatalf("merged line must fan out once, got %d calls", products.infoCalls)
	}
}

func TestCreateInputValidation(t *testing.T) {
	svc, _ := newTestOrderService(t, newFakeStore(), &fakeUsers{}, &fakeProducts{})

	cases := [][]ItemInput{
		nil,
		{},
		{{ProductID: 1, Quantity: 0}},
		{{ProductID: 0, Quantity: 1}},
	}
	for i, items := range cases {
		if _, err := svc.Create(context.Background(), alice(), items); apierr.KindOf(err) != apierr.KindInputInvalid {
			t.Fatalf("case %d: expected InputInvalid, got %v", i, err)
		}
	}
}

func TestCreateUnknownUser(t *testing.T) {
	store := newFakeStore()
	users := &fakeUsers{valid: map[int64]bool{}}
	products := &fakeProducts{products: map[int64]fakeProduct{1: {price: "10.00", inventory: 5, active: true}}}
	svc, _ := newTestOrderService(t, store, users, products)

	_, err := svc.Create(context.Background(), alice(), []ItemInput{{ProductID: 1, Quantity: 1}})
	if apierr.KindOf(err) != apierr.KindNotFound {
		t.Fatalf("expected NotFound for invalid user, got %v", err)
	}
	if products.infoCalls != 0 {
		t.Fatal("user validation must precede product calls")
	}
	if len(store.orders) != 0 {
		t.Fatal("nothing may be persisted on a failed validation")
	}
}

func TestCreateUnknownProduct(t *testing.T) {
	store := newFakeStore()
	users := &fakeUsers{valid: map[int64]bool{42: true}}
	products := &fakeProducts{products: map[int64]fakeProduct{}}
	svc, _ := newTestOrderService(t, store, users, products)

	_, err := svc.Create(context.Background(), alice(), []ItemInput{{ProductID: 999, Quantity: 1}})
	e := apierr.AsError(err)
	if e == nil || e.Kind != apierr.KindNotFound {
		t.Fatalf("expected NotFound, got %v", err)
	}
	if e.ProductID != 999 {
		t.Fatalf("error must reference product 999, got %d", e.ProductID)
	}
	if products.availCalls != 0 {
		t.Fatal("availability must not be checked for an unknown product")
	}
	if len(store.orders) != 0 {
		t.Fatal("no order may be persisted")
	}
}

func TestCreateInsufficientInventory(t *testing.T) {
	store := newFakeStore()
	users := &fakeUsers{valid: map[int64]bool{42: true}}
	products := &fakeProducts{products: map[int64]fakeProduct{
		1: {price: "10.00", inventory: 1, active: true},
	}}
	svc, _ := newTestOrderService(t, store, users, products)

	_, err := svc.Create(context.Background(), alice(), []ItemInput{{ProductID: 1, Quantity: 3}})
	e := apierr.AsError(err)
	if e == nil || e.Kind != apierr.KindInsufficientInventory {
		t.Fatalf("expected InsufficientInventory, got %v", err)
	}
	if e.ProductID != 1 || e.Available != 1 {
		t.Fatalf("shortfall must carry product id and available count, got %+v", e)
	}
	if len(store.orders) != 0 {
		t.Fatal("no order may be persisted")
	}
}

func TestCreateDependencyUnavailable(t *testing.T) {
	store := newFakeStore()
	users := &fakeUsers{valid: map[int64]bool{42: true}}
	products := &fakeProducts{
		products: map[int64]fakeProduct{1: {price: "10.00", inventory: 5, active: true}},
		infoErr:  apierr.New(apierr.KindDependencyUnavailable, "catalog is unavailable"),
	}
	svc, _ := newTestOrderService(t, store, users, products)

	_, err := svc.Create(context.Background(), alice(), []ItemInput{{ProductID: 1, Quantity: 1}})
	if apierr.KindOf(err) != apierr.KindDependencyUnavailable {
		t.Fatalf("expected DependencyUnavailable, got %v", err)
	}
	if len(store.orders) != 0 {
		t.Fatal("no order may be persisted when a dependency is down")
	}
}

func TestGetEnforcesOwnership(t *testing.T) {
	store := newFakeStore()
	users := &fakeUsers{valid: map[int64]bool{42: true}}
	products := &fakeProducts{products: map[int64]fakeProduct{1: {price: "10.00", inventory: 5, active: true}}}
	svc, _ := newTestOrderService(t, store, users, products)

	order, err := svc.Create(context.Background(), alice(), []ItemInput{{ProductID: 1, Quantity: 1}})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}

	// Owner reads it back.
	got, err := svc.Get(context.Background(), alice(), order.ID)
	if err != nil {
		t.Fatalf("Get as owner: %v", err)
	}
	if got.OwnerID != 42 {
		t.Fatalf("owner id = %d, want 42", got.OwnerID)
	}

	// A stranger sees NotFound.
	stranger := token.Caller{Subject: 7, Username: "mallory"}
	if _, err := svc.Get(context.Background(), stranger, order.ID); apierr.KindOf(err) != apierr.KindNotFound {
		t.Fatalf("stranger must get NotFound, got %v", err)
	}

	// An admin may read any order.
	admin := token.Caller{Subject: 1, Username: "root", IsAdmin: true}
	if _, err := svc.Get(context.Background(), admin, order.ID); err != nil {
		t.Fatalf("Get as admin: %v", err)
	}
}

func TestListMineFiltersByOwner(t *testing.T) {
	store := newFakeStore()
	users := &fakeUsers{valid: map[int64]bool{42: true, 7: true}}
	products := &fakeProducts{products: map[int64]fakeProduct{1: {price: "10.00", inventory: 50, active: true}}}
	svc, _ := newTestOrderService(t, store, users, products)

	if _, err := svc.Create(context.Background(), alice(), []ItemInput{{ProductID: 1, Quantity: 1}}); err != nil {
		t.Fatalf("Create: %v", err)
	}
	bob := token.Caller{Subject: 7, Username: "bob"}
	if _, err := svc.Create(context.Background(), bob, []ItemInput{{ProductID: 1, Quantity: 2}}); err != nil {
		t.Fatalf("Create: %v", err)
	}

	page, err := svc.ListMine(context.Background(), alice(), 1)
	if err != nil {
		t.Fatalf("ListMine: %v", err)
	}
	if len(page.Items) != 1 || page.Items[0].OwnerID != 42 {
		t.Fatalf("expected only alice's order, got %+v", page.Items)
	}

	all, err := svc.ListAll(context.Background(), 1)
	if err != nil {
		t.Fatalf("ListAll: %v", err)
	}
	if len(all.Items) != 2 {
		t.Fatalf("expected both orders for the admin listing, got %d", len(all.Items))
	}
}

func TestUpdateStatusStateMachine(t *testing.T) {
	store := newFakeStore()
	users := &fakeUsers{valid: map[int64]bool{42: true}}
	products := &fakeProducts{products: map[int64]fakeProduct{1: {price: "10.00", inventory: 5, active: true}}}
	svc, _ := newTestOrderService(t, store, users, products)

	order, err := svc.Create(context.Background(), alice(), []ItemInput{{ProductID: 1, Quantity: 1}})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}

	// pending → shipped skips states and must fail.
	if _, err := svc.UpdateStatus(context.Background(), order.ID, StatusShipped); apierr.KindOf(err) != apierr.KindConflictState {
		t.Fatalf("expected ConflictState, got %v", err)
	}
	// The happy chain walks through.
	for _, next := range []Status{StatusConfirmed, StatusProcessing, StatusShipped, StatusDelivered} {
		updated, err := svc.UpdateStatus(context.Background(), order.ID, next)
		if err != nil {
			t.Fatalf("UpdateStatus(%s): %v", next, err)
		}
		if updated.Status != next {
			t.Fatalf("status = %s, want %s", updated.Status, next)
		}
	}
	// Delivered is terminal.
	if _, err := svc.UpdateStatus(context.Background(), order.ID, StatusCancelled); apierr.KindOf(err) != apierr.KindConflictState {
		t.Fatalf("terminal state must not transition, got %v", err)
	}
	// Unknown status is invalid input.
	if _, err := svc.UpdateStatus(context.Background(), order.ID, Status("teleported")); apierr.KindOf(err) != apierr.KindInputInvalid {
		t.Fatalf("expected InputInvalid, got %v", err)
	}
}

func TestTotalUsesFixedPointArithmetic(t *testing.T) {
	store := newFakeStore()
	users := &fakeUsers{valid: map[int64]bool{42: true}}
	products := &fakeProducts{products: map[int64]fakeProduct{
		1: {price: "0.10", inventory: 100, active: true},
		2: {price: "0.20", inventory: 100, active: true},
	}}
	svc, _ := newTestOrderService(t, store, users, products)

	// 3×0.10 + 1×0.20 = 0.50 exactly; binary floats would drift.
	order, err := svc.Create(context.Background(), alice(), []ItemInput{
		{ProductID: 1, Quantity: 3},
		{ProductID: 2, Quantity: 1},
	})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if !order.TotalAmount.Equal(decimal.RequireFromString("0.50")) {
		t.Fatalf("total = %s, want exactly 0.50", order.TotalAmount)
	}
}
