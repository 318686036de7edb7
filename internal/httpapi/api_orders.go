package httpapi

import (
	"net/http"
	"strings"

	"github.com/Iradukunda-Fils/microservices-demo/internal/apierr"
	"github.com/Iradukunda-Fils/microservices-demo/internal/audit"
	"github.com/Iradukunda-Fils/microservices-demo/internal/obs"
	"github.com/Iradukunda-Fils/microservices-demo/internal/orders"
	"github.com/Iradukunda-Fils/microservices-demo/internal/token"
)

// OrdersAPI is the Order Orchestrator's HTTP layer. Every order route
// requires a valid access token (only /healthz, /readyz and /metrics are
// public); the owner always comes from the token, never from the request
// body.
type OrdersAPI struct {
	mux     *http.ServeMux
	svc     *orders.Service
	auth    *authenticator
	probe   ReadyProbe
	version string
}

// NewOrdersAPI wires the orchestrator routes.
func NewOrdersAPI(svc *orders.Service, verifier *token.Verifier, probe ReadyProbe, version string) *OrdersAPI {
	a := &OrdersAPI{
		mux:     http.NewServeMux(),
		svc:     svc,
		probe:   probe,
		version: version,
	}
	a.auth = newAuthenticator(verifier, "/healthz", "/readyz", "/metrics")

	a.mux.HandleFunc("/healthz", healthzHandler("orchestrator", version))
	a.mux.HandleFunc("/readyz", readyzHandler(probe))
	a.mux.Handle("/metrics", obs.Handler())

	a.mux.HandleFunc("/v1/orders", a.handleOrders)
	a.mux.HandleFunc("/v1/orders/", a.handleOrderResource)
	a.mux.HandleFunc("/v1/admin/orders", a.handleAdminOrders)
	a.mux.HandleFunc("/v1/admin/orders/", a.handleAdminOrderResource)

	a.mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		http.NotFound(w, r)
	})
	return a
}

// Handler returns the composed HTTP handler.
func (a *OrdersAPI) Handler() http.Handler {
	return Chain(a.auth.wrap(a.mux))
}

type createOrderRequest struct {
	Items []orders.ItemInput `json:"items"`
}

func (a *OrdersAPI) handleOrders(w http.ResponseWriter, r *http.Request) {
	caller, ok := requireCaller(w, r)
	if !ok {
		return
	}
	switch r.Method {
	case http.MethodPost:
		var req createOrderRequest
		if err := decodeJSON(w, r, &req); err != nil {
			writeError(w, r, http.StatusBadRequest, apierr.KindInputInvalid, err.Error())
			return
		}
		order, err := a.svc.Create(r.Context(), caller, req.Items)
		if err != nil {
			handleServiceError(w, r, err)
			return
		}
		_ = audit.LogEvent(r.Context(), "orders.created", map[string]any{
			"order_id": order.ID,
			"total":    order.TotalAmount.StringFixed(2),
		})
		writeJSON(w, http.StatusCreated, order)
	case http.MethodGet:
		page, err := a.svc.ListMine(r.Context(), caller, pageParam(r))
		if err != nil {
			handleServiceError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, page)
	default:
		methodNotAllowed(w, r, http.MethodGet, http.MethodPost)
	}
}

func (a *OrdersAPI) handleOrderResource(w http.ResponseWriter, r *http.Request) {
	caller, ok := requireCaller(w, r)
	if !ok {
		return
	}
	if r.Method != http.MethodGet {
		methodNotAllowed(w, r, http.MethodGet)
		return
	}
	id, rest, okID := pathID(r, "/v1/orders/")
	if !okID || rest != "" {
		writeError(w, r, http.StatusNotFound, apierr.KindNotFound, "resource not found")
		return
	}
	order, err := a.svc.Get(r.Context(), caller, id)
	if err != nil {
		handleServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, order)
}

func (a *OrdersAPI) handleAdminOrders(w http.ResponseWriter, r *http.Request) {
	if _, ok := requireAdmin(w, r); !ok {
		return
	}
	if r.Method != http.MethodGet {
		methodNotAllowed(w, r, http.MethodGet)
		return
	}
	page, err := a.svc.ListAll(r.Context(), pageParam(r))
	if err != nil {
		handleServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, page)
}

type statusUpdateRequest struct {
	Status string `json:"status"`
}

func (a *OrdersAPI) handleAdminOrderResource(w http.ResponseWriter, r *http.Request) {
	if _, ok := requireAdmin(w, r); !ok {
		return
	}
	id, rest, okID := pathID(r, "/v1/admin/orders/")
	if !okID || rest != "status" {
		writeError(w, r, http.StatusNotFound, apierr.KindNotFound, "resource not found")
		return
	}
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, http.MethodPost)
		return
	}
	var req statusUpdateRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, apierr.KindInputInvalid, err.Error())
		return
	}
	order, err := a.svc.UpdateStatus(r.Context(), id, orders.Status(strings.TrimSpace(req.Status)))
	if err != nil {
		handleServiceError(w, r, err)
		return
	}
	_ = audit.LogEvent(r.Context(), "orders.status_changed", map[string]any{
		"order_id": order.ID,
		"status":   order.Status,
	})
	writeJSON(w, http.StatusOK, order)
}
