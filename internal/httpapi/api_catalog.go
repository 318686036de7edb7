package httpapi

import (
	"net/http"

	"github.com/Iradukunda-Fils/microservices-demo/internal/apierr"
	"github.com/Iradukunda-Fils/microservices-demo/internal/catalog"
	"github.com/Iradukunda-Fils/microservices-demo/internal/obs"
	"github.com/Iradukunda-Fils/microservices-demo/internal/token"
)

// CatalogAPI is the product service's HTTP layer.
type CatalogAPI struct {
	mux     *http.ServeMux
	svc     *catalog.Service
	auth    *authenticator
	probe   ReadyProbe
	version string
}

// NewCatalogAPI wires the catalog routes. Listing and reads are public;
// mutations are admin-gated.
func NewCatalogAPI(svc *catalog.Service, verifier *token.Verifier, probe ReadyProbe, version string) *CatalogAPI {
	a := &CatalogAPI{
		mux:     http.NewServeMux(),
		svc:     svc,
		probe:   probe,
		version: version,
	}
	a.auth = newAuthenticator(verifier, "/healthz", "/readyz", "/metrics")

	a.mux.HandleFunc("/healthz", healthzHandler("catalog", version))
	a.mux.HandleFunc("/readyz", readyzHandler(probe))
	a.mux.Handle("/metrics", obs.Handler())

	a.mux.HandleFunc("/v1/products", a.handleProducts)
	a.mux.HandleFunc("/v1/products/", a.handleProductResource)

	a.mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		http.NotFound(w, r)
	})
	return a
}

// Handler returns the composed HTTP handler.
func (a *CatalogAPI) Handler() http.Handler {
	return Chain(a.auth.wrap(a.mux))
}

func (a *CatalogAPI) handleProducts(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		page, err := a.svc.List(r.Context(), r.URL.Query().Get("search"), pageParam(r))
		if err != nil {
			handleServiceError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, page)
	case http.MethodPost:
		if _, ok := requireAdmin(w, r); !ok {
			return
		}
		var in catalog.ProductInput
		if err := decodeJSON(w, r, &in); err != nil {
			writeError(w, r, http.StatusBadRequest, apierr.KindInputInvalid, err.Error())
			return
		}
		p, err := a.svc.Create(r.Context(), in)
		if err != nil {
			handleServiceError(w, r, err)
			return
		}
		writeJSON(w, http.StatusCreated, p)
	default:
		methodNotAllowed(w, r, http.MethodGet, http.MethodPost)
	}
}

func (a *CatalogAPI) handleProductResource(w http.ResponseWriter, r *http.Request) {
	id, rest, ok := pathID(r, "/v1/products/")
	if !ok || rest != "" {
		writeError(w, r, http.StatusNotFound, apierr.KindNotFound, "resource not found")
		return
	}
	switch r.Method {
	case http.MethodGet:
		p, err := a.svc.Get(r.Context(), id)
		if err != nil {
			handleServiceError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, p)
	case http.MethodPut:
		if _, ok := requireAdmin(w, r); !ok {
			return
		}
		var in catalog.ProductInput
		if err := decodeJSON(w, r, &in); err != nil {
			writeError(w, r, http.StatusBadRequest, apierr.KindInputInvalid, err.Error())
			return
		}
		p, err := a.svc.Update(r.Context(), id, in)
		if err != nil {
			handleServiceError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, p)
	case http.MethodDelete:
		if _, ok := requireAdmin(w, r); !ok {
			return
		}
		if err := a.svc.Delete(r.Context(), id); err != nil {
			handleServiceError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"message": "product deactivated"})
	default:
		methodNotAllowed(w, r, http.MethodGet, http.MethodPut, http.MethodDelete)
	}
}
