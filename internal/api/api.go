// Package api wires the quota service onto a chi router.
//
// Handlers never write to the ResponseWriter directly: they set a
// response or an error into the wrapper state and return. The wrapper
// middleware renders the JSON envelope and emits the canonical log line.
package api

import (
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/nhalm/canonlog"

	"github.com/nhalm/apiman/internal/bind"
	"github.com/nhalm/apiman/internal/quota"
	"github.com/nhalm/apiman/internal/wrapper"
)

type createProductRequest struct {
	ProductID   string `json:"product_id" validate:"required"`
	ProductName string `json:"product_name" validate:"required"`
}

type addAPIRequest struct {
	APIID      string `json:"api_id" validate:"required"`
	APIDetails string `json:"api_details" validate:"required"`
}

type subscribeRequest struct {
	UserID string `json:"user_id" validate:"required"`
}

type setQuotaRequest struct {
	Quota int64 `json:"quota" validate:"required,min=1"`
}

// Handlers holds the route handlers for the quota service.
type Handlers struct {
	svc *quota.Service
}

// NewHandlers creates the handler set backed by the given service.
func NewHandlers(svc *quota.Service) *Handlers {
	return &Handlers{svc: svc}
}

// NewRouter builds the service router with the full middleware chain.
func NewRouter(svc *quota.Service) http.Handler {
	h := NewHandlers(svc)

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(wrapper.New(
		wrapper.WithCanonlog(),
		wrapper.WithCanonlogFields(func(r *http.Request) map[string]any {
			return map[string]any{"request_id": middleware.GetReqID(r.Context())}
		}),
	))

	r.NotFound(func(_ http.ResponseWriter, r *http.Request) {
		wrapper.SetError(r, wrapper.ErrNotFound)
	})
	r.MethodNotAllowed(func(_ http.ResponseWriter, r *http.Request) {
		wrapper.SetError(r, wrapper.ErrMethodNotAllowed)
	})

	r.Get("/healthz", h.Health)

	r.Route("/api", func(r chi.Router) {
		r.Post("/products", h.CreateProduct)
		r.Post("/products/{product_id}/apis", h.AddAPI)
		r.Post("/subscribe/{product_id}/users", h.Subscribe)
		r.Post("/usage/{user_id}/{api_id}", h.RecordUsage)
		r.Get("/usage/{user_id}/{api_id}", h.CheckUsage)
		r.Post("/usage/{user_id}/{api_id}/authorize", h.AuthorizeUsage)
		r.Put("/quota/{api_id}", h.SetQuota)
		r.Get("/quota/{api_id}", h.GetQuota)
	})

	return r
}

// CreateProduct upserts a product in the catalog.
func (h *Handlers) CreateProduct(_ http.ResponseWriter, r *http.Request) {
	var req createProductRequest
	if !bind.JSON(r, &req) {
		return
	}

	if err := h.svc.CreateProduct(r.Context(), req.ProductID, req.ProductName); err != nil {
		h.setError(r, err)
		return
	}

	canonlog.InfoAdd(r.Context(), "product_id", req.ProductID)
	wrapper.SetResponse(r, http.StatusOK, map[string]any{
		"message":      "Product created successfully",
		"product_id":   req.ProductID,
		"product_name": req.ProductName,
	})
}

// AddAPI attaches an API to an existing product.
func (h *Handlers) AddAPI(_ http.ResponseWriter, r *http.Request) {
	productID := chi.URLParam(r, "product_id")

	var req addAPIRequest
	if !bind.JSON(r, &req) {
		return
	}

	if err := h.svc.AddAPI(r.Context(), productID, req.APIID, req.APIDetails); err != nil {
		h.setError(r, err)
		return
	}

	canonlog.InfoAddMany(r.Context(), map[string]any{
		"product_id": productID,
		"api_id":     req.APIID,
	})
	wrapper.SetResponse(r, http.StatusOK, map[string]any{
		"message":     "API added to product successfully",
		"product_id":  productID,
		"api_id":      req.APIID,
		"api_details": req.APIDetails,
	})
}

// Subscribe records a user's subscription to an existing product.
func (h *Handlers) Subscribe(_ http.ResponseWriter, r *http.Request) {
	productID := chi.URLParam(r, "product_id")

	var req subscribeRequest
	if !bind.JSON(r, &req) {
		return
	}

	if err := h.svc.Subscribe(r.Context(), productID, req.UserID); err != nil {
		h.setError(r, err)
		return
	}

	canonlog.InfoAddMany(r.Context(), map[string]any{
		"product_id": productID,
		"user_id":    req.UserID,
	})
	wrapper.SetResponse(r, http.StatusOK, map[string]any{
		"message":    "User subscribed to the product successfully",
		"product_id": productID,
		"user_id":    req.UserID,
	})
}

// RecordUsage accounts one call against the (user, api) counter. The
// counter advances before the subscription checks run, so a rejected
// call is still counted.
func (h *Handlers) RecordUsage(_ http.ResponseWriter, r *http.Request) {
	userID := chi.URLParam(r, "user_id")
	apiID := chi.URLParam(r, "api_id")

	count, err := h.svc.RecordUsage(r.Context(), userID, apiID)
	if count > 0 {
		canonlog.InfoAdd(r.Context(), "usage_count", count)
	}
	if err != nil {
		// The legacy service used a distinct message for a vanished
		// product on this path.
		if errors.Is(err, quota.ErrProductNotFound) {
			wrapper.SetError(r, wrapper.ErrProductNotFound.With("API product is not added"))
			return
		}
		h.setError(r, err)
		return
	}

	wrapper.SetResponse(r, http.StatusOK, map[string]any{
		"message": "API usage increased successfully for the User and API",
	})
}

// CheckUsage reports whether the user is within quota for the API
// without touching the counter.
func (h *Handlers) CheckUsage(_ http.ResponseWriter, r *http.Request) {
	userID := chi.URLParam(r, "user_id")
	apiID := chi.URLParam(r, "api_id")

	usage, err := h.svc.CheckUsage(r.Context(), userID, apiID)
	if err != nil {
		h.setError(r, err)
		return
	}

	canonlog.InfoAddMany(r.Context(), map[string]any{
		"product_id":  usage.ProductID,
		"usage_count": usage.UsageCount,
	})
	wrapper.SetResponse(r, http.StatusOK, map[string]any{
		"message":      "API access allowed",
		"quota":        usage.Quota,
		"usage_count":  usage.UsageCount,
		"user_id":      usage.UserID,
		"api_id":       usage.APIID,
		"product_id":   usage.ProductID,
		"api_details":  usage.APIDetails,
		"product_name": usage.ProductName,
	})
}

// AuthorizeUsage combines check and increment into one atomic admission
// decision: the counter advances only when the call is allowed.
func (h *Handlers) AuthorizeUsage(_ http.ResponseWriter, r *http.Request) {
	userID := chi.URLParam(r, "user_id")
	apiID := chi.URLParam(r, "api_id")

	usage, err := h.svc.Authorize(r.Context(), userID, apiID)
	if err != nil {
		h.setError(r, err)
		return
	}

	canonlog.InfoAddMany(r.Context(), map[string]any{
		"product_id":  usage.ProductID,
		"usage_count": usage.UsageCount,
	})
	wrapper.SetResponse(r, http.StatusOK, map[string]any{
		"message":     "API access allowed",
		"quota":       usage.Quota,
		"usage_count": usage.UsageCount,
		"user_id":     usage.UserID,
		"api_id":      usage.APIID,
		"product_id":  usage.ProductID,
	})
}

// SetQuota sets the usage ceiling for an API.
func (h *Handlers) SetQuota(_ http.ResponseWriter, r *http.Request) {
	apiID := chi.URLParam(r, "api_id")

	var req setQuotaRequest
	if !bind.JSON(r, &req) {
		return
	}

	if err := h.svc.SetQuota(r.Context(), apiID, req.Quota); err != nil {
		h.setError(r, err)
		return
	}

	canonlog.InfoAddMany(r.Context(), map[string]any{
		"api_id": apiID,
		"quota":  req.Quota,
	})
	wrapper.SetResponse(r, http.StatusOK, map[string]any{
		"message": "Quota set successfully",
		"api_id":  apiID,
		"quota":   req.Quota,
	})
}

// GetQuota reports the effective ceiling for an API.
func (h *Handlers) GetQuota(_ http.ResponseWriter, r *http.Request) {
	apiID := chi.URLParam(r, "api_id")

	limit, isDefault, err := h.svc.GetQuota(r.Context(), apiID)
	if err != nil {
		h.setError(r, err)
		return
	}

	wrapper.SetResponse(r, http.StatusOK, map[string]any{
		"api_id":  apiID,
		"quota":   limit,
		"default": isDefault,
	})
}

// Health answers 200 while the backing store is reachable.
func (h *Handlers) Health(_ http.ResponseWriter, r *http.Request) {
	if err := h.svc.Healthy(r.Context()); err != nil {
		wrapper.SetError(r, wrapper.ErrServiceUnavailable.With("Store unreachable"))
		return
	}
	wrapper.SetResponse(r, http.StatusOK, map[string]string{"status": "ok"})
}

// setError maps service errors onto the API error catalog. Domain
// rejections keep the legacy response messages; anything else is a store
// failure and answers 503.
func (h *Handlers) setError(r *http.Request, err error) {
	switch {
	case errors.Is(err, quota.ErrProductNotFound):
		wrapper.SetError(r, wrapper.ErrProductNotFound)
	case errors.Is(err, quota.ErrNotSubscribed):
		wrapper.SetError(r, wrapper.ErrNotSubscribed)
	case errors.Is(err, quota.ErrAPINotInProduct):
		wrapper.SetError(r, wrapper.ErrAPINotInProduct)
	case errors.Is(err, quota.ErrQuotaExceeded):
		wrapper.SetError(r, wrapper.ErrQuotaExceeded)
	default:
		canonlog.ErrorAdd(r.Context(), err)
		wrapper.SetError(r, wrapper.ErrServiceUnavailable.With("Store unavailable"))
	}
}
