package handlers

import (
	"context"
	"net/http"
	"strconv"

	"github.com/baechuer/real-time-ressys/services/composite-service/internal/domain"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/render"
)

type CompositeService interface {
	GetAggregate(ctx context.Context, productID, delay, faultPercent int) (*domain.Aggregate, error)
	CreateAggregate(ctx context.Context, agg domain.Aggregate) error
	DeleteAggregate(ctx context.Context, productID int) error
}

type CompositeHandler struct {
	svc CompositeService
}

func NewCompositeHandler(svc CompositeService) *CompositeHandler {
	return &CompositeHandler{svc: svc}
}

// GetAggregate handles GET /product-composite/{productId}?delay=&faultPercent=
func (h *CompositeHandler) GetAggregate(w http.ResponseWriter, r *http.Request) {
	productID, err := strconv.Atoi(chi.URLParam(r, "productId"))
	if err != nil {
		sendError(w, r, http.StatusBadRequest, "Type mismatch.")
		return
	}

	delay, ok := queryInt(r, "delay")
	if !ok {
		sendError(w, r, http.StatusBadRequest, "Type mismatch.")
		return
	}
	faultPercent, ok := queryInt(r, "faultPercent")
	if !ok {
		sendError(w, r, http.StatusBadRequest, "Type mismatch.")
		return
	}

	agg, err := h.svc.GetAggregate(r.Context(), productID, delay, faultPercent)
	if err != nil {
		writeError(w, r, err)
		return
	}

	render.JSON(w, r, agg)
}

// CreateAggregate handles POST /product-composite
func (h *CompositeHandler) CreateAggregate(w http.ResponseWriter, r *http.Request) {
	var agg domain.Aggregate
	if err := render.DecodeJSON(r.Body, &agg); err != nil {
		sendError(w, r, http.StatusBadRequest, "Malformed request body")
		return
	}

	if err := h.svc.CreateAggregate(r.Context(), agg); err != nil {
		writeError(w, r, err)
		return
	}

	w.WriteHeader(http.StatusAccepted)
}

// DeleteAggregate handles DELETE /product-composite/{productId}
func (h *CompositeHandler) DeleteAggregate(w http.ResponseWriter, r *http.Request) {
	productID, err := strconv.Atoi(chi.URLParam(r, "productId"))
	if err != nil {
		sendError(w, r, http.StatusBadRequest, "Type mismatch.")
		return
	}

	if err := h.svc.DeleteAggregate(r.Context(), productID); err != nil {
		writeError(w, r, err)
		return
	}

	w.WriteHeader(http.StatusAccepted)
}

// queryInt reads an optional integer query parameter; absent means zero.
func queryInt(r *http.Request, key string) (int, bool) {
	raw := r.URL.Query().Get(key)
	if raw == "" {
		return 0, true
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return 0, false
	}
	return v, true
}
