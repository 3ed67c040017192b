package handlers

import (
	"context"
	"net/http"

	"housing-backend/internal/middleware"
	"housing-backend/internal/models"
	"housing-backend/internal/services"
	"housing-backend/pkg/utils"
)

type Biller interface {
	BillAll(ctx context.Context, actorID *int) (*services.BillingReport, error)
	BillContact(ctx context.Context, customerID int, job *models.Job, actorID *int) (*models.Invoice, error)
	BillContract(ctx context.Context, contractID int, actorID *int) (*models.Invoice, error)
}

type BillingHandler struct {
	Service Biller
}

func NewBillingHandler(s Biller) *BillingHandler {
	return &BillingHandler{Service: s}
}

// billResult is the answer of the single-customer and single-contract
// endpoints. Invoice is null when nothing was due.
type billResult struct {
	Invoice *models.Invoice `json:"invoice"`
}

func (h *BillingHandler) Run(w http.ResponseWriter, r *http.Request) {
	report, err := h.Service.BillAll(r.Context(), middleware.ActorFromContext(r.Context()))
	if err != nil {
		writeError(w, r, err)
		return
	}
	utils.JSON(w, http.StatusOK, report)
}

func (h *BillingHandler) BillContact(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	inv, err := h.Service.BillContact(r.Context(), id, nil, middleware.ActorFromContext(r.Context()))
	if err != nil {
		writeError(w, r, err)
		return
	}
	utils.JSON(w, http.StatusOK, billResult{Invoice: inv})
}

func (h *BillingHandler) BillContract(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	inv, err := h.Service.BillContract(r.Context(), id, middleware.ActorFromContext(r.Context()))
	if err != nil {
		writeError(w, r, err)
		return
	}
	utils.JSON(w, http.StatusOK, billResult{Invoice: inv})
}
