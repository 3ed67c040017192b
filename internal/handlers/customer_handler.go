package handlers

import (
	"context"
	"encoding/json"
	"net/http"

	"housing-backend/internal/models"
	"housing-backend/internal/services"
	"housing-backend/internal/timeutil"
	"housing-backend/pkg/utils"
)

type CustomerOps interface {
	GetCustomer(ctx context.Context, id int) (*models.Customer, error)
	UpdateMandate(ctx context.Context, id int, req services.MandateRequest) (*models.Customer, error)
	Balance(ctx context.Context, id int) (*services.Balance, error)
}

type CustomerHandler struct {
	Service CustomerOps
}

func NewCustomerHandler(s CustomerOps) *CustomerHandler {
	return &CustomerHandler{Service: s}
}

func (h *CustomerHandler) GetCustomer(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	customer, err := h.Service.GetCustomer(r.Context(), id)
	if err != nil {
		writeError(w, r, err)
		return
	}
	utils.JSON(w, http.StatusOK, customer)
}

func (h *CustomerHandler) Balance(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	balance, err := h.Service.Balance(r.Context(), id)
	if err != nil {
		writeError(w, r, err)
		return
	}
	utils.JSON(w, http.StatusOK, map[string]any{
		"customer_id": balance.CustomerID,
		"balance":     balance.Balance.StringFixed(2),
	})
}

// mandateBody carries the date as YYYY-MM-DD.
type mandateBody struct {
	IBAN        string `json:"iban"`
	MandateID   string `json:"mandate_id"`
	MandateDate string `json:"mandate_date"`
}

func (h *CustomerHandler) UpdateMandate(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	var body mandateBody
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		utils.Error(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	req := services.MandateRequest{IBAN: body.IBAN, MandateID: body.MandateID}
	if body.MandateDate != "" {
		date, err := timeutil.ParseDate(body.MandateDate)
		if err != nil {
			writeError(w, r, &models.ValidationError{Field: "sepa_mandate_date", Message: "expected YYYY-MM-DD"})
			return
		}
		req.MandateDate = &date
	}

	customer, err := h.Service.UpdateMandate(r.Context(), id, req)
	if err != nil {
		writeError(w, r, err)
		return
	}
	utils.JSON(w, http.StatusOK, customer)
}
