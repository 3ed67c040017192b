package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"housing-backend/internal/middleware"
	"housing-backend/internal/models"
	"housing-backend/internal/sepa"
	"housing-backend/internal/services"
	"housing-backend/pkg/utils"
)

type SepaExporter interface {
	ExportInvoices(ctx context.Context, ids []int, actorID *int) (*services.ExportResult, error)
	ListCandidates(ctx context.Context) ([]*models.Invoice, error)
}

type SepaHandler struct {
	Service SepaExporter
}

func NewSepaHandler(s SepaExporter) *SepaHandler {
	return &SepaHandler{Service: s}
}

type exportRequest struct {
	InvoiceIDs []int `json:"invoice_ids"`
}

func (h *SepaHandler) Candidates(w http.ResponseWriter, r *http.Request) {
	invoices, err := h.Service.ListCandidates(r.Context())
	if err != nil {
		writeError(w, r, err)
		return
	}
	views := make([]map[string]any, 0, len(invoices))
	for _, inv := range invoices {
		views = append(views, invoiceView(inv))
	}
	utils.JSON(w, http.StatusOK, views)
}

// Export answers with the result as JSON, or with the pain.008 file itself
// for ?format=xml.
func (h *SepaHandler) Export(w http.ResponseWriter, r *http.Request) {
	var req exportRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || len(req.InvoiceIDs) == 0 {
		utils.Error(w, http.StatusBadRequest, "invoice_ids required")
		return
	}

	result, err := h.Service.ExportInvoices(r.Context(), req.InvoiceIDs, middleware.ActorFromContext(r.Context()))
	if errors.Is(err, sepa.ErrEmptyBatch) && result != nil {
		utils.JSON(w, http.StatusUnprocessableEntity, map[string]any{
			"error":    err.Error(),
			"rejected": result.Rejected,
		})
		return
	}
	if err != nil {
		writeError(w, r, err)
		return
	}

	if r.URL.Query().Get("format") == "xml" {
		w.Header().Set("Content-Type", "application/xml")
		w.Header().Set("Content-Disposition", `attachment; filename="`+result.MsgID+`.xml"`)
		w.Write(result.XML)
		return
	}
	utils.JSON(w, http.StatusOK, result)
}
