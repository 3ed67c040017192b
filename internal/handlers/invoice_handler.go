package handlers

import (
	"context"
	"errors"
	"net/http"
	"path"

	"housing-backend/internal/archive"
	"housing-backend/internal/middleware"
	"housing-backend/internal/models"
	"housing-backend/internal/services"
	"housing-backend/pkg/utils"
)

type InvoiceOps interface {
	Get(ctx context.Context, id int) (*models.Invoice, error)
	Cancel(ctx context.Context, invoiceID int, actorID *int) (*models.Invoice, error)
	GeneratePDF(ctx context.Context, invoiceID int) (string, error)
	Send(ctx context.Context, invoiceID int) (bool, error)
	SendUnsent(ctx context.Context, actorID *int) (*services.SendReport, error)
}

// FileGetter reads archived files.
type FileGetter interface {
	Get(ctx context.Context, key string) ([]byte, error)
}

type InvoiceHandler struct {
	Service InvoiceOps
	Files   FileGetter
}

func NewInvoiceHandler(s InvoiceOps, files FileGetter) *InvoiceHandler {
	return &InvoiceHandler{Service: s, Files: files}
}

// GetInvoice retrieves an invoice by ID
func (h *InvoiceHandler) GetInvoice(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	inv, err := h.Service.Get(r.Context(), id)
	if err != nil {
		writeError(w, r, err)
		return
	}
	utils.JSON(w, http.StatusOK, invoiceView(inv))
}

// invoiceView adds the computed fields a client needs.
func invoiceView(inv *models.Invoice) map[string]any {
	return map[string]any{
		"invoice": inv,
		"number":  inv.Number(),
		"amount":  inv.Amount().StringFixed(2),
	}
}

func (h *InvoiceHandler) GeneratePDF(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	key, err := h.Service.GeneratePDF(r.Context(), id)
	if err != nil {
		writeError(w, r, err)
		return
	}
	utils.JSON(w, http.StatusOK, map[string]string{"path": key})
}

// DownloadPDF serves the archived PDF of an invoice.
func (h *InvoiceHandler) DownloadPDF(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	inv, err := h.Service.Get(r.Context(), id)
	if err != nil {
		writeError(w, r, err)
		return
	}
	if inv.Path == nil {
		utils.Error(w, http.StatusNotFound, "PDF has not been generated yet")
		return
	}
	data, err := h.Files.Get(r.Context(), *inv.Path)
	if errors.Is(err, archive.ErrNotFound) {
		utils.Error(w, http.StatusNotFound, "PDF is missing from the archive")
		return
	}
	if err != nil {
		writeError(w, r, err)
		return
	}
	w.Header().Set("Content-Type", "application/pdf")
	w.Header().Set("Content-Disposition", `inline; filename="`+path.Base(*inv.Path)+`"`)
	w.Write(data)
}

func (h *InvoiceHandler) Send(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	sent, err := h.Service.Send(r.Context(), id)
	if err != nil {
		writeError(w, r, err)
		return
	}
	utils.JSON(w, http.StatusOK, map[string]bool{"sent": sent})
}

func (h *InvoiceHandler) SendUnsent(w http.ResponseWriter, r *http.Request) {
	report, err := h.Service.SendUnsent(r.Context(), middleware.ActorFromContext(r.Context()))
	if err != nil {
		writeError(w, r, err)
		return
	}
	utils.JSON(w, http.StatusOK, report)
}

func (h *InvoiceHandler) Cancel(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	inv, err := h.Service.Cancel(r.Context(), id, middleware.ActorFromContext(r.Context()))
	if err != nil {
		writeError(w, r, err)
		return
	}
	utils.JSON(w, http.StatusOK, invoiceView(inv))
}
