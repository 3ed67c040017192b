package handlers

import (
	"context"
	"io"
	"net/http"
	"strconv"
	"strings"

	"housing-backend/internal/middleware"
	"housing-backend/internal/services"
	"housing-backend/pkg/utils"
)

const maxImportSize = 10 << 20

type PaymentImporter interface {
	ImportFile(ctx context.Context, r io.Reader, commit bool, actorID *int) (*services.ImportReport, error)
}

type PaymentHandler struct {
	Service PaymentImporter
}

func NewPaymentHandler(s PaymentImporter) *PaymentHandler {
	return &PaymentHandler{Service: s}
}

// Import takes the statement either as the raw body or as the "file" field of
// a multipart form. Without ?commit=true it is a dry run.
func (h *PaymentHandler) Import(w http.ResponseWriter, r *http.Request) {
	commit, _ := strconv.ParseBool(r.URL.Query().Get("commit"))
	r.Body = http.MaxBytesReader(w, r.Body, maxImportSize)

	var body io.Reader = r.Body
	if strings.HasPrefix(r.Header.Get("Content-Type"), "multipart/form-data") {
		file, _, err := r.FormFile("file")
		if err != nil {
			utils.Error(w, http.StatusBadRequest, "file field required")
			return
		}
		defer file.Close()
		body = file
	}

	report, err := h.Service.ImportFile(r.Context(), body, commit, middleware.ActorFromContext(r.Context()))
	if err != nil {
		writeError(w, r, err)
		return
	}
	utils.JSON(w, http.StatusOK, report)
}
