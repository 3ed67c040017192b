package handlers

import (
	"errors"
	"net/http"
	"strconv"

	"housing-backend/internal/cache"
	"housing-backend/internal/logger"
	"housing-backend/internal/models"
	"housing-backend/internal/repositories"
	"housing-backend/internal/sepa"
	"housing-backend/pkg/utils"

	"github.com/gorilla/mux"
)

// writeError maps domain errors to status codes. Anything unknown is a 500
// and only logged in full.
func writeError(w http.ResponseWriter, r *http.Request, err error) {
	var verr *models.ValidationError
	var rej *sepa.RejectionError

	switch {
	case errors.Is(err, repositories.ErrNotFound):
		utils.Error(w, http.StatusNotFound, err.Error())
	case errors.As(err, &verr):
		utils.JSON(w, http.StatusBadRequest, map[string]string{"error": verr.Message, "field": verr.Field})
	case errors.Is(err, models.ErrContractClosed),
		errors.Is(err, models.ErrInvoiceAlreadyCancelled),
		errors.Is(err, models.ErrInvoiceImmutable),
		errors.Is(err, models.ErrInvoiceAlreadySent),
		errors.Is(err, models.ErrAlreadyExported),
		errors.Is(err, models.ErrCursorRegression),
		errors.Is(err, cache.ErrLocked):
		utils.Error(w, http.StatusConflict, err.Error())
	case errors.Is(err, sepa.ErrEmptyBatch),
		errors.Is(err, models.ErrEmptyInvoice),
		errors.As(err, &rej):
		utils.Error(w, http.StatusUnprocessableEntity, err.Error())
	default:
		log := logger.WithComponent("http")
		log.Error().Err(err).Str("method", r.Method).Str("path", r.URL.Path).Msg("request failed")
		utils.Error(w, http.StatusInternalServerError, "Internal server error")
	}
}

// pathID parses the {id} route variable.
func pathID(w http.ResponseWriter, r *http.Request) (int, bool) {
	id, err := strconv.Atoi(mux.Vars(r)["id"])
	if err != nil || id <= 0 {
		utils.Error(w, http.StatusBadRequest, "Invalid ID")
		return 0, false
	}
	return id, true
}
