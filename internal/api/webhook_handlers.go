package api

import (
	"io"
	"net/http"

	"github.com/go-chi/chi/v5"
)

// PaymentWebhook hands the raw body to the gateway; signature checks need
// the exact bytes that were signed.
func (h *Handlers) PaymentWebhook(w http.ResponseWriter, r *http.Request) {
	payload, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	if err := h.cmdHandler.HandleGatewayWebhook(r.Context(), chi.URLParam(r, "gateway"), payload, r.Header); err != nil {
		h.handleError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]bool{"received": true})
}
