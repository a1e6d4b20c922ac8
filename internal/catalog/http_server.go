package catalog

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"
)

type errorResponse struct {
	Error string `json:"error"`
}

// NewHTTPHandler serves cat on the routes HTTPClient calls.
func NewHTTPHandler(cat Catalog, logger *zap.Logger) http.Handler {
	r := chi.NewRouter()

	r.Post(stockPath, func(w http.ResponseWriter, r *http.Request) {
		var req stockRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeJSON(w, logger, http.StatusBadRequest, errorResponse{Error: "invalid JSON body"})
			return
		}
		products, err := cat.CheckStock(r.Context(), req.ProductIDs)
		if err != nil {
			logger.Error("check stock failed", zap.Error(err))
			writeJSON(w, logger, http.StatusInternalServerError, errorResponse{Error: "failed to check stock"})
			return
		}
		if products == nil {
			products = []Product{}
		}
		writeJSON(w, logger, http.StatusOK, stockResponse{Products: products})
	})

	r.Post(verifyPath, func(w http.ResponseWriter, r *http.Request) {
		var req VerifyRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeJSON(w, logger, http.StatusBadRequest, errorResponse{Error: "invalid JSON body"})
			return
		}
		v, err := cat.VerifyPromo(r.Context(), req)
		if err != nil {
			logger.Error("verify promo failed", zap.String("code", req.Code), zap.Error(err))
			writeJSON(w, logger, http.StatusInternalServerError, errorResponse{Error: "failed to verify promo"})
			return
		}
		writeJSON(w, logger, http.StatusOK, v)
	})

	return r
}

func writeJSON(w http.ResponseWriter, logger *zap.Logger, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		logger.Warn("failed to encode response", zap.Error(err))
	}
}
