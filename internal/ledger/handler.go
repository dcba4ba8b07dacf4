package handler

import (
	"encoding/json"
	"meditrust/internal/ledger/service"
	"meditrust/pkg/logger"
	"net/http"
)

type LedgerHandler struct {
	Service *service.LedgerService
}

func NewLedgerHandler(service *service.LedgerService) *LedgerHandler {
	return &LedgerHandler{Service: service}
}

func (h *LedgerHandler) Verify(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	report, err := h.Service.Verify()
	if err != nil {
		logger.Sugar.Errorf("Handler: Failed to verify ledger: %v", err)
		http.Error(w, "Database error", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(report)
}
