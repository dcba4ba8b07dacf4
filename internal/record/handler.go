package handler

import (
	"encoding/json"
	"errors"
	"io"
	"meditrust/internal/record/model"
	"meditrust/internal/record/service"
	"meditrust/internal/storage"
	"meditrust/middleware"
	"meditrust/pkg/logger"
	"meditrust/pkg/wallet"
	"mime"
	"net/http"
	"strconv"
)

type RecordHandler struct {
	Service        *service.RecordService
	MaxUploadBytes int64
}

func NewRecordHandler(service *service.RecordService, maxUploadBytes int64) *RecordHandler {
	return &RecordHandler{Service: service, MaxUploadBytes: maxUploadBytes}
}

func (h *RecordHandler) UploadRecord(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, h.MaxUploadBytes)
	file, header, err := r.FormFile("file")
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			http.Error(w, "File too large", http.StatusRequestEntityTooLarge)
			return
		}
		http.Error(w, "Missing file field", http.StatusBadRequest)
		return
	}
	defer file.Close()

	data, err := io.ReadAll(file)
	if err != nil {
		http.Error(w, "Failed to read file", http.StatusBadRequest)
		return
	}

	contentType := header.Header.Get("Content-Type")
	if contentType == "" || contentType == "application/octet-stream" {
		contentType = http.DetectContentType(data)
	}

	owner := middleware.Address(r)
	resp, err := h.Service.UploadRecord(owner, header.Filename, contentType, data)
	if err != nil {
		logger.Sugar.Errorf("Handler: Failed to upload record: %v", err)
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, resp)
}

func (h *RecordHandler) GetMyRecords(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	records, err := h.Service.GetMyRecords(middleware.Address(r))
	if err != nil {
		logger.Sugar.Errorf("Error fetching records: %v", err)
		http.Error(w, "Database error", http.StatusInternalServerError)
		return
	}

	writeJSON(w, http.StatusOK, records)
}

func (h *RecordHandler) GetSharedRecords(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	records, err := h.Service.GetDoctorAccessibleRecords(middleware.Address(r))
	if err != nil {
		logger.Sugar.Errorf("Error fetching shared records: %v", err)
		http.Error(w, "Database error", http.StatusInternalServerError)
		return
	}

	writeJSON(w, http.StatusOK, records)
}

func (h *RecordHandler) GrantAccess(w http.ResponseWriter, r *http.Request) {
	h.changeAccess(w, r, h.Service.GrantAccess)
}

func (h *RecordHandler) RevokeAccess(w http.ResponseWriter, r *http.Request) {
	h.changeAccess(w, r, h.Service.RevokeAccess)
}

func (h *RecordHandler) changeAccess(w http.ResponseWriter, r *http.Request, change func(int64, string, string) (*model.GrantResponse, error)) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req model.GrantRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Address == "" {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	resp, err := change(req.RecordID, middleware.Address(r), req.Address)
	if err != nil {
		logger.Sugar.Warnf("Handler: Access change on record %d failed: %v", req.RecordID, err)
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, resp)
}

func (h *RecordHandler) CheckAccess(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	recordID, ok := recordIDParam(w, r)
	if !ok {
		return
	}

	address := middleware.Address(r)
	if q := r.URL.Query().Get("address"); q != "" {
		normalized, err := wallet.Normalize(q)
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		address = normalized
	}

	resp, err := h.Service.CheckAccess(recordID, address)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, resp)
}

func (h *RecordHandler) ListGrantees(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	recordID, ok := recordIDParam(w, r)
	if !ok {
		return
	}

	grants, err := h.Service.ListGrantees(recordID, middleware.Address(r))
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, grants)
}

func (h *RecordHandler) History(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	recordID, ok := recordIDParam(w, r)
	if !ok {
		return
	}

	txs, err := h.Service.History(recordID, middleware.Address(r))
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, txs)
}

func (h *RecordHandler) Download(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	recordID, ok := recordIDParam(w, r)
	if !ok {
		return
	}

	rec, data, err := h.Service.Download(recordID, middleware.Address(r))
	if err != nil {
		logger.Sugar.Errorf("Handler: Failed to download record %d: %v", recordID, err)
		writeError(w, err)
		return
	}

	contentType := rec.ContentType
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Content-Disposition", mime.FormatMediaType("attachment", map[string]string{"filename": rec.FileName}))
	// The content type was chosen by the uploader.
	w.Header().Set("X-Content-Type-Options", "nosniff")
	w.Header().Set("X-Content-CID", rec.CID)
	w.Write(data)
}

func recordIDParam(w http.ResponseWriter, r *http.Request) (int64, bool) {
	raw := r.URL.Query().Get("recordId")
	if raw == "" {
		http.Error(w, "Missing recordId parameter", http.StatusBadRequest)
		return 0, false
	}
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id < 0 {
		http.Error(w, "Invalid recordId parameter", http.StatusBadRequest)
		return 0, false
	}
	return id, true
}

func writeError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, service.ErrRecordNotFound):
		http.Error(w, "Record not found", http.StatusNotFound)
	case errors.Is(err, service.ErrNotAuthorized):
		http.Error(w, "Not authorized", http.StatusForbidden)
	case errors.Is(err, wallet.ErrInvalidAddress):
		http.Error(w, "Invalid wallet address", http.StatusBadRequest)
	case errors.Is(err, service.ErrEmptyFile), errors.Is(err, storage.ErrEmptyContent):
		http.Error(w, "File is empty", http.StatusBadRequest)
	case errors.Is(err, storage.ErrIntegrity):
		http.Error(w, "Stored content failed integrity check", http.StatusInternalServerError)
	default:
		http.Error(w, "Internal server error", http.StatusInternalServerError)
	}
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
