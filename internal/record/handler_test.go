package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"mime"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"regexp"
	"strings"
	"testing"
	"time"

	ledgerRepository "meditrust/internal/ledger/repository"
	ledgerService "meditrust/internal/ledger/service"
	"meditrust/internal/record/model"
	"meditrust/internal/record/repository"
	"meditrust/internal/record/service"
	"meditrust/internal/storage"
	"meditrust/middleware"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/syndtr/goleveldb/leveldb"
	leveldbStorage "github.com/syndtr/goleveldb/leveldb/storage"
)

const (
	patient = "0x70997970c51812dc3a010c7d01b50e0d17dc79c8"
	doctor  = "0x3c44cdddb6a900fa2b585dd299e03d12fa4293bc"
)

var recordColumns = []string{"id", "cid", "owner", "file_name", "content_type", "size", "tx_hash", "created_at"}

func newTestHandler(t *testing.T, maxUpload int64) (*RecordHandler, sqlmock.Sqlmock) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	ldb, err := leveldb.Open(leveldbStorage.NewMemStorage(), nil)
	require.NoError(t, err)
	store, err := storage.New(ldb, "storage-secret")
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	ledger := ledgerService.NewLedgerService(ledgerRepository.NewLedgerRepository(db))
	svc := service.NewRecordService(repository.NewRecordRepository(db), store, ledger, nil)
	return NewRecordHandler(svc, maxUpload), mock
}

func as(address string, r *http.Request) *http.Request {
	return r.WithContext(context.WithValue(r.Context(), middleware.AddressKey, address))
}

func multipartBody(t *testing.T, name string, content []byte) (*bytes.Buffer, string) {
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	part, err := mw.CreateFormFile("file", name)
	require.NoError(t, err)
	_, err = part.Write(content)
	require.NoError(t, err)
	require.NoError(t, mw.Close())
	return &body, mw.FormDataContentType()
}

func TestUploadRecordHandler(t *testing.T) {
	h, mock := newTestHandler(t, 1<<20)
	content := []byte("Patient: stable. Follow-up in 6 weeks.")

	mock.ExpectQuery(regexp.QuoteMeta("INSERT INTO records")).
		WithArgs(sqlmock.AnyArg(), patient, "notes.txt", "text/plain; charset=utf-8", int64(len(content))).
		WillReturnRows(sqlmock.NewRows([]string{"id", "created_at"}).AddRow(5, time.Now()))
	mock.ExpectQuery(regexp.QuoteMeta("FROM ledger_entries ORDER BY seq DESC LIMIT 1")).
		WillReturnRows(sqlmock.NewRows([]string{"seq", "kind", "record_id", "actor", "subject", "cid", "prev_hash", "hash", "created_at"}))
	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO ledger_entries")).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()
	mock.ExpectExec(regexp.QuoteMeta("UPDATE records SET tx_hash")).
		WillReturnResult(sqlmock.NewResult(0, 1))

	body, contentType := multipartBody(t, "notes.txt", content)
	req := as(patient, httptest.NewRequest(http.MethodPost, "/api/records/upload", body))
	req.Header.Set("Content-Type", contentType)
	rec := httptest.NewRecorder()
	h.UploadRecord(rec, req)

	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var resp model.UploadResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, int64(5), resp.RecordID)
	assert.True(t, strings.HasPrefix(resp.CID, "Qm"))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestUploadRecordTooLarge(t *testing.T) {
	h, mock := newTestHandler(t, 1024)

	body, contentType := multipartBody(t, "scan.bin", bytes.Repeat([]byte{0x42}, 4096))
	req := as(patient, httptest.NewRequest(http.MethodPost, "/api/records/upload", body))
	req.Header.Set("Content-Type", contentType)
	rec := httptest.NewRecorder()
	h.UploadRecord(rec, req)

	assert.Equal(t, http.StatusRequestEntityTooLarge, rec.Code)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestUploadRecordMissingFile(t *testing.T) {
	h, _ := newTestHandler(t, 1<<20)
	req := as(patient, httptest.NewRequest(http.MethodPost, "/api/records/upload", strings.NewReader("")))
	rec := httptest.NewRecorder()
	h.UploadRecord(rec, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestGrantAccessStatusCodes(t *testing.T) {
	h, mock := newTestHandler(t, 1<<20)

	// Unknown record.
	mock.ExpectQuery(regexp.QuoteMeta("FROM records WHERE id = $1")).
		WithArgs(int64(42)).
		WillReturnRows(sqlmock.NewRows(recordColumns))
	rec := httptest.NewRecorder()
	h.GrantAccess(rec, as(patient, httptest.NewRequest(http.MethodPost, "/api/records/grant",
		strings.NewReader(`{"record_id":42,"address":"`+doctor+`"}`))))
	assert.Equal(t, http.StatusNotFound, rec.Code)

	// Caller is not the owner.
	mock.ExpectQuery(regexp.QuoteMeta("FROM records WHERE id = $1")).
		WithArgs(int64(1)).
		WillReturnRows(sqlmock.NewRows(recordColumns).AddRow(1, "QmCid", patient, "a.pdf", "application/pdf", 1, "0x1", time.Now()))
	rec = httptest.NewRecorder()
	h.GrantAccess(rec, as(doctor, httptest.NewRequest(http.MethodPost, "/api/records/grant",
		strings.NewReader(`{"record_id":1,"address":"`+doctor+`"}`))))
	assert.Equal(t, http.StatusForbidden, rec.Code)

	// Malformed grantee.
	rec = httptest.NewRecorder()
	h.GrantAccess(rec, as(patient, httptest.NewRequest(http.MethodPost, "/api/records/grant",
		strings.NewReader(`{"record_id":1,"address":"0xnope"}`))))
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	// Wrong method.
	rec = httptest.NewRecorder()
	h.GrantAccess(rec, as(patient, httptest.NewRequest(http.MethodGet, "/api/records/grant", nil)))
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCheckAccessHandler(t *testing.T) {
	h, mock := newTestHandler(t, 1<<20)

	mock.ExpectQuery(regexp.QuoteMeta("FROM records WHERE id = $1")).
		WithArgs(int64(1)).
		WillReturnRows(sqlmock.NewRows(recordColumns).AddRow(1, "QmCid", patient, "a.pdf", "application/pdf", 1, "0x1", time.Now()))
	mock.ExpectQuery(regexp.QuoteMeta("SELECT EXISTS(SELECT 1 FROM access_grants")).
		WithArgs(int64(1), doctor).
		WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(true))

	rec := httptest.NewRecorder()
	h.CheckAccess(rec, as(patient, httptest.NewRequest(http.MethodGet,
		"/api/records/access?recordId=1&address=0x3C44CdDdB6a900fa2b585dd299e03d12FA4293BC", nil)))

	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"has_access":true,"is_owner":false}`, rec.Body.String())
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRecordIDParamValidation(t *testing.T) {
	h, _ := newTestHandler(t, 1<<20)
	for _, target := range []string{"/api/records/download", "/api/records/download?recordId=abc", "/api/records/download?recordId=-1"} {
		rec := httptest.NewRecorder()
		h.Download(rec, as(patient, httptest.NewRequest(http.MethodGet, target, nil)))
		assert.Equal(t, http.StatusBadRequest, rec.Code, target)
	}
}

func TestDownloadHandler(t *testing.T) {
	h, mock := newTestHandler(t, 1<<20)
	put, err := h.Service.Store.Put([]byte("ECG trace"))
	require.NoError(t, err)

	mock.ExpectQuery(regexp.QuoteMeta("FROM records WHERE id = $1")).
		WithArgs(int64(2)).
		WillReturnRows(sqlmock.NewRows(recordColumns).AddRow(2, put.CID, patient, "échographie ecg.txt", "text/plain", 9, "0x2", time.Now()))

	rec := httptest.NewRecorder()
	h.Download(rec, as(patient, httptest.NewRequest(http.MethodGet, "/api/records/download?recordId=2", nil)))

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "ECG trace", rec.Body.String())
	assert.Equal(t, "text/plain", rec.Header().Get("Content-Type"))
	assert.Equal(t, put.CID, rec.Header().Get("X-Content-CID"))
	assert.Equal(t, "nosniff", rec.Header().Get("X-Content-Type-Options"))

	disposition, params, err := mime.ParseMediaType(rec.Header().Get("Content-Disposition"))
	require.NoError(t, err)
	assert.Equal(t, "attachment", disposition)
	assert.Equal(t, "échographie ecg.txt", params["filename"])
	assert.NotContains(t, rec.Header().Get("Content-Disposition"), `\u`)
	assert.NoError(t, mock.ExpectationsWereMet())
}
