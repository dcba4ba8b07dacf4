package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"regexp"
	"strings"
	"testing"
	"time"

	"meditrust/internal/user/model"
	"meditrust/internal/user/repository"
	"meditrust/internal/user/service"
	"meditrust/middleware"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const caller = "0x70997970c51812dc3a010c7d01b50e0d17dc79c8"

func newTestHandler(t *testing.T) (*UserHandler, sqlmock.Sqlmock) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return NewUserHandler(service.NewUserService(repository.NewUserRepository(db))), mock
}

func withCaller(r *http.Request) *http.Request {
	return r.WithContext(context.WithValue(r.Context(), middleware.AddressKey, caller))
}

func TestSetRole(t *testing.T) {
	h, mock := newTestHandler(t)
	mock.ExpectQuery(regexp.QuoteMeta("INSERT INTO users")).
		WithArgs(caller, model.RoleDoctor).
		WillReturnRows(sqlmock.NewRows([]string{"role", "updated_at"}).AddRow(model.RoleDoctor, time.Now()))

	req := withCaller(httptest.NewRequest(http.MethodPost, "/api/users/role", strings.NewReader(`{"role":"doctor"}`)))
	rec := httptest.NewRecorder()
	h.SetRole(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var profile model.Profile
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &profile))
	assert.Equal(t, caller, profile.Address)
	assert.Equal(t, model.RoleDoctor, profile.Role)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSetRoleRejectsUnknownRole(t *testing.T) {
	h, mock := newTestHandler(t)

	req := withCaller(httptest.NewRequest(http.MethodPost, "/api/users/role", strings.NewReader(`{"role":"admin"}`)))
	rec := httptest.NewRecorder()
	h.SetRole(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestGetProfileNotFound(t *testing.T) {
	h, mock := newTestHandler(t)
	mock.ExpectQuery(regexp.QuoteMeta("SELECT role, updated_at FROM users WHERE address = $1")).
		WithArgs(caller).
		WillReturnRows(sqlmock.NewRows([]string{"role", "updated_at"}))

	rec := httptest.NewRecorder()
	h.GetProfile(rec, withCaller(httptest.NewRequest(http.MethodGet, "/api/users/me", nil)))

	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestGetProfileMethodNotAllowed(t *testing.T) {
	h, _ := newTestHandler(t)
	rec := httptest.NewRecorder()
	h.GetProfile(rec, withCaller(httptest.NewRequest(http.MethodDelete, "/api/users/me", nil)))
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}
