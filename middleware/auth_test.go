package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testSecret = "test-secret"

func signToken(t *testing.T, secret string, claims jwt.MapClaims) string {
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
	require.NoError(t, err)
	return token
}

func echoAddress() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(Address(r)))
	})
}

func TestAuthMiddlewareAcceptsBearerToken(t *testing.T) {
	token := signToken(t, testSecret, jwt.MapClaims{
		"sub": "0x70997970C51812dc3A010C7d01b50e0d17dc79C8",
		"exp": time.Now().Add(time.Hour).Unix(),
	})

	req := httptest.NewRequest(http.MethodGet, "/api/records", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	rec := httptest.NewRecorder()
	AuthMiddleware(testSecret)(echoAddress()).ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "0x70997970c51812dc3a010c7d01b50e0d17dc79c8", rec.Body.String())
}

func TestAuthMiddlewareAcceptsQueryToken(t *testing.T) {
	token := signToken(t, testSecret, jwt.MapClaims{"sub": "0x3c44cdddb6a900fa2b585dd299e03d12fa4293bc"})

	req := httptest.NewRequest(http.MethodGet, "/ws?token="+token, nil)
	rec := httptest.NewRecorder()
	AuthMiddleware(testSecret)(echoAddress()).ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestAuthMiddlewareRejects(t *testing.T) {

	cases := map[string]string{
		"missing":       "",
		"wrong secret":  signToken(t, "other", jwt.MapClaims{"sub": "0x3c44cdddb6a900fa2b585dd299e03d12fa4293bc"}),
		"expired":       signToken(t, testSecret, jwt.MapClaims{"sub": "0x3c44cdddb6a900fa2b585dd299e03d12fa4293bc", "exp": time.Now().Add(-time.Hour).Unix()}),
		"not a wallet":  signToken(t, testSecret, jwt.MapClaims{"sub": "user-123"}),
		"missing sub":   signToken(t, testSecret, jwt.MapClaims{"role": "doctor"}),
		"garbage token": "not.a.jwt",
	}
	for name, token := range cases {
		t.Run(name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/api/records", nil)
			if token != "" {
				req.Header.Set("Authorization", "Bearer "+token)
			}
			rec := httptest.NewRecorder()
			AuthMiddleware(testSecret)(echoAddress()).ServeHTTP(rec, req)
			assert.Equal(t, http.StatusUnauthorized, rec.Code)
		})
	}
}

func TestAuthMiddlewareRejectsWhenSecretMissing(t *testing.T) {
	token := signToken(t, testSecret, jwt.MapClaims{"sub": "0x3c44cdddb6a900fa2b585dd299e03d12fa4293bc"})

	req := httptest.NewRequest(http.MethodGet, "/api/records", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	rec := httptest.NewRecorder()
	AuthMiddleware("")(echoAddress()).ServeHTTP(rec, req)

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestCORSPreflight(t *testing.T) {
	called := false
	h := CORSMiddleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) { called = true }))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodOptions, "/api/records", nil))

	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, "*", rec.Header().Get("Access-Control-Allow-Origin"))
	assert.False(t, called)
}

func TestRequestLoggerSetsRequestID(t *testing.T) {
	h := RequestLogger(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	}))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, http.StatusTeapot, rec.Code)
	assert.Len(t, rec.Header().Get(RequestIDHeader), 36)

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set(RequestIDHeader, "6f1c2a0e-8d8f-4a4e-9a57-3c1b2e4d5f60")
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, "6f1c2a0e-8d8f-4a4e-9a57-3c1b2e4d5f60", rec.Header().Get(RequestIDHeader))
}
