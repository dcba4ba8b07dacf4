package middleware

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"meditrust/pkg/logger"
	"meditrust/pkg/wallet"

	"github.com/golang-jwt/jwt/v5"
)

type contextKey string

const AddressKey contextKey = "address"

// AuthMiddleware resolves the caller's wallet address from the sub claim of a
// token signed with secret. Handlers never trust an address supplied in the
// request body.
func AuthMiddleware(secret string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return authHandler(secret, next)
	}
}

func authHandler(secret string, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// Browsers can't set headers on WebSocket upgrades, so /ws passes the token in the query.
		tokenString := r.URL.Query().Get("token")

		if tokenString == "" {
			authHeader := r.Header.Get("Authorization")
			tokenString = strings.TrimPrefix(authHeader, "Bearer ")
		}

		if tokenString == "" {
			http.Error(w, "Unauthorized: No token provided", http.StatusUnauthorized)
			return
		}

		token, err := jwt.Parse(tokenString, func(token *jwt.Token) (interface{}, error) {
			if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
				return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
			}
			if secret == "" {
				logger.Sugar.Error("JWT secret not configured.")
				return nil, fmt.Errorf("server is not configured to validate JWTs")
			}
			return []byte(secret), nil
		})

		if err != nil || !token.Valid {
			logger.Sugar.Warnf("Invalid token: %v", err)
			http.Error(w, "Unauthorized: Invalid or expired token", http.StatusUnauthorized)
			return
		}

		claims, ok := token.Claims.(jwt.MapClaims)
		if !ok {
			http.Error(w, "Unauthorized: Could not parse token claims", http.StatusUnauthorized)
			return
		}
		sub, _ := claims["sub"].(string)
		address, err := wallet.Normalize(sub)
		if err != nil {
			http.Error(w, "Unauthorized: Subject is not a wallet address", http.StatusUnauthorized)
			return
		}

		ctx := context.WithValue(r.Context(), AddressKey, address)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// Address returns the authenticated caller set by AuthMiddleware.
func Address(r *http.Request) string {
	address, _ := r.Context().Value(AddressKey).(string)
	return address
}
