/**
 * @description
 * Operator authentication for the ops routes. Tokens are HS256 JWTs carrying an
 * "ops" or "admin" role; the subject is placed on the request context.
 *
 * @dependencies
 * - github.com/golang-jwt/jwt/v5: token parsing and signing.
 */

package api

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// OperatorContextKey is a custom type for the context key to avoid collisions.
type OperatorContextKey string

const operatorKey OperatorContextKey = "operator"

// OpsClaims are the claims carried by an operator token.
type OpsClaims struct {
	Roles []string `json:"roles"`
	jwt.RegisteredClaims
}

func (c OpsClaims) hasOpsRole() bool {
	for _, role := range c.Roles {
		switch strings.ToLower(strings.TrimSpace(role)) {
		case "ops", "admin":
			return true
		}
	}
	return false
}

// OpsAuthMiddleware validates operator tokens. With an empty secret every request passes.
func OpsAuthMiddleware(secret string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if secret == "" {
				next.ServeHTTP(w, r)
				return
			}

			authHeader := r.Header.Get("Authorization")
			if authHeader == "" {
				http.Error(w, "Authorization header required", http.StatusUnauthorized)
				return
			}
			tokenString := strings.TrimPrefix(authHeader, "Bearer ")
			if tokenString == authHeader {
				http.Error(w, "Invalid Authorization header format", http.StatusUnauthorized)
				return
			}

			claims := &OpsClaims{}
			token, err := jwt.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (interface{}, error) {
				if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
					return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
				}
				return []byte(secret), nil
			})
			if err != nil || !token.Valid {
				http.Error(w, "Invalid token", http.StatusUnauthorized)
				return
			}
			if !claims.hasOpsRole() {
				http.Error(w, "Operator role required", http.StatusForbidden)
				return
			}

			ctx := context.WithValue(r.Context(), operatorKey, claims.Subject)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// GetOperator returns the authenticated operator, if any.
func GetOperator(ctx context.Context) (string, bool) {
	operator, ok := ctx.Value(operatorKey).(string)
	return operator, ok
}

// IssueOpsToken signs an operator token valid for ttl.
func IssueOpsToken(secret, subject string, ttl time.Duration) (string, error) {
	now := time.Now()
	claims := OpsClaims{
		Roles: []string{"ops"},
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   subject,
			Issuer:    "wematrust-simctl",
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
}
