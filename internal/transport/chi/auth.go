package chi

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"github.com/golang-jwt/jwt/v5"
	"go.uber.org/zap"

	"github.com/kailas-cloud/scout/internal/domain/discovery/query"
	"github.com/kailas-cloud/scout/internal/logger"
)

// exemptPaths are routes that bypass authentication (health, metrics).
var exemptPaths = map[string]struct{}{
	"/health":  {},
	"/metrics": {},
}

// Claims are the bearer token claims. Subject is the requester id.
type Claims struct {
	Role string `json:"role"`
	jwt.RegisteredClaims
}

type requesterKey struct{}

// ContextWithRequester stores the resolved requester in the context.
func ContextWithRequester(ctx context.Context, req query.Requester) context.Context {
	return context.WithValue(ctx, requesterKey{}, req)
}

// RequesterFromContext returns the requester resolved by BearerAuthMiddleware.
func RequesterFromContext(ctx context.Context) (query.Requester, bool) {
	req, ok := ctx.Value(requesterKey{}).(query.Requester)
	return req, ok
}

// BearerAuthMiddleware validates HS256 bearer tokens and resolves the requester.
// An unknown or missing role claim resolves to a normal requester.
func BearerAuthMiddleware(secret []byte, issuer string) func(http.Handler) http.Handler {
	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
	}
	if issuer != "" {
		opts = append(opts, jwt.WithIssuer(issuer))
	}
	parser := jwt.NewParser(opts...)

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if _, ok := exemptPaths[r.URL.Path]; ok {
				next.ServeHTTP(w, r)
				return
			}

			auth := r.Header.Get("Authorization")
			if auth == "" {
				writeError(w, http.StatusUnauthorized, ErrorCodeUnauthorized, "missing authorization header")
				return
			}

			const bearerPrefix = "Bearer "
			if !strings.HasPrefix(auth, bearerPrefix) {
				writeError(w, http.StatusUnauthorized,
					ErrorCodeUnauthorized, "authorization header must use Bearer scheme")
				return
			}

			claims, err := parseToken(parser, auth[len(bearerPrefix):], secret)
			if err != nil {
				logger.FromContext(r.Context()).Debug("Rejected bearer token", zap.Error(err))
				writeError(w, http.StatusUnauthorized, ErrorCodeUnauthorized, "invalid token")
				return
			}

			req := query.Requester{ID: claims.Subject, Role: query.ParseRole(claims.Role)}
			ctx := ContextWithRequester(r.Context(), req)
			ctx = logger.With(ctx, zap.String("requester_id", req.ID), zap.String("role", string(req.Role)))
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func parseToken(parser *jwt.Parser, tokenString string, secret []byte) (*Claims, error) {
	token, err := parser.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (any, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return secret, nil
	})
	if err != nil {
		return nil, fmt.Errorf("parse token: %w", err)
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return nil, fmt.Errorf("invalid token claims")
	}
	if claims.Subject == "" {
		return nil, fmt.Errorf("token has no subject")
	}
	return claims, nil
}
