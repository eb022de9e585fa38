package emergency

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/medrex/zeronet/pkg/types"
)

// RoleAdmin may read every scan event
const RoleAdmin = "admin"

// PatientClaims are the claims of a patient access token
type PatientClaims struct {
	WalletAddress string `json:"wallet_address"`
	Role          string `json:"role,omitempty"`
	jwt.RegisteredClaims
}

// TokenValidator validates HS256 patient tokens
type TokenValidator struct {
	jwtSecret []byte
	issuer    string
}

// NewTokenValidator creates a new token validator. An empty issuer accepts
// any issuer.
func NewTokenValidator(secret, issuer string) *TokenValidator {
	return &TokenValidator{
		jwtSecret: []byte(secret),
		issuer:    issuer,
	}
}

// ValidateJWT validates a JWT token and returns its claims
func (tv *TokenValidator) ValidateJWT(tokenString string) (*PatientClaims, error) {
	opts := []jwt.ParserOption{jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}), jwt.WithExpirationRequired()}
	if tv.issuer != "" {
		opts = append(opts, jwt.WithIssuer(tv.issuer))
	}

	token, err := jwt.ParseWithClaims(tokenString, &PatientClaims{}, func(token *jwt.Token) (interface{}, error) {
		return tv.jwtSecret, nil
	}, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to parse token: %w", err)
	}

	claims, ok := token.Claims.(*PatientClaims)
	if !ok || !token.Valid {
		return nil, fmt.Errorf("invalid token claims")
	}
	if claims.WalletAddress == "" && claims.Role != RoleAdmin {
		return nil, fmt.Errorf("token carries no wallet address")
	}

	return claims, nil
}

// GenerateToken signs a token for walletAddress valid for ttl
func (tv *TokenValidator) GenerateToken(walletAddress, role string, ttl time.Duration) (string, error) {
	now := time.Now()
	claims := &PatientClaims{
		WalletAddress: walletAddress,
		Role:          role,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			Issuer:    tv.issuer,
			Subject:   walletAddress,
		},
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(tv.jwtSecret)
	if err != nil {
		return "", fmt.Errorf("failed to sign token: %w", err)
	}
	return signed, nil
}

type claimsKey struct{}

// ClaimsFromContext returns the claims stored by AuthMiddleware
func ClaimsFromContext(ctx context.Context) (*PatientClaims, bool) {
	claims, ok := ctx.Value(claimsKey{}).(*PatientClaims)
	return claims, ok
}

// AuthMiddleware rejects requests without a valid Bearer token
func (tv *TokenValidator) AuthMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		header := r.Header.Get("Authorization")
		tokenString, found := strings.CutPrefix(header, "Bearer ")
		if !found || tokenString == "" {
			writeError(w, types.NewAuthenticationError(types.ErrCodeUnauthorized, "bearer token required"))
			return
		}

		claims, err := tv.ValidateJWT(tokenString)
		if err != nil {
			writeError(w, types.NewAuthenticationError(types.ErrCodeUnauthorized, "invalid or expired token"))
			return
		}

		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), claimsKey{}, claims)))
	})
}

// canActFor reports whether claims cover walletAddress
func canActFor(claims *PatientClaims, walletAddress string) bool {
	if claims.Role == RoleAdmin {
		return true
	}
	return strings.EqualFold(strings.TrimSpace(claims.WalletAddress), strings.TrimSpace(walletAddress))
}
