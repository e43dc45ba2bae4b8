package auth

import (
	"comm-rendezvous/errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

const issuer = "comm-rendezvous"

type Role string

const (
	RoleScheduler Role = "scheduler"
	RoleWorker    Role = "worker"
	RoleClient    Role = "client"
)

// ClusterClaims defines the data carried by a token exchanged between cluster processes.
type ClusterClaims struct {
	Subject string `json:"subject"`
	Role    Role   `json:"role"`
	jwt.RegisteredClaims
}

// TokenManager signs and checks tokens with the secret shared by the whole cluster.
type TokenManager struct {
	secret   []byte
	duration time.Duration
}

func NewTokenManager(secret string, duration time.Duration) *TokenManager {
	return &TokenManager{secret: []byte(secret), duration: duration}
}

// Generate creates a signed token for the named process.
func (m *TokenManager) Generate(subject string, role Role) (string, error) {
	now := time.Now()
	claims := &ClusterClaims{
		Subject: subject,
		Role:    role,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(now.Add(m.duration)),
			IssuedAt:  jwt.NewNumericDate(now),
			Issuer:    issuer,
		},
	}
	// HS256: every process holds the same secret.
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(m.secret)
}

// Validate parses a token and checks its signature, issuer and expiration.
func (m *TokenManager) Validate(tokenString string) (*ClusterClaims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &ClusterClaims{}, func(token *jwt.Token) (any, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", token.Header["alg"])
		}
		return m.secret, nil
	}, jwt.WithIssuer(issuer))
	if err != nil {
		return nil, fmt.Errorf("%w: %w", errors.ErrUnauthenticated, err)
	}

	if claims, ok := token.Claims.(*ClusterClaims); ok && token.Valid {
		return claims, nil
	}
	return nil, fmt.Errorf("%w: %w", errors.ErrUnauthenticated, jwt.ErrSignatureInvalid)
}
