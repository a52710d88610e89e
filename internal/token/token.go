// Package token issues and validates attempt tokens. The attempt token is
// the opaque identifier handed to the client at session start; every later
// call must present it so the submission correlates with one start event.
package token

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// Claims carried by an attempt token.
type Claims struct {
	AttemptID uuid.UUID `json:"attempt_id"`
	TestID    uuid.UUID `json:"test_id"`
	StudentID int       `json:"student_id"`
	jwt.RegisteredClaims
}

// Issuer signs and validates attempt tokens.
type Issuer struct {
	secret []byte
	expiry time.Duration
}

// NewIssuer creates an Issuer with the given HMAC secret and token lifetime.
func NewIssuer(secret string, expiry time.Duration) *Issuer {
	return &Issuer{secret: []byte(secret), expiry: expiry}
}

// Issue creates a signed attempt token.
func (i *Issuer) Issue(attemptID, testID uuid.UUID, studentID int) (string, error) {
	now := time.Now()
	claims := Claims{
		AttemptID: attemptID,
		TestID:    testID,
		StudentID: studentID,
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(i.expiry)),
		},
	}

	tok := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := tok.SignedString(i.secret)
	if err != nil {
		return "", fmt.Errorf("sign attempt token: %w", err)
	}
	return signed, nil
}

// Validate parses a token string and returns its claims.
func (i *Issuer) Validate(raw string) (*Claims, error) {
	parsed, err := jwt.ParseWithClaims(raw, &Claims{}, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return i.secret, nil
	})
	if err != nil {
		return nil, fmt.Errorf("parse attempt token: %w", err)
	}

	claims, ok := parsed.Claims.(*Claims)
	if !ok || !parsed.Valid {
		return nil, errors.New("invalid attempt token")
	}
	return claims, nil
}
