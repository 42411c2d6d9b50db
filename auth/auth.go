// Package auth guards administrative HTTP routes with a shared bearer token.
package auth

import (
	"context"
	"errors"
	"strings"

	"golang.org/x/crypto/bcrypt"
)

var (
	ErrTokenNotFound     = errors.New("auth: token not found")
	ErrTokenInvalidInput = errors.New("auth: invalid token source")
	ErrTokenRejected     = errors.New("auth: token rejected")
	ErrInvalidHash       = errors.New("auth: invalid bcrypt hash")
)

// Principal identifies the caller a token was verified for.
type Principal struct {
	Subject string
}

// Verifier checks a raw bearer token.
type Verifier interface {
	Verify(ctx context.Context, raw string) (Principal, error)
}

// VerifierFunc adapts a function to Verifier.
type VerifierFunc func(ctx context.Context, raw string) (Principal, error)

func (f VerifierFunc) Verify(ctx context.Context, raw string) (Principal, error) {
	return f(ctx, raw)
}

// BcryptVerifier accepts exactly one token whose bcrypt hash is configured,
// so the plain token never has to live in the service's environment.
type BcryptVerifier struct {
	hash    []byte
	subject string
}

// NewBcryptVerifier validates hash up front so a bad deployment fails at
// startup instead of rejecting every request.
func NewBcryptVerifier(hash, subject string) (*BcryptVerifier, error) {
	hash = strings.TrimSpace(hash)
	if _, err := bcrypt.Cost([]byte(hash)); err != nil {
		return nil, errors.Join(ErrInvalidHash, err)
	}
	if subject == "" {
		subject = "admin"
	}
	return &BcryptVerifier{hash: []byte(hash), subject: subject}, nil
}

func (v *BcryptVerifier) Verify(ctx context.Context, raw string) (Principal, error) {
	if err := contextError(ctx); err != nil {
		return Principal{}, err
	}
	if err := bcrypt.CompareHashAndPassword(v.hash, []byte(raw)); err != nil {
		return Principal{}, ErrTokenRejected
	}
	return Principal{Subject: v.subject}, nil
}

// HashToken produces a bcrypt hash suitable for NewBcryptVerifier.
func HashToken(token string, cost int) (string, error) {
	if cost == 0 {
		cost = bcrypt.DefaultCost
	}
	out, err := bcrypt.GenerateFromPassword([]byte(token), cost)
	if err != nil {
		return "", err
	}
	return string(out), nil
}

func contextError(ctx context.Context) error {
	if ctx == nil {
		return nil
	}
	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
		return nil
	}
}
