// ABOUTME: Static API keys stored as bcrypt hashes, plus a verifier that chains several methods
// ABOUTME: Lets one deployment accept both JWTs and long-lived keys on the same header

package auth

import (
	"errors"
	"fmt"

	"golang.org/x/crypto/bcrypt"
)

// APIKeyVerifier accepts any key matching one of its bcrypt hashes.
type APIKeyVerifier struct {
	hashes [][]byte
}

// NewAPIKeyVerifier creates a verifier from bcrypt hashes as produced by HashAPIKey.
func NewAPIKeyVerifier(hashes []string) (*APIKeyVerifier, error) {
	v := &APIKeyVerifier{}
	for i, h := range hashes {
		if _, err := bcrypt.Cost([]byte(h)); err != nil {
			return nil, fmt.Errorf("api key %d is not a bcrypt hash: %w", i, err)
		}
		v.hashes = append(v.hashes, []byte(h))
	}
	return v, nil
}

// Verify returns "apikey:<n>" for the n-th configured key that matches.
func (v *APIKeyVerifier) Verify(token string) (string, error) {
	if token == "" {
		return "", ErrInvalidToken
	}
	for i, h := range v.hashes {
		if bcrypt.CompareHashAndPassword(h, []byte(token)) == nil {
			return fmt.Sprintf("apikey:%d", i), nil
		}
	}
	return "", ErrInvalidToken
}

// HashAPIKey hashes a plaintext key for the auth.api_keys config list.
func HashAPIKey(key string) (string, error) {
	if key == "" {
		return "", errors.New("api key is empty")
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(key), bcrypt.DefaultCost)
	if err != nil {
		return "", fmt.Errorf("hashing api key: %w", err)
	}
	return string(hash), nil
}

// ChainVerifier tries each verifier in order.
type ChainVerifier []TokenVerifier

// Verify returns the first successful subject. An expired JWT is reported as
// such even when later verifiers also reject the token.
func (c ChainVerifier) Verify(token string) (string, error) {
	err := ErrInvalidToken
	for _, v := range c {
		sub, verr := v.Verify(token)
		if verr == nil {
			return sub, nil
		}
		if errors.Is(verr, ErrExpiredToken) {
			err = verr
		}
	}
	return "", err
}
