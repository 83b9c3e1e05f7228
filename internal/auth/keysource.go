package auth

import (
	"context"
	"crypto/rsa"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// ErrNoPublicKey is returned when no verification key is available.
var ErrNoPublicKey = errors.New("public key unavailable")

// KeySource supplies the token verification key.
type KeySource interface {
	PublicKey(ctx context.Context) (*rsa.PublicKey, error)
	Invalidate()
}

// HTTPKeySource fetches the identity provider's realm document, which carries
// the base64 DER public key under "public_key". The key is fetched on first
// use and cached until Invalidate. Failed fetches are not cached.
type HTTPKeySource struct {
	uri    string
	client *http.Client

	mu  sync.Mutex
	key *rsa.PublicKey
}

// NewHTTPKeySource creates a key source for uri. An empty uri never yields a key.
func NewHTTPKeySource(uri string, client *http.Client) *HTTPKeySource {
	if client == nil {
		client = &http.Client{Timeout: 10 * time.Second}
	}
	return &HTTPKeySource{uri: uri, client: client}
}

func (s *HTTPKeySource) PublicKey(ctx context.Context) (*rsa.PublicKey, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.key != nil {
		return s.key, nil
	}
	if s.uri == "" {
		return nil, ErrNoPublicKey
	}
	key, err := s.fetch(ctx)
	if err != nil {
		return nil, err
	}
	s.key = key
	return key, nil
}

// Invalidate drops the cached key so the next request refetches it.
func (s *HTTPKeySource) Invalidate() {
	s.mu.Lock()
	s.key = nil
	s.mu.Unlock()
}

func (s *HTTPKeySource) fetch(ctx context.Context) (*rsa.PublicKey, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.uri, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrNoPublicKey, err)
	}
	resp, err := s.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrNoPublicKey, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w: key endpoint returned %d", ErrNoPublicKey, resp.StatusCode)
	}
	var doc struct {
		PublicKey string `json:"public_key"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&doc); err != nil {
		return nil, fmt.Errorf("%w: decode key document: %v", ErrNoPublicKey, err)
	}
	if doc.PublicKey == "" {
		return nil, fmt.Errorf("%w: key document has no public_key", ErrNoPublicKey)
	}
	return ParsePublicKey(doc.PublicKey)
}

// ParsePublicKey parses a base64 DER public key as published by the identity provider.
func ParsePublicKey(b64 string) (*rsa.PublicKey, error) {
	pemKey := "-----BEGIN PUBLIC KEY-----\n" + b64 + "\n-----END PUBLIC KEY-----"
	key, err := jwt.ParseRSAPublicKeyFromPEM([]byte(pemKey))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrNoPublicKey, err)
	}
	return key, nil
}

// StaticKeySource always returns the same key. It is useful when the key is
// configured locally.
type StaticKeySource struct {
	Key *rsa.PublicKey
}

func (s StaticKeySource) PublicKey(context.Context) (*rsa.PublicKey, error) {
	if s.Key == nil {
		return nil, ErrNoPublicKey
	}
	return s.Key, nil
}

func (StaticKeySource) Invalidate() {}
