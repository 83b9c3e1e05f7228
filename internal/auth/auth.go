// Package auth resolves the caller's identity from an Authorization header.
package auth

import (
	"context"
	"errors"
	"strings"

	"github.com/golang-jwt/jwt/v5"

	"github.com/ucmodeler/modelstore/pkg/errclass"
)

// Status explains why a token was rejected.
type Status string

const (
	StatusValid            Status = "valid"
	StatusPublicKeyMissing Status = "public_key_missing"
	StatusTokenMissing     Status = "token_missing"
	StatusInvalid          Status = "invalid"
)

// UsernameClaim is the token claim carrying the username.
const UsernameClaim = "preferred_username"

// Identity is an authenticated caller.
type Identity struct {
	Username string
	Claims   map[string]any
}

// Authenticator turns an Authorization header into an Identity. fallbackUser is
// the username a test client asked for; only authenticators that do not
// verify tokens honor it.
type Authenticator interface {
	Authenticate(ctx context.Context, header, fallbackUser string) (Identity, error)
}

func authError(s Status) error {
	return errclass.ErrAuth.WithMessagef("token status = %s", s)
}

// StatusOf extracts the rejection status from an authentication error.
func StatusOf(err error) Status {
	if err == nil {
		return StatusValid
	}
	var me *errclass.ModelError
	if errors.As(err, &me) && me.Code == errclass.ErrAuth.Code {
		return Status(strings.TrimPrefix(me.Message, "token status = "))
	}
	return StatusInvalid
}

// JWTAuthenticator verifies RS256 bearer tokens against a public key.
type JWTAuthenticator struct {
	keys KeySource
}

// NewJWTAuthenticator creates an authenticator that fetches its key from keys.
func NewJWTAuthenticator(keys KeySource) *JWTAuthenticator {
	return &JWTAuthenticator{keys: keys}
}

func (a *JWTAuthenticator) Authenticate(ctx context.Context, header, _ string) (Identity, error) {
	key, err := a.keys.PublicKey(ctx)
	if err != nil {
		return Identity{}, authError(StatusPublicKeyMissing)
	}
	if header == "" {
		return Identity{}, authError(StatusTokenMissing)
	}
	raw := strings.TrimLeft(strings.TrimPrefix(header, "Bearer "), " ")

	claims := jwt.MapClaims{}
	_, err = jwt.ParseWithClaims(raw, claims, func(*jwt.Token) (any, error) {
		return key, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodRS256.Alg()}))
	if err != nil {
		// A signature that fails against the cached key may come from a rotated key.
		if errors.Is(err, jwt.ErrTokenSignatureInvalid) {
			a.keys.Invalidate()
		}
		return Identity{}, authError(StatusInvalid)
	}

	username, _ := claims[UsernameClaim].(string)
	if username == "" {
		return Identity{}, authError(StatusInvalid)
	}
	return Identity{Username: username, Claims: claims}, nil
}

// DisabledAuthenticator is used when authentication is switched off. Requests
// without a header, or with any bearer token, act as the fallback user; other
// headers are still verified by Next when it is set.
type DisabledAuthenticator struct {
	DefaultUser string
	Next        Authenticator
}

func (a *DisabledAuthenticator) Authenticate(ctx context.Context, header, fallbackUser string) (Identity, error) {
	if header == "" || strings.Contains(header, "Bearer") || a.Next == nil {
		user := fallbackUser
		if user == "" {
			user = a.DefaultUser
		}
		return Identity{Username: user}, nil
	}
	return a.Next.Authenticate(ctx, header, fallbackUser)
}
