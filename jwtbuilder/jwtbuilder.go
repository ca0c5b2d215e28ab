// Package jwtbuilder constructs and signs the compact, self-issued
// authorization grant an agent presents when requesting an access token.
package jwtbuilder

import (
	"crypto/rsa"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/mindconnect/mcl-go/clock"
	"github.com/mindconnect/mcl-go/mclerr"
)

// Algorithm identifies the signing method, one per security profile.
type Algorithm int

const (
	// HS256 is used by the Shared security profile.
	HS256 Algorithm = iota
	// RS256 is used by the Rsa3072 security profile.
	RS256
)

// schemaURN is the fixed "schemas" claim value every grant carries.
const schemaURN = "urn:siemens:mindsphere:v1"

// grantLifetime is the fixed iat→exp span of every issued grant.
const grantLifetime = 24 * time.Hour

// Builder constructs signed authorization grants for one client identity.
type Builder struct {
	Algorithm Algorithm
	ClientID  string
	Tenant    string
	Audience  string

	// HMACSecret is used when Algorithm is HS256.
	HMACSecret []byte
	// RSAKey is used when Algorithm is RS256.
	RSAKey *rsa.PrivateKey

	// Clock defaults to clock.Real{} when nil, and is injected as
	// clock.Fixed in tests that assert exact iat/nbf/exp values.
	Clock clock.Clock
}

func (b *Builder) now() time.Time {
	if b.Clock != nil {
		return b.Clock.Now()
	}
	return time.Now()
}

// Build constructs and signs the compact-serialization JWT described by
// §4.C: header typ=JWT/alg/kid, claims iss/sub/aud/iat/nbf/exp/schemas/ten/jti.
func (b *Builder) Build() (string, error) {
	if b.ClientID == "" {
		return "", mclerr.New(mclerr.InvalidParameter, "jwtbuilder: empty client id")
	}

	now := b.now()
	claims := jwt.MapClaims{
		"iss":     b.ClientID,
		"sub":     b.ClientID,
		"aud":     b.Audience,
		"iat":     jwt.NewNumericDate(now),
		"nbf":     jwt.NewNumericDate(now),
		"exp":     jwt.NewNumericDate(now.Add(grantLifetime)),
		"schemas": []string{schemaURN},
		"ten":     b.Tenant,
		"jti":     uuid.New().String(),
	}

	var token *jwt.Token
	switch b.Algorithm {
	case HS256:
		if len(b.HMACSecret) == 0 {
			return "", mclerr.New(mclerr.InvalidParameter, "jwtbuilder: missing HMAC secret for HS256")
		}
		token = jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	case RS256:
		if b.RSAKey == nil {
			return "", mclerr.New(mclerr.InvalidParameter, "jwtbuilder: missing RSA key for RS256")
		}
		token = jwt.NewWithClaims(jwt.SigningMethodRS256, claims)
	default:
		return "", mclerr.New(mclerr.InvalidParameter, "jwtbuilder: unknown algorithm")
	}
	token.Header["kid"] = b.ClientID

	var (
		signed string
		err    error
	)
	switch b.Algorithm {
	case HS256:
		signed, err = token.SignedString(b.HMACSecret)
	case RS256:
		signed, err = token.SignedString(b.RSAKey)
	}
	if err != nil {
		return "", mclerr.Wrap(mclerr.Fail, "sign authorization grant", err)
	}
	return signed, nil
}
