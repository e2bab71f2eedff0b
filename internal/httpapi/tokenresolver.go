package httpapi

import (
	"fmt"

	"github.com/golang-jwt/jwt/v5"
)

// TokenResolver resolves an opaque bearer token to a human-readable
// requester name. Two paths are accepted: a flat opaque-token map, and a
// signed JWT whose sub claim names the requester.
type TokenResolver struct {
	OpaqueTokens  map[string]string
	JWTSigningKey string
}

// NewTokenResolver builds a resolver from the configured opaque-token map
// and optional JWT signing key.
func NewTokenResolver(opaqueTokens map[string]string, jwtSigningKey string) *TokenResolver {
	return &TokenResolver{OpaqueTokens: opaqueTokens, JWTSigningKey: jwtSigningKey}
}

// Resolve returns the requester name for token, or false if the token is
// unrecognized by either path.
func (t *TokenResolver) Resolve(token string) (string, bool) {
	if token == "" {
		return "", false
	}
	if requester, ok := t.OpaqueTokens[token]; ok {
		return requester, true
	}
	if t.JWTSigningKey == "" {
		return "", false
	}
	return t.resolveJWT(token)
}

func (t *TokenResolver) resolveJWT(token string) (string, bool) {
	parsed, err := jwt.Parse(token, func(tok *jwt.Token) (interface{}, error) {
		if _, ok := tok.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("httpapi: unexpected signing method %v", tok.Header["alg"])
		}
		return []byte(t.JWTSigningKey), nil
	})
	if err != nil || !parsed.Valid {
		return "", false
	}
	claims, ok := parsed.Claims.(jwt.MapClaims)
	if !ok {
		return "", false
	}
	sub, ok := claims["sub"].(string)
	if !ok || sub == "" {
		return "", false
	}
	return sub, true
}
