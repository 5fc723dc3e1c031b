package gateway

import (
	"adjutant/internal/domain"
	"adjutant/internal/infra/config"
	"adjutant/internal/security"
)

// ClientInfo identifies an authenticated gateway client.
type ClientInfo struct {
	Name string
}

// Authenticator validates incoming gateway connections.
type Authenticator interface {
	Authenticate(token string) (*ClientInfo, error)
}

type digestEntry struct {
	name   string
	digest string
}

// DigestTokenAuth authenticates against configured static tokens. Tokens are
// digested at construction so the raw values never sit in a long-lived map,
// and comparison is constant time per candidate.
type DigestTokenAuth struct {
	entries []digestEntry
}

// NewDigestTokenAuth builds the authenticator from config. An empty token
// list rejects everything.
func NewDigestTokenAuth(tokens []config.TokenConfig) *DigestTokenAuth {
	a := &DigestTokenAuth{entries: make([]digestEntry, 0, len(tokens))}
	for _, t := range tokens {
		if t.Token == "" {
			continue
		}
		a.entries = append(a.entries, digestEntry{
			name:   t.Name,
			digest: security.TokenDigest(t.Token),
		})
	}
	return a
}

// Authenticate returns client info when the token matches a configured entry.
func (a *DigestTokenAuth) Authenticate(token string) (*ClientInfo, error) {
	if token == "" {
		return nil, domain.ErrGatewayAuthFailed
	}
	for _, e := range a.entries {
		if security.VerifyToken(token, e.digest) {
			return &ClientInfo{Name: e.name}, nil
		}
	}
	return nil, domain.ErrGatewayAuthFailed
}
