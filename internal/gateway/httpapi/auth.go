package httpapi

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/Xausdorf/votechain/internal/domain"
)

// Authenticator maps HS256 bearer tokens to identities. The "sub" claim is the identity.
type Authenticator struct {
	secret []byte
}

func NewAuthenticator(secret []byte) *Authenticator {
	return &Authenticator{secret: secret}
}

// Issue signs a token for identity valid for ttl.
func (a *Authenticator) Issue(identity domain.Identity, ttl time.Duration) (string, error) {
	if identity.IsZero() {
		return "", errors.New("empty identity")
	}
	now := time.Now()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub": string(identity),
		"iat": now.Unix(),
		"exp": now.Add(ttl).Unix(),
	})
	return token.SignedString(a.secret)
}

// Identity returns the caller identity, NoIdentity for anonymous or invalid tokens.
// Sockets cannot set headers from browsers, so the token may also come as ?token=.
func (a *Authenticator) Identity(r *http.Request) domain.Identity {
	raw := strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer ")
	if raw == "" || raw == r.Header.Get("Authorization") {
		raw = r.URL.Query().Get("token")
	}
	if raw == "" {
		return domain.NoIdentity
	}

	tok, err := jwt.Parse(raw, func(*jwt.Token) (any, error) { return a.secret, nil },
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil || !tok.Valid {
		return domain.NoIdentity
	}
	claims, ok := tok.Claims.(jwt.MapClaims)
	if !ok {
		return domain.NoIdentity
	}
	sub, _ := claims["sub"].(string)
	return domain.Identity(strings.TrimSpace(sub))
}
