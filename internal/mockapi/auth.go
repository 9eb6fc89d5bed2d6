package mockapi

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

const refreshCookie = "refresh_token"

type accessClaims struct {
	Epoch int `json:"epoch"`
	jwt.RegisteredClaims
}

// issuer mints short-lived HS256 access tokens and tracks opaque refresh
// tokens handed out as cookies.
type issuer struct {
	secret []byte
	ttl    time.Duration

	mu      sync.Mutex
	epoch   int
	refresh map[string]string
}

func newIssuer(secret []byte, ttl time.Duration) *issuer {
	return &issuer{secret: secret, ttl: ttl, refresh: make(map[string]string)}
}

func (i *issuer) accessToken(userID string) (string, error) {
	i.mu.Lock()
	epoch := i.epoch
	i.mu.Unlock()

	now := time.Now()
	claims := accessClaims{
		Epoch: epoch,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.NewString(),
			Subject:   userID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(i.ttl)),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(i.secret)
}

// verify returns the subject of a valid, unrevoked access token.
func (i *issuer) verify(raw string) (string, error) {
	var claims accessClaims
	_, err := jwt.ParseWithClaims(raw, &claims, func(*jwt.Token) (interface{}, error) {
		return i.secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}), jwt.WithExpirationRequired())
	if err != nil {
		return "", err
	}

	i.mu.Lock()
	defer i.mu.Unlock()
	if claims.Epoch < i.epoch {
		return "", errors.New("token revoked")
	}
	return claims.Subject, nil
}

// revokeAccess invalidates every access token issued so far.
func (i *issuer) revokeAccess() {
	i.mu.Lock()
	i.epoch++
	i.mu.Unlock()
}

func (i *issuer) newRefresh(userID string) string {
	tok := uuid.NewString()
	i.mu.Lock()
	i.refresh[tok] = userID
	i.mu.Unlock()
	return tok
}

func (i *issuer) refreshOwner(tok string) (string, bool) {
	i.mu.Lock()
	defer i.mu.Unlock()
	id, ok := i.refresh[tok]
	return id, ok
}

func (i *issuer) dropRefresh(tok string) {
	i.mu.Lock()
	delete(i.refresh, tok)
	i.mu.Unlock()
}

// revokeRefresh invalidates every refresh token.
func (i *issuer) revokeRefresh() {
	i.mu.Lock()
	i.refresh = make(map[string]string)
	i.mu.Unlock()
}

type ctxKey struct{}

func userFrom(ctx context.Context) string {
	id, _ := ctx.Value(ctxKey{}).(string)
	return id
}

// authenticate rejects requests without a valid bearer token.
func (s *Server) authenticate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		auth := r.Header.Get("Authorization")
		if !strings.HasPrefix(auth, "Bearer ") {
			writeError(w, http.StatusUnauthorized, "missing access token")
			return
		}
		userID, err := s.tokens.verify(strings.TrimPrefix(auth, "Bearer "))
		if err != nil {
			writeError(w, http.StatusUnauthorized, fmt.Sprintf("invalid access token: %v", err))
			return
		}
		s.data.mu.Lock()
		_, ok := s.data.accounts[userID]
		s.data.mu.Unlock()
		if !ok {
			writeError(w, http.StatusUnauthorized, "unknown user")
			return
		}
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), ctxKey{}, userID)))
	})
}

func setRefreshCookie(w http.ResponseWriter, tok string) {
	http.SetCookie(w, &http.Cookie{
		Name:     refreshCookie,
		Value:    tok,
		Path:     "/",
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
		MaxAge:   int((30 * 24 * time.Hour).Seconds()),
	})
}

func clearRefreshCookie(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{
		Name:     refreshCookie,
		Value:    "",
		Path:     "/",
		HttpOnly: true,
		MaxAge:   -1,
	})
}
