// Package auth resolves the caller behind a bearer token and verifies signed
// payment provider callbacks.
package auth

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/golang-jwt/jwt/v4"

	"github.com/joao-fontenele/printhub/internal/apperror"
	"github.com/joao-fontenele/printhub/internal/domain"
	"github.com/joao-fontenele/printhub/internal/httpx"
)

// UserLookup loads the user named by a token subject. Implementations return
// an apperror.KindNotFound error for unknown ids.
type UserLookup interface {
	GetUser(ctx context.Context, id string) (*domain.User, error)
}

type callerKey struct{}

func WithCaller(ctx context.Context, caller domain.Caller) context.Context {
	return context.WithValue(ctx, callerKey{}, caller)
}

func CallerFromContext(ctx context.Context) (domain.Caller, bool) {
	caller, ok := ctx.Value(callerKey{}).(domain.Caller)
	return caller, ok && caller.ID != ""
}

// Authenticator verifies HS256 bearer tokens and attaches the caller, with the
// role read from the user store, to the request context.
type Authenticator struct {
	secret    []byte
	users     UserLookup
	responder *httpx.Responder
	parser    *jwt.Parser
}

func NewAuthenticator(secret string, users UserLookup, responder *httpx.Responder) *Authenticator {
	return &Authenticator{
		secret:    []byte(secret),
		users:     users,
		responder: responder,
		parser:    jwt.NewParser(jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()})),
	}
}

func (a *Authenticator) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		caller, err := a.Authenticate(r)
		if err != nil {
			a.responder.Error(w, r, err)
			return
		}
		next.ServeHTTP(w, r.WithContext(WithCaller(r.Context(), caller)))
	})
}

func (a *Authenticator) Authenticate(r *http.Request) (domain.Caller, error) {
	header := r.Header.Get("Authorization")
	token, found := strings.CutPrefix(header, "Bearer ")
	if !found || strings.TrimSpace(token) == "" {
		return domain.Caller{}, apperror.Unauthenticated("missing bearer token")
	}

	subject, err := a.subject(strings.TrimSpace(token))
	if err != nil {
		return domain.Caller{}, apperror.Wrap(apperror.KindAuthentication, "invalid token", err)
	}

	user, err := a.users.GetUser(r.Context(), subject)
	if err != nil {
		if apperror.Is(err, apperror.KindNotFound) {
			return domain.Caller{}, apperror.Unauthenticated("unknown user")
		}
		return domain.Caller{}, fmt.Errorf("load caller: %w", err)
	}

	return domain.Caller{ID: user.ID, Role: user.Role}, nil
}

func (a *Authenticator) subject(token string) (string, error) {
	claims := jwt.MapClaims{}
	_, err := a.parser.ParseWithClaims(token, claims, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return a.secret, nil
	})
	if err != nil {
		return "", err
	}

	if sub, _ := claims["sub"].(string); sub != "" {
		return sub, nil
	}
	if id, _ := claims["id"].(string); id != "" {
		return id, nil
	}
	return "", errors.New("token has no subject")
}
