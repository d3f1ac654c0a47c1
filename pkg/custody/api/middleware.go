package api

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"github.com/go-chi/render"
	"github.com/golang-jwt/jwt/v5"
)

type contextKey string

const actorContextKey contextKey = "actor_id"

// ActorAuth extracts the acting identity for every mutation from a bearer
// token. It only verifies an already-issued token; session issuance lives
// outside this service. With an empty secret (local development) the
// X-Actor-ID header is trusted instead.
type ActorAuth struct {
	secret []byte
}

// NewActorAuth creates the actor-identity middleware
func NewActorAuth(secret string) *ActorAuth {
	var key []byte
	if secret != "" {
		key = []byte(secret)
	}
	return &ActorAuth{secret: key}
}

// RequireActor rejects requests without a resolvable actor identity.
func (a *ActorAuth) RequireActor(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		actorID, err := a.resolveActor(r)
		if err != nil {
			render.Status(r, http.StatusUnauthorized)
			render.JSON(w, r, map[string]string{"error": "unauthorized", "message": err.Error()})
			return
		}
		ctx := context.WithValue(r.Context(), actorContextKey, actorID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func (a *ActorAuth) resolveActor(r *http.Request) (string, error) {
	if a.secret == nil {
		actorID := strings.TrimSpace(r.Header.Get("X-Actor-ID"))
		if actorID == "" {
			return "", fmt.Errorf("missing X-Actor-ID header")
		}
		return actorID, nil
	}

	header := strings.TrimSpace(r.Header.Get("Authorization"))
	if header == "" || !strings.HasPrefix(strings.ToLower(header), "bearer ") {
		return "", fmt.Errorf("missing or invalid authorization header")
	}
	tokenString := strings.TrimSpace(header[7:])

	token, err := jwt.Parse(tokenString, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return a.secret, nil
	})
	if err != nil || !token.Valid {
		return "", fmt.Errorf("invalid or expired token")
	}

	subject, err := token.Claims.GetSubject()
	if err != nil || subject == "" {
		return "", fmt.Errorf("token has no subject")
	}
	return subject, nil
}

// ActorFromContext returns the actor id resolved by RequireActor.
func ActorFromContext(ctx context.Context) (string, bool) {
	actorID, ok := ctx.Value(actorContextKey).(string)
	return actorID, ok
}
