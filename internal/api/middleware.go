package api

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"github.com/scrutin/scrutin/pkg/publication"
)

// CORS wraps an http.Handler with CORS headers for cross-origin requests.
func CORS(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Content-Encoding, X-API-Key")

		if r.Method == "OPTIONS" {
			w.WriteHeader(http.StatusOK)
			return
		}

		next.ServeHTTP(w, r)
	})
}

// Anonymous is the actor of a request without an API key.
var Anonymous = publication.Actor{Name: "anonymous", Role: publication.RoleViewer}

type actorKey struct{}

// ActorFrom returns the actor attached to ctx, or Anonymous.
func ActorFrom(ctx context.Context) publication.Actor {
	if a, ok := ctx.Value(actorKey{}).(publication.Actor); ok {
		return a
	}
	return Anonymous
}

// WithActor attaches actor to ctx.
func WithActor(ctx context.Context, actor publication.Actor) context.Context {
	return context.WithValue(ctx, actorKey{}, actor)
}

// ParseOperatorKeys parses "key:name:role" entries separated by commas.
func ParseOperatorKeys(s string) (map[string]publication.Actor, error) {
	keys := make(map[string]publication.Actor)
	for _, entry := range strings.Split(s, ",") {
		entry = strings.TrimSpace(entry)
		if entry == "" {
			continue
		}
		parts := strings.Split(entry, ":")
		if len(parts) != 3 || parts[0] == "" || parts[1] == "" {
			return nil, fmt.Errorf("operator key %q: want key:name:role", entry)
		}
		role := publication.Role(parts[2])
		switch role {
		case publication.RoleAdmin, publication.RoleOperator, publication.RoleViewer:
		default:
			return nil, fmt.Errorf("operator key for %s: unknown role %q", parts[1], parts[2])
		}
		keys[parts[0]] = publication.Actor{Name: parts[1], Role: role}
	}
	return keys, nil
}

// APIKeyAuth returns middleware that resolves the X-API-Key header to an
// actor. Requests without a key run as Anonymous; an unknown key is refused.
func APIKeyAuth(keys map[string]publication.Actor) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			key := r.Header.Get("X-API-Key")
			if key == "" {
				next.ServeHTTP(w, r)
				return
			}
			actor, ok := keys[key]
			if !ok {
				writeError(w, http.StatusUnauthorized, "unauthorized")
				return
			}
			next.ServeHTTP(w, r.WithContext(WithActor(r.Context(), actor)))
		})
	}
}
