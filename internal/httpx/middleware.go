package httpx

import (
	"context"
	"net/http"
)

// Identity is what the upstream auth gateway resolved for the
// request. Guest traffic carries no identity; the guest token travels
// in the X-Guest-Token header instead.
type Identity struct {
	ID    string
	Email string
	Role  string
}

type ctxKey int

const identityKey ctxKey = 0

func IdentityFrom(ctx context.Context) (Identity, bool) {
	id, ok := ctx.Value(identityKey).(Identity)
	return id, ok
}

// RequireIdentity rejects requests without a resolved identity.
func RequireIdentity(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		userID := r.Header.Get("X-User-Id")
		if userID == "" {
			writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "authentication required"})
			return
		}
		id := Identity{
			ID:    userID,
			Email: r.Header.Get("X-User-Email"),
			Role:  r.Header.Get("X-User-Role"),
		}
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), identityKey, id)))
	})
}
