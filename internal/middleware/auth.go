package middleware

import (
	"crypto/subtle"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/dukerupert/tally/internal/auth"
	"github.com/dukerupert/tally/internal/store"
)

const (
	gatewayKeyHeader = "X-Tally-Gateway-Key"
	memberIDHeader   = "X-Tally-Member"
)

// RequireActor populates the actor context from the identity headers set by
// the authentication gateway. The headers are only trusted when the request
// carries the gateway's shared key; requests arriving without it are
// rejected outright.
func RequireActor(gatewayKey string, members *store.MemberStore) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			key := r.Header.Get(gatewayKeyHeader)
			if gatewayKey == "" || subtle.ConstantTimeCompare([]byte(key), []byte(gatewayKey)) != 1 {
				http.Error(w, "Unauthorized", http.StatusUnauthorized)
				return
			}

			memberID, err := strconv.ParseInt(r.Header.Get(memberIDHeader), 10, 64)
			if err != nil || memberID <= 0 {
				http.Error(w, "Unauthorized", http.StatusUnauthorized)
				return
			}

			member, err := members.GetByID(memberID)
			if err != nil || member == nil {
				http.Error(w, "Unauthorized", http.StatusUnauthorized)
				return
			}

			actor := auth.Actor{
				MemberID: member.ID,
				FamilyID: member.FamilyID,
				Role:     member.Role,
			}
			AnnotateRequest(r,
				slog.Int64("member_id", member.ID),
				slog.String("role", member.Role),
			)
			next.ServeHTTP(w, r.WithContext(auth.WithActor(r.Context(), actor)))
		})
	}
}

// RequireParent checks that the authenticated actor has the parent role.
func RequireParent(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !auth.IsParent(r.Context()) {
			http.Error(w, "Forbidden", http.StatusForbidden)
			return
		}
		next.ServeHTTP(w, r)
	})
}
