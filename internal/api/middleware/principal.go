package middleware

import (
	"net/http"

	"github.com/google/uuid"

	"github.com/hearthdocs/vault-api/internal/api/shared"
	"github.com/hearthdocs/vault-api/internal/domain"
)

// Identity headers set by the authenticating gateway in front of this
// service. The vault trusts them; it does not verify credentials itself.
const (
	HeaderUserID      = "X-Vault-User-Id"
	HeaderTier        = "X-Vault-Tier"
	HeaderHouseholdID = "X-Vault-Household-Id"
)

// PrincipalMiddleware builds the request's AuthenticatedPrincipal from the
// gateway identity headers and stores it in the context. Requests without a
// valid identity are rejected before reaching any handler.
func PrincipalMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		userID, err := uuid.Parse(r.Header.Get(HeaderUserID))
		if err != nil {
			shared.RespondWithError(w, r, http.StatusUnauthorized, "Missing or invalid user identity")
			return
		}

		tier := domain.Tier(r.Header.Get(HeaderTier))
		if tier == "" {
			tier = domain.TierFree
		}

		householdID := uuid.Nil
		if raw := r.Header.Get(HeaderHouseholdID); raw != "" {
			householdID, err = uuid.Parse(raw)
			if err != nil {
				shared.RespondWithError(w, r, http.StatusUnauthorized, "Invalid household identity")
				return
			}
		}

		principal, err := domain.NewPrincipal(userID, tier, householdID)
		if err != nil {
			shared.RespondWithError(w, r, http.StatusUnauthorized, "Invalid identity")
			return
		}

		ctx := shared.WithPrincipal(r.Context(), principal)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}
