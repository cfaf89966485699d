package shared

import (
	"net/http"

	"github.com/falco-investigation/falco/internal/platform/httpx"
)

// LoginPath is where unauthenticated page requests are sent.
const LoginPath = "/auth/login"

// RequireUser rejects requests without an authenticated session. JSON callers
// get a 401 problem, browsers a redirect to the login page.
func RequireUser(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		userID, ok := SessionFromContext(r.Context()).UserID()
		if !ok {
			if httpx.WantsJSON(r) || r.Method != http.MethodGet {
				httpx.Problem(w, http.StatusUnauthorized, "Unauthorized", "login required")
				return
			}
			http.Redirect(w, r, LoginPath, http.StatusSeeOther)
			return
		}
		next.ServeHTTP(w, r.WithContext(ContextWithUserID(r.Context(), userID)))
	})
}
