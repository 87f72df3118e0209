package auth

import (
	"net/http"

	"github.com/gorilla/sessions"
)

// SessionName is the admin cookie session.
const SessionName = "snaplink_admin"

// RequireAdmin gates admin routes behind the logged_in cookie flag set by
// the login handler. Anything else is sent to the login form.
func RequireAdmin(store sessions.Store) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			session, err := store.Get(r, SessionName)
			if err != nil {
				http.Redirect(w, r, "/login", http.StatusSeeOther)
				return
			}

			loggedIn, ok := session.Values["logged_in"].(bool)
			if !ok || !loggedIn {
				http.Redirect(w, r, "/login", http.StatusSeeOther)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
