// Package guard gates access to protected views by required role.
package guard

import (
	"net/http"

	"github.com/seatpredictor/seatweb/pkg/logging"
	"github.com/seatpredictor/seatweb/pkg/models"
)

// DecisionKind classifies the outcome of a guard evaluation.
type DecisionKind int

const (
	Allow DecisionKind = iota
	RedirectToLogin
	RedirectToRoleHome
)

func (k DecisionKind) String() string {
	switch k {
	case Allow:
		return "allow"
	case RedirectToLogin:
		return "redirect_to_login"
	case RedirectToRoleHome:
		return "redirect_to_role_home"
	}
	return "unknown"
}

// Decision is the result of evaluating a session against a route's required
// role. Target is the redirect path and is empty for Allow.
type Decision struct {
	Kind   DecisionKind
	Target string
}

// Evaluate derives the guard decision for a route. It is a pure function of
// its inputs: identical inputs always yield the identical decision.
//
// Precedence: unauthenticated sessions are sent to the login view; a role
// mismatch sends the visitor to their own home view; everything else passes.
func Evaluate(required models.Role, s models.SessionState) Decision {
	if !s.IsAuthenticated {
		return Decision{Kind: RedirectToLogin, Target: models.PathLogin}
	}
	if required != models.RoleNone && s.Role != required {
		if s.Role == models.RoleAdmin {
			return Decision{Kind: RedirectToRoleHome, Target: models.PathAdminHome}
		}
		return Decision{Kind: RedirectToRoleHome, Target: models.PathHome}
	}
	return Decision{Kind: Allow}
}

// SessionReader is the read side of the session store the guard consults.
type SessionReader interface {
	Read(r *http.Request) models.SessionState
}

// Protect wraps a handler with a role check. The state is re-derived from
// the store on every request, so a logout in a sibling tab takes effect on
// the next navigation. Nothing of the protected view is written before the
// check passes.
func Protect(required models.Role, store SessionReader, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		state := store.Read(r)
		decision := Evaluate(required, state)
		if decision.Kind != Allow {
			logging.LogDebug("Route guard redirect",
				"path", r.URL.Path,
				"required_role", string(required),
				"decision", decision.Kind.String(),
				"target", decision.Target)
			http.Redirect(w, r, decision.Target, http.StatusFound)
			return
		}
		next.ServeHTTP(w, r)
	})
}
