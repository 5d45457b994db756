// Package session owns the client-held authentication state. The state lives
// in a signed browser cookie, so a page reload survives without asking the
// backend again; nothing is kept server-side.
package session

import (
	"net/http"

	"github.com/gorilla/securecookie"

	"github.com/seatpredictor/seatweb/pkg/logging"
	"github.com/seatpredictor/seatweb/pkg/models"
)

const cookieName = "seatweb_session"

// Store is the single source of truth for "who is signed in, as what role".
// Written only by the login and logout flows; read by the route guard and
// the navigator. Tests substitute a fake.
type Store interface {
	// RecordLogin overwrites the session state after a successful login.
	RecordLogin(w http.ResponseWriter, r *http.Request, username string, role models.Role)
	// Clear removes all session fields together, never individually.
	Clear(w http.ResponseWriter, r *http.Request)
	// Read returns the current state. It never fails: any decode error or
	// invariant violation yields the unauthenticated zero state.
	Read(r *http.Request) models.SessionState
}

// cookiePayload is what actually goes into the signed cookie: the three
// string keys the client persists (auth flag, role, username).
type cookiePayload struct {
	Authenticated bool   `json:"auth"`
	Role          string `json:"role"`
	Username      string `json:"username"`
}

// CookieStore implements Store on top of a securecookie codec.
type CookieStore struct {
	codec  *securecookie.SecureCookie
	secure bool
}

// NewCookieStore creates a cookie-backed session store. blockKey may be nil,
// in which case the cookie is signed but not encrypted.
func NewCookieStore(hashKey, blockKey []byte, secure bool) *CookieStore {
	sc := securecookie.New(hashKey, blockKey)
	sc.SetSerializer(securecookie.JSONEncoder{})
	return &CookieStore{codec: sc, secure: secure}
}

// RecordLogin writes the session state into the cookie. Subsequent reads in
// later requests reflect the new state; last write wins.
func (s *CookieStore) RecordLogin(w http.ResponseWriter, r *http.Request, username string, role models.Role) {
	payload := cookiePayload{
		Authenticated: true,
		Role:          string(role),
		Username:      username,
	}
	encoded, err := s.codec.Encode(cookieName, payload)
	if err != nil {
		// Encoding only fails on a misconfigured codec; treat as logged-out.
		logging.LogError("Failed to encode session cookie", err, "username", username)
		s.Clear(w, r)
		return
	}
	http.SetCookie(w, &http.Cookie{
		Name:     cookieName,
		Value:    encoded,
		Path:     "/",
		HttpOnly: true,
		Secure:   s.secure,
		SameSite: http.SameSiteLaxMode,
		// No MaxAge: the cookie is a session cookie and dies with the tab.
	})
}

// Clear removes the session state.
func (s *CookieStore) Clear(w http.ResponseWriter, r *http.Request) {
	http.SetCookie(w, &http.Cookie{
		Name:     cookieName,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   s.secure,
		SameSite: http.SameSiteLaxMode,
	})
}

// Read decodes the session cookie. Missing cookie, signature mismatch or an
// invariant violation all read as "not authenticated" — fail closed.
func (s *CookieStore) Read(r *http.Request) models.SessionState {
	cookie, err := r.Cookie(cookieName)
	if err != nil {
		return models.SessionState{}
	}

	var payload cookiePayload
	if err := s.codec.Decode(cookieName, cookie.Value, &payload); err != nil {
		logging.LogSecurityEvent("Session cookie rejected", "medium",
			"reason", err.Error())
		return models.SessionState{}
	}

	state := models.SessionState{
		IsAuthenticated: payload.Authenticated,
		Role:            models.Role(payload.Role),
		Username:        payload.Username,
	}
	if !state.Valid() {
		logging.LogSecurityEvent("Session state invariant violated", "high",
			"role", payload.Role,
			"authenticated", payload.Authenticated)
		return models.SessionState{}
	}
	return state
}
