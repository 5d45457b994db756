package session

import (
	"net/http"

	"github.com/gorilla/securecookie"

	"github.com/seatpredictor/seatweb/pkg/logging"
	"github.com/seatpredictor/seatweb/pkg/models"
)

const flashCookieName = "seatweb_result"

// FlashStore carries the prediction result from the wizard to the result
// view as one-shot transition data: written on navigation, consumed exactly
// once, never part of the session state.
type FlashStore struct {
	codec  *securecookie.SecureCookie
	secure bool
}

// NewFlashStore creates a flash store sharing the session's key material.
func NewFlashStore(hashKey, blockKey []byte, secure bool) *FlashStore {
	sc := securecookie.New(hashKey, blockKey)
	sc.SetSerializer(securecookie.JSONEncoder{})
	return &FlashStore{codec: sc, secure: secure}
}

// Set stores the result for the next navigation.
func (f *FlashStore) Set(w http.ResponseWriter, result models.PredictionResult) {
	encoded, err := f.codec.Encode(flashCookieName, result)
	if err != nil {
		logging.LogError("Failed to encode result flash", err)
		return
	}
	http.SetCookie(w, &http.Cookie{
		Name:     flashCookieName,
		Value:    encoded,
		Path:     "/",
		HttpOnly: true,
		Secure:   f.secure,
		SameSite: http.SameSiteLaxMode,
	})
}

// Take reads and clears the result. Absence is a normal, handled state and
// reported through ok.
func (f *FlashStore) Take(w http.ResponseWriter, r *http.Request) (models.PredictionResult, bool) {
	cookie, err := r.Cookie(flashCookieName)
	if err != nil {
		return models.PredictionResult{}, false
	}

	// One-shot: drop the cookie regardless of decode outcome.
	http.SetCookie(w, &http.Cookie{
		Name:     flashCookieName,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   f.secure,
		SameSite: http.SameSiteLaxMode,
	})

	var result models.PredictionResult
	if err := f.codec.Decode(flashCookieName, cookie.Value, &result); err != nil {
		logging.LogWarn("Discarded undecodable result flash", "reason", err.Error())
		return models.PredictionResult{}, false
	}
	return result, true
}
