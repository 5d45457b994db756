package handlers

import (
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/csrf"
	"github.com/gorilla/mux"

	"github.com/seatpredictor/seatweb/pkg/downloads"
	"github.com/seatpredictor/seatweb/pkg/guard"
	"github.com/seatpredictor/seatweb/pkg/logging"
	"github.com/seatpredictor/seatweb/pkg/models"
	"github.com/seatpredictor/seatweb/pkg/security"
)

// RouterOptions carries the cross-cutting knobs the router needs.
type RouterOptions struct {
	RateLimiter *security.RateLimiter
	CSRFKey     []byte // empty disables CSRF protection (development)
	Secure      bool
}

// NewRouter wires the route surface: public login/register/about, the
// student-protected home and result views, and the admin-protected
// dashboard. Unmatched paths redirect to the login view.
func NewRouter(h *Handler, opts RouterOptions) http.Handler {
	r := mux.NewRouter()

	// Public routes. The root path serves the login view.
	r.HandleFunc(models.PathRoot, h.HandleLogin).Methods(http.MethodGet)
	r.HandleFunc(models.PathLogin, limited(opts.RateLimiter, h.HandleLogin)).Methods(http.MethodGet, http.MethodPost)
	r.HandleFunc(models.PathRegister, limited(opts.RateLimiter, h.HandleRegister)).Methods(http.MethodGet, http.MethodPost)
	r.HandleFunc(models.PathAbout, h.HandleAbout).Methods(http.MethodGet)
	r.HandleFunc(models.PathLogout, h.HandleLogout).Methods(http.MethodPost)

	// Student-protected routes.
	r.Handle(models.PathHome,
		guard.Protect(models.RoleStudent, h.Sessions, http.HandlerFunc(h.HandleHome))).
		Methods(http.MethodGet, http.MethodPost)
	r.Handle(models.PathResult,
		guard.Protect(models.RoleStudent, h.Sessions, http.HandlerFunc(h.HandleResult))).
		Methods(http.MethodGet)

	// Admin-protected routes.
	r.Handle(models.PathAdminHome,
		guard.Protect(models.RoleAdmin, h.Sessions, http.HandlerFunc(h.HandleAdminDashboard))).
		Methods(http.MethodGet)
	r.Handle(models.PathAdminHome+"/export.csv",
		guard.Protect(models.RoleAdmin, h.Sessions, http.HandlerFunc(h.handleExportCSV))).
		Methods(http.MethodGet)
	r.Handle(models.PathAdminHome+"/export.xlsx",
		guard.Protect(models.RoleAdmin, h.Sessions, http.HandlerFunc(h.handleExportExcel))).
		Methods(http.MethodGet)

	// Static assets.
	r.PathPrefix("/static/").Handler(
		http.StripPrefix("/static/", http.FileServer(http.Dir("static"))))

	// Everything else goes back to login.
	r.NotFoundHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, models.PathLogin, http.StatusFound)
	})

	var handler http.Handler = r
	if len(opts.CSRFKey) > 0 {
		handler = csrf.Protect(opts.CSRFKey, csrf.Secure(opts.Secure))(handler)
	}
	return requestLogging(handler)
}

func (h *Handler) handleExportCSV(w http.ResponseWriter, r *http.Request) {
	downloads.HandleRecordsCSV(w, r, h.Poller.Snapshot().Records)
}

func (h *Handler) handleExportExcel(w http.ResponseWriter, r *http.Request) {
	downloads.HandleRecordsExcel(w, r, h.Poller.Snapshot().Records)
}

func limited(rl *security.RateLimiter, next http.HandlerFunc) http.HandlerFunc {
	if rl == nil {
		return next
	}
	return rl.RateLimitMiddleware(next)
}

// statusRecorder captures the response status for the request log.
type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (sr *statusRecorder) WriteHeader(code int) {
	sr.status = code
	sr.ResponseWriter.WriteHeader(code)
}

// requestLogging logs every request with a correlation ID.
func requestLogging(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		requestID := uuid.NewString()
		w.Header().Set("X-Request-ID", requestID)

		recorder := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(recorder, r)

		logging.LogHTTPRequest(r.Method, r.URL.Path, r.UserAgent(),
			security.GetClientIP(r), recorder.status, time.Since(start))
	})
}
