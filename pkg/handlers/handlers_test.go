package handlers

import (
	"context"
	"html/template"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/seatpredictor/seatweb/pkg/apiclient"
	"github.com/seatpredictor/seatweb/pkg/logging"
	"github.com/seatpredictor/seatweb/pkg/models"
	"github.com/seatpredictor/seatweb/pkg/poller"
	"github.com/seatpredictor/seatweb/pkg/session"
	"github.com/seatpredictor/seatweb/pkg/wizard"
)

func init() {
	logging.InitLogger()
}

func testTemplates() *template.Template {
	return template.Must(template.New("t").Parse(`
{{define "login.html"}}login{{if .Message}}[{{.Message.Text}}]{{end}}{{end}}
{{define "register.html"}}register{{if .Message}}[{{.Message.Text}}]{{end}}{{end}}
{{define "about.html"}}about{{end}}
{{define "home.html"}}step={{.StepIndex}}:{{.Step.Name}}{{if .Message}}[{{.Message.Text}}]{{end}}{{end}}
{{define "result.html"}}{{if .HasResult}}prob={{.Probability}}{{else}}No result available.{{end}}{{end}}
{{define "admin.html"}}logins={{len .Logins}} predictions={{len .Predictions}}{{if .ErrorBanner}} banner={{.ErrorBanner}}{{end}}{{end}}
`))
}

// fakeSessions implements session.Store in memory and records the order of
// lifecycle calls.
type fakeSessions struct {
	state  models.SessionState
	events *[]string
}

func (f *fakeSessions) RecordLogin(w http.ResponseWriter, r *http.Request, username string, role models.Role) {
	f.state = models.SessionState{IsAuthenticated: true, Role: role, Username: username}
	if f.events != nil {
		*f.events = append(*f.events, "record_login")
	}
}

func (f *fakeSessions) Clear(http.ResponseWriter, *http.Request) {
	f.state = models.SessionState{}
	if f.events != nil {
		*f.events = append(*f.events, "session_clear")
	}
}

func (f *fakeSessions) Read(*http.Request) models.SessionState { return f.state }

// fakeBackend implements Backend with overridable behavior.
type fakeBackend struct {
	loginFn   func(username, password, userType string) (*apiclient.LoginResponse, error)
	predictFn func(payload map[string]string) (*models.PredictionResult, error)
	events    *[]string
}

func (f *fakeBackend) Login(_ context.Context, username, password, userType string) (*apiclient.LoginResponse, error) {
	if f.loginFn != nil {
		return f.loginFn(username, password, userType)
	}
	return &apiclient.LoginResponse{Message: "ok", Username: username}, nil
}

func (f *fakeBackend) Register(_ context.Context, username, _, _, _ string) (*apiclient.RegisterResponse, error) {
	return &apiclient.RegisterResponse{Message: "Registration successful!"}, nil
}

func (f *fakeBackend) Logout(context.Context) error {
	if f.events != nil {
		*f.events = append(*f.events, "backend_logout")
	}
	return nil
}

func (f *fakeBackend) Predict(_ context.Context, payload map[string]string) (*models.PredictionResult, error) {
	if f.predictFn != nil {
		return f.predictFn(payload)
	}
	return &models.PredictionResult{SeatSelectionProbability: 50}, nil
}

// emptyFetcher keeps the poller inert in handler tests.
type emptyFetcher struct{ err error }

func (e *emptyFetcher) AdminLogins(context.Context, string, string) ([]models.LoginRecord, error) {
	return nil, e.err
}

func (e *emptyFetcher) AdminPredictions(context.Context, string, string) ([]models.PredictionRecord, error) {
	return nil, e.err
}

func newTestHandler(backend Backend, sessions session.Store) *Handler {
	flash := session.NewFlashStore([]byte(strings.Repeat("k", 32)), nil, false)
	p := poller.New(&emptyFetcher{}, "admin", "secret", time.Minute)
	return NewHandler(testTemplates(), sessions, flash, backend, wizard.NewStateStore(), p)
}

func postForm(path string, form url.Values) *http.Request {
	r := httptest.NewRequest(http.MethodPost, path, strings.NewReader(form.Encode()))
	r.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	return r
}

func studentSessions() *fakeSessions {
	return &fakeSessions{state: models.SessionState{
		IsAuthenticated: true, Role: models.RoleStudent, Username: "alice",
	}}
}

// --- Login ---

func TestHandleLogin_StudentRedirectsHome(t *testing.T) {
	sessions := &fakeSessions{}
	backend := &fakeBackend{loginFn: func(username, _, _ string) (*apiclient.LoginResponse, error) {
		return &apiclient.LoginResponse{Message: "ok", IsAdmin: false, Username: username}, nil
	}}
	h := newTestHandler(backend, sessions)

	w := httptest.NewRecorder()
	h.HandleLogin(w, postForm(models.PathLogin, url.Values{
		"username": {"alice"}, "password": {"x"}, "user_type": {"student"},
	}))

	if w.Code != http.StatusFound {
		t.Fatalf("want 302, got %d", w.Code)
	}
	if loc := w.Header().Get("Location"); loc != models.PathHome {
		t.Errorf("want redirect to /home, got %s", loc)
	}
	if sessions.state.Role != models.RoleStudent || !sessions.state.IsAuthenticated {
		t.Errorf("session not recorded as student: %+v", sessions.state)
	}
}

func TestHandleLogin_AdminRedirectsDashboard(t *testing.T) {
	sessions := &fakeSessions{}
	backend := &fakeBackend{loginFn: func(username, _, _ string) (*apiclient.LoginResponse, error) {
		return &apiclient.LoginResponse{Message: "ok", IsAdmin: true, Username: username}, nil
	}}
	h := newTestHandler(backend, sessions)

	w := httptest.NewRecorder()
	h.HandleLogin(w, postForm(models.PathLogin, url.Values{
		"username": {"root"}, "password": {"x"}, "user_type": {"admin"},
	}))

	if loc := w.Header().Get("Location"); loc != models.PathAdminHome {
		t.Errorf("want redirect to /admin-dashboard, got %s", loc)
	}
	if sessions.state.Role != models.RoleAdmin {
		t.Errorf("session not recorded as admin: %+v", sessions.state)
	}
}

func TestHandleLogin_BadCredentialsShowsServerMessage(t *testing.T) {
	sessions := &fakeSessions{}
	backend := &fakeBackend{loginFn: func(string, string, string) (*apiclient.LoginResponse, error) {
		return nil, &apiclient.APIError{StatusCode: 401, Message: "Invalid username or password."}
	}}
	h := newTestHandler(backend, sessions)

	w := httptest.NewRecorder()
	h.HandleLogin(w, postForm(models.PathLogin, url.Values{
		"username": {"alice"}, "password": {"wrong"},
	}))

	if w.Code != http.StatusOK {
		t.Fatalf("want 200, got %d", w.Code)
	}
	if !strings.Contains(w.Body.String(), "Invalid username or password.") {
		t.Error("server error message must be shown verbatim")
	}
	if sessions.state.IsAuthenticated {
		t.Error("session must stay cleared after a failed login")
	}
}

func TestHandleLogin_ConnectivityErrorIsGeneric(t *testing.T) {
	backend := &fakeBackend{loginFn: func(string, string, string) (*apiclient.LoginResponse, error) {
		return nil, context.DeadlineExceeded
	}}
	h := newTestHandler(backend, &fakeSessions{})

	w := httptest.NewRecorder()
	h.HandleLogin(w, postForm(models.PathLogin, url.Values{"username": {"a"}, "password": {"b"}}))

	if !strings.Contains(w.Body.String(), "Network error") {
		t.Errorf("want generic network error, got %q", w.Body.String())
	}
}

// --- Logout ---

func TestHandleLogout_OrderAndRedirect(t *testing.T) {
	var events []string
	sessions := studentSessions()
	sessions.events = &events
	backend := &fakeBackend{events: &events}
	h := newTestHandler(backend, sessions)

	w := httptest.NewRecorder()
	h.HandleLogout(w, postForm(models.PathLogout, url.Values{}))

	if loc := w.Header().Get("Location"); loc != models.PathLogin {
		t.Errorf("want redirect to /login, got %s", loc)
	}
	// The backend session ends first, then the local state is cleared,
	// then the navigation happens.
	if len(events) != 2 || events[0] != "backend_logout" || events[1] != "session_clear" {
		t.Errorf("wrong logout order: %v", events)
	}
	if sessions.state.IsAuthenticated {
		t.Error("session must be cleared on logout")
	}
}

// --- Register ---

func TestHandleRegister_SuccessRendersLoginWithMessage(t *testing.T) {
	h := newTestHandler(&fakeBackend{}, &fakeSessions{})

	w := httptest.NewRecorder()
	h.HandleRegister(w, postForm(models.PathRegister, url.Values{
		"username": {"alice"}, "email": {"a@b.c"}, "phone_number": {"123"}, "password": {"x"},
	}))

	body := w.Body.String()
	if !strings.HasPrefix(body, "login") {
		t.Errorf("registration success should land on the login view, got %q", body)
	}
	if !strings.Contains(body, "Registration successful!") {
		t.Error("success message missing")
	}
}

// --- Wizard ---

func TestHandleHome_GETMountsFreshWizard(t *testing.T) {
	h := newTestHandler(&fakeBackend{}, studentSessions())

	w := httptest.NewRecorder()
	h.HandleHome(w, httptest.NewRequest(http.MethodGet, models.PathHome, nil))

	if !strings.Contains(w.Body.String(), "step=0:Personal") {
		t.Errorf("want step 0, got %q", w.Body.String())
	}
}

func TestHandleHome_AdvanceBlockedByMissingRequired(t *testing.T) {
	h := newTestHandler(&fakeBackend{}, studentSessions())
	h.Wizards.Begin("alice")

	w := httptest.NewRecorder()
	h.HandleHome(w, postForm(models.PathHome, url.Values{
		"action": {"next"},
		"name":   {"Alice"}, // the rest of the step stays empty
	}))

	if !strings.Contains(w.Body.String(), "step=0:") {
		t.Errorf("incomplete step must not advance, got %q", w.Body.String())
	}
}

func TestHandleHome_AdvanceWithCompleteStep(t *testing.T) {
	h := newTestHandler(&fakeBackend{}, studentSessions())
	h.Wizards.Begin("alice")

	w := httptest.NewRecorder()
	h.HandleHome(w, postForm(models.PathHome, url.Values{
		"action":       {"next"},
		"name":         {"Alice"},
		"dateOfBirth":  {"2001-04-12"},
		"gender":       {"Female"},
		"mobileNumber": {"9876543210"},
		"email":        {"alice@example.com"},
	}))

	if !strings.Contains(w.Body.String(), "step=1:Basic") {
		t.Errorf("complete step must advance, got %q", w.Body.String())
	}
}

func TestHandleHome_BackIsUnconditional(t *testing.T) {
	h := newTestHandler(&fakeBackend{}, studentSessions())
	state := h.Wizards.Begin("alice")
	state.ActiveStep = 1

	w := httptest.NewRecorder()
	h.HandleHome(w, postForm(models.PathHome, url.Values{"action": {"back"}}))

	if !strings.Contains(w.Body.String(), "step=0:") {
		t.Errorf("back must retreat without validation, got %q", w.Body.String())
	}
}

func completedState(h *Handler, username string) *wizard.State {
	state := h.Wizards.Begin(username)
	for _, step := range wizard.Steps {
		for _, f := range step.Fields {
			if f.Required {
				state.Values[f.Name] = "x"
			}
		}
	}
	state.Values["class12Percentage"] = "85"
	state.ActiveStep = wizard.StepCount() - 1
	return state
}

func TestHandleHome_SubmitSuccessLeavesWizard(t *testing.T) {
	backend := &fakeBackend{predictFn: func(payload map[string]string) (*models.PredictionResult, error) {
		if payload["class_12_percentage"] != "85" {
			t.Errorf("payload keys not translated: %v", payload)
		}
		return &models.PredictionResult{SeatSelectionProbability: 87.5}, nil
	}}
	h := newTestHandler(backend, studentSessions())
	completedState(h, "alice")

	w := httptest.NewRecorder()
	h.HandleHome(w, postForm(models.PathHome, url.Values{"action": {"submit"}}))

	if w.Code != http.StatusFound {
		t.Fatalf("want 302, got %d (%s)", w.Code, w.Body.String())
	}
	if loc := w.Header().Get("Location"); loc != models.PathResult {
		t.Errorf("want redirect to /result, got %s", loc)
	}
	if _, ok := h.Wizards.Get("alice"); ok {
		t.Error("wizard must be discarded after a successful submit")
	}

	// The probability travels to the result view unmodified.
	r := httptest.NewRequest(http.MethodGet, models.PathResult, nil)
	for _, cookie := range w.Result().Cookies() {
		r.AddCookie(cookie)
	}
	w2 := httptest.NewRecorder()
	h.HandleResult(w2, r)
	if !strings.Contains(w2.Body.String(), "prob=87.5") {
		t.Errorf("round-trip identity broken: %q", w2.Body.String())
	}
}

func TestHandleHome_SubmitFailureKeepsState(t *testing.T) {
	backend := &fakeBackend{predictFn: func(map[string]string) (*models.PredictionResult, error) {
		return nil, &apiclient.APIError{StatusCode: 400, Message: "Invalid data"}
	}}
	h := newTestHandler(backend, studentSessions())
	completedState(h, "alice")

	w := httptest.NewRecorder()
	h.HandleHome(w, postForm(models.PathHome, url.Values{"action": {"submit"}}))

	if w.Code != http.StatusOK {
		t.Fatalf("want 200, got %d", w.Code)
	}
	if !strings.Contains(w.Body.String(), "[Invalid data]") {
		t.Error("server error message must be shown verbatim")
	}

	state, ok := h.Wizards.Get("alice")
	if !ok {
		t.Fatal("wizard state must survive a failed submit")
	}
	if !state.AtLastStep() {
		t.Errorf("activeStep must stay at the last step, got %d", state.ActiveStep)
	}
	if state.Values["class12Percentage"] != "85" {
		t.Error("entered values must survive a failed submit")
	}
}

// --- Result ---

func TestHandleResult_NoTransitionData(t *testing.T) {
	h := newTestHandler(&fakeBackend{}, studentSessions())

	w := httptest.NewRecorder()
	h.HandleResult(w, httptest.NewRequest(http.MethodGet, models.PathResult, nil))

	if !strings.Contains(w.Body.String(), "No result available.") {
		t.Errorf("direct visit must render the no-result state, got %q", w.Body.String())
	}
}

// --- Route surface ---

func TestRouter_Redirects(t *testing.T) {
	tests := []struct {
		name     string
		state    models.SessionState
		path     string
		wantLoc  string
		wantCode int
	}{
		{
			name:     "unauthenticated home goes to login",
			path:     models.PathHome,
			wantLoc:  models.PathLogin,
			wantCode: http.StatusFound,
		},
		{
			name:     "unknown path goes to login",
			path:     "/definitely-not-a-route",
			wantLoc:  models.PathLogin,
			wantCode: http.StatusFound,
		},
		{
			name:     "student on admin dashboard goes home",
			state:    models.SessionState{IsAuthenticated: true, Role: models.RoleStudent, Username: "alice"},
			path:     models.PathAdminHome,
			wantLoc:  models.PathHome,
			wantCode: http.StatusFound,
		},
		{
			name:     "admin on result goes to dashboard",
			state:    models.SessionState{IsAuthenticated: true, Role: models.RoleAdmin, Username: "root"},
			path:     models.PathResult,
			wantLoc:  models.PathAdminHome,
			wantCode: http.StatusFound,
		},
		{
			name:     "student reaches home",
			state:    models.SessionState{IsAuthenticated: true, Role: models.RoleStudent, Username: "alice"},
			path:     models.PathHome,
			wantCode: http.StatusOK,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newTestHandler(&fakeBackend{}, &fakeSessions{state: tt.state})
			router := NewRouter(h, RouterOptions{})

			w := httptest.NewRecorder()
			router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, tt.path, nil))

			if w.Code != tt.wantCode {
				t.Fatalf("status: want %d, got %d", tt.wantCode, w.Code)
			}
			if tt.wantLoc != "" {
				if loc := w.Header().Get("Location"); loc != tt.wantLoc {
					t.Errorf("redirect: want %s, got %s", tt.wantLoc, loc)
				}
			}
		})
	}
}

func TestRouter_RootServesLoginView(t *testing.T) {
	h := newTestHandler(&fakeBackend{}, &fakeSessions{})
	router := NewRouter(h, RouterOptions{})

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, models.PathRoot, nil))

	if w.Code != http.StatusOK || !strings.Contains(w.Body.String(), "login") {
		t.Errorf("root should render the login view, got %d %q", w.Code, w.Body.String())
	}
}

func TestRouter_SetsRequestID(t *testing.T) {
	h := newTestHandler(&fakeBackend{}, &fakeSessions{})
	router := NewRouter(h, RouterOptions{})

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, models.PathAbout, nil))

	if w.Header().Get("X-Request-ID") == "" {
		t.Error("every response must carry a correlation ID")
	}
}

// --- Admin dashboard ---

func TestHandleAdminDashboard_UnauthorizedRedirectsLogin(t *testing.T) {
	sessions := &fakeSessions{state: models.SessionState{
		IsAuthenticated: true, Role: models.RoleAdmin, Username: "root",
	}}
	h := newTestHandler(&fakeBackend{}, sessions)

	p := poller.New(&emptyFetcher{err: &apiclient.APIError{StatusCode: 401, Message: "Unauthorized"}},
		"admin", "secret", time.Minute)
	p.Refresh(context.Background())
	h.Poller = p

	w := httptest.NewRecorder()
	h.HandleAdminDashboard(w, httptest.NewRequest(http.MethodGet, models.PathAdminHome, nil))

	if w.Code != http.StatusFound {
		t.Fatalf("want 302, got %d", w.Code)
	}
	if loc := w.Header().Get("Location"); loc != models.PathLogin {
		t.Errorf("want redirect to /login, got %s", loc)
	}
	if sessions.state.IsAuthenticated {
		t.Error("session must be cleared on an authorization failure")
	}
}
