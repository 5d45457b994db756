package handlers

import (
	"context"
	"errors"
	"html/template"
	"net/http"
	"time"

	"github.com/gorilla/csrf"

	"github.com/seatpredictor/seatweb/pkg/apiclient"
	"github.com/seatpredictor/seatweb/pkg/logging"
	"github.com/seatpredictor/seatweb/pkg/models"
	"github.com/seatpredictor/seatweb/pkg/nav"
	"github.com/seatpredictor/seatweb/pkg/poller"
	"github.com/seatpredictor/seatweb/pkg/security"
	"github.com/seatpredictor/seatweb/pkg/session"
	"github.com/seatpredictor/seatweb/pkg/wizard"
)

// Backend is the slice of the collaborator API the page handlers call.
type Backend interface {
	Login(ctx context.Context, username, password, userType string) (*apiclient.LoginResponse, error)
	Register(ctx context.Context, username, email, phoneNumber, password string) (*apiclient.RegisterResponse, error)
	Logout(ctx context.Context) error
	Predict(ctx context.Context, payload map[string]string) (*models.PredictionResult, error)
}

// Handler holds dependencies for the page handlers.
type Handler struct {
	Templates *template.Template
	Sessions  session.Store
	Flash     *session.FlashStore
	Backend   Backend
	Wizards   *wizard.StateStore
	Poller    *poller.Poller
}

// NewHandler creates a new handler with dependencies.
func NewHandler(templates *template.Template, sessions session.Store, flash *session.FlashStore,
	backend Backend, wizards *wizard.StateStore, p *poller.Poller) *Handler {
	return &Handler{
		Templates: templates,
		Sessions:  sessions,
		Flash:     flash,
		Backend:   backend,
		Wizards:   wizards,
		Poller:    p,
	}
}

// basePage is the data every template receives: the navigation menu derived
// from the session and the current path, plus an optional feedback message.
type basePage struct {
	Title      string
	Nav        []models.NavItem
	ShowLogout bool
	Message    *models.Message
	CSRFField  template.HTML
}

func (h *Handler) base(r *http.Request, title string) basePage {
	state := h.Sessions.Read(r)
	return basePage{
		Title:      title,
		Nav:        nav.ItemsFor(state, r.URL.Path),
		ShowLogout: nav.ShowLogout(state),
		CSRFField:  csrf.TemplateField(r),
	}
}

func (h *Handler) render(w http.ResponseWriter, name string, data any) {
	if err := h.Templates.ExecuteTemplate(w, name, data); err != nil {
		logging.LogError("Template rendering failed", err, "template", name)
	}
}

func networkErrorMessage() *models.Message {
	return &models.Message{Type: models.MessageError, Text: "Network error, please try again."}
}

// userMessage turns a collaborator failure into the message shown to the
// user: structured server errors verbatim, connectivity failures generic.
func userMessage(err error) *models.Message {
	var apiErr *apiclient.APIError
	if errors.As(err, &apiErr) {
		return &models.Message{Type: models.MessageError, Text: apiErr.Message}
	}
	return networkErrorMessage()
}

// --- Login ---

type loginPage struct {
	basePage
	Username string
}

// HandleLogin renders the login form and processes credential submissions.
func (h *Handler) HandleLogin(w http.ResponseWriter, r *http.Request) {
	if r.Method == http.MethodGet {
		h.render(w, "login.html", loginPage{basePage: h.base(r, "Login")})
		return
	}
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	if err := r.ParseForm(); err != nil {
		http.Error(w, "Bad request", http.StatusBadRequest)
		return
	}
	username := r.FormValue("username")
	password := r.FormValue("password")
	userType := r.FormValue("user_type")
	if userType == "" {
		userType = string(models.RoleStudent)
	}

	resp, err := h.Backend.Login(r.Context(), username, password, userType)
	if err != nil {
		// Bad credentials or connectivity: session stays cleared, the
		// visitor retries from the form.
		logging.LogAuthEvent("login", username, userType, false,
			"ip", security.GetClientIP(r))
		page := loginPage{basePage: h.base(r, "Login"), Username: username}
		page.Message = userMessage(err)
		h.render(w, "login.html", page)
		return
	}

	role := models.RoleStudent
	target := models.PathHome
	if resp.IsAdmin {
		role = models.RoleAdmin
		target = models.PathAdminHome
	}
	h.Sessions.RecordLogin(w, r, resp.Username, role)
	logging.LogAuthEvent("login", resp.Username, string(role), true,
		"ip", security.GetClientIP(r))
	http.Redirect(w, r, target, http.StatusFound)
}

// --- Register ---

type registerPage struct {
	basePage
	Username string
	Email    string
	Phone    string
}

// HandleRegister renders the registration form and forwards submissions to
// the backend.
func (h *Handler) HandleRegister(w http.ResponseWriter, r *http.Request) {
	if r.Method == http.MethodGet {
		h.render(w, "register.html", registerPage{basePage: h.base(r, "Register")})
		return
	}
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	if err := r.ParseForm(); err != nil {
		http.Error(w, "Bad request", http.StatusBadRequest)
		return
	}
	username := r.FormValue("username")
	email := r.FormValue("email")
	phone := r.FormValue("phone_number")
	password := r.FormValue("password")

	resp, err := h.Backend.Register(r.Context(), username, email, phone, password)
	if err != nil {
		page := registerPage{
			basePage: h.base(r, "Register"),
			Username: username,
			Email:    email,
			Phone:    phone,
		}
		page.Message = userMessage(err)
		h.render(w, "register.html", page)
		return
	}

	page := loginPage{basePage: h.base(r, "Login")}
	page.Message = &models.Message{Type: models.MessageSuccess, Text: resp.Message}
	h.render(w, "login.html", page)
}

// --- Logout ---

// HandleLogout signs the visitor out. Order matters: the backend session is
// ended first, then the local state is cleared, then the client navigates —
// so the next guard evaluation already sees an unauthenticated session.
func (h *Handler) HandleLogout(w http.ResponseWriter, r *http.Request) {
	state := h.Sessions.Read(r)

	if err := h.Backend.Logout(r.Context()); err != nil {
		// The local session is cleared regardless; the backend session
		// expires on its own.
		logging.LogWarn("Backend logout failed", "error", err.Error())
	}
	h.Sessions.Clear(w, r)
	if state.Username != "" {
		h.Wizards.Delete(state.Username)
	}
	logging.LogAuthEvent("logout", state.Username, string(state.Role), true)
	http.Redirect(w, r, models.PathLogin, http.StatusFound)
}

// --- About ---

// HandleAbout renders the static informational page.
func (h *Handler) HandleAbout(w http.ResponseWriter, r *http.Request) {
	h.render(w, "about.html", h.base(r, "About"))
}

// --- Wizard (home view) ---

type wizardPage struct {
	basePage
	Step       wizard.StepDefinition
	StepIndex  int
	StepCount  int
	AtLast     bool
	Values     map[string]string
	StepLabels []string
}

func (h *Handler) wizardPageFor(r *http.Request, state *wizard.State) wizardPage {
	labels := make([]string, 0, wizard.StepCount())
	for _, s := range wizard.Steps {
		labels = append(labels, s.Name)
	}
	return wizardPage{
		basePage:   h.base(r, "Seat Prediction"),
		Step:       state.Current(),
		StepIndex:  state.ActiveStep,
		StepCount:  wizard.StepCount(),
		AtLast:     state.AtLastStep(),
		Values:     state.Values,
		StepLabels: labels,
	}
}

// HandleHome drives the prediction wizard. A GET mounts a fresh wizard;
// POSTs carry the active step's fields plus an action (next, back, submit).
func (h *Handler) HandleHome(w http.ResponseWriter, r *http.Request) {
	username := h.Sessions.Read(r).Username

	if r.Method == http.MethodGet {
		state := h.Wizards.Begin(username)
		h.render(w, "home.html", h.wizardPageFor(r, state))
		return
	}
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	if err := r.ParseForm(); err != nil {
		http.Error(w, "Bad request", http.StatusBadRequest)
		return
	}

	state, ok := h.Wizards.Get(username)
	if !ok {
		// Expired or never mounted; restart at step 0 with the posted
		// fields rather than erroring.
		state = h.Wizards.Begin(username)
	}

	form := make(map[string]string, len(r.PostForm))
	for key := range r.PostForm {
		form[key] = security.SanitizeField(r.PostForm.Get(key))
	}
	state.SetFields(form)

	switch r.FormValue("action") {
	case "back":
		state.Retreat()
	case "submit":
		if state.AtLastStep() && state.StepComplete() {
			h.submitWizard(w, r, username, state)
			return
		}
		// Submit outside the last step is not a legal transition.
	default: // next
		state.Advance()
	}

	h.render(w, "home.html", h.wizardPageFor(r, state))
}

// submitWizard sends the assembled payload to the prediction backend. On
// success the wizard is left entirely and the result travels to the result
// view as transition data; on failure the wizard state is untouched so the
// visitor retries without losing entered data.
func (h *Handler) submitWizard(w http.ResponseWriter, r *http.Request, username string, state *wizard.State) {
	result, err := h.Backend.Predict(r.Context(), state.Payload())
	if err != nil {
		page := h.wizardPageFor(r, state)
		page.Message = userMessage(err)
		h.render(w, "home.html", page)
		return
	}

	h.Wizards.Delete(username)
	h.Flash.Set(w, *result)
	logging.LogInfo("Prediction submitted",
		"username", username,
		"probability", result.SeatSelectionProbability,
		"model", result.ModelUsed)
	http.Redirect(w, r, models.PathResult, http.StatusFound)
}

// --- Result ---

type resultPage struct {
	basePage
	HasResult   bool
	Probability float64
	ModelUsed   string
}

// HandleResult shows the one-shot prediction result. Arriving without one
// (direct visit, reload) is a normal state, not an error.
func (h *Handler) HandleResult(w http.ResponseWriter, r *http.Request) {
	page := resultPage{basePage: h.base(r, "Result")}
	if result, ok := h.Flash.Take(w, r); ok {
		page.HasResult = true
		page.Probability = result.SeatSelectionProbability
		page.ModelUsed = result.ModelUsed
	}
	h.render(w, "result.html", page)
}

// --- Admin dashboard ---

type adminPage struct {
	basePage
	Logins      []models.LoginRecord
	Predictions []models.PredictionRecord
	FetchedAt   string
	ErrorBanner string
}

// HandleAdminDashboard renders the poller's current snapshot. A 401 from the
// backend is an authorization failure: the session is cleared and the viewer
// is sent to login rather than shown an error.
func (h *Handler) HandleAdminDashboard(w http.ResponseWriter, r *http.Request) {
	snap := h.Poller.Snapshot()
	if snap.Unauthorized {
		h.Poller.AcknowledgeUnauthorized()
		h.Sessions.Clear(w, r)
		http.Redirect(w, r, models.PathLogin, http.StatusFound)
		return
	}

	// Mounting the view starts the fixed-interval refresh; Start is
	// idempotent while the schedule is already running.
	h.Poller.Start(context.Background())
	snap = h.Poller.Snapshot()

	page := adminPage{
		basePage:    h.base(r, "Admin Dashboard"),
		Logins:      snap.Records.Logins,
		Predictions: snap.Records.Predictions,
		ErrorBanner: snap.ErrorBanner,
	}
	if !snap.Records.FetchedAt.IsZero() {
		page.FetchedAt = snap.Records.FetchedAt.Format(time.RFC1123)
	}
	h.render(w, "admin.html", page)
}
