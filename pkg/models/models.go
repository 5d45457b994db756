package models

import "time"

// Role is the role a signed-in visitor holds.
type Role string

const (
	RoleNone    Role = ""
	RoleStudent Role = "student"
	RoleAdmin   Role = "admin"
)

// SessionState is the client-held record of who is signed in, as what role.
// The zero value is the unauthenticated state.
type SessionState struct {
	IsAuthenticated bool
	Role            Role
	Username        string
}

// Valid reports whether the state satisfies the session invariant:
// a role may only be set while authenticated.
func (s SessionState) Valid() bool {
	if !s.IsAuthenticated {
		return s.Role == RoleNone
	}
	return s.Role == RoleStudent || s.Role == RoleAdmin
}

// NavItem is one entry of the navigation menu.
type NavItem struct {
	Label    string
	Path     string
	IsActive bool
}

// PredictionResult is the transient payload handed from the wizard to the
// result view. It is passed as one-shot transition data, never stored.
type PredictionResult struct {
	SeatSelectionProbability float64 `json:"seat_selection_probability"`
	ModelUsed                string  `json:"model_used,omitempty"`
}

// LoginRecord is one row of the administrator's login table.
type LoginRecord struct {
	ID        int    `json:"id"`
	Username  string `json:"username"`
	LoginTime string `json:"login_time"`
	IPAddress string `json:"ip_address"`
}

// PredictionRecord is one row of the administrator's prediction table.
type PredictionRecord struct {
	ID                int    `json:"id"`
	Username          string `json:"username"`
	Timestamp         string `json:"timestamp"`
	Class12Percentage string `json:"class_12_percentage"`
	Stream            string `json:"stream"`
	ResultPercentage  string `json:"result_percentage"`
	ModelUsed         string `json:"model_used"`
}

// AdminRecordSet is the administrator view's data: two independently fetched
// tables, each replaced wholesale on every poll.
type AdminRecordSet struct {
	Logins      []LoginRecord
	Predictions []PredictionRecord
	FetchedAt   time.Time
}

// MessageType defines the type of a user feedback message.
type MessageType string

const (
	MessageSuccess MessageType = "success"
	MessageError   MessageType = "error"
	MessageWarning MessageType = "warning"
)

// Message represents a transient user feedback message.
type Message struct {
	Type MessageType
	Text string
}

// Route surface of the application.
const (
	PathRoot      = "/"
	PathLogin     = "/login"
	PathRegister  = "/register"
	PathAbout     = "/about"
	PathHome      = "/home"
	PathResult    = "/result"
	PathAdminHome = "/admin-dashboard"
	PathLogout    = "/logout"
)

// Constants for security and lifecycle limits.
const (
	MaxFieldLength = 200
	WizardTimeout  = 30 * 60 // seconds a half-finished wizard survives
	RateLimit      = 10      // login requests per minute per IP
	RateBurst      = 20      // burst capacity
)
