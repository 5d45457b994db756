// Package apiclient talks to the prediction/authentication backend. All
// endpoints exchange JSON bodies; cookies are carried so the backend can
// keep its own session.
package apiclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"strings"
	"time"

	"github.com/seatpredictor/seatweb/pkg/logging"
	"github.com/seatpredictor/seatweb/pkg/models"
)

// APIError is a structured error reported by the collaborator. Its message
// is shown to the user verbatim.
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("api error (status %d): %s", e.StatusCode, e.Message)
}

// IsUnauthorized reports whether err is a collaborator 401.
func IsUnauthorized(err error) bool {
	apiErr, ok := err.(*APIError)
	return ok && apiErr.StatusCode == http.StatusUnauthorized
}

// Client is the HTTP client for the collaborator API.
type Client struct {
	baseURL string
	http    *http.Client
}

// New creates a client for the given base URL. The cookie jar keeps the
// backend's session cookies across calls (credentials-include semantics).
func New(baseURL string, timeout time.Duration) *Client {
	jar, _ := cookiejar.New(nil)
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http: &http.Client{
			Timeout: timeout,
			Jar:     jar,
		},
	}
}

// LoginResponse is what the login endpoint returns on success.
type LoginResponse struct {
	Message  string `json:"message"`
	IsAdmin  bool   `json:"is_admin"`
	Username string `json:"username"`
}

// Login authenticates against the backend.
func (c *Client) Login(ctx context.Context, username, password, userType string) (*LoginResponse, error) {
	body := map[string]string{
		"username":  username,
		"password":  password,
		"user_type": userType,
	}
	var resp LoginResponse
	if err := c.postJSON(ctx, "/auth/login/", body, &resp); err != nil {
		return nil, err
	}
	if resp.Username == "" {
		resp.Username = username
	}
	return &resp, nil
}

// RegisterResponse is what the register endpoint returns on success.
type RegisterResponse struct {
	Message string `json:"message"`
}

// Register creates a new account.
func (c *Client) Register(ctx context.Context, username, email, phoneNumber, password string) (*RegisterResponse, error) {
	body := map[string]string{
		"username":     username,
		"email":        email,
		"phone_number": phoneNumber,
		"password":     password,
	}
	var resp RegisterResponse
	if err := c.postJSON(ctx, "/auth/register/", body, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// Logout clears the backend session. The caller clears the local session
// regardless of the outcome.
func (c *Client) Logout(ctx context.Context) error {
	return c.postJSON(ctx, "/auth/logout/", map[string]string{}, nil)
}

// Predict submits the assembled wizard payload and returns the probability
// result.
func (c *Client) Predict(ctx context.Context, payload map[string]string) (*models.PredictionResult, error) {
	var resp models.PredictionResult
	if err := c.postJSON(ctx, "/api/predict/", payload, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// AdminLogins fetches the administrator's login records. Admin credentials
// go as query parameters, matching the backend contract.
func (c *Client) AdminLogins(ctx context.Context, adminUser, adminPass string) ([]models.LoginRecord, error) {
	var resp struct {
		Logins []models.LoginRecord `json:"logins"`
	}
	if err := c.getJSON(ctx, "/auth/admin/logins/", adminUser, adminPass, &resp); err != nil {
		return nil, err
	}
	return resp.Logins, nil
}

// AdminPredictions fetches the administrator's prediction records.
func (c *Client) AdminPredictions(ctx context.Context, adminUser, adminPass string) ([]models.PredictionRecord, error) {
	var resp struct {
		Predictions []models.PredictionRecord `json:"predictions"`
	}
	if err := c.getJSON(ctx, "/auth/admin/predictions/", adminUser, adminPass, &resp); err != nil {
		return nil, err
	}
	return resp.Predictions, nil
}

func (c *Client) postJSON(ctx context.Context, path string, body any, out any) error {
	encoded, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("encoding %s request: %w", path, err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(encoded))
	if err != nil {
		return fmt.Errorf("building %s request: %w", path, err)
	}
	req.Header.Set("Content-Type", "application/json")
	return c.do(req, out)
}

func (c *Client) getJSON(ctx context.Context, path, adminUser, adminPass string, out any) error {
	params := url.Values{}
	params.Set("admin_user", adminUser)
	params.Set("admin_pass", adminPass)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path+"?"+params.Encode(), nil)
	if err != nil {
		return fmt.Errorf("building %s request: %w", path, err)
	}
	return c.do(req, out)
}

// do executes the request and decodes the JSON response. Non-2xx responses
// become an *APIError carrying the backend's error message; transport
// failures stay plain errors (connectivity).
func (c *Client) do(req *http.Request, out any) error {
	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		logging.LogCollaboratorCall(req.Method, req.URL.Path, 0, time.Since(start), err)
		return fmt.Errorf("calling %s: %w", req.URL.Path, err)
	}
	defer resp.Body.Close()

	logging.LogCollaboratorCall(req.Method, req.URL.Path, resp.StatusCode, time.Since(start), nil)

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		var errBody struct {
			Error   string `json:"error"`
			Message string `json:"message"`
		}
		msg := ""
		if decodeErr := json.NewDecoder(resp.Body).Decode(&errBody); decodeErr == nil {
			if errBody.Error != "" {
				msg = errBody.Error
			} else {
				msg = errBody.Message
			}
		}
		if msg == "" {
			msg = http.StatusText(resp.StatusCode)
		}
		return &APIError{StatusCode: resp.StatusCode, Message: msg}
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decoding %s response: %w", req.URL.Path, err)
	}
	return nil
}
