package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

// API is the slice of the backend the dashboard depends on.
// It is implemented by *Client and can be faked in tests.
type API interface {
	SetToken(token string)
	Login(ctx context.Context, email, password string) (AuthResponse, error)
	Register(ctx context.Context, name, email, password string) (AuthResponse, error)
	UserIDByEmail(ctx context.Context, email string) (string, error)
	Rooms(ctx context.Context) ([]Room, error)
	AvailableRooms(ctx context.Context) ([]Room, error)
	AssignRoom(ctx context.Context, req AssignRoomRequest) (Room, error)
	UserPhone(ctx context.Context, userID string) (string, error)
	UpdateUserPhone(ctx context.Context, userID, phone string) error
	RemoveUserFromRoom(ctx context.Context, roomID, userID string) error
	SensorDataByDate(ctx context.Context, sensorID string, day time.Time) ([]Details, error)
	LastSensorDetails(ctx context.Context, sensorID string) (Details, error)
	SetSensorStatus(ctx context.Context, sensorID string, active bool) error
	AlertsByDate(ctx context.Context, roomID string, day time.Time) ([]Alert, error)
	CustomAlerts(ctx context.Context) ([]CustomAlert, error)
	CreateCustomAlert(ctx context.Context, rule CustomAlert) (CustomAlert, error)
	UpdateCustomAlert(ctx context.Context, id string, rule CustomAlert) (CustomAlert, error)
	DeleteCustomAlert(ctx context.Context, id string) (CustomAlert, error)
}

// Ensure Client implements API at compile time.
var _ API = (*Client)(nil)

// Client talks to the room-monitoring HTTP API.
type Client struct {
	baseURL   *url.URL
	http      *http.Client
	userAgent string

	mu    sync.RWMutex
	token string
}

const (
	defaultAPIURL    = "http://localhost:8080"
	defaultUserAgent = "roomwatch/0.1"
	requestTimeout   = 10 * time.Second
	maxErrorBody     = 512
)

// NewClient builds a Client for the given base URL (scheme optional).
func NewClient(apiURL string) (*Client, error) {
	base, err := parseBaseURL(apiURL)
	if err != nil {
		return nil, err
	}
	return &Client{
		baseURL: base,
		http: &http.Client{
			Timeout: requestTimeout,
		},
		userAgent: defaultUserAgent,
	}, nil
}

// BaseURL returns the normalized API root.
func (c *Client) BaseURL() string {
	return c.baseURL.String()
}

// SetToken sets the bearer token forwarded on every request. Empty clears it.
func (c *Client) SetToken(token string) {
	c.mu.Lock()
	c.token = strings.TrimSpace(token)
	c.mu.Unlock()
}

// Token returns the current bearer token.
func (c *Client) Token() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.token
}

// Login exchanges credentials for a token.
func (c *Client) Login(ctx context.Context, email, password string) (AuthResponse, error) {
	body := map[string]any{
		"params": map[string]string{"email": email, "password": password},
	}
	var payload AuthResponse
	if err := c.do(ctx, http.MethodPost, apiPath("auth", "login"), body, &payload); err != nil {
		return AuthResponse{}, err
	}
	if payload.Token == "" {
		return AuthResponse{}, fmt.Errorf("login response carried no token")
	}
	return payload, nil
}

// Register creates an account and returns its token.
func (c *Client) Register(ctx context.Context, name, email, password string) (AuthResponse, error) {
	body := map[string]string{"name": name, "email": email, "password": password}
	var payload AuthResponse
	if err := c.do(ctx, http.MethodPost, apiPath("auth", "register"), body, &payload); err != nil {
		return AuthResponse{}, err
	}
	return payload, nil
}

// UserIDByEmail resolves an account id. The endpoint answers in plain text.
func (c *Client) UserIDByEmail(ctx context.Context, email string) (string, error) {
	var id string
	if err := c.do(ctx, http.MethodGet, apiPath("user", "email", email), nil, &id); err != nil {
		return "", err
	}
	return strings.TrimSpace(id), nil
}

// UserPhone returns the phone number on file for userID.
func (c *Client) UserPhone(ctx context.Context, userID string) (string, error) {
	rel := apiPath("user", "phone")
	rel.RawQuery = url.Values{"userId": {userID}}.Encode()
	var phone string
	if err := c.do(ctx, http.MethodGet, rel, nil, &phone); err != nil {
		return "", err
	}
	return strings.TrimSpace(phone), nil
}

// UpdateUserPhone stores a new phone number for userID.
func (c *Client) UpdateUserPhone(ctx context.Context, userID, phone string) error {
	rel := apiPath("user", userID, "phone")
	rel.RawQuery = url.Values{"phone": {phone}}.Encode()
	var ignored string
	return c.do(ctx, http.MethodPut, rel, nil, &ignored)
}

// Rooms lists the rooms assigned to the authenticated user.
func (c *Client) Rooms(ctx context.Context) ([]Room, error) {
	var payload []Room
	if err := c.do(ctx, http.MethodGet, apiPath("room", ""), nil, &payload); err != nil {
		return nil, err
	}
	return payload, nil
}

// AvailableRooms lists rooms not yet assigned to anyone.
func (c *Client) AvailableRooms(ctx context.Context) ([]Room, error) {
	var payload []Room
	if err := c.do(ctx, http.MethodGet, apiPath("room", "available"), nil, &payload); err != nil {
		return nil, err
	}
	return payload, nil
}

// AssignRoom claims a room for a user.
func (c *Client) AssignRoom(ctx context.Context, req AssignRoomRequest) (Room, error) {
	var payload Room
	if err := c.do(ctx, http.MethodPost, apiPath("room", "assign"), req, &payload); err != nil {
		return Room{}, err
	}
	return payload, nil
}

// RemoveUserFromRoom releases a room from a user.
func (c *Client) RemoveUserFromRoom(ctx context.Context, roomID, userID string) error {
	return c.do(ctx, http.MethodDelete, apiPath("room", roomID, "remove", userID), nil, nil)
}

// SensorDataByDate returns the readings recorded by a sensor on day.
func (c *Client) SensorDataByDate(ctx context.Context, sensorID string, day time.Time) ([]Details, error) {
	var payload []Details
	if err := c.do(ctx, http.MethodGet, apiPath("sensor", sensorID, "data", FormatDate(day)), nil, &payload); err != nil {
		return nil, err
	}
	return payload, nil
}

// LastSensorDetails returns the most recent reading of a sensor.
func (c *Client) LastSensorDetails(ctx context.Context, sensorID string) (Details, error) {
	var payload Details
	if err := c.do(ctx, http.MethodGet, apiPath("sensor", "last", "details", sensorID), nil, &payload); err != nil {
		return Details{}, err
	}
	return payload, nil
}

// SetSensorStatus toggles a sensor on or off.
func (c *Client) SetSensorStatus(ctx context.Context, sensorID string, active bool) error {
	body := map[string]bool{"active": active}
	return c.do(ctx, http.MethodPut, apiPath("sensor", sensorID, "status"), body, nil)
}

// AlertsByDate lists the alerts recorded for a room on day.
func (c *Client) AlertsByDate(ctx context.Context, roomID string, day time.Time) ([]Alert, error) {
	var payload []Alert
	if err := c.do(ctx, http.MethodGet, apiPath("alerts", roomID, "data", FormatDate(day)), nil, &payload); err != nil {
		return nil, err
	}
	return payload, nil
}

// CustomAlerts lists the rules owned by the authenticated user.
func (c *Client) CustomAlerts(ctx context.Context) ([]CustomAlert, error) {
	var payload []CustomAlert
	if err := c.do(ctx, http.MethodGet, apiPath("custom-alert", ""), nil, &payload); err != nil {
		return nil, err
	}
	return payload, nil
}

// CreateCustomAlert stores a new rule.
func (c *Client) CreateCustomAlert(ctx context.Context, rule CustomAlert) (CustomAlert, error) {
	var payload CustomAlert
	if err := c.do(ctx, http.MethodPost, apiPath("custom-alert", ""), rule, &payload); err != nil {
		return CustomAlert{}, err
	}
	return payload, nil
}

// UpdateCustomAlert replaces the rule with the given id.
func (c *Client) UpdateCustomAlert(ctx context.Context, id string, rule CustomAlert) (CustomAlert, error) {
	var payload CustomAlert
	if err := c.do(ctx, http.MethodPut, apiPath("custom-alert", id), rule, &payload); err != nil {
		return CustomAlert{}, err
	}
	return payload, nil
}

// DeleteCustomAlert removes a rule and returns what was deleted.
func (c *Client) DeleteCustomAlert(ctx context.Context, id string) (CustomAlert, error) {
	var payload CustomAlert
	if err := c.do(ctx, http.MethodDelete, apiPath("custom-alert", id), nil, &payload); err != nil {
		return CustomAlert{}, err
	}
	return payload, nil
}

// do sends a request and decodes the response into dest. A *string dest
// receives the raw body; a nil dest discards it.
func (c *Client) do(ctx context.Context, method string, rel *url.URL, body, dest any) error {
	if c == nil {
		return fmt.Errorf("client is nil")
	}
	reqURL := c.baseURL.ResolveReference(rel)

	var reader io.Reader
	if body != nil {
		buf, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		reader = bytes.NewReader(buf)
	}

	req, err := http.NewRequestWithContext(ctx, method, reqURL.String(), reader)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", c.userAgent)
	req.Header.Set("X-Request-ID", uuid.NewString())
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token := c.Token(); token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("execute request: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode >= 400 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return &APIError{
			Method:     method,
			Path:       rel.String(),
			StatusCode: resp.StatusCode,
			Message:    strings.TrimSpace(string(snippet)),
		}
	}

	switch out := dest.(type) {
	case nil:
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	case *string:
		raw, err := io.ReadAll(resp.Body)
		if err != nil {
			return fmt.Errorf("read response: %w", err)
		}
		*out = string(raw)
		return nil
	default:
		decoder := json.NewDecoder(resp.Body)
		if err := decoder.Decode(dest); err != nil {
			if err == io.EOF {
				return nil
			}
			return fmt.Errorf("decode response: %w", err)
		}
		return nil
	}
}

// apiPath joins segments into an absolute path, escaping each one so ids
// can never introduce extra path elements. An empty final segment yields a
// trailing slash, which several backend routes require.
func apiPath(segments ...string) *url.URL {
	plain := make([]string, len(segments))
	raw := make([]string, len(segments))
	for i, s := range segments {
		plain[i] = s
		raw[i] = url.PathEscape(s)
	}
	return &url.URL{
		Path:    "/" + strings.Join(plain, "/"),
		RawPath: "/" + strings.Join(raw, "/"),
	}
}

func parseBaseURL(apiURL string) (*url.URL, error) {
	trimmed := strings.TrimSpace(apiURL)
	if trimmed == "" {
		trimmed = defaultAPIURL
	}
	if !strings.Contains(trimmed, "://") {
		trimmed = "http://" + trimmed
	}
	u, err := url.Parse(trimmed)
	if err != nil {
		return nil, fmt.Errorf("parse api_url %q: %w", apiURL, err)
	}
	if u.Host == "" {
		return nil, fmt.Errorf("parse api_url %q: missing host", apiURL)
	}
	u.Path = ""
	u.RawPath = ""
	u.RawQuery = ""
	u.Fragment = ""
	return u, nil
}
