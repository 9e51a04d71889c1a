// Package client is a typed HTTP client for the teamup API.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"
)

const defaultBaseURL = "http://localhost:4000"

// Client provides typed access to the teamup API for interactive tools.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// Option customises client instantiation.
type Option func(*Client)

// WithHTTPClient overrides the default HTTP client.
func WithHTTPClient(h *http.Client) Option {
	return func(c *Client) {
		if h != nil {
			c.httpClient = h
		}
	}
}

// New constructs a Client pointing at the provided API base URL.
func New(base string, opts ...Option) (*Client, error) {
	trimmed := strings.TrimSpace(base)
	if trimmed == "" {
		trimmed = defaultBaseURL
	}
	if !strings.HasPrefix(trimmed, "http://") && !strings.HasPrefix(trimmed, "https://") {
		trimmed = "http://" + trimmed
	}
	if _, err := url.Parse(trimmed); err != nil {
		return nil, fmt.Errorf("invalid api base url: %w", err)
	}
	cli := &Client{
		baseURL:    strings.TrimRight(trimmed, "/"),
		httpClient: &http.Client{Timeout: 15 * time.Second},
	}
	for _, opt := range opts {
		opt(cli)
	}
	return cli, nil
}

// APIError represents an error response from the API.
type APIError struct {
	Status  int
	Code    string
	Message string
}

func (e APIError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("api request failed with status %d", e.Status)
	}
	if e.Code != "" {
		return fmt.Sprintf("api request failed (%d %s): %s", e.Status, e.Code, e.Message)
	}
	return fmt.Sprintf("api request failed (%d): %s", e.Status, e.Message)
}

func (c *Client) do(ctx context.Context, method, path string, body any, token string, v any) error {
	if c == nil {
		return fmt.Errorf("client is nil")
	}
	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode request body: %w", err)
		}
		reader = bytes.NewReader(payload)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if strings.TrimSpace(token) != "" {
		req.Header.Set("Authorization", "Bearer "+strings.TrimSpace(token))
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("perform request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusBadRequest {
		return extractError(resp.StatusCode, resp.Body)
	}
	if v == nil || resp.StatusCode == http.StatusNoContent {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(v); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

func extractError(status int, body io.Reader) APIError {
	apiErr := APIError{Status: status}
	data, err := io.ReadAll(body)
	if err != nil || len(data) == 0 {
		return apiErr
	}
	var payload struct {
		Error string `json:"error"`
		Code  string `json:"code"`
	}
	if err := json.Unmarshal(data, &payload); err != nil {
		apiErr.Message = strings.TrimSpace(string(data))
		return apiErr
	}
	apiErr.Message = strings.TrimSpace(payload.Error)
	apiErr.Code = payload.Code
	return apiErr
}

// TokenPair mirrors the API token payload.
type TokenPair struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
}

// Individual reflects API individual payloads.
type Individual struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Email string `json:"email"`
}

// Positions holds per-role max counts.
type Positions struct {
	Designer int `json:"designer"`
	Backend  int `json:"backend"`
	Frontend int `json:"frontend"`
	Manager  int `json:"manager"`
}

// Team reflects API team payloads.
type Team struct {
	ID           string     `json:"id"`
	Name         string     `json:"name"`
	Description  string     `json:"description"`
	Positions    Positions  `json:"positions"`
	IsRecruiting bool       `json:"is_recruiting"`
	CompletedAt  *time.Time `json:"completed_at,omitempty"`
	ResultURL    string     `json:"result_url,omitempty"`
}

// Member reflects a membership row.
type Member struct {
	ID           string     `json:"id"`
	TeamID       string     `json:"team_id"`
	IndividualID string     `json:"individual_id"`
	Role         string     `json:"role"`
	IsLeader     bool       `json:"is_leader"`
	Status       string     `json:"status"`
	JoinedAt     time.Time  `json:"joined_at"`
	EndedAt      *time.Time `json:"ended_at,omitempty"`
	ResultURL    string     `json:"result_url,omitempty"`
}

// Seat is one role of a team's capacity.
type Seat struct {
	Role     string `json:"role"`
	Max      int    `json:"max"`
	Occupied int    `json:"occupied"`
	Vacant   bool   `json:"vacant"`
}

// TeamView is a team with its active roster.
type TeamView struct {
	Team    Team     `json:"team"`
	Members []Member `json:"members"`
	Seats   []Seat   `json:"seats"`
}

// Offer reflects API offer payloads.
type Offer struct {
	ID           string     `json:"id"`
	TeamID       string     `json:"team_id"`
	IndividualID string     `json:"individual_id"`
	Role         string     `json:"role"`
	Origin       string     `json:"origin"`
	Decision     *bool      `json:"decision"`
	CreatedAt    time.Time  `json:"created_at"`
	DecidedAt    *time.Time `json:"decided_at,omitempty"`
}

// Notification is an inbox entry.
type Notification struct {
	ID        int64           `json:"id"`
	Kind      string          `json:"kind"`
	Payload   json.RawMessage `json:"payload"`
	CreatedAt time.Time       `json:"created_at"`
	ReadAt    *time.Time      `json:"read_at,omitempty"`
}

// RegisterResponse is returned when an individual signs up.
type RegisterResponse struct {
	Individual Individual `json:"individual"`
	Tokens     TokenPair  `json:"tokens"`
}

// Register creates an individual.
func (c *Client) Register(ctx context.Context, name, email string) (RegisterResponse, error) {
	var resp RegisterResponse
	err := c.do(ctx, http.MethodPost, "/individuals", map[string]string{"name": name, "email": email}, "", &resp)
	return resp, err
}

// Refresh exchanges a refresh token for a new pair.
func (c *Client) Refresh(ctx context.Context, refreshToken string) (TokenPair, error) {
	var resp struct {
		Tokens TokenPair `json:"tokens"`
	}
	err := c.do(ctx, http.MethodPost, "/auth/refresh", map[string]string{"refresh_token": refreshToken}, "", &resp)
	return resp.Tokens, err
}

// FoundTeam creates a team led by the caller.
func (c *Client) FoundTeam(ctx context.Context, token, name, description, role string, positions Positions) (Team, error) {
	var team Team
	body := map[string]any{"name": name, "description": description, "role": role, "positions": positions}
	err := c.do(ctx, http.MethodPost, "/teams", body, token, &team)
	return team, err
}

// CurrentTeam returns the caller's team.
func (c *Client) CurrentTeam(ctx context.Context, token string) (TeamView, error) {
	var view TeamView
	err := c.do(ctx, http.MethodGet, "/me/team", nil, token, &view)
	return view, err
}

// Team returns a team by id.
func (c *Client) Team(ctx context.Context, token, teamID string) (TeamView, error) {
	var view TeamView
	err := c.do(ctx, http.MethodGet, "/teams/"+url.PathEscape(teamID), nil, token, &view)
	return view, err
}

// History lists the caller's memberships, newest first.
func (c *Client) History(ctx context.Context, token string) ([]Member, error) {
	var resp struct {
		Memberships []Member `json:"memberships"`
	}
	err := c.do(ctx, http.MethodGet, "/me/history", nil, token, &resp)
	return resp.Memberships, err
}

// Leave quits the caller's team.
func (c *Client) Leave(ctx context.Context, token string) (Member, error) {
	var member Member
	err := c.do(ctx, http.MethodPost, "/me/leave", nil, token, &member)
	return member, err
}

// Fire removes a member from the caller's team.
func (c *Client) Fire(ctx context.Context, token, individualID string) (Member, error) {
	var member Member
	err := c.do(ctx, http.MethodPost, "/teams/current/fire", map[string]string{"individual_id": individualID}, token, &member)
	return member, err
}

// Complete ends the caller's team project. An empty resultURL ends it as incomplete.
func (c *Client) Complete(ctx context.Context, token, resultURL string) (Team, error) {
	var team Team
	err := c.do(ctx, http.MethodPost, "/teams/current/complete", map[string]string{"result_url": resultURL}, token, &team)
	return team, err
}

// SetRecruiting toggles a team's recruiting flag.
func (c *Client) SetRecruiting(ctx context.Context, token, teamID string, recruiting bool) (Team, error) {
	var team Team
	err := c.do(ctx, http.MethodPatch, "/teams/"+url.PathEscape(teamID)+"/recruiting", map[string]bool{"recruiting": recruiting}, token, &team)
	return team, err
}

// AdjustPositions replaces a team's per-role max counts.
func (c *Client) AdjustPositions(ctx context.Context, token, teamID string, positions Positions) (Team, error) {
	var team Team
	err := c.do(ctx, http.MethodPut, "/teams/"+url.PathEscape(teamID)+"/positions", positions, token, &team)
	return team, err
}

// Apply sends an application to a team.
func (c *Client) Apply(ctx context.Context, token, teamID, role string) (Offer, error) {
	var offer Offer
	err := c.do(ctx, http.MethodPost, "/teams/"+url.PathEscape(teamID)+"/applications", map[string]string{"role": role}, token, &offer)
	return offer, err
}

// Scout offers an individual a seat on the caller's team.
func (c *Client) Scout(ctx context.Context, token, individualID, role string) (Offer, error) {
	var offer Offer
	err := c.do(ctx, http.MethodPost, "/teams/current/scouts", map[string]string{"individual_id": individualID, "role": role}, token, &offer)
	return offer, err
}

// Decide accepts or declines an offer.
func (c *Client) Decide(ctx context.Context, token, offerID string, accept bool) (Offer, error) {
	var offer Offer
	err := c.do(ctx, http.MethodPost, "/offers/"+url.PathEscape(offerID)+"/decision", map[string]bool{"accept": accept}, token, &offer)
	return offer, err
}

// Cancel withdraws an offer the caller sent.
func (c *Client) Cancel(ctx context.Context, token, offerID string) error {
	return c.do(ctx, http.MethodDelete, "/offers/"+url.PathEscape(offerID), nil, token, nil)
}

// MyOffers lists offers sent by or to the caller.
func (c *Client) MyOffers(ctx context.Context, token string, limit int) ([]Offer, error) {
	return c.listOffers(ctx, token, "/me/offers", limit)
}

// TeamOffers lists offers of the team the caller leads.
func (c *Client) TeamOffers(ctx context.Context, token string, limit int) ([]Offer, error) {
	return c.listOffers(ctx, token, "/teams/current/offers", limit)
}

func (c *Client) listOffers(ctx context.Context, token, path string, limit int) ([]Offer, error) {
	var resp struct {
		Offers []Offer `json:"offers"`
	}
	err := c.do(ctx, http.MethodGet, path+limitQuery(limit), nil, token, &resp)
	return resp.Offers, err
}

// Notifications lists the caller's inbox, newest first.
func (c *Client) Notifications(ctx context.Context, token string, limit int) ([]Notification, error) {
	var resp struct {
		Notifications []Notification `json:"notifications"`
	}
	err := c.do(ctx, http.MethodGet, "/notifications"+limitQuery(limit), nil, token, &resp)
	return resp.Notifications, err
}

// MarkRead flags an inbox entry as read.
func (c *Client) MarkRead(ctx context.Context, token string, id int64) error {
	return c.do(ctx, http.MethodPost, "/notifications/"+strconv.FormatInt(id, 10)+"/read", nil, token, nil)
}

func limitQuery(limit int) string {
	if limit <= 0 {
		return ""
	}
	return "?limit=" + strconv.Itoa(limit)
}
