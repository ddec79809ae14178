// Package chatdeck provides a client for the chatdeck gateway API.
package chatdeck

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strconv"
	"time"
)

// Cookie and header names used by the gateway's CSRF check.
const (
	csrfCookie = "csrf_token"
	csrfHeader = "X-CSRF-Token"
)

// Client is a chatdeck API client authenticated by a session cookie.
type Client struct {
	BaseURL       string
	SessionCookie *http.Cookie
	HTTPClient    *http.Client

	csrfToken string
}

// NewClient creates a client. cookieName and token identify the identity
// provider's session cookie, e.g. "__session" for Clerk.
func NewClient(baseURL, cookieName, token string) *Client {
	if baseURL == "" {
		baseURL = "http://localhost:8080"
	}

	c := &Client{
		BaseURL:    baseURL,
		HTTPClient: &http.Client{Timeout: 30 * time.Second},
	}
	if token != "" {
		c.SessionCookie = &http.Cookie{Name: cookieName, Value: token}
	}
	return c
}

// NewClientFromEnv reads CHATDECK_URL, CHATDECK_COOKIE and CHATDECK_SESSION.
func NewClientFromEnv() *Client {
	name := os.Getenv("CHATDECK_COOKIE")
	if name == "" {
		name = "__session"
	}
	return NewClient(os.Getenv("CHATDECK_URL"), name, os.Getenv("CHATDECK_SESSION"))
}

// Issue is a field-level validation failure reported by the server.
type Issue struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// APIError is a non-2xx response.
type APIError struct {
	Status  int
	Message string  `json:"error"`
	Issues  []Issue `json:"issues,omitempty"`
}

func (e *APIError) Error() string {
	if len(e.Issues) > 0 {
		return fmt.Sprintf("chatdeck error %d: %s (%s: %s)", e.Status, e.Message, e.Issues[0].Field, e.Issues[0].Message)
	}
	return fmt.Sprintf("chatdeck error %d: %s", e.Status, e.Message)
}

// doRequest performs an HTTP request and decodes a JSON response into out.
func (c *Client) doRequest(method, path string, in, out any) error {
	unsafe := method != http.MethodGet && method != http.MethodHead
	if unsafe && c.csrfToken == "" {
		if err := c.refreshCSRF(); err != nil {
			return err
		}
	}

	err := c.send(method, path, in, out, unsafe)
	var apiErr *APIError
	if errors.As(err, &apiErr) && unsafe && apiErr.Status == http.StatusForbidden {
		// Token may have been rotated server-side; retry once with a new one
		if err := c.refreshCSRF(); err != nil {
			return err
		}
		return c.send(method, path, in, out, unsafe)
	}
	return err
}

func (c *Client) send(method, path string, in, out any, withCSRF bool) error {
	var body io.Reader
	if in != nil {
		data, err := json.Marshal(in)
		if err != nil {
			return err
		}
		body = bytes.NewReader(data)
	}

	req, err := http.NewRequest(method, c.BaseURL+path, body)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.SessionCookie != nil {
		req.AddCookie(c.SessionCookie)
	}
	if withCSRF {
		req.AddCookie(&http.Cookie{Name: csrfCookie, Value: c.csrfToken})
		req.Header.Set(csrfHeader, c.csrfToken)
	}

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}

	if resp.StatusCode >= 400 {
		apiErr := &APIError{Status: resp.StatusCode}
		json.Unmarshal(respBody, apiErr)
		return apiErr
	}

	if out == nil || len(respBody) == 0 {
		return nil
	}
	return json.Unmarshal(respBody, out)
}

func (c *Client) refreshCSRF() error {
	var resp struct {
		Token string `json:"token"`
	}
	if err := c.send(http.MethodGet, "/api/csrf", nil, &resp, false); err != nil {
		return err
	}
	c.csrfToken = resp.Token
	return nil
}

// User is the authenticated account.
type User struct {
	ID       string `json:"id"`
	Provider string `json:"provider"`
	Email    string `json:"email"`
	Name     string `json:"name"`
}

// Me returns the authenticated user.
func (c *Client) Me() (*User, error) {
	var resp User
	if err := c.doRequest(http.MethodGet, "/api/users/me", nil, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// Chat is a conversation.
type Chat struct {
	ID        string    `json:"id"`
	Title     string    `json:"title"`
	Model     string    `json:"model"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// ChatsResponse is a page of chats.
type ChatsResponse struct {
	Chats []Chat `json:"chats"`
	Total int    `json:"total"`
}

// ListChats lists chats, most recently updated first.
func (c *Client) ListChats(limit, offset int) (*ChatsResponse, error) {
	path := fmt.Sprintf("/api/chats?limit=%d&offset=%d", limit, offset)
	var resp ChatsResponse
	if err := c.doRequest(http.MethodGet, path, nil, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// CreateChat creates a chat. An empty title gets the server default.
func (c *Client) CreateChat(title, model string) (*Chat, error) {
	req := map[string]string{"title": title, "model": model}
	var resp Chat
	if err := c.doRequest(http.MethodPost, "/api/chats", req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// RenameChat changes a chat's title.
func (c *Client) RenameChat(chatID, title string) (*Chat, error) {
	var resp Chat
	if err := c.doRequest(http.MethodPatch, "/api/chats/"+url.PathEscape(chatID), map[string]string{"title": title}, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// DeleteChat deletes a chat and its messages.
func (c *Client) DeleteChat(chatID string) error {
	return c.doRequest(http.MethodDelete, "/api/chats/"+url.PathEscape(chatID), nil, nil)
}

// Message is a chat message.
type Message struct {
	ID        string `json:"id"`
	Role      string `json:"role"`
	Content   string `json:"content"`
	Model     string `json:"model,omitempty"`
	Timestamp int64  `json:"ts"`
	Staged    bool   `json:"staged,omitempty"`
}

// Cursor selects the page of messages older than a given message. The zero
// Cursor selects the newest page.
type Cursor struct {
	Before   int64
	BeforeID string
}

// MessagesResponse is a page of messages in ascending time order.
type MessagesResponse struct {
	Messages     []Message `json:"messages"`
	HasMore      bool      `json:"has_more"`
	NextBefore   int64     `json:"next_before,omitempty"`
	NextBeforeID string    `json:"next_before_id,omitempty"`
}

// Next returns the cursor of the following (older) page.
func (r *MessagesResponse) Next() Cursor {
	return Cursor{Before: r.NextBefore, BeforeID: r.NextBeforeID}
}

// GetMessages retrieves up to limit messages older than the cursor.
func (c *Client) GetMessages(chatID string, limit int, cursor Cursor) (*MessagesResponse, error) {
	q := url.Values{"limit": {strconv.Itoa(limit)}}
	if cursor.Before > 0 {
		q.Set("before", strconv.FormatInt(cursor.Before, 10))
		if cursor.BeforeID != "" {
			q.Set("before_id", cursor.BeforeID)
		}
	}
	path := fmt.Sprintf("/api/chats/%s/messages?%s", url.PathEscape(chatID), q.Encode())

	var resp MessagesResponse
	if err := c.doRequest(http.MethodGet, path, nil, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// PostMessageRequest is the request body for posting a message.
type PostMessageRequest struct {
	Content  string `json:"content"`
	Role     string `json:"role"`
	Model    string `json:"model,omitempty"`
	ClientID string `json:"client_id,omitempty"`
}

// PostMessage stores a message in a chat.
func (c *Client) PostMessage(chatID string, req PostMessageRequest) (*Message, error) {
	var resp Message
	if err := c.doRequest(http.MethodPost, "/api/chats/"+url.PathEscape(chatID)+"/messages", req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// Status reports whether a chat is waiting for an assistant reply.
type Status struct {
	Pending        bool    `json:"pending"`
	ElapsedSeconds float64 `json:"elapsed_seconds"`
	State          string  `json:"state"`
}

// GetStatus fetches the chat's wait state.
func (c *Client) GetStatus(chatID string) (*Status, error) {
	var resp Status
	if err := c.doRequest(http.MethodGet, "/api/chats/"+url.PathEscape(chatID)+"/status", nil, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// Favorites returns the user's favorite models.
func (c *Client) Favorites() ([]string, error) {
	var resp struct {
		Models []string `json:"models"`
	}
	if err := c.doRequest(http.MethodGet, "/api/favorites", nil, &resp); err != nil {
		return nil, err
	}
	return resp.Models, nil
}

// SetFavorites replaces the user's favorite models.
func (c *Client) SetFavorites(models []string) ([]string, error) {
	var resp struct {
		Models []string `json:"models"`
	}
	if err := c.doRequest(http.MethodPut, "/api/favorites", map[string][]string{"models": models}, &resp); err != nil {
		return nil, err
	}
	return resp.Models, nil
}

// HealthResponse is the response from the health endpoint.
type HealthResponse struct {
	Status    string                 `json:"status"`
	Version   string                 `json:"version"`
	Region    string                 `json:"region,omitempty"`
	Checks    map[string]interface{} `json:"checks"`
	Timestamp string                 `json:"timestamp"`
}

// Health checks server health. A degraded server is reported as an
// *APIError with status 503.
func (c *Client) Health() (*HealthResponse, error) {
	var resp HealthResponse
	if err := c.doRequest(http.MethodGet, "/health", nil, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}
