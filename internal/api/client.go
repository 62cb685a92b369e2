package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"
)

// ErrUnauthorized is returned when the backend rejects the bearer token.
// Callers treat it as "login required" rather than a transport failure.
var ErrUnauthorized = errors.New("unauthorized")

// Error is a non-2xx backend response.
type Error struct {
	Status  int
	Message string
}

func (e *Error) Error() string {
	if strings.TrimSpace(e.Message) == "" {
		return fmt.Sprintf("backend error (status %d)", e.Status)
	}
	return fmt.Sprintf("%s (status %d)", e.Message, e.Status)
}

// Client is a thin JSON client for the PRPO chat backend. All methods take
// the bearer token explicitly; the client holds no credential state.
type Client struct {
	BaseURL    string
	HTTPClient *http.Client
}

func New(baseURL string) *Client {
	return &Client{
		BaseURL: strings.TrimRight(strings.TrimSpace(baseURL), "/"),
		HTTPClient: &http.Client{
			Timeout: 120 * time.Second,
		},
	}
}

func (c *Client) CreateChat(ctx context.Context, token string) (ChatSummary, error) {
	var out ChatSummary
	if err := c.do(ctx, token, http.MethodPost, "/api/v1/chat", struct{}{}, &out); err != nil {
		return ChatSummary{}, fmt.Errorf("create chat: %w", err)
	}
	if out.UpdatedAt.IsZero() {
		out.UpdatedAt = out.CreatedAt
	}
	return out, nil
}

func (c *Client) GetChat(ctx context.Context, token, id string) (ChatDetail, error) {
	var out ChatDetail
	path := "/api/v1/chat/" + url.PathEscape(id)
	if err := c.do(ctx, token, http.MethodGet, path, nil, &out); err != nil {
		return ChatDetail{}, fmt.Errorf("get chat: %w", err)
	}
	return out, nil
}

func (c *Client) ListChats(ctx context.Context, token string, limit int, cursor string) (ChatPage, error) {
	q := url.Values{}
	if limit > 0 {
		q.Set("limit", strconv.Itoa(limit))
	}
	if strings.TrimSpace(cursor) != "" {
		q.Set("cursor", cursor)
	}
	path := "/api/v1/chat"
	if enc := q.Encode(); enc != "" {
		path += "?" + enc
	}
	var out ChatPage
	if err := c.do(ctx, token, http.MethodGet, path, nil, &out); err != nil {
		return ChatPage{}, fmt.Errorf("list chats: %w", err)
	}
	return out, nil
}

type sendMessageRequest struct {
	Content        string          `json:"content"`
	ModelOverrides *modelOverrides `json:"modelOverrides,omitempty"`
}

type modelOverrides struct {
	ForceProviderID string `json:"forceProviderId,omitempty"`
	ForceModelID    string `json:"forceModelId,omitempty"`
}

// SendMessage submits content to a conversation and waits for the assistant
// reply. Empty override ids let the backend route automatically.
func (c *Client) SendMessage(ctx context.Context, token, id, content, forceProviderID, forceModelID string) (SendResult, error) {
	body := sendMessageRequest{Content: content}
	if forceProviderID != "" || forceModelID != "" {
		body.ModelOverrides = &modelOverrides{
			ForceProviderID: forceProviderID,
			ForceModelID:    forceModelID,
		}
	}
	var out SendResult
	path := "/api/v1/chat/" + url.PathEscape(id) + "/message"
	if err := c.do(ctx, token, http.MethodPost, path, body, &out); err != nil {
		return SendResult{}, fmt.Errorf("send message: %w", err)
	}
	return out, nil
}

func (c *Client) DeleteChat(ctx context.Context, token, id string) error {
	path := "/api/v1/chat/" + url.PathEscape(id)
	if err := c.do(ctx, token, http.MethodDelete, path, nil, nil); err != nil {
		return fmt.Errorf("delete chat: %w", err)
	}
	return nil
}

func (c *Client) Usage(ctx context.Context, token, from, to string) (UsageSummary, error) {
	q := url.Values{}
	if strings.TrimSpace(from) != "" {
		q.Set("from", from)
	}
	if strings.TrimSpace(to) != "" {
		q.Set("to", to)
	}
	path := "/api/v1/usage"
	if enc := q.Encode(); enc != "" {
		path += "?" + enc
	}
	var out UsageSummary
	if err := c.do(ctx, token, http.MethodGet, path, nil, &out); err != nil {
		return UsageSummary{}, fmt.Errorf("usage: %w", err)
	}
	return out, nil
}

// DeviceLogin is the backend's device-authorization grant: start a login,
// show the user a verification URL and code, then poll for the token.
type DeviceLogin struct {
	DeviceCode      string `json:"deviceCode"`
	UserCode        string `json:"userCode"`
	VerificationURI string `json:"verificationUri"`
	IntervalSeconds int    `json:"interval"`
	ExpiresIn       int    `json:"expiresIn"`
}

var errAuthorizationPending = errors.New("authorization pending")

// IsAuthorizationPending reports whether a DeviceToken poll should be
// retried after the grant interval.
func IsAuthorizationPending(err error) bool {
	return errors.Is(err, errAuthorizationPending)
}

func (c *Client) DeviceStart(ctx context.Context) (DeviceLogin, error) {
	var out DeviceLogin
	if err := c.do(ctx, "", http.MethodPost, "/api/v1/auth/device", struct{}{}, &out); err != nil {
		return DeviceLogin{}, fmt.Errorf("start device login: %w", err)
	}
	if out.IntervalSeconds <= 0 {
		out.IntervalSeconds = 5
	}
	return out, nil
}

func (c *Client) DeviceToken(ctx context.Context, deviceCode string) (string, error) {
	body := struct {
		DeviceCode string `json:"deviceCode"`
	}{DeviceCode: deviceCode}

	var out struct {
		AccessToken string `json:"accessToken"`
	}
	err := c.do(ctx, "", http.MethodPost, "/api/v1/auth/device/token", body, &out)
	if err != nil {
		var apiErr *Error
		if errors.As(err, &apiErr) && apiErr.Status == http.StatusTooEarly {
			return "", errAuthorizationPending
		}
		return "", fmt.Errorf("poll device login: %w", err)
	}
	if strings.TrimSpace(out.AccessToken) == "" {
		return "", errors.New("poll device login: empty token")
	}
	return out.AccessToken, nil
}

func (c *Client) do(ctx context.Context, token, method, path string, body, out any) error {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshal request: %w", err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.BaseURL+path, reader)
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden {
		return ErrUnauthorized
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return parseError(resp)
	}
	if out == nil || resp.StatusCode == http.StatusNoContent {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

func parseError(resp *http.Response) error {
	raw, _ := io.ReadAll(io.LimitReader(resp.Body, 8*1024))

	var payload struct {
		Error   string `json:"error"`
		Message string `json:"message"`
	}
	msg := ""
	if json.Unmarshal(raw, &payload) == nil {
		msg = payload.Error
		if msg == "" {
			msg = payload.Message
		}
	}
	if msg == "" {
		msg = strings.TrimSpace(string(raw))
	}
	return &Error{Status: resp.StatusCode, Message: msg}
}
