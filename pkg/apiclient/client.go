package apiclient

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
	"sync"
	"time"
)

type Client struct {
	baseURL    string
	httpClient *http.Client

	mu    sync.RWMutex
	token string
}

func NewClient(baseURL string) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{
			Timeout: 10 * time.Second,
			Transport: &http.Transport{
				MaxIdleConns:        100,
				MaxIdleConnsPerHost: 10,
				IdleConnTimeout:     90 * time.Second,
			},
		},
	}
}

// APIError is a non-2xx answer from the server.
type APIError struct {
	Status  int
	Message string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("api: %d: %s", e.Status, e.Message)
}

func (c *Client) SetToken(token string) {
	c.mu.Lock()
	c.token = token
	c.mu.Unlock()
}

func (c *Client) Token() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.token
}

func (c *Client) do(ctx context.Context, method, path string, in, out any) error {
	var body io.Reader
	if in != nil {
		b, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		body = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")
	if tok := c.Token(); tok != "" {
		req.Header.Set("Authorization", "Bearer "+tok)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("do request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		apiErr := &APIError{Status: resp.StatusCode}
		var msg struct {
			Message string `json:"message"`
		}
		if err := json.NewDecoder(io.LimitReader(resp.Body, 64<<10)).Decode(&msg); err == nil {
			apiErr.Message = msg.Message
		}
		if apiErr.Message == "" {
			apiErr.Message = http.StatusText(resp.StatusCode)
		}
		return apiErr
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

// Login stores the returned access token for later calls.
func (c *Client) Login(ctx context.Context, username, password string) (*LoginResponse, error) {
	var res LoginResponse
	err := c.do(ctx, http.MethodPost, "/api/login", map[string]string{
		"username": username,
		"password": password,
	}, &res)
	if err != nil {
		return nil, err
	}
	c.SetToken(res.Token)
	return &res, nil
}

func (c *Client) Register(ctx context.Context, username, password, role, email string) (uint, error) {
	var res struct {
		UserID uint `json:"userId"`
	}
	err := c.do(ctx, http.MethodPost, "/api/register", map[string]string{
		"username": username,
		"password": password,
		"role":     role,
		"email":    email,
	}, &res)
	if err != nil {
		return 0, err
	}
	return res.UserID, nil
}

func (c *Client) ListBooks(ctx context.Context, q BookQuery) (*BookPage, error) {
	v := url.Values{}
	if q.Search != "" {
		v.Set("search", q.Search)
	}
	if q.Category != "" {
		v.Set("category", q.Category)
	}
	if q.Sort != "" {
		v.Set("sort", q.Sort)
	}
	if q.Page > 0 {
		v.Set("page", strconv.Itoa(q.Page))
	}
	if q.Limit > 0 {
		v.Set("limit", strconv.Itoa(q.Limit))
	}

	path := "/api/books"
	if len(v) > 0 {
		path += "?" + v.Encode()
	}

	var res BookPage
	if err := c.do(ctx, http.MethodGet, path, nil, &res); err != nil {
		return nil, err
	}
	return &res, nil
}

func (c *Client) GetBook(ctx context.Context, id uint) (*Book, error) {
	var res Book
	if err := c.do(ctx, http.MethodGet, "/api/books/"+strconv.FormatUint(uint64(id), 10), nil, &res); err != nil {
		return nil, err
	}
	return &res, nil
}

func (c *Client) Prepare(ctx context.Context, bookIDs []uint) (*PrepareResponse, error) {
	items := make([]map[string]uint, 0, len(bookIDs))
	for _, id := range bookIDs {
		items = append(items, map[string]uint{"id": id})
	}

	var res PrepareResponse
	if err := c.do(ctx, http.MethodPost, "/api/orders/prepare", map[string]any{"items": items}, &res); err != nil {
		return nil, err
	}
	return &res, nil
}

func (c *Client) Confirm(ctx context.Context, req ConfirmRequest) (*ConfirmResponse, error) {
	var res ConfirmResponse
	if err := c.do(ctx, http.MethodPost, "/api/orders/confirm", req, &res); err != nil {
		return nil, err
	}
	return &res, nil
}

func (c *Client) History(ctx context.Context) ([]HistoryEntry, error) {
	var res []HistoryEntry
	if err := c.do(ctx, http.MethodGet, "/api/orders/history", nil, &res); err != nil {
		return nil, err
	}
	return res, nil
}
