package remnawave

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"golang.org/x/time/rate"

	"remna-bot/internal/syncerr"
)

const (
	ModeRemote = "remote"
	// ModeLocal - панель в той же docker-сети, ей нужны заголовки обратного прокси
	ModeLocal = "local"

	defaultPageSize = 500
	defaultTimeout  = 30 * time.Second
)

type Config struct {
	BaseURL    string
	Token      string
	Mode       string
	RPS        float64
	PageSize   int
	Timeout    time.Duration
	HTTPClient *http.Client
}

type Client struct {
	baseURL  string
	token    string
	mode     string
	pageSize int
	http     *http.Client
	limiter  *rate.Limiter
}

// NewClient не проверяет наличие реквизитов: без них каждый вызов вернёт ConfigurationError
func NewClient(cfg Config) (*Client, error) {
	if cfg.BaseURL != "" {
		if _, err := url.ParseRequestURI(cfg.BaseURL); err != nil {
			return nil, fmt.Errorf("invalid remnawave url %q: %w", cfg.BaseURL, err)
		}
	}

	httpClient := cfg.HTTPClient
	if httpClient == nil {
		timeout := cfg.Timeout
		if timeout == 0 {
			timeout = defaultTimeout
		}
		httpClient = &http.Client{Timeout: timeout}
	}

	pageSize := cfg.PageSize
	if pageSize <= 0 {
		pageSize = defaultPageSize
	}

	limiter := rate.NewLimiter(rate.Inf, 1)
	if cfg.RPS > 0 {
		burst := int(cfg.RPS)
		if burst < 1 {
			burst = 1
		}
		limiter = rate.NewLimiter(rate.Limit(cfg.RPS), burst)
	}

	return &Client{
		baseURL:  cfg.BaseURL,
		token:    cfg.Token,
		mode:     cfg.Mode,
		pageSize: pageSize,
		http:     httpClient,
		limiter:  limiter,
	}, nil
}

func (c *Client) Close() error {
	c.http.CloseIdleConnections()
	return nil
}

// ListUsers выгружает всех пользователей панели постранично
func (c *Client) ListUsers(ctx context.Context) ([]User, error) {
	var all []User
	start := 0
	for {
		query := url.Values{}
		query.Set("start", strconv.Itoa(start))
		query.Set("size", strconv.Itoa(c.pageSize))

		var page envelope[usersPage]
		if err := c.do(ctx, "list users", http.MethodGet, "/api/users?"+query.Encode(), nil, &page); err != nil {
			return nil, err
		}

		all = append(all, page.Response.Users...)
		start += len(page.Response.Users)

		if len(page.Response.Users) == 0 || start >= page.Response.Total {
			break
		}
	}

	slog.Debug("Fetched remnawave users", "count", len(all))
	return all, nil
}

func (c *Client) CreateUser(ctx context.Context, req *CreateUserRequest) (*User, error) {
	var resp envelope[User]
	if err := c.do(ctx, "create user", http.MethodPost, "/api/users", req, &resp); err != nil {
		return nil, err
	}
	return &resp.Response, nil
}

func (c *Client) UpdateUser(ctx context.Context, req *UpdateUserRequest) (*User, error) {
	var resp envelope[User]
	if err := c.do(ctx, "update user", http.MethodPatch, "/api/users", req, &resp); err != nil {
		return nil, err
	}
	return &resp.Response, nil
}

func (c *Client) DisableUser(ctx context.Context, userUUID string) error {
	path := "/api/users/" + url.PathEscape(userUUID) + "/actions/disable"
	return c.do(ctx, "disable user", http.MethodPost, path, nil, nil)
}

// UpdateUserSquads заменяет набор внутренних сквадов пользователя
func (c *Client) UpdateUserSquads(ctx context.Context, userUUID string, squads []string) error {
	if squads == nil {
		squads = []string{}
	}
	_, err := c.UpdateUser(ctx, &UpdateUserRequest{UUID: userUUID, ActiveInternalSquads: &squads})
	return err
}

func (c *Client) ListSquads(ctx context.Context) ([]Squad, error) {
	var resp envelope[squadsPage]
	if err := c.do(ctx, "list squads", http.MethodGet, "/api/internal-squads", nil, &resp); err != nil {
		return nil, err
	}
	return resp.Response.InternalSquads, nil
}

// Ping проверяет доступность панели и валидность токена
func (c *Client) Ping(ctx context.Context) error {
	return c.do(ctx, "ping", http.MethodGet, "/api/system/stats", nil, nil)
}

func (c *Client) do(ctx context.Context, op, method, path string, body, out interface{}) error {
	if c.baseURL == "" || c.token == "" {
		return syncerr.NotConfigured("REMNAWAVE_URL and REMNAWAVE_TOKEN must be set")
	}

	if err := c.limiter.Wait(ctx); err != nil {
		return &syncerr.RemoteError{Op: op, Code: syncerr.CodeTransport, Err: err}
	}

	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return &syncerr.RemoteError{Op: op, Code: syncerr.CodeDecode, Err: err}
		}
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return &syncerr.RemoteError{Op: op, Code: syncerr.CodeTransport, Err: err}
	}
	req.Header.Set("Authorization", "Bearer "+c.token)
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.mode == ModeLocal {
		req.Header.Set("X-Forwarded-For", "127.0.0.1")
		req.Header.Set("X-Forwarded-Proto", "https")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return &syncerr.RemoteError{Op: op, Code: syncerr.CodeTransport, Err: err}
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return &syncerr.RemoteError{Op: op, Code: syncerr.CodeTransport, Status: resp.StatusCode, Err: err}
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return statusError(op, resp.StatusCode, data)
	}

	if out == nil || len(data) == 0 {
		return nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return &syncerr.RemoteError{Op: op, Code: syncerr.CodeDecode, Status: resp.StatusCode, Err: err}
	}
	return nil
}

func statusError(op string, status int, data []byte) error {
	var body apiError
	_ = json.Unmarshal(data, &body)

	if status == http.StatusUnauthorized || status == http.StatusForbidden {
		return fmt.Errorf("%s: %w", op, syncerr.NotConfigured(fmt.Sprintf("panel rejected token (status %d)", status)))
	}

	code := body.ErrorCode
	if code == "" {
		switch status {
		case http.StatusNotFound:
			code = syncerr.CodeNotFound
		case http.StatusTooManyRequests:
			code = syncerr.CodeRateLimited
		default:
			code = syncerr.CodeUnknown
		}
	}

	msg := body.Message
	if msg == "" {
		msg = string(bytes.TrimSpace(data))
		if len(msg) > 200 {
			msg = msg[:200]
		}
	}

	return &syncerr.RemoteError{Op: op, Code: code, Status: status, Msg: msg}
}

// IsNotFound сообщает, что панель не знает такого пользователя
func IsNotFound(err error) bool {
	var remoteErr *syncerr.RemoteError
	return errors.As(err, &remoteErr) && remoteErr.Status == http.StatusNotFound
}
