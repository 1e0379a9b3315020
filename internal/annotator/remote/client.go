// Package remote: HTTP-клиент API shapes: identity, CSRF-токен, загрузка и
// сохранение shapes, данные проекта.
package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"strings"
	"sync"
	"time"

	"shape-annotator/internal/annotator/syncer"
	"shape-annotator/internal/shapes/models"
)

const CSRFHeader = "X-CSRFToken"

// ============================================================
// Client
// ============================================================

type Client struct {
	baseURL string
	http    *http.Client

	mu   sync.Mutex
	csrf string
}

type Option func(*Client)

// WithHTTPClient подменяет http.Client; cookie jar остаётся на совести вызывающего.
func WithHTTPClient(h *http.Client) Option {
	return func(c *Client) { c.http = h }
}

func WithTimeout(d time.Duration) Option {
	return func(c *Client) { c.http.Timeout = d }
}

// New создаёт клиент с cookie jar: сессия живёт в cookie, как у браузера.
func New(baseURL string, opts ...Option) (*Client, error) {
	u, err := url.Parse(baseURL)
	if err != nil {
		return nil, fmt.Errorf("parse base url: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("base url %q: unsupported scheme", baseURL)
	}

	jar, err := cookiejar.New(nil)
	if err != nil {
		return nil, fmt.Errorf("cookie jar: %w", err)
	}

	c := &Client{
		baseURL: strings.TrimRight(u.String(), "/"),
		http:    &http.Client{Jar: jar, Timeout: 10 * time.Second},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// ============================================================
// Auth
// ============================================================

func (c *Client) Login(ctx context.Context, email, password string) error {
	body := map[string]string{"email": email, "password": password}
	return c.do(ctx, "login", http.MethodPost, "/api/login/", body, nil, nil)
}

// CurrentUser реализует syncer.IdentityResolver.
func (c *Client) CurrentUser(ctx context.Context) (string, error) {
	var resp struct {
		Email string `json:"email"`
	}
	if err := c.do(ctx, "fetch user email", http.MethodGet, "/api/users/me/", nil, nil, &resp); err != nil {
		return "", err
	}
	if resp.Email == "" {
		return "", &syncer.RemoteError{Op: "fetch user email", Err: errors.New("empty email")}
	}
	return resp.Email, nil
}

// CSRFToken получает токен один раз на сессию и дальше отдаёт из кеша.
func (c *Client) CSRFToken(ctx context.Context) (string, error) {
	c.mu.Lock()
	token := c.csrf
	c.mu.Unlock()
	if token != "" {
		return token, nil
	}

	var resp struct {
		CSRFToken string `json:"csrfToken"`
	}
	if err := c.do(ctx, "fetch csrf token", http.MethodGet, "/api/get-csrf-token/", nil, nil, &resp); err != nil {
		return "", err
	}

	c.mu.Lock()
	c.csrf = resp.CSRFToken
	c.mu.Unlock()
	return resp.CSRFToken, nil
}

// ============================================================
// Shapes (syncer.RemoteStore)
// ============================================================

func (c *Client) Load(ctx context.Context, id models.Identity) (models.ShapeList, error) {
	path := "/api/load-shapes/" + url.PathEscape(id.ProjectTitle) + "/?userEmail=" + url.QueryEscape(id.UserEmail)

	var shapes models.ShapeList
	if err := c.do(ctx, "load shapes", http.MethodGet, path, nil, nil, &shapes); err != nil {
		return nil, err
	}
	if shapes == nil {
		shapes = models.ShapeList{}
	}
	return shapes, nil
}

type saveRequest struct {
	UserEmail string           `json:"userEmail"`
	Shapes    models.ShapeList `json:"shapes"`
}

func (c *Client) Save(ctx context.Context, id models.Identity, shapes models.ShapeList) error {
	token, err := c.CSRFToken(ctx)
	if err != nil {
		return err
	}

	path := "/api/save-shapes/" + url.PathEscape(id.ProjectTitle) + "/"
	body := saveRequest{UserEmail: id.UserEmail, Shapes: shapes}
	err = c.do(ctx, "save shapes", http.MethodPost, path, body, map[string]string{CSRFHeader: token}, nil)

	var remoteErr *syncer.RemoteError
	if errors.As(err, &remoteErr) && remoteErr.Status == http.StatusForbidden {
		// токен мог протухнуть вместе с сессией; следующий save возьмёт новый
		c.mu.Lock()
		c.csrf = ""
		c.mu.Unlock()
	}
	return err
}

// ============================================================
// Project Data
// ============================================================

func (c *Client) ProjectData(ctx context.Context, project string) ([]models.PlotPoint, error) {
	var points []models.PlotPoint
	path := "/api/user-project-data/" + url.PathEscape(project) + "/"
	if err := c.do(ctx, "fetch data", http.MethodGet, path, nil, nil, &points); err != nil {
		return nil, err
	}
	return points, nil
}

// ============================================================
// Transport
// ============================================================

func (c *Client) do(ctx context.Context, op, method, path string, body any, header map[string]string, out any) error {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("%s: encode: %w", op, err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return &syncer.RemoteError{Op: op, Err: err}
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	for k, v := range header {
		req.Header.Set(k, v)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return &syncer.RemoteError{Op: op, Err: err}
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return &syncer.RemoteError{Op: op, Status: resp.StatusCode, Err: err}
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return &syncer.RemoteError{Op: op, Status: resp.StatusCode, Err: statusError(resp.StatusCode, data)}
	}

	if out == nil || len(data) == 0 {
		return nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return &syncer.RemoteError{Op: op, Status: resp.StatusCode, Err: fmt.Errorf("decode: %w", err)}
	}
	return nil
}

func statusError(status int, body []byte) error {
	if status == http.StatusNotFound {
		return syncer.ErrNotFound
	}
	var payload struct {
		Error string `json:"error"`
	}
	if json.Unmarshal(body, &payload) == nil && payload.Error != "" {
		return errors.New(payload.Error)
	}
	return errors.New(http.StatusText(status))
}
