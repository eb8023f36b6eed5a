package storefront

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

	pkgerrors "github.com/angelmondragon/cartsync/pkg/errors"
	"github.com/angelmondragon/cartsync/pkg/logger"
	"github.com/google/uuid"
)

const (
	DefaultCSRFCookie = "csrftoken"
	DefaultCSRFHeader = "X-CSRFToken"
	RequestIDHeader   = "X-Request-Id"

	StatusOK = "ok"

	responseBodyReadLimit int64 = 1024
)

var errBaseURLRequired = errors.New("storefront base url is required")

// Client speaks the storefront's cart, favorites and chatbot endpoints on
// behalf of a single browsing session.
type Client struct {
	httpClient *http.Client
	baseURL    *url.URL
	csrfCookie string
	csrfHeader string
	logg       *logger.Logger
}

// Option configures optional client behavior.
type Option func(*Client)

// WithHTTPClient overrides the default HTTP client. A client without a
// cookie jar gets one so the session and CSRF cookies survive between calls.
func WithHTTPClient(client *http.Client) Option {
	return func(c *Client) {
		if client != nil {
			c.httpClient = client
		}
	}
}

// WithCSRF overrides the cookie the token is read from and the header it is sent in.
func WithCSRF(cookieName, headerName string) Option {
	return func(c *Client) {
		if trimmed := strings.TrimSpace(cookieName); trimmed != "" {
			c.csrfCookie = trimmed
		}
		if trimmed := strings.TrimSpace(headerName); trimmed != "" {
			c.csrfHeader = trimmed
		}
	}
}

func WithLogger(logg *logger.Logger) Option {
	return func(c *Client) {
		if logg != nil {
			c.logg = logg
		}
	}
}

// NewClient builds a storefront client rooted at baseURL.
func NewClient(baseURL string, opts ...Option) (*Client, error) {
	trimmed := strings.TrimRight(strings.TrimSpace(baseURL), "/")
	if trimmed == "" {
		return nil, errBaseURLRequired
	}
	parsed, err := url.Parse(trimmed)
	if err != nil {
		return nil, fmt.Errorf("parse storefront base url: %w", err)
	}

	client := &Client{
		baseURL:    parsed,
		csrfCookie: DefaultCSRFCookie,
		csrfHeader: DefaultCSRFHeader,
		logg:       logger.Nop(),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(client)
		}
	}

	if client.httpClient == nil {
		client.httpClient = &http.Client{}
	}
	if client.httpClient.Jar == nil {
		jar, err := cookiejar.New(nil)
		if err != nil {
			return nil, fmt.Errorf("create cookie jar: %w", err)
		}
		copied := *client.httpClient
		copied.Jar = jar
		client.httpClient = &copied
	}

	return client, nil
}

// BaseURL returns the storefront root the client talks to.
func (c *Client) BaseURL() string {
	return c.baseURL.String()
}

// PrimeSession loads the storefront home page so the server can set the
// session and CSRF cookies, the way a browser does before any script runs.
func (c *Client) PrimeSession(ctx context.Context) error {
	req, err := c.newRequest(ctx, http.MethodGet, "/", nil)
	if err != nil {
		return err
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return wrapTransportError(err, "prime session")
	}
	defer func() { _ = resp.Body.Close() }()
	_, _ = io.Copy(io.Discard, resp.Body)

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, fmt.Errorf("status %d", resp.StatusCode), "prime session failed")
	}
	return nil
}

// CSRFToken returns the token currently held in the cookie jar, if any.
func (c *Client) CSRFToken() string {
	if c.httpClient.Jar == nil {
		return ""
	}
	for _, cookie := range c.httpClient.Jar.Cookies(c.baseURL) {
		if cookie.Name == c.csrfCookie {
			if decoded, err := url.QueryUnescape(cookie.Value); err == nil {
				return decoded
			}
			return cookie.Value
		}
	}
	return ""
}

func (c *Client) buildURL(path string) string {
	trimmed := strings.TrimRight(c.baseURL.String(), "/")
	path = strings.TrimLeft(path, "/")
	return fmt.Sprintf("%s/%s", trimmed, path)
}

func (c *Client) newRequest(ctx context.Context, method, path string, payload any) (*http.Request, error) {
	var body io.Reader
	if payload != nil {
		raw, err := json.Marshal(payload)
		if err != nil {
			return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "marshal request body")
		}
		body = bytes.NewReader(raw)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.buildURL(path), body)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "build storefront request")
	}
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set(RequestIDHeader, uuid.NewString())
	if method != http.MethodGet && method != http.MethodHead {
		if token := c.CSRFToken(); token != "" {
			req.Header.Set(c.csrfHeader, token)
		}
	}
	return req, nil
}

// doJSON sends the request and decodes a JSON body into dest.
func (c *Client) doJSON(ctx context.Context, method, path string, payload, dest any, action string) error {
	req, err := c.newRequest(ctx, method, path, payload)
	if err != nil {
		return err
	}
	ctx = c.logg.WithFields(ctx, map[string]any{
		"request_id": req.Header.Get(RequestIDHeader),
		"method":     method,
		"path":       req.URL.Path,
	})

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return wrapTransportError(err, action)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, responseBodyReadLimit))
		c.logg.Debug(c.logg.WithField(ctx, "status", resp.StatusCode), "storefront.request.failed")
		return pkgerrors.Wrap(pkgerrors.CodeDependency,
			fmt.Errorf("status %d: %s", resp.StatusCode, strings.TrimSpace(string(msg))),
			action+" request failed").
			WithDetails(map[string]any{"http_status": resp.StatusCode})
	}

	if err := json.NewDecoder(resp.Body).Decode(dest); err != nil {
		if isTimeout(err) {
			return wrapTransportError(err, action)
		}
		return pkgerrors.Wrap(pkgerrors.CodeMalformed, err, "decode "+action+" response")
	}
	c.logg.Debug(ctx, "storefront.request.complete")
	return nil
}

func wrapTransportError(err error, action string) error {
	if isTimeout(err) {
		return pkgerrors.Wrap(pkgerrors.CodeTimeout, err, action+" timed out")
	}
	return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "execute "+action+" request")
}

func isTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr interface{ Timeout() bool }
	return errors.As(err, &netErr) && netErr.Timeout()
}
