// Package provision implements the client of the remote user-provisioning API.
package provision

//go:generate go tool errtrace -w .

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	"braces.dev/errtrace"

	"github.com/ghettovoice/softphone/internal/errorutil"
	"github.com/ghettovoice/softphone/internal/log"
	"github.com/ghettovoice/softphone/user"
)

// Provisioning errors.
const (
	ErrInvalidArgument                    = errorutil.ErrInvalidArgument
	ErrEmptyResponse      errorutil.Error = "empty response"
	ErrUnexpectedResponse errorutil.Error = "unexpected response data"
	ErrUnmarshal          errorutil.Error = "could not create objects from response data"
)

// DefaultTimeout is the request timeout used when none is configured.
const DefaultTimeout = 15 * time.Second

const maxResponseSize = 1 << 20

// ClientOptions are options of the [Client].
type ClientOptions struct {
	// HTTPClient is the HTTP client used to send requests.
	// If nil, a client with [DefaultTimeout] is used.
	HTTPClient *http.Client
	// Log is the logger used by the client.
	// If nil, the [log.Default] is used.
	Log *slog.Logger
}

func (o *ClientOptions) httpClient() *http.Client {
	if o == nil || o.HTTPClient == nil {
		return &http.Client{Timeout: DefaultTimeout}
	}
	return o.HTTPClient
}

func (o *ClientOptions) log() *slog.Logger {
	if o == nil || o.Log == nil {
		return log.Default()
	}
	return o.Log
}

// Client is a client of the provisioning API.
type Client struct {
	base *url.URL
	http *http.Client
	log  *slog.Logger
}

// NewClient creates a client for the API served at baseURL (without trailing slash).
func NewClient(baseURL string, opts *ClientOptions) (*Client, error) {
	base, err := url.Parse(baseURL)
	if err != nil {
		return nil, errtrace.Wrap(errorutil.NewInvalidArgumentError(err))
	}
	if base.Scheme != "http" && base.Scheme != "https" || base.Host == "" {
		return nil, errtrace.Wrap(errorutil.NewInvalidArgumentError("invalid server URL %q", baseURL))
	}
	return &Client{
		base: base,
		http: opts.httpClient(),
		log:  opts.log(),
	}, nil
}

type createUserRequest struct {
	UserName string `json:"userName"`
	Password string `json:"password"`
}

// CreateUser creates the user if it does not exist and returns its SIP credentials.
// The returned user carries the password it was created with.
func (c *Client) CreateUser(ctx context.Context, name, password string) (*user.User, error) {
	if name == "" {
		return nil, errtrace.Wrap(errorutil.NewInvalidArgumentError("empty user name"))
	}

	body, err := json.Marshal(createUserRequest{UserName: name, Password: password})
	if err != nil {
		return nil, errtrace.Wrap(err)
	}

	data, err := c.do(ctx, http.MethodPost, "/users", body)
	if err != nil {
		return nil, errtrace.Wrap(err)
	}

	var obj map[string]json.RawMessage
	if err := json.Unmarshal(data, &obj); err != nil || obj == nil {
		return nil, errtrace.Wrap(errorutil.NewWrapperError(ErrUnexpectedResponse, "response data was not a JSON object"))
	}

	u, err := user.Parse(data)
	if err != nil {
		return nil, errtrace.Wrap(errorutil.NewWrapperError(ErrUnmarshal, err))
	}
	u.Password = &password

	c.log.LogAttrs(ctx, slog.LevelInfo, "user provisioned", slog.Any("user", u))
	return u, nil
}

func (c *Client) do(ctx context.Context, method, path string, body []byte) ([]byte, error) {
	u := c.base.JoinPath(path)

	var rd io.Reader
	if body != nil {
		rd = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, u.String(), rd)
	if err != nil {
		return nil, errtrace.Wrap(err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")

	c.log.LogAttrs(ctx, slog.LevelDebug, "send request", slog.String("method", method), slog.String("url", u.String()))

	res, err := c.http.Do(req)
	if err != nil {
		c.log.LogAttrs(ctx, slog.LevelWarn, "request failed",
			slog.String("url", u.String()),
			slog.Bool("timeout", errorutil.IsTimeoutErr(err)),
			slog.Any("error", err),
		)
		return nil, errtrace.Wrap(err)
	}
	defer res.Body.Close()

	data, err := io.ReadAll(io.LimitReader(res.Body, maxResponseSize))
	if err != nil {
		return nil, errtrace.Wrap(err)
	}

	c.log.LogAttrs(ctx, slog.LevelDebug, "receive response", slog.Int("status", res.StatusCode), slog.Int("size", len(data)))

	if res.StatusCode < 200 || res.StatusCode > 299 {
		return nil, errtrace.Wrap(errorutil.NewWrapperError(ErrUnexpectedResponse, "status %d", res.StatusCode))
	}
	if len(bytes.TrimSpace(data)) == 0 {
		return nil, errtrace.Wrap(ErrEmptyResponse)
	}
	return data, nil
}
