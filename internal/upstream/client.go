// Package upstream talks to the REST backend that owns the panel's data.
// Every response is a {code, msg, data} envelope; only code 200 is success.
package upstream

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/frahmantamala/trading-panel/internal"
	"github.com/go-resty/resty/v2"
)

const SuccessCode = 200

// ErrTransport marks failures where no usable envelope came back.
var ErrTransport = errors.New("upstream transport failure")

// ResponseError is an application-level rejection: the backend answered with a
// code other than 200.
type ResponseError struct {
	Code int
	Msg  string
}

func (e *ResponseError) Error() string {
	return fmt.Sprintf("upstream rejected request: code %d: %s", e.Code, e.Msg)
}

// Message is the user-facing text for a failed call: the backend's own message
// for a rejection, a generic one for anything else.
func Message(err error) string {
	var rejected *ResponseError
	if errors.As(err, &rejected) && rejected.Msg != "" {
		return rejected.Msg
	}
	return internal.GenericTransportMessage
}

// AppError maps a failed call onto the panel's error taxonomy.
func AppError(err error) *internal.AppError {
	var rejected *ResponseError
	if errors.As(err, &rejected) {
		return &internal.AppError{
			Type:       internal.ErrorTypeExternal,
			Code:       internal.ErrCodeUpstreamRejected,
			Message:    Message(err),
			StatusCode: http.StatusUnprocessableEntity,
			Cause:      err,
		}
	}
	return internal.NewExternalError(internal.GenericTransportMessage, internal.ErrCodeUpstreamUnavailable, err)
}

type Envelope struct {
	Code int             `json:"code"`
	Msg  string          `json:"msg"`
	Data json.RawMessage `json:"data"`
}

type Config struct {
	BaseURL    string
	Timeout    time.Duration
	RetryCount int
}

type Client struct {
	rest   *resty.Client
	logger *slog.Logger
}

func NewClient(cfg Config, logger *slog.Logger) *Client {
	if logger == nil {
		logger = slog.Default()
	}

	rc := resty.New().
		SetBaseURL(cfg.BaseURL).
		SetTimeout(cfg.Timeout).
		SetHeader("Content-Type", "application/json").
		SetHeader("Accept", "application/json")

	if cfg.RetryCount > 0 {
		rc.SetRetryCount(cfg.RetryCount).
			SetRetryWaitTime(500 * time.Millisecond).
			SetRetryMaxWaitTime(3 * time.Second)
	}

	return &Client{rest: rc, logger: logger}
}

func ByIDPath(slug, id string) string {
	return "/api/panel-fetch-" + slug + "-by-id/" + url.PathEscape(id)
}

func CreatePath(slug string) string {
	return "/api/panel-create-" + slug
}

func UpdatePath(slug, id string) string {
	return "/api/panel-update-" + slug + "/" + url.PathEscape(id)
}

func ListPath(slug string) string {
	return "/api/panel-fetch-" + slug + "-list"
}

func (c *Client) request(ctx context.Context, token string) *resty.Request {
	req := c.rest.R().SetContext(ctx)
	if token != "" {
		req.SetAuthToken(token)
	}
	return req
}

// do runs the request and returns the raw body once the envelope reports
// success.
func (c *Client) do(req *resty.Request, method, path string) ([]byte, error) {
	lg := c.logger.With(internal.LogAttrs(req.Context())...)

	resp, err := req.Execute(method, path)
	if err != nil {
		lg.ErrorContext(req.Context(), "upstream call failed", "method", method, "path", path, "error", err)
		return nil, fmt.Errorf("%w: %s %s: %v", ErrTransport, method, path, err)
	}

	body := resp.Body()
	var env Envelope
	decodeErr := json.Unmarshal(body, &env)

	if resp.IsError() {
		// a rejection with a message is still an application answer
		if decodeErr == nil && env.Msg != "" {
			return nil, &ResponseError{Code: env.Code, Msg: env.Msg}
		}
		lg.WarnContext(req.Context(), "upstream returned http error", "method", method, "path", path, "status", resp.StatusCode())
		return nil, fmt.Errorf("%w: %s %s: http status %d", ErrTransport, method, path, resp.StatusCode())
	}

	if decodeErr != nil {
		return nil, fmt.Errorf("%w: %s %s: decode envelope: %v", ErrTransport, method, path, decodeErr)
	}

	// fetch responses carry the record without a code
	if env.Code != 0 && env.Code != SuccessCode {
		lg.InfoContext(req.Context(), "upstream rejected request", "path", path, "code", env.Code, "msg", env.Msg)
		return nil, &ResponseError{Code: env.Code, Msg: env.Msg}
	}

	return body, nil
}

// ID is a user or record identifier; the backend sends either strings or
// numbers and the panel compares them as strings.
type ID string

func (id *ID) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if bytes.Equal(data, []byte("null")) {
		*id = ""
		return nil
	}
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		*id = ID(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return fmt.Errorf("id %s is neither a string nor a number", string(data))
	}
	*id = ID(n.String())
	return nil
}

// Timestamp reads the backend's date-times. Besides RFC 3339 it accepts
// "2006-01-02 15:04:05" and "2006-01-02T15:04:05" (taken as UTC) and unix
// seconds. Null or "" leaves it zero.
type Timestamp struct {
	time.Time
}

var timestampLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02 15:04:05",
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05Z07:00",
}

func (t *Timestamp) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		t.Time = time.Time{}
		return nil
	}

	if data[0] != '"' {
		secs, err := strconv.ParseInt(string(data), 10, 64)
		if err != nil {
			return fmt.Errorf("timestamp %s is neither a string nor unix seconds", string(data))
		}
		t.Time = time.Unix(secs, 0).UTC()
		return nil
	}

	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	if s = strings.TrimSpace(s); s == "" {
		t.Time = time.Time{}
		return nil
	}
	for _, layout := range timestampLayouts {
		if parsed, err := time.Parse(layout, s); err == nil {
			t.Time = parsed
			return nil
		}
	}
	return fmt.Errorf("unrecognized timestamp %q", s)
}

type Credentials struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type UserPayload struct {
	ID          ID     `json:"id"`
	Name        string `json:"name"`
	Email       string `json:"email"`
	Position    string `json:"position"`
	CompanyID   ID     `json:"company_id"`
	CompanyName string `json:"company_name"`
}

// LoginResult is the data of a successful login. Both permission tables arrive
// as JSON-encoded strings and are decoded by the caller.
type LoginResult struct {
	User            UserPayload     `json:"user"`
	Token           string          `json:"token"`
	TokenExpiry     Timestamp       `json:"token_expiry"`
	Permissions     json.RawMessage `json:"permissions"`
	PagePermissions json.RawMessage `json:"page_permissions"`
}

func (c *Client) Login(ctx context.Context, creds Credentials) (*LoginResult, error) {
	body, err := c.do(c.request(ctx, "").SetBody(creds), resty.MethodPost, "/api/panel-login")
	if err != nil {
		return nil, err
	}

	var env struct {
		Data LoginResult `json:"data"`
	}
	if err := json.Unmarshal(body, &env); err != nil {
		return nil, fmt.Errorf("%w: decode login: %v", ErrTransport, err)
	}
	if env.Data.Token == "" {
		return nil, fmt.Errorf("%w: login response carries no token", ErrTransport)
	}
	return &env.Data, nil
}

func (c *Client) Logout(ctx context.Context, token string) error {
	_, err := c.do(c.request(ctx, token), resty.MethodPost, "/api/panel-logout")
	return err
}

// Result is the outcome of a create or update.
type Result struct {
	Code int
	Msg  string
}

// FetchByID loads one record. The record sits under responseKey, either at the
// top level or inside data.
func (c *Client) FetchByID(ctx context.Context, token, slug, responseKey, id string) (map[string]json.RawMessage, error) {
	path := ByIDPath(slug, id)
	body, err := c.do(c.request(ctx, token), resty.MethodGet, path)
	if err != nil {
		return nil, err
	}

	var top map[string]json.RawMessage
	if err := json.Unmarshal(body, &top); err != nil {
		return nil, fmt.Errorf("%w: decode %s: %v", ErrTransport, path, err)
	}

	raw, ok := top[responseKey]
	if !ok {
		var nested map[string]json.RawMessage
		if data, hasData := top["data"]; hasData && json.Unmarshal(data, &nested) == nil {
			raw, ok = nested[responseKey]
		}
	}
	if !ok || bytes.Equal(bytes.TrimSpace(raw), []byte("null")) {
		return nil, fmt.Errorf("%w: %s: response has no %q record", ErrTransport, path, responseKey)
	}

	var record map[string]json.RawMessage
	if err := json.Unmarshal(raw, &record); err != nil {
		return nil, fmt.Errorf("%w: decode %s record: %v", ErrTransport, responseKey, err)
	}
	return record, nil
}

func (c *Client) Create(ctx context.Context, token, slug string, fields map[string]string) (*Result, error) {
	return c.submit(c.request(ctx, token).SetBody(fields), resty.MethodPost, CreatePath(slug))
}

func (c *Client) Update(ctx context.Context, token, slug, id string, fields map[string]string) (*Result, error) {
	return c.submit(c.request(ctx, token).SetBody(fields), resty.MethodPut, UpdatePath(slug, id))
}

func (c *Client) submit(req *resty.Request, method, path string) (*Result, error) {
	body, err := c.do(req, method, path)
	if err != nil {
		return nil, err
	}
	var env Envelope
	if err := json.Unmarshal(body, &env); err != nil {
		return nil, fmt.Errorf("%w: decode %s: %v", ErrTransport, path, err)
	}
	// a write must acknowledge with an explicit code
	if env.Code != SuccessCode {
		return nil, &ResponseError{Code: env.Code, Msg: env.Msg}
	}
	return &Result{Code: env.Code, Msg: env.Msg}, nil
}

// Page is one page of a list endpoint.
type Page struct {
	Rows     []json.RawMessage
	Total    int
	LastPage int
}

type listData struct {
	Data     []json.RawMessage `json:"data"`
	Total    json.Number       `json:"total"`
	LastPage json.Number       `json:"last_page"`
}

// FetchList loads one page from a list endpoint: {data: {data, total, last_page}}.
func (c *Client) FetchList(ctx context.Context, token, path string, params url.Values) (*Page, error) {
	body, err := c.do(c.request(ctx, token).SetQueryParamsFromValues(params), resty.MethodGet, path)
	if err != nil {
		return nil, err
	}

	var env struct {
		Data listData `json:"data"`
	}
	if err := json.Unmarshal(body, &env); err != nil {
		return nil, fmt.Errorf("%w: decode %s: %v", ErrTransport, path, err)
	}

	page := &Page{Rows: env.Data.Data}
	if page.Rows == nil {
		page.Rows = []json.RawMessage{}
	}
	page.Total = atoi(env.Data.Total)
	page.LastPage = atoi(env.Data.LastPage)
	return page, nil
}

func atoi(n json.Number) int {
	v, err := strconv.Atoi(n.String())
	if err != nil {
		return 0
	}
	return v
}
