// Package workbook is a client for the workbook service's REST API.
//
// Every call is timed and reported to a metrics.Recorder under its operation
// name, so the client doubles as the measurement point of a load test.
package workbook

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

	"github.com/google/uuid"
	"github.com/santhosh-tekuri/jsonschema/v5"
	"github.com/tidwall/gjson"

	"github.com/wesleyorama2/sheetload/internal/metrics"
)

// Operation names, used as request names in metrics.
const (
	OpLogin          = "login"
	OpCreateWorkbook = "create_workbook"
	OpOpenWorkbook   = "open_workbook"
	OpEditCell       = "edit_cell"
	OpAddFormula     = "add_formula"
	OpCreateChart    = "create_chart"
	OpSaveWorkbook   = "save_workbook"
)

// RequestIDHeader carries a unique id on every request.
const RequestIDHeader = "X-Request-ID"

// createdSchema describes the body of a 201 from the create endpoints.
var createdSchema = jsonschema.MustCompileString("created.json", `{
	"type": "object",
	"required": ["id"],
	"properties": {
		"id": {"type": ["string", "integer"]}
	}
}`)

// tokenPaths are where a login response may carry a bearer token.
var tokenPaths = []string{"token", "access_token", "data.token.access_token"}

// Credentials authenticate a session.
type Credentials struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// CellUpdate is the body of a cell PATCH. Exactly one field is set.
type CellUpdate struct {
	Value   *int   `json:"value,omitempty"`
	Formula string `json:"formula,omitempty"`
}

// Client talks to one workbook service on behalf of one session.
// Each client has its own cookie jar; share a Transport to pool connections.
type Client struct {
	httpClient     *http.Client
	baseURL        string
	headers        map[string]string
	recorder       metrics.Recorder
	checkResponses bool

	mu    sync.RWMutex
	token string
}

// ClientOption is a function that configures a Client
type ClientOption func(*Client)

// NewClient creates a new client with the given options
func NewClient(options ...ClientOption) *Client {
	// cookiejar.New only fails on a non-nil PublicSuffixList error path.
	jar, _ := cookiejar.New(nil)

	client := &Client{
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
			Jar:     jar,
		},
		headers: map[string]string{
			"Accept": "application/json",
		},
	}

	for _, option := range options {
		option(client)
	}

	return client
}

// WithBaseURL sets the service root, e.g. http://localhost:8080
func WithBaseURL(baseURL string) ClientOption {
	return func(c *Client) {
		c.baseURL = strings.TrimRight(baseURL, "/")
	}
}

// WithTimeout sets the per-request timeout
func WithTimeout(timeout time.Duration) ClientOption {
	return func(c *Client) {
		c.httpClient.Timeout = timeout
	}
}

// WithHeader adds a header sent on every request
func WithHeader(key, value string) ClientOption {
	return func(c *Client) {
		c.headers[key] = value
	}
}

// WithUserAgent sets the User-Agent header
func WithUserAgent(ua string) ClientOption {
	return WithHeader("User-Agent", ua)
}

// WithTransport shares a transport (and its connection pool) between clients
func WithTransport(rt http.RoundTripper) ClientOption {
	return func(c *Client) {
		c.httpClient.Transport = rt
	}
}

// WithRecorder reports every call to r
func WithRecorder(r metrics.Recorder) ClientOption {
	return func(c *Client) {
		c.recorder = r
	}
}

// WithResponseChecks validates success bodies of create calls
func WithResponseChecks(enabled bool) ClientOption {
	return func(c *Client) {
		c.checkResponses = enabled
	}
}

// Token returns the bearer token acquired at login, if any.
func (c *Client) Token() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.token
}

// Login authenticates the session. Cookies set by the service are kept in
// the client's jar; a token in the body is sent as a bearer token afterwards.
func (c *Client) Login(ctx context.Context, creds Credentials) (*Response, error) {
	resp, err := c.call(ctx, OpLogin, http.MethodPost, "/login", creds, 0)
	if err != nil {
		return resp, err
	}

	for _, path := range tokenPaths {
		if tok := gjson.GetBytes(resp.Body, path); tok.Type == gjson.String && tok.Str != "" {
			c.mu.Lock()
			c.token = tok.Str
			c.mu.Unlock()
			break
		}
	}
	return resp, nil
}

// CreateWorkbook creates a workbook named name. The new id is resp.ID().
func (c *Client) CreateWorkbook(ctx context.Context, name string) (*Response, error) {
	return c.call(ctx, OpCreateWorkbook, http.MethodPost, "/workbooks", map[string]string{"name": name}, http.StatusCreated)
}

// GetWorkbook fetches a workbook.
func (c *Client) GetWorkbook(ctx context.Context, id string) (*Response, error) {
	if id == "" {
		return c.fail(OpOpenWorkbook, http.MethodGet, ErrNoWorkbook)
	}
	return c.call(ctx, OpOpenWorkbook, http.MethodGet, path("workbooks", id), nil, http.StatusOK)
}

// SetCellValue writes a literal value into a cell.
func (c *Client) SetCellValue(ctx context.Context, id, sheet, addr string, value int) (*Response, error) {
	return c.updateCell(ctx, OpEditCell, id, sheet, addr, CellUpdate{Value: &value})
}

// SetCellFormula writes a formula into a cell.
func (c *Client) SetCellFormula(ctx context.Context, id, sheet, addr, formula string) (*Response, error) {
	return c.updateCell(ctx, OpAddFormula, id, sheet, addr, CellUpdate{Formula: formula})
}

func (c *Client) updateCell(ctx context.Context, op, id, sheet, addr string, update CellUpdate) (*Response, error) {
	if id == "" {
		return c.fail(op, http.MethodPatch, ErrNoWorkbook)
	}
	return c.call(ctx, op, http.MethodPatch, path("workbooks", id, "worksheets", sheet, "cells", addr), update, http.StatusOK)
}

// CreateChart adds a chart to a worksheet. chart is marshaled as JSON.
func (c *Client) CreateChart(ctx context.Context, id, sheet string, chart any) (*Response, error) {
	if id == "" {
		return c.fail(OpCreateChart, http.MethodPost, ErrNoWorkbook)
	}
	return c.call(ctx, OpCreateChart, http.MethodPost, path("workbooks", id, "worksheets", sheet, "charts"), chart, http.StatusCreated)
}

// SaveWorkbook persists a workbook.
func (c *Client) SaveWorkbook(ctx context.Context, id string) (*Response, error) {
	if id == "" {
		return c.fail(OpSaveWorkbook, http.MethodPut, ErrNoWorkbook)
	}
	return c.call(ctx, OpSaveWorkbook, http.MethodPut, path("workbooks", id, "save"), nil, http.StatusOK)
}

// call performs one request. expected == 0 accepts any 2xx status.
func (c *Client) call(ctx context.Context, op, method, urlPath string, body any, expected int) (*Response, error) {
	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return c.fail(op, method, fmt.Errorf("%s: encoding body: %w", op, err))
		}
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+urlPath, reader)
	if err != nil {
		return c.fail(op, method, fmt.Errorf("%s: building request: %w", op, err))
	}
	for key, value := range c.headers {
		req.Header.Set(key, value)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set(RequestIDHeader, uuid.NewString())
	if tok := c.Token(); tok != "" {
		req.Header.Set("Authorization", "Bearer "+tok)
	}

	start := time.Now()
	httpResp, err := c.httpClient.Do(req)
	if err != nil {
		resp := &Response{Operation: op, Duration: time.Since(start)}
		if ctx.Err() != nil {
			// The run is stopping; an aborted request says nothing about the service.
			return resp, ctx.Err()
		}
		err = fmt.Errorf("%s: %w", op, err)
		c.record(op, method, resp, err, true)
		return resp, err
	}
	defer httpResp.Body.Close()

	respBody, readErr := io.ReadAll(httpResp.Body)
	resp := &Response{
		Operation:  op,
		StatusCode: httpResp.StatusCode,
		Body:       respBody,
		Duration:   time.Since(start),
	}

	switch {
	case readErr != nil:
		if ctx.Err() != nil {
			return resp, ctx.Err()
		}
		err = fmt.Errorf("%s: reading body: %w", op, readErr)
	case expected == 0 && !resp.IsSuccess():
		err = &StatusError{Operation: op, Expected: http.StatusOK, Got: resp.StatusCode}
	case expected != 0 && resp.StatusCode != expected:
		err = &StatusError{Operation: op, Expected: expected, Got: resp.StatusCode}
	case expected == http.StatusCreated && c.checkResponses:
		err = checkCreated(op, respBody)
	}

	c.record(op, method, resp, err, true)
	return resp, err
}

// fail records a call that never reached the network.
func (c *Client) fail(op, method string, err error) (*Response, error) {
	resp := &Response{Operation: op}
	c.record(op, method, resp, err, false)
	return resp, err
}

func (c *Client) record(op, method string, resp *Response, err error, sent bool) {
	if c.recorder == nil {
		return
	}
	s := metrics.Sample{
		Name:       op,
		Method:     method,
		Duration:   resp.Duration,
		StatusCode: resp.StatusCode,
		Bytes:      int64(len(resp.Body)),
		Success:    err == nil,
		Sent:       sent,
	}
	if err != nil {
		s.Reason = reason(err)
	}
	c.recorder.Record(s)
}

func checkCreated(op string, body []byte) error {
	var doc any
	if err := json.Unmarshal(body, &doc); err != nil {
		return &ContractError{Operation: op, Detail: "body is not JSON"}
	}
	if err := createdSchema.Validate(doc); err != nil {
		var validationErr *jsonschema.ValidationError
		if errors.As(err, &validationErr) {
			for len(validationErr.Causes) > 0 {
				validationErr = validationErr.Causes[0]
			}
			return &ContractError{Operation: op, Detail: validationErr.Message}
		}
		return &ContractError{Operation: op, Detail: err.Error()}
	}
	return nil
}

// path joins escaped segments into an absolute URL path.
func path(segments ...string) string {
	var sb strings.Builder
	for _, s := range segments {
		sb.WriteByte('/')
		sb.WriteString(url.PathEscape(s))
	}
	return sb.String()
}
