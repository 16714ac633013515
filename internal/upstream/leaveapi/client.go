// Package leaveapi talks to the remote leave management API. Credentials are
// supplied per call; the client itself holds none.
package leaveapi

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

	"leavedesk/internal/domain/auth"
	"leavedesk/internal/domain/leave"
	"leavedesk/internal/requestctx"
)

const (
	pathLeaveTypes   = "/api/leave-management/leave-types"
	pathBalance      = "/api/leave/balance"
	pathRequests     = "/api/leave/requests"
	pathSubmit       = "/api/leave/request"
	pathCancel       = "/api/leave/cancel/"
	pathTeamCalendar = "/api/leave/team-calendar"
	pathHolidays     = "/api/leave/holidays"

	maxErrorBody = 64 << 10
)

// Observer records the latency and outcome of each upstream call.
type Observer interface {
	ObserveUpstream(endpoint, outcome string, elapsed time.Duration)
}

type Client struct {
	BaseURL  string
	HTTP     *http.Client
	Observer Observer
}

var _ leave.Upstream = (*Client)(nil)

func New(baseURL string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	return &Client{
		BaseURL: strings.TrimRight(baseURL, "/"),
		HTTP:    &http.Client{Timeout: timeout},
	}
}

func (c *Client) LeaveTypes(ctx context.Context, sess auth.Session) ([]leave.LeaveType, error) {
	var out []leave.LeaveType
	if err := c.getList(ctx, sess, "leave_types", pathLeaveTypes, nil, &out); err != nil {
		return nil, err
	}
	return nonNil(out), nil
}

func (c *Client) Balances(ctx context.Context, sess auth.Session, year int) ([]leave.LeaveBalance, error) {
	query := url.Values{}
	if year > 0 {
		query.Set("year", strconv.Itoa(year))
	}
	var out []leave.LeaveBalance
	if err := c.getList(ctx, sess, "balance", pathBalance, query, &out); err != nil {
		return nil, err
	}
	return nonNil(out), nil
}

func (c *Client) Requests(ctx context.Context, sess auth.Session) ([]leave.LeaveRequest, error) {
	var out []leave.LeaveRequest
	if err := c.getList(ctx, sess, "requests", pathRequests, nil, &out); err != nil {
		return nil, err
	}
	return nonNil(out), nil
}

// Holidays treats a missing endpoint as an empty holiday list.
func (c *Client) Holidays(ctx context.Context, sess auth.Session) ([]leave.Holiday, error) {
	var out []leave.Holiday
	err := c.getList(ctx, sess, "holidays", pathHolidays, nil, &out)
	if IsStatus(err, http.StatusNotFound) {
		return []leave.Holiday{}, nil
	}
	if err != nil {
		return nil, err
	}
	return nonNil(out), nil
}

func (c *Client) TeamCalendar(ctx context.Context, sess auth.Session, from, to leave.Date) ([]leave.CalendarEntry, error) {
	query := url.Values{}
	if !from.IsZero() {
		query.Set("start", from.String())
	}
	if !to.IsZero() {
		query.Set("end", to.String())
	}
	var out []leave.CalendarEntry
	if err := c.getList(ctx, sess, "team_calendar", pathTeamCalendar, query, &out); err != nil {
		return nil, err
	}
	return nonNil(out), nil
}

// SubmitRequest posts a new request. Servers that answer with an empty body
// or a bare acknowledgement yield a zero LeaveRequest.
func (c *Client) SubmitRequest(ctx context.Context, sess auth.Session, payload leave.SubmitPayload) (leave.LeaveRequest, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return leave.LeaveRequest{}, fmt.Errorf("encode submit payload: %w", err)
	}
	raw, err := c.do(ctx, sess, "submit", http.MethodPost, pathSubmit, nil, body)
	if err != nil {
		return leave.LeaveRequest{}, err
	}
	var created leave.LeaveRequest
	if err := decodeObject(raw, &created); err != nil {
		// accepted without a usable body
		return leave.LeaveRequest{}, nil
	}
	return created, nil
}

func (c *Client) CancelRequest(ctx context.Context, sess auth.Session, requestID string) error {
	if strings.TrimSpace(requestID) == "" {
		return leave.ErrRequestNotFound
	}
	_, err := c.do(ctx, sess, "cancel", http.MethodPost, pathCancel+url.PathEscape(requestID), nil, nil)
	return err
}

func (c *Client) getList(ctx context.Context, sess auth.Session, endpoint, path string, query url.Values, out any) error {
	raw, err := c.do(ctx, sess, endpoint, http.MethodGet, path, query, nil)
	if err != nil {
		return err
	}
	if err := decodeList(raw, out); err != nil {
		return fmt.Errorf("decode %s response: %w", endpoint, err)
	}
	return nil
}

func (c *Client) do(ctx context.Context, sess auth.Session, endpoint, method, path string, query url.Values, body []byte) ([]byte, error) {
	target := c.BaseURL + path
	if len(query) > 0 {
		target += "?" + query.Encode()
	}

	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, target, reader)
	if err != nil {
		return nil, fmt.Errorf("build %s request: %w", endpoint, err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token := sess.BearerToken(); token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	if requestID := requestctx.GetRequestID(ctx); requestID != "" {
		req.Header.Set("X-Request-ID", requestID)
	}

	started := time.Now()
	resp, err := c.httpClient().Do(req)
	if err != nil {
		c.observe(endpoint, "network_error", started)
		return nil, fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		c.observe(endpoint, strconv.Itoa(resp.StatusCode), started)
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return nil, newAPIError(resp.StatusCode, raw)
	}
	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		c.observe(endpoint, "read_error", started)
		return nil, fmt.Errorf("read %s response: %w", endpoint, err)
	}
	c.observe(endpoint, strconv.Itoa(resp.StatusCode), started)
	return raw, nil
}

func (c *Client) httpClient() *http.Client {
	if c.HTTP != nil {
		return c.HTTP
	}
	return http.DefaultClient
}

func (c *Client) observe(endpoint, outcome string, started time.Time) {
	if c.Observer != nil {
		c.Observer.ObserveUpstream(endpoint, outcome, time.Since(started))
	}
}

type errorBody struct {
	Error   string          `json:"error"`
	Message string          `json:"message"`
	Details json.RawMessage `json:"details"`
}

func newAPIError(status int, raw []byte) *APIError {
	apiErr := &APIError{StatusCode: status}
	var body errorBody
	if err := json.Unmarshal(raw, &body); err != nil {
		apiErr.Message = strings.TrimSpace(string(raw))
		return apiErr
	}
	apiErr.Message = body.Error
	if apiErr.Message == "" {
		apiErr.Message = body.Message
	}
	apiErr.Details = detailsText(body.Details)
	return apiErr
}

// detailsText accepts details as a string, a list of strings or any other
// JSON value.
func detailsText(raw json.RawMessage) string {
	if len(raw) == 0 || string(raw) == "null" {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	var list []string
	if err := json.Unmarshal(raw, &list); err == nil {
		return strings.Join(list, "; ")
	}
	return string(raw)
}

type dataEnvelope struct {
	Data json.RawMessage `json:"data"`
}

var errEmptyBody = errors.New("empty body")

// decodeList accepts a bare JSON array or an object with the array under
// "data". An empty body or null decodes to nothing.
func decodeList(raw []byte, out any) error {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return nil
	}
	if raw[0] == '{' {
		var env dataEnvelope
		if err := json.Unmarshal(raw, &env); err != nil {
			return err
		}
		if len(env.Data) == 0 || string(env.Data) == "null" {
			return nil
		}
		raw = env.Data
	}
	return json.Unmarshal(raw, out)
}

func decodeObject(raw []byte, out any) error {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 {
		return errEmptyBody
	}
	var env dataEnvelope
	if err := json.Unmarshal(raw, &env); err == nil && len(env.Data) > 0 && env.Data[0] == '{' {
		raw = env.Data
	}
	return json.Unmarshal(raw, out)
}

func nonNil[T any](items []T) []T {
	if items == nil {
		return []T{}
	}
	return items
}
