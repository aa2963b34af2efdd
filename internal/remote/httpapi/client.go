// Package httpapi is a remote.Backend that talks to the twocents REST API.
package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/dvloznov/twocents/internal/api/wire"
	"github.com/dvloznov/twocents/internal/domain"
	"github.com/dvloznov/twocents/internal/remote"
)

// Client implements remote.Backend over HTTP for one session.
type Client struct {
	baseURL  string
	session  remote.Session
	clientID string
	http     *http.Client
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient replaces the default client.
func WithHTTPClient(c *http.Client) Option {
	return func(cl *Client) { cl.http = c }
}

// WithClientID tags writes so change events from this client can be
// recognized and skipped.
func WithClientID(id string) Option {
	return func(cl *Client) { cl.clientID = id }
}

// WithTimeout sets the per-request timeout.
func WithTimeout(d time.Duration) Option {
	return func(cl *Client) { cl.http.Timeout = d }
}

// New creates a client for the API at baseURL.
func New(baseURL string, s remote.Session, opts ...Option) *Client {
	c := &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		session: s,
		http:    &http.Client{Timeout: 10 * time.Second},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Factory returns a remote.Factory creating clients that share opts.
func Factory(baseURL string, opts ...Option) remote.Factory {
	return func(s remote.Session) remote.Backend {
		return New(baseURL, s, opts...)
	}
}

// Header returns the identity headers sent with every request.
func (c *Client) Header() http.Header {
	h := http.Header{}
	h.Set(wire.HeaderUserID, c.session.UserID)
	if c.session.HouseholdID != "" {
		h.Set(wire.HeaderHouseholdID, c.session.HouseholdID)
	}
	if c.clientID != "" {
		h.Set(wire.HeaderClientID, c.clientID)
	}
	return h
}

// ChangesURL returns the websocket URL of the change stream.
func (c *Client) ChangesURL() (string, error) {
	u, err := url.Parse(c.baseURL)
	if err != nil {
		return "", fmt.Errorf("Client.ChangesURL: %w", err)
	}
	switch u.Scheme {
	case "https":
		u.Scheme = "wss"
	default:
		u.Scheme = "ws"
	}
	u.Path = strings.TrimRight(u.Path, "/") + "/ws"
	return u.String(), nil
}

// Close implements remote.Backend.
func (c *Client) Close() error {
	c.http.CloseIdleConnections()
	return nil
}

func (c *Client) ListTransactions(ctx context.Context) ([]domain.Transaction, error) {
	var body []wire.Transaction
	if err := c.do(ctx, http.MethodGet, "/api/transactions", nil, &body); err != nil {
		return nil, fmt.Errorf("ListTransactions: %w", err)
	}
	out := make([]domain.Transaction, 0, len(body))
	for _, t := range body {
		out = append(out, t.Domain())
	}
	return out, nil
}

func (c *Client) AddTransaction(ctx context.Context, t domain.NewTransaction) (domain.Transaction, error) {
	var body wire.Transaction
	if err := c.do(ctx, http.MethodPost, "/api/transactions", wire.FromNewTransaction(t), &body); err != nil {
		return domain.Transaction{}, fmt.Errorf("AddTransaction: %w", err)
	}
	return body.Domain(), nil
}

func (c *Client) RemoveTransaction(ctx context.Context, id string) error {
	if err := c.do(ctx, http.MethodDelete, "/api/transactions/"+url.PathEscape(id), nil, nil); err != nil {
		return fmt.Errorf("RemoveTransaction: %w", err)
	}
	return nil
}

func (c *Client) ClearTransactions(ctx context.Context) error {
	if err := c.do(ctx, http.MethodDelete, "/api/transactions", nil, nil); err != nil {
		return fmt.Errorf("ClearTransactions: %w", err)
	}
	return nil
}

func (c *Client) ListGoals(ctx context.Context) ([]domain.Goal, error) {
	var body []wire.Goal
	if err := c.do(ctx, http.MethodGet, "/api/goals", nil, &body); err != nil {
		return nil, fmt.Errorf("ListGoals: %w", err)
	}
	out := make([]domain.Goal, 0, len(body))
	for _, g := range body {
		out = append(out, g.Domain())
	}
	return out, nil
}

func (c *Client) AddGoal(ctx context.Context, g domain.Goal) (domain.Goal, error) {
	var body wire.Goal
	if err := c.do(ctx, http.MethodPost, "/api/goals", wire.FromGoal(g), &body); err != nil {
		return domain.Goal{}, fmt.Errorf("AddGoal: %w", err)
	}
	return body.Domain(), nil
}

func (c *Client) UpdateGoal(ctx context.Context, id string, patch domain.GoalPatch) error {
	p, err := wire.EncodeGoalPatch(patch)
	if err != nil {
		return fmt.Errorf("UpdateGoal: %w", err)
	}
	if err := c.do(ctx, http.MethodPatch, "/api/goals/"+url.PathEscape(id), p, nil); err != nil {
		return fmt.Errorf("UpdateGoal: %w", err)
	}
	return nil
}

func (c *Client) RemoveGoal(ctx context.Context, id string) error {
	if err := c.do(ctx, http.MethodDelete, "/api/goals/"+url.PathEscape(id), nil, nil); err != nil {
		return fmt.Errorf("RemoveGoal: %w", err)
	}
	return nil
}

func (c *Client) ListBills(ctx context.Context) ([]domain.Bill, error) {
	var body []wire.Bill
	if err := c.do(ctx, http.MethodGet, "/api/bills", nil, &body); err != nil {
		return nil, fmt.Errorf("ListBills: %w", err)
	}
	out := make([]domain.Bill, 0, len(body))
	for _, b := range body {
		out = append(out, b.Domain())
	}
	return out, nil
}

func (c *Client) AddBill(ctx context.Context, b domain.Bill) (domain.Bill, error) {
	var body wire.Bill
	if err := c.do(ctx, http.MethodPost, "/api/bills", wire.FromBill(b), &body); err != nil {
		return domain.Bill{}, fmt.Errorf("AddBill: %w", err)
	}
	return body.Domain(), nil
}

func (c *Client) UpdateBill(ctx context.Context, id string, patch domain.BillPatch) error {
	p, err := wire.EncodeBillPatch(patch)
	if err != nil {
		return fmt.Errorf("UpdateBill: %w", err)
	}
	if err := c.do(ctx, http.MethodPatch, "/api/bills/"+url.PathEscape(id), p, nil); err != nil {
		return fmt.Errorf("UpdateBill: %w", err)
	}
	return nil
}

func (c *Client) RemoveBill(ctx context.Context, id string) error {
	if err := c.do(ctx, http.MethodDelete, "/api/bills/"+url.PathEscape(id), nil, nil); err != nil {
		return fmt.Errorf("RemoveBill: %w", err)
	}
	return nil
}

func (c *Client) GetSettings(ctx context.Context) (domain.Settings, error) {
	var body wire.Settings
	if err := c.do(ctx, http.MethodGet, "/api/settings", nil, &body); err != nil {
		return domain.Settings{}, fmt.Errorf("GetSettings: %w", err)
	}
	return body.Domain(), nil
}

func (c *Client) UpdateSettings(ctx context.Context, patch domain.SettingsPatch) error {
	p, err := wire.EncodeSettingsPatch(patch)
	if err != nil {
		return fmt.Errorf("UpdateSettings: %w", err)
	}
	if err := c.do(ctx, http.MethodPatch, "/api/settings", p, nil); err != nil {
		return fmt.Errorf("UpdateSettings: %w", err)
	}
	return nil
}

// do sends one request. in is encoded as the JSON body when non-nil; out is
// decoded from a 2xx response when non-nil.
func (c *Client) do(ctx context.Context, method, path string, in, out any) error {
	var body io.Reader
	if in != nil {
		b, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("marshal request: %w", err)
		}
		body = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return fmt.Errorf("new request: %w", err)
	}
	req.Header = c.Header()
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		return statusError(resp)
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

func statusError(resp *http.Response) error {
	var e wire.Error
	_ = json.NewDecoder(io.LimitReader(resp.Body, 64<<10)).Decode(&e)
	if e.Error == "" {
		e.Error = resp.Status
	}

	switch resp.StatusCode {
	case http.StatusNotFound:
		return fmt.Errorf("%w: %s", remote.ErrNotFound, e.Error)
	case http.StatusBadRequest:
		return fmt.Errorf("%w: %s", remote.ErrInvalid, e.Error)
	}
	return fmt.Errorf("status %d: %s", resp.StatusCode, e.Error)
}

var _ remote.Backend = (*Client)(nil)
