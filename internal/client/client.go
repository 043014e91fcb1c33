// Package client is an HTTP client for the slotgrid API. *Client implements
// session.Backend, so an edit session can run against a remote server.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/ryanbastic/go-slotgrid/internal/aggregate"
	"github.com/ryanbastic/go-slotgrid/internal/gesture"
	"github.com/ryanbastic/go-slotgrid/internal/grid"
	"github.com/ryanbastic/go-slotgrid/internal/response"
	"github.com/ryanbastic/go-slotgrid/internal/session"
)

// ErrNotFound is returned when the server answers 404.
var ErrNotFound = errors.New("not found")

// APIError is a non-2xx answer from the server.
type APIError struct {
	Status  int
	Message string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("slotgrid: %d %s", e.Status, e.Message)
}

func (e *APIError) Unwrap() error {
	if e.Status == http.StatusNotFound {
		return ErrNotFound
	}
	return nil
}

// Client talks to one slotgrid server.
type Client struct {
	baseURL    string
	httpClient *http.Client
	organizer  string
	maxRetries int
	baseDelay  time.Duration
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient replaces the default http.Client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

// WithOrganizer sets the identity sent as X-Organizer on organizer-only calls.
func WithOrganizer(name string) Option {
	return func(c *Client) { c.organizer = name }
}

// WithRetry sets how often idempotent requests are retried on 5xx and
// network errors, and the first backoff delay.
func WithRetry(maxRetries int, baseDelay time.Duration) Option {
	return func(c *Client) {
		c.maxRetries = maxRetries
		c.baseDelay = baseDelay
	}
}

// New creates a client for the server at baseURL.
func New(baseURL string, opts ...Option) *Client {
	c := &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: 10 * time.Second},
		maxRetries: 2,
		baseDelay:  100 * time.Millisecond,
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

// EventSpec describes an event to create.
type EventSpec struct {
	GroupID     string   `json:"group_id"`
	Title       string   `json:"title"`
	Description string   `json:"description,omitempty"`
	Mode        string   `json:"mode,omitempty"`
	Dates       []string `json:"dates"`
	Times       []string `json:"times,omitempty"`
	Start       string   `json:"start,omitempty"`
	End         string   `json:"end,omitempty"`
	Template    []string `json:"template,omitempty"`
	// Invitees defaults to the group's members when nil.
	Invitees []string `json:"invitees,omitempty"`
}

type responseDoc struct {
	Member       string         `json:"member"`
	Availability map[string]int `json:"availability"`
	Note         string         `json:"note"`
	SubmittedAt  time.Time      `json:"submitted_at"`
}

type eventDoc struct {
	ID        string        `json:"id"`
	Title     string        `json:"title"`
	Mode      string        `json:"mode"`
	Dates     []string      `json:"dates"`
	Times     []string      `json:"times"`
	Offered   []string      `json:"offered"`
	Responses []responseDoc `json:"responses"`
	Gesture   gestureDoc    `json:"gesture"`
	Scoring   scoringDoc    `json:"scoring"`
}

type gestureDoc struct {
	MoveThresholdPx  float64 `json:"move_threshold_px"`
	TapMaxDurationMs int64   `json:"tap_max_duration_ms"`
}

type scoringDoc struct {
	Scheme        string  `json:"scheme"`
	PenaltyWeight float64 `json:"penalty_weight"`
	MaxLevel      int     `json:"max_level"`
}

// CreateGroup creates a group organized by the client's organizer and
// returns its ID.
func (c *Client) CreateGroup(ctx context.Context, name string, members []string) (string, error) {
	body := struct {
		Name    string   `json:"name"`
		Members []string `json:"members,omitempty"`
	}{name, members}
	var doc struct {
		ID string `json:"id"`
	}
	if err := c.do(ctx, http.MethodPost, "/v1/groups", body, &doc); err != nil {
		return "", fmt.Errorf("create group: %w", err)
	}
	return doc.ID, nil
}

// AddGroupMember adds member to the group. Adding an existing member is a
// no-op.
func (c *Client) AddGroupMember(ctx context.Context, groupID, member string) error {
	if err := c.do(ctx, http.MethodPost, groupMemberPath(groupID, member), nil, nil); err != nil {
		return fmt.Errorf("add %s to group: %w", member, err)
	}
	return nil
}

// RemoveGroupMember removes member from the group.
func (c *Client) RemoveGroupMember(ctx context.Context, groupID, member string) error {
	if err := c.do(ctx, http.MethodDelete, groupMemberPath(groupID, member), nil, nil); err != nil {
		return fmt.Errorf("remove %s from group: %w", member, err)
	}
	return nil
}

func groupMemberPath(groupID, member string) string {
	return "/v1/groups/" + url.PathEscape(groupID) + "/members/" + url.PathEscape(member)
}

// CreateEvent creates an event organized by the client's organizer and
// returns its ID.
func (c *Client) CreateEvent(ctx context.Context, spec EventSpec) (string, error) {
	var doc eventDoc
	if err := c.do(ctx, http.MethodPost, "/v1/events", spec, &doc); err != nil {
		return "", fmt.Errorf("create event: %w", err)
	}
	return doc.ID, nil
}

// FetchEvent loads an event's grid, template and responses.
func (c *Client) FetchEvent(ctx context.Context, eventID string) (session.EventSnapshot, error) {
	var doc eventDoc
	if err := c.do(ctx, http.MethodGet, "/v1/events/"+url.PathEscape(eventID), nil, &doc); err != nil {
		return session.EventSnapshot{}, fmt.Errorf("fetch event %s: %w", eventID, err)
	}

	mode, err := grid.ParseMode(doc.Mode)
	if err != nil {
		return session.EventSnapshot{}, err
	}
	g, err := grid.New(doc.Dates, doc.Times)
	if err != nil {
		return session.EventSnapshot{}, fmt.Errorf("event %s: %w", eventID, err)
	}
	template := make(map[grid.CellKey]bool, len(doc.Offered))
	for _, s := range doc.Offered {
		k, err := grid.ParseKey(s)
		if err != nil {
			return session.EventSnapshot{}, fmt.Errorf("event %s: %w", eventID, err)
		}
		template[k] = true
	}

	responses := make([]response.MemberResponse, 0, len(doc.Responses))
	for _, r := range doc.Responses {
		mr, err := r.toMemberResponse()
		if err != nil {
			return session.EventSnapshot{}, fmt.Errorf("event %s: %w", eventID, err)
		}
		responses = append(responses, mr)
	}

	snap := session.EventSnapshot{
		ID:         doc.ID,
		Title:      doc.Title,
		Mode:       mode,
		Mask:       grid.NewSlotMask(g, template),
		Responses:  responses,
		Thresholds: gesture.Thresholds{
			MoveDistance:   doc.Gesture.MoveThresholdPx,
			TapMaxDuration: time.Duration(doc.Gesture.TapMaxDurationMs) * time.Millisecond,
		},
	}
	if doc.Scoring.Scheme != "" {
		scheme, err := aggregate.ParseScheme(doc.Scoring.Scheme)
		if err != nil {
			return session.EventSnapshot{}, fmt.Errorf("event %s: %w", eventID, err)
		}
		snap.Scoring = aggregate.Params{
			Scheme:        scheme,
			PenaltyWeight: doc.Scoring.PenaltyWeight,
			MaxLevel:      grid.Level(doc.Scoring.MaxLevel),
		}
	}
	return snap, nil
}

// SubmitResponse stores member's availability, replacing any earlier response.
func (c *Client) SubmitResponse(ctx context.Context, eventID, member string, availability grid.Draft, note string) (response.MemberResponse, error) {
	body := struct {
		Availability map[string]int `json:"availability"`
		Note         string         `json:"note,omitempty"`
	}{Availability: make(map[string]int, len(availability)), Note: note}
	for k, v := range availability {
		body.Availability[k.String()] = int(v)
	}

	var doc responseDoc
	path := "/v1/events/" + url.PathEscape(eventID) + "/responses/" + url.PathEscape(member)
	if err := c.do(ctx, http.MethodPut, path, body, &doc); err != nil {
		return response.MemberResponse{}, fmt.Errorf("submit response: %w", err)
	}
	return doc.toMemberResponse()
}

// ExcludeMember permanently deletes member's response. It requires the
// client to be configured with the event's organizer.
func (c *Client) ExcludeMember(ctx context.Context, eventID, member string) error {
	path := "/v1/events/" + url.PathEscape(eventID) + "/responses/" + url.PathEscape(member)
	if err := c.do(ctx, http.MethodDelete, path, nil, nil); err != nil {
		return fmt.Errorf("exclude %s: %w", member, err)
	}
	return nil
}

func (r responseDoc) toMemberResponse() (response.MemberResponse, error) {
	draft := make(grid.Draft, len(r.Availability))
	for s, v := range r.Availability {
		k, err := grid.ParseKey(s)
		if err != nil {
			return response.MemberResponse{}, err
		}
		l := grid.Level(v)
		if v < 0 || !l.Valid() {
			return response.MemberResponse{}, fmt.Errorf("cell %s: level %d out of range", s, v)
		}
		if l != grid.Unset {
			draft[k] = l
		}
	}
	return response.MemberResponse{
		Member:       r.Member,
		Availability: draft,
		Note:         r.Note,
		SubmittedAt:  r.SubmittedAt,
	}, nil
}

// do sends one request and decodes a JSON answer into out. GET, PUT and
// DELETE are retried on 5xx and network errors.
func (c *Client) do(ctx context.Context, method, path string, in, out any) error {
	var payload []byte
	if in != nil {
		var err error
		if payload, err = json.Marshal(in); err != nil {
			return fmt.Errorf("marshal request: %w", err)
		}
	}

	retries := c.maxRetries
	if method == http.MethodPost {
		retries = 0
	}

	var lastErr error
	delay := c.baseDelay
	for attempt := 0; attempt <= retries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(delay):
			}
			delay *= 2
		}

		lastErr = c.send(ctx, method, path, payload, out)
		var apiErr *APIError
		if lastErr == nil || (errors.As(lastErr, &apiErr) && apiErr.Status < 500) {
			return lastErr
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
	}
	return lastErr
}

func (c *Client) send(ctx context.Context, method, path string, payload []byte, out any) error {
	var body io.Reader
	if payload != nil {
		body = bytes.NewReader(payload)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.organizer != "" {
		req.Header.Set("X-Organizer", c.organizer)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		return decodeError(resp)
	}
	if out == nil || resp.StatusCode == http.StatusNoContent {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

// decodeError reads both huma problem documents and plain {"error": ...}
// bodies.
func decodeError(resp *http.Response) error {
	var doc struct {
		Title  string `json:"title"`
		Detail string `json:"detail"`
		Error  string `json:"error"`
	}
	data, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	_ = json.Unmarshal(data, &doc)

	msg := doc.Detail
	if msg == "" {
		msg = doc.Error
	}
	if msg == "" {
		msg = doc.Title
	}
	if msg == "" {
		msg = http.StatusText(resp.StatusCode)
	}
	return &APIError{Status: resp.StatusCode, Message: msg}
}

var _ session.Backend = (*Client)(nil)
