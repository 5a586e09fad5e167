// Package client talks to the dispatch REST API on behalf of one signed-in user.
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
	"strconv"
	"strings"
	"time"

	"courier-dispatch/internal/apperr"
	"courier-dispatch/internal/geo"
	"courier-dispatch/internal/http/handlers"
	"courier-dispatch/internal/logx"
)

const (
	defaultTimeout = 10 * time.Second
	maxBody        = 4 << 20
)

// TokenSource returns the bearer token for the next request.
type TokenSource func(ctx context.Context) (string, error)

// StaticToken always returns tok.
func StaticToken(tok string) TokenSource {
	return func(context.Context) (string, error) { return tok, nil }
}

// Client is a thin JSON client. It never retries; the user re-triggers failed actions.
type Client struct {
	base   *url.URL
	http   *http.Client
	tokens TokenSource
	logger logx.Logger
}

// New builds a Client for baseURL. httpClient may be nil.
func New(baseURL string, tokens TokenSource, httpClient *http.Client, logger logx.Logger) (*Client, error) {
	u, err := url.Parse(strings.TrimRight(baseURL, "/"))
	if err != nil || u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("invalid base url %q", baseURL)
	}
	if tokens == nil {
		return nil, errors.New("token source is required")
	}
	if httpClient == nil {
		httpClient = &http.Client{Timeout: defaultTimeout}
	}
	if logger == nil {
		logger = logx.Nop()
	}
	return &Client{base: u, http: httpClient, tokens: tokens, logger: logger}, nil
}

// CreateDeliveryRequest posts a new delivery.
type CreateDeliveryRequest struct {
	Item                string    `json:"item"`
	DestinationAddress  string    `json:"destinationAddress,omitempty"`
	DestinationLocation geo.Point `json:"destinationLocation"`
}

// OnboardRequest picks the caller's role once.
type OnboardRequest struct {
	Role     string     `json:"role"`
	Name     string     `json:"name"`
	Address  string     `json:"address,omitempty"`
	Location *geo.Point `json:"location,omitempty"`
	PlaceID  string     `json:"placeId,omitempty"`
}

// ListParams narrows GET /deliveries.
type ListParams struct {
	Statuses  []string
	Center    *geo.Point
	RadiusKm  float64
	PageSize  int
	PageToken string
}

func (p ListParams) values() url.Values {
	q := url.Values{}
	if len(p.Statuses) > 0 {
		q.Set("status", strings.Join(p.Statuses, ","))
	}
	if p.Center != nil {
		q.Set("lat", strconv.FormatFloat(p.Center.Lat, 'f', -1, 64))
		q.Set("lng", strconv.FormatFloat(p.Center.Lng, 'f', -1, 64))
	}
	if p.RadiusKm > 0 {
		q.Set("r", strconv.FormatFloat(p.RadiusKm, 'f', -1, 64))
	}
	if p.PageSize > 0 {
		q.Set("pageSize", strconv.Itoa(p.PageSize))
	}
	if p.PageToken != "" {
		q.Set("pageToken", p.PageToken)
	}
	return q
}

// DeliveryPage is one page of GET /deliveries.
type DeliveryPage struct {
	Items         []handlers.DeliveryResponse `json:"items"`
	NextPageToken string                      `json:"nextPageToken,omitempty"`
}

// Me returns the caller's session.
func (c *Client) Me(ctx context.Context) (handlers.MeResponse, error) {
	var out handlers.MeResponse
	err := c.do(ctx, http.MethodGet, "/me", nil, nil, &out)
	return out, err
}

// Onboard sets the caller's role.
func (c *Client) Onboard(ctx context.Context, in OnboardRequest) (handlers.MeResponse, error) {
	var out handlers.MeResponse
	err := c.do(ctx, http.MethodPost, "/me/onboard", nil, in, &out)
	return out, err
}

// CreateDelivery posts a delivery as the calling business.
func (c *Client) CreateDelivery(ctx context.Context, in CreateDeliveryRequest) (handlers.DeliveryResponse, error) {
	var out handlers.DeliveryResponse
	err := c.do(ctx, http.MethodPost, "/deliveries", nil, in, &out)
	return out, err
}

// ListDeliveries returns the caller's visible deliveries.
func (c *Client) ListDeliveries(ctx context.Context, p ListParams) (DeliveryPage, error) {
	var out DeliveryPage
	err := c.do(ctx, http.MethodGet, "/deliveries", p.values(), nil, &out)
	return out, err
}

// GetDelivery returns one delivery.
func (c *Client) GetDelivery(ctx context.Context, id string) (handlers.DeliveryResponse, error) {
	var out handlers.DeliveryResponse
	err := c.do(ctx, http.MethodGet, "/deliveries/"+url.PathEscape(id), nil, nil, &out)
	return out, err
}

// Accept claims a posted delivery. Any 409 other than stale_state means
// another courier won; the caller must not assume success before this returns nil.
func (c *Client) Accept(ctx context.Context, id string) (handlers.DeliveryResponse, error) {
	var out handlers.DeliveryResponse
	err := c.do(ctx, http.MethodPost, "/deliveries/"+url.PathEscape(id)+"/accept", nil, struct{}{}, &out)

	var apiErr *APIError
	if errors.As(err, &apiErr) && apiErr.Status == http.StatusConflict && apiErr.Code != handlers.CodeStaleState {
		apiErr.Code = handlers.CodeRaceLost
	}
	return out, err
}

// Advance moves a held delivery to status.
func (c *Client) Advance(ctx context.Context, id, status string) (handlers.DeliveryResponse, error) {
	var out handlers.DeliveryResponse
	body := map[string]string{"status": status}
	err := c.do(ctx, http.MethodPatch, "/deliveries/"+url.PathEscape(id), nil, body, &out)
	return out, err
}

// UpdateLocation overwrites the caller's current position.
func (c *Client) UpdateLocation(ctx context.Context, pt geo.Point, emittedAt time.Time) (handlers.LocationResponse, error) {
	var out handlers.LocationResponse
	body := struct {
		Lat       float64   `json:"lat"`
		Lng       float64   `json:"lng"`
		EmittedAt time.Time `json:"emittedAt"`
	}{pt.Lat, pt.Lng, emittedAt.UTC()}
	err := c.do(ctx, http.MethodPut, "/me/location", nil, body, &out)
	return out, err
}

func (c *Client) do(ctx context.Context, method, path string, query url.Values, in, out any) error {
	token, err := c.tokens(ctx)
	if err != nil {
		return fmt.Errorf("token: %w", errors.Join(apperr.ErrUnauthorized, err))
	}

	// path is already escaped
	u := *c.base
	u.RawPath = c.base.EscapedPath() + path
	if u.Path, err = url.PathUnescape(u.RawPath); err != nil {
		return fmt.Errorf("path %q: %w", path, err)
	}
	if len(query) > 0 {
		u.RawQuery = query.Encode()
	}

	var body io.Reader
	if in != nil {
		buf, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("encode %s %s: %w", method, path, err)
		}
		body = bytes.NewReader(buf)
	}

	req, err := http.NewRequestWithContext(ctx, method, u.String(), body)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Authorization", "Bearer "+token)
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxBody))
	if err != nil {
		return fmt.Errorf("read %s %s: %w", method, path, err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		apiErr := decodeAPIError(resp.StatusCode, raw)
		c.logger.Debug("api call failed",
			logx.String("method", method),
			logx.String("path", path),
			logx.Int("status", resp.StatusCode),
			logx.String("code", apiErr.Code),
		)
		return apiErr
	}
	if out == nil || len(raw) == 0 {
		return nil
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("decode %s %s: %w", method, path, err)
	}
	return nil
}
