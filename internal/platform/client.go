// Package platform is the HTTP client for the gaming platform's play and admin API.
package platform

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/tidwall/gjson"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"

	"github.com/frolic/frolicsim/internal/tracing"
)

const (
	maxBodyBytes     = 1 << 20
	maxReasonLength  = 160
	healthPathSuffix = "/actuator/health"
)

// Client talks to one platform deployment. It is safe for concurrent use.
type Client struct {
	baseURL   string
	healthURL string
	http      *http.Client
	tracer    trace.Tracer
	propagate bool
}

type Option func(*Client)

// WithHTTPClient replaces the tuned default transport.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		if hc != nil {
			c.http = hc
		}
	}
}

// WithHealthURL overrides the health endpoint derived from the base URL.
func WithHealthURL(u string) Option {
	return func(c *Client) {
		if u = strings.TrimSpace(u); u != "" {
			c.healthURL = u
		}
	}
}

// WithTracer records a client span per call and optionally injects W3C headers.
func WithTracer(tracer trace.Tracer, propagate bool) Option {
	return func(c *Client) {
		if tracer != nil {
			c.tracer = tracer
		}
		c.propagate = propagate
	}
}

func NewClient(baseURL string, timeout time.Duration, opts ...Option) *Client {
	base := strings.TrimRight(strings.TrimSpace(baseURL), "/")
	c := &Client{
		baseURL:   base,
		healthURL: deriveHealthURL(base),
		http:      NewHTTPClient(timeout),
		tracer:    noop.NewTracerProvider().Tracer("frolicsim"),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// NewHTTPClient returns an http.Client tuned for many concurrent attempts against one host.
func NewHTTPClient(timeout time.Duration) *http.Client {
	if timeout < 0 {
		timeout = 0
	}

	dialer := &net.Dialer{
		Timeout:   30 * time.Second,
		KeepAlive: 30 * time.Second,
	}

	transport := &http.Transport{
		Proxy:                 http.ProxyFromEnvironment,
		DialContext:           dialer.DialContext,
		ForceAttemptHTTP2:     true,
		MaxIdleConns:          256,
		MaxIdleConnsPerHost:   64,
		IdleConnTimeout:       90 * time.Second,
		TLSHandshakeTimeout:   10 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
	}

	return &http.Client{
		Timeout:   timeout,
		Transport: transport,
	}
}

// BaseURL returns the normalized API root.
func (c *Client) BaseURL() string { return c.baseURL }

// SubmitPlay posts one play. A 202 returns the play id, which may be empty if the
// platform omitted it. Any other status returns *RejectedError; transport
// failures return *ConnectivityError.
func (c *Client) SubmitPlay(ctx context.Context, userID, gameID string) (string, error) {
	payload, err := json.Marshal(map[string]string{"userId": userID, "gameId": gameID})
	if err != nil {
		return "", fmt.Errorf("encode play request: %w", err)
	}

	status, body, err := c.do(ctx, http.MethodPost, "/play", c.baseURL+"/play", payload)
	if err != nil {
		return "", &ConnectivityError{Op: "submit play", Err: err}
	}
	if status != http.StatusAccepted {
		return "", &RejectedError{StatusCode: status, Reason: rejectionReason(status, body)}
	}
	return gjson.GetBytes(body, "playId").String(), nil
}

// Result polls a play once. ready is false when the platform has not settled
// the play yet, which is not an error. The platform reports an unsettled play
// either with a non-200 status or with a 200 carrying status PROCESSING (or
// QUEUED) and no winner flag.
func (c *Client) Result(ctx context.Context, playID string) (result PlayResult, ready bool, err error) {
	target := c.baseURL + "/play/" + url.PathEscape(playID) + "/result"
	status, body, err := c.do(ctx, http.MethodGet, "/play/{id}/result", target, nil)
	if err != nil {
		return PlayResult{}, false, &ConnectivityError{Op: "poll result", Err: err}
	}
	if status != http.StatusOK {
		return PlayResult{}, false, nil
	}
	if !gjson.ValidBytes(body) {
		return PlayResult{}, false, fmt.Errorf("poll result %s: malformed body", playID)
	}

	parsed := gjson.ParseBytes(body)
	playStatus := strings.ToUpper(parsed.Get("status").String())
	winner := parsed.Get("winner")
	switch {
	case playStatus == PlayProcessing || playStatus == PlayQueued:
		return PlayResult{}, false, nil
	case winner.Type == gjson.Null && playStatus != PlayWinner && playStatus != PlayLoser:
		return PlayResult{}, false, nil
	}

	result.Status = playStatus
	result.Winner = winner.Bool() || (winner.Type == gjson.Null && playStatus == PlayWinner)
	result.Coupons = parseCoupons(parsed)
	return result, true, nil
}

// parseCoupons accepts a coupons array as well as the single top-level
// couponCode/brandId/brandName the play service attaches to a winning result.
func parseCoupons(parsed gjson.Result) []Coupon {
	var coupons []Coupon
	parsed.Get("coupons").ForEach(func(_, v gjson.Result) bool {
		coupons = append(coupons, Coupon{
			BrandID:    v.Get("brandId").String(),
			BrandName:  v.Get("brandName").String(),
			CouponCode: v.Get("couponCode").String(),
		})
		return true
	})
	if len(coupons) == 0 {
		if code := parsed.Get("couponCode").String(); code != "" {
			coupons = append(coupons, Coupon{
				BrandID:    parsed.Get("brandId").String(),
				BrandName:  parsed.Get("brandName").String(),
				CouponCode: code,
			})
		}
	}
	return coupons
}

// ListGames returns every game the admin API knows about.
func (c *Client) ListGames(ctx context.Context) ([]Game, error) {
	status, body, err := c.do(ctx, http.MethodGet, "/admin/games", c.baseURL+"/admin/games", nil)
	if err != nil {
		return nil, &ConnectivityError{Op: "list games", Err: err}
	}
	if status != http.StatusOK {
		return nil, fmt.Errorf("list games: unexpected status %d", status)
	}
	parsed := gjson.ParseBytes(body)
	if !parsed.IsArray() {
		return nil, fmt.Errorf("list games: expected a JSON array")
	}

	games := make([]Game, 0, len(parsed.Array()))
	parsed.ForEach(func(_, v gjson.Result) bool {
		games = append(games, Game{
			ID:     v.Get("id").String(),
			Name:   v.Get("name").String(),
			Status: v.Get("status").String(),
		})
		return true
	})
	return games, nil
}

// ActiveGames filters ListGames down to games accepting traffic.
func (c *Client) ActiveGames(ctx context.Context) ([]Game, error) {
	games, err := c.ListGames(ctx)
	if err != nil {
		return nil, err
	}
	active := games[:0]
	for _, g := range games {
		if g.Active() {
			active = append(active, g)
		}
	}
	return active, nil
}

// Health checks the platform's actuator endpoint.
func (c *Client) Health(ctx context.Context) error {
	status, body, err := c.do(ctx, http.MethodGet, healthPathSuffix, c.healthURL, nil)
	if err != nil {
		return &ConnectivityError{Op: "health check", Err: err}
	}
	if status != http.StatusOK {
		return fmt.Errorf("health check: status %d", status)
	}
	if s := gjson.GetBytes(body, "status"); s.Exists() && !strings.EqualFold(s.String(), "UP") {
		return fmt.Errorf("health check: platform reports %s", s.String())
	}
	return nil
}

func (c *Client) do(ctx context.Context, method, route, target string, payload []byte) (int, []byte, error) {
	ctx, span := tracing.StartClientSpan(ctx, c.tracer, method, route)

	var reqBody io.Reader
	if payload != nil {
		reqBody = bytes.NewReader(payload)
	}
	req, err := http.NewRequestWithContext(ctx, method, target, reqBody)
	if err != nil {
		tracing.EndSpan(span, err)
		return 0, nil, err
	}
	req.Header.Set("Accept", "application/json")
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.propagate {
		tracing.InjectHTTPHeaders(ctx, req.Header)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		tracing.EndSpan(span, err)
		return 0, nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	tracing.EndSpan(span, err, attribute.Int("http.response.status_code", resp.StatusCode))
	if err != nil {
		return resp.StatusCode, nil, err
	}
	return resp.StatusCode, body, nil
}

func rejectionReason(status int, body []byte) string {
	if gjson.ValidBytes(body) {
		for _, key := range []string{"message", "error", "reason"} {
			if v := gjson.GetBytes(body, key); v.Exists() && v.String() != "" {
				return v.String()
			}
		}
	}
	if text := strings.TrimSpace(string(body)); text != "" {
		if len(text) > maxReasonLength {
			text = text[:maxReasonLength] + "..."
		}
		return text
	}
	return http.StatusText(status)
}

func deriveHealthURL(base string) string {
	u, err := url.Parse(base)
	if err != nil || u.Host == "" {
		return strings.TrimSuffix(base, "/api/v1") + healthPathSuffix
	}
	path := strings.TrimRight(u.Path, "/")
	if idx := strings.Index(path, "/api/"); idx >= 0 {
		path = path[:idx]
	} else if strings.HasSuffix(path, "/api") {
		path = strings.TrimSuffix(path, "/api")
	}
	u.Path = path + healthPathSuffix
	u.RawQuery = ""
	return u.String()
}
