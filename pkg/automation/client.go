package automation

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"snscraper/pkg/crawler"
	"snscraper/pkg/errors"
	"snscraper/pkg/logger"
	"snscraper/pkg/login"
	"snscraper/pkg/timeshard"
)

// Client talks to the automation bridge, the local subprocess that drives
// the real browser. The bridge owns page parsing and credential checks; this
// client only moves JSON across its HTTP endpoints. It implements
// login.StatusChecker, login.Validator, crawler.PageFetcher and
// timeshard.CountFetcher.
type Client struct {
	httpClient *http.Client
	baseURL    string
	headers    map[string]string
	logger     logger.Logger
}

// NewClient creates a bridge client for the given base URL
func NewClient(baseURL string, timeout time.Duration, log logger.Logger) *Client {
	if log == nil {
		log = logger.GetLogger()
	}
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Client{
		httpClient: &http.Client{Timeout: timeout},
		baseURL:    baseURL,
		headers: map[string]string{
			"Accept": "application/json",
		},
		logger: log,
	}
}

// SetHeader sets a custom header for the client
func (c *Client) SetHeader(key, value string) {
	c.headers[key] = value
}

// LoginSessionInfo is what the bridge returns when a new code is issued
type LoginSessionInfo struct {
	SessionID string `json:"session_id"`
	QRCodeURL string `json:"qr_code_url"`
}

// CreateLoginSession asks the bridge to issue a fresh scannable code
func (c *Client) CreateLoginSession(ctx context.Context) (*LoginSessionInfo, error) {
	var info LoginSessionInfo
	if err := c.getJSON(ctx, "/login/session", nil, &info); err != nil {
		return nil, err
	}
	if info.SessionID == "" {
		return nil, errors.New(errors.ErrorTypeUnknown, "automation.create_session", "bridge returned empty session id")
	}
	return &info, nil
}

type statusResponse struct {
	State    string            `json:"state"`
	Identity string            `json:"identity"`
	Cookies  map[string]string `json:"cookies"`
}

// Check implements login.StatusChecker against the bridge
func (c *Client) Check(ctx context.Context, sessionID string) (login.CheckResult, error) {
	params := url.Values{"session_id": {sessionID}}

	var resp statusResponse
	if err := c.getJSON(ctx, "/login/status", params, &resp); err != nil {
		return login.CheckResult{}, err
	}

	switch resp.State {
	case "scanned":
		return login.CheckResult{State: login.CheckScanned}, nil
	case "confirmed":
		return login.CheckResult{
			State:    login.CheckConfirmed,
			Identity: resp.Identity,
			Cookies:  resp.Cookies,
		}, nil
	case "rejected":
		return login.CheckResult{State: login.CheckRejected}, nil
	case "", "pending", "unchanged":
		return login.CheckResult{State: login.CheckUnchanged}, nil
	default:
		return login.CheckResult{}, errors.Newf(errors.ErrorTypeUnknown, "automation.check",
			"bridge returned unknown login state %q for session %s", resp.State, sessionID)
	}
}

type validateRequest struct {
	Cookies map[string]string `json:"cookies"`
}

type validateResponse struct {
	Identity    string `json:"identity"`
	DisplayName string `json:"display_name"`
	Valid       bool   `json:"valid"`
	Reason      string `json:"reason"`
}

// Validate implements login.Validator against the bridge
func (c *Client) Validate(ctx context.Context, cookies map[string]string) (string, string, error) {
	var resp validateResponse
	if err := c.postJSON(ctx, "/login/validate", validateRequest{Cookies: cookies}, &resp); err != nil {
		return "", "", err
	}

	if !resp.Valid {
		return "", "", errors.Newf(errors.ErrorTypeValidation, "automation.validate",
			"credentials rejected: %s", resp.Reason)
	}

	return resp.Identity, resp.DisplayName, nil
}

type pageResponse struct {
	Count   int  `json:"count"`
	Total   int  `json:"total"`
	HasMore bool `json:"has_more"`
	Captcha bool `json:"captcha"`
}

// FetchPage implements crawler.PageFetcher against the bridge
func (c *Client) FetchPage(ctx context.Context, keyword string, shard timeshard.Shard, page int) (crawler.PageResult, error) {
	params := url.Values{
		"keyword": {keyword},
		"start":   {shard.Start.Format(time.RFC3339)},
		"end":     {shard.End.Format(time.RFC3339)},
		"page":    {strconv.Itoa(page)},
	}

	var resp pageResponse
	if err := c.getJSON(ctx, "/search/page", params, &resp); err != nil {
		return crawler.PageResult{}, err
	}

	if resp.Captcha {
		return crawler.PageResult{}, errors.Newf(errors.ErrorTypeCaptcha, "automation.fetch_page",
			"captcha challenge on page %d of %s", page, shard)
	}

	return crawler.PageResult{Count: resp.Count, HasMore: resp.HasMore}, nil
}

// CountResults implements timeshard.CountFetcher against the bridge
func (c *Client) CountResults(ctx context.Context, start, end time.Time, keyword string) (int, error) {
	params := url.Values{
		"keyword": {keyword},
		"start":   {start.Format(time.RFC3339)},
		"end":     {end.Format(time.RFC3339)},
	}

	var resp pageResponse
	if err := c.getJSON(ctx, "/search/count", params, &resp); err != nil {
		return 0, err
	}

	if resp.Captcha {
		return 0, errors.New(errors.ErrorTypeCaptcha, "automation.count_results", "captcha challenge on count probe")
	}

	return resp.Total, nil
}

// getJSON performs a GET against the bridge and decodes the response
func (c *Client) getJSON(ctx context.Context, path string, params url.Values, target interface{}) error {
	endpoint := c.baseURL + path
	if len(params) > 0 {
		endpoint += "?" + params.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return errors.Newf(errors.ErrorTypeUnknown, "automation.request", "create request for %s: %v", path, err)
	}

	return c.do(req, target)
}

// postJSON performs a POST against the bridge and decodes the response
func (c *Client) postJSON(ctx context.Context, path string, body, target interface{}) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return errors.Newf(errors.ErrorTypeUnknown, "automation.request", "marshal body for %s: %v", path, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(payload))
	if err != nil {
		return errors.Newf(errors.ErrorTypeUnknown, "automation.request", "create request for %s: %v", path, err)
	}
	req.Header.Set("Content-Type", "application/json")

	return c.do(req, target)
}

func (c *Client) do(req *http.Request, target interface{}) error {
	for key, value := range c.headers {
		req.Header.Set(key, value)
	}

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	duration := time.Since(start)

	if err != nil {
		c.logger.ErrorWithFields("bridge request failed", map[string]interface{}{
			"method":   req.Method,
			"url":      req.URL.String(),
			"error":    err.Error(),
			"duration": duration,
		})
		return errors.Newf(errors.ErrorTypeNetwork, "automation.request", "request %s: %v", req.URL.Path, err)
	}
	defer resp.Body.Close()

	c.logger.DebugWithFields("bridge request completed", map[string]interface{}{
		"method":   req.Method,
		"url":      req.URL.String(),
		"status":   resp.StatusCode,
		"duration": duration,
	})

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		t := errors.ErrorTypeNetwork
		switch {
		case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
			t = errors.ErrorTypeAuth
		case resp.StatusCode == http.StatusTooManyRequests:
			t = errors.ErrorTypeRateLimit
		}
		return errors.Newf(t, "automation.request", "bridge returned status %d for %s: %s",
			resp.StatusCode, req.URL.Path, string(body))
	}

	if target == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(target); err != nil {
		return errors.Newf(errors.ErrorTypeUnknown, "automation.request", "decode response from %s: %v", req.URL.Path, err)
	}

	return nil
}

