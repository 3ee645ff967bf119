package adsapi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/adsynchq/adsync-backend/pkg/config"
	pkgerrors "github.com/adsynchq/adsync-backend/pkg/errors"
	"github.com/adsynchq/adsync-backend/pkg/logger"
)

var (
	errBaseURLRequired = errors.New("ads api base url is required")
	errTokenRequired   = errors.New("ads api access token is required")
	errLoggerRequired  = errors.New("ads api logger is required")
)

// Rate-limit codes the upstream reports inside its error body alongside a
// 400 status instead of a 429.
var rateLimitCodes = map[int]bool{
	4:     true,
	17:    true,
	32:    true,
	613:   true,
	80000: true,
	80004: true,
}

type httpDoer interface {
	Do(req *http.Request) (*http.Response, error)
}

// Client wraps the upstream ads-insights API with centralized auth, paging,
// logging, and error mapping.
type Client struct {
	http     httpDoer
	baseURL  string
	token    string
	pageSize int
	logger   *logger.Logger
}

// NewClient initializes the insights wrapper and validates the credentials.
func NewClient(ctx context.Context, cfg config.AdsAPIConfig, logg *logger.Logger) (*Client, error) {
	if logg == nil {
		return nil, errLoggerRequired
	}
	baseURL := strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if baseURL == "" {
		return nil, errBaseURLRequired
	}
	token := strings.TrimSpace(cfg.AccessToken)
	if token == "" {
		return nil, errTokenRequired
	}

	c := &Client{
		http:     &http.Client{Timeout: cfg.RequestTimeout},
		baseURL:  baseURL,
		token:    token,
		pageSize: cfg.PageSize,
		logger:   logg,
	}

	logg.Info(ctx, "ads api client initialized")
	return c, nil
}

// GetInsights fetches every page of the insights window described by params
// and returns the concatenated rows.
func (c *Client) GetInsights(ctx context.Context, params InsightsParams) ([]InsightRow, error) {
	if params.PageSize <= 0 {
		params.PageSize = c.pageSize
	}
	values, err := params.query()
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "building insights query")
	}

	endpoint := fmt.Sprintf("%s/act_%s/insights?%s", c.baseURL, url.PathEscape(params.AccountID), values.Encode())

	c.log(ctx, "request", map[string]any{
		"account_id": params.AccountID,
		"since":      params.Since.Format(dateLayout),
		"until":      params.Until.Format(dateLayout),
		"breakdown":  params.Breakdown.String(),
	})

	var rows []InsightRow
	next := endpoint
	pages := 0
	for next != "" {
		page, err := c.fetchPage(ctx, next)
		if err != nil {
			c.log(ctx, "error", map[string]any{
				"account_id": params.AccountID,
				"error":      err.Error(),
			})
			return nil, err
		}
		rows = append(rows, page.Data...)
		next = page.Paging.Next
		pages++
	}

	c.log(ctx, "response", map[string]any{
		"account_id": params.AccountID,
		"rows":       len(rows),
		"pages":      pages,
	})
	return rows, nil
}

func (c *Client) fetchPage(ctx context.Context, rawURL string) (*insightsPage, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "building insights request")
	}
	req.Header.Set("Authorization", "Bearer "+c.token)
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeTransient, err, "insights request failed")
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeTransient, err, "reading insights response")
	}

	var page insightsPage
	if err := json.Unmarshal(body, &page); err != nil {
		if resp.StatusCode != http.StatusOK {
			return nil, c.mapStatusError(resp.StatusCode, nil)
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "decoding insights response")
	}

	if resp.StatusCode != http.StatusOK || page.Error != nil {
		return nil, c.mapStatusError(resp.StatusCode, page.Error)
	}
	return &page, nil
}

func (c *Client) mapStatusError(status int, apiErr *apiError) error {
	message := "insights request rejected"
	if apiErr != nil && apiErr.Message != "" {
		message = apiErr.Message
	}

	cause := fmt.Errorf("status %d: %s", status, message)
	switch {
	case status == http.StatusTooManyRequests:
		return pkgerrors.Wrap(pkgerrors.CodeRateLimit, cause, "insights rate limited")
	case apiErr != nil && rateLimitCodes[apiErr.Code]:
		return pkgerrors.Wrap(pkgerrors.CodeRateLimit, cause, "insights rate limited")
	case apiErr != nil && apiErr.IsTransient:
		return pkgerrors.Wrap(pkgerrors.CodeTransient, cause, "insights transient failure")
	case status >= 500:
		return pkgerrors.Wrap(pkgerrors.CodeTransient, cause, "insights upstream failure")
	default:
		return pkgerrors.Wrap(pkgerrors.CodeValidation, cause, "insights request invalid")
	}
}

func (c *Client) log(ctx context.Context, phase string, fields map[string]any) {
	if c == nil || c.logger == nil {
		return
	}
	logFields := map[string]any{
		"operation": "get_insights",
		"phase":     phase,
	}
	for k, v := range fields {
		logFields[k] = c.redact(k, v)
	}
	ctx = c.logger.WithFields(ctx, logFields)
	switch phase {
	case "error":
		c.logger.Error(ctx, "ads api get_insights", errors.New(fmt.Sprint(fields["error"])))
	default:
		c.logger.Info(ctx, fmt.Sprintf("ads api %s", phase))
	}
}

func (c *Client) redact(key string, value any) any {
	lower := strings.ToLower(key)
	for _, sensitive := range []string{"token", "secret", "authorization"} {
		if strings.Contains(lower, sensitive) {
			return "[REDACTED]"
		}
	}
	return value
}
