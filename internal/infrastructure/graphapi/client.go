package graphapi

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

	"golang.org/x/time/rate"

	"github.com/dreschagin/views-collector/internal/application/port"
	"github.com/dreschagin/views-collector/internal/domain/entity"
	"github.com/dreschagin/views-collector/internal/domain/valueobject"
	"github.com/dreschagin/views-collector/pkg/logger"
)

const (
	DefaultBaseURL = "https://graph.facebook.com"
	DefaultVersion = "v23.0"
	DefaultTimeout = 12 * time.Second

	mediaFields     = "id,media_type,timestamp,caption,permalink"
	maxErrorBodyLen = 512
)

type Config struct {
	BaseURL     string
	Version     string
	AccessToken string
	UserID      string
	Timeout     time.Duration

	// RateLimitRPS <= 0 disables pacing.
	RateLimitRPS   float64
	RateLimitBurst int

	HTTPClient *http.Client
}

// Client reads media and insights from the Instagram Graph API.
// Every method performs exactly one request; retries belong to the caller.
type Client struct {
	baseURL string
	version string
	token   string
	userID  string
	timeout time.Duration
	client  *http.Client
	limiter *rate.Limiter
	logger  *logger.Logger
}

var _ port.MediaSource = (*Client)(nil)

func NewClient(cfg Config, log *logger.Logger) (*Client, error) {
	if strings.TrimSpace(cfg.AccessToken) == "" {
		return nil, errors.New("graph api access token is required")
	}
	if strings.TrimSpace(cfg.UserID) == "" {
		return nil, errors.New("graph api user id is required")
	}

	baseURL := strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	version := strings.Trim(strings.TrimSpace(cfg.Version), "/")
	if version == "" {
		version = DefaultVersion
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}

	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: timeout}
	}

	var limiter *rate.Limiter
	if cfg.RateLimitRPS > 0 {
		burst := cfg.RateLimitBurst
		if burst <= 0 {
			burst = 1
		}
		limiter = rate.NewLimiter(rate.Limit(cfg.RateLimitRPS), burst)
	}

	return &Client{
		baseURL: baseURL,
		version: version,
		token:   cfg.AccessToken,
		userID:  cfg.UserID,
		timeout: timeout,
		client:  httpClient,
		limiter: limiter,
		logger:  log,
	}, nil
}

type mediaResponse struct {
	Data   []mediaRecord `json:"data"`
	Paging struct {
		Cursors struct {
			After string `json:"after"`
		} `json:"cursors"`
	} `json:"paging"`
}

type mediaRecord struct {
	ID        flexibleID `json:"id"`
	MediaType string     `json:"media_type"`
	Timestamp string     `json:"timestamp"`
	Caption   string     `json:"caption"`
	Permalink string     `json:"permalink"`
}

type insightsResponse struct {
	Data []struct {
		Name   string `json:"name"`
		Values []struct {
			Value json.Number `json:"value"`
		} `json:"values"`
	} `json:"data"`
}

// FetchMediaPage requests /{user_id}/media. The next cursor is
// paging.cursors.after; an empty value means no further pages.
func (c *Client) FetchMediaPage(ctx context.Context, cursor string, limit int) (port.MediaPage, error) {
	query := url.Values{}
	query.Set("fields", mediaFields)
	query.Set("limit", strconv.Itoa(limit))
	if cursor != "" {
		query.Set("after", cursor)
	}

	var resp mediaResponse
	if err := c.getJSON(ctx, c.userID+"/media", query, &resp); err != nil {
		return port.MediaPage{}, err
	}

	items := make([]*entity.MediaItem, 0, len(resp.Data))
	for _, record := range resp.Data {
		item, err := entity.NewMediaItem(
			string(record.ID),
			valueobject.MediaType(record.MediaType),
			record.Timestamp,
			record.Caption,
			record.Permalink,
		)
		if err != nil {
			return port.MediaPage{}, fmt.Errorf("invalid media record: %w", err)
		}
		items = append(items, item)
	}

	return port.MediaPage{
		Items:      items,
		NextCursor: resp.Paging.Cursors.After,
	}, nil
}

// FetchMetric requests /{media_id}/insights and picks the first value of
// the entry named metric. A missing entry or value is absent, not an error.
func (c *Client) FetchMetric(ctx context.Context, mediaID, metric string) (valueobject.MetricValue, error) {
	query := url.Values{}
	query.Set("metric", metric)

	var resp insightsResponse
	if err := c.getJSON(ctx, url.PathEscape(mediaID)+"/insights", query, &resp); err != nil {
		return valueobject.AbsentMetricValue(), err
	}

	for _, entry := range resp.Data {
		if entry.Name != metric {
			continue
		}
		if len(entry.Values) == 0 || entry.Values[0].Value == "" {
			return valueobject.AbsentMetricValue(), nil
		}
		return parseMetricValue(entry.Values[0].Value)
	}

	return valueobject.AbsentMetricValue(), nil
}

func (c *Client) getJSON(ctx context.Context, path string, query url.Values, dest interface{}) error {
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return fmt.Errorf("rate limit wait: %w", err)
		}
	}

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	query.Set("access_token", c.token)
	endpoint := fmt.Sprintf("%s/%s/%s?%s", c.baseURL, c.version, path, query.Encode())

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, http.NoBody)
	if err != nil {
		return fmt.Errorf("create request: %w", c.redact(err))
	}
	req.Header.Set("Accept", "application/json")

	start := time.Now()
	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("request %s: %w", path, c.redact(err))
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read response %s: %w", path, err)
	}

	if c.logger != nil {
		c.logger.Debug("Graph API request completed",
			"path", path,
			"status", resp.StatusCode,
			"duration_ms", time.Since(start).Milliseconds(),
		)
	}

	var envelope struct {
		Error *APIError `json:"error"`
	}
	if err := json.Unmarshal(body, &envelope); err == nil && envelope.Error != nil {
		return envelope.Error
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return &StatusError{StatusCode: resp.StatusCode, Body: truncate(string(body), maxErrorBodyLen)}
	}

	decoder := json.NewDecoder(bytes.NewReader(body))
	decoder.UseNumber()
	if err := decoder.Decode(dest); err != nil {
		return fmt.Errorf("decode response %s: %w", path, err)
	}
	return nil
}

// redact removes the access token from transport errors, which embed the URL.
func (c *Client) redact(err error) error {
	var urlErr *url.Error
	if errors.As(err, &urlErr) {
		return &url.Error{
			Op:  urlErr.Op,
			URL: strings.ReplaceAll(urlErr.URL, url.QueryEscape(c.token), "REDACTED"),
			Err: urlErr.Err,
		}
	}
	return err
}

func parseMetricValue(raw json.Number) (valueobject.MetricValue, error) {
	if n, err := raw.Int64(); err == nil {
		return valueobject.NewMetricValue(n)
	}
	f, err := raw.Float64()
	if err != nil {
		return valueobject.AbsentMetricValue(), fmt.Errorf("invalid metric value %q: %w", raw.String(), err)
	}
	return valueobject.NewMetricValue(int64(f))
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}

// flexibleID accepts ids encoded as JSON strings or numbers and keeps the
// digits verbatim.
type flexibleID string

func (id *flexibleID) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || string(data) == "null" {
		*id = ""
		return nil
	}
	if data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*id = flexibleID(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return fmt.Errorf("invalid id %s: %w", data, err)
	}
	*id = flexibleID(n.String())
	return nil
}
