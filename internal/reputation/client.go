package reputation

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/formsentry/formsentry/internal/config"
)

const maxErrorBodyBytes = 512

// Client calls an AbuseIPDB-compatible reputation oracle.
type Client struct {
	baseURL      string
	apiKey       string
	maxAgeInDays int
	httpClient   *http.Client
}

// NewClient constructs a reputation Client from config.
func NewClient(cfg config.AbuseIPDBConfig) *Client {
	return &Client{
		baseURL:      strings.TrimRight(cfg.BaseURL, "/"),
		apiKey:       cfg.APIKey,
		maxAgeInDays: cfg.MaxAgeInDays,
		httpClient:   &http.Client{Timeout: cfg.Timeout},
	}
}

type checkResponse struct {
	Data struct {
		AbuseConfidenceScore *int `json:"abuseConfidenceScore"`
	} `json:"data"`
}

// Check returns the abuse confidence score (0-100) for an IP. A missing
// score field in an otherwise valid response counts as 0.
func (c *Client) Check(ctx context.Context, ip string) (int, error) {
	if c.apiKey == "" {
		return 0, errors.New("reputation: api key is not configured")
	}

	endpoint := fmt.Sprintf("%s/api/v2/check?ipAddress=%s&maxAgeInDays=%d",
		c.baseURL, url.QueryEscape(ip), c.maxAgeInDays)
	req, errReq := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if errReq != nil {
		return 0, fmt.Errorf("reputation: build request: %w", errReq)
	}
	req.Header.Set("Key", c.apiKey)
	req.Header.Set("Accept", "application/json")

	resp, errDo := c.httpClient.Do(req)
	if errDo != nil {
		return 0, fmt.Errorf("reputation: request: %w", errDo)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBodyBytes))
		return 0, fmt.Errorf("reputation: status=%d body=%s", resp.StatusCode, strings.TrimSpace(string(body)))
	}

	var parsed checkResponse
	if errDecode := json.NewDecoder(resp.Body).Decode(&parsed); errDecode != nil {
		return 0, fmt.Errorf("reputation: decode response: %w", errDecode)
	}

	score := 0
	if parsed.Data.AbuseConfidenceScore != nil {
		score = *parsed.Data.AbuseConfidenceScore
	}
	return score, nil
}
