// Package registry talks to the Nemu platform registry that owns seller records and
// agent status.
package registry

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/sabamen88/zeroclaw-nemu/internal/pkg/agent"
	"github.com/tidwall/gjson"
)

const (
	DefaultTimeout = 10 * time.Second

	maxResponseBytes = 1 << 20
)

// envelopeKeys are the wrapper objects the registry may nest a seller record under.
var envelopeKeys = []string{"seller", "data"}

// Client is an HTTP client for the registry API.
type Client struct {
	baseURL    string
	token      string
	httpClient *http.Client
}

var _ agent.Registry = (*Client)(nil)

// NewClient creates a registry client. A zero timeout uses DefaultTimeout.
func NewClient(baseURL, token string, timeout time.Duration) (*Client, error) {
	parsed, err := url.Parse(baseURL)
	if err != nil || parsed.Scheme == "" || parsed.Host == "" {
		return nil, fmt.Errorf("%w: registry url %q is not absolute", agent.ErrValidation, baseURL)
	}

	if timeout <= 0 {
		timeout = DefaultTimeout
	}

	return &Client{
		baseURL:    strings.TrimSuffix(baseURL, "/"),
		token:      token,
		httpClient: &http.Client{Timeout: timeout},
	}, nil
}

// GetSeller fetches and validates the seller profile.
func (client *Client) GetSeller(ctx context.Context, id agent.SellerID) (agent.SellerProfile, error) {
	if err := id.Validate(); err != nil {
		return agent.SellerProfile{}, err
	}

	body, err := client.doRequest(ctx, http.MethodGet, client.sellerURL(id), nil)
	if err != nil {
		return agent.SellerProfile{}, fmt.Errorf("get seller %s: %w", id, err)
	}

	profile, err := decodeProfile(body)
	if err != nil {
		return agent.SellerProfile{}, fmt.Errorf("get seller %s: %w", id, err)
	}

	if profile.SellerID == "" {
		profile.SellerID = id
	}

	if profile.SellerID != id {
		return agent.SellerProfile{}, fmt.Errorf("get seller %s: %w: registry returned seller %s", id, agent.ErrUpstream, profile.SellerID)
	}

	if err := profile.Validate(); err != nil {
		return agent.SellerProfile{}, fmt.Errorf("get seller %s: %w", id, err)
	}

	slog.Debug("Seller profile fetched.",
		slog.String("sellerId", string(id)),
		slog.String("storeSlug", profile.StoreSlug),
	)

	return profile, nil
}

// ReportStatus sends one status update for the seller. It is not retried.
func (client *Client) ReportStatus(ctx context.Context, id agent.SellerID, report agent.StatusReport) error {
	payload, err := json.Marshal(report)
	if err != nil {
		return fmt.Errorf("marshal status report: %w", err)
	}

	if _, err := client.doRequest(ctx, http.MethodPatch, client.sellerURL(id)+"/status", payload); err != nil {
		return fmt.Errorf("report status for %s: %w", id, err)
	}

	slog.Debug("Agent status reported.",
		slog.String("sellerId", string(id)),
		slog.String("status", string(report.AgentStatus)),
		slog.Int("port", report.AgentPort),
	)

	return nil
}

func (client *Client) sellerURL(id agent.SellerID) string {
	return client.baseURL + "/api/agent/sellers/" + url.PathEscape(string(id))
}

// doRequest performs the request and classifies failures: 404 as agent.ErrNotFound,
// everything else that is not 2xx as agent.ErrUpstream.
func (client *Client) doRequest(ctx context.Context, method, reqURL string, payload []byte) ([]byte, error) {
	var body io.Reader
	if payload != nil {
		body = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, reqURL, body)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}

	req.Header.Set("Accept", "application/json")
	if client.token != "" {
		req.Header.Set("Authorization", "Bearer "+client.token)
	}
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := client.httpClient.Do(req)
	if err != nil {
		if errors.Is(ctx.Err(), context.Canceled) {
			return nil, ctx.Err()
		}
		return nil, fmt.Errorf("%w: %s %s: %w", agent.ErrUpstream, method, reqURL, err)
	}
	defer func() { _ = resp.Body.Close() }()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, fmt.Errorf("%w: read response: %w", agent.ErrUpstream, err)
	}

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return nil, agent.ErrNotFound
	case resp.StatusCode < 200 || resp.StatusCode >= 300:
		return nil, fmt.Errorf("%w: registry responded %d: %s", agent.ErrUpstream, resp.StatusCode, strings.TrimSpace(string(respBody)))
	}

	return respBody, nil
}

// decodeProfile accepts a bare seller object or one wrapped in a known envelope.
func decodeProfile(body []byte) (agent.SellerProfile, error) {
	if !gjson.ValidBytes(body) {
		return agent.SellerProfile{}, fmt.Errorf("%w: malformed seller payload", agent.ErrUpstream)
	}

	record := gjson.ParseBytes(body)
	for _, key := range envelopeKeys {
		if nested := record.Get(key); nested.IsObject() {
			record = nested
			break
		}
	}

	if !record.IsObject() {
		return agent.SellerProfile{}, fmt.Errorf("%w: seller payload is not an object", agent.ErrUpstream)
	}

	var profile agent.SellerProfile
	if err := json.Unmarshal([]byte(record.Raw), &profile); err != nil {
		return agent.SellerProfile{}, fmt.Errorf("%w: decode seller payload: %w", agent.ErrUpstream, err)
	}

	return profile, nil
}
