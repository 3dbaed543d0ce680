package graph

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"go.uber.org/zap"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/clientcredentials"

	"github.com/spec-kit/helpdesk-service/internal/config"
	apperrors "github.com/spec-kit/helpdesk-service/pkg/util"
)

const graphScope = "https://graph.microsoft.com/.default"

// Client talks to the SharePoint list that mirrors resolved tickets, both
// through Microsoft Graph and through the legacy SharePoint REST API.
type Client struct {
	baseURL   string
	siteURL   string
	siteID    string
	listID    string
	listTitle string

	tokens oauth2.TokenSource
	http   *http.Client
	logger *zap.Logger
}

// NewClient builds a client from configuration. tokens supplies bearer
// tokens for both APIs.
func NewClient(cfg config.GraphConfig, tokens oauth2.TokenSource, logger *zap.Logger) *Client {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Client{
		baseURL:   cfg.BaseURL,
		siteURL:   cfg.SharePointSiteURL,
		siteID:    cfg.SiteID,
		listID:    cfg.ListID,
		listTitle: cfg.ListTitle,
		tokens:    tokens,
		http: &http.Client{
			Timeout: cfg.ClientTimeout(),
			Transport: &http.Transport{
				Proxy:               http.ProxyFromEnvironment,
				IdleConnTimeout:     30 * time.Second,
				MaxIdleConnsPerHost: 5,
			},
		},
		logger: logger.Named("graph"),
	}
}

// NewTokenSource returns a client-credentials token source when the app
// registration is configured, and a static token otherwise.
func NewTokenSource(ctx context.Context, cfg config.GraphConfig) oauth2.TokenSource {
	if cfg.UsesClientCredentials() {
		cc := clientcredentials.Config{
			ClientID:     cfg.ClientID,
			ClientSecret: cfg.ClientSecret,
			TokenURL:     fmt.Sprintf("https://login.microsoftonline.com/%s/oauth2/v2.0/token", url.PathEscape(cfg.TenantID)),
			Scopes:       []string{graphScope},
		}
		return cc.TokenSource(ctx)
	}
	return oauth2.StaticTokenSource(&oauth2.Token{AccessToken: cfg.AccessToken, TokenType: "Bearer"})
}

// HasLegacyEndpoint reports whether the SharePoint REST fallback is addressable.
func (c *Client) HasLegacyEndpoint() bool {
	return c.siteURL != "" && c.listTitle != ""
}

func (c *Client) itemsURL() string {
	return fmt.Sprintf("%s/sites/%s/lists/%s/items", c.baseURL, url.PathEscape(c.siteID), url.PathEscape(c.listID))
}

type request struct {
	op          string
	method      string
	url         string
	contentType string
	accept      string
	body        []byte
}

type response struct {
	status int
	body   []byte
}

func (r response) ok() bool {
	return r.status >= 200 && r.status < 300
}

// do sends req with a bearer token. Only transport failures come back as
// errors; every HTTP answer is returned for the caller to classify.
func (c *Client) do(ctx context.Context, req request) (response, error) {
	httpReq, err := http.NewRequestWithContext(ctx, req.method, req.url, bytes.NewReader(req.body))
	if err != nil {
		return response{}, fmt.Errorf("%s: build request: %w", req.op, err)
	}
	if c.tokens != nil {
		token, err := c.tokens.Token()
		if err != nil {
			return response{}, apperrors.NewNetworkError(req.op+": acquire token", err)
		}
		token.SetAuthHeader(httpReq)
	}
	if req.contentType != "" {
		httpReq.Header.Set("Content-Type", req.contentType)
	}
	accept := req.accept
	if accept == "" {
		accept = "application/json"
	}
	httpReq.Header.Set("Accept", accept)

	c.logger.Debug("request", zap.String("op", req.op), zap.String("method", req.method), zap.String("url", req.url))

	resp, err := c.http.Do(httpReq)
	if err != nil {
		return response{}, apperrors.NewNetworkError(req.op, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil && !errors.Is(err, io.EOF) {
		return response{}, apperrors.NewNetworkError(req.op+": read body", err)
	}
	c.logger.Debug("response", zap.String("op", req.op), zap.Int("status", resp.StatusCode))
	return response{status: resp.StatusCode, body: body}, nil
}
