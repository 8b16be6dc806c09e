// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package source

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
	"time"

	"github.com/awnumar/memguard"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"golang.org/x/time/rate"

	"github.com/AleutianAI/AleutianMirror/services/mirror/content"
)

const (
	DefaultBaseURL           = "https://api.notion.com"
	DefaultAPIVersion        = "2022-06-28"
	DefaultPageSize          = 100
	DefaultRequestTimeout    = 30 * time.Second
	DefaultRequestsPerSecond = 3.0

	// maxPageSize is the provider's upper bound for page_size.
	maxPageSize = 100

	maxResponseBytes = 10 * 1024 * 1024
)

// HTTPClient allows injecting mock HTTP clients for testing.
type HTTPClient interface {
	Do(req *http.Request) (*http.Response, error)
}

// ClientConfig configures the Notion API client.
type ClientConfig struct {
	// BaseURL of the API. Default: DefaultBaseURL.
	BaseURL string

	// APIVersion is sent as the Notion-Version header. Default: DefaultAPIVersion.
	APIVersion string

	// Token is the integration secret. Required. It is moved into a
	// memguard enclave and is not retained as a Go string.
	Token string

	// PageSize requested per listing page, 1-100. Default: DefaultPageSize.
	PageSize int

	// RequestTimeout bounds each page request. Default: DefaultRequestTimeout.
	RequestTimeout time.Duration

	// RequestsPerSecond throttles outgoing requests. Default: DefaultRequestsPerSecond.
	RequestsPerSecond float64

	// HTTPClient performs requests. Default: an *http.Client with an
	// otelhttp transport, so each page request gets a client span.
	HTTPClient HTTPClient
}

// APIError is a non-2xx response from the provider.
type APIError struct {
	StatusCode int    `json:"status"`
	Code       string `json:"code"`
	Message    string `json:"message"`
}

func (e *APIError) Error() string {
	if e.Code == "" {
		return fmt.Sprintf("notion api: http %d", e.StatusCode)
	}
	return fmt.Sprintf("notion api: http %d: %s: %s", e.StatusCode, e.Code, e.Message)
}

// Client implements Source against the Notion REST API.
type Client struct {
	baseURL    string
	apiVersion string
	pageSize   int
	timeout    time.Duration
	token      *memguard.Enclave
	http       HTTPClient
	limiter    *rate.Limiter
}

type listResponse struct {
	Results    []json.RawMessage `json:"results"`
	HasMore    bool              `json:"has_more"`
	NextCursor *string           `json:"next_cursor"`
}

type queryRequest struct {
	PageSize    int    `json:"page_size"`
	StartCursor string `json:"start_cursor,omitempty"`
}

// NewClient validates cfg and builds a Client.
func NewClient(cfg ClientConfig) (*Client, error) {
	if cfg.Token == "" {
		return nil, errors.New("notion client: token is required")
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	if _, err := url.ParseRequestURI(cfg.BaseURL); err != nil {
		return nil, fmt.Errorf("notion client: invalid base url %q: %w", cfg.BaseURL, err)
	}
	if cfg.APIVersion == "" {
		cfg.APIVersion = DefaultAPIVersion
	}
	if cfg.PageSize == 0 {
		cfg.PageSize = DefaultPageSize
	}
	if cfg.PageSize < 1 || cfg.PageSize > maxPageSize {
		return nil, fmt.Errorf("notion client: page size %d out of range 1-%d", cfg.PageSize, maxPageSize)
	}
	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = DefaultRequestTimeout
	}
	if cfg.RequestsPerSecond <= 0 {
		cfg.RequestsPerSecond = DefaultRequestsPerSecond
	}
	if cfg.HTTPClient == nil {
		cfg.HTTPClient = &http.Client{Transport: otelhttp.NewTransport(http.DefaultTransport)}
	}

	return &Client{
		baseURL:    cfg.BaseURL,
		apiVersion: cfg.APIVersion,
		pageSize:   cfg.PageSize,
		timeout:    cfg.RequestTimeout,
		token:      memguard.NewEnclave([]byte(cfg.Token)),
		http:       cfg.HTTPClient,
		limiter:    rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), 1),
	}, nil
}

// List fetches one page of target.
func (c *Client) List(ctx context.Context, target Target, cursor string) (Page, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	if err := c.limiter.Wait(ctx); err != nil {
		return Page{}, fmt.Errorf("rate limit: %w", err)
	}

	req, err := c.newRequest(ctx, target, cursor)
	if err != nil {
		return Page{}, err
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return Page{}, fmt.Errorf("http: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return Page{}, fmt.Errorf("read body: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		apiErr := &APIError{}
		_ = json.Unmarshal(body, apiErr)
		apiErr.StatusCode = resp.StatusCode
		return Page{}, apiErr
	}

	var listing listResponse
	if err := json.Unmarshal(body, &listing); err != nil {
		return Page{}, fmt.Errorf("decode listing: %w", err)
	}

	page := Page{
		Results: make([]*content.Node, 0, len(listing.Results)),
		HasMore: listing.HasMore,
	}
	if listing.NextCursor != nil {
		page.NextCursor = *listing.NextCursor
	}
	for i, raw := range listing.Results {
		node, err := content.ParseNode(raw)
		if err != nil {
			return Page{}, fmt.Errorf("decode result %d: %w", i, err)
		}
		page.Results = append(page.Results, node)
	}
	return page, nil
}

func (c *Client) newRequest(ctx context.Context, target Target, cursor string) (*http.Request, error) {
	var req *http.Request
	switch target.Listing {
	case ListingChildren:
		endpoint, err := url.JoinPath(c.baseURL, "v1", "blocks", target.ID, "children")
		if err != nil {
			return nil, fmt.Errorf("build url: %w", err)
		}
		query := url.Values{}
		query.Set("page_size", strconv.Itoa(c.pageSize))
		if cursor != "" {
			query.Set("start_cursor", cursor)
		}
		req, err = http.NewRequestWithContext(ctx, http.MethodGet, endpoint+"?"+query.Encode(), nil)
		if err != nil {
			return nil, fmt.Errorf("new request: %w", err)
		}
	case ListingRows:
		endpoint, err := url.JoinPath(c.baseURL, "v1", "databases", target.ID, "query")
		if err != nil {
			return nil, fmt.Errorf("build url: %w", err)
		}
		body, err := json.Marshal(queryRequest{PageSize: c.pageSize, StartCursor: cursor})
		if err != nil {
			return nil, fmt.Errorf("encode query: %w", err)
		}
		req, err = http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
		if err != nil {
			return nil, fmt.Errorf("new request: %w", err)
		}
		req.Header.Set("Content-Type", "application/json")
	default:
		return nil, fmt.Errorf("unknown listing kind %q", target.Listing)
	}

	token, err := c.token.Open()
	if err != nil {
		return nil, fmt.Errorf("open credential: %w", err)
	}
	defer token.Destroy()

	req.Header.Set("Authorization", "Bearer "+token.String())
	req.Header.Set("Notion-Version", c.apiVersion)
	req.Header.Set("Accept", "application/json")
	return req, nil
}
