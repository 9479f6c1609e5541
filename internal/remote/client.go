// Package remote forwards entity reads and writes to an upstream HTTP API
// that speaks the same /:entity routes as this service.
package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"coach-backend/internal/config"
	"coach-backend/internal/engine"
	"coach-backend/internal/instrument"
	"coach-backend/internal/query"
)

const maxBody = 4 << 20

type Client struct {
	baseURL string
	http    *http.Client
}

func NewClient(cfg config.CollaboratorConfig) *Client {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Client{
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		http:    &http.Client{Timeout: timeout},
	}
}

// Do sends one request and returns the decoded JSON body. Transport
// failures and 5xx answers are errors; 4xx bodies are returned as-is so
// the envelope they carry reaches the caller.
func (c *Client) Do(ctx context.Context, method, path string, params url.Values, body any) (any, error) {
	ctx, span := instrument.Start(ctx, "remote."+strings.ToLower(method))
	defer span.End()
	span.Set("path", path)

	out, status, err := c.send(ctx, method, path, params, body)
	if status > 0 {
		span.Set("status_code", status)
	}
	switch {
	case err != nil:
		span.Fail(err)
		return nil, err
	case status >= 400:
		span.Fail(fmt.Errorf("HTTP %d", status))
	}
	return out, nil
}

func (c *Client) send(ctx context.Context, method, path string, params url.Values, body any) (any, int, error) {
	target := c.baseURL + path
	if len(params) > 0 {
		target += "?" + params.Encode()
	}

	var reader io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return nil, 0, fmt.Errorf("encode body: %w", err)
		}
		reader = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, target, reader)
	if err != nil {
		return nil, 0, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if traceID := instrument.TraceID(ctx); traceID != "" {
		req.Header.Set(instrument.TraceHeader, traceID)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, 0, fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()
	status := resp.StatusCode

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, maxBody))
	if err != nil {
		return nil, status, fmt.Errorf("%s %s: read body: %w", method, path, err)
	}
	if status >= 500 {
		return nil, status, fmt.Errorf("%s %s: HTTP %d", method, path, status)
	}

	failure := map[string]any{"success": false, "error": fmt.Sprintf("HTTP %d", status)}
	if len(bytes.TrimSpace(respBody)) == 0 {
		if status >= 400 {
			return failure, status, nil
		}
		return nil, status, nil
	}
	var out any
	if err := json.Unmarshal(respBody, &out); err != nil {
		if status >= 400 {
			return failure, status, nil
		}
		return nil, status, fmt.Errorf("%s %s: decode body: %w", method, path, err)
	}
	return out, status, nil
}

// listValues encodes params the way the api package parses them.
func listValues(p query.Params) url.Values {
	v := url.Values{}
	if p.Page > 0 {
		v.Set("page", strconv.Itoa(p.Page))
	}
	if p.Limit > 0 {
		v.Set("limit", strconv.Itoa(p.Limit))
	}
	if p.SortBy != "" {
		v.Set("sortBy", p.SortBy)
	}
	if p.SortOrder != "" {
		v.Set("sortOrder", string(p.SortOrder))
	}
	if p.Search != "" {
		v.Set("search", p.Search)
	}
	if len(p.SearchFields) > 0 {
		v.Set("searchFields", strings.Join(p.SearchFields, ","))
	}
	for k, val := range p.Filters {
		v.Set("filter["+k+"]", fmt.Sprint(val))
	}
	return v
}

// Bind exposes one upstream entity as an engine collaborator.
func Bind[I any](c *Client, entity string) engine.Remote[I] {
	base := "/" + url.PathEscape(entity)
	item := func(id string) string { return base + "/" + url.PathEscape(id) }
	return engine.Remote[I]{
		Fetch: func(ctx context.Context, params query.Params) (any, error) {
			return c.Do(ctx, http.MethodGet, base, listValues(params), nil)
		},
		FetchByID: func(ctx context.Context, id string) (any, error) {
			return c.Do(ctx, http.MethodGet, item(id), nil, nil)
		},
		Create: func(ctx context.Context, input I) (any, error) {
			return c.Do(ctx, http.MethodPost, base, nil, input)
		},
		Update: func(ctx context.Context, id string, patch map[string]any) (any, error) {
			return c.Do(ctx, http.MethodPatch, item(id), nil, patch)
		},
		Delete: func(ctx context.Context, id string) (any, error) {
			return c.Do(ctx, http.MethodDelete, item(id), nil, nil)
		},
	}
}
