package handlers

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/nelsonlove/seriesoftubes-sub001/pkg/adapters"
	"github.com/nelsonlove/seriesoftubes-sub001/pkg/executor"
)

// HTTP issues an HTTP request via the configured adapter (spec §4.4 http).
// Network-level failures retry up to 3 times with jittered backoff
// (executor.HTTPRetryPolicy); an HTTP status >= 400 is returned as a
// Success value (the body/status are handed to the caller) and is never
// retried, per spec.
type HTTP struct{}

func (HTTP) Execute(ctx context.Context, req *executor.Request) (any, error) {
	if req.Adapters == nil || req.Adapters.HTTP == nil {
		return nil, fmt.Errorf("http: no HTTP adapter configured")
	}

	method, _ := req.Config["method"].(string)
	if method == "" {
		method = "GET"
	}
	url, _ := req.Config["url"].(string)
	if url == "" {
		return nil, fmt.Errorf("http: config.url is required")
	}

	headers := stringMap(req.Config["headers"])
	params := stringMap(req.Config["params"])
	auth := parseAuth(req.Config["auth"])

	var timeout time.Duration
	if t, ok := req.Config["timeout"].(float64); ok {
		timeout = time.Duration(t) * time.Second
	}

	var resp *adapters.HTTPResponse
	retry := executor.HTTPRetryPolicy()
	err := retry.Do(ctx, func() error {
		r, err := req.Adapters.HTTP.Request(ctx, method, url, headers, params, req.Config["body"], auth, timeout)
		if err != nil {
			return err
		}
		resp = r
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("http: %w", err)
	}

	var body any
	if strings.Contains(resp.ContentType, "json") {
		if uErr := json.Unmarshal(resp.Body, &body); uErr != nil {
			body = string(resp.Body)
		}
	} else {
		body = string(resp.Body)
	}

	return map[string]any{
		"status":  resp.Status,
		"headers": resp.Headers,
		"body":    body,
	}, nil
}

func stringMap(v any) map[string]string {
	m, ok := v.(map[string]any)
	if !ok {
		return nil
	}
	out := make(map[string]string, len(m))
	for k, vv := range m {
		if s, ok := vv.(string); ok {
			out[k] = s
		}
	}
	return out
}

func parseAuth(v any) *adapters.Auth {
	m, ok := v.(map[string]any)
	if !ok {
		return nil
	}
	kind, _ := m["type"].(string)
	switch kind {
	case "bearer":
		token, _ := m["token"].(string)
		return &adapters.Auth{Kind: adapters.AuthBearer, Token: token}
	case "basic":
		user, _ := m["username"].(string)
		pass, _ := m["password"].(string)
		return &adapters.Auth{Kind: adapters.AuthBasic, Username: user, Password: pass}
	default:
		return nil
	}
}
