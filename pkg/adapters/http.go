package adapters

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// DefaultHTTP is the stdlib-backed HTTP adapter, grounded in the teacher's
// builtin.HTTPExecutor request-building idiom.
type DefaultHTTP struct {
	client *http.Client
}

// NewDefaultHTTP returns an HTTP adapter with the given default timeout
// (overridden per-request when the handler passes a non-zero timeout).
func NewDefaultHTTP(defaultTimeout time.Duration) *DefaultHTTP {
	if defaultTimeout <= 0 {
		defaultTimeout = 30 * time.Second
	}
	return &DefaultHTTP{client: &http.Client{Timeout: defaultTimeout}}
}

func (a *DefaultHTTP) Request(ctx context.Context, method, rawURL string, headers map[string]string, params map[string]string, body any, auth *Auth, timeout time.Duration) (*HTTPResponse, error) {
	if len(params) > 0 {
		u, err := url.Parse(rawURL)
		if err != nil {
			return nil, fmt.Errorf("parse url: %w", err)
		}
		q := u.Query()
		for k, v := range params {
			q.Set(k, v)
		}
		u.RawQuery = q.Encode()
		rawURL = u.String()
	}

	var reader io.Reader
	if body != nil {
		var data []byte
		switch v := body.(type) {
		case string:
			data = []byte(v)
		case []byte:
			data = v
		default:
			var err error
			data, err = json.Marshal(v)
			if err != nil {
				return nil, fmt.Errorf("marshal request body: %w", err)
			}
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, rawURL, reader)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	if req.Header.Get("Content-Type") == "" && reader != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	applyAuth(req, auth)

	client := a.client
	if timeout > 0 {
		c := *a.client
		c.Timeout = timeout
		client = &c
	}

	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}

	return &HTTPResponse{
		Status:      resp.StatusCode,
		Headers:     resp.Header,
		Body:        respBody,
		ContentType: strings.ToLower(resp.Header.Get("Content-Type")),
	}, nil
}

func applyAuth(req *http.Request, auth *Auth) {
	if auth == nil {
		return
	}
	switch auth.Kind {
	case AuthBearer:
		req.Header.Set("Authorization", "Bearer "+auth.Token)
	case AuthBasic:
		req.SetBasicAuth(auth.Username, auth.Password)
	}
}
