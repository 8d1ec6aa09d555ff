package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/hashicorp/go-retryablehttp"
)

// statusError is returned for any non-2xx response.
type statusError struct {
	StatusCode int
	Body       string
}

func (e *statusError) Error() string {
	return fmt.Sprintf("request returned %d %s: %s", e.StatusCode, http.StatusText(e.StatusCode), e.Body)
}

// vaultClient is a thin HTTP client for the filevault API.
type vaultClient struct {
	baseURL    string
	token      string
	httpClient *retryablehttp.Client
}

func newVaultClient(baseURL, token string, timeout time.Duration, retryMax int) *vaultClient {
	client := retryablehttp.NewClient()
	client.RetryMax = retryMax
	client.RetryWaitMin = 100 * time.Millisecond
	client.RetryWaitMax = 2 * time.Second
	client.HTTPClient.Timeout = timeout
	client.Logger = nil
	client.CheckRetry = retryPolicy

	return &vaultClient{
		baseURL:    strings.TrimRight(baseURL, "/"),
		token:      token,
		httpClient: client,
	}
}

// retryPolicy retries connection failures and 503s. Every other response,
// including 4xx and 500, is returned to the caller as is.
func retryPolicy(ctx context.Context, resp *http.Response, err error) (bool, error) {
	if ctx.Err() != nil {
		return false, ctx.Err()
	}
	if resp != nil {
		return resp.StatusCode == http.StatusServiceUnavailable, nil
	}
	return err != nil, nil
}

type response struct {
	status int
	header http.Header
	body   []byte
}

func (c *vaultClient) do(ctx context.Context, method, path string, body []byte, header http.Header) (*response, error) {
	var reqBody interface{}
	if body != nil {
		reqBody = body
	}

	req, err := retryablehttp.NewRequestWithContext(ctx, method, c.baseURL+path, reqBody)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	for k, vs := range header {
		for _, v := range vs {
			req.Header.Add(k, v)
		}
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}

	out := &response{status: resp.StatusCode, header: resp.Header, body: respBody}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return out, &statusError{StatusCode: resp.StatusCode, Body: strings.TrimSpace(string(respBody))}
	}
	return out, nil
}

func (c *vaultClient) doJSON(ctx context.Context, method, path string, body []byte, header http.Header, result interface{}) (*response, error) {
	resp, err := c.do(ctx, method, path, body, header)
	if err != nil {
		return resp, err
	}
	if result != nil && len(resp.body) > 0 {
		if err := json.Unmarshal(resp.body, result); err != nil {
			return resp, fmt.Errorf("parse response: %w", err)
		}
	}
	return resp, nil
}

func jsonHeader() http.Header {
	return http.Header{"Content-Type": []string{"application/json"}}
}
