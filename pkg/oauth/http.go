package oauth

import (
	"crypto/tls"
	"io"
	"net"
	"net/http"
	"time"
)

const (
	maxAttempts    = 3
	initialBackoff = 100 * time.Millisecond
)

// newHTTPClient creates an HTTP client for the authorization server.
// Transient failures are retried with exponential backoff.
func newHTTPClient(timeout time.Duration, tlsConfig *tls.Config, insecureSkipVerify bool) *http.Client {
	customTLS := tlsConfig
	if customTLS == nil {
		customTLS = &tls.Config{
			MinVersion: tls.VersionTLS12,
		}
	} else {
		// Clone to avoid modifying the original
		customTLS = tlsConfig.Clone()
	}

	if insecureSkipVerify {
		customTLS.InsecureSkipVerify = true
	}

	transport := &http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   30 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		TLSClientConfig:       customTLS,
		ForceAttemptHTTP2:     true,
		MaxIdleConns:          100,
		MaxIdleConnsPerHost:   10,
		IdleConnTimeout:       90 * time.Second,
		TLSHandshakeTimeout:   10 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
		ResponseHeaderTimeout: timeout,
	}

	return &http.Client{
		Timeout:   timeout,
		Transport: &retryTransport{base: transport},
	}
}

// retryTransport wraps an http.RoundTripper with retry logic for transient failures.
type retryTransport struct {
	base http.RoundTripper
}

// RoundTrip implements http.RoundTripper. Requests whose body cannot be
// replayed are sent once. The wait between attempts ends early when the
// request context is done.
func (t *retryTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	backoff := initialBackoff

	for attempt := 1; ; attempt++ {
		resp, err := t.base.RoundTrip(req)
		if err == nil && !shouldRetry(resp) {
			return resp, nil
		}

		if attempt == maxAttempts || !replayable(req) {
			return resp, err
		}

		if resp != nil {
			io.Copy(io.Discard, resp.Body)
			resp.Body.Close()
		}

		timer := time.NewTimer(backoff)
		select {
		case <-req.Context().Done():
			timer.Stop()
			return nil, req.Context().Err()
		case <-timer.C:
		}
		backoff *= 2

		if req.GetBody != nil {
			body, err := req.GetBody()
			if err != nil {
				return nil, err
			}
			req = req.Clone(req.Context())
			req.Body = body
		}
	}
}

func replayable(req *http.Request) bool {
	return req.Body == nil || req.Body == http.NoBody || req.GetBody != nil
}

// shouldRetry determines if an HTTP response indicates a transient failure.
func shouldRetry(resp *http.Response) bool {
	if resp == nil {
		return true
	}

	// Retry on server errors (5xx) and rate limiting (429)
	return resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500
}
