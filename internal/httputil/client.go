// Package httputil holds the HTTP client seam used by the outbound sender and
// the JSON response helpers used by the monitor.
package httputil

import (
	"bytes"
	"io"
	"net/http"
	"sync"
	"time"
)

// HTTPClient is the subset of *http.Client the bridge uses.
type HTTPClient interface {
	Do(req *http.Request) (*http.Response, error)
}

// NewClient returns an *http.Client whose requests time out after timeout.
func NewClient(timeout time.Duration) *http.Client {
	return &http.Client{Timeout: timeout}
}

// RecordedRequest is a request seen by MockHTTPClient, with its body read.
type RecordedRequest struct {
	Method      string
	URL         string
	ContentType string
	Body        []byte
}

// MockHTTPClient records requests and answers with a fixed status, or Err.
type MockHTTPClient struct {
	mu       sync.Mutex
	requests []RecordedRequest

	StatusCode int
	Err        error
}

// NewMockHTTPClient returns a mock answering 200 OK.
func NewMockHTTPClient() *MockHTTPClient {
	return &MockHTTPClient{StatusCode: http.StatusOK}
}

// Do records req and returns the canned response.
func (m *MockHTTPClient) Do(req *http.Request) (*http.Response, error) {
	var body []byte
	if req.Body != nil {
		body, _ = io.ReadAll(req.Body)
		req.Body.Close()
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.requests = append(m.requests, RecordedRequest{
		Method:      req.Method,
		URL:         req.URL.String(),
		ContentType: req.Header.Get("Content-Type"),
		Body:        body,
	})
	if m.Err != nil {
		return nil, m.Err
	}
	return &http.Response{
		StatusCode: m.StatusCode,
		Body:       io.NopCloser(bytes.NewBufferString("ok")),
		Header:     make(http.Header),
		Request:    req,
	}, nil
}

// Requests returns a copy of the recorded requests.
func (m *MockHTTPClient) Requests() []RecordedRequest {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]RecordedRequest(nil), m.requests...)
}
