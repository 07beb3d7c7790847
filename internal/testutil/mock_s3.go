// Package testutil provides an in-process S3-compatible endpoint and generated
// image fixtures for tests.
package testutil

import (
	"crypto/md5"
	"encoding/hex"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/Sternrassler/asset-variants/pkg/backend"
)

// MockObject is an object held by MockS3.
type MockObject struct {
	Data         []byte
	ContentType  string
	ETag         string
	LastModified time.Time
}

// MockS3 is a minimal path-style S3 endpoint (GET, HEAD, PUT) for testing
// object-storage backends against the real SDK.
type MockS3 struct {
	server  *httptest.Server
	mu      sync.RWMutex
	objects map[string]*MockObject

	failStatus int
	delay      time.Duration

	// Tracking
	requests map[string]int
}

// NewMockS3 creates and starts a new mock S3 server.
func NewMockS3() *MockS3 {
	mock := &MockS3{
		objects:  make(map[string]*MockObject),
		requests: make(map[string]int),
	}

	mock.server = httptest.NewServer(http.HandlerFunc(mock.handle))
	return mock
}

// URL returns the mock server URL, suitable as S3 endpoint.
func (m *MockS3) URL() string {
	return m.server.URL
}

// Close shuts down the mock server.
func (m *MockS3) Close() {
	m.server.Close()
}

// BackendConfig returns an S3 backend configuration pointing at the mock with
// fast, single-attempt retries.
func (m *MockS3) BackendConfig(bucket, prefix string) backend.Config {
	return backend.Config{
		Type:    backend.TypeS3,
		Timeout: 2 * time.Second,
		Retry: backend.RetryConfig{
			MaxAttempts:       1,
			InitialBackoff:    time.Millisecond,
			MaxBackoff:        time.Millisecond,
			BackoffMultiplier: 1,
		},
		S3: backend.S3Config{
			Bucket:       bucket,
			Prefix:       prefix,
			Region:       "us-east-1",
			Endpoint:     m.URL(),
			AccessKey:    "test",
			SecretKey:    "test",
			UsePathStyle: true,
		},
	}
}

// PutObject seeds an object directly.
func (m *MockS3) PutObject(bucket, key string, data []byte, contentType string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.objects[bucket+"/"+key] = newMockObject(data, contentType)
}

// Object returns a stored object, or nil.
func (m *MockS3) Object(bucket, key string) *MockObject {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.objects[bucket+"/"+key]
}

// Len returns the number of stored objects.
func (m *MockS3) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.objects)
}

// FailWith makes every request answer with status (0 restores normal behaviour).
func (m *MockS3) FailWith(status int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failStatus = status
}

// SetDelay delays every response.
func (m *MockS3) SetDelay(d time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.delay = d
}

// RequestCount returns the number of requests seen for an HTTP method.
func (m *MockS3) RequestCount(method string) int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.requests[method]
}

func (m *MockS3) handle(w http.ResponseWriter, r *http.Request) {
	m.mu.Lock()
	m.requests[r.Method]++
	failStatus := m.failStatus
	delay := m.delay
	m.mu.Unlock()

	if delay > 0 {
		select {
		case <-time.After(delay):
		case <-r.Context().Done():
			return
		}
	}

	if failStatus != 0 {
		writeS3Error(w, r, failStatus, "ServiceUnavailable", "injected failure")
		return
	}

	path := strings.TrimPrefix(r.URL.Path, "/")
	if !strings.Contains(path, "/") && r.Method == http.MethodHead {
		// HeadBucket
		w.WriteHeader(http.StatusOK)
		return
	}
	if !strings.Contains(path, "/") {
		writeS3Error(w, r, http.StatusBadRequest, "InvalidRequest", "bucket and key required")
		return
	}

	switch r.Method {
	case http.MethodGet, http.MethodHead:
		m.mu.RLock()
		obj := m.objects[path]
		m.mu.RUnlock()

		if obj == nil {
			writeS3Error(w, r, http.StatusNotFound, "NoSuchKey", "The specified key does not exist.")
			return
		}

		w.Header().Set("Content-Type", obj.ContentType)
		w.Header().Set("Content-Length", strconv.Itoa(len(obj.Data)))
		w.Header().Set("ETag", obj.ETag)
		w.Header().Set("Last-Modified", obj.LastModified.UTC().Format(http.TimeFormat))
		w.WriteHeader(http.StatusOK)
		if r.Method == http.MethodGet {
			w.Write(obj.Data)
		}

	case http.MethodPut:
		data, err := io.ReadAll(r.Body)
		if err != nil {
			writeS3Error(w, r, http.StatusBadRequest, "IncompleteBody", err.Error())
			return
		}
		obj := newMockObject(data, r.Header.Get("Content-Type"))

		m.mu.Lock()
		m.objects[path] = obj
		m.mu.Unlock()

		w.Header().Set("ETag", obj.ETag)
		w.WriteHeader(http.StatusOK)

	default:
		writeS3Error(w, r, http.StatusMethodNotAllowed, "MethodNotAllowed", r.Method)
	}
}

func newMockObject(data []byte, contentType string) *MockObject {
	sum := md5.Sum(data)
	if contentType == "" {
		contentType = "binary/octet-stream"
	}
	return &MockObject{
		Data:         append([]byte(nil), data...),
		ContentType:  contentType,
		ETag:         `"` + hex.EncodeToString(sum[:]) + `"`,
		LastModified: time.Now(),
	}
}

func writeS3Error(w http.ResponseWriter, r *http.Request, status int, code, message string) {
	if r.Method == http.MethodHead {
		w.WriteHeader(status)
		return
	}
	w.Header().Set("Content-Type", "application/xml")
	w.WriteHeader(status)
	fmt.Fprintf(w, `<?xml version="1.0" encoding="UTF-8"?><Error><Code>%s</Code><Message>%s</Message></Error>`, code, message)
}
