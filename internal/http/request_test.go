package http

import (
	"context"
	"io"
	"strings"
	"testing"
)

func TestRequest_Build(t *testing.T) {
	tests := []struct {
		name           string
		method         string
		path           string
		baseURL        string
		expectedURL    string
		expectedMethod string
	}{
		{
			name:           "Simple GET request",
			method:         "GET",
			path:           "/api/health",
			baseURL:        "http://localhost:8080",
			expectedURL:    "http://localhost:8080/api/health",
			expectedMethod: "GET",
		},
		{
			name:           "Base URL with path prefix",
			method:         "POST",
			path:           "/api/login",
			baseURL:        "https://chat.example.com/v1/",
			expectedURL:    "https://chat.example.com/v1/api/login",
			expectedMethod: "POST",
		},
		{
			name:           "Base URL query is kept",
			method:         "GET",
			path:           "/api/messages",
			baseURL:        "http://localhost:8080?tenant=a",
			expectedURL:    "http://localhost:8080/api/messages?tenant=a",
			expectedMethod: "GET",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := NewRequest(tt.method, tt.path)

			httpReq, err := req.Build(context.Background(), tt.baseURL)
			if err != nil {
				t.Fatalf("Build() error = %v", err)
			}
			if httpReq.URL.String() != tt.expectedURL {
				t.Errorf("URL = %s, want %s", httpReq.URL.String(), tt.expectedURL)
			}
			if httpReq.Method != tt.expectedMethod {
				t.Errorf("Method = %s, want %s", httpReq.Method, tt.expectedMethod)
			}
		})
	}
}

func TestRequest_Build_JSONBody(t *testing.T) {
	req := NewRequest("POST", "/api/register").
		WithBody(map[string]string{"email": "user5@example.com", "password": "password"})

	httpReq, err := req.Build(context.Background(), "http://localhost:8080")
	if err != nil {
		t.Fatalf("Build() error = %v", err)
	}

	if ct := httpReq.Header.Get("Content-Type"); ct != "application/json" {
		t.Errorf("Content-Type = %q, want application/json", ct)
	}

	body, _ := io.ReadAll(httpReq.Body)
	want := `{"email":"user5@example.com","password":"password"}`
	if string(body) != want {
		t.Errorf("body = %s, want %s", body, want)
	}

	// Build must not leak the derived header back into the request definition.
	if _, ok := req.Headers["Content-Type"]; ok {
		t.Error("Build() mutated req.Headers")
	}
}

func TestRequest_Build_RawBodies(t *testing.T) {
	for name, body := range map[string]interface{}{
		"string": "hello",
		"bytes":  []byte("hello"),
		"reader": strings.NewReader("hello"),
	} {
		t.Run(name, func(t *testing.T) {
			httpReq, err := NewRequest("POST", "/echo").WithBody(body).Build(context.Background(), "http://localhost")
			if err != nil {
				t.Fatalf("Build() error = %v", err)
			}
			got, _ := io.ReadAll(httpReq.Body)
			if string(got) != "hello" {
				t.Errorf("body = %q, want hello", got)
			}
			if httpReq.Header.Get("Content-Type") != "" {
				t.Error("raw bodies should not get a JSON content type")
			}
		})
	}
}

func TestRequest_Build_InvalidBaseURL(t *testing.T) {
	if _, err := NewRequest("GET", "/api/health").Build(context.Background(), "http://[::1"); err == nil {
		t.Error("Expected error for invalid base URL")
	}
}

func TestRequest_MetricName(t *testing.T) {
	if got := NewRequest("GET", "/api/health").MetricName(); got != "GET /api/health" {
		t.Errorf("MetricName() = %q", got)
	}
	if got := NewRequest("POST", "/api/login").MetricName(); got != "POST /api/login" {
		t.Errorf("MetricName() = %q", got)
	}
}
