package http

import (
	"net/http"
	"time"

	"github.com/wesleyorama2/chatload/pkg/jsonpath"
)

// Response represents a fully read HTTP response
type Response struct {
	StatusCode   int
	Status       string
	Headers      http.Header
	Body         []byte
	ResponseTime time.Duration
	RequestID    string
}

// Field returns a non-null value from a JSON body, e.g. Field("$.token").
func (r *Response) Field(path string) (string, bool) {
	return jsonpath.Lookup(r.Body, path)
}

// IsSuccess returns true if the response status code is in the 2xx range
func (r *Response) IsSuccess() bool {
	return r.StatusCode >= 200 && r.StatusCode < 300
}
