// Package model defines shared types for the proxy.
package model

import (
	"context"
	"io"
	"net/http"
	"net/url"
)

// InboundRequest is the caller's request as seen by the forwarder.
type InboundRequest struct {
	Ctx    context.Context
	Method string
	Query  url.Values
}

// Target is the upstream location derived from a query.
type Target struct {
	Letter       string // partition segment, always a single a-z letter
	EncodedQuery string
	URL          string
}

// UpstreamResponse is the raw upstream response.
// The caller is responsible for closing Body.
type UpstreamResponse struct {
	StatusCode int
	Status     string
	Header     http.Header
	Body       io.ReadCloser
}

// ErrorBody is the JSON body of every non-success reply.
type ErrorBody struct {
	Error   string `json:"error"`
	Details string `json:"details,omitempty"`
}
