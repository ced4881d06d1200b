// Package browser provides headless Chrome integration via Rod, exposing the
// page-automation and network-capture surface the discovery layers consume.
package browser

import "time"

// Initiator describes what triggered a captured request.
type Initiator struct {
	// Type is the CDP initiator type: script, parser, preload, other.
	Type string
	// CallStackSummary is a flattened summary of the initiator call stack,
	// function names and script URLs joined in order.
	CallStackSummary string
}

// CapturedRequest is one request observed on the wire during page activity.
type CapturedRequest struct {
	URL             string
	Method          string
	RequestHeaders  map[string]string
	PostBody        string
	ResponseStatus  int
	ResponseHeaders map[string]string
	// ResponsePreview holds a bounded prefix of the response body, enough
	// for JSON shape checks without buffering large payloads.
	ResponsePreview string
	// ResourceType is the lower-cased CDP resource type (xhr, fetch,
	// script, document, ...). Empty when the browser did not report one.
	ResourceType string
	Initiator    Initiator
	Timestamp    time.Time
}

// Captured is a snapshot of the capture buffer.
type Captured struct {
	// All holds every request in the buffer, oldest first.
	All []CapturedRequest
	// APISubset holds the requests that look like data API calls.
	APISubset []CapturedRequest
}

// Rect is an element bounding box in page coordinates.
type Rect struct {
	X      float64
	Y      float64
	Width  float64
	Height float64
}
