package browser

import (
	"net/url"
	"strings"
	"sync"
)

// Buffer is a mutex-guarded rolling buffer of captured requests. Response
// details arrive after the request, so entries are keyed by request ID and
// updated in place.
type Buffer struct {
	mu       sync.RWMutex
	requests []CapturedRequest
	index    map[string]int // request ID -> position in requests
	maxSize  int
}

// NewBuffer creates a capture buffer bounded to maxSize entries
// (0 means the default of 2000).
func NewBuffer(maxSize int) *Buffer {
	if maxSize <= 0 {
		maxSize = 2000
	}
	return &Buffer{
		requests: make([]CapturedRequest, 0, 64),
		index:    make(map[string]int),
		maxSize:  maxSize,
	}
}

// Record adds a request under the given ID. Once the buffer is full new
// requests are dropped; a discovery pass works on a bounded window.
func (b *Buffer) Record(id string, req CapturedRequest) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if len(b.requests) >= b.maxSize {
		return
	}
	b.index[id] = len(b.requests)
	b.requests = append(b.requests, req)
}

// UpdateResponse attaches response details to a previously recorded request.
func (b *Buffer) UpdateResponse(id string, status int, headers map[string]string, preview string) {
	b.mu.Lock()
	defer b.mu.Unlock()

	pos, ok := b.index[id]
	if !ok {
		return
	}
	b.requests[pos].ResponseStatus = status
	b.requests[pos].ResponseHeaders = headers
	if preview != "" {
		b.requests[pos].ResponsePreview = preview
	}
}

// Get returns the request recorded under id, if present.
func (b *Buffer) Get(id string) (CapturedRequest, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	pos, ok := b.index[id]
	if !ok {
		return CapturedRequest{}, false
	}
	return b.requests[pos], true
}

// Snapshot returns a copy of the buffer contents with the API subset
// classified.
func (b *Buffer) Snapshot() Captured {
	b.mu.RLock()
	defer b.mu.RUnlock()

	all := make([]CapturedRequest, len(b.requests))
	copy(all, b.requests)

	api := make([]CapturedRequest, 0)
	for _, req := range all {
		if IsAPIRequest(req) {
			api = append(api, req)
		}
	}
	return Captured{All: all, APISubset: api}
}

// Len returns the number of buffered requests.
func (b *Buffer) Len() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.requests)
}

// Clear empties the buffer. Called before each automation attempt so the
// next snapshot holds only traffic that interaction triggered.
func (b *Buffer) Clear() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.requests = b.requests[:0]
	b.index = make(map[string]int)
}

// Path tokens that mark data endpoints.
var apiPathMarkers = []string{
	"/api/", "/rest/", "/rpc/", "/ajax/", "/graphql",
	"query", "search", "getdata", "list",
}

// Suffixes that mark dynamic endpoints on older server stacks.
var apiPathSuffixes = []string{".do", ".json", ".action", ".ashx", ".jspx"}

// IsAPIRequest classifies a captured request as a likely data API call.
func IsAPIRequest(req CapturedRequest) bool {
	switch req.ResourceType {
	case "xhr", "fetch":
		return true
	}

	u, err := url.Parse(req.URL)
	if err != nil {
		return false
	}
	path := strings.ToLower(u.Path)

	for _, suffix := range apiPathSuffixes {
		if strings.HasSuffix(path, suffix) {
			return true
		}
	}
	for _, marker := range apiPathMarkers {
		if strings.Contains(path, marker) {
			return true
		}
	}

	// JSONP rides on script tags: a callback parameter marks it.
	query := strings.ToLower(u.RawQuery)
	if strings.Contains(query, "callback=") || strings.Contains(query, "jsonp") {
		return true
	}

	ct := req.ResponseHeaders["Content-Type"]
	if ct == "" {
		ct = req.ResponseHeaders["content-type"]
	}
	if strings.Contains(ct, "application/json") || strings.Contains(ct, "text/json") {
		return true
	}

	return false
}
