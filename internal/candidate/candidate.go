// Package candidate models date API candidates and scores how likely a
// captured request is a date-filtered data endpoint.
package candidate

import (
	"net/url"
	"strings"

	"github.com/PentesterFlow/dateprobe/internal/browser"
	"github.com/PentesterFlow/dateprobe/internal/dateparam"
)

// BodyKind says how a candidate's body parameters travel.
type BodyKind int

const (
	// BodyNone means all parameters live in the query string.
	BodyNone BodyKind = iota
	// BodyJSON means a JSON object request body.
	BodyJSON
	// BodyForm means urlencoded form body.
	BodyForm
)

// VerificationState tracks whether a candidate has been replayed.
type VerificationState int

const (
	// Unverified means no replay has been attempted.
	Unverified VerificationState = iota
	// VerifiedOK means a replay returned usable data.
	VerifiedOK
	// VerifiedFailed means a replay was attempted and produced nothing.
	VerifiedFailed
)

// Verification holds replay outcome for a candidate.
type Verification struct {
	State  VerificationState
	Count  int    // item count from a successful replay
	Reason string // failure reason when State is VerifiedFailed
}

// Candidate is a request believed to hit a date-filtered data endpoint.
// DateParams is never empty.
type Candidate struct {
	// URL is the endpoint without its query string.
	URL    string
	Method string
	// BaseParams holds the query-string parameters.
	BaseParams map[string]any
	// BodyParams holds body parameters for POST candidates.
	BodyParams map[string]any
	BodyKind   BodyKind
	// DateParams maps parameter names (dotted for one level of nesting)
	// to their detected wire format.
	DateParams   map[string]dateparam.Format
	Confidence   float64
	OriginLayer  int
	ResourceType string
	Initiator    browser.Initiator
	Verification Verification
}

// Path tokens that suggest a data-retrieval endpoint.
var dataPathTokens = []string{
	"query", "search", "list", "find", "get", "fetch", "load", "data", "api",
}

// Suffixes common on older dynamic server stacks.
var dataPathSuffixes = []string{".do", ".json", ".action"}

// Bulletin-style endpoints; these are exactly what the extractor hunts for.
var bulletinPathTokens = []string{"bulletin", "announcement", "disclosure", "notice", "annlist"}

// Names of common pagination and category filters.
var paginationNames = map[string]bool{
	"page": true, "pagesize": true, "page_size": true, "pageno": true,
	"limit": true, "offset": true, "type": true, "category": true,
}

// Score rates how likely a request is a date-filtered data endpoint.
// params is the full flattened parameter map; dateParams the (loose)
// date-valued subset. The result is capped at 1.0 but has no lower bound:
// strongly penalized candidates simply rank last.
func Score(urlStr, method string, params map[string]any, dateParams map[string]dateparam.Format) float64 {
	score := 0.0

	switch len(dateParams) {
	case 0:
	case 1:
		score += 0.2
	case 2:
		score += 0.4
	default:
		score += 0.1
	}

	path := strings.ToLower(urlStr)
	if u, err := url.Parse(urlStr); err == nil {
		path = strings.ToLower(u.Path)
	}

	hasDataToken := false
	for _, tok := range dataPathTokens {
		if strings.Contains(path, tok) {
			hasDataToken = true
			break
		}
	}
	if !hasDataToken {
		for _, suffix := range dataPathSuffixes {
			if strings.HasSuffix(path, suffix) {
				hasDataToken = true
				break
			}
		}
	}
	if hasDataToken {
		score += 0.1
	}

	for _, tok := range bulletinPathTokens {
		if strings.Contains(path, tok) {
			score += 0.2
			break
		}
	}

	for name := range params {
		if _, isDate := dateParams[name]; isDate {
			continue
		}
		if paginationNames[leafName(name)] {
			score += 0.05
		}
	}

	if strings.EqualFold(method, "POST") {
		score += 0.1
	}

	// Date values that are all cache-buster style names are almost
	// certainly not a real filter.
	allNoise := len(dateParams) > 0
	for name := range dateParams {
		if !dateparam.IsNoiseName(leafName(name)) {
			allNoise = false
			break
		}
	}
	if allNoise {
		score -= 0.5
	}

	if score > 1.0 {
		score = 1.0
	}
	return score
}

// leafName strips a dotted nesting prefix (pageHelp.pageNo -> pageno).
func leafName(name string) string {
	if i := strings.LastIndex(name, "."); i >= 0 {
		name = name[i+1:]
	}
	return strings.ToLower(name)
}

// Interaction markers in initiator call stacks.
var interactionMarkers = []string{
	"click", "change", "submit", "datepicker", "laydate", "mousedown", "keyup",
}

// Background-activity markers.
var backgroundMarkers = []string{
	"setinterval", "settimeout", "heartbeat", "poll", "analytics", "track", "beacon",
}

// ApplyInitiatorAdjustment shifts a score based on what triggered the
// request. Requests born from user interaction are what a date picker
// produces; timers and analytics are noise.
func ApplyInitiatorAdjustment(score float64, init browser.Initiator) float64 {
	stack := strings.ToLower(init.CallStackSummary)

	for _, m := range interactionMarkers {
		if strings.Contains(stack, m) {
			score += 0.15
			break
		}
	}
	for _, m := range backgroundMarkers {
		if strings.Contains(stack, m) {
			score -= 0.2
			break
		}
	}
	switch init.Type {
	case "preload", "prefetch":
		score -= 0.1
	}

	if score > 1.0 {
		score = 1.0
	}
	return score
}
