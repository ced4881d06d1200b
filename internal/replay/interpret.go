package replay

import (
	"encoding/json"
	"regexp"
	"strconv"
	"strings"

	"github.com/PentesterFlow/dateprobe/internal/errors"
)

// JSONP wrappers: the "?" placeholder some gateways emit, and a named
// callback invocation.
var (
	placeholderRe = regexp.MustCompile(`(?s)^\?\((.*)\);?$`)
	callbackRe    = regexp.MustCompile(`(?s)^[A-Za-z_$][\w$.]*\((.*)\);?$`)
)

// StripJSONP reduces a JSONP response to its inner JSON. Plain JSON passes
// through untouched.
func StripJSONP(text string) string {
	s := strings.TrimSpace(text)
	s = strings.TrimPrefix(s, "/**/")
	s = strings.TrimSpace(s)

	if m := placeholderRe.FindStringSubmatch(s); m != nil {
		return strings.TrimSpace(m[1])
	}
	if strings.HasPrefix(s, "{") || strings.HasPrefix(s, "[") {
		return s
	}
	if m := callbackRe.FindStringSubmatch(s); m != nil {
		return strings.TrimSpace(m[1])
	}
	return s
}

// Keys that carry result collections, checked one and two levels deep.
var collectionKeys = []string{
	"data", "result", "list", "items", "records", "rows", "content",
	"reports", "articles",
}

// totalBound caps counts taken from a reported total instead of an actual
// collection.
const totalBound = 100000

// Interpret decides whether a response body holds real result data and
// returns the item count. Explicit failure envelopes (success=false, bad
// code) return an error; a well-formed response with no recognizable
// collection counts as zero.
func Interpret(body []byte) (int, error) {
	s := StripJSONP(string(body))

	var decoded any
	if err := json.Unmarshal([]byte(s), &decoded); err != nil {
		return 0, errors.NewParseError("", "interpret", err)
	}

	switch v := decoded.(type) {
	case []any:
		return len(v), nil
	case map[string]any:
		if ok, reason := envelopeOK(v); !ok {
			return 0, errors.NewVerificationError("", reason, nil)
		}
		if n, found := countIn(v, 2); found {
			return n, nil
		}
		return 0, nil
	default:
		return 0, nil
	}
}

// envelopeOK rejects explicit failure envelopes.
func envelopeOK(m map[string]any) (bool, string) {
	if success, ok := m["success"].(bool); ok && !success {
		return false, "response reports success=false"
	}
	if code, ok := m["code"]; ok && !codeOK(code) {
		return false, "response reports error code"
	}
	return true, ""
}

// codeOK accepts the zero/200 conventions for success codes.
func codeOK(code any) bool {
	switch v := code.(type) {
	case float64:
		return v == 0 || v == 200
	case string:
		s := strings.TrimSpace(v)
		if s == "" || strings.EqualFold(s, "success") || strings.EqualFold(s, "ok") {
			return true
		}
		n, err := strconv.Atoi(s)
		return err == nil && (n == 0 || n == 200)
	default:
		return true
	}
}

// countIn looks for a collection under the known keys, descending up to
// depth levels of object nesting. The pageHelp wrapper gets its own shape
// handling: data as a list, a list of row-lists, or only a reported total.
func countIn(m map[string]any, depth int) (int, bool) {
	if ph, ok := m["pageHelp"].(map[string]any); ok {
		if n, found := pageHelpCount(ph); found {
			return n, true
		}
	}

	for _, key := range collectionKeys {
		v, ok := m[key]
		if !ok {
			continue
		}
		switch inner := v.(type) {
		case []any:
			return len(inner), true
		case map[string]any:
			if depth > 1 {
				if n, found := countIn(inner, depth-1); found {
					return n, true
				}
			}
		}
	}
	return 0, false
}

// pageHelpCount handles the pageHelp envelope.
func pageHelpCount(ph map[string]any) (int, bool) {
	if data, ok := ph["data"].([]any); ok {
		// Row groups come back as a list of lists; count the rows.
		total := 0
		nested := false
		for _, el := range data {
			if rows, ok := el.([]any); ok {
				nested = true
				total += len(rows)
			}
		}
		if nested {
			return total, true
		}
		return len(data), true
	}
	if total, ok := ph["total"].(float64); ok && total > 0 {
		n := int(total)
		if n > totalBound {
			n = totalBound
		}
		return n, true
	}
	return 0, false
}
