// Package replay rebuilds candidate requests with a caller-chosen date range
// and interprets the responses to verify that the date filter is real.
package replay

import (
	"encoding/json"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/PentesterFlow/dateprobe/internal/candidate"
	"github.com/PentesterFlow/dateprobe/internal/dateparam"
)

// Fixed JSONP callback token. Replays never execute the callback, so the
// name only has to be stable for response unwrapping.
const jsonpCallback = "jsonCallback"

// Names that mark a JSONP callback parameter.
var callbackNames = map[string]bool{
	"jsoncallback": true, "callback": true, "jsonp": true, "cb": true,
}

// Build renders a candidate into a concrete request for the given range.
// It returns the full URL (query included) and the body parameters, nil when
// the candidate carries no body. End dates in the future are clamped to
// today, and the start is clamped to the effective end.
func Build(cand *candidate.Candidate, start, end time.Time) (string, map[string]any) {
	today := time.Now().Truncate(24 * time.Hour)
	if end.After(today) {
		end = today
	}
	if start.After(end) {
		start = end
	}

	render := func(which string, f dateparam.Format) any {
		switch which {
		case "range":
			return []any{dateparam.FormatDate(start, f), dateparam.FormatDate(end, f)}
		case "end":
			return dateparam.FormatDate(end, f)
		default:
			return dateparam.FormatDate(start, f)
		}
	}

	query := substitute(cand.BaseParams, cand.DateParams, "", render)
	body := substitute(cand.BodyParams, cand.DateParams, "", render)

	normalizeCallback(query)
	normalizeCallback(body)
	ensurePagination(body)
	if cand.BodyKind == candidate.BodyNone {
		ensurePagination(query)
	}

	u := cand.URL
	if qs := encodeQuery(query); qs != "" {
		u = u + "?" + qs
	}
	if cand.BodyKind == candidate.BodyNone {
		return u, nil
	}
	return u, body
}

// RequestTemplate is the parameterized shape handed back to the caller for
// script generation. Date parameters carry {{startDate}} / {{endDate}}
// placeholders.
type RequestTemplate struct {
	Method     string             `json:"method"`
	URL        string             `json:"url"`
	Query      map[string]any     `json:"query,omitempty"`
	Body       map[string]any     `json:"body,omitempty"`
	BodyKind   candidate.BodyKind `json:"body_kind"`
	DateParams map[string]string  `json:"date_params"`
}

// Template renders a candidate into its reusable parameterized form.
func Template(cand *candidate.Candidate) RequestTemplate {
	render := func(which string, f dateparam.Format) any {
		switch which {
		case "range":
			return []any{"{{startDate}}", "{{endDate}}"}
		case "end":
			return "{{endDate}}"
		default:
			return "{{startDate}}"
		}
	}

	query := substitute(cand.BaseParams, cand.DateParams, "", render)
	body := substitute(cand.BodyParams, cand.DateParams, "", render)
	normalizeCallback(query)
	normalizeCallback(body)

	formats := make(map[string]string, len(cand.DateParams))
	for name, f := range cand.DateParams {
		formats[name] = f.String()
	}

	return RequestTemplate{
		Method:     cand.Method,
		URL:        cand.URL,
		Query:      query,
		Body:       body,
		BodyKind:   cand.BodyKind,
		DateParams: formats,
	}
}

// substitute deep-copies params, replacing date-valued entries. prefix
// carries the dotted path for one level of nesting.
func substitute(params map[string]any, dateParams map[string]dateparam.Format,
	prefix string, render func(which string, f dateparam.Format) any) map[string]any {

	if params == nil {
		return nil
	}
	out := make(map[string]any, len(params))
	for name, value := range params {
		full := name
		if prefix != "" {
			full = prefix + "." + name
		}

		if child, ok := value.(map[string]any); ok {
			out[name] = substitute(child, dateParams, full, render)
			continue
		}

		f, isDate := dateParams[full]
		if !isDate {
			out[name] = value
			continue
		}

		_, isArray := value.([]any)
		switch {
		case isArray || dateparam.IsRangeName(name):
			out[name] = render("range", f)
		case dateparam.IsEndName(name):
			out[name] = render("end", f)
		default:
			// Start-ish and generic names both get the range start.
			out[name] = render("start", f)
		}
	}
	return out
}

// normalizeCallback rewrites any JSONP callback parameter to the fixed token.
func normalizeCallback(params map[string]any) {
	for name := range params {
		if callbackNames[strings.ToLower(name)] {
			params[name] = jsonpCallback
		}
	}
}

// ensurePagination fills pageHelp defaults when the candidate carries a
// pageHelp wrapper with missing fields. Endpoints using it return nothing
// without an explicit page size.
func ensurePagination(params map[string]any) {
	ph, ok := params["pageHelp"].(map[string]any)
	if !ok {
		return
	}
	if _, ok := ph["pageNo"]; !ok {
		ph["pageNo"] = 1
	}
	if _, ok := ph["pageSize"]; !ok {
		ph["pageSize"] = 25
	}
}

// encodeQuery renders a parameter map as a query string. Array values become
// repeated keys.
func encodeQuery(params map[string]any) string {
	if len(params) == 0 {
		return ""
	}
	vals := url.Values{}
	for name, value := range params {
		switch v := value.(type) {
		case []any:
			for _, el := range v {
				vals.Add(name, toString(el))
			}
		default:
			vals.Set(name, toString(v))
		}
	}
	return vals.Encode()
}

func toString(v any) string {
	switch t := v.(type) {
	case string:
		return t
	case int:
		return strconv.Itoa(t)
	case int64:
		return strconv.FormatInt(t, 10)
	case float64:
		if t == float64(int64(t)) {
			return strconv.FormatInt(int64(t), 10)
		}
		return strconv.FormatFloat(t, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(t)
	default:
		b, _ := json.Marshal(v)
		return string(b)
	}
}
