// Package dateparam recognizes date-valued request parameters and converts
// between the wire formats sites actually use.
package dateparam

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"
)

// Format identifies the wire format of a date parameter value.
type Format int

const (
	// FormatUnknown means the value does not look like a date.
	FormatUnknown Format = iota
	// ISO is YYYY-MM-DD.
	ISO
	// Compact is YYYYMMDD.
	Compact
	// Slash is YYYY/MM/DD.
	Slash
	// EpochSeconds is a 10-digit Unix timestamp.
	EpochSeconds
	// EpochMillis is a 13-digit Unix millisecond timestamp.
	EpochMillis
	// DateTime is YYYY-MM-DD HH:MM:SS.
	DateTime
)

// String returns the format name.
func (f Format) String() string {
	switch f {
	case ISO:
		return "iso"
	case Compact:
		return "compact"
	case Slash:
		return "slash"
	case EpochSeconds:
		return "epoch_s"
	case EpochMillis:
		return "epoch_ms"
	case DateTime:
		return "datetime"
	default:
		return "unknown"
	}
}

var (
	isoRe      = regexp.MustCompile(`^\d{4}-\d{2}-\d{2}$`)
	compactRe  = regexp.MustCompile(`^\d{8}$`)
	slashRe    = regexp.MustCompile(`^\d{4}/\d{2}/\d{2}$`)
	epochSRe   = regexp.MustCompile(`^\d{10}$`)
	epochMsRe  = regexp.MustCompile(`^\d{13}$`)
	datetimeRe = regexp.MustCompile(`^\d{4}-\d{2}-\d{2} \d{2}:\d{2}:\d{2}$`)
)

// DetectFormat reports the wire format of a single value, if any.
// Numeric values are matched on their decimal rendering, so JSON numbers
// carrying epoch timestamps are recognized too.
func DetectFormat(value any) (Format, bool) {
	s, ok := stringify(value)
	if !ok {
		return FormatUnknown, false
	}
	switch {
	case isoRe.MatchString(s):
		if _, err := time.Parse("2006-01-02", s); err != nil {
			return FormatUnknown, false
		}
		return ISO, true
	case datetimeRe.MatchString(s):
		if _, err := time.Parse("2006-01-02 15:04:05", s); err != nil {
			return FormatUnknown, false
		}
		return DateTime, true
	case slashRe.MatchString(s):
		if _, err := time.Parse("2006/01/02", s); err != nil {
			return FormatUnknown, false
		}
		return Slash, true
	case epochMsRe.MatchString(s):
		return EpochMillis, true
	case epochSRe.MatchString(s):
		return EpochSeconds, true
	case compactRe.MatchString(s):
		if _, err := time.Parse("20060102", s); err != nil {
			return FormatUnknown, false
		}
		return Compact, true
	}
	return FormatUnknown, false
}

// FormatDate renders t in the given wire format.
func FormatDate(t time.Time, f Format) string {
	switch f {
	case ISO:
		return t.Format("2006-01-02")
	case Compact:
		return t.Format("20060102")
	case Slash:
		return t.Format("2006/01/02")
	case EpochSeconds:
		return strconv.FormatInt(t.Unix(), 10)
	case EpochMillis:
		return strconv.FormatInt(t.UnixMilli(), 10)
	case DateTime:
		return t.Format("2006-01-02 15:04:05")
	default:
		return t.Format("2006-01-02")
	}
}

// ParseDate parses a wire value in the given format.
func ParseDate(s string, f Format) (time.Time, error) {
	switch f {
	case ISO:
		return time.Parse("2006-01-02", s)
	case Compact:
		return time.Parse("20060102", s)
	case Slash:
		return time.Parse("2006/01/02", s)
	case DateTime:
		return time.Parse("2006-01-02 15:04:05", s)
	case EpochSeconds:
		n, err := strconv.ParseInt(s, 10, 64)
		if err != nil {
			return time.Time{}, err
		}
		return time.Unix(n, 0).UTC(), nil
	case EpochMillis:
		n, err := strconv.ParseInt(s, 10, 64)
		if err != nil {
			return time.Time{}, err
		}
		return time.UnixMilli(n).UTC(), nil
	default:
		return time.Time{}, fmt.Errorf("unknown date format %d", f)
	}
}

// Noise parameter names: timestamps added for cache-busting, not filtering.
var noiseNames = map[string]bool{
	"_": true, "__": true, "_t": true, "t": true,
	"ts": true, "timestamp": true, "_timestamp": true, "_ts": true,
}

// IsNoiseName reports whether name is a cache-buster style timestamp name.
func IsNoiseName(name string) bool {
	return noiseNames[strings.ToLower(name)]
}

// Date-ish name tokens. "se" is the start/end range alias some sites use
// (seDate, sedate).
var dateTokens = []string{"date", "time", "day", "start", "end", "begin", "from", "to"}

// HasDateToken reports whether a parameter name carries a date-ish token.
func HasDateToken(name string) bool {
	lower := strings.ToLower(name)
	for _, tok := range dateTokens {
		if strings.Contains(lower, tok) {
			return true
		}
	}
	return lower == "se" || strings.HasPrefix(lower, "se")
}

var startTokens = []string{"start", "begin", "from", "since", "gte", "min"}
var endTokens = []string{"end", "finish", "to", "until", "lte", "max", "stop"}

// IsStartName reports whether name denotes the start of a range.
func IsStartName(name string) bool {
	lower := strings.ToLower(name)
	for _, tok := range startTokens {
		if strings.Contains(lower, tok) {
			return true
		}
	}
	return false
}

// IsEndName reports whether name denotes the end of a range.
// "to" must not match inside unrelated words like "token".
func IsEndName(name string) bool {
	lower := strings.ToLower(name)
	if strings.Contains(lower, "token") {
		return false
	}
	for _, tok := range endTokens {
		if strings.Contains(lower, tok) {
			return true
		}
	}
	return false
}

// IsRangeName reports whether name denotes a paired start/end range parameter
// (seDate, dateRange and friends).
func IsRangeName(name string) bool {
	lower := strings.ToLower(name)
	return strings.HasPrefix(lower, "se") && strings.Contains(lower, "date") ||
		strings.Contains(lower, "daterange") ||
		strings.Contains(lower, "range")
}

// Identify scans a flattened parameter map and returns the subset that carry
// date values, keyed by name with the detected wire format. Array values
// count when every element matches the same format (paired range values).
//
// A value-format match alone is not enough: noise names are rejected, and
// any other name must carry a date-ish token. Epoch digits in a parameter
// named "_" are a cache buster, not a filter.
func Identify(params map[string]any) map[string]Format {
	out := map[string]Format{}
	for name, value := range params {
		f, ok := detectValue(value)
		if !ok {
			continue
		}
		// Noise names carry cache busters, never filters.
		if IsNoiseName(name) {
			continue
		}
		// Bare digits are only trusted under a date-ish name; a 13-digit
		// value in a parameter named "id" is an identifier.
		if (f == EpochSeconds || f == EpochMillis) && !HasDateToken(name) {
			continue
		}
		out[name] = f
	}
	return out
}

// IdentifyLoose returns every parameter whose value matches a date format,
// regardless of name. Cache busters and bare-digit identifiers pass through;
// callers must gate the result with LooksLikeRealDateFilter before trusting
// it.
func IdentifyLoose(params map[string]any) map[string]Format {
	out := map[string]Format{}
	for name, value := range params {
		if f, ok := detectValue(value); ok {
			out[name] = f
		}
	}
	return out
}

// detectValue handles scalars and homogeneous arrays.
func detectValue(value any) (Format, bool) {
	switch v := value.(type) {
	case []any:
		if len(v) == 0 {
			return FormatUnknown, false
		}
		first, ok := DetectFormat(v[0])
		if !ok {
			return FormatUnknown, false
		}
		for _, el := range v[1:] {
			f, ok := DetectFormat(el)
			if !ok || f != first {
				return FormatUnknown, false
			}
		}
		return first, true
	case []string:
		if len(v) == 0 {
			return FormatUnknown, false
		}
		first, ok := DetectFormat(v[0])
		if !ok {
			return FormatUnknown, false
		}
		for _, el := range v[1:] {
			f, ok := DetectFormat(el)
			if !ok || f != first {
				return FormatUnknown, false
			}
		}
		return first, true
	default:
		return DetectFormat(value)
	}
}

// stringify renders scalar values for format matching.
func stringify(value any) (string, bool) {
	switch v := value.(type) {
	case string:
		return strings.TrimSpace(v), true
	case int:
		return strconv.Itoa(v), true
	case int64:
		return strconv.FormatInt(v, 10), true
	case float64:
		// JSON numbers decode as float64; only integral values can be epochs.
		if v == float64(int64(v)) {
			return strconv.FormatInt(int64(v), 10), true
		}
		return "", false
	default:
		return "", false
	}
}

// Bulletin-style URL markers relax the sanity rule: listing endpoints for
// announcements routinely filter on bare timestamps.
var bulletinMarkers = []string{"bulletin", "announcement", "disclosure", "notice", "annlist"}

// LooksLikeRealDateFilter decides whether a set of identified date params on
// a URL plausibly filters by date, returning the reason when it does not.
func LooksLikeRealDateFilter(urlStr string, dateParams map[string]Format) (bool, string) {
	if len(dateParams) == 0 {
		return false, "no date parameters"
	}

	lower := strings.ToLower(urlStr)
	bulletin := false
	for _, m := range bulletinMarkers {
		if strings.Contains(lower, m) {
			bulletin = true
			break
		}
	}

	named := 0
	for name := range dateParams {
		if IsNoiseName(name) {
			continue
		}
		if HasDateToken(name) {
			named++
		}
	}

	if strings.Contains(lower, "commonquery") && named == 0 {
		// Generic query gateways carry timestamps on everything.
		return false, "commonquery endpoint without named date parameters"
	}

	if named == 0 {
		if bulletin {
			return true, ""
		}
		return false, "all date-like parameters are noise names"
	}

	return true, ""
}
