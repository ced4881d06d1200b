// Package runtimecfg implements discovery of date API endpoints from the
// page's own JavaScript runtime configuration. Many sites keep their query
// endpoint and default parameters in a global config object; reading it is
// cheaper and more reliable than watching traffic.
package runtimecfg

import (
	"context"
	"fmt"
	"net/url"
	"strings"

	"github.com/PentesterFlow/dateprobe/internal/browser"
	"github.com/PentesterFlow/dateprobe/internal/candidate"
	"github.com/PentesterFlow/dateprobe/internal/dateparam"
	"github.com/PentesterFlow/dateprobe/internal/errors"
	"github.com/PentesterFlow/dateprobe/internal/logger"
)

// ScanConfidence is assigned to candidates read out of runtime config. The
// site's own code declared the endpoint, so confidence is near-certain.
const ScanConfidence = 0.95

// RuntimeConfig is one introspection record returned by the in-page scan.
// The schema is validated once here at the boundary; downstream code can
// rely on the types.
type RuntimeConfig struct {
	// SourceName is the global variable or hint that produced the record.
	SourceName string `json:"sourceName"`
	// CandidateURL is the endpoint URL, possibly relative.
	CandidateURL string `json:"candidateURL"`
	// DateParams lists parameter names the page's config marks as dates.
	DateParams []string `json:"dateParams"`
	// AllParams carries the full default parameter object.
	AllParams map[string]any `json:"allParams"`
	// IsJSONP is set when the config references a callback.
	IsJSONP bool `json:"isJSONP"`
	// Origin is "hint" for known-site hints, "scan" for the generic walk.
	Origin string `json:"origin"`
}

// Scanner reads runtime configuration out of a live page.
type Scanner struct {
	driver browser.Driver
	hints  []SiteHint
	log    *logger.Logger
}

// NewScanner creates a Scanner with the built-in site hints.
func NewScanner(driver browser.Driver, log *logger.Logger) *Scanner {
	if log == nil {
		log = logger.Global()
	}
	return &Scanner{
		driver: driver,
		hints:  builtinHints,
		log:    log.WithComponent("runtimecfg").WithLayer(0),
	}
}

// AddHint registers an extra per-host hint, e.g. seeded from the hint cache.
func (s *Scanner) AddHint(h SiteHint) {
	s.hints = append(s.hints, h)
}

// Scan evaluates hints for the current host first, then the generic global
// walk, and returns the validated records.
func (s *Scanner) Scan(ctx context.Context) ([]RuntimeConfig, error) {
	pageURL := s.driver.CurrentURL()

	var records []RuntimeConfig
	for _, hint := range s.hints {
		if !strings.Contains(pageURL, hint.HostContains) {
			continue
		}
		var recs []RuntimeConfig
		if err := s.driver.EvaluateScript(ctx, hint.Script, &recs); err != nil {
			s.log.WithError(err).Debugf("hint %s failed", hint.Name)
			continue
		}
		for i := range recs {
			recs[i].Origin = "hint"
			if recs[i].SourceName == "" {
				recs[i].SourceName = hint.Name
			}
		}
		records = append(records, recs...)
	}

	var scanned []RuntimeConfig
	if err := s.driver.EvaluateScript(ctx, genericScanScript, &scanned); err != nil {
		if len(records) == 0 {
			return nil, err
		}
		s.log.WithError(err).Debug("generic scan failed, keeping hint records")
	}
	for i := range scanned {
		scanned[i].Origin = "scan"
	}
	records = append(records, scanned...)

	valid := records[:0]
	for _, rec := range records {
		if rec.CandidateURL == "" {
			continue
		}
		valid = append(valid, rec)
	}
	if len(valid) == 0 {
		return nil, errors.NewNoCandidateError(pageURL, "runtime_scan",
			"no runtime configuration carries a date-parameterized endpoint")
	}
	return valid, nil
}

// Config field names that are plumbing, not request parameters.
var configOnlyTokens = []string{
	"url", "template", "selector", "element", "container", "target", "callback",
}

func isConfigOnlyField(name string) bool {
	lower := strings.ToLower(name)
	for _, tok := range configOnlyTokens {
		if strings.Contains(lower, tok) {
			return true
		}
	}
	return false
}

// Names and paths that imply a POST query endpoint.
var postMarkers = []string{"history", "search", "query", "annlist"}

// ToCandidate converts a validated record into a candidate. pageURL anchors
// relative endpoint URLs.
func ToCandidate(cfg RuntimeConfig, pageURL string) (*candidate.Candidate, error) {
	resolved, err := resolveURL(cfg.CandidateURL, pageURL)
	if err != nil {
		return nil, errors.NewParseError(cfg.CandidateURL, "resolve_url", err)
	}

	params := map[string]any{}
	for name, value := range cfg.AllParams {
		if isConfigOnlyField(name) {
			continue
		}
		params[name] = value
	}

	// Params embedded in the config URL's query string win over the
	// parameter object.
	u, err := url.Parse(resolved)
	if err != nil {
		return nil, errors.NewParseError(resolved, "parse_url", err)
	}
	for k, vals := range u.Query() {
		if len(vals) > 0 {
			params[k] = vals[0]
		}
	}
	base := u.Scheme + "://" + u.Host + u.Path

	dateParams := dateparam.Identify(flatten(params))
	// The config may name its date params without dated default values.
	for _, name := range cfg.DateParams {
		if _, ok := dateParams[name]; ok {
			continue
		}
		if v, ok := params[name]; ok {
			if f, matched := dateparam.DetectFormat(v); matched {
				dateParams[name] = f
				continue
			}
		}
		dateParams[name] = dateparam.ISO
	}
	if len(dateParams) == 0 {
		return nil, errors.NewNoCandidateError(resolved, "to_candidate",
			fmt.Sprintf("config %s has no date parameters", cfg.SourceName))
	}

	method := "GET"
	bodyKind := candidate.BodyNone
	if !cfg.IsJSONP && hasPostMarker(cfg.SourceName, base) {
		method = "POST"
		bodyKind = candidate.BodyJSON
	}

	cand := &candidate.Candidate{
		URL:         base,
		Method:      method,
		DateParams:  dateParams,
		Confidence:  ScanConfidence,
		OriginLayer: 0,
	}
	if bodyKind == candidate.BodyJSON {
		cand.BodyParams = params
		cand.BodyKind = candidate.BodyJSON
	} else {
		cand.BaseParams = params
	}
	return cand, nil
}

func hasPostMarker(sourceName, urlStr string) bool {
	probe := strings.ToLower(sourceName + " " + urlStr)
	for _, m := range postMarkers {
		if strings.Contains(probe, m) {
			return true
		}
	}
	return false
}

// resolveURL anchors relative and protocol-relative URLs to the page.
func resolveURL(raw, pageURL string) (string, error) {
	ref, err := url.Parse(strings.TrimSpace(raw))
	if err != nil {
		return "", err
	}
	if ref.IsAbs() {
		return ref.String(), nil
	}
	page, err := url.Parse(pageURL)
	if err != nil {
		return "", err
	}
	return page.ResolveReference(ref).String(), nil
}

// flatten exposes one nesting level with dotted names.
func flatten(params map[string]any) map[string]any {
	out := make(map[string]any, len(params))
	for k, v := range params {
		if child, ok := v.(map[string]any); ok {
			for ck, cv := range child {
				out[k+"."+ck] = cv
			}
			continue
		}
		out[k] = v
	}
	return out
}
