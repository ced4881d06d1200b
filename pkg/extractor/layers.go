package extractor

import (
	"context"
	"net/url"
	"strings"

	"github.com/PentesterFlow/dateprobe/internal/candidate"
	"github.com/PentesterFlow/dateprobe/internal/dateparam"
	"github.com/PentesterFlow/dateprobe/internal/errors"
	"github.com/PentesterFlow/dateprobe/internal/picker"
	"github.com/PentesterFlow/dateprobe/internal/runtimecfg"
	"github.com/PentesterFlow/dateprobe/internal/vision"
)

// layerRuntimeConfig reads endpoints straight out of the page's JavaScript
// runtime: cached hints for the host first, then a config-object scan.
func (e *Extractor) layerRuntimeConfig(ctx context.Context, s *session) layerResult {
	if res, done := e.tryCachedHints(ctx, s); done {
		return res
	}

	scanner := runtimecfg.NewScanner(e.driver, e.log)

	sctx, cancel := context.WithTimeout(ctx, e.cfg.DOMTimeout)
	records, err := scanner.Scan(sctx)
	cancel()
	if err != nil {
		return layerResult{err: err}
	}

	pageURL := e.driver.CurrentURL()
	var cands []candidate.Candidate
	for _, rec := range records {
		c, err := runtimecfg.ToCandidate(rec, pageURL)
		if err != nil {
			e.log.WithError(err).WithField("source", rec.SourceName).
				Debug("runtime config record rejected")
			continue
		}
		cands = append(cands, *c)
	}
	if len(cands) == 0 {
		return layerResult{err: errors.NewNoCandidateError(pageURL, "runtime_config_scan",
			"no config object carried a usable endpoint")}
	}
	return e.verifyTop(ctx, s, cands)
}

// tryCachedHints short-circuits discovery when a previous session already
// proved an endpoint for this host. A stale hint is evicted, never trusted.
func (e *Extractor) tryCachedHints(ctx context.Context, s *session) (layerResult, bool) {
	if e.hints == nil {
		return layerResult{}, false
	}
	pageURL := e.driver.CurrentURL()
	u, err := url.Parse(pageURL)
	if err != nil || u.Host == "" {
		return layerResult{}, false
	}
	hint, ok := e.hints.Get(u.Host)
	if !ok || hint.EndpointURL == "" {
		return layerResult{}, false
	}

	dateParams := make(map[string]dateparam.Format, len(hint.DateParamNames))
	for _, name := range hint.DateParamNames {
		dateParams[name] = dateparam.ISO
	}
	cand := candidate.Candidate{
		URL:         hint.EndpointURL,
		Method:      "GET",
		BaseParams:  map[string]any{},
		DateParams:  dateParams,
		Confidence:  runtimecfg.ScanConfidence,
		OriginLayer: 0,
	}
	s.pickerSelector = hint.PickerSelector

	res := e.verifyTop(ctx, s, []candidate.Candidate{cand})
	if res.winner != nil {
		e.log.WithURL(hint.EndpointURL).Info("cached hint verified")
		return res, true
	}
	e.log.WithURL(hint.EndpointURL).Debug("cached hint stale, evicting")
	if err := e.hints.Evict(u.Host); err != nil {
		e.log.WithError(err).Warn("failed to evict stale hint")
	}
	// Fall through to a fresh scan.
	return layerResult{}, false
}

// layerPassiveTraffic mines the requests the page fired on its own during
// load, without touching anything.
func (e *Extractor) layerPassiveTraffic(ctx context.Context, s *session) layerResult {
	captured := e.driver.ListCapturedRequests()
	cands := e.builder.Mine(captured, 1)
	if len(cands) == 0 {
		return layerResult{err: errors.NewNoCandidateError(e.driver.CurrentURL(),
			"passive_mining", "no candidates in page-load traffic")}
	}
	return e.verifyTop(ctx, s, cands)
}

// layerPickerAutomation finds the page's date control, drives it with the
// requested range, and mines the traffic the interaction provoked.
func (e *Extractor) layerPickerAutomation(ctx context.Context, s *session) layerResult {
	detector := picker.NewDetector(e.driver, e.log)

	dctx, cancel := context.WithTimeout(ctx, e.cfg.DOMTimeout)
	desc, _, err := detector.Detect(dctx)
	cancel()
	if err != nil {
		return layerResult{err: err}
	}
	s.pickerSelector = desc.TriggerSelector

	return e.operateAndMine(ctx, s, desc, 2)
}

// layerVisionFallback asks a vision model where the date control is when DOM
// heuristics came up empty, then drives it the same way Layer 2 would.
func (e *Extractor) layerVisionFallback(ctx context.Context, s *session) layerResult {
	pageURL := e.driver.CurrentURL()
	if e.analyzer == nil {
		return layerResult{err: errors.NewVisionError(pageURL,
			"vision analyzer not configured", nil)}
	}

	sctx, cancel := context.WithTimeout(ctx, e.cfg.DOMTimeout)
	shot, err := e.driver.Screenshot(sctx)
	cancel()
	if err != nil {
		return layerResult{err: errors.NewBrowserError(pageURL, "screenshot", err)}
	}

	vctx, cancel := context.WithTimeout(ctx, e.cfg.VisionTimeout)
	report, err := e.analyzer.AnalyzePicker(vctx, shot)
	cancel()
	if err != nil {
		return layerResult{err: err}
	}
	if !report.Found {
		reason := report.Reason
		if reason == "" {
			reason = "no date control visible in screenshot"
		}
		return layerResult{err: errors.NewVisionError(pageURL, reason, nil)}
	}

	desc := descriptorFromReport(report)
	s.pickerSelector = desc.TriggerSelector

	return e.operateAndMine(ctx, s, desc, 3)
}

// operateAndMine drives a detected control and mines whatever traffic the
// page fired in response.
func (e *Extractor) operateAndMine(ctx context.Context, s *session, desc picker.Descriptor, originLayer int) layerResult {
	op := picker.NewOperator(e.driver, e.log)
	if err := op.Operate(ctx, desc, s.rng.Start, s.rng.End); err != nil {
		return layerResult{err: err}
	}

	captured := e.driver.ListCapturedRequests()
	cands := e.builder.Mine(captured, originLayer)
	if len(cands) == 0 {
		return layerResult{err: errors.NewNoTrafficError(e.driver.CurrentURL(),
			"operate_control")}
	}
	return e.verifyTop(ctx, s, cands)
}

// descriptorFromReport converts a vision report into an operable control
// descriptor. Typed input is always attempted first even when the model says
// the control is click-only, because typing costs nothing and the model's
// read of readonly state is unreliable.
func descriptorFromReport(report vision.Report) picker.Descriptor {
	desc := picker.Descriptor{
		Found:           true,
		Type:            picker.GenericInput,
		IsRange:         report.IsRange,
		IsInput:         true,
		TriggerSelector: `input[type="text"], input[type="date"], input:not([type])`,
	}
	for _, hint := range report.CSSHints {
		lower := strings.ToLower(hint)
		switch {
		case strings.Contains(lower, "laydate") || strings.Contains(lower, "layui"):
			desc.Type = picker.Laydate
			desc.ConfirmSelector = ".laydate-btns-confirm"
		case strings.Contains(lower, "el-date") || strings.Contains(lower, "el-range"):
			desc.Type = picker.ElementUI
			desc.ConfirmSelector = ".el-picker-panel__footer button"
		case strings.Contains(lower, "ant-picker") || strings.Contains(lower, "ant-calendar"):
			desc.Type = picker.AntDesign
			desc.ConfirmSelector = ".ant-picker-ok button"
		case strings.Contains(lower, "datepicker"):
			desc.Type = picker.Bootstrap
		case looksLikeSelector(hint):
			desc.TriggerSelector = hint
			continue
		default:
			continue
		}
		desc.TriggerSelector = hint
		break
	}
	if report.HasConfirm && desc.ConfirmSelector == "" {
		desc.ConfirmSelector = ".laydate-btns-confirm, .el-picker-panel__footer button, .ant-picker-ok button"
	}
	return desc
}

// looksLikeSelector filters out prose the model sometimes puts where a
// selector belongs.
func looksLikeSelector(hint string) bool {
	hint = strings.TrimSpace(hint)
	if hint == "" || strings.ContainsAny(hint, " \t\n") && !strings.Contains(hint, ",") {
		return false
	}
	return strings.HasPrefix(hint, ".") || strings.HasPrefix(hint, "#") ||
		strings.HasPrefix(hint, "input") || strings.HasPrefix(hint, "[")
}
