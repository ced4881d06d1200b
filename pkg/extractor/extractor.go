package extractor

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/PentesterFlow/dateprobe/internal/browser"
	"github.com/PentesterFlow/dateprobe/internal/candidate"
	"github.com/PentesterFlow/dateprobe/internal/errors"
	"github.com/PentesterFlow/dateprobe/internal/hintcache"
	"github.com/PentesterFlow/dateprobe/internal/logger"
	"github.com/PentesterFlow/dateprobe/internal/progress"
	"github.com/PentesterFlow/dateprobe/internal/replay"
	"github.com/PentesterFlow/dateprobe/internal/vision"
)

// Verifier replays a candidate and decides whether it returned data.
// *replay.Client is the production implementation.
type Verifier interface {
	Verify(ctx context.Context, cand *candidate.Candidate, start, end time.Time) (*replay.Sample, error)
}

// Options carries the extractor's collaborators. Driver and Verifier are
// required; the rest degrade gracefully when absent.
type Options struct {
	Driver   browser.Driver
	Verifier Verifier
	// Analyzer enables the vision fallback layer.
	Analyzer vision.Analyzer
	// Hints enables the cross-session hint cache.
	Hints *hintcache.Cache
	// Hub receives progress events.
	Hub *progress.Hub
	// Logger defaults to the global logger.
	Logger *logger.Logger
}

// Extractor runs the discovery fallback chain.
type Extractor struct {
	cfg      Config
	driver   browser.Driver
	verifier Verifier
	analyzer vision.Analyzer
	hints    *hintcache.Cache
	hub      *progress.Hub
	builder  *candidate.Builder
	log      *logger.Logger
	layers   []layerEntry
}

// session carries per-extraction state between layers.
type session struct {
	rng            DateRange
	result         *ExtractionResult
	pickerSelector string
}

// layerResult is what one layer hands back to the chain.
type layerResult struct {
	winner *candidate.Candidate
	sample *replay.Sample
	err    error
}

type layerFunc func(ctx context.Context, s *session) layerResult

type layerEntry struct {
	num  int
	name string
	run  layerFunc
}

// New creates an Extractor.
func New(cfg Config, opts Options) (*Extractor, error) {
	if opts.Driver == nil {
		return nil, fmt.Errorf("extractor requires a browser driver")
	}
	if opts.Verifier == nil {
		return nil, fmt.Errorf("extractor requires a verifier")
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	log := opts.Logger
	if log == nil {
		log = logger.Global()
	}
	log = log.WithComponent("extractor")

	e := &Extractor{
		cfg:      cfg,
		driver:   opts.Driver,
		verifier: opts.Verifier,
		analyzer: opts.Analyzer,
		hints:    opts.Hints,
		hub:      opts.Hub,
		builder:  candidate.NewBuilder(log),
		log:      log,
	}
	e.layers = []layerEntry{
		{0, "runtime_config", e.layerRuntimeConfig},
		{1, "passive_traffic", e.layerPassiveTraffic},
		{2, "picker_automation", e.layerPickerAutomation},
		{3, "vision_fallback", e.layerVisionFallback},
	}
	return e, nil
}

// Extract runs the fallback chain against the already-navigated page. The
// first layer whose candidate verifies wins; later layers are not attempted.
// Extract never returns an error: every failure lands in the result's
// diagnostics.
func (e *Extractor) Extract(ctx context.Context, rng DateRange) *ExtractionResult {
	result := &ExtractionResult{
		WinningLayer: -1,
		Diagnostics:  make(map[int]LayerDiagnostic, len(e.layers)),
	}
	s := &session{rng: rng, result: result}

	for _, layer := range e.layers {
		if result.Success {
			result.Diagnostics[layer.num] = LayerDiagnostic{Attempted: false}
			continue
		}
		if err := ctx.Err(); err != nil {
			result.Diagnostics[layer.num] = LayerDiagnostic{
				Attempted: false,
				Error:     "extraction cancelled",
			}
			continue
		}

		e.hub.Broadcast(progress.Event{
			Stage: progress.StageLayerStarted, Layer: layer.num, Message: layer.name,
		})
		e.log.LayerEvent(layer.num, "started")

		res := e.runLayer(ctx, layer, s)

		diag := LayerDiagnostic{Attempted: true}
		outcome := "failed"
		if res.err != nil {
			diag.Error = res.err.Error()
		}
		if res.err == nil && res.winner != nil {
			outcome = "verified"
			result.Success = true
			result.WinningLayer = layer.num
			result.BestCandidate = res.winner
			result.VerifiedSample = &VerifiedSample{
				Count:   res.sample.Count,
				Preview: res.sample.Preview,
			}
			tpl := replay.Template(res.winner)
			result.Template = &tpl
		}
		result.Diagnostics[layer.num] = diag

		e.log.LayerEvent(layer.num, outcome)
		e.hub.Broadcast(progress.Event{
			Stage: progress.StageLayerFinished, Layer: layer.num, Message: outcome,
		})
	}

	if result.Success {
		e.recordHints(s)
	} else {
		result.Recommendations = recommend(result.Diagnostics)
	}

	e.hub.Broadcast(progress.Event{
		Stage: progress.StageFinished, Layer: result.WinningLayer,
		Message: fmt.Sprintf("success=%v", result.Success),
	})
	return result
}

// runLayer executes a layer, converting panics into layer errors so nothing
// escapes Extract.
func (e *Extractor) runLayer(ctx context.Context, layer layerEntry, s *session) (res layerResult) {
	defer func() {
		if r := recover(); r != nil {
			res = layerResult{err: fmt.Errorf("layer %s panicked: %v", layer.name, r)}
		}
	}()
	return layer.run(ctx, s)
}

// verifyTop appends the candidates to the session result and replays the
// best few. The first one that returns data wins.
func (e *Extractor) verifyTop(ctx context.Context, s *session, cands []candidate.Candidate) layerResult {
	if len(cands) == 0 {
		return layerResult{err: errors.NewNoCandidateError(e.driver.CurrentURL(),
			"verify", "no candidates to verify")}
	}

	offset := len(s.result.Candidates)
	s.result.Candidates = append(s.result.Candidates, cands...)
	stored := s.result.Candidates[offset:]

	var lastErr error
	for i := range stored {
		if i >= e.cfg.VerifyTopN {
			break
		}
		c := &stored[i]

		vctx, cancel := context.WithTimeout(ctx, e.cfg.VerifyTimeout)
		sample, err := e.verifier.Verify(vctx, c, s.rng.Start, s.rng.End)
		cancel()

		if err != nil {
			c.Verification = candidate.Verification{
				State: candidate.VerifiedFailed, Reason: err.Error(),
			}
			lastErr = err
			continue
		}
		c.Verification = candidate.Verification{
			State: candidate.VerifiedOK, Count: sample.Count,
		}
		return layerResult{winner: c, sample: sample}
	}

	if lastErr == nil {
		lastErr = errors.NewNoCandidateError(e.driver.CurrentURL(), "verify",
			"no candidate verified")
	}
	return layerResult{err: lastErr}
}

// recordHints persists the winning shape for the host.
func (e *Extractor) recordHints(s *session) {
	if e.hints == nil || s.result.BestCandidate == nil {
		return
	}
	u, err := url.Parse(s.result.BestCandidate.URL)
	if err != nil || u.Host == "" {
		return
	}
	names := make([]string, 0, len(s.result.BestCandidate.DateParams))
	for name := range s.result.BestCandidate.DateParams {
		names = append(names, name)
	}
	hint := hintcache.Hints{
		EndpointURL:    s.result.BestCandidate.URL,
		DateParamNames: names,
		PickerSelector: s.pickerSelector,
	}
	if err := e.hints.Put(u.Host, hint); err != nil {
		e.log.WithError(err).Warn("failed to record hints")
	}
}

// recommend turns failure diagnostics into actionable suggestions.
func recommend(diags map[int]LayerDiagnostic) []string {
	recs := []string{
		"no date-filtered API endpoint could be discovered and verified on this page",
	}

	if d, ok := diags[1]; ok && strings.Contains(d.Error, "no candidates") {
		recs = append(recs,
			"the initial page load produced no date-parameterized traffic; the filter may require interaction or login")
	}
	if d, ok := diags[2]; ok && strings.Contains(d.Error, "no date control") {
		recs = append(recs,
			"no date control was found in the DOM; the filter may render lazily or inside an iframe")
	}
	if d, ok := diags[2]; ok && strings.Contains(d.Error, "no new requests") {
		recs = append(recs,
			"the date control was operated but the page fired no requests; the page may filter client-side over preloaded data")
	}
	if d, ok := diags[3]; ok && strings.Contains(d.Error, "not configured") {
		recs = append(recs,
			"configure a vision analyzer to enable screenshot-based control discovery")
	}
	if d, ok := diags[0]; ok && d.Error != "" {
		recs = append(recs,
			"runtime configuration held no usable endpoint; consider adding a site hint for this host")
	}
	return recs
}
