package candidate

import (
	"testing"

	"github.com/PentesterFlow/dateprobe/internal/browser"
	"github.com/PentesterFlow/dateprobe/internal/dateparam"
	"github.com/PentesterFlow/dateprobe/internal/logger"
)

func TestScoreMonotonicity(t *testing.T) {
	// A POST to a bulletin path with two named date params must outrank a
	// GET with one generic date param and no path hint.
	strong := Score(
		"https://example.com/bulletin/annList.do",
		"POST",
		map[string]any{"startDate": "2024-01-01", "endDate": "2024-01-31", "pageNo": "1"},
		map[string]dateparam.Format{"startDate": dateparam.ISO, "endDate": dateparam.ISO},
	)
	weak := Score(
		"https://example.com/content",
		"GET",
		map[string]any{"d": "2024-01-01"},
		map[string]dateparam.Format{"d": dateparam.ISO},
	)
	if strong <= weak {
		t.Errorf("strong candidate %.2f not above weak candidate %.2f", strong, weak)
	}
}

func TestScoreComponents(t *testing.T) {
	tests := []struct {
		name       string
		url        string
		method     string
		params     map[string]any
		dateParams map[string]dateparam.Format
		min, max   float64
	}{
		{
			name:       "two date params",
			url:        "https://e.com/x",
			method:     "GET",
			params:     map[string]any{},
			dateParams: map[string]dateparam.Format{"a": dateparam.ISO, "b": dateparam.ISO},
			min:        0.4, max: 0.4,
		},
		{
			name:       "noise-only penalized below zero",
			url:        "https://e.com/x",
			method:     "GET",
			params:     map[string]any{},
			dateParams: map[string]dateparam.Format{"_": dateparam.EpochMillis},
			min:        -0.3, max: -0.3,
		},
		{
			name:   "capped at one",
			url:    "https://e.com/bulletin/query.do",
			method: "POST",
			params: map[string]any{
				"page": "1", "pageSize": "25", "limit": "10",
				"offset": "0", "type": "a", "category": "b",
			},
			dateParams: map[string]dateparam.Format{"startDate": dateparam.ISO, "endDate": dateparam.ISO},
			min:        1.0, max: 1.0,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Score(tt.url, tt.method, tt.params, tt.dateParams)
			if got < tt.min-1e-9 || got > tt.max+1e-9 {
				t.Errorf("Score = %.3f, want in [%.3f, %.3f]", got, tt.min, tt.max)
			}
		})
	}
}

func TestApplyInitiatorAdjustment(t *testing.T) {
	base := 0.5

	click := ApplyInitiatorAdjustment(base, browser.Initiator{
		Type:             "script",
		CallStackSummary: "onSearchClick dispatchEvent app.js",
	})
	if click <= base {
		t.Errorf("interaction stack should raise score: %.2f", click)
	}

	timer := ApplyInitiatorAdjustment(base, browser.Initiator{
		Type:             "script",
		CallStackSummary: "setInterval heartbeat poll.js",
	})
	if timer >= base {
		t.Errorf("timer stack should lower score: %.2f", timer)
	}

	preload := ApplyInitiatorAdjustment(base, browser.Initiator{Type: "preload"})
	if preload >= base {
		t.Errorf("preload initiator should lower score: %.2f", preload)
	}
}

func minedCapture() browser.Captured {
	reqs := []browser.CapturedRequest{
		{
			URL:          "https://example.com/api/query?startDate=2024-01-01&endDate=2024-01-31&page=1",
			Method:       "GET",
			ResourceType: "xhr",
		},
		{
			URL:          "https://example.com/static/app.js",
			Method:       "GET",
			ResourceType: "script",
		},
		{
			URL:          "https://example.com/annList.do",
			Method:       "POST",
			PostBody:     `{"seDate":["2024-01-01","2024-01-31"],"pageHelp":{"pageNo":1,"pageSize":25}}`,
			ResourceType: "fetch",
		},
	}
	api := []browser.CapturedRequest{reqs[0], reqs[2]}
	return browser.Captured{All: reqs, APISubset: api}
}

func TestBuilderMine(t *testing.T) {
	b := NewBuilder(logger.Nop())
	cands := b.Mine(minedCapture(), 1)

	if len(cands) != 2 {
		t.Fatalf("expected 2 candidates, got %d", len(cands))
	}
	for _, c := range cands {
		if len(c.DateParams) == 0 {
			t.Errorf("candidate %s has no date params", c.URL)
		}
		if c.OriginLayer != 1 {
			t.Errorf("candidate %s origin layer = %d", c.URL, c.OriginLayer)
		}
	}
	// Sorted by confidence, highest first.
	if cands[0].Confidence < cands[1].Confidence {
		t.Error("candidates not sorted by confidence")
	}

	// POST JSON body parsed.
	var post *Candidate
	for i := range cands {
		if cands[i].Method == "POST" {
			post = &cands[i]
		}
	}
	if post == nil {
		t.Fatal("POST candidate missing")
	}
	if post.BodyKind != BodyJSON {
		t.Errorf("POST body kind = %v, want BodyJSON", post.BodyKind)
	}
	if _, ok := post.DateParams["seDate"]; !ok {
		t.Errorf("seDate not identified: %v", post.DateParams)
	}
}

func TestBuilderDedupAcrossWindows(t *testing.T) {
	b := NewBuilder(logger.Nop())

	first := b.Mine(minedCapture(), 1)
	if len(first) == 0 {
		t.Fatal("no candidates in first window")
	}

	// Same traffic mined again (a later layer re-runs the pipeline) must
	// not produce duplicates.
	second := b.Mine(minedCapture(), 2)
	if len(second) != 0 {
		t.Fatalf("expected 0 candidates on re-mine, got %d", len(second))
	}
}
