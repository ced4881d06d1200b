// Package extractor discovers a page's date-filtered data API and proves it
// by replaying it with a caller-chosen date range. Discovery runs as a
// fallback chain: runtime config scan, passive traffic mining, date-control
// automation, then vision-assisted automation.
package extractor

import (
	"fmt"
	"time"

	"github.com/PentesterFlow/dateprobe/internal/candidate"
	"github.com/PentesterFlow/dateprobe/internal/replay"
)

// DateRange is the requested extraction window.
type DateRange struct {
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
}

// ParseRange builds a DateRange from YYYY-MM-DD strings.
func ParseRange(start, end string) (DateRange, error) {
	s, err := time.Parse("2006-01-02", start)
	if err != nil {
		return DateRange{}, fmt.Errorf("invalid start date %q: %w", start, err)
	}
	e, err := time.Parse("2006-01-02", end)
	if err != nil {
		return DateRange{}, fmt.Errorf("invalid end date %q: %w", end, err)
	}
	if e.Before(s) {
		return DateRange{}, fmt.Errorf("end date %s before start date %s", end, start)
	}
	return DateRange{Start: s, End: e}, nil
}

// Days returns the range span in days.
func (r DateRange) Days() float64 {
	return r.End.Sub(r.Start).Hours() / 24
}

// LayerDiagnostic records what one discovery layer did.
type LayerDiagnostic struct {
	// Attempted is false when an earlier layer already won.
	Attempted bool `json:"attempted"`
	// Error holds the layer's failure, empty on success or when skipped.
	Error string `json:"error,omitempty"`
}

// VerifiedSample is the evidence behind a success.
type VerifiedSample struct {
	Count   int    `json:"count"`
	Preview string `json:"preview"`
}

// ExtractionResult is the complete outcome of one extraction. It is
// immutable once returned; candidates live only in this result, never in
// any persistent store.
type ExtractionResult struct {
	Success bool `json:"success"`
	// WinningLayer is 0..3, or -1 when every layer failed.
	WinningLayer int `json:"winning_layer"`
	// Candidates holds everything discovered this session, best first per
	// discovery order.
	Candidates    []candidate.Candidate `json:"candidates"`
	BestCandidate *candidate.Candidate  `json:"best_candidate,omitempty"`
	// VerifiedSample proves the winning candidate returned data.
	VerifiedSample *VerifiedSample `json:"verified_sample,omitempty"`
	// Template is the parameterized request for script generation.
	Template *replay.RequestTemplate `json:"template,omitempty"`
	// Diagnostics is keyed by layer number.
	Diagnostics map[int]LayerDiagnostic `json:"diagnostics"`
	// Recommendations suggest next steps after a total failure.
	Recommendations []string `json:"recommendations,omitempty"`
}
