package picker

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/PentesterFlow/dateprobe/internal/browser"
	"github.com/PentesterFlow/dateprobe/internal/logger"
)

// fakeElement is a scriptable Element.
type fakeElement struct {
	text       string
	value      string
	attrs      map[string]string
	box        browser.Rect
	fillFails  bool
	forceWorks bool
	clicked    int
	onClick    func()
}

func (f *fakeElement) IsVisible() (bool, error) { return true, nil }
func (f *fakeElement) Click() error {
	f.clicked++
	if f.onClick != nil {
		f.onClick()
	}
	return nil
}
func (f *fakeElement) Fill(value string) error {
	if f.fillFails {
		return context.DeadlineExceeded
	}
	f.value = value
	return nil
}
func (f *fakeElement) Text() (string, error)  { return f.text, nil }
func (f *fakeElement) Value() (string, error) { return f.value, nil }
func (f *fakeElement) Attribute(name string) (string, bool, error) {
	v, ok := f.attrs[name]
	return v, ok, nil
}
func (f *fakeElement) RemoveAttribute(name string) error {
	delete(f.attrs, name)
	return nil
}
func (f *fakeElement) Focus() error                      { return nil }
func (f *fakeElement) SelectAllText() error              { return nil }
func (f *fakeElement) BoundingBox() (browser.Rect, error) { return f.box, nil }
func (f *fakeElement) Dispatch(eventType string) error   { return nil }
func (f *fakeElement) SetValueNative(value string) error {
	if !f.forceWorks {
		return context.DeadlineExceeded
	}
	f.value = value
	return nil
}

// fakeDriver maps selectors to elements and simulates traffic after
// interaction.
type fakeDriver struct {
	url       string
	html      string
	elements  map[string][]browser.Element
	buffer    []browser.CapturedRequest
	pending   []browser.CapturedRequest // appears after any key press or click
	keys      []string
	injected  []string
}

func (f *fakeDriver) Navigate(ctx context.Context, url string) error { return nil }
func (f *fakeDriver) CurrentURL() string                             { return f.url }
func (f *fakeDriver) EvaluateScript(ctx context.Context, script string, out any) error {
	return nil
}
func (f *fakeDriver) QueryVisibleElements(ctx context.Context, selector string) ([]browser.Element, error) {
	for sel, els := range f.elements {
		if sel == selector {
			return els, nil
		}
	}
	return nil, nil
}
func (f *fakeDriver) EngineLevelTextInject(ctx context.Context, text string) error {
	f.injected = append(f.injected, text)
	return nil
}
func (f *fakeDriver) PressKey(ctx context.Context, key string) error {
	f.keys = append(f.keys, key)
	if key == "Enter" {
		f.flushPending()
	}
	return nil
}
func (f *fakeDriver) flushPending() {
	f.buffer = append(f.buffer, f.pending...)
	f.pending = nil
}
func (f *fakeDriver) ListCapturedRequests() browser.Captured {
	return browser.Captured{All: f.buffer, APISubset: f.buffer}
}
func (f *fakeDriver) ClearCapturedRequests() { f.buffer = nil }
func (f *fakeDriver) WaitNetworkIdle(ctx context.Context, idle time.Duration) error {
	return nil
}
func (f *fakeDriver) Screenshot(ctx context.Context) ([]byte, error) { return nil, nil }
func (f *fakeDriver) HTML(ctx context.Context) (string, error)       { return f.html, nil }

func TestStaticScan(t *testing.T) {
	html := `<html><body>
		<input lay-key="1" readonly placeholder="开始日期">
		<input lay-key="2" readonly placeholder="结束日期">
		<div class="el-date-editor"><input></div>
		<button>查询</button>
	</body></html>`

	counts, err := StaticScan(html)
	if err != nil {
		t.Fatal(err)
	}
	if counts[Laydate] != 2 {
		t.Errorf("laydate count = %d, want 2", counts[Laydate])
	}
	if counts[ElementUI] != 1 {
		t.Errorf("element-ui count = %d, want 1", counts[ElementUI])
	}
	if counts[Native] != 0 {
		t.Errorf("native count = %d, want 0", counts[Native])
	}
}

func TestMatchesSubmitVocabulary(t *testing.T) {
	tests := []struct {
		text string
		want bool
	}{
		{"查询", true},
		{"Search", true},
		{"  Query  ", true},
		{"Go", true},
		{"Read the full search documentation here", false},
		{"", false},
		{"Download", false},
	}
	for _, tt := range tests {
		if got := matchesSubmitVocabulary(tt.text); got != tt.want {
			t.Errorf("matchesSubmitVocabulary(%q) = %v, want %v", tt.text, got, tt.want)
		}
	}
}

func TestInjectTextEscalation(t *testing.T) {
	// Fill fails and engine injection does not stick (value never updates
	// through the driver), so the force setter must win.
	el := &fakeElement{
		attrs:      map[string]string{"readonly": ""},
		fillFails:  true,
		forceWorks: true,
	}
	driver := &fakeDriver{}

	err := InjectText(context.Background(), driver, el, "2024-01-01", logger.Nop())
	if err != nil {
		t.Fatalf("InjectText: %v", err)
	}
	if el.value != "2024-01-01" {
		t.Errorf("value = %q", el.value)
	}
	// The readonly guard must have been removed along the way.
	if _, ok := el.attrs["readonly"]; ok {
		t.Error("readonly attribute still present")
	}
}

func TestDetectPrefersFillableInputs(t *testing.T) {
	nativeSel := detectionTable[0].selector
	driver := &fakeDriver{
		url:  "https://example.com/list",
		html: `<input type="date" name="start"><input lay-key="1">`,
		elements: map[string][]browser.Element{
			nativeSel: {&fakeElement{attrs: map[string]string{}}},
		},
	}

	d := NewDetector(driver, logger.Nop())
	desc, els, err := d.Detect(context.Background())
	if err != nil {
		t.Fatalf("Detect: %v", err)
	}
	if desc.Type != Native {
		t.Errorf("type = %v, want Native", desc.Type)
	}
	if len(els) != 1 {
		t.Errorf("elements = %d", len(els))
	}
	if desc.IsRange {
		t.Error("single input must not be a range")
	}
}

func TestDetectNotFound(t *testing.T) {
	driver := &fakeDriver{
		url:      "https://example.com/",
		html:     `<p>nothing here</p>`,
		elements: map[string][]browser.Element{},
	}
	d := NewDetector(driver, logger.Nop())
	if _, _, err := d.Detect(context.Background()); err == nil {
		t.Fatal("expected control-not-found error")
	}
}

func TestOperateFillAndSubmit(t *testing.T) {
	startInput := &fakeElement{box: browser.Rect{X: 10, Width: 100, Height: 20}}
	endInput := &fakeElement{box: browser.Rect{X: 150, Width: 100, Height: 20}}
	sel := `input[type="date"]`

	driver := &fakeDriver{
		url: "https://example.com/list",
		elements: map[string][]browser.Element{
			sel: {endInput, startInput}, // intentionally unsorted
		},
		pending: []browser.CapturedRequest{{
			URL: "https://example.com/api/query?startDate=2024-01-01", Method: "GET", ResourceType: "xhr",
		}},
	}

	op := NewOperator(driver, logger.Nop())
	desc := Descriptor{
		Found:           true,
		Type:            Native,
		IsInput:         true,
		IsRange:         true,
		TriggerSelector: sel,
		SiblingCount:    2,
	}
	start, _ := time.Parse("2006-01-02", "2024-01-01")
	end, _ := time.Parse("2006-01-02", "2024-01-31")

	if err := op.Operate(context.Background(), desc, start, end); err != nil {
		t.Fatalf("Operate: %v", err)
	}

	// Left input gets the start date, right input the end date.
	if startInput.value != "2024-01-01" {
		t.Errorf("start input = %q", startInput.value)
	}
	if endInput.value != "2024-01-31" {
		t.Errorf("end input = %q", endInput.value)
	}
	// No submit button configured: Enter fallback fired the request.
	found := false
	for _, k := range driver.keys {
		if k == "Enter" {
			found = true
		}
	}
	if !found {
		t.Errorf("Enter fallback not used: %v", driver.keys)
	}
}

func TestOperateReportsNoTraffic(t *testing.T) {
	input := &fakeElement{}
	sel := `input[type="date"]`
	driver := &fakeDriver{
		url:      "https://example.com/list",
		elements: map[string][]browser.Element{sel: {input}},
		// no pending traffic: the page ignores the interaction
	}

	op := NewOperator(driver, logger.Nop())
	desc := Descriptor{Found: true, Type: Native, IsInput: true, TriggerSelector: sel}
	start, _ := time.Parse("2006-01-02", "2024-01-01")
	end, _ := time.Parse("2006-01-02", "2024-01-31")

	err := op.Operate(context.Background(), desc, start, end)
	if err == nil {
		t.Fatal("expected no-traffic error")
	}
	if !strings.Contains(err.Error(), "no_traffic") {
		t.Errorf("unexpected error: %v", err)
	}
}
