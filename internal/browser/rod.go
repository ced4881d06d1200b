package browser

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/input"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/proto"
	"github.com/ysmood/gson"

	"github.com/PentesterFlow/dateprobe/internal/errors"
	"github.com/PentesterFlow/dateprobe/internal/logger"
)

// Config defines browser configuration.
type Config struct {
	Headless          bool          `json:"headless" yaml:"headless"`
	Timeout           time.Duration `json:"timeout" yaml:"timeout"`
	UserAgent         string        `json:"user_agent" yaml:"user_agent"`
	ViewportWidth     int           `json:"viewport_width" yaml:"viewport_width"`
	ViewportHeight    int           `json:"viewport_height" yaml:"viewport_height"`
	IgnoreHTTPSErrors bool          `json:"ignore_https_errors" yaml:"ignore_https_errors"`
	// CaptureBufferSize bounds the network capture buffer.
	CaptureBufferSize int `json:"capture_buffer_size" yaml:"capture_buffer_size"`
	// PreviewLimit bounds stored response body previews, in bytes.
	PreviewLimit int `json:"preview_limit" yaml:"preview_limit"`
	// ExtraHeaders are sent on every request the page makes.
	ExtraHeaders map[string]string `json:"extra_headers" yaml:"extra_headers"`
}

// DefaultConfig returns default browser configuration.
func DefaultConfig() Config {
	return Config{
		Headless:          true,
		Timeout:           30 * time.Second,
		UserAgent:         "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36",
		ViewportWidth:     1920,
		ViewportHeight:    1080,
		IgnoreHTTPSErrors: true,
		CaptureBufferSize: 2000,
		PreviewLimit:      4096,
	}
}

// RodDriver drives a Chrome page through Rod and records its network
// traffic. It implements Driver.
type RodDriver struct {
	browser *rod.Browser
	page    *rod.Page
	buffer  *Buffer
	config  Config
	log     *logger.Logger
}

// NewRodDriver launches a browser, opens a page, and attaches network
// capture. Close releases both.
func NewRodDriver(config Config, log *logger.Logger) (*RodDriver, error) {
	l := launcher.New().Headless(config.Headless)
	if config.IgnoreHTTPSErrors {
		l = l.Set("ignore-certificate-errors", "true")
	}

	controlURL, err := l.Launch()
	if err != nil {
		return nil, fmt.Errorf("failed to launch browser: %w", err)
	}

	b := rod.New().ControlURL(controlURL)
	if err := b.Connect(); err != nil {
		return nil, fmt.Errorf("failed to connect to browser: %w", err)
	}
	b = b.Timeout(config.Timeout)

	page, err := b.Page(proto.TargetCreateTarget{URL: "about:blank"})
	if err != nil {
		_ = b.Close()
		return nil, fmt.Errorf("failed to create page: %w", err)
	}

	_ = page.SetViewport(&proto.EmulationSetDeviceMetricsOverride{
		Width:  config.ViewportWidth,
		Height: config.ViewportHeight,
	})
	if config.UserAgent != "" {
		_ = proto.NetworkSetUserAgentOverride{UserAgent: config.UserAgent}.Call(page)
	}
	if len(config.ExtraHeaders) > 0 {
		networkHeaders := make(proto.NetworkHeaders)
		for k, v := range config.ExtraHeaders {
			networkHeaders[k] = gson.New(v)
		}
		_ = proto.NetworkSetExtraHTTPHeaders{Headers: networkHeaders}.Call(page)
	}

	if log == nil {
		log = logger.Global()
	}

	d := &RodDriver{
		browser: b,
		page:    page,
		buffer:  NewBuffer(config.CaptureBufferSize),
		config:  config,
		log:     log.WithComponent("browser"),
	}
	d.attachCapture()
	return d, nil
}

// attachCapture subscribes to CDP network events and feeds the buffer.
func (d *RodDriver) attachCapture() {
	page := d.page

	go page.EachEvent(
		func(e *proto.NetworkRequestWillBeSent) {
			if e.Request == nil {
				return
			}
			req := CapturedRequest{
				URL:            e.Request.URL,
				Method:         e.Request.Method,
				RequestHeaders: headerMap(e.Request.Headers),
				PostBody:       e.Request.PostData,
				ResourceType:   strings.ToLower(string(e.Type)),
				Initiator:      initiatorOf(e.Initiator),
				Timestamp:      time.Now(),
			}
			d.buffer.Record(string(e.RequestID), req)
		},
		func(e *proto.NetworkResponseReceived) {
			if e.Response == nil {
				return
			}
			d.buffer.UpdateResponse(string(e.RequestID), e.Response.Status,
				headerMap(e.Response.Headers), "")
		},
		func(e *proto.NetworkLoadingFinished) {
			id := string(e.RequestID)
			req, ok := d.buffer.Get(id)
			if !ok || !IsAPIRequest(req) {
				return
			}
			body, err := proto.NetworkGetResponseBody{RequestID: e.RequestID}.Call(page)
			if err != nil || body.Base64Encoded {
				return
			}
			preview := body.Body
			if len(preview) > d.config.PreviewLimit {
				preview = preview[:d.config.PreviewLimit]
			}
			d.buffer.UpdateResponse(id, req.ResponseStatus, req.ResponseHeaders, preview)
		},
	)()
}

// initiatorOf flattens a CDP initiator into our summary form.
func initiatorOf(in *proto.NetworkInitiator) Initiator {
	if in == nil {
		return Initiator{}
	}
	out := Initiator{Type: strings.ToLower(string(in.Type))}
	if in.Stack == nil {
		return out
	}
	parts := make([]string, 0, 8)
	for i, frame := range in.Stack.CallFrames {
		if i >= 8 {
			break
		}
		if frame.FunctionName != "" {
			parts = append(parts, frame.FunctionName)
		}
		if frame.URL != "" {
			parts = append(parts, frame.URL)
		}
	}
	out.CallStackSummary = strings.Join(parts, " ")
	return out
}

func headerMap(h proto.NetworkHeaders) map[string]string {
	out := make(map[string]string, len(h))
	for k, v := range h {
		out[k] = v.Str()
	}
	return out
}

// Navigate implements Driver.
func (d *RodDriver) Navigate(ctx context.Context, url string) error {
	page := d.page.Context(ctx)
	if err := page.Navigate(url); err != nil {
		return errors.NewBrowserError(url, "navigate", err)
	}
	if err := page.WaitLoad(); err != nil {
		return errors.NewBrowserError(url, "wait_load", err)
	}
	return nil
}

// CurrentURL implements Driver.
func (d *RodDriver) CurrentURL() string {
	info, err := d.page.Info()
	if err != nil || info == nil {
		return ""
	}
	return info.URL
}

// EvaluateScript implements Driver. The script result must be
// JSON-compatible; it is decoded into out.
func (d *RodDriver) EvaluateScript(ctx context.Context, script string, out any) error {
	res, err := d.page.Context(ctx).Eval(script)
	if err != nil {
		return errors.NewBrowserError(d.CurrentURL(), "evaluate", err)
	}
	if out == nil {
		return nil
	}
	raw := res.Value.JSON("", "")
	if err := json.Unmarshal([]byte(raw), out); err != nil {
		return errors.NewParseError(d.CurrentURL(), "evaluate_decode", err)
	}
	return nil
}

// QueryVisibleElements implements Driver.
func (d *RodDriver) QueryVisibleElements(ctx context.Context, selector string) ([]Element, error) {
	els, err := d.page.Context(ctx).Elements(selector)
	if err != nil {
		return nil, errors.NewBrowserError(d.CurrentURL(), "query_elements", err)
	}
	out := make([]Element, 0, len(els))
	for _, el := range els {
		visible, err := el.Visible()
		if err != nil || !visible {
			continue
		}
		out = append(out, &rodElement{el: el})
	}
	return out, nil
}

// EngineLevelTextInject implements Driver. The target element must already
// hold focus.
func (d *RodDriver) EngineLevelTextInject(ctx context.Context, text string) error {
	err := proto.InputInsertText{Text: text}.Call(d.page.Context(ctx))
	if err != nil {
		return errors.NewBrowserError(d.CurrentURL(), "insert_text", err)
	}
	return nil
}

// PressKey implements Driver.
func (d *RodDriver) PressKey(ctx context.Context, key string) error {
	page := d.page.Context(ctx)
	var k input.Key
	switch key {
	case "Enter":
		k = input.Enter
	case "Escape":
		k = input.Escape
	case "Tab":
		k = input.Tab
	default:
		return errors.NewBrowserError(d.CurrentURL(), "press_key",
			fmt.Errorf("unsupported key %q", key))
	}
	if err := page.Keyboard.Press(k); err != nil {
		return errors.NewBrowserError(d.CurrentURL(), "press_key", err)
	}
	return nil
}

// ListCapturedRequests implements Driver.
func (d *RodDriver) ListCapturedRequests() Captured {
	return d.buffer.Snapshot()
}

// ClearCapturedRequests implements Driver.
func (d *RodDriver) ClearCapturedRequests() {
	d.buffer.Clear()
}

// WaitNetworkIdle implements Driver.
func (d *RodDriver) WaitNetworkIdle(ctx context.Context, idle time.Duration) error {
	wait := d.page.Context(ctx).WaitRequestIdle(idle, nil, nil, nil)
	done := make(chan struct{})
	go func() {
		wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return errors.NewCancelledError(d.CurrentURL(), "wait_network_idle")
	}
}

// Screenshot implements Driver.
func (d *RodDriver) Screenshot(ctx context.Context) ([]byte, error) {
	data, err := d.page.Context(ctx).Screenshot(false, nil)
	if err != nil {
		return nil, errors.NewBrowserError(d.CurrentURL(), "screenshot", err)
	}
	return data, nil
}

// HTML implements Driver.
func (d *RodDriver) HTML(ctx context.Context) (string, error) {
	html, err := d.page.Context(ctx).HTML()
	if err != nil {
		return "", errors.NewBrowserError(d.CurrentURL(), "html", err)
	}
	return html, nil
}

// Close releases the page and browser.
func (d *RodDriver) Close() error {
	if d.page != nil {
		_ = d.page.Close()
	}
	if d.browser != nil {
		return d.browser.Close()
	}
	return nil
}

// rodElement adapts a rod element to the Element interface.
type rodElement struct {
	el *rod.Element
}

func (e *rodElement) IsVisible() (bool, error) {
	return e.el.Visible()
}

func (e *rodElement) Click() error {
	return e.el.Click(proto.InputMouseButtonLeft, 1)
}

func (e *rodElement) Fill(value string) error {
	if err := e.el.Focus(); err != nil {
		return err
	}
	if err := e.el.SelectAllText(); err != nil {
		return err
	}
	return e.el.Input(value)
}

func (e *rodElement) Text() (string, error) {
	return e.el.Text()
}

func (e *rodElement) Value() (string, error) {
	res, err := e.el.Eval(`function () { return this.value || ""; }`)
	if err != nil {
		return "", err
	}
	return res.Value.Str(), nil
}

func (e *rodElement) Attribute(name string) (string, bool, error) {
	val, err := e.el.Attribute(name)
	if err != nil {
		return "", false, err
	}
	if val == nil {
		return "", false, nil
	}
	return *val, true, nil
}

func (e *rodElement) RemoveAttribute(name string) error {
	_, err := e.el.Eval(`function (name) { this.removeAttribute(name); }`, name)
	return err
}

func (e *rodElement) Focus() error {
	return e.el.Focus()
}

func (e *rodElement) SelectAllText() error {
	return e.el.SelectAllText()
}

func (e *rodElement) BoundingBox() (Rect, error) {
	shape, err := e.el.Shape()
	if err != nil {
		return Rect{}, err
	}
	box := shape.Box()
	if box == nil {
		return Rect{}, fmt.Errorf("element has no box")
	}
	return Rect{X: box.X, Y: box.Y, Width: box.Width, Height: box.Height}, nil
}

func (e *rodElement) Dispatch(eventType string) error {
	_, err := e.el.Eval(
		`function (type) { this.dispatchEvent(new Event(type, { bubbles: true })); }`,
		eventType)
	return err
}

func (e *rodElement) SetValueNative(value string) error {
	_, err := e.el.Eval(`function (value) {
		const proto = Object.getPrototypeOf(this);
		const desc = Object.getOwnPropertyDescriptor(proto, 'value');
		if (desc && desc.set) {
			desc.set.call(this, value);
		} else {
			this.value = value;
		}
		this.dispatchEvent(new Event('input', { bubbles: true }));
		this.dispatchEvent(new Event('change', { bubbles: true }));
	}`, value)
	return err
}
