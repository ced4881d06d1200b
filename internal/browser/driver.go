package browser

import (
	"context"
	"time"
)

// Driver is the page-automation surface the discovery layers consume. The
// production implementation drives Chrome through Rod; tests substitute
// fakes.
type Driver interface {
	// Navigate loads a URL and waits for the load event.
	Navigate(ctx context.Context, url string) error
	// CurrentURL returns the page URL after redirects.
	CurrentURL() string
	// EvaluateScript runs a read-only script in the page and decodes its
	// JSON-compatible result into out.
	EvaluateScript(ctx context.Context, script string, out any) error
	// QueryVisibleElements returns handles for the visible elements
	// matching a CSS selector.
	QueryVisibleElements(ctx context.Context, selector string) ([]Element, error)
	// EngineLevelTextInject types text into the focused element through the
	// browser input pipeline, bypassing page-level event handlers that
	// swallow synthetic value changes.
	EngineLevelTextInject(ctx context.Context, text string) error
	// PressKey sends a keyboard key ("Enter", "Escape") to the page.
	PressKey(ctx context.Context, key string) error
	// ListCapturedRequests snapshots the network capture buffer.
	ListCapturedRequests() Captured
	// ClearCapturedRequests empties the capture buffer.
	ClearCapturedRequests()
	// WaitNetworkIdle blocks until no request has been in flight for the
	// given window, or the context expires.
	WaitNetworkIdle(ctx context.Context, idle time.Duration) error
	// Screenshot captures the viewport as PNG bytes.
	Screenshot(ctx context.Context) ([]byte, error)
	// HTML returns the current page HTML snapshot.
	HTML(ctx context.Context) (string, error)
}

// Element is a handle on a live DOM element.
type Element interface {
	IsVisible() (bool, error)
	Click() error
	// Fill focuses the element, selects existing text and types value.
	Fill(value string) error
	Text() (string, error)
	// Value reads the live value property of an input element.
	Value() (string, error)
	// Attribute returns the attribute value and whether it is present.
	Attribute(name string) (string, bool, error)
	RemoveAttribute(name string) error
	Focus() error
	SelectAllText() error
	BoundingBox() (Rect, error)
	// Dispatch fires a bubbling DOM event of the given type on the element.
	Dispatch(eventType string) error
	// SetValueNative assigns the value through the native property setter
	// and fires input/change, for frameworks that ignore typed input.
	SetValueNative(value string) error
}
