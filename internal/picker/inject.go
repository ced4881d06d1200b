package picker

import (
	"context"
	"fmt"

	"github.com/PentesterFlow/dateprobe/internal/browser"
	"github.com/PentesterFlow/dateprobe/internal/logger"
)

// TextInjector is one way of getting text into an input. Implementations
// escalate in invasiveness: plain form fill, engine-level keystroke
// insertion, then direct property assignment.
type TextInjector interface {
	Name() string
	Inject(ctx context.Context, driver browser.Driver, el browser.Element, text string) error
}

// formFill types through the element's normal fill path.
type formFill struct{}

func (formFill) Name() string { return "form_fill" }

func (formFill) Inject(ctx context.Context, driver browser.Driver, el browser.Element, text string) error {
	return el.Fill(text)
}

// engineInject removes the readonly guard pickers put on their inputs, then
// inserts text through the browser input pipeline so the page sees real
// input events.
type engineInject struct{}

func (engineInject) Name() string { return "engine_inject" }

func (engineInject) Inject(ctx context.Context, driver browser.Driver, el browser.Element, text string) error {
	if err := el.RemoveAttribute("readonly"); err != nil {
		return err
	}
	if err := el.Focus(); err != nil {
		return err
	}
	_ = el.SelectAllText()
	return driver.EngineLevelTextInject(ctx, text)
}

// forceSet assigns through the native value setter and dispatches
// input/change, the only route left when the page intercepts all typing.
type forceSet struct{}

func (forceSet) Name() string { return "force_set" }

func (forceSet) Inject(ctx context.Context, driver browser.Driver, el browser.Element, text string) error {
	return el.SetValueNative(text)
}

// InjectSequence returns the injectors in escalation order.
func InjectSequence() []TextInjector {
	return []TextInjector{formFill{}, engineInject{}, forceSet{}}
}

// InjectText walks the injector sequence until the element's value reads
// back as the requested text.
func InjectText(ctx context.Context, driver browser.Driver, el browser.Element, text string, log *logger.Logger) error {
	if log == nil {
		log = logger.Global()
	}

	var lastErr error
	for _, inj := range InjectSequence() {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := inj.Inject(ctx, driver, el, text); err != nil {
			lastErr = err
			log.Debugf("injector %s failed: %v", inj.Name(), err)
			continue
		}
		if val, err := el.Value(); err == nil && val == text {
			return nil
		}
		lastErr = fmt.Errorf("injector %s did not stick", inj.Name())
	}
	if lastErr == nil {
		lastErr = fmt.Errorf("no injector available")
	}
	return lastErr
}
