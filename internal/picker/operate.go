package picker

import (
	"context"
	"fmt"
	"math"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/PentesterFlow/dateprobe/internal/browser"
	"github.com/PentesterFlow/dateprobe/internal/dateparam"
	"github.com/PentesterFlow/dateprobe/internal/errors"
	"github.com/PentesterFlow/dateprobe/internal/logger"
)

// networkIdleWindow is how long the wire must stay quiet after an operation
// before we snapshot the traffic it triggered.
const networkIdleWindow = 2 * time.Second

// Preset range shortcuts calendars offer, label fragment to day span.
var presetShortcuts = []struct {
	label string
	days  int
}{
	{"近三月", 90},
	{"近一月", 30},
	{"近一周", 7},
}

// Preset tolerance: a shortcut is usable when its span is between 0.8x and
// 1.5x the requested range.
const (
	presetToleranceLow  = 0.8
	presetToleranceHigh = 1.5
)

// Operator drives a detected date control.
type Operator struct {
	driver browser.Driver
	log    *logger.Logger
}

// NewOperator creates an Operator.
func NewOperator(driver browser.Driver, log *logger.Logger) *Operator {
	if log == nil {
		log = logger.Global()
	}
	return &Operator{
		driver: driver,
		log:    log.WithComponent("picker").WithLayer(2),
	}
}

// Operate sets the requested range on the control and triggers the query.
// The capture buffer is cleared first so the snapshot afterwards holds only
// traffic this interaction produced. Fill-and-submit runs first regardless
// of family; calendar navigation is the fallback for widget pickers.
func (o *Operator) Operate(ctx context.Context, desc Descriptor, start, end time.Time) error {
	if !desc.Found {
		return errors.NewControlNotFoundError(o.driver.CurrentURL())
	}

	o.driver.ClearCapturedRequests()

	var fillErr error
	if desc.IsInput {
		fillErr = o.fillAndSubmit(ctx, desc, start, end)
		if fillErr == nil {
			return o.awaitTraffic(ctx, "fill_submit")
		}
		o.log.WithError(fillErr).Debug("fill and submit failed")
	}

	switch desc.Type {
	case Laydate, ElementUI, AntDesign, Bootstrap:
		if err := o.operateCalendar(ctx, desc, start, end); err != nil {
			return err
		}
		return o.awaitTraffic(ctx, "calendar")
	}

	if fillErr != nil {
		return fillErr
	}
	return errors.NewControlNotFoundError(o.driver.CurrentURL())
}

// awaitTraffic waits for the page to go quiet, then checks that the
// interaction actually produced requests.
func (o *Operator) awaitTraffic(ctx context.Context, operation string) error {
	idleCtx, cancel := context.WithTimeout(ctx, 8*time.Second)
	defer cancel()
	_ = o.driver.WaitNetworkIdle(idleCtx, networkIdleWindow)

	if len(o.driver.ListCapturedRequests().All) == 0 {
		return errors.NewNoTrafficError(o.driver.CurrentURL(), operation)
	}
	return nil
}

// fillAndSubmit types the range into the visible date inputs left to right
// and triggers the query.
func (o *Operator) fillAndSubmit(ctx context.Context, desc Descriptor, start, end time.Time) error {
	els, err := o.driver.QueryVisibleElements(ctx, desc.TriggerSelector)
	if err != nil {
		return err
	}
	if len(els) == 0 {
		return errors.NewControlNotFoundError(o.driver.CurrentURL())
	}
	sortByX(els)

	startVal := dateparam.FormatDate(start, dateparam.ISO)
	endVal := dateparam.FormatDate(end, dateparam.ISO)

	values := []string{startVal}
	targets := els[:1]
	if len(els) >= 2 {
		values = []string{startVal, endVal}
		targets = els[:2]
	}

	for i, el := range targets {
		if err := InjectText(ctx, o.driver, el, values[i], o.log); err != nil {
			return err
		}
		// Filling usually pops the calendar panel; close it so it does
		// not cover the submit button.
		_ = o.driver.PressKey(ctx, "Escape")
	}

	return o.submit(ctx, desc)
}

// submit clicks the query button, falling back to Enter in the last input.
func (o *Operator) submit(ctx context.Context, desc Descriptor) error {
	if desc.SubmitSelector != "" {
		els, err := o.driver.QueryVisibleElements(ctx, desc.SubmitSelector)
		if err == nil {
			for _, el := range els {
				text, terr := el.Text()
				if terr != nil {
					if v, ok, aerr := el.Attribute("value"); aerr == nil && ok {
						text = v
					}
				}
				if matchesSubmitVocabulary(text) {
					return el.Click()
				}
			}
		}
	}
	return o.driver.PressKey(ctx, "Enter")
}

// operateCalendar opens the picker panel and selects the range through it.
func (o *Operator) operateCalendar(ctx context.Context, desc Descriptor, start, end time.Time) error {
	els, err := o.driver.QueryVisibleElements(ctx, desc.TriggerSelector)
	if err != nil || len(els) == 0 {
		return errors.NewControlNotFoundError(o.driver.CurrentURL())
	}
	sortByX(els)
	if err := els[0].Click(); err != nil {
		return errors.NewBrowserError(o.driver.CurrentURL(), "open_panel", err)
	}

	if o.clickPresetShortcut(ctx, start, end) {
		_ = o.clickConfirm(ctx, desc)
		return nil
	}

	// Pick each end of the range through month navigation. Range panels
	// expect start first, then end.
	if err := o.navigateAndPickDay(ctx, start); err != nil {
		return err
	}
	if desc.IsRange || end.After(start) {
		if err := o.navigateAndPickDay(ctx, end); err != nil {
			return err
		}
	}
	return o.clickConfirm(ctx, desc)
}

// Shortcut link locations per family.
var presetSelectors = []string{
	`.laydate-shortcuts span`, `.layui-laydate-shortcut li`,
	`.el-picker-panel__sidebar .el-picker-panel__shortcut`,
	`.ant-picker-presets li`,
}

// clickPresetShortcut uses a "last N days" shortcut when one approximates
// the requested range.
func (o *Operator) clickPresetShortcut(ctx context.Context, start, end time.Time) bool {
	wantDays := end.Sub(start).Hours() / 24
	if wantDays <= 0 {
		return false
	}

	for _, sel := range presetSelectors {
		els, err := o.driver.QueryVisibleElements(ctx, sel)
		if err != nil {
			continue
		}
		for _, el := range els {
			text, err := el.Text()
			if err != nil {
				continue
			}
			for _, preset := range presetShortcuts {
				if !strings.Contains(text, preset.label) {
					continue
				}
				ratio := float64(preset.days) / wantDays
				if ratio < presetToleranceLow || ratio > presetToleranceHigh {
					continue
				}
				if el.Click() == nil {
					o.log.Infof("preset shortcut %q covers requested range", preset.label)
					return true
				}
			}
		}
	}
	return false
}

// Panel header and navigation selectors, laydate first.
var (
	headerSelectors = []string{`.laydate-set-ym span`, `.el-date-picker__header-label`, `.ant-picker-header-view button`}
	prevSelectors   = []string{`.laydate-prev-m`, `.el-icon-arrow-left`, `.ant-picker-header-prev-btn`, `.prev`}
	nextSelectors   = []string{`.laydate-next-m`, `.el-icon-arrow-right`, `.ant-picker-header-next-btn`, `.next`}
)

var yearRe = regexp.MustCompile(`(\d{4})`)
var monthRe = regexp.MustCompile(`(\d{1,2})\s*月|^(\d{1,2})$`)

// navigateAndPickDay steps the visible month to the target and clicks its
// day cell.
func (o *Operator) navigateAndPickDay(ctx context.Context, target time.Time) error {
	for i := 0; i < 36; i++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		year, month, ok := o.currentPanelMonth(ctx)
		if !ok {
			// No readable header; try the day cell where we are.
			break
		}
		diff := (target.Year()-year)*12 + int(target.Month()) - month
		if diff == 0 {
			break
		}
		var navSelectors []string
		if diff < 0 {
			navSelectors = prevSelectors
		} else {
			navSelectors = nextSelectors
		}
		if !o.clickFirst(ctx, navSelectors) {
			return errors.NewBrowserError(o.driver.CurrentURL(), "calendar_nav",
				fmt.Errorf("month navigation control not found"))
		}
	}
	return o.clickDayCell(ctx, target)
}

// currentPanelMonth reads the year and month out of the panel header.
func (o *Operator) currentPanelMonth(ctx context.Context) (int, int, bool) {
	for _, sel := range headerSelectors {
		els, err := o.driver.QueryVisibleElements(ctx, sel)
		if err != nil || len(els) == 0 {
			continue
		}
		var joined strings.Builder
		for _, el := range els {
			if text, err := el.Text(); err == nil {
				joined.WriteString(text)
				joined.WriteString(" ")
			}
		}
		text := joined.String()

		ym := yearRe.FindStringSubmatch(text)
		if ym == nil {
			continue
		}
		year, _ := strconv.Atoi(ym[1])

		rest := strings.Replace(text, ym[1], "", 1)
		mm := monthRe.FindStringSubmatch(strings.TrimSpace(rest))
		if mm == nil {
			continue
		}
		monthStr := mm[1]
		if monthStr == "" {
			monthStr = mm[2]
		}
		month, err := strconv.Atoi(monthStr)
		if err != nil || month < 1 || month > 12 {
			continue
		}
		return year, month, true
	}
	return 0, 0, false
}

// Classes marking cells that belong to the previous or next month.
var adjacentMonthClasses = []string{
	"laydate-day-prev", "laydate-day-next",
	"prev-month", "next-month", "old", "new",
	"ant-picker-cell-out-view",
}

// clickDayCell clicks the target day, skipping spill-over cells from
// adjacent months.
func (o *Operator) clickDayCell(ctx context.Context, target time.Time) error {
	// laydate stamps each cell with lay-ymd="YYYY-M-D" (no zero padding).
	layYmd := fmt.Sprintf("%d-%d-%d", target.Year(), int(target.Month()), target.Day())
	if els, err := o.driver.QueryVisibleElements(ctx, fmt.Sprintf(`td[lay-ymd="%s"]`, layYmd)); err == nil && len(els) > 0 {
		return els[0].Click()
	}

	day := strconv.Itoa(target.Day())
	for _, sel := range []string{`td`, `.el-date-table td .cell`, `.ant-picker-cell-inner`} {
		els, err := o.driver.QueryVisibleElements(ctx, sel)
		if err != nil {
			continue
		}
		for _, el := range els {
			text, err := el.Text()
			if err != nil || strings.TrimSpace(text) != day {
				continue
			}
			if class, ok, _ := el.Attribute("class"); ok && hasAdjacentClass(class) {
				continue
			}
			return el.Click()
		}
	}
	return errors.NewBrowserError(o.driver.CurrentURL(), "pick_day",
		fmt.Errorf("day cell %s not found", layYmd))
}

func hasAdjacentClass(class string) bool {
	for _, c := range adjacentMonthClasses {
		if strings.Contains(class, c) {
			return true
		}
	}
	return false
}

// clickConfirm presses the panel's confirm button when the family has one.
func (o *Operator) clickConfirm(ctx context.Context, desc Descriptor) error {
	if desc.ConfirmSelector == "" {
		return nil
	}
	els, err := o.driver.QueryVisibleElements(ctx, desc.ConfirmSelector)
	if err != nil || len(els) == 0 {
		return nil
	}
	return els[len(els)-1].Click()
}

// clickFirst clicks the first visible element any of the selectors matches.
func (o *Operator) clickFirst(ctx context.Context, selectors []string) bool {
	for _, sel := range selectors {
		els, err := o.driver.QueryVisibleElements(ctx, sel)
		if err != nil || len(els) == 0 {
			continue
		}
		if els[0].Click() == nil {
			return true
		}
	}
	return false
}

// sortByX orders elements left to right; start inputs come before end
// inputs on every layout we have seen.
func sortByX(els []browser.Element) {
	sort.SliceStable(els, func(i, j int) bool {
		bi, erri := els[i].BoundingBox()
		bj, errj := els[j].BoundingBox()
		if erri != nil || errj != nil {
			return false
		}
		if math.Abs(bi.Y-bj.Y) > bi.Height {
			return bi.Y < bj.Y
		}
		return bi.X < bj.X
	})
}
