// Package picker locates date controls on a page and operates them so the
// page itself fires its data request.
package picker

import (
	"context"
	"strings"

	"github.com/PentesterFlow/dateprobe/internal/browser"
	"github.com/PentesterFlow/dateprobe/internal/errors"
	"github.com/PentesterFlow/dateprobe/internal/logger"
)

// ControlType identifies the date-control family.
type ControlType int

const (
	// Unknown means no known family matched.
	Unknown ControlType = iota
	// Native is input[type=date].
	Native
	// GenericInput is a text input with date-ish naming.
	GenericInput
	// Laydate is the layui laydate picker.
	Laydate
	// ElementUI is the Element UI date editor.
	ElementUI
	// AntDesign is the Ant Design picker.
	AntDesign
	// Bootstrap is the bootstrap-datepicker plugin.
	Bootstrap
)

// String returns the family name.
func (t ControlType) String() string {
	switch t {
	case Native:
		return "native"
	case GenericInput:
		return "generic_input"
	case Laydate:
		return "laydate"
	case ElementUI:
		return "element_ui"
	case AntDesign:
		return "ant_design"
	case Bootstrap:
		return "bootstrap"
	default:
		return "unknown"
	}
}

// Descriptor describes a detected date control and how to drive it.
type Descriptor struct {
	Found bool
	Type  ControlType
	// IsRange is set when the control covers both ends of a range, either
	// as one range editor or as a sibling input pair.
	IsRange bool
	// IsInput is set when text can be typed into the control.
	IsInput bool
	// IsReadonly is set when the input carries a readonly attribute;
	// typing then needs the engine-level or force-set injectors.
	IsReadonly bool
	// TriggerSelector matches the input(s) to fill or click.
	TriggerSelector string
	// ConfirmSelector matches the panel's confirm button, when the family
	// has one.
	ConfirmSelector string
	// SiblingCount is how many visible inputs TriggerSelector matched.
	SiblingCount int
	// SubmitSelector matches a nearby submit control, when one was found.
	SubmitSelector string
}

// pattern is one row of the detection table.
type pattern struct {
	ctype    ControlType
	selector string
	isInput  bool
	confirm  string
}

// Detection order matters: fillable inputs come first because typing into
// them is the cheapest, most reliable operation; widget families follow.
var detectionTable = []pattern{
	{Native, `input[type="date"]`, true, ""},
	{GenericInput, `input[placeholder*="date"], input[placeholder*="Date"], input[placeholder*="日期"], input[name*="date"], input[name*="Date"], input[id*="date"], input[id*="Date"]`, true, ""},
	{Laydate, `input[lay-key], input.laydate, input[id*="laydate"]`, true, `.laydate-btns-confirm`},
	{ElementUI, `.el-date-editor input, .el-range-editor input`, true, `.el-picker-panel__footer button`},
	{AntDesign, `.ant-picker input, .ant-calendar-picker input`, true, `.ant-picker-ok button`},
	{Bootstrap, `[data-provide="datepicker"], input.datepicker`, true, ""},
}

// Submit button vocabulary. Short labels only; long text means the element
// is a link or description, not a query button.
var submitWords = []string{"查询", "搜索", "确定", "Search", "Query", "Submit", "Filter", "Go"}

const maxSubmitTextLen = 10

// matchesSubmitVocabulary reports whether a control label reads like a
// query/submit button.
func matchesSubmitVocabulary(text string) bool {
	text = strings.TrimSpace(text)
	if text == "" || len([]rune(text)) > maxSubmitTextLen {
		return false
	}
	for _, w := range submitWords {
		if strings.Contains(strings.ToLower(text), strings.ToLower(w)) {
			return true
		}
	}
	return false
}

// Detector finds date controls on the live page.
type Detector struct {
	driver browser.Driver
	log    *logger.Logger
}

// NewDetector creates a Detector.
func NewDetector(driver browser.Driver, log *logger.Logger) *Detector {
	if log == nil {
		log = logger.Global()
	}
	return &Detector{
		driver: driver,
		log:    log.WithComponent("picker").WithLayer(2),
	}
}

// Detect walks the detection table and returns a descriptor for the first
// family with a visible match. A static pre-scan of the HTML snapshot skips
// families that are not in the markup at all.
func (d *Detector) Detect(ctx context.Context) (Descriptor, []browser.Element, error) {
	present := map[ControlType]bool{}
	usePresence := false
	if html, err := d.driver.HTML(ctx); err == nil && html != "" {
		if counts, err := StaticScan(html); err == nil {
			usePresence = true
			for t, n := range counts {
				present[t] = n > 0
			}
		}
	}

	for _, p := range detectionTable {
		if usePresence && !present[p.ctype] {
			continue
		}
		els, err := d.driver.QueryVisibleElements(ctx, p.selector)
		if err != nil || len(els) == 0 {
			continue
		}

		desc := Descriptor{
			Found:           true,
			Type:            p.ctype,
			IsInput:         p.isInput,
			TriggerSelector: p.selector,
			ConfirmSelector: p.confirm,
			SiblingCount:    len(els),
			IsRange:         len(els) >= 2,
		}
		if ro, ok, err := els[0].Attribute("readonly"); err == nil && (ok || ro != "") {
			desc.IsReadonly = true
		}
		desc.SubmitSelector = d.findSubmit(ctx)

		d.log.Infof("date control detected: %s (%d inputs)", desc.Type, desc.SiblingCount)
		return desc, els, nil
	}

	return Descriptor{}, nil, errors.NewControlNotFoundError(d.driver.CurrentURL())
}

// findSubmit looks for a visible button whose label reads like a query
// action.
func (d *Detector) findSubmit(ctx context.Context) string {
	selectors := []string{
		`button`, `input[type="submit"]`, `input[type="button"]`, `a.btn`, `a.button`,
	}
	for _, sel := range selectors {
		els, err := d.driver.QueryVisibleElements(ctx, sel)
		if err != nil {
			continue
		}
		for _, el := range els {
			text, err := el.Text()
			if err != nil {
				if v, ok, verr := el.Attribute("value"); verr == nil && ok {
					text = v
				}
			}
			if matchesSubmitVocabulary(text) {
				return sel
			}
		}
	}
	return ""
}
