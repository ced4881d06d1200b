package picker

import (
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// Static selectors per family, compatible with goquery. The live detection
// table stays authoritative; this scan only rules families in or out from
// the HTML snapshot before any DOM round trips.
var staticSelectors = map[ControlType][]string{
	Native: {`input[type="date"]`},
	GenericInput: {
		`input[placeholder*="date"]`, `input[placeholder*="Date"]`,
		`input[placeholder*="日期"]`,
		`input[name*="date"]`, `input[name*="Date"]`,
		`input[id*="date"]`, `input[id*="Date"]`,
	},
	Laydate:   {`input[lay-key]`, `input.laydate`, `input[id*="laydate"]`},
	ElementUI: {`.el-date-editor`, `.el-range-editor`},
	AntDesign: {`.ant-picker`, `.ant-calendar-picker`},
	Bootstrap: {`[data-provide="datepicker"]`, `input.datepicker`},
}

// StaticScan counts date-control markup per family in an HTML snapshot.
func StaticScan(html string) (map[ControlType]int, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return nil, err
	}

	counts := map[ControlType]int{}
	for ctype, selectors := range staticSelectors {
		total := 0
		for _, sel := range selectors {
			total += doc.Find(sel).Length()
		}
		counts[ctype] = total
	}
	return counts, nil
}
