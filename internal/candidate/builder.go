package candidate

import (
	"encoding/json"
	"net/url"
	"sort"
	"strings"

	"github.com/bits-and-blooms/bloom/v3"

	"github.com/PentesterFlow/dateprobe/internal/browser"
	"github.com/PentesterFlow/dateprobe/internal/dateparam"
	"github.com/PentesterFlow/dateprobe/internal/logger"
)

// Resource types worth mining. Images, fonts and stylesheets never carry
// date filters; scripts stay because JSONP data rides on script tags.
var minableResourceTypes = map[string]bool{
	"xhr": true, "fetch": true, "script": true, "document": true, "": true,
}

// APISubsetBonus is added when a request was classified into the API subset.
const APISubsetBonus = 0.2

// Builder mines capture buffers into ranked candidates. A bloom filter
// spans capture windows, so re-mining after an automation pass does not
// rebuild candidates already seen.
type Builder struct {
	seen *bloom.BloomFilter
	log  *logger.Logger
}

// NewBuilder creates a Builder.
func NewBuilder(log *logger.Logger) *Builder {
	if log == nil {
		log = logger.Global()
	}
	return &Builder{
		seen: bloom.NewWithEstimates(100000, 0.01),
		log:  log.WithComponent("candidate"),
	}
}

// Mine converts a capture snapshot into candidates sorted by confidence,
// highest first. originLayer tags which discovery layer produced the
// traffic.
func (b *Builder) Mine(cap browser.Captured, originLayer int) []Candidate {
	apiSet := make(map[string]bool, len(cap.APISubset))
	for _, req := range cap.APISubset {
		apiSet[req.Method+" "+req.URL] = true
	}

	out := make([]Candidate, 0)
	for _, req := range cap.All {
		if !minableResourceTypes[req.ResourceType] {
			continue
		}

		u, err := url.Parse(req.URL)
		if err != nil || u.Host == "" {
			continue
		}

		query := queryParams(u)
		bodyParams, bodyKind := parseBody(req)

		merged := make(map[string]any, len(query)+len(bodyParams))
		for k, v := range query {
			merged[k] = v
		}
		for k, v := range flatten(bodyParams) {
			merged[k] = v
		}

		loose := dateparam.IdentifyLoose(merged)
		if len(loose) == 0 {
			continue
		}
		ok, reason := dateparam.LooksLikeRealDateFilter(req.URL, loose)
		if !ok {
			b.log.WithURL(req.URL).Debugf("rejected: %s", reason)
			continue
		}

		base := u.Scheme + "://" + u.Host + u.Path
		if b.alreadySeen(req.Method, base, loose) {
			continue
		}

		score := Score(req.URL, req.Method, merged, loose)
		if apiSet[req.Method+" "+req.URL] {
			score += APISubsetBonus
		}
		score = ApplyInitiatorAdjustment(score, req.Initiator)

		dateParams := dateparam.Identify(merged)
		if len(dateParams) == 0 {
			dateParams = loose
		}

		out = append(out, Candidate{
			URL:          base,
			Method:       strings.ToUpper(req.Method),
			BaseParams:   query,
			BodyParams:   bodyParams,
			BodyKind:     bodyKind,
			DateParams:   dateParams,
			Confidence:   score,
			OriginLayer:  originLayer,
			ResourceType: req.ResourceType,
			Initiator:    req.Initiator,
		})
	}

	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Confidence > out[j].Confidence
	})
	return out
}

// alreadySeen dedups on method, endpoint and the set of date param names.
func (b *Builder) alreadySeen(method, base string, loose map[string]dateparam.Format) bool {
	names := make([]string, 0, len(loose))
	for name := range loose {
		names = append(names, name)
	}
	sort.Strings(names)
	key := method + " " + base + " " + strings.Join(names, ",")
	return b.seen.TestAndAdd([]byte(key))
}

// queryParams converts the query string to a parameter map. Repeated keys
// become arrays so paired range values survive.
func queryParams(u *url.URL) map[string]any {
	out := map[string]any{}
	for k, vals := range u.Query() {
		switch len(vals) {
		case 0:
		case 1:
			out[k] = vals[0]
		default:
			arr := make([]any, len(vals))
			for i, v := range vals {
				arr[i] = v
			}
			out[k] = arr
		}
	}
	return out
}

// parseBody decodes a captured POST body as JSON, then as an urlencoded
// form.
func parseBody(req browser.CapturedRequest) (map[string]any, BodyKind) {
	body := strings.TrimSpace(req.PostBody)
	if body == "" {
		return nil, BodyNone
	}

	if strings.HasPrefix(body, "{") {
		var m map[string]any
		if err := json.Unmarshal([]byte(body), &m); err == nil {
			return m, BodyJSON
		}
	}

	vals, err := url.ParseQuery(body)
	if err != nil || len(vals) == 0 {
		return nil, BodyNone
	}
	out := map[string]any{}
	for k, vs := range vals {
		if len(vs) == 1 {
			out[k] = vs[0]
		} else {
			arr := make([]any, len(vs))
			for i, v := range vs {
				arr[i] = v
			}
			out[k] = arr
		}
	}
	return out, BodyForm
}

// flatten exposes one level of object nesting with dotted names, the shape
// pagination wrappers like pageHelp use.
func flatten(params map[string]any) map[string]any {
	out := make(map[string]any, len(params))
	for k, v := range params {
		if child, ok := v.(map[string]any); ok {
			for ck, cv := range child {
				out[k+"."+ck] = cv
			}
			continue
		}
		out[k] = v
	}
	return out
}
