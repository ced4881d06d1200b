package runtimecfg

// SiteHint is a per-host introspection script. Hints run before the generic
// scan and return the same record schema.
type SiteHint struct {
	Name         string
	HostContains string
	Script       string
}

// Known exchange disclosure portals keep their query endpoint in a page
// global. The generic scan usually finds these too; the hints pick the right
// variable directly and keep its name stable for the hint cache.
var builtinHints = []SiteHint{
	{
		Name:         "sse-bulletin",
		HostContains: "sse.com",
		Script: `() => {
			const out = [];
			const cfg = window.pageConfig || window.PAGECONFIG || null;
			if (cfg && typeof cfg.queryUrl === "string") {
				out.push({
					sourceName: "pageConfig.queryUrl",
					candidateURL: cfg.queryUrl,
					dateParams: ["seDate"],
					allParams: (cfg.params && typeof cfg.params === "object") ? cfg.params : {},
					isJSONP: /callback=/i.test(cfg.queryUrl),
					origin: "hint"
				});
			}
			return out;
		}`,
	},
	{
		Name:         "szse-disclosure",
		HostContains: "szse.cn",
		Script: `() => {
			const out = [];
			const cfg = window.queryConfig || window.searchConfig || null;
			if (cfg) {
				const u = cfg.historyUrl || cfg.queryUrl || cfg.url || "";
				if (typeof u === "string" && u) {
					out.push({
						sourceName: "queryConfig",
						candidateURL: u,
						dateParams: [],
						allParams: (cfg.params && typeof cfg.params === "object") ? cfg.params : {},
						isJSONP: false,
						origin: "hint"
					});
				}
			}
			return out;
		}`,
	},
}

// genericScanScript walks window globals whose names suggest configuration
// and collects objects that declare an endpoint URL. URL fields named for
// history/query/search actions are preferred over generic ones; selfUrl is
// the last resort since it usually points back at the page.
const genericScanScript = `() => {
	const records = [];
	const nameRe = /(api|query|search|config|conf|opt|setting|param|url)/i;
	const urlFields = ["historyUrl", "queryUrl", "searchUrl", "dataUrl",
		"listUrl", "ajaxUrl", "apiUrl", "url", "selfUrl"];
	const dateRe = /(date|time|day|start|end|begin|from|to)/i;
	const seen = new Set();

	const looksLikeURL = (v) =>
		typeof v === "string" && v.length > 1 && v.length < 2048 &&
		(v.indexOf("/") >= 0) && !/\s/.test(v);

	const inspect = (name, obj, depth) => {
		if (!obj || typeof obj !== "object" || Array.isArray(obj) || depth > 2) return;
		if (records.length >= 20) return;

		let candidateURL = "";
		for (const f of urlFields) {
			if (looksLikeURL(obj[f])) { candidateURL = obj[f]; break; }
		}

		if (candidateURL && !seen.has(candidateURL)) {
			seen.add(candidateURL);
			const allParams = {};
			const dateParams = [];
			let isJSONP = /callback=|jsonp/i.test(candidateURL);
			for (const k of Object.keys(obj)) {
				let v;
				try { v = obj[k]; } catch (e) { continue; }
				if (typeof v === "function" || v === undefined) continue;
				if (/callback|jsonp/i.test(k)) isJSONP = true;
				if (v && typeof v === "object" && !Array.isArray(v)) {
					const keys = Object.keys(v);
					if (keys.length > 0 && keys.length <= 30) allParams[k] = v;
					continue;
				}
				allParams[k] = v;
				if (dateRe.test(k)) dateParams.push(k);
			}
			records.push({
				sourceName: name,
				candidateURL: candidateURL,
				dateParams: dateParams,
				allParams: allParams,
				isJSONP: isJSONP,
				origin: "scan"
			});
		}

		for (const k of Object.keys(obj)) {
			let v;
			try { v = obj[k]; } catch (e) { continue; }
			if (v && typeof v === "object" && !Array.isArray(v)) {
				inspect(name + "." + k, v, depth + 1);
			}
		}
	};

	for (const n of Object.getOwnPropertyNames(window)) {
		if (!nameRe.test(n)) continue;
		let v;
		try { v = window[n]; } catch (e) { continue; }
		if (v && typeof v === "object") {
			inspect(n, v, 0);
		} else if (looksLikeURL(v) && /url/i.test(n)) {
			records.push({
				sourceName: n,
				candidateURL: v,
				dateParams: [],
				allParams: {},
				isJSONP: /callback=/i.test(v),
				origin: "scan"
			});
		}
		if (records.length >= 20) break;
	}
	return records;
}`
