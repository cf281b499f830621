package sis

import "html"

// UnescapeHTML recursively walks a decoded JSON value (the shapes
// encoding/json produces into an any: map[string]any, []any, string, and
// other scalars) and HTML-entity-unescapes every string leaf, preserving
// container shape. Grounded on original_source/sis_scraper/sis_api.py's
// unescape_html walker over dict/list/str, generalized to Go's tagged-union
// decode shape (spec.md §9 "Cyclic / recursive HTML unescape").
func UnescapeHTML(v any) any {
	switch t := v.(type) {
	case string:
		return html.UnescapeString(t)
	case []any:
		out := make([]any, len(t))
		for i, elem := range t {
			out[i] = UnescapeHTML(elem)
		}
		return out
	case map[string]any:
		out := make(map[string]any, len(t))
		for k, elem := range t {
			out[k] = UnescapeHTML(elem)
		}
		return out
	default:
		return v
	}
}

// UnescapeString unescapes a single string; used by Fetcher.GetHTML on raw
// HTML bodies, which are never decoded into a generic any tree, so the
// generic walker above does not apply.
func UnescapeString(s string) string {
	return html.UnescapeString(s)
}
