package collect

import (
	"net/url"
	"strings"

	"chorus/browser"
	"chorus/engine"
)

// queryPlaceholder stands in when the original prompt cannot be recovered
// from any open tab. Query recovery is best effort and never blocks a run.
const queryPlaceholder = "untitled query"

// queryParams are the URL parameters engines use to carry a prefilled
// prompt, in priority order.
var queryParams = []string{"q", "query", "prompt"}

// recoverQuery reconstructs the original prompt from the open tabs:
// a query parameter on any tab URL first, then the fallback engine's tab
// title with engine branding trimmed, then the placeholder.
func recoverQuery(tabs []browser.Target, reg *engine.Registry) string {
	for _, tab := range tabs {
		u, err := url.Parse(tab.URL)
		if err != nil {
			continue
		}
		values := u.Query()
		for _, param := range queryParams {
			if v := strings.TrimSpace(values.Get(param)); v != "" {
				return v
			}
		}
	}

	if fallback, ok := reg.FallbackQueryProfile(); ok {
		for _, tab := range tabs {
			if !fallback.URLMatch.MatchString(tab.URL) {
				continue
			}
			if title := trimEngineTitle(tab.Title, fallback.Name); title != "" {
				return title
			}
		}
	}

	return queryPlaceholder
}

// trimEngineTitle strips the engine's branding from a tab title. Titles
// look like "the question - Perplexity" or "Perplexity | the question".
func trimEngineTitle(title, engineName string) string {
	t := strings.TrimSpace(title)
	if t == "" {
		return ""
	}

	for _, sep := range []string{" - ", " | ", " – ", " — "} {
		if suffix := sep + engineName; len(t) > len(suffix) &&
			strings.EqualFold(t[len(t)-len(suffix):], suffix) {
			t = strings.TrimSpace(t[:len(t)-len(suffix)])
		}
		if prefix := engineName + sep; len(t) > len(prefix) &&
			strings.EqualFold(t[:len(prefix)], prefix) {
			t = strings.TrimSpace(t[len(prefix):])
		}
	}

	if strings.EqualFold(t, engineName) {
		return ""
	}
	return t
}
