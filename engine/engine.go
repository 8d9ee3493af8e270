// Package engine holds the per-engine knowledge: how to recognize an AI
// chat application's tab, how to read its currently rendered answer, and,
// for engines that need it, how to trigger the send control.
//
// Profiles are data, not types: every engine exposes the same two
// capabilities (extract, optionally activate), so the registry is a table
// of value objects with embedded page-side scripts. When an engine ships a
// UI redesign only its table entry changes; the pipeline never does. This
// is the deliberate fragility seam of the whole system.
package engine

import (
	"net/url"
	"regexp"
	"strings"
)

// Format declares what an extraction script returns.
type Format string

const (
	// FormatText means the script returns plain visible text.
	FormatText Format = "text"
	// FormatHTML means the script returns rendered HTML that the pipeline
	// sanitizes and converts to markdown.
	FormatHTML Format = "html"
)

// Profile describes one AI chat engine. Immutable after registry
// construction; identity is the Slug.
type Profile struct {
	// Name is the human-readable engine name ("ChatGPT").
	Name string

	// Slug is the filesystem-safe identifier and the profile's identity.
	Slug string

	// URLMatch recognizes the engine's tabs during discovery.
	URLMatch *regexp.Regexp

	// ExtractScript is a page-side function expression returning the
	// current best-guess answer text ("" while nothing is rendered).
	// It must be a pure, idempotent DOM read: the poller calls it every
	// interval, so it may never click, type, or mutate anything.
	ExtractScript string

	// Format declares whether ExtractScript returns text or HTML.
	Format Format

	// QueryURL is a printf template (one %s, query-escaped) for opening a
	// fresh tab with the prompt prefilled. Empty when the engine offers no
	// URL prefill.
	QueryURL string

	// TitleQuery marks the engine whose tab title doubles as the original
	// query, used as the fallback during query recovery.
	TitleQuery bool
}

// PromptURL renders QueryURL for a query. Returns "" when the engine has no
// URL prefill.
func (p Profile) PromptURL(query string) string {
	if p.QueryURL == "" {
		return ""
	}
	return strings.Replace(p.QueryURL, "%s", url.QueryEscape(query), 1)
}

// Submitter describes the one-shot activation an engine needs when the
// prompt arrives prefilled via URL but the page still waits for an explicit
// send. Activation scripts run exactly once per engine per run, never
// under the polling loop, because their side effect must not repeat.
type Submitter struct {
	Name              string
	URLMatch          *regexp.Regexp
	ActivationScript  string
	AwaitsAsyncResult bool
}

// Registry is the ordered table of engine profiles plus the submitter
// subset. Result ordering everywhere downstream is registry order.
type Registry struct {
	profiles   []Profile
	submitters []Submitter
}

// NewRegistry builds a registry from explicit profile tables.
func NewRegistry(profiles []Profile, submitters []Submitter) *Registry {
	return &Registry{profiles: profiles, submitters: submitters}
}

// Default returns the built-in registry.
func Default() *Registry {
	return NewRegistry(builtinProfiles(), builtinSubmitters())
}

// Profiles returns the engine table in registry order.
func (r *Registry) Profiles() []Profile {
	return r.profiles
}

// Lookup finds a profile by slug.
func (r *Registry) Lookup(slug string) (Profile, bool) {
	for _, p := range r.profiles {
		if p.Slug == slug {
			return p, true
		}
	}
	return Profile{}, false
}

// SubmitterFor finds the activation entry matching a tab URL, if the engine
// behind that URL needs one.
func (r *Registry) SubmitterFor(tabURL string) (Submitter, bool) {
	for _, s := range r.submitters {
		if s.URLMatch.MatchString(tabURL) {
			return s, true
		}
	}
	return Submitter{}, false
}

// FallbackQueryProfile returns the engine whose tab title is used to
// recover the query when no tab URL carries it.
func (r *Registry) FallbackQueryProfile() (Profile, bool) {
	for _, p := range r.profiles {
		if p.TitleQuery {
			return p, true
		}
	}
	return Profile{}, false
}
