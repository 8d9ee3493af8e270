package engine

import "regexp"

// Built-in profiles for the engines the tool ships with. Selectors track
// each engine's current UI and are expected to rot; override them per
// engine via a YAML profile file instead of recompiling.

func builtinProfiles() []Profile {
	return []Profile{
		{
			Name:     "ChatGPT",
			Slug:     "chatgpt",
			URLMatch: regexp.MustCompile(`chatgpt\.com|chat\.openai\.com`),
			Format:   FormatHTML,
			QueryURL: "https://chatgpt.com/?q=%s",
			ExtractScript: `() => {
				const msgs = document.querySelectorAll('[data-message-author-role="assistant"]');
				if (!msgs.length) return "";
				const last = msgs[msgs.length - 1];
				const md = last.querySelector('.markdown');
				return (md || last).innerHTML || "";
			}`,
		},
		{
			Name:     "Claude",
			Slug:     "claude",
			URLMatch: regexp.MustCompile(`claude\.ai`),
			Format:   FormatHTML,
			QueryURL: "https://claude.ai/new?q=%s",
			ExtractScript: `() => {
				const msgs = document.querySelectorAll('[data-is-streaming], .font-claude-message');
				if (!msgs.length) return "";
				return msgs[msgs.length - 1].innerHTML || "";
			}`,
		},
		{
			Name:     "Gemini",
			Slug:     "gemini",
			URLMatch: regexp.MustCompile(`gemini\.google\.com`),
			Format:   FormatHTML,
			ExtractScript: `() => {
				const msgs = document.querySelectorAll('message-content');
				if (!msgs.length) return "";
				return msgs[msgs.length - 1].innerHTML || "";
			}`,
		},
		{
			Name:       "Perplexity",
			Slug:       "perplexity",
			URLMatch:   regexp.MustCompile(`perplexity\.ai`),
			Format:     FormatHTML,
			QueryURL:   "https://www.perplexity.ai/search?q=%s",
			TitleQuery: true,
			ExtractScript: `() => {
				const blocks = document.querySelectorAll('.prose');
				if (!blocks.length) return "";
				return blocks[blocks.length - 1].innerHTML || "";
			}`,
		},
		{
			Name:     "Grok",
			Slug:     "grok",
			URLMatch: regexp.MustCompile(`grok\.com`),
			Format:   FormatText,
			QueryURL: "https://grok.com/?q=%s",
			ExtractScript: `() => {
				const msgs = document.querySelectorAll('.message-bubble');
				if (!msgs.length) return "";
				return msgs[msgs.length - 1].innerText || "";
			}`,
		},
		{
			Name:     "Copilot",
			Slug:     "copilot",
			URLMatch: regexp.MustCompile(`copilot\.microsoft\.com`),
			Format:   FormatText,
			QueryURL: "https://copilot.microsoft.com/?q=%s",
			ExtractScript: `() => {
				const msgs = document.querySelectorAll('[data-content="ai-message"]');
				if (!msgs.length) return "";
				return msgs[msgs.length - 1].innerText || "";
			}`,
		},
	}
}

func builtinSubmitters() []Submitter {
	return []Submitter{
		{
			// claude.ai/new?q= fills the composer but does not send.
			Name:              "Claude",
			URLMatch:          regexp.MustCompile(`claude\.ai`),
			AwaitsAsyncResult: true,
			ActivationScript: `() => {
				const dialog = document.querySelector('[role="dialog"] button[aria-label="Close"]');
				if (dialog) dialog.click();
				const send = document.querySelector('button[aria-label="Send message"], button[aria-label="Send Message"]');
				if (!send) return "no-send-button";
				send.click();
				return "sent";
			}`,
		},
		{
			Name:     "Grok",
			URLMatch: regexp.MustCompile(`grok\.com`),
			ActivationScript: `() => {
				const send = document.querySelector('button[type="submit"], button[aria-label="Submit"]');
				if (!send) return "no-send-button";
				send.click();
				return "sent";
			}`,
		},
	}
}
