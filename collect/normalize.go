package collect

import (
	"strings"

	"github.com/JohannesKaufmann/html-to-markdown/v2/converter"
	"github.com/JohannesKaufmann/html-to-markdown/v2/plugin/base"
	"github.com/JohannesKaufmann/html-to-markdown/v2/plugin/commonmark"
	"github.com/JohannesKaufmann/html-to-markdown/v2/plugin/table"
	"github.com/microcosm-cc/bluemonday"
	"golang.org/x/net/html"
)

// normalizer turns an engine's extracted HTML into markdown. The engines
// render their answers as markdown-turned-HTML, so converting back recovers
// structure (code blocks, lists, tables) that a raw innerText read would
// flatten. The HTML is sanitized first: it comes from a page chorus does
// not control.
type normalizer struct {
	policy *bluemonday.Policy
	conv   *converter.Converter
}

func newNormalizer() *normalizer {
	return &normalizer{
		policy: bluemonday.UGCPolicy(),
		conv: converter.NewConverter(
			converter.WithPlugins(
				base.NewBasePlugin(),
				commonmark.NewCommonmarkPlugin(),
				table.NewTablePlugin(),
			),
		),
	}
}

// Markdown converts extracted HTML to markdown, falling back to a visible-
// text walk when conversion produces nothing usable.
func (n *normalizer) Markdown(rawHTML, sourceURL string) string {
	if strings.TrimSpace(rawHTML) == "" {
		return ""
	}

	sanitized := n.policy.Sanitize(rawHTML)
	md, err := n.conv.ConvertString(sanitized, converter.WithDomain(sourceURL))
	if err == nil && strings.TrimSpace(md) != "" {
		return strings.TrimSpace(md)
	}
	return visibleText(rawHTML)
}

// visibleText extracts all rendered text from an HTML fragment, skipping
// script/style subtrees. Last-resort path when markdown conversion fails.
func visibleText(fragment string) string {
	doc, err := html.Parse(strings.NewReader(fragment))
	if err != nil {
		return strings.TrimSpace(fragment)
	}

	var sb strings.Builder
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.TextNode {
			if text := strings.TrimSpace(n.Data); text != "" {
				if sb.Len() > 0 {
					sb.WriteByte(' ')
				}
				sb.WriteString(text)
			}
		}
		if n.Type == html.ElementNode {
			switch n.Data {
			case "script", "style", "noscript":
				return
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(doc)
	return sb.String()
}
