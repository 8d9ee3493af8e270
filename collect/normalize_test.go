package collect

import (
	"strings"
	"testing"
)

func TestMarkdownConvertsStructure(t *testing.T) {
	n := newNormalizer()
	md := n.Markdown(`<h2>Plan</h2><ul><li>first</li><li>second</li></ul><pre><code>go build</code></pre>`,
		"https://alpha.example/")

	for _, want := range []string{"## Plan", "- first", "- second", "go build"} {
		if !strings.Contains(md, want) {
			t.Errorf("markdown missing %q:\n%s", want, md)
		}
	}
}

func TestMarkdownStripsScripts(t *testing.T) {
	n := newNormalizer()
	md := n.Markdown(`<p>safe text</p><script>alert(1)</script>`, "https://alpha.example/")

	if !strings.Contains(md, "safe text") {
		t.Errorf("markdown lost content: %q", md)
	}
	if strings.Contains(md, "alert") {
		t.Errorf("script content leaked: %q", md)
	}
}

func TestMarkdownResolvesRelativeLinks(t *testing.T) {
	n := newNormalizer()
	md := n.Markdown(`<a href="/docs">docs</a>`, "https://alpha.example/chat")

	if !strings.Contains(md, "https://alpha.example/docs") {
		t.Errorf("relative link not resolved: %q", md)
	}
}

func TestMarkdownEmptyInput(t *testing.T) {
	n := newNormalizer()
	if got := n.Markdown("   \n\t", "https://alpha.example/"); got != "" {
		t.Errorf("Markdown(whitespace) = %q, want empty", got)
	}
}

func TestVisibleText(t *testing.T) {
	got := visibleText(`<div><p>one</p><script>skip()</script><p>two</p></div>`)
	if got != "one two" {
		t.Errorf("visibleText = %q, want %q", got, "one two")
	}
}
