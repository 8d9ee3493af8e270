package synth

import (
	"fmt"
	"strings"
)

// rubric is the fixed analytical frame every synthesis request carries.
// The attached files hold the raw per-engine answers; the rubric tells the
// model what a useful cross-engine analysis looks like.
const rubric = `You are given the same question answered independently by several AI engines.
The answers are attached as files, one per engine. Produce a single cross-engine analysis:

1. Reconcile the answers: where do the engines agree, and where do they diverge?
2. Flag claims made by only one engine or unsupported by the others.
3. Separate the high-confidence core answer from speculative content.
4. Identify coverage gaps: aspects of the question no engine addressed.
5. Assess strategic trade-offs where the answers recommend different approaches.

Be specific about which engine said what. Do not pad; omit sections with nothing to report.`

// BuildPrompt assembles the synthesis prompt for a query and its collected
// answers.
func BuildPrompt(query string, answers []AnswerRef) string {
	var b strings.Builder
	b.WriteString(rubric)
	b.WriteString("\n\nOriginal question:\n")
	b.WriteString(query)
	b.WriteString("\n\nAttached answers:\n")
	for _, a := range answers {
		fmt.Fprintf(&b, "- %s: %s\n", a.Engine, a.Path)
	}
	return b.String()
}
