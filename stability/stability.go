// Package stability implements convergence detection over a repeatedly
// sampled external value. The chat pages chorus reads offer no "generation
// finished" event, so done-ness is defined operationally: the rendered
// answer text stopped changing across enough consecutive polls.
//
// Converge is deliberately generic (a read function, an interval, a
// threshold, a deadline) so any future engine profile reuses it without
// bespoke code.
package stability

import (
	"context"
	"log/slog"
	"time"
)

// Status classifies a convergence outcome.
type Status string

const (
	// StatusStable: the value was identical across Threshold consecutive
	// polls. This is the engine's de-facto completion signal.
	StatusStable Status = "stable"
	// StatusPartial: the deadline passed with a non-empty value observed
	// but never stabilized. The last value is returned as a degraded
	// result, not an error.
	StatusPartial Status = "partial"
	// StatusNone: nothing non-empty was ever observed before the deadline.
	StatusNone Status = "none"
)

// Policy tunes one convergence run. The defaults are heuristics, not
// derived constants; callers with slow or bursty engines should tune them.
type Policy struct {
	// Interval between polls. Short enough to catch completion promptly,
	// long enough not to hammer the page's render thread. Default: 2s.
	Interval time.Duration

	// Threshold is the number of consecutive identical non-empty polls
	// that counts as converged. Default: 3.
	Threshold int

	// Deadline bounds the whole run. Default: 120s.
	Deadline time.Duration

	Logger *slog.Logger
}

func (p *Policy) defaults() {
	if p.Interval <= 0 {
		p.Interval = 2 * time.Second
	}
	if p.Threshold <= 0 {
		p.Threshold = 3
	}
	if p.Deadline <= 0 {
		p.Deadline = 120 * time.Second
	}
	if p.Logger == nil {
		p.Logger = slog.Default()
	}
}

// Outcome is the result of one convergence run.
type Outcome struct {
	Status Status
	// Text is the last non-empty value observed. Empty iff Status is
	// StatusNone.
	Text string
	// Polls counts read attempts, including failed ones.
	Polls int
}

// Converge polls read until the returned value is identical across
// pol.Threshold consecutive polls, the deadline passes, or ctx is done.
//
// Rules, in order of precedence:
//   - a read error is logged and polling continues; errors reset the
//     stable counter (an unobserved value is not evidence of stability)
//     but never discard previously seen text
//   - an empty value resets the counter without overwriting the last
//     non-empty text; engines drop to empty mid-re-render
//   - any changed value becomes the new candidate and counts as the first
//     poll of its identical run, so Threshold identical polls total are
//     enough; the value is never returned on the poll it changed
//   - ctx expiry is treated like the deadline: best value so far wins
func Converge(ctx context.Context, read func(context.Context) (string, error), pol Policy) Outcome {
	pol.defaults()

	deadline := time.Now().Add(pol.Deadline)
	var (
		lastText    string
		stableCount int
		polls       int
	)

	for time.Now().Before(deadline) {
		text, err := read(ctx)
		polls++

		switch {
		case err != nil:
			pol.Logger.Debug("stability: poll failed", "poll", polls, "error", err)
			stableCount = 0
		case text == "":
			stableCount = 0
		case text == lastText:
			stableCount++
			if stableCount >= pol.Threshold {
				return Outcome{Status: StatusStable, Text: lastText, Polls: polls}
			}
		default:
			// The changed poll is the first of the candidate's identical
			// run. Stability is only ever declared on a confirming poll.
			lastText = text
			stableCount = 1
		}

		select {
		case <-ctx.Done():
			return settle(lastText, polls)
		case <-time.After(pol.Interval):
		}
	}

	return settle(lastText, polls)
}

func settle(lastText string, polls int) Outcome {
	if lastText == "" {
		return Outcome{Status: StatusNone, Polls: polls}
	}
	return Outcome{Status: StatusPartial, Text: lastText, Polls: polls}
}
