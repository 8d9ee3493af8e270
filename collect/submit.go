package collect

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"chorus/browser"
	"chorus/engine"
)

// submitRenderDelay gives a freshly opened tab time to render its composer
// before an activation script runs against it.
const submitRenderDelay = 3 * time.Second

// SubmitResult records what happened for one engine during submission.
type SubmitResult struct {
	Engine    string
	Slug      string
	TabURL    string
	Opened    bool
	Activated bool
	Err       error
}

// Submitter fans a prompt out to every engine that supports URL prefill:
// it opens one tab per engine with the prompt embedded in the URL, then
// runs the engine's activation script where one is required. Engines
// without a QueryURL are skipped; for those the user pastes the prompt by
// hand and runs plain collection afterwards.
type Submitter struct {
	reg    *engine.Registry
	b      LiveBrowser
	logger *slog.Logger

	// renderDelay is overridable in tests.
	renderDelay time.Duration
}

// NewSubmitter creates a Submitter over a connected browser.
func NewSubmitter(reg *engine.Registry, b LiveBrowser, logger *slog.Logger) *Submitter {
	if reg == nil {
		reg = engine.Default()
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Submitter{reg: reg, b: b, logger: logger, renderDelay: submitRenderDelay}
}

// Submit opens prompt-prefilled tabs for every capable engine and triggers
// the send control where the engine needs one. Per-engine failures are
// recorded, not fatal: a prompt that reached four of five engines is still
// worth collecting.
func (s *Submitter) Submit(ctx context.Context, query string) ([]SubmitResult, error) {
	if query == "" {
		return nil, fmt.Errorf("collect: submit: empty query")
	}

	var results []SubmitResult
	for _, prof := range s.reg.Profiles() {
		target := prof.PromptURL(query)
		if target == "" {
			continue
		}
		res := s.submitOne(ctx, prof, target)
		results = append(results, res)
		if ctx.Err() != nil {
			return results, fmt.Errorf("collect: submit: %w", ctx.Err())
		}
	}

	if len(results) == 0 {
		return nil, fmt.Errorf("collect: submit: no engine supports URL prefill")
	}
	return results, nil
}

func (s *Submitter) submitOne(ctx context.Context, prof engine.Profile, target string) SubmitResult {
	log := s.logger.With("engine", prof.Slug)
	res := SubmitResult{Engine: prof.Name, Slug: prof.Slug}

	tab, err := s.b.OpenTab(ctx, target)
	if err != nil {
		log.Warn("collect: submit open tab failed", "error", err)
		res.Err = err
		return res
	}
	res.Opened = true
	res.TabURL = tab.URL
	log.Info("collect: submit tab opened", "url", tab.URL)

	sub, ok := s.reg.SubmitterFor(target)
	if !ok {
		// The engine submits on load; nothing left to do.
		return res
	}

	// Let the composer render before touching it.
	select {
	case <-time.After(s.renderDelay):
	case <-ctx.Done():
		res.Err = ctx.Err()
		return res
	}

	sess, err := s.b.Session(ctx, tab.ID)
	if err != nil {
		log.Warn("collect: submit attach failed", "error", err)
		res.Err = err
		return res
	}
	defer sess.Close()

	// One shot: activation clicks send, and a repeated click would submit
	// the prompt twice.
	_, err = sess.Eval(ctx, sub.ActivationScript, browser.EvalOptions{
		ByValue:      true,
		AwaitPromise: sub.AwaitsAsyncResult,
	})
	if err != nil {
		log.Warn("collect: submit activation failed", "error", err)
		res.Err = err
		return res
	}
	res.Activated = true
	log.Info("collect: submit activated")
	return res
}
