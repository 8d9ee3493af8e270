// Package collect runs the collection pipeline: discover the open engine
// tabs, poll each engine's rendered answer to convergence, persist every
// result as it lands, and synthesize a cross-engine analysis when enough
// engines answered.
//
// One Pipeline.Run is one collection run. Engines are processed strictly
// in registry order with one debugging session open at a time; per-engine
// failures are isolated and only a discovery-time connectivity failure is
// fatal.
package collect

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"chorus/browser"
	"chorus/engine"
	"chorus/runstore"
	"chorus/stability"
	"chorus/synth"
)

// Status classifies one engine's extraction outcome.
type Status string

const (
	// StatusOK: the answer stabilized before the deadline.
	StatusOK Status = "ok"
	// StatusFailed: no answer was ever observed (extraction errored or
	// returned empty throughout).
	StatusFailed Status = "failed"
	// StatusNoTab: no open tab matched the engine's URL pattern.
	StatusNoTab Status = "no_tab"
	// StatusTimeoutPartial: an answer was observed but never stabilized;
	// the last text is kept as a degraded result.
	StatusTimeoutPartial Status = "timeout_partial"
)

// ExtractionResult is one engine's outcome within a run. Text is non-empty
// only for StatusOK and StatusTimeoutPartial.
type ExtractionResult struct {
	Engine    string `json:"engine"`
	Slug      string `json:"slug"`
	Status    Status `json:"status"`
	Text      string `json:"text,omitempty"`
	CharCount int    `json:"char_count"`
	TabURL    string `json:"tab_url,omitempty"`
}

// Run is one finished collection run.
type Run struct {
	Query     string
	StartedAt time.Time
	FolderID  string
	Dir       string
	Results   []ExtractionResult
	// Synthesis is nil when synthesis was skipped or failed.
	Synthesis *string
}

// OKCount counts engines that produced a stable answer.
func (r *Run) OKCount() int {
	n := 0
	for _, res := range r.Results {
		if res.Status == StatusOK {
			n++
		}
	}
	return n
}

// Config configures a Pipeline. Everything is explicit so multiple
// pipelines (e.g. under test) never share ambient state.
type Config struct {
	Registry *engine.Registry
	Store    *runstore.Store

	// Index is the optional run history; index failures are logged, never
	// fatal.
	Index *runstore.Index

	// Synthesizer produces the cross-engine analysis. Nil disables
	// synthesis entirely.
	Synthesizer *synth.Synthesizer

	// Poll tunes the stability extractor. Zero values take the package
	// defaults (2s interval, threshold 3, 120s deadline).
	Poll stability.Policy

	// MinSynthesisAnswers gates synthesis. Default: 2.
	MinSynthesisAnswers int

	// Report, when set, is invoked with the finished run after
	// persistence. The seam for external report rendering.
	Report func(*Run)

	Logger *slog.Logger
}

func (c *Config) defaults() {
	if c.Registry == nil {
		c.Registry = engine.Default()
	}
	if c.MinSynthesisAnswers <= 0 {
		c.MinSynthesisAnswers = 2
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
}

// Pipeline executes collection runs.
type Pipeline struct {
	cfg    Config
	b      Browser
	events *Router
	norm   *normalizer
}

// NewPipeline creates a Pipeline over a connected browser.
func NewPipeline(cfg Config, b Browser, sinks ...Sink) *Pipeline {
	cfg.defaults()
	return &Pipeline{
		cfg:    cfg,
		b:      b,
		events: NewRouter(cfg.Logger, sinks...),
		norm:   newNormalizer(),
	}
}

// Run executes one collection run to completion. Only tab discovery can
// fail the run; every later failure degrades into a per-engine result or a
// missing synthesis. On success the run directory holds the query, one file
// per configured engine, and the synthesis when produced.
func (p *Pipeline) Run(ctx context.Context) (*Run, error) {
	log := p.cfg.Logger

	// Tab discovery is the only fatal step. No output directory exists
	// until it has succeeded.
	tabs, err := p.b.Targets(ctx)
	if err != nil {
		return nil, fmt.Errorf("collect: discover tabs: %w", err)
	}
	log.Info("collect: discovered tabs", "count", len(tabs))

	// Query recovery is best effort and never blocks the run.
	query := recoverQuery(tabs, p.cfg.Registry)
	startedAt := time.Now().UTC()

	runDir, err := p.cfg.Store.CreateRun(query, startedAt)
	if err != nil {
		return nil, fmt.Errorf("collect: %w", err)
	}

	run := &Run{
		Query:     query,
		StartedAt: startedAt,
		FolderID:  runDir.FolderID,
		Dir:       runDir.Dir,
	}

	if err := runDir.WriteQuery(runstore.FileMeta{
		Source:     "chorus",
		CapturedAt: startedAt,
		Query:      query,
	}); err != nil {
		log.Error("collect: persist query", "error", err)
	}

	profiles := p.cfg.Registry.Profiles()
	engineNames := make([]string, len(profiles))
	for i, prof := range profiles {
		engineNames[i] = prof.Name
	}
	p.events.Publish(Event{Type: EventStarted, Query: query, Engines: engineNames})

	// Per-engine extraction, strictly in registry order, one session at a
	// time. Each result is persisted immediately so partial progress
	// survives anything that happens later.
	answerPaths := make(map[string]string)
	for _, prof := range profiles {
		res := p.extractEngine(ctx, prof, tabs)
		run.Results = append(run.Results, res)

		body := res.Text
		if err := runDir.WriteAnswer(prof.Slug, runstore.FileMeta{
			Source:     prof.Name,
			URL:        res.TabURL,
			CapturedAt: time.Now().UTC(),
			Query:      query,
		}, body); err != nil {
			log.Error("collect: persist answer", "engine", prof.Slug, "error", err)
		} else if res.Status == StatusOK {
			answerPaths[prof.Slug] = runDir.Path(prof.Slug + ".md")
		}

		log.Info("collect: engine done",
			"engine", prof.Slug, "status", res.Status, "chars", res.CharCount)
		p.events.Publish(Event{
			Type:      EventEngineDone,
			Engine:    prof.Name,
			Status:    res.Status,
			CharCount: res.CharCount,
		})
	}

	// Synthesis runs only with enough independent answers to reconcile.
	p.synthesize(ctx, run, runDir, answerPaths)

	p.recordRun(ctx, run)

	// Presentation is someone else's concern; the hook is the boundary.
	if p.cfg.Report != nil {
		p.cfg.Report(run)
	}

	p.events.Publish(Event{Type: EventComplete, Results: run.Results})
	log.Info("collect: run complete",
		"folder", run.FolderID, "ok", run.OKCount(), "synthesized", run.Synthesis != nil)
	return run, nil
}

// extractEngine runs match + poll-extract for one engine. All failure modes
// degrade into a result status; nothing here can abort the run.
func (p *Pipeline) extractEngine(ctx context.Context, prof engine.Profile, tabs []browser.Target) ExtractionResult {
	log := p.cfg.Logger.With("engine", prof.Slug)
	res := ExtractionResult{Engine: prof.Name, Slug: prof.Slug}

	// First matching tab wins; tabs are in browser order.
	var tab *browser.Target
	for i := range tabs {
		if prof.URLMatch.MatchString(tabs[i].URL) {
			tab = &tabs[i]
			break
		}
	}
	if tab == nil {
		res.Status = StatusNoTab
		return res
	}
	res.TabURL = tab.URL

	sess, err := p.b.Session(ctx, tab.ID)
	if err != nil {
		log.Warn("collect: attach failed", "error", err)
		res.Status = StatusFailed
		return res
	}
	defer sess.Close()

	outcome := stability.Converge(ctx, func(ctx context.Context) (string, error) {
		return sess.Eval(ctx, prof.ExtractScript, browser.EvalOptions{ByValue: true})
	}, p.pollPolicy(log))

	switch outcome.Status {
	case stability.StatusStable:
		res.Status = StatusOK
	case stability.StatusPartial:
		res.Status = StatusTimeoutPartial
		log.Warn("collect: answer never stabilized, keeping partial", "polls", outcome.Polls)
	default:
		res.Status = StatusFailed
		log.Warn("collect: no answer found", "polls", outcome.Polls)
		return res
	}

	text := outcome.Text
	if prof.Format == engine.FormatHTML {
		text = p.norm.Markdown(text, tab.URL)
	}
	res.Text = text
	res.CharCount = len([]rune(text))
	return res
}

func (p *Pipeline) pollPolicy(log *slog.Logger) stability.Policy {
	pol := p.cfg.Poll
	pol.Logger = log
	return pol
}

// synthesize runs the synthesis step when at least MinSynthesisAnswers
// engines produced a stable answer. Failure is reported, never fatal.
func (p *Pipeline) synthesize(ctx context.Context, run *Run, runDir *runstore.Run, answerPaths map[string]string) {
	log := p.cfg.Logger

	if p.cfg.Synthesizer == nil {
		return
	}
	if run.OKCount() < p.cfg.MinSynthesisAnswers {
		log.Info("collect: skipping synthesis",
			"ok", run.OKCount(), "required", p.cfg.MinSynthesisAnswers)
		return
	}

	p.events.Publish(Event{Type: EventSynthesizing})

	var refs []synth.AnswerRef
	for _, res := range run.Results {
		if res.Status != StatusOK {
			continue
		}
		if path, ok := answerPaths[res.Slug]; ok {
			refs = append(refs, synth.AnswerRef{Engine: res.Engine, Path: path})
		}
	}

	analysis, err := p.cfg.Synthesizer.Synthesize(ctx, run.Query, refs)
	if err != nil {
		log.Error("collect: synthesis failed, run continues", "error", err)
		return
	}

	if err := runDir.WriteSynthesis(runstore.FileMeta{
		Source:     "synthesis",
		CapturedAt: time.Now().UTC(),
		Query:      run.Query,
	}, analysis); err != nil {
		log.Error("collect: persist synthesis", "error", err)
		return
	}
	run.Synthesis = &analysis
}

// recordRun appends the run to the history index. Best effort.
func (p *Pipeline) recordRun(ctx context.Context, run *Run) {
	if p.cfg.Index == nil {
		return
	}
	err := p.cfg.Index.Record(ctx, runstore.RunSummary{
		FolderID:     run.FolderID,
		Query:        run.Query,
		StartedAt:    run.StartedAt,
		EnginesTotal: len(run.Results),
		EnginesOK:    run.OKCount(),
		Synthesized:  run.Synthesis != nil,
	})
	if err != nil {
		p.cfg.Logger.Warn("collect: run index write failed", "error", err)
	}
}

// Close releases the event sinks. The pipeline holds no other resources.
func (p *Pipeline) Close() {
	p.events.Close()
}
