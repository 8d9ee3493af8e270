package collect

import (
	"context"
	"errors"
	"os"
	"regexp"
	"strings"
	"testing"
	"time"

	"chorus/browser"
	"chorus/engine"
	"chorus/runstore"
	"chorus/stability"
	"chorus/synth"
)

// fakeSession drives the poll loop with a scripted read function.
type fakeSession struct {
	fn     func(call int) (string, error)
	calls  int
	closed bool
}

func (s *fakeSession) Eval(_ context.Context, _ string, _ browser.EvalOptions) (string, error) {
	call := s.calls
	s.calls++
	return s.fn(call)
}

func (s *fakeSession) Close() error {
	s.closed = true
	return nil
}

type fakeBrowser struct {
	targets    []browser.Target
	targetsErr error
	sessions   map[string]*fakeSession
	attachErr  map[string]error
}

func (b *fakeBrowser) Targets(_ context.Context) ([]browser.Target, error) {
	if b.targetsErr != nil {
		return nil, b.targetsErr
	}
	return b.targets, nil
}

func (b *fakeBrowser) Session(_ context.Context, id string) (Session, error) {
	if err := b.attachErr[id]; err != nil {
		return nil, err
	}
	s, ok := b.sessions[id]
	if !ok {
		return nil, errors.New("unknown target " + id)
	}
	return s, nil
}

func steady(text string) func(int) (string, error) {
	return func(int) (string, error) { return text, nil }
}

func neverSettles() func(int) (string, error) {
	return func(call int) (string, error) {
		return strings.Repeat("x", call+1), nil
	}
}

func alwaysErr(err error) func(int) (string, error) {
	return func(int) (string, error) { return "", err }
}

func textProfile(name, slug, host string) engine.Profile {
	return engine.Profile{
		Name:          name,
		Slug:          slug,
		URLMatch:      regexp.MustCompile(`https://` + host + `/`),
		ExtractScript: "() => ''",
		Format:        engine.FormatText,
	}
}

func fastPoll() stability.Policy {
	return stability.Policy{
		Interval:  time.Millisecond,
		Threshold: 2,
		Deadline:  250 * time.Millisecond,
	}
}

func testPipeline(t *testing.T, reg *engine.Registry, b Browser, mut func(*Config), sinks ...Sink) (*Pipeline, string) {
	t.Helper()
	root := t.TempDir()
	cfg := Config{
		Registry: reg,
		Store:    &runstore.Store{Root: root},
		Poll:     fastPoll(),
	}
	if mut != nil {
		mut(&cfg)
	}
	p := NewPipeline(cfg, b, sinks...)
	t.Cleanup(p.Close)
	return p, root
}

func echoSynth() *synth.Synthesizer {
	return synth.New(synth.Config{
		Command: "sh",
		Args:    []string{"-c", "echo combined analysis"},
		Timeout: 5 * time.Second,
	})
}

func TestRunCollectsAndSynthesizes(t *testing.T) {
	reg := engine.NewRegistry([]engine.Profile{
		textProfile("Alpha", "alpha", "alpha.example"),
		textProfile("Beta", "beta", "beta.example"),
		textProfile("Gamma", "gamma", "gamma.example"),
		textProfile("Delta", "delta", "delta.example"),
	}, nil)

	fb := &fakeBrowser{
		targets: []browser.Target{
			{ID: "t1", URL: "https://alpha.example/chat?q=pick+a+database"},
			{ID: "t2", URL: "https://beta.example/session"},
			{ID: "t3", URL: "https://gamma.example/c/abc"},
		},
		sessions: map[string]*fakeSession{
			"t1": {fn: steady("answer one")},
			"t2": {fn: steady("answer two")},
			"t3": {fn: steady("answer three")},
		},
	}

	p, _ := testPipeline(t, reg, fb, func(c *Config) {
		c.Synthesizer = echoSynth()
	})

	run, err := p.Run(context.Background())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	if run.Query != "pick a database" {
		t.Errorf("query = %q, want recovered from tab URL", run.Query)
	}
	if !strings.HasSuffix(run.FolderID, "_pick-a-database") {
		t.Errorf("folder id = %q, want query slug suffix", run.FolderID)
	}

	wantSlugs := []string{"alpha", "beta", "gamma", "delta"}
	wantStatus := []Status{StatusOK, StatusOK, StatusOK, StatusNoTab}
	if len(run.Results) != len(wantSlugs) {
		t.Fatalf("results = %d, want %d", len(run.Results), len(wantSlugs))
	}
	for i, res := range run.Results {
		if res.Slug != wantSlugs[i] {
			t.Errorf("result %d slug = %q, want %q (registry order)", i, res.Slug, wantSlugs[i])
		}
		if res.Status != wantStatus[i] {
			t.Errorf("result %d status = %q, want %q", i, res.Status, wantStatus[i])
		}
	}

	if run.Synthesis == nil || !strings.Contains(*run.Synthesis, "combined analysis") {
		t.Errorf("synthesis = %v, want analysis text", run.Synthesis)
	}

	entries, err := os.ReadDir(run.Dir)
	if err != nil {
		t.Fatalf("read run dir: %v", err)
	}
	if len(entries) != 6 {
		t.Errorf("run dir holds %d files, want 6 (prompt, 4 engines, synthesis)", len(entries))
	}

	placeholder, err := os.ReadFile(run.Dir + "/delta.md")
	if err != nil {
		t.Fatalf("read delta.md: %v", err)
	}
	if !strings.Contains(string(placeholder), "(no response collected)") {
		t.Errorf("delta.md missing placeholder:\n%s", placeholder)
	}

	for id, sess := range fb.sessions {
		if !sess.closed {
			t.Errorf("session %s left open", id)
		}
	}
}

func TestRunConnectivityFailureIsFatal(t *testing.T) {
	reg := engine.NewRegistry([]engine.Profile{
		textProfile("Alpha", "alpha", "alpha.example"),
	}, nil)
	fb := &fakeBrowser{targetsErr: errors.New("connection refused")}

	p, root := testPipeline(t, reg, fb, nil)

	if _, err := p.Run(context.Background()); err == nil {
		t.Fatal("Run succeeded with unreachable browser")
	}

	entries, err := os.ReadDir(root)
	if err != nil {
		t.Fatalf("read root: %v", err)
	}
	if len(entries) != 0 {
		t.Errorf("run dir created before discovery succeeded: %v", entries)
	}
}

func TestRunScriptFailureDegrades(t *testing.T) {
	reg := engine.NewRegistry([]engine.Profile{
		textProfile("Alpha", "alpha", "alpha.example"),
	}, nil)
	fb := &fakeBrowser{
		targets: []browser.Target{{ID: "t1", URL: "https://alpha.example/"}},
		sessions: map[string]*fakeSession{
			"t1": {fn: alwaysErr(errors.New("selector threw"))},
		},
	}

	p, _ := testPipeline(t, reg, fb, nil)

	run, err := p.Run(context.Background())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if run.Results[0].Status != StatusFailed {
		t.Errorf("status = %q, want %q", run.Results[0].Status, StatusFailed)
	}

	body, err := os.ReadFile(run.Dir + "/alpha.md")
	if err != nil {
		t.Fatalf("read alpha.md: %v", err)
	}
	if !strings.Contains(string(body), "(no response collected)") {
		t.Errorf("failed engine file missing placeholder:\n%s", body)
	}
}

func TestRunAttachFailureDegrades(t *testing.T) {
	reg := engine.NewRegistry([]engine.Profile{
		textProfile("Alpha", "alpha", "alpha.example"),
	}, nil)
	fb := &fakeBrowser{
		targets:   []browser.Target{{ID: "t1", URL: "https://alpha.example/"}},
		attachErr: map[string]error{"t1": errors.New("target gone")},
	}

	p, _ := testPipeline(t, reg, fb, nil)

	run, err := p.Run(context.Background())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if run.Results[0].Status != StatusFailed {
		t.Errorf("status = %q, want %q", run.Results[0].Status, StatusFailed)
	}
}

func TestRunKeepsPartialOnTimeout(t *testing.T) {
	reg := engine.NewRegistry([]engine.Profile{
		textProfile("Alpha", "alpha", "alpha.example"),
	}, nil)
	fb := &fakeBrowser{
		targets: []browser.Target{{ID: "t1", URL: "https://alpha.example/"}},
		sessions: map[string]*fakeSession{
			"t1": {fn: neverSettles()},
		},
	}

	p, _ := testPipeline(t, reg, fb, nil)

	run, err := p.Run(context.Background())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	res := run.Results[0]
	if res.Status != StatusTimeoutPartial {
		t.Fatalf("status = %q, want %q", res.Status, StatusTimeoutPartial)
	}
	if res.Text == "" {
		t.Error("partial result lost its text")
	}

	body, err := os.ReadFile(run.Dir + "/alpha.md")
	if err != nil {
		t.Fatalf("read alpha.md: %v", err)
	}
	if !strings.Contains(string(body), res.Text) {
		t.Error("partial text not persisted")
	}
}

func TestRunNormalizesHTMLAnswers(t *testing.T) {
	prof := textProfile("Alpha", "alpha", "alpha.example")
	prof.Format = engine.FormatHTML
	reg := engine.NewRegistry([]engine.Profile{prof}, nil)

	fb := &fakeBrowser{
		targets: []browser.Target{{ID: "t1", URL: "https://alpha.example/"}},
		sessions: map[string]*fakeSession{
			"t1": {fn: steady("<p>Hello <strong>world</strong></p>")},
		},
	}

	p, _ := testPipeline(t, reg, fb, nil)

	run, err := p.Run(context.Background())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if got := run.Results[0].Text; !strings.Contains(got, "**world**") {
		t.Errorf("text = %q, want markdown conversion", got)
	}
}

func TestSynthesisRequiresTwoAnswers(t *testing.T) {
	reg := engine.NewRegistry([]engine.Profile{
		textProfile("Alpha", "alpha", "alpha.example"),
		textProfile("Beta", "beta", "beta.example"),
	}, nil)
	fb := &fakeBrowser{
		targets: []browser.Target{{ID: "t1", URL: "https://alpha.example/"}},
		sessions: map[string]*fakeSession{
			"t1": {fn: steady("only answer")},
		},
	}

	p, _ := testPipeline(t, reg, fb, func(c *Config) {
		c.Synthesizer = echoSynth()
	})

	run, err := p.Run(context.Background())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if run.Synthesis != nil {
		t.Error("synthesis produced from a single answer")
	}
	if _, err := os.Stat(run.Dir + "/synthesis.md"); !os.IsNotExist(err) {
		t.Error("synthesis.md written despite gate")
	}
}

func TestSynthesisFailureDoesNotFailRun(t *testing.T) {
	reg := engine.NewRegistry([]engine.Profile{
		textProfile("Alpha", "alpha", "alpha.example"),
		textProfile("Beta", "beta", "beta.example"),
	}, nil)
	fb := &fakeBrowser{
		targets: []browser.Target{
			{ID: "t1", URL: "https://alpha.example/"},
			{ID: "t2", URL: "https://beta.example/"},
		},
		sessions: map[string]*fakeSession{
			"t1": {fn: steady("answer one")},
			"t2": {fn: steady("answer two")},
		},
	}

	p, _ := testPipeline(t, reg, fb, func(c *Config) {
		c.Synthesizer = synth.New(synth.Config{
			Command: "sh",
			Args:    []string{"-c", "echo broken >&2; exit 1"},
			Timeout: 5 * time.Second,
		})
	})

	run, err := p.Run(context.Background())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if run.Synthesis != nil {
		t.Error("failed synthesis still attached to run")
	}
	if run.OKCount() != 2 {
		t.Errorf("ok count = %d, want 2", run.OKCount())
	}
}

func TestRunEmitsLifecycleEvents(t *testing.T) {
	reg := engine.NewRegistry([]engine.Profile{
		textProfile("Alpha", "alpha", "alpha.example"),
		textProfile("Beta", "beta", "beta.example"),
	}, nil)
	fb := &fakeBrowser{
		targets: []browser.Target{
			{ID: "t1", URL: "https://alpha.example/"},
			{ID: "t2", URL: "https://beta.example/"},
		},
		sessions: map[string]*fakeSession{
			"t1": {fn: steady("answer one")},
			"t2": {fn: steady("answer two")},
		},
	}

	var got []EventType
	recorder := &CallbackSink{Fn: func(_ context.Context, ev Event) error {
		got = append(got, ev.Type)
		return nil
	}}
	// A broken sink must not disturb delivery to the next one.
	broken := &CallbackSink{Fn: func(_ context.Context, _ Event) error {
		return errors.New("sink down")
	}}

	p, _ := testPipeline(t, reg, fb, func(c *Config) {
		c.Synthesizer = echoSynth()
	}, broken, recorder)

	if _, err := p.Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}

	want := []EventType{EventStarted, EventEngineDone, EventEngineDone, EventSynthesizing, EventComplete}
	if len(got) != len(want) {
		t.Fatalf("events = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("event %d = %q, want %q", i, got[i], want[i])
		}
	}
}

func TestRunReportHook(t *testing.T) {
	reg := engine.NewRegistry([]engine.Profile{
		textProfile("Alpha", "alpha", "alpha.example"),
	}, nil)
	fb := &fakeBrowser{
		targets: []browser.Target{{ID: "t1", URL: "https://alpha.example/"}},
		sessions: map[string]*fakeSession{
			"t1": {fn: steady("answer")},
		},
	}

	var reported *Run
	p, _ := testPipeline(t, reg, fb, func(c *Config) {
		c.Report = func(r *Run) { reported = r }
	})

	run, err := p.Run(context.Background())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if reported != run {
		t.Error("report hook not invoked with the finished run")
	}
}
