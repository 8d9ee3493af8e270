package collect

import (
	"context"

	"chorus/browser"
)

// Browser is the pipeline's view of the debugging endpoint: list tabs,
// attach sessions. Narrow on purpose so tests can drive the whole state
// machine with a fake.
type Browser interface {
	Targets(ctx context.Context) ([]browser.Target, error)
	Session(ctx context.Context, targetID string) (Session, error)
}

// Session is one attached tab, scoped to a single extraction.
type Session interface {
	Eval(ctx context.Context, js string, opts browser.EvalOptions) (string, error)
	Close() error
}

// LiveBrowser additionally opens new tabs; the submit path needs it, plain
// collection does not.
type LiveBrowser interface {
	Browser
	OpenTab(ctx context.Context, url string) (browser.Target, error)
}

// rodBrowser adapts *browser.Client to the pipeline interfaces.
type rodBrowser struct {
	c *browser.Client
}

// WrapClient adapts a connected debugging client for pipeline use.
func WrapClient(c *browser.Client) LiveBrowser {
	return rodBrowser{c: c}
}

func (r rodBrowser) Targets(ctx context.Context) ([]browser.Target, error) {
	return r.c.Targets(ctx)
}

func (r rodBrowser) Session(ctx context.Context, targetID string) (Session, error) {
	s, err := r.c.Session(ctx, targetID)
	if err != nil {
		return nil, err
	}
	return s, nil
}

func (r rodBrowser) OpenTab(ctx context.Context, url string) (browser.Target, error) {
	return r.c.OpenTab(ctx, url)
}
