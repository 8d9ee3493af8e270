// Package browser is the remote page client. It attaches to an already
// running Chrome instance through its debugging endpoint, enumerates open
// tabs, and evaluates scripts inside a tab's page context.
//
// Nothing here owns the browser process: chorus rides along in whatever
// browser the user already has open, one short-lived session per tab.
package browser

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/proto"
	"github.com/go-rod/stealth"
)

// ErrConnectivity marks failures to reach the browser debugging endpoint.
// Callers treat it as fatal for the current run; it is never retried here.
var ErrConnectivity = errors.New("browser: debugging endpoint unreachable")

// Target describes one open tab as reported by the debugging endpoint.
// Targets are transient: the set mutates out-of-band, so callers must
// re-enumerate on every discovery and never cache across runs.
type Target struct {
	ID    string `json:"id"`
	Type  string `json:"type"`
	URL   string `json:"url"`
	Title string `json:"title"`
}

// Config configures a Client.
type Config struct {
	// ControlURL is the debugging endpoint: either a ws:// devtools URL or
	// an http(s):// address such as http://127.0.0.1:9222, which is
	// resolved via /json/version. Default: http://127.0.0.1:9222.
	ControlURL string

	// NavTimeout bounds navigation when opening new tabs. Default: 30s.
	NavTimeout time.Duration

	Logger *slog.Logger
}

func (c *Config) defaults() {
	if c.ControlURL == "" {
		c.ControlURL = "http://127.0.0.1:9222"
	}
	if c.NavTimeout <= 0 {
		c.NavTimeout = 30 * time.Second
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
}

// Client is a connection to one browser debugging endpoint.
type Client struct {
	cfg     Config
	browser *rod.Browser
	cancel  context.CancelFunc
}

// Connect dials the debugging endpoint. Connection refusal wraps
// ErrConnectivity so callers can distinguish it from evaluation failures.
func Connect(ctx context.Context, cfg Config) (*Client, error) {
	cfg.defaults()

	wsURL := cfg.ControlURL
	if !strings.HasPrefix(wsURL, "ws://") && !strings.HasPrefix(wsURL, "wss://") {
		resolved, err := launcher.ResolveURL(wsURL)
		if err != nil {
			return nil, fmt.Errorf("%w: resolve %s: %v", ErrConnectivity, cfg.ControlURL, err)
		}
		wsURL = resolved
	}

	cctx, cancel := context.WithCancel(ctx)
	b := rod.New().ControlURL(wsURL).Context(cctx)
	if err := b.Connect(); err != nil {
		cancel()
		return nil, fmt.Errorf("%w: connect %s: %v", ErrConnectivity, wsURL, err)
	}

	cfg.Logger.Debug("browser: connected", "url", wsURL)
	return &Client{cfg: cfg, browser: b, cancel: cancel}, nil
}

// Targets lists the currently open page targets. The listing is fresh on
// every call; background targets (workers, extensions) are filtered out.
func (c *Client) Targets(ctx context.Context) ([]Target, error) {
	res, err := proto.TargetGetTargets{}.Call(c.browser.Context(ctx))
	if err != nil {
		return nil, fmt.Errorf("%w: list targets: %v", ErrConnectivity, err)
	}

	targets := make([]Target, 0, len(res.TargetInfos))
	for _, info := range res.TargetInfos {
		if info.Type != "page" {
			continue
		}
		targets = append(targets, Target{
			ID:    string(info.TargetID),
			Type:  string(info.Type),
			URL:   info.URL,
			Title: info.Title,
		})
	}
	return targets, nil
}

// Session attaches to an existing tab and returns a handle for script
// evaluation. The caller must Close it on every exit path.
func (c *Client) Session(ctx context.Context, targetID string) (*Session, error) {
	page, err := c.browser.PageFromTarget(proto.TargetTargetID(targetID))
	if err != nil {
		return nil, fmt.Errorf("browser: attach target %s: %w", targetID, err)
	}
	return &Session{
		page:    page.Context(ctx),
		browser: c.browser,
		logger:  c.cfg.Logger,
	}, nil
}

// OpenTab creates a new stealth tab and navigates it to url. Load timeouts
// are tolerated: chat pages stream output and may never fire load events
// in a bounded window.
func (c *Client) OpenTab(ctx context.Context, url string) (Target, error) {
	page, err := stealth.Page(c.browser.Context(ctx))
	if err != nil {
		return Target{}, fmt.Errorf("browser: create tab: %w", err)
	}

	navCtx, cancel := context.WithTimeout(ctx, c.cfg.NavTimeout)
	defer cancel()

	if err := page.Context(navCtx).Navigate(url); err != nil {
		page.Close()
		return Target{}, fmt.Errorf("browser: navigate %s: %w", url, err)
	}
	if err := page.Context(navCtx).WaitLoad(); err != nil {
		c.cfg.Logger.Warn("browser: wait load timeout", "url", url, "error", err)
	}

	info, err := page.Info()
	if err != nil {
		return Target{ID: string(page.TargetID), Type: "page", URL: url}, nil
	}
	return Target{
		ID:    string(info.TargetID),
		Type:  "page",
		URL:   info.URL,
		Title: info.Title,
	}, nil
}

// Close drops the debugging connection. It deliberately avoids
// Browser.close: the browser belongs to the user, not to chorus.
func (c *Client) Close() error {
	if c.cancel != nil {
		c.cancel()
		c.cancel = nil
	}
	return nil
}
