package browser

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/proto"
)

// EvalError reports a failed script evaluation: the script threw, the page
// navigated mid-call, or the tab went away. Transient; callers polling a
// rendering page are expected to log it and try again.
type EvalError struct {
	TargetID string
	Err      error
}

func (e *EvalError) Error() string {
	return fmt.Sprintf("browser: eval on %s: %v", e.TargetID, e.Err)
}

func (e *EvalError) Unwrap() error { return e.Err }

// EvalOptions control one script evaluation.
type EvalOptions struct {
	// ByValue requests the result serialized by value rather than as a
	// remote object reference.
	ByValue bool
	// AwaitPromise waits for a returned promise to settle before
	// serializing the result. Needed for activation scripts that resolve
	// after a UI round-trip.
	AwaitPromise bool
}

// Session is a short-lived debugging session attached to one tab. Sessions
// are never shared across engines or reused across polls beyond a single
// extraction call; Close detaches without touching the tab itself.
type Session struct {
	page    *rod.Page
	browser *rod.Browser
	logger  *slog.Logger

	closeOnce sync.Once
}

// TargetID reports the tab this session is attached to.
func (s *Session) TargetID() string {
	return string(s.page.TargetID)
}

// Eval runs js (a page-side function expression) in the tab and returns the
// result coerced to string. Failures come back as *EvalError, never a panic:
// mid-render DOM churn makes throwing scripts an expected condition.
func (s *Session) Eval(ctx context.Context, js string, opts EvalOptions) (string, error) {
	res, err := s.page.Context(ctx).Evaluate(&rod.EvalOptions{
		JS:           js,
		ByValue:      opts.ByValue,
		AwaitPromise: opts.AwaitPromise,
	})
	if err != nil {
		return "", &EvalError{TargetID: s.TargetID(), Err: err}
	}
	if res == nil || res.Value.Nil() {
		return "", nil
	}
	return res.Value.Str(), nil
}

// Close detaches the debugging session. Idempotent, and safe on every exit
// path; the tab stays open for the user.
func (s *Session) Close() error {
	s.closeOnce.Do(func() {
		err := proto.TargetDetachFromTarget{SessionID: s.page.SessionID}.Call(s.browser)
		if err != nil {
			// Already detached or tab closed: nothing to leak either way.
			s.logger.Debug("browser: detach session", "target", s.TargetID(), "error", err)
		}
	})
	return nil
}
