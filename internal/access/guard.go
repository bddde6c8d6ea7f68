package access

import (
	"sync"

	"go.uber.org/zap"
)

const (
	// DefaultFallbackPath is where denied subjects are sent.
	DefaultFallbackPath = "/dashboard"
	// DefaultDeniedMessage is the notification shown on denial.
	DefaultDeniedMessage = "You do not have permission to access that page."
)

// Navigator receives redirect targets as opaque paths.
type Navigator interface {
	Redirect(path string)
}

// Notifier receives user-visible messages.
type Notifier interface {
	Notify(message string)
}

// NavigatorFunc adapts a function to Navigator.
type NavigatorFunc func(path string)

func (f NavigatorFunc) Redirect(path string) { f(path) }

// NotifierFunc adapts a function to Notifier.
type NotifierFunc func(message string)

func (f NotifierFunc) Notify(message string) { f(message) }

// Options configures what a Guard does on denial.
type Options struct {
	FallbackPath string
	Notify       bool
	Message      string
}

func (o Options) withDefaults() Options {
	if o.FallbackPath == "" {
		o.FallbackPath = DefaultFallbackPath
	}
	if o.Notify && o.Message == "" {
		o.Message = DefaultDeniedMessage
	}
	return o
}

// failingInput identifies one denial. A redirect fires once per value.
type failingInput struct {
	role Role
	req  PermissionRequest
	opts Options
}

func (f failingInput) equal(other failingInput) bool {
	return f.role == other.role && f.opts == other.opts && f.req.Equal(other.req)
}

// Guard evaluates one screen's permission request against successive
// session observations.
//
// Redirects are edge-triggered: the Navigator is called when the decision
// moves into denied for an authenticated subject, or when the failing input
// changes while denied. Observing the same inputs again does nothing.
// Evaluations are serialized; collaborators are called while the guard's
// lock is held and must not call back into the guard.
type Guard struct {
	mu       sync.Mutex
	req      PermissionRequest
	opts     Options
	nav      Navigator
	notifier Notifier
	logger   *zap.Logger

	observed bool
	subject  Subject
	decision Decision
	fired    *failingInput
}

// NewGuard creates a Guard. nav and notifier may be nil.
func NewGuard(req PermissionRequest, opts Options, nav Navigator, notifier Notifier, logger *zap.Logger) *Guard {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Guard{
		req:      req,
		opts:     opts.withDefaults(),
		nav:      nav,
		notifier: notifier,
		logger:   logger,
		decision: DecisionPending,
	}
}

// Observe evaluates the guard for subject and runs any resulting effects.
func (g *Guard) Observe(subject Subject) Decision {
	g.mu.Lock()
	defer g.mu.Unlock()

	g.observed = true
	g.subject = subject
	return g.evaluateLocked()
}

// Reconfigure replaces the permission request and options. If a subject has
// already been observed the guard re-evaluates immediately.
func (g *Guard) Reconfigure(req PermissionRequest, opts Options) Decision {
	g.mu.Lock()
	defer g.mu.Unlock()

	g.req = req
	g.opts = opts.withDefaults()
	if !g.observed {
		return g.decision
	}
	return g.evaluateLocked()
}

// Decision returns the most recent decision.
func (g *Guard) Decision() Decision {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.decision
}

func (g *Guard) evaluateLocked() Decision {
	d := Evaluate(g.subject, g.req)
	g.decision = d

	if d != DecisionDenied || !g.subject.Authenticated {
		// Pending, allowed and anonymous evaluations re-arm the guard.
		g.fired = nil
		return d
	}

	in := failingInput{role: g.subject.Role, req: g.req, opts: g.opts}
	if g.fired != nil && g.fired.equal(in) {
		return d
	}
	g.fired = &in
	g.fire(in)
	return d
}

func (g *Guard) fire(in failingInput) {
	defer func() {
		if r := recover(); r != nil {
			g.logger.Error("access guard effect panicked", zap.Any("panic", r))
		}
	}()

	g.logger.Info("access denied",
		zap.String("role", in.role.String()),
		zap.String("allowed", in.req.String()),
		zap.String("redirect", in.opts.FallbackPath))

	if g.nav != nil {
		g.nav.Redirect(in.opts.FallbackPath)
	}
	if in.opts.Notify && g.notifier != nil {
		g.notifier.Notify(in.opts.Message)
	}
}
