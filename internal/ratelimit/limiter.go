package ratelimit

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"ledger-gate/internal/audit"
	"ledger-gate/pkg/logger"
)

// Result is the decision for one request plus the quota callers surface as headers.
type Result struct {
	Allowed    bool
	Limit      int
	Remaining  int
	ResetAt    time.Time
	RetryAfter time.Duration

	// FailedOpen is set when the backend could not answer and the request
	// was allowed regardless.
	FailedOpen bool
}

// Backend counts a hit against key and reports the resulting window state.
// Exactly one backend is chosen at startup.
type Backend interface {
	Hit(ctx context.Context, key string, limit int, window time.Duration) (Result, error)
}

var ErrInvalidArgument = errors.New("ratelimit: invalid argument")

// Key builds the counter identifier scope:class:ip[:userID].
func Key(scope, class, ip, userID string) string {
	parts := []string{scope, class, ip}
	if userID != "" {
		parts = append(parts, userID)
	}
	return strings.Join(parts, ":")
}

type Limiter struct {
	backend  Backend
	log      *slog.Logger
	recorder audit.Recorder
	timeout  time.Duration
	now      func() time.Time
}

type Option func(*Limiter)

func WithLogger(l *slog.Logger) Option { return func(x *Limiter) { x.log = l } }

func WithRecorder(r audit.Recorder) Option { return func(x *Limiter) { x.recorder = r } }

// WithTimeout bounds each backend round trip.
func WithTimeout(d time.Duration) Option { return func(x *Limiter) { x.timeout = d } }

func WithClock(now func() time.Time) Option { return func(x *Limiter) { x.now = now } }

func New(backend Backend, opts ...Option) *Limiter {
	l := &Limiter{
		backend:  backend,
		log:      slog.Default(),
		recorder: audit.Nop{},
		timeout:  2 * time.Second,
		now:      time.Now,
	}
	for _, o := range opts {
		o(l)
	}
	return l
}

// Check counts one request for identifier under class. It never returns an
// error: a failing backend is logged and the request is allowed with an
// optimistic quota.
func (l *Limiter) Check(ctx context.Context, class Class, identifier string) Result {
	ctx, cancel := context.WithTimeout(ctx, l.timeout)
	defer cancel()

	res, err := l.backend.Hit(ctx, identifier, class.Limit, class.Window)
	if err != nil {
		logger.FromOr(ctx, l.log).Error("rate limit backend failed, allowing request",
			"class", class.Name,
			"key", identifier,
			"err", err,
		)
		return l.optimistic(class)
	}
	return res
}

func (l *Limiter) optimistic(class Class) Result {
	return Result{
		Allowed:    true,
		Limit:      class.Limit,
		Remaining:  max(class.Limit-1, 0),
		ResetAt:    l.now().Add(class.Window),
		FailedOpen: true,
	}
}

// decide turns a post-increment count into a Result.
func decide(count int64, limit int, resetAt, now time.Time) Result {
	res := Result{
		Allowed:   count <= int64(limit),
		Limit:     limit,
		Remaining: max(limit-int(count), 0),
		ResetAt:   resetAt,
	}
	if !res.Allowed {
		res.RetryAfter = max(resetAt.Sub(now), time.Second)
	}
	return res
}
