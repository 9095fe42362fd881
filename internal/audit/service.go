package audit

import (
	"context"
	"errors"
	"time"

	"ledger-gate/pkg/logger"

	"github.com/google/uuid"
)

// Repository is the persistence contract for security events.
// It is append-only: there are no Update/Delete methods.
type Repository interface {
	Append(ctx context.Context, e Event) error
}

// Recorder is what request-path components depend on.
type Recorder interface {
	Record(ctx context.Context, e Event)
}

var ErrInvalidEvent = errors.New("audit: invalid event")

type Service struct {
	repo    Repository
	clock   func() time.Time
	timeout time.Duration
}

func NewService(repo Repository) *Service {
	return &Service{repo: repo, clock: time.Now, timeout: 2 * time.Second}
}

func (s *Service) Append(ctx context.Context, e Event) error {
	if s.repo == nil {
		return errors.New("audit: repository not configured")
	}
	if e.Type == "" {
		return ErrInvalidEvent
	}
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	if e.CreatedAt.IsZero() {
		e.CreatedAt = s.clock().UTC()
	}
	return s.repo.Append(ctx, e)
}

// Record appends e and only logs failures. The append runs detached from the
// request's cancellation so a client disconnect does not drop the event.
func (s *Service) Record(ctx context.Context, e Event) {
	actx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.timeout)
	defer cancel()
	if err := s.Append(actx, e); err != nil {
		logger.From(ctx).Warn("audit append failed", "type", e.Type, "err", err)
	}
}

// Nop discards events.
type Nop struct{}

func (Nop) Record(context.Context, Event) {}
