// Package store wraps the session repository in the two access profiles the relay uses:
// Live for the latency-sensitive ping path and Durable for administrative writes.
package store

import (
	"context"
	"errors"
	"time"

	"crimepatrol/internal/model"
	"crimepatrol/internal/repository"
	"crimepatrol/internal/retry"

	"go.mongodb.org/mongo-driver/mongo"
	"go.uber.org/zap"
)

// Live fails fast: every call is bounded by timeout and never retried
type Live struct {
	repo    repository.SessionRepo
	timeout time.Duration
}

// NewLive creates the fail-fast profile. A zero timeout leaves the caller's deadline alone.
func NewLive(repo repository.SessionRepo, timeout time.Duration) *Live {
	return &Live{repo: repo, timeout: timeout}
}

func (l *Live) bound(ctx context.Context) (context.Context, context.CancelFunc) {
	if l.timeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, l.timeout)
}

func (l *Live) Create(ctx context.Context, session *model.EmergencySession) error {
	ctx, cancel := l.bound(ctx)
	defer cancel()
	return l.repo.Create(ctx, session)
}

func (l *Live) GetByID(ctx context.Context, id string) (*model.EmergencySession, error) {
	ctx, cancel := l.bound(ctx)
	defer cancel()
	return l.repo.GetByID(ctx, id)
}

func (l *Live) UpdateByID(ctx context.Context, id string, patch model.SessionPatch) (*model.EmergencySession, error) {
	ctx, cancel := l.bound(ctx)
	defer cancel()
	return l.repo.UpdateByID(ctx, id, patch)
}

func (l *Live) Query(ctx context.Context, q model.SessionQuery) ([]*model.EmergencySession, error) {
	ctx, cancel := l.bound(ctx)
	defer cancel()
	return l.repo.Query(ctx, q)
}

// Durable retries transient failures with exponential backoff
type Durable struct {
	repo    repository.SessionRepo
	retrier *retry.Retrier
}

// NewDurable creates the retried profile. cfg.Retryable defaults to Transient.
func NewDurable(repo repository.SessionRepo, cfg retry.Config, l *zap.Logger) *Durable {
	if cfg.Retryable == nil {
		cfg.Retryable = Transient
	}
	return &Durable{repo: repo, retrier: retry.New(cfg, l)}
}

func (d *Durable) Create(ctx context.Context, session *model.EmergencySession) error {
	return d.retrier.Execute(ctx, func(ctx context.Context) error {
		return d.repo.Create(ctx, session)
	})
}

func (d *Durable) GetByID(ctx context.Context, id string) (*model.EmergencySession, error) {
	var out *model.EmergencySession
	err := d.retrier.Execute(ctx, func(ctx context.Context) error {
		s, err := d.repo.GetByID(ctx, id)
		out = s
		return err
	})
	return out, err
}

func (d *Durable) UpdateByID(ctx context.Context, id string, patch model.SessionPatch) (*model.EmergencySession, error) {
	var out *model.EmergencySession
	err := d.retrier.Execute(ctx, func(ctx context.Context) error {
		s, err := d.repo.UpdateByID(ctx, id, patch)
		out = s
		return err
	})
	return out, err
}

func (d *Durable) Query(ctx context.Context, q model.SessionQuery) ([]*model.EmergencySession, error) {
	var out []*model.EmergencySession
	err := d.retrier.Execute(ctx, func(ctx context.Context) error {
		s, err := d.repo.Query(ctx, q)
		out = s
		return err
	})
	return out, err
}

// EnsureIndexes provisions the collection indexes, retrying until the store is reachable
func (d *Durable) EnsureIndexes(ctx context.Context) error {
	return d.retrier.Execute(ctx, d.repo.EnsureIndexes)
}

// Transient reports whether err is worth retrying. Domain outcomes, cancellations and
// duplicate keys are final.
func Transient(err error) bool {
	switch {
	case err == nil:
		return false
	case errors.Is(err, repository.ErrNotFound),
		errors.Is(err, repository.ErrSessionResolved),
		errors.Is(err, repository.ErrStalePing),
		errors.Is(err, repository.ErrAlreadyResponded):
		return false
	case errors.Is(err, context.Canceled):
		return false
	case mongo.IsDuplicateKeyError(err):
		return false
	}
	return true
}
