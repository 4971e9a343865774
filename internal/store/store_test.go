package store

import (
	"context"
	"errors"
	"testing"
	"time"

	"crimepatrol/internal/model"
	"crimepatrol/internal/repository"
	"crimepatrol/internal/retry"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var errFlaky = errors.New("connection reset by peer")

// scriptedRepo returns the queued errors in order, then succeeds
type scriptedRepo struct {
	errs      []error
	calls     int
	deadlines []bool
	block     bool
}

func (r *scriptedRepo) next(ctx context.Context) error {
	r.calls++
	_, ok := ctx.Deadline()
	r.deadlines = append(r.deadlines, ok)
	if r.block {
		<-ctx.Done()
		return ctx.Err()
	}
	if len(r.errs) == 0 {
		return nil
	}
	err := r.errs[0]
	r.errs = r.errs[1:]
	return err
}

func (r *scriptedRepo) Create(ctx context.Context, _ *model.EmergencySession) error {
	return r.next(ctx)
}

func (r *scriptedRepo) GetByID(ctx context.Context, id string) (*model.EmergencySession, error) {
	if err := r.next(ctx); err != nil {
		return nil, err
	}
	return &model.EmergencySession{ID: id}, nil
}

func (r *scriptedRepo) UpdateByID(ctx context.Context, id string, _ model.SessionPatch) (*model.EmergencySession, error) {
	if err := r.next(ctx); err != nil {
		return nil, err
	}
	return &model.EmergencySession{ID: id, Status: model.SessionActive}, nil
}

func (r *scriptedRepo) Query(ctx context.Context, _ model.SessionQuery) ([]*model.EmergencySession, error) {
	if err := r.next(ctx); err != nil {
		return nil, err
	}
	return []*model.EmergencySession{{ID: "S1"}}, nil
}

func (r *scriptedRepo) EnsureIndexes(ctx context.Context) error {
	return r.next(ctx)
}

var _ repository.SessionRepo = (*scriptedRepo)(nil)

func fastRetry() retry.Config {
	return retry.Config{MaxRetries: 2, BaseDelay: time.Millisecond, MaxDelay: 2 * time.Millisecond, Multiplier: 2}
}

func TestLiveNeverRetries(t *testing.T) {
	repo := &scriptedRepo{errs: []error{errFlaky}}
	live := NewLive(repo, time.Second)

	_, err := live.UpdateByID(context.Background(), "S1", model.SessionPatch{})
	assert.ErrorIs(t, err, errFlaky)
	assert.Equal(t, 1, repo.calls)
	assert.Equal(t, []bool{true}, repo.deadlines)
}

func TestLiveTimesOut(t *testing.T) {
	repo := &scriptedRepo{block: true}
	live := NewLive(repo, 10*time.Millisecond)

	err := live.Create(context.Background(), &model.EmergencySession{ID: "S1"})
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestLiveZeroTimeoutKeepsCallerDeadline(t *testing.T) {
	repo := &scriptedRepo{}
	live := NewLive(repo, 0)

	_, err := live.Query(context.Background(), model.SessionQuery{})
	require.NoError(t, err)
	assert.Equal(t, []bool{false}, repo.deadlines)
}

func TestDurableRetriesTransient(t *testing.T) {
	repo := &scriptedRepo{errs: []error{errFlaky, errFlaky}}
	durable := NewDurable(repo, fastRetry(), nil)

	s, err := durable.UpdateByID(context.Background(), "S1", model.SessionPatch{})
	require.NoError(t, err)
	assert.Equal(t, "S1", s.ID)
	assert.Equal(t, 3, repo.calls)
}

func TestDurableDoesNotRetrySentinels(t *testing.T) {
	for _, sentinel := range []error{
		repository.ErrNotFound,
		repository.ErrSessionResolved,
		repository.ErrStalePing,
		repository.ErrAlreadyResponded,
	} {
		repo := &scriptedRepo{errs: []error{sentinel}}
		durable := NewDurable(repo, fastRetry(), nil)

		_, err := durable.UpdateByID(context.Background(), "S1", model.SessionPatch{})
		assert.ErrorIs(t, err, sentinel)
		assert.Equal(t, 1, repo.calls, sentinel.Error())
	}
}

func TestDurableEnsureIndexesExhausts(t *testing.T) {
	repo := &scriptedRepo{errs: []error{errFlaky, errFlaky, errFlaky, errFlaky}}
	durable := NewDurable(repo, fastRetry(), nil)

	err := durable.EnsureIndexes(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, errFlaky)
	assert.Contains(t, err.Error(), "retry limit exceeded after 3 attempts")
	assert.Equal(t, 3, repo.calls)
}

func TestTransient(t *testing.T) {
	assert.False(t, Transient(nil))
	assert.False(t, Transient(context.Canceled))
	assert.False(t, Transient(repository.ErrNotFound))
	assert.True(t, Transient(errFlaky))
	assert.True(t, Transient(context.DeadlineExceeded))
}
