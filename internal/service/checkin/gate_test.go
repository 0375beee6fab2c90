package checkin

import (
	"context"
	"errors"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/attendly/attendly-backend-go/internal/domain/attendance"
	"github.com/attendly/attendly-backend-go/internal/pkg/database"
)

func newGateFixture(t *testing.T, opts GateOptions) (*Gate, *fixture) {
	t.Helper()
	f := newFixture(t)
	gate := NewGate(f.svc, opts, slog.New(slog.DiscardHandler))
	gate.Start()
	t.Cleanup(gate.Stop)
	return gate, f
}

func TestGate_SubmitProcessesCheckIn(t *testing.T) {
	gate, _ := newGateFixture(t, GateOptions{Workers: 2})

	proj, err := gate.Submit(context.Background(), SubmitRequest{
		EmployeeID: "emp-1",
		At:         monday(8, 0),
	})
	require.NoError(t, err)
	require.NotNil(t, proj.LatestAttendance)
	assert.Equal(t, attendance.StateInProgress, proj.LatestAttendance.State)
}

func TestGate_RetriesTransientFailures(t *testing.T) {
	gate, f := newGateFixture(t, GateOptions{
		Workers:       1,
		RetryMaxTries: 3,
		RetryInterval: time.Millisecond,
	})
	f.attendances.failUpserts = 2

	proj, err := gate.Submit(context.Background(), SubmitRequest{
		EmployeeID: "emp-1",
		At:         monday(8, 0),
	})
	require.NoError(t, err)
	assert.Equal(t, attendance.StateInProgress, proj.LatestAttendance.State)
}

func TestGate_ExhaustsRetriesOnPersistentFailure(t *testing.T) {
	gate, f := newGateFixture(t, GateOptions{
		Workers:       1,
		RetryMaxTries: 2,
		RetryInterval: time.Millisecond,
	})
	f.attendances.failUpserts = 10

	_, err := gate.Submit(context.Background(), SubmitRequest{
		EmployeeID: "emp-1",
		At:         monday(8, 0),
	})
	require.Error(t, err)
	assert.True(t, database.IsRetryable(err))
	// Both injected failures were consumed before giving up.
	assert.Equal(t, 8, f.attendances.failUpserts)
}

func TestGate_DomainErrorsAreNotRetried(t *testing.T) {
	gate, f := newGateFixture(t, GateOptions{
		Workers:       1,
		RetryMaxTries: 5,
		RetryInterval: time.Millisecond,
	})

	_, err := gate.Submit(context.Background(), SubmitRequest{
		EmployeeID: "emp-1",
		At:         saturday(9, 0),
	})
	assert.ErrorIs(t, err, attendance.ErrPeriodNotFound)
	// One transaction attempt only: check-in never reached storage and
	// the resolver error is permanent.
	assert.Equal(t, 0, f.txm.calls)
}

func TestGate_ReplayReturnsCurrentState(t *testing.T) {
	gate, _ := newGateFixture(t, GateOptions{Workers: 1})

	_, err := gate.Submit(context.Background(), SubmitRequest{EmployeeID: "emp-1", At: monday(8, 0)})
	require.NoError(t, err)
	_, err = gate.Submit(context.Background(), SubmitRequest{EmployeeID: "emp-1", At: monday(17, 0)})
	require.NoError(t, err)

	// The settled period absorbs the replay as a success.
	proj, err := gate.Submit(context.Background(), SubmitRequest{EmployeeID: "emp-1", At: monday(17, 10)})
	require.NoError(t, err)
	assert.Equal(t, attendance.StateComplete, proj.LatestAttendance.State)
}

func TestGate_SubmitTimeout(t *testing.T) {
	f := newFixture(t)
	// Stall the transaction well past the confirmation deadline.
	slowTxm := &stallingTxm{inner: f.txm, delay: 200 * time.Millisecond}
	f.svc.txm = slowTxm

	gate := NewGate(f.svc, GateOptions{Workers: 1, TaskTimeout: 20 * time.Millisecond}, slog.New(slog.DiscardHandler))
	gate.Start()
	t.Cleanup(gate.Stop)

	_, err := gate.Submit(context.Background(), SubmitRequest{
		EmployeeID: "emp-1",
		At:         monday(8, 0),
	})
	assert.ErrorIs(t, err, ErrSubmitTimeout)

	// The task still completes in the background.
	assert.Eventually(t, func() bool {
		row, err := f.attendances.GetByKey(context.Background(), attendance.Key{
			EmployeeID: "emp-1",
			Date:       monday(0, 0),
			PeriodType: attendance.PeriodRegular,
			PeriodSeq:  0,
		})
		return err == nil && row != nil && row.State == attendance.StateInProgress
	}, time.Second, 10*time.Millisecond)
}

func TestGate_ClosedGateRefusesSubmissions(t *testing.T) {
	f := newFixture(t)
	gate := NewGate(f.svc, GateOptions{Workers: 1}, slog.New(slog.DiscardHandler))
	gate.Start()
	gate.Stop()

	_, err := gate.Submit(context.Background(), SubmitRequest{
		EmployeeID: "emp-1",
		At:         monday(8, 0),
	})
	assert.ErrorIs(t, err, ErrGateClosed)
}

func TestGate_FullQueueRefusesWithoutEnqueueing(t *testing.T) {
	f := newFixture(t)
	// Workers are never started, so the first submission fills the queue.
	gate := NewGate(f.svc, GateOptions{Workers: 1, QueueSize: 1, TaskTimeout: 10 * time.Millisecond}, slog.New(slog.DiscardHandler))

	_, err := gate.Submit(context.Background(), SubmitRequest{
		EmployeeID: "emp-1",
		At:         monday(8, 0),
	})
	assert.ErrorIs(t, err, ErrSubmitTimeout)

	// The second submission is not in flight anywhere; the caller must
	// be told to retry, not to poll.
	_, err = gate.Submit(context.Background(), SubmitRequest{
		EmployeeID: "emp-1",
		At:         monday(8, 0),
	})
	assert.ErrorIs(t, err, ErrQueueFull)
	assert.Zero(t, f.txm.calls)
}

func TestGate_CallerCancellationDoesNotAbortTask(t *testing.T) {
	f := newFixture(t)
	slowTxm := &stallingTxm{inner: f.txm, delay: 50 * time.Millisecond}
	f.svc.txm = slowTxm

	gate := NewGate(f.svc, GateOptions{Workers: 1}, slog.New(slog.DiscardHandler))
	gate.Start()
	t.Cleanup(gate.Stop)

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(10 * time.Millisecond)
		cancel()
	}()

	_, err := gate.Submit(ctx, SubmitRequest{EmployeeID: "emp-1", At: monday(8, 0)})
	assert.ErrorIs(t, err, ErrSubmitTimeout)

	assert.Eventually(t, func() bool {
		row, err := f.attendances.GetByKey(context.Background(), attendance.Key{
			EmployeeID: "emp-1",
			Date:       monday(0, 0),
			PeriodType: attendance.PeriodRegular,
			PeriodSeq:  0,
		})
		return err == nil && row != nil
	}, time.Second, 10*time.Millisecond)
}

type stallingTxm struct {
	inner database.TxManager
	delay time.Duration
}

func (s *stallingTxm) WithinTransaction(ctx context.Context, fn func(ctx context.Context) error) error {
	select {
	case <-time.After(s.delay):
	case <-ctx.Done():
		return errors.New("transaction aborted")
	}
	return s.inner.WithinTransaction(ctx, fn)
}
