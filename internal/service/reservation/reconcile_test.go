package reservation

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/kirinyoku/matchseats/internal/domain"
	"github.com/kirinyoku/matchseats/internal/repository"
	"github.com/kirinyoku/matchseats/internal/repository/memory"
	"github.com/kirinyoku/matchseats/internal/seed"
)

var base = time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

func TestService_Reconcile_SeedScenario(t *testing.T) {
	ctx := context.Background()
	store := memory.NewStore()
	require.NoError(t, seed.Run(ctx, store, seed.DefaultPlan(base)))

	users, sectors, seats, matches := store.Counts()
	require.Equal(t, 10, users)
	require.Equal(t, 4, sectors)
	require.Equal(t, 60, seats)
	require.Equal(t, 10, matches)

	svc := New(store, Config{Clock: stepClock(base)})
	require.NoError(t, svc.SubmitRequest(ctx, 1, 3, 7))
	require.NoError(t, svc.SubmitRequest(ctx, 1, 5, 7))

	res, err := svc.Reconcile(ctx, 1)
	require.NoError(t, err)

	require.Len(t, res.Confirmed, 1)
	assert.Equal(t, int64(3), res.Confirmed[0].UserID)
	assert.Equal(t, int64(7), res.Confirmed[0].SeatID)

	require.Len(t, res.Rejected, 1)
	assert.Equal(t, int64(5), res.Rejected[0].Request.UserID)
	assert.Equal(t, int64(7), res.Rejected[0].Request.SeatID)
	assert.Equal(t, domain.ReasonSeatTaken, res.Rejected[0].Reason)

	reqs, err := store.ListRequests(ctx, 1)
	require.NoError(t, err)
	assert.Empty(t, reqs)
}

func TestService_Reconcile_Ordering(t *testing.T) {
	ctx := context.Background()

	t.Run("earlier request wins regardless of append order", func(t *testing.T) {
		store := memory.NewStore()
		svc := New(store, Config{})

		require.NoError(t, store.AppendRequest(ctx, domain.ReservationRequest{MatchID: 1, UserID: 5, SeatID: 7, RequestedAt: base.Add(2 * time.Second)}))
		require.NoError(t, store.AppendRequest(ctx, domain.ReservationRequest{MatchID: 1, UserID: 3, SeatID: 7, RequestedAt: base.Add(time.Second)}))

		res, err := svc.Reconcile(ctx, 1)
		require.NoError(t, err)
		require.Len(t, res.Confirmed, 1)
		assert.Equal(t, int64(3), res.Confirmed[0].UserID)

		got, ok, err := store.ConfirmedBySeat(ctx, 1, 7)
		require.NoError(t, err)
		require.True(t, ok)
		assert.Equal(t, int64(3), got.UserID, "seat 7 must never be reassigned to user 5")
	})

	t.Run("equal timestamps fall back to user id", func(t *testing.T) {
		store := memory.NewStore()
		svc := New(store, Config{Clock: fixedClock(base)})

		require.NoError(t, svc.SubmitRequest(ctx, 1, 5, 7))
		require.NoError(t, svc.SubmitRequest(ctx, 1, 3, 7))

		res, err := svc.Reconcile(ctx, 1)
		require.NoError(t, err)
		require.Len(t, res.Confirmed, 1)
		assert.Equal(t, int64(3), res.Confirmed[0].UserID)
		require.Len(t, res.Rejected, 1)
		assert.Equal(t, int64(5), res.Rejected[0].Request.UserID)
	})

	t.Run("user with several seats keeps the first", func(t *testing.T) {
		store := memory.NewStore()
		svc := New(store, Config{Clock: fixedClock(base)})

		require.NoError(t, svc.SubmitRequests(ctx, 1, 3, 9, 7, 8))

		res, err := svc.Reconcile(ctx, 1)
		require.NoError(t, err)
		require.Len(t, res.Confirmed, 1)
		assert.Equal(t, int64(7), res.Confirmed[0].SeatID)

		require.Len(t, res.Rejected, 2)
		for _, rej := range res.Rejected {
			assert.Equal(t, domain.ReasonUserAlreadySeated, rej.Reason)
		}
	})

	t.Run("user check runs before seat check", func(t *testing.T) {
		store := memory.NewStore()
		svc := New(store, Config{Clock: stepClock(base)})

		require.NoError(t, svc.SubmitRequest(ctx, 1, 3, 7))
		require.NoError(t, svc.SubmitRequest(ctx, 1, 3, 7))

		_, err := svc.DirectReserve(ctx, 1, 3, 7)
		require.NoError(t, err)

		res, err := svc.Reconcile(ctx, 1)
		require.NoError(t, err)
		require.Len(t, res.Rejected, 1, "upsert on (match, user, seat) keeps one intake row")
		assert.Equal(t, domain.ReasonUserAlreadySeated, res.Rejected[0].Reason)
	})
}

func TestService_Reconcile_NoLossOnDisjointInput(t *testing.T) {
	ctx := context.Background()
	store := memory.NewStore()
	svc := New(store, Config{})

	const n = 60

	var wg sync.WaitGroup
	for i := int64(1); i <= n; i++ {
		wg.Add(1)
		go func(i int64) {
			defer wg.Done()
			assert.NoError(t, svc.SubmitRequest(ctx, 1, i, n+1-i))
		}(i)
	}
	wg.Wait()

	res, err := svc.Reconcile(ctx, 1)
	require.NoError(t, err)
	assert.Len(t, res.Confirmed, n)
	assert.Empty(t, res.Rejected)

	rows, err := store.ListConfirmed(ctx, 1)
	require.NoError(t, err)
	assert.Len(t, rows, n)
	assertUnique(t, rows)

	reqs, err := store.ListRequests(ctx, 1)
	require.NoError(t, err)
	assert.Empty(t, reqs)
}

func TestService_Reconcile_Idempotent(t *testing.T) {
	ctx := context.Background()
	store := memory.NewStore()
	svc := New(store, Config{Clock: stepClock(base)})

	for u := int64(1); u <= 10; u++ {
		require.NoError(t, svc.SubmitRequests(ctx, 1, u, u%4+1, u%3+1))
	}

	_, err := svc.Reconcile(ctx, 1)
	require.NoError(t, err)

	before, err := store.ListConfirmed(ctx, 1)
	require.NoError(t, err)
	assertUnique(t, before)
	writes := store.Writes()

	res, err := svc.Reconcile(ctx, 1)
	require.NoError(t, err)
	assert.Zero(t, res.Processed())
	assert.Equal(t, writes, store.Writes(), "second pass must not write")

	after, err := store.ListConfirmed(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, before, after)
}

func TestService_Reconcile_ResumesAfterCrash(t *testing.T) {
	ctx := context.Background()
	store := memory.NewStore()
	svc := New(store, Config{Clock: stepClock(base)})

	require.NoError(t, svc.SubmitRequest(ctx, 1, 3, 7))
	require.NoError(t, svc.SubmitRequest(ctx, 1, 5, 8))

	// The first pass committed (1,3,7) and died before deleting its request.
	require.NoError(t, store.ClaimSeat(ctx, domain.ConfirmedReservation{MatchID: 1, UserID: 3, SeatID: 7, ConfirmedAt: base}))

	res, err := svc.Reconcile(ctx, 1)
	require.NoError(t, err)

	require.Len(t, res.Confirmed, 1)
	assert.Equal(t, int64(5), res.Confirmed[0].UserID)
	require.Len(t, res.Rejected, 1)
	assert.Equal(t, int64(3), res.Rejected[0].Request.UserID)
	assert.Equal(t, domain.ReasonUserAlreadySeated, res.Rejected[0].Reason)

	rows, err := store.ListConfirmed(ctx, 1)
	require.NoError(t, err)
	assert.Len(t, rows, 2)
	assertUnique(t, rows)
}

// failingStore fails ClaimSeat from the given call onwards.
type failingStore struct {
	*memory.Store
	mu     sync.Mutex
	calls  int
	failAt int
}

func (f *failingStore) ClaimSeat(ctx context.Context, r domain.ConfirmedReservation) error {
	f.mu.Lock()
	f.calls++
	fail := f.failAt > 0 && f.calls >= f.failAt
	f.mu.Unlock()

	if fail {
		return fmt.Errorf("%w: write timeout", repository.ErrStore)
	}
	return f.Store.ClaimSeat(ctx, r)
}

func TestService_Reconcile_StoreFailureMidPass(t *testing.T) {
	ctx := context.Background()
	store := &failingStore{Store: memory.NewStore(), failAt: 2}
	svc := New(store, Config{Clock: stepClock(base)})

	require.NoError(t, svc.SubmitRequest(ctx, 1, 3, 7))
	require.NoError(t, svc.SubmitRequest(ctx, 1, 5, 8))

	_, err := svc.Reconcile(ctx, 1)
	require.ErrorIs(t, err, ErrStoreUnavailable)

	reqs, err := store.ListRequests(ctx, 1)
	require.NoError(t, err)
	require.Len(t, reqs, 1, "undecided request stays in the intake")
	assert.Equal(t, int64(5), reqs[0].UserID)

	store.mu.Lock()
	store.failAt = 0
	store.mu.Unlock()

	res, err := svc.Reconcile(ctx, 1)
	require.NoError(t, err)
	require.Len(t, res.Confirmed, 1)
	assert.Equal(t, int64(5), res.Confirmed[0].UserID)
}

// racingStore lets another writer claim a seat just before the reconciler
// does.
type racingStore struct {
	*memory.Store
	once   sync.Once
	before domain.ConfirmedReservation
}

func (r *racingStore) ClaimSeat(ctx context.Context, c domain.ConfirmedReservation) error {
	r.once.Do(func() {
		_ = r.Store.ClaimSeat(ctx, r.before)
	})
	return r.Store.ClaimSeat(ctx, c)
}

func TestService_Reconcile_LosesToDirectWriter(t *testing.T) {
	ctx := context.Background()
	store := &racingStore{
		Store:  memory.NewStore(),
		before: domain.ConfirmedReservation{MatchID: 1, UserID: 9, SeatID: 7, ConfirmedAt: base},
	}
	svc := New(store, Config{Clock: stepClock(base)})

	require.NoError(t, svc.SubmitRequest(ctx, 1, 3, 7))
	require.NoError(t, svc.SubmitRequest(ctx, 1, 9, 8))

	res, err := svc.Reconcile(ctx, 1)
	require.NoError(t, err)

	assert.Empty(t, res.Confirmed)
	require.Len(t, res.Rejected, 2)
	assert.Equal(t, domain.ReasonSeatTaken, res.Rejected[0].Reason)
	assert.Equal(t, domain.ReasonUserAlreadySeated, res.Rejected[1].Reason,
		"refreshed view must include the direct writer's user")

	rows, err := store.ListConfirmed(ctx, 1)
	require.NoError(t, err)
	assertUnique(t, rows)
}

func TestService_Reconcile_SingleWriter(t *testing.T) {
	ctx := context.Background()

	t.Run("busy when another owner holds the lease", func(t *testing.T) {
		store := memory.NewStore()
		locker := memory.NewLocker()
		svc := New(store, Config{}, WithLocker(locker))

		require.NoError(t, svc.SubmitRequest(ctx, 1, 3, 7))
		writes := store.Writes()

		lease, err := locker.Acquire(ctx, LockKey(1), time.Minute)
		require.NoError(t, err)

		_, err = svc.Reconcile(ctx, 1)
		assert.ErrorIs(t, err, ErrReconcileBusy)
		assert.Equal(t, writes, store.Writes())

		require.NoError(t, lease.Release(ctx))

		res, err := svc.Reconcile(ctx, 1)
		require.NoError(t, err)
		assert.Len(t, res.Confirmed, 1)
	})

	t.Run("other matches are not blocked", func(t *testing.T) {
		locker := memory.NewLocker()
		svc := New(memory.NewStore(), Config{}, WithLocker(locker))

		lease, err := locker.Acquire(ctx, LockKey(1), time.Minute)
		require.NoError(t, err)
		defer lease.Release(ctx)

		require.NoError(t, svc.SubmitRequest(ctx, 2, 3, 7))
		res, err := svc.Reconcile(ctx, 2)
		require.NoError(t, err)
		assert.Len(t, res.Confirmed, 1)
	})

	t.Run("lost lease aborts the pass", func(t *testing.T) {
		store := memory.NewStore()
		lease := new(MockLease)
		lease.On("Extend", mock.Anything, mock.Anything).Return(repository.ErrLeaseLost)
		lease.On("Release", mock.Anything).Return(repository.ErrLeaseLost)

		locker := new(MockLocker)
		locker.On("Acquire", mock.Anything, LockKey(1), time.Nanosecond).Return(lease, nil)

		svc := New(store, Config{LockTTL: time.Nanosecond}, WithLocker(locker))
		require.NoError(t, svc.SubmitRequest(ctx, 1, 3, 7))

		_, err := svc.Reconcile(ctx, 1)
		assert.ErrorIs(t, err, ErrReconcileBusy)

		rows, err := store.ListConfirmed(ctx, 1)
		require.NoError(t, err)
		assert.Empty(t, rows)
		lease.AssertCalled(t, "Release", mock.Anything)
	})

	t.Run("locker failure is a store failure", func(t *testing.T) {
		locker := new(MockLocker)
		locker.On("Acquire", mock.Anything, LockKey(1), mock.Anything).
			Return(nil, fmt.Errorf("%w: connection refused", repository.ErrStore))

		svc := New(memory.NewStore(), Config{}, WithLocker(locker))
		_, err := svc.Reconcile(ctx, 1)

		assert.ErrorIs(t, err, ErrStoreUnavailable)
		assert.False(t, errors.Is(err, ErrReconcileBusy))
	})
}

func TestService_Reconcile_Errors(t *testing.T) {
	ctx := context.Background()

	t.Run("rejects malformed match id", func(t *testing.T) {
		svc := New(memory.NewStore(), Config{})
		_, err := svc.Reconcile(ctx, 0)

		var invalid InvalidIDError
		assert.ErrorAs(t, err, &invalid)
	})

	t.Run("read failure touches nothing", func(t *testing.T) {
		store := new(MockStore)
		store.On("ListRequests", mock.Anything, int64(1)).
			Return(nil, fmt.Errorf("%w: read timeout", repository.ErrStore))

		svc := New(store, Config{})
		_, err := svc.Reconcile(ctx, 1)

		assert.ErrorIs(t, err, ErrStoreUnavailable)
		assert.ErrorIs(t, err, repository.ErrStore)
		store.AssertNotCalled(t, "ClaimSeat", mock.Anything, mock.Anything)
		store.AssertNotCalled(t, "DeleteRequest", mock.Anything, mock.Anything)
	})

	t.Run("empty intake reads no confirmations", func(t *testing.T) {
		store := new(MockStore)
		store.On("ListRequests", mock.Anything, int64(1)).Return([]domain.ReservationRequest{}, nil)

		svc := New(store, Config{})
		res, err := svc.Reconcile(ctx, 1)

		require.NoError(t, err)
		assert.Zero(t, res.Processed())
		store.AssertNotCalled(t, "ListConfirmed", mock.Anything, mock.Anything)
	})
}

func TestService_Reconcile_NotifiesListeners(t *testing.T) {
	ctx := context.Background()
	l := &recordingListener{}
	svc := New(memory.NewStore(), Config{Clock: fixedClock(base)}, WithListener(l))

	require.NoError(t, svc.SubmitRequest(ctx, 1, 3, 7))
	require.NoError(t, svc.SubmitRequest(ctx, 1, 5, 7))
	require.NoError(t, svc.SubmitRequest(ctx, 1, 6, 8))

	res, err := svc.Reconcile(ctx, 1)
	require.NoError(t, err)

	assert.Equal(t, res.Confirmed, l.all())
	assert.Len(t, l.all(), 2)
}

// gatedStore holds ListRequests until the gate opens.
type gatedStore struct {
	*memory.Store
	entered chan struct{}
	gate    chan struct{}
	once    sync.Once
	lists   int
	mu      sync.Mutex
}

func (g *gatedStore) ListRequests(ctx context.Context, matchID int64) ([]domain.ReservationRequest, error) {
	g.mu.Lock()
	g.lists++
	g.mu.Unlock()

	g.once.Do(func() { close(g.entered) })
	<-g.gate

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return g.Store.ListRequests(ctx, matchID)
}

func TestService_Reconcile_SharedPassOutlivesCaller(t *testing.T) {
	ctx := context.Background()
	store := &gatedStore{
		Store:   memory.NewStore(),
		entered: make(chan struct{}),
		gate:    make(chan struct{}),
	}
	svc := New(store, Config{Clock: stepClock(base)})

	require.NoError(t, svc.SubmitRequest(ctx, 1, 3, 7))

	first, cancel := context.WithCancel(ctx)
	firstErr := make(chan error, 1)
	go func() {
		_, err := svc.Reconcile(first, 1)
		firstErr <- err
	}()
	<-store.entered

	type outcome struct {
		res Result
		err error
	}
	second := make(chan outcome, 1)
	go func() {
		res, err := svc.Reconcile(ctx, 1)
		second <- outcome{res, err}
	}()

	cancel()
	assert.ErrorIs(t, <-firstErr, context.Canceled)

	// Give the second caller time to join the running pass.
	time.Sleep(50 * time.Millisecond)
	close(store.gate)

	got := <-second
	require.NoError(t, got.err)
	require.Len(t, got.res.Confirmed, 1)
	assert.Equal(t, int64(3), got.res.Confirmed[0].UserID)

	store.mu.Lock()
	assert.Equal(t, 1, store.lists, "second caller must share the running pass")
	store.mu.Unlock()

	rows, err := store.ListConfirmed(ctx, 1)
	require.NoError(t, err)
	assert.Len(t, rows, 1)

	reqs, err := store.ListRequests(ctx, 1)
	require.NoError(t, err)
	assert.Empty(t, reqs)
}

func TestService_Reconcile_PassTimeout(t *testing.T) {
	ctx := context.Background()
	store := &gatedStore{
		Store:   memory.NewStore(),
		entered: make(chan struct{}),
		gate:    make(chan struct{}),
	}
	svc := New(store, Config{Clock: stepClock(base), PassTimeout: 20 * time.Millisecond})

	require.NoError(t, svc.SubmitRequest(ctx, 1, 3, 7))

	go func() {
		<-store.entered
		time.Sleep(60 * time.Millisecond)
		close(store.gate)
	}()

	_, err := svc.Reconcile(ctx, 1)
	assert.ErrorIs(t, err, context.DeadlineExceeded)

	reqs, err := store.Store.ListRequests(ctx, 1)
	require.NoError(t, err)
	assert.Len(t, reqs, 1, "timed out pass leaves the intake untouched")
}
