package artisan_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/goliatone/go-artisan"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

func newDemoWorkflow(t *testing.T, id string, opts ...artisan.WorkflowOption) (*artisan.Workflow, *artisan.MemoryStore) {
	t.Helper()
	store := artisan.NewDemoStore(artisan.WithMemoryLogger(artisan.NopLogger{}))
	wf := artisan.NewWorkflow(store, id, append([]artisan.WorkflowOption{
		artisan.WithWorkflowLogger(artisan.NopLogger{}),
	}, opts...)...)
	require.NoError(t, wf.Load(context.Background()))
	return wf, store
}

func TestWorkflowLoad(t *testing.T) {
	wf, _ := newDemoWorkflow(t, "1")

	record := wf.Artisan()
	require.NotNil(t, record)
	assert.Equal(t, "Jane Moon", record.Name)
	assert.False(t, wf.Loading())
	assert.NoError(t, wf.Err())
}

func TestWorkflowLoadUnknownArtisan(t *testing.T) {
	store := artisan.NewDemoStore()
	wf := artisan.NewWorkflow(store, "404")

	err := wf.Load(context.Background())
	assert.ErrorIs(t, err, artisan.ErrNotFound)
	assert.Nil(t, wf.Artisan())
	assert.ErrorIs(t, wf.Err(), artisan.ErrNotFound)

	_, err = wf.Block(context.Background())
	assert.ErrorIs(t, err, artisan.ErrNotFound)
}

func TestWorkflowApproveWithoutVerifiedID(t *testing.T) {
	wf, store := newDemoWorkflow(t, "2")
	publisher := &capturingPublisher{}
	wf = artisan.NewWorkflow(store, "2", artisan.WithPublisher(publisher), artisan.WithInitialArtisan(wf.Artisan()))

	_, err := wf.Approve(context.Background())

	require.Error(t, err)
	assert.ErrorIs(t, err, artisan.ErrPreconditionFailed)
	assert.Equal(t, artisan.StatusPending, wf.Artisan().Status)
	assert.Empty(t, publisher.Events())

	stored, err := store.FetchArtisan(context.Background(), "2")
	require.NoError(t, err)
	assert.Equal(t, artisan.StatusPending, stored.Status)
}

func TestWorkflowApproveRejectsUnverifiedIDStatuses(t *testing.T) {
	tests := []artisan.IDStatus{
		artisan.IDStatusUnverified,
		artisan.IDStatusVerifying,
		artisan.IDStatusFailed,
	}
	for _, idStatus := range tests {
		t.Run(string(idStatus), func(t *testing.T) {
			store := &MockStore{}
			publisher := &capturingPublisher{}
			record := pendingArtisan("2", idStatus)
			wf := artisan.NewWorkflow(store, "2", artisan.WithInitialArtisan(record), artisan.WithPublisher(publisher))

			result, err := wf.Approve(context.Background())

			assert.ErrorIs(t, err, artisan.ErrPreconditionFailed)
			assert.False(t, result.Changed)
			assert.Equal(t, artisan.StatusPending, wf.Artisan().Status)
			assert.Equal(t, idStatus, wf.Artisan().KYC.IDStatus)
			assert.Empty(t, publisher.Events())
			store.AssertNotCalled(t, "ApproveArtisan", mock.Anything, mock.Anything)
		})
	}
}

func TestWorkflowApproveAfterFailedVerification(t *testing.T) {
	store := &MockStore{}
	publisher := &capturingPublisher{}
	store.On("VerifyIdentity", mock.Anything, "2", artisan.ForceFail).
		Return(artisan.KYC{IDStatus: artisan.IDStatusFailed}, nil).Once()

	wf := artisan.NewWorkflow(store, "2",
		artisan.WithInitialArtisan(pendingArtisan("2", artisan.IDStatusUnverified)),
		artisan.WithPublisher(publisher),
	)
	ctx := context.Background()

	result, err := wf.VerifyID(ctx, artisan.ForceFail)
	require.NoError(t, err)
	assert.Equal(t, artisan.IDStatusFailed, result.IDStatus())

	before := wf.Artisan()
	eventsBefore := len(publisher.Events())

	_, err = wf.Approve(ctx)

	assert.ErrorIs(t, err, artisan.ErrPreconditionFailed)
	assert.Equal(t, before, wf.Artisan())
	assert.Equal(t, artisan.StatusPending, wf.Artisan().Status)
	assert.Equal(t, artisan.IDStatusFailed, wf.Artisan().KYC.IDStatus)
	assert.Len(t, publisher.Events(), eventsBefore)
	store.AssertNotCalled(t, "ApproveArtisan", mock.Anything, mock.Anything)
	store.AssertExpectations(t)
}

func TestWorkflowVerifyThenApprove(t *testing.T) {
	publisher := &capturingPublisher{}
	wf, store := newDemoWorkflow(t, "2", artisan.WithPublisher(publisher))
	ctx := context.Background()

	result, err := wf.VerifyID(ctx)
	require.NoError(t, err)
	assert.Equal(t, artisan.IDStatusVerified, result.IDStatus())
	assert.Equal(t, artisan.IDStatusUnverified, result.Previous.KYC.IDStatus)

	result, err = wf.Approve(ctx)
	require.NoError(t, err)
	assert.True(t, result.Changed)
	assert.Equal(t, artisan.StatusActive, result.Current.Status)
	assert.Equal(t, artisan.IDStatusVerified, result.Current.KYC.IDStatus)
	assert.False(t, result.Current.Stats.HasActivity)

	stored, err := store.FetchArtisan(ctx, "2")
	require.NoError(t, err)
	assert.True(t, stored.IsActive())

	events := publisher.Events()
	require.Len(t, events, 2)
	require.NotNil(t, events[0].Patch)
	require.NotNil(t, events[0].Patch.IDStatus)
	assert.Equal(t, artisan.IDStatusVerified, *events[0].Patch.IDStatus)
	assert.Equal(t, artisan.StatusActive, events[1].Status)
	require.NotNil(t, events[1].Patch.HasActivity)
	assert.False(t, *events[1].Patch.HasActivity)
}

func TestWorkflowBlockUnblockRestoresActive(t *testing.T) {
	publisher := &capturingPublisher{}
	wf, _ := newDemoWorkflow(t, "1", artisan.WithPublisher(publisher))
	ctx := context.Background()
	before := wf.Artisan()

	_, err := wf.Block(ctx)
	require.NoError(t, err)
	assert.True(t, wf.Artisan().IsBlocked())

	result, err := wf.Unblock(ctx)
	require.NoError(t, err)
	assert.True(t, result.Changed)

	after := wf.Artisan()
	assert.True(t, after.IsActive())
	assert.Equal(t, before.KYC, after.KYC)
	assert.Equal(t, before.Stats, after.Stats)

	events := publisher.Events()
	require.Len(t, events, 2)
	assert.Equal(t, artisan.UpdateEvent{ID: "1", Status: artisan.StatusBlocked}, events[0])
	assert.Equal(t, artisan.UpdateEvent{ID: "1", Status: artisan.StatusActive}, events[1])
}

func TestWorkflowUnblockActiveIsNoop(t *testing.T) {
	store := &MockStore{}
	publisher := &capturingPublisher{}
	record := &artisan.Artisan{ID: "1", Status: artisan.StatusActive, KYC: artisan.KYC{IDStatus: artisan.IDStatusVerified}}
	wf := artisan.NewWorkflow(store, "1", artisan.WithInitialArtisan(record), artisan.WithPublisher(publisher))

	result, err := wf.Unblock(context.Background())

	require.NoError(t, err)
	assert.False(t, result.Changed)
	assert.True(t, result.Current.IsActive())
	assert.Empty(t, publisher.Events())
	store.AssertNotCalled(t, "UnblockArtisan", mock.Anything, mock.Anything)
}

func TestWorkflowBlockRollsBackOnStoreError(t *testing.T) {
	store := &MockStore{}
	publisher := &capturingPublisher{}
	storeErr := errors.New("network down")
	record := &artisan.Artisan{ID: "1", Status: artisan.StatusActive, KYC: artisan.KYC{IDStatus: artisan.IDStatusVerified}}

	release := make(chan struct{})
	store.On("BlockArtisan", mock.Anything, "1").
		Run(func(mock.Arguments) { <-release }).
		Return(nil, storeErr).Once()

	wf := artisan.NewWorkflow(store, "1",
		artisan.WithInitialArtisan(record),
		artisan.WithPublisher(publisher),
		artisan.WithWorkflowLogger(artisan.NopLogger{}),
	)

	done := make(chan error, 1)
	go func() {
		_, err := wf.Block(context.Background())
		done <- err
	}()

	require.Eventually(t, func() bool {
		return wf.Artisan().IsBlocked()
	}, time.Second, time.Millisecond)
	assert.True(t, wf.Busy())

	close(release)
	assert.ErrorIs(t, <-done, storeErr)

	assert.True(t, wf.Artisan().IsActive())
	assert.False(t, wf.Busy())
	assert.Empty(t, publisher.Events())
	store.AssertExpectations(t)
}

func TestWorkflowVerifyIDShowsVerifyingSynchronously(t *testing.T) {
	store := &MockStore{}
	record := pendingArtisan("2", artisan.IDStatusUnverified)

	release := make(chan struct{})
	store.On("VerifyIdentity", mock.Anything, "2", artisan.ForceSuccess).
		Run(func(mock.Arguments) { <-release }).
		Return(artisan.KYC{IDStatus: artisan.IDStatusVerified}, nil).Once()

	wf := artisan.NewWorkflow(store, "2", artisan.WithInitialArtisan(record))

	done := make(chan artisan.ActionResult, 1)
	go func() {
		result, err := wf.VerifyID(context.Background(), artisan.ForceSuccess)
		assert.NoError(t, err)
		done <- result
	}()

	require.Eventually(t, func() bool {
		return wf.Artisan().KYC.IDStatus == artisan.IDStatusVerifying
	}, time.Second, time.Millisecond)

	close(release)
	result := <-done

	assert.Equal(t, artisan.IDStatusVerified, result.IDStatus())
	current := wf.Artisan()
	assert.Equal(t, artisan.IDStatusVerified, current.KYC.IDStatus)
	assert.Equal(t, "National Identity card", current.KYC.IDType)
	store.AssertExpectations(t)
}

func TestWorkflowVerifyIDForcedFailure(t *testing.T) {
	wf, store := newDemoWorkflow(t, "2")

	result, err := wf.VerifyID(context.Background(), artisan.ForceFail)
	require.NoError(t, err)
	assert.Equal(t, artisan.IDStatusFailed, result.IDStatus())

	stored, err := store.FetchArtisan(context.Background(), "2")
	require.NoError(t, err)
	assert.Equal(t, artisan.IDStatusFailed, stored.KYC.IDStatus)

	// a failed check can be retried
	result, err = wf.VerifyID(context.Background(), artisan.ForceSuccess)
	require.NoError(t, err)
	assert.Equal(t, artisan.IDStatusVerified, result.IDStatus())
}

func TestWorkflowVerifyIDRollsBackOnError(t *testing.T) {
	store := &MockStore{}
	record := pendingArtisan("2", artisan.IDStatusFailed)
	store.On("VerifyIdentity", mock.Anything, "2", artisan.ForceNone).
		Return(artisan.KYC{}, errors.New("oracle unavailable")).Once()

	wf := artisan.NewWorkflow(store, "2", artisan.WithInitialArtisan(record), artisan.WithWorkflowLogger(artisan.NopLogger{}))

	_, err := wf.VerifyID(context.Background())
	require.Error(t, err)
	assert.Equal(t, artisan.IDStatusFailed, wf.Artisan().KYC.IDStatus)
}

func TestWorkflowVerifyIDTimeoutResolvesFailed(t *testing.T) {
	store := &MockStore{}
	record := pendingArtisan("2", artisan.IDStatusUnverified)
	store.On("VerifyIdentity", mock.Anything, "2", artisan.ForceNone).
		Run(func(args mock.Arguments) {
			ctx := args.Get(0).(context.Context)
			<-ctx.Done()
		}).
		Return(artisan.KYC{}, context.DeadlineExceeded).Once()

	publisher := &capturingPublisher{}
	wf := artisan.NewWorkflow(store, "2",
		artisan.WithInitialArtisan(record),
		artisan.WithVerifyTimeout(20*time.Millisecond),
		artisan.WithWorkflowLogger(artisan.NopLogger{}),
		artisan.WithPublisher(publisher),
	)

	result, err := wf.VerifyID(context.Background())
	require.NoError(t, err)
	assert.Equal(t, artisan.IDStatusFailed, result.IDStatus())
	assert.Equal(t, artisan.IDStatusFailed, wf.Artisan().KYC.IDStatus)
	assert.Empty(t, publisher.Events(), "an unconfirmed timeout outcome is not broadcast")
}

func TestWorkflowVerifyIDTimeoutLeavesStoreUntouched(t *testing.T) {
	store := artisan.NewDemoStore(
		artisan.WithMemoryLogger(artisan.NopLogger{}),
		artisan.WithMemoryLatency(200*time.Millisecond),
	)
	publisher := &capturingPublisher{}
	wf := artisan.NewWorkflow(store, "2",
		artisan.WithVerifyTimeout(20*time.Millisecond),
		artisan.WithWorkflowLogger(artisan.NopLogger{}),
		artisan.WithPublisher(publisher),
	)
	ctx := context.Background()
	require.NoError(t, wf.Load(ctx))

	_, err := wf.VerifyID(ctx)
	require.NoError(t, err)
	assert.Equal(t, artisan.IDStatusFailed, wf.Artisan().KYC.IDStatus)
	assert.Empty(t, publisher.Events())

	stored, err := store.FetchArtisan(ctx, "2")
	require.NoError(t, err)
	assert.Equal(t, artisan.IDStatusUnverified, stored.KYC.IDStatus)
}

func TestWorkflowRejectsConcurrentActions(t *testing.T) {
	store := &MockStore{}
	record := &artisan.Artisan{ID: "1", Status: artisan.StatusActive, KYC: artisan.KYC{IDStatus: artisan.IDStatusVerified}}

	release := make(chan struct{})
	store.On("BlockArtisan", mock.Anything, "1").
		Run(func(mock.Arguments) { <-release }).
		Return(&artisan.Artisan{ID: "1", Status: artisan.StatusBlocked, KYC: artisan.KYC{IDStatus: artisan.IDStatusVerified}}, nil).Once()

	wf := artisan.NewWorkflow(store, "1", artisan.WithInitialArtisan(record))

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		_, err := wf.Block(context.Background())
		assert.NoError(t, err)
	}()

	require.Eventually(t, wf.Busy, time.Second, time.Millisecond)

	_, err := wf.RequestReupload(context.Background())
	assert.ErrorIs(t, err, artisan.ErrActionInProgress)

	close(release)
	wg.Wait()

	assert.True(t, wf.Artisan().IsBlocked())
	store.AssertNotCalled(t, "RequestReupload", mock.Anything, mock.Anything)
}

func TestWorkflowCloseIgnoresLateResult(t *testing.T) {
	store := &MockStore{}
	publisher := &capturingPublisher{}
	record := &artisan.Artisan{ID: "1", Status: artisan.StatusActive, KYC: artisan.KYC{IDStatus: artisan.IDStatusVerified}}

	release := make(chan struct{})
	store.On("BlockArtisan", mock.Anything, "1").
		Run(func(mock.Arguments) { <-release }).
		Return(&artisan.Artisan{ID: "1", Status: artisan.StatusBlocked}, nil).Once()

	wf := artisan.NewWorkflow(store, "1", artisan.WithInitialArtisan(record), artisan.WithPublisher(publisher))

	done := make(chan artisan.ActionResult, 1)
	go func() {
		result, _ := wf.Block(context.Background())
		done <- result
	}()

	require.Eventually(t, wf.Busy, time.Second, time.Millisecond)
	wf.Close()
	close(release)

	result := <-done
	assert.True(t, result.Current.IsBlocked())
	assert.Empty(t, publisher.Events())
	store.AssertExpectations(t)
}

func TestWorkflowRequestReuploadIsNotOptimistic(t *testing.T) {
	store := &MockStore{}
	publisher := &capturingPublisher{}
	record := &artisan.Artisan{ID: "3", Status: artisan.StatusBlocked, KYC: artisan.KYC{IDStatus: artisan.IDStatusFailed}}

	release := make(chan struct{})
	store.On("RequestReupload", mock.Anything, "3").
		Run(func(mock.Arguments) { <-release }).
		Return(artisan.KYC{IDStatus: artisan.IDStatusUnverified}, nil).Once()

	wf := artisan.NewWorkflow(store, "3", artisan.WithInitialArtisan(record), artisan.WithPublisher(publisher))

	done := make(chan error, 1)
	go func() {
		_, err := wf.RequestReupload(context.Background())
		done <- err
	}()

	require.Eventually(t, wf.Busy, time.Second, time.Millisecond)
	assert.Equal(t, artisan.IDStatusFailed, wf.Artisan().KYC.IDStatus)

	close(release)
	require.NoError(t, <-done)
	assert.Equal(t, artisan.IDStatusUnverified, wf.Artisan().KYC.IDStatus)

	events := publisher.Events()
	require.Len(t, events, 1)
	assert.Equal(t, artisan.StatusBlocked, events[0].Status)
	assert.Equal(t, artisan.IDStatusUnverified, *events[0].Patch.IDStatus)
}

func TestWorkflowBroadcastPatchesListRows(t *testing.T) {
	broker := artisan.NewBroker()
	sub := broker.Subscribe(4)
	defer sub.Unsubscribe()

	wf, store := newDemoWorkflow(t, "1", artisan.WithPublisher(broker))
	page, err := store.ListArtisans(context.Background(), artisan.ListFilter{})
	require.NoError(t, err)

	_, err = wf.Block(context.Background())
	require.NoError(t, err)

	select {
	case evt := <-sub.C():
		require.True(t, evt.ApplyToRows(page.Items))
	case <-time.After(time.Second):
		t.Fatal("no update event")
	}

	assert.Equal(t, artisan.StatusBlocked, page.Items[0].Status)
	assert.Equal(t, artisan.StatusPending, page.Items[1].Status)
}
