package firmauth_test

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/firmdesk/firmauth"
)

func TestAccountStateMachineTransitionToSuspendedSetsTimestamp(t *testing.T) {
	repo := &MockStatusStore{}
	now := time.Date(2026, 6, 1, 12, 0, 0, 0, time.UTC)
	account := &firmauth.Account{
		ID:     uuid.New(),
		Status: firmauth.AccountStatusActive,
	}

	expected := &firmauth.Account{
		ID:          account.ID,
		Status:      firmauth.AccountStatusSuspended,
		SuspendedAt: &now,
	}

	repo.On("UpdateStatus", mock.Anything, account.ID, firmauth.AccountStatusSuspended, mock.Anything).
		Return(expected, nil).Once()

	sm := firmauth.NewAccountStateMachine(repo, firmauth.WithStateMachineClock(func() time.Time { return now }))

	result, err := sm.Transition(context.Background(), firmauth.ActorRef{ID: "admin"}, account, firmauth.AccountStatusSuspended)
	require.NoError(t, err)
	assert.Equal(t, firmauth.AccountStatusSuspended, result.Status)
	require.NotNil(t, result.SuspendedAt)
	assert.Equal(t, now, result.SuspendedAt.UTC())
	repo.AssertExpectations(t)
}

func TestAccountStateMachineRejectsInvalidTransition(t *testing.T) {
	repo := &MockStatusStore{}
	account := &firmauth.Account{
		ID:     uuid.New(),
		Status: firmauth.AccountStatusPending,
	}

	sm := firmauth.NewAccountStateMachine(repo)

	_, err := sm.Transition(context.Background(), firmauth.ActorRef{}, account, firmauth.AccountStatusSuspended)
	require.Error(t, err)
	assert.ErrorIs(t, err, firmauth.ErrInvalidTransition)
	repo.AssertNotCalled(t, "UpdateStatus", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestAccountStateMachineArchivedIsTerminal(t *testing.T) {
	repo := &MockStatusStore{}
	account := &firmauth.Account{
		ID:     uuid.New(),
		Status: firmauth.AccountStatusArchived,
	}

	sm := firmauth.NewAccountStateMachine(repo)

	_, err := sm.Transition(context.Background(), firmauth.ActorRef{}, account, firmauth.AccountStatusActive)
	require.Error(t, err)
	assert.ErrorIs(t, err, firmauth.ErrTerminalState)
}

func TestAccountStateMachineForceTransitionBypassesValidation(t *testing.T) {
	repo := &MockStatusStore{}
	account := &firmauth.Account{
		ID:     uuid.New(),
		Status: firmauth.AccountStatusPending,
	}

	repo.On("UpdateStatus", mock.Anything, account.ID, firmauth.AccountStatusSuspended, mock.Anything).
		Return(&firmauth.Account{ID: account.ID, Status: firmauth.AccountStatusSuspended}, nil).Once()

	sm := firmauth.NewAccountStateMachine(repo)

	result, err := sm.Transition(
		context.Background(),
		firmauth.ActorRef{},
		account,
		firmauth.AccountStatusSuspended,
		firmauth.WithForceTransition(),
	)
	require.NoError(t, err)
	assert.Equal(t, firmauth.AccountStatusSuspended, result.Status)
	repo.AssertExpectations(t)
}

func TestAccountStateMachineLeavingSuspendedClearsTimestamp(t *testing.T) {
	repo := &MockStatusStore{}
	now := time.Now()
	account := &firmauth.Account{
		ID:          uuid.New(),
		Status:      firmauth.AccountStatusSuspended,
		SuspendedAt: &now,
	}

	repo.On("UpdateStatus", mock.Anything, account.ID, firmauth.AccountStatusActive, mock.Anything).
		Return(&firmauth.Account{ID: account.ID, Status: firmauth.AccountStatusActive}, nil).Once()

	sm := firmauth.NewAccountStateMachine(repo)

	result, err := sm.Transition(context.Background(), firmauth.ActorRef{}, account, firmauth.AccountStatusActive)
	require.NoError(t, err)
	assert.True(t, result.IsActive())
	assert.Nil(t, result.SuspendedAt)
	repo.AssertExpectations(t)
}

func TestAccountStateMachineDisabledCanBeReactivated(t *testing.T) {
	repo := &MockStatusStore{}
	account := &firmauth.Account{
		ID:     uuid.New(),
		Status: firmauth.AccountStatusDisabled,
	}

	repo.On("UpdateStatus", mock.Anything, account.ID, firmauth.AccountStatusActive, mock.Anything).
		Return(&firmauth.Account{ID: account.ID, Status: firmauth.AccountStatusActive}, nil).Once()

	sm := firmauth.NewAccountStateMachine(repo)

	result, err := sm.Transition(context.Background(), firmauth.ActorRef{}, account, firmauth.AccountStatusActive)
	require.NoError(t, err)
	assert.True(t, result.IsActive())
}

func TestAccountStateMachineRunsHooksWithMetadata(t *testing.T) {
	repo := &MockStatusStore{}
	account := &firmauth.Account{
		ID:     uuid.New(),
		Status: firmauth.AccountStatusActive,
	}

	ts := time.Date(2026, 6, 1, 15, 0, 0, 0, time.UTC)

	repo.On("UpdateStatus", mock.Anything, account.ID, firmauth.AccountStatusSuspended, mock.Anything).
		Return(&firmauth.Account{ID: account.ID, Status: firmauth.AccountStatusSuspended, SuspendedAt: &ts}, nil).Once()

	var beforeCalled, afterCalled bool
	var reasonSeen string
	var metadataSeen map[string]any

	before := func(ctx context.Context, tc firmauth.TransitionContext) error {
		beforeCalled = true
		reasonSeen = tc.Meta.Reason
		metadataSeen = tc.Meta.Metadata
		return nil
	}
	after := func(ctx context.Context, tc firmauth.TransitionContext) error {
		afterCalled = true
		return nil
	}

	sm := firmauth.NewAccountStateMachine(repo)

	_, err := sm.Transition(
		context.Background(),
		firmauth.ActorRef{ID: "admin", Type: "account"},
		account,
		firmauth.AccountStatusSuspended,
		firmauth.WithTransitionReason("billing dispute"),
		firmauth.WithTransitionMetadata(map[string]any{"ticket": "T-99"}),
		firmauth.WithBeforeTransitionHook(before),
		firmauth.WithAfterTransitionHook(after),
	)
	require.NoError(t, err)
	assert.True(t, beforeCalled)
	assert.True(t, afterCalled)
	assert.Equal(t, "billing dispute", reasonSeen)
	assert.Equal(t, map[string]any{"ticket": "T-99"}, metadataSeen)
}

func TestAccountStateMachinePublishesActivity(t *testing.T) {
	repo := &MockStatusStore{}
	sink := &collectingSink{}
	account := &firmauth.Account{
		ID:     uuid.New(),
		FirmID: uuid.New(),
		Status: firmauth.AccountStatusActive,
	}

	repo.On("UpdateStatus", mock.Anything, account.ID, firmauth.AccountStatusDisabled, mock.Anything).
		Return(&firmauth.Account{ID: account.ID, Status: firmauth.AccountStatusDisabled}, nil).Once()

	sm := firmauth.NewAccountStateMachine(repo, firmauth.WithStateMachineActivitySink(sink))

	_, err := sm.Transition(context.Background(), firmauth.ActorRef{}, account, firmauth.AccountStatusDisabled)
	require.NoError(t, err)

	require.Len(t, sink.events, 1)
	event := sink.events[0]
	assert.Equal(t, firmauth.ActivityEventAccountStatusChanged, event.EventType)
	assert.Equal(t, account.ID.String(), event.AccountID)
	assert.Equal(t, account.FirmID.String(), event.FirmID)
	assert.Equal(t, firmauth.AccountStatusActive, event.FromStatus)
	assert.Equal(t, firmauth.AccountStatusDisabled, event.ToStatus)
	assert.Equal(t, "system", event.Actor.Type)
}

func TestAccountStateMachineNoopWhenAlreadyInTarget(t *testing.T) {
	repo := &MockStatusStore{}
	account := &firmauth.Account{
		ID:     uuid.New(),
		Status: firmauth.AccountStatusActive,
	}

	sm := firmauth.NewAccountStateMachine(repo)

	result, err := sm.Transition(context.Background(), firmauth.ActorRef{}, account, firmauth.AccountStatusActive)
	require.NoError(t, err)
	assert.Same(t, account, result)
	repo.AssertNotCalled(t, "UpdateStatus", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}
