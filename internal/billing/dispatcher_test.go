package billing

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"cinemagic/internal/types"
)

func TestMontageDispatcher_Run_ActiveSubscriber(t *testing.T) {
	gate := new(mockGate)
	engine := new(mockEngine)
	quota := new(mockProfileStore)
	d := NewMontageDispatcher(gate, engine, quota, nil)

	gate.On("Check", mock.Anything, "user_1").
		Return(&types.EntitlementDecision{Allowed: true, Status: types.SubStatusActive}, nil)
	engine.On("Render", mock.Anything, "user_1", "uploads/clip.mp4", "retro").
		Return("https://cdn.example.com/out/1.mp4", nil)

	resultURL, err := d.Run(context.Background(), "user_1", "uploads/clip.mp4", "retro")
	require.NoError(t, err)
	assert.Equal(t, "https://cdn.example.com/out/1.mp4", resultURL)

	// Active subscribers never touch trial quota.
	quota.AssertNotCalled(t, "ConsumeTrialUse", mock.Anything, mock.Anything)
}

func TestMontageDispatcher_Run_TrialConsumesAfterSuccess(t *testing.T) {
	gate := new(mockGate)
	engine := new(mockEngine)
	quota := new(mockProfileStore)
	d := NewMontageDispatcher(gate, engine, quota, nil)

	gate.On("Check", mock.Anything, "user_1").
		Return(&types.EntitlementDecision{Allowed: true, Status: types.SubStatusTrial, RemainingTrialUses: 1}, nil)
	engine.On("Render", mock.Anything, "user_1", "uploads/clip.mp4", "retro").
		Return("https://cdn.example.com/out/2.mp4", nil)
	quota.On("ConsumeTrialUse", mock.Anything, "user_1").Return(true, nil)

	resultURL, err := d.Run(context.Background(), "user_1", "uploads/clip.mp4", "retro")
	require.NoError(t, err)
	assert.NotEmpty(t, resultURL)
	quota.AssertCalled(t, "ConsumeTrialUse", mock.Anything, "user_1")
}

func TestMontageDispatcher_Run_EngineFailureLeavesQuota(t *testing.T) {
	gate := new(mockGate)
	engine := new(mockEngine)
	quota := new(mockProfileStore)
	d := NewMontageDispatcher(gate, engine, quota, nil)

	gate.On("Check", mock.Anything, "user_1").
		Return(&types.EntitlementDecision{Allowed: true, Status: types.SubStatusTrial, RemainingTrialUses: 1}, nil)
	engine.On("Render", mock.Anything, "user_1", "uploads/clip.mp4", "retro").
		Return("", types.NewAppError(types.ErrCodeUpstreamMontage, "render failed", nil))

	_, err := d.Run(context.Background(), "user_1", "uploads/clip.mp4", "retro")
	require.Error(t, err)

	var appErr *types.AppError
	require.True(t, errors.As(err, &appErr))
	assert.Equal(t, types.ErrCodeUpstreamMontage, appErr.Code)
	quota.AssertNotCalled(t, "ConsumeTrialUse", mock.Anything, mock.Anything)
}

func TestMontageDispatcher_Run_DeniedLimitReached(t *testing.T) {
	gate := new(mockGate)
	engine := new(mockEngine)
	quota := new(mockProfileStore)
	d := NewMontageDispatcher(gate, engine, quota, nil)

	gate.On("Check", mock.Anything, "user_1").
		Return(&types.EntitlementDecision{
			Allowed: false,
			Reason:  types.ReasonLimitReached,
			Status:  types.SubStatusTrial,
		}, nil)

	_, err := d.Run(context.Background(), "user_1", "uploads/clip.mp4", "retro")
	require.Error(t, err)

	var appErr *types.AppError
	require.True(t, errors.As(err, &appErr))
	assert.Equal(t, types.ErrCodeEntitlementQuotaExceeded, appErr.Code)

	// No work is performed on denial.
	engine.AssertNotCalled(t, "Render", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestMontageDispatcher_Run_DeniedSubscriptionRequired(t *testing.T) {
	gate := new(mockGate)
	engine := new(mockEngine)
	quota := new(mockProfileStore)
	d := NewMontageDispatcher(gate, engine, quota, nil)

	gate.On("Check", mock.Anything, "user_1").
		Return(&types.EntitlementDecision{
			Allowed: false,
			Reason:  types.ReasonSubscriptionRequired,
			Status:  types.SubStatusFree,
		}, nil)

	_, err := d.Run(context.Background(), "user_1", "uploads/clip.mp4", "retro")
	require.Error(t, err)

	var appErr *types.AppError
	require.True(t, errors.As(err, &appErr))
	assert.Equal(t, types.ErrCodeEntitlementSubscriptionRequired, appErr.Code)
	engine.AssertNotCalled(t, "Render", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestMontageDispatcher_Run_GateErrorPropagates(t *testing.T) {
	gate := new(mockGate)
	engine := new(mockEngine)
	quota := new(mockProfileStore)
	d := NewMontageDispatcher(gate, engine, quota, nil)

	gate.On("Check", mock.Anything, "nobody").
		Return(nil, types.NewAppError(types.ErrCodeEntitlementProfileNotFound, "profile not found", nil))

	_, err := d.Run(context.Background(), "nobody", "uploads/clip.mp4", "retro")
	require.Error(t, err)

	var appErr *types.AppError
	require.True(t, errors.As(err, &appErr))
	assert.Equal(t, types.ErrCodeEntitlementProfileNotFound, appErr.Code)
}

func TestMontageDispatcher_Run_ConsumeFailureStillReturnsResult(t *testing.T) {
	gate := new(mockGate)
	engine := new(mockEngine)
	quota := new(mockProfileStore)
	d := NewMontageDispatcher(gate, engine, quota, nil)

	gate.On("Check", mock.Anything, "user_1").
		Return(&types.EntitlementDecision{Allowed: true, Status: types.SubStatusTrial, RemainingTrialUses: 1}, nil)
	engine.On("Render", mock.Anything, "user_1", "uploads/clip.mp4", "retro").
		Return("https://cdn.example.com/out/3.mp4", nil)
	quota.On("ConsumeTrialUse", mock.Anything, "user_1").
		Return(false, types.NewAppError(types.ErrCodeInternalDB, "db down", errors.New("refused")))

	resultURL, err := d.Run(context.Background(), "user_1", "uploads/clip.mp4", "retro")
	require.NoError(t, err)
	assert.Equal(t, "https://cdn.example.com/out/3.mp4", resultURL)
}
