package billing

import (
	"context"
	"time"

	"github.com/stretchr/testify/mock"

	"cinemagic/internal/external"
	"cinemagic/internal/types"
)

// --- profile store ---

type mockProfileStore struct {
	mock.Mock
}

func (m *mockProfileStore) GetByUserID(ctx context.Context, userID string) (*types.UserProfile, error) {
	args := m.Called(ctx, userID)
	if p := args.Get(0); p != nil {
		return p.(*types.UserProfile), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *mockProfileStore) GetByCustomerID(ctx context.Context, customerID string) (*types.UserProfile, error) {
	args := m.Called(ctx, customerID)
	if p := args.Get(0); p != nil {
		return p.(*types.UserProfile), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *mockProfileStore) SetCustomerID(ctx context.Context, userID, customerID string) (bool, error) {
	args := m.Called(ctx, userID, customerID)
	return args.Bool(0), args.Error(1)
}

func (m *mockProfileStore) UpdateStatusByCustomer(ctx context.Context, customerID string, status types.SubscriptionStatus, eventTime time.Time, skipIfActive bool) (bool, error) {
	args := m.Called(ctx, customerID, status, eventTime, skipIfActive)
	return args.Bool(0), args.Error(1)
}

func (m *mockProfileStore) ConsumeTrialUse(ctx context.Context, userID string) (bool, error) {
	args := m.Called(ctx, userID)
	return args.Bool(0), args.Error(1)
}

// --- event store ---

type mockEventStore struct {
	mock.Mock
}

func (m *mockEventStore) Claim(ctx context.Context, eventID, eventType string) (bool, error) {
	args := m.Called(ctx, eventID, eventType)
	return args.Bool(0), args.Error(1)
}

func (m *mockEventStore) Release(ctx context.Context, eventID string) error {
	args := m.Called(ctx, eventID)
	return args.Error(0)
}

// --- stripe client ---

type mockStripeAPI struct {
	mock.Mock
}

func (m *mockStripeAPI) CreateCustomer(ctx context.Context, userID string) (string, error) {
	args := m.Called(ctx, userID)
	return args.String(0), args.Error(1)
}

func (m *mockStripeAPI) DeleteCustomer(ctx context.Context, customerID string) error {
	args := m.Called(ctx, customerID)
	return args.Error(0)
}

func (m *mockStripeAPI) CreateCheckoutSession(ctx context.Context, p external.CheckoutParams) (string, error) {
	args := m.Called(ctx, p)
	return args.String(0), args.Error(1)
}

// --- resolver ---

type mockResolver struct {
	mock.Mock
}

func (m *mockResolver) ResolveOrCreate(ctx context.Context, userID string) (string, error) {
	args := m.Called(ctx, userID)
	return args.String(0), args.Error(1)
}

// --- entitlement gate ---

type mockGate struct {
	mock.Mock
}

func (m *mockGate) Check(ctx context.Context, userID string) (*types.EntitlementDecision, error) {
	args := m.Called(ctx, userID)
	if d := args.Get(0); d != nil {
		return d.(*types.EntitlementDecision), args.Error(1)
	}
	return nil, args.Error(1)
}

// --- montage engine ---

type mockEngine struct {
	mock.Mock
}

func (m *mockEngine) Render(ctx context.Context, userID, videoPath, theme string) (string, error) {
	args := m.Called(ctx, userID, videoPath, theme)
	return args.String(0), args.Error(1)
}
