// Package mocks holds testify doubles for the service's collaborator
// interfaces.
package mocks

import (
	"context"
	"time"

	"push-relay/internal/models"
	"push-relay/internal/ratelimit"
	"push-relay/internal/registry"
	"push-relay/internal/transport"

	"github.com/stretchr/testify/mock"
)

// MockStore is a mock implementation of registry.Store
type MockStore struct {
	mock.Mock
}

func (m *MockStore) Upsert(ctx context.Context, sub *models.Subscription) (*models.Subscription, error) {
	args := m.Called(ctx, sub)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Subscription), args.Error(1)
}

func (m *MockStore) GetByID(ctx context.Context, id string) (*models.Subscription, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Subscription), args.Error(1)
}

func (m *MockStore) ListByApp(ctx context.Context, appID string, filter registry.Filter) ([]models.Subscription, error) {
	args := m.Called(ctx, appID, filter)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]models.Subscription), args.Error(1)
}

func (m *MockStore) ListByIDs(ctx context.Context, ids []string) ([]models.Subscription, error) {
	args := m.Called(ctx, ids)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]models.Subscription), args.Error(1)
}

func (m *MockStore) Delete(ctx context.Context, id string) (bool, error) {
	args := m.Called(ctx, id)
	return args.Bool(0), args.Error(1)
}

func (m *MockStore) DeleteByEndpoint(ctx context.Context, appID, endpoint string) (bool, error) {
	args := m.Called(ctx, appID, endpoint)
	return args.Bool(0), args.Error(1)
}

func (m *MockStore) Count(ctx context.Context, appID string) (int, error) {
	args := m.Called(ctx, appID)
	return args.Int(0), args.Error(1)
}

// MockLimiter is a mock implementation of ratelimit.Limiter
type MockLimiter struct {
	mock.Mock
}

func (m *MockLimiter) CheckAndIncrement(ctx context.Context, appID string, action ratelimit.Action, limit int, window time.Duration) (ratelimit.Result, error) {
	args := m.Called(ctx, appID, action, limit, window)
	return args.Get(0).(ratelimit.Result), args.Error(1)
}

// MockSender is a mock implementation of transport.Sender
type MockSender struct {
	mock.Mock
}

func (m *MockSender) Deliver(ctx context.Context, identity transport.Identity, target transport.Target, payload []byte, opts transport.Options) (int, error) {
	args := m.Called(ctx, identity, target, payload, opts)
	return args.Int(0), args.Error(1)
}

// MockDirectory is a mock implementation of directory.Directory
type MockDirectory struct {
	mock.Mock
}

func (m *MockDirectory) ResolveByCredential(ctx context.Context, credential string) (*models.App, error) {
	args := m.Called(ctx, credential)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.App), args.Error(1)
}

func (m *MockDirectory) ResolveOwnerApps(ctx context.Context, ownerID string) ([]models.App, error) {
	args := m.Called(ctx, ownerID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]models.App), args.Error(1)
}

func (m *MockDirectory) Register(ctx context.Context, ownerID, name string) (*models.App, string, error) {
	args := m.Called(ctx, ownerID, name)
	if args.Get(0) == nil {
		return nil, args.String(1), args.Error(2)
	}
	return args.Get(0).(*models.App), args.String(1), args.Error(2)
}

// MockDispatcher is a mock implementation of handlers.Dispatcher
type MockDispatcher struct {
	mock.Mock
}

func (m *MockDispatcher) Send(ctx context.Context, app *models.App, req *models.SendRequest) (*models.BatchResult, error) {
	args := m.Called(ctx, app, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.BatchResult), args.Error(1)
}

func (m *MockDispatcher) SendDirect(ctx context.Context, app *models.App, req *models.DirectSendRequest) (*models.DispatchResult, error) {
	args := m.Called(ctx, app, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.DispatchResult), args.Error(1)
}
