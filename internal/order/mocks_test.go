package order

import (
	"context"
	"time"

	"github.com/stretchr/testify/mock"
	"github.com/vasiliy-maslov/checkout-service/internal/catalog"
)

type MockRepository struct {
	mock.Mock
}

func (m *MockRepository) Create(ctx context.Context, o *Order) error {
	args := m.Called(ctx, o)
	return args.Error(0)
}

func (m *MockRepository) OrderNumberExists(ctx context.Context, number string) (bool, error) {
	args := m.Called(ctx, number)
	return args.Bool(0), args.Error(1)
}

func (m *MockRepository) GetForUser(ctx context.Context, userID, orderID int64) (*Order, error) {
	args := m.Called(ctx, userID, orderID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*Order), args.Error(1)
}

func (m *MockRepository) GetByID(ctx context.Context, orderID int64) (*Order, error) {
	args := m.Called(ctx, orderID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*Order), args.Error(1)
}

func (m *MockRepository) List(ctx context.Context, userID int64, filter ListFilter) ([]Order, int64, error) {
	args := m.Called(ctx, userID, filter)
	return args.Get(0).([]Order), args.Get(1).(int64), args.Error(2)
}

func (m *MockRepository) UpdateStatus(ctx context.Context, change StatusChange) (time.Time, error) {
	args := m.Called(ctx, change)
	return args.Get(0).(time.Time), args.Error(1)
}

func (m *MockRepository) SoftDelete(ctx context.Context, userID, orderID int64, allowed []Status) error {
	args := m.Called(ctx, userID, orderID, allowed)
	return args.Error(0)
}

func (m *MockRepository) FindByIdempotencyKey(ctx context.Context, userID int64, key string) (int64, error) {
	args := m.Called(ctx, userID, key)
	return args.Get(0).(int64), args.Error(1)
}

func (m *MockRepository) SaveIdempotencyKey(ctx context.Context, userID int64, key string, orderID int64) error {
	args := m.Called(ctx, userID, key, orderID)
	return args.Error(0)
}

type MockCatalog struct {
	mock.Mock
}

func (m *MockCatalog) GetProduct(ctx context.Context, id int64) (*catalog.Product, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*catalog.Product), args.Error(1)
}

func (m *MockCatalog) AdjustStock(ctx context.Context, id int64, delta int) error {
	args := m.Called(ctx, id, delta)
	return args.Error(0)
}

type recordedEvent struct {
	Type string
	Key  string
}

type fakeRecorder struct {
	events []recordedEvent
	err    error
}

func (r *fakeRecorder) Record(_ context.Context, eventType, key string, _ any) error {
	if r.err != nil {
		return r.err
	}
	r.events = append(r.events, recordedEvent{Type: eventType, Key: key})
	return nil
}
