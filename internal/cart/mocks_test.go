package cart

import (
	"context"

	"github.com/stretchr/testify/mock"
	"github.com/vasiliy-maslov/checkout-service/internal/catalog"
)

type MockRepository struct {
	mock.Mock
}

func (m *MockRepository) GetLine(ctx context.Context, id int64) (*Line, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*Line), args.Error(1)
}

func (m *MockRepository) FindLine(ctx context.Context, userID, productID int64) (*Line, error) {
	args := m.Called(ctx, userID, productID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*Line), args.Error(1)
}

func (m *MockRepository) GetLines(ctx context.Context, ids []int64) ([]Line, error) {
	args := m.Called(ctx, ids)
	return args.Get(0).([]Line), args.Error(1)
}

func (m *MockRepository) SelectedLines(ctx context.Context, userID int64) ([]Line, error) {
	args := m.Called(ctx, userID)
	return args.Get(0).([]Line), args.Error(1)
}

func (m *MockRepository) CreateLine(ctx context.Context, line *Line) error {
	args := m.Called(ctx, line)
	return args.Error(0)
}

func (m *MockRepository) UpdateQuantity(ctx context.Context, id int64, quantity int) error {
	args := m.Called(ctx, id, quantity)
	return args.Error(0)
}

func (m *MockRepository) SetSelected(ctx context.Context, id int64, selected bool) error {
	args := m.Called(ctx, id, selected)
	return args.Error(0)
}

func (m *MockRepository) SetSelectedAll(ctx context.Context, userID int64, selected bool) (int64, error) {
	args := m.Called(ctx, userID, selected)
	return args.Get(0).(int64), args.Error(1)
}

func (m *MockRepository) SoftDelete(ctx context.Context, userID int64, ids []int64) (int64, error) {
	args := m.Called(ctx, userID, ids)
	return args.Get(0).(int64), args.Error(1)
}

func (m *MockRepository) SoftDeleteAll(ctx context.Context, userID int64) (int64, error) {
	args := m.Called(ctx, userID)
	return args.Get(0).(int64), args.Error(1)
}

func (m *MockRepository) ListViews(ctx context.Context, userID int64, selectedOnly bool) ([]LineView, error) {
	args := m.Called(ctx, userID, selectedOnly)
	return args.Get(0).([]LineView), args.Error(1)
}

func (m *MockRepository) Count(ctx context.Context, userID int64) (int, error) {
	args := m.Called(ctx, userID)
	return args.Int(0), args.Error(1)
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
