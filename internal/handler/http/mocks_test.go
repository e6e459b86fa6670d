package http_test

import (
	"context"

	"github.com/stretchr/testify/mock"
	"github.com/vasiliy-maslov/checkout-service/internal/cart"
	"github.com/vasiliy-maslov/checkout-service/internal/checkout"
	"github.com/vasiliy-maslov/checkout-service/internal/order"
)

type MockCartService struct {
	mock.Mock
}

func (m *MockCartService) AddItem(ctx context.Context, userID, productID int64, quantity int) (*cart.Line, error) {
	args := m.Called(ctx, userID, productID, quantity)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*cart.Line), args.Error(1)
}

func (m *MockCartService) UpdateQuantity(ctx context.Context, userID, lineID int64, quantity int) (*cart.Line, error) {
	args := m.Called(ctx, userID, lineID, quantity)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*cart.Line), args.Error(1)
}

func (m *MockCartService) Remove(ctx context.Context, userID, lineID int64) error {
	return m.Called(ctx, userID, lineID).Error(0)
}

func (m *MockCartService) RemoveMany(ctx context.Context, userID int64, lineIDs []int64) error {
	return m.Called(ctx, userID, lineIDs).Error(0)
}

func (m *MockCartService) Clear(ctx context.Context, userID int64) error {
	return m.Called(ctx, userID).Error(0)
}

func (m *MockCartService) Select(ctx context.Context, userID, lineID int64, selected bool) error {
	return m.Called(ctx, userID, lineID, selected).Error(0)
}

func (m *MockCartService) SelectAll(ctx context.Context, userID int64, selected bool) error {
	return m.Called(ctx, userID, selected).Error(0)
}

func (m *MockCartService) List(ctx context.Context, userID int64) ([]cart.LineView, error) {
	args := m.Called(ctx, userID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]cart.LineView), args.Error(1)
}

func (m *MockCartService) ListSelected(ctx context.Context, userID int64) ([]cart.LineView, error) {
	args := m.Called(ctx, userID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]cart.LineView), args.Error(1)
}

func (m *MockCartService) Count(ctx context.Context, userID int64) (int, error) {
	args := m.Called(ctx, userID)
	return args.Int(0), args.Error(1)
}

type MockOrderService struct {
	mock.Mock
}

func (m *MockOrderService) ListOrders(ctx context.Context, userID int64, filter order.ListFilter) (*order.Page, error) {
	args := m.Called(ctx, userID, filter)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*order.Page), args.Error(1)
}

func (m *MockOrderService) GetOrderDetail(ctx context.Context, userID, orderID int64) (*order.Order, error) {
	return m.orderResult(m.Called(ctx, userID, orderID))
}

func (m *MockOrderService) Pay(ctx context.Context, userID, orderID int64) (*order.Order, error) {
	return m.orderResult(m.Called(ctx, userID, orderID))
}

func (m *MockOrderService) Ship(ctx context.Context, orderID int64) (*order.Order, error) {
	return m.orderResult(m.Called(ctx, orderID))
}

func (m *MockOrderService) Confirm(ctx context.Context, userID, orderID int64) (*order.Order, error) {
	return m.orderResult(m.Called(ctx, userID, orderID))
}

func (m *MockOrderService) Cancel(ctx context.Context, userID, orderID int64) (*order.Order, error) {
	return m.orderResult(m.Called(ctx, userID, orderID))
}

func (m *MockOrderService) Delete(ctx context.Context, userID, orderID int64) error {
	return m.Called(ctx, userID, orderID).Error(0)
}

func (m *MockOrderService) orderResult(args mock.Arguments) (*order.Order, error) {
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*order.Order), args.Error(1)
}

type MockOrderCreator struct {
	mock.Mock
}

func (m *MockOrderCreator) CreateOrder(ctx context.Context, req checkout.Request) (*order.Order, error) {
	args := m.Called(ctx, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*order.Order), args.Error(1)
}
