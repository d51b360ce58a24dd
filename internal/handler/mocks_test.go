package handler_test

import (
	"context"

	"github.com/gofrs/uuid"
	"github.com/stretchr/testify/mock"

	"github.com/vasiliy-maslov/ecommerce-backend/internal/catalog"
	"github.com/vasiliy-maslov/ecommerce-backend/internal/order"
	"github.com/vasiliy-maslov/ecommerce-backend/internal/queue"
	"github.com/vasiliy-maslov/ecommerce-backend/internal/summary"
	"github.com/vasiliy-maslov/ecommerce-backend/internal/user"
)

type MockUserService struct {
	mock.Mock
}

func (m *MockUserService) CreateUser(ctx context.Context, u *user.User) (*user.User, error) {
	args := m.Called(ctx, u)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*user.User), args.Error(1)
}

func (m *MockUserService) GetUserByID(ctx context.Context, id uuid.UUID) (*user.User, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*user.User), args.Error(1)
}

func (m *MockUserService) GetUserByEmail(ctx context.Context, email string) (*user.User, error) {
	args := m.Called(ctx, email)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*user.User), args.Error(1)
}

type MockOrderService struct {
	mock.Mock
}

func (m *MockOrderService) CreateOrder(ctx context.Context, o *order.Order) (*order.Order, error) {
	args := m.Called(ctx, o)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*order.Order), args.Error(1)
}

func (m *MockOrderService) GetOrderByID(ctx context.Context, id uuid.UUID) (*order.Order, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*order.Order), args.Error(1)
}

func (m *MockOrderService) GetOrdersByUserID(ctx context.Context, userID uuid.UUID) ([]order.Order, error) {
	args := m.Called(ctx, userID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]order.Order), args.Error(1)
}

func (m *MockOrderService) UpdateOrderStatus(ctx context.Context, id uuid.UUID, status order.OrderStatus) error {
	return m.Called(ctx, id, status).Error(0)
}

type MockCatalogService struct {
	mock.Mock
}

func (m *MockCatalogService) ListProducts(ctx context.Context) ([]catalog.Product, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]catalog.Product), args.Error(1)
}

func (m *MockCatalogService) DeleteProduct(ctx context.Context, id uuid.UUID) error {
	return m.Called(ctx, id).Error(0)
}

func (m *MockCatalogService) InvalidateListing(ctx context.Context) {
	m.Called(ctx)
}

type MockEnqueuer struct {
	mock.Mock
}

func (m *MockEnqueuer) Enqueue(ctx context.Context, name string, args any) (*queue.TaskInfo, error) {
	a := m.Called(ctx, name, args)
	if a.Get(0) == nil {
		return nil, a.Error(1)
	}
	return a.Get(0).(*queue.TaskInfo), a.Error(1)
}

type MockSummaryReader struct {
	mock.Mock
}

func (m *MockSummaryReader) Current(ctx context.Context) (*summary.OrderSummary, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*summary.OrderSummary), args.Error(1)
}

type MockTaskResults struct {
	mock.Mock
}

func (m *MockTaskResults) Result(ctx context.Context, id string) (*queue.TaskResult, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*queue.TaskResult), args.Error(1)
}
