package cart

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"github.com/vasiliy-maslov/checkout-service/internal/apperror"
	"github.com/vasiliy-maslov/checkout-service/internal/audit"
	"github.com/vasiliy-maslov/checkout-service/internal/catalog"
	"github.com/vasiliy-maslov/checkout-service/internal/db/dbtest"
)

const (
	userID    int64 = 100
	otherUser int64 = 200
	productID int64 = 7
)

func listedProduct(stock int) *catalog.Product {
	return &catalog.Product{
		ID:     productID,
		Name:   "keyboard",
		Price:  decimal.RequireFromString("89.90"),
		Stock:  stock,
		Status: catalog.StatusListed,
	}
}

func newTestService(repo *MockRepository, products *MockCatalog, cache CountCache) Service {
	return NewService(dbtest.Passthrough{}, repo, products, cache)
}

func TestService_AddItem_CreatesSelectedLine(t *testing.T) {
	repo := new(MockRepository)
	products := new(MockCatalog)
	svc := newTestService(repo, products, nil)

	products.On("GetProduct", mock.Anything, productID).Return(listedProduct(5), nil).Once()
	repo.On("FindLine", mock.Anything, userID, productID).Return(nil, ErrLineNotFound).Once()
	repo.On("CreateLine", mock.Anything, mock.MatchedBy(func(l *Line) bool {
		return l.UserID == userID && l.ProductID == productID && l.Quantity == 2 && l.Selected
	})).Run(func(args mock.Arguments) {
		args.Get(1).(*Line).ID = 11
	}).Return(nil).Once()

	line, err := svc.AddItem(context.Background(), userID, productID, 2)

	require.NoError(t, err)
	assert.Equal(t, int64(11), line.ID)
	assert.True(t, line.Selected)
	repo.AssertExpectations(t)
	products.AssertExpectations(t)
}

func TestService_AddItem_MergesWithExistingLine(t *testing.T) {
	repo := new(MockRepository)
	products := new(MockCatalog)
	svc := newTestService(repo, products, nil)

	existing := &Line{ID: 3, UserID: userID, ProductID: productID, Quantity: 2, Selected: true}
	products.On("GetProduct", mock.Anything, productID).Return(listedProduct(5), nil).Once()
	repo.On("FindLine", mock.Anything, userID, productID).Return(existing, nil).Once()
	repo.On("UpdateQuantity", mock.Anything, int64(3), 5).Return(nil).Once()

	line, err := svc.AddItem(context.Background(), userID, productID, 3)

	require.NoError(t, err)
	assert.Equal(t, 5, line.Quantity)
	repo.AssertExpectations(t)
}

func TestService_AddItem_MergeExceedingStockLeavesLineUnchanged(t *testing.T) {
	repo := new(MockRepository)
	products := new(MockCatalog)
	svc := newTestService(repo, products, nil)

	existing := &Line{ID: 3, UserID: userID, ProductID: productID, Quantity: 2, Selected: true}
	products.On("GetProduct", mock.Anything, productID).Return(listedProduct(5), nil).Once()
	repo.On("FindLine", mock.Anything, userID, productID).Return(existing, nil).Once()

	_, err := svc.AddItem(context.Background(), userID, productID, 4)

	require.ErrorIs(t, err, apperror.ErrInsufficientStock)
	assert.Equal(t, 2, existing.Quantity)
	repo.AssertNotCalled(t, "UpdateQuantity", mock.Anything, mock.Anything, mock.Anything)
	repo.AssertNotCalled(t, "CreateLine", mock.Anything, mock.Anything)
}

func TestService_AddItem_ProductChecks(t *testing.T) {
	deleted := listedProduct(5)
	deleted.Envelope = audit.Envelope{Deleted: true}
	delisted := listedProduct(5)
	delisted.Status = catalog.StatusDelisted

	tests := []struct {
		name       string
		product    *catalog.Product
		productErr error
		quantity   int
		wantErr    error
	}{
		{"missing product", nil, catalog.ErrProductNotFound, 1, apperror.ErrNotFound},
		{"deleted product", deleted, nil, 1, apperror.ErrNotFound},
		{"delisted product", delisted, nil, 1, apperror.ErrProductUnavailable},
		{"not enough stock", listedProduct(1), nil, 2, apperror.ErrInsufficientStock},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			repo := new(MockRepository)
			products := new(MockCatalog)
			svc := newTestService(repo, products, nil)

			products.On("GetProduct", mock.Anything, productID).Return(tt.product, tt.productErr).Once()
			repo.On("FindLine", mock.Anything, userID, productID).Return(nil, ErrLineNotFound).Maybe()

			_, err := svc.AddItem(context.Background(), userID, productID, tt.quantity)

			require.ErrorIs(t, err, tt.wantErr)
			repo.AssertNotCalled(t, "CreateLine", mock.Anything, mock.Anything)
		})
	}
}

func TestService_AddItem_InvalidQuantity(t *testing.T) {
	svc := newTestService(new(MockRepository), new(MockCatalog), nil)

	_, err := svc.AddItem(context.Background(), userID, productID, 0)
	assert.ErrorIs(t, err, apperror.ErrValidation)
}

func TestService_UpdateQuantity(t *testing.T) {
	tests := []struct {
		name     string
		line     *Line
		lineErr  error
		stock    int
		quantity int
		wantErr  error
	}{
		{"updates", &Line{ID: 3, UserID: userID, ProductID: productID, Quantity: 1}, nil, 5, 4, nil},
		{"missing line", nil, ErrLineNotFound, 5, 4, apperror.ErrNotFound},
		{"foreign line", &Line{ID: 3, UserID: otherUser, ProductID: productID, Quantity: 1}, nil, 5, 4, apperror.ErrPermissionDenied},
		{"exceeds live stock", &Line{ID: 3, UserID: userID, ProductID: productID, Quantity: 1}, nil, 3, 4, apperror.ErrInsufficientStock},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			repo := new(MockRepository)
			products := new(MockCatalog)
			svc := newTestService(repo, products, nil)

			repo.On("GetLine", mock.Anything, int64(3)).Return(tt.line, tt.lineErr).Once()
			products.On("GetProduct", mock.Anything, productID).Return(listedProduct(tt.stock), nil).Maybe()
			repo.On("UpdateQuantity", mock.Anything, int64(3), tt.quantity).Return(nil).Maybe()

			line, err := svc.UpdateQuantity(context.Background(), userID, 3, tt.quantity)

			if tt.wantErr != nil {
				require.ErrorIs(t, err, tt.wantErr)
				repo.AssertNotCalled(t, "UpdateQuantity", mock.Anything, mock.Anything, mock.Anything)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.quantity, line.Quantity)
		})
	}
}

func TestService_RemoveMany_IsAllOrNothing(t *testing.T) {
	tests := []struct {
		name    string
		ids     []int64
		found   []Line
		wantErr error
	}{
		{"empty batch", nil, nil, apperror.ErrValidation},
		{"one id missing", []int64{1, 2}, []Line{{ID: 1, UserID: userID}}, apperror.ErrNotFound},
		{"one id foreign", []int64{1, 2}, []Line{{ID: 1, UserID: userID}, {ID: 2, UserID: otherUser}}, apperror.ErrPermissionDenied},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			repo := new(MockRepository)
			svc := newTestService(repo, new(MockCatalog), nil)

			repo.On("GetLines", mock.Anything, tt.ids).Return(tt.found, nil).Maybe()

			err := svc.RemoveMany(context.Background(), userID, tt.ids)

			require.ErrorIs(t, err, tt.wantErr)
			repo.AssertNotCalled(t, "SoftDelete", mock.Anything, mock.Anything, mock.Anything)
		})
	}
}

func TestService_RemoveMany_DeletesDistinctIDs(t *testing.T) {
	repo := new(MockRepository)
	svc := newTestService(repo, new(MockCatalog), nil)

	ids := []int64{1, 2}
	repo.On("GetLines", mock.Anything, ids).Return([]Line{{ID: 1, UserID: userID}, {ID: 2, UserID: userID}}, nil).Once()
	repo.On("SoftDelete", mock.Anything, userID, ids).Return(int64(2), nil).Once()

	err := svc.RemoveMany(context.Background(), userID, []int64{1, 2, 1})

	require.NoError(t, err)
	repo.AssertExpectations(t)
}

func TestService_Remove_ForeignLine(t *testing.T) {
	repo := new(MockRepository)
	svc := newTestService(repo, new(MockCatalog), nil)

	repo.On("GetLine", mock.Anything, int64(9)).Return(&Line{ID: 9, UserID: otherUser}, nil).Once()

	err := svc.Remove(context.Background(), userID, 9)

	require.ErrorIs(t, err, ErrNotOwner)
	repo.AssertNotCalled(t, "SoftDelete", mock.Anything, mock.Anything, mock.Anything)
}

func TestService_Select(t *testing.T) {
	repo := new(MockRepository)
	svc := newTestService(repo, new(MockCatalog), nil)

	repo.On("GetLine", mock.Anything, int64(9)).Return(&Line{ID: 9, UserID: userID, Selected: true}, nil).Once()
	repo.On("SetSelected", mock.Anything, int64(9), false).Return(nil).Once()
	repo.On("SetSelectedAll", mock.Anything, userID, true).Return(int64(3), nil).Once()

	require.NoError(t, svc.Select(context.Background(), userID, 9, false))
	require.NoError(t, svc.SelectAll(context.Background(), userID, true))
	repo.AssertExpectations(t)
}

func TestService_InfrastructureErrorsAreWrapped(t *testing.T) {
	repo := new(MockRepository)
	svc := newTestService(repo, new(MockCatalog), nil)

	repo.On("SoftDeleteAll", mock.Anything, userID).Return(int64(0), errors.New("connection reset")).Once()

	err := svc.Clear(context.Background(), userID)

	require.Error(t, err)
	assert.Equal(t, apperror.Internal, apperror.KindOf(err))
	assert.Contains(t, err.Error(), "service: failed to clear cart")
}

func TestService_Count_ReadsThroughCache(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })
	cache := NewRedisCountCache(client, time.Minute)

	repo := new(MockRepository)
	products := new(MockCatalog)
	svc := newTestService(repo, products, cache)
	ctx := context.Background()

	repo.On("Count", mock.Anything, userID).Return(4, nil).Once()

	count, err := svc.Count(ctx, userID)
	require.NoError(t, err)
	assert.Equal(t, 4, count)

	count, err = svc.Count(ctx, userID)
	require.NoError(t, err)
	assert.Equal(t, 4, count)
	repo.AssertNumberOfCalls(t, "Count", 1)

	// изменение корзины сбрасывает кэш
	products.On("GetProduct", mock.Anything, productID).Return(listedProduct(10), nil).Once()
	repo.On("FindLine", mock.Anything, userID, productID).Return(nil, ErrLineNotFound).Once()
	repo.On("CreateLine", mock.Anything, mock.Anything).Return(nil).Once()
	_, err = svc.AddItem(ctx, userID, productID, 1)
	require.NoError(t, err)
	assert.False(t, mr.Exists(countKey(userID)))

	repo.On("Count", mock.Anything, userID).Return(5, nil).Once()
	count, err = svc.Count(ctx, userID)
	require.NoError(t, err)
	assert.Equal(t, 5, count)
}

func TestService_Count_ConcurrentMutationIsNotCachedStale(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })
	cache := NewRedisCountCache(client, time.Minute)

	repo := new(MockRepository)
	products := new(MockCatalog)
	svc := newTestService(repo, products, cache)
	ctx := context.Background()

	readStarted := make(chan struct{})
	release := make(chan struct{})
	repo.On("Count", mock.Anything, userID).Return(4, nil).Run(func(mock.Arguments) {
		close(readStarted)
		<-release
	}).Once()

	type result struct {
		count int
		err   error
	}
	done := make(chan result, 1)
	go func() {
		count, err := svc.Count(ctx, userID)
		done <- result{count, err}
	}()

	// добавление коммитится после чтения счётчика из базы, но до того,
	// как читатель запишет его в кэш
	<-readStarted
	products.On("GetProduct", mock.Anything, productID).Return(listedProduct(10), nil).Once()
	repo.On("FindLine", mock.Anything, userID, productID).Return(nil, ErrLineNotFound).Once()
	repo.On("CreateLine", mock.Anything, mock.Anything).Return(nil).Once()
	_, err := svc.AddItem(ctx, userID, productID, 1)
	require.NoError(t, err)
	close(release)

	first := <-done
	require.NoError(t, first.err)
	assert.Equal(t, 4, first.count)
	assert.False(t, mr.Exists(countKey(userID)), "a count read before the add must not be cached")

	repo.On("Count", mock.Anything, userID).Return(5, nil).Once()
	count, err := svc.Count(ctx, userID)
	require.NoError(t, err)
	assert.Equal(t, 5, count)
	repo.AssertExpectations(t)
}

func TestService_Count_CacheDownFallsBackToStore(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })
	cache := NewRedisCountCache(client, time.Minute)
	mr.Close()

	repo := new(MockRepository)
	svc := newTestService(repo, new(MockCatalog), cache)

	repo.On("Count", mock.Anything, userID).Return(2, nil).Once()

	count, err := svc.Count(context.Background(), userID)
	require.NoError(t, err)
	assert.Equal(t, 2, count)
}
