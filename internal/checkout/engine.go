// Package checkout превращает строки корзины или список прямой покупки в заказ
// и резервирует остаток в той же транзакции.
package checkout

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"
	"github.com/vasiliy-maslov/checkout-service/internal/apperror"
	"github.com/vasiliy-maslov/checkout-service/internal/cart"
	"github.com/vasiliy-maslov/checkout-service/internal/catalog"
	"github.com/vasiliy-maslov/checkout-service/internal/db"
	"github.com/vasiliy-maslov/checkout-service/internal/order"
)

var (
	ErrNoLines         = apperror.New(apperror.Validation, "order has no items")
	ErrAmbiguousSource = apperror.New(apperror.Validation, "order items must come either from the cart or from a direct purchase list")
	ErrNegativeAmount  = apperror.New(apperror.Validation, "shipping fee and discount must not be negative")
	ErrPaymentMethod   = apperror.New(apperror.Validation, "unknown payment method")
	ErrAmountScale     = apperror.New(apperror.Validation, "amounts must not have more than two decimal places")
)

type Request struct {
	UserID         int64
	Source         LineSource
	ShippingFee    decimal.Decimal
	DiscountAmount decimal.Decimal
	// TotalAmount задаёт сумму, которую клиент ожидает заплатить; она должна точно
	// совпасть с расчётом на сервере.
	TotalAmount    decimal.Decimal
	PaymentMethod  order.PaymentMethod
	Receiver       order.Receiver
	Remark         string
	IdempotencyKey string
}

// NumberAllocator выдаёт номера заказов; insert должен сохранить заказ
// под предложенным номером.
type NumberAllocator interface {
	Allocate(ctx context.Context, insert func(ctx context.Context, number string) error) (string, error)
}

type Engine struct {
	tx       db.Transactor
	carts    cart.Repository
	products catalog.Repository
	orders   order.Repository
	numbers  NumberAllocator
	events   order.EventRecorder
	cache    cart.CountCache
	now      func() time.Time
}

// NewEngine собирает оформление заказа. cache может быть nil.
func NewEngine(
	tx db.Transactor,
	carts cart.Repository,
	products catalog.Repository,
	orders order.Repository,
	numbers NumberAllocator,
	events order.EventRecorder,
	cache cart.CountCache,
) *Engine {
	return &Engine{
		tx:       tx,
		carts:    carts,
		products: products,
		orders:   orders,
		numbers:  numbers,
		events:   events,
		cache:    cache,
		now:      time.Now,
	}
}

// CreateOrder проверяет запрос по актуальным данным каталога, сохраняет
// заказ с позициями, резервирует остаток и списывает строки корзины,
// из которых он собран. Коммитится либо всё, либо ничего.
func (e *Engine) CreateOrder(ctx context.Context, req Request) (*order.Order, error) {
	if err := validateRequest(req); err != nil {
		return nil, err
	}

	var created *order.Order
	var replayed bool
	var consumedCart bool
	err := e.tx.WithinTx(ctx, func(ctx context.Context) error {
		if req.IdempotencyKey != "" {
			existing, err := e.findByKey(ctx, req.UserID, req.IdempotencyKey)
			if err != nil {
				return err
			}
			if existing != nil {
				created = existing
				replayed = true
				return nil
			}
		}

		lines, err := e.resolve(ctx, req.UserID, req.Source)
		if err != nil {
			return err
		}

		o, err := e.assemble(ctx, req, lines)
		if err != nil {
			return err
		}

		_, err = e.numbers.Allocate(ctx, func(ctx context.Context, number string) error {
			o.OrderNumber = number
			// вложенная: дубликат номера откатывает только savepoint
			return e.tx.WithinTx(ctx, func(ctx context.Context) error {
				return e.orders.Create(ctx, o)
			})
		})
		if err != nil {
			return err
		}

		for _, item := range o.Items {
			if err := e.products.AdjustStock(ctx, item.ProductID, -item.Quantity); err != nil {
				return err
			}
		}

		if cartLineIDs := consumedLineIDs(lines); len(cartLineIDs) > 0 {
			removed, err := e.carts.SoftDelete(ctx, req.UserID, cartLineIDs)
			if err != nil {
				return err
			}
			if removed != int64(len(cartLineIDs)) {
				return cart.ErrConcurrentAdd
			}
			consumedCart = true
		}

		if req.IdempotencyKey != "" {
			if err := e.orders.SaveIdempotencyKey(ctx, req.UserID, req.IdempotencyKey, o.ID); err != nil {
				return err
			}
		}

		if err := order.Emit(ctx, e.events, order.EventCreated, o, o.CreatedAt); err != nil {
			return err
		}

		created = o
		return nil
	})
	if err != nil {
		if errors.Is(err, order.ErrDuplicateRequest) {
			return e.replayAfterRace(ctx, req)
		}
		return nil, fail(err, req.UserID)
	}

	if replayed {
		log.Info().Int64("order_id", created.ID).Str("order_number", created.OrderNumber).Int64("user_id", req.UserID).Msg("checkout: idempotent replay, returning existing order")
		return created, nil
	}

	if consumedCart && e.cache != nil {
		if err := e.cache.Invalidate(ctx, req.UserID); err != nil {
			log.Warn().Err(err).Int64("user_id", req.UserID).Msg("checkout: failed to invalidate cart count")
		}
	}

	log.Info().
		Int64("order_id", created.ID).
		Str("order_number", created.OrderNumber).
		Int64("user_id", req.UserID).
		Int("items", len(created.Items)).
		Str("total_amount", created.TotalAmount.StringFixed(2)).
		Msg("checkout: order created")
	return created, nil
}

func validateRequest(req Request) error {
	if req.Source == nil {
		return ErrAmbiguousSource
	}
	if req.ShippingFee.IsNegative() || req.DiscountAmount.IsNegative() {
		return ErrNegativeAmount
	}
	// суммы хранятся как NUMERIC(12,2); более мелкие доли округлились бы
	// по каждой колонке отдельно и сломали бы итог
	for _, d := range []decimal.Decimal{req.TotalAmount, req.ShippingFee, req.DiscountAmount} {
		if !d.Equal(d.Truncate(2)) {
			return ErrAmountScale
		}
	}
	if !req.PaymentMethod.Valid() {
		return ErrPaymentMethod
	}
	return nil
}

// resolve сводит любой источник к списку пар (товар, количество).
func (e *Engine) resolve(ctx context.Context, userID int64, source LineSource) ([]sourceLine, error) {
	switch src := source.(type) {
	case FromCart:
		return e.resolveCart(ctx, userID, src.LineIDs)
	case Direct:
		return resolveDirect(src.Lines)
	default:
		return nil, ErrAmbiguousSource
	}
}

func (e *Engine) resolveCart(ctx context.Context, userID int64, ids []int64) ([]sourceLine, error) {
	var lines []cart.Line
	var err error
	if len(ids) == 0 {
		lines, err = e.carts.SelectedLines(ctx, userID)
		if err != nil {
			return nil, err
		}
	} else {
		lines, err = e.pickCartLines(ctx, userID, ids)
		if err != nil {
			return nil, err
		}
	}

	if len(lines) == 0 {
		return nil, apperror.New(apperror.Validation, "no cart lines are selected")
	}

	out := make([]sourceLine, 0, len(lines))
	for _, l := range lines {
		out = append(out, sourceLine{productID: l.ProductID, quantity: l.Quantity, cartLineID: l.ID})
	}
	return out, nil
}

// pickCartLines возвращает указанные строки в порядке запроса.
func (e *Engine) pickCartLines(ctx context.Context, userID int64, ids []int64) ([]cart.Line, error) {
	seen := make(map[int64]bool, len(ids))
	unique := make([]int64, 0, len(ids))
	for _, id := range ids {
		if !seen[id] {
			seen[id] = true
			unique = append(unique, id)
		}
	}

	found, err := e.carts.GetLines(ctx, unique)
	if err != nil {
		return nil, err
	}
	byID := make(map[int64]cart.Line, len(found))
	for _, l := range found {
		byID[l.ID] = l
	}

	lines := make([]cart.Line, 0, len(unique))
	for _, id := range unique {
		l, ok := byID[id]
		if !ok {
			return nil, apperror.Newf(apperror.NotFound, "cart line %d not found", id)
		}
		if l.UserID != userID {
			return nil, cart.ErrNotOwner
		}
		if !l.Selected {
			return nil, apperror.Newf(apperror.Validation, "cart line %d is not selected", id)
		}
		lines = append(lines, l)
	}
	return lines, nil
}

func resolveDirect(direct []DirectLine) ([]sourceLine, error) {
	if len(direct) == 0 {
		return nil, ErrNoLines
	}

	seen := make(map[int64]bool, len(direct))
	out := make([]sourceLine, 0, len(direct))
	for _, l := range direct {
		if l.Quantity < 1 {
			return nil, apperror.Newf(apperror.Validation, "quantity for product %d must be at least 1", l.ProductID)
		}
		if seen[l.ProductID] {
			return nil, apperror.Newf(apperror.Validation, "product %d is listed more than once", l.ProductID)
		}
		seen[l.ProductID] = true
		out = append(out, sourceLine{productID: l.ProductID, quantity: l.Quantity})
	}
	return out, nil
}

// assemble снимает снимок товаров и сверяет заявленную сумму.
func (e *Engine) assemble(ctx context.Context, req Request, lines []sourceLine) (*order.Order, error) {
	items := make([]order.LineItem, 0, len(lines))
	merchandise := decimal.Zero

	for _, l := range lines {
		product, err := e.products.GetProduct(ctx, l.productID)
		if err != nil {
			if errors.Is(err, catalog.ErrProductNotFound) {
				return nil, apperror.Newf(apperror.ProductUnavailable, "product %d does not exist", l.productID)
			}
			return nil, err
		}
		if !product.Available() {
			return nil, apperror.Newf(apperror.ProductUnavailable, "product %q is no longer available", product.Name)
		}
		if l.quantity > product.Stock {
			return nil, apperror.Newf(apperror.InsufficientStock,
				"insufficient stock for %q: requested %d, available %d", product.Name, l.quantity, product.Stock)
		}

		total := product.Price.Mul(decimal.NewFromInt(int64(l.quantity)))
		items = append(items, order.LineItem{
			ProductID:    product.ID,
			ProductName:  product.Name,
			ProductImage: product.MainImage,
			UnitPrice:    product.Price,
			Quantity:     l.quantity,
			TotalPrice:   total,
		})
		merchandise = merchandise.Add(total)
	}

	expected := merchandise.Add(req.ShippingFee).Sub(req.DiscountAmount)
	if !expected.Equal(req.TotalAmount) {
		log.Warn().
			Int64("user_id", req.UserID).
			Str("declared", req.TotalAmount.String()).
			Str("expected", expected.StringFixed(2)).
			Msg("checkout: declared total does not match")
		return nil, apperror.Newf(apperror.AmountMismatch,
			"order total %s does not match the computed total %s", req.TotalAmount.StringFixed(2), expected.StringFixed(2))
	}

	return &order.Order{
		UserID:         req.UserID,
		TotalAmount:    expected,
		PayAmount:      expected,
		ShippingFee:    req.ShippingFee,
		DiscountAmount: req.DiscountAmount,
		Status:         order.StatusPendingPayment,
		PaymentStatus:  order.PaymentUnpaid,
		PaymentMethod:  req.PaymentMethod,
		Receiver:       req.Receiver,
		Remark:         req.Remark,
		Items:          items,
	}, nil
}

func (e *Engine) findByKey(ctx context.Context, userID int64, key string) (*order.Order, error) {
	orderID, err := e.orders.FindByIdempotencyKey(ctx, userID, key)
	if err != nil {
		if errors.Is(err, order.ErrOrderNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return e.orders.GetForUser(ctx, userID, orderID)
}

// replayAfterRace обслуживает запрос, проигравший гонку за ключ идемпотентности
// параллельному двойнику; всё, что он сделал, уже откатано.
func (e *Engine) replayAfterRace(ctx context.Context, req Request) (*order.Order, error) {
	existing, err := e.findByKey(ctx, req.UserID, req.IdempotencyKey)
	if err != nil {
		return nil, fail(err, req.UserID)
	}
	if existing == nil {
		return nil, order.ErrDuplicateRequest
	}
	log.Info().Int64("order_id", existing.ID).Int64("user_id", req.UserID).Msg("checkout: concurrent duplicate request, returning existing order")
	return existing, nil
}

func consumedLineIDs(lines []sourceLine) []int64 {
	ids := make([]int64, 0, len(lines))
	for _, l := range lines {
		if l.cartLineID != 0 {
			ids = append(ids, l.cartLineID)
		}
	}
	return ids
}

func fail(err error, userID int64) error {
	if _, ok := apperror.As(err); ok {
		log.Warn().Err(err).Int64("user_id", userID).Msg("checkout: order rejected")
		return err
	}
	log.Error().Err(err).Int64("user_id", userID).Msg("checkout: failed to create order")
	return fmt.Errorf("checkout: failed to create order: %w", err)
}
