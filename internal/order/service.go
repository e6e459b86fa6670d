package order

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/vasiliy-maslov/checkout-service/internal/apperror"
	"github.com/vasiliy-maslov/checkout-service/internal/catalog"
	"github.com/vasiliy-maslov/checkout-service/internal/db"
)

// PendingReview -> Completed и любой -> Refunded выполняются вне этого сервиса;
// они перечислены, чтобы таблица описывала автомат целиком.
var allowedTransitions = map[Status]map[Status]bool{
	StatusPendingPayment: {
		StatusPendingShipment: true,
		StatusCancelled:       true,
	},
	StatusPendingShipment: {
		StatusPendingReceipt: true,
	},
	StatusPendingReceipt: {
		StatusPendingReview: true,
	},
	StatusPendingReview: {
		StatusCompleted: true,
	},
	StatusCompleted: {},
	StatusCancelled: {},
	StatusRefunded:  {},
}

var deletableStatuses = []Status{StatusCompleted, StatusCancelled}

var (
	ErrOrderNotFound           = apperror.New(apperror.NotFound, "order not found")
	ErrInvalidStatusTransition = apperror.New(apperror.InvalidState, "order status does not allow this operation")
	ErrDuplicateRequest        = apperror.New(apperror.Conflict, "order for this idempotency key is already being created")
)

// CanTransition сообщает, разрешён ли переход from -> to.
func CanTransition(from, to Status) bool {
	return allowedTransitions[from][to]
}

type Service interface {
	ListOrders(ctx context.Context, userID int64, filter ListFilter) (*Page, error)
	GetOrderDetail(ctx context.Context, userID, orderID int64) (*Order, error)
	Pay(ctx context.Context, userID, orderID int64) (*Order, error)
	// Ship не проверяет владельца; доступ ограничивается на транспорте.
	Ship(ctx context.Context, orderID int64) (*Order, error)
	Confirm(ctx context.Context, userID, orderID int64) (*Order, error)
	Cancel(ctx context.Context, userID, orderID int64) (*Order, error)
	Delete(ctx context.Context, userID, orderID int64) error
}

type service struct {
	tx       db.Transactor
	repo     Repository
	products catalog.Repository
	events   EventRecorder
	now      func() time.Time
}

func NewService(tx db.Transactor, repo Repository, products catalog.Repository, events EventRecorder) Service {
	return &service{
		tx:       tx,
		repo:     repo,
		products: products,
		events:   events,
		now:      time.Now,
	}
}

func (s *service) ListOrders(ctx context.Context, userID int64, filter ListFilter) (*Page, error) {
	if err := filter.Normalize(); err != nil {
		return nil, err
	}

	orders, total, err := s.repo.List(ctx, userID, filter)
	if err != nil {
		log.Error().Err(err).Int64("user_id", userID).Msg("service: failed to list orders")
		return nil, fmt.Errorf("service: failed to list orders: %w", err)
	}

	return &Page{
		Orders:   orders,
		Total:    total,
		Page:     filter.Page,
		PageSize: filter.PageSize,
	}, nil
}

func (s *service) GetOrderDetail(ctx context.Context, userID, orderID int64) (*Order, error) {
	o, err := s.repo.GetForUser(ctx, userID, orderID)
	if err != nil {
		if errors.Is(err, ErrOrderNotFound) {
			log.Warn().Int64("order_id", orderID).Int64("user_id", userID).Msg("service: order not found for user")
			return nil, ErrOrderNotFound
		}
		log.Error().Err(err).Int64("order_id", orderID).Msg("service: failed to fetch order")
		return nil, fmt.Errorf("service: failed to fetch order: %w", err)
	}
	return o, nil
}

func (s *service) Pay(ctx context.Context, userID, orderID int64) (*Order, error) {
	return s.transition(ctx, orderID, &userID, StatusPendingShipment, EventPaid, func(o *Order, change *StatusChange, now time.Time) {
		paid := PaymentPaid
		change.PaymentStatus = &paid
		change.PaymentTime = &now
		o.PaymentStatus = PaymentPaid
		o.PaymentTime = &now
	})
}

func (s *service) Ship(ctx context.Context, orderID int64) (*Order, error) {
	return s.transition(ctx, orderID, nil, StatusPendingReceipt, EventShipped, func(o *Order, change *StatusChange, now time.Time) {
		change.ShipTime = &now
		o.ShipTime = &now
	})
}

func (s *service) Confirm(ctx context.Context, userID, orderID int64) (*Order, error) {
	return s.transition(ctx, orderID, &userID, StatusPendingReview, EventConfirmed, func(o *Order, change *StatusChange, now time.Time) {
		change.ConfirmTime = &now
		o.ConfirmTime = &now
	})
}

// Cancel возвращает зарезервированный товар на склад в той же транзакции,
// что и смену статуса. Из-за compare-and-set по статусу параллельная вторая
// отмена падает раньше, чем успеет что-то вернуть.
func (s *service) Cancel(ctx context.Context, userID, orderID int64) (*Order, error) {
	return s.transitionWith(ctx, orderID, &userID, StatusCancelled, EventCancelled, nil, func(ctx context.Context, o *Order) error {
		for _, item := range o.Items {
			err := s.products.AdjustStock(ctx, item.ProductID, item.Quantity)
			if errors.Is(err, catalog.ErrProductNotFound) {
				log.Warn().Int64("order_id", o.ID).Int64("product_id", item.ProductID).Msg("service: product vanished, stock not restored")
				continue
			}
			if err != nil {
				return err
			}
		}
		return nil
	})
}

func (s *service) Delete(ctx context.Context, userID, orderID int64) error {
	err := s.tx.WithinTx(ctx, func(ctx context.Context) error {
		o, err := s.repo.GetForUser(ctx, userID, orderID)
		if err != nil {
			return err
		}
		if o.Status != StatusCompleted && o.Status != StatusCancelled {
			return apperror.Newf(apperror.InvalidState, "order in status %s cannot be deleted", o.Status.Description())
		}
		if err := s.repo.SoftDelete(ctx, userID, orderID, deletableStatuses); err != nil {
			return err
		}
		return Emit(ctx, s.events, EventDeleted, o, s.now().UTC())
	})
	if err != nil {
		return s.fail(err, "delete order", orderID)
	}

	log.Info().Int64("order_id", orderID).Int64("user_id", userID).Msg("service: order deleted")
	return nil
}

type changeFunc func(o *Order, change *StatusChange, now time.Time)

func (s *service) transition(ctx context.Context, orderID int64, userID *int64, to Status, eventType string, apply changeFunc) (*Order, error) {
	return s.transitionWith(ctx, orderID, userID, to, eventType, apply, nil)
}

// transitionWith загружает заказ, сверяет переход с автоматом,
// применяет его через compare-and-set и вызывает after в той же транзакции.
func (s *service) transitionWith(
	ctx context.Context,
	orderID int64,
	userID *int64,
	to Status,
	eventType string,
	apply changeFunc,
	after func(ctx context.Context, o *Order) error,
) (*Order, error) {
	var result *Order
	err := s.tx.WithinTx(ctx, func(ctx context.Context) error {
		var o *Order
		var err error
		if userID != nil {
			o, err = s.repo.GetForUser(ctx, *userID, orderID)
		} else {
			o, err = s.repo.GetByID(ctx, orderID)
		}
		if err != nil {
			return err
		}

		from := o.Status
		if !CanTransition(from, to) {
			log.Warn().Int64("order_id", orderID).Stringer("from_status", from).Stringer("to_status", to).Msg("service: invalid status transition")
			return ErrInvalidStatusTransition
		}

		now := s.now().UTC()
		change := StatusChange{OrderID: o.ID, From: from, To: to}
		if apply != nil {
			apply(o, &change, now)
		}

		updatedAt, err := s.repo.UpdateStatus(ctx, change)
		if err != nil {
			return err
		}
		o.Status = to
		o.UpdatedAt = updatedAt

		if after != nil {
			if err := after(ctx, o); err != nil {
				return err
			}
		}

		if err := Emit(ctx, s.events, eventType, o, now); err != nil {
			return err
		}

		result = o
		return nil
	})
	if err != nil {
		return nil, s.fail(err, "change order status", orderID)
	}

	log.Info().Int64("order_id", result.ID).Str("order_number", result.OrderNumber).Stringer("to_status", to).Msg("service: order status changed")
	return result, nil
}

func (s *service) fail(err error, op string, orderID int64) error {
	if _, ok := apperror.As(err); ok {
		log.Warn().Err(err).Int64("order_id", orderID).Msgf("service: %s rejected", op)
		return err
	}
	log.Error().Err(err).Int64("order_id", orderID).Msgf("service: failed to %s", op)
	return fmt.Errorf("service: failed to %s: %w", op, err)
}
