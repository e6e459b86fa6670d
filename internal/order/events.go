package order

import (
	"context"
	"time"
)

const (
	EventCreated   = "order.created"
	EventPaid      = "order.paid"
	EventShipped   = "order.shipped"
	EventConfirmed = "order.confirmed"
	EventCancelled = "order.cancelled"
	EventDeleted   = "order.deleted"
)

// EventRecorder сохраняет событие в той же транзакции, что и само изменение.
type EventRecorder interface {
	Record(ctx context.Context, eventType, key string, payload any) error
}

type Event struct {
	Type          string    `json:"type"`
	OrderID       int64     `json:"order_id"`
	OrderNumber   string    `json:"order_number"`
	UserID        int64     `json:"user_id"`
	Status        string    `json:"status"`
	PaymentStatus string    `json:"payment_status"`
	TotalAmount   string    `json:"total_amount"`
	OccurredAt    time.Time `json:"occurred_at"`
}

func NewEvent(eventType string, o *Order, at time.Time) Event {
	return Event{
		Type:          eventType,
		OrderID:       o.ID,
		OrderNumber:   o.OrderNumber,
		UserID:        o.UserID,
		Status:        o.Status.String(),
		PaymentStatus: o.PaymentStatus.String(),
		TotalAmount:   o.TotalAmount.StringFixed(2),
		OccurredAt:    at,
	}
}

// Emit записывает событие с ключом по номеру заказа.
func Emit(ctx context.Context, recorder EventRecorder, eventType string, o *Order, at time.Time) error {
	if recorder == nil {
		return nil
	}
	return recorder.Record(ctx, eventType, o.OrderNumber, NewEvent(eventType, o, at))
}
