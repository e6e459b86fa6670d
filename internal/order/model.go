package order

import (
	"time"

	"github.com/shopspring/decimal"
	"github.com/vasiliy-maslov/checkout-service/internal/apperror"
	"github.com/vasiliy-maslov/checkout-service/internal/audit"
)

type Status int

const (
	StatusPendingPayment  Status = 0
	StatusPendingShipment Status = 1
	StatusPendingReceipt  Status = 2
	StatusPendingReview   Status = 3
	StatusCompleted       Status = 4
	StatusCancelled       Status = 5
	StatusRefunded        Status = 6
)

func (s Status) String() string {
	switch s {
	case StatusPendingPayment:
		return "PENDING_PAYMENT"
	case StatusPendingShipment:
		return "PENDING_SHIPMENT"
	case StatusPendingReceipt:
		return "PENDING_RECEIPT"
	case StatusPendingReview:
		return "PENDING_REVIEW"
	case StatusCompleted:
		return "COMPLETED"
	case StatusCancelled:
		return "CANCELLED"
	case StatusRefunded:
		return "REFUNDED"
	default:
		return "UNKNOWN"
	}
}

func (s Status) Description() string {
	switch s {
	case StatusPendingPayment:
		return "Pending payment"
	case StatusPendingShipment:
		return "Pending shipment"
	case StatusPendingReceipt:
		return "Pending receipt"
	case StatusPendingReview:
		return "Pending review"
	case StatusCompleted:
		return "Completed"
	case StatusCancelled:
		return "Cancelled"
	case StatusRefunded:
		return "Refunded"
	default:
		return "Unknown"
	}
}

func (s Status) Valid() bool {
	return s >= StatusPendingPayment && s <= StatusRefunded
}

type PaymentStatus int

const (
	PaymentUnpaid PaymentStatus = 0
	PaymentPaid   PaymentStatus = 1
	PaymentFailed PaymentStatus = 2
)

func (s PaymentStatus) String() string {
	switch s {
	case PaymentUnpaid:
		return "UNPAID"
	case PaymentPaid:
		return "PAID"
	case PaymentFailed:
		return "FAILED"
	default:
		return "UNKNOWN"
	}
}

func (s PaymentStatus) Description() string {
	switch s {
	case PaymentUnpaid:
		return "Unpaid"
	case PaymentPaid:
		return "Paid"
	case PaymentFailed:
		return "Payment failed"
	default:
		return "Unknown"
	}
}

type PaymentMethod int

const (
	PaymentAlipay   PaymentMethod = 1
	PaymentWeChat   PaymentMethod = 2
	PaymentBankCard PaymentMethod = 3
)

func (m PaymentMethod) Valid() bool {
	return m >= PaymentAlipay && m <= PaymentBankCard
}

func (m PaymentMethod) Description() string {
	switch m {
	case PaymentAlipay:
		return "Alipay"
	case PaymentWeChat:
		return "WeChat Pay"
	case PaymentBankCard:
		return "Bank card"
	default:
		return "Unknown"
	}
}

type Receiver struct {
	Name    string `json:"receiver_name"`
	Phone   string `json:"receiver_phone"`
	Address string `json:"receiver_address"`
}

// LineItem хранит снимок товара на момент оформления заказа.
type LineItem struct {
	ID           int64           `json:"id"`
	OrderID      int64           `json:"order_id"`
	ProductID    int64           `json:"product_id"`
	ProductName  string          `json:"product_name"`
	ProductImage string          `json:"product_image"`
	UnitPrice    decimal.Decimal `json:"unit_price"`
	Quantity     int             `json:"quantity"`
	TotalPrice   decimal.Decimal `json:"total_price"`
	CreatedAt    time.Time       `json:"created_at"`
	UpdatedAt    time.Time       `json:"updated_at"`
}

type Order struct {
	ID             int64           `json:"id"`
	OrderNumber    string          `json:"order_number"`
	UserID         int64           `json:"user_id"`
	TotalAmount    decimal.Decimal `json:"total_amount"`
	PayAmount      decimal.Decimal `json:"pay_amount"`
	ShippingFee    decimal.Decimal `json:"shipping_fee"`
	DiscountAmount decimal.Decimal `json:"discount_amount"`
	Status         Status          `json:"status"`
	PaymentStatus  PaymentStatus   `json:"payment_status"`
	PaymentMethod  PaymentMethod   `json:"payment_method"`
	PaymentTime    *time.Time      `json:"payment_time,omitempty"`
	ShipTime       *time.Time      `json:"ship_time,omitempty"`
	ConfirmTime    *time.Time      `json:"confirm_time,omitempty"`
	Receiver
	Remark string     `json:"remark"`
	Items  []LineItem `json:"items"`
	audit.Envelope
}

// MerchandiseTotal суммирует стоимость позиций.
func (o *Order) MerchandiseTotal() decimal.Decimal {
	sum := decimal.Zero
	for _, item := range o.Items {
		sum = sum.Add(item.TotalPrice)
	}
	return sum
}

const (
	DefaultPageSize = 10
	MaxPageSize     = 100
)

type ListFilter struct {
	Page        int
	PageSize    int
	Status      *Status
	OrderNumber string
	From        *time.Time
	To          *time.Time
}

// Normalize подставляет параметры страницы по умолчанию и отклоняет невозможные фильтры.
func (f *ListFilter) Normalize() error {
	if f.Page < 1 {
		f.Page = 1
	}
	if f.PageSize == 0 {
		f.PageSize = DefaultPageSize
	}
	if f.PageSize < 1 || f.PageSize > MaxPageSize {
		return apperror.Newf(apperror.Validation, "page size must be between 1 and %d", MaxPageSize)
	}
	if f.Status != nil && !f.Status.Valid() {
		return apperror.Newf(apperror.Validation, "unknown order status %d", int(*f.Status))
	}
	if f.From != nil && f.To != nil && f.From.After(*f.To) {
		return apperror.New(apperror.Validation, "start of date range is after its end")
	}
	return nil
}

func (f ListFilter) Offset() int {
	return (f.Page - 1) * f.PageSize
}

type Page struct {
	Orders   []Order `json:"orders"`
	Total    int64   `json:"total"`
	Page     int     `json:"page"`
	PageSize int     `json:"page_size"`
}

// StatusChange применяется, только пока заказ ещё в статусе From.
type StatusChange struct {
	OrderID       int64
	From          Status
	To            Status
	PaymentStatus *PaymentStatus
	PaymentTime   *time.Time
	ShipTime      *time.Time
	ConfirmTime   *time.Time
}
