package http

import (
	"time"

	"github.com/shopspring/decimal"
	"github.com/vasiliy-maslov/checkout-service/internal/cart"
	"github.com/vasiliy-maslov/checkout-service/internal/order"
)

// money всегда выводит два знака после запятой.
func money(d decimal.Decimal) string {
	return d.StringFixed(2)
}

type AddCartItemRequest struct {
	ProductID int64 `json:"product_id" validate:"required,gt=0"`
	Quantity  int   `json:"quantity" validate:"required,min=1,max=999"`
}

type UpdateCartItemRequest struct {
	CartID   int64 `json:"cart_id" validate:"required,gt=0"`
	Quantity int   `json:"quantity" validate:"required,min=1,max=999"`
}

type SelectCartItemRequest struct {
	CartID   int64 `json:"cart_id" validate:"required,gt=0"`
	Selected *bool `json:"selected" validate:"required"`
}

type BatchDeleteCartRequest struct {
	CartIDs []int64 `json:"cart_ids" validate:"required,min=1,dive,gt=0"`
}

type CartLineResponse struct {
	ID          int64     `json:"id"`
	ProductID   int64     `json:"product_id"`
	ProductName string    `json:"product_name"`
	MainImage   string    `json:"main_image"`
	Price       string    `json:"price"`
	Quantity    int       `json:"quantity"`
	Selected    bool      `json:"selected"`
	Stock       int       `json:"stock"`
	HasStock    bool      `json:"has_stock"`
	Subtotal    string    `json:"subtotal"`
	CreatedAt   time.Time `json:"created_at"`
}

type CartItemResponse struct {
	ID        int64 `json:"id"`
	ProductID int64 `json:"product_id"`
	Quantity  int   `json:"quantity"`
	Selected  bool  `json:"selected"`
}

type CartCountResponse struct {
	Count int `json:"count"`
}

func toCartLines(views []cart.LineView) []CartLineResponse {
	resp := make([]CartLineResponse, 0, len(views))
	for _, v := range views {
		resp = append(resp, CartLineResponse{
			ID:          v.ID,
			ProductID:   v.ProductID,
			ProductName: v.ProductName,
			MainImage:   v.MainImage,
			Price:       money(v.Price),
			Quantity:    v.Quantity,
			Selected:    v.Selected,
			Stock:       v.Stock,
			HasStock:    v.HasStock(),
			Subtotal:    money(v.Subtotal()),
			CreatedAt:   v.CreatedAt,
		})
	}
	return resp
}

func toCartItem(l *cart.Line) CartItemResponse {
	return CartItemResponse{ID: l.ID, ProductID: l.ProductID, Quantity: l.Quantity, Selected: l.Selected}
}

type OrderItemRequest struct {
	ProductID int64 `json:"product_id" validate:"required,gt=0"`
	Quantity  int   `json:"quantity" validate:"required,min=1,max=999"`
}

// CreateOrderRequest берёт позиции ровно из одного источника: items для
// прямой покупки или корзина (cart_ids, либо from_cart для всех выбранных
// строк).
type CreateOrderRequest struct {
	CartIDs         []int64            `json:"cart_ids" validate:"omitempty,dive,gt=0"`
	FromCart        bool               `json:"from_cart"`
	Items           []OrderItemRequest `json:"items" validate:"omitempty,dive"`
	TotalAmount     *decimal.Decimal   `json:"total_amount" validate:"required"`
	ShippingFee     *decimal.Decimal   `json:"shipping_fee"`
	DiscountAmount  *decimal.Decimal   `json:"discount_amount"`
	PaymentMethod   int                `json:"payment_method" validate:"required,oneof=1 2 3"`
	ReceiverName    string             `json:"receiver_name" validate:"required,max=50"`
	ReceiverPhone   string             `json:"receiver_phone" validate:"required,max=20"`
	ReceiverAddress string             `json:"receiver_address" validate:"required,max=255"`
	Remark          string             `json:"remark" validate:"max=500"`
}

type OrderItemResponse struct {
	ID           int64  `json:"id"`
	ProductID    int64  `json:"product_id"`
	ProductName  string `json:"product_name"`
	ProductImage string `json:"product_image"`
	UnitPrice    string `json:"unit_price"`
	Quantity     int    `json:"quantity"`
	TotalPrice   string `json:"total_price"`
}

type OrderResponse struct {
	ID                int64               `json:"id"`
	OrderNumber       string              `json:"order_number"`
	UserID            int64               `json:"user_id"`
	TotalAmount       string              `json:"total_amount"`
	PayAmount         string              `json:"pay_amount"`
	ShippingFee       string              `json:"shipping_fee"`
	DiscountAmount    string              `json:"discount_amount"`
	Status            int                 `json:"status"`
	StatusDesc        string              `json:"status_desc"`
	PaymentStatus     int                 `json:"payment_status"`
	PaymentStatusDesc string              `json:"payment_status_desc"`
	PaymentMethod     int                 `json:"payment_method"`
	PaymentMethodDesc string              `json:"payment_method_desc"`
	PaymentTime       *time.Time          `json:"payment_time,omitempty"`
	ShipTime          *time.Time          `json:"ship_time,omitempty"`
	ConfirmTime       *time.Time          `json:"confirm_time,omitempty"`
	ReceiverName      string              `json:"receiver_name"`
	ReceiverPhone     string              `json:"receiver_phone"`
	ReceiverAddress   string              `json:"receiver_address"`
	Remark            string              `json:"remark"`
	Items             []OrderItemResponse `json:"items"`
	CreatedAt         time.Time           `json:"created_at"`
	UpdatedAt         time.Time           `json:"updated_at"`
}

type OrderPageResponse struct {
	Orders   []OrderResponse `json:"orders"`
	Total    int64           `json:"total"`
	Page     int             `json:"page"`
	PageSize int             `json:"page_size"`
}

func toOrderResponse(o *order.Order) OrderResponse {
	items := make([]OrderItemResponse, 0, len(o.Items))
	for _, it := range o.Items {
		items = append(items, OrderItemResponse{
			ID:           it.ID,
			ProductID:    it.ProductID,
			ProductName:  it.ProductName,
			ProductImage: it.ProductImage,
			UnitPrice:    money(it.UnitPrice),
			Quantity:     it.Quantity,
			TotalPrice:   money(it.TotalPrice),
		})
	}

	return OrderResponse{
		ID:                o.ID,
		OrderNumber:       o.OrderNumber,
		UserID:            o.UserID,
		TotalAmount:       money(o.TotalAmount),
		PayAmount:         money(o.PayAmount),
		ShippingFee:       money(o.ShippingFee),
		DiscountAmount:    money(o.DiscountAmount),
		Status:            int(o.Status),
		StatusDesc:        o.Status.Description(),
		PaymentStatus:     int(o.PaymentStatus),
		PaymentStatusDesc: o.PaymentStatus.Description(),
		PaymentMethod:     int(o.PaymentMethod),
		PaymentMethodDesc: o.PaymentMethod.Description(),
		PaymentTime:       o.PaymentTime,
		ShipTime:          o.ShipTime,
		ConfirmTime:       o.ConfirmTime,
		ReceiverName:      o.Receiver.Name,
		ReceiverPhone:     o.Receiver.Phone,
		ReceiverAddress:   o.Receiver.Address,
		Remark:            o.Remark,
		Items:             items,
		CreatedAt:         o.CreatedAt,
		UpdatedAt:         o.UpdatedAt,
	}
}

func toOrderPage(p *order.Page) OrderPageResponse {
	orders := make([]OrderResponse, 0, len(p.Orders))
	for i := range p.Orders {
		orders = append(orders, toOrderResponse(&p.Orders[i]))
	}
	return OrderPageResponse{Orders: orders, Total: p.Total, Page: p.Page, PageSize: p.PageSize}
}
