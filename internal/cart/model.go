package cart

import (
	"github.com/shopspring/decimal"
	"github.com/vasiliy-maslov/checkout-service/internal/audit"
)

type Line struct {
	ID        int64 `json:"id"`
	UserID    int64 `json:"user_id"`
	ProductID int64 `json:"product_id"`
	Quantity  int   `json:"quantity"`
	Selected  bool  `json:"selected"`
	audit.Envelope
}

// LineView объединяет строку корзины с актуальными данными товара.
type LineView struct {
	Line
	ProductName string          `json:"product_name"`
	MainImage   string          `json:"main_image"`
	Price       decimal.Decimal `json:"price"`
	Stock       int             `json:"stock"`
}

func (v LineView) Subtotal() decimal.Decimal {
	return v.Price.Mul(decimal.NewFromInt(int64(v.Quantity)))
}

func (v LineView) HasStock() bool {
	return v.Stock >= v.Quantity
}
