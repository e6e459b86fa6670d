package catalog

import (
	"github.com/shopspring/decimal"
	"github.com/vasiliy-maslov/checkout-service/internal/audit"
)

type ProductStatus int

const (
	StatusDelisted ProductStatus = 0
	StatusListed   ProductStatus = 1
)

func (s ProductStatus) String() string {
	switch s {
	case StatusListed:
		return "listed"
	case StatusDelisted:
		return "delisted"
	default:
		return "unknown"
	}
}

// Product описывает актуальное состояние товара в каталоге вместе с остатком.
type Product struct {
	ID        int64           `json:"id"`
	Name      string          `json:"name"`
	MainImage string          `json:"main_image"`
	Price     decimal.Decimal `json:"price"`
	Stock     int             `json:"stock"`
	Status    ProductStatus   `json:"status"`
	audit.Envelope
}

func (p *Product) Available() bool {
	return !p.Deleted && p.Status == StatusListed
}
