package catalog

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog/log"
	"github.com/vasiliy-maslov/checkout-service/internal/apperror"
	"github.com/vasiliy-maslov/checkout-service/internal/db"
)

var ErrProductNotFound = apperror.New(apperror.NotFound, "product not found")

// Repository задаёт контракт каталога товаров для корзины, оформления и заказов.
type Repository interface {
	GetProduct(ctx context.Context, id int64) (*Product, error)
	// AdjustStock прибавляет delta к остатку. Отрицательная delta применяется,
	// только если остатка хватает, иначе возвращается ошибка InsufficientStock.
	AdjustStock(ctx context.Context, id int64, delta int) error
}

type postgresRepository struct {
	db *pgxpool.Pool
}

func NewRepository(db *pgxpool.Pool) Repository {
	return &postgresRepository{db: db}
}

func (r *postgresRepository) GetProduct(ctx context.Context, id int64) (*Product, error) {
	query := `
		SELECT id, name, main_image, price, stock, status, created_at, updated_at, deleted
		FROM product
		WHERE id = $1
	`

	var p Product
	err := db.Conn(ctx, r.db).QueryRow(ctx, query, id).Scan(
		&p.ID,
		&p.Name,
		&p.MainImage,
		&p.Price,
		&p.Stock,
		&p.Status,
		&p.CreatedAt,
		&p.UpdatedAt,
		&p.Deleted,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrProductNotFound
		}
		return nil, fmt.Errorf("repository: failed to select product %d: %w", id, err)
	}

	return &p, nil
}

func (r *postgresRepository) AdjustStock(ctx context.Context, id int64, delta int) error {
	if delta == 0 {
		return nil
	}

	var query string
	if delta < 0 {
		// Условие в WHERE упорядочивает конкурентные списания.
		query = `
			UPDATE product
			SET stock = stock + $2, updated_at = $3
			WHERE id = $1 AND stock >= -$2
		`
	} else {
		query = `
			UPDATE product
			SET stock = stock + $2, updated_at = $3
			WHERE id = $1
		`
	}

	cmdTag, err := db.Conn(ctx, r.db).Exec(ctx, query, id, delta, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("repository: failed to adjust stock of product %d by %d: %w", id, delta, err)
	}

	if cmdTag.RowsAffected() == 0 {
		if delta < 0 {
			log.Warn().Int64("product_id", id).Int("delta", delta).Msg("repository: conditional stock decrement matched no rows")
			return apperror.Newf(apperror.InsufficientStock, "insufficient stock for product %d", id)
		}
		return ErrProductNotFound
	}

	return nil
}
