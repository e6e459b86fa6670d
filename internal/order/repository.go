package order

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog/log"
	"github.com/vasiliy-maslov/checkout-service/internal/db"
	"github.com/vasiliy-maslov/checkout-service/internal/ordernumber"
)

const (
	orderNumberConstraint = "orders_order_number_key"
	idempotencyConstraint = "order_idempotency_pkey"
)

type Repository interface {
	// Create вставляет заказ и его позиции. Дубликат номера заказа
	// возвращается как ordernumber.ErrCollision.
	Create(ctx context.Context, o *Order) error
	OrderNumberExists(ctx context.Context, number string) (bool, error)
	GetForUser(ctx context.Context, userID, orderID int64) (*Order, error)
	GetByID(ctx context.Context, orderID int64) (*Order, error)
	List(ctx context.Context, userID int64, filter ListFilter) ([]Order, int64, error)
	UpdateStatus(ctx context.Context, change StatusChange) (time.Time, error)
	SoftDelete(ctx context.Context, userID, orderID int64, allowed []Status) error
	FindByIdempotencyKey(ctx context.Context, userID int64, key string) (int64, error)
	SaveIdempotencyKey(ctx context.Context, userID int64, key string, orderID int64) error
}

type postgresRepository struct {
	db *pgxpool.Pool
}

func NewRepository(db *pgxpool.Pool) Repository {
	return &postgresRepository{db: db}
}

const orderColumns = `id, order_number, user_id, total_amount, pay_amount, shipping_fee, discount_amount,
	status, payment_status, payment_method, payment_time, ship_time, confirm_time,
	receiver_name, receiver_phone, receiver_address, remark, created_at, updated_at, deleted`

func scanOrder(row pgx.Row) (*Order, error) {
	var o Order
	err := row.Scan(
		&o.ID,
		&o.OrderNumber,
		&o.UserID,
		&o.TotalAmount,
		&o.PayAmount,
		&o.ShippingFee,
		&o.DiscountAmount,
		&o.Status,
		&o.PaymentStatus,
		&o.PaymentMethod,
		&o.PaymentTime,
		&o.ShipTime,
		&o.ConfirmTime,
		&o.Receiver.Name,
		&o.Receiver.Phone,
		&o.Receiver.Address,
		&o.Remark,
		&o.CreatedAt,
		&o.UpdatedAt,
		&o.Deleted,
	)
	if err != nil {
		return nil, err
	}
	return &o, nil
}

func (r *postgresRepository) Create(ctx context.Context, o *Order) error {
	conn := db.Conn(ctx, r.db)
	now := time.Now().UTC()
	o.Stamp(now)

	queryOrder := `
		INSERT INTO orders (order_number, user_id, total_amount, pay_amount, shipping_fee, discount_amount,
			status, payment_status, payment_method, receiver_name, receiver_phone, receiver_address, remark,
			created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)
		RETURNING id
	`
	err := conn.QueryRow(ctx, queryOrder,
		o.OrderNumber,
		o.UserID,
		o.TotalAmount,
		o.PayAmount,
		o.ShippingFee,
		o.DiscountAmount,
		o.Status,
		o.PaymentStatus,
		o.PaymentMethod,
		o.Receiver.Name,
		o.Receiver.Phone,
		o.Receiver.Address,
		o.Remark,
		o.CreatedAt,
		o.UpdatedAt,
	).Scan(&o.ID)
	if err != nil {
		if db.IsUniqueViolation(err, orderNumberConstraint) {
			return ordernumber.ErrCollision
		}
		return fmt.Errorf("repository: failed to insert order %s: %w", o.OrderNumber, err)
	}

	queryItem := `
		INSERT INTO order_items (order_id, product_id, product_name, product_image, unit_price, quantity, total_price, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		RETURNING id
	`
	for i := range o.Items {
		item := &o.Items[i]
		item.OrderID = o.ID
		item.CreatedAt = now
		item.UpdatedAt = now

		err = conn.QueryRow(ctx, queryItem,
			item.OrderID,
			item.ProductID,
			item.ProductName,
			item.ProductImage,
			item.UnitPrice,
			item.Quantity,
			item.TotalPrice,
			item.CreatedAt,
			item.UpdatedAt,
		).Scan(&item.ID)
		if err != nil {
			return fmt.Errorf("repository: failed to insert order item for order %d: %w", o.ID, err)
		}
	}

	return nil
}

func (r *postgresRepository) OrderNumberExists(ctx context.Context, number string) (bool, error) {
	var exists bool
	err := db.Conn(ctx, r.db).QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM orders WHERE order_number = $1)`, number).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("repository: failed to check order number %s: %w", number, err)
	}
	return exists, nil
}

func (r *postgresRepository) GetForUser(ctx context.Context, userID, orderID int64) (*Order, error) {
	query := `SELECT ` + orderColumns + ` FROM orders WHERE id = $1 AND user_id = $2 AND NOT deleted`
	return r.getOne(ctx, query, orderID, userID)
}

func (r *postgresRepository) GetByID(ctx context.Context, orderID int64) (*Order, error) {
	query := `SELECT ` + orderColumns + ` FROM orders WHERE id = $1 AND NOT deleted`
	return r.getOne(ctx, query, orderID)
}

func (r *postgresRepository) getOne(ctx context.Context, query string, orderID int64, args ...any) (*Order, error) {
	conn := db.Conn(ctx, r.db)

	o, err := scanOrder(conn.QueryRow(ctx, query, append([]any{orderID}, args...)...))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrOrderNotFound
		}
		return nil, fmt.Errorf("repository: failed to select order %d: %w", orderID, err)
	}

	items, err := r.loadItems(ctx, conn, []int64{orderID})
	if err != nil {
		return nil, err
	}
	o.Items = items[orderID]
	if o.Items == nil {
		o.Items = make([]LineItem, 0)
	}

	return o, nil
}

func (r *postgresRepository) loadItems(ctx context.Context, conn db.DBTX, orderIDs []int64) (map[int64][]LineItem, error) {
	query := `
		SELECT id, order_id, product_id, product_name, product_image, unit_price, quantity, total_price, created_at, updated_at
		FROM order_items
		WHERE order_id = ANY($1)
		ORDER BY order_id, id
	`

	rows, err := conn.Query(ctx, query, orderIDs)
	if err != nil {
		return nil, fmt.Errorf("repository: failed to query order items: %w", err)
	}
	defer rows.Close()

	items := make(map[int64][]LineItem, len(orderIDs))
	for rows.Next() {
		var item LineItem
		err := rows.Scan(
			&item.ID,
			&item.OrderID,
			&item.ProductID,
			&item.ProductName,
			&item.ProductImage,
			&item.UnitPrice,
			&item.Quantity,
			&item.TotalPrice,
			&item.CreatedAt,
			&item.UpdatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("repository: failed to scan order item: %w", err)
		}
		items[item.OrderID] = append(items[item.OrderID], item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("repository: failed iterating order items: %w", err)
	}

	return items, nil
}

func (r *postgresRepository) List(ctx context.Context, userID int64, filter ListFilter) ([]Order, int64, error) {
	conn := db.Conn(ctx, r.db)

	conds := []string{"user_id = $1", "NOT deleted"}
	args := []any{userID}
	if filter.Status != nil {
		args = append(args, *filter.Status)
		conds = append(conds, fmt.Sprintf("status = $%d", len(args)))
	}
	if filter.OrderNumber != "" {
		args = append(args, filter.OrderNumber)
		conds = append(conds, fmt.Sprintf("order_number = $%d", len(args)))
	}
	if filter.From != nil {
		args = append(args, *filter.From)
		conds = append(conds, fmt.Sprintf("created_at >= $%d", len(args)))
	}
	if filter.To != nil {
		args = append(args, *filter.To)
		conds = append(conds, fmt.Sprintf("created_at <= $%d", len(args)))
	}
	where := strings.Join(conds, " AND ")

	var total int64
	if err := conn.QueryRow(ctx, `SELECT count(*) FROM orders WHERE `+where, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("repository: failed to count orders of user %d: %w", userID, err)
	}
	if total == 0 {
		return []Order{}, 0, nil
	}

	args = append(args, filter.PageSize, filter.Offset())
	query := fmt.Sprintf(`SELECT %s FROM orders WHERE %s ORDER BY created_at DESC, id DESC LIMIT $%d OFFSET $%d`,
		orderColumns, where, len(args)-1, len(args))

	rows, err := conn.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("repository: failed to query orders of user %d: %w", userID, err)
	}
	defer rows.Close()

	orders := make([]Order, 0, filter.PageSize)
	var orderIDs []int64
	for rows.Next() {
		o, err := scanOrder(rows)
		if err != nil {
			return nil, 0, fmt.Errorf("repository: failed to scan order of user %d: %w", userID, err)
		}
		orders = append(orders, *o)
		orderIDs = append(orderIDs, o.ID)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("repository: failed iterating orders of user %d: %w", userID, err)
	}
	rows.Close()

	if len(orderIDs) == 0 {
		return orders, total, nil
	}

	items, err := r.loadItems(ctx, conn, orderIDs)
	if err != nil {
		return nil, 0, err
	}
	for i := range orders {
		orders[i].Items = items[orders[i].ID]
		if orders[i].Items == nil {
			orders[i].Items = make([]LineItem, 0)
		}
	}

	return orders, total, nil
}

// UpdateStatus делает compare-and-set по текущему статусу и возвращает
// записанное время изменения.
func (r *postgresRepository) UpdateStatus(ctx context.Context, change StatusChange) (time.Time, error) {
	query := `
		UPDATE orders
		SET status = $3,
			payment_status = COALESCE($4::smallint, payment_status),
			payment_time = COALESCE($5::timestamptz, payment_time),
			ship_time = COALESCE($6::timestamptz, ship_time),
			confirm_time = COALESCE($7::timestamptz, confirm_time),
			updated_at = $8
		WHERE id = $1 AND status = $2 AND NOT deleted
	`

	var paymentStatus *int
	if change.PaymentStatus != nil {
		v := int(*change.PaymentStatus)
		paymentStatus = &v
	}

	now := time.Now().UTC()
	cmdTag, err := db.Conn(ctx, r.db).Exec(ctx, query,
		change.OrderID,
		change.From,
		change.To,
		paymentStatus,
		change.PaymentTime,
		change.ShipTime,
		change.ConfirmTime,
		now,
	)
	if err != nil {
		log.Error().Err(err).Int64("order_id", change.OrderID).Stringer("to_status", change.To).Msg("repository: failed to update order status")
		return time.Time{}, fmt.Errorf("repository: failed to update status of order %d: %w", change.OrderID, err)
	}

	if cmdTag.RowsAffected() == 0 {
		log.Warn().Int64("order_id", change.OrderID).Stringer("from_status", change.From).Stringer("to_status", change.To).Msg("repository: order left the expected status before update")
		return time.Time{}, ErrInvalidStatusTransition
	}

	return now, nil
}

func (r *postgresRepository) SoftDelete(ctx context.Context, userID, orderID int64, allowed []Status) error {
	query := `
		UPDATE orders
		SET deleted = TRUE, updated_at = $4
		WHERE id = $1 AND user_id = $2 AND status = ANY($3) AND NOT deleted
	`

	statuses := make([]int, len(allowed))
	for i, s := range allowed {
		statuses[i] = int(s)
	}

	cmdTag, err := db.Conn(ctx, r.db).Exec(ctx, query, orderID, userID, statuses, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("repository: failed to delete order %d: %w", orderID, err)
	}
	if cmdTag.RowsAffected() == 0 {
		return ErrInvalidStatusTransition
	}
	return nil
}

func (r *postgresRepository) FindByIdempotencyKey(ctx context.Context, userID int64, key string) (int64, error) {
	query := `SELECT order_id FROM order_idempotency WHERE user_id = $1 AND idempotency_key = $2`

	var orderID int64
	err := db.Conn(ctx, r.db).QueryRow(ctx, query, userID, key).Scan(&orderID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return 0, ErrOrderNotFound
		}
		return 0, fmt.Errorf("repository: failed to look up idempotency key of user %d: %w", userID, err)
	}
	return orderID, nil
}

func (r *postgresRepository) SaveIdempotencyKey(ctx context.Context, userID int64, key string, orderID int64) error {
	query := `
		INSERT INTO order_idempotency (user_id, idempotency_key, order_id, created_at)
		VALUES ($1, $2, $3, $4)
	`

	_, err := db.Conn(ctx, r.db).Exec(ctx, query, userID, key, orderID, time.Now().UTC())
	if err != nil {
		if db.IsUniqueViolation(err, idempotencyConstraint) {
			return ErrDuplicateRequest
		}
		return fmt.Errorf("repository: failed to save idempotency key for order %d: %w", orderID, err)
	}
	return nil
}
