package cart

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/vasiliy-maslov/checkout-service/internal/db"
)

const liveLineConstraint = "cart_user_product_live_key"

type Repository interface {
	GetLine(ctx context.Context, id int64) (*Line, error)
	FindLine(ctx context.Context, userID, productID int64) (*Line, error)
	GetLines(ctx context.Context, ids []int64) ([]Line, error)
	SelectedLines(ctx context.Context, userID int64) ([]Line, error)
	CreateLine(ctx context.Context, line *Line) error
	UpdateQuantity(ctx context.Context, id int64, quantity int) error
	SetSelected(ctx context.Context, id int64, selected bool) error
	SetSelectedAll(ctx context.Context, userID int64, selected bool) (int64, error)
	SoftDelete(ctx context.Context, userID int64, ids []int64) (int64, error)
	SoftDeleteAll(ctx context.Context, userID int64) (int64, error)
	ListViews(ctx context.Context, userID int64, selectedOnly bool) ([]LineView, error)
	Count(ctx context.Context, userID int64) (int, error)
}

type postgresRepository struct {
	db *pgxpool.Pool
}

func NewRepository(db *pgxpool.Pool) Repository {
	return &postgresRepository{db: db}
}

const lineColumns = `id, user_id, product_id, quantity, selected, created_at, updated_at, deleted`

func scanLine(row pgx.Row) (*Line, error) {
	var l Line
	err := row.Scan(
		&l.ID,
		&l.UserID,
		&l.ProductID,
		&l.Quantity,
		&l.Selected,
		&l.CreatedAt,
		&l.UpdatedAt,
		&l.Deleted,
	)
	if err != nil {
		return nil, err
	}
	return &l, nil
}

func (r *postgresRepository) GetLine(ctx context.Context, id int64) (*Line, error) {
	query := `SELECT ` + lineColumns + ` FROM cart WHERE id = $1 AND NOT deleted FOR UPDATE`

	line, err := scanLine(db.Conn(ctx, r.db).QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrLineNotFound
		}
		return nil, fmt.Errorf("repository: failed to select cart line %d: %w", id, err)
	}
	return line, nil
}

func (r *postgresRepository) FindLine(ctx context.Context, userID, productID int64) (*Line, error) {
	query := `SELECT ` + lineColumns + ` FROM cart WHERE user_id = $1 AND product_id = $2 AND NOT deleted FOR UPDATE`

	line, err := scanLine(db.Conn(ctx, r.db).QueryRow(ctx, query, userID, productID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrLineNotFound
		}
		return nil, fmt.Errorf("repository: failed to find cart line of user %d for product %d: %w", userID, productID, err)
	}
	return line, nil
}

func (r *postgresRepository) GetLines(ctx context.Context, ids []int64) ([]Line, error) {
	query := `SELECT ` + lineColumns + ` FROM cart WHERE id = ANY($1) AND NOT deleted ORDER BY created_at, id FOR UPDATE`
	return r.queryLines(ctx, query, ids)
}

func (r *postgresRepository) SelectedLines(ctx context.Context, userID int64) ([]Line, error) {
	query := `SELECT ` + lineColumns + ` FROM cart WHERE user_id = $1 AND selected AND NOT deleted ORDER BY created_at, id FOR UPDATE`
	return r.queryLines(ctx, query, userID)
}

func (r *postgresRepository) queryLines(ctx context.Context, query string, arg any) ([]Line, error) {
	rows, err := db.Conn(ctx, r.db).Query(ctx, query, arg)
	if err != nil {
		return nil, fmt.Errorf("repository: failed to query cart lines: %w", err)
	}
	defer rows.Close()

	lines := make([]Line, 0)
	for rows.Next() {
		line, err := scanLine(rows)
		if err != nil {
			return nil, fmt.Errorf("repository: failed to scan cart line: %w", err)
		}
		lines = append(lines, *line)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("repository: failed iterating cart lines: %w", err)
	}
	return lines, nil
}

func (r *postgresRepository) CreateLine(ctx context.Context, line *Line) error {
	now := time.Now().UTC()
	line.Stamp(now)

	query := `
		INSERT INTO cart (user_id, product_id, quantity, selected, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id
	`
	err := db.Conn(ctx, r.db).QueryRow(ctx, query,
		line.UserID,
		line.ProductID,
		line.Quantity,
		line.Selected,
		line.CreatedAt,
		line.UpdatedAt,
	).Scan(&line.ID)
	if err != nil {
		if db.IsUniqueViolation(err, liveLineConstraint) {
			return ErrConcurrentAdd
		}
		return fmt.Errorf("repository: failed to insert cart line for user %d: %w", line.UserID, err)
	}
	return nil
}

func (r *postgresRepository) UpdateQuantity(ctx context.Context, id int64, quantity int) error {
	query := `UPDATE cart SET quantity = $2, updated_at = $3 WHERE id = $1 AND NOT deleted`
	return r.execOne(ctx, query, id, quantity, time.Now().UTC())
}

func (r *postgresRepository) SetSelected(ctx context.Context, id int64, selected bool) error {
	query := `UPDATE cart SET selected = $2, updated_at = $3 WHERE id = $1 AND NOT deleted`
	return r.execOne(ctx, query, id, selected, time.Now().UTC())
}

func (r *postgresRepository) execOne(ctx context.Context, query string, args ...any) error {
	cmdTag, err := db.Conn(ctx, r.db).Exec(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("repository: failed to update cart line: %w", err)
	}
	if cmdTag.RowsAffected() == 0 {
		return ErrLineNotFound
	}
	return nil
}

func (r *postgresRepository) SetSelectedAll(ctx context.Context, userID int64, selected bool) (int64, error) {
	query := `UPDATE cart SET selected = $2, updated_at = $3 WHERE user_id = $1 AND NOT deleted`

	cmdTag, err := db.Conn(ctx, r.db).Exec(ctx, query, userID, selected, time.Now().UTC())
	if err != nil {
		return 0, fmt.Errorf("repository: failed to update selection for user %d: %w", userID, err)
	}
	return cmdTag.RowsAffected(), nil
}

func (r *postgresRepository) SoftDelete(ctx context.Context, userID int64, ids []int64) (int64, error) {
	query := `UPDATE cart SET deleted = TRUE, updated_at = $3 WHERE user_id = $1 AND id = ANY($2) AND NOT deleted`

	cmdTag, err := db.Conn(ctx, r.db).Exec(ctx, query, userID, ids, time.Now().UTC())
	if err != nil {
		return 0, fmt.Errorf("repository: failed to delete cart lines of user %d: %w", userID, err)
	}
	return cmdTag.RowsAffected(), nil
}

func (r *postgresRepository) SoftDeleteAll(ctx context.Context, userID int64) (int64, error) {
	query := `UPDATE cart SET deleted = TRUE, updated_at = $2 WHERE user_id = $1 AND NOT deleted`

	cmdTag, err := db.Conn(ctx, r.db).Exec(ctx, query, userID, time.Now().UTC())
	if err != nil {
		return 0, fmt.Errorf("repository: failed to clear cart of user %d: %w", userID, err)
	}
	return cmdTag.RowsAffected(), nil
}

func (r *postgresRepository) ListViews(ctx context.Context, userID int64, selectedOnly bool) ([]LineView, error) {
	query := `
		SELECT c.id, c.user_id, c.product_id, c.quantity, c.selected, c.created_at, c.updated_at,
		       p.name, p.main_image, p.price, p.stock
		FROM cart c
		JOIN product p ON p.id = c.product_id
		WHERE c.user_id = $1
		  AND NOT c.deleted
		  AND NOT p.deleted
		  AND p.status = 1
		  AND (c.selected OR NOT $2)
		ORDER BY c.created_at, c.id
	`

	rows, err := db.Conn(ctx, r.db).Query(ctx, query, userID, selectedOnly)
	if err != nil {
		return nil, fmt.Errorf("repository: failed to query cart of user %d: %w", userID, err)
	}
	defer rows.Close()

	views := make([]LineView, 0)
	for rows.Next() {
		var v LineView
		err := rows.Scan(
			&v.ID,
			&v.UserID,
			&v.ProductID,
			&v.Quantity,
			&v.Selected,
			&v.CreatedAt,
			&v.UpdatedAt,
			&v.ProductName,
			&v.MainImage,
			&v.Price,
			&v.Stock,
		)
		if err != nil {
			return nil, fmt.Errorf("repository: failed to scan cart line of user %d: %w", userID, err)
		}
		views = append(views, v)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("repository: failed iterating cart of user %d: %w", userID, err)
	}
	return views, nil
}

func (r *postgresRepository) Count(ctx context.Context, userID int64) (int, error) {
	query := `SELECT COALESCE(SUM(quantity), 0) FROM cart WHERE user_id = $1 AND NOT deleted`

	var count int
	if err := db.Conn(ctx, r.db).QueryRow(ctx, query, userID).Scan(&count); err != nil {
		return 0, fmt.Errorf("repository: failed to count cart of user %d: %w", userID, err)
	}
	return count, nil
}
