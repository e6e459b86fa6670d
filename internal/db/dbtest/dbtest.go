// Package dbtest поднимает одноразовый PostgreSQL для интеграционных тестов
// и даёт простые хелперы для наполнения данных на голом SQL.
package dbtest

import (
	"context"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"
	"github.com/vasiliy-maslov/checkout-service/internal/db"
)

type Database struct {
	Pool      *pgxpool.Pool
	container *postgres.PostgresContainer
}

type runFunc func(ctx context.Context) (*postgres.PostgresContainer, error)

func runPostgres(ctx context.Context) (*postgres.PostgresContainer, error) {
	return postgres.Run(ctx,
		"postgres:16-alpine",
		postgres.WithDatabase("checkout"),
		postgres.WithUsername("checkout"),
		postgres.WithPassword("checkout"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(60*time.Second),
		),
	)
}

// startContainer превращает панику при поиске Docker в ошибку, чтобы
// тесты пропускались, а не падал весь тестовый бинарник.
func startContainer(ctx context.Context, run runFunc) (container *postgres.PostgresContainer, err error) {
	defer func() {
		if p := recover(); p != nil {
			container = nil
			err = fmt.Errorf("dbtest: docker is not available: %v", p)
		}
	}()

	container, err = run(ctx)
	if err != nil {
		return nil, fmt.Errorf("dbtest: failed to start postgres container: %w", err)
	}
	return container, nil
}

// Start запускает postgres:16-alpine и применяет встроенные миграции.
func Start(ctx context.Context) (*Database, error) {
	container, err := startContainer(ctx, runPostgres)
	if err != nil {
		return nil, err
	}

	connStr, err := container.ConnectionString(ctx, "sslmode=disable")
	if err != nil {
		_ = container.Terminate(ctx)
		return nil, fmt.Errorf("dbtest: failed to get connection string: %w", err)
	}

	if err := db.ApplyMigrations(strings.Replace(connStr, "postgres://", "pgx5://", 1)); err != nil {
		_ = container.Terminate(ctx)
		return nil, err
	}

	pool, err := pgxpool.New(ctx, connStr)
	if err != nil {
		_ = container.Terminate(ctx)
		return nil, fmt.Errorf("dbtest: failed to connect: %w", err)
	}

	return &Database{Pool: pool, container: container}, nil
}

func (d *Database) Close(ctx context.Context) {
	if d == nil {
		return
	}
	d.Pool.Close()
	_ = d.container.Terminate(ctx)
}

// Setup пропускает t, если базу поднять не удалось, иначе очищает все таблицы.
func Setup(t *testing.T, d *Database) *pgxpool.Pool {
	t.Helper()
	if d == nil {
		t.Skip("postgres container is not available")
	}

	truncate := func() {
		_, err := d.Pool.Exec(context.Background(),
			`TRUNCATE outbox, order_idempotency, order_items, orders, cart, product RESTART IDENTITY CASCADE`)
		require.NoError(t, err)
	}
	truncate()
	t.Cleanup(truncate)

	return d.Pool
}

// SeedProduct вставляет товар в продаже и возвращает его id.
func SeedProduct(t *testing.T, pool *pgxpool.Pool, name, price string, stock int) int64 {
	t.Helper()
	var id int64
	err := pool.QueryRow(context.Background(),
		`INSERT INTO product (name, main_image, price, stock, status) VALUES ($1, $2, $3::numeric, $4, 1) RETURNING id`,
		name, "https://img.example.com/"+name+".jpg", price, stock,
	).Scan(&id)
	require.NoError(t, err)
	return id
}

func SetProductListed(t *testing.T, pool *pgxpool.Pool, id int64, listed bool) {
	t.Helper()
	status := 0
	if listed {
		status = 1
	}
	_, err := pool.Exec(context.Background(), `UPDATE product SET status = $2 WHERE id = $1`, id, status)
	require.NoError(t, err)
}

func Stock(t *testing.T, pool *pgxpool.Pool, id int64) int {
	t.Helper()
	var stock int
	err := pool.QueryRow(context.Background(), `SELECT stock FROM product WHERE id = $1`, id).Scan(&stock)
	require.NoError(t, err)
	return stock
}

func CountRows(t *testing.T, pool *pgxpool.Pool, table string) int {
	t.Helper()
	var n int
	err := pool.QueryRow(context.Background(), "SELECT count(*) FROM "+table).Scan(&n)
	require.NoError(t, err)
	return n
}

// Passthrough выполняет fn без транзакции, для тестов сервисов на моках.
type Passthrough struct{}

func (Passthrough) WithinTx(ctx context.Context, fn func(ctx context.Context) error) error {
	return fn(ctx)
}
