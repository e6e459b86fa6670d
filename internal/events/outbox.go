// Package events пишет доменные события в транзакционный outbox и отправляет
// их в Kafka.
package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/gofrs/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/vasiliy-maslov/checkout-service/internal/db"
)

type Record struct {
	ID        int64           `json:"id"`
	EventID   uuid.UUID       `json:"event_id"`
	Topic     string          `json:"topic"`
	Key       string          `json:"key"`
	EventType string          `json:"event_type"`
	Payload   json.RawMessage `json:"payload"`
	CreatedAt time.Time       `json:"created_at"`
	SentAt    *time.Time      `json:"sent_at,omitempty"`
}

type Repository interface {
	// Insert работает в транзакции из ctx, если она есть.
	Insert(ctx context.Context, rec *Record) error
	FetchPending(ctx context.Context, limit int) ([]Record, error)
	MarkSent(ctx context.Context, id int64) error
}

type postgresRepository struct {
	db *pgxpool.Pool
}

func NewRepository(db *pgxpool.Pool) Repository {
	return &postgresRepository{db: db}
}

func (r *postgresRepository) Insert(ctx context.Context, rec *Record) error {
	query := `
		INSERT INTO outbox (event_id, topic, key, event_type, payload, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id
	`
	err := db.Conn(ctx, r.db).QueryRow(ctx, query,
		rec.EventID,
		rec.Topic,
		rec.Key,
		rec.EventType,
		[]byte(rec.Payload),
		rec.CreatedAt,
	).Scan(&rec.ID)
	if err != nil {
		return fmt.Errorf("repository: failed to insert outbox event %s: %w", rec.EventType, err)
	}
	return nil
}

func (r *postgresRepository) FetchPending(ctx context.Context, limit int) ([]Record, error) {
	query := `
		SELECT id, event_id, topic, key, event_type, payload, created_at, sent_at
		FROM outbox
		WHERE sent_at IS NULL
		ORDER BY id
		LIMIT $1
	`

	rows, err := db.Conn(ctx, r.db).Query(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("repository: failed to query pending outbox events: %w", err)
	}
	defer rows.Close()

	records := make([]Record, 0)
	for rows.Next() {
		var rec Record
		var payload []byte
		err := rows.Scan(
			&rec.ID,
			&rec.EventID,
			&rec.Topic,
			&rec.Key,
			&rec.EventType,
			&payload,
			&rec.CreatedAt,
			&rec.SentAt,
		)
		if err != nil {
			return nil, fmt.Errorf("repository: failed to scan outbox event: %w", err)
		}
		rec.Payload = payload
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("repository: failed iterating outbox events: %w", err)
	}
	return records, nil
}

func (r *postgresRepository) MarkSent(ctx context.Context, id int64) error {
	_, err := db.Conn(ctx, r.db).Exec(ctx, `UPDATE outbox SET sent_at = $2 WHERE id = $1`, id, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("repository: failed to mark outbox event %d as sent: %w", id, err)
	}
	return nil
}

// Recorder превращает доменные данные в записи outbox для одного топика.
type Recorder struct {
	repo  Repository
	topic string
	now   func() time.Time
}

func NewRecorder(repo Repository, topic string) *Recorder {
	return &Recorder{repo: repo, topic: topic, now: time.Now}
}

func (r *Recorder) Record(ctx context.Context, eventType, key string, payload any) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("events: failed to encode %s payload: %w", eventType, err)
	}

	eventID, err := uuid.NewV4()
	if err != nil {
		return fmt.Errorf("events: failed to generate event id: %w", err)
	}

	rec := &Record{
		EventID:   eventID,
		Topic:     r.topic,
		Key:       key,
		EventType: eventType,
		Payload:   data,
		CreatedAt: r.now().UTC(),
	}
	return r.repo.Insert(ctx, rec)
}
