package events

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/segmentio/kafka-go"
	"github.com/sony/gobreaker/v2"
)

type Publisher interface {
	Publish(ctx context.Context, rec Record) error
}

// KafkaPublisher пишет записи с ключом агрегата, чтобы события
// одного заказа попадали в одну партицию.
type KafkaPublisher struct {
	writer *kafka.Writer
}

func NewKafkaPublisher(brokers []string) *KafkaPublisher {
	return &KafkaPublisher{
		writer: &kafka.Writer{
			Addr:                   kafka.TCP(brokers...),
			Balancer:               &kafka.Hash{},
			RequiredAcks:           kafka.RequireOne,
			AllowAutoTopicCreation: true,
		},
	}
}

func (p *KafkaPublisher) Publish(ctx context.Context, rec Record) error {
	msg := kafka.Message{
		Topic: rec.Topic,
		Key:   []byte(rec.Key),
		Value: rec.Payload,
		Time:  rec.CreatedAt,
		Headers: []kafka.Header{
			{Key: "event_type", Value: []byte(rec.EventType)},
			{Key: "event_id", Value: []byte(rec.EventID.String())},
		},
	}
	return p.writer.WriteMessages(ctx, msg)
}

func (p *KafkaPublisher) Close() error {
	return p.writer.Close()
}

type Relay struct {
	repo      Repository
	publisher Publisher
	breaker   *gobreaker.CircuitBreaker[struct{}]
	interval  time.Duration
	batchSize int
}

func NewRelay(repo Repository, publisher Publisher, interval time.Duration, batchSize int) *Relay {
	breaker := gobreaker.NewCircuitBreaker[struct{}](gobreaker.Settings{
		Name:        "outbox-kafka",
		MaxRequests: 1,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			log.Warn().Str("breaker", name).Stringer("from", from).Stringer("to", to).Msg("relay: circuit breaker state changed")
		},
	})

	return &Relay{
		repo:      repo,
		publisher: publisher,
		breaker:   breaker,
		interval:  interval,
		batchSize: batchSize,
	}
}

// Run опрашивает outbox, пока ctx не отменён.
func (r *Relay) Run(ctx context.Context) {
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	log.Info().Dur("interval", r.interval).Int("batch_size", r.batchSize).Msg("relay: started")
	for {
		select {
		case <-ctx.Done():
			log.Info().Msg("relay: stopped")
			return
		case <-ticker.C:
			if _, err := r.Flush(ctx); err != nil && !errors.Is(err, context.Canceled) {
				log.Warn().Err(err).Msg("relay: flush interrupted")
			}
		}
	}
}

// Flush публикует одну пачку неотправленных записей, начиная со старых, и возвращает
// число отправленных. Останавливается на первой ошибке, чтобы более позднее событие
// заказа не обогнало раннее.
func (r *Relay) Flush(ctx context.Context) (int, error) {
	records, err := r.repo.FetchPending(ctx, r.batchSize)
	if err != nil {
		return 0, err
	}

	sent := 0
	for _, rec := range records {
		_, err := r.breaker.Execute(func() (struct{}, error) {
			return struct{}{}, r.publisher.Publish(ctx, rec)
		})
		if err != nil {
			return sent, fmt.Errorf("relay: failed to publish event %d (%s): %w", rec.ID, rec.EventType, err)
		}

		if err := r.repo.MarkSent(ctx, rec.ID); err != nil {
			return sent, err
		}
		sent++
	}

	if sent > 0 {
		log.Debug().Int("sent", sent).Msg("relay: outbox batch published")
	}
	return sent, nil
}
