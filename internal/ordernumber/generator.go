// Package ordernumber выдаёт читаемые номера заказов вида
// <префикс><unix millis><3 цифры>, например JD1760870400123042.
package ordernumber

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/vasiliy-maslov/checkout-service/internal/apperror"
)

const suffixSpace = 1000

var (
	// ErrCollision возвращает insert, когда база отвергла номер как дубликат.
	// Allocate обрабатывает её как неудачную предварительную проверку.
	ErrCollision = errors.New("order number already taken")
	ErrExhausted = apperror.New(apperror.Conflict, "could not allocate a unique order number, please retry")
)

type Checker interface {
	OrderNumberExists(ctx context.Context, number string) (bool, error)
}

type Generator struct {
	prefix   string
	attempts int
	checker  Checker
	now      func() time.Time

	mu         sync.Mutex
	rnd        *rand.Rand
	lastMillis int64
	offset     int
	seq        int
}

func NewGenerator(prefix string, attempts int, checker Checker) *Generator {
	if attempts < 1 {
		attempts = 1
	}
	return &Generator{
		prefix:   prefix,
		attempts: attempts,
		checker:  checker,
		now:      time.Now,
		rnd:      rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64())),
	}
}

// Allocate предлагает номера, пока insert не примет один из них, и после
// заданного числа попыток возвращает ErrExhausted. Предварительная проверка лишь
// экономит запрос: уникальность обеспечивает insert, сообщая ErrCollision.
func (g *Generator) Allocate(ctx context.Context, insert func(ctx context.Context, number string) error) (string, error) {
	for attempt := 1; attempt <= g.attempts; attempt++ {
		candidate := g.next()

		if g.checker != nil {
			exists, err := g.checker.OrderNumberExists(ctx, candidate)
			if err != nil {
				return "", fmt.Errorf("ordernumber: failed to check candidate %s: %w", candidate, err)
			}
			if exists {
				log.Warn().Str("order_number", candidate).Int("attempt", attempt).Msg("ordernumber: candidate already exists")
				continue
			}
		}

		if err := insert(ctx, candidate); err != nil {
			if errors.Is(err, ErrCollision) {
				log.Warn().Str("order_number", candidate).Int("attempt", attempt).Msg("ordernumber: store rejected duplicate candidate")
				continue
			}
			return "", err
		}

		return candidate, nil
	}

	log.Error().Int("attempts", g.attempts).Msg("ordernumber: allocation attempts exhausted")
	return "", ErrExhausted
}

// next не повторяется в пределах процесса: внутри одной миллисекунды суффикс
// идёт от случайного смещения, а когда суффиксы кончаются,
// миллисекунды сдвигаются вперёд.
func (g *Generator) next() string {
	g.mu.Lock()
	defer g.mu.Unlock()

	ms := g.now().UnixMilli()
	if ms > g.lastMillis {
		g.lastMillis = ms
		g.offset = g.rnd.IntN(suffixSpace)
		g.seq = 0
	} else {
		g.seq++
		if g.seq >= suffixSpace {
			g.lastMillis++
			g.offset = g.rnd.IntN(suffixSpace)
			g.seq = 0
		}
	}

	return fmt.Sprintf("%s%d%03d", g.prefix, g.lastMillis, (g.offset+g.seq)%suffixSpace)
}
