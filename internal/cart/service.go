package cart

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"github.com/rs/zerolog/log"
	"github.com/vasiliy-maslov/checkout-service/internal/apperror"
	"github.com/vasiliy-maslov/checkout-service/internal/catalog"
	"github.com/vasiliy-maslov/checkout-service/internal/db"
	"golang.org/x/sync/singleflight"
)

var (
	ErrLineNotFound    = apperror.New(apperror.NotFound, "cart line not found")
	ErrNotOwner        = apperror.New(apperror.PermissionDenied, "cart line belongs to another user")
	ErrInvalidQuantity = apperror.New(apperror.Validation, "quantity must be at least 1")
	ErrEmptyBatch      = apperror.New(apperror.Validation, "no cart lines given")
	ErrProductDelisted = apperror.New(apperror.ProductUnavailable, "product is delisted")
	ErrConcurrentAdd   = apperror.New(apperror.Conflict, "cart line was changed concurrently, please retry")
)

type Service interface {
	AddItem(ctx context.Context, userID, productID int64, quantity int) (*Line, error)
	UpdateQuantity(ctx context.Context, userID, lineID int64, quantity int) (*Line, error)
	Remove(ctx context.Context, userID, lineID int64) error
	RemoveMany(ctx context.Context, userID int64, lineIDs []int64) error
	Clear(ctx context.Context, userID int64) error
	Select(ctx context.Context, userID, lineID int64, selected bool) error
	SelectAll(ctx context.Context, userID int64, selected bool) error
	List(ctx context.Context, userID int64) ([]LineView, error)
	ListSelected(ctx context.Context, userID int64) ([]LineView, error)
	Count(ctx context.Context, userID int64) (int, error)
}

type service struct {
	tx       db.Transactor
	repo     Repository
	products catalog.Repository
	cache    CountCache
	group    singleflight.Group
}

// NewService собирает сервис корзины. cache может быть nil.
func NewService(tx db.Transactor, repo Repository, products catalog.Repository, cache CountCache) Service {
	return &service{
		tx:       tx,
		repo:     repo,
		products: products,
		cache:    cache,
	}
}

func (s *service) AddItem(ctx context.Context, userID, productID int64, quantity int) (*Line, error) {
	if quantity < 1 {
		return nil, ErrInvalidQuantity
	}

	var result *Line
	err := s.tx.WithinTx(ctx, func(ctx context.Context) error {
		product, err := s.products.GetProduct(ctx, productID)
		if err != nil {
			return err
		}
		if product.Deleted {
			return catalog.ErrProductNotFound
		}
		if product.Status != catalog.StatusListed {
			return ErrProductDelisted
		}

		existing, err := s.repo.FindLine(ctx, userID, productID)
		if err != nil && !errors.Is(err, ErrLineNotFound) {
			return err
		}

		if existing != nil {
			merged := existing.Quantity + quantity
			if merged > product.Stock {
				return insufficientStock(productID, merged, product.Stock)
			}
			if err := s.repo.UpdateQuantity(ctx, existing.ID, merged); err != nil {
				return err
			}
			existing.Quantity = merged
			result = existing
			return nil
		}

		if quantity > product.Stock {
			return insufficientStock(productID, quantity, product.Stock)
		}

		line := &Line{
			UserID:    userID,
			ProductID: productID,
			Quantity:  quantity,
			Selected:  true,
		}
		if err := s.repo.CreateLine(ctx, line); err != nil {
			return err
		}
		result = line
		return nil
	})
	if err != nil {
		return nil, s.fail(err, "add item", userID)
	}

	s.invalidate(ctx, userID)
	log.Info().Int64("user_id", userID).Int64("product_id", productID).Int64("cart_line_id", result.ID).Int("quantity", result.Quantity).Msg("service: cart item added")
	return result, nil
}

func (s *service) UpdateQuantity(ctx context.Context, userID, lineID int64, quantity int) (*Line, error) {
	if quantity < 1 {
		return nil, ErrInvalidQuantity
	}

	var result *Line
	err := s.tx.WithinTx(ctx, func(ctx context.Context) error {
		line, err := s.ownedLine(ctx, userID, lineID)
		if err != nil {
			return err
		}

		product, err := s.products.GetProduct(ctx, line.ProductID)
		if err != nil {
			return err
		}
		if product.Deleted {
			return catalog.ErrProductNotFound
		}
		if product.Status != catalog.StatusListed {
			return ErrProductDelisted
		}
		if quantity > product.Stock {
			return insufficientStock(line.ProductID, quantity, product.Stock)
		}

		if err := s.repo.UpdateQuantity(ctx, line.ID, quantity); err != nil {
			return err
		}
		line.Quantity = quantity
		result = line
		return nil
	})
	if err != nil {
		return nil, s.fail(err, "update quantity", userID)
	}

	s.invalidate(ctx, userID)
	return result, nil
}

func (s *service) Remove(ctx context.Context, userID, lineID int64) error {
	err := s.tx.WithinTx(ctx, func(ctx context.Context) error {
		if _, err := s.ownedLine(ctx, userID, lineID); err != nil {
			return err
		}
		_, err := s.repo.SoftDelete(ctx, userID, []int64{lineID})
		return err
	})
	if err != nil {
		return s.fail(err, "remove line", userID)
	}

	s.invalidate(ctx, userID)
	return nil
}

// RemoveMany проверяет все id, прежде чем удалить хотя бы один.
func (s *service) RemoveMany(ctx context.Context, userID int64, lineIDs []int64) error {
	ids := uniqueIDs(lineIDs)
	if len(ids) == 0 {
		return ErrEmptyBatch
	}

	err := s.tx.WithinTx(ctx, func(ctx context.Context) error {
		lines, err := s.repo.GetLines(ctx, ids)
		if err != nil {
			return err
		}

		found := make(map[int64]Line, len(lines))
		for _, l := range lines {
			found[l.ID] = l
		}
		for _, id := range ids {
			l, ok := found[id]
			if !ok {
				return apperror.Newf(apperror.NotFound, "cart line %d not found", id)
			}
			if l.UserID != userID {
				return ErrNotOwner
			}
		}

		_, err = s.repo.SoftDelete(ctx, userID, ids)
		return err
	})
	if err != nil {
		return s.fail(err, "remove lines", userID)
	}

	s.invalidate(ctx, userID)
	return nil
}

func (s *service) Clear(ctx context.Context, userID int64) error {
	removed, err := s.repo.SoftDeleteAll(ctx, userID)
	if err != nil {
		return s.fail(err, "clear cart", userID)
	}

	s.invalidate(ctx, userID)
	log.Info().Int64("user_id", userID).Int64("removed", removed).Msg("service: cart cleared")
	return nil
}

func (s *service) Select(ctx context.Context, userID, lineID int64, selected bool) error {
	err := s.tx.WithinTx(ctx, func(ctx context.Context) error {
		if _, err := s.ownedLine(ctx, userID, lineID); err != nil {
			return err
		}
		return s.repo.SetSelected(ctx, lineID, selected)
	})
	if err != nil {
		return s.fail(err, "select line", userID)
	}
	return nil
}

func (s *service) SelectAll(ctx context.Context, userID int64, selected bool) error {
	if _, err := s.repo.SetSelectedAll(ctx, userID, selected); err != nil {
		return s.fail(err, "select all lines", userID)
	}
	return nil
}

func (s *service) List(ctx context.Context, userID int64) ([]LineView, error) {
	views, err := s.repo.ListViews(ctx, userID, false)
	if err != nil {
		return nil, s.fail(err, "list cart", userID)
	}
	return views, nil
}

func (s *service) ListSelected(ctx context.Context, userID int64) ([]LineView, error) {
	views, err := s.repo.ListViews(ctx, userID, true)
	if err != nil {
		return nil, s.fail(err, "list selected lines", userID)
	}
	return views, nil
}

// Count читает через кэш; при сбоях кэша идёт в базу.
func (s *service) Count(ctx context.Context, userID int64) (int, error) {
	if s.cache != nil {
		count, err := s.cache.Get(ctx, userID)
		if err == nil {
			return count, nil
		}
		if !errors.Is(err, ErrCacheMiss) {
			log.Warn().Err(err).Int64("user_id", userID).Msg("service: cart count cache read failed")
		}
	}

	v, err, _ := s.group.Do(strconv.FormatInt(userID, 10), func() (any, error) {
		var version int64
		cacheable := s.cache != nil
		if cacheable {
			var err error
			if version, err = s.cache.Version(ctx, userID); err != nil {
				log.Warn().Err(err).Int64("user_id", userID).Msg("service: cart count cache version read failed")
				cacheable = false
			}
		}

		count, err := s.repo.Count(ctx, userID)
		if err != nil {
			return 0, err
		}
		if cacheable {
			err := s.cache.Fill(ctx, userID, version, count)
			switch {
			case errors.Is(err, ErrStaleFill):
				log.Debug().Int64("user_id", userID).Msg("service: cart changed during count, not caching")
			case err != nil:
				log.Warn().Err(err).Int64("user_id", userID).Msg("service: cart count cache write failed")
			}
		}
		return count, nil
	})
	if err != nil {
		return 0, s.fail(err, "count cart", userID)
	}
	return v.(int), nil
}

func (s *service) ownedLine(ctx context.Context, userID, lineID int64) (*Line, error) {
	line, err := s.repo.GetLine(ctx, lineID)
	if err != nil {
		return nil, err
	}
	if line.UserID != userID {
		log.Warn().Int64("user_id", userID).Int64("cart_line_id", lineID).Msg("service: cart line owned by another user")
		return nil, ErrNotOwner
	}
	return line, nil
}

func (s *service) invalidate(ctx context.Context, userID int64) {
	if s.cache == nil {
		return
	}
	if err := s.cache.Invalidate(ctx, userID); err != nil {
		log.Warn().Err(err).Int64("user_id", userID).Msg("service: failed to invalidate cart count")
	}
}

// fail пропускает бизнес-ошибки как есть и оборачивает остальные.
func (s *service) fail(err error, op string, userID int64) error {
	if _, ok := apperror.As(err); ok {
		log.Warn().Err(err).Int64("user_id", userID).Msgf("service: %s rejected", op)
		return err
	}
	log.Error().Err(err).Int64("user_id", userID).Msgf("service: failed to %s", op)
	return fmt.Errorf("service: failed to %s: %w", op, err)
}

func insufficientStock(productID int64, requested, available int) error {
	return apperror.Newf(apperror.InsufficientStock,
		"insufficient stock for product %d: requested %d, available %d", productID, requested, available)
}

func uniqueIDs(ids []int64) []int64 {
	seen := make(map[int64]bool, len(ids))
	out := make([]int64, 0, len(ids))
	for _, id := range ids {
		if !seen[id] {
			seen[id] = true
			out = append(out, id)
		}
	}
	return out
}
