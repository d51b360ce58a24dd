package catalog

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/gofrs/uuid"
	"github.com/rs/zerolog/log"
)

const activeProductsKey = "products:active"

// Cache is the subset of a JSON cache the catalog needs. A nil Cache disables caching.
type Cache interface {
	GetJSON(ctx context.Context, key string, dst any) (bool, error)
	SetJSON(ctx context.Context, key string, v any, ttl time.Duration) error
	Delete(ctx context.Context, keys ...string) error
}

type Service interface {
	ListProducts(ctx context.Context) ([]Product, error)
	DeleteProduct(ctx context.Context, id uuid.UUID) error
	InvalidateListing(ctx context.Context)
}

type service struct {
	repo     Repository
	cache    Cache
	cacheTTL time.Duration
}

func NewService(repo Repository, cache Cache, cacheTTL time.Duration) Service {
	return &service{repo: repo, cache: cache, cacheTTL: cacheTTL}
}

func (s *service) ListProducts(ctx context.Context) ([]Product, error) {
	if s.cache != nil {
		var cached []Product
		found, err := s.cache.GetJSON(ctx, activeProductsKey, &cached)
		if err != nil {
			// Cache trouble degrades to a database read.
			log.Warn().Err(err).Msg("service: product cache read failed")
		} else if found {
			return cached, nil
		}
	}

	products, err := s.repo.ListActive(ctx)
	if err != nil {
		log.Error().Err(err).Msg("service: failed to list products in repository")
		return nil, fmt.Errorf("service: failed to list products: %w", err)
	}

	if s.cache != nil {
		if err := s.cache.SetJSON(ctx, activeProductsKey, products, s.cacheTTL); err != nil {
			log.Warn().Err(err).Msg("service: product cache write failed")
		}
	}

	return products, nil
}

func (s *service) DeleteProduct(ctx context.Context, id uuid.UUID) error {
	err := s.repo.SoftDelete(ctx, id)
	if err != nil {
		if errors.Is(err, ErrProductNotFound) {
			log.Warn().Stringer("product_id", id).Msg("service: product not found for delete")
			return ErrProductNotFound
		}
		log.Error().Err(err).Stringer("product_id", id).Msg("service: failed to soft delete product")
		return fmt.Errorf("service: failed to delete product: %w", err)
	}

	s.InvalidateListing(ctx)
	log.Info().Stringer("product_id", id).Msg("service: product soft deleted")
	return nil
}

func (s *service) InvalidateListing(ctx context.Context) {
	if s.cache == nil {
		return
	}
	if err := s.cache.Delete(ctx, activeProductsKey); err != nil {
		log.Warn().Err(err).Msg("service: product cache invalidation failed")
	}
}
