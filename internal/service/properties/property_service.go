package properties

import (
	"context"

	"github.com/rsv360/reservation-core/internal/domain"
	"github.com/rsv360/reservation-core/internal/repository"
)

type PropertyUseCase interface {
	List(ctx context.Context) ([]domain.Property, error)
	GetByID(ctx context.Context, id int64) (*domain.Property, error)
	GetShare(ctx context.Context, id int64) (*domain.Share, error)
}

type Cache interface {
	GetProperties(ctx context.Context) ([]domain.Property, error)
	SetProperties(ctx context.Context, properties []domain.Property) error
}

type PropertyService struct {
	repo  repository.PropertyRepository
	cache Cache
}

func NewPropertyService(repo repository.PropertyRepository, cache Cache) *PropertyService {
	return &PropertyService{repo: repo, cache: cache}
}

func (s *PropertyService) List(ctx context.Context) ([]domain.Property, error) {
	if s.cache != nil {
		if cached, err := s.cache.GetProperties(ctx); err == nil && cached != nil {
			return cached, nil
		}
	}

	properties, err := s.repo.List(ctx)
	if err != nil {
		return nil, err
	}
	if s.cache != nil {
		_ = s.cache.SetProperties(ctx, properties)
	}
	return properties, nil
}

func (s *PropertyService) GetByID(ctx context.Context, id int64) (*domain.Property, error) {
	return s.repo.GetByID(ctx, id)
}

func (s *PropertyService) GetShare(ctx context.Context, id int64) (*domain.Share, error) {
	return s.repo.GetShare(ctx, id)
}

var _ PropertyUseCase = (*PropertyService)(nil)
