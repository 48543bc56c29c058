package properties

import (
	"context"
	"testing"

	"github.com/rsv360/reservation-core/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
)

type MockPropertyRepository struct {
	mock.Mock
}

func (m *MockPropertyRepository) List(ctx context.Context) ([]domain.Property, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]domain.Property), args.Error(1)
}

func (m *MockPropertyRepository) GetByID(ctx context.Context, id int64) (*domain.Property, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Property), args.Error(1)
}

func (m *MockPropertyRepository) GetShare(ctx context.Context, id int64) (*domain.Share, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Share), args.Error(1)
}

type MockCache struct {
	mock.Mock
}

func (m *MockCache) GetProperties(ctx context.Context) ([]domain.Property, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]domain.Property), args.Error(1)
}

func (m *MockCache) SetProperties(ctx context.Context, properties []domain.Property) error {
	args := m.Called(ctx, properties)
	return args.Error(0)
}

func TestPropertyService_List_CacheMiss(t *testing.T) {
	mockRepo := &MockPropertyRepository{}
	mockCache := &MockCache{}
	service := NewPropertyService(mockRepo, mockCache)

	ctx := context.Background()
	properties := []domain.Property{{ID: 7, Title: "Casa do Mar"}}

	mockCache.On("GetProperties", ctx).Return(nil, nil).Once()
	mockRepo.On("List", ctx).Return(properties, nil).Once()
	mockCache.On("SetProperties", ctx, properties).Return(nil).Once()

	result, err := service.List(ctx)
	assert.NoError(t, err)
	assert.Equal(t, properties, result)
	mockRepo.AssertExpectations(t)
	mockCache.AssertExpectations(t)
}

func TestPropertyService_List_CacheHit(t *testing.T) {
	mockRepo := &MockPropertyRepository{}
	mockCache := &MockCache{}
	service := NewPropertyService(mockRepo, mockCache)

	ctx := context.Background()
	properties := []domain.Property{{ID: 7, Title: "Casa do Mar"}}

	mockCache.On("GetProperties", ctx).Return(properties, nil).Once()

	result, err := service.List(ctx)
	assert.NoError(t, err)
	assert.Equal(t, properties, result)
	mockRepo.AssertNotCalled(t, "List", mock.Anything)
}

func TestPropertyService_GetByID_NotFound(t *testing.T) {
	mockRepo := &MockPropertyRepository{}
	service := NewPropertyService(mockRepo, nil)

	ctx := context.Background()
	mockRepo.On("GetByID", ctx, int64(404)).Return(nil, domain.ErrPropertyNotFound).Once()

	_, err := service.GetByID(ctx, 404)
	assert.ErrorIs(t, err, domain.ErrPropertyNotFound)
}
