package httpapi

import (
	"context"

	"github.com/google/uuid"
	"github.com/stretchr/testify/mock"

	"github.com/romariotrain/newsroom/internal/broadcast/models"
)

type BroadcastsMock struct {
	mock.Mock
}

func (m *BroadcastsMock) StartBroadcast(ctx context.Context, req models.Request) (*models.Job, error) {
	args := m.Called(ctx, req)
	if v := args.Get(0); v != nil {
		return v.(*models.Job), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *BroadcastsMock) GetJobStatus(ctx context.Context, id uuid.UUID) (*models.Job, error) {
	args := m.Called(ctx, id)
	if v := args.Get(0); v != nil {
		return v.(*models.Job), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *BroadcastsMock) ListRecent(ctx context.Context, n int) ([]*models.Job, error) {
	args := m.Called(ctx, n)
	if v := args.Get(0); v != nil {
		return v.([]*models.Job), args.Error(1)
	}
	return nil, args.Error(1)
}

type NewsMock struct {
	mock.Mock
}

func (m *NewsMock) FetchArticles(ctx context.Context, hours int, categories []models.Category, max int) ([]models.Article, error) {
	args := m.Called(ctx, hours, categories, max)
	if v := args.Get(0); v != nil {
		return v.([]models.Article), args.Error(1)
	}
	return nil, args.Error(1)
}
