package service

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/rl1809/seat-booking/internal/core/domain"
	"github.com/rl1809/seat-booking/internal/port"
)

const maxResourceUnits = 100000

type InventoryService struct {
	repo   port.InventoryRepository
	logger *zap.Logger
}

func NewInventoryService(repo port.InventoryRepository, logger *zap.Logger) *InventoryService {
	return &InventoryService{repo: repo, logger: logger}
}

// Register creates a resource with every unit available.
func (s *InventoryService) Register(ctx context.Context, req domain.RegisterResourceRequest) (*domain.Resource, error) {
	req.Title = strings.TrimSpace(req.Title)
	if req.Title == "" {
		return nil, fmt.Errorf("%w: title is required", domain.ErrInvalidRequest)
	}
	if req.TotalUnits <= 0 || req.TotalUnits > maxResourceUnits {
		return nil, fmt.Errorf("%w: total_units must be between 1 and %d", domain.ErrInvalidRequest, maxResourceUnits)
	}

	res, err := s.repo.Register(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("register resource: %w", err)
	}
	s.logger.Info("resource registered",
		zap.String("resource_id", res.ID),
		zap.Int("total_units", res.TotalUnits))
	return res, nil
}

func (s *InventoryService) Get(ctx context.Context, id string) (*domain.Resource, error) {
	return s.repo.Get(ctx, id)
}

func (s *InventoryService) List(ctx context.Context) ([]domain.Resource, error) {
	return s.repo.List(ctx)
}
