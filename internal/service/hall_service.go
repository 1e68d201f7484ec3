package service

import (
	"context"
	"fmt"

	"hallbook/internal/config"
	"hallbook/internal/domain"
	"hallbook/internal/models"

	"github.com/rs/zerolog"
)

// HallService exposes the hall registry.
type HallService struct {
	repo   domain.HallRepository
	logger *zerolog.Logger
}

func NewHallService(repo domain.HallRepository, logger *zerolog.Logger) *HallService {
	return &HallService{repo: repo, logger: logger}
}

func (s *HallService) ListHalls(ctx context.Context) ([]models.Hall, error) {
	return s.repo.ListHalls(ctx)
}

func (s *HallService) GetHall(ctx context.Context, name string) (*models.Hall, error) {
	return s.repo.GetHallByName(ctx, name)
}

// SyncHalls validates the configured halls and upserts them.
func (s *HallService) SyncHalls(ctx context.Context, halls []models.Hall) error {
	if err := config.ValidateHalls(halls); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidRequest, err)
	}
	if err := s.repo.SyncHalls(ctx, halls); err != nil {
		return err
	}
	s.logger.Info().Int("halls", len(halls)).Msg("halls synced")
	return nil
}
