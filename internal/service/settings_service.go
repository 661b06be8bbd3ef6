package service

import (
	"context"
	"sync"
	"time"

	"silo-be/internal/dto"
	"silo-be/internal/entity"
	"silo-be/internal/pkg/logger"
	"silo-be/internal/repository/contract"

	"github.com/patrickmn/go-cache"
)

type ISettingsService interface {
	Load(ctx context.Context, clientID string) (*entity.CustomizationSettings, error)
	Update(ctx context.Context, clientID string, req *dto.UpdateSettingsRequest) (*entity.CustomizationSettings, error)
	Flush()
}

type settingsService struct {
	repo   contract.ISettingsRepository
	logger logger.ILogger

	mu sync.Mutex
	// latest holds settings whose background save may not have landed yet
	latest *cache.Cache
	saveMu sync.Mutex
	saves  sync.WaitGroup
}

func NewSettingsService(repo contract.ISettingsRepository, log logger.ILogger) ISettingsService {
	return &settingsService{
		repo:   repo,
		logger: log,
		latest: cache.New(10*time.Minute, 10*time.Minute),
	}
}

func (s *settingsService) Load(ctx context.Context, clientID string) (*entity.CustomizationSettings, error) {
	if x, found := s.latest.Get(clientID); found {
		settings := *x.(*entity.CustomizationSettings)
		return &settings, nil
	}

	settings, err := s.repo.Load(ctx, clientID)
	if err != nil {
		s.logger.Warn("SettingsService", "Falling back to default settings", map[string]interface{}{
			"client_id": clientID,
			"error":     err.Error(),
		})
		return entity.DefaultSettings(), nil
	}
	return settings, nil
}

// Update merges the patch and returns the result at once. The write happens in the
// background and a failure is only logged.
func (s *settingsService) Update(ctx context.Context, clientID string, req *dto.UpdateSettingsRequest) (*entity.CustomizationSettings, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	settings, err := s.Load(ctx, clientID)
	if err != nil {
		return nil, err
	}
	settings.Merge(req.Patch())
	settings.Normalize()

	saved := *settings
	s.latest.SetDefault(clientID, &saved)

	saveCtx := context.WithoutCancel(ctx)
	s.saves.Add(1)
	go func() {
		defer s.saves.Done()
		s.save(saveCtx, clientID)
	}()

	return settings, nil
}

// save writes whatever is newest for the client, so saves finishing out of order
// still leave the last update stored.
func (s *settingsService) save(ctx context.Context, clientID string) {
	s.saveMu.Lock()
	defer s.saveMu.Unlock()

	s.mu.Lock()
	x, found := s.latest.Get(clientID)
	s.mu.Unlock()
	if !found {
		return
	}
	settings := *x.(*entity.CustomizationSettings)

	if err := s.repo.Save(ctx, clientID, &settings); err != nil {
		s.logger.Error("SettingsService", "Failed to save settings", map[string]interface{}{
			"client_id": clientID,
			"error":     err.Error(),
		})
	}
}

// Flush waits for pending background saves.
func (s *settingsService) Flush() {
	s.saves.Wait()
}
