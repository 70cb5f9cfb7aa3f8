package repository

import (
	"context"

	"github.com/coursehub/portal-access/internal/domain"
	"github.com/coursehub/portal-access/internal/observability"

	"gorm.io/gorm"
)

type SettingsRepository interface {
	Get() (*domain.SiteSettings, error)
	Update(settings *domain.SiteSettings) error
}

type GormSettingsRepository struct{ db *gorm.DB }

func NewSettingsRepository(db *gorm.DB) SettingsRepository {
	return &GormSettingsRepository{db: db}
}

// Get returns the singleton settings row, creating it with defaults on
// first use.
func (r *GormSettingsRepository) Get() (*domain.SiteSettings, error) {
	var settings domain.SiteSettings
	err := r.db.Where("id = ?", 1).
		Attrs(domain.SiteSettings{ID: 1, ForcedTheme: "none", ShowTranslator: true, ShowVoiceAI: true, ShowChatNote: true}).
		FirstOrCreate(&settings).Error
	if err != nil {
		observability.RecordRepositoryOperation(context.Background(), "settings", "get", "error")
		return nil, err
	}
	observability.RecordRepositoryOperation(context.Background(), "settings", "get", "success")
	return &settings, nil
}

func (r *GormSettingsRepository) Update(settings *domain.SiteSettings) error {
	settings.ID = 1
	err := r.db.Save(settings).Error
	if err != nil {
		observability.RecordRepositoryOperation(context.Background(), "settings", "update", "error")
		return err
	}
	observability.RecordRepositoryOperation(context.Background(), "settings", "update", "success")
	return nil
}
