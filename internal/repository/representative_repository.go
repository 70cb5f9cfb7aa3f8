package repository

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/coursehub/portal-access/internal/domain"
	"github.com/coursehub/portal-access/internal/observability"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

var ErrRepresentativeNotFound = errors.New("representative not found")

type RepresentativeRepository interface {
	Create(rep *domain.Representative) error
	Upsert(rep *domain.Representative) error
	FindByID(id string) (*domain.Representative, error)
	FindByEmail(email string) (*domain.Representative, error)
	FindByAccessCode(code string) (*domain.Representative, error)
	List() ([]domain.Representative, error)
	UpdateLastSeen(id string, at time.Time) error
	Delete(id string) error
}

type GormRepresentativeRepository struct{ db *gorm.DB }

func NewRepresentativeRepository(db *gorm.DB) RepresentativeRepository {
	return &GormRepresentativeRepository{db: db}
}

func (r *GormRepresentativeRepository) Create(rep *domain.Representative) error {
	err := r.db.Create(rep).Error
	if err != nil {
		observability.RecordRepositoryOperation(context.Background(), "representative", "create", "error")
		return err
	}
	observability.RecordRepositoryOperation(context.Background(), "representative", "create", "success")
	return nil
}

func (r *GormRepresentativeRepository) Upsert(rep *domain.Representative) error {
	err := r.db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "id"}},
		UpdateAll: true,
	}).Create(rep).Error
	if err != nil {
		observability.RecordRepositoryOperation(context.Background(), "representative", "upsert", "error")
		return err
	}
	observability.RecordRepositoryOperation(context.Background(), "representative", "upsert", "success")
	return nil
}

func (r *GormRepresentativeRepository) FindByID(id string) (*domain.Representative, error) {
	var rep domain.Representative
	err := r.db.Where("id = ?", id).First(&rep).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			observability.RecordRepositoryOperation(context.Background(), "representative", "find_by_id", "not_found")
			return nil, ErrRepresentativeNotFound
		}
		observability.RecordRepositoryOperation(context.Background(), "representative", "find_by_id", "error")
		return nil, err
	}
	observability.RecordRepositoryOperation(context.Background(), "representative", "find_by_id", "success")
	return &rep, nil
}

func (r *GormRepresentativeRepository) FindByEmail(email string) (*domain.Representative, error) {
	var rep domain.Representative
	err := r.db.Where("lower(email) = ?", strings.ToLower(email)).First(&rep).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			observability.RecordRepositoryOperation(context.Background(), "representative", "find_by_email", "not_found")
			return nil, ErrRepresentativeNotFound
		}
		observability.RecordRepositoryOperation(context.Background(), "representative", "find_by_email", "error")
		return nil, err
	}
	observability.RecordRepositoryOperation(context.Background(), "representative", "find_by_email", "success")
	return &rep, nil
}

// FindByAccessCode serves the legacy resolution path for representatives
// whose code was never migrated into the access_codes index.
func (r *GormRepresentativeRepository) FindByAccessCode(code string) (*domain.Representative, error) {
	var rep domain.Representative
	err := r.db.Where("access_code = ?", code).Limit(1).First(&rep).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			observability.RecordRepositoryOperation(context.Background(), "representative", "find_by_access_code", "not_found")
			return nil, ErrRepresentativeNotFound
		}
		observability.RecordRepositoryOperation(context.Background(), "representative", "find_by_access_code", "error")
		return nil, err
	}
	observability.RecordRepositoryOperation(context.Background(), "representative", "find_by_access_code", "success")
	return &rep, nil
}

func (r *GormRepresentativeRepository) List() ([]domain.Representative, error) {
	var reps []domain.Representative
	err := r.db.Order("stage ASC, name ASC").Find(&reps).Error
	if err != nil {
		observability.RecordRepositoryOperation(context.Background(), "representative", "list", "error")
		return reps, err
	}
	observability.RecordRepositoryOperation(context.Background(), "representative", "list", "success")
	return reps, nil
}

func (r *GormRepresentativeRepository) UpdateLastSeen(id string, at time.Time) error {
	res := r.db.Model(&domain.Representative{}).
		Where("id = ?", id).
		Update("last_seen", at)
	if res.Error != nil {
		observability.RecordRepositoryOperation(context.Background(), "representative", "update_last_seen", "error")
		return res.Error
	}
	if res.RowsAffected == 0 {
		observability.RecordRepositoryOperation(context.Background(), "representative", "update_last_seen", "not_found")
		return ErrRepresentativeNotFound
	}
	observability.RecordRepositoryOperation(context.Background(), "representative", "update_last_seen", "success")
	return nil
}

func (r *GormRepresentativeRepository) Delete(id string) error {
	res := r.db.Where("id = ?", id).Delete(&domain.Representative{})
	if res.Error != nil {
		observability.RecordRepositoryOperation(context.Background(), "representative", "delete", "error")
		return res.Error
	}
	if res.RowsAffected == 0 {
		observability.RecordRepositoryOperation(context.Background(), "representative", "delete", "not_found")
		return ErrRepresentativeNotFound
	}
	observability.RecordRepositoryOperation(context.Background(), "representative", "delete", "success")
	return nil
}
