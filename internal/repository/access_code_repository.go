package repository

import (
	"context"
	"errors"

	"github.com/coursehub/portal-access/internal/domain"
	"github.com/coursehub/portal-access/internal/observability"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

var ErrAccessCodeNotFound = errors.New("access code not found")

type AccessCodeRepository interface {
	GetByDocKey(docKey string) (*domain.AccessCodeRecord, error)
	FindByCode(code string) (*domain.AccessCodeRecord, error)
	Upsert(record *domain.AccessCodeRecord) error
	DeleteByRepID(repID string) error
}

type GormAccessCodeRepository struct{ db *gorm.DB }

func NewAccessCodeRepository(db *gorm.DB) AccessCodeRepository {
	return &GormAccessCodeRepository{db: db}
}

func (r *GormAccessCodeRepository) GetByDocKey(docKey string) (*domain.AccessCodeRecord, error) {
	var rec domain.AccessCodeRecord
	err := r.db.Where("doc_key = ?", docKey).First(&rec).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			observability.RecordRepositoryOperation(context.Background(), "access_code", "get_by_doc_key", "not_found")
			return nil, ErrAccessCodeNotFound
		}
		observability.RecordRepositoryOperation(context.Background(), "access_code", "get_by_doc_key", "error")
		return nil, err
	}
	observability.RecordRepositoryOperation(context.Background(), "access_code", "get_by_doc_key", "success")
	return &rec, nil
}

// FindByCode tolerates records created before the doc-key convention
// existed. The code column carries a unique index, so at most one row wins.
func (r *GormAccessCodeRepository) FindByCode(code string) (*domain.AccessCodeRecord, error) {
	var rec domain.AccessCodeRecord
	err := r.db.Where("code = ?", code).Limit(1).First(&rec).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			observability.RecordRepositoryOperation(context.Background(), "access_code", "find_by_code", "not_found")
			return nil, ErrAccessCodeNotFound
		}
		observability.RecordRepositoryOperation(context.Background(), "access_code", "find_by_code", "error")
		return nil, err
	}
	observability.RecordRepositoryOperation(context.Background(), "access_code", "find_by_code", "success")
	return &rec, nil
}

func (r *GormAccessCodeRepository) Upsert(record *domain.AccessCodeRecord) error {
	err := r.db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "doc_key"}},
		UpdateAll: true,
	}).Create(record).Error
	if err != nil {
		observability.RecordRepositoryOperation(context.Background(), "access_code", "upsert", "error")
		return err
	}
	observability.RecordRepositoryOperation(context.Background(), "access_code", "upsert", "success")
	return nil
}

func (r *GormAccessCodeRepository) DeleteByRepID(repID string) error {
	err := r.db.Where("rep_id = ?", repID).Delete(&domain.AccessCodeRecord{}).Error
	if err != nil {
		observability.RecordRepositoryOperation(context.Background(), "access_code", "delete_by_rep_id", "error")
		return err
	}
	observability.RecordRepositoryOperation(context.Background(), "access_code", "delete_by_rep_id", "success")
	return nil
}
