package repository

import (
	"context"
	"errors"
	"fmt"

	apperrors "github.com/flamegen/pkg/errors"
	"gorm.io/gorm"
)

// ErrNotFound is returned when no record matches the requested UUID.
var ErrNotFound = errors.New("flame graph not found")

// GraphRepository defines database operations for flame graph records.
type GraphRepository interface {
	// Save persists a new flame graph record.
	Save(ctx context.Context, record *FlameGraphRecord) error

	// GetByUUID retrieves a record by its UUID.
	GetByUUID(ctx context.Context, uuid string) (*FlameGraphRecord, error)

	// List returns the most recent records, newest first.
	List(ctx context.Context, limit int) ([]*FlameGraphRecord, error)
}

// GormGraphRepository implements GraphRepository using GORM.
type GormGraphRepository struct {
	db *gorm.DB
}

// NewGormGraphRepository creates a new GormGraphRepository.
func NewGormGraphRepository(db *gorm.DB) *GormGraphRepository {
	return &GormGraphRepository{db: db}
}

// Save persists a new flame graph record.
func (r *GormGraphRepository) Save(ctx context.Context, record *FlameGraphRecord) error {
	if err := r.db.WithContext(ctx).Create(record).Error; err != nil {
		return apperrors.Wrap(apperrors.CodeDatabaseError, "failed to save flame graph record", err)
	}
	return nil
}

// GetByUUID retrieves a record by its UUID.
func (r *GormGraphRepository) GetByUUID(ctx context.Context, uuid string) (*FlameGraphRecord, error) {
	var record FlameGraphRecord

	err := r.db.WithContext(ctx).Where("uuid = ?", uuid).First(&record).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, uuid)
		}
		return nil, apperrors.Wrap(apperrors.CodeDatabaseError, "failed to get flame graph record", err)
	}

	return &record, nil
}

// List returns the most recent records, newest first.
func (r *GormGraphRepository) List(ctx context.Context, limit int) ([]*FlameGraphRecord, error) {
	if limit <= 0 {
		limit = 50
	}

	var records []*FlameGraphRecord
	err := r.db.WithContext(ctx).
		Order("id DESC").
		Limit(limit).
		Find(&records).Error
	if err != nil {
		return nil, apperrors.Wrap(apperrors.CodeDatabaseError, "failed to list flame graph records", err)
	}

	return records, nil
}
