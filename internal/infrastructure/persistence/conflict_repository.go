package persistence

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/mops/backend/internal/domain/integration"
	"github.com/mops/backend/internal/infrastructure/persistence/models"
	"gorm.io/gorm"
)

// GormConflictRepository implements ConflictRepository using GORM
type GormConflictRepository struct {
	db *gorm.DB
}

// NewGormConflictRepository creates a new GormConflictRepository
func NewGormConflictRepository(db *gorm.DB) *GormConflictRepository {
	return &GormConflictRepository{db: db}
}

// Save appends a pending conflict to the review queue
func (r *GormConflictRepository) Save(ctx context.Context, conflict *integration.PendingConflict) error {
	model := models.PendingConflictModelFromDomain(conflict)
	return r.db.WithContext(ctx).Save(model).Error
}

// FindByID finds a queue entry by ID
func (r *GormConflictRepository) FindByID(ctx context.Context, id uuid.UUID) (*integration.PendingConflict, error) {
	var model models.PendingConflictModel
	if err := r.db.WithContext(ctx).First(&model, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, integration.ErrConflictNotFound
		}
		return nil, err
	}
	return model.ToDomain(), nil
}

// FindByIntegration lists queued conflicts for an integration, oldest first
func (r *GormConflictRepository) FindByIntegration(ctx context.Context, orgID, integrationID uuid.UUID) ([]integration.PendingConflict, error) {
	var conflictModels []models.PendingConflictModel
	if err := r.db.WithContext(ctx).
		Where("org_id = ? AND integration_id = ?", orgID, integrationID).
		Order("queued_at ASC").
		Find(&conflictModels).Error; err != nil {
		return nil, err
	}

	conflicts := make([]integration.PendingConflict, len(conflictModels))
	for i, model := range conflictModels {
		conflicts[i] = *model.ToDomain()
	}
	return conflicts, nil
}

// Delete removes a resolved or discarded entry
func (r *GormConflictRepository) Delete(ctx context.Context, id uuid.UUID) error {
	result := r.db.WithContext(ctx).Delete(&models.PendingConflictModel{}, "id = ?", id)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return integration.ErrConflictNotFound
	}
	return nil
}

// Ensure GormConflictRepository implements ConflictRepository
var _ integration.ConflictRepository = (*GormConflictRepository)(nil)
