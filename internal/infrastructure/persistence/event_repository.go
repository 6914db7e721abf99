package persistence

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/mops/backend/internal/domain/integration"
	"github.com/mops/backend/internal/infrastructure/persistence/models"
	"gorm.io/gorm"
)

// GormEventRepository implements EventRepository using GORM.
// The event log is append-only; no update or delete paths exist.
type GormEventRepository struct {
	db *gorm.DB
}

// NewGormEventRepository creates a new GormEventRepository
func NewGormEventRepository(db *gorm.DB) *GormEventRepository {
	return &GormEventRepository{db: db}
}

// Append writes one event
func (r *GormEventRepository) Append(ctx context.Context, event *integration.IntegrationEvent) error {
	model := models.IntegrationEventModelFromDomain(event)
	return r.db.WithContext(ctx).Create(model).Error
}

// FindRecent lists the most recent events for an integration, newest first
func (r *GormEventRepository) FindRecent(ctx context.Context, integrationID uuid.UUID, limit int) ([]integration.IntegrationEvent, error) {
	var eventModels []models.IntegrationEventModel
	if err := r.db.WithContext(ctx).
		Where("integration_id = ?", integrationID).
		Order("occurred_at DESC").
		Limit(limit).
		Find(&eventModels).Error; err != nil {
		return nil, err
	}
	return toDomainEvents(eventModels), nil
}

// FindSince lists events for an integration after a point in time, newest first
func (r *GormEventRepository) FindSince(ctx context.Context, integrationID uuid.UUID, since time.Time) ([]integration.IntegrationEvent, error) {
	var eventModels []models.IntegrationEventModel
	if err := r.db.WithContext(ctx).
		Where("integration_id = ? AND occurred_at > ?", integrationID, since).
		Order("occurred_at DESC").
		Find(&eventModels).Error; err != nil {
		return nil, err
	}
	return toDomainEvents(eventModels), nil
}

// FindAllRecent lists recent events across all integrations of an organization,
// newest first. The join keeps cross-org events out without duplicating org_id
// onto every event row.
func (r *GormEventRepository) FindAllRecent(ctx context.Context, orgID uuid.UUID, limit int) ([]integration.IntegrationEvent, error) {
	var eventModels []models.IntegrationEventModel
	if err := r.db.WithContext(ctx).
		Select("integration_events.*").
		Joins("JOIN integrations ON integrations.id = integration_events.integration_id").
		Where("integrations.org_id = ?", orgID).
		Order("integration_events.occurred_at DESC").
		Limit(limit).
		Find(&eventModels).Error; err != nil {
		return nil, err
	}
	return toDomainEvents(eventModels), nil
}

func toDomainEvents(eventModels []models.IntegrationEventModel) []integration.IntegrationEvent {
	events := make([]integration.IntegrationEvent, len(eventModels))
	for i, model := range eventModels {
		events[i] = *model.ToDomain()
	}
	return events
}

// Ensure GormEventRepository implements EventRepository
var _ integration.EventRepository = (*GormEventRepository)(nil)
