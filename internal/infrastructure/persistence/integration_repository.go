package persistence

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/mops/backend/internal/domain/integration"
	"github.com/mops/backend/internal/infrastructure/persistence/models"
	"gorm.io/gorm"
)

// GormIntegrationRepository implements IntegrationRepository using GORM
type GormIntegrationRepository struct {
	db *gorm.DB
}

// NewGormIntegrationRepository creates a new GormIntegrationRepository
func NewGormIntegrationRepository(db *gorm.DB) *GormIntegrationRepository {
	return &GormIntegrationRepository{db: db}
}

// ---------------------------------------------------------------------------
// IntegrationReader implementation
// ---------------------------------------------------------------------------

// FindByID finds an integration by its ID
func (r *GormIntegrationRepository) FindByID(ctx context.Context, id uuid.UUID) (*integration.Integration, error) {
	var model models.IntegrationModel
	if err := r.db.WithContext(ctx).First(&model, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, integration.ErrIntegrationNotFound
		}
		return nil, err
	}
	return model.ToDomain(), nil
}

// ---------------------------------------------------------------------------
// IntegrationFinder implementation
// ---------------------------------------------------------------------------

// FindAll finds integrations for an organization matching the filter
func (r *GormIntegrationRepository) FindAll(ctx context.Context, orgID uuid.UUID, filter integration.IntegrationFilter) ([]integration.Integration, error) {
	var integrationModels []models.IntegrationModel
	query := r.applyFilter(r.db.WithContext(ctx).Model(&models.IntegrationModel{}).Where("org_id = ?", orgID), filter)

	if err := query.Find(&integrationModels).Error; err != nil {
		return nil, err
	}

	return toDomainIntegrations(integrationModels), nil
}

// Count counts integrations matching the filter
func (r *GormIntegrationRepository) Count(ctx context.Context, orgID uuid.UUID, filter integration.IntegrationFilter) (int64, error) {
	var count int64
	query := r.db.WithContext(ctx).Model(&models.IntegrationModel{}).Where("org_id = ?", orgID)
	query = r.applyFilterWithoutPagination(query, filter)

	if err := query.Count(&count).Error; err != nil {
		return 0, err
	}
	return count, nil
}

// FindDueForSync finds connected integrations whose frequency interval has
// elapsed since the last sync. Never-synced connected integrations are due
// immediately. The interval arithmetic runs in Go so the query stays portable
// across postgres and sqlite.
func (r *GormIntegrationRepository) FindDueForSync(ctx context.Context, now time.Time) ([]integration.Integration, error) {
	var integrationModels []models.IntegrationModel
	if err := r.db.WithContext(ctx).
		Where("status = ? AND frequency IN ?", integration.StatusConnected,
			[]integration.SyncFrequency{integration.FrequencyHourly, integration.FrequencyDaily, integration.FrequencyWeekly}).
		Find(&integrationModels).Error; err != nil {
		return nil, err
	}

	due := make([]integration.Integration, 0, len(integrationModels))
	for _, model := range integrationModels {
		i := model.ToDomain()
		interval := i.Frequency.Interval()
		if interval <= 0 {
			continue
		}
		if i.LastSync == nil || !i.LastSync.Add(interval).After(now) {
			due = append(due, *i)
		}
	}
	return due, nil
}

// FindActive finds integrations that have been connected at some point and
// are worth health scoring. Pending setups have no sync history to score.
func (r *GormIntegrationRepository) FindActive(ctx context.Context) ([]integration.Integration, error) {
	var integrationModels []models.IntegrationModel
	if err := r.db.WithContext(ctx).
		Where("status IN ?", []integration.IntegrationStatus{
			integration.StatusConnected, integration.StatusSyncing, integration.StatusError,
		}).
		Find(&integrationModels).Error; err != nil {
		return nil, err
	}
	return toDomainIntegrations(integrationModels), nil
}

// ---------------------------------------------------------------------------
// IntegrationWriter implementation
// ---------------------------------------------------------------------------

// Save creates or updates an integration
func (r *GormIntegrationRepository) Save(ctx context.Context, i *integration.Integration) error {
	model := models.IntegrationModelFromDomain(i)
	return r.db.WithContext(ctx).Save(model).Error
}

// Delete deletes an integration with its events and pending conflicts
func (r *GormIntegrationRepository) Delete(ctx context.Context, id uuid.UUID) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		result := tx.Delete(&models.IntegrationModel{}, "id = ?", id)
		if result.Error != nil {
			return result.Error
		}
		if result.RowsAffected == 0 {
			return integration.ErrIntegrationNotFound
		}
		if err := tx.Delete(&models.IntegrationEventModel{}, "integration_id = ?", id).Error; err != nil {
			return err
		}
		return tx.Delete(&models.PendingConflictModel{}, "integration_id = ?", id).Error
	})
}

// ---------------------------------------------------------------------------
// Filter helpers
// ---------------------------------------------------------------------------

// sortColumns maps domain sort fields to columns. Whitelist only; anything
// else falls back to name to keep user input out of ORDER BY.
var sortColumns = map[integration.SortField]string{
	integration.SortByName:     "name",
	integration.SortByFamily:   "family",
	integration.SortByStatus:   "status",
	integration.SortByLastSync: "last_sync",
	integration.SortByHealth:   "health_score",
}

// applyFilter applies filter, ordering and pagination to the query
func (r *GormIntegrationRepository) applyFilter(query *gorm.DB, filter integration.IntegrationFilter) *gorm.DB {
	query = r.applyFilterWithoutPagination(query, filter)

	column, ok := sortColumns[filter.SortBy]
	if !ok {
		column = "name"
	}
	direction := "ASC"
	if filter.SortDesc {
		direction = "DESC"
	}
	// Secondary sort by name keeps pagination stable when the primary
	// column has duplicates.
	query = query.Order(column + " " + direction)
	if column != "name" {
		query = query.Order("name ASC")
	}

	if filter.Page > 0 && filter.PageSize > 0 {
		offset := (filter.Page - 1) * filter.PageSize
		query = query.Offset(offset).Limit(filter.PageSize)
	}

	return query
}

// applyFilterWithoutPagination applies filter criteria without ordering or pagination
func (r *GormIntegrationRepository) applyFilterWithoutPagination(query *gorm.DB, filter integration.IntegrationFilter) *gorm.DB {
	if filter.Family != nil && filter.Family.IsValid() {
		query = query.Where("family = ?", *filter.Family)
	}
	if filter.Category != nil && *filter.Category != "" {
		query = query.Where("category = ?", *filter.Category)
	}
	if filter.Status != nil && filter.Status.IsValid() {
		query = query.Where("status = ?", *filter.Status)
	}

	// Free-text search over name, description, provider key and tags.
	// LOWER + LIKE instead of ILIKE so the same query runs on sqlite.
	if filter.Search != "" {
		escaped := escapeLikePattern(strings.ToLower(filter.Search))
		pattern := "%" + escaped + "%"
		query = query.Where(
			"LOWER(name) LIKE ? ESCAPE '\\' OR LOWER(description) LIKE ? ESCAPE '\\' OR LOWER(provider_key) LIKE ? ESCAPE '\\' OR LOWER(CAST(tags AS TEXT)) LIKE ? ESCAPE '\\'",
			pattern, pattern, pattern, pattern,
		)
	}

	return query
}

// toDomainIntegrations converts a batch of rows to domain aggregates
func toDomainIntegrations(integrationModels []models.IntegrationModel) []integration.Integration {
	integrations := make([]integration.Integration, len(integrationModels))
	for i, model := range integrationModels {
		integrations[i] = *model.ToDomain()
	}
	return integrations
}

// escapeLikePattern escapes special characters in LIKE patterns
func escapeLikePattern(s string) string {
	s = strings.ReplaceAll(s, "\\", "\\\\")
	s = strings.ReplaceAll(s, "%", "\\%")
	s = strings.ReplaceAll(s, "_", "\\_")
	return s
}

// Ensure GormIntegrationRepository implements IntegrationRepository
var _ integration.IntegrationRepository = (*GormIntegrationRepository)(nil)
