package persistence

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/mops/backend/internal/domain/integration"
	"github.com/mops/backend/internal/infrastructure/persistence/models"
	"gorm.io/gorm"
)

// GormTemplateRepository implements TemplateRepository using GORM
type GormTemplateRepository struct {
	db *gorm.DB
}

// NewGormTemplateRepository creates a new GormTemplateRepository
func NewGormTemplateRepository(db *gorm.DB) *GormTemplateRepository {
	return &GormTemplateRepository{db: db}
}

// FindByID finds a template by ID
func (r *GormTemplateRepository) FindByID(ctx context.Context, id uuid.UUID) (*integration.IntegrationTemplate, error) {
	var model models.IntegrationTemplateModel
	if err := r.db.WithContext(ctx).First(&model, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, integration.ErrTemplateNotFound
		}
		return nil, err
	}
	return model.ToDomain(), nil
}

// FindAll lists all templates, optionally filtered by family
func (r *GormTemplateRepository) FindAll(ctx context.Context, family *integration.IntegrationFamily) ([]integration.IntegrationTemplate, error) {
	var templateModels []models.IntegrationTemplateModel
	query := r.db.WithContext(ctx).Model(&models.IntegrationTemplateModel{})
	if family != nil && family.IsValid() {
		query = query.Where("family = ?", *family)
	}
	if err := query.Order("install_count DESC").Find(&templateModels).Error; err != nil {
		return nil, err
	}

	templates := make([]integration.IntegrationTemplate, len(templateModels))
	for i, model := range templateModels {
		templates[i] = *model.ToDomain()
	}
	return templates, nil
}

// Seed populates the marketplace from the provider catalog when the table is
// empty. A non-empty table is left untouched so operator edits survive restarts.
func (r *GormTemplateRepository) Seed(ctx context.Context, registry *integration.ProviderRegistry) error {
	var count int64
	if err := r.db.WithContext(ctx).Model(&models.IntegrationTemplateModel{}).Count(&count).Error; err != nil {
		return err
	}
	if count > 0 {
		return nil
	}

	now := time.Now()
	families := []integration.IntegrationFamily{
		integration.FamilyCRM,
		integration.FamilyEmailProvider,
		integration.FamilyDataWarehouse,
		integration.FamilyAnalytics,
		integration.FamilyAutomation,
	}

	var templateModels []*models.IntegrationTemplateModel
	for _, family := range families {
		for _, d := range registry.ListFamily(family) {
			t := templateFromDescriptor(d, now)
			templateModels = append(templateModels, models.IntegrationTemplateModelFromDomain(&t))
		}
	}
	if len(templateModels) == 0 {
		return nil
	}
	return r.db.WithContext(ctx).Create(templateModels).Error
}

// templateFromDescriptor builds a marketplace entry from a provider descriptor.
// Rating, install count and support level come from the curation table below.
func templateFromDescriptor(d integration.ProviderDescriptor, now time.Time) integration.IntegrationTemplate {
	schema := integration.ConfigSchema{
		Required:   d.RequiredFields(),
		Properties: make(map[string]integration.ConfigProperty, len(d.Fields)),
	}
	for _, f := range d.Fields {
		schema.Properties[f.Key] = integration.ConfigProperty{
			Type:   propertyType(f.Type),
			Title:  f.Label,
			Secret: f.Secret,
		}
	}

	meta, ok := templateCuration[d.Key]
	if !ok {
		meta = curation{Rating: 4.0, InstallCount: 100, Support: integration.SupportCommunity}
	}

	return integration.IntegrationTemplate{
		ID:           uuid.New(),
		Name:         d.Name,
		Description:  "Connect " + d.Name + " to sync " + d.Category + " data.",
		Family:       d.Family,
		Category:     d.Category,
		ProviderKey:  d.Key,
		Schema:       schema,
		Rating:       meta.Rating,
		InstallCount: meta.InstallCount,
		Support:      meta.Support,
		CreatedAt:    now,
	}
}

func propertyType(t integration.FieldType) string {
	if t == integration.FieldTypeNumber {
		return "number"
	}
	return "string"
}

type curation struct {
	Rating       float64
	InstallCount int
	Support      integration.SupportLevel
}

var templateCuration = map[string]curation{
	"salesforce": {Rating: 4.8, InstallCount: 12500, Support: integration.SupportOfficial},
	"hubspot":    {Rating: 4.7, InstallCount: 9800, Support: integration.SupportOfficial},
	"mailchimp":  {Rating: 4.5, InstallCount: 7600, Support: integration.SupportOfficial},
	"sendgrid":   {Rating: 4.4, InstallCount: 5400, Support: integration.SupportPartner},
	"snowflake":  {Rating: 4.6, InstallCount: 3200, Support: integration.SupportOfficial},
	"bigquery":   {Rating: 4.5, InstallCount: 2900, Support: integration.SupportPartner},
	"ga4":        {Rating: 4.2, InstallCount: 4100, Support: integration.SupportPartner},
}

// Ensure GormTemplateRepository implements TemplateRepository
var _ integration.TemplateRepository = (*GormTemplateRepository)(nil)
