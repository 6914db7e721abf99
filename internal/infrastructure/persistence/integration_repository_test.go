package persistence

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/mops/backend/internal/domain/integration"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// newTestDB opens an isolated in-memory sqlite database with the schema
// migrated. cache=shared keeps every pooled connection on the same database.
func newTestDB(t *testing.T) *Database {
	t.Helper()

	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", uuid.NewString())
	gormDB, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger:                 logger.Default.LogMode(logger.Silent),
		SkipDefaultTransaction: true,
	})
	require.NoError(t, err)

	db := &Database{DB: gormDB}
	require.NoError(t, db.Migrate())
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func newConnectedIntegration(t *testing.T, orgID uuid.UUID, name string) *integration.Integration {
	t.Helper()

	i, err := integration.NewIntegration(orgID, name, integration.FamilyCRM, "hubspot", uuid.New())
	require.NoError(t, err)
	i.Config.SetField("api_key", "secret-token", true)
	require.NoError(t, i.Connect())
	return i
}

func TestGormIntegrationRepository_SaveAndFindByID(t *testing.T) {
	db := newTestDB(t)
	repo := NewGormIntegrationRepository(db.DB)
	ctx := context.Background()
	orgID := uuid.New()

	t.Run("round-trips the full aggregate", func(t *testing.T) {
		original := newConnectedIntegration(t, orgID, "CRM Sync")
		original.Description = "Primary CRM connection"
		original.Category = "Sales"
		original.Tags = []string{"crm", "production"}
		original.SelectedObjects = []string{"contacts", "deals"}
		idx := original.Mapping.Add()
		original.Mapping.Fields[idx].SourceField = "email"
		original.Mapping.Fields[idx].TargetField = "email_address"
		original.Mapping.Fields[idx].Required = true

		require.NoError(t, repo.Save(ctx, original))

		found, err := repo.FindByID(ctx, original.ID)
		require.NoError(t, err)
		assert.Equal(t, original.ID, found.ID)
		assert.Equal(t, original.OrgID, found.OrgID)
		assert.Equal(t, "CRM Sync", found.Name)
		assert.Equal(t, integration.StatusConnected, found.Status)
		assert.Equal(t, []string{"contacts", "deals"}, found.SelectedObjects)
		assert.Equal(t, []string{"crm", "production"}, found.Tags)
		assert.Equal(t, "email", found.Mapping.Fields[0].SourceField)
		assert.Equal(t, "email_address", found.Mapping.Fields[0].TargetField)
		assert.True(t, found.Mapping.Fields[0].Required)

		// credentials survive the config blob
		v, ok := found.Config.Field("api_key")
		assert.True(t, ok)
		assert.Equal(t, "secret-token", v)
		assert.Equal(t, integration.DefaultRateLimit(), found.Config.RateLimit)
	})

	t.Run("save updates an existing row", func(t *testing.T) {
		i := newConnectedIntegration(t, orgID, "Updatable")
		require.NoError(t, repo.Save(ctx, i))

		i.Description = "after edit"
		require.NoError(t, i.SetHealthScore(42))
		require.NoError(t, repo.Save(ctx, i))

		found, err := repo.FindByID(ctx, i.ID)
		require.NoError(t, err)
		assert.Equal(t, "after edit", found.Description)
		assert.Equal(t, 42, found.HealthScore)
	})

	t.Run("returns not-found sentinel for unknown id", func(t *testing.T) {
		_, err := repo.FindByID(ctx, uuid.New())
		assert.ErrorIs(t, err, integration.ErrIntegrationNotFound)
	})
}

func TestGormIntegrationRepository_FindAll(t *testing.T) {
	db := newTestDB(t)
	repo := NewGormIntegrationRepository(db.DB)
	ctx := context.Background()
	orgID := uuid.New()

	seed := func(name string, family integration.IntegrationFamily, provider, category string, tags []string) *integration.Integration {
		i, err := integration.NewIntegration(orgID, name, family, provider, uuid.New())
		require.NoError(t, err)
		i.Category = category
		i.Tags = tags
		require.NoError(t, repo.Save(ctx, i))
		return i
	}

	seed("Alpha CRM", integration.FamilyCRM, "salesforce", "Sales", []string{"primary"})
	beta := seed("Beta CRM", integration.FamilyCRM, "hubspot", "Sales", []string{"staging"})
	seed("Warehouse", integration.FamilyDataWarehouse, "snowflake", "Data Warehouse", nil)
	seed("Newsletter", integration.FamilyEmailProvider, "mailchimp", "Email Marketing", []string{"newsletter"})

	t.Run("filters by family", func(t *testing.T) {
		family := integration.FamilyCRM
		got, err := repo.FindAll(ctx, orgID, integration.IntegrationFilter{Family: &family})
		require.NoError(t, err)
		assert.Len(t, got, 2)
	})

	t.Run("filters by status", func(t *testing.T) {
		require.NoError(t, beta.Connect())
		require.NoError(t, repo.Save(ctx, beta))

		status := integration.StatusConnected
		got, err := repo.FindAll(ctx, orgID, integration.IntegrationFilter{Status: &status})
		require.NoError(t, err)
		require.Len(t, got, 1)
		assert.Equal(t, "Beta CRM", got[0].Name)
	})

	t.Run("search matches name case-insensitively", func(t *testing.T) {
		got, err := repo.FindAll(ctx, orgID, integration.IntegrationFilter{Search: "alpha"})
		require.NoError(t, err)
		require.Len(t, got, 1)
		assert.Equal(t, "Alpha CRM", got[0].Name)
	})

	t.Run("search matches provider key and tags", func(t *testing.T) {
		got, err := repo.FindAll(ctx, orgID, integration.IntegrationFilter{Search: "snowflake"})
		require.NoError(t, err)
		require.Len(t, got, 1)
		assert.Equal(t, "Warehouse", got[0].Name)

		got, err = repo.FindAll(ctx, orgID, integration.IntegrationFilter{Search: "newsletter"})
		require.NoError(t, err)
		require.Len(t, got, 1)
		assert.Equal(t, "Newsletter", got[0].Name)
	})

	t.Run("sorts by name descending", func(t *testing.T) {
		got, err := repo.FindAll(ctx, orgID, integration.IntegrationFilter{SortBy: integration.SortByName, SortDesc: true})
		require.NoError(t, err)
		require.Len(t, got, 4)
		assert.Equal(t, "Warehouse", got[0].Name)
		assert.Equal(t, "Alpha CRM", got[3].Name)
	})

	t.Run("paginates with a stable order", func(t *testing.T) {
		page1, err := repo.FindAll(ctx, orgID, integration.IntegrationFilter{SortBy: integration.SortByName, Page: 1, PageSize: 3})
		require.NoError(t, err)
		page2, err := repo.FindAll(ctx, orgID, integration.IntegrationFilter{SortBy: integration.SortByName, Page: 2, PageSize: 3})
		require.NoError(t, err)
		assert.Len(t, page1, 3)
		assert.Len(t, page2, 1)

		count, err := repo.Count(ctx, orgID, integration.IntegrationFilter{})
		require.NoError(t, err)
		assert.Equal(t, int64(4), count)
	})

	t.Run("count ignores pagination but honors filters", func(t *testing.T) {
		family := integration.FamilyCRM
		count, err := repo.Count(ctx, orgID, integration.IntegrationFilter{Family: &family, Page: 1, PageSize: 1})
		require.NoError(t, err)
		assert.Equal(t, int64(2), count)
	})

	t.Run("other organizations see nothing", func(t *testing.T) {
		got, err := repo.FindAll(ctx, uuid.New(), integration.IntegrationFilter{})
		require.NoError(t, err)
		assert.Empty(t, got)
	})

	t.Run("search treats LIKE wildcards literally", func(t *testing.T) {
		seed("100% Deliverability", integration.FamilyEmailProvider, "sendgrid", "Email Marketing", nil)
		seed("100x Deliverability", integration.FamilyEmailProvider, "sendgrid", "Email Marketing", nil)
		seed("user_name Audit", integration.FamilyAnalytics, "salesforce", "Analytics", nil)
		seed("userXname Audit", integration.FamilyAnalytics, "salesforce", "Analytics", nil)

		got, err := repo.FindAll(ctx, orgID, integration.IntegrationFilter{Search: "100%"})
		require.NoError(t, err)
		require.Len(t, got, 1)
		assert.Equal(t, "100% Deliverability", got[0].Name)

		got, err = repo.FindAll(ctx, orgID, integration.IntegrationFilter{Search: "user_name"})
		require.NoError(t, err)
		require.Len(t, got, 1)
		assert.Equal(t, "user_name Audit", got[0].Name)
	})
}

func TestGormIntegrationRepository_FindDueForSync(t *testing.T) {
	db := newTestDB(t)
	repo := NewGormIntegrationRepository(db.DB)
	ctx := context.Background()
	orgID := uuid.New()
	now := time.Now()

	connected := func(name string, freq integration.SyncFrequency, lastSync *time.Time) {
		i := newConnectedIntegration(t, orgID, name)
		i.Frequency = freq
		i.LastSync = lastSync
		require.NoError(t, repo.Save(ctx, i))
	}

	overdue := now.Add(-2 * time.Hour)
	fresh := now.Add(-5 * time.Minute)
	connected("hourly overdue", integration.FrequencyHourly, &overdue)
	connected("hourly fresh", integration.FrequencyHourly, &fresh)
	connected("never synced", integration.FrequencyDaily, nil)
	connected("manual", integration.FrequencyManual, &overdue)

	// pending integrations are never due, whatever their cadence
	pending, err := integration.NewIntegration(orgID, "pending", integration.FamilyCRM, "hubspot", uuid.New())
	require.NoError(t, err)
	pending.Frequency = integration.FrequencyHourly
	require.NoError(t, repo.Save(ctx, pending))

	due, err := repo.FindDueForSync(ctx, now)
	require.NoError(t, err)

	names := make([]string, len(due))
	for i, d := range due {
		names[i] = d.Name
	}
	assert.ElementsMatch(t, []string{"hourly overdue", "never synced"}, names)
}

func TestGormIntegrationRepository_FindActive(t *testing.T) {
	db := newTestDB(t)
	repo := NewGormIntegrationRepository(db.DB)
	ctx := context.Background()
	orgID := uuid.New()

	connected := newConnectedIntegration(t, orgID, "connected")
	require.NoError(t, repo.Save(ctx, connected))

	errored := newConnectedIntegration(t, orgID, "errored")
	require.NoError(t, errored.MarkError("credentials revoked"))
	require.NoError(t, repo.Save(ctx, errored))

	pending, err := integration.NewIntegration(orgID, "pending", integration.FamilyCRM, "hubspot", uuid.New())
	require.NoError(t, err)
	require.NoError(t, repo.Save(ctx, pending))

	active, err := repo.FindActive(ctx)
	require.NoError(t, err)

	names := make([]string, len(active))
	for i, a := range active {
		names[i] = a.Name
	}
	assert.ElementsMatch(t, []string{"connected", "errored"}, names)
}

func TestGormIntegrationRepository_Delete(t *testing.T) {
	db := newTestDB(t)
	repo := NewGormIntegrationRepository(db.DB)
	events := NewGormEventRepository(db.DB)
	conflicts := NewGormConflictRepository(db.DB)
	ctx := context.Background()
	orgID := uuid.New()

	t.Run("removes the integration with its events and conflicts", func(t *testing.T) {
		i := newConnectedIntegration(t, orgID, "Doomed")
		require.NoError(t, repo.Save(ctx, i))
		require.NoError(t, events.Append(ctx, integration.NewEvent(i.ID, integration.EventSyncStarted, integration.EventStatusInfo, "")))
		require.NoError(t, conflicts.Save(ctx, integration.NewPendingConflict(orgID, i.ID, integration.ConflictRecord{RecordKey: "r1"})))

		require.NoError(t, repo.Delete(ctx, i.ID))

		_, err := repo.FindByID(ctx, i.ID)
		assert.ErrorIs(t, err, integration.ErrIntegrationNotFound)

		remaining, err := events.FindRecent(ctx, i.ID, 10)
		require.NoError(t, err)
		assert.Empty(t, remaining)

		queued, err := conflicts.FindByIntegration(ctx, orgID, i.ID)
		require.NoError(t, err)
		assert.Empty(t, queued)
	})

	t.Run("returns not-found sentinel for unknown id", func(t *testing.T) {
		assert.ErrorIs(t, repo.Delete(ctx, uuid.New()), integration.ErrIntegrationNotFound)
	})
}
