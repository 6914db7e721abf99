package integration

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestProviderRegistry_Describe(t *testing.T) {
	registry := NewProviderRegistry()

	t.Run("Known provider", func(t *testing.T) {
		d, err := registry.Describe(FamilyCRM, "salesforce")
		require.NoError(t, err)
		assert.Equal(t, "Salesforce", d.Name)
		assert.Equal(t, FamilyCRM, d.Family)
		assert.True(t, d.HasCapability(CapabilityContacts))
		assert.NoError(t, d.DefaultRateLimit.Validate())
		assert.NoError(t, d.DefaultRetrySettings.Validate())
	})

	t.Run("Unknown key in known family", func(t *testing.T) {
		_, err := registry.Describe(FamilyCRM, "pipedrive")
		assert.ErrorIs(t, err, ErrProviderNotFound)
	})

	t.Run("Unknown family", func(t *testing.T) {
		_, err := registry.Describe(IntegrationFamily("fax"), "salesforce")
		assert.ErrorIs(t, err, ErrFamilyNotFound)
	})

	t.Run("Key must match its family", func(t *testing.T) {
		_, err := registry.Describe(FamilyEmailProvider, "salesforce")
		assert.ErrorIs(t, err, ErrProviderNotFound)
	})
}

func TestProviderRegistry_ListFamily(t *testing.T) {
	registry := NewProviderRegistry()

	crm := registry.ListFamily(FamilyCRM)
	keys := make([]string, 0, len(crm))
	for _, d := range crm {
		keys = append(keys, d.Key)
	}
	assert.ElementsMatch(t, []string{"salesforce", "hubspot"}, keys)

	assert.Empty(t, registry.ListFamily(IntegrationFamily("fax")))
}

func TestProviderDescriptor_RequiredFields(t *testing.T) {
	registry := NewProviderRegistry()

	d, err := registry.Describe(FamilyDataWarehouse, "snowflake")
	require.NoError(t, err)
	assert.Equal(t, []string{"account", "username", "password", "warehouse"}, d.RequiredFields())

	d, err = registry.Describe(FamilyEmailProvider, "sendgrid")
	require.NoError(t, err)
	assert.Equal(t, []string{"api_key"}, d.RequiredFields(), "optional fields are excluded")
}

func TestBuiltinCatalogIsWellFormed(t *testing.T) {
	for _, d := range builtinProviders {
		assert.NotEmpty(t, d.Key)
		assert.NotEmpty(t, d.Name)
		assert.True(t, d.Family.IsValid(), "family of %s", d.Key)
		assert.NotEmpty(t, d.RequiredFields(), "provider %s needs at least one required field", d.Key)
		for _, f := range d.Fields {
			if f.Type == FieldTypePassword {
				assert.True(t, f.Secret, "password field %s.%s must be secret", d.Key, f.Key)
			}
		}
	}
}
