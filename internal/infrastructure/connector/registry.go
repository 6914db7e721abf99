package connector

import (
	"sync"

	"github.com/mops/backend/internal/domain/integration"
)

// Registry maps integration families to their connectors.
// Registration happens once at startup; lookups are concurrent.
type Registry struct {
	mu         sync.RWMutex
	connectors map[integration.IntegrationFamily]integration.Connector
}

// NewRegistry creates an empty connector registry
func NewRegistry() *Registry {
	return &Registry{connectors: make(map[integration.IntegrationFamily]integration.Connector)}
}

// Register binds a connector to a family, replacing any previous binding
func (r *Registry) Register(family integration.IntegrationFamily, c integration.Connector) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.connectors[family] = c
}

// For returns the connector handling the family
func (r *Registry) For(family integration.IntegrationFamily) (integration.Connector, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	c, ok := r.connectors[family]
	if !ok {
		return nil, integration.ErrFamilyNotFound
	}
	return c, nil
}

// Ensure Registry implements ConnectorRegistry
var _ integration.ConnectorRegistry = (*Registry)(nil)
