// Package integration holds the domain model for the integration connection
// and data-synchronization engine: provider catalog, connection wizard state
// machine, field mapping and transformation, conflict resolution, health
// scoring, and the ports (Connector, RateLimitGuard, repositories) that the
// infrastructure layer implements.
package integration
