// Package tenant provides multi-tenant database management.
// Each merchant (a cafe, a shop, a small chain) gets its own isolated
// PostgreSQL database; the meta-database only holds the tenant registry.
package tenant

import (
	"fmt"
	"regexp"
	"strings"
	"time"
)

// Status represents tenant lifecycle state.
type Status string

const (
	// StatusActive - tenant can accept requests
	StatusActive Status = "active"

	// StatusSuspended - tenant is temporarily disabled (e.g., payment issues)
	StatusSuspended Status = "suspended"

	// StatusDeleted - tenant is marked for deletion
	StatusDeleted Status = "deleted"
)

// Plan represents tenant subscription plan.
type Plan string

const (
	PlanStarter Plan = "starter" // single outlet
	PlanGrowth  Plan = "growth"  // up to 5 outlets
	PlanChain   Plan = "chain"   // unlimited outlets
)

// Tenant represents a merchant record from the meta-database.
type Tenant struct {
	ID          string         `db:"id"`
	Slug        string         `db:"slug"`         // URL-safe identifier
	DisplayName string         `db:"display_name"` // Human-readable name
	DBName      string         `db:"db_name"`      // Database name
	DBHost      string         `db:"db_host"`      // Database host
	DBPort      int            `db:"db_port"`      // Database port
	Status      Status         `db:"status"`
	Plan        Plan           `db:"plan"`
	CreatedAt   time.Time      `db:"created_at"`
	UpdatedAt   time.Time      `db:"updated_at"`
	Settings    map[string]any `db:"settings"` // Additional settings (JSONB)
}

// IsActive returns true if tenant can accept requests.
func (t *Tenant) IsActive() bool {
	return t.Status == StatusActive
}

// DSN builds a PostgreSQL connection string for this tenant's database.
func (t *Tenant) DSN(user, password, sslMode string) string {
	if sslMode == "" {
		sslMode = "disable"
	}
	return fmt.Sprintf(
		"postgres://%s:%s@%s:%d/%s?sslmode=%s",
		user, password, t.DBHost, t.DBPort, t.DBName, sslMode,
	)
}

var slugPattern = regexp.MustCompile(`^[a-z0-9][a-z0-9-]*$`)

// CreateTenantInput contains data for provisioning a new merchant.
type CreateTenantInput struct {
	Slug        string
	DisplayName string
	Plan        Plan
	DBHost      string // Optional, defaults to localhost
	DBPort      int    // Optional, defaults to 5432
}

// Validate checks and normalizes the input.
func (i *CreateTenantInput) Validate() error {
	i.Slug = strings.ToLower(strings.TrimSpace(i.Slug))
	if i.Slug == "" {
		return fmt.Errorf("slug is required")
	}
	if len(i.Slug) > 63 {
		return fmt.Errorf("slug must be 63 characters or less")
	}
	if !slugPattern.MatchString(i.Slug) {
		return fmt.Errorf("slug may contain only lowercase letters, digits and dashes")
	}
	if i.DisplayName == "" {
		return fmt.Errorf("display_name is required")
	}
	return nil
}

// GenerateDBName creates the database name from slug, e.g. pos_corner_cafe.
func (i *CreateTenantInput) GenerateDBName() string {
	return "pos_" + strings.ReplaceAll(i.Slug, "-", "_")
}
