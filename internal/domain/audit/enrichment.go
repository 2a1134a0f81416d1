// Package audit provides utilities for audit field enrichment in domain entities.
package audit

import (
	"context"

	appctx "tillpoint/internal/core/context"
)

// EnrichCreatedBy sets CreatedBy and UpdatedBy fields from the context
// user. Use in BeforeCreate hooks. No-op when no user is in context.
func EnrichCreatedBy(ctx context.Context, createdBy, updatedBy *string) {
	userID := appctx.GetUserID(ctx)
	if userID != "" && createdBy != nil && updatedBy != nil {
		*createdBy = userID
		*updatedBy = userID
	}
}

// EnrichUpdatedBy sets only the UpdatedBy field from the context user.
// Use in BeforeUpdate hooks.
func EnrichUpdatedBy(ctx context.Context, updatedBy *string) {
	userID := appctx.GetUserID(ctx)
	if userID != "" && updatedBy != nil {
		*updatedBy = userID
	}
}
