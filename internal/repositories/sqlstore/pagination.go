package sqlstore

import (
	"gorm.io/gorm"

	"github.com/acrylicworks/api/internal/platform/pagination"
)

// applyCursor restricts a created_at DESC, id DESC listing to rows after the cursor.
func applyCursor(query *gorm.DB, cursor pagination.Cursor) *gorm.DB {
	if cursor.IsZero() {
		return query
	}
	after := cursor.After.UTC()
	return query.Where("((created_at < ?) OR (created_at = ? AND id < ?))", after, after, cursor.ID)
}
