package migrations

import (
	"context"
	"fmt"

	"gorm.io/gorm"

	"github.com/Apurer/go-gin-crud-server/internal/domains/catalog/domain"
)

// Models lists the persisted entities in dependency order: referenced tables first.
func Models() []any {
	return []any{
		&domain.Band{},
		&domain.Song{},
	}
}

// Run creates or alters the catalog tables, their indexes and the songs.band_id
// foreign key. A nil db is a no-op so callers running on the memory store can
// call it unconditionally.
func Run(ctx context.Context, db *gorm.DB) error {
	if db == nil {
		return nil
	}
	if err := db.WithContext(ctx).AutoMigrate(Models()...); err != nil {
		return fmt.Errorf("migrate catalog schema: %w", err)
	}
	return nil
}
