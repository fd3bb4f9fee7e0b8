package crud

import (
	"time"

	"github.com/google/uuid"
)

// Model carries the identity and timestamps shared by every persisted entity.
// Entities embed it; the embedding is what makes a type usable by the engine.
type Model struct {
	ID        uuid.UUID  `gorm:"type:uuid;primaryKey;column:id" json:"id"`
	CreatedAt time.Time  `gorm:"column:created_at;not null;autoCreateTime:false" json:"created_at"`
	UpdatedAt *time.Time `gorm:"column:updated_at;autoUpdateTime:false" json:"updated_at"`
}

func (m *Model) model() *Model { return m }

// SoftDelete marks an entity type as soft-deletable. Removing such an entity
// stamps DeletedAt instead of erasing the row, and every default read path
// skips rows where it is set.
type SoftDelete struct {
	DeletedAt *time.Time `gorm:"column:deleted_at;index" json:"deleted_at,omitempty"`
}

func (s *SoftDelete) softDelete() *SoftDelete { return s }

// Record is satisfied by pointers to structs embedding Model.
type Record interface {
	model() *Model
}

type softDeleter interface {
	softDelete() *SoftDelete
}

// Column names owned by the engine. Update payloads can never write them.
const (
	ColumnID        = "id"
	ColumnCreatedAt = "created_at"
	ColumnUpdatedAt = "updated_at"
	ColumnDeletedAt = "deleted_at"
)

var protectedColumns = []string{ColumnID, ColumnCreatedAt, ColumnUpdatedAt, ColumnDeletedAt}

// ModelOf returns the embedded Model of rec, or nil when rec does not embed one.
func ModelOf(rec any) *Model {
	r, ok := rec.(Record)
	if !ok {
		return nil
	}
	return r.model()
}

// IDOf returns the identifier of rec, or uuid.Nil when rec is not a Record.
func IDOf(rec any) uuid.UUID {
	if m := ModelOf(rec); m != nil {
		return m.ID
	}
	return uuid.Nil
}

// Trashed reports whether rec is soft-deletable and already soft-deleted.
func Trashed(rec any) bool {
	s, ok := rec.(softDeleter)
	return ok && s.softDelete().DeletedAt != nil
}

func stampDeleted(rec any, at *time.Time) {
	if s, ok := rec.(softDeleter); ok {
		s.softDelete().DeletedAt = at
	}
}
