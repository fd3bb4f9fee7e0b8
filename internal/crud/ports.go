package crud

import (
	"context"
	"database/sql"

	"github.com/google/uuid"

	"github.com/Apurer/go-gin-crud-server/internal/platform/pagination"
)

// Store is the storage client consumed by the engine. Implementations must
// map driver failures onto ErrIntegrity and ErrUnavailable.
type Store[T any] interface {
	// Query returns the unfiltered base query ordered by id.
	Query() Query[T]
	// Transaction runs fn against a transactional view of the store. A
	// returned error rolls the transaction back.
	Transaction(ctx context.Context, opts *sql.TxOptions, fn func(tx Store[T]) error) error
	Insert(ctx context.Context, rec *T) error
	Update(ctx context.Context, id uuid.UUID, changes Changes) (int64, error)
	Delete(ctx context.Context, id uuid.UUID) (int64, error)
}

// Query is an immutable, id-ordered query over one table.
type Query[T any] interface {
	pagination.Source[*T]
	// Live excludes soft-deleted rows.
	Live() Query[T]
	// ByID narrows the query to a single identifier.
	ByID(id uuid.UUID) Query[T]
	// Referencing narrows the query to rows whose foreign key column holds
	// id. An unknown column fails at Count or Find.
	Referencing(column string, id uuid.UUID) Query[T]
}

// CreateInput builds a fresh entity from the writable fields of a payload.
type CreateInput[T any] interface {
	NewRecord() *T
}

// UpdateInput exposes only the fields present in a partial update payload.
type UpdateInput interface {
	Changes() Changes
}

// Service is the CRUD port served by Engine and its decorators.
type Service[T any, C CreateInput[T], U UpdateInput] interface {
	Descriptor() Descriptor[T]
	Get(ctx context.Context, id uuid.UUID) (*T, error)
	Create(ctx context.Context, input C) (*T, error)
	Update(ctx context.Context, id uuid.UUID, input U) (*T, error)
	Remove(ctx context.Context, id uuid.UUID) (*T, error)
	List(ctx context.Context) ([]*T, error)
	Paginate(ctx context.Context, window pagination.Window) (pagination.Page[*T], error)
}
