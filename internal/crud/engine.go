// Package crud implements a generic create/read/update/delete engine over a
// transactional store, parameterised by entity, creation input and update input.
package crud

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/Apurer/go-gin-crud-server/internal/platform/pagination"
)

// Option customises an Engine.
type Option[T any] func(*options[T])

type options[T any] struct {
	now         func() time.Time
	guard       func(ctx context.Context, rec *T) error
	removeGuard func(ctx context.Context, rec *T) error
}

// WithClock overrides the time source used for created_at, updated_at and deleted_at.
func WithClock[T any](now func() time.Time) Option[T] {
	return func(o *options[T]) {
		if now != nil {
			o.now = now
		}
	}
}

// WithGuard registers a check run inside the mutation transaction before a
// created or merged record is written. Returning an error aborts the write.
func WithGuard[T any](guard func(ctx context.Context, rec *T) error) Option[T] {
	return func(o *options[T]) {
		o.guard = guard
	}
}

// WithRemoveGuard registers a check run inside the removal transaction
// against the live entity about to be removed. Returning an error keeps it.
func WithRemoveGuard[T any](guard func(ctx context.Context, rec *T) error) Option[T] {
	return func(o *options[T]) {
		o.removeGuard = guard
	}
}

// Engine is the generic data-access engine for one entity type.
type Engine[T any, C CreateInput[T], U UpdateInput] struct {
	desc        Descriptor[T]
	store       Store[T]
	now         func() time.Time
	guard       func(ctx context.Context, rec *T) error
	removeGuard func(ctx context.Context, rec *T) error
}

// NewEngine binds an engine to a store. desc must come from Describe.
func NewEngine[T any, C CreateInput[T], U UpdateInput](desc Descriptor[T], store Store[T], opts ...Option[T]) *Engine[T, C, U] {
	cfg := &options[T]{now: defaultClock}
	for _, opt := range opts {
		if opt != nil {
			opt(cfg)
		}
	}
	return &Engine[T, C, U]{
		desc:        desc,
		store:       store,
		now:         cfg.now,
		guard:       cfg.guard,
		removeGuard: cfg.removeGuard,
	}
}

func defaultClock() time.Time {
	return time.Now().UTC().Truncate(time.Microsecond)
}

// Descriptor returns the entity descriptor the engine was built with.
func (e *Engine[T, C, U]) Descriptor() Descriptor[T] {
	return e.desc
}

// Get loads exactly one live entity.
func (e *Engine[T, C, U]) Get(ctx context.Context, id uuid.UUID) (*T, error) {
	return e.get(ctx, e.store, id)
}

// Create assigns identity and creation time, persists the entity and returns
// the stored row.
func (e *Engine[T, C, U]) Create(ctx context.Context, input C) (*T, error) {
	rec := input.NewRecord()
	var meta *Model
	if rec != nil {
		meta = ModelOf(rec)
	}
	if meta == nil {
		return nil, fmt.Errorf("crud: %s create input produced no record", e.desc.name)
	}
	meta.ID = uuid.New()
	meta.CreatedAt = e.now()
	meta.UpdatedAt = nil
	stampDeleted(rec, nil)

	var created *T
	err := e.store.Transaction(ctx, nil, func(tx Store[T]) error {
		if err := e.check(ctx, rec); err != nil {
			return err
		}
		if err := tx.Insert(ctx, rec); err != nil {
			return err
		}
		stored, err := e.get(ctx, tx, meta.ID)
		if err != nil {
			return err
		}
		created = stored
		return nil
	})
	if err != nil {
		return nil, err
	}
	return created, nil
}

// Update merges the supplied fields onto a live entity and stamps updated_at.
// Engine-owned columns in the payload are discarded.
func (e *Engine[T, C, U]) Update(ctx context.Context, id uuid.UUID, input U) (*T, error) {
	changes := input.Changes().without(protectedColumns...)

	var updated *T
	err := e.store.Transaction(ctx, nil, func(tx Store[T]) error {
		current, err := e.get(ctx, tx, id)
		if err != nil {
			return err
		}
		changes[ColumnUpdatedAt] = e.now()
		merged := *current
		if err := e.desc.Assign(ctx, &merged, changes); err != nil {
			return err
		}
		if err := e.check(ctx, &merged); err != nil {
			return err
		}
		affected, err := tx.Update(ctx, id, changes)
		if err != nil {
			return err
		}
		if affected == 0 {
			return notFound(e.desc.name, id)
		}
		stored, err := e.get(ctx, tx, id)
		if err != nil {
			return err
		}
		updated = stored
		return nil
	})
	if err != nil {
		return nil, err
	}
	return updated, nil
}

// Remove soft-deletes entities carrying SoftDelete and erases all others. It
// returns the entity as of removal: stamped for soft deletes, the last stored
// state for hard deletes. updated_at is left untouched either way.
func (e *Engine[T, C, U]) Remove(ctx context.Context, id uuid.UUID) (*T, error) {
	var removed *T
	err := e.store.Transaction(ctx, nil, func(tx Store[T]) error {
		current, err := e.get(ctx, tx, id)
		if err != nil {
			return err
		}
		if e.removeGuard != nil {
			if err := e.removeGuard(ctx, current); err != nil {
				return err
			}
		}
		var affected int64
		if e.desc.softDelete {
			now := e.now()
			affected, err = tx.Update(ctx, id, Changes{ColumnDeletedAt: now})
			if err == nil {
				stampDeleted(current, &now)
			}
		} else {
			affected, err = tx.Delete(ctx, id)
		}
		if err != nil {
			return err
		}
		if affected == 0 {
			return notFound(e.desc.name, id)
		}
		removed = current
		return nil
	})
	if err != nil {
		return nil, err
	}
	return removed, nil
}

// List returns every live entity ordered by id.
func (e *Engine[T, C, U]) List(ctx context.Context) ([]*T, error) {
	rows, err := e.live(e.store).Find(ctx, -1, 0)
	if err != nil {
		return nil, err
	}
	if rows == nil {
		rows = []*T{}
	}
	return rows, nil
}

// Paginate returns one window of live entities ordered by id together with
// the live row count. Count and slice read the same snapshot.
func (e *Engine[T, C, U]) Paginate(ctx context.Context, window pagination.Window) (pagination.Page[*T], error) {
	var page pagination.Page[*T]
	opts := &sql.TxOptions{Isolation: sql.LevelRepeatableRead, ReadOnly: true}
	err := e.store.Transaction(ctx, opts, func(tx Store[T]) error {
		p, err := pagination.Paginate[*T](ctx, e.live(tx), window)
		if err != nil {
			return err
		}
		page = p
		return nil
	})
	if err != nil {
		return pagination.Page[*T]{}, err
	}
	return page, nil
}

func (e *Engine[T, C, U]) get(ctx context.Context, store Store[T], id uuid.UUID) (*T, error) {
	rows, err := e.live(store).ByID(id).Find(ctx, 2, 0)
	if err != nil {
		return nil, err
	}
	switch len(rows) {
	case 0:
		return nil, notFound(e.desc.name, id)
	case 1:
		return rows[0], nil
	default:
		return nil, fmt.Errorf("%w: %d %s rows share id %s", ErrIntegrity, len(rows), e.desc.name, id)
	}
}

func (e *Engine[T, C, U]) live(store Store[T]) Query[T] {
	q := store.Query()
	if e.desc.softDelete {
		q = q.Live()
	}
	return q
}

func (e *Engine[T, C, U]) check(ctx context.Context, rec *T) error {
	if e.guard == nil {
		return nil
	}
	return e.guard(ctx, rec)
}
