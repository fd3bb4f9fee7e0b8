package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/Apurer/go-gin-crud-server/internal/crud"
)

// Store persists one entity type in PostgreSQL through gorm.
type Store[T any] struct {
	db   *gorm.DB
	desc crud.Descriptor[T]
}

// NewStore wires a PostgreSQL-backed store for the described entity.
func NewStore[T any](db *gorm.DB, desc crud.Descriptor[T]) *Store[T] {
	return &Store[T]{db: db, desc: desc}
}

// Query returns the base query for the entity's table.
func (s *Store[T]) Query() crud.Query[T] {
	return query[T]{store: s}
}

// Transaction runs fn inside a database transaction. Nested calls become savepoints.
func (s *Store[T]) Transaction(ctx context.Context, opts *sql.TxOptions, fn func(tx crud.Store[T]) error) error {
	if err := s.ensureDB(); err != nil {
		return err
	}
	txOpts := []*sql.TxOptions{}
	if opts != nil {
		txOpts = append(txOpts, opts)
	}
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(&Store[T]{db: tx, desc: s.desc})
	}, txOpts...)
	return classify(err)
}

// Insert writes rec without touching associations.
func (s *Store[T]) Insert(ctx context.Context, rec *T) error {
	if err := s.ensureDB(); err != nil {
		return err
	}
	return classify(s.db.WithContext(ctx).Omit(clause.Associations).Create(rec).Error)
}

// Update writes only the changed columns of the row with the given id.
func (s *Store[T]) Update(ctx context.Context, id uuid.UUID, changes crud.Changes) (int64, error) {
	if err := s.ensureDB(); err != nil {
		return 0, err
	}
	if len(changes) == 0 {
		return 0, nil
	}
	res := s.db.WithContext(ctx).
		Model(new(T)).
		Where(byID(id)).
		Updates(map[string]any(changes))
	if res.Error != nil {
		return 0, classify(res.Error)
	}
	return res.RowsAffected, nil
}

// Delete erases the row with the given id.
func (s *Store[T]) Delete(ctx context.Context, id uuid.UUID) (int64, error) {
	if err := s.ensureDB(); err != nil {
		return 0, err
	}
	res := s.db.WithContext(ctx).Where(byID(id)).Delete(new(T))
	if res.Error != nil {
		return 0, classify(res.Error)
	}
	return res.RowsAffected, nil
}

func (s *Store[T]) ensureDB() error {
	if s == nil || s.db == nil {
		return errors.New("postgres store not configured")
	}
	return nil
}

type query[T any] struct {
	store *Store[T]
	live  bool
	id    *uuid.UUID
	ref   *reference
}

type reference struct {
	column string
	id     uuid.UUID
}

func (q query[T]) Live() crud.Query[T] {
	q.live = true
	return q
}

func (q query[T]) ByID(id uuid.UUID) crud.Query[T] {
	q.id = &id
	return q
}

func (q query[T]) Referencing(column string, id uuid.UUID) crud.Query[T] {
	q.ref = &reference{column: column, id: id}
	return q
}

func (q query[T]) Count(ctx context.Context) (int64, error) {
	if err := q.check(); err != nil {
		return 0, err
	}
	var total int64
	if err := q.scope(ctx).Count(&total).Error; err != nil {
		return 0, classify(err)
	}
	return total, nil
}

// Find returns rows ordered by id. A negative limit means no limit.
func (q query[T]) Find(ctx context.Context, limit, offset int) ([]*T, error) {
	if err := q.check(); err != nil {
		return nil, err
	}
	db := q.scope(ctx).Order(clause.OrderByColumn{
		Column: clause.Column{Table: clause.CurrentTable, Name: crud.ColumnID},
	})
	if offset > 0 {
		db = db.Offset(offset)
	}
	if limit >= 0 {
		db = db.Limit(limit)
	}
	rows := make([]*T, 0)
	if err := db.Find(&rows).Error; err != nil {
		return nil, classify(err)
	}
	return rows, nil
}

// check rejects reference columns the entity does not map.
func (q query[T]) check() error {
	if err := q.store.ensureDB(); err != nil {
		return err
	}
	if q.ref != nil {
		if !q.store.desc.HasColumn(q.ref.column) {
			return fmt.Errorf("postgres %s store: no column %q", q.store.desc.Name(), q.ref.column)
		}
	}
	return nil
}

// scope builds a fresh statement so queries never share gorm state.
func (q query[T]) scope(ctx context.Context) *gorm.DB {
	db := q.store.db.WithContext(ctx).Model(new(T))
	if q.id != nil {
		db = db.Where(byID(*q.id))
	}
	if q.ref != nil {
		db = db.Where(clause.Eq{
			Column: clause.Column{Table: clause.CurrentTable, Name: q.ref.column},
			Value:  q.ref.id,
		})
	}
	if q.live {
		db = db.Where(clause.Eq{
			Column: clause.Column{Table: clause.CurrentTable, Name: crud.ColumnDeletedAt},
			Value:  nil,
		})
	}
	return db
}

func byID(id uuid.UUID) clause.Expression {
	return clause.Eq{
		Column: clause.Column{Table: clause.CurrentTable, Name: crud.ColumnID},
		Value:  id,
	}
}
