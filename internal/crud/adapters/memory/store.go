package memory

import (
	"bytes"
	"context"
	"database/sql"
	"fmt"
	"slices"
	"sync"

	"github.com/google/uuid"

	"github.com/Apurer/go-gin-crud-server/internal/crud"
)

// Store is an in-memory crud.Store for development and tests. Stored records
// are never mutated in place; every write swaps in a fresh copy.
type Store[T any] struct {
	desc crud.Descriptor[T]
	// txMu serialises writers so a committing transaction never overwrites
	// rows written after its working copy was taken.
	txMu *sync.Mutex
	mu   sync.RWMutex
	rows map[uuid.UUID]*T
	inTx bool
}

// NewStore returns an empty store for the described entity.
func NewStore[T any](desc crud.Descriptor[T]) *Store[T] {
	return &Store[T]{
		desc: desc,
		txMu: &sync.Mutex{},
		rows: map[uuid.UUID]*T{},
	}
}

// Query returns the base query over committed rows (or the transaction's working copy).
func (s *Store[T]) Query() crud.Query[T] {
	return query[T]{store: s}
}

// Transaction runs fn against a private copy of the rows and publishes it on success.
func (s *Store[T]) Transaction(ctx context.Context, _ *sql.TxOptions, fn func(tx crud.Store[T]) error) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("%w: %w", crud.ErrUnavailable, err)
	}
	if s.inTx {
		return fn(s)
	}
	s.txMu.Lock()
	defer s.txMu.Unlock()

	s.mu.RLock()
	working := make(map[uuid.UUID]*T, len(s.rows))
	for id, rec := range s.rows {
		working[id] = rec
	}
	s.mu.RUnlock()

	tx := &Store[T]{desc: s.desc, txMu: s.txMu, rows: working, inTx: true}
	if err := fn(tx); err != nil {
		return err
	}
	s.mu.Lock()
	s.rows = working
	s.mu.Unlock()
	return nil
}

// Insert stores a copy of rec. A duplicate id is an integrity violation.
func (s *Store[T]) Insert(_ context.Context, rec *T) error {
	if rec == nil {
		return fmt.Errorf("memory %s store: record is nil", s.desc.Name())
	}
	unlock := s.lockWrite()
	defer unlock()
	id := crud.IDOf(rec)
	if _, exists := s.rows[id]; exists {
		return fmt.Errorf("%w: duplicate %s id %s", crud.ErrIntegrity, s.desc.Name(), id)
	}
	clone := *rec
	s.rows[id] = &clone
	return nil
}

// Update applies changes to the row with the given id, soft-deleted or not.
func (s *Store[T]) Update(ctx context.Context, id uuid.UUID, changes crud.Changes) (int64, error) {
	unlock := s.lockWrite()
	defer unlock()
	current, ok := s.rows[id]
	if !ok {
		return 0, nil
	}
	clone := *current
	if err := s.desc.Assign(ctx, &clone, changes); err != nil {
		return 0, err
	}
	s.rows[id] = &clone
	return 1, nil
}

// Delete erases the row with the given id.
func (s *Store[T]) Delete(_ context.Context, id uuid.UUID) (int64, error) {
	unlock := s.lockWrite()
	defer unlock()
	if _, ok := s.rows[id]; !ok {
		return 0, nil
	}
	delete(s.rows, id)
	return 1, nil
}

// Len reports the number of stored rows, soft-deleted ones included.
func (s *Store[T]) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.rows)
}

func (s *Store[T]) lockWrite() func() {
	if s.inTx {
		s.mu.Lock()
		return s.mu.Unlock
	}
	s.txMu.Lock()
	s.mu.Lock()
	return func() {
		s.mu.Unlock()
		s.txMu.Unlock()
	}
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
	rows, err := q.match(ctx)
	if err != nil {
		return 0, err
	}
	return int64(len(rows)), nil
}

func (q query[T]) Find(ctx context.Context, limit, offset int) ([]*T, error) {
	rows, err := q.match(ctx)
	if err != nil {
		return nil, err
	}
	if offset >= len(rows) {
		return []*T{}, nil
	}
	rows = rows[offset:]
	if limit >= 0 && limit < len(rows) {
		rows = rows[:limit]
	}
	out := make([]*T, 0, len(rows))
	for _, rec := range rows {
		clone := *rec
		out = append(out, &clone)
	}
	return out, nil
}

func (q query[T]) match(ctx context.Context) ([]*T, error) {
	s := q.store
	if q.ref != nil && !s.desc.HasColumn(q.ref.column) {
		return nil, fmt.Errorf("memory %s store: no column %q", s.desc.Name(), q.ref.column)
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	rows := make([]*T, 0, len(s.rows))
	for id, rec := range s.rows {
		if q.id != nil && id != *q.id {
			continue
		}
		if q.live && crud.Trashed(rec) {
			continue
		}
		if q.ref != nil {
			value, err := s.desc.Value(ctx, rec, q.ref.column)
			if err != nil {
				return nil, err
			}
			if !references(value, q.ref.id) {
				continue
			}
		}
		rows = append(rows, rec)
	}
	slices.SortFunc(rows, func(a, b *T) int {
		ida, idb := crud.IDOf(a), crud.IDOf(b)
		return bytes.Compare(ida[:], idb[:])
	})
	return rows, nil
}

func references(value any, id uuid.UUID) bool {
	switch v := value.(type) {
	case uuid.UUID:
		return v == id
	case *uuid.UUID:
		return v != nil && *v == id
	}
	return false
}
