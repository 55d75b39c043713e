package itemstore

import (
	"context"
	"fmt"
	"sync"

	"github.com/hashicorp/go-memdb"

	"github.com/waffletower/InvokeAI/internal/domain"
)

type memRecord struct {
	ID    string
	Order string
	Data  []byte
}

// MemStore keeps items in a go-memdb table indexed by id and by insertion
// order.
type MemStore[T any] struct {
	callbacks[T]

	db    *memdb.MemDB
	table string
	idOf  IDFunc[T]

	mu  sync.Mutex
	seq uint64
}

func NewMemStore[T any](table string, idOf IDFunc[T]) (*MemStore[T], error) {
	schema := &memdb.DBSchema{
		Tables: map[string]*memdb.TableSchema{
			table: {
				Name: table,
				Indexes: map[string]*memdb.IndexSchema{
					"id": {
						Name:    "id",
						Unique:  true,
						Indexer: &memdb.StringFieldIndex{Field: "ID"},
					},
					"order": {
						Name:    "order",
						Unique:  true,
						Indexer: &memdb.StringFieldIndex{Field: "Order"},
					},
				},
			},
		},
	}
	db, err := memdb.NewMemDB(schema)
	if err != nil {
		return nil, &domain.OpError{Op: "memstore.open", Kind: domain.KindExecution, Err: err}
	}
	return &MemStore[T]{db: db, table: table, idOf: idOf}, nil
}

func (s *MemStore[T]) Get(_ context.Context, id string) (T, error) {
	var zero T
	txn := s.db.Txn(false)
	defer txn.Abort()

	raw, err := txn.First(s.table, "id", id)
	if err != nil {
		return zero, &domain.OpError{Op: "memstore.get", Kind: domain.KindExecution, Path: id, Err: err}
	}
	if raw == nil {
		return zero, notFound("memstore.get", id)
	}
	return decode[T]("memstore.get", id, raw.(*memRecord).Data)
}

func (s *MemStore[T]) Set(_ context.Context, item T) error {
	id, b, err := encode("memstore.set", s.idOf, item)
	if err != nil {
		return err
	}

	s.mu.Lock()
	txn := s.db.Txn(true)
	existing, err := txn.First(s.table, "id", id)
	if err != nil {
		txn.Abort()
		s.mu.Unlock()
		return &domain.OpError{Op: "memstore.set", Kind: domain.KindExecution, Path: id, Err: err}
	}
	rec := &memRecord{ID: id, Data: b}
	if existing != nil {
		rec.Order = existing.(*memRecord).Order
	} else {
		s.seq++
		// Zero-padded so the string index sorts numerically.
		rec.Order = fmt.Sprintf("%020d", s.seq)
	}
	if err := txn.Insert(s.table, rec); err != nil {
		txn.Abort()
		s.mu.Unlock()
		return &domain.OpError{Op: "memstore.set", Kind: domain.KindExecution, Path: id, Err: err}
	}
	txn.Commit()
	s.mu.Unlock()

	s.notifyChanged(item)
	return nil
}

func (s *MemStore[T]) Delete(_ context.Context, id string) error {
	s.mu.Lock()
	txn := s.db.Txn(true)
	n, err := txn.DeleteAll(s.table, "id", id)
	if err != nil {
		txn.Abort()
		s.mu.Unlock()
		return &domain.OpError{Op: "memstore.delete", Kind: domain.KindExecution, Path: id, Err: err}
	}
	txn.Commit()
	s.mu.Unlock()

	if n > 0 {
		s.notifyDeleted(id)
	}
	return nil
}

func (s *MemStore[T]) List(ctx context.Context, page, perPage int) (domain.PaginatedResults[T], error) {
	return s.Search(ctx, "", page, perPage)
}

func (s *MemStore[T]) Search(_ context.Context, query string, page, perPage int) (domain.PaginatedResults[T], error) {
	txn := s.db.Txn(false)
	defer txn.Abort()

	it, err := txn.Get(s.table, "order")
	if err != nil {
		return domain.PaginatedResults[T]{}, &domain.OpError{Op: "memstore.search", Kind: domain.KindExecution, Err: err}
	}
	var raws [][]byte
	for obj := it.Next(); obj != nil; obj = it.Next() {
		rec := obj.(*memRecord)
		if query == "" || matches(rec.Data, query) {
			raws = append(raws, rec.Data)
		}
	}

	items, err := decodeAll[T]("memstore.search", raws)
	if err != nil {
		return domain.PaginatedResults[T]{}, err
	}
	return domain.Paginate(items, page, perPage), nil
}

func (s *MemStore[T]) Close() error { return nil }
