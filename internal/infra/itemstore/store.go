// Package itemstore implements ports.ItemStorage over go-memdb, SQLite and
// plain JSON files.
package itemstore

import (
	"bytes"
	"encoding/json"
	"fmt"
	"path/filepath"
	"strings"
	"sync"

	"github.com/waffletower/InvokeAI/internal/domain"
	"github.com/waffletower/InvokeAI/internal/ports"
)

// Store is an ItemStorage that owns resources.
type Store[T any] interface {
	ports.ItemStorage[T]
	Close() error
}

// IDFunc extracts the storage key of an item.
type IDFunc[T any] func(T) string

// New opens the backend selected by cfg.Storage. root is the workspace root
// used to resolve relative paths; table names the item kind.
func New[T any](root string, cfg domain.Config, table string, idOf IDFunc[T]) (Store[T], error) {
	switch cfg.Storage.Backend {
	case domain.StorageMemory:
		return NewMemStore(table, idOf)
	case domain.StorageSQLite:
		path := cfg.Storage.SQLitePath
		if path != ":memory:" && !filepath.IsAbs(path) {
			path = filepath.Join(root, path)
		}
		return NewSQLiteStore(path, table, idOf)
	case domain.StorageJSON, "":
		dir := cfg.Paths.SessionsDir
		if !filepath.IsAbs(dir) {
			dir = filepath.Join(root, dir)
		}
		return NewJSONStore(dir, idOf)
	default:
		return nil, &domain.OpError{
			Op:   "itemstore.open",
			Kind: domain.KindInvalidConfig,
			Err:  fmt.Errorf("%w: unknown storage backend %q", domain.ErrInvalidConfig, cfg.Storage.Backend),
		}
	}
}

// callbacks holds change listeners shared by every backend.
type callbacks[T any] struct {
	cbMu    sync.RWMutex
	changed []func(T)
	deleted []func(string)
}

func (c *callbacks[T]) OnChanged(fn func(T)) {
	c.cbMu.Lock()
	defer c.cbMu.Unlock()
	c.changed = append(c.changed, fn)
}

func (c *callbacks[T]) OnDeleted(fn func(string)) {
	c.cbMu.Lock()
	defer c.cbMu.Unlock()
	c.deleted = append(c.deleted, fn)
}

func (c *callbacks[T]) notifyChanged(item T) {
	c.cbMu.RLock()
	fns := append([]func(T){}, c.changed...)
	c.cbMu.RUnlock()
	for _, fn := range fns {
		fn(item)
	}
}

func (c *callbacks[T]) notifyDeleted(id string) {
	c.cbMu.RLock()
	fns := append([]func(string){}, c.deleted...)
	c.cbMu.RUnlock()
	for _, fn := range fns {
		fn(id)
	}
}

func matches(raw []byte, query string) bool {
	return strings.Contains(strings.ToLower(string(raw)), strings.ToLower(query))
}

// decode keeps numbers as json.Number so integers survive a round trip.
func decode[T any](op, id string, raw []byte) (T, error) {
	var item T
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	if err := dec.Decode(&item); err != nil {
		return item, &domain.OpError{Op: op, Kind: domain.KindExecution, Path: id, Err: err}
	}
	return item, nil
}

func decodeAll[T any](op string, raws [][]byte) ([]T, error) {
	out := make([]T, 0, len(raws))
	for _, raw := range raws {
		item, err := decode[T](op, "", raw)
		if err != nil {
			return nil, err
		}
		out = append(out, item)
	}
	return out, nil
}

func notFound(op, id string) error {
	return &domain.OpError{Op: op, Kind: domain.KindNotFound, Path: id, Err: domain.ErrNotFound}
}

func encode[T any](op string, idOf IDFunc[T], item T) (string, []byte, error) {
	id := idOf(item)
	if strings.TrimSpace(id) == "" {
		return "", nil, &domain.OpError{Op: op, Kind: domain.KindInvalidConfig, Err: fmt.Errorf("item has no id")}
	}
	b, err := json.Marshal(item)
	if err != nil {
		return "", nil, &domain.OpError{Op: op, Kind: domain.KindExecution, Path: id, Err: err}
	}
	return id, b, nil
}
