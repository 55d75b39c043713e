package itemstore

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/waffletower/InvokeAI/internal/domain"
)

const indexFile = "index.jsonl"

// JSONStore writes one JSON file per item into a directory and keeps an
// append-only index.jsonl recording creation order.
type JSONStore[T any] struct {
	callbacks[T]

	dir  string
	idOf IDFunc[T]
	now  func() time.Time

	mu sync.Mutex
}

type JSONOption[T any] func(*JSONStore[T])

// WithNow is useful for tests.
func WithNow[T any](now func() time.Time) JSONOption[T] {
	return func(s *JSONStore[T]) { s.now = now }
}

func NewJSONStore[T any](dir string, idOf IDFunc[T], opts ...JSONOption[T]) (*JSONStore[T], error) {
	s := &JSONStore[T]{dir: dir, idOf: idOf, now: time.Now}
	for _, opt := range opts {
		opt(s)
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, &domain.OpError{Op: "jsonstore.mkdir", Kind: domain.KindExecution, Path: dir, Err: err}
	}
	return s, nil
}

func (s *JSONStore[T]) path(id string) (string, error) {
	if id == "" || id != filepath.Base(id) || strings.HasPrefix(id, ".") {
		return "", &domain.OpError{Op: "jsonstore.path", Kind: domain.KindInvalidConfig, Path: id, Err: fmt.Errorf("unsafe item id")}
	}
	return filepath.Join(s.dir, id+".json"), nil
}

func (s *JSONStore[T]) Get(_ context.Context, id string) (T, error) {
	var zero T
	p, err := s.path(id)
	if err != nil {
		return zero, notFound("jsonstore.get", id)
	}
	b, err := os.ReadFile(p)
	if errors.Is(err, fs.ErrNotExist) {
		return zero, notFound("jsonstore.get", id)
	}
	if err != nil {
		return zero, &domain.OpError{Op: "jsonstore.read", Kind: domain.KindExecution, Path: p, Err: err}
	}
	return decode[T]("jsonstore.get", id, b)
}

func (s *JSONStore[T]) Set(_ context.Context, item T) error {
	id, b, err := encode("jsonstore.set", s.idOf, item)
	if err != nil {
		return err
	}
	p, err := s.path(id)
	if err != nil {
		return err
	}

	s.mu.Lock()
	_, statErr := os.Stat(p)
	created := errors.Is(statErr, fs.ErrNotExist)

	// Atomic-ish write: tmp then rename.
	tmp := p + ".tmp"
	if err := os.WriteFile(tmp, b, 0o600); err != nil {
		s.mu.Unlock()
		return &domain.OpError{Op: "jsonstore.write", Kind: domain.KindExecution, Path: tmp, Err: err}
	}
	if err := os.Rename(tmp, p); err != nil {
		_ = os.Remove(tmp)
		s.mu.Unlock()
		return &domain.OpError{Op: "jsonstore.rename", Kind: domain.KindExecution, Path: p, Err: err}
	}
	if created {
		if err := s.appendIndex(id); err != nil {
			s.mu.Unlock()
			return &domain.OpError{Op: "jsonstore.index", Kind: domain.KindExecution, Path: s.dir, Err: err}
		}
	}
	s.mu.Unlock()

	s.notifyChanged(item)
	return nil
}

func (s *JSONStore[T]) Delete(_ context.Context, id string) error {
	p, err := s.path(id)
	if err != nil {
		return nil
	}

	s.mu.Lock()
	err = os.Remove(p)
	s.mu.Unlock()

	if errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	if err != nil {
		return &domain.OpError{Op: "jsonstore.delete", Kind: domain.KindExecution, Path: p, Err: err}
	}
	s.notifyDeleted(id)
	return nil
}

func (s *JSONStore[T]) List(ctx context.Context, page, perPage int) (domain.PaginatedResults[T], error) {
	return s.Search(ctx, "", page, perPage)
}

func (s *JSONStore[T]) Search(_ context.Context, query string, page, perPage int) (domain.PaginatedResults[T], error) {
	s.mu.Lock()
	ids, err := s.readIndex()
	if err != nil {
		s.mu.Unlock()
		return domain.PaginatedResults[T]{}, &domain.OpError{Op: "jsonstore.index", Kind: domain.KindExecution, Path: s.dir, Err: err}
	}

	var raws [][]byte
	for _, id := range ids {
		b, err := os.ReadFile(filepath.Join(s.dir, id+".json"))
		if errors.Is(err, fs.ErrNotExist) {
			continue
		}
		if err != nil {
			s.mu.Unlock()
			return domain.PaginatedResults[T]{}, &domain.OpError{Op: "jsonstore.read", Kind: domain.KindExecution, Path: id, Err: err}
		}
		if query == "" || matches(b, query) {
			raws = append(raws, b)
		}
	}
	s.mu.Unlock()

	items, err := decodeAll[T]("jsonstore.search", raws)
	if err != nil {
		return domain.PaginatedResults[T]{}, err
	}
	return domain.Paginate(items, page, perPage), nil
}

func (s *JSONStore[T]) Close() error { return nil }

type indexEntry struct {
	ID        string    `json:"id"`
	File      string    `json:"file"`
	CreatedAt time.Time `json:"created_at"`
}

func (s *JSONStore[T]) appendIndex(id string) error {
	line, err := json.Marshal(indexEntry{ID: id, File: id + ".json", CreatedAt: s.now().UTC()})
	if err != nil {
		return err
	}

	f, err := os.OpenFile(filepath.Join(s.dir, indexFile), os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o600)
	if err != nil {
		return err
	}
	defer f.Close()

	_, err = f.Write(append(line, '\n'))
	return err
}

// readIndex returns ids in creation order. An id re-created after a delete
// takes its latest position.
func (s *JSONStore[T]) readIndex() ([]string, error) {
	b, err := os.ReadFile(filepath.Join(s.dir, indexFile))
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	var ids []string
	last := map[string]int{}
	sc := bufio.NewScanner(bytes.NewReader(b))
	sc.Buffer(make([]byte, 64*1024), 1024*1024)
	for sc.Scan() {
		var e indexEntry
		if err := json.Unmarshal(sc.Bytes(), &e); err != nil || e.ID == "" {
			continue
		}
		last[e.ID] = len(ids)
		ids = append(ids, e.ID)
	}
	if err := sc.Err(); err != nil {
		return nil, err
	}

	out := make([]string, 0, len(last))
	for i, id := range ids {
		if last[id] == i {
			out = append(out, id)
		}
	}
	return out, nil
}
