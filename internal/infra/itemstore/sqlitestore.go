package itemstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/waffletower/InvokeAI/internal/domain"

	_ "modernc.org/sqlite"
)

var tableName = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// SQLiteStore keeps items as JSON text in one SQLite table.
type SQLiteStore[T any] struct {
	callbacks[T]

	db    *sql.DB
	table string
	idOf  IDFunc[T]
}

func NewSQLiteStore[T any](path, table string, idOf IDFunc[T]) (*SQLiteStore[T], error) {
	if !tableName.MatchString(table) {
		return nil, &domain.OpError{Op: "sqlitestore.open", Kind: domain.KindInvalidConfig, Err: fmt.Errorf("bad table name %q", table)}
	}
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, &domain.OpError{Op: "sqlitestore.mkdir", Kind: domain.KindExecution, Path: path, Err: err}
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, &domain.OpError{Op: "sqlitestore.open", Kind: domain.KindExecution, Path: path, Err: err}
	}
	// One connection keeps ":memory:" databases shared and serialises writers.
	db.SetMaxOpenConns(1)

	schema := fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
		id TEXT PRIMARY KEY,
		item TEXT NOT NULL,
		seq INTEGER NOT NULL
	)`, table)
	if _, err := db.Exec(schema); err != nil {
		_ = db.Close()
		return nil, &domain.OpError{Op: "sqlitestore.schema", Kind: domain.KindExecution, Path: path, Err: err}
	}

	return &SQLiteStore[T]{db: db, table: table, idOf: idOf}, nil
}

func (s *SQLiteStore[T]) Get(ctx context.Context, id string) (T, error) {
	var zero T
	var raw string
	err := s.db.QueryRowContext(ctx, fmt.Sprintf(`SELECT item FROM %s WHERE id = ?`, s.table), id).Scan(&raw)
	if errors.Is(err, sql.ErrNoRows) {
		return zero, notFound("sqlitestore.get", id)
	}
	if err != nil {
		return zero, &domain.OpError{Op: "sqlitestore.get", Kind: domain.KindExecution, Path: id, Err: err}
	}
	return decode[T]("sqlitestore.get", id, []byte(raw))
}

func (s *SQLiteStore[T]) Set(ctx context.Context, item T) error {
	id, b, err := encode("sqlitestore.set", s.idOf, item)
	if err != nil {
		return err
	}

	q := fmt.Sprintf(`INSERT INTO %[1]s (id, item, seq)
		VALUES (?, ?, (SELECT COALESCE(MAX(seq), 0) + 1 FROM %[1]s))
		ON CONFLICT(id) DO UPDATE SET item = excluded.item`, s.table)
	if _, err := s.db.ExecContext(ctx, q, id, string(b)); err != nil {
		return &domain.OpError{Op: "sqlitestore.set", Kind: domain.KindExecution, Path: id, Err: err}
	}

	s.notifyChanged(item)
	return nil
}

func (s *SQLiteStore[T]) Delete(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, fmt.Sprintf(`DELETE FROM %s WHERE id = ?`, s.table), id)
	if err != nil {
		return &domain.OpError{Op: "sqlitestore.delete", Kind: domain.KindExecution, Path: id, Err: err}
	}
	if n, _ := res.RowsAffected(); n > 0 {
		s.notifyDeleted(id)
	}
	return nil
}

func (s *SQLiteStore[T]) List(ctx context.Context, page, perPage int) (domain.PaginatedResults[T], error) {
	return s.Search(ctx, "", page, perPage)
}

func (s *SQLiteStore[T]) Search(ctx context.Context, query string, page, perPage int) (domain.PaginatedResults[T], error) {
	const op = "sqlitestore.search"
	page, perPage = domain.NormalizePage(page, perPage)

	where := ""
	var args []any
	if query != "" {
		where = `WHERE item LIKE ? ESCAPE '\'`
		args = append(args, "%"+escapeLike(query)+"%")
	}

	var total int
	if err := s.db.QueryRowContext(ctx, fmt.Sprintf(`SELECT COUNT(*) FROM %s %s`, s.table, where), args...).Scan(&total); err != nil {
		return domain.PaginatedResults[T]{}, &domain.OpError{Op: op, Kind: domain.KindExecution, Err: err}
	}

	q := fmt.Sprintf(`SELECT item FROM %s %s ORDER BY seq LIMIT ? OFFSET ?`, s.table, where)
	rows, err := s.db.QueryContext(ctx, q, append(args, perPage, page*perPage)...)
	if err != nil {
		return domain.PaginatedResults[T]{}, &domain.OpError{Op: op, Kind: domain.KindExecution, Err: err}
	}
	defer rows.Close()

	var raws [][]byte
	for rows.Next() {
		var raw string
		if err := rows.Scan(&raw); err != nil {
			return domain.PaginatedResults[T]{}, &domain.OpError{Op: op, Kind: domain.KindExecution, Err: err}
		}
		raws = append(raws, []byte(raw))
	}
	if err := rows.Err(); err != nil {
		return domain.PaginatedResults[T]{}, &domain.OpError{Op: op, Kind: domain.KindExecution, Err: err}
	}

	items, err := decodeAll[T](op, raws)
	if err != nil {
		return domain.PaginatedResults[T]{}, err
	}
	return domain.PaginatedResults[T]{
		Items:   items,
		Page:    page,
		Pages:   domain.PageCount(total, perPage),
		PerPage: perPage,
		Total:   total,
	}, nil
}

func (s *SQLiteStore[T]) Close() error {
	return s.db.Close()
}

func escapeLike(s string) string {
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return r.Replace(s)
}
