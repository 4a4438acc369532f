// Package backend is the SQLite reference implementation of the hosted
// marketplace backend: generic table access with a change feed, plus the
// stock RPCs that mutate products atomically.
package backend

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/aristath/agrimarket/internal/database"
	"github.com/aristath/agrimarket/internal/domain"
	"github.com/aristath/agrimarket/internal/events"
	"github.com/rs/zerolog"
)

const moduleName = "backend"

// Store implements domain.RemoteStore, domain.StockDecrementer,
// domain.OrderPlacer and domain.DepletionHook on the backend database.
type Store struct {
	db     *sql.DB
	events *events.Manager
	log    zerolog.Logger
	now    func() time.Time
}

// New creates a store on a migrated backend database
func New(db *database.DB, em *events.Manager, log zerolog.Logger) *Store {
	return &Store{
		db:     db.Conn(),
		events: em,
		log:    log.With().Str("repo", "backend").Logger(),
		now:    time.Now,
	}
}

type queryer interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
}

// where builds "WHERE a = ? AND b = ?" for a validated filter
func where(spec tableSpec, table domain.Table, filter domain.Filter) (string, []any, error) {
	cols, err := spec.checkColumns(table, filter)
	if err != nil {
		return "", nil, err
	}
	if len(cols) == 0 {
		return "", nil, nil
	}
	clauses := make([]string, len(cols))
	args := make([]any, len(cols))
	for i, col := range cols {
		clauses[i] = col + " = ?"
		args[i] = spec.value(col, filter[col])
	}
	return " WHERE " + strings.Join(clauses, " AND "), args, nil
}

// selectRows runs a query whose result columns are spec.columns
func selectRows(ctx context.Context, q queryer, spec tableSpec, query string, args ...any) ([]domain.Row, error) {
	rows, err := q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.Row
	for rows.Next() {
		values := make([]any, len(spec.columns))
		ptrs := make([]any, len(values))
		for i := range values {
			ptrs[i] = &values[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, err
		}
		out = append(out, spec.row(spec.columns, values))
	}
	return out, rows.Err()
}

// classify maps constraint violations to validation errors
func classify(op string, table domain.Table, err error) error {
	if errors.Is(err, domain.ErrInvalidTable) || errors.Is(err, domain.ErrValidation) ||
		errors.Is(err, domain.ErrNotFound) || errors.Is(err, domain.ErrInsufficientStock) {
		return err
	}
	if strings.Contains(err.Error(), "constraint failed") {
		return fmt.Errorf("%w: %s %s: %v", domain.ErrValidation, op, table, err)
	}
	return fmt.Errorf("failed to %s %s: %w", op, table, err)
}

// Query returns the rows of table matching filter, ordered by key
func (s *Store) Query(ctx context.Context, table domain.Table, filter domain.Filter) ([]domain.Row, error) {
	spec, err := specFor(table)
	if err != nil {
		return nil, err
	}
	cond, args, err := where(spec, table, filter)
	if err != nil {
		return nil, err
	}

	query := fmt.Sprintf("SELECT %s FROM %s%s ORDER BY %s",
		strings.Join(spec.columns, ", "), table, cond, spec.key)
	rows, err := selectRows(ctx, s.db, spec, query, args...)
	if err != nil {
		return nil, classify("query", table, err)
	}
	return rows, nil
}

// Insert inserts rows in one transaction and returns them as stored
func (s *Store) Insert(ctx context.Context, table domain.Table, rows []domain.Row) ([]domain.Row, error) {
	spec, err := specFor(table)
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, nil
	}

	var inserted []domain.Row
	err = database.WithTransaction(ctx, s.db, func(tx *sql.Tx) error {
		for _, r := range rows {
			cols, err := spec.checkColumns(table, r)
			if err != nil {
				return err
			}
			if len(cols) == 0 {
				return fmt.Errorf("%w: empty row", domain.ErrValidation)
			}
			args := make([]any, len(cols))
			for i, col := range cols {
				args[i] = spec.value(col, r[col])
			}
			query := fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s) RETURNING %s",
				table, strings.Join(cols, ", "), placeholders(len(cols)), strings.Join(spec.columns, ", "))
			out, err := selectRows(ctx, tx, spec, query, args...)
			if err != nil {
				return err
			}
			inserted = append(inserted, out...)
		}
		return nil
	})
	if err != nil {
		return nil, classify("insert", table, err)
	}

	for _, r := range inserted {
		s.events.EmitChange(moduleName, domain.ChangeEvent{Kind: domain.ChangeInsert, Table: table, Row: r})
	}
	s.log.Debug().Str("table", string(table)).Int("rows", len(inserted)).Msg("Inserted rows")
	return inserted, nil
}

// Update applies patch to every row matching filter. The key column cannot
// be patched.
func (s *Store) Update(ctx context.Context, table domain.Table, patch domain.Row, filter domain.Filter) ([]domain.Row, error) {
	spec, err := specFor(table)
	if err != nil {
		return nil, err
	}
	setCols, err := spec.checkColumns(table, patch)
	if err != nil {
		return nil, err
	}
	if len(setCols) == 0 {
		return nil, fmt.Errorf("%w: empty patch", domain.ErrValidation)
	}
	if _, ok := patch[spec.key]; ok {
		return nil, fmt.Errorf("%w: cannot update key column %s", domain.ErrValidation, spec.key)
	}
	cond, condArgs, err := where(spec, table, filter)
	if err != nil {
		return nil, err
	}

	sets := make([]string, len(setCols))
	args := make([]any, 0, len(setCols)+len(condArgs))
	for i, col := range setCols {
		sets[i] = col + " = ?"
		args = append(args, spec.value(col, patch[col]))
	}
	args = append(args, condArgs...)

	var before, after []domain.Row
	err = database.WithTransaction(ctx, s.db, func(tx *sql.Tx) error {
		var err error
		before, err = selectRows(ctx, tx, spec,
			fmt.Sprintf("SELECT %s FROM %s%s", strings.Join(spec.columns, ", "), table, cond), condArgs...)
		if err != nil {
			return err
		}
		after, err = selectRows(ctx, tx, spec,
			fmt.Sprintf("UPDATE %s SET %s%s RETURNING %s", table, strings.Join(sets, ", "), cond, strings.Join(spec.columns, ", ")),
			args...)
		return err
	})
	if err != nil {
		return nil, classify("update", table, err)
	}

	s.emitUpdates(table, spec.key, before, after)
	s.log.Debug().Str("table", string(table)).Int("rows", len(after)).Msg("Updated rows")
	return after, nil
}

// Delete removes every row matching filter
func (s *Store) Delete(ctx context.Context, table domain.Table, filter domain.Filter) error {
	spec, err := specFor(table)
	if err != nil {
		return err
	}
	cond, args, err := where(spec, table, filter)
	if err != nil {
		return err
	}

	var deleted []domain.Row
	err = database.WithTransaction(ctx, s.db, func(tx *sql.Tx) error {
		var err error
		deleted, err = selectRows(ctx, tx, spec,
			fmt.Sprintf("DELETE FROM %s%s RETURNING %s", table, cond, strings.Join(spec.columns, ", ")), args...)
		return err
	})
	if err != nil {
		return classify("delete", table, err)
	}

	for _, r := range deleted {
		s.events.EmitChange(moduleName, domain.ChangeEvent{Kind: domain.ChangeDelete, Table: table, OldRow: r})
	}
	s.log.Debug().Str("table", string(table)).Int("rows", len(deleted)).Msg("Deleted rows")
	return nil
}

// SubscribeChanges streams the committed changes of table. The stream is
// closed when ctx is done or the caller closes it.
func (s *Store) SubscribeChanges(ctx context.Context, table domain.Table, kinds []domain.ChangeKind) (domain.ChangeStream, error) {
	if _, err := specFor(table); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	stream := s.events.ChangeStream(table, kinds)
	go func() {
		select {
		case <-ctx.Done():
			_ = stream.Close()
		case <-stream.Done():
		}
	}()
	return stream, nil
}

func (s *Store) emitUpdates(table domain.Table, key string, before, after []domain.Row) {
	old := make(map[string]domain.Row, len(before))
	for _, r := range before {
		old[r.String(key)] = r
	}
	for _, r := range after {
		s.events.EmitChange(moduleName, domain.ChangeEvent{
			Kind:   domain.ChangeUpdate,
			Table:  table,
			Row:    r,
			OldRow: old[r.String(key)],
		})
	}
}

func placeholders(n int) string {
	return strings.TrimSuffix(strings.Repeat("?, ", n), ", ")
}
