package docstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/woundcare/woundcare/internal/platform/db"
)

// PGBackend stores documents in the documents table, one row per document
// with the payload in a JSONB column.
type PGBackend struct {
	pool *pgxpool.Pool
}

// NewPGBackend creates a Backend on top of a pgx pool.
func NewPGBackend(pool *pgxpool.Pool) *PGBackend {
	return &PGBackend{pool: pool}
}

func (b *PGBackend) conn(ctx context.Context) db.Querier {
	if q := db.QuerierFromContext(ctx); q != nil {
		return q
	}
	return b.pool
}

func (b *PGBackend) Get(ctx context.Context, path string) (*Snapshot, error) {
	_, id := SplitDocumentPath(path)
	var (
		raw     []byte
		updated time.Time
	)
	err := b.conn(ctx).QueryRow(ctx, `SELECT data, updated_at FROM documents WHERE path = $1`, path).Scan(&raw, &updated)
	if errors.Is(err, pgx.ErrNoRows) {
		return &Snapshot{ID: id, Path: path}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get document %s: %w", path, err)
	}
	data := map[string]any{}
	if err := json.Unmarshal(raw, &data); err != nil {
		return nil, fmt.Errorf("decode document %s: %w", path, err)
	}
	return &Snapshot{ID: id, Path: path, Data: data, Exists: true, UpdateTime: updated}, nil
}

func (b *PGBackend) Query(ctx context.Context, q Query) ([]*Snapshot, error) {
	sql, args, err := buildQuerySQL(q)
	if err != nil {
		return nil, err
	}
	rows, err := b.conn(ctx).Query(ctx, sql, args...)
	if err != nil {
		return nil, fmt.Errorf("query %s: %w", q.Collection, err)
	}
	defer rows.Close()

	var out []*Snapshot
	for rows.Next() {
		var (
			s   Snapshot
			raw []byte
		)
		if err := rows.Scan(&s.Path, &s.ID, &raw, &s.UpdateTime); err != nil {
			return nil, fmt.Errorf("scan document: %w", err)
		}
		s.Data = map[string]any{}
		if err := json.Unmarshal(raw, &s.Data); err != nil {
			return nil, fmt.Errorf("decode document %s: %w", s.Path, err)
		}
		s.Exists = true
		out = append(out, &s)
	}
	return out, rows.Err()
}

func (b *PGBackend) Set(ctx context.Context, path string, data map[string]any, merge bool) error {
	raw, err := json.Marshal(data)
	if err != nil {
		return fmt.Errorf("encode document %s: %w", path, err)
	}
	parent, id := SplitDocumentPath(path)

	update := `data = EXCLUDED.data`
	if merge {
		update = `data = documents.data || EXCLUDED.data`
	}
	_, err = b.conn(ctx).Exec(ctx, `
		INSERT INTO documents (path, parent, collection_id, doc_id, data)
		VALUES ($1, $2, $3, $4, $5::jsonb)
		ON CONFLICT (path) DO UPDATE SET `+update+`, updated_at = NOW()`,
		path, parent, CollectionID(parent), id, string(raw))
	if err != nil {
		return fmt.Errorf("set document %s: %w", path, err)
	}
	return nil
}

func (b *PGBackend) Delete(ctx context.Context, path string) error {
	if _, err := b.conn(ctx).Exec(ctx, `DELETE FROM documents WHERE path = $1`, path); err != nil {
		return fmt.Errorf("delete document %s: %w", path, err)
	}
	return nil
}

var sqlOps = map[Op]string{
	OpEqual:          "=",
	OpNotEqual:       "<>",
	OpLess:           "<",
	OpLessOrEqual:    "<=",
	OpGreater:        ">",
	OpGreaterOrEqual: ">=",
}

// buildQuerySQL translates q into SQL over the documents table. Field paths
// and values are always bound as parameters.
func buildQuerySQL(q Query) (string, []interface{}, error) {
	var (
		where  []string
		order  []string
		args   []interface{}
		limit  int
		nextID = func(v interface{}) string {
			args = append(args, v)
			return fmt.Sprintf("$%d", len(args))
		}
	)

	if q.Group {
		where = append(where, "collection_id = "+nextID(q.Collection))
	} else {
		where = append(where, "parent = "+nextID(q.Collection))
	}

	for _, c := range q.Constraints {
		switch c.Kind {
		case KindWhere:
			field := "data #> " + nextID(strings.Split(c.Field, ".")) + "::text[]"
			val, err := json.Marshal(c.Value)
			if err != nil {
				return "", nil, fmt.Errorf("%w: encode value for %s: %v", ErrInvalidQuery, c.Field, err)
			}
			p := nextID(string(val)) + "::jsonb"
			switch c.Op {
			case OpIn:
				where = append(where, fmt.Sprintf("%s IN (SELECT jsonb_array_elements(%s))", field, p))
			case OpArrayContains:
				where = append(where, fmt.Sprintf("%s @> jsonb_build_array(%s)", field, p))
			case OpEqual, OpNotEqual:
				where = append(where, fmt.Sprintf("%s %s %s", field, sqlOps[c.Op], p))
			default:
				where = append(where, fmt.Sprintf("jsonb_typeof(%s) = jsonb_typeof(%s) AND %s %s %s",
					field, p, field, sqlOps[c.Op], p))
			}
		case KindOrderBy:
			dir := "ASC"
			if c.Direction == Desc {
				dir = "DESC"
			}
			order = append(order, "data #> "+nextID(strings.Split(c.Field, "."))+"::text[] "+dir)
		case KindLimit:
			limit = c.Limit
		default:
			return "", nil, fmt.Errorf("%w: unknown constraint kind %q", ErrInvalidQuery, c.Kind)
		}
	}
	order = append(order, "doc_id ASC")

	sql := `SELECT path, doc_id, data, updated_at FROM documents WHERE ` +
		strings.Join(where, " AND ") + ` ORDER BY ` + strings.Join(order, ", ")
	if limit > 0 {
		sql += fmt.Sprintf(" LIMIT %d", limit)
	}
	return sql, args, nil
}
