package docstore

import (
	"encoding/json"
	"fmt"
	"reflect"
	"sort"
	"strings"
)

// Op is a comparison operator used in a where constraint.
type Op string

const (
	OpEqual          Op = "=="
	OpNotEqual       Op = "!="
	OpLess           Op = "<"
	OpLessOrEqual    Op = "<="
	OpGreater        Op = ">"
	OpGreaterOrEqual Op = ">="
	OpIn             Op = "in"
	OpArrayContains  Op = "array-contains"
)

var validOps = map[Op]bool{
	OpEqual: true, OpNotEqual: true, OpLess: true, OpLessOrEqual: true,
	OpGreater: true, OpGreaterOrEqual: true, OpIn: true, OpArrayContains: true,
}

// Direction orders query results.
type Direction string

const (
	Asc  Direction = "asc"
	Desc Direction = "desc"
)

// Constraint kinds.
const (
	KindWhere   = "where"
	KindOrderBy = "orderBy"
	KindLimit   = "limit"
)

// Constraint is one element of a query: a filter, an ordering or a limit.
// Constraints are plain values so that two queries can be compared by value.
type Constraint struct {
	Kind      string    `json:"kind"`
	Field     string    `json:"field,omitempty"`
	Op        Op        `json:"op,omitempty"`
	Value     any       `json:"value,omitempty"`
	Direction Direction `json:"direction,omitempty"`
	Limit     int       `json:"limit,omitempty"`
}

// Where builds a filter constraint.
func Where(field string, op Op, value any) Constraint {
	return Constraint{Kind: KindWhere, Field: field, Op: op, Value: value}
}

// OrderBy builds an ordering constraint.
func OrderBy(field string, dir Direction) Constraint {
	return Constraint{Kind: KindOrderBy, Field: field, Direction: dir}
}

// Limit builds a limit constraint.
func Limit(n int) Constraint {
	return Constraint{Kind: KindLimit, Limit: n}
}

func (c Constraint) validate() error {
	switch c.Kind {
	case KindWhere:
		if c.Field == "" {
			return fmt.Errorf("%w: where without field", ErrInvalidQuery)
		}
		if !validOps[c.Op] {
			return fmt.Errorf("%w: unsupported operator %q", ErrInvalidQuery, c.Op)
		}
		if c.Op == OpIn {
			if _, ok := normalizeValue(c.Value).([]any); !ok {
				return fmt.Errorf("%w: 'in' requires an array value", ErrInvalidQuery)
			}
		}
	case KindOrderBy:
		if c.Field == "" {
			return fmt.Errorf("%w: orderBy without field", ErrInvalidQuery)
		}
		if c.Direction != "" && c.Direction != Asc && c.Direction != Desc {
			return fmt.Errorf("%w: invalid direction %q", ErrInvalidQuery, c.Direction)
		}
	case KindLimit:
		if c.Limit <= 0 {
			return fmt.Errorf("%w: limit must be positive", ErrInvalidQuery)
		}
	default:
		return fmt.Errorf("%w: unknown constraint kind %q", ErrInvalidQuery, c.Kind)
	}
	return nil
}

// Query selects documents from one collection, or from every collection with
// a given id when Group is set.
type Query struct {
	Collection  string       `json:"collection"`
	Group       bool         `json:"group"`
	Constraints []Constraint `json:"constraints"`
}

// Validate normalises the collection path and checks the constraints.
func (q *Query) Validate() error {
	if q.Group {
		if q.Collection == "" || strings.Contains(q.Collection, "/") {
			return fmt.Errorf("%w: collection group id must be a single segment, got %q", ErrInvalidQuery, q.Collection)
		}
	} else {
		clean, err := CleanCollectionPath(q.Collection)
		if err != nil {
			return err
		}
		q.Collection = clean
	}
	for _, c := range q.Constraints {
		if err := c.validate(); err != nil {
			return err
		}
	}
	return nil
}

// Key returns a stable serialisation of the query, suitable for equality
// checks by value.
func (q Query) Key() string {
	b, err := json.Marshal(q)
	if err != nil {
		return fmt.Sprintf("%#v", q)
	}
	return string(b)
}

// Covers reports whether a write to a document in collection can change the
// result of q.
func (q Query) Covers(collection string) bool {
	if q.Group {
		return CollectionID(collection) == q.Collection
	}
	return collection == q.Collection
}

// EqualityFilter returns the value of the first "==" filter on field.
func (q Query) EqualityFilter(field string) (any, bool) {
	for _, c := range q.Constraints {
		if c.Kind == KindWhere && c.Field == field && c.Op == OpEqual {
			return c.Value, true
		}
	}
	return nil, false
}

// Apply filters, orders and limits snaps in memory. It is used by the memory
// backend and mirrors the semantics of the SQL translation.
func (q Query) Apply(snaps []*Snapshot) []*Snapshot {
	out := make([]*Snapshot, 0, len(snaps))
	for _, s := range snaps {
		if q.matches(s) {
			out = append(out, s)
		}
	}

	var orders []Constraint
	limit := 0
	for _, c := range q.Constraints {
		switch c.Kind {
		case KindOrderBy:
			orders = append(orders, c)
		case KindLimit:
			limit = c.Limit
		}
	}

	sort.SliceStable(out, func(i, j int) bool {
		for _, o := range orders {
			a, _ := lookupField(out[i].Data, o.Field)
			b, _ := lookupField(out[j].Data, o.Field)
			cmp := compareOrdered(a, b)
			if cmp == 0 {
				continue
			}
			if o.Direction == Desc {
				return cmp > 0
			}
			return cmp < 0
		}
		return out[i].ID < out[j].ID
	})

	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out
}

func (q Query) matches(s *Snapshot) bool {
	for _, c := range q.Constraints {
		if c.Kind != KindWhere {
			continue
		}
		got, ok := lookupField(s.Data, c.Field)
		if !ok {
			return false
		}
		want := normalizeValue(c.Value)
		switch c.Op {
		case OpEqual:
			if !reflect.DeepEqual(got, want) {
				return false
			}
		case OpNotEqual:
			if reflect.DeepEqual(got, want) {
				return false
			}
		case OpLess, OpLessOrEqual, OpGreater, OpGreaterOrEqual:
			cmp, ok := compareValues(got, want)
			if !ok {
				return false
			}
			switch c.Op {
			case OpLess:
				if cmp >= 0 {
					return false
				}
			case OpLessOrEqual:
				if cmp > 0 {
					return false
				}
			case OpGreater:
				if cmp <= 0 {
					return false
				}
			case OpGreaterOrEqual:
				if cmp < 0 {
					return false
				}
			}
		case OpIn:
			found := false
			list, _ := want.([]any)
			for _, v := range list {
				if reflect.DeepEqual(got, v) {
					found = true
					break
				}
			}
			if !found {
				return false
			}
		case OpArrayContains:
			list, ok := got.([]any)
			if !ok {
				return false
			}
			found := false
			for _, v := range list {
				if reflect.DeepEqual(v, want) {
					found = true
					break
				}
			}
			if !found {
				return false
			}
		}
	}
	return true
}

// lookupField resolves a dotted field path inside data.
func lookupField(data map[string]any, field string) (any, bool) {
	var cur any = data
	for _, part := range strings.Split(field, ".") {
		m, ok := cur.(map[string]any)
		if !ok {
			return nil, false
		}
		cur, ok = m[part]
		if !ok {
			return nil, false
		}
	}
	return cur, true
}

func compareValues(a, b any) (int, bool) {
	switch av := a.(type) {
	case float64:
		bv, ok := b.(float64)
		if !ok {
			return 0, false
		}
		switch {
		case av < bv:
			return -1, true
		case av > bv:
			return 1, true
		}
		return 0, true
	case string:
		bv, ok := b.(string)
		if !ok {
			return 0, false
		}
		return strings.Compare(av, bv), true
	case bool:
		bv, ok := b.(bool)
		if !ok {
			return 0, false
		}
		switch {
		case av == bv:
			return 0, true
		case !av:
			return -1, true
		}
		return 1, true
	}
	return 0, false
}

// compareOrdered orders mixed values: missing < bool < number < string.
func compareOrdered(a, b any) int {
	if cmp, ok := compareValues(a, b); ok {
		return cmp
	}
	return typeRank(a) - typeRank(b)
}

func typeRank(v any) int {
	switch v.(type) {
	case nil:
		return 0
	case bool:
		return 1
	case float64:
		return 2
	case string:
		return 3
	}
	return 4
}

// normalizeValue round-trips v through JSON so that in-memory comparisons see
// the same types the JSONB column stores (float64, string, bool, []any,
// map[string]any).
func normalizeValue(v any) any {
	switch v.(type) {
	case nil, string, bool, float64:
		return v
	}
	b, err := json.Marshal(v)
	if err != nil {
		return v
	}
	var out any
	if err := json.Unmarshal(b, &out); err != nil {
		return v
	}
	return out
}

// Normalize converts a document payload into its JSON form.
func Normalize(data map[string]any) (map[string]any, error) {
	if data == nil {
		return map[string]any{}, nil
	}
	b, err := json.Marshal(data)
	if err != nil {
		return nil, fmt.Errorf("encode document: %w", err)
	}
	out := map[string]any{}
	if err := json.Unmarshal(b, &out); err != nil {
		return nil, fmt.Errorf("decode document: %w", err)
	}
	return out, nil
}
