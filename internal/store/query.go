package store

import (
	"fmt"
	"regexp"
)

type Op string

const (
	OpEq     Op = "eq"
	OpNeq    Op = "neq"
	OpIsNull Op = "is_null"
	// OpSearch matches rows where any of Columns contains Value as a
	// case-insensitive substring.
	OpSearch Op = "search"
)

type Filter struct {
	Op      Op
	Column  string
	Columns []string
	Value   any
}

func Eq(column string, value any) Filter {
	return Filter{Op: OpEq, Column: column, Value: value}
}

func Neq(column string, value any) Filter {
	return Filter{Op: OpNeq, Column: column, Value: value}
}

func IsNull(column string) Filter {
	return Filter{Op: OpIsNull, Column: column}
}

func Search(term string, columns ...string) Filter {
	return Filter{Op: OpSearch, Columns: columns, Value: term}
}

type Order struct {
	Column string
	Desc   bool
}

func Asc(column string) Order  { return Order{Column: column} }
func Desc(column string) Order { return Order{Column: column, Desc: true} }

// Query narrows a Select. A zero Limit means no limit.
type Query struct {
	Filters []Filter
	Order   []Order
	Limit   int
}

var identifier = regexp.MustCompile(`^[a-z_][a-z0-9_]*$`)

// ValidIdentifier reports whether name is safe to splice into a query as a
// table or column name.
func ValidIdentifier(name string) bool {
	return identifier.MatchString(name)
}

// Validate checks every column the query references.
func (q Query) Validate() error {
	for _, f := range q.Filters {
		cols := f.Columns
		if f.Op != OpSearch {
			cols = []string{f.Column}
		}
		if len(cols) == 0 {
			return fmt.Errorf("filter %s has no columns", f.Op)
		}
		for _, c := range cols {
			if !ValidIdentifier(c) {
				return fmt.Errorf("invalid column %q", c)
			}
		}
		switch f.Op {
		case OpEq, OpNeq, OpIsNull, OpSearch:
		default:
			return fmt.Errorf("unsupported filter op %q", f.Op)
		}
	}
	for _, o := range q.Order {
		if !ValidIdentifier(o.Column) {
			return fmt.Errorf("invalid order column %q", o.Column)
		}
	}
	if q.Limit < 0 {
		return fmt.Errorf("negative limit %d", q.Limit)
	}
	return nil
}
