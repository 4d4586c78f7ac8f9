package database

import (
	"context"
	"fmt"
	"strings"

	"github.com/jmoiron/sqlx"
)

// statement is the Statement implementation for both backends.
type statement struct {
	ext   sqlx.ExtContext
	query string

	// lastInsertID reads the driver's LastInsertId after a write.
	lastInsertID bool

	// returning executes writes as queries so RETURNING rows can be read.
	returning bool
}

func (s *statement) Run(ctx context.Context, args ...any) (Result, error) {
	if s.returning {
		return s.runReturning(ctx, args)
	}

	res, err := s.ext.ExecContext(ctx, s.query, args...)
	if err != nil {
		return Result{}, fmt.Errorf("executing statement: %w", err)
	}

	var out Result
	if n, err := res.RowsAffected(); err == nil {
		out.Changes = n
	}
	if s.lastInsertID {
		if id, err := res.LastInsertId(); err == nil {
			out.LastInsertID = id
		}
	}
	return out, nil
}

// runReturning counts the returned rows and takes the first column of the
// first row as the inserted id.
func (s *statement) runReturning(ctx context.Context, args []any) (Result, error) {
	rows, err := s.ext.QueryxContext(ctx, s.query, args...)
	if err != nil {
		return Result{}, fmt.Errorf("executing statement: %w", err)
	}
	defer rows.Close()

	var out Result
	for rows.Next() {
		out.Changes++
		if out.Changes > 1 {
			continue
		}
		vals, err := rows.SliceScan()
		if err != nil {
			return Result{}, fmt.Errorf("scanning returned row: %w", err)
		}
		if len(vals) > 0 {
			out.LastInsertID = toInt64(vals[0])
		}
	}
	if err := rows.Err(); err != nil {
		return Result{}, fmt.Errorf("iterating returned rows: %w", err)
	}
	return out, nil
}

func (s *statement) Get(ctx context.Context, dest any, args ...any) error {
	if err := sqlx.GetContext(ctx, s.ext, dest, s.query, args...); err != nil {
		return fmt.Errorf("querying row: %w", err)
	}
	return nil
}

func (s *statement) All(ctx context.Context, dest any, args ...any) error {
	if err := sqlx.SelectContext(ctx, s.ext, dest, s.query, args...); err != nil {
		return fmt.Errorf("querying rows: %w", err)
	}
	return nil
}

// hasReturning reports whether query contains RETURNING as a keyword.
// String literals, quoted identifiers, comments and longer identifiers
// such as returning_user do not count.
func hasReturning(query string) bool {
	for i := 0; i < len(query); {
		c := query[i]
		switch {
		case c == '\'' || c == '"':
			i = skipQuoted(query, i, c)
		case c == '-' && strings.HasPrefix(query[i:], "--"):
			if j := strings.IndexByte(query[i:], '\n'); j >= 0 {
				i += j + 1
			} else {
				i = len(query)
			}
		case c == '/' && strings.HasPrefix(query[i:], "/*"):
			if j := strings.Index(query[i+2:], "*/"); j >= 0 {
				i += j + 4
			} else {
				i = len(query)
			}
		case isIdentByte(c):
			j := i
			for j < len(query) && isIdentByte(query[j]) {
				j++
			}
			if strings.EqualFold(query[i:j], "RETURNING") {
				return true
			}
			i = j
		default:
			i++
		}
	}
	return false
}

// skipQuoted returns the index just past the quoted section starting at
// start. A doubled quote character is an escaped quote.
func skipQuoted(query string, start int, quote byte) int {
	for i := start + 1; i < len(query); i++ {
		if query[i] != quote {
			continue
		}
		if i+1 < len(query) && query[i+1] == quote {
			i++
			continue
		}
		return i + 1
	}
	return len(query)
}

func isIdentByte(c byte) bool {
	return c == '_' || c == '$' || c >= 0x80 ||
		(c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z') || (c >= '0' && c <= '9')
}

func toInt64(v any) int64 {
	switch n := v.(type) {
	case int64:
		return n
	case int32:
		return int64(n)
	case int:
		return int64(n)
	default:
		return 0
	}
}
