package runtime

import (
	"context"
	"fmt"
	"strings"

	"github.com/risor-io/risor/object"

	"github.com/jward/sculpt/internal/store"
)

// symbols_by_name(name) → []map; matches plain or qualified names.
func makeSymbolsByNameFn(s *store.Store) *object.Builtin {
	return object.NewBuiltin("symbols_by_name", func(ctx context.Context, args ...object.Object) object.Object {
		if len(args) != 1 {
			return object.NewArgsError("symbols_by_name", 1, len(args))
		}
		name, err := toString(args[0])
		if err != nil {
			return object.Errorf("symbols_by_name: %v", err)
		}

		syms, err := s.SymbolsByName(ctx, name)
		if err != nil {
			return object.Errorf("symbols_by_name: %v", err)
		}
		return symbolsToList(syms)
	})
}

// symbols_by_file(path) → []map
func makeSymbolsByFileFn(s *store.Store) *object.Builtin {
	return object.NewBuiltin("symbols_by_file", func(ctx context.Context, args ...object.Object) object.Object {
		if len(args) != 1 {
			return object.NewArgsError("symbols_by_file", 1, len(args))
		}
		path, err := toString(args[0])
		if err != nil {
			return object.Errorf("symbols_by_file: %v", err)
		}

		syms, err := s.SymbolsByFile(ctx, path)
		if err != nil {
			return object.Errorf("symbols_by_file: %v", err)
		}
		return symbolsToList(syms)
	})
}

// edges_to(path, qualified_name) → []map
func makeEdgesToFn(s *store.Store) *object.Builtin {
	return object.NewBuiltin("edges_to", func(ctx context.Context, args ...object.Object) object.Object {
		if len(args) != 2 {
			return object.NewArgsError("edges_to", 2, len(args))
		}
		path, err := toString(args[0])
		if err != nil {
			return object.Errorf("edges_to: %v", err)
		}
		name, err := toString(args[1])
		if err != nil {
			return object.Errorf("edges_to: %v", err)
		}

		edges, err := s.EdgesTo(ctx, path, name)
		if err != nil {
			return object.Errorf("edges_to: %v", err)
		}
		results := make([]object.Object, 0, len(edges))
		for _, e := range edges {
			results = append(results, object.NewMap(map[string]object.Object{
				"from_path":  object.NewString(e.FromPath),
				"from_name":  object.NewString(e.FromName),
				"to_path":    object.NewString(e.ToPath),
				"to_name":    object.NewString(e.ToName),
				"via":        object.NewString(e.ViaName),
				"kind":       object.NewString(e.Kind),
				"site_start": object.NewInt(int64(e.SiteStart)),
				"site_end":   object.NewInt(int64(e.SiteEnd)),
				"line":       object.NewInt(int64(e.Line)),
			}))
		}
		return object.NewList(results)
	})
}

// commits(limit) → []map, newest first.
func makeCommitsFn(s *store.Store) *object.Builtin {
	return object.NewBuiltin("commits", func(ctx context.Context, args ...object.Object) object.Object {
		limit := int64(0)
		if len(args) > 1 {
			return object.NewArgsError("commits", 1, len(args))
		}
		if len(args) == 1 {
			n, err := toInt64(args[0])
			if err != nil {
				return object.Errorf("commits: %v", err)
			}
			limit = n
		}

		commits, err := s.Commits(ctx, int(limit))
		if err != nil {
			return object.Errorf("commits: %v", err)
		}
		results := make([]object.Object, 0, len(commits))
		for _, c := range commits {
			paths := make([]object.Object, len(c.Paths))
			for i, p := range c.Paths {
				paths[i] = object.NewString(p)
			}
			results = append(results, object.NewMap(map[string]object.Object{
				"id":           object.NewString(c.ID),
				"committed_at": object.NewString(c.CommittedAt.UTC().Format("2006-01-02T15:04:05Z")),
				"files":        object.NewInt(int64(c.Files)),
				"relinked":     object.NewInt(int64(c.Relinked)),
				"paths":        object.NewList(paths),
			}))
		}
		return object.NewList(results)
	})
}

// db_query(sql, args...) → []map. Only SELECT statements are allowed.
func makeDBQueryFn(s *store.Store) *object.Builtin {
	return object.NewBuiltin("db_query", func(ctx context.Context, args ...object.Object) object.Object {
		if len(args) < 1 {
			return object.Errorf("db_query: expected at least 1 argument (sql), got %d", len(args))
		}
		sqlStr, err := toString(args[0])
		if err != nil {
			return object.Errorf("db_query: %v", err)
		}

		trimmed := strings.TrimSpace(strings.ToUpper(sqlStr))
		if !strings.HasPrefix(trimmed, "SELECT") {
			return object.Errorf("db_query: only SELECT queries are allowed")
		}

		var queryArgs []any
		for _, arg := range args[1:] {
			switch v := arg.(type) {
			case *object.Int:
				queryArgs = append(queryArgs, v.Value())
			case *object.Float:
				queryArgs = append(queryArgs, v.Value())
			case *object.String:
				queryArgs = append(queryArgs, v.Value())
			case *object.Bool:
				queryArgs = append(queryArgs, v.Value())
			case *object.NilType:
				queryArgs = append(queryArgs, nil)
			default:
				queryArgs = append(queryArgs, fmt.Sprintf("%v", arg))
			}
		}

		rows, err := s.DB().QueryContext(ctx, sqlStr, queryArgs...)
		if err != nil {
			return object.Errorf("db_query: %v", err)
		}
		defer rows.Close()

		cols, err := rows.Columns()
		if err != nil {
			return object.Errorf("db_query: columns: %v", err)
		}

		results := []object.Object{}
		for rows.Next() {
			values := make([]any, len(cols))
			ptrs := make([]any, len(cols))
			for i := range values {
				ptrs[i] = &values[i]
			}
			if err := rows.Scan(ptrs...); err != nil {
				return object.Errorf("db_query: scan: %v", err)
			}
			row := make(map[string]object.Object, len(cols))
			for i, col := range cols {
				row[col] = sqlValueToObject(values[i])
			}
			results = append(results, object.NewMap(row))
		}
		if err := rows.Err(); err != nil {
			return object.Errorf("db_query: rows: %v", err)
		}
		return object.NewList(results)
	})
}

func toInt64(obj object.Object) (int64, error) {
	if i, ok := obj.(*object.Int); ok {
		return i.Value(), nil
	}
	if f, ok := obj.(*object.Float); ok {
		return int64(f.Value()), nil
	}
	return 0, fmt.Errorf("expected int, got %s", obj.Type())
}

func toString(obj object.Object) (string, error) {
	if s, ok := obj.(*object.String); ok {
		return s.Value(), nil
	}
	return "", fmt.Errorf("expected string, got %s", obj.Type())
}

// sqlValueToObject converts a database value to a Risor object.
func sqlValueToObject(v any) object.Object {
	if v == nil {
		return object.Nil
	}
	switch val := v.(type) {
	case int64:
		return object.NewInt(val)
	case float64:
		return object.NewFloat(val)
	case string:
		return object.NewString(val)
	case bool:
		return object.NewBool(val)
	case []byte:
		return object.NewString(string(val))
	default:
		return object.NewString(fmt.Sprintf("%v", val))
	}
}

// symbolsToList converts stored symbols to a Risor list of maps.
func symbolsToList(syms []*store.Symbol) object.Object {
	results := make([]object.Object, 0, len(syms))
	for _, sym := range syms {
		results = append(results, object.NewMap(map[string]object.Object{
			"id":             object.NewInt(sym.ID),
			"path":           object.NewString(sym.Path),
			"name":           object.NewString(sym.Name),
			"qualified_name": object.NewString(sym.QualifiedName),
			"kind":           object.NewString(sym.Kind),
			"variant":        object.NewString(sym.Variant),
			"exported":       object.NewBool(sym.Exported),
			"parent":         object.NewString(sym.Parent),
			"start_byte":     object.NewInt(int64(sym.StartByte)),
			"end_byte":       object.NewInt(int64(sym.EndByte)),
			"start_line":     object.NewInt(int64(sym.StartLine)),
			"end_line":       object.NewInt(int64(sym.EndLine)),
		}))
	}
	return object.NewList(results)
}
