package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
)

// --- File queries ---

const fileCols = `id, path, language, module, hash, size, line_count, parse_errors, last_indexed`

func scanFile(scanner interface{ Scan(...any) error }) (*File, error) {
	f := &File{}
	var indexed sql.NullTime
	err := scanner.Scan(&f.ID, &f.Path, &f.Language, &f.Module, &f.Hash, &f.Size,
		&f.LineCount, &f.ParseErrors, &indexed)
	if err != nil {
		return nil, err
	}
	f.LastIndexed = indexed.Time
	return f, nil
}

// FileByPath returns the file at path, or nil when it is not indexed.
func (s *Store) FileByPath(ctx context.Context, path string) (*File, error) {
	f, err := scanFile(s.db.QueryRowContext(ctx, "SELECT "+fileCols+" FROM files WHERE path = ?", path))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("file by path: %w", err)
	}
	return f, nil
}

// Files returns every indexed file ordered by path.
func (s *Store) Files(ctx context.Context) ([]*File, error) {
	rows, err := s.db.QueryContext(ctx, "SELECT "+fileCols+" FROM files ORDER BY path")
	if err != nil {
		return nil, fmt.Errorf("files: %w", err)
	}
	defer rows.Close()
	var files []*File
	for rows.Next() {
		f, err := scanFile(rows)
		if err != nil {
			return nil, fmt.Errorf("scan file: %w", err)
		}
		files = append(files, f)
	}
	return files, rows.Err()
}

// FileHashes returns path to content hash for every indexed file.
func (s *Store) FileHashes(ctx context.Context) (map[string]string, error) {
	rows, err := s.db.QueryContext(ctx, "SELECT path, hash FROM files")
	if err != nil {
		return nil, fmt.Errorf("file hashes: %w", err)
	}
	defer rows.Close()
	out := make(map[string]string)
	for rows.Next() {
		var p, h string
		if err := rows.Scan(&p, &h); err != nil {
			return nil, fmt.Errorf("scan file hash: %w", err)
		}
		out[p] = h
	}
	return out, rows.Err()
}

// --- Symbol queries ---

const symbolCols = `s.id, s.file_id, f.path, s.name, s.qualified_name, s.kind, COALESCE(s.variant, ''),
	s.exported, COALESCE(s.parent, ''), s.start_byte, s.end_byte, s.start_line, s.end_line`

const symbolFrom = ` FROM symbols s JOIN files f ON f.id = s.file_id`

func scanSymbol(scanner interface{ Scan(...any) error }) (*Symbol, error) {
	sym := &Symbol{}
	err := scanner.Scan(&sym.ID, &sym.FileID, &sym.Path, &sym.Name, &sym.QualifiedName, &sym.Kind,
		&sym.Variant, &sym.Exported, &sym.Parent, &sym.StartByte, &sym.EndByte, &sym.StartLine, &sym.EndLine)
	if err != nil {
		return nil, err
	}
	return sym, nil
}

func (s *Store) querySymbols(ctx context.Context, where string, args ...any) ([]*Symbol, error) {
	rows, err := s.db.QueryContext(ctx, "SELECT "+symbolCols+symbolFrom+" WHERE "+where+" ORDER BY f.path, s.start_byte", args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var symbols []*Symbol
	for rows.Next() {
		sym, err := scanSymbol(rows)
		if err != nil {
			return nil, fmt.Errorf("scan symbol: %w", err)
		}
		symbols = append(symbols, sym)
	}
	return symbols, rows.Err()
}

func (s *Store) SymbolsByFile(ctx context.Context, path string) ([]*Symbol, error) {
	return s.querySymbols(ctx, "f.path = ?", path)
}

func (s *Store) SymbolsByName(ctx context.Context, name string) ([]*Symbol, error) {
	return s.querySymbols(ctx, "s.name = ? OR s.qualified_name = ?", name, name)
}

func (s *Store) SymbolsByKind(ctx context.Context, kind string) ([]*Symbol, error) {
	return s.querySymbols(ctx, "s.kind = ?", kind)
}

// --- Import queries ---

func (s *Store) ImportsByFile(ctx context.Context, path string) ([]*Import, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT i.id, i.file_id, i.module, COALESCE(i.imported_name, ''), COALESCE(i.local_alias, ''),
			COALESCE(i.resolved_path, ''), i.is_module, i.re_export, i.line
		 FROM imports i JOIN files f ON f.id = i.file_id
		 WHERE f.path = ? ORDER BY i.line, i.id`, path)
	if err != nil {
		return nil, fmt.Errorf("imports by file: %w", err)
	}
	defer rows.Close()
	var imports []*Import
	for rows.Next() {
		imp := &Import{}
		if err := rows.Scan(&imp.ID, &imp.FileID, &imp.Module, &imp.ImportedName, &imp.LocalAlias,
			&imp.ResolvedPath, &imp.IsModule, &imp.ReExport, &imp.Line); err != nil {
			return nil, fmt.Errorf("scan import: %w", err)
		}
		imports = append(imports, imp)
	}
	return imports, rows.Err()
}

// FilesImporting returns the files whose imports resolve into path.
func (s *Store) FilesImporting(ctx context.Context, path string) ([]string, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT DISTINCT f.path FROM imports i JOIN files f ON f.id = i.file_id
		 WHERE i.resolved_path = ? ORDER BY f.path`, path)
	if err != nil {
		return nil, fmt.Errorf("files importing: %w", err)
	}
	defer rows.Close()
	var out []string
	for rows.Next() {
		var p string
		if err := rows.Scan(&p); err != nil {
			return nil, fmt.Errorf("scan path: %w", err)
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

// --- Edge queries ---

const edgeCols = `id, from_path, from_name, to_path, to_name, COALESCE(via_name, ''), kind, site_start, site_end, line`

func (s *Store) queryEdges(ctx context.Context, where string, args ...any) ([]*Edge, error) {
	rows, err := s.db.QueryContext(ctx, "SELECT "+edgeCols+" FROM edges WHERE "+where+" ORDER BY from_path, site_start", args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var edges []*Edge
	for rows.Next() {
		e := &Edge{}
		if err := rows.Scan(&e.ID, &e.FromPath, &e.FromName, &e.ToPath, &e.ToName, &e.ViaName,
			&e.Kind, &e.SiteStart, &e.SiteEnd, &e.Line); err != nil {
			return nil, fmt.Errorf("scan edge: %w", err)
		}
		edges = append(edges, e)
	}
	return edges, rows.Err()
}

// EdgesFrom returns the edges leaving the symbol.
func (s *Store) EdgesFrom(ctx context.Context, path, name string) ([]*Edge, error) {
	return s.queryEdges(ctx, "from_path = ? AND from_name = ?", path, name)
}

// EdgesTo returns the edges entering the symbol.
func (s *Store) EdgesTo(ctx context.Context, path, name string) ([]*Edge, error) {
	return s.queryEdges(ctx, "to_path = ? AND to_name = ?", path, name)
}

// CountEdges returns the number of stored edges.
func (s *Store) CountEdges(ctx context.Context) (int, error) {
	var n int
	if err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM edges").Scan(&n); err != nil {
		return 0, fmt.Errorf("count edges: %w", err)
	}
	return n, nil
}

// --- Commit journal ---

// Commits returns the most recent journal entries, newest first. limit <= 0
// returns all.
func (s *Store) Commits(ctx context.Context, limit int) ([]*Commit, error) {
	query := "SELECT id, committed_at, files, relinked, paths FROM commits ORDER BY committed_at DESC"
	var args []any
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("commits: %w", err)
	}
	defer rows.Close()
	var out []*Commit
	for rows.Next() {
		c := &Commit{}
		var paths string
		if err := rows.Scan(&c.ID, &c.CommittedAt, &c.Files, &c.Relinked, &paths); err != nil {
			return nil, fmt.Errorf("scan commit: %w", err)
		}
		c.Paths = unmarshalStrings(paths)
		out = append(out, c)
	}
	return out, rows.Err()
}
