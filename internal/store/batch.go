package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

// CommitBatch applies b within a single transaction. Order:
//  1. Removed files and the files being replaced (symbols and imports
//     cascade)
//  2. Files, then their symbols and imports
//  3. Outgoing edges of EdgeSources and Removed, then the new edges
func (s *Store) CommitBatch(ctx context.Context, b *Batch) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("commit batch: begin: %w", err)
	}
	defer tx.Rollback()

	stale := append([]string(nil), b.Removed...)
	for _, f := range b.Files {
		stale = append(stale, f.File.Path)
	}
	if err := deletePathsTx(ctx, tx, "DELETE FROM files WHERE path IN (%s)", stale); err != nil {
		return fmt.Errorf("commit batch: delete files: %w", err)
	}

	for i := range b.Files {
		snap := &b.Files[i]
		fileID, err := insertFileTx(ctx, tx, &snap.File)
		if err != nil {
			return fmt.Errorf("commit batch: file %s: %w", snap.File.Path, err)
		}
		for j := range snap.Symbols {
			snap.Symbols[j].FileID = fileID
			if _, err := insertSymbolTx(ctx, tx, &snap.Symbols[j]); err != nil {
				return fmt.Errorf("commit batch: symbol %q: %w", snap.Symbols[j].QualifiedName, err)
			}
		}
		for j := range snap.Imports {
			snap.Imports[j].FileID = fileID
			if _, err := insertImportTx(ctx, tx, &snap.Imports[j]); err != nil {
				return fmt.Errorf("commit batch: import %q: %w", snap.Imports[j].Module, err)
			}
		}
	}

	sources := append(append([]string(nil), b.EdgeSources...), b.Removed...)
	if err := deletePathsTx(ctx, tx, "DELETE FROM edges WHERE from_path IN (%s)", sources); err != nil {
		return fmt.Errorf("commit batch: delete edges: %w", err)
	}
	for i := range b.Edges {
		if _, err := insertEdgeTx(ctx, tx, &b.Edges[i]); err != nil {
			return fmt.Errorf("commit batch: edge %s -> %s: %w", b.Edges[i].FromName, b.Edges[i].ToName, err)
		}
	}
	return tx.Commit()
}

// deletePathsTx runs query, which holds one %s for the placeholder list,
// in chunks under SQLite's variable limit.
func deletePathsTx(ctx context.Context, tx *sql.Tx, query string, paths []string) error {
	const chunk = 500
	for len(paths) > 0 {
		n := min(len(paths), chunk)
		q := fmt.Sprintf(query, placeholderList(n))
		if _, err := tx.ExecContext(ctx, q, stringsToArgs(paths[:n])...); err != nil {
			return err
		}
		paths = paths[n:]
	}
	return nil
}

// RecordCommit appends c to the commit journal.
func (s *Store) RecordCommit(ctx context.Context, c *Commit) error {
	if c.CommittedAt.IsZero() {
		c.CommittedAt = time.Now().UTC()
	}
	_, err := s.db.ExecContext(ctx,
		"INSERT INTO commits (id, committed_at, files, relinked, paths) VALUES (?, ?, ?, ?, ?)",
		c.ID, c.CommittedAt, c.Files, c.Relinked, marshalStrings(c.Paths),
	)
	if err != nil {
		return fmt.Errorf("record commit %s: %w", c.ID, err)
	}
	return nil
}

// --- Transaction-scoped insert helpers ---

func insertFileTx(ctx context.Context, tx *sql.Tx, f *File) (int64, error) {
	res, err := tx.ExecContext(ctx,
		`INSERT INTO files (path, language, module, hash, size, line_count, parse_errors, last_indexed)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		f.Path, f.Language, f.Module, f.Hash, f.Size, f.LineCount, f.ParseErrors, f.LastIndexed,
	)
	if err != nil {
		return 0, err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, err
	}
	f.ID = id
	return id, nil
}

func insertSymbolTx(ctx context.Context, tx *sql.Tx, sym *Symbol) (int64, error) {
	res, err := tx.ExecContext(ctx,
		`INSERT INTO symbols (file_id, name, qualified_name, kind, variant, exported, parent,
			start_byte, end_byte, start_line, end_line)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		sym.FileID, sym.Name, sym.QualifiedName, sym.Kind, nullable(sym.Variant), sym.Exported,
		nullable(sym.Parent), sym.StartByte, sym.EndByte, sym.StartLine, sym.EndLine,
	)
	if err != nil {
		return 0, err
	}
	return res.LastInsertId()
}

func insertImportTx(ctx context.Context, tx *sql.Tx, imp *Import) (int64, error) {
	res, err := tx.ExecContext(ctx,
		`INSERT INTO imports (file_id, module, imported_name, local_alias, resolved_path, is_module, re_export, line)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		imp.FileID, imp.Module, nullable(imp.ImportedName), nullable(imp.LocalAlias),
		nullable(imp.ResolvedPath), imp.IsModule, imp.ReExport, imp.Line,
	)
	if err != nil {
		return 0, err
	}
	return res.LastInsertId()
}

func insertEdgeTx(ctx context.Context, tx *sql.Tx, e *Edge) (int64, error) {
	res, err := tx.ExecContext(ctx,
		`INSERT INTO edges (from_path, from_name, to_path, to_name, via_name, kind, site_start, site_end, line)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		e.FromPath, e.FromName, e.ToPath, e.ToName, nullable(e.ViaName), e.Kind,
		e.SiteStart, e.SiteEnd, e.Line,
	)
	if err != nil {
		return 0, err
	}
	return res.LastInsertId()
}
