package sculpt

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/jward/sculpt/internal/graph"
	"github.com/jward/sculpt/internal/store"
)

// openIndex attaches the sqlite index at dbPath and brings it up to date
// with the scanned graph.
func (cb *Codebase) openIndex(ctx context.Context, dbPath string) error {
	if dir := filepath.Dir(dbPath); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("sculpt: index directory: %w", err)
		}
	}
	st, err := store.NewStore(dbPath)
	if err != nil {
		return fmt.Errorf("sculpt: index %s: %w", dbPath, err)
	}
	if err := st.Migrate(ctx); err != nil {
		st.Close()
		return fmt.Errorf("sculpt: index %s: %w", dbPath, err)
	}
	hashes, err := st.FileHashes(ctx)
	if err != nil {
		st.Close()
		return fmt.Errorf("sculpt: index %s: %w", dbPath, err)
	}

	var changed, removed []string
	for _, p := range cb.Files() {
		if hashes[p] != cb.files[p].hash {
			changed = append(changed, p)
		}
	}
	for p := range hashes {
		if _, ok := cb.files[p]; !ok {
			removed = append(removed, p)
		}
	}
	if err := st.CommitBatch(ctx, cb.indexBatch(changed, removed, cb.Files())); err != nil {
		st.Close()
		return fmt.Errorf("sculpt: index %s: %w", dbPath, err)
	}
	if err := st.SetMeta(ctx, "root", cb.root); err != nil {
		st.Close()
		return fmt.Errorf("sculpt: index %s: %w", dbPath, err)
	}
	cb.store = st
	cb.log.Info("index attached", "path", dbPath, "changed", len(changed), "removed", len(removed))
	return nil
}

// syncIndex records a successful commit in the index. The files on disk
// are already written, so failures are logged rather than returned.
func (cb *Codebase) syncIndex(ctx context.Context, res *CommitResult, changed, removed, relinked []string) {
	if cb.store == nil {
		return
	}
	if err := cb.store.CommitBatch(ctx, cb.indexBatch(changed, removed, relinked)); err != nil {
		cb.log.Warn("index not updated", "commit", res.ID, "err", err)
		return
	}
	paths := make([]string, 0, len(res.Files))
	for _, f := range res.Files {
		paths = append(paths, f.Path)
	}
	err := cb.store.RecordCommit(ctx, &store.Commit{
		ID:       res.ID,
		Files:    len(res.Files),
		Relinked: res.Relinked,
		Paths:    paths,
	})
	if err != nil {
		cb.log.Warn("commit not journaled", "commit", res.ID, "err", err)
	}
}

// Index returns the attached sqlite index, or nil.
func (cb *Codebase) Index() *store.Store { return cb.store }

func (cb *Codebase) indexBatch(files, removed, edgeSources []string) *store.Batch {
	b := &store.Batch{Removed: removed, EdgeSources: edgeSources}
	now := time.Now().UTC()
	for _, p := range files {
		fs, ok := cb.files[p]
		if !ok {
			continue
		}
		fi := fs.index
		snap := store.FileSnapshot{File: store.File{
			Path:        p,
			Language:    string(fs.lang),
			Module:      fi.Module,
			Hash:        fs.hash,
			Size:        len(fs.src),
			LineCount:   bytes.Count(fs.src, []byte("\n")) + 1,
			ParseErrors: len(fi.Errors),
			LastIndexed: now,
		}}
		for i := range fi.Decls {
			d := &fi.Decls[i]
			if spec := d.Import; spec != nil {
				imp := store.Import{
					Module:       spec.Module,
					ImportedName: spec.Name,
					LocalAlias:   spec.Alias,
					IsModule:     spec.IsModule,
					ReExport:     spec.ReExport,
					Line:         lineOf(fs.src, d.Span.Start),
				}
				if res, err := cb.resolver.Resolve(p, i); err == nil && !res.External {
					imp.ResolvedPath = res.File
				}
				snap.Imports = append(snap.Imports, imp)
			}
			sym := store.Symbol{
				Name:          d.Name,
				QualifiedName: d.QualifiedName,
				Kind:          d.Kind.String(),
				Variant:       d.Variant,
				Exported:      d.Exported,
				StartByte:     d.Span.Start,
				EndByte:       d.Span.End,
				StartLine:     lineOf(fs.src, d.Span.Start),
				EndLine:       lineOf(fs.src, d.Span.End),
			}
			if d.Parent >= 0 {
				sym.Parent = fi.Decls[d.Parent].QualifiedName
			}
			snap.Symbols = append(snap.Symbols, sym)
		}
		b.Files = append(b.Files, snap)
	}

	for _, p := range edgeSources {
		for _, id := range cb.graph.NodesInFile(p) {
			from, _ := cb.graph.Node(id)
			for _, e := range cb.graph.Dependencies(id, graph.AllKinds) {
				to, ok := cb.graph.Node(e.To)
				if !ok {
					continue
				}
				var via string
				if v, ok := cb.graph.Node(e.Via); ok && e.Via != 0 {
					via = v.QualifiedName
				}
				for _, s := range e.Sites {
					b.Edges = append(b.Edges, store.Edge{
						FromPath:  from.File,
						FromName:  from.QualifiedName,
						ToPath:    to.File,
						ToName:    to.QualifiedName,
						ViaName:   via,
						Kind:      e.Kind.String(),
						SiteStart: s.Start,
						SiteEnd:   s.End,
						Line:      cb.lineAt(s.File, s.Start),
					})
				}
			}
		}
	}
	return b
}

func (cb *Codebase) lineAt(p string, off int) int {
	if fs, ok := cb.files[p]; ok {
		return lineOf(fs.src, off)
	}
	return 0
}

// lineOf returns the 1-based line holding off.
func lineOf(src []byte, off int) int {
	off = min(max(off, 0), len(src))
	return bytes.Count(src[:off], []byte("\n")) + 1
}
