package sculpt

import (
	"bytes"
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/jward/sculpt/internal/parse"
	"github.com/jward/sculpt/internal/storage"
	"github.com/jward/sculpt/internal/txn"
)

// planned is one dirty file resolved to its post-commit content.
type planned struct {
	path   string
	data   []byte
	ops    []txn.Op
	status FileStatus
	write  int // index into the write batch, or -1
}

// Commit writes every pending edit to the backend and brings the graph up
// to date. Writes are all-or-nothing: on failure the files already written
// are restored, the graph is untouched, pending edits are kept, and the
// error wraps ErrCommitIO. Committing with nothing pending is a no-op.
//
// If the writes land but the written files cannot be reparsed, the pending
// edits are settled, since the backend already holds them, and the graph
// keeps its pre-commit state. The codebase then refuses further commits
// until it is reopened.
func (cb *Codebase) Commit(ctx context.Context) (*CommitResult, error) {
	start := time.Now()
	res := &CommitResult{ID: uuid.NewString()}
	if cb.stale != nil {
		return nil, fmt.Errorf("sculpt: commit: graph is behind the backend, reopen the codebase: %w", cb.stale)
	}
	dirty := cb.txn.Dirty()
	if len(dirty) == 0 {
		cb.log.Debug("empty commit", "commit", res.ID)
		return res, nil
	}

	plan, writes, err := cb.plan(dirty)
	if err != nil {
		return nil, err
	}

	results, err := storage.Flush(ctx, cb.backend, writes)
	if err != nil {
		for _, p := range plan {
			fr := FileResult{Path: p.path, Status: Unchanged}
			if p.write >= 0 {
				r := results[p.write]
				fr.Err = r.Err
				switch r.Status {
				case storage.Failed, storage.RollbackFailed:
					fr.Status = Failed
				case storage.RolledBack:
					fr.Status = RolledBack
				}
			}
			res.Files = append(res.Files, fr)
		}
		cb.log.Error("commit failed", "commit", res.ID, "files", len(writes), "err", err)
		return res, fmt.Errorf("sculpt: commit %s: %w", res.ID, err)
	}

	// The backend already holds the new content; finish the graph update
	// even if the caller gives up now.
	ictx := context.WithoutCancel(ctx)
	var changed, removed []string
	fileSetChanged := false
	for _, p := range plan {
		res.Files = append(res.Files, FileResult{Path: p.path, Status: p.status})
		switch p.status {
		case Deleted:
			removed = append(removed, p.path)
			fileSetChanged = true
		case Created:
			changed = append(changed, p.path)
			fileSetChanged = true
		case Written:
			changed = append(changed, p.path)
		}
	}

	states, err := cb.reparse(ictx, plan)
	if err != nil {
		cb.settle(dirty)
		cb.stale = err
		cb.log.Error("commit written but not reindexed", "commit", res.ID, "files", len(writes), "err", err)
		return res, fmt.Errorf("sculpt: commit %s: written but not reindexed: %w", res.ID, err)
	}

	affected := cb.resolver.Affected(append(append([]string(nil), changed...), removed...), fileSetChanged)
	for _, p := range removed {
		cb.resolver.RemoveFile(p)
		delete(cb.files, p)
	}
	for _, fs := range states {
		if _, ok := cb.files[fs.path]; ok {
			cb.resolver.RemoveFile(fs.path)
		}
		cb.files[fs.path] = fs
		cb.resolver.AddFile(fs.index)
	}
	relink := relinkSet(affected, changed, removed)
	cb.resolver.Link(relink)
	pruned := cb.graph.Prune()
	res.Relinked = len(relink)

	cb.settle(dirty)

	cb.syncIndex(ictx, res, changed, removed, relink)
	cb.log.Info("committed",
		"commit", res.ID,
		"files", len(res.Files),
		"relinked", res.Relinked,
		"pruned", pruned,
		"duration", time.Since(start))
	return res, nil
}

// settle drops the pending edits of the committed paths.
func (cb *Codebase) settle(dirty []string) {
	cb.txn.Settle(dirty...)
	for _, p := range dirty {
		delete(cb.created, p)
	}
	cb.resetEdits()
}

// plan computes the new content of every dirty path and the write batch
// that stores it.
func (cb *Codebase) plan(dirty []string) ([]planned, []storage.Write, error) {
	var plan []planned
	var writes []storage.Write
	for _, p := range dirty {
		pending, _ := cb.txn.Pending(p)
		src, _, ok := cb.content(p)
		_, existed := cb.files[p]
		item := planned{path: p, status: Unchanged, write: -1}
		switch {
		case !ok:
			// Created and removed within the same transaction.
		case pending.Removed:
			if existed {
				item.status = Deleted
				item.write = len(writes)
				writes = append(writes, storage.Write{Path: p, Delete: true, Original: src, Existed: true})
			}
		default:
			item.ops = pending.Ops()
			data, err := txn.Apply(src, item.ops)
			if err != nil {
				return nil, nil, fmt.Errorf("sculpt: %s: %w", p, err)
			}
			item.data = data
			if existed && bytes.Equal(data, src) {
				break
			}
			item.status = Written
			if !existed {
				item.status = Created
			}
			item.write = len(writes)
			writes = append(writes, storage.Write{Path: p, Data: data, Original: src, Existed: existed})
		}
		plan = append(plan, item)
	}
	return plan, writes, nil
}

// reparse parses the written files in parallel. Files that existed before
// are reparsed incrementally from their committed tree.
func (cb *Codebase) reparse(ctx context.Context, plan []planned) ([]*fileState, error) {
	var todo []planned
	for _, p := range plan {
		if p.status == Written || p.status == Created {
			todo = append(todo, p)
		}
	}
	states := make([]*fileState, len(todo))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(cb.workers)
	for i, p := range todo {
		var old *parse.Tree
		var edits []parse.Edit
		if fs, ok := cb.files[p.path]; ok {
			old = fs.tree
			edits = make([]parse.Edit, len(p.ops))
			for j, op := range p.ops {
				edits[j] = parse.Edit{Start: op.Start, End: op.End, Text: op.Text}
			}
		}
		g.Go(func() error {
			fs, err := cb.parseFile(gctx, p.path, p.data, old, edits)
			if err != nil {
				return err
			}
			states[i] = fs
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return states, nil
}

// relinkSet is affected plus changed, minus removed, sorted.
func relinkSet(affected, changed, removed []string) []string {
	set := make(map[string]bool, len(affected)+len(changed))
	for _, p := range affected {
		set[p] = true
	}
	for _, p := range changed {
		set[p] = true
	}
	for _, p := range removed {
		delete(set, p)
	}
	out := make([]string, 0, len(set))
	for p := range set {
		out = append(out, p)
	}
	sort.Strings(out)
	return out
}

// Reset discards every pending edit and file creation. Nodes read before
// Reset stay valid.
func (cb *Codebase) Reset() *ResetResult {
	paths := cb.txn.Reset()
	res := &ResetResult{}
	for _, p := range paths {
		res.Files = append(res.Files, FileResult{Path: p, Status: Discarded})
	}
	cb.created = make(map[string]parse.Language)
	cb.resetEdits()
	cb.log.Debug("reset", "files", len(paths))
	return res
}
