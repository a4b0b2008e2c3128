package storage

import (
	"context"
	"errors"
	"fmt"

	"github.com/minio/highwayhash"
)

// ErrCommitIO indicates that writing a commit batch to the backend failed.
var ErrCommitIO = errors.New("commit I/O failure")

// Write is one file of a commit batch.
type Write struct {
	Path   string
	Data   []byte
	Delete bool

	// Original is the committed content restored if the batch rolls back.
	// Existed is false for files the batch creates.
	Original []byte
	Existed  bool
}

// Status is the outcome of one Write.
type Status int

const (
	Skipped Status = iota
	Written
	Deleted
	Failed
	RolledBack
	RollbackFailed
)

func (s Status) String() string {
	switch s {
	case Written:
		return "written"
	case Deleted:
		return "deleted"
	case Failed:
		return "failed"
	case RolledBack:
		return "rolled-back"
	case RollbackFailed:
		return "rollback-failed"
	}
	return "skipped"
}

// Result reports what happened to one Write.
type Result struct {
	Path   string
	Status Status
	Err    error
}

// Flush applies writes in order. If any write fails, every write already
// applied is reverted to its Original content, the remaining writes are
// skipped, and the returned error wraps ErrCommitIO.
func Flush(ctx context.Context, b Backend, writes []Write) ([]Result, error) {
	results := make([]Result, len(writes))
	for i, w := range writes {
		results[i] = Result{Path: w.Path}
	}

	for i, w := range writes {
		var err error
		if w.Delete {
			err = b.Delete(ctx, w.Path)
		} else {
			err = b.Write(ctx, w.Path, w.Data)
		}
		if err == nil {
			if w.Delete {
				results[i].Status = Deleted
			} else {
				results[i].Status = Written
			}
			continue
		}

		results[i].Status = Failed
		results[i].Err = err
		for j := i - 1; j >= 0; j-- {
			if rbErr := revert(ctx, b, writes[j]); rbErr != nil {
				results[j].Status = RollbackFailed
				results[j].Err = rbErr
				continue
			}
			results[j].Status = RolledBack
		}
		return results, fmt.Errorf("storage: flushing %s: %w: %w", w.Path, ErrCommitIO, err)
	}
	return results, nil
}

func revert(ctx context.Context, b Backend, w Write) error {
	if !w.Existed {
		return b.Delete(ctx, w.Path)
	}
	return b.Write(ctx, w.Path, w.Original)
}

var hashKey = []byte("sculpt-content-hash-key-32-bytes")

// Hash returns a 64-bit keyed hash of data as 16 hex digits.
func Hash(data []byte) string {
	return fmt.Sprintf("%016x", highwayhash.Sum64(data, hashKey))
}
