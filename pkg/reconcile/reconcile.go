package reconcile

import (
	"context"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
)

// Scope is the universe a reconciliation runs over: a set of root paths
// (files or directories) and whether directories are walked recursively.
type Scope struct {
	Roots     []string
	Recursive bool
}

// Plan is the symmetric difference between what is on disk and what the
// store has recorded. ToProcess and ToRetire are always disjoint: a path
// that currently exists and is processable is never retired.
type Plan struct {
	ToProcess map[string]struct{}
	ToRetire  map[string]struct{}
}

// Classifier decides whether a path is eligible for processing.
type Classifier interface {
	ShouldProcess(path string) bool
}

// DocumentSource answers which paths the store has recorded under a root.
type DocumentSource interface {
	DocumentsUnder(ctx context.Context, base string, recursive bool) (map[string]struct{}, error)
}

type Reconciler struct {
	classifier Classifier
	store      DocumentSource
	logger     *slog.Logger
}

func New(classifier Classifier, store DocumentSource, logger *slog.Logger) *Reconciler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Reconciler{classifier: classifier, store: store, logger: logger}
}

// Plan computes the reconciliation plan for a scope. Everything currently
// present and classifiable goes to ToProcess, even if already recorded:
// staleness detection is the ingest action's job, and re-submission is cheap
// because ingest is idempotent. Retirement is conservative: only paths the
// store recorded that are provably gone from disk are retired.
//
// Failures local to one root (permission denied, root vanished) are logged
// and that root contributes nothing; other roots still reconcile.
func (r *Reconciler) Plan(ctx context.Context, scope Scope) Plan {
	current := make(map[string]struct{})
	previous := make(map[string]struct{})

	for _, root := range scope.Roots {
		root, err := filepath.Abs(root)
		if err != nil {
			r.logger.Warn("skipping root", "root", root, "error", err)
			continue
		}

		// A root that cannot be enumerated contributes to neither set. If its
		// recorded documents entered previous while current stayed empty, a
		// transient failure (unmounted share, permission change) would retire
		// the root's entire intact index.
		if err := r.enumerate(root, scope.Recursive, current); err != nil {
			r.logger.Warn("skipping unreadable root", "root", root, "error", err)
			continue
		}

		recorded, err := r.store.DocumentsUnder(ctx, root, scope.Recursive)
		if err != nil {
			r.logger.Warn("failed to query recorded documents", "root", root, "error", err)
			continue
		}
		for path := range recorded {
			previous[path] = struct{}{}
		}
	}

	toRetire := make(map[string]struct{})
	for path := range previous {
		if _, ok := current[path]; !ok {
			toRetire[path] = struct{}{}
		}
	}

	return Plan{ToProcess: current, ToRetire: toRetire}
}

// enumerate adds the processable regular files under root to out. A file
// root is a singleton candidate; a directory root contributes its immediate
// children or its full subtree depending on the recursion flag. Directories
// themselves are never candidates.
//
// A non-nil error means the root as a whole could not be enumerated and its
// contribution must be discarded. Failures on individual entries inside a
// readable root are logged and skipped, not returned.
func (r *Reconciler) enumerate(root string, recursive bool, out map[string]struct{}) error {
	info, err := os.Stat(root)
	if err != nil {
		return fmt.Errorf("failed to stat root: %w", err)
	}

	if !info.IsDir() {
		if r.classifier.ShouldProcess(root) {
			out[root] = struct{}{}
		}
		return nil
	}

	if !recursive {
		entries, err := os.ReadDir(root)
		if err != nil {
			return fmt.Errorf("failed to list root: %w", err)
		}
		for _, entry := range entries {
			if entry.IsDir() {
				continue
			}
			path := filepath.Join(root, entry.Name())
			if r.classifier.ShouldProcess(path) {
				out[path] = struct{}{}
			}
		}
		return nil
	}

	return filepath.WalkDir(root, func(path string, d fs.DirEntry, walkErr error) error {
		if walkErr != nil {
			if path == root {
				return fmt.Errorf("failed to walk root: %w", walkErr)
			}
			r.logger.Warn("skipping unreadable entry", "path", path, "error", walkErr)
			return nil
		}
		if d.IsDir() {
			return nil
		}
		if r.classifier.ShouldProcess(path) {
			out[path] = struct{}{}
		}
		return nil
	})
}
