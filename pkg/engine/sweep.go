package engine

import (
	"context"

	"github.com/logsweep/logsweep/pkg/backend"
	"github.com/logsweep/logsweep/pkg/match"
	"github.com/logsweep/logsweep/pkg/report"
)

// dirNode tracks one directory's fate across the traverse and prune phases.
type dirNode struct {
	path       string
	isRoot     bool
	candidate  bool
	wouldPrune bool

	// survivors counts entries that outlive the sweep no matter what gets
	// pruned below them: skipped files, failed deletions, excluded or
	// unlistable subdirectories.
	survivors int
	children  []*dirNode
}

// sweep is the per-run traversal state. Traversal is strictly sequential.
type sweep struct {
	backend backend.Backend
	run     *report.Run
	matcher match.Set
	dryRun  bool

	// candidates holds every prunable directory in post-order, so children
	// always come up before their parent.
	candidates []*dirNode
}

// traverseRoots sweeps each root in turn. A failed root listing is recorded
// and the remaining roots still run; only fatal errors abort.
func (s *sweep) traverseRoots(ctx context.Context, roots []string) error {
	for _, root := range roots {
		node := &dirNode{path: root, isRoot: true}
		if err := s.walk(ctx, node); err != nil {
			return err
		}
	}
	return nil
}

// walk processes one directory depth-first: files before subdirectories,
// each in the backend's listing order.
func (s *sweep) walk(ctx context.Context, node *dirNode) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	entries, err := s.backend.List(ctx, node.path)
	if err != nil {
		s.run.RecordError(node.path, "list", err)
		if isRunFatal(err) {
			return err
		}
		// Unknown content; this directory survives and is never pruned.
		node.candidate = false
		return nil
	}

	for _, entry := range entries {
		if entry.Dir {
			continue
		}
		path := s.backend.Join(node.path, entry.Name)
		if pattern, ok := s.matcher.MatchFile(entry.Name); ok {
			s.run.RecordSkipFile(path, pattern)
			node.survivors++
			continue
		}
		if s.dryRun {
			s.run.RecordDelete(path)
			continue
		}
		if derr := s.backend.DeleteFile(ctx, path); derr != nil && !backend.IsNotFound(derr) {
			s.run.RecordError(path, "delete", derr)
			if isRunFatal(derr) {
				return derr
			}
			node.survivors++
			continue
		}
		s.run.RecordDelete(path)
	}

	for _, entry := range entries {
		if !entry.Dir {
			continue
		}
		path := s.backend.Join(node.path, entry.Name)
		if name, ok := s.matcher.MatchFolder(entry.Name); ok {
			s.run.RecordSkipDir(path, name)
			node.survivors++
			continue
		}

		child := &dirNode{path: path, candidate: true}
		if werr := s.walk(ctx, child); werr != nil {
			return werr
		}
		if !child.candidate {
			node.survivors++
			continue
		}
		node.children = append(node.children, child)
		s.candidates = append(s.candidates, child)
	}

	return nil
}

// prune removes the directories the sweep left empty, children before
// parents. Roots and excluded directories are never candidates. In dry-run
// mode nothing gets probed or removed; emptiness is derived from what the
// traversal predicted would survive.
func (s *sweep) prune(ctx context.Context) error {
	for _, d := range s.candidates {
		if err := ctx.Err(); err != nil {
			return err
		}

		if s.dryRun {
			remaining := d.survivors
			for _, c := range d.children {
				if !c.wouldPrune {
					remaining++
				}
			}
			if remaining == 0 {
				d.wouldPrune = true
				s.run.RecordPrune(d.path)
			}
			continue
		}

		empty, err := s.backend.IsEmpty(ctx, d.path)
		if err != nil {
			s.run.RecordError(d.path, "probe", err)
			if isRunFatal(err) {
				return err
			}
			continue
		}
		if !empty {
			continue
		}

		if rerr := s.backend.RemoveDir(ctx, d.path); rerr != nil {
			if backend.IsNotFound(rerr) {
				// Already gone; the outcome stands.
				s.run.RecordPrune(d.path)
				continue
			}
			s.run.RecordError(d.path, "prune", rerr)
			if isRunFatal(rerr) {
				return rerr
			}
			continue
		}
		s.run.RecordPrune(d.path)
	}
	return nil
}
