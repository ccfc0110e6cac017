package gitcore

import (
	"fmt"
	"strings"
)

// splitPath splits a git-style (always forward-slash) path into its
// directory and base name. A path with no slash has an empty directory.
func splitPath(p string) (dir, base string) {
	idx := strings.LastIndex(p, "/")
	if idx < 0 {
		return "", p
	}
	return p[:idx], p[idx+1:]
}

// lookupBlob resolves path against rootTreeHash and returns the blob hash
// for the file at that path, or ok=false if any path segment is missing or
// the final entry is not a blob.
func lookupBlob(repo *Repository, rootTreeHash Hash, path string) (hash Hash, ok bool, err error) {
	dir, base := splitPath(path)
	tree, terr := repo.resolveTreeAtPath(rootTreeHash, dir)
	if terr != nil {
		return "", false, nil //nolint:nilerr // missing path is a normal "not found", not a failure
	}
	for _, entry := range tree.Entries {
		if entry.Name == base {
			if isTreeEntry(entry) {
				return "", false, nil
			}
			return entry.ID, true, nil
		}
	}
	return "", false, nil
}

// findBlobPath searches treeHash recursively for a blob entry matching
// target, returning its full slash-joined path. Used to resolve simple
// (content-identical) renames during blame's backward walk: if a path
// vanishes from a commit's parent, its content may simply have moved.
func findBlobPath(repo *Repository, treeHash Hash, target Hash) (string, bool, error) {
	tree, err := repo.GetTree(treeHash)
	if err != nil {
		return "", false, err
	}
	for _, entry := range tree.Entries {
		if isTreeEntry(entry) {
			sub, ok, err := findBlobPath(repo, entry.ID, target)
			if err != nil {
				return "", false, err
			}
			if ok {
				return entry.Name + "/" + sub, true, nil
			}
			continue
		}
		if entry.ID == target {
			return entry.Name, true, nil
		}
	}
	return "", false, nil
}

// PathExists reports whether path exists as a blob in commit's tree. This
// gates blame: if the parent side of a hunk lacks the path (e.g. a new
// directory introduced in the child), no blame is run and the hunk
// contributes no dependencies.
func PathExists(repo *Repository, commit Hash, path string) bool {
	c, err := repo.GetCommit(commit)
	if err != nil {
		return false
	}
	_, ok, err := lookupBlob(repo, c.Tree, path)
	return err == nil && ok
}

// BlameLines attributes each line in the half-open range
// [startLine, startLine+lineCount) of path, as it exists at commit, to the
// most recent commit that introduced it. Line numbers are 1-based and refer
// to commit's own snapshot of path; the returned map's keys always stay in
// that coordinate space even as the walk moves through older ancestors.
//
// The walk follows first-parent history only: blame is always invoked by
// the inference engine against one specific parent of a diff pair, never
// against a merge commit directly, so first-parent ancestry already yields
// porcelain-equivalent attribution for that case.
//
// Simple renames are followed the way porcelain blame's default -M does:
// when path is missing from a parent's tree but that parent still holds a
// blob with the exact content the walk is currently tracking, the walk
// continues under that blob's path instead of attributing every open line
// to the rename commit itself.
func BlameLines(repo *Repository, commit Hash, path string, startLine, lineCount int) (map[int]Hash, error) {
	result := make(map[int]Hash)
	if lineCount <= 0 {
		return result, nil
	}

	// origToCurrent maps an original line number (in commit's snapshot) to
	// its line number in the snapshot currently under examination (cur).
	origToCurrent := make(map[int]int, lineCount)
	for ln := startLine; ln < startLine+lineCount; ln++ {
		origToCurrent[ln] = ln
	}

	cur := commit
	for len(origToCurrent) > 0 {
		c, err := repo.GetCommit(cur)
		if err != nil {
			return nil, fmt.Errorf("blame %s: %w", path, err)
		}

		blobHash, ok, err := lookupBlob(repo, c.Tree, path)
		if err != nil {
			return nil, fmt.Errorf("blame %s at %s: %w", path, cur.Short(), err)
		}
		if !ok {
			// Path vanished; attribute everything still open to this commit.
			for orig := range origToCurrent {
				result[orig] = cur
			}
			break
		}

		content, err := repo.GetBlob(blobHash)
		if err != nil {
			return nil, fmt.Errorf("blame %s at %s: %w", path, cur.Short(), err)
		}
		curLines := splitLines(content)

		if len(c.Parents) == 0 {
			for orig := range origToCurrent {
				result[orig] = cur
			}
			break
		}

		parent := c.Parents[0]
		pc, err := repo.GetCommit(parent)
		if err != nil {
			for orig := range origToCurrent {
				result[orig] = cur
			}
			break
		}

		var parentLines []string
		pBlobHash, pOk, err := lookupBlob(repo, pc.Tree, path)
		if err != nil {
			return nil, fmt.Errorf("blame %s at %s: %w", path, parent.Short(), err)
		}
		if pOk {
			parentContent, err := repo.GetBlob(pBlobHash)
			if err != nil {
				return nil, fmt.Errorf("blame %s at %s: %w", path, parent.Short(), err)
			}
			parentLines = splitLines(parentContent)
		} else if renamedFrom, found, rerr := findBlobPath(repo, pc.Tree, blobHash); rerr != nil {
			return nil, fmt.Errorf("blame %s at %s: %w", path, parent.Short(), rerr)
		} else if found {
			// c is a pure rename of renamedFrom (content unchanged): keep
			// tracking the same blob content under its pre-rename path.
			parentLines = curLines
			path = renamedFrom
		}

		edits := computeEdits(parentLines, curLines)
		keptFrom := make(map[int]int, len(edits))
		for _, e := range edits {
			if e.Type == editKeep {
				keptFrom[e.NewLine+1] = e.OldLine + 1
			}
		}

		next := make(map[int]int, len(origToCurrent))
		for orig, curLn := range origToCurrent {
			if oldLn, kept := keptFrom[curLn]; kept {
				next[orig] = oldLn
				continue
			}
			// Line has no unchanged ancestor in parent: cur introduced it.
			result[orig] = cur
		}

		if len(next) == 0 {
			break
		}
		origToCurrent = next
		cur = parent
	}

	return result, nil
}
