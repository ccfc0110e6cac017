package server

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"github.com/aspiers/git-deps/internal/gitcore"
)

// extractHashParam extracts and validates a hash parameter from the URL
// path, together with any path suffix following it (e.g. the "/file"
// segment of a commit-diff route). It performs method validation (GET
// only), path extraction, hash parsing, and repository retrieval from the
// request's session. If validation fails, appropriate HTTP errors are
// written to the ResponseWriter and ok is false.
func (s *Server) extractHashParam(w http.ResponseWriter, r *http.Request, prefix string) (hash gitcore.Hash, rest string, repo *gitcore.Repository, ok bool) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return "", "", nil, false
	}

	path := strings.TrimPrefix(r.URL.Path, prefix)
	if path == "" || path == r.URL.Path {
		http.Error(w, "Missing hash in path", http.StatusBadRequest)
		return "", "", nil, false
	}
	path = strings.TrimPrefix(path, "/")

	segment, rest, _ := strings.Cut(path, "/")

	parsed, err := gitcore.NewHash(segment)
	if err != nil {
		http.Error(w, fmt.Sprintf("Invalid hash format: %v", err), http.StatusBadRequest)
		return "", "", nil, false
	}

	session := sessionFromCtx(r.Context())
	if session == nil {
		http.Error(w, "No repository session available", http.StatusInternalServerError)
		return "", "", nil, false
	}

	repo = session.Repo()
	if repo == nil {
		http.Error(w, "Repository not available", http.StatusInternalServerError)
		return "", "", nil, false
	}

	return parsed, rest, repo, true
}

// handleRepository serves repository metadata via REST API.
// Used for initial page load and debugging.
func (s *Server) handleRepository(w http.ResponseWriter, r *http.Request) {
	session := sessionFromCtx(r.Context())
	if session == nil {
		http.Error(w, "No repository session available", http.StatusInternalServerError)
		return
	}
	repo := session.Repo()

	currentBranch := ""
	headRef := repo.HeadRef()
	if headRef != "" {
		if name, ok := strings.CutPrefix(headRef, "refs/heads/"); ok {
			currentBranch = name
		}
	}

	branches := repo.Branches()
	tagNames := repo.TagNames()

	response := map[string]any{
		"name":          repo.Name(),
		"gitDir":        repo.GitDir(),
		"currentBranch": currentBranch,
		"headDetached":  repo.HeadDetached(),
		"headHash":      repo.Head(),
		"commitCount":   len(repo.Commits()),
		"branchCount":   len(branches),
		"tagCount":      len(tagNames),
		"tags":          tagNames,
		"description":   repo.Description(),
		"remotes":       repo.Remotes(),
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(response); err != nil {
		http.Error(w, "Failed to encode response", http.StatusInternalServerError)
	}
}

// handleConfig serves server capability flags consumed by the front-end on
// startup: whether this session is a single local repository or a
// multi-repo SaaS deployment, and the build version.
func (s *Server) handleConfig(w http.ResponseWriter, _ *http.Request) {
	response := map[string]any{
		"mode":    map[Mode]string{ModeLocal: "local", ModeSaaS: "saas"}[s.mode],
		"version": Version,
	}
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(response); err != nil {
		http.Error(w, "Failed to encode response", http.StatusInternalServerError)
	}
}

// handleTree serves tree object data via REST API.
func (s *Server) handleTree(w http.ResponseWriter, r *http.Request) {
	treeHash, _, repo, ok := s.extractHashParam(w, r, "/api/tree/")
	if !ok {
		return
	}

	tree, err := repo.GetTree(treeHash)
	if err != nil {
		http.Error(w, fmt.Sprintf("Failed to load tree: %v", err), http.StatusNotFound)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(tree); err != nil {
		http.Error(w, "Failed to encode response", http.StatusInternalServerError)
	}
}

// handleBlob serves raw blob content via REST API.
func (s *Server) handleBlob(w http.ResponseWriter, r *http.Request) {
	blobHash, _, repo, ok := s.extractHashParam(w, r, "/api/blob/")
	if !ok {
		return
	}

	content, err := repo.GetBlob(blobHash)
	if err != nil {
		http.Error(w, fmt.Sprintf("Failed to load blob: %v", err), http.StatusNotFound)
		return
	}

	isBinary := isBinaryContent(content)

	w.Header().Set("Content-Type", "application/json")
	response := map[string]any{
		"hash":      string(blobHash),
		"size":      len(content),
		"binary":    isBinary,
		"truncated": false,
	}

	if isBinary {
		response["content"] = ""
	} else {
		maxSize := 512 * 1024
		text := string(content)
		if len(text) > maxSize {
			text = text[:maxSize]
			response["truncated"] = true
		}
		response["content"] = text
	}

	if err := json.NewEncoder(w).Encode(response); err != nil {
		http.Error(w, "Failed to encode response", http.StatusInternalServerError)
	}
}

// isBinaryContent checks if content appears to be binary by looking for null bytes
// in the first 8KB. This matches Git's heuristic for binary detection.
func isBinaryContent(content []byte) bool {
	checkSize := min(8192, len(content))
	for i := range checkSize {
		if content[i] == 0 {
			return true
		}
	}
	return false
}

// handleTreeBlame serves per-file blame information for a directory at a given commit.
// Path format: /api/tree/blame/{commitHash}?path={dirPath}
// Returns a map of entry names to BlameEntry structs with last-modifying commit info.
func (s *Server) handleTreeBlame(w http.ResponseWriter, r *http.Request) {
	commitHash, _, repo, ok := s.extractHashParam(w, r, "/api/tree/blame/")
	if !ok {
		return
	}

	dirPath := r.URL.Query().Get("path")

	sanitized, err := sanitizePath(dirPath)
	if err != nil {
		http.Error(w, fmt.Sprintf("Invalid path: %v", err), http.StatusBadRequest)
		return
	}
	dirPath = sanitized

	session := sessionFromCtx(r.Context())
	cacheKey := string(commitHash) + ":" + dirPath

	if cached, ok := session.blameCache.Load(cacheKey); ok {
		w.Header().Set("Content-Type", "application/json")
		response := map[string]any{"entries": cached}
		if err := json.NewEncoder(w).Encode(response); err != nil {
			http.Error(w, "Failed to encode response", http.StatusInternalServerError)
		}
		return
	}

	blame, err := repo.GetFileBlame(commitHash, dirPath)
	if err != nil {
		http.Error(w, fmt.Sprintf("Failed to compute blame: %v", err), http.StatusNotFound)
		return
	}

	session.blameCache.Store(cacheKey, blame)

	w.Header().Set("Content-Type", "application/json")
	response := map[string]any{"entries": blame}
	if err := json.NewEncoder(w).Encode(response); err != nil {
		http.Error(w, "Failed to encode response", http.StatusInternalServerError)
	}
}

// handleCommitDiff serves the full diff for a commit, or a single file's
// diff when a "/file" suffix with a ?path= query parameter is present.
// Path formats:
//
//	/api/commit/diff/{commitHash}
//	/api/commit/diff/{commitHash}/file?path={filePath}
func (s *Server) handleCommitDiff(w http.ResponseWriter, r *http.Request) {
	commitHash, rest, repo, ok := s.extractHashParam(w, r, "/api/commit/diff/")
	if !ok {
		return
	}

	var sanitized string
	if rest == "file" {
		filePath := r.URL.Query().Get("path")
		if filePath == "" {
			http.Error(w, "Missing path query parameter", http.StatusBadRequest)
			return
		}
		var err error
		sanitized, err = sanitizePath(filePath)
		if err != nil || sanitized == "" {
			http.Error(w, "Invalid path parameter", http.StatusBadRequest)
			return
		}
	}

	commit, err := repo.GetCommit(commitHash)
	if err != nil {
		http.Error(w, fmt.Sprintf("Failed to load commit: %v", err), http.StatusNotFound)
		return
	}

	var oldTree gitcore.Hash
	if len(commit.Parents) > 0 {
		parent, err := repo.GetCommit(commit.Parents[0])
		if err != nil {
			http.Error(w, fmt.Sprintf("Failed to load parent commit: %v", err), http.StatusNotFound)
			return
		}
		oldTree = parent.Tree
	}

	if rest == "file" {
		entries, err := gitcore.TreeDiff(repo, oldTree, commit.Tree, "")
		if err != nil {
			http.Error(w, fmt.Sprintf("Failed to diff trees: %v", err), http.StatusInternalServerError)
			return
		}

		var target *gitcore.DiffEntry
		for i := range entries {
			if entries[i].Path == sanitized {
				target = &entries[i]
				break
			}
		}
		if target == nil {
			http.Error(w, "File not changed in this commit", http.StatusNotFound)
			return
		}

		fd, err := gitcore.ComputeFileDiff(repo, target.OldHash, target.NewHash, target.Path, 3)
		if err != nil {
			http.Error(w, fmt.Sprintf("Failed to compute file diff: %v", err), http.StatusInternalServerError)
			return
		}

		w.Header().Set("Content-Type", "application/json")
		if err := json.NewEncoder(w).Encode(fd); err != nil {
			http.Error(w, "Failed to encode response", http.StatusInternalServerError)
		}
		return
	}

	entries, err := gitcore.TreeDiff(repo, oldTree, commit.Tree, "")
	if err != nil {
		http.Error(w, fmt.Sprintf("Failed to diff trees: %v", err), http.StatusInternalServerError)
		return
	}

	stats := gitcore.DiffStats{FilesChanged: len(entries)}
	result := gitcore.CommitDiff{CommitHash: commitHash, Entries: entries, Stats: stats}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(result); err != nil {
		http.Error(w, "Failed to encode response", http.StatusInternalServerError)
	}
}

// handleWorkingTreeDiff serves the diff between the working tree and HEAD
// for a single tracked file. Path format: /api/working-tree/diff?path={filePath}
func (s *Server) handleWorkingTreeDiff(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	filePath := r.URL.Query().Get("path")
	sanitized, err := sanitizePath(filePath)
	if err != nil || sanitized == "" {
		http.Error(w, "Invalid path parameter", http.StatusBadRequest)
		return
	}

	session := sessionFromCtx(r.Context())
	if session == nil {
		http.Error(w, "No repository session available", http.StatusInternalServerError)
		return
	}
	repo := session.Repo()

	fd, err := gitcore.ComputeWorkingTreeFileDiff(repo, sanitized, 3)
	if err != nil {
		http.Error(w, fmt.Sprintf("Failed to compute working tree diff: %v", err), http.StatusNotFound)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(fd); err != nil {
		http.Error(w, "Failed to encode response", http.StatusInternalServerError)
	}
}
