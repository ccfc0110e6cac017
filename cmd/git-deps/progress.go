package main

import (
	"strings"
	"sync"

	"github.com/pterm/pterm"

	"github.com/aspiers/git-deps/internal/depengine"
	"github.com/aspiers/git-deps/internal/gitcore"
)

// TreeProgress renders the growing dependency graph as a live tree while
// recursive inference runs, redrawing in place via a pterm terminal area
// instead of scrolling a line per edge.
type TreeProgress struct {
	depengine.NoopListener

	mu       sync.Mutex
	area     *pterm.AreaPrinter
	root     gitcore.Hash
	labels   map[gitcore.Hash]string
	children map[gitcore.Hash][]gitcore.Hash
}

// NewTreeProgress starts a live pterm area and returns a listener that
// keeps it in sync with the engine's discoveries. root is the seed commit
// that anchors the tree.
func NewTreeProgress(root gitcore.Hash) *TreeProgress {
	area, _ := pterm.DefaultArea.WithCenter(false).Start()
	return &TreeProgress{
		area:     area,
		root:     root,
		labels:   make(map[gitcore.Hash]string),
		children: make(map[gitcore.Hash][]gitcore.Hash),
	}
}

// NewCommit implements depengine.Listener.
func (t *TreeProgress) NewCommit(c *gitcore.Commit) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if _, ok := t.labels[c.ID]; ok {
		return
	}
	t.labels[c.ID] = commitLabel(c)
	t.redraw()
}

// NewDependency implements depengine.Listener.
func (t *TreeProgress) NewDependency(d, dep *gitcore.Commit, path string, line int) {
	t.mu.Lock()
	defer t.mu.Unlock()
	for _, existing := range t.children[d.ID] {
		if existing == dep.ID {
			return
		}
	}
	t.children[d.ID] = append(t.children[d.ID], dep.ID)
	t.redraw()
}

// AllDone implements depengine.Listener, rendering a final frame and
// releasing the terminal area.
func (t *TreeProgress) AllDone() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.redraw()
	_ = t.area.Stop()
}

func commitLabel(c *gitcore.Commit) string {
	title := c.Message
	if idx := strings.IndexByte(title, '\n'); idx >= 0 {
		title = title[:idx]
	}
	return pterm.Gray(c.ID.Short()) + " " + title
}

// redraw rebuilds the pterm tree from current state. Callers must hold mu.
func (t *TreeProgress) redraw() {
	root := pterm.TreeNode{
		Text:     t.labelOrHash(t.root),
		Children: t.buildChildren(t.root, map[gitcore.Hash]bool{t.root: true}),
	}
	rendered, err := pterm.DefaultTree.WithRoot(root).Srender()
	if err != nil {
		return
	}
	t.area.Update(rendered)
}

func (t *TreeProgress) buildChildren(id gitcore.Hash, seen map[gitcore.Hash]bool) []pterm.TreeNode {
	var nodes []pterm.TreeNode
	for _, childID := range t.children[id] {
		if seen[childID] {
			continue
		}
		seen[childID] = true
		nodes = append(nodes, pterm.TreeNode{
			Text:     t.labelOrHash(childID),
			Children: t.buildChildren(childID, seen),
		})
	}
	return nodes
}

func (t *TreeProgress) labelOrHash(id gitcore.Hash) string {
	if label, ok := t.labels[id]; ok {
		return label
	}
	return id.Short()
}
