package depoutput

import (
	"strings"
	"time"

	"github.com/aspiers/git-deps/internal/depengine"
	"github.com/aspiers/git-deps/internal/gitcore"
)

// CommitRecord is one commit's metadata as rendered into the dependency
// graph. Field names and shapes follow the JSON graph format's documented
// contract: the abbreviated sha1 is keyed `name`, author/committer emails
// are keyed `*_mail`, and `*_offset` is the signed minutes-east-of-UTC
// value a consumer would get from a Signature's own offset field, not a
// "+HHMM" display string.
type CommitRecord struct {
	SHA1            string   `json:"sha1"`
	Name            string   `json:"name"`
	Describe        string   `json:"describe"`
	Refs            []string `json:"refs"`
	AuthorName      string   `json:"author_name"`
	AuthorMail      string   `json:"author_mail"`
	AuthorTime      int64    `json:"author_time"`
	AuthorOffset    int      `json:"author_offset"`
	CommitterName   string   `json:"committer_name"`
	CommitterMail   string   `json:"committer_mail"`
	CommitterTime   int64    `json:"committer_time"`
	CommitterOffset int      `json:"committer_offset"`
	Title           string   `json:"title"`
	Separator       string   `json:"separator"`
	Body            string   `json:"body"`
	Explored        bool     `json:"explored"`
}

// DependencyRecord is one edge in the graph: parent is the dependent
// commit (the newer one), child is the commit it depends on.
type DependencyRecord struct {
	Parent string `json:"parent"`
	Child  string `json:"child"`
}

// RootInfo identifies the commit-ish the graph was built from.
type RootInfo struct {
	Commitish string `json:"commitish"`
	SHA1      string `json:"sha1"`
	Abbrev    string `json:"abbrev"`
}

// Graph is the full JSON document produced by JSONListener.
type Graph struct {
	Commits      []CommitRecord     `json:"commits"`
	Dependencies []DependencyRecord `json:"dependencies"`
	Root         *RootInfo          `json:"root,omitempty"`
}

// JSONListener accumulates a Graph from engine events, grounded on a
// JSON-serializing dependency-graph listener. Commits are recorded once,
// on first sighting, and finalized with Explored=true when the engine
// signals that a dependent's edges are complete.
type JSONListener struct {
	depengine.NoopListener

	repo *gitcore.Repository
	root *RootInfo

	order   []gitcore.Hash
	commits map[gitcore.Hash]*CommitRecord

	deps []DependencyRecord
	seen map[[2]gitcore.Hash]bool
}

// NewJSONListener returns a JSONListener bound to repo, used to resolve
// describe strings and ref annotations for each recorded commit.
func NewJSONListener(repo *gitcore.Repository) *JSONListener {
	return &JSONListener{
		repo:    repo,
		commits: make(map[gitcore.Hash]*CommitRecord),
		seen:    make(map[[2]gitcore.Hash]bool),
	}
}

// SetRoot records the resolved seed commit-ish for inclusion in Graph.
func (j *JSONListener) SetRoot(commitish string, sha1 gitcore.Hash) {
	j.root = &RootInfo{Commitish: commitish, SHA1: string(sha1), Abbrev: sha1.Short()}
}

// NewCommit implements depengine.Listener.
func (j *JSONListener) NewCommit(c *gitcore.Commit) {
	if _, ok := j.commits[c.ID]; ok {
		return
	}

	describe, _ := gitcore.Describe(j.repo, c.ID)
	refs := gitcore.RefsPointingAt(j.repo, c.ID)
	title, sep, body := SplitMessage(c.Message)

	rec := &CommitRecord{
		SHA1:            string(c.ID),
		Name:            c.ID.Short(),
		Describe:        describe,
		Refs:            refs,
		AuthorName:      c.Author.Name,
		AuthorMail:      c.Author.Email,
		AuthorTime:      c.Author.When.Unix(),
		AuthorOffset:    offsetMinutes(c.Author.When),
		CommitterName:   c.Committer.Name,
		CommitterMail:   c.Committer.Email,
		CommitterTime:   c.Committer.When.Unix(),
		CommitterOffset: offsetMinutes(c.Committer.When),
		Title:           title,
		Separator:       sep,
		Body:            body,
	}

	j.commits[c.ID] = rec
	j.order = append(j.order, c.ID)
}

// NewDependency implements depengine.Listener.
func (j *JSONListener) NewDependency(d, dep *gitcore.Commit, path string, line int) {
	key := [2]gitcore.Hash{d.ID, dep.ID}
	if j.seen[key] {
		return
	}
	j.seen[key] = true
	j.deps = append(j.deps, DependencyRecord{Parent: string(d.ID), Child: string(dep.ID)})
}

// DependentDone implements depengine.Listener.
func (j *JSONListener) DependentDone(d *gitcore.Commit, _ depengine.DependencyEdges) {
	if rec, ok := j.commits[d.ID]; ok {
		rec.Explored = true
	}
}

// Graph returns the accumulated graph, with commits in discovery order.
func (j *JSONListener) Graph() Graph {
	g := Graph{Dependencies: j.deps, Root: j.root}
	if g.Dependencies == nil {
		g.Dependencies = []DependencyRecord{}
	}
	g.Commits = make([]CommitRecord, 0, len(j.order))
	for _, id := range j.order {
		g.Commits = append(g.Commits, *j.commits[id])
	}
	return g
}

// SplitMessage breaks a commit message into its title line, the
// separator between title and body (empty when there is no body), and
// the body itself.
func SplitMessage(msg string) (title, separator, body string) {
	idx := strings.IndexByte(msg, '\n')
	if idx < 0 {
		return msg, "", ""
	}
	title = msg[:idx]
	rest := strings.TrimLeft(msg[idx+1:], "\n")
	if rest == "" {
		return title, "", ""
	}
	return title, "\n", rest
}

// offsetMinutes returns a time.Time's zone offset in signed minutes east of
// UTC, matching a Git Signature's own offset field.
func offsetMinutes(t time.Time) int {
	_, offset := t.Zone()
	return offset / 60
}
