// Package depoutput provides the standard consumers of the dependency
// inference engine's event stream: a streaming text printer and a JSON
// graph builder for a force-directed front-end.
package depoutput

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/aspiers/git-deps/internal/depengine"
	"github.com/aspiers/git-deps/internal/gitcore"
)

// TextListener prints each discovered dependency as it is found: one
// identifier per line in non-recursive mode, "<dependent> <dependency>"
// pairs in recursive mode, optionally followed by the dependency's full
// commit log entry.
type TextListener struct {
	depengine.NoopListener

	w       io.Writer
	recurse bool
	withLog bool
}

// NewTextListener returns a TextListener writing to w. recurse selects
// the long-form vs pair-form output; withLog appends a full log entry
// after each reported dependency.
func NewTextListener(w io.Writer, recurse, withLog bool) *TextListener {
	return &TextListener{w: w, recurse: recurse, withLog: withLog}
}

// NewDependency implements depengine.Listener.
func (t *TextListener) NewDependency(d, dep *gitcore.Commit, path string, line int) {
	if t.recurse {
		fmt.Fprintf(t.w, "%s %s\n", d.ID, dep.ID)
	} else {
		fmt.Fprintf(t.w, "%s\n", dep.ID)
	}
	if t.withLog {
		fmt.Fprint(t.w, logEntry(dep))
	}
}

// logEntry renders a commit the way `git log -n1` does by default.
func logEntry(c *gitcore.Commit) string {
	var b strings.Builder
	fmt.Fprintf(&b, "commit %s\n", c.ID)
	fmt.Fprintf(&b, "Author: %s <%s>\n", c.Author.Name, c.Author.Email)
	fmt.Fprintf(&b, "Date:   %s\n\n", gitDateFormat(c.Author.When))
	for _, line := range strings.Split(c.Message, "\n") {
		fmt.Fprintf(&b, "    %s\n", line)
	}
	b.WriteByte('\n')
	return b.String()
}

// gitDateFormat formats a time.Time the way `git log` does by default.
func gitDateFormat(t time.Time) string {
	return t.Format("Mon Jan 2 15:04:05 2006 -0700")
}
