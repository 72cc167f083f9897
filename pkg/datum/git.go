package datum

import (
	"context"
	"hash/fnv"
	"strings"

	"github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/storage/memory"
	"go.opentelemetry.io/otel/trace"

	"github.com/dpmerrell/dagger/pkg/tracing"
)

// Git is the revision datum variant: the pointer is a "url@revision"
// string naming a commit-ish in a git repository. Availability means the
// revision resolves against the remote; the clone is held in memory and
// never touches disk. Clearing drops the cached resolution.
//
// Useful for workflows whose external inputs are source trees rather
// than files the engine owns.
type Git struct {
	Base
	ctx context.Context

	// resolved is the commit hash of the last successful verification.
	resolved string
}

// NewGit returns an EMPTY revision handle.
// The context bounds any remote operations done during verification.
func NewGit(ctx context.Context) *Git {
	d := &Git{ctx: ctx}
	d.Base = NewBase(d)
	return d
}

// NewGitRev returns a handle pointed at "url@revision".
//
// Errors:
//
//    - dagger-error-invalid-format -- when the pointer is not of the form url@revision
func NewGitRev(ctx context.Context, urlAtRev string) (*Git, error) {
	d := NewGit(ctx)
	b, err := NewPopulatedBase(d, urlAtRev)
	if err != nil {
		return nil, err
	}
	d.Base = b
	return d, nil
}

func splitURLRev(pointer interface{}) (url, rev string, ok bool) {
	s, isStr := pointer.(string)
	if !isStr {
		return "", "", false
	}
	i := strings.LastIndex(s, "@")
	if i <= 0 || i == len(s)-1 {
		return "", "", false
	}
	return s[:i], s[i+1:], true
}

func (d *Git) ValidateFormat(pointer interface{}) bool {
	_, _, ok := splitURLRev(pointer)
	return ok
}

func (d *Git) VerifyAvailable(pointer interface{}) bool {
	url, rev, ok := splitURLRev(pointer)
	if !ok {
		return false
	}
	gitCtx, gitSpan := tracing.Start(d.ctx, "clone git repository",
		trace.WithAttributes(tracing.AttrFullExecNameGit))
	repo, gitErr := git.CloneContext(gitCtx, memory.NewStorage(), nil, &git.CloneOptions{
		URL: url,
	})
	tracing.EndWithStatus(gitSpan, gitErr)
	if gitErr != nil {
		return false
	}
	hashBytes, gitErr := repo.ResolveRevision(plumbing.Revision(rev))
	if gitErr != nil {
		return false
	}
	d.resolved = hashBytes.String()
	return true
}

func (d *Git) ClearLogic(pointer interface{}) error {
	d.resolved = ""
	return nil
}

func (d *Git) QuickhashLogic(pointer interface{}) uint64 {
	h := fnv.New64a()
	if s, ok := pointer.(string); ok {
		h.Write([]byte(s))
	}
	h.Write([]byte(d.resolved))
	return h.Sum64()
}

// Resolved returns the commit hash the revision resolved to at the last
// successful verification, or "" if never verified.
func (d *Git) Resolved() string {
	return d.resolved
}
