// Package resolve turns dyld-style dependency names (@rpath/, @loader_path/,
// @executable_path/, absolute or relative) into concrete filesystem paths.
package resolve

import (
	"os"
	"path/filepath"
	"strings"
)

const (
	rpathToken      = "@rpath"
	loaderToken     = "@loader_path"
	executableToken = "@executable_path"
)

// SystemPrefixes are the directories whose contents count as OS-owned.
var SystemPrefixes = []string{"/usr/lib", "/System/Library"}

// IsSystem reports whether path lies under a recognized system directory.
// It looks only at the path prefix; exclusion state is irrelevant here.
func IsSystem(path string) bool {
	for _, prefix := range SystemPrefixes {
		if strings.HasPrefix(path, prefix) {
			return true
		}
	}
	return false
}

// Context carries the inherited state that dyld path substitution depends
// on. Contexts cascade down the dependency tree: each recursive step derives
// a copy, never mutates a shared value, so sibling subtrees cannot
// contaminate each other.
type Context struct {
	// LoaderPath is the directory containing the binary that declared the
	// dependency currently being resolved.
	LoaderPath string

	// ExecutablePath is the directory containing the root executable of the
	// whole tree. Set once at the root and passed unchanged to every
	// descendant; empty when the tree does not start from an executable.
	ExecutablePath string

	// RpathStack is the ordered run-path list accumulated from the root down
	// to the current binary. Entries are appended, never removed; earlier
	// entries are tried first.
	RpathStack []string

	// Ancestry is the chain of node identifiers from the root down to the
	// current parent, used to build exclusion IDs and missing diagnostics.
	Ancestry []string
}

// WithRpaths returns a derived context whose rpath stack is the old stack
// plus the given resolved rpaths, in order. Duplicates are kept: earlier
// entries win anyway, so later repeats are harmless.
func (c Context) WithRpaths(rpaths []string) Context {
	stack := make([]string, 0, len(c.RpathStack)+len(rpaths))
	stack = append(stack, c.RpathStack...)
	stack = append(stack, rpaths...)
	c.RpathStack = stack
	return c
}

// WithAncestor returns a derived context whose ancestry chain ends with id.
func (c Context) WithAncestor(id string) Context {
	chain := make([]string, 0, len(c.Ancestry)+1)
	chain = append(chain, c.Ancestry...)
	chain = append(chain, id)
	c.Ancestry = chain
	return c
}

// ExclusionID joins the ancestry chain and the given identifier into the ID
// matched against exclusion patterns.
func (c Context) ExclusionID(id string) string {
	if len(c.Ancestry) == 0 {
		return id
	}
	return strings.Join(c.Ancestry, " : ") + " : " + id
}

// Resolver produces candidate paths for dependency names and picks the
// first that exists. Exists is the filesystem probe; it defaults to
// os.Stat and is injectable for tests.
type Resolver struct {
	Exists func(path string) bool
}

// New returns a Resolver probing the real filesystem.
func New() *Resolver {
	return &Resolver{Exists: fileExists}
}

func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

// Candidates returns the ordered list of absolute paths a name may resolve
// to under ctx. The list may be empty: @executable_path substitution with no
// executable path in context produces no candidate at all rather than a
// relative-path accident.
func (r *Resolver) Candidates(name string, ctx Context) []string {
	switch {
	case strings.HasPrefix(name, rpathToken+"/"):
		candidates := make([]string, 0, len(ctx.RpathStack))
		for _, rpath := range ctx.RpathStack {
			candidates = append(candidates, abs(rpath+name[len(rpathToken):]))
		}
		return candidates
	case strings.HasPrefix(name, loaderToken+"/"):
		return []string{abs(ctx.LoaderPath + name[len(loaderToken):])}
	case strings.HasPrefix(name, executableToken+"/"):
		if ctx.ExecutablePath == "" {
			return nil
		}
		return []string{abs(ctx.ExecutablePath + name[len(executableToken):])}
	case filepath.IsAbs(name):
		return []string{abs(name)}
	default:
		return []string{abs(filepath.Join(ctx.LoaderPath, name))}
	}
}

// Resolve returns the first existing candidate for name. When no candidate
// exists it returns the first candidate (or name itself if none could be
// formed) for diagnostics, with ok=false.
func (r *Resolver) Resolve(name string, ctx Context) (path string, ok bool) {
	candidates := r.Candidates(name, ctx)
	for _, candidate := range candidates {
		if r.Exists(candidate) {
			return candidate, true
		}
	}
	if len(candidates) > 0 {
		return candidates[0], false
	}
	return name, false
}

// Rpath resolves one LC_RPATH string declared by a binary. Loader and
// executable tokens are substituted against the declaring binary's own
// context so the stack carries only concrete directories; entries that still
// reference an absent executable path are kept verbatim, matching dyld's
// behavior of simply never finding anything under them.
func (r *Resolver) Rpath(raw string, ctx Context) string {
	path := raw
	if strings.Contains(path, loaderToken) {
		path = strings.ReplaceAll(path, loaderToken, ctx.LoaderPath)
	}
	if ctx.ExecutablePath != "" && strings.Contains(path, executableToken) {
		path = strings.ReplaceAll(path, executableToken, ctx.ExecutablePath)
	}
	return abs(path)
}

// abs cleans and absolutizes a path, leaving strings that still carry an
// unsubstituted @-token alone: anchoring those to the working directory
// would turn an unresolvable name into a relative-path accident.
func abs(path string) string {
	if strings.HasPrefix(path, "@") {
		return path
	}
	out, err := filepath.Abs(path)
	if err != nil {
		return filepath.Clean(path)
	}
	return out
}
