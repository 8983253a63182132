// Package walk drives the recursive dependency-graph traversal: it resolves
// each binary's dynamic-library load commands through the path resolver,
// consults the exclusion policy with ancestry-qualified IDs, and populates a
// deduplicating node cache that turns the walk into a bounded DAG.
package walk

import (
	"path/filepath"

	"github.com/apex/log"

	"github.com/macho-tools/machoscan/internal/exclude"
	"github.com/macho-tools/machoscan/internal/macho"
	"github.com/macho-tools/machoscan/internal/model"
	"github.com/macho-tools/machoscan/internal/resolve"
)

// Parser supplies per-architecture load-command facts for a binary.
type Parser interface {
	Parse(path string) (*macho.Info, error)
}

// ParserFunc adapts a function to the Parser interface.
type ParserFunc func(path string) (*macho.Info, error)

// Parse implements Parser.
func (f ParserFunc) Parse(path string) (*macho.Info, error) { return f(path) }

// Options configures a Walker. Zero-value fields get working defaults: the
// real Mach-O parser, the real filesystem resolver, an empty exclusion list.
type Options struct {
	Parser       Parser
	Exclusions   *exclude.List
	Resolver     *resolve.Resolver
	IgnoreSystem bool
}

// Walker expands root binaries into their full dependency closure. It is
// not itself concurrent; the cache it populates is safe to share.
type Walker struct {
	parser       Parser
	exclusions   *exclude.List
	resolver     *resolve.Resolver
	ignoreSystem bool

	cache *Cache
	roots []*model.Node
}

// New returns a Walker over a fresh cache.
func New(opts Options) *Walker {
	w := &Walker{
		parser:       opts.Parser,
		exclusions:   opts.Exclusions,
		resolver:     opts.Resolver,
		ignoreSystem: opts.IgnoreSystem,
		cache:        NewCache(),
	}
	if w.parser == nil {
		w.parser = ParserFunc(macho.Parse)
	}
	if w.resolver == nil {
		w.resolver = resolve.New()
	}
	return w
}

// Cache returns the shared node cache. Read-only once all roots are visited.
func (w *Walker) Cache() *Cache { return w.cache }

// Roots returns the root nodes in visit order.
func (w *Walker) Roots() []*model.Node {
	out := make([]*model.Node, len(w.roots))
	copy(out, w.roots)
	return out
}

// VisitRoot expands one explicitly supplied input binary and everything
// reachable from it. A root that was already reached as a dependency of an
// earlier root is promoted in place; its subtree is not re-expanded.
func (w *Walker) VisitRoot(path, packageName string) *model.Node {
	abs, err := filepath.Abs(path)
	if err != nil {
		abs = filepath.Clean(path)
	}

	node, created := w.cache.GetOrCreate(model.Key(abs, ""), func() *model.Node {
		return &model.Node{Path: abs, Package: packageName, Root: true}
	})
	if !created {
		if !node.Root {
			node.Root = true
			w.roots = append(w.roots, node)
		}
		if node.Package == "" {
			node.Package = packageName
		}
		return node
	}
	w.roots = append(w.roots, node)

	// Roots are matched against the policy by bare path; an excluded root is
	// still expanded and reported, it just cannot fail the audit.
	node.ExclusionID = abs
	if pattern, ok := w.exclusions.Match(abs); ok {
		node.Excluded = true
		node.Pattern = pattern
	}

	w.expand(node, resolve.Context{}.WithAncestor(abs))
	return node
}

// expand populates node from its binary: one ArchView per contained
// architecture that the node's restriction admits, with every dependency
// resolved and either recursed into or recorded as missing/excluded.
// Called exactly once per node lifetime, which is what makes self-references
// and cycles terminate: a re-encountered key is a cache hit, never a second
// expansion.
func (w *Walker) expand(node *model.Node, ctx resolve.Context) {
	node.ParentRpathStack = snapshot(ctx.RpathStack)
	node.ExecutablePath = ctx.ExecutablePath
	node.Arch = make(map[string]*model.ArchView)
	node.System = resolve.IsSystem(node.Path)
	node.Exists = w.resolver.Exists(node.Path)
	if !node.Exists {
		return
	}

	info, err := w.parser.Parse(node.Path)
	if err != nil {
		log.WithError(err).Warnf("not a Mach-O binary: %s", node.Path)
		return
	}
	node.Parsed = true
	node.LoaderPath = filepath.Dir(node.Path)
	ctx.LoaderPath = node.LoaderPath

	// The first executable image anchors @executable_path for its whole
	// subtree; descendants inherit it unchanged.
	if ctx.ExecutablePath == "" && info.HasExecutable() {
		ctx.ExecutablePath = node.LoaderPath
		node.ExecutablePath = ctx.ExecutablePath
	}

	for _, arch := range info.Arches {
		if node.RestrictArch != "" && arch.Name != node.RestrictArch {
			continue
		}
		w.expandArch(node, arch, ctx)
	}
}

func (w *Walker) expandArch(node *model.Node, arch macho.Arch, ctx resolve.Context) {
	view := &model.ArchView{
		Name:         arch.Name,
		Rpaths:       []string{},
		Dependencies: []*model.Edge{},
	}
	node.Arch[arch.Name] = view

	// This binary's own rpaths resolve against its own loader path and the
	// inherited executable path, then cascade: the child stack is the parent
	// stack plus these, order preserved, earliest entries tried first.
	resolved := make([]string, 0, len(arch.Rpaths))
	for _, raw := range arch.Rpaths {
		resolved = append(resolved, w.resolver.Rpath(raw, ctx))
	}
	view.Rpaths = append(view.Rpaths, resolved...)
	archCtx := ctx.WithRpaths(resolved)

	for _, dep := range arch.Dependencies {
		edge := &model.Edge{
			Name:             dep.Name,
			ParentRpathStack: snapshot(archCtx.RpathStack),
			ExecutablePath:   archCtx.ExecutablePath,
		}
		view.Dependencies = append(view.Dependencies, edge)

		candidate, found := w.resolver.Resolve(dep.Name, archCtx)
		ident := dep.Name
		if found {
			edge.Path = candidate
			edge.RestrictArch = arch.Name
			ident = candidate
		}
		edge.System = resolve.IsSystem(ident)

		// Exclusion is a property of the edge and its ancestry, not of the
		// target: another parent reaching the same binary is evaluated
		// against the policy independently.
		edge.ExclusionID = archCtx.ExclusionID(ident)
		if pattern, ok := w.exclusions.Match(edge.ExclusionID); ok {
			edge.Excluded = true
			edge.Pattern = pattern
			continue
		}

		// Unresolved nodes keep the raw name as their path: the report
		// document has no embedded relations, so a consumer matches an edge's
		// path or name against node paths, and the raw name is the only
		// identifier both sides share.
		target, created := w.cache.GetOrCreate(model.Key(ident, arch.Name), func() *model.Node {
			return &model.Node{
				Path:         ident,
				RestrictArch: arch.Name,
				ExclusionID:  edge.ExclusionID,
			}
		})
		edge.Target = target
		if !created {
			continue
		}

		if edge.System && found && w.ignoreSystem {
			// Reported as a leaf, never descended into.
			target.Exists = true
			target.System = true
			target.Pruned = true
			target.Arch = make(map[string]*model.ArchView)
			target.ParentRpathStack = snapshot(archCtx.RpathStack)
			target.ExecutablePath = archCtx.ExecutablePath
			continue
		}

		w.expand(target, archCtx.WithAncestor(ident))
	}
}

func snapshot(s []string) []string {
	out := make([]string, len(s))
	copy(out, s)
	return out
}
