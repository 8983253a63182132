// Package model defines the core data structures for machoscan.
package model

// Node is one binary in the dependency closure. Nodes are owned by the
// walker's cache; edges refer to them but never own them, so a binary
// reachable from several parents is represented exactly once per cache key.
//
// The JSON field names are the report document format and must not change.
type Node struct {
	Path             string               `json:"path"`
	Package          string               `json:"package"`
	Root             bool                 `json:"root,omitempty"`
	Excluded         bool                 `json:"excluded,omitempty"`
	Exists           bool                 `json:"exists"`
	Parsed           bool                 `json:"parsed"`
	System           bool                 `json:"system"`
	Satisfied        *bool                `json:"satisfied,omitempty"`
	RestrictArch     string               `json:"restrictarch,omitempty"`
	LoaderPath       string               `json:"@loader_path,omitempty"`
	ExecutablePath   string               `json:"@executable_path,omitempty"`
	ParentRpathStack []string             `json:"parentRpathStack"`
	Arch             map[string]*ArchView `json:"arch"`
	Missing          []*Edge              `json:"missing"`

	// Pattern and ExclusionID are diagnostics for the console output and are
	// never serialized into the report document.
	Pattern     string `json:"-"`
	ExclusionID string `json:"-"`

	// Pruned marks a node the walker deliberately did not expand (system
	// binary under --ignoresystem). Such nodes are leaves by policy and are
	// treated as satisfied.
	Pruned bool `json:"-"`
}

// ArchView is the per-architecture slice of a Node: the rpaths the binary
// declares for that architecture (already resolved against its own loader
// and executable paths) and its dependency edges in load-command order.
type ArchView struct {
	Name         string   `json:"name"`
	Rpaths       []string `json:"rpaths"`
	Dependencies []*Edge  `json:"dependencies"`
}

// Edge is a dependency declared by one binary on another. An edge records
// the resolution outcome at the point it was walked: the raw load-command
// name, the resolved path if one of the candidates existed, and the rpath
// stack plus executable path that were in effect.
//
// Serialized, this is the DependencyNode of the report document. Relations
// are reconstructed by matching Path (or Name when unresolved) against a
// top-level Node's path; Target is walker-internal.
type Edge struct {
	Name             string   `json:"name"`
	Path             string   `json:"path,omitempty"`
	Excluded         bool     `json:"excluded"`
	System           bool     `json:"system"`
	RestrictArch     string   `json:"restrictArch,omitempty"`
	ParentRpathStack []string `json:"parentRpathStack"`
	ExecutablePath   string   `json:"@executable_path,omitempty"`

	// Missing carries the chain below this edge when its target exists but
	// is itself unsatisfied, so a report shows both the immediate dependency
	// and the ultimately missing leaf.
	Missing []*Edge `json:"missing,omitempty"`

	Pattern     string `json:"-"`
	ExclusionID string `json:"-"`

	Target *Node `json:"-"`
}

// Resolved reports whether the edge's name was resolved to an existing file.
func (e *Edge) Resolved() bool { return e.Path != "" }

// Key builds the canonical cache key for a node: the resolved absolute path
// (or the raw unresolved name) qualified by the architecture restriction, so
// the same library reached under a restricted architecture is a distinct
// node from the one reached unrestricted.
func Key(path, restrictArch string) string {
	if restrictArch == "" {
		return path
	}
	return path + "@" + restrictArch
}

// SetSatisfied stores the computed satisfaction value.
func (n *Node) SetSatisfied(v bool) {
	n.Satisfied = &v
}

// IsSatisfied returns the computed value, defaulting to true for nodes that
// were never evaluated (pruned leaves, restricted-arch mismatches).
func (n *Node) IsSatisfied() bool {
	if n.Satisfied == nil {
		return true
	}
	return *n.Satisfied
}
