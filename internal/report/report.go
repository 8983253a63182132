// Package report flattens the node cache into the JSON report document and
// renders the leveled console/log output.
package report

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/macho-tools/machoscan/internal/model"
)

// Assemble returns the flat report array: every cached node in visit order,
// with required collection fields normalized so they serialize as empty
// collections rather than null.
func Assemble(nodes []*model.Node) []*model.Node {
	for _, node := range nodes {
		if node.ParentRpathStack == nil {
			node.ParentRpathStack = []string{}
		}
		if node.Arch == nil {
			node.Arch = map[string]*model.ArchView{}
		}
		if node.Missing == nil {
			node.Missing = []*model.Edge{}
		}
	}
	return nodes
}

// WriteJSON serializes the assembled report to w. Node relations are not
// embedded: a consumer reconnects a DependencyNode to its target by matching
// its path (or name, when unresolved) against a top-level node's path.
func WriteJSON(w io.Writer, nodes []*model.Node) error {
	enc := json.NewEncoder(w)
	if err := enc.Encode(Assemble(nodes)); err != nil {
		return fmt.Errorf("encoding report: %w", err)
	}
	return nil
}
