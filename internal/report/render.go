package report

import (
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/macho-tools/machoscan/internal/model"
)

// Severity classifies a rendered line.
type Severity int

const (
	Info Severity = iota
	Warning
	Error
)

// Line is one unit of console/log output. Verbosity gates visibility: a line
// is printed when its verbosity is at or below the requested level, so the
// same record set serves terse console output and an exhaustive log file.
// Pattern/exclusion-ID detail lines sit 100 levels up and only ever reach
// the log file.
type Line struct {
	Severity  Severity
	Verbosity int
	Indent    int
	Text      string
}

const detailVerbosity = 100

// Flags renders the 5-character bracketed flag field that prefixes each
// dependency line: [ MES ] positions carry M for missing, E for excluded,
// S for system.
func Flags(missing, excluded, system bool) string {
	b := []byte("[   ] ")
	if missing {
		b[1] = 'M'
	}
	if excluded {
		b[2] = 'E'
	}
	if system {
		b[3] = 'S'
	}
	return string(b)
}

func edgeFlags(e *model.Edge) string {
	return Flags(!e.Resolved(), e.Excluded, e.System)
}

// NodeRecord renders the full console paragraph for one node: a header line
// followed by indented detail lines for provenance, resolution state,
// per-architecture rpaths and dependencies, and the missing-dependency tree.
func NodeRecord(node *model.Node, verbosity, indent int) []Line {
	var lines []Line

	if node.Satisfied != nil && !*node.Satisfied {
		verbosity--
	}

	lines = append(lines, Line{Info, verbosity, indent, node.Path})

	if node.Package != "" {
		lines = append(lines, Line{Info, verbosity + 2, indent + 1, "package: " + node.Package})
	}

	if node.Exists {
		lines = append(lines, Line{Info, verbosity + 2, indent + 1, "exists"})
	} else {
		lines = append(lines, Line{Warning, verbosity + 1, indent + 1, "not found"})
	}

	if node.Excluded {
		lines = append(lines, Line{Info, verbosity + 1, indent + 1, "excluded"})
		if node.Pattern != "" {
			lines = append(lines, Line{Info, verbosity + detailVerbosity, indent + 2, "matched: " + node.Pattern})
		}
	}
	if node.ExclusionID != "" {
		lines = append(lines, Line{Info, verbosity + detailVerbosity, indent + 1, "exclusionId: " + node.ExclusionID})
	}

	if node.Parsed {
		lines = append(lines, Line{Info, verbosity + 2, indent + 1, "valid Mach-O"})
		if node.LoaderPath != "" {
			lines = append(lines, Line{Info, verbosity + 2, indent + 1, "loader_path: " + node.LoaderPath})
		}
		if node.ExecutablePath != "" {
			lines = append(lines, Line{Info, verbosity + 2, indent + 1, "executable_path: " + node.ExecutablePath})
		}
		if len(node.ParentRpathStack) > 0 {
			lines = append(lines, Line{Info, verbosity + 2, indent + 1, "current rpath stack:"})
			for _, path := range node.ParentRpathStack {
				lines = append(lines, Line{Info, verbosity + 2, indent + 2, path})
			}
		}
		lines = append(lines, archRecords(node, verbosity, indent)...)
	} else if node.Exists {
		lines = append(lines, Line{Error, verbosity, indent + 1, "failed to parse"})
	}

	if node.Satisfied != nil {
		if *node.Satisfied {
			lines = append(lines, Line{Info, verbosity + 1, indent + 1, "dependencies satisfied"})
			lines = append(lines, missingTree(node.Missing, indent+2, verbosity+1)...)
		} else {
			lines = append(lines, Line{Warning, verbosity, indent + 1, "dependencies missing:"})
			lines = append(lines, missingTree(node.Missing, indent+2, verbosity)...)
		}
	}

	return lines
}

func archRecords(node *model.Node, verbosity, indent int) []Line {
	var lines []Line
	names := make([]string, 0, len(node.Arch))
	for name := range node.Arch {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		view := node.Arch[name]
		lines = append(lines, Line{Info, verbosity + 2, indent + 1, "arch: " + name})

		lines = append(lines, Line{Info, verbosity + 2, indent + 2, "rpaths:"})
		for _, rpath := range view.Rpaths {
			lines = append(lines, Line{Info, verbosity + 2, indent + 3, rpath})
		}

		lines = append(lines, Line{Info, verbosity + 2, indent + 2, "dependencies:"})
		for _, edge := range view.Dependencies {
			if !edge.Resolved() {
				severity := Warning
				if edge.Excluded {
					severity = Info
				}
				lines = append(lines, Line{severity, verbosity + 2, indent + 3, edgeFlags(edge) + edge.Name + " -> not found"})
				if edge.Pattern != "" {
					lines = append(lines, Line{severity, verbosity + detailVerbosity, indent + 4, "matched: " + edge.Pattern})
				}
			} else {
				lines = append(lines, Line{Info, verbosity + 2, indent + 3, edgeFlags(edge) + edge.Name + " -> " + edge.Path})
			}
			if edge.ExclusionID != "" {
				lines = append(lines, Line{Info, verbosity + detailVerbosity, indent + 4, "exclusionId: " + edge.ExclusionID})
			}
		}
	}
	return lines
}

// missingTree renders the missing-dependency chains: resolved intermediates
// recurse into their own missing lists so the output reaches the ultimately
// absent leaf.
func missingTree(missing []*model.Edge, indent, verbosity int) []Line {
	var lines []Line
	for _, edge := range missing {
		prefix := edgeFlags(edge)
		if edge.Resolved() {
			lines = append(lines, Line{Info, verbosity, indent, prefix + edge.Name})
			lines = append(lines, missingTree(edge.Missing, indent+2, verbosity)...)
			continue
		}
		severity := Warning
		if edge.Excluded {
			severity = Info
		}
		lines = append(lines, Line{severity, verbosity, indent, prefix + edge.Name})
		if edge.Pattern != "" {
			lines = append(lines, Line{severity, verbosity + detailVerbosity, indent + 1, "matched: " + edge.Pattern})
		}
		if edge.ExclusionID != "" {
			lines = append(lines, Line{Info, verbosity + detailVerbosity, indent + 1, "exclusionId: " + edge.ExclusionID})
		}
	}
	return lines
}

// ExclusionsRecord renders the loaded policy for the log.
func ExclusionsRecord(patterns []string) []Line {
	lines := []Line{{Info, 2, 0, "exclusions:"}}
	for _, pattern := range patterns {
		lines = append(lines, Line{Info, 2, 1, pattern})
	}
	return lines
}

// tcEscaper rewrites the characters TeamCity service messages reserve.
var tcEscaper = strings.NewReplacer(
	"|", "||", "'", "|'", "[", "|[", "]", "|]", "\n", "|n", "\r", "|r",
)

// Format renders one line, either as plain indented text or as a TeamCity
// service message carrying the severity as a status.
func Format(teamcity bool, line Line) string {
	indented := strings.Repeat("\t", line.Indent) + line.Text
	if !teamcity {
		return indented
	}
	status := "NORMAL"
	switch line.Severity {
	case Warning:
		status = "WARNING"
	case Error:
		status = "ERROR"
	}
	escaped := tcEscaper.Replace(indented)
	if line.Severity == Error {
		return fmt.Sprintf("##teamcity[message text='%s' status='%s' errorDetails='%s']", "error", status, escaped)
	}
	return fmt.Sprintf("##teamcity[message text='%s' status='%s']", escaped, status)
}

// Print writes every line whose verbosity is within the requested level.
func Print(w io.Writer, lines []Line, teamcity bool, verbosity int) error {
	var out []string
	for _, line := range lines {
		if line.Verbosity <= verbosity {
			out = append(out, Format(teamcity, line))
		}
	}
	if len(out) == 0 {
		return nil
	}
	if _, err := fmt.Fprintln(w, strings.Join(out, "\n")); err != nil {
		return fmt.Errorf("writing output: %w", err)
	}
	return nil
}
