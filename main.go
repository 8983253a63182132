// machoscan audits the dynamic-library closure of Mach-O binaries: it walks
// every dependency of every architecture of the given roots, resolves
// @rpath/@loader_path/@executable_path references against the real
// filesystem, and reports what is missing, what is excluded by policy, and
// which chain of ancestry led to each failure.
package main

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/apex/log"
	clihandler "github.com/apex/log/handlers/cli"
	ignore "github.com/sabhiram/go-gitignore"
	"github.com/spf13/pflag"

	"github.com/macho-tools/machoscan/internal/discover"
	"github.com/macho-tools/machoscan/internal/exclude"
	"github.com/macho-tools/machoscan/internal/report"
	"github.com/macho-tools/machoscan/internal/walk"
)

var version = "dev"

const teamcityEnv = "TEAMCITY_BUILD_PROPERTIES_FILE"

func main() {
	unsatisfied, err := run(os.Args[1:], os.Stdout, os.Stderr)
	switch {
	case err != nil:
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(2)
	case unsatisfied:
		os.Exit(1)
	}
}

// run executes the audit. The bool result reports whether any root has a
// non-excluded missing dependency, which maps to exit status 1. An error
// means the tool itself failed and maps to status 2.
func run(args []string, stdout, stderr io.Writer) (bool, error) {
	log.SetHandler(clihandler.New(stderr))

	if len(args) > 0 && args[0] == "init" {
		return false, runInit(args[1:], stdout, stderr)
	}

	fs := pflag.NewFlagSet("machoscan", pflag.ContinueOnError)
	fs.SetOutput(stderr)

	var (
		exclusionsPath string
		ignorePath     string
		pkgs           []string
		reportPath     string
		logPath        string
		teamcity       bool
		verbosity      int
		ignoreSystem   bool
		showVersion    bool
	)

	_, teamcityDefault := os.LookupEnv(teamcityEnv)

	fs.StringVar(&exclusionsPath, "exclusions", "", "exclusion policy file (one regex per line)")
	fs.StringVar(&ignorePath, "ignore-file", "", "gitignore-syntax file filtering scanned directories")
	fs.StringArrayVar(&pkgs, "pkgs", nil, "audit files installed by packages matching this pkgutil pattern")
	fs.StringVar(&reportPath, "report", "", "write the JSON report to this file")
	fs.StringVar(&logPath, "log", "", "write the full-verbosity log to this file")
	fs.BoolVar(&teamcity, "teamcity", teamcityDefault, "emit TeamCity service messages")
	fs.IntVar(&verbosity, "verbosity", 1, "console verbosity level")
	fs.BoolVar(&ignoreSystem, "ignoresystem", false, "do not descend into system libraries")
	fs.BoolVarP(&showVersion, "version", "V", false, "show version and exit")

	fs.Usage = func() {
		fmt.Fprintf(stderr, "Usage: machoscan [flags] [path ...]\n")
		fmt.Fprintf(stderr, "       machoscan init [flags] [exclusions-file]\n\n")
		fmt.Fprintf(stderr, "Audit the dynamic-library dependency closure of Mach-O binaries.\n")
		fmt.Fprintf(stderr, "Paths may be binaries or directories, scanned recursively.\n\nFlags:\n")
		fs.PrintDefaults()
	}

	if err := fs.Parse(args); err != nil {
		return false, err
	}

	if showVersion {
		fmt.Fprintf(stdout, "machoscan %s\n", version)
		return false, nil
	}

	var exclusions *exclude.List
	if exclusionsPath != "" {
		var err error
		exclusions, err = exclude.Load(exclusionsPath)
		if err != nil {
			return false, err
		}
	}

	var ign *ignore.GitIgnore
	if ignorePath != "" {
		var err error
		ign, err = discover.LoadIgnore(ignorePath)
		if err != nil {
			return false, err
		}
	}

	targets := []discover.Target{{Package: "", Files: discover.Files(fs.Args(), ign)}}
	if len(pkgs) > 0 {
		targets = append(targets, discover.Packages(context.Background(), pkgs)...)
	}

	total := 0
	for _, target := range targets {
		total += len(target.Files)
	}
	if total == 0 {
		return false, fmt.Errorf("no input binaries found")
	}

	walker := walk.New(walk.Options{
		Exclusions:   exclusions,
		IgnoreSystem: ignoreSystem,
	})
	for _, target := range targets {
		for _, file := range target.Files {
			walker.VisitRoot(file, target.Package)
		}
	}
	walker.Evaluate()

	var lines []report.Line
	if exclusions.Len() > 0 {
		lines = report.ExclusionsRecord(exclusions.Patterns())
	}
	for _, node := range walker.Cache().Nodes() {
		if !node.Root && node.Parsed {
			lines = append(lines, report.NodeRecord(node, 4, 1)...)
		}
	}
	for _, root := range walker.Roots() {
		lines = append(lines, report.NodeRecord(root, 1, 0)...)
	}

	if err := report.Print(stdout, lines, teamcity, verbosity); err != nil {
		return false, err
	}

	if logPath != "" {
		f, err := os.Create(logPath)
		if err != nil {
			return false, fmt.Errorf("creating log file: %w", err)
		}
		defer f.Close()
		if err := report.Print(f, lines, false, verbosity+99); err != nil {
			return false, err
		}
	}

	if reportPath != "" {
		f, err := os.Create(reportPath)
		if err != nil {
			return false, fmt.Errorf("creating report file: %w", err)
		}
		defer f.Close()
		if err := report.WriteJSON(f, walker.Cache().Nodes()); err != nil {
			return false, err
		}
	}

	return walker.Unsatisfied(), nil
}
