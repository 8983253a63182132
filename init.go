package main

import (
	"flag"
	"fmt"
	"io"
	"os"
	"strings"
)

const (
	sentinelStart = "# machoscan:start"
	sentinelEnd   = "# machoscan:end"
)

// runInit implements the `machoscan init` subcommand, which writes (or
// updates) a starter exclusion-policy section in a policy file. The section
// is wrapped in sentinel comment lines (the policy loader skips comments) so
// re-running updates it in place without touching surrounding patterns.
func runInit(args []string, stdout, stderr io.Writer) error {
	fs := flag.NewFlagSet("machoscan init", flag.ContinueOnError)
	fs.SetOutput(stderr)

	var dryRun bool
	fs.BoolVar(&dryRun, "dry-run", false, "print what would be written without modifying the file")

	fs.Usage = func() {
		fmt.Fprintf(stderr, `Usage: machoscan init [flags] [exclusions-file]

Write a starter exclusion-policy section to a file usable with
machoscan --exclusions. The section is wrapped in sentinel comment lines so
it can be updated in place on subsequent runs. Creates the file if it does
not exist.

exclusions-file defaults to ./machoscan-exclusions.txt.

Flags:
`)
		fs.PrintDefaults()
	}

	if err := fs.Parse(args); err != nil {
		return err
	}

	section := generateSection()

	// --dry-run with no path: just print the section itself.
	if dryRun && fs.NArg() == 0 {
		_, _ = fmt.Fprintln(stdout, section)
		return nil
	}

	path := "machoscan-exclusions.txt"
	if fs.NArg() > 0 {
		path = fs.Arg(0)
	}

	existing, _ := os.ReadFile(path)
	updated := applySection(string(existing), section)

	if dryRun {
		_, _ = fmt.Fprint(stdout, updated)
		return nil
	}

	if err := os.WriteFile(path, []byte(updated), 0o644); err != nil {
		return fmt.Errorf("writing %s: %w", path, err)
	}

	_, _ = fmt.Fprintf(stderr, "wrote machoscan section to %s\n", path)
	return nil
}

// generateSection returns the sentinel-wrapped starter policy block.
func generateSection() string {
	body := `# One regular expression per line; blank lines and # comments are skipped.
# A pattern excludes a dependency when it fully matches the exclusion ID,
# which is the ancestry chain from the root binary joined with " : ":
#
#   /Applications/Foo.app/Contents/MacOS/foo : /opt/lib/libbar.dylib : @rpath/libbaz.dylib
#
# Full-match semantics: anchor nothing, the whole ID must match. Examples:
#
# Exclude one unresolvable weak dependency of a specific binary:
#   .*/foo : @rpath/libbaz\.dylib
#
# Exclude a vendor directory wherever it appears in a chain:
#   .* : /opt/vendor/.*
#
# Uncomment and adapt:
#.* : @rpath/libswift.*\.dylib`

	return sentinelStart + "\n" + body + "\n" + sentinelEnd
}

// applySection inserts section into content, replacing an existing sentinel
// block if present or appending if not. It is a pure function for easy
// testing.
func applySection(content, section string) string {
	start := strings.Index(content, sentinelStart)
	end := strings.Index(content, sentinelEnd)

	if start >= 0 && end > start {
		return content[:start] + section + content[end+len(sentinelEnd):]
	}

	// Append, ensuring a blank line separator.
	if len(content) > 0 && !strings.HasSuffix(content, "\n") {
		content += "\n"
	}
	return content + "\n" + section + "\n"
}
