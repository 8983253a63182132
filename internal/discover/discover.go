// Package discover enumerates the root binaries to audit, from positional
// paths and directories or from installed-package listings.
package discover

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/apex/log"
	ignore "github.com/sabhiram/go-gitignore"
	"howett.net/plist"

	"github.com/macho-tools/machoscan/internal/macho"
)

// Target is one ordered batch of root files sharing a provenance. Package is
// empty for directly specified paths.
type Target struct {
	Package string
	Files   []string
}

const pkgutilTimeout = 30 * time.Second

// pkgutil is swapped out by tests.
var pkgutil = "/usr/sbin/pkgutil"

// Files expands positional paths into root binaries. Directories are walked
// recursively; only files whose magic sniffs as Mach-O are kept, .dSYM
// bundles are skipped, and ign (gitignore syntax, optional) filters walked
// files by their path relative to the scanned directory. An explicitly named
// path that does not exist is kept as-is so it surfaces in the report as a
// missing root rather than vanishing silently.
func Files(paths []string, ign *ignore.GitIgnore) []string {
	var results []string
	for _, entry := range paths {
		info, err := os.Stat(entry)
		if err != nil {
			abs, aerr := filepath.Abs(entry)
			if aerr != nil {
				abs = entry
			}
			results = append(results, abs)
			continue
		}
		if info.IsDir() {
			results = append(results, walkDir(entry, ign)...)
			continue
		}
		abs, err := filepath.Abs(entry)
		if err != nil {
			continue
		}
		if strings.HasSuffix(abs, ".dSYM") {
			continue
		}
		if !macho.Sniff(abs) {
			log.Warnf("skipping %s: not a Mach-O binary", abs)
			continue
		}
		results = append(results, abs)
	}
	sort.Strings(results)
	return results
}

func walkDir(root string, ign *ignore.GitIgnore) []string {
	var results []string
	_ = filepath.WalkDir(root, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return nil // skip unreadable entries
		}
		if strings.HasSuffix(d.Name(), ".dSYM") {
			if d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		if d.IsDir() || d.Type()&os.ModeSymlink != 0 {
			return nil
		}
		if ign != nil {
			if rel, rerr := filepath.Rel(root, path); rerr == nil && ign.MatchesPath(rel) {
				return nil
			}
		}
		abs, aerr := filepath.Abs(path)
		if aerr != nil {
			return nil
		}
		if macho.Sniff(abs) {
			results = append(results, abs)
		}
		return nil
	})
	return results
}

// LoadIgnore compiles a gitignore-syntax filter file for Files.
func LoadIgnore(path string) (*ignore.GitIgnore, error) {
	gi, err := ignore.CompileIgnoreFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading ignore file %s: %w", path, err)
	}
	return gi, nil
}

// Packages lists installed packages matching the given pkgutil patterns and
// returns one Target per package, holding every file the package installed.
// Failures against individual packages are logged and skipped; the audit of
// the remaining roots continues.
func Packages(ctx context.Context, patterns []string) []Target {
	var ids []string
	for _, pattern := range patterns {
		out, err := runPkgutil(ctx, "--pkgs="+pattern)
		if err != nil {
			log.WithError(err).Errorf("listing packages matching %s", pattern)
			continue
		}
		for _, line := range strings.Split(strings.TrimSpace(string(out)), "\n") {
			if line != "" {
				ids = append(ids, line)
			}
		}
	}

	var targets []Target
	for _, id := range ids {
		files, err := packageFiles(ctx, id)
		if err != nil {
			log.WithError(err).Errorf("listing files for package %s", id)
			continue
		}
		targets = append(targets, Target{Package: id, Files: files})
	}
	return targets
}

func packageFiles(ctx context.Context, id string) ([]string, error) {
	infoOut, err := runPkgutil(ctx, "--pkg-info-plist", id)
	if err != nil {
		return nil, err
	}
	var info struct {
		Volume string `plist:"volume"`
	}
	if _, err := plist.Unmarshal(infoOut, &info); err != nil {
		return nil, fmt.Errorf("decoding package info: %w", err)
	}

	filesOut, err := runPkgutil(ctx, "--files", id, "--only-files")
	if err != nil {
		return nil, err
	}

	var files []string
	for _, line := range strings.Split(strings.TrimRight(string(filesOut), "\n"), "\n") {
		if line != "" {
			files = append(files, filepath.Join(info.Volume, line))
		}
	}
	return files, nil
}

func runPkgutil(ctx context.Context, args ...string) ([]byte, error) {
	ctx, cancel := context.WithTimeout(ctx, pkgutilTimeout)
	defer cancel()

	cmd := exec.CommandContext(ctx, pkgutil, args...)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	out, err := cmd.Output()
	if err != nil {
		return nil, fmt.Errorf("pkgutil %s: %w: %s", strings.Join(args, " "), err, strings.TrimSpace(stderr.String()))
	}
	return out, nil
}
