package exclude

import (
	"os"
	"path/filepath"
	"testing"
)

func TestParseSkipsBlanksAndComments(t *testing.T) {
	t.Parallel()
	list, err := Parse("\n# a comment\n\nfoo.*\n   \n# another\nbar\n")
	if err != nil {
		t.Fatal(err)
	}
	if list.Len() != 2 {
		t.Errorf("Len = %d, want 2", list.Len())
	}
}

// Patterns must match the whole exclusion ID; substring hits would leak
// exclusions across unrelated ancestry chains.
func TestFullMatchSemantics(t *testing.T) {
	t.Parallel()
	list, err := Parse("foo : bar\n")
	if err != nil {
		t.Fatal(err)
	}

	if _, ok := list.Match("foo : bar"); !ok {
		t.Error("exact ID should match")
	}
	if _, ok := list.Match("foo : barbaz"); ok {
		t.Error("suffix-extended ID must not match")
	}
	if _, ok := list.Match("xfoo : bar"); ok {
		t.Error("prefix-extended ID must not match")
	}
}

func TestFirstPatternInFileOrderWins(t *testing.T) {
	t.Parallel()
	list, err := Parse(".* : libz.*\n.*\n")
	if err != nil {
		t.Fatal(err)
	}

	pattern, ok := list.Match("/bin/a : libz.1.dylib")
	if !ok {
		t.Fatal("expected a match")
	}
	if pattern != ".* : libz.*" {
		t.Errorf("matched %q, want first pattern", pattern)
	}
}

func TestInvalidPatternIsFatal(t *testing.T) {
	t.Parallel()
	if _, err := Parse("valid.*\n(unclosed\n"); err == nil {
		t.Fatal("expected compile error")
	}
}

func TestNilListMatchesNothing(t *testing.T) {
	t.Parallel()
	var list *List
	if _, ok := list.Match("anything"); ok {
		t.Error("nil list must not match")
	}
	if list.Len() != 0 {
		t.Error("nil list length")
	}
}

func TestLoadFromFile(t *testing.T) {
	t.Parallel()
	path := filepath.Join(t.TempDir(), "exclusions.txt")
	content := "# system noise\n^/bin/app : /usr/lib/libz\\.1\\.dylib$\n"
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}

	list, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if _, ok := list.Match("/bin/app : /usr/lib/libz.1.dylib"); !ok {
		t.Error("expected a match")
	}
}

func TestLoadMissingFile(t *testing.T) {
	t.Parallel()
	if _, err := Load(filepath.Join(t.TempDir(), "absent")); err == nil {
		t.Fatal("expected error for missing policy file")
	}
}

func TestPatternsRoundTrip(t *testing.T) {
	t.Parallel()
	list, err := Parse("^a$\nb.*c\n")
	if err != nil {
		t.Fatal(err)
	}
	got := list.Patterns()
	if len(got) != 2 || got[0] != "^a$" || got[1] != "b.*c" {
		t.Errorf("Patterns = %v", got)
	}
}
