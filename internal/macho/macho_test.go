package macho

import (
	"encoding/binary"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/macho-tools/machoscan/internal/macho/machotest"
)

func TestParseThinDylib(t *testing.T) {
	t.Parallel()
	path := filepath.Join(t.TempDir(), "libX.dylib")
	require.NoError(t, machotest.Write(path, machotest.Image{
		CPU:    machotest.CPUArm64,
		Type:   machotest.TypeDylib,
		Rpaths: []string{"/opt/libs", "@loader_path/../Frameworks"},
		Dylibs: []string{"@rpath/libA.dylib", "/usr/lib/libSystem.B.dylib"},
	}))

	info, err := Parse(path)
	require.NoError(t, err)
	require.Len(t, info.Arches, 1)

	arch := info.Arches[0]
	require.NotEmpty(t, arch.Name)
	require.False(t, arch.Executable)
	require.Equal(t, []string{"/opt/libs", "@loader_path/../Frameworks"}, arch.Rpaths)
	require.Len(t, arch.Dependencies, 2)
	require.Equal(t, "@rpath/libA.dylib", arch.Dependencies[0].Name)
	require.Equal(t, "/usr/lib/libSystem.B.dylib", arch.Dependencies[1].Name)
	require.False(t, info.HasExecutable())
}

func TestParseExecutable(t *testing.T) {
	t.Parallel()
	path := filepath.Join(t.TempDir(), "tool")
	require.NoError(t, machotest.Write(path, machotest.Image{
		CPU:  machotest.CPUAmd64,
		Type: machotest.TypeExecute,
	}))

	info, err := Parse(path)
	require.NoError(t, err)
	require.Len(t, info.Arches, 1)
	require.True(t, info.Arches[0].Executable)
	require.True(t, info.HasExecutable())
}

func TestParseRejectsNonMachO(t *testing.T) {
	t.Parallel()
	path := filepath.Join(t.TempDir(), "notes.txt")
	require.NoError(t, os.WriteFile(path, []byte("plain text, no magic"), 0o644))

	_, err := Parse(path)
	require.Error(t, err)
	require.Contains(t, err.Error(), path)
}

func TestParseMissingFile(t *testing.T) {
	t.Parallel()
	_, err := Parse(filepath.Join(t.TempDir(), "absent"))
	require.Error(t, err)
}

func TestSniff(t *testing.T) {
	t.Parallel()
	be := binary.BigEndian
	le := binary.LittleEndian

	u32 := func(order binary.AppendByteOrder, values ...uint32) []byte {
		var out []byte
		for _, v := range values {
			out = order.AppendUint32(out, v)
		}
		return out
	}

	tests := []struct {
		name string
		data []byte
		want bool
	}{
		{"thin 64-bit little endian", u32(le, 0xfeedfacf, 0x0100000c), true},
		{"thin 64-bit big endian", u32(be, 0xfeedfacf, 0x0100000c), true},
		{"thin 32-bit", u32(le, 0xfeedface, 0x00000007), true},
		{"fat two arches", u32(be, 0xcafebabe, 2), true},
		{"fat zero arches", u32(be, 0xcafebabe, 0), false},
		// Java class files share the fat magic; the version field lands where
		// the architecture count lives and fails the sanity bound.
		{"java class file", append(u32(be, 0xcafebabe), 0x00, 0x00, 0x00, 0x34), false},
		{"text", []byte("#!/bin/sh\n"), false},
		{"truncated", u32(le, 0xfeedfacf)[:4], false},
		{"empty", nil, false},
	}

	dir := t.TempDir()
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			path := filepath.Join(dir, tt.name)
			require.NoError(t, os.WriteFile(path, tt.data, 0o644))
			require.Equal(t, tt.want, Sniff(path))
		})
	}
}

func TestSniffMissingFile(t *testing.T) {
	t.Parallel()
	require.False(t, Sniff(filepath.Join(t.TempDir(), "absent")))
}

func TestSniffAcceptsGeneratedImages(t *testing.T) {
	t.Parallel()
	path := filepath.Join(t.TempDir(), "lib.dylib")
	require.NoError(t, machotest.Write(path, machotest.Image{}))
	require.True(t, Sniff(path))
}
