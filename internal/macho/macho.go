// Package macho extracts the load-command facts machoscan needs from Mach-O
// binaries: per-architecture rpath declarations and dynamic-library
// dependencies, in load-command order.
package macho

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"os"

	gomacho "github.com/blacktop/go-macho"
	"github.com/blacktop/go-macho/types"
)

// Dependency is one dynamic-library load command, its name exactly as
// embedded in the binary (it may start with @rpath/, @loader_path/ or
// @executable_path/, or be an absolute or relative path).
type Dependency struct {
	Name string
}

// Arch is the view of one architecture contained in a binary.
type Arch struct {
	Name         string
	Executable   bool
	Rpaths       []string
	Dependencies []Dependency
}

// Info is everything machoscan reads out of one binary.
type Info struct {
	Arches []Arch
}

// HasExecutable reports whether any contained architecture is an MH_EXECUTE
// image, i.e. the binary can anchor @executable_path for its tree.
func (i *Info) HasExecutable() bool {
	for _, a := range i.Arches {
		if a.Executable {
			return true
		}
	}
	return false
}

// Parse reads the named file as a Mach-O binary, universal (fat) or thin,
// and returns its per-architecture dependency facts.
func Parse(path string) (*Info, error) {
	ff, err := gomacho.OpenFat(path)
	if err == nil {
		defer ff.Close()
		info := &Info{}
		for i := range ff.Arches {
			info.Arches = append(info.Arches, archOf(ff.Arches[i].File))
		}
		return info, nil
	}
	if !errors.Is(err, gomacho.ErrNotFat) {
		return nil, fmt.Errorf("parsing %s: %w", path, err)
	}

	m, err := gomacho.Open(path)
	if err != nil {
		return nil, fmt.Errorf("parsing %s: %w", path, err)
	}
	defer m.Close()
	return &Info{Arches: []Arch{archOf(m)}}, nil
}

func archOf(f *gomacho.File) Arch {
	arch := Arch{
		Name:       f.CPU.String(),
		Executable: f.Type == types.MH_EXECUTE,
	}
	for _, load := range f.Loads {
		switch cmd := load.(type) {
		case *gomacho.LoadDylib:
			arch.Dependencies = append(arch.Dependencies, Dependency{Name: cmd.Name})
		case *gomacho.WeakDylib:
			arch.Dependencies = append(arch.Dependencies, Dependency{Name: cmd.Name})
		case *gomacho.ReExportDylib:
			arch.Dependencies = append(arch.Dependencies, Dependency{Name: cmd.Name})
		case *gomacho.UpwardDylib:
			arch.Dependencies = append(arch.Dependencies, Dependency{Name: cmd.Name})
		case *gomacho.Rpath:
			arch.Rpaths = append(arch.Rpaths, cmd.Path)
		}
	}
	return arch
}

const (
	magic32    = 0xfeedface
	magic64    = 0xfeedfacf
	magicFat   = 0xcafebabe
	maxFatArch = 20
)

// Sniff reports whether the file looks like a Mach-O binary, thin or fat,
// either byte order, from its magic alone. Fat files additionally need a
// sane architecture count so Java class files (same magic) are rejected,
// the same heuristic macholib uses.
func Sniff(path string) bool {
	f, err := os.Open(path)
	if err != nil {
		return false
	}
	defer f.Close()

	var header [8]byte
	if _, err := io.ReadFull(f, header[:]); err != nil {
		return false
	}

	for _, order := range []binary.ByteOrder{binary.BigEndian, binary.LittleEndian} {
		switch order.Uint32(header[:4]) {
		case magic32, magic64:
			return true
		case magicFat:
			narch := order.Uint32(header[4:])
			if narch > 0 && narch < maxFatArch {
				return true
			}
		}
	}
	return false
}
