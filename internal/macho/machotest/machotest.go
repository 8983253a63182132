// Package machotest builds minimal synthetic thin Mach-O images so tests can
// exercise real load-command parsing without binary fixtures.
package machotest

import (
	"encoding/binary"
	"fmt"
	"os"
	"path/filepath"
)

// CPU type constants (CPU_TYPE_X86_64, CPU_TYPE_ARM64).
const (
	CPUAmd64 uint32 = 0x01000007
	CPUArm64 uint32 = 0x0100000c
)

// Mach-O file types.
const (
	TypeExecute uint32 = 0x2
	TypeDylib   uint32 = 0x6
)

const (
	magic64     uint32 = 0xfeedfacf
	lcLoadDylib uint32 = 0xc
	lcRpath     uint32 = 0x8000001c
	headerSize         = 32
)

// Image describes one synthetic 64-bit Mach-O file.
type Image struct {
	CPU    uint32 // defaults to CPUArm64
	Type   uint32 // defaults to TypeDylib
	Rpaths []string
	Dylibs []string
}

// Bytes renders the image: a mach_header_64 followed by one LC_RPATH per
// rpath and one LC_LOAD_DYLIB per dependency, in declaration order.
func (img Image) Bytes() []byte {
	cpu := img.CPU
	if cpu == 0 {
		cpu = CPUArm64
	}
	filetype := img.Type
	if filetype == 0 {
		filetype = TypeDylib
	}

	var commands []byte
	ncmds := 0
	for _, rpath := range img.Rpaths {
		commands = append(commands, rpathCommand(rpath)...)
		ncmds++
	}
	for _, dylib := range img.Dylibs {
		commands = append(commands, dylibCommand(dylib)...)
		ncmds++
	}

	header := make([]byte, headerSize)
	le := binary.LittleEndian
	le.PutUint32(header[0:], magic64)
	le.PutUint32(header[4:], cpu)
	le.PutUint32(header[8:], 0) // cpusubtype
	le.PutUint32(header[12:], filetype)
	le.PutUint32(header[16:], uint32(ncmds))
	le.PutUint32(header[20:], uint32(len(commands)))
	le.PutUint32(header[24:], 0) // flags
	le.PutUint32(header[28:], 0) // reserved

	return append(header, commands...)
}

// Write renders the image to path, creating parent directories.
func Write(path string, img Image) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("creating %s: %w", filepath.Dir(path), err)
	}
	if err := os.WriteFile(path, img.Bytes(), 0o755); err != nil {
		return fmt.Errorf("writing %s: %w", path, err)
	}
	return nil
}

// dylibCommand lays out a dylib_command: cmd, cmdsize, then the dylib struct
// (name offset, timestamp, current and compatibility versions) and the
// NUL-terminated name, padded to 4-byte alignment.
func dylibCommand(name string) []byte {
	payload := pad(append([]byte(name), 0))
	cmd := make([]byte, 24)
	le := binary.LittleEndian
	le.PutUint32(cmd[0:], lcLoadDylib)
	le.PutUint32(cmd[4:], uint32(24+len(payload)))
	le.PutUint32(cmd[8:], 24) // name offset
	le.PutUint32(cmd[12:], 0) // timestamp
	le.PutUint32(cmd[16:], 0) // current_version
	le.PutUint32(cmd[20:], 0) // compatibility_version
	return append(cmd, payload...)
}

// rpathCommand lays out an rpath_command: cmd, cmdsize, path offset, path.
func rpathCommand(path string) []byte {
	payload := pad(append([]byte(path), 0))
	cmd := make([]byte, 12)
	le := binary.LittleEndian
	le.PutUint32(cmd[0:], lcRpath)
	le.PutUint32(cmd[4:], uint32(12+len(payload)))
	le.PutUint32(cmd[8:], 12) // path offset
	return append(cmd, payload...)
}

func pad(b []byte) []byte {
	for len(b)%4 != 0 {
		b = append(b, 0)
	}
	return b
}
