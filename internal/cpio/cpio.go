// Package cpio scans a "newc" format CPIO archive for the boot
// initramfs module (spec §6: "Kernel scans module 0 as CPIO; first
// entry whose filename contains `init` is mapped and spawned"). It
// validates a fixed header before trusting it and returns a wrapped
// sentinel error on a short or malformed image, and uses
// golang.org/x/sys/unix's S_IFMT-family mode bits for the file-type
// field each header carries.
package cpio

import (
	"encoding/hex"
	"errors"
	"fmt"

	"golang.org/x/sys/unix"
)

// ErrArchive is wrapped by every error this package returns.
var ErrArchive = errors.New("cpio: malformed archive")

// newcMagic is the six-byte ASCII magic of the "newc" CPIO variant.
const newcMagic = "070701"

// headerSize is the fixed 110-byte ASCII-hex newc header, before the
// variable-length name and (after 4-byte alignment) file data.
const headerSize = 110

// Entry is one decoded archive member.
type Entry struct {
	Name string
	Mode uint32
	Size uint32
	Data []byte
}

// IsRegular reports whether the entry's mode marks it a regular file,
// using golang.org/x/sys/unix's S_IFMT/S_IFREG constants rather than a
// hand-rolled mask.
func (e Entry) IsRegular() bool {
	return e.Mode&unix.S_IFMT == unix.S_IFREG
}

// TrailerName marks the end of a newc archive.
const TrailerName = "TRAILER!!!"

// Scan decodes every entry in a newc CPIO image, stopping at the
// TRAILER!!! sentinel entry.
func Scan(image []byte) ([]Entry, error) {
	var entries []Entry

	off := 0

	for {
		if off+headerSize > len(image) {
			return nil, fmt.Errorf("%w: truncated header at %d", ErrArchive, off)
		}

		hdr := image[off : off+headerSize]
		if string(hdr[0:6]) != newcMagic {
			return nil, fmt.Errorf("%w: bad magic at %d", ErrArchive, off)
		}

		mode, err := hexField(hdr, 14)
		if err != nil {
			return nil, fmt.Errorf("%w: mode: %w", ErrArchive, err)
		}

		fileSize, err := hexField(hdr, 54)
		if err != nil {
			return nil, fmt.Errorf("%w: filesize: %w", ErrArchive, err)
		}

		nameSize, err := hexField(hdr, 94)
		if err != nil {
			return nil, fmt.Errorf("%w: namesize: %w", ErrArchive, err)
		}

		nameStart := off + headerSize
		nameEnd := nameStart + int(nameSize)

		if nameEnd > len(image) || nameSize == 0 {
			return nil, fmt.Errorf("%w: truncated name at %d", ErrArchive, off)
		}

		name := trimNulTerm(image[nameStart : nameEnd-1])

		dataStart := align4(nameEnd)
		dataEnd := dataStart + int(fileSize)

		if dataEnd > len(image) {
			return nil, fmt.Errorf("%w: truncated data for %q", ErrArchive, name)
		}

		if name == TrailerName {
			break
		}

		data := image[dataStart:dataEnd]

		entries = append(entries, Entry{
			Name: name,
			Mode: uint32(mode),
			Size: uint32(fileSize),
			Data: data,
		})

		off = align4(dataEnd)
	}

	return entries, nil
}

// FindInit returns the first entry whose name contains "init" (spec §6),
// preserving archive order.
func FindInit(entries []Entry) (Entry, bool) {
	for _, e := range entries {
		if containsInit(e.Name) {
			return e, true
		}
	}

	return Entry{}, false
}

func containsInit(name string) bool {
	for i := 0; i+4 <= len(name); i++ {
		if name[i:i+4] == "init" {
			return true
		}
	}

	return false
}

func hexField(hdr []byte, offset int) (uint64, error) {
	raw := hdr[offset : offset+8]

	var decoded [4]byte
	if _, err := hex.Decode(decoded[:], raw); err != nil {
		return 0, err
	}

	return uint64(decoded[0])<<24 | uint64(decoded[1])<<16 | uint64(decoded[2])<<8 | uint64(decoded[3]), nil
}

func align4(n int) int {
	return (n + 3) &^ 3
}

func trimNulTerm(b []byte) string {
	return string(b)
}
