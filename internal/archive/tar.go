package archive

import (
	"fmt"
	"strings"

	"github.com/picofs/picofs/pkg/errors"
)

const (
	tarMagic    = "ustar\x00"
	tarVersion  = "00"
	tarFileFlag = '0'
	tarDirFlag  = '5'

	tarDefaultMode = 0o644
	tarDefaultUID  = 0
	tarDefaultGID  = 0
)

// octalField renders n as zero-padded octal ASCII filling width-1 bytes,
// with term as the final byte (NUL for numeric fields, space for the
// checksum field per spec.md §4.11).
func octalField(n uint64, width int, term byte) []byte {
	out := make([]byte, width)
	digits := fmt.Sprintf("%0*o", width-1, n)
	copy(out, digits)
	out[width-1] = term
	return out
}

func encodeTarHeader(e Entry) []byte {
	hdr := make([]byte, tarBlockSize)

	name := strings.TrimSuffix(e.Name, "/")
	if e.IsDir {
		name += "/"
	}
	copy(hdr[0:100], name)

	copy(hdr[100:108], octalField(tarDefaultMode, 8, 0))
	copy(hdr[108:116], octalField(tarDefaultUID, 8, 0))
	copy(hdr[116:124], octalField(tarDefaultGID, 8, 0))

	size := uint64(len(e.Data))
	if e.IsDir {
		size = 0
	}
	copy(hdr[124:136], octalField(size, 12, 0))
	copy(hdr[136:148], octalField(uint64(e.ModifiedAt.Unix()), 12, 0))

	// Checksum field starts as all spaces while the sum is computed.
	for i := 148; i < 156; i++ {
		hdr[i] = ' '
	}

	if e.IsDir {
		hdr[156] = tarDirFlag
	} else {
		hdr[156] = tarFileFlag
	}

	copy(hdr[257:263], tarMagic)
	copy(hdr[263:265], tarVersion)

	var sum uint64
	for _, b := range hdr {
		sum += uint64(b)
	}
	copy(hdr[148:156], octalField(sum, 8, ' '))

	return hdr
}

func padToBlock(n int) int {
	rem := n % tarBlockSize
	if rem == 0 {
		return 0
	}
	return tarBlockSize - rem
}

// EncodeTar writes entries as a USTAR tar archive per spec.md §4.11: a
// 512-byte header per entry, content zero-padded to a block boundary, and
// two trailing zero blocks.
func EncodeTar(entries []Entry) ([]byte, error) {
	var buf []byte
	for _, e := range entries {
		buf = append(buf, encodeTarHeader(e)...)
		if !e.IsDir {
			buf = append(buf, e.Data...)
			if pad := padToBlock(len(e.Data)); pad > 0 {
				buf = append(buf, make([]byte, pad)...)
			}
		}
	}
	buf = append(buf, make([]byte, 2*tarBlockSize)...)
	return buf, nil
}

func parseOctalField(field []byte) uint64 {
	s := strings.TrimRight(string(field), " \x00")
	s = strings.TrimSpace(s)
	if s == "" {
		return 0
	}
	var n uint64
	fmt.Sscanf(s, "%o", &n)
	return n
}

// DecodeTar parses a USTAR tar archive built by EncodeTar (or compatible
// tooling).
func DecodeTar(blob []byte) ([]Entry, error) {
	var entries []Entry
	pos := 0
	for pos+tarBlockSize <= len(blob) {
		hdr := blob[pos : pos+tarBlockSize]
		if isZeroBlock(hdr) {
			break
		}
		if string(hdr[257:262]) != "ustar" {
			return nil, errors.InvalidPath("").WithDetail("reason", "missing ustar magic")
		}
		name := strings.TrimRight(string(hdr[0:100]), "\x00")
		size := parseOctalField(hdr[124:136])
		mtime := parseOctalField(hdr[136:148])
		typeFlag := hdr[156]
		pos += tarBlockSize

		isDir := typeFlag == tarDirFlag || strings.HasSuffix(name, "/")
		var data []byte
		if !isDir {
			if pos+int(size) > len(blob) {
				return nil, errors.InvalidPath("").WithDetail("reason", "truncated tar entry")
			}
			data = make([]byte, size)
			copy(data, blob[pos:pos+int(size)])
			pos += int(size) + padToBlock(int(size))
		}
		entries = append(entries, Entry{
			Name:       name,
			Data:       data,
			IsDir:      isDir,
			ModifiedAt: unixToTime(mtime),
		})
	}
	return entries, nil
}

func isZeroBlock(b []byte) bool {
	for _, c := range b {
		if c != 0 {
			return false
		}
	}
	return true
}
