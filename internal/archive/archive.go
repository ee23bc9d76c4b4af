// Package archive implements PicoFS's ArchiveCodec (spec.md §4.11): a
// byte-exact ZIP (STORE only) and USTAR TAR encoder/decoder pair. Output is
// interoperable with common unzip/tar tooling; this package does not wrap
// the standard library's archive/zip or archive/tar because the wire
// layout (DOS-time quirks, fixed STORE method, USTAR checksum-as-spaces
// padding) needs field-level control neither package exposes.
package archive

import (
	"time"

	"github.com/picofs/picofs/pkg/errors"
)

// Entry is one file or directory staged for (or recovered from) an archive.
// Directory entries carry no Data; both encoders write directory names with
// a trailing "/", and both decoders return them with that "/" kept.
type Entry struct {
	Name       string
	Data       []byte
	IsDir      bool
	ModifiedAt time.Time
}

// Format identifies an archive's wire format.
type Format string

const (
	FormatZip Format = "zip"
	FormatTar Format = "tar"
)

const (
	tarBlockSize = 512
)

// DetectFormat peeks at the first bytes of blob per spec.md §4.11's
// detectFormat: a ZIP local-file-header signature at offset 0, else a
// "ustar" magic at offset 257.
func DetectFormat(blob []byte) (Format, error) {
	if len(blob) >= 4 &&
		blob[0] == 0x50 && blob[1] == 0x4B && blob[2] == 0x03 && blob[3] == 0x04 {
		return FormatZip, nil
	}
	if len(blob) >= 257+5 && string(blob[257:257+5]) == "ustar" {
		return FormatTar, nil
	}
	return "", errors.InvalidPath("").WithDetail("reason", "unrecognized archive format")
}

func unixToTime(sec uint64) time.Time {
	return time.Unix(int64(sec), 0).UTC()
}
