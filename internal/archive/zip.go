package archive

import (
	"encoding/binary"
	"hash/crc32"
	"strings"
	"time"

	"github.com/picofs/picofs/pkg/errors"
)

const (
	zipLocalSig   = 0x04034B50
	zipCentralSig = 0x02014B50
	zipEndSig     = 0x06054B50
	zipVersion    = 20
	zipMethodStore = 0
	zipExternalDir = 0x10
)

// dosTimeDate converts t to the packed DOS time/date pair used by ZIP
// headers. Times before 1980 (or the zero Time) are pinned to the DOS
// epoch, 1980-01-01 00:00:00 (spec.md §4.11).
func dosTimeDate(t time.Time) (uint16, uint16) {
	if t.IsZero() || t.Year() < 1980 {
		return 0, 0x0021
	}
	u := t.UTC()
	dosTime := uint16(u.Hour())<<11 | uint16(u.Minute())<<5 | uint16(u.Second()/2)
	dosDate := uint16(u.Year()-1980)<<9 | uint16(u.Month())<<5 | uint16(u.Day())
	return dosTime, dosDate
}

func dosToTime(dosTime, dosDate uint16) time.Time {
	year := int(dosDate>>9) + 1980
	month := int((dosDate >> 5) & 0x0F)
	day := int(dosDate & 0x1F)
	hour := int(dosTime >> 11)
	min := int((dosTime >> 5) & 0x3F)
	sec := int(dosTime&0x1F) * 2
	if month == 0 {
		month = 1
	}
	if day == 0 {
		day = 1
	}
	return time.Date(year, time.Month(month), day, hour, min, sec, 0, time.UTC)
}

type zipCentralRecord struct {
	name           string
	crc32          uint32
	size           uint32
	dosTime        uint16
	dosDate        uint16
	externalAttrs  uint32
	localHdrOffset uint32
}

// EncodeZip writes entries as a STORE-only ZIP archive per spec.md §4.11:
// local file headers, then central-directory records, then a single
// end-of-central-directory record.
func EncodeZip(entries []Entry) ([]byte, error) {
	var buf []byte
	var central []zipCentralRecord

	for _, e := range entries {
		name := e.Name
		isDir := e.IsDir || strings.HasSuffix(name, "/")
		if isDir && !strings.HasSuffix(name, "/") {
			name += "/"
		}
		offset := uint32(len(buf))

		var data []byte
		var crc uint32
		if !isDir {
			data = e.Data
			crc = crc32.ChecksumIEEE(data)
		}
		dosTime, dosDate := dosTimeDate(e.ModifiedAt)

		hdr := make([]byte, 30)
		binary.LittleEndian.PutUint32(hdr[0:4], zipLocalSig)
		binary.LittleEndian.PutUint16(hdr[4:6], zipVersion)
		binary.LittleEndian.PutUint16(hdr[6:8], 0) // flags
		binary.LittleEndian.PutUint16(hdr[8:10], zipMethodStore)
		binary.LittleEndian.PutUint16(hdr[10:12], dosTime)
		binary.LittleEndian.PutUint16(hdr[12:14], dosDate)
		binary.LittleEndian.PutUint32(hdr[14:18], crc)
		binary.LittleEndian.PutUint32(hdr[18:22], uint32(len(data)))
		binary.LittleEndian.PutUint32(hdr[22:26], uint32(len(data)))
		binary.LittleEndian.PutUint16(hdr[26:28], uint16(len(name)))
		binary.LittleEndian.PutUint16(hdr[28:30], 0) // extra len

		buf = append(buf, hdr...)
		buf = append(buf, name...)
		buf = append(buf, data...)

		var extAttrs uint32
		if isDir {
			extAttrs = zipExternalDir
		}
		central = append(central, zipCentralRecord{
			name:           name,
			crc32:          crc,
			size:           uint32(len(data)),
			dosTime:        dosTime,
			dosDate:        dosDate,
			externalAttrs:  extAttrs,
			localHdrOffset: offset,
		})
	}

	cdStart := uint32(len(buf))
	for _, c := range central {
		rec := make([]byte, 46)
		binary.LittleEndian.PutUint32(rec[0:4], zipCentralSig)
		binary.LittleEndian.PutUint16(rec[4:6], zipVersion)
		binary.LittleEndian.PutUint16(rec[6:8], zipVersion)
		binary.LittleEndian.PutUint16(rec[8:10], 0) // flags
		binary.LittleEndian.PutUint16(rec[10:12], zipMethodStore)
		binary.LittleEndian.PutUint16(rec[12:14], c.dosTime)
		binary.LittleEndian.PutUint16(rec[14:16], c.dosDate)
		binary.LittleEndian.PutUint32(rec[16:20], c.crc32)
		binary.LittleEndian.PutUint32(rec[20:24], c.size)
		binary.LittleEndian.PutUint32(rec[24:28], c.size)
		binary.LittleEndian.PutUint16(rec[28:30], uint16(len(c.name)))
		binary.LittleEndian.PutUint16(rec[30:32], 0) // extra len
		binary.LittleEndian.PutUint16(rec[32:34], 0) // comment len
		binary.LittleEndian.PutUint16(rec[34:36], 0) // disk number start
		binary.LittleEndian.PutUint16(rec[36:38], 0) // internal attrs
		binary.LittleEndian.PutUint32(rec[38:42], c.externalAttrs)
		binary.LittleEndian.PutUint32(rec[42:46], c.localHdrOffset)

		buf = append(buf, rec...)
		buf = append(buf, c.name...)
	}
	cdSize := uint32(len(buf)) - cdStart

	end := make([]byte, 22)
	binary.LittleEndian.PutUint32(end[0:4], zipEndSig)
	binary.LittleEndian.PutUint16(end[4:6], 0) // disk number
	binary.LittleEndian.PutUint16(end[6:8], 0) // disk with CD start
	binary.LittleEndian.PutUint16(end[8:10], uint16(len(central)))
	binary.LittleEndian.PutUint16(end[10:12], uint16(len(central)))
	binary.LittleEndian.PutUint32(end[12:16], cdSize)
	binary.LittleEndian.PutUint32(end[16:20], cdStart)
	binary.LittleEndian.PutUint16(end[20:22], 0) // comment length
	buf = append(buf, end...)

	return buf, nil
}

// DecodeZip parses a STORE-only ZIP archive built by EncodeZip (or
// compatible tooling), rejecting any entry whose compression method is
// not STORE (spec.md §4.11).
func DecodeZip(blob []byte) ([]Entry, error) {
	eocd := findEOCD(blob)
	if eocd < 0 {
		return nil, errors.InvalidPath("").WithDetail("reason", "missing end-of-central-directory record")
	}
	count := binary.LittleEndian.Uint16(blob[eocd+10 : eocd+12])
	cdOffset := binary.LittleEndian.Uint32(blob[eocd+16 : eocd+20])

	entries := make([]Entry, 0, count)
	pos := int(cdOffset)
	for i := 0; i < int(count); i++ {
		if pos+46 > len(blob) {
			return nil, errors.InvalidPath("").WithDetail("reason", "truncated central directory")
		}
		if binary.LittleEndian.Uint32(blob[pos:pos+4]) != zipCentralSig {
			return nil, errors.InvalidPath("").WithDetail("reason", "bad central directory signature")
		}
		method := binary.LittleEndian.Uint16(blob[pos+10 : pos+12])
		if method != zipMethodStore {
			return nil, errors.InvalidPath("").WithDetail("reason", "compressed entries are not supported")
		}
		dosTime := binary.LittleEndian.Uint16(blob[pos+12 : pos+14])
		dosDate := binary.LittleEndian.Uint16(blob[pos+14 : pos+16])
		size := binary.LittleEndian.Uint32(blob[pos+24 : pos+28])
		nameLen := binary.LittleEndian.Uint16(blob[pos+28 : pos+30])
		extraLen := binary.LittleEndian.Uint16(blob[pos+30 : pos+32])
		commentLen := binary.LittleEndian.Uint16(blob[pos+32 : pos+34])
		externalAttrs := binary.LittleEndian.Uint32(blob[pos+38 : pos+42])
		localOffset := binary.LittleEndian.Uint32(blob[pos+42 : pos+46])
		name := string(blob[pos+46 : pos+46+int(nameLen)])
		pos += 46 + int(nameLen) + int(extraLen) + int(commentLen)

		isDir := externalAttrs&zipExternalDir != 0 || strings.HasSuffix(name, "/")
		var data []byte
		if !isDir {
			data = extractLocalData(blob, localOffset, size)
		}
		entries = append(entries, Entry{
			Name:       name,
			Data:       data,
			IsDir:      isDir,
			ModifiedAt: dosToTime(dosTime, dosDate),
		})
	}
	return entries, nil
}

func extractLocalData(blob []byte, offset, size uint32) []byte {
	if int(offset)+30 > len(blob) {
		return nil
	}
	nameLen := binary.LittleEndian.Uint16(blob[offset+26 : offset+28])
	extraLen := binary.LittleEndian.Uint16(blob[offset+28 : offset+30])
	start := int(offset) + 30 + int(nameLen) + int(extraLen)
	end := start + int(size)
	if end > len(blob) {
		return nil
	}
	out := make([]byte, size)
	copy(out, blob[start:end])
	return out
}

func findEOCD(blob []byte) int {
	for i := len(blob) - 22; i >= 0; i-- {
		if binary.LittleEndian.Uint32(blob[i:i+4]) == zipEndSig {
			return i
		}
	}
	return -1
}
