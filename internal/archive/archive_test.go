package archive

import (
	"bytes"
	"testing"
	"time"
)

func sampleEntries() []Entry {
	now := time.Date(2024, 3, 15, 10, 30, 0, 0, time.UTC)
	return []Entry{
		{Name: "d/", IsDir: true, ModifiedAt: now},
		{Name: "d/hello.txt", Data: []byte("hello world"), ModifiedAt: now},
		{Name: "d/empty.txt", Data: []byte{}, ModifiedAt: now},
	}
}

func TestZipRoundTrip(t *testing.T) {
	blob, err := EncodeZip(sampleEntries())
	if err != nil {
		t.Fatalf("EncodeZip: %v", err)
	}
	got, err := DecodeZip(blob)
	if err != nil {
		t.Fatalf("DecodeZip: %v", err)
	}
	if len(got) != 3 {
		t.Fatalf("got %d entries, want 3", len(got))
	}
	if !got[0].IsDir || got[0].Name != "d/" {
		t.Errorf("entry 0 = %+v, want dir d/", got[0])
	}
	if got[1].Name != "d/hello.txt" || !bytes.Equal(got[1].Data, []byte("hello world")) {
		t.Errorf("entry 1 = %+v", got[1])
	}
}

func TestZipDetectFormat(t *testing.T) {
	blob, _ := EncodeZip(sampleEntries())
	f, err := DetectFormat(blob)
	if err != nil || f != FormatZip {
		t.Fatalf("DetectFormat = %v, %v, want zip", f, err)
	}
}

func TestZipSignatures(t *testing.T) {
	blob, _ := EncodeZip(sampleEntries())
	if blob[0] != 0x50 || blob[1] != 0x4B || blob[2] != 0x03 || blob[3] != 0x04 {
		t.Error("missing local file header signature")
	}
}

func TestZipRejectsCompressedMethod(t *testing.T) {
	blob, _ := EncodeZip(sampleEntries())
	eocd := findEOCD(blob)
	cdOffset := int(blob[eocd+16]) | int(blob[eocd+17])<<8 | int(blob[eocd+18])<<16 | int(blob[eocd+19])<<24
	blob[cdOffset+10] = 8 // deflate
	if _, err := DecodeZip(blob); err == nil {
		t.Error("expected error decoding a compressed entry")
	}
}

func TestDosTimeDatePre1980(t *testing.T) {
	dosTime, dosDate := dosTimeDate(time.Time{})
	if dosTime != 0 || dosDate != 0x0021 {
		t.Errorf("dosTimeDate(zero) = %x, %x, want 0, 0x21", dosTime, dosDate)
	}
}

func TestTarRoundTrip(t *testing.T) {
	blob, err := EncodeTar(sampleEntries())
	if err != nil {
		t.Fatalf("EncodeTar: %v", err)
	}
	got, err := DecodeTar(blob)
	if err != nil {
		t.Fatalf("DecodeTar: %v", err)
	}
	if len(got) != 3 {
		t.Fatalf("got %d entries, want 3", len(got))
	}
	if got[1].Name != "d/hello.txt" || !bytes.Equal(got[1].Data, []byte("hello world")) {
		t.Errorf("entry 1 = %+v", got[1])
	}
}

func TestTarBlockAlignment(t *testing.T) {
	blob, _ := EncodeTar(sampleEntries())
	if len(blob)%tarBlockSize != 0 {
		t.Errorf("tar length %d is not a multiple of %d", len(blob), tarBlockSize)
	}
}

func TestTarTrailingZeroBlocks(t *testing.T) {
	blob, _ := EncodeTar(sampleEntries())
	trailer := blob[len(blob)-2*tarBlockSize:]
	if !isZeroBlock(trailer[:tarBlockSize]) || !isZeroBlock(trailer[tarBlockSize:]) {
		t.Error("expected two trailing zero blocks")
	}
}

func TestTarDetectFormat(t *testing.T) {
	blob, _ := EncodeTar(sampleEntries())
	f, err := DetectFormat(blob)
	if err != nil || f != FormatTar {
		t.Fatalf("DetectFormat = %v, %v, want tar", f, err)
	}
}

func TestTarChecksumField(t *testing.T) {
	hdr := encodeTarHeader(Entry{Name: "x.txt", Data: []byte("abc")})
	sum := parseOctalField(hdr[148:155])
	if sum == 0 {
		t.Error("expected nonzero checksum")
	}
	if hdr[155] != ' ' {
		t.Errorf("checksum field terminator = %q, want space", hdr[155])
	}
}
