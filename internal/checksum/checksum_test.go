package checksum

import "testing"

func TestCRC32Empty(t *testing.T) {
	if got := CRC32(nil); got != "00000000" {
		t.Errorf("CRC32(nil) = %q, want %q", got, "00000000")
	}
}

func TestSHA256Empty(t *testing.T) {
	want := "e3b0c44298fc1c149afbf4c8996fb92427ae41e4649b934ca495991b7852b855"
	if got := SHA256(nil); got != want {
		t.Errorf("SHA256(nil) = %q, want %q", got, want)
	}
}

func TestCRC32KnownValue(t *testing.T) {
	// CRC32("The quick brown fox jumps over the lazy dog") is a standard
	// IEEE CRC-32 test vector.
	got := CRC32([]byte("The quick brown fox jumps over the lazy dog"))
	want := "414fa339"
	if got != want {
		t.Errorf("CRC32(fox) = %q, want %q", got, want)
	}
}

func TestHexIsLowercase(t *testing.T) {
	for _, c := range CRC32([]byte("hello")) {
		if c >= 'A' && c <= 'F' {
			t.Fatalf("CRC32 output contains uppercase hex: %q", CRC32([]byte("hello")))
		}
	}
	for _, c := range SHA256([]byte("hello")) {
		if c >= 'A' && c <= 'F' {
			t.Fatalf("SHA256 output contains uppercase hex: %q", SHA256([]byte("hello")))
		}
	}
}
