package testsupport

import (
	"bytes"
	"io"
	"os"
	"path/filepath"
	"testing"
)

// fillByte pads fake source media; any non-zero value works.
const fillByte = 0x42

// WriteFile creates a stand-in source file of exactly size bytes (at least
// one) at path, creating parent directories.
func WriteFile(t testing.TB, path string, size int64) {
	t.Helper()

	size = max(size, 1)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatalf("mkdir for %s: %v", path, err)
	}
	f, err := os.Create(path)
	if err != nil {
		t.Fatalf("create %s: %v", path, err)
	}
	defer f.Close()

	pattern := bytes.Repeat([]byte{fillByte}, 32*1024)
	src := io.LimitReader(repeatReader(pattern), size)
	if _, err := io.Copy(f, src); err != nil {
		t.Fatalf("write %s: %v", path, err)
	}
}

type repeatReader []byte

func (r repeatReader) Read(p []byte) (int, error) {
	n := 0
	for n < len(p) {
		n += copy(p[n:], r)
	}
	return n, nil
}
