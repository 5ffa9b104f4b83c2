package backup

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestWriteRead_RoundTrip(t *testing.T) {
	for _, compressed := range []bool{true, false} {
		name := "plain"
		if compressed {
			name = "gzip"
		}
		t.Run(name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "nested", "b"+fileSuffix)
			payload := []byte(`{"version":1,"nodes":[{"id":"A"}]}`)
			created := time.Date(2026, 2, 1, 12, 0, 0, 0, time.UTC)

			err := Write(path, payload, Header{CreatedAt: created, Source: "/p/map.json", NodeCount: 1, Compressed: compressed})
			if err != nil {
				t.Fatalf("Write() error = %v", err)
			}

			h, got, err := Read(path)
			if err != nil {
				t.Fatalf("Read() error = %v", err)
			}
			if !bytes.Equal(got, payload) {
				t.Errorf("payload = %q, want %q", got, payload)
			}
			if h.Version != FormatVersion || h.NodeCount != 1 || h.Source != "/p/map.json" {
				t.Errorf("header = %+v", h)
			}
			if !strings.HasPrefix(h.Checksum, "sha256:") {
				t.Errorf("checksum = %q", h.Checksum)
			}
			if h.Compressed != compressed {
				t.Errorf("Compressed = %v, want %v", h.Compressed, compressed)
			}
		})
	}
}

func TestWrite_FilePermissions(t *testing.T) {
	path := filepath.Join(t.TempDir(), "b"+fileSuffix)
	if err := Write(path, []byte(`{}`), Header{Compressed: true}); err != nil {
		t.Fatal(err)
	}
	info, err := os.Stat(path)
	if err != nil {
		t.Fatal(err)
	}
	if perm := info.Mode().Perm(); perm != 0600 {
		t.Errorf("permissions = %o, want 0600", perm)
	}
}

func TestVerifyChecksum_Tampered(t *testing.T) {
	path := filepath.Join(t.TempDir(), "b"+fileSuffix)
	if err := Write(path, []byte(`{"nodes":[]}`), Header{Compressed: true}); err != nil {
		t.Fatal(err)
	}
	if err := VerifyChecksum(path); err != nil {
		t.Fatalf("VerifyChecksum() on intact file error = %v", err)
	}

	data, _ := os.ReadFile(path)
	data[len(data)-1] ^= 0xff
	os.WriteFile(path, data, 0600)

	if err := VerifyChecksum(path); err == nil || !strings.Contains(err.Error(), "checksum mismatch") {
		t.Errorf("VerifyChecksum() error = %v, want checksum mismatch", err)
	}
	if _, _, err := Read(path); err == nil {
		t.Error("Read() should reject a tampered file")
	}
}

func TestReadHeader(t *testing.T) {
	path := filepath.Join(t.TempDir(), "b"+fileSuffix)
	if err := Write(path, []byte(`{}`), Header{EdgeCount: 4, ScenarioCount: 2}); err != nil {
		t.Fatal(err)
	}
	h, err := ReadHeader(path)
	if err != nil {
		t.Fatalf("ReadHeader() error = %v", err)
	}
	if h.EdgeCount != 4 || h.ScenarioCount != 2 {
		t.Errorf("header = %+v", h)
	}
}

func TestReadHeader_Rejects(t *testing.T) {
	tests := map[string]string{
		"plain json":      `{"version":1,"nodes":[]}`,
		"unknown version": "{\"version\":9}\n",
		"garbage":         "not a header\n",
	}
	for name, content := range tests {
		t.Run(name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "b"+fileSuffix)
			os.WriteFile(path, []byte(content), 0600)
			if _, err := ReadHeader(path); err == nil {
				t.Error("expected error")
			}
		})
	}
}
