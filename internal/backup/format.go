package backup

import (
	"bufio"
	"bytes"
	"compress/gzip"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"
)

// FormatVersion is the backup file format written by this build.
const FormatVersion = 1

// MaxPayloadSize is the maximum allowed size of a decompressed payload (200MB).
const MaxPayloadSize = 200 * 1024 * 1024

// Header is the plain-text first line of a backup file.
type Header struct {
	Version       int       `json:"version"`
	CreatedAt     time.Time `json:"created_at"`
	Checksum      string    `json:"checksum"`
	Source        string    `json:"source,omitempty"`
	NodeCount     int       `json:"node_count"`
	EdgeCount     int       `json:"edge_count"`
	ScenarioCount int       `json:"scenario_count"`
	Compressed    bool      `json:"compressed"`
}

// Write stores payload at path as a header line followed by the payload,
// gzip-compressed when h.Compressed is set. Version and Checksum are filled
// in; the checksum covers the bytes after the header line.
func Write(path string, payload []byte, h Header) error {
	body := payload
	if h.Compressed {
		var compressed bytes.Buffer
		gzw, err := gzip.NewWriterLevel(&compressed, gzip.DefaultCompression)
		if err != nil {
			return fmt.Errorf("creating gzip writer: %w", err)
		}
		if _, err := gzw.Write(payload); err != nil {
			return fmt.Errorf("compressing payload: %w", err)
		}
		if err := gzw.Close(); err != nil {
			return fmt.Errorf("closing gzip writer: %w", err)
		}
		body = compressed.Bytes()
	}

	h.Version = FormatVersion
	h.Checksum = checksum(body)

	headerBytes, err := json.Marshal(h)
	if err != nil {
		return fmt.Errorf("marshaling header: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return fmt.Errorf("creating directory: %w", err)
	}

	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0600)
	if err != nil {
		return fmt.Errorf("creating file: %w", err)
	}
	defer f.Close()

	if _, err := f.Write(append(headerBytes, '\n')); err != nil {
		return fmt.Errorf("writing header: %w", err)
	}
	if _, err := f.Write(body); err != nil {
		return fmt.Errorf("writing payload: %w", err)
	}
	return f.Sync()
}

// Read reads a backup file, verifies the checksum and returns the header
// and the decompressed payload.
func Read(path string) (*Header, []byte, error) {
	h, body, err := readRaw(path)
	if err != nil {
		return nil, nil, err
	}
	if !h.Compressed {
		return h, body, nil
	}

	gzr, err := gzip.NewReader(bytes.NewReader(body))
	if err != nil {
		return nil, nil, fmt.Errorf("creating gzip reader: %w", err)
	}
	defer gzr.Close()

	payload, err := io.ReadAll(io.LimitReader(gzr, MaxPayloadSize+1))
	if err != nil {
		return nil, nil, fmt.Errorf("decompressing payload: %w", err)
	}
	if int64(len(payload)) > MaxPayloadSize {
		return nil, nil, fmt.Errorf("decompressed payload exceeds maximum size of %d bytes", MaxPayloadSize)
	}
	return h, payload, nil
}

// ReadHeader reads only the header line of a backup file.
func ReadHeader(path string) (*Header, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening file: %w", err)
	}
	defer f.Close()
	return parseHeader(bufio.NewReader(f))
}

// VerifyChecksum checks the integrity of a backup file without decompressing it.
func VerifyChecksum(path string) error {
	_, _, err := readRaw(path)
	return err
}

// readRaw returns the header and the checksum-verified body as stored.
func readRaw(path string) (*Header, []byte, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, nil, fmt.Errorf("opening file: %w", err)
	}
	defer f.Close()

	reader := bufio.NewReader(f)
	h, err := parseHeader(reader)
	if err != nil {
		return nil, nil, err
	}

	body, err := io.ReadAll(io.LimitReader(reader, MaxPayloadSize+1))
	if err != nil {
		return nil, nil, fmt.Errorf("reading payload: %w", err)
	}
	if int64(len(body)) > MaxPayloadSize {
		return nil, nil, fmt.Errorf("payload exceeds maximum size of %d bytes", MaxPayloadSize)
	}

	if actual := checksum(body); actual != h.Checksum {
		return nil, nil, fmt.Errorf("checksum mismatch: expected %s, got %s", h.Checksum, actual)
	}
	return h, body, nil
}

func parseHeader(r *bufio.Reader) (*Header, error) {
	line, err := r.ReadBytes('\n')
	if err != nil {
		return nil, fmt.Errorf("reading header line: %w", err)
	}

	var h Header
	if err := json.Unmarshal(bytes.TrimSpace(line), &h); err != nil {
		return nil, fmt.Errorf("parsing header: %w", err)
	}
	if h.Version != FormatVersion {
		return nil, fmt.Errorf("unsupported backup version %d", h.Version)
	}
	return &h, nil
}

func checksum(data []byte) string {
	sum := sha256.Sum256(data)
	return "sha256:" + hex.EncodeToString(sum[:])
}
