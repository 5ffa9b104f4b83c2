package project

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/nvandessel/cogmap/internal/models"
)

// ReadFile loads and decodes a project file. Decoding problems come back as
// *models.ValidationError; the document is not checked for graph invariants.
func ReadFile(path string) (*models.CognitiveMap, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return models.DecodeCognitiveMap(data)
}

// WriteFile encodes doc and writes it to path atomically: the bytes go to a
// temporary file in the same directory, are synced, then renamed over path.
func WriteFile(path string, doc *models.CognitiveMap) error {
	data, err := models.EncodeCognitiveMap(doc)
	if err != nil {
		return fmt.Errorf("encoding project: %w", err)
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("creating project directory: %w", err)
	}

	tmp, err := os.CreateTemp(dir, ".cogmap-*.tmp")
	if err != nil {
		return fmt.Errorf("creating temp file: %w", err)
	}
	tmpPath := tmp.Name()
	cleanup := func() {
		tmp.Close()
		os.Remove(tmpPath)
	}

	if _, err := tmp.Write(data); err != nil {
		cleanup()
		return fmt.Errorf("writing temp file: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		cleanup()
		return fmt.Errorf("syncing temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("closing temp file: %w", err)
	}
	if err := os.Chmod(tmpPath, 0644); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("setting permissions: %w", err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("renaming temp file: %w", err)
	}
	return nil
}

func exists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}
