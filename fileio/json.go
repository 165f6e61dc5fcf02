package fileio

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"os"
)

// ErrInvalidJSON marks payloads that do not parse as JSON
var ErrInvalidJSON = errors.New("fileio: invalid json")

// ReadJSONCompact reads a JSON file and returns it without insignificant whitespace
func ReadJSONCompact(filename string) ([]byte, error) {
	raw, err := os.ReadFile(filename)
	if err != nil {
		return nil, err
	}
	return CompactJSON(raw)
}

// CompactJSON validates data as a single JSON value and compacts it
func CompactJSON(data []byte) ([]byte, error) {
	var out bytes.Buffer
	if err := json.Compact(&out, bytes.TrimSpace(data)); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidJSON, err)
	}
	return out.Bytes(), nil
}

// WriteJSON writes data to filename, indented when pretty is set.
// Empty data truncates the file.
func WriteJSON(filename string, data []byte, pretty bool) error {
	if pretty && len(data) > 0 {
		var out bytes.Buffer
		if err := json.Indent(&out, data, "", "  "); err != nil {
			return fmt.Errorf("%w: %w", ErrInvalidJSON, err)
		}
		data = out.Bytes()
	}
	return os.WriteFile(filename, data, 0644)
}
